package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/agent"
	"github.com/BaSui01/stepflow/internal/ctxkeys"
	"github.com/BaSui01/stepflow/internal/metrics"
	"github.com/BaSui01/stepflow/types"
)

// run is the state of one execution. Nested sub-workflow runs share the
// parent's id and handle table.
type run struct {
	engine   *Engine
	id       string
	workflow string
	logger   *zap.Logger
	handles  *handleTable
	handled  bool
}

// handleTable maps agent names to live handles. Handles the run created
// through the factory are owned and released when the run ends.
type handleTable struct {
	agents map[string]agent.Agent
	owned  []agent.Agent
}

func newHandleTable() *handleTable {
	return &handleTable{agents: make(map[string]agent.Agent)}
}

func (t *handleTable) get(name string) (agent.Agent, bool) {
	a, ok := t.agents[name]
	return a, ok
}

func (t *handleTable) put(name string, a agent.Agent, owned bool) {
	t.agents[name] = a
	if owned {
		t.owned = append(t.owned, a)
	}
}

// snapshot returns the handles keyed by name.
func (t *handleTable) snapshot() map[string]agent.Agent {
	out := make(map[string]agent.Agent, len(t.agents))
	for k, v := range t.agents {
		out[k] = v
	}
	return out
}

func (r *run) nested(workflow string) *run {
	return &run{
		engine:   r.engine,
		id:       r.id,
		workflow: workflow,
		logger:   r.engine.logger.With(zap.String("run_id", r.id), zap.String("sub_workflow", workflow)),
		handles:  r.handles,
	}
}

// release frees every owned handle. Failures are logged.
func (r *run) release(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range r.handles.owned {
		rel, ok := a.(agent.Releaser)
		if !ok {
			continue
		}
		if err := rel.Release(ctx); err != nil {
			r.logger.Warn("failed to release agent", zap.String("agent", a.Name()), zap.Error(err))
		}
	}
	r.handles.owned = nil
}

// execute walks bw, hands the aggregate to the event scheduler when one is
// declared, and routes failures to the exception handler.
func (r *run) execute(ctx context.Context, bw *boundWorkflow, prompt string, emit func(StreamEvent) bool) (Result, error) {
	res, err := r.walk(ctx, bw, 0, prompt, emit)
	if err == nil && bw.scheduler != nil {
		res, err = bw.scheduler.Run(ctx, res)
	}
	if err == nil {
		return res, nil
	}
	if bw.handler == nil || !routable(err) {
		return nil, err
	}
	return nil, r.handle(ctx, bw, err)
}

func (r *run) handle(ctx context.Context, bw *boundWorkflow, cause error) error {
	step := "exception"
	if bw.def.Exception != nil && bw.def.Exception.Name != "" {
		step = bw.def.Exception.Name
	}
	r.logger.Warn("routing error to exception handler",
		zap.String("handler", bw.handler.Name()),
		zap.Error(cause),
	)

	req := &agent.Request{Args: []any{cause}, StepIndex: agent.ErrorHandlerStepIndex}
	if _, err := r.invoke(ctx, invocation{step: step, agent: bw.handler, req: req}); err != nil {
		return errors.Join(cause, fmt.Errorf("exception handler %q: %w", bw.handler.Name(), err))
	}
	r.handled = true
	return nil
}

// walk visits steps starting at bw.steps[start] until the last declared
// step completes without a jump.
func (r *run) walk(ctx context.Context, bw *boundWorkflow, start int, prompt string, emit func(StreamEvent) bool) (Result, error) {
	state := newExecutionState()
	router := NewContextRouter(bw.instructions)
	var previous any = prompt

	for i := start; ; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bs := bw.steps[i]
		name := bs.def.Name
		kind := kindName(bs.def.Kind)
		state.Current = name

		in := router.Resolve(bs.def, prompt, state, previous)
		in.Streaming = emit != nil

		stepCtx := ctxkeys.WithStepName(ctxkeys.WithStepIndex(ctx, state.StepIndex), name)
		stepCtx, span := r.engine.tracer.Start(stepCtx, "workflow.step", trace.WithAttributes(
			attribute.String("step", name),
			attribute.String("kind", kind),
			attribute.Int("step_index", state.StepIndex),
		))

		r.logger.Debug("executing step",
			zap.String("step", name),
			zap.String("kind", kind),
			zap.Int("step_index", state.StepIndex),
		)

		started := time.Now()
		res, err := bs.exec.Run(stepCtx, in)
		duration := time.Since(started)
		r.engine.metrics.RecordStep(r.workflow, name, kind, metrics.Status(err), duration)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			r.logger.Debug("step failed", zap.String("step", name), zap.Error(err))
			return nil, stepError(name, err)
		}
		span.End()

		state.Record(name, res.Output)
		previous = res.Output
		r.logger.Debug("step completed",
			zap.String("step", name),
			zap.Duration("duration", duration),
			zap.String("next", res.Next),
		)

		if emit != nil && !emit(bs.event(state.StepIndex, res.Output)) {
			return nil, errStreamStopped
		}
		state.StepIndex++

		if res.Next != "" {
			j, ok := bw.index[res.Next]
			if !ok {
				return nil, types.Errorf(types.ErrStepExecution, "next step %q is not part of this walk", res.Next).WithStep(name)
			}
			i = j
			continue
		}
		if i == len(bw.steps)-1 {
			break
		}
		i++
	}
	return state.Aggregate(previous), nil
}

// stepError attaches the step name to err, keeping the cause chain.
func stepError(step string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if e, ok := err.(*types.Error); ok && e.Step == step {
		return err
	}
	return types.NewError(types.ErrStepExecution, "execution failed").WithStep(step).WithCause(err)
}

// invocation is one agent call made on behalf of a step.
type invocation struct {
	step      string
	agent     agent.Agent
	req       *agent.Request
	streaming bool
}

// invoke calls the agent and writes its run record in a deferred region,
// so a failing agent is still recorded.
func (r *run) invoke(ctx context.Context, inv invocation) (out any, err error) {
	a := inv.agent
	e := r.engine

	ctx = ctxkeys.WithStepIndex(ctx, inv.req.StepIndex)
	ctx, span := e.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent", a.Name()),
		attribute.String("step", inv.step),
		attribute.Int("step_index", inv.req.StepIndex),
		attribute.String("run_id", r.id),
	))
	start := time.Now()

	defer func() {
		end := time.Now()
		rec := RunRecord{
			WorkflowID: r.workflow,
			RunID:      r.id,
			StepIndex:  inv.req.StepIndex,
			StepName:   inv.step,
			Agent:      a.Name(),
			Model:      agent.ModelOf(a),
			Input:      agent.Stringify(inv.req.Primary()),
			Output:     agent.Stringify(out),
			StartTime:  start,
			EndTime:    end,
			Duration:   end.Sub(start),
		}
		var usage agent.Usage
		if u, ok := a.(agent.UsageReporter); ok {
			usage = u.Usage()
			rec.Usage = &usage
		}
		if err != nil {
			rec.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if serr := e.sink.Record(ctx, rec); serr != nil {
			r.logger.Warn("failed to write run record", zap.String("agent", a.Name()), zap.Error(serr))
		}
		e.metrics.RecordAgentRun(a.Name(), metrics.Status(err), rec.Duration, usage.PromptTokens, usage.ResponseTokens)
		span.End()
	}()

	if inv.streaming {
		return a.RunStreaming(ctx, inv.req)
	}
	return a.Run(ctx, inv.req)
}

// boundWorkflow is a definition whose references have been resolved
// against one run's handles.
type boundWorkflow struct {
	def          *Definition
	steps        []*boundStep
	index        map[string]int
	handler      agent.Agent
	scheduler    *EventScheduler
	instructions InstructionLookup
}

// boundStep is a step with its executor.
type boundStep struct {
	def    StepDefinition
	exec   StepExecutor
	target string
	agents []agent.Agent
}

func (bs *boundStep) event(index int, output any) StreamEvent {
	ev := StreamEvent{
		Type:       StreamEventStep,
		StepName:   bs.def.Name,
		StepResult: output,
		StepIndex:  index,
		AgentName:  bs.target,
	}
	var total agent.Usage
	reported := false
	for _, a := range bs.agents {
		if u, ok := a.(agent.UsageReporter); ok {
			total = total.Add(u.Usage())
			reported = true
		}
	}
	if reported {
		ev.Usage = &total
	}
	return ev
}

// subset returns the named steps in declared order as a standalone walk
// and the position of names[0] in it.
func (bw *boundWorkflow) subset(names []string) (*boundWorkflow, int) {
	out := &boundWorkflow{
		def:          bw.def,
		index:        make(map[string]int),
		instructions: bw.instructions,
	}
	for _, bs := range bw.steps {
		if slices.Contains(names, bs.def.Name) {
			out.index[bs.def.Name] = len(out.steps)
			out.steps = append(out.steps, bs)
		}
	}
	return out, out.index[names[0]]
}

func joinNames(agents []agent.Agent) string {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name()
	}
	return strings.Join(names, ",")
}
