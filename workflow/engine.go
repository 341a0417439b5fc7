package workflow

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/agent"
	"github.com/BaSui01/stepflow/agent/persistence"
	"github.com/BaSui01/stepflow/internal/ctxkeys"
	"github.com/BaSui01/stepflow/internal/metrics"
	"github.com/BaSui01/stepflow/types"
)

const tracerName = "github.com/BaSui01/stepflow/workflow"

// errStreamStopped signals that the consumer stopped ranging over a stream.
var errStreamStopped = errors.New("stream stopped by consumer")

// Engine 工作流执行引擎
// New 之后不可变，可在多个 goroutine 中并发调用 Run（前提是 Agent 可重入）。
type Engine struct {
	def *Definition

	logger    *zap.Logger
	store     persistence.AgentStore
	factory   *agent.Factory
	preloaded map[string]agent.Agent
	agentDefs []*agent.Definition
	loader    DefinitionLoader
	sink      RunLogSink
	metrics   *metrics.Collector
	tracer    trace.Tracer

	pollInterval time.Duration
	clock        Clock
	loopLimit    int
}

// New creates an engine for def. The definition is copied; later changes
// by the caller do not affect the engine.
func New(def *Definition, opts ...Option) (*Engine, error) {
	if err := def.Validate(); err != nil {
		return nil, types.NewError(types.ErrConfiguration, "invalid workflow definition").WithCause(err)
	}

	e := &Engine{
		def:          def.Clone(),
		logger:       zap.NewNop(),
		preloaded:    make(map[string]agent.Agent),
		sink:         nopRunLogSink{},
		tracer:       otel.Tracer(tracerName),
		pollInterval: DefaultPollInterval,
		clock:        realClock{},
		loopLimit:    DefaultLoopLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = persistence.NewMemoryAgentStore()
	}
	if e.factory == nil {
		e.factory = agent.NewFactory(e.logger)
	}
	e.logger = e.logger.With(zap.String("component", "workflow_engine"), zap.String("workflow", e.def.Name))
	return e, nil
}

// Definition returns a copy of the engine's definition.
func (e *Engine) Definition() *Definition {
	return e.def.Clone()
}

// Run executes the workflow and returns the aggregated result. A non-empty
// prompt overrides the definition prompt for this run.
//
// When the workflow declares an exception handler and the run fails, the
// handler receives the error and Run returns (nil, nil).
func (e *Engine) Run(ctx context.Context, prompt string) (Result, error) {
	return e.execute(ctx, prompt, nil)
}

// RunStreaming executes the workflow step by step. The sequence yields one
// step event per visited step, then a final_result event, or an error event
// when the run fails without a handler. A handled failure ends the sequence
// with no terminal event. Stopping the range loop stops the walk before the
// next step. The sequence is single-use.
func (e *Engine) RunStreaming(ctx context.Context, prompt string) iter.Seq[StreamEvent] {
	return func(yield func(StreamEvent) bool) {
		stopped := false
		emit := func(ev StreamEvent) bool {
			if !yield(ev) {
				stopped = true
				return false
			}
			return true
		}

		res, err := e.execute(ctx, prompt, emit)
		switch {
		case stopped:
		case err != nil:
			yield(errorEvent(err))
		case res != nil:
			yield(finalResultEvent(res))
		}
	}
}

// Validate resolves every agent and reference of the definition without
// running any step.
func (e *Engine) Validate(ctx context.Context) error {
	r := e.newRun()
	defer r.release(ctx)
	_, err := r.bindRoot(ctx)
	return err
}

func (e *Engine) execute(ctx context.Context, prompt string, emit func(StreamEvent) bool) (res Result, err error) {
	if prompt == "" {
		prompt = e.def.Prompt
	}

	r := e.newRun()
	ctx = ctxkeys.WithRunID(ctx, r.id)
	ctx = ctxkeys.WithWorkflowName(ctx, e.def.Name)
	ctx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow", e.def.Name),
		attribute.String("run_id", r.id),
		attribute.Bool("streaming", emit != nil),
	))

	start := time.Now()
	r.logger.Info("workflow run started", zap.Bool("streaming", emit != nil))

	defer func() {
		r.release(ctx)

		duration := time.Since(start)
		status := metrics.Status(err)
		switch {
		case errors.Is(err, errStreamStopped):
			status = "stopped"
			err = nil
			r.logger.Info("workflow stream stopped by consumer", zap.Duration("duration", duration))
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Error("workflow run failed", zap.Duration("duration", duration), zap.Error(err))
		case r.handled:
			status = "handled"
			r.logger.Info("workflow run handled by exception handler", zap.Duration("duration", duration))
		default:
			r.logger.Info("workflow run completed", zap.Duration("duration", duration))
		}
		e.metrics.RecordWorkflowRun(e.def.Name, status, duration)
		span.End()
	}()

	bw, err := r.bindRoot(ctx)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, bw, prompt, emit)
}

func (e *Engine) newRun() *run {
	id := uuid.NewString()
	return &run{
		engine:   e,
		id:       id,
		workflow: e.def.Name,
		logger:   e.logger.With(zap.String("run_id", id)),
		handles:  newHandleTable(),
	}
}

// routable reports whether err may be handed to an exception handler.
func routable(err error) bool {
	if types.IsConfigurationError(err) {
		return false
	}
	return !errors.Is(err, errStreamStopped) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
