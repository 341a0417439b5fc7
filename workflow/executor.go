package workflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/stepflow/agent"
	"github.com/BaSui01/stepflow/types"
	"github.com/BaSui01/stepflow/workflow/expr"
)

// DefaultLoopLimit caps a loop that only declares an Until predicate.
const DefaultLoopLimit = 50

// StepResult is the outcome of one step.
type StepResult struct {
	// Output is recorded under the step name.
	Output any

	// Next names the step to jump to. Empty means the next declared step.
	Next string
}

// StepExecutor runs one bound step.
type StepExecutor interface {
	Run(ctx context.Context, in StepInput) (StepResult, error)
}

// StepExecutorFunc adapts a function to StepExecutor.
type StepExecutorFunc func(ctx context.Context, in StepInput) (StepResult, error)

func (f StepExecutorFunc) Run(ctx context.Context, in StepInput) (StepResult, error) {
	return f(ctx, in)
}

func (in StepInput) request() *agent.Request {
	return &agent.Request{Args: in.Args, Context: in.Context, StepIndex: in.StepIndex}
}

// =============================================================================
// Agent
// =============================================================================

type agentExecutor struct {
	run   *run
	step  string
	agent agent.Agent
}

func (e *agentExecutor) Run(ctx context.Context, in StepInput) (StepResult, error) {
	out, err := e.run.invoke(ctx, invocation{
		step:      e.step,
		agent:     e.agent,
		req:       in.request(),
		streaming: in.Streaming,
	})
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Output: out}, nil
}

// =============================================================================
// Sub-workflow
// =============================================================================

type subWorkflowExecutor struct {
	run   *run
	bound *boundWorkflow
}

func (e *subWorkflowExecutor) Run(ctx context.Context, in StepInput) (StepResult, error) {
	res, err := e.run.execute(ctx, e.bound, agent.Stringify(in.Primary()), nil)
	if err != nil {
		return StepResult{}, fmt.Errorf("sub-workflow %q: %w", e.bound.def.Name, err)
	}
	return StepResult{Output: res}, nil
}

// =============================================================================
// Parallel
// =============================================================================

type parallelExecutor struct {
	run    *run
	step   string
	agents []agent.Agent
}

// Run invokes every member on the same input and waits for all of them.
// Outputs keep member order; the first failing member in that order fails
// the step.
func (e *parallelExecutor) Run(ctx context.Context, in StepInput) (StepResult, error) {
	outputs := make([]any, len(e.agents))
	errs := make([]error, len(e.agents))

	var g errgroup.Group
	for i, a := range e.agents {
		req := in.request()
		req.Args = append([]any(nil), in.Args...)
		g.Go(func() error {
			outputs[i], errs[i] = e.run.invoke(ctx, invocation{
				step:      e.step,
				agent:     a,
				req:       req,
				streaming: in.Streaming,
			})
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			return StepResult{}, fmt.Errorf("parallel member %q: %w", e.agents[i].Name(), err)
		}
	}
	return StepResult{Output: outputs}, nil
}

// =============================================================================
// Loop
// =============================================================================

type loopExecutor struct {
	run           *run
	step          string
	agent         agent.Agent
	until         *expr.Program
	maxIterations int
}

func (e *loopExecutor) Run(ctx context.Context, in StepInput) (StepResult, error) {
	args := in.Args
	var out any
	for i := 0; i < e.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return StepResult{}, err
		}
		req := in.request()
		req.Args = args

		var err error
		out, err = e.run.invoke(ctx, invocation{
			step:      e.step,
			agent:     e.agent,
			req:       req,
			streaming: in.Streaming,
		})
		if err != nil {
			return StepResult{}, fmt.Errorf("loop iteration %d: %w", i+1, err)
		}

		if e.until != nil {
			done, err := e.until.EvalBool(map[string]any{"input": out, "iteration": i + 1})
			if err != nil {
				return StepResult{}, types.NewError(types.ErrExpression, "loop until predicate failed").
					WithStep(e.step).WithCause(err)
			}
			if done {
				break
			}
		}
		args = []any{out}
	}
	return StepResult{Output: out}, nil
}

// =============================================================================
// Conditions
// =============================================================================

// branch is a compiled Condition. A nil when matches unconditionally.
type branch struct {
	when      *expr.Program
	then      string
	otherwise string
}

// conditionalExecutor picks the successor of a step after it ran.
type conditionalExecutor struct {
	inner    StepExecutor
	step     string
	branches []branch
	next     string
}

func (e *conditionalExecutor) Run(ctx context.Context, in StepInput) (StepResult, error) {
	res, err := e.inner.Run(ctx, in)
	if err != nil {
		return res, err
	}
	if res.Next != "" {
		return res, nil
	}

	vars := make(map[string]any, len(in.Context)+1)
	for k, v := range in.Context {
		vars[k] = v
	}
	vars["input"] = res.Output

	for _, b := range e.branches {
		if b.when == nil {
			res.Next = b.then
			return res, nil
		}
		ok, err := b.when.EvalBool(vars)
		if err != nil {
			return StepResult{}, types.NewError(types.ErrExpression, "condition failed").
				WithStep(e.step).WithCause(err)
		}
		if ok {
			res.Next = b.then
			return res, nil
		}
		if b.otherwise != "" {
			res.Next = b.otherwise
			return res, nil
		}
	}
	res.Next = e.next
	return res, nil
}

// compileConditions turns declared conditions into branches.
func compileConditions(step string, conds []Condition) ([]branch, error) {
	out := make([]branch, 0, len(conds))
	for i, c := range conds {
		switch {
		case c.If != "":
			p, err := expr.Compile(c.If)
			if err != nil {
				return nil, types.Errorf(types.ErrConfiguration, "condition %d", i).WithStep(step).WithCause(err)
			}
			out = append(out, branch{when: p, then: c.Then, otherwise: c.Else})
		case c.Case != "":
			p, err := expr.Compile(c.Case)
			if err != nil {
				return nil, types.Errorf(types.ErrConfiguration, "condition %d", i).WithStep(step).WithCause(err)
			}
			out = append(out, branch{when: p, then: c.Do})
		case c.Default != "":
			out = append(out, branch{then: c.Default})
		default:
			return nil, types.Errorf(types.ErrConfiguration, "condition %d has no if, case or default", i).WithStep(step)
		}
	}
	return out, nil
}
