package workflow

import (
	"strings"

	"github.com/BaSui01/stepflow/agent"
)

const (
	// PromptSource names the run's initial prompt in inputs and from lists.
	PromptSource = "prompt"

	// InstructionsPrefix selects an agent's static instructions:
	// "instructions:<step>".
	InstructionsPrefix = "instructions:"

	// sourceSeparator joins multiple from sources.
	sourceSeparator = "\n\n"
)

// InstructionLookup returns the static instructions of the agent bound to step.
type InstructionLookup func(step string) (string, bool)

// StepInput is what a StepExecutor receives.
type StepInput struct {
	// Args are the positional arguments handed to the agent.
	Args []any

	// Context is a copy of the results completed so far.
	Context map[string]any

	// StepIndex is the visit counter of the step.
	StepIndex int

	// Streaming selects Agent.RunStreaming over Agent.Run.
	Streaming bool
}

// Primary returns the first argument, or nil.
func (in StepInput) Primary() any {
	if len(in.Args) == 0 {
		return nil
	}
	return in.Args[0]
}

// ContextRouter decides what a step receives as input. Routing never fails:
// a descriptor that matches nothing is passed through as a literal.
type ContextRouter struct {
	instructions InstructionLookup
}

// NewContextRouter creates a router. lookup may be nil.
func NewContextRouter(lookup InstructionLookup) *ContextRouter {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	return &ContextRouter{instructions: lookup}
}

// Resolve builds the input of step. Inputs take priority over From, and
// From over the previous output of the walk.
func (r *ContextRouter) Resolve(step StepDefinition, initialPrompt string, state *ExecutionState, previous any) StepInput {
	in := StepInput{Context: state.Context(), StepIndex: state.StepIndex}

	switch {
	case len(step.Inputs) > 0:
		in.Args = make([]any, 0, len(step.Inputs))
		for _, desc := range step.Inputs {
			in.Args = append(in.Args, r.source(desc, initialPrompt, state))
		}

	case len(step.From) == 1:
		in.Args = []any{r.source(step.From[0], initialPrompt, state)}

	case len(step.From) > 1:
		parts := make([]string, 0, len(step.From))
		for _, src := range step.From {
			v := r.source(src, initialPrompt, state)
			if v == nil {
				continue
			}
			if s := agent.Stringify(v); s != "" {
				parts = append(parts, s)
			}
		}
		in.Args = []any{strings.Join(parts, sourceSeparator)}

	default:
		in.Args = []any{previous}
	}
	return in
}

// source resolves one descriptor.
func (r *ContextRouter) source(desc, initialPrompt string, state *ExecutionState) any {
	if desc == PromptSource {
		return initialPrompt
	}
	if target, ok := strings.CutPrefix(desc, InstructionsPrefix); ok {
		if instr, ok := r.instructions(target); ok {
			return instr
		}
		return desc
	}
	if v, ok := state.Output(desc); ok {
		return v
	}
	return desc
}
