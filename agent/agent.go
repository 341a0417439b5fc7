package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// ErrorHandlerStepIndex is the step index passed to an exception handler.
// Agents must tolerate it.
const ErrorHandlerStepIndex = -1

// Agent is the contract every workflow participant implements.
type Agent interface {
	// Name returns the name the agent is registered under.
	Name() string

	// Run executes the agent and returns its output.
	Run(ctx context.Context, req *Request) (any, error)

	// RunStreaming is used instead of Run when the workflow is streamed.
	RunStreaming(ctx context.Context, req *Request) (any, error)
}

// Request carries the input of a single agent invocation.
type Request struct {
	// Args are the positional arguments. Args[0] is the primary prompt.
	Args []any `json:"args"`

	// Context holds the outputs of the steps completed so far, keyed by step name.
	Context map[string]any `json:"context,omitempty"`

	// StepIndex is the zero-based visit counter of the current step,
	// or ErrorHandlerStepIndex when the agent handles an exception.
	StepIndex int `json:"step_index"`
}

// NewRequest builds a request with a single prompt argument.
func NewRequest(prompt any, stepIndex int) *Request {
	return &Request{Args: []any{prompt}, StepIndex: stepIndex}
}

// Primary returns the first positional argument, or nil.
func (r *Request) Primary() any {
	if r == nil || len(r.Args) == 0 {
		return nil
	}
	return r.Args[0]
}

// Prompt returns the primary argument as a string.
func (r *Request) Prompt() string {
	return Stringify(r.Primary())
}

// UsageReporter is implemented by agents that track token usage.
type UsageReporter interface {
	Usage() Usage
}

// Instructor is implemented by agents with static instructions.
type Instructor interface {
	Instructions() string
}

// ModelNamer is implemented by agents that know which model they run.
type ModelNamer interface {
	Model() string
}

// Releaser is implemented by agents holding resources that must be freed
// at the end of a run.
type Releaser interface {
	Release(ctx context.Context) error
}

// ModelOf returns the agent's model, or "code:<name>" when it does not report one.
func ModelOf(a Agent) string {
	if m, ok := a.(ModelNamer); ok && m.Model() != "" {
		return m.Model()
	}
	return "code:" + a.Name()
}

// Stringify renders an agent output as text. Strings pass through,
// structured values are JSON encoded.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
