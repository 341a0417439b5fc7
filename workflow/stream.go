package workflow

import (
	"github.com/BaSui01/stepflow/agent"
)

// StreamEventType 流式事件类型
type StreamEventType string

const (
	// StreamEventStep is emitted once per visited step.
	StreamEventStep StreamEventType = "step"
	// StreamEventFinalResult terminates a successful stream.
	StreamEventFinalResult StreamEventType = "final_result"
	// StreamEventError terminates a stream that failed without a handler.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one element of a streamed run.
type StreamEvent struct {
	Type        StreamEventType `json:"type"`
	StepName    string          `json:"step_name,omitempty"`
	StepResult  any             `json:"step_result,omitempty"`
	StepIndex   int             `json:"step_index"`
	AgentName   string          `json:"agent_name,omitempty"`
	Usage       *agent.Usage    `json:"usage,omitempty"`
	FinalResult Result          `json:"final_result,omitempty"`
	Error       string          `json:"error,omitempty"`

	// Err is the error behind an error event.
	Err error `json:"-"`
}

// IsTerminal reports whether the event ends the stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == StreamEventFinalResult || e.Type == StreamEventError
}

func finalResultEvent(r Result) StreamEvent {
	return StreamEvent{Type: StreamEventFinalResult, FinalResult: r, StepIndex: -1}
}

func errorEvent(err error) StreamEvent {
	return StreamEvent{Type: StreamEventError, Error: err.Error(), Err: err, StepIndex: -1}
}
