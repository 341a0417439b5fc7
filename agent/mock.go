package agent

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MockAgent answers every prompt with a canned response. It is used for dry
// runs and tests.
type MockAgent struct {
	def    *Definition
	logger *zap.Logger

	mu    sync.Mutex
	usage Usage
	calls int
}

// NewMockAgent creates a mock agent for def.
func NewMockAgent(def *Definition, logger *zap.Logger) *MockAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MockAgent{
		def:    def.Clone(),
		logger: logger.With(zap.String("component", "mock_agent"), zap.String("agent", def.Name())),
	}
	m.logger.Debug("mock agent loaded",
		zap.String("model", def.Spec.Model),
		zap.String("description", def.Spec.Description),
		zap.Strings("tools", def.Spec.Tools),
	)
	return m
}

// Answer returns the response the mock gives for prompt.
func Answer(prompt string) string {
	return "Mock agent: answer for " + prompt
}

func (m *MockAgent) Name() string         { return m.def.Name() }
func (m *MockAgent) Model() string        { return m.def.Spec.Model }
func (m *MockAgent) Instructions() string { return m.def.Spec.Instructions }

// Definition returns a copy of the definition the mock was built from.
func (m *MockAgent) Definition() *Definition { return m.def.Clone() }

func (m *MockAgent) Run(ctx context.Context, req *Request) (any, error) {
	return m.answer(ctx, req)
}

func (m *MockAgent) RunStreaming(ctx context.Context, req *Request) (any, error) {
	return m.answer(ctx, req)
}

func (m *MockAgent) answer(ctx context.Context, req *Request) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := req.Prompt()
	out := Answer(prompt)

	m.mu.Lock()
	m.usage = EstimateUsage(prompt, out)
	m.calls++
	m.mu.Unlock()

	m.logger.Debug("mock agent answered", zap.Int("step_index", req.StepIndex))
	return out, nil
}

// Usage returns the usage of the most recent call.
func (m *MockAgent) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// Calls returns how many times the mock has been invoked.
func (m *MockAgent) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
