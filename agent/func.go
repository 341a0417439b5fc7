package agent

import "context"

// RunFunc is the signature of an inline agent.
type RunFunc func(ctx context.Context, req *Request) (any, error)

// FuncAgent adapts a function to the Agent interface. The same function
// serves Run and RunStreaming unless a streaming variant is set.
type FuncAgent struct {
	name         string
	fn           RunFunc
	streamFn     RunFunc
	instructions string
	model        string
	release      func(ctx context.Context) error
}

// NewFuncAgent creates an agent named name backed by fn.
func NewFuncAgent(name string, fn RunFunc) *FuncAgent {
	return &FuncAgent{name: name, fn: fn}
}

// WithStreaming sets the function used by RunStreaming.
func (f *FuncAgent) WithStreaming(fn RunFunc) *FuncAgent {
	f.streamFn = fn
	return f
}

// WithInstructions sets the static instructions.
func (f *FuncAgent) WithInstructions(instructions string) *FuncAgent {
	f.instructions = instructions
	return f
}

// WithModel sets the reported model name.
func (f *FuncAgent) WithModel(model string) *FuncAgent {
	f.model = model
	return f
}

// WithRelease sets a hook called when the engine releases the agent.
func (f *FuncAgent) WithRelease(fn func(ctx context.Context) error) *FuncAgent {
	f.release = fn
	return f
}

func (f *FuncAgent) Name() string         { return f.name }
func (f *FuncAgent) Instructions() string { return f.instructions }
func (f *FuncAgent) Model() string        { return f.model }

func (f *FuncAgent) Run(ctx context.Context, req *Request) (any, error) {
	return f.fn(ctx, req)
}

func (f *FuncAgent) RunStreaming(ctx context.Context, req *Request) (any, error) {
	if f.streamFn != nil {
		return f.streamFn(ctx, req)
	}
	return f.fn(ctx, req)
}

func (f *FuncAgent) Release(ctx context.Context) error {
	if f.release == nil {
		return nil
	}
	return f.release(ctx)
}
