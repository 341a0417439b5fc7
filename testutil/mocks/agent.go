// ScriptedAgent 的 Agent 测试模拟实现。
//
// 支持固定响应、按序响应、自定义处理函数、错误注入与调用记录。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/stepflow/agent"
)

// --- ScriptedAgent 结构 ---

// ScriptedAgent 是 agent.Agent 的可编排模拟实现
type ScriptedAgent struct {
	mu sync.Mutex

	name         string
	model        string
	instructions string

	// 响应配置
	response  any
	responses []any
	handler   func(ctx context.Context, req *agent.Request) (any, error)
	err       error

	// 行为控制
	delay     time.Duration
	failAfter int // 第 N 次调用之后返回 err，0 表示不启用
	echo      bool

	// 调用记录
	calls      []Call
	usage      agent.Usage
	releases   int
	releaseErr error
}

// Call 记录单次调用
type Call struct {
	Request   *agent.Request
	Streaming bool
	Output    any
	Error     error
}

// --- 构造函数和 Builder 方法 ---

// NewScriptedAgent 创建新的 ScriptedAgent，默认响应为 "<name>: ok"
func NewScriptedAgent(name string) *ScriptedAgent {
	return &ScriptedAgent{name: name, response: name + ": ok"}
}

// NewEchoAgent 创建把输入原样返回的 ScriptedAgent
func NewEchoAgent(name string) *ScriptedAgent {
	return &ScriptedAgent{name: name, echo: true}
}

// WithResponse 设置固定响应
func (m *ScriptedAgent) WithResponse(response any) *ScriptedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	m.echo = false
	return m
}

// WithResponses 设置按序响应，用尽后重复最后一个
func (m *ScriptedAgent) WithResponses(responses ...any) *ScriptedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	m.echo = false
	return m
}

// WithHandler 设置自定义处理函数
func (m *ScriptedAgent) WithHandler(fn func(ctx context.Context, req *agent.Request) (any, error)) *ScriptedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// WithError 设置返回错误
func (m *ScriptedAgent) WithError(err error) *ScriptedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFailAfter 在前 n 次调用成功后返回 err
func (m *ScriptedAgent) WithFailAfter(n int, err error) *ScriptedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.err = err
	return m
}

// WithDelay 设置每次调用的延迟
func (m *ScriptedAgent) WithDelay(d time.Duration) *ScriptedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithUsage 设置上报的 Token 用量
func (m *ScriptedAgent) WithUsage(u agent.Usage) *ScriptedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = u
	return m
}

// WithInstructions 设置静态指令
func (m *ScriptedAgent) WithInstructions(instructions string) *ScriptedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions = instructions
	return m
}

// WithModel 设置模型名
func (m *ScriptedAgent) WithModel(model string) *ScriptedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
	return m
}

// WithReleaseError 设置 Release 返回的错误
func (m *ScriptedAgent) WithReleaseError(err error) *ScriptedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseErr = err
	return m
}

// --- agent.Agent 实现 ---

func (m *ScriptedAgent) Name() string { return m.name }

func (m *ScriptedAgent) Model() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

func (m *ScriptedAgent) Instructions() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instructions
}

func (m *ScriptedAgent) Run(ctx context.Context, req *agent.Request) (any, error) {
	return m.call(ctx, req, false)
}

func (m *ScriptedAgent) RunStreaming(ctx context.Context, req *agent.Request) (any, error) {
	return m.call(ctx, req, true)
}

func (m *ScriptedAgent) Usage() agent.Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

func (m *ScriptedAgent) Release(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	return m.releaseErr
}

func (m *ScriptedAgent) call(ctx context.Context, req *agent.Request, streaming bool) (any, error) {
	m.mu.Lock()
	delay := m.delay
	handler := m.handler
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		out any
		err error
	)
	if handler != nil {
		out, err = handler(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.calls)
	if handler == nil {
		switch {
		case m.err != nil && (m.failAfter == 0 || n >= m.failAfter):
			err = m.err
		case m.echo:
			out = req.Primary()
		case len(m.responses) > 0:
			out = m.responses[min(n, len(m.responses)-1)]
		default:
			out = m.response
		}
	}
	m.calls = append(m.calls, Call{Request: cloneRequest(req), Streaming: streaming, Output: out, Error: err})
	return out, err
}

// --- 调用记录查询 ---

// Calls 返回全部调用记录
func (m *ScriptedAgent) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *ScriptedAgent) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall 返回最后一次调用
func (m *ScriptedAgent) LastCall() (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return Call{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Releases 返回 Release 被调用的次数
func (m *ScriptedAgent) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

// Reset 清空调用记录
func (m *ScriptedAgent) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.releases = 0
}

func cloneRequest(req *agent.Request) *agent.Request {
	if req == nil {
		return nil
	}
	out := *req
	out.Args = append([]any(nil), req.Args...)
	return &out
}

// ErrScripted 是默认注入的错误
var ErrScripted = errors.New("scripted failure")
