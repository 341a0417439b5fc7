package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/stepflow/agent"
	"github.com/BaSui01/stepflow/agent/persistence"
	"github.com/BaSui01/stepflow/internal/metrics"
	"github.com/BaSui01/stepflow/testutil"
	"github.com/BaSui01/stepflow/testutil/fixtures"
	"github.com/BaSui01/stepflow/testutil/mocks"
	"github.com/BaSui01/stepflow/types"
)

// --- 测试辅助 ---

// tagAgent answers "<name>(<prompt>)".
func tagAgent(name string) *mocks.ScriptedAgent {
	return mocks.NewScriptedAgent(name).WithHandler(func(_ context.Context, req *agent.Request) (any, error) {
		return name + "(" + req.Prompt() + ")", nil
	})
}

// linear builds a definition whose steps run the agent of the same name.
func linear(prompt string, names ...string) *Definition {
	def := &Definition{Name: "linear", Prompt: prompt}
	for _, n := range names {
		def.Steps = append(def.Steps, StepDefinition{Name: n, Kind: AgentStep{Agent: n}})
	}
	return def
}

func newTestEngine(t *testing.T, def *Definition, opts ...Option) *Engine {
	t.Helper()
	e, err := New(def, opts...)
	require.NoError(t, err)
	return e
}

func preload(agents ...*mocks.ScriptedAgent) Option {
	out := make([]agent.Agent, len(agents))
	for i, a := range agents {
		out[i] = a
	}
	return WithAgents(out...)
}

// =============================================================================
// 🧭 遍历与终止
// =============================================================================

func TestEngine_Run_TerminatesAfterLastStep(t *testing.T) {
	a, b, c := tagAgent("a"), tagAgent("b"), tagAgent("c")
	e := newTestEngine(t, linear("hi", "a", "b", "c"), preload(a, b, c))

	res, err := e.Run(testutil.TestContext(t), "")
	require.NoError(t, err)

	assert.Equal(t, Result{
		"a":            "a(hi)",
		"b":            "b(a(hi))",
		"c":            "c(b(a(hi)))",
		FinalPromptKey: "c(b(a(hi)))",
	}, res)
	assert.Equal(t, 1, a.CallCount())
	assert.Equal(t, 1, b.CallCount())
	assert.Equal(t, 1, c.CallCount())
}

func TestEngine_Run_NextJumpSkipsSteps(t *testing.T) {
	a, b, c := tagAgent("a"), tagAgent("b"), tagAgent("c")
	def := linear("hi", "a", "b", "c")
	def.Steps[0].Next = "c"

	res, err := newTestEngine(t, def, preload(a, b, c)).Run(testutil.TestContext(t), "")
	require.NoError(t, err)

	assert.Equal(t, 0, b.CallCount())
	assert.NotContains(t, res, "b")
	assert.Equal(t, "c(a(hi))", res.FinalPrompt())
}

func TestEngine_Run_StepIndexCountsVisits(t *testing.T) {
	a, b, c := tagAgent("a"), tagAgent("b"), tagAgent("c")
	e := newTestEngine(t, linear("hi", "a", "b", "c"), preload(a, b, c))

	_, err := e.Run(testutil.TestContext(t), "")
	require.NoError(t, err)

	for i, ag := range []*mocks.ScriptedAgent{a, b, c} {
		call, ok := ag.LastCall()
		require.True(t, ok)
		assert.Equal(t, i, call.Request.StepIndex)
		assert.False(t, call.Streaming)
	}
}

func TestEngine_Run_PromptOverride(t *testing.T) {
	a := tagAgent("a")
	def := linear("from definition", "a")
	e := newTestEngine(t, def, preload(a))

	res, err := e.Run(testutil.TestContext(t), "override")
	require.NoError(t, err)
	assert.Equal(t, "a(override)", res.FinalPrompt())
	assert.Equal(t, "from definition", e.Definition().Prompt)
	assert.Equal(t, "from definition", def.Prompt)
}

func TestEngine_Run_ContextCarriesCompletedResults(t *testing.T) {
	a, b := tagAgent("a"), tagAgent("b")
	_, err := newTestEngine(t, linear("hi", "a", "b"), preload(a, b)).Run(testutil.TestContext(t), "")
	require.NoError(t, err)

	first, _ := a.LastCall()
	second, _ := b.LastCall()
	assert.Empty(t, first.Request.Context)
	assert.Equal(t, map[string]any{"a": "a(hi)"}, second.Request.Context)
}

// =============================================================================
// 🔀 路由
// =============================================================================

func TestEngine_Run_FromJoinsMultipleSources(t *testing.T) {
	a := mocks.NewScriptedAgent("a").WithResponse("A")
	b := mocks.NewScriptedAgent("b").WithResponse("B")
	c := mocks.NewEchoAgent("c")
	def := linear("hi", "a", "b", "c")
	def.Steps[2].From = []string{"a", "b"}

	res, err := newTestEngine(t, def, preload(a, b, c)).Run(testutil.TestContext(t), "")
	require.NoError(t, err)
	assert.Equal(t, "A\n\nB", res["c"])
}

func TestEngine_Run_FromSingleSourceVerbatim(t *testing.T) {
	payload := map[string]any{"score": 0.9, "tags": []any{"go"}}
	a := mocks.NewScriptedAgent("a").WithResponse(payload)
	b := tagAgent("b")
	c := mocks.NewEchoAgent("c")
	def := linear("hi", "a", "b", "c")
	def.Steps[2].From = []string{"a"}

	res, err := newTestEngine(t, def, preload(a, b, c)).Run(testutil.TestContext(t), "")
	require.NoError(t, err)
	assert.Equal(t, payload, res["c"])
}

func TestEngine_Run_InputsResolvePositionalArgs(t *testing.T) {
	a := tagAgent("a").WithInstructions("be brief")
	b := mocks.NewEchoAgent("b")
	def := linear("hi", "a", "b")
	def.Steps[1].Inputs = []string{"prompt", "a", "instructions:a", "literal"}

	_, err := newTestEngine(t, def, preload(a, b)).Run(testutil.TestContext(t), "")
	require.NoError(t, err)

	call, ok := b.LastCall()
	require.True(t, ok)
	assert.Equal(t, []any{"hi", "a(hi)", "be brief", "literal"}, call.Request.Args)
}

// =============================================================================
// ⚡ 并行
// =============================================================================

func TestEngine_Run_ParallelKeepsMemberOrder(t *testing.T) {
	x := mocks.NewScriptedAgent("x").WithDelay(30 * time.Millisecond)
	y := mocks.NewScriptedAgent("y").WithDelay(10 * time.Millisecond)
	z := mocks.NewScriptedAgent("z")
	def := &Definition{Name: "fanout", Prompt: "hi", Steps: []StepDefinition{
		{Name: "fan", Kind: ParallelStep{Agents: []string{"x", "y", "z"}}},
	}}

	res, err := newTestEngine(t, def, preload(x, y, z)).Run(testutil.TestContext(t), "")
	require.NoError(t, err)
	assert.Equal(t, []any{"x: ok", "y: ok", "z: ok"}, res["fan"])

	for _, m := range []*mocks.ScriptedAgent{x, y, z} {
		call, _ := m.LastCall()
		assert.Equal(t, []any{"hi"}, call.Request.Args)
	}
}

func TestEngine_Run_ParallelFirstErrorInMemberOrder(t *testing.T) {
	errY := errors.New("y failed")
	errZ := errors.New("z failed")
	x := mocks.NewScriptedAgent("x")
	y := mocks.NewScriptedAgent("y").WithDelay(20 * time.Millisecond).WithError(errY)
	z := mocks.NewScriptedAgent("z").WithError(errZ)
	def := &Definition{Name: "fanout", Prompt: "hi", Steps: []StepDefinition{
		{Name: "fan", Kind: ParallelStep{Agents: []string{"x", "y", "z"}}},
	}}

	_, err := newTestEngine(t, def, preload(x, y, z)).Run(testutil.TestContext(t), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errY)
	assert.NotErrorIs(t, err, errZ)
	// every member ran to completion
	assert.Equal(t, 1, x.CallCount())
	assert.Equal(t, 1, y.CallCount())
	assert.Equal(t, 1, z.CallCount())
}

// =============================================================================
// 🚨 异常处理
// =============================================================================

func TestEngine_Run_ExceptionHandlerReceivesError(t *testing.T) {
	boom := errors.New("boom")
	a := tagAgent("a")
	b := mocks.NewScriptedAgent("b").WithError(boom)
	handler := mocks.NewScriptedAgent("handler")
	def := linear("hi", "a", "b")
	def.Exception = &ExceptionSpec{Name: "on-error", Agent: "handler"}

	res, err := newTestEngine(t, def, preload(a, b, handler)).Run(testutil.TestContext(t), "")
	assert.NoError(t, err)
	assert.Nil(t, res)

	call, ok := handler.LastCall()
	require.True(t, ok)
	assert.Equal(t, agent.ErrorHandlerStepIndex, call.Request.StepIndex)
	require.Len(t, call.Request.Args, 1)
	handled, isErr := call.Request.Args[0].(error)
	require.True(t, isErr)
	assert.ErrorIs(t, handled, boom)
	assert.Contains(t, call.Request.Prompt(), "boom")
}

func TestEngine_Run_ErrorWithoutHandler(t *testing.T) {
	boom := errors.New("boom")
	b := mocks.NewScriptedAgent("b").WithError(boom)
	c := tagAgent("c")
	def := linear("hi", "b", "c")

	res, err := newTestEngine(t, def, preload(b, c)).Run(testutil.TestContext(t), "")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.ErrStepExecution, types.GetErrorCode(err))

	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "b", te.Step)
	assert.Equal(t, 0, c.CallCount())
}

func TestEngine_Run_HandlerFailureIsJoined(t *testing.T) {
	boom := errors.New("boom")
	handlerErr := errors.New("handler down")
	b := mocks.NewScriptedAgent("b").WithError(boom)
	handler := mocks.NewScriptedAgent("handler").WithError(handlerErr)
	def := linear("hi", "b")
	def.Exception = &ExceptionSpec{Agent: "handler"}

	_, err := newTestEngine(t, def, preload(b, handler)).Run(testutil.TestContext(t), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, handlerErr)
}

func TestEngine_Run_ConfigurationErrorsBypassHandler(t *testing.T) {
	handler := mocks.NewScriptedAgent("handler")
	def := linear("hi", "ghost")
	def.Exception = &ExceptionSpec{Agent: "handler"}

	_, err := newTestEngine(t, def, preload(handler)).Run(testutil.TestContext(t), "")
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentNotFound, types.GetErrorCode(err))
	assert.True(t, types.IsConfigurationError(err))
	assert.Equal(t, 0, handler.CallCount())
}

func TestEngine_Run_CancellationBypassesHandler(t *testing.T) {
	a := tagAgent("a")
	handler := mocks.NewScriptedAgent("handler")
	def := linear("hi", "a")
	def.Exception = &ExceptionSpec{Agent: "handler"}

	_, err := newTestEngine(t, def, preload(a, handler)).Run(testutil.CancelledContext(), "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, handler.CallCount())
	assert.Equal(t, 0, a.CallCount())
}

// =============================================================================
// 🌊 流式执行
// =============================================================================

func TestEngine_RunStreaming_MatchesRun(t *testing.T) {
	a, b, c := tagAgent("a"), tagAgent("b"), tagAgent("c")
	e := newTestEngine(t, linear("hi", "a", "b", "c"), preload(a, b, c))
	ctx := testutil.TestContext(t)

	events := testutil.Collect(e.RunStreaming(ctx, ""))
	require.Len(t, events, 4)

	for i, name := range []string{"a", "b", "c"} {
		ev := events[i]
		assert.Equal(t, StreamEventStep, ev.Type)
		assert.Equal(t, name, ev.StepName)
		assert.Equal(t, name, ev.AgentName)
		assert.Equal(t, i, ev.StepIndex)
		assert.False(t, ev.IsTerminal())
	}
	final := events[3]
	assert.Equal(t, StreamEventFinalResult, final.Type)
	assert.True(t, final.IsTerminal())

	blocking, err := e.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, blocking, final.FinalResult)

	assert.True(t, a.Calls()[0].Streaming)
}

func TestEngine_RunStreaming_ErrorEvent(t *testing.T) {
	boom := errors.New("boom")
	a := tagAgent("a")
	b := mocks.NewScriptedAgent("b").WithError(boom)

	events := testutil.Collect(newTestEngine(t, linear("hi", "a", "b"), preload(a, b)).
		RunStreaming(testutil.TestContext(t), ""))
	require.Len(t, events, 2)
	assert.Equal(t, StreamEventStep, events[0].Type)
	assert.Equal(t, StreamEventError, events[1].Type)
	assert.Contains(t, events[1].Error, "boom")
	assert.ErrorIs(t, events[1].Err, boom)
}

func TestEngine_RunStreaming_HandledErrorHasNoTerminalEvent(t *testing.T) {
	a := tagAgent("a")
	b := mocks.NewScriptedAgent("b").WithError(errors.New("boom"))
	handler := mocks.NewScriptedAgent("handler")
	def := linear("hi", "a", "b")
	def.Exception = &ExceptionSpec{Agent: "handler"}

	events := testutil.Collect(newTestEngine(t, def, preload(a, b, handler)).
		RunStreaming(testutil.TestContext(t), ""))
	require.Len(t, events, 1)
	assert.Equal(t, StreamEventStep, events[0].Type)
	assert.Equal(t, 1, handler.CallCount())
}

func TestEngine_RunStreaming_ConfigurationErrorEvent(t *testing.T) {
	events := testutil.Collect(newTestEngine(t, linear("hi", "ghost")).
		RunStreaming(testutil.TestContext(t), ""))
	require.Len(t, events, 1)
	assert.Equal(t, StreamEventError, events[0].Type)
	assert.True(t, types.IsConfigurationError(events[0].Err))
}

func TestEngine_RunStreaming_BreakStopsWalk(t *testing.T) {
	a, b := tagAgent("a"), tagAgent("b")
	e := newTestEngine(t, linear("hi", "a", "b"), preload(a, b))

	events := testutil.Take(e.RunStreaming(testutil.TestContext(t), ""), 1)
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].StepName)
	assert.Equal(t, 0, b.CallCount())
}

func TestEngine_RunStreaming_UsageOnStepEvents(t *testing.T) {
	a := tagAgent("a").WithUsage(agent.Usage{PromptTokens: 3, ResponseTokens: 4, TotalTokens: 7})
	events := testutil.Collect(newTestEngine(t, linear("hi", "a"), preload(a)).
		RunStreaming(testutil.TestContext(t), ""))
	require.Len(t, events, 2)
	require.NotNil(t, events[0].Usage)
	assert.Equal(t, 7, events[0].Usage.TotalTokens)
}

// =============================================================================
// ⏰ 定时事件
// =============================================================================

func TestEngine_Run_EventFiresOnce(t *testing.T) {
	a := tagAgent("a")
	notifier := mocks.NewScriptedAgent("notifier").WithResponse("notified")
	def := linear("hi", "a")
	def.Event = &EventSpec{Cron: "0 9 * * *", Agent: "notifier", Exit: "final_prompt == 'notified'"}

	clock := newFakeClock(time.Date(2026, 3, 2, 8, 57, 0, 0, time.UTC))
	e := newTestEngine(t, def, preload(a, notifier),
		WithClock(clock), WithSchedulerInterval(time.Minute))

	res, err := e.Run(testutil.TestContext(t), "")
	require.NoError(t, err)

	assert.Equal(t, 1, notifier.CallCount())
	assert.Equal(t, "notified", res["notifier"])
	assert.Equal(t, "notified", res.FinalPrompt())
	assert.Equal(t, "a(hi)", res["a"])
	assert.Equal(t, 3, clock.Waits())

	call, _ := notifier.LastCall()
	assert.Equal(t, []any{"a(hi)"}, call.Request.Args)
}

func TestEngine_Run_EventKeepsPollingWithoutFiringAgain(t *testing.T) {
	a := tagAgent("a")
	notifier := mocks.NewScriptedAgent("notifier")
	def := linear("hi", "a")
	def.Event = &EventSpec{Cron: "* * * * *", Agent: "notifier", Exit: "false"}

	ctx, cancel := context.WithCancel(testutil.TestContext(t))
	clock := newFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	clock.limit, clock.onLimit = 5, cancel

	_, err := newTestEngine(t, def, preload(a, notifier), WithClock(clock)).Run(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, notifier.CallCount())
	assert.Equal(t, 5, clock.Waits())
}

func TestEngine_Run_EventStepsWalkFromFinalPrompt(t *testing.T) {
	a, b := tagAgent("a"), tagAgent("b")
	def := linear("hi", "a", "b")
	def.Event = &EventSpec{Cron: "* * * * *", Steps: []string{"b"}}

	clock := newFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	res, err := newTestEngine(t, def, preload(a, b), WithClock(clock)).Run(testutil.TestContext(t), "")
	require.NoError(t, err)

	assert.Equal(t, 2, b.CallCount())
	assert.Equal(t, "b(b(a(hi)))", res["b"])
	assert.Equal(t, "b(b(a(hi)))", res.FinalPrompt())
	assert.Equal(t, 0, clock.Waits())
}

func TestEngine_Run_EventErrorRoutedToHandler(t *testing.T) {
	a := tagAgent("a")
	notifier := mocks.NewScriptedAgent("notifier").WithError(errors.New("smtp down"))
	handler := mocks.NewScriptedAgent("handler")
	def := linear("hi", "a")
	def.Event = &EventSpec{Cron: "* * * * *", Agent: "notifier"}
	def.Exception = &ExceptionSpec{Agent: "handler"}

	clock := newFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	res, err := newTestEngine(t, def, preload(a, notifier, handler), WithClock(clock)).
		Run(testutil.TestContext(t), "")
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, handler.CallCount())
}

func TestEngine_RunStreaming_EventBeforeFinalResult(t *testing.T) {
	a := tagAgent("a")
	notifier := mocks.NewScriptedAgent("notifier").WithResponse("notified")
	def := linear("hi", "a")
	def.Event = &EventSpec{Cron: "* * * * *", Agent: "notifier"}

	clock := newFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	events := testutil.Collect(newTestEngine(t, def, preload(a, notifier), WithClock(clock)).
		RunStreaming(testutil.TestContext(t), ""))
	require.Len(t, events, 2)
	assert.Equal(t, StreamEventFinalResult, events[1].Type)
	assert.Equal(t, "notified", events[1].FinalResult.FinalPrompt())
}

// =============================================================================
// 📚 Agent 注册表
// =============================================================================

func TestEngine_Run_DefinitionsAreCreatedAndSaved(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := persistence.NewMemoryAgentStore()
	def := linear("hi", "writer")

	e := newTestEngine(t, def,
		WithStore(store),
		WithAgentDefinitions(fixtures.MockDefinition("writer")),
	)
	res, err := e.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, agent.Answer("hi"), res.FinalPrompt())

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"writer"}, names)
}

func TestEngine_Run_RestoresStoredDefinition(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := persistence.NewMemoryAgentStore()
	require.NoError(t, store.Save(ctx, persistence.Record{Definition: fixtures.MockDefinition("stored")}))

	def := linear("hi", "stored")
	def.Agents = []string{"stored"}
	res, err := newTestEngine(t, def, WithStore(store)).Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, agent.Answer("hi"), res.FinalPrompt())
}

func TestEngine_Run_RestoresLiveAgent(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := persistence.NewMemoryAgentStore()
	live := tagAgent("live")
	require.NoError(t, store.Save(ctx, persistence.Record{Agent: live}))

	res, err := newTestEngine(t, linear("hi", "live"), WithStore(store)).Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "live(hi)", res.FinalPrompt())
	assert.Equal(t, 0, live.Releases())
}

func TestEngine_Run_PreloadedWinsOverDefinition(t *testing.T) {
	pre := tagAgent("writer")
	e := newTestEngine(t, linear("hi", "writer"),
		WithAgentDefinitions(fixtures.MockDefinition("writer")),
		preload(pre),
	)
	res, err := e.Run(testutil.TestContext(t), "")
	require.NoError(t, err)
	assert.Equal(t, "writer(hi)", res.FinalPrompt())
	assert.Equal(t, 0, pre.Releases())
}

func TestEngine_Run_ReleasesOwnedAgents(t *testing.T) {
	var mu sync.Mutex
	released := 0
	factory := agent.NewFactory(nil, agent.WithConstructor("counting",
		func(def *agent.Definition, _ *zap.Logger) (agent.Agent, error) {
			return agent.NewFuncAgent(def.Name(), func(_ context.Context, req *agent.Request) (any, error) {
				return "counted " + req.Prompt(), nil
			}).WithRelease(func(context.Context) error {
				mu.Lock()
				released++
				mu.Unlock()
				return errors.New("release errors are only logged")
			}), nil
		}))

	def := fixtures.MockDefinition("counter")
	def.Spec.Framework = "counting"
	e := newTestEngine(t, linear("hi", "counter"), WithFactory(factory), WithAgentDefinitions(def))

	ctx := testutil.TestContext(t)
	_, err := e.Run(ctx, "")
	require.NoError(t, err)
	_, err = e.Run(ctx, "")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, released)
}

func TestEngine_Run_LogsReleaseFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	handle := mocks.NewEchoAgent("owned").WithReleaseError(errors.New("socket busy"))
	factory := agent.NewFactory(nil, agent.WithConstructor("scripted",
		func(*agent.Definition, *zap.Logger) (agent.Agent, error) { return handle, nil }))

	def := fixtures.MockDefinition("owned")
	def.Spec.Framework = "scripted"
	e := newTestEngine(t, linear("hi", "owned"),
		WithFactory(factory), WithAgentDefinitions(def), WithLogger(zap.New(core)))

	_, err := e.Run(testutil.TestContext(t), "")
	require.NoError(t, err, "release failures never fail the run")
	assert.Equal(t, 1, handle.Releases())

	entries := logs.FilterMessage("failed to release agent").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "owned", entries[0].ContextMap()["agent"])
	assert.Equal(t, "socket busy", entries[0].ContextMap()["error"])
}

func TestEngine_Validate(t *testing.T) {
	a := tagAgent("a")
	ctx := testutil.TestContext(t)

	assert.NoError(t, newTestEngine(t, linear("hi", "a"), preload(a)).Validate(ctx))
	assert.Equal(t, 0, a.CallCount())

	err := newTestEngine(t, linear("hi", "a", "ghost"), preload(a)).Validate(ctx)
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentNotFound, types.GetErrorCode(err))
}

func TestNew_RejectsInvalidDefinition(t *testing.T) {
	tests := []struct {
		name string
		def  *Definition
	}{
		{name: "nil", def: nil},
		{name: "no steps", def: &Definition{Name: "empty"}},
		{name: "duplicate step", def: linear("", "a", "a")},
		{name: "unknown next", def: func() *Definition {
			d := linear("", "a")
			d.Steps[0].Next = "nowhere"
			return d
		}()},
		{name: "unknown condition target", def: func() *Definition {
			d := linear("", "a")
			d.Steps[0].Conditions = []Condition{{Default: "nowhere"}}
			return d
		}()},
		{name: "unknown event step", def: func() *Definition {
			d := linear("", "a")
			d.Event = &EventSpec{Cron: "* * * * *", Steps: []string{"nowhere"}}
			return d
		}()},
		{name: "missing kind", def: &Definition{Name: "x", Steps: []StepDefinition{{Name: "a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.def)
			require.Error(t, err)
			assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
		})
	}
}

func TestEngine_Run_InvalidCronIsConfigurationError(t *testing.T) {
	a := tagAgent("a")
	def := linear("hi", "a")
	def.Event = &EventSpec{Cron: "every day"}

	_, err := newTestEngine(t, def, preload(a)).Run(testutil.TestContext(t), "")
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))
	assert.Equal(t, 0, a.CallCount())
}

// =============================================================================
// 📊 运行记录与指标
// =============================================================================

func TestEngine_Run_RecordsEveryInvocation(t *testing.T) {
	sink := NewMemoryRunLogSink()
	boom := errors.New("boom")
	a := tagAgent("a").WithModel("gpt-test")
	b := mocks.NewScriptedAgent("b").WithError(boom)

	_, err := newTestEngine(t, linear("hi", "a", "b"), preload(a, b), WithRunLogSink(sink)).
		Run(testutil.TestContext(t), "")
	require.Error(t, err)

	recs := sink.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "linear", recs[0].WorkflowID)
	assert.Equal(t, "a", recs[0].Agent)
	assert.Equal(t, "gpt-test", recs[0].Model)
	assert.Equal(t, "hi", recs[0].Input)
	assert.Equal(t, "a(hi)", recs[0].Output)
	assert.False(t, recs[0].Failed())

	assert.Equal(t, "code:b", recs[1].Model)
	assert.Equal(t, 1, recs[1].StepIndex)
	assert.Equal(t, "boom", recs[1].Error)
	assert.Equal(t, recs[0].RunID, recs[1].RunID)
	assert.NotEmpty(t, recs[0].RunID)
	assert.Len(t, sink.ByRun(recs[0].RunID), 2)
}

func TestEngine_Run_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, nil)
	a, b := tagAgent("a"), tagAgent("b")

	_, err := newTestEngine(t, linear("hi", "a", "b"), preload(a, b), WithMetrics(collector)).
		Run(testutil.TestContext(t), "")
	require.NoError(t, err)

	count, err := promtestutil.GatherAndCount(reg, "test_workflow_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = promtestutil.GatherAndCount(reg, "test_step_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = promtestutil.GatherAndCount(reg, "test_agent_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEngine_Run_Concurrent(t *testing.T) {
	a, b := tagAgent("a"), tagAgent("b")
	e := newTestEngine(t, linear("hi", "a", "b"), preload(a, b), WithRunLogSink(NewMemoryRunLogSink()))
	ctx := testutil.TestContext(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Run(ctx, "")
			assert.NoError(t, err)
			assert.Equal(t, "b(a(hi))", res.FinalPrompt())
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, a.CallCount())
}
