package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/testutil/mocks"
	"github.com/BaSui01/stepflow/workflow"
)

// restoreGlobals 在测试结束时恢复全局 provider
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, mp := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
	})
}

func initInMemory(t *testing.T, cfg config.TelemetryConfig) (*Providers, *tracetest.InMemoryExporter) {
	t.Helper()
	restoreGlobals(t)

	exp := tracetest.NewInMemoryExporter()
	p, err := Init(cfg, zaptest.NewLogger(t),
		WithSpanExporter(exp),
		WithMetricReader(sdkmetric.NewManualReader()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, exp
}

func TestInit_Disabled(t *testing.T) {
	restoreGlobals(t)
	global := otel.GetTracerProvider()

	p, err := Init(config.TelemetryConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Equal(t, global, p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_NilIsSafe(t *testing.T) {
	var p *Providers
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.TracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_InstallsGlobals(t *testing.T) {
	p, _ := initInMemory(t, config.TelemetryConfig{Enabled: true, SampleRate: 1})

	assert.True(t, p.Enabled())
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)
	_, ok = otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, ok)
}

func TestInit_ResourceCarriesServiceName(t *testing.T) {
	p, exp := initInMemory(t, config.TelemetryConfig{Enabled: true, SampleRate: 1})

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "op")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Resource.Attributes(), attribute.String("service.name", "stepflow"))
}

func TestInit_ZeroSampleRateDropsSpans(t *testing.T) {
	p, exp := initInMemory(t, config.TelemetryConfig{Enabled: true, ServiceName: "quiet", SampleRate: 0})

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "op")
	span.End()
	assert.Empty(t, exp.GetSpans())
}

func TestSampler(t *testing.T) {
	assert.Contains(t, Sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, Sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestInit_EngineSpans(t *testing.T) {
	p, exp := initInMemory(t, config.TelemetryConfig{Enabled: true, SampleRate: 1})

	def := &workflow.Definition{
		Name: "traced",
		Steps: []workflow.StepDefinition{
			{Name: "a", Kind: workflow.AgentStep{Agent: "a"}},
			{Name: "b", Kind: workflow.AgentStep{Agent: "b"}},
		},
	}
	e, err := workflow.New(def,
		workflow.WithAgents(mocks.NewEchoAgent("a"), mocks.NewEchoAgent("b")),
		workflow.WithTracerProvider(p.TracerProvider()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = e.Run(ctx, "hi")
	require.NoError(t, err)

	counts := map[string]int{}
	for _, s := range exp.GetSpans() {
		counts[s.Name]++
	}
	assert.Equal(t, map[string]int{"workflow.run": 1, "workflow.step": 2, "agent.run": 2}, counts)
}

func TestBuildVersion(t *testing.T) {
	assert.Equal(t, "dev", buildVersion())
}
