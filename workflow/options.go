package workflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/agent"
	"github.com/BaSui01/stepflow/agent/persistence"
	"github.com/BaSui01/stepflow/internal/metrics"
)

// DefinitionLoader resolves sub-workflow references that carry a URL
// instead of an inline definition.
type DefinitionLoader interface {
	Load(ctx context.Context, ref SubWorkflowRef) (*Definition, error)
}

// DefinitionLoaderFunc adapts a function to DefinitionLoader.
type DefinitionLoaderFunc func(ctx context.Context, ref SubWorkflowRef) (*Definition, error)

func (f DefinitionLoaderFunc) Load(ctx context.Context, ref SubWorkflowRef) (*Definition, error) {
	return f(ctx, ref)
}

// Option 引擎选项
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStore sets the agent registry. Defaults to a private in-memory store.
func WithStore(store persistence.AgentStore) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

// WithFactory sets the factory used to construct agents from definitions.
func WithFactory(f *agent.Factory) Option {
	return func(e *Engine) {
		if f != nil {
			e.factory = f
		}
	}
}

// WithAgents preloads live agents. They take precedence over definitions
// and the registry, and the engine never releases them.
func WithAgents(agents ...agent.Agent) Option {
	return func(e *Engine) {
		for _, a := range agents {
			if a != nil {
				e.preloaded[a.Name()] = a
			}
		}
	}
}

// WithAgentDefinitions supplies agent definitions. Each run constructs them
// through the factory and saves them to the registry.
func WithAgentDefinitions(defs ...*agent.Definition) Option {
	return func(e *Engine) {
		for _, d := range defs {
			if d != nil {
				e.agentDefs = append(e.agentDefs, d.Clone())
			}
		}
	}
}

// WithLoader sets the loader used for sub-workflow URLs.
func WithLoader(l DefinitionLoader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithRunLogSink sets where per-invocation run records go.
func WithRunLogSink(sink RunLogSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithTracerProvider sets the tracer provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithSchedulerInterval sets the event scheduler polling interval.
func WithSchedulerInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithClock replaces the clock the event scheduler reads.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithDefaultLoopLimit sets the cap of loops that only declare Until.
func WithDefaultLoopLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.loopLimit = n
		}
	}
}
