package agent

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// FrameworkMock is the framework name of the built-in mock agent.
const FrameworkMock = "mock"

// Constructor builds an agent from its definition.
type Constructor func(def *Definition, logger *zap.Logger) (Agent, error)

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithDryRun makes the factory build every definition as a MockAgent.
func WithDryRun(dryRun bool) FactoryOption {
	return func(f *Factory) { f.dryRun = dryRun }
}

// WithConstructor registers a constructor at construction time.
func WithConstructor(framework string, c Constructor) FactoryOption {
	return func(f *Factory) { f.constructors[framework] = c }
}

// Factory maps spec.framework to a Constructor.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	dryRun       bool
	logger       *zap.Logger
}

// NewFactory creates a factory with the mock framework registered.
func NewFactory(logger *zap.Logger, opts ...FactoryOption) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{
		constructors: map[string]Constructor{
			FrameworkMock: func(def *Definition, logger *zap.Logger) (Agent, error) {
				return NewMockAgent(def, logger), nil
			},
		},
		logger: logger.With(zap.String("component", "agent_factory")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register registers a constructor for a framework, replacing any previous one.
func (f *Factory) Register(framework string, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.constructors[framework] = c
	f.logger.Debug("agent framework registered", zap.String("framework", framework))
}

// IsRegistered reports whether a constructor exists for the framework.
func (f *Factory) IsRegistered(framework string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, ok := f.constructors[framework]
	return ok
}

// Frameworks returns the registered framework names, sorted.
func (f *Factory) Frameworks() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DryRun reports whether the factory builds mocks only.
func (f *Factory) DryRun() bool {
	return f.dryRun
}

// Create validates def and builds the agent it describes.
func (f *Factory) Create(def *Definition) (Agent, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent definition: %w", err)
	}

	framework := def.Framework()
	if f.dryRun {
		framework = FrameworkMock
	}

	f.mu.RLock()
	c, ok := f.constructors[framework]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent framework %q not registered", framework)
	}

	a, err := c(def, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent %q of framework %q: %w", def.Name(), framework, err)
	}

	f.logger.Info("agent created",
		zap.String("name", def.Name()),
		zap.String("framework", framework),
		zap.Bool("dry_run", f.dryRun),
	)
	return a, nil
}
