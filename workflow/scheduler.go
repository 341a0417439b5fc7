package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/internal/metrics"
	"github.com/BaSui01/stepflow/types"
	"github.com/BaSui01/stepflow/workflow/expr"
)

// DefaultPollInterval is how often the event scheduler checks its cron
// expression when no interval is configured.
const DefaultPollInterval = 30 * time.Second

// SchedulerState 调度器状态
type SchedulerState string

const (
	SchedulerIdle    SchedulerState = "idle"
	SchedulerPolling SchedulerState = "polling"
	SchedulerFired   SchedulerState = "fired"
	SchedulerDone    SchedulerState = "done"
)

// Clock abstracts time for the scheduler.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FireFunc performs the event's work on the aggregate and returns the
// updated aggregate.
type FireFunc func(ctx context.Context, aggregate Result) (Result, error)

// SchedulerOption 调度器选项
type SchedulerOption func(*EventScheduler)

// WithTickInterval sets the polling interval.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *EventScheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerClock replaces the wall clock.
func WithSchedulerClock(c Clock) SchedulerOption {
	return func(s *EventScheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *zap.Logger) SchedulerOption {
	return func(s *EventScheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSchedulerMetrics sets the metrics collector.
func WithSchedulerMetrics(c *metrics.Collector) SchedulerOption {
	return func(s *EventScheduler) { s.metrics = c }
}

// EventScheduler 定时事件调度器
// 按固定间隔检查 cron 表达式，首次命中时执行一次事件，
// 此后在每次命中时求值退出条件，条件成立即结束。
type EventScheduler struct {
	workflow string
	spec     EventSpec
	schedule cron.Schedule
	exit     *expr.Program
	fire     FireFunc

	interval time.Duration
	clock    Clock
	logger   *zap.Logger
	metrics  *metrics.Collector

	mu    sync.RWMutex
	state SchedulerState
	fired bool
}

// NewEventScheduler parses spec and creates an idle scheduler. The cron
// expression uses the standard five fields.
func NewEventScheduler(workflow string, spec EventSpec, fire FireFunc, opts ...SchedulerOption) (*EventScheduler, error) {
	if spec.Cron == "" {
		return nil, types.NewError(types.ErrConfiguration, "event cron expression is required")
	}
	schedule, err := cron.ParseStandard(spec.Cron)
	if err != nil {
		return nil, types.Errorf(types.ErrConfiguration, "invalid event cron expression %q", spec.Cron).WithCause(err)
	}
	var exit *expr.Program
	if spec.Exit != "" {
		exit, err = expr.Compile(spec.Exit)
		if err != nil {
			return nil, types.NewError(types.ErrConfiguration, "invalid event exit expression").WithCause(err)
		}
	}
	if fire == nil {
		fire = func(_ context.Context, r Result) (Result, error) { return r, nil }
	}

	s := &EventScheduler{
		workflow: workflow,
		spec:     spec,
		schedule: schedule,
		exit:     exit,
		fire:     fire,
		interval: DefaultPollInterval,
		clock:    realClock{},
		logger:   zap.NewNop(),
		state:    SchedulerIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "event_scheduler"), zap.String("workflow", workflow))
	return s, nil
}

// State returns the current scheduler state.
func (s *EventScheduler) State() SchedulerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Fired reports whether the event has fired.
func (s *EventScheduler) Fired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fired
}

func (s *EventScheduler) setState(state SchedulerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Matches reports whether the cron expression selects the minute containing t.
func (s *EventScheduler) Matches(t time.Time) bool {
	minute := t.Truncate(time.Minute)
	return s.schedule.Next(minute.Add(-time.Second)).Equal(minute)
}

// Run polls until the event has fired and its exit predicate holds. It
// fires at most once per scheduler; calling Run again after it returned
// only re-evaluates the exit predicate.
func (s *EventScheduler) Run(ctx context.Context, aggregate Result) (Result, error) {
	result := aggregate.Clone()
	if result == nil {
		result = Result{}
	}
	s.mu.Lock()
	fired := s.fired
	s.state = SchedulerPolling
	s.mu.Unlock()
	s.logger.Debug("event scheduler polling",
		zap.String("cron", s.spec.Cron),
		zap.Duration("interval", s.interval),
	)

	for {
		now := s.clock.Now()
		matched := s.Matches(now)
		s.metrics.RecordSchedulerTick(s.workflow, matched)

		if matched {
			if !fired {
				s.logger.Info("event fired", zap.Time("at", now))
				out, err := s.fire(ctx, result)
				if err != nil {
					s.setState(SchedulerDone)
					return nil, fmt.Errorf("event: %w", err)
				}
				if out != nil {
					result = out
				}
				fired = true
				s.mu.Lock()
				s.fired = true
				s.state = SchedulerFired
				s.mu.Unlock()
				s.metrics.RecordSchedulerFiring(s.workflow)
			}
			if s.exit == nil {
				s.setState(SchedulerDone)
				return result, nil
			}

			done, err := s.exit.EvalBool(exitVars(result))
			if err != nil {
				s.setState(SchedulerDone)
				return nil, types.NewError(types.ErrExpression, "event exit predicate failed").WithCause(err)
			}
			if done {
				s.logger.Info("event exit condition met", zap.String("exit", s.spec.Exit))
				s.setState(SchedulerDone)
				return result, nil
			}
			s.setState(SchedulerPolling)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.clock.After(s.interval):
		}
	}
}

// exitVars exposes the aggregate as input plus one variable per key.
func exitVars(r Result) map[string]any {
	vars := make(map[string]any, len(r)+1)
	for k, v := range r {
		vars[k] = v
	}
	vars["input"] = map[string]any(r)
	return vars
}
