package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/agent"
)

// RunRecord 单次 Agent 调用的运行记录
type RunRecord struct {
	WorkflowID string        `json:"workflow_id"`
	RunID      string        `json:"run_id"`
	StepIndex  int           `json:"step_index"`
	StepName   string        `json:"step_name,omitempty"`
	Agent      string        `json:"agent_name"`
	Model      string        `json:"model"`
	Input      string        `json:"input_text"`
	Output     string        `json:"response_text"`
	Error      string        `json:"error,omitempty"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
	Usage      *agent.Usage  `json:"token_usage,omitempty"`
}

// Failed reports whether the invocation returned an error.
func (r RunRecord) Failed() bool { return r.Error != "" }

// RunLogSink receives one record per agent invocation. Implementations must
// be safe for concurrent use, parallel steps record from several goroutines.
type RunLogSink interface {
	Record(ctx context.Context, rec RunRecord) error
}

// RunLogSinkFunc adapts a function to RunLogSink.
type RunLogSinkFunc func(ctx context.Context, rec RunRecord) error

func (f RunLogSinkFunc) Record(ctx context.Context, rec RunRecord) error { return f(ctx, rec) }

// nopRunLogSink discards every record.
type nopRunLogSink struct{}

func (nopRunLogSink) Record(context.Context, RunRecord) error { return nil }

// =============================================================================
// Zap sink
// =============================================================================

// ZapRunLogSink writes records as structured log entries.
type ZapRunLogSink struct {
	logger *zap.Logger
}

// NewZapRunLogSink creates a sink logging through logger.
func NewZapRunLogSink(logger *zap.Logger) *ZapRunLogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapRunLogSink{logger: logger.With(zap.String("component", "run_log"))}
}

func (s *ZapRunLogSink) Record(_ context.Context, rec RunRecord) error {
	fields := []zap.Field{
		zap.String("workflow_id", rec.WorkflowID),
		zap.String("run_id", rec.RunID),
		zap.Int("step_index", rec.StepIndex),
		zap.String("step", rec.StepName),
		zap.String("agent", rec.Agent),
		zap.String("model", rec.Model),
		zap.Duration("duration", rec.Duration),
	}
	if rec.Usage != nil {
		fields = append(fields,
			zap.Int("prompt_tokens", rec.Usage.PromptTokens),
			zap.Int("response_tokens", rec.Usage.ResponseTokens),
		)
	}
	if rec.Failed() {
		s.logger.Warn("agent run failed", append(fields, zap.String("error", rec.Error))...)
		return nil
	}
	s.logger.Info("agent run", fields...)
	return nil
}

// =============================================================================
// JSON lines sink
// =============================================================================

// JSONLRunLogSink appends records to one JSON lines file per workflow,
// <dir>/<workflow_id>.jsonl.
type JSONLRunLogSink struct {
	dir string
	mu  sync.Mutex
}

// NewJSONLRunLogSink creates the sink, creating dir when needed.
func NewJSONLRunLogSink(dir string) (*JSONLRunLogSink, error) {
	if dir == "" {
		return nil, errors.New("run log directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run log directory: %w", err)
	}
	return &JSONLRunLogSink{dir: dir}, nil
}

// Path returns the file records of workflowID are appended to.
func (s *JSONLRunLogSink) Path(workflowID string) string {
	return filepath.Join(s.dir, sanitizeFileName(workflowID)+".jsonl")
}

func (s *JSONLRunLogSink) Record(_ context.Context, rec RunRecord) error {
	rec.DurationMs = rec.Duration.Milliseconds()
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.Path(rec.WorkflowID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write run log: %w", err)
	}
	return f.Close()
}

func sanitizeFileName(name string) string {
	if name == "" {
		return "workflow"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
}

// =============================================================================
// Memory sink
// =============================================================================

// MemoryRunLogSink keeps records in memory.
type MemoryRunLogSink struct {
	mu      sync.RWMutex
	records []RunRecord
}

// NewMemoryRunLogSink creates an empty memory sink.
func NewMemoryRunLogSink() *MemoryRunLogSink {
	return &MemoryRunLogSink{}
}

func (s *MemoryRunLogSink) Record(_ context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of every record in arrival order.
func (s *MemoryRunLogSink) Records() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunRecord, len(s.records))
	copy(out, s.records)
	return out
}

// ByRun returns the records of one run.
func (s *MemoryRunLogSink) ByRun(runID string) []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RunRecord
	for _, r := range s.records {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out
}

// Reset drops every record.
func (s *MemoryRunLogSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// =============================================================================
// Fan-out
// =============================================================================

// MultiRunLogSink forwards each record to every sink and joins their errors.
type MultiRunLogSink []RunLogSink

func (m MultiRunLogSink) Record(ctx context.Context, rec RunRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
