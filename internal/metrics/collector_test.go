package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestCollector() *Collector {
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := newTestCollector()

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.workflowRunsTotal)
	assert.NotNil(t, collector.stepExecutionsTotal)
	assert.NotNil(t, collector.agentRunsTotal)
	assert.NotNil(t, collector.schedulerTicksTotal)
}

func TestCollector_SeparateRegistries(t *testing.T) {
	// 同名指标注册到不同 Registry 不应 panic
	assert.NotPanics(t, func() {
		newTestCollector()
		newTestCollector()
	})
}

func TestCollector_RecordWorkflowRun(t *testing.T) {
	collector := newTestCollector()

	collector.RecordWorkflowRun("wf", "success", 2*time.Second)
	collector.RecordWorkflowRun("wf", "success", time.Second)
	collector.RecordWorkflowRun("wf", "failure", time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.workflowRunsTotal.WithLabelValues("wf", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.workflowRunsTotal.WithLabelValues("wf", "failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.workflowRunDuration))
}

func TestCollector_RecordStep(t *testing.T) {
	collector := newTestCollector()

	collector.RecordStep("wf", "draft", "agent", "success", 100*time.Millisecond)
	collector.RecordStep("wf", "fanout", "parallel", "failure", 200*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.stepExecutionsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.stepExecutionsTotal.WithLabelValues("wf", "fanout", "parallel", "failure")))
}

func TestCollector_RecordAgentRun(t *testing.T) {
	collector := newTestCollector()

	collector.RecordAgentRun("writer", "success", time.Second, 10, 20)
	collector.RecordAgentRun("writer", "success", time.Second, 5, 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.agentRunsTotal.WithLabelValues("writer", "success")))
	assert.Equal(t, float64(15), testutil.ToFloat64(collector.agentTokensUsed.WithLabelValues("writer", "prompt")))
	assert.Equal(t, float64(20), testutil.ToFloat64(collector.agentTokensUsed.WithLabelValues("writer", "response")))
}

func TestCollector_RecordScheduler(t *testing.T) {
	collector := newTestCollector()

	collector.RecordSchedulerTick("wf", false)
	collector.RecordSchedulerTick("wf", true)
	collector.RecordSchedulerTick("wf", true)
	collector.RecordSchedulerFiring("wf")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.schedulerTicksTotal.WithLabelValues("wf", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.schedulerTicksTotal.WithLabelValues("wf", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.schedulerFiringsTotal.WithLabelValues("wf")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordWorkflowRun("wf", "success", time.Second)
		c.RecordStep("wf", "s", "agent", "success", time.Second)
		c.RecordAgentRun("a", "success", time.Second, 1, 1)
		c.RecordSchedulerTick("wf", true)
		c.RecordSchedulerFiring("wf")
	})
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "failure", Status(errors.New("x")))
}
