// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil 收集器的所有记录方法均为空操作。
type Collector struct {
	// 工作流指标
	workflowRunsTotal   *prometheus.CounterVec
	workflowRunDuration *prometheus.HistogramVec

	// 步骤指标
	stepExecutionsTotal *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec

	// Agent 指标
	agentRunsTotal   *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentTokensUsed  *prometheus.CounterVec

	// 调度器指标
	schedulerTicksTotal   *prometheus.CounterVec
	schedulerFiringsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到默认 Registry。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 工作流指标
	c.workflowRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"workflow", "status"}, // status: success, failure, handled
	)

	c.workflowRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"workflow"},
	)

	// 步骤指标
	c.stepExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Total number of step executions",
		},
		[]string{"workflow", "step", "kind", "status"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"workflow", "kind"},
	)

	// Agent 指标
	c.agentRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_runs_total",
			Help:      "Total number of agent invocations",
		},
		[]string{"agent", "status"},
	)

	c.agentRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_run_duration_seconds",
			Help:      "Agent invocation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent"},
	)

	c.agentTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tokens_used_total",
			Help:      "Total number of tokens reported by agents",
		},
		[]string{"agent", "type"}, // type: prompt, response
	)

	// 调度器指标
	c.schedulerTicksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Total number of event scheduler ticks",
		},
		[]string{"workflow", "matched"},
	)

	c.schedulerFiringsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_firings_total",
			Help:      "Total number of event scheduler firings",
		},
		[]string{"workflow"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔁 工作流指标记录
// =============================================================================

// RecordWorkflowRun 记录工作流运行
func (c *Collector) RecordWorkflowRun(workflow, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.workflowRunsTotal.WithLabelValues(workflow, status).Inc()
	c.workflowRunDuration.WithLabelValues(workflow).Observe(duration.Seconds())
}

// RecordStep 记录步骤执行
func (c *Collector) RecordStep(workflow, step, kind, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stepExecutionsTotal.WithLabelValues(workflow, step, kind, status).Inc()
	c.stepDuration.WithLabelValues(workflow, kind).Observe(duration.Seconds())
}

// =============================================================================
// 🎭 Agent 指标记录
// =============================================================================

// RecordAgentRun 记录 Agent 调用
func (c *Collector) RecordAgentRun(agent, status string, duration time.Duration, promptTokens, responseTokens int) {
	if c == nil {
		return
	}
	c.agentRunsTotal.WithLabelValues(agent, status).Inc()
	c.agentRunDuration.WithLabelValues(agent).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.agentTokensUsed.WithLabelValues(agent, "prompt").Add(float64(promptTokens))
	}
	if responseTokens > 0 {
		c.agentTokensUsed.WithLabelValues(agent, "response").Add(float64(responseTokens))
	}
}

// =============================================================================
// ⏰ 调度器指标记录
// =============================================================================

// RecordSchedulerTick 记录调度器 tick
func (c *Collector) RecordSchedulerTick(workflow string, matched bool) {
	if c == nil {
		return
	}
	c.schedulerTicksTotal.WithLabelValues(workflow, strconv.FormatBool(matched)).Inc()
}

// RecordSchedulerFiring 记录调度器触发
func (c *Collector) RecordSchedulerFiring(workflow string) {
	if c == nil {
		return
	}
	c.schedulerFiringsTotal.WithLabelValues(workflow).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// Status 将错误转换为状态标签
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
