package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	runIDKey        contextKey = "run_id"
	workflowNameKey contextKey = "workflow_name"
	stepIndexKey    contextKey = "step_index"
	stepNameKey     contextKey = "step_name"
)

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithWorkflowName 设置当前工作流名称
func WithWorkflowName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workflowNameKey, name)
}

// WorkflowName 获取当前工作流名称
func WorkflowName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(workflowNameKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithStepIndex 设置当前步骤序号（异常处理时为 -1）
func WithStepIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, stepIndexKey, index)
}

// StepIndex 获取当前步骤序号
func StepIndex(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(stepIndexKey).(int)
	return v, ok
}

// WithStepName 设置当前步骤名称
func WithStepName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, stepNameKey, name)
}

// StepName 获取当前步骤名称
func StepName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(stepNameKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
