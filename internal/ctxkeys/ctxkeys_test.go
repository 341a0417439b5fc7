package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := RunID(ctx)
	assert.False(t, ok)
	_, ok = StepIndex(ctx)
	assert.False(t, ok)

	ctx = WithRunID(ctx, "run-1")
	ctx = WithWorkflowName(ctx, "wf")
	ctx = WithStepIndex(ctx, -1)
	ctx = WithStepName(ctx, "handler")

	runID, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", runID)

	name, ok := WorkflowName(ctx)
	assert.True(t, ok)
	assert.Equal(t, "wf", name)

	idx, ok := StepIndex(ctx)
	assert.True(t, ok)
	assert.Equal(t, -1, idx)

	step, ok := StepName(ctx)
	assert.True(t, ok)
	assert.Equal(t, "handler", step)
}

func TestEmptyValuesAreAbsent(t *testing.T) {
	ctx := WithRunID(context.Background(), "")
	_, ok := RunID(ctx)
	assert.False(t, ok)
}
