// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
//
//	ctx := testutil.TestContext(t)
//	events := testutil.Collect(engine.RunStreaming(ctx, "hi"))
// =============================================================================
package testutil

import (
	"context"
	"iter"
	"testing"
	"time"
)

// DefaultTimeout 是 TestContext 的超时时间
const DefaultTimeout = 30 * time.Second

// TestContext 返回随测试结束而取消的带超时上下文
func TestContext(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// Collect drains seq.
func Collect[T any](seq iter.Seq[T]) []T {
	var out []T
	for v := range seq {
		out = append(out, v)
	}
	return out
}

// Take 收集前 n 个元素后停止迭代，用于验证消费者提前退出
func Take[T any](seq iter.Seq[T], n int) []T {
	out := make([]T, 0, max(n, 0))
	if n <= 0 {
		return out
	}
	for v := range seq {
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}
