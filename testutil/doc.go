// Copyright 2026 stepflow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 stepflow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力。它不依赖 workflow 包，
因此 workflow 的包内测试也可以使用。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup
  - 流式辅助: Collect / Take，用于收集 iter.Seq 流式事件

# 子包

  - testutil/mocks: 可编排的 ScriptedAgent，支持固定响应、按序响应、
    错误注入、调用记录与 Release 计数
  - testutil/fixtures: Agent 定义与 YAML 样例

# 使用示例

	ctx := testutil.TestContext(t)
	a := mocks.NewScriptedAgent("writer").WithResponses("draft", "final")
	out, err := a.Run(ctx, agent.NewRequest("hi", 0))
*/
package testutil
