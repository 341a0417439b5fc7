// Copyright (c) stepflow Authors.
// Licensed under the MIT License.

/*
Package types 提供 stepflow 各层共享的基础类型。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、workflow、config
等上层模块提供统一的错误契约，避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系（Code + Message + Step + Cause）

# 错误分类

  - CONFIGURATION / UNRESOLVED_REFERENCE — 绑定阶段发现，始终致命，不重试
  - STEP_EXECUTION — 步骤执行期间 agent 或子工作流返回的错误
  - EXPRESSION — 条件 / 退出表达式编译或求值失败
  - AGENT_NOT_FOUND — 注册表与工厂均无法提供 agent
  - SCHEDULER — cron 事件调度失败
*/
package types
