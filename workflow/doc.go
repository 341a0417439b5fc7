// Copyright (c) stepflow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供声明式工作流的执行引擎。

# 概述

workflow 包按声明顺序遍历步骤，每个步骤把工作委托给一个或多个 Agent，
最终返回聚合结果，或以 iter.Seq 的形式逐步流式输出。可选的定时事件
在主流程结束后按 cron 表达式触发一次后续处理；可选的异常处理 Agent
接收运行期错误（步骤序号为 -1）。

# 核心接口与类型

  - Definition / StepDefinition — 工作流与步骤定义（只读）
  - StepKind                    — 封闭的步骤类型：AgentStep、SubWorkflowStep、
    ParallelStep、LoopStep
  - Engine                      — 执行引擎：Run / RunStreaming / Validate
  - StepExecutor                — 已绑定步骤的执行接口
  - ContextRouter               — 步骤输入解析：inputs → from → 上一步输出
  - EventScheduler              — cron 驱动的事件调度器（idle/polling/fired/done）
  - RunLogSink                  — 每次 Agent 调用的运行记录（zap、JSONL、内存、扇出）
  - StreamEvent                 — 流式事件：step / final_result / error

# 主要能力

  - 条件跳转：if/then/else、case/do、default，表达式在绑定时编译
  - 并行步骤：errgroup 汇合，输出按成员声明顺序排列
  - 循环步骤：until 谓词与 max_iterations 上限（仅有 until 时默认 50 次）
  - 子工作流：共享父运行的 Agent 句柄、注册表、工厂、日志与指标
  - 绑定期校验：Agent、子工作流、next 与条件目标在任何步骤执行前解析
  - 可观测性：zap 日志、Prometheus 指标、OpenTelemetry span
*/
package workflow
