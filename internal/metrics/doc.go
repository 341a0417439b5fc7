// 版权所有 2024 stepflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的工作流指标采集能力，覆盖
工作流、步骤、Agent 与事件调度器四大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto.With
注册到调用方传入的 Registerer（为 nil 时使用默认 Registry），
便于测试中为每个收集器使用独立的 Registry。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 等 Prometheus
    向量指标，按业务域分组管理。nil 收集器可安全调用。

# 主要能力

  - 工作流指标：运行总数、运行耗时，按 workflow/status 分组。
  - 步骤指标：执行总数、执行耗时，按 workflow/step/kind/status 分组。
  - Agent 指标：调用总数、调用耗时、Token 用量（prompt/response）。
  - 调度器指标：tick 总数（按是否命中 cron 分组）与触发次数。
*/
package metrics
