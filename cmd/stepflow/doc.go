// Copyright (c) stepflow Authors.
// Licensed under the MIT License.

/*
Package main 提供 stepflow 命令行程序入口。

# 概述

cmd/stepflow 是工作流引擎的组合根：加载配置与 YAML 定义，
构建 Agent 注册表、工厂、运行日志、指标与追踪，然后执行工作流。

# 子命令

  - run：执行工作流，输出聚合结果与用量汇总；-stream 时逐行输出事件
  - validate：解析定义并解析全部 Agent 与子工作流引用，不执行任何步骤
  - agents：保存 Agent 定义到注册表、删除条目并列出注册表
  - version：显示构建注入的版本信息

# 主要能力

  - 配置：默认值 → YAML 文件 → STEPFLOW_* 环境变量
  - 日志：按 log 配置构建 zap logger，默认输出到 stderr
  - 指标：启用时在独立端口暴露 /metrics 与 /healthz
  - 优雅退出：SIGINT/SIGTERM 取消正在执行的工作流
*/
package main
