// Package config 提供 stepflow 的配置管理功能。
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（STEPFLOW_ 前缀）。
// 覆盖日志、工作流引擎、智能体注册表、Prometheus 指标与 OpenTelemetry 遥测。
package config
