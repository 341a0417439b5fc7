// Package telemetry 封装 OpenTelemetry SDK 初始化。
// 引擎通过 workflow.WithTracerProvider 接收 TracerProvider；
// 禁用时返回 noop 实现，不连接任何外部服务。
package telemetry
