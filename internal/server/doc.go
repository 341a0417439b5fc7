// Copyright (c) stepflow Authors.
// Licensed under the MIT License.

/*
包 server 提供后台 HTTP 服务器的生命周期管理，用于暴露 Prometheus 指标。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
CLI 在启用指标时通过 NewMetricsManager 挂载 /metrics 与 /healthz。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/Errors/Addr/IsRunning。
  - Config：监听地址、读取请求头超时与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空，可重复调用。
  - 随机端口：Addr 在启动后返回实际监听地址。
*/
package server
