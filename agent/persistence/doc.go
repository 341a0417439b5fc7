// 版权所有 2024 stepflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供智能体注册表（AgentStore）的存储抽象及多后端实现。

# 概述

工作流引擎在每次运行前为定义中引用的每个智能体构建句柄：优先使用调用方
提供的定义创建并保存，否则从注册表恢复。注册表既可以保存活动实例
（仅内存后端），也可以保存智能体定义（JSON），恢复时由 agent.Factory
重新构建。

# 核心接口

  - Store: 所有存储的基础接口，提供 Close 和 Ping 健康检查。
  - AgentStore: 注册表接口，支持 Save / Restore / Remove / List。
    Restore 在记录不存在时返回 ErrNotFound，Record.Live 表示返回的是否为
    活动实例。

# 后端实现

  - Memory: 内存实现，保存活动实例，适合开发与测试，重启后数据丢失。
  - File: 基于文件的实现，原子写入 JSON 索引，适合单节点部署。
  - Redis: 基于 Redis 的实现，Hash 保存定义、Set 维护名称索引，适合分布式部署。
  - SQL: 基于 GORM 的实现，支持 sqlite / postgres / mysql。

# 使用方式

通过工厂函数按配置创建存储实例：

	store, err := persistence.NewAgentStore(config)
*/
package persistence
