// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config 提供 RouteCodex 的配置管理功能。

# 概述

config 包负责网关配置的完整生命周期管理，包括多源加载、
运行时热重载、变更审计与 HTTP 管理 API。配置按
"默认值 -> JSON 配置文件 -> YAML modules 叠加 -> 环境变量" 的优先级合并。

# 核心结构

  - Config: 顶层配置聚合，涵盖 Server、VirtualRouter、
    Compatibility、System、Snapshot、RateLimit、Log、Telemetry
  - Loader: 配置加载器，支持 Builder 模式链式设置
    文件路径、modules 叠加路径、环境变量前缀与自定义验证器
  - HotReloadManager: 热重载管理器，支持文件监听、
    局部字段更新、变更回调与变更历史记录（不提供回滚与版本号）
  - FileWatcher: 文件变更监听器，基于轮询 + 去抖机制
    触发配置重载
  - ConfigAPIHandler: HTTP API 处理器，提供配置查询、
    更新、热重载触发与变更历史查询端点

# 主要能力

  - 多源加载: JSON 主配置文件、YAML modules 叠加文件、
    环境变量（ROUTECODEX_ 前缀，外加若干历史命名的独立变量）、默认值
  - 热重载: 文件监听自动重载 + API 手动触发，支持字段级更新
  - 安全治理: 敏感字段脱敏（网关密钥、Provider API Key）、
    API Key 经 X-API-Key Header 或 api_key 查询参数传递、CORS 控制
  - 变更审计: 变更历史记录（ApplyConfig 时截断为最近 1000 条），
    不带版本号，不支持回滚
  - 配置验证: 内置基础校验 + 通过 Loader.WithValidator 注册的自定义校验函数

# 使用示例

	cfg, err := config.NewLoader().
		WithConfigPath("~/.routecodex/config.json").
		WithEnvPrefix("ROUTECODEX").
		Load()
*/
package config
