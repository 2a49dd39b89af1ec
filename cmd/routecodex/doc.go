// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main provides the RouteCodex gateway's executable entry point.

# Overview

cmd/routecodex is the gateway's binary: it loads configuration, builds
the pipeline (llmswitch/vrouter/compat/runtime/providers/normalizer)
via internal/gateway, and serves the four inbound endpoints plus a
metrics port. It supports JSON config loading, structured logging
(zap), Prometheus metrics, and config hot reload.

# Core types

  - Server       — main server, manages the HTTP and metrics ports and graceful shutdown
  - Middleware    — HTTP middleware signature func(http.Handler) http.Handler

# Capabilities

  - Subcommands: serve, version, health, migrate
  - Middleware chain: Recovery, RequestLogger, SecurityHeaders, CORS
  - Config hot reload: HotReloadManager watches the config file and reloads the gateway
  - Metrics server: a separate port exposing /metrics (Prometheus)
  - Graceful shutdown: signal -> stop hot reload -> close HTTP -> close metrics -> wait
  - Build injection: Version, BuildTime, GitCommit set via ldflags
*/
package main
