// Package config default values, grounded on the teacher's
// config.DefaultConfig tree of per-section default constructors.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns the gateway's out-of-the-box configuration:
// no providers configured, HTTP on port 4000 and metrics on 4001,
// snapshots disabled,
// rate limiting off.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server:        DefaultServerConfig(),
		VirtualRouter: DefaultVirtualRouterConfig(),
		System:        DefaultSystemConfig(),
		Snapshot:      DefaultSnapshotConfig(home),
		RateLimit:     DefaultRateLimitConfig(),
		Log:           DefaultLogConfig(),
		Telemetry:     DefaultTelemetryConfig(),
		AuthDir:       filepath.Join(home, ".routecodex", "auth"),
	}
}

// DefaultServerConfig returns the default inbound HTTP server config.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        4000,
		MetricsPort:     4001,
		ReadTimeout:     300 * time.Second,
		WriteTimeout:    300 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultVirtualRouterConfig returns an empty provider/routing table;
// operators populate it via the config file.
func DefaultVirtualRouterConfig() VirtualRouterConfig {
	return VirtualRouterConfig{
		Providers: make(map[string]ProviderConfig),
		Routing:   make(map[string][]string),
		ClassificationConfig: ClassificationConfig{
			ProtocolMapping:     make(map[string]string),
			ProtocolHandlers:    make(map[string]string),
			ModelTiers:          make(map[string]string),
			RoutingDecisions:    make(map[string]string),
			ConfidenceThreshold: 0.7,
		},
	}
}

// DefaultSystemConfig returns pipeline mode v1 with hybrid traffic
// split at 0%, matching a deployment that hasn't opted into the
// hybrid adapter.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		PipelineMode: "v1",
		TrafficSplit: TrafficSplitConfig{V2Percentage: 0},
	}
}

// DefaultSnapshotConfig returns snapshots disabled, rooted at
// ~/.routecodex/codex-samples per spec's persisted-state layout.
func DefaultSnapshotConfig(home string) SnapshotConfig {
	return SnapshotConfig{
		Enabled: false,
		Dir:     filepath.Join(home, ".routecodex", "codex-samples"),
	}
}

// DefaultRateLimitConfig returns no ingress limit for /v1/messages
// (MessagesRPM 0); internal/gateway only installs the limiter when
// MessagesRPM is positive, so operators opt in via the config file.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{MessagesRPM: 0}
}

// DefaultLogConfig returns info-level JSON logging to stdout.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns telemetry disabled by default.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "routecodex",
		SampleRate:   0.1,
	}
}
