package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, SystemConfig{}, cfg.System)
	assert.NotEqual(t, SnapshotConfig{}, cfg.Snapshot)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEmpty(t, cfg.AuthDir)
	assert.NotNil(t, cfg.VirtualRouter.Providers)
	assert.NotNil(t, cfg.VirtualRouter.Routing)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 4000, cfg.HTTPPort)
	assert.Equal(t, 4001, cfg.MetricsPort)
	assert.Equal(t, 300*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 300*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.GatewayKey)
}

func TestDefaultVirtualRouterConfig_StartsEmptyButInitialized(t *testing.T) {
	cfg := DefaultVirtualRouterConfig()
	assert.Empty(t, cfg.Providers)
	assert.Empty(t, cfg.Routing)
	assert.InDelta(t, 0.7, cfg.ClassificationConfig.ConfidenceThreshold, 0.001)
}

func TestDefaultSystemConfig(t *testing.T) {
	cfg := DefaultSystemConfig()
	assert.Equal(t, "v1", cfg.PipelineMode)
	assert.Equal(t, 0, cfg.TrafficSplit.V2Percentage)
}

func TestDefaultSnapshotConfig_DisabledByDefault(t *testing.T) {
	cfg := DefaultSnapshotConfig("/home/user")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "/home/user/.routecodex/codex-samples", cfg.Dir)
}

func TestDefaultRateLimitConfig_Unbounded(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	assert.Equal(t, 0, cfg.MessagesRPM)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "routecodex", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}
