// Package config loads RouteCodex's single user config file (default
// ~/.routecodex/config.json) merged with environment variable
// overrides, grounded on the teacher's config.Loader builder
// (default -> file -> env precedence, reflection-based env overlay).
// The teacher's own config was YAML; the gateway's wire format per
// spec is JSON, so loadFromFile here decodes JSON while the reflection
// env-overlay walk is kept verbatim from the teacher's approach.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is RouteCodex's full configuration, covering the virtual
// router's provider/routing/classification tables, the per-protocol
// compatibility profile selection, the pipeline mode knobs, and the
// ambient server/log/telemetry/snapshot/rate-limit settings.
type Config struct {
	Server        ServerConfig        `json:"server" env:"SERVER"`
	VirtualRouter VirtualRouterConfig `json:"virtualrouter" env:"VIRTUALROUTER"`
	Compatibility CompatibilityConfig `json:"compatibility" env:"-"`
	System        SystemConfig        `json:"system" env:"SYSTEM"`
	Snapshot      SnapshotConfig      `json:"snapshot" env:"SNAPSHOT"`
	CooldownStore CooldownStoreConfig `json:"cooldownStore" env:"COOLDOWN_STORE"`
	SessionPin    SessionPinConfig    `json:"sessionPin" env:"SESSION_PIN"`
	RateLimit     RateLimitConfig     `json:"rateLimit" env:"RATE_LIMIT"`
	Log           LogConfig           `json:"log" env:"LOG"`
	Telemetry     TelemetryConfig     `json:"telemetry" env:"TELEMETRY"`
	AuthDir       string              `json:"authDir" env:"AUTH_DIR"`
}

// ServerConfig configures the inbound HTTP front-end.
type ServerConfig struct {
	HTTPPort        int           `json:"httpPort" env:"HTTP_PORT"`
	MetricsPort     int           `json:"metricsPort" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `json:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"writeTimeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	GatewayKey      string        `json:"gatewayKey" env:"GATEWAY_KEY"`
	JWT             JWTConfig     `json:"jwt" env:"JWT"`
}

// JWTConfig is an alternative to GatewayKey's literal compare: when
// Enabled, inbound bearer tokens are verified as signed JWTs instead of
// being compared against a static secret, so the key can expire and
// carry an issuer/audience without the operator rotating GatewayKey.
type JWTConfig struct {
	Enabled  bool   `json:"enabled" env:"ENABLED"`
	Secret   string `json:"secret" env:"SECRET"`
	Issuer   string `json:"issuer,omitempty" env:"ISSUER"`
	Audience string `json:"audience,omitempty" env:"AUDIENCE"`
}

// VirtualRouterConfig is the spec's `virtualrouter.*` config tree.
type VirtualRouterConfig struct {
	Providers            map[string]ProviderConfig `json:"providers"`
	Routing              map[string][]string       `json:"routing"`
	ClassificationConfig ClassificationConfig      `json:"classificationConfig"`
}

// ProviderConfig is one `virtualrouter.providers[id]` entry.
type ProviderConfig struct {
	Type    string                 `json:"type"`
	BaseURL string                 `json:"baseURL"`
	Auth    AuthConfig             `json:"auth"`
	Models  map[string]ModelConfig `json:"models"`
}

// AuthConfig is a provider's `auth` block, covering both static API
// keys and the OAuth device/auth-code flows the runtime supports.
type AuthConfig struct {
	Type             string   `json:"type"`
	APIKey           string   `json:"apiKey,omitempty"`
	Entries          []string `json:"entries,omitempty"`
	Env              string   `json:"env,omitempty"`
	TokenURL         string   `json:"tokenUrl,omitempty"`
	TokenFile        string   `json:"tokenFile,omitempty"`
	ClientID         string   `json:"clientId,omitempty"`
	ClientSecret     string   `json:"clientSecret,omitempty"`
	Scopes           []string `json:"scopes,omitempty"`
	DeviceCodeURL    string   `json:"deviceCodeUrl,omitempty"`
	AuthorizationURL string   `json:"authorizationUrl,omitempty"`
	RefreshURL       string   `json:"refreshUrl,omitempty"`
}

// ModelConfig bounds one routable model's context/output sizing.
type ModelConfig struct {
	MaxContext int `json:"maxContext"`
	MaxTokens  int `json:"maxTokens"`
}

// ClassificationConfig drives the virtual router's request classifier.
type ClassificationConfig struct {
	ProtocolMapping     map[string]string `json:"protocolMapping"`
	ProtocolHandlers    map[string]string `json:"protocolHandlers"`
	ModelTiers          map[string]string `json:"modelTiers"`
	RoutingDecisions    map[string]string `json:"routingDecisions"`
	ConfidenceThreshold float64           `json:"confidenceThreshold"`
}

// CompatibilityConfig selects per-protocol compatibility profiles. The
// spec allows either a bare shorthand string or an object with a
// profiles list, so it implements json.Unmarshaler to accept both.
type CompatibilityConfig struct {
	Shorthand string   `json:"-"`
	Profiles  []string `json:"profiles,omitempty"`
}

// UnmarshalJSON accepts `"compatibility": "openai:default"` as well as
// `"compatibility": {"profiles": ["openai:default", "anthropic:default"]}`.
func (c *CompatibilityConfig) UnmarshalJSON(data []byte) error {
	var shorthand string
	if err := json.Unmarshal(data, &shorthand); err == nil {
		c.Shorthand = shorthand
		c.Profiles = nil
		return nil
	}
	type alias CompatibilityConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = CompatibilityConfig(a)
	return nil
}

// ResolvedProfiles returns the effective profile list regardless of
// which JSON shape configured it.
func (c CompatibilityConfig) ResolvedProfiles() []string {
	if c.Shorthand != "" {
		return []string{c.Shorthand}
	}
	return c.Profiles
}

// SystemConfig carries the pipeline-mode and hybrid-adapter knobs the
// spec marks as non-core.
type SystemConfig struct {
	PipelineMode string             `json:"pipelineMode" env:"PIPELINE_MODE"`
	TrafficSplit TrafficSplitConfig `json:"trafficSplit" env:"TRAFFIC_SPLIT"`
}

// TrafficSplitConfig controls the percentage of traffic a hybrid
// deployment routes through a v2 pipeline.
type TrafficSplitConfig struct {
	V2Percentage int `json:"v2Percentage" env:"V2_PERCENTAGE"`
}

// SnapshotConfig configures the forensic per-stage JSON trail.
type SnapshotConfig struct {
	Enabled   bool   `json:"enabled" env:"ENABLED"`
	Dir       string `json:"dir" env:"DIR"`
	AdminTail bool   `json:"adminTail" env:"ADMIN_TAIL"`
}

// CooldownStoreConfig enables the optional on-disk sqlite mirror of
// vrouter's in-memory cooldown/health state (see vrouter/cooldownstore),
// so a runtime's cooldown survives a gateway restart.
type CooldownStoreConfig struct {
	Enabled      bool          `json:"enabled" env:"ENABLED"`
	Path         string        `json:"path" env:"PATH"`
	SweepInterval time.Duration `json:"sweepInterval" env:"SWEEP_INTERVAL"`
}

// SessionPinConfig enables the optional redis-backed persistence of the
// <**#providerId**> session override (see vrouter/sessionpin). When
// disabled, an override only lives for the request that carried it.
type SessionPinConfig struct {
	Enabled bool          `json:"enabled" env:"ENABLED"`
	Addr    string        `json:"addr" env:"ADDR"`
	TTL     time.Duration `json:"ttl" env:"TTL"`
}

// RateLimitConfig configures the optional ingress token-bucket limiter
// for /v1/messages (e.g. 10 req/min); 0 disables it.
type RateLimitConfig struct {
	MessagesRPM int `json:"messagesRpm" env:"MESSAGES_RPM"`
}

// LogConfig mirrors the teacher's zap-backed logging config.
type LogConfig struct {
	Level            string   `json:"level" env:"LEVEL"`
	Format           string   `json:"format" env:"FORMAT"`
	OutputPaths      []string `json:"outputPaths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `json:"enableCaller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `json:"enableStacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig mirrors the teacher's OTel exporter config.
type TelemetryConfig struct {
	Enabled      bool    `json:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `json:"otlpEndpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `json:"serviceName" env:"SERVICE_NAME"`
	SampleRate   float64 `json:"sampleRate" env:"SAMPLE_RATE"`
}

// Loader is a builder for loading Config from defaults, an optional
// JSON config file, an optional YAML modules overlay, and environment
// variables, in that precedence order (later wins).
type Loader struct {
	configPath  string
	modulesPath string
	envPrefix   string
	validators  []func(*Config) error
}

// NewLoader creates a loader with the gateway's env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ROUTECODEX",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the primary JSON config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithModulesPath sets an optional YAML modules-overlay file, merged
// on top of the primary config (spec: "merged with a modules file").
func (l *Loader) WithModulesPath(path string) *Loader {
	l.modulesPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers a post-load validation function.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds a Config: defaults -> JSON file -> YAML modules overlay
// -> environment variables -> named legacy env vars -> validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromJSONFile(cfg, l.configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if l.modulesPath != "" {
		if err := l.loadFromYAMLModulesFile(cfg, l.modulesPath); err != nil {
			if os.Getenv("ROUTECODEX_STRICT_MODULES_CONFIG") == "true" {
				return nil, fmt.Errorf("failed to load modules file: %w", err)
			}
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	applyNamedEnvOverrides(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromJSONFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadFromYAMLModulesFile merges a supplementary modules.yaml onto an
// already-loaded Config, the way a fleet operator splits stable
// provider/routing config from environment-specific module overrides.
func (l *Loader) loadFromYAMLModulesFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read modules file: %w", err)
	}
	return yaml.Unmarshal(data, cfg)
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// applyNamedEnvOverrides bridges the spec's enumerated legacy env var
// names (§6), which don't follow the PREFIX_Struct_Field convention
// the reflection walk above assumes, onto their Config fields.
func applyNamedEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROUTECODEX_AUTH_DIR"); v != "" {
		cfg.AuthDir = v
	}
	if v := os.Getenv("ROUTECODEX_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := os.Getenv("ROUTECODEX_MESSAGES_RPM_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.MessagesRPM = n
		}
	}
	if v := os.Getenv("OPENAI_GENERIC_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Server.ReadTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("RCC_UPSTREAM_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Server.WriteTimeout = time.Duration(ms) * time.Millisecond
		}
	}
}

// MustLoad loads configuration from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from defaults and environment
// variables only, with no config file.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the structural invariants the virtual router and
// provider runtime depend on.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	for id, p := range c.VirtualRouter.Providers {
		switch p.Type {
		case "openai", "responses", "anthropic", "gemini", "gemini-cli", "mock", "lmstudio", "":
		default:
			errs = append(errs, fmt.Sprintf("provider %q: unsupported type %q", id, p.Type))
		}
	}

	if c.System.PipelineMode != "" && c.System.PipelineMode != "v1" && c.System.PipelineMode != "hybrid" {
		errs = append(errs, fmt.Sprintf("invalid system.pipelineMode %q", c.System.PipelineMode))
	}

	if c.Server.JWT.Enabled && c.Server.JWT.Secret == "" {
		errs = append(errs, "server.jwt.enabled requires server.jwt.secret")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
