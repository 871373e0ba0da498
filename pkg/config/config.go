// Package config provides the environment-driven configuration surface for
// the gateway. All discovery and transport timings are configurable through
// environment variables and fall back to the documented defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default timings for discovery and transports.
const (
	// DefaultSpaceMetadataTTL is how long cached space metadata stays fresh.
	DefaultSpaceMetadataTTL = 5 * time.Minute

	// DefaultSchemaTTL is how long cached tool schemas stay fresh.
	DefaultSchemaTTL = 5 * time.Minute

	// DefaultDiscoveryConcurrency bounds parallel metadata fetches per batch.
	DefaultDiscoveryConcurrency = 10

	// DefaultSpaceInfoTimeout bounds a single space metadata fetch.
	DefaultSpaceInfoTimeout = 5 * time.Second

	// DefaultSchemaTimeout bounds a single schema fetch.
	DefaultSchemaTimeout = 7500 * time.Millisecond

	// DefaultHeartbeatInterval is the per-session stream liveness check.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultStaleCheckInterval is how often the stale sweep runs.
	DefaultStaleCheckInterval = 90 * time.Second

	// DefaultStaleTimeoutSSE evicts idle SSE sessions.
	DefaultStaleTimeoutSSE = 10 * time.Minute

	// DefaultStaleTimeoutHTTP evicts idle streamable HTTP sessions.
	DefaultStaleTimeoutHTTP = 5 * time.Minute

	// DefaultPingInterval is the protocol-level keep-alive ping cadence.
	DefaultPingInterval = 30 * time.Second

	// DefaultPingFailureThreshold marks a session distressed after this many
	// consecutive ping failures.
	DefaultPingFailureThreshold = 1
)

// Config holds the effective gateway configuration. Values are copied out of
// viper at load time; discovery code copies what it needs at entry so runtime
// reconfiguration never requires locking.
type Config struct {
	// Host is the bind address.
	Host string `json:"host"`

	// Port is the bind port.
	Port int `json:"port"`

	// HubBaseURL is the base URL of the Hub API used for space metadata,
	// token validation, and user settings.
	HubBaseURL string `json:"hubBaseUrl"`

	// SpaceMetadataTTL is the metadata cache TTL measured from entry creation.
	SpaceMetadataTTL time.Duration `json:"spaceMetadataTtl"`

	// SchemaTTL is the schema cache TTL measured from entry creation.
	SchemaTTL time.Duration `json:"schemaTtl"`

	// DiscoveryConcurrency is the metadata fetch batch size.
	DiscoveryConcurrency int `json:"discoveryConcurrency"`

	// SpaceInfoTimeout bounds each space metadata fetch.
	SpaceInfoTimeout time.Duration `json:"spaceInfoTimeout"`

	// SchemaTimeout bounds each schema fetch.
	SchemaTimeout time.Duration `json:"schemaTimeout"`

	// HeartbeatInterval is the per-session stream liveness check cadence.
	HeartbeatInterval time.Duration `json:"heartbeatInterval"`

	// StaleCheckInterval is the stale sweep cadence.
	StaleCheckInterval time.Duration `json:"staleCheckInterval"`

	// StaleTimeoutSSE is the idle eviction timeout for SSE sessions.
	StaleTimeoutSSE time.Duration `json:"staleTimeoutSse"`

	// StaleTimeoutHTTP is the idle eviction timeout for streamable HTTP sessions.
	StaleTimeoutHTTP time.Duration `json:"staleTimeoutHttp"`

	// PingEnabled toggles the keep-alive ping loop.
	PingEnabled bool `json:"pingEnabled"`

	// PingInterval is the keep-alive ping cadence.
	PingInterval time.Duration `json:"pingInterval"`

	// PingFailureThreshold marks a session distressed at this many failures.
	PingFailureThreshold int `json:"pingFailureThreshold"`

	// StrictCompliance rejects GET /mcp with 405 on the stateless transport
	// instead of serving the welcome page.
	StrictCompliance bool `json:"strictCompliance"`

	// SearchEnablesFetch adds hf_doc_fetch whenever hf_doc_search is enabled.
	SearchEnablesFetch bool `json:"searchEnablesFetch"`

	// Analytics enables the stateless transport's analytics-only session table.
	Analytics bool `json:"analytics"`
}

// setDefaults registers the documented defaults on the given viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 3000)
	v.SetDefault("hub_base_url", "https://huggingface.co")
	v.SetDefault("space_metadata_ttl", DefaultSpaceMetadataTTL)
	v.SetDefault("schema_ttl", DefaultSchemaTTL)
	v.SetDefault("discovery_concurrency", DefaultDiscoveryConcurrency)
	v.SetDefault("space_info_timeout", DefaultSpaceInfoTimeout)
	v.SetDefault("schema_timeout", DefaultSchemaTimeout)
	v.SetDefault("heartbeat_interval", DefaultHeartbeatInterval)
	v.SetDefault("stale_check_interval", DefaultStaleCheckInterval)
	v.SetDefault("stale_timeout_sse", DefaultStaleTimeoutSSE)
	v.SetDefault("stale_timeout_http", DefaultStaleTimeoutHTTP)
	v.SetDefault("ping_enabled", true)
	v.SetDefault("ping_interval", DefaultPingInterval)
	v.SetDefault("ping_failure_threshold", DefaultPingFailureThreshold)
	v.SetDefault("strict_compliance", false)
	v.SetDefault("search_enables_fetch", false)
	v.SetDefault("analytics", false)
}

// Load reads configuration from the environment (SPACEGATE_ prefix) with
// documented defaults applied.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Host:                 v.GetString("host"),
		Port:                 v.GetInt("port"),
		HubBaseURL:           strings.TrimRight(v.GetString("hub_base_url"), "/"),
		SpaceMetadataTTL:     v.GetDuration("space_metadata_ttl"),
		SchemaTTL:            v.GetDuration("schema_ttl"),
		DiscoveryConcurrency: v.GetInt("discovery_concurrency"),
		SpaceInfoTimeout:     v.GetDuration("space_info_timeout"),
		SchemaTimeout:        v.GetDuration("schema_timeout"),
		HeartbeatInterval:    v.GetDuration("heartbeat_interval"),
		StaleCheckInterval:   v.GetDuration("stale_check_interval"),
		StaleTimeoutSSE:      v.GetDuration("stale_timeout_sse"),
		StaleTimeoutHTTP:     v.GetDuration("stale_timeout_http"),
		PingEnabled:          v.GetBool("ping_enabled"),
		PingInterval:         v.GetDuration("ping_interval"),
		PingFailureThreshold: v.GetInt("ping_failure_threshold"),
		StrictCompliance:     v.GetBool("strict_compliance"),
		SearchEnablesFetch:   v.GetBool("search_enables_fetch"),
		Analytics:            v.GetBool("analytics"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.HubBaseURL == "" {
		return fmt.Errorf("hub base URL cannot be empty")
	}
	if c.DiscoveryConcurrency < 1 {
		return fmt.Errorf("discovery concurrency must be at least 1, got %d", c.DiscoveryConcurrency)
	}
	if c.SpaceMetadataTTL <= 0 || c.SchemaTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.PingFailureThreshold < 1 {
		return fmt.Errorf("ping failure threshold must be at least 1, got %d", c.PingFailureThreshold)
	}
	return nil
}
