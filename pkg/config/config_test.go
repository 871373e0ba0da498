package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := fromViper(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.SpaceMetadataTTL)
	assert.Equal(t, 5*time.Minute, cfg.SchemaTTL)
	assert.Equal(t, 10, cfg.DiscoveryConcurrency)
	assert.Equal(t, 5*time.Second, cfg.SpaceInfoTimeout)
	assert.Equal(t, 7500*time.Millisecond, cfg.SchemaTimeout)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 90*time.Second, cfg.StaleCheckInterval)
	assert.Equal(t, 10*time.Minute, cfg.StaleTimeoutSSE)
	assert.Equal(t, 5*time.Minute, cfg.StaleTimeoutHTTP)
	assert.True(t, cfg.PingEnabled)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, 1, cfg.PingFailureThreshold)
	assert.False(t, cfg.StrictCompliance)
	assert.Equal(t, "https://huggingface.co", cfg.HubBaseURL)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(v *viper.Viper)
		wantErr string
	}{
		{
			name:    "negative port",
			mutate:  func(v *viper.Viper) { v.Set("port", -1) },
			wantErr: "invalid port",
		},
		{
			name:    "empty hub url",
			mutate:  func(v *viper.Viper) { v.Set("hub_base_url", "") },
			wantErr: "hub base URL",
		},
		{
			name:    "zero concurrency",
			mutate:  func(v *viper.Viper) { v.Set("discovery_concurrency", 0) },
			wantErr: "discovery concurrency",
		},
		{
			name:    "zero ttl",
			mutate:  func(v *viper.Viper) { v.Set("schema_ttl", 0) },
			wantErr: "TTLs must be positive",
		},
		{
			name:    "zero ping threshold",
			mutate:  func(v *viper.Viper) { v.Set("ping_failure_threshold", 0) },
			wantErr: "ping failure threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := newTestViper()
			tt.mutate(v)
			_, err := fromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHubURLTrailingSlashTrimmed(t *testing.T) {
	t.Parallel()

	v := newTestViper()
	v.Set("hub_base_url", "https://hub.example.com/")
	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "https://hub.example.com", cfg.HubBaseURL)
}
