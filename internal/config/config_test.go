package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairforge/agent/internal/common"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 120*time.Second, cfg.Server.Limits.RequestTimeout)

	assert.Equal(t, 60*time.Second, cfg.Pairing.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.Pairing.KeepAliveInterval)
	assert.Equal(t, 2*time.Second, cfg.Pairing.SettleDelay)
	assert.Equal(t, 5*time.Second, cfg.Pairing.CleanupDelay)
	assert.Equal(t, 5*time.Second, cfg.Pairing.RestartDelay)
	assert.Equal(t, 3*time.Second, cfg.Pairing.ReconnectDelay)
	assert.Equal(t, 5, cfg.Pairing.MaxReconnects)

	assert.Equal(t, 1500*time.Millisecond, cfg.Delivery.Pause)
	assert.Equal(t, "creds.json", cfg.Delivery.CredentialFileName)
	assert.NotEmpty(t, cfg.Delivery.Warning)

	assert.Contains(t, cfg.Logging.Suppress, "stream errored")
	assert.Equal(t, common.DefaultBenignSubstrings, cfg.Logging.Suppress)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:      "bad port",
			mutate:    func(c *Config) { c.Server.Port = -1 },
			expectErr: "port",
		},
		{
			name:      "missing gateway endpoint",
			mutate:    func(c *Config) { c.Gateway.Endpoint = "" },
			expectErr: "gateway endpoint",
		},
		{
			name:      "malformed gateway endpoint",
			mutate:    func(c *Config) { c.Gateway.Endpoint = "not a url" },
			expectErr: "invalid gateway endpoint",
		},
		{
			name:      "missing storage path",
			mutate:    func(c *Config) { c.Pairing.StoragePath = "" },
			expectErr: "storage path",
		},
		{
			name:      "zero reconnect cap",
			mutate:    func(c *Config) { c.Pairing.MaxReconnects = 0 },
			expectErr: "max_reconnects",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if len(tt.expectErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectErr)
		})
	}
}
