package config

import (
	"fmt"
	"time"

	"github.com/pairforge/agent/internal/common"
)

// Config represents the application configuration structure
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Pairing  PairingConfig  `mapstructure:"pairing"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Janitor  JanitorConfig  `mapstructure:"janitor"`

	// Internal log buffer, installed as a logrus hook during Load.
	logger pairLogger
}

// ServerConfig holds the HTTP boundary settings.
type ServerConfig struct {
	Host   string           `mapstructure:"host"`
	Port   int              `mapstructure:"port"`
	Limits ServerLimits     `mapstructure:"limits"`
	Health EndpointConfig   `mapstructure:"health"`
	Ready  EndpointConfig   `mapstructure:"ready"`
	CORS   CORSServerConfig `mapstructure:"cors"`
}

type ServerLimits struct {
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// RequestTimeout bounds how long a caller waits for the pairing
	// code; background delivery work is not covered by it.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type EndpointConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type CORSServerConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig controls logrus setup plus the benign-transient
// suppression list injected into post-response error recovery.
type LoggingConfig struct {
	Level    string   `mapstructure:"level"`
	Format   string   `mapstructure:"format"`
	Suppress []string `mapstructure:"suppress"`
}

// GatewayConfig points at the external protocol gateway.
type GatewayConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Browser  string `mapstructure:"browser"`
}

// PairingConfig parameterizes one session lifecycle.
type PairingConfig struct {
	// StoragePath is the parent directory for per-identifier session
	// directories.
	StoragePath string `mapstructure:"storage_path"`

	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`

	// SettleDelay is how long to let the transport stabilize before
	// requesting the pairing code.
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	// CleanupDelay is how long to wait after delivery before purging
	// the session directory, so in-flight acks can land.
	CleanupDelay time.Duration `mapstructure:"cleanup_delay"`

	RestartDelay   time.Duration `mapstructure:"restart_delay"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`

	// MaxReconnects caps transparent reopens per request before the
	// attempt terminates with connection_exhausted.
	MaxReconnects int `mapstructure:"max_reconnects"`
}

// ExtraMessage is one auxiliary informational message sent between the
// credential bundle and the security warning. Either Text or ImageURL
// must be set.
type ExtraMessage struct {
	Text     string `mapstructure:"text"`
	ImageURL string `mapstructure:"image_url"`
	Caption  string `mapstructure:"caption"`
}

// DeliveryConfig parameterizes the credential delivery sequence.
type DeliveryConfig struct {
	// Pause between consecutive sends, respecting downstream rate
	// expectations.
	Pause time.Duration `mapstructure:"pause"`

	CredentialFileName string         `mapstructure:"credential_file_name"`
	Extras             []ExtraMessage `mapstructure:"extras"`
	Warning            string         `mapstructure:"warning"`
	FailureNotice      string         `mapstructure:"failure_notice"`
}

// AuditConfig controls the local attempt ledger.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// JanitorConfig controls the stale session directory sweeper.
type JanitorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`

	// MaxAge is how old a session directory may get before it is
	// considered leaked by a dead request and removed.
	MaxAge time.Duration `mapstructure:"max_age"`
}

func (c *Config) GetListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetLogger() *pairLogger {
	return &c.logger
}

// Validate checks the settings a running agent cannot do without.
func (c *Config) Validate() error {

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.Gateway.Endpoint) == 0 {
		return fmt.Errorf("gateway endpoint is required")
	}

	if !common.IsValidURL(c.Gateway.Endpoint) {
		return fmt.Errorf("invalid gateway endpoint: %s", c.Gateway.Endpoint)
	}

	if len(c.Pairing.StoragePath) == 0 {
		return fmt.Errorf("pairing storage path is required")
	}

	if c.Pairing.MaxReconnects < 1 {
		return fmt.Errorf("pairing max_reconnects must be at least 1")
	}

	return nil
}
