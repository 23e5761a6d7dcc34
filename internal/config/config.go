package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/pairforge/agent/internal/common"
)

// DefaultConfig returns a configuration built purely from defaults,
// used by tests and as a base for programmatic setups.
func DefaultConfig() *Config {

	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		logrus.Fatalf("error unmarshaling default config: %v", err)
	}

	return &config
}

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	if err := setupViperConfig(v, configFile); err != nil {
		return nil, err
	}

	bindEnvironmentVariables(v)

	config, err := readAndUnmarshalConfig(v)
	if err != nil {
		return nil, err
	}

	if err := setupLogging(config, v); err != nil {
		return nil, err
	}

	return config, nil
}

// loadEnvFile loads the .env file if it exists
func loadEnvFile() error {
	if err := gotenv.Load(); err != nil {
		// .env file not found, that's okay - continue with other sources
		if !os.IsNotExist(err) {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}
	return nil
}

// setupViperConfig configures viper with file paths and defaults
func setupViperConfig(v *viper.Viper, configFile string) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pairforge")

	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
	}

	if err := setupHomeConfigPath(v); err != nil {
		return err
	}

	setDefaults(v)

	v.SetEnvPrefix("PAIRFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	return nil
}

// setupHomeConfigPath adds the home directory config path if available
func setupHomeConfigPath(v *viper.Viper) error {
	home := os.Getenv("HOME")
	if len(home) == 0 {
		return nil
	}

	usr, err := user.Current()
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	configPath := filepath.Join(usr.HomeDir, ".config", "pairforge")
	v.AddConfigPath(configPath)

	return nil
}

// bindEnvironmentVariables binds all environment variables to viper
func bindEnvironmentVariables(v *viper.Viper) {

	v.BindEnv("server.host", "PAIRFORGE_SERVER_HOST")
	v.BindEnv("server.port", "PAIRFORGE_SERVER_PORT", "PORT")

	v.BindEnv("gateway.endpoint", "PAIRFORGE_GATEWAY_ENDPOINT")
	v.BindEnv("gateway.api_key", "PAIRFORGE_GATEWAY_API_KEY")

	v.BindEnv("pairing.storage_path", "PAIRFORGE_PAIRING_STORAGE_PATH")

	v.BindEnv("audit.enabled", "PAIRFORGE_AUDIT_ENABLED")
	v.BindEnv("audit.path", "PAIRFORGE_AUDIT_PATH")

	v.BindEnv("logging.level", "PAIRFORGE_LOGGING_LEVEL")
	v.BindEnv("logging.format", "PAIRFORGE_LOGGING_FORMAT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.limits.read_timeout", "30s")
	v.SetDefault("server.limits.write_timeout", "130s")
	v.SetDefault("server.limits.idle_timeout", "120s")
	v.SetDefault("server.limits.request_timeout", "120s")
	v.SetDefault("server.health.enabled", true)
	v.SetDefault("server.health.path", "/health")
	v.SetDefault("server.ready.enabled", true)
	v.SetDefault("server.ready.path", "/ready")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.suppress", common.DefaultBenignSubstrings)

	// Protocol gateway defaults
	v.SetDefault("gateway.endpoint", "http://127.0.0.1:8008")
	v.SetDefault("gateway.browser", "Ubuntu Chrome")

	// Pairing lifecycle defaults
	v.SetDefault("pairing.storage_path", "./sessions")
	v.SetDefault("pairing.connect_timeout", "60s")
	v.SetDefault("pairing.keep_alive_interval", "10s")
	v.SetDefault("pairing.settle_delay", "2s")
	v.SetDefault("pairing.cleanup_delay", "5s")
	v.SetDefault("pairing.restart_delay", "5s")
	v.SetDefault("pairing.reconnect_delay", "3s")
	v.SetDefault("pairing.max_reconnects", 5)

	// Delivery defaults
	v.SetDefault("delivery.pause", "1500ms")
	v.SetDefault("delivery.credential_file_name", "creds.json")
	v.SetDefault("delivery.warning",
		"SECURITY WARNING\n\nDo not share this file with anybody.\n"+
			"It contains your messaging session credentials and grants full access to your account.")
	v.SetDefault("delivery.failure_notice",
		"We could not deliver your session credentials. Please request a new pairing code and try again.")

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "./pairforge.db")

	// Janitor defaults
	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.interval", "10m")
	v.SetDefault("janitor.max_age", "30m")
}

// readAndUnmarshalConfig reads the configuration file and unmarshals it
func readAndUnmarshalConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setupLogging configures the logging system based on the config
func setupLogging(config *Config, v *viper.Viper) error {

	logrusLevel, err := logrus.ParseLevel(config.Logging.Level)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}

	logrus.SetLevel(logrusLevel)
	config.logger = *NewPairLogger()
	logrus.AddHook(&config.logger)

	switch strings.ToLower(config.Logging.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logrus.WithFields(logrus.Fields{
			"format": config.Logging.Format,
		}).Warn("Unknown log format")
	}

	// Dump out the config settings if in debug mode
	if logrusLevel >= logrus.DebugLevel {
		for key, value := range v.AllSettings() {
			logrus.Debugf("Config '%s': %v\n", key, value)
		}
	}

	return nil
}
