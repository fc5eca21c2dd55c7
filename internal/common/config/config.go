// Package config provides configuration management for the marketplace service.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
	BaseURL      string `mapstructure:"baseUrl"`      // external URL for profile links
}

// DatabaseConfig holds relational store configuration.
// Driver "sqlite" uses Path; driver "postgres" uses the DSN fields; driver
// "memory" keeps everything in-process (development only).
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres, memory
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds broadcast transport configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// WebhookConfig holds outbound webhook delivery configuration.
type WebhookConfig struct {
	Timeout int `mapstructure:"timeout"` // in seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// TimeoutDuration returns the webhook delivery timeout as a time.Duration.
func (w *WebhookConfig) TimeoutDuration() time.Duration {
	return time.Duration(w.Timeout) * time.Second
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// detectDefaultLogFormat returns "json" for production environments and
// "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("MARKET_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.baseUrl", "http://localhost:8000")

	// Database defaults - sqlite file in the working directory
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "market.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "market")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "market")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "marketd")
	v.SetDefault("nats.maxReconnects", 10)

	// Webhook defaults
	v.SetDefault("webhook.timeout", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix MARKET_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/marketd/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/marketd/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for the postgres driver")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for the postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the postgres driver")
		}
	case "memory":
		// nothing to validate
	default:
		errs = append(errs, "database.driver must be one of: sqlite, postgres, memory")
	}

	if cfg.Webhook.Timeout <= 0 {
		errs = append(errs, "webhook.timeout must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
