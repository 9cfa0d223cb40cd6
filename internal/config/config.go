package config

import (
	"fmt"
	"time"
)

// Config is the full keepbrain configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Database DatabaseConfig `koanf:"database"`
	Queue    QueueConfig    `koanf:"queue"`
	Vault    VaultConfig    `koanf:"vault"`
	AI       AIConfig       `koanf:"ai"`
}

// ServerConfig configures the admin HTTP listener.
type ServerConfig struct {
	HTTPHost string `koanf:"http_host"`
	HTTPPort int    `koanf:"http_port"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// QueueConfig configures the NATS connection.
type QueueConfig struct {
	URL string `koanf:"url"`
}

// VaultConfig carries the credential vault passphrase. Environment only;
// never committed to a config file.
type VaultConfig struct {
	Passphrase Secret `koanf:"passphrase"`
}

// AIConfig configures the provider clients. The Anthropic key is the
// instance-wide fallback used when a user has no stored key.
type AIConfig struct {
	AnthropicAPIKey  Secret   `koanf:"anthropic_api_key"`
	AnthropicBaseURL string   `koanf:"anthropic_base_url"`
	OpenAIBaseURL    string   `koanf:"openai_base_url"`
	Timeout          Duration `koanf:"timeout"`
}

// applyDefaults fills in zero-valued fields after unmarshal.
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPHost == "" {
		cfg.Server.HTTPHost = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "keepbrain.db"
	}
	if cfg.Queue.URL == "" {
		cfg.Queue.URL = "nats://127.0.0.1:4222"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = Duration(60 * time.Second)
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.HTTPPort)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Queue.URL == "" {
		return fmt.Errorf("queue.url must not be empty")
	}
	return nil
}
