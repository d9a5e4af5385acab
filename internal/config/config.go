// Package config provides configuration management for fiddle using
// Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with FIDDLE_ prefix, validation, and security checks. It
// manages server settings, share-link generation, template loading,
// and development options like template hot reload.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/conneroisu/fiddle/internal/registry"
	"github.com/conneroisu/fiddle/internal/validation"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Share       ShareConfig       `yaml:"share"`
	Templates   TemplatesConfig   `yaml:"templates"`
	Development DevelopmentConfig `yaml:"development"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	Open           bool     `yaml:"open"`
	NoOpen         bool     `yaml:"no-open"`
	StaticDir      string   `yaml:"static_dir"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Environment    string   `yaml:"environment"`
}

type ShareConfig struct {
	// Origin overrides the link base derived from host:port, for
	// serving behind a proxy or tunnel.
	Origin string `yaml:"origin"`
	// Compact switches generated links to the single-parameter
	// compressed format.
	Compact bool `yaml:"compact"`
}

type TemplatesConfig struct {
	Dir     string `yaml:"dir"`
	Default string `yaml:"default"`
}

type DevelopmentConfig struct {
	HotReload bool `yaml:"hot_reload"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Apply server defaults if not set
	if !viper.IsSet("server.port") && config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if !viper.IsSet("server.host") && config.Server.Host == "" {
		config.Server.Host = "localhost"
	}

	// Handle allowed origins set via viper (workaround for viper slice handling)
	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		origins := viper.GetStringSlice("server.allowed_origins")
		if len(origins) > 0 {
			config.Server.AllowedOrigins = origins
		}
	}

	// Handle underscore keys viper cannot map to struct fields
	if viper.IsSet("server.static_dir") && config.Server.StaticDir == "" {
		config.Server.StaticDir = viper.GetString("server.static_dir")
	}

	// Handle boolean settings set via viper (workaround for viper bool handling)
	if viper.IsSet("share.compact") {
		config.Share.Compact = viper.GetBool("share.compact")
	}
	if viper.IsSet("development.hot_reload") {
		config.Development.HotReload = viper.GetBool("development.hot_reload")
	} else {
		config.Development.HotReload = true
	}

	// Override no-open if explicitly set via flag
	if viper.IsSet("server.no-open") && viper.GetBool("server.no-open") {
		config.Server.Open = false
	}

	// Apply template defaults if not set
	if config.Templates.Dir == "" {
		config.Templates.Dir = "./templates"
	}
	if config.Templates.Default == "" {
		config.Templates.Default = registry.DefaultName
	}

	// Apply logging defaults if not set
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}

	// Validate configuration values
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ShareOrigin returns the base URL generated share links point at:
// the configured origin when set, otherwise one derived from the
// server host and port.
func (c *Config) ShareOrigin() string {
	if c.Share.Origin != "" {
		return strings.TrimSuffix(c.Share.Origin, "/")
	}
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateShareConfig(&config.Share); err != nil {
		return fmt.Errorf("share config: %w", err)
	}

	if err := validateTemplatesConfig(&config.Templates); err != nil {
		return fmt.Errorf("templates config: %w", err)
	}

	if err := validateLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Validate port range (allow 0 for system-assigned ports in testing)
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	// Validate host
	if config.Host != "" {
		// Basic validation - no dangerous characters
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	if config.StaticDir != "" {
		if err := validation.ValidatePath(config.StaticDir); err != nil {
			return fmt.Errorf("invalid static directory: %w", err)
		}
	}

	return nil
}

// validateShareConfig validates share-link configuration values
func validateShareConfig(config *ShareConfig) error {
	if config.Origin != "" {
		if err := validation.ValidateURL(config.Origin); err != nil {
			return fmt.Errorf("invalid share origin: %w", err)
		}
	}

	return nil
}

// validateTemplatesConfig validates template configuration values
func validateTemplatesConfig(config *TemplatesConfig) error {
	if config.Dir != "" {
		if err := validation.ValidatePath(config.Dir); err != nil {
			return fmt.Errorf("invalid template directory: %w", err)
		}
	}

	if config.Default != "" {
		if err := registry.ValidateName(config.Default); err != nil {
			return fmt.Errorf("invalid default template: %w", err)
		}
	}

	return nil
}

// validateLoggingConfig validates logging configuration values
func validateLoggingConfig(config *LoggingConfig) error {
	switch config.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format %q is not supported (use text or json)", config.Format)
	}

	if config.Dir != "" {
		if err := validation.ValidatePath(config.Dir); err != nil {
			return fmt.Errorf("invalid log directory: %w", err)
		}
	}

	return nil
}
