// Package config loads ginja's configuration through Viper: a YAML
// config file, GINJA_ environment variable overrides, and command-line
// flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ginja-dev/ginja/internal/errors"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Render    RenderConfig    `mapstructure:"render" yaml:"render"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr returns host:port for net listeners.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type TemplatesConfig struct {
	Dir        string   `mapstructure:"dir" yaml:"dir"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	Watch      bool     `mapstructure:"watch" yaml:"watch"`
	// DebounceMS is the watcher's quiet window in milliseconds.
	DebounceMS int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// Debounce returns the watcher quiet window as a duration.
func (c TemplatesConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

type RenderConfig struct {
	BlockStart      string `mapstructure:"block_start" yaml:"block_start"`
	BlockEnd        string `mapstructure:"block_end" yaml:"block_end"`
	VariableStart   string `mapstructure:"variable_start" yaml:"variable_start"`
	VariableEnd     string `mapstructure:"variable_end" yaml:"variable_end"`
	TrimBlocks      bool   `mapstructure:"trim_blocks" yaml:"trim_blocks"`
	LstripBlocks    bool   `mapstructure:"lstrip_blocks" yaml:"lstrip_blocks"`
	StrictUndefined bool   `mapstructure:"strict_undefined" yaml:"strict_undefined"`
	Autoescape      bool   `mapstructure:"autoescape" yaml:"autoescape"`
	// UpdateIntervalMS is the re-render debounce in milliseconds.
	UpdateIntervalMS int `mapstructure:"update_interval_ms" yaml:"update_interval_ms"`
}

// UpdateInterval returns the re-render debounce as a duration.
func (c RenderConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalMS) * time.Millisecond
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8420)
	v.SetDefault("templates.dir", ".")
	v.SetDefault("templates.extensions", []string{".html", ".jinja", ".j2"})
	v.SetDefault("templates.watch", true)
	v.SetDefault("templates.debounce_ms", 250)
	v.SetDefault("render.block_start", "{%")
	v.SetDefault("render.block_end", "%}")
	v.SetDefault("render.variable_start", "{{")
	v.SetDefault("render.variable_end", "}}")
	v.SetDefault("render.update_interval_ms", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfig("unmarshaling configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.NewConfig(fmt.Sprintf("invalid server port %d", c.Server.Port), nil)
	}
	if c.Templates.Dir == "" {
		return errors.NewConfig("templates.dir must not be empty", nil)
	}
	if c.Templates.DebounceMS < 0 {
		return errors.NewConfig("templates.debounce_ms must not be negative", nil)
	}
	if c.Render.UpdateIntervalMS < 0 {
		return errors.NewConfig("render.update_interval_ms must not be negative", nil)
	}
	delims := []string{
		c.Render.BlockStart, c.Render.BlockEnd,
		c.Render.VariableStart, c.Render.VariableEnd,
	}
	seen := make(map[string]bool)
	for _, d := range delims {
		if strings.TrimSpace(d) == "" {
			return errors.NewConfig("template delimiters must not be empty", nil)
		}
		if seen[d] {
			return errors.NewConfig("template delimiters must be distinct", nil)
		}
		seen[d] = true
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewConfig("log.level must be one of debug, info, warn, error", nil)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.NewConfig("log.format must be text or json", nil)
	}
	return nil
}
