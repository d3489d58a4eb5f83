// Package config handles agentdesk configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. AGENTDESK_GATEWAY_TOKEN.
const EnvPrefix = "AGENTDESK"

// Config holds all agentdesk configuration.
type Config struct {
	Gateway     GatewayConfig     `mapstructure:"gateway" yaml:"gateway"`
	Attachments AttachmentsConfig `mapstructure:"attachments" yaml:"attachments"`
	Tools       ToolsConfig       `mapstructure:"tools" yaml:"tools"`
	UI          UIConfig          `mapstructure:"ui" yaml:"ui"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// GatewayConfig configures the backend connection.
type GatewayConfig struct {
	BaseURL               string `mapstructure:"base_url" yaml:"base_url"`
	Token                 string `mapstructure:"token" yaml:"token"`
	UserID                string `mapstructure:"user_id" yaml:"user_id"`
	IdentityHeader        string `mapstructure:"identity_header" yaml:"identity_header"`
	TimeoutSeconds        int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	HealthPath            string `mapstructure:"health_path" yaml:"health_path"`
	HealthIntervalSeconds int    `mapstructure:"health_interval_seconds" yaml:"health_interval_seconds"`
}

// AttachmentsConfig limits file context attachments.
type AttachmentsConfig struct {
	MaxTextBytes int64 `mapstructure:"max_text_bytes" yaml:"max_text_bytes"`
}

// ToolsConfig governs tool command runs.
type ToolsConfig struct {
	RequireExecuteConfirmation bool `mapstructure:"require_execute_confirmation" yaml:"require_execute_confirmation"`
}

// UIConfig holds presentation preferences for the chat widget.
type UIConfig struct {
	Collapsed bool   `mapstructure:"collapsed" yaml:"collapsed"`
	Position  string `mapstructure:"position" yaml:"position"` // "bottom" or "top"
	Markdown  bool   `mapstructure:"markdown" yaml:"markdown"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"` // used in interactive mode
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:               "http://localhost:3000/api",
			IdentityHeader:        "X-User-Id",
			TimeoutSeconds:        60,
			HealthPath:            "/health",
			HealthIntervalSeconds: 30,
		},
		Attachments: AttachmentsConfig{
			MaxTextBytes: 1 << 20,
		},
		Tools: ToolsConfig{
			RequireExecuteConfirmation: true,
		},
		UI: UIConfig{
			Position: "bottom",
			Markdown: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "agentdesk.log",
		},
	}
}

// Timeout returns the gateway request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// HealthInterval returns the health polling interval.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Gateway.HealthIntervalSeconds) * time.Second
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		return errors.New("gateway.base_url is required")
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		return fmt.Errorf("gateway.timeout_seconds must be positive, got %d", c.Gateway.TimeoutSeconds)
	}
	if c.Attachments.MaxTextBytes <= 0 {
		return fmt.Errorf("attachments.max_text_bytes must be positive, got %d", c.Attachments.MaxTextBytes)
	}
	switch c.UI.Position {
	case "", "top", "bottom":
	default:
		return fmt.Errorf("ui.position must be top or bottom, got %q", c.UI.Position)
	}
	return nil
}

// newViper returns a viper instance seeded with defaults and env overrides.
func newViper() *viper.Viper {
	v := viper.New()
	def := DefaultConfig()

	v.SetDefault("gateway.base_url", def.Gateway.BaseURL)
	v.SetDefault("gateway.token", def.Gateway.Token)
	v.SetDefault("gateway.user_id", def.Gateway.UserID)
	v.SetDefault("gateway.identity_header", def.Gateway.IdentityHeader)
	v.SetDefault("gateway.timeout_seconds", def.Gateway.TimeoutSeconds)
	v.SetDefault("gateway.health_path", def.Gateway.HealthPath)
	v.SetDefault("gateway.health_interval_seconds", def.Gateway.HealthIntervalSeconds)
	v.SetDefault("attachments.max_text_bytes", def.Attachments.MaxTextBytes)
	v.SetDefault("tools.require_execute_confirmation", def.Tools.RequireExecuteConfirmation)
	v.SetDefault("ui.collapsed", def.UI.Collapsed)
	v.SetDefault("ui.position", def.UI.Position)
	v.SetDefault("ui.markdown", def.UI.Markdown)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.file", def.Logging.File)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Load reads configuration from path. Environment overrides apply on top.
func Load(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

func load(path string) (*Config, *viper.Viper, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// LoadFromPaths loads the first existing file among paths, then
// ~/.agentdesk/config.yaml. With no file present, defaults plus environment
// overrides are returned and the path is empty.
func LoadFromPaths(paths ...string) (*Config, string, error) {
	candidates := append([]string{}, paths...)
	if dir, err := Dir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}

	cfg, err := decode(newViper())
	return cfg, "", err
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".agentdesk"), nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Redacted returns a copy safe for display.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Gateway.Token != "" {
		cp.Gateway.Token = "********"
	}
	return &cp
}

// Watch reloads path on every write and hands the new config to onChange.
// Invalid intermediate files are reported through onError and skipped.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	_, v, err := load(path)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
