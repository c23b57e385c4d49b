package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable, e.g. CHATRELAY_HTTP_PORT.
const EnvPrefix = "CHATRELAY"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds every runtime setting of the relay.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	HTTP      HTTPConfig      `yaml:"http" envconfig:"HTTP"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Chat      ChatConfig      `yaml:"chat" envconfig:"CHAT"`
	Log       LogConfig       `yaml:"log" envconfig:"LOG"`
}

// DatabaseConfig locates the presence audit store.
type DatabaseConfig struct {
	Path           string        `yaml:"path" split_words:"true" validate:"required"`
	MaxConnections int           `yaml:"max_connections" split_words:"true" validate:"gt=0"`
	RetryDelay     time.Duration `yaml:"retry_delay" split_words:"true" validate:"gte=0"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" split_words:"true" validate:"required"`
	Port            int           `yaml:"port" split_words:"true" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" validate:"gt=0"`
}

// WebSocketConfig covers the heartbeat and frame limits of client sockets.
// The pong timeout must outlast the ping interval or idle clients are cut.
type WebSocketConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins" split_words:"true" validate:"dive,required"`
	MaxMessageSize int64         `yaml:"max_message_size" split_words:"true" validate:"gt=0"`
	PingInterval   time.Duration `yaml:"ping_interval" split_words:"true" validate:"gt=0"`
	PongTimeout    time.Duration `yaml:"pong_timeout" split_words:"true" validate:"gtfield=PingInterval"`
	WriteTimeout   time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true" validate:"gt=0"`
}

// ChatConfig holds the room behaviour: system sender, moderation and
// flood control. A RateLimitPerMinute of zero turns the limiter off.
type ChatConfig struct {
	SystemName         string   `yaml:"system_name" split_words:"true" validate:"required"`
	WelcomeText        string   `yaml:"welcome_text" split_words:"true" validate:"required"`
	MapBaseURL         string   `yaml:"map_base_url" split_words:"true" validate:"required,url"`
	CensoredWords      []string `yaml:"censored_words" split_words:"true"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute" split_words:"true" validate:"gte=0"`
	PresenceBuffer     int      `yaml:"presence_buffer" split_words:"true" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" split_words:"true" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" split_words:"true" validate:"oneof=text json"`
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:           "./chatrelay.db",
			MaxConnections: 10,
			RetryDelay:     5 * time.Second,
		},
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: []string{"*"},
			MaxMessageSize: 64 * 1024,
			PingInterval:   30 * time.Second,
			PongTimeout:    60 * time.Second,
			WriteTimeout:   5 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Chat: ChatConfig{
			SystemName:         "Admin",
			WelcomeText:        "Welcome!",
			MapBaseURL:         "https://google.com/maps",
			RateLimitPerMinute: 100,
			PresenceBuffer:     1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks every section against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// LoadFromEnv applies CHATRELAY_* variables over the defaults. Unset
// variables keep their default value; malformed ones are an error.
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) error {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// LoadFromFile reads a YAML (or JSON) file over the defaults and validates the
// result. Keys missing from the file keep their default value.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadConfigWithPrecedence layers file > environment > defaults. An empty
// path skips the file layer; a path that does not exist is an error.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := DefaultConfig()

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseLevel maps the configured level name to a slog level.
func (l LogConfig) ParseLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q: %w", l.Level, err)
	}
	return level, nil
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	if w == nil {
		return nil, errors.New("log writer is required")
	}
	level, err := l.ParseLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", l.Format)
	}
}
