package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, 8080, config.HTTP.Port)
	assert.Equal(t, "Admin", config.Chat.SystemName)
	assert.Equal(t, "Welcome!", config.Chat.WelcomeText)
	assert.Equal(t, []string{"*"}, config.WebSocket.AllowedOrigins)
	assert.Greater(t, config.WebSocket.PongTimeout, config.WebSocket.PingInterval)
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "port too high", mutate: func(c *Config) { c.HTTP.Port = 70000 }, field: "Config.HTTP.Port"},
		{name: "port zero", mutate: func(c *Config) { c.HTTP.Port = 0 }, field: "Config.HTTP.Port"},
		{name: "empty database path", mutate: func(c *Config) { c.Database.Path = "" }, field: "Config.Database.Path"},
		{name: "negative retry", mutate: func(c *Config) { c.Database.RetryDelay = -time.Second }, field: "Config.Database.RetryDelay"},
		{name: "pong shorter than ping", mutate: func(c *Config) { c.WebSocket.PongTimeout = time.Second }, field: "Config.WebSocket.PongTimeout"},
		{name: "blank origin", mutate: func(c *Config) { c.WebSocket.AllowedOrigins = []string{""} }, field: "Config.WebSocket.AllowedOrigins[0]"},
		{name: "empty system name", mutate: func(c *Config) { c.Chat.SystemName = "" }, field: "Config.Chat.SystemName"},
		{name: "bad map url", mutate: func(c *Config) { c.Chat.MapBaseURL = "not a url" }, field: "Config.Chat.MapBaseURL"},
		{name: "negative rate limit", mutate: func(c *Config) { c.Chat.RateLimitPerMinute = -1 }, field: "Config.Chat.RateLimitPerMinute"},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "loud" }, field: "Config.Log.Level"},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, field: "Config.Log.Format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_ZeroRateLimitIsAllowed(t *testing.T) {
	config := DefaultConfig()
	config.Chat.RateLimitPerMinute = 0
	assert.NoError(t, config.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHATRELAY_HTTP_PORT", "9090")
	t.Setenv("CHATRELAY_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("CHATRELAY_WEBSOCKET_PING_INTERVAL", "15s")
	t.Setenv("CHATRELAY_CHAT_CENSORED_WORDS", "darn,heck")
	t.Setenv("CHATRELAY_CHAT_RATE_LIMIT_PER_MINUTE", "0")

	config, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9090, config.HTTP.Port)
	assert.Equal(t, "/tmp/test.db", config.Database.Path)
	assert.Equal(t, 15*time.Second, config.WebSocket.PingInterval)
	assert.Equal(t, []string{"darn", "heck"}, config.Chat.CensoredWords)
	assert.Equal(t, 0, config.Chat.RateLimitPerMinute)

	// Untouched settings keep their defaults.
	assert.Equal(t, "0.0.0.0", config.HTTP.Host)
	assert.Equal(t, "Admin", config.Chat.SystemName)
}

func TestLoadFromEnv_MalformedValue(t *testing.T) {
	t.Setenv("CHATRELAY_HTTP_PORT", "not-a-number")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
http:
  port: 9191
  read_timeout: 45s
websocket:
  allowed_origins:
    - https://chat.example.com
chat:
  welcome_text: Hello there!
  censored_words: [darn]
log:
  format: json
`)

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, config.HTTP.Port)
	assert.Equal(t, 45*time.Second, config.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, config.HTTP.WriteTimeout)
	assert.Equal(t, []string{"https://chat.example.com"}, config.WebSocket.AllowedOrigins)
	assert.Equal(t, "Hello there!", config.Chat.WelcomeText)
	assert.Equal(t, []string{"darn"}, config.Chat.CensoredWords)
	assert.Equal(t, "json", config.Log.Format)
	assert.Equal(t, "Admin", config.Chat.SystemName)
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{"http": {"port": 7070}, "database": {"path": "/var/lib/relay.db"}}`)

	config, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, config.HTTP.Port)
	assert.Equal(t, "/var/lib/relay.db", config.Database.Path)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeConfigFile(t, "broken.yaml", "http: [unclosed"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeConfigFile(t, "invalid.yaml", "http:\n  port: 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.HTTP.Port")
}

func TestLoadFromFile_EmptyFileUsesDefaults(t *testing.T) {
	config, err := LoadFromFile(writeConfigFile(t, "empty.yaml", "\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("CHATRELAY_HTTP_PORT", "9090")
	t.Setenv("CHATRELAY_HTTP_HOST", "127.0.0.1")

	path := writeConfigFile(t, "config.yaml", "http:\n  port: 9999\n")

	config, err := LoadConfigWithPrecedence(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, config.HTTP.Port, "file wins over environment")
	assert.Equal(t, "127.0.0.1", config.HTTP.Host, "environment wins over defaults")
	assert.Equal(t, 30*time.Second, config.HTTP.ReadTimeout, "defaults fill the rest")
}

func TestLoadConfigWithPrecedence_NoFile(t *testing.T) {
	t.Setenv("CHATRELAY_CHAT_SYSTEM_NAME", "Relay")

	config, err := LoadConfigWithPrecedence("")
	require.NoError(t, err)
	assert.Equal(t, "Relay", config.Chat.SystemName)
}

func TestLoadConfigWithPrecedence_MissingFile(t *testing.T) {
	_, err := LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "room", "lobby")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"room":"lobby"`)
}

func TestLogConfig_ParseLevel(t *testing.T) {
	level, err := LogConfig{Level: "debug"}.ParseLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = LogConfig{Level: "loud"}.ParseLevel()
	assert.Error(t, err)

	_, err = LogConfig{Level: "info", Format: "xml"}.NewLogger(&bytes.Buffer{})
	assert.Error(t, err)
}
