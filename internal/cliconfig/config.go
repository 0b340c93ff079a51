// Package cliconfig loads settings for the chatlink command line client.
package cliconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/VladFo01/chatlink/chatlink"
	"github.com/VladFo01/chatlink/chatlink/zaplog"
)

// EnvPrefix is the prefix for environment overrides. A double underscore
// separates sections: CHATLINK_SERVER__WS_BASE_URL sets server.ws_base_url.
const EnvPrefix = "CHATLINK_"

// DefaultEnvFile is read when Load is given no env file.
const DefaultEnvFile = ".env"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Auth       AuthConfig       `koanf:"auth"`
	Connection ConnectionConfig `koanf:"connection"`
	Upload     UploadConfig     `koanf:"upload"`
	Logging    LoggingConfig    `koanf:"logging"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// ServerConfig holds the backend base URLs.
type ServerConfig struct {
	HTTPBaseURL string `koanf:"http_base_url"`
	WSBaseURL   string `koanf:"ws_base_url"`
}

// AuthConfig holds the stored credential.
type AuthConfig struct {
	Token    string `koanf:"token"`
	Username string `koanf:"username"`
}

// ConnectionConfig tunes the WebSocket transport.
type ConnectionConfig struct {
	HandshakeTimeout     time.Duration `koanf:"handshake_timeout"`
	WriteTimeout         time.Duration `koanf:"write_timeout"`
	PingInterval         time.Duration `koanf:"ping_interval"`
	ReconnectBaseDelay   time.Duration `koanf:"reconnect_base_delay"`
	MaxReconnectAttempts int           `koanf:"max_reconnect_attempts"`
}

// UploadConfig tunes the upload status poller.
type UploadConfig struct {
	PollInterval    time.Duration `koanf:"poll_interval"`
	MaxPollAttempts int           `koanf:"max_poll_attempts"`
	// Concurrency bounds parallel uploads in the upload command.
	Concurrency int `koanf:"concurrency"`
}

// LoggingConfig configures the file logger. The TUI owns stdout, so logs
// always go to a file.
type LoggingConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

// MetricsConfig enables a Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Load builds the configuration. Priority: environment variables >
// env file > config file > defaults. An empty configPath skips the file;
// a missing env file is ignored.
func Load(configPath, envFile string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

func defaultConfig() *Config {
	def := chatlink.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			HTTPBaseURL: "http://localhost:8000",
			WSBaseURL:   def.WSBaseURL,
		},
		Connection: ConnectionConfig{
			HandshakeTimeout:     def.HandshakeTimeout,
			WriteTimeout:         def.WriteTimeout,
			PingInterval:         def.PingInterval,
			ReconnectBaseDelay:   def.ReconnectBaseDelay,
			MaxReconnectAttempts: def.MaxReconnectAttempts,
		},
		Upload: UploadConfig{
			PollInterval:    2 * time.Second,
			MaxPollAttempts: 30,
			Concurrency:     4,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "chatlink.log",
		},
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if err := checkURL("server.http_base_url", c.Server.HTTPBaseURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("server.ws_base_url", c.Server.WSBaseURL, "ws", "wss", "http", "https"); err != nil {
		return err
	}
	if c.Connection.MaxReconnectAttempts < 0 {
		return fmt.Errorf("connection.max_reconnect_attempts must be >= 0, got %d", c.Connection.MaxReconnectAttempts)
	}
	if c.Connection.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("connection.reconnect_base_delay must be positive")
	}
	if c.Upload.PollInterval <= 0 {
		return fmt.Errorf("upload.poll_interval must be positive")
	}
	if c.Upload.MaxPollAttempts < 1 {
		return fmt.Errorf("upload.max_poll_attempts must be >= 1, got %d", c.Upload.MaxPollAttempts)
	}
	if c.Upload.Concurrency < 1 {
		return fmt.Errorf("upload.concurrency must be >= 1, got %d", c.Upload.Concurrency)
	}
	if _, err := zaplog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: %q must be an absolute %s URL", key, raw, strings.Join(schemes, "/"))
}

// ClientConfig converts the connection settings for chatlink.NewClient.
func (c *Config) ClientConfig() *chatlink.Config {
	cfg := chatlink.DefaultConfig()
	cfg.WSBaseURL = c.Server.WSBaseURL
	cfg.Token = c.Auth.Token
	cfg.HandshakeTimeout = c.Connection.HandshakeTimeout
	cfg.WriteTimeout = c.Connection.WriteTimeout
	cfg.PingInterval = c.Connection.PingInterval
	cfg.ReconnectBaseDelay = c.Connection.ReconnectBaseDelay
	cfg.MaxReconnectAttempts = c.Connection.MaxReconnectAttempts
	return &cfg
}
