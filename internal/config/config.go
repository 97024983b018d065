package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"alphafeed/internal/logging"
)

// EnvironmentProduction disables development-only endpoints.
const EnvironmentProduction = "production"

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Server    ServerConfig    `mapstructure:"server"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Retention RetentionConfig `mapstructure:"retention"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// IsProduction reports whether the service runs in production mode.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Environment, EnvironmentProduction)
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// FeedConfig describes the upstream news websocket.
type FeedConfig struct {
	URL              string        `mapstructure:"url"`
	BaseBackoff      time.Duration `mapstructure:"base_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// ServerConfig governs the HTTP and websocket listener.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	PeerBuffer        int           `mapstructure:"peer_buffer"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

// RulesConfig controls the active-rules snapshot.
type RulesConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// RetentionConfig prunes stored news. A zero NewsMaxAge keeps everything.
type RetentionConfig struct {
	NewsMaxAge time.Duration `mapstructure:"news_max_age"`
	Interval   time.Duration `mapstructure:"interval"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram notification channel.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Bucket        time.Duration `mapstructure:"bucket"`
	MaxDataPoints int           `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ALPHAFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "alphafeed")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Every key needs a default so AutomaticEnv can override it.
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("feed.url", "wss://news.treeofalpha.com/ws")
	v.SetDefault("feed.base_backoff", "1s")
	v.SetDefault("feed.max_backoff", "60s")
	v.SetDefault("feed.handshake_timeout", "10s")

	v.SetDefault("server.addr", ":4000")
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.peer_buffer", 64)
	v.SetDefault("server.write_wait", "10s")
	v.SetDefault("server.pong_wait", "60s")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("rules.refresh_interval", "1m")

	v.SetDefault("retention.news_max_age", "0s")
	v.SetDefault("retention.interval", "1h")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.bucket", "1h")
	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if u, err := url.Parse(c.Feed.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("feed.url must be a ws:// or wss:// url")
	}
	if c.Feed.BaseBackoff <= 0 {
		return fmt.Errorf("feed.base_backoff must be greater than zero")
	}
	if c.Feed.MaxBackoff < c.Feed.BaseBackoff {
		return fmt.Errorf("feed.max_backoff must not be below feed.base_backoff")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.PeerBuffer <= 0 {
		return fmt.Errorf("server.peer_buffer must be greater than zero")
	}
	if c.Server.PongWait <= 0 || c.Server.WriteWait <= 0 {
		return fmt.Errorf("server.pong_wait and server.write_wait must be greater than zero")
	}
	if c.Rules.RefreshInterval <= 0 {
		return fmt.Errorf("rules.refresh_interval must be greater than zero")
	}
	if c.Retention.NewsMaxAge < 0 {
		return fmt.Errorf("retention.news_max_age cannot be negative")
	}
	if c.Retention.NewsMaxAge > 0 && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be greater than zero when retention is enabled")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Export.Bucket <= 0 {
		return fmt.Errorf("export.bucket must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ResolveBucket returns either the CLI override or config default.
func (c *Config) ResolveBucket(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return c.Export.Bucket
}
