package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TINYLINK"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	App     AppConfig     `mapstructure:"app"`
	Log     LogConfig     `mapstructure:"log"`
	Storage StorageConfig `mapstructure:"storage"`
	Links   LinksConfig   `mapstructure:"links"`

	// Optional backends, all disabled by default.
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type AppConfig struct {
	Env     string `mapstructure:"env"`
	BaseURL string `mapstructure:"base_url"`
}

// IsDevelopment reports whether the process runs outside production.
func (c AppConfig) IsDevelopment() bool {
	return c.Env != "production"
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// StorageConfig locates the registry snapshot and the click-log partitions.
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	LinksFile string `mapstructure:"links_file"`
	ClicksDir string `mapstructure:"clicks_dir"`
}

type LinksConfig struct {
	CodeLength          int `mapstructure:"code_length"`
	ListLimit           int `mapstructure:"list_limit"`
	MaxGenerateAttempts int `mapstructure:"max_generate_attempts"`
	ExpectedLinks       int `mapstructure:"expected_links"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	MaxRequests int    `mapstructure:"max_requests"`
	Window      string `mapstructure:"window"`
}

// WindowDuration parses Window, e.g. "1m".
func (c RateLimitConfig) WindowDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Window)
	if err != nil {
		return 0, fmt.Errorf("config: rate_limit.window: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: rate_limit.window must be positive, got %s", c.Window)
	}
	return d, nil
}

type NATSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads .env, config.yaml (from . or ./config) and the environment.
func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	return LoadFrom(".", "./config")
}

// LoadFrom is Load without the .env step, searching only the given directories.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Storage.DataDir == "" {
		return errors.New("config: storage.data_dir must not be empty")
	}
	if c.Links.CodeLength <= 0 {
		return fmt.Errorf("config: links.code_length must be positive, got %d", c.Links.CodeLength)
	}
	if c.Links.MaxGenerateAttempts <= 0 {
		return fmt.Errorf("config: links.max_generate_attempts must be positive, got %d", c.Links.MaxGenerateAttempts)
	}
	if c.Redis.Enabled {
		if _, err := c.RateLimit.WindowDuration(); err != nil {
			return err
		}
	}
	c.App.BaseURL = strings.TrimRight(c.App.BaseURL, "/")
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8083")

	v.SetDefault("app.env", "development")
	v.SetDefault("app.base_url", "http://localhost:8083")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "")

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.links_file", "links.json")
	v.SetDefault("storage.clicks_dir", "clicks")

	v.SetDefault("links.code_length", 6)
	v.SetDefault("links.list_limit", 50)
	v.SetDefault("links.max_generate_attempts", 1_000_000)
	v.SetDefault("links.expected_links", 100_000)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.max_requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.host", "localhost")
	v.SetDefault("nats.port", 4222)
	v.SetDefault("nats.user", "")
	v.SetDefault("nats.password", "")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "tinylink")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_conns", 4)

	v.SetDefault("prometheus.enabled", false)
	v.SetDefault("prometheus.port", 9090)
}

func bindEnvVars(v *viper.Viper) {
	// Names used by earlier deployments.
	v.BindEnv("storage.data_dir", "TINYLINK_DATA_DIR")
	v.BindEnv("app.base_url", "TINYLINK_BASE_URL")
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("log.level", "LOG_LEVEL")

	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")

	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
}
