package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Datatrak  UpstreamConfig  `mapstructure:"datatrak"`
	Traccar   UpstreamConfig  `mapstructure:"traccar"`
	Map       MapConfig       `mapstructure:"map"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// DatabaseConfig points at the tracking server's postgres database.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UpstreamConfig describes a REST dependency. Token is sent as a bearer
// token, APIKey as the key query parameter; either may be empty.
type UpstreamConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Token   string `mapstructure:"token"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

func (u UpstreamConfig) TimeoutDuration() time.Duration {
	return time.Duration(u.Timeout) * time.Second
}

// MapConfig tunes map sessions.
type MapConfig struct {
	Timezone        string  `mapstructure:"timezone"`
	DesktopWidth    int     `mapstructure:"desktop_width"`
	HitRadiusMeters float64 `mapstructure:"hit_radius_meters"`
	CacheTTL        int     `mapstructure:"cache_ttl"`     // seconds
	PollInterval    int     `mapstructure:"poll_interval"` // seconds
	PollBatch       int     `mapstructure:"poll_batch"`
}

// Location loads the configured timezone.
func (m MapConfig) Location() (*time.Location, error) {
	return time.LoadLocation(m.Timezone)
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "traccar")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "traccar")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("datatrak.base_url", "http://localhost:8081/api")
	v.SetDefault("datatrak.timeout", 10)
	v.SetDefault("traccar.base_url", "http://localhost:8082")
	v.SetDefault("traccar.timeout", 10)
	v.SetDefault("map.timezone", "Europe/London")
	v.SetDefault("map.desktop_width", 900)
	v.SetDefault("map.hit_radius_meters", 30)
	v.SetDefault("map.cache_ttl", 60)
	v.SetDefault("map.poll_interval", 5)
	v.SetDefault("map.poll_batch", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: MANIFESTMAP_DATATRAK_BASE_URL → datatrak.base_url
	v.SetEnvPrefix("MANIFESTMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Datatrak.BaseURL == "" {
		errs = append(errs, "datatrak.base_url is required")
	}
	if c.Traccar.BaseURL == "" {
		errs = append(errs, "traccar.base_url is required")
	}
	if _, err := c.Map.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("map.timezone %q: %v", c.Map.Timezone, err))
	}
	if c.Map.DesktopWidth <= 0 {
		errs = append(errs, "map.desktop_width must be positive")
	}
	if c.Map.HitRadiusMeters <= 0 {
		errs = append(errs, "map.hit_radius_meters must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}
	if c.Map.PollInterval <= 0 {
		errs = append(errs, "map.poll_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
