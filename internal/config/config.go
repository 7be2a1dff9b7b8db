package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tejusbharadwaj/eloverblik/pkg/eloverblik"
)

// Config holds all configuration for our application
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type APIConfig struct {
	RefreshToken   string        `mapstructure:"refresh_token"`
	Preproduction  bool          `mapstructure:"preproduction"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

type SyncConfig struct {
	MeteringPoints []string `mapstructure:"metering_points"`
	IncludeAll     bool     `mapstructure:"include_all"`
	Aggregation    string   `mapstructure:"aggregation"`
	MeterReadings  bool     `mapstructure:"meter_readings"`
	LookbackDays   int      `mapstructure:"lookback_days"`
	Schedule       string   `mapstructure:"schedule"`
}

type ServerConfig struct {
	Port           int     `mapstructure:"port"`
	Host           string  `mapstructure:"host"`
	MetricsPort    int     `mapstructure:"metrics_port"`
	CacheSize      int     `mapstructure:"cache_size"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Name              string `mapstructure:"name"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	SSLMode           string `mapstructure:"ssl_mode"`
	MaxConnections    int    `mapstructure:"max_connections"`
	ConnectionTimeout int    `mapstructure:"connection_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
//
// ${VAR} references in the file are expanded first. Any key can then be
// overridden with an ELOVERBLIK_ prefixed variable, e.g.
// ELOVERBLIK_API_REFRESH_TOKEN or ELOVERBLIK_DATABASE_HOST.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// First unmarshal into a map to handle type conversions
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
	}

	// Convert the map to YAML again
	data, err = yaml.Marshal(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw config: %w", err)
	}

	// Expand environment variables
	expandedData := os.ExpandEnv(string(data))

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ELOVERBLIK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewBufferString(expandedData)); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.refresh_token", "")
	v.SetDefault("api.preproduction", false)
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", 60*time.Second)
	v.SetDefault("api.rate_limit", 1.0)
	v.SetDefault("api.rate_limit_burst", 2)

	v.SetDefault("sync.metering_points", []string{})
	v.SetDefault("sync.include_all", false)
	v.SetDefault("sync.aggregation", string(eloverblik.Hour))
	v.SetDefault("sync.meter_readings", true)
	v.SetDefault("sync.lookback_days", 7)
	v.SetDefault("sync.schedule", "0 6 * * *")

	v.SetDefault("server.port", 50051)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.cache_size", 1000)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "eloverblik")
	v.SetDefault("database.user", "eloverblik")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.connection_timeout", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.API.RefreshToken == "" {
		errs = append(errs, "api.refresh_token is required")
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("api.rate_limit cannot be negative, got: %v", c.API.RateLimit))
	}
	if _, err := eloverblik.ParseAggregation(c.Sync.Aggregation); err != nil {
		errs = append(errs, fmt.Sprintf("sync.aggregation: %v", err))
	}
	for i, id := range c.Sync.MeteringPoints {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, fmt.Sprintf("sync.metering_points[%d] is empty", i))
		}
	}
	// The API serves at most 730 days per request.
	if c.Sync.LookbackDays < 1 || c.Sync.LookbackDays > 730 {
		errs = append(errs, fmt.Sprintf("sync.lookback_days must be between 1 and 730, got: %d", c.Sync.LookbackDays))
	}
	if c.Sync.Schedule == "" {
		errs = append(errs, "sync.schedule is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1-65535, got: %d", c.Server.Port))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.metrics_port must be between 0-65535, got: %d", c.Server.MetricsPort))
	}
	if c.Server.CacheSize < 1 {
		errs = append(errs, fmt.Sprintf("server.cache_size must be positive, got: %d", c.Server.CacheSize))
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Sprintf("logging.level: %v", err))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Sprintf("logging.format must be json or text, got: %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParsedAggregation returns the sync aggregation. Call Validate first.
func (s SyncConfig) ParsedAggregation() eloverblik.Aggregation {
	agg, _ := eloverblik.ParseAggregation(s.Aggregation)
	return agg
}

// ConnectionString builds a lib/pq key=value connection string.
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode, d.ConnectionTimeout,
	)
}

// NewLogger builds the structured logger described by the logging section.
func (l LoggingConfig) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if l.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}
