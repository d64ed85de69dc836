package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"creator-automation/backend/internal/engine"
	"creator-automation/backend/internal/services"
)

// Config holds the configuration for the application.
type Config struct {
	Environment string `mapstructure:"environment"`
	Server      struct {
		Address         string        `mapstructure:"address"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	DB struct {
		Enable   bool   `mapstructure:"enable"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Auth struct {
		OktaDomain    string `mapstructure:"okta_domain"`
		ClientID      string `mapstructure:"client_id"`
		ClientSecret  string `mapstructure:"client_secret"`
		RedirectURL   string `mapstructure:"redirect_url"`
		DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	} `mapstructure:"auth"`
	Engine struct {
		MaxConcurrentWorkflows int           `mapstructure:"max_concurrent_workflows"`
		Retention              time.Duration `mapstructure:"retention"`
		SweepSchedule          string        `mapstructure:"sweep_schedule"`
		ShutdownTimeout        time.Duration `mapstructure:"shutdown_timeout"`
		MaxTriggerDepth        int           `mapstructure:"max_trigger_depth"`
		ActionTimeout          time.Duration `mapstructure:"action_timeout"`
		SeedDefaults           bool          `mapstructure:"seed_defaults"`
		DefinitionsFile        string        `mapstructure:"definitions_file"`
	} `mapstructure:"engine"`
	Services struct {
		Endpoints       map[string]string `mapstructure:"endpoints"`
		MetricsURL      string            `mapstructure:"metrics_url"`
		RequestTimeout  time.Duration     `mapstructure:"request_timeout"`
		RateLimit       float64           `mapstructure:"rate_limit"`
		Burst           int               `mapstructure:"burst"`
		BreakerFailures uint32            `mapstructure:"breaker_failures"`
		BreakerTimeout  time.Duration     `mapstructure:"breaker_timeout"`
	} `mapstructure:"services"`
	Redis struct {
		Enable   bool   `mapstructure:"enable"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Channel  string `mapstructure:"channel"`
	} `mapstructure:"redis"`
	Metrics struct {
		Enable bool   `mapstructure:"enable"`
		Path   string `mapstructure:"path"`
	} `mapstructure:"metrics"`
}

// LoadConfig loads the configuration from a file and the environment. An
// empty configFile searches for config.yaml in . and ./config; a missing
// file is not an error.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	def := engine.DefaultConfig()

	v.SetDefault("environment", "development")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("db.enable", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "automation")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("engine.max_concurrent_workflows", def.MaxConcurrentWorkflows)
	v.SetDefault("engine.retention", def.Retention)
	v.SetDefault("engine.sweep_schedule", def.SweepSchedule)
	v.SetDefault("engine.shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("engine.max_trigger_depth", def.MaxTriggerDepth)
	v.SetDefault("engine.action_timeout", def.ActionTimeout)
	v.SetDefault("engine.seed_defaults", def.SeedDefaults)
	v.SetDefault("engine.definitions_file", "")
	v.SetDefault("auth.okta_domain", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.redirect_url", "")
	v.SetDefault("auth.dev_mode_bypass", false)
	v.SetDefault("services.metrics_url", "")
	v.SetDefault("services.request_timeout", 10*time.Second)
	v.SetDefault("services.rate_limit", 20.0)
	v.SetDefault("services.burst", 5)
	v.SetDefault("services.breaker_failures", 5)
	v.SetDefault("services.breaker_timeout", 30*time.Second)
	v.SetDefault("redis.enable", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "creator-platform:events")
	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

// EngineConfig maps the engine section onto engine.Config.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		MaxConcurrentWorkflows: c.Engine.MaxConcurrentWorkflows,
		Retention:              c.Engine.Retention,
		SweepSchedule:          c.Engine.SweepSchedule,
		ShutdownTimeout:        c.Engine.ShutdownTimeout,
		MaxTriggerDepth:        c.Engine.MaxTriggerDepth,
		ActionTimeout:          c.Engine.ActionTimeout,
		SeedDefaults:           c.Engine.SeedDefaults,
	}
}

// DispatcherConfig maps the services section onto services.DispatcherConfig.
func (c *Config) DispatcherConfig() services.DispatcherConfig {
	return services.DispatcherConfig{
		Endpoints:       c.Services.Endpoints,
		RateLimit:       c.Services.RateLimit,
		Burst:           c.Services.Burst,
		BreakerFailures: c.Services.BreakerFailures,
		BreakerTimeout:  c.Services.BreakerTimeout,
	}
}

// DSN returns the PostgreSQL connection string for the db section.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": {c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

// normalizeOktaIssuer ensures the provided Okta issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact.
func normalizeOktaIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
