// Package config loads pmgrid settings from a YAML file, PMGRID_*
// environment variables and defaults, in increasing order of precedence:
// defaults < file < environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PMGRID_REDIS_ADDR.
const EnvPrefix = "PMGRID"

// Feed sources.
const (
	SourceBroker = "broker"
	SourceRedis  = "redis"
)

// Config holds all configuration values.
type Config struct {
	Database     string        `mapstructure:"database" validate:"required"`
	PropertyID   string        `mapstructure:"property_id"`
	Debounce     time.Duration `mapstructure:"debounce" validate:"gt=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	// Rollover is the cron spec that advances the rolling window.
	Rollover string `mapstructure:"rollover" validate:"required"`

	Feed        FeedConfig        `mapstructure:"feed"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Resubscribe ResubscribeConfig `mapstructure:"resubscribe"`
	Window      WindowConfig      `mapstructure:"window"`
}

// FeedConfig selects the change feed transport.
type FeedConfig struct {
	Source string `mapstructure:"source" validate:"oneof=broker redis"`
}

// RedisConfig is used when the feed source is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0,max=15"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// ResubscribeConfig limits how often watch reconnects a failed feed.
type ResubscribeConfig struct {
	Every time.Duration `mapstructure:"every" validate:"gt=0"`
	Burst int           `mapstructure:"burst" validate:"min=1"`
}

// WindowConfig sets the default grid window.
type WindowConfig struct {
	Days int `mapstructure:"days" validate:"min=1,max=366"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database", "pmgrid.db")
	v.SetDefault("property_id", "")
	v.SetDefault("debounce", "500ms")
	v.SetDefault("poll_interval", "30s")
	v.SetDefault("rollover", "0 0 * * *")
	v.SetDefault("feed.source", SourceBroker)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("resubscribe.every", "5s")
	v.SetDefault("resubscribe.burst", 3)
	v.SetDefault("window.days", 14)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (or ./pmgrid.yaml when path is empty and the file
// exists), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("pmgrid")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field constraint and reports all violations.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
