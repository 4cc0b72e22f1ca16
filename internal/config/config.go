// Package config provides process configuration loading, validation, and
// defaults for the bot platform. Values come from defaults, an optional YAML
// file and BOT_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Telegram delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// ErrConfiguration wraps every loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config defines the process configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Bots      BotsConfig      `mapstructure:"bots"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// TelegramConfig controls how instances reach the Bot API.
type TelegramConfig struct {
	Mode          string        `mapstructure:"mode"           validate:"oneof=polling webhook"`
	BaseURL       string        `mapstructure:"base_url"       validate:"required_if=Mode webhook,omitempty,url"`
	ServerURL     string        `mapstructure:"server_url"     validate:"omitempty,url"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"   validate:"min=0"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
}

// DatabaseConfig enables persistence of bot configurations.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"    validate:"required_if=Enabled true"`
}

// RedisConfig enables the control queue consumer.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"     validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       validate:"min=0"`
	Queue    string `mapstructure:"queue"    validate:"required_if=Enabled true"`
}

type SchedulerConfig struct {
	Timezone string `mapstructure:"timezone" validate:"omitempty,timezone"`
}

// Location returns the configured timezone, or time.Local.
func (c SchedulerConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SignalConfig holds process-wide signal generator tuning. Per-bot values
// override it.
type SignalConfig struct {
	WarmUp      time.Duration `mapstructure:"warmup"       validate:"min=0"`
	StepDelay   time.Duration `mapstructure:"step_delay"   validate:"min=0"`
	RotateEvery int           `mapstructure:"rotate_every" validate:"min=1"`
}

// BotsConfig lists bot definitions created at boot.
type BotsConfig struct {
	Files []string `mapstructure:"files"`
}

// LoadConfig reads configuration from path (optional), applies BOT_*
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
			}
			slog.Info("Configuration file not found, using defaults", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

var defaults = map[string]any{
	"log.level": "info",
	"log.json":  false,

	"http.addr":             ":8080",
	"http.read_timeout":     15 * time.Second,
	"http.shutdown_timeout": 10 * time.Second,

	"telegram.mode":           ModePolling,
	"telegram.base_url":       "",
	"telegram.server_url":     "",
	"telegram.poll_timeout":   time.Minute,
	"telegram.webhook_secret": "",

	"database.enabled": false,
	"database.path":    "bots.db",

	"redis.enabled":  false,
	"redis.addr":     "localhost:6379",
	"redis.password": "",
	"redis.db":       0,
	"redis.queue":    "bots:control",

	"scheduler.timezone": "",

	"signal.warmup":       5 * time.Second,
	"signal.step_delay":   2 * time.Second,
	"signal.rotate_every": 4,

	"bots.files": []string{},
}
