package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Pushover PushoverConfig `mapstructure:"pushover"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type StorageConfig struct {
	Driver   string `mapstructure:"driver"` // json or sqlite
	FilePath string `mapstructure:"file_path"`
	DSN      string `mapstructure:"dsn"`
}

type ScheduleConfig struct {
	Key       string `mapstructure:"key"`
	Recurring bool   `mapstructure:"recurring"`
}

type PushoverConfig struct {
	RatePerSec int `mapstructure:"rate_per_sec"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("storage.driver", "json")
	v.SetDefault("storage.file_path", "data/store.json")
	v.SetDefault("storage.dsn", "data/store.db")
	v.SetDefault("schedule.key", "ScheduledEvent")
	v.SetDefault("schedule.recurring", true)
	v.SetDefault("pushover.rate_per_sec", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("ALARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads path, falling back to defaults when the file does not
// exist. ALARM_* environment variables override file values.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

func load(path string) (*Config, *viper.Viper, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !asNotFound(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, v, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("invalid config: storage.driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid config: log.format %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Server.Port == "" {
		return fmt.Errorf("invalid config: server.port is required")
	}
	return nil
}

// Watch calls fn with the reloaded config whenever the file changes. Invalid
// edits are logged and skipped.
func Watch(path string, fn func(*Config, fsnotify.Event)) error {
	_, v, err := load(path)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(ev fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			slog.Error("Failed to decode reloaded config", "error", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			slog.Error("Ignoring invalid config change", "error", err)
			return
		}
		fn(&cfg, ev)
	})
	v.WatchConfig()
	return nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid config: log.level %q", s)
	}
	return level, nil
}

func asNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	if errors.As(err, target) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}
