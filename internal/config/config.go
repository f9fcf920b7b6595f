// Package config loads slipuart settings from flags, environment and an
// optional YAML file.
//
// Precedence, highest first: command-line flags, SLIPUART_* environment
// variables, the config file, built-in defaults. Nested keys map to
// environment names with "." and "-" replaced by "_", e.g.
// SLIPUART_LOG_LEVEL=debug.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bigbag/slipuart/internal/logger"
	"github.com/bigbag/slipuart/internal/uart"
)

// Config is the CLI configuration.
type Config struct {
	Port    string        `mapstructure:"port"`
	Baud    int           `mapstructure:"baud"`
	Flow    bool          `mapstructure:"flow"`
	Parity  bool          `mapstructure:"parity"`
	Chunk   int           `mapstructure:"chunk"`
	Timeout time.Duration `mapstructure:"timeout"`
	Log     LogConfig     `mapstructure:"log"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// File, when set, receives logs instead of stderr.
	File     string         `mapstructure:"file"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig controls rotation of the log file.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Baud:    uart.DefaultBaudRate,
		Chunk:   uart.DefaultChunkSize,
		Timeout: 30 * time.Second,
		Log: LogConfig{
			Level: "warn",
			Rotation: RotationConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":      "port",
	"baud":      "baud",
	"flow":      "flow",
	"parity":    "parity",
	"chunk":     "chunk",
	"timeout":   "timeout",
	"log-level": "log.level",
	"log-file":  "log.file",
}

// Load reads the file at path, or searches ./slipuart.yaml and
// ~/.config/slipuart/slipuart.yaml when path is empty. A missing file is not
// an error. Flags that were set on the command line override everything.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SLIPUART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", cfg.Port)
	v.SetDefault("baud", cfg.Baud)
	v.SetDefault("flow", cfg.Flow)
	v.SetDefault("parity", cfg.Parity)
	v.SetDefault("chunk", cfg.Chunk)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path == "" {
		path = os.Getenv("SLIPUART_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("slipuart")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "slipuart"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud: %d", c.Baud)
	}
	if c.Chunk < 1 || c.Chunk > uart.MaxChunkSize {
		return fmt.Errorf("invalid chunk: %d (1..%d)", c.Chunk, uart.MaxChunkSize)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s", c.Timeout)
	}
	return nil
}

// Options returns the transport options for c.
func (c *Config) Options() []uart.Option {
	return []uart.Option{
		uart.WithBaudRate(c.Baud),
		uart.WithFlowControl(c.Flow),
		uart.WithParity(c.Parity),
		uart.WithChunkSize(c.Chunk),
	}
}
