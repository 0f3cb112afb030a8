package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultWorkers       = 2
	defaultDecodeTimeout = 40 * time.Second
)

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Storage  StorageConfig `yaml:"storage"`
	Import   ImportConfig  `yaml:"import"`
	Tags     TagsConfig    `yaml:"tags"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DatabasePath string `yaml:"databasePath"`
	MaxPoints    int    `yaml:"maxPoints"` // downsampling threshold for reads
}

// ImportConfig represents import pipeline settings
type ImportConfig struct {
	Workers           int `yaml:"workers"`           // concurrent file parsers
	DecodeTimeoutSecs int `yaml:"decodeTimeoutSecs"` // binary decode budget
}

// TagsConfig represents smart tag settings
type TagsConfig struct {
	DisabledRules []string `yaml:"disabledRules"`
}

func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Storage:  StorageConfig{DatabasePath: "flightlog.sqlite"},
		Import:   ImportConfig{Workers: defaultWorkers},
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration file: %w", err)
	}
	return config, nil
}

func (c *Config) DecodeTimeout() time.Duration {
	if c.Import.DecodeTimeoutSecs <= 0 {
		return defaultDecodeTimeout
	}
	return time.Duration(c.Import.DecodeTimeoutSecs) * time.Second
}

func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Settings.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
