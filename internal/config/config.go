// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	HistoryPath  string `yaml:"historyPath"`
	HistoryLimit int    `yaml:"historyLimit"`

	SweepIntervalMs int64 `yaml:"sweepIntervalMs"`
	MinTTLMs        int64 `yaml:"minTtlMs"`
	MinSyncMs       int64 `yaml:"minSyncMs"`
	BaseSyncMs      int64 `yaml:"baseSyncMs"`

	Source string `yaml:"source"`
}

// Load reads a YAML config file and fills in defaults for missing
// fields.
func Load(path string) (Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return withDefaults(config), nil
}

// Default returns the built-in defaults, used when no config file is
// given.
func Default() Config {
	return withDefaults(Config{})
}

func withDefaults(config Config) Config {
	if config.HistoryPath == "" {
		config.HistoryPath = "ghostbridge-history"
	}
	if config.HistoryLimit == 0 {
		config.HistoryLimit = 1000
	}
	if config.SweepIntervalMs == 0 {
		config.SweepIntervalMs = 1000
	}
	if config.MinTTLMs == 0 {
		config.MinTTLMs = 100
	}
	if config.MinSyncMs == 0 {
		config.MinSyncMs = 250
	}
	if config.BaseSyncMs == 0 {
		config.BaseSyncMs = 5000
	}
	if config.Source == "" {
		config.Source = "ghost-local"
	}
	return config
}
