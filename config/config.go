package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the optional TOML configuration file. Every field can also be
// set via command line flags or NANOFEED_* environment variables; flags win
// over the file.
type Config struct {
	Address  string `toml:"address"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`

	// Concurrency bounds the number of in-flight feed fetches per refresh
	Concurrency int `toml:"concurrency"`

	// Timeouts for the outbound feed fetches, in seconds
	FetchTimeoutSeconds   int `toml:"fetch_timeout_seconds"`
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`

	// RefreshIntervalMinutes enables periodic refreshes of all users when
	// non-zero
	RefreshIntervalMinutes int `toml:"refresh_interval_minutes"`
}

func Default() *Config {
	return &Config{
		Address:                "0.0.0.0",
		Port:                   8888,
		Database:               "nanofeed.db",
		Concurrency:            32,
		FetchTimeoutSeconds:    20,
		ConnectTimeoutSeconds:  10,
		RefreshIntervalMinutes: 0,
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}
