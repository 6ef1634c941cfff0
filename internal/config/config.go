// Package config loads daemon configuration from yaml.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Replication holds the constants of the replicated physics layer.
type Replication struct {
	UpdateRate         int     `yaml:"update_rate"`         // ticks per second
	HistorySize        int64   `yaml:"history_size"`        // trailing ticks retained
	InterpolationDelay float64 `yaml:"interpolation_delay"` // seconds, default per body
	SoftOwnerDelay     float64 `yaml:"soft_owner_delay"`    // seconds, contagion cooldown
	MaxCatchUpTicks    int     `yaml:"max_catchup_ticks"`   // per UpdateWorld call
	DigestInterval     int64   `yaml:"digest_interval"`     // ticks, 0 disables
	IssueWindow        float64 `yaml:"issue_window"`        // seconds
}

// Server holds the websocket listener settings.
type Server struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
}

// Addr returns the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}

// NATS selects the NATS transport when URL is non-empty.
type NATS struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Session       string `yaml:"session"`
}

// Config is the full daemon configuration.
type Config struct {
	LogLevel    string      `yaml:"log_level"`
	Replication Replication `yaml:"replication"`
	Server      Server      `yaml:"server"`
	NATS        NATS        `yaml:"nats"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		Replication: Replication{
			UpdateRate:         60,
			HistorySize:        120,
			InterpolationDelay: 0.1,
			SoftOwnerDelay:     0.5,
			MaxCatchUpTicks:    60,
			DigestInterval:     30,
			IssueWindow:        1.5,
		},
		Server: Server{
			BindAddress: "0.0.0.0",
			Port:        7350,
		},
		NATS: NATS{
			SubjectPrefix: "netphys",
			Session:       "default",
		},
	}
}

// Load reads a yaml config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
