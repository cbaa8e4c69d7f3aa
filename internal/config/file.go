package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with pointer fields so absent keys leave the
// defaults (and any earlier layer) untouched.
type fileConfig struct {
	Port                 *int    `yaml:"port"`
	LogFormat            *string `yaml:"logFormat"`
	LogLevel             *string `yaml:"logLevel"`
	ReapInterval         *string `yaml:"reapInterval"`
	StaleThreshold       *string `yaml:"staleThreshold"`
	ShutdownGrace        *string `yaml:"shutdownGrace"`
	WSPingInterval       *string `yaml:"wsPingInterval"`
	WSIdleTimeout        *string `yaml:"wsIdleTimeout"`
	MaxMessageBytes      *int64  `yaml:"maxMessageBytes"`
	MaxMessagesPerSecond *int    `yaml:"maxMessagesPerSecond"`
	SendQueueSize        *int    `yaml:"sendQueueSize"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} references so files can defer secrets/ports to the
	// environment.
	expanded := os.ExpandEnv(string(data))

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.LogFormat != nil {
		cfg.LogFormat = LogFormat(*fc.LogFormat)
	}
	if fc.LogLevel != nil {
		level, err := parseLogLevel(*fc.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	for _, d := range []struct {
		name string
		raw  *string
		dst  *time.Duration
	}{
		{"reapInterval", fc.ReapInterval, &cfg.ReapInterval},
		{"staleThreshold", fc.StaleThreshold, &cfg.StaleThreshold},
		{"shutdownGrace", fc.ShutdownGrace, &cfg.ShutdownGrace},
		{"wsPingInterval", fc.WSPingInterval, &cfg.WSPingInterval},
		{"wsIdleTimeout", fc.WSIdleTimeout, &cfg.WSIdleTimeout},
	} {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q in config file: %w", d.name, *d.raw, err)
		}
		*d.dst = v
	}

	if fc.MaxMessageBytes != nil {
		cfg.MaxMessageBytes = *fc.MaxMessageBytes
	}
	if fc.MaxMessagesPerSecond != nil {
		cfg.MaxMessagesPerSecond = *fc.MaxMessagesPerSecond
	}
	if fc.SendQueueSize != nil {
		cfg.SendQueueSize = *fc.SendQueueSize
	}

	return nil
}
