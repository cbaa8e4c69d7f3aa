// Package config loads the server configuration from the environment, with
// an optional YAML file for deployments that prefer one. Environment
// variables always win over file values.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarPort                 = "PORT"
	envVarLogFormat            = "LOG_FORMAT"
	envVarLogLevel             = "LOG_LEVEL"
	envVarReapInterval         = "REAP_INTERVAL"
	envVarStaleThreshold       = "STALE_THRESHOLD"
	envVarShutdownGrace        = "SHUTDOWN_GRACE"
	envVarWSPingInterval       = "WS_PING_INTERVAL"
	envVarWSIdleTimeout        = "WS_IDLE_TIMEOUT"
	envVarMaxMessageBytes      = "MAX_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_MESSAGES_PER_SECOND"
	envVarSendQueueSize        = "SEND_QUEUE_SIZE"
)

const (
	DefaultPort                 = 3000
	DefaultReapInterval         = 5 * time.Minute
	DefaultStaleThreshold       = 5 * time.Minute
	DefaultShutdownGrace        = 10 * time.Second
	DefaultWSPingInterval       = 20 * time.Second
	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50
	DefaultSendQueueSize        = 64
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	Port      int
	LogFormat LogFormat
	LogLevel  slog.Level

	// Presence reaping.
	ReapInterval   time.Duration
	StaleThreshold time.Duration

	// ShutdownGrace bounds how long a termination signal waits for the HTTP
	// server to drain before the process force-exits non-zero.
	ShutdownGrace time.Duration

	// WebSocket transport keepalive and inbound hardening.
	WSPingInterval       time.Duration
	WSIdleTimeout        time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	// SendQueueSize is the per-connection outbound message buffer. A full
	// queue drops the connection rather than blocking the router.
	SendQueueSize int
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	fs := flag.NewFlagSet("webrtc-video-call", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file (environment variables take precedence)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:                 DefaultPort,
		LogFormat:            LogFormatText,
		LogLevel:             slog.LevelInfo,
		ReapInterval:         DefaultReapInterval,
		StaleThreshold:       DefaultStaleThreshold,
		ShutdownGrace:        DefaultShutdownGrace,
		WSPingInterval:       DefaultWSPingInterval,
		WSIdleTimeout:        DefaultWSIdleTimeout,
		MaxMessageBytes:      DefaultMaxMessageBytes,
		MaxMessagesPerSecond: DefaultMaxMessagesPerSecond,
		SendQueueSize:        DefaultSendQueueSize,
	}

	if *configPath != "" {
		if err := applyFile(&cfg, *configPath); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	port, err := envIntOrDefault(lookup, envVarPort, cfg.Port)
	if err != nil {
		return err
	}
	cfg.Port = port

	if raw, ok := lookup(envVarLogFormat); ok && strings.TrimSpace(raw) != "" {
		cfg.LogFormat = LogFormat(strings.ToLower(strings.TrimSpace(raw)))
	}
	if raw, ok := lookup(envVarLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := parseLogLevel(raw)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{envVarReapInterval, &cfg.ReapInterval},
		{envVarStaleThreshold, &cfg.StaleThreshold},
		{envVarShutdownGrace, &cfg.ShutdownGrace},
		{envVarWSPingInterval, &cfg.WSPingInterval},
		{envVarWSIdleTimeout, &cfg.WSIdleTimeout},
	} {
		if raw, ok := lookup(d.key); ok && strings.TrimSpace(raw) != "" {
			v, err := time.ParseDuration(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", d.key, raw, err)
			}
			*d.dst = v
		}
	}

	if raw, ok := lookup(envVarMaxMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", envVarMaxMessageBytes, raw, err)
		}
		cfg.MaxMessageBytes = n
	}

	mps, err := envIntOrDefault(lookup, envVarMaxMessagesPerSecond, cfg.MaxMessagesPerSecond)
	if err != nil {
		return err
	}
	cfg.MaxMessagesPerSecond = mps

	queue, err := envIntOrDefault(lookup, envVarSendQueueSize, cfg.SendQueueSize)
	if err != nil {
		return err
	}
	cfg.SendQueueSize = queue

	return nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("reap interval must be positive, got %s", c.ReapInterval)
	}
	if c.StaleThreshold <= 0 {
		return fmt.Errorf("stale threshold must be positive, got %s", c.StaleThreshold)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("shutdown grace must be positive, got %s", c.ShutdownGrace)
	}
	if c.WSPingInterval >= c.WSIdleTimeout {
		return fmt.Errorf("ws ping interval %s must be shorter than idle timeout %s", c.WSPingInterval, c.WSIdleTimeout)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max message bytes must be positive, got %d", c.MaxMessageBytes)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("send queue size must be positive, got %d", c.SendQueueSize)
	}
	return nil
}

// NewLogger builds the process logger from config.
func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envVarLogLevel, raw, err)
	}
	return level, nil
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}
