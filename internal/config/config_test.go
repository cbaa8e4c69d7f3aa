package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(lookupFrom(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port=%d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.ListenAddr() != ":3000" {
		t.Errorf("ListenAddr=%q, want :3000", cfg.ListenAddr())
	}
	if cfg.ReapInterval != DefaultReapInterval {
		t.Errorf("ReapInterval=%s, want %s", cfg.ReapInterval, DefaultReapInterval)
	}
	if cfg.StaleThreshold != DefaultStaleThreshold {
		t.Errorf("StaleThreshold=%s, want %s", cfg.StaleThreshold, DefaultStaleThreshold)
	}
	if cfg.ShutdownGrace != DefaultShutdownGrace {
		t.Errorf("ShutdownGrace=%s, want %s", cfg.ShutdownGrace, DefaultShutdownGrace)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat=%q, want text", cfg.LogFormat)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	env := map[string]string{
		"PORT":                    "8080",
		"LOG_FORMAT":              "json",
		"LOG_LEVEL":               "debug",
		"REAP_INTERVAL":           "30s",
		"STALE_THRESHOLD":         "2m",
		"SHUTDOWN_GRACE":          "3s",
		"MAX_MESSAGE_BYTES":       "1024",
		"MAX_MESSAGES_PER_SECOND": "10",
	}

	cfg, err := load(lookupFrom(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port=%d, want 8080", cfg.Port)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat=%q, want json", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel=%v, want debug", cfg.LogLevel)
	}
	if cfg.ReapInterval != 30*time.Second {
		t.Errorf("ReapInterval=%s, want 30s", cfg.ReapInterval)
	}
	if cfg.StaleThreshold != 2*time.Minute {
		t.Errorf("StaleThreshold=%s, want 2m", cfg.StaleThreshold)
	}
	if cfg.ShutdownGrace != 3*time.Second {
		t.Errorf("ShutdownGrace=%s, want 3s", cfg.ShutdownGrace)
	}
	if cfg.MaxMessageBytes != 1024 {
		t.Errorf("MaxMessageBytes=%d, want 1024", cfg.MaxMessageBytes)
	}
	if cfg.MaxMessagesPerSecond != 10 {
		t.Errorf("MaxMessagesPerSecond=%d, want 10", cfg.MaxMessagesPerSecond)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "not-a-number"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"bad duration", map[string]string{"REAP_INTERVAL": "five minutes"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"ping not below idle", map[string]string{"WS_PING_INTERVAL": "2m"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := load(lookupFrom(tc.env), nil); err == nil {
				t.Fatalf("expected error for %v", tc.env)
			}
		})
	}
}

func TestLoadConfigFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "port: 4000\nlogFormat: json\nstaleThreshold: 90s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// Env overrides the file; file overrides defaults.
	env := map[string]string{"PORT": "5000"}
	cfg, err := load(lookupFrom(env), []string{"-config", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 5000 {
		t.Errorf("Port=%d, want env override 5000", cfg.Port)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat=%q, want file value json", cfg.LogFormat)
	}
	if cfg.StaleThreshold != 90*time.Second {
		t.Errorf("StaleThreshold=%s, want file value 90s", cfg.StaleThreshold)
	}
	if cfg.ReapInterval != DefaultReapInterval {
		t.Errorf("ReapInterval=%s, want default", cfg.ReapInterval)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []LogFormat{LogFormatText, LogFormatJSON} {
		cfg := Config{LogFormat: format, LogLevel: slog.LevelInfo}
		if _, err := NewLogger(cfg); err != nil {
			t.Errorf("NewLogger(%q): %v", format, err)
		}
	}

	if _, err := NewLogger(Config{LogFormat: "xml"}); err == nil {
		t.Errorf("expected error for unsupported format")
	}
}
