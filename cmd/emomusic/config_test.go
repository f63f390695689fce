package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Recommend.Limit != 20 {
		t.Fatalf("expected default limit 20, got %d", cfg.Recommend.Limit)
	}
	if cfg.Detection.Enabled {
		t.Fatalf("detection must be off by default")
	}
}

func TestLoadConfigFile_MergesDefaults(t *testing.T) {
	path := writeConfig(t, `
spotify:
  device_name: "Living Room"
  initial_volume_percent: 30
recommend:
  limit: 10
playback:
  connect_timeout_ms: 8000
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Spotify.DeviceName != "Living Room" || cfg.Spotify.InitialVolumePercent != 30 {
		t.Fatalf("spotify section not applied: %+v", cfg.Spotify)
	}
	if cfg.Spotify.PollIntervalMS != defaultPollIntervalMS {
		t.Fatalf("expected default poll interval, got %d", cfg.Spotify.PollIntervalMS)
	}
	rc := cfg.ToReducerConfig()
	if rc.RecommendLimit != 10 || rc.InitialVolume != 30 || rc.ConnectTimeout != 8*time.Second {
		t.Fatalf("unexpected reducer config %+v", rc)
	}
}

func TestLoadConfigFile_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "spotify:\n  device_nmae: typo\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	path := writeConfig(t, "recommend:\n  limit: 5\n---\nrecommend:\n  limit: 6\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for second document")
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"volume", func(c *Config) { c.Spotify.InitialVolumePercent = 101 }, "initial_volume_percent"},
		{"limit", func(c *Config) { c.Recommend.Limit = 0 }, "recommend.limit"},
		{"api url", func(c *Config) { c.Spotify.APIBaseURL = "ftp://example.com" }, "api_base_url"},
		{"detector missing", func(c *Config) {
			c.Detection.Enabled = true
			c.Detection.CameraURL = "http://127.0.0.1:8080/snapshot"
		}, "detector_url"},
		{"camera missing", func(c *Config) {
			c.Detection.Enabled = true
			c.Detection.DetectorURL = "http://127.0.0.1:8088"
		}, "camera_url"},
		{"fps", func(c *Config) { c.Detection.FPS = 0 }, "detection.fps"},
		{"port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"input device", func(c *Config) { c.Input.Devices = []string{""} }, "input.devices[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestFlagOverrides_OnlyNonNilApplied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Spotify.DeviceName = "From File"
	cfg.HTTP.Port = 4000

	port := 0
	name := "Kitchen"
	FlagOverrides{DeviceName: &name, HTTPPort: &port}.Apply(&cfg)

	if cfg.Spotify.DeviceName != "Kitchen" {
		t.Fatalf("expected device name override, got %q", cfg.Spotify.DeviceName)
	}
	if cfg.HTTP.Port != 0 {
		t.Fatalf("expected zero-valued override to apply, got %d", cfg.HTTP.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("unset override changed log level to %q", cfg.Logging.Level)
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
spotify:
  token_file: /tmp/token.json
  device_name: "From File"
http:
  port: 4000
`)
	fs := flag.NewFlagSet("emomusic", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	cfg, err := loadConfig(fs, []string{"-config", path, "-device-name", "From Flag", "-log-level", "debug"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Spotify.DeviceName != "From Flag" {
		t.Fatalf("expected flag to win, got %q", cfg.Spotify.DeviceName)
	}
	if cfg.HTTP.Port != 4000 {
		t.Fatalf("expected file port to survive unset flag, got %d", cfg.HTTP.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadConfig_InvalidFlagValue(t *testing.T) {
	path := writeConfig(t, "spotify:\n  token_file: /tmp/token.json\n")
	fs := flag.NewFlagSet("emomusic", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	_, err := loadConfig(fs, []string{"-config", path, "-detection"})
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, in := range []string{"error", "warn", " INFO ", "debug"} {
		if _, err := parseLogLevel(in); err != nil {
			t.Fatalf("parseLogLevel(%q): %v", in, err)
		}
	}
	if _, err := parseLogLevel("trace"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
