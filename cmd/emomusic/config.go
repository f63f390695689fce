package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/vaishakh3/emomusic/internal/detection"
	"github.com/vaishakh3/emomusic/internal/device"
	"github.com/vaishakh3/emomusic/internal/recommend"
)

// configRelPath is the config file location relative to the XDG config dirs.
const configRelPath = "emomusic/config.yaml"

// Config is the top-level YAML configuration for the emomusic daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config.
type Config struct {
	Spotify   SpotifyConfig   `yaml:"spotify"`
	Recommend RecommendConfig `yaml:"recommend"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Detection DetectionConfig `yaml:"detection"`

	// Media-key input configuration
	Input InputConfig `yaml:"input"`

	// IPC configuration (used by emomusic-ctl and the librespot hook)
	IPC IPCConfig `yaml:"ipc"`

	// HTTP server configuration (websocket state stream)
	HTTP HTTPConfig `yaml:"http"`

	Logging LoggingConfig `yaml:"logging"`
}

type SpotifyConfig struct {
	TokenFile            string `yaml:"token_file"`
	APIBaseURL           string `yaml:"api_base_url,omitempty"`
	DeviceName           string `yaml:"device_name"`
	InitialVolumePercent int    `yaml:"initial_volume_percent"`
	PollIntervalMS       int    `yaml:"poll_interval_ms"`
	TimeoutMS            int    `yaml:"timeout_ms"`
}

type RecommendConfig struct {
	Limit     int `yaml:"limit"`
	TimeoutMS int `yaml:"timeout_ms"` // 0 = no timeout
}

type PlaybackConfig struct {
	AutoConnect      bool `yaml:"auto_connect"`
	ConnectTimeoutMS int  `yaml:"connect_timeout_ms"` // 0 = no timeout
	TickHz           int  `yaml:"tick_hz"`
}

type DetectionConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DetectorURL     string `yaml:"detector_url"`
	CameraURL       string `yaml:"camera_url"`
	FPS             int    `yaml:"fps"`
	MaxFrameWidth   int    `yaml:"max_frame_width"`
	ModelTimeoutMS  int    `yaml:"model_timeout_ms"`  // 0 = no timeout
	CameraTimeoutMS int    `yaml:"camera_timeout_ms"` // 0 = no timeout
}

type InputConfig struct {
	Devices []string `yaml:"devices,omitempty"` // evdev devices to read media keys from
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Port int `yaml:"port"` // 0 disables the HTTP server
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults.
func DefaultConfig() Config {
	return Config{
		Spotify: SpotifyConfig{
			TokenFile:            filepath.Join(xdg.ConfigHome, "emomusic", "token.json"),
			DeviceName:           device.DefaultName,
			InitialVolumePercent: defaultInitialVolumePercent,
			PollIntervalMS:       defaultPollIntervalMS,
			TimeoutMS:            defaultAPITimeoutMS,
		},
		Recommend: RecommendConfig{
			Limit: recommend.DefaultLimit,
		},
		Playback: PlaybackConfig{
			AutoConnect: true,
			TickHz:      defaultTickHz,
		},
		Detection: DetectionConfig{
			Enabled:       false,
			FPS:           defaultCameraFPS,
			MaxFrameWidth: defaultMaxFrameWidth,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath(),
		},
		HTTP: HTTPConfig{
			Port: defaultHTTPPort,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultSocketPath places the IPC socket in $XDG_RUNTIME_DIR.
func defaultSocketPath() string {
	return filepath.Join(xdg.RuntimeDir, "emomusic.sock")
}

// FindConfigFile returns the first emomusic/config.yaml found in the XDG config
// dirs, or "" when there is none.
func FindConfigFile() string {
	p, err := xdg.SearchConfigFile(configRelPath)
	if err != nil {
		return ""
	}
	return p
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
//   - Only one YAML document is allowed.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds command-line overrides applied on top of the config file.
// Flags pass pointers; each override is only applied when its pointer is non-nil.
type FlagOverrides struct {
	TokenFile  *string
	APIBaseURL *string
	DeviceName *string

	InputDevice *string

	DetectionEnabled *bool
	DetectorURL      *string
	CameraURL        *string

	IPCSocketPath *string
	HTTPPort      *int

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a "zero value").
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.TokenFile != nil {
		cfg.Spotify.TokenFile = *o.TokenFile
	}
	if o.APIBaseURL != nil {
		cfg.Spotify.APIBaseURL = *o.APIBaseURL
	}
	if o.DeviceName != nil {
		cfg.Spotify.DeviceName = *o.DeviceName
	}

	if o.InputDevice != nil {
		cfg.Input.Devices = []string{*o.InputDevice}
	}

	if o.DetectionEnabled != nil {
		cfg.Detection.Enabled = *o.DetectionEnabled
	}
	if o.DetectorURL != nil {
		cfg.Detection.DetectorURL = *o.DetectorURL
	}
	if o.CameraURL != nil {
		cfg.Detection.CameraURL = *o.CameraURL
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Spotify
	if c.Spotify.TokenFile == "" {
		return errors.New("spotify.token_file must not be empty")
	}
	if c.Spotify.APIBaseURL != "" {
		if err := validateHTTPURL(c.Spotify.APIBaseURL); err != nil {
			return fmt.Errorf("spotify.api_base_url: %w", err)
		}
	}
	if c.Spotify.DeviceName == "" {
		return errors.New("spotify.device_name must not be empty")
	}
	if c.Spotify.InitialVolumePercent < 0 || c.Spotify.InitialVolumePercent > 100 {
		return errors.New("spotify.initial_volume_percent must be between 0 and 100")
	}
	if c.Spotify.PollIntervalMS <= 0 {
		return errors.New("spotify.poll_interval_ms must be > 0")
	}
	if c.Spotify.TimeoutMS <= 0 {
		return errors.New("spotify.timeout_ms must be > 0")
	}

	// Recommend
	if c.Recommend.Limit < 1 || c.Recommend.Limit > 100 {
		return errors.New("recommend.limit must be between 1 and 100")
	}
	if c.Recommend.TimeoutMS < 0 {
		return errors.New("recommend.timeout_ms must be >= 0")
	}

	// Playback
	if c.Playback.ConnectTimeoutMS < 0 {
		return errors.New("playback.connect_timeout_ms must be >= 0")
	}
	if c.Playback.TickHz <= 0 || c.Playback.TickHz > 100 {
		return errors.New("playback.tick_hz must be between 1 and 100")
	}

	// Detection
	if c.Detection.Enabled {
		if c.Detection.DetectorURL == "" {
			return errors.New("detection.enabled is true but detection.detector_url is empty")
		}
		if err := validateHTTPURL(c.Detection.DetectorURL); err != nil {
			return fmt.Errorf("detection.detector_url: %w", err)
		}
		if c.Detection.CameraURL == "" {
			return errors.New("detection.enabled is true but detection.camera_url is empty")
		}
		if err := validateHTTPURL(c.Detection.CameraURL); err != nil {
			return fmt.Errorf("detection.camera_url: %w", err)
		}
	}
	if c.Detection.FPS <= 0 || c.Detection.FPS > 30 {
		return errors.New("detection.fps must be between 1 and 30")
	}
	if c.Detection.MaxFrameWidth < 0 {
		return errors.New("detection.max_frame_width must be >= 0")
	}
	if c.Detection.ModelTimeoutMS < 0 {
		return errors.New("detection.model_timeout_ms must be >= 0")
	}
	if c.Detection.CameraTimeoutMS < 0 {
		return errors.New("detection.camera_timeout_ms must be >= 0")
	}

	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// IPC / HTTP
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host must not be empty")
	}
	return nil
}

// ToReducerConfig converts file config into the reducer's policy config.
func (c *Config) ToReducerConfig() ReducerConfig {
	return ReducerConfig{
		RecommendLimit: c.Recommend.Limit,
		InitialVolume:  c.Spotify.InitialVolumePercent,
		ConnectTimeout: msDuration(c.Playback.ConnectTimeoutMS),
	}
}

// ToDetectionConfig converts file config into the detection manager's timeouts.
func (c *Config) ToDetectionConfig() detection.Config {
	return detection.Config{
		ModelTimeout:  msDuration(c.Detection.ModelTimeoutMS),
		CameraTimeout: msDuration(c.Detection.CameraTimeoutMS),
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
// This is handy for config values like spotify.token_file.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
