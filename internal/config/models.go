package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusRelay/internal/logger"
	"gopkg.in/yaml.v3"
)

var (
	// ErrProfileNotFound is returned for an unknown profile id.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid config")
)

// Profile binds a target window to an audio device so both can be set up in one step.
type Profile struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	WindowTitle   string `json:"window_title" yaml:"window_title"`
	AudioDeviceID string `json:"audio_device_id,omitempty" yaml:"audio_device_id,omitempty"`
	HwndHint      uint32 `json:"hwnd_hint,omitempty" yaml:"hwnd_hint,omitempty"`
	PidHint       int    `json:"pid_hint,omitempty" yaml:"pid_hint,omitempty"`
}

// WorkerConfig configures the native input worker subprocess.
type WorkerConfig struct {
	// Command is the worker argv. Empty means this executable with "worker".
	Command           []string `json:"command" yaml:"command"`
	DefaultTimeoutMs  int      `json:"default_timeout_ms" yaml:"default_timeout_ms"`
	GeometryTimeoutMs int      `json:"geometry_timeout_ms" yaml:"geometry_timeout_ms"`
	StderrTail        int      `json:"stderr_tail" yaml:"stderr_tail"`
	StartOnBoot       bool     `json:"start_on_boot" yaml:"start_on_boot"`
}

// InputConfig tunes gesture classification and coordinate mapping.
type InputConfig struct {
	MoveThrottleMs   int     `json:"move_throttle_ms" yaml:"move_throttle_ms"`
	DragThresholdPx  int     `json:"drag_threshold_px" yaml:"drag_threshold_px"`
	ClickDelayMs     int     `json:"click_delay_ms" yaml:"click_delay_ms"`
	DblClickStepMs   int     `json:"dblclick_step_ms" yaml:"dblclick_step_ms"`
	WheelNotch       int     `json:"wheel_notch" yaml:"wheel_notch"`
	UseHardwareClick bool    `json:"use_hardware_click" yaml:"use_hardware_click"`
	RemapIntervalMs  int     `json:"remap_interval_ms" yaml:"remap_interval_ms"`
	RemapTimeoutMs   int     `json:"remap_timeout_ms" yaml:"remap_timeout_ms"`
	ModeFrameSlack   float64 `json:"mode_frame_slack" yaml:"mode_frame_slack"`
	ModeTieTolerance float64 `json:"mode_tie_tolerance" yaml:"mode_tie_tolerance"`
	FrameMinOffX     int     `json:"frame_min_off_x" yaml:"frame_min_off_x"`
	FrameMinOffY     int     `json:"frame_min_off_y" yaml:"frame_min_off_y"`
}

// KeepaliveConfig holds the defaults applied when a session enables keepalive.
type KeepaliveConfig struct {
	Enabled     bool `json:"enabled" yaml:"enabled"`
	PeriodMs    int  `json:"period_ms" yaml:"period_ms"`
	X           int  `json:"x" yaml:"x"`
	Y           int  `json:"y" yaml:"y"`
	StickBottom bool `json:"stick_bottom" yaml:"stick_bottom"`
	// InhibitIdle keeps the screensaver off while a session runs.
	InhibitIdle bool `json:"inhibit_idle" yaml:"inhibit_idle"`
}

type CaptureConfig struct {
	FPS      int `json:"fps" yaml:"fps"`
	MaxWidth int `json:"max_width" yaml:"max_width"`
	Quality  int `json:"quality" yaml:"quality"`
}

// Bounds is the last viewer window placement.
type Bounds struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

// ViewerConfig holds viewer chrome settings. ClickThrough suspends input forwarding.
type ViewerConfig struct {
	AlwaysOnTop  bool    `json:"always_on_top" yaml:"always_on_top"`
	Opacity      float64 `json:"opacity" yaml:"opacity"`
	ClickThrough bool    `json:"click_through" yaml:"click_through"`
	Bounds       *Bounds `json:"bounds,omitempty" yaml:"bounds,omitempty"`
}

type AudioConfig struct {
	ApplicationName string `json:"application_name" yaml:"application_name"`
}

// Config represents the application configuration
type Config struct {
	ServerPort      int             `json:"server_port" yaml:"server_port"`
	LogLevel        string          `json:"log_level" yaml:"log_level"`
	LogPretty       bool            `json:"log_pretty" yaml:"log_pretty"`
	LogDir          string          `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`
	Worker          WorkerConfig    `json:"worker" yaml:"worker"`
	Input           InputConfig     `json:"input" yaml:"input"`
	Keepalive       KeepaliveConfig `json:"keepalive" yaml:"keepalive"`
	Capture         CaptureConfig   `json:"capture" yaml:"capture"`
	Viewer          ViewerConfig    `json:"viewer" yaml:"viewer"`
	Audio           AudioConfig     `json:"audio" yaml:"audio"`
	ActiveProfileID string          `json:"active_profile_id,omitempty" yaml:"active_profile_id,omitempty"`
	Profiles        []Profile       `json:"profiles" yaml:"profiles"`
}

// Defaults returns the stock configuration.
func Defaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Worker: WorkerConfig{
			DefaultTimeoutMs:  3000,
			GeometryTimeoutMs: 1200,
			StderrTail:        400,
			StartOnBoot:       true,
		},
		Input: InputConfig{
			MoveThrottleMs:   12,
			DragThresholdPx:  4,
			ClickDelayMs:     260,
			DblClickStepMs:   8,
			WheelNotch:       120,
			RemapIntervalMs:  100,
			RemapTimeoutMs:   250,
			ModeFrameSlack:   1.2,
			ModeTieTolerance: 0.05,
			FrameMinOffX:     4,
			FrameMinOffY:     16,
		},
		Keepalive: KeepaliveConfig{
			Enabled:  true,
			PeriodMs:    3000,
			X:           6,
			Y:           6,
			InhibitIdle: true,
		},
		Capture: CaptureConfig{
			FPS:      15,
			MaxWidth: 1920,
			Quality:  80,
		},
		Viewer: ViewerConfig{Opacity: 1},
		Audio:  AudioConfig{ApplicationName: "FocusRelay"},
		Profiles: []Profile{},
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.ServerPort < 1 || c.ServerPort > 65535:
		return fmt.Errorf("%w: server_port %d out of range", ErrInvalid, c.ServerPort)
	case c.Input.DragThresholdPx < 1:
		return fmt.Errorf("%w: input.drag_threshold_px must be positive", ErrInvalid)
	case c.Input.ClickDelayMs < 1:
		return fmt.Errorf("%w: input.click_delay_ms must be positive", ErrInvalid)
	case c.Input.MoveThrottleMs < 0 || c.Input.DblClickStepMs < 0 || c.Input.RemapTimeoutMs < 0:
		return fmt.Errorf("%w: input delays must not be negative", ErrInvalid)
	case c.Viewer.Opacity < 0 || c.Viewer.Opacity > 1:
		return fmt.Errorf("%w: viewer.opacity must be within [0,1]", ErrInvalid)
	case c.Capture.FPS < 1 || c.Capture.FPS > 60:
		return fmt.Errorf("%w: capture.fps must be within [1,60]", ErrInvalid)
	case c.Capture.Quality < 1 || c.Capture.Quality > 100:
		return fmt.Errorf("%w: capture.quality must be within [1,100]", ErrInvalid)
	}
	return nil
}

// Ms converts a millisecond setting into a duration.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// clone deep-copies c so callers never share slices with the manager.
func (c *Config) clone() *Config {
	out := *c
	out.Worker.Command = append([]string(nil), c.Worker.Command...)
	out.Profiles = append([]Profile{}, c.Profiles...)
	if c.Viewer.Bounds != nil {
		b := *c.Viewer.Bounds
		out.Viewer.Bounds = &b
	}
	return &out
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	lastSaved  []byte
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/focusrelay/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "focusrelay", "config.yaml"), nil
}

// NewManager loads configFile (or the default path), creating it with
// defaults when it does not exist.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("profiles", len(m.config.Profiles)).
		Msg("Config loaded")

	return m, nil
}

// parse decodes a YAML document over the defaults, so keys missing from an
// older file keep their stock values.
func parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = []Profile{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}
	cfg, err := parse(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.lastSaved = data
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	return m.config.clone()
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	cfg := m.config
	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Int("profile_count", len(cfg.Profiles)).
		Str("active_profile", cfg.ActiveProfileID).
		Msg("Saving config")

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}
	m.lastSaved = data

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// mutate applies fn to a copy of the configuration, validates it, then swaps
// it in and saves. Nothing changes when fn or validation fails.
func (m *Manager) mutate(fn func(cfg *Config) error) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := Defaults()
	if m.config != nil {
		cfg = m.config.clone()
	}
	if err := fn(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.config = cfg
	if err := m.saveLocked(); err != nil {
		return nil, err
	}
	return cfg.clone(), nil
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	_, err := m.mutate(func(cfg *Config) error {
		cfg.ServerPort = port
		return nil
	})
	return err
}

// GetPort gets the server port
func (m *Manager) GetPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ServerPort
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	_, err := m.mutate(func(cfg *Config) error {
		cfg.LogLevel = level
		return nil
	})
	return err
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
