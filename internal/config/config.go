// Package config provides configuration management for go-mplayer-ctl.
package config

import (
	"os"
	"time"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/player"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
)

// Config holds all configuration options for the controller and its tools.
type Config struct {
	// Media
	MediaPath string  `json:"media_path"`
	Start     float64 `json:"start"`
	Length    float64 `json:"length"` // 0 = to the end
	Volume    int     `json:"volume"`
	Mute      bool    `json:"mute"`
	Loop      bool    `json:"loop"`

	// MPlayer
	MPlayerPath  string `json:"mplayer_path"`
	FFprobePath  string `json:"ffprobe_path"` // empty = next to mplayer or on PATH
	SettingsPath string `json:"settings_path"`
	VideoOutput  string `json:"video_output"`
	Priority     string `json:"priority"`
	WindowID     int64  `json:"window_id"`

	// Process lifecycle
	ReleaseTimeout   time.Duration `json:"release_timeout"`
	ReleaseInterval  time.Duration `json:"release_interval"`
	ThumbnailTimeout time.Duration `json:"thumbnail_timeout"`
	TempDir          string        `json:"temp_dir"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`
	LogFile     string `json:"log_file"` // TUI mode only
	OutputLines int    `json:"output_lines"`
	DumpMetrics bool   `json:"dump_metrics"`

	// Dashboard
	TUIEnabled bool `json:"tui_enabled"`

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	Check         bool `json:"check"`
	SkipPreflight bool `json:"skip_preflight"`
	SkipProbe     bool `json:"skip_probe"`

	// One-shot tool modes
	Probe        bool    `json:"probe"`
	ExtractAudio string  `json:"extract_audio"` // WAV output path
	Thumbnail    string  `json:"thumbnail"`     // JPEG output path
	ThumbnailAt  float64 `json:"thumbnail_at"`  // < 0 = automatic
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	mp := process.DefaultMPlayerConfig()
	return &Config{
		Volume: player.DefaultVolume,

		MPlayerPath: mp.BinaryPath,
		VideoOutput: mp.VideoOutput,
		Priority:    mp.Priority,

		ReleaseTimeout:   5 * time.Second,
		ReleaseInterval:  100 * time.Millisecond,
		ThumbnailTimeout: 30 * time.Second,
		TempDir:          os.TempDir(),

		LogFormat:   "text",
		LogLevel:    "info",
		OutputLines: 200,

		TUIEnabled: true,

		ThumbnailAt: -1,
	}
}

// MPlayerConfig returns the argument builder configuration.
func (c *Config) MPlayerConfig() process.MPlayerConfig {
	return process.MPlayerConfig{
		BinaryPath:   c.MPlayerPath,
		FFprobePath:  c.FFprobePath,
		SettingsPath: c.SettingsPath,
		VideoOutput:  c.VideoOutput,
		Priority:     c.Priority,
	}
}

// Segment returns the configured playback segment.
func (c *Config) Segment() player.Segment {
	return player.Segment{Start: c.Start, Length: c.Length}
}

// OneShot reports whether a single tool mode was requested instead of
// interactive playback.
func (c *Config) OneShot() bool {
	return c.Probe || c.ExtractAudio != "" || c.Thumbnail != ""
}

// ApplyCheckMode modifies config for --check mode: headless, verbose,
// playing at most ten seconds.
func ApplyCheckMode(cfg *Config) {
	cfg.TUIEnabled = false
	cfg.Verbose = true
	if cfg.Length <= 0 || cfg.Length > 10 {
		cfg.Length = 10
	}
}
