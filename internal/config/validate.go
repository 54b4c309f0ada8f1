package config

import (
	"errors"
	"fmt"
	"net"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or the joined ValidationErrors.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// A media file is required for everything but --print-cmd
	if cfg.MediaPath == "" && !cfg.PrintCmd {
		add("media_path", "media file is required")
	}

	if cfg.Start < 0 {
		add("start", "must not be negative (got %v)", cfg.Start)
	}
	if cfg.Length < 0 {
		add("length", "must not be negative (got %v)", cfg.Length)
	}
	if cfg.Volume < 0 || cfg.Volume > 100 {
		add("volume", "must be between 0 and 100 (got %d)", cfg.Volume)
	}

	if cfg.MPlayerPath == "" {
		add("mplayer_path", "must not be empty")
	}
	if cfg.WindowID < 0 {
		add("window_id", "must not be negative")
	}

	if cfg.ReleaseTimeout <= 0 {
		add("release_timeout", "must be positive")
	}
	if cfg.ReleaseInterval <= 0 {
		add("release_interval", "must be positive")
	} else if cfg.ReleaseInterval > cfg.ReleaseTimeout && cfg.ReleaseTimeout > 0 {
		add("release_interval", "must be <= release_timeout")
	}
	if cfg.ThumbnailTimeout <= 0 {
		add("thumbnail_timeout", "must be positive")
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		add("log_level", "must be one of: debug, info, warn, error (got %q)", cfg.LogLevel)
	}
	if cfg.OutputLines < 1 {
		add("output_lines", "must be at least 1")
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			add("metrics_addr", "must be host:port (%v)", err)
		}
	}

	// Tool modes are exclusive with each other's outputs
	if cfg.ExtractAudio != "" && cfg.ExtractAudio == cfg.MediaPath {
		add("extract_audio", "output must differ from the media file")
	}
	if cfg.Thumbnail != "" && cfg.Thumbnail == cfg.MediaPath {
		add("thumbnail", "output must differ from the media file")
	}
	if cfg.OneShot() && cfg.PrintCmd {
		add("print_cmd", "cannot be combined with -probe, -extract-audio or -thumbnail")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
