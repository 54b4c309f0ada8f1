package process

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// ThumbnailFileName is the name MPlayer's jpeg output driver gives the
// first captured frame.
const ThumbnailFileName = "00000001.jpg"

// MPlayerConfig holds configuration for MPlayer process execution.
type MPlayerConfig struct {
	// BinaryPath is the path to the MPlayer binary.
	BinaryPath string

	// FFprobePath is the path to ffprobe. Empty means look next to
	// MPlayer, then on PATH.
	FFprobePath string

	// SettingsPath is an MPlayer config file. When it exists, playback
	// uses "-include <file>" in place of the built-in slave options.
	SettingsPath string

	// VideoOutput is passed as "-vo". Empty lets MPlayer choose.
	VideoOutput string

	// Priority is passed as "-priority" (Windows builds only understand it).
	Priority string
}

// DefaultMPlayerConfig returns an MPlayerConfig with sensible defaults
// for the current platform.
func DefaultMPlayerConfig() *MPlayerConfig {
	cfg := &MPlayerConfig{
		BinaryPath: "mplayer",
	}
	if runtime.GOOS == "windows" {
		cfg.VideoOutput = "gl"
		cfg.Priority = "abovenormal"
	}
	return cfg
}

// PlaybackOptions describes one playback process.
type PlaybackOptions struct {
	// Path is the media file.
	Path string

	// Start is the position, in seconds, playback begins at.
	Start float64

	// Length bounds playback to this many seconds. 0 plays to the end.
	Length float64

	// Volume in [0,100].
	Volume int

	// WindowID embeds video output in an existing window. 0 opens a new one.
	WindowID int64
}

// MPlayer builds MPlayer and ffprobe command lines.
type MPlayer struct {
	config *MPlayerConfig
}

// NewMPlayer creates a new builder with the given configuration.
func NewMPlayer(cfg *MPlayerConfig) *MPlayer {
	if cfg == nil {
		cfg = DefaultMPlayerConfig()
	}
	return &MPlayer{config: cfg}
}

// Config returns the MPlayer configuration.
func (m *MPlayer) Config() *MPlayerConfig {
	return m.config
}

// Playback returns the slave-mode playback command. withSettings selects
// the "-include" form; the caller decides whether the settings file exists.
func (m *MPlayer) Playback(opts PlaybackOptions, withSettings bool) Command {
	return Command{
		Mode:      ModePlayback,
		Binary:    m.config.BinaryPath,
		Args:      m.buildPlaybackArgs(opts, withSettings),
		MediaPath: opts.Path,
	}
}

func (m *MPlayer) buildPlaybackArgs(opts PlaybackOptions, withSettings bool) []string {
	var args []string

	if withSettings && m.config.SettingsPath != "" {
		args = append(args, "-include", m.config.SettingsPath)
	} else {
		args = append(args,
			"-slave",
			"-noquiet",
			"-idle",
			"-msglevel", "identify=9:global=9",
			"-nofontconfig",
			"-autosync", "100",
		)
		if m.config.Priority != "" {
			args = append(args, "-priority", m.config.Priority)
		}
		args = append(args, "-osdlevel", "0")
	}

	args = append(args,
		"-ss", formatSeconds(opts.Start),
		"-volume", strconv.Itoa(opts.Volume),
	)

	if opts.Length > 0 {
		args = append(args, "-endpos", formatSeconds(opts.Length))
	}

	if !withSettings || m.config.SettingsPath == "" {
		args = append(args, "-fixed-vo")
		if m.config.VideoOutput != "" {
			args = append(args, "-vo", m.config.VideoOutput)
		}
	}

	if opts.WindowID != 0 {
		args = append(args, "-wid", strconv.FormatInt(opts.WindowID, 10))
	}

	return append(args, opts.Path)
}

// ExtractAudio returns the command that writes videoPath's soundtrack to
// wavPath as PCM.
func (m *MPlayer) ExtractAudio(videoPath, wavPath string) Command {
	return Command{
		Mode:   ModeExtractAudio,
		Binary: m.config.BinaryPath,
		Args: []string{
			videoPath,
			"-nofontconfig",
			"-vo", "null",
			"-vc", "null",
			"-ao", "pcm:fast:file=" + escapeSubopt(wavPath),
		},
		MediaPath: videoPath,
	}
}

// Thumbnail returns the command that writes the frame at atSeconds to
// outDir/ThumbnailFileName.
func (m *MPlayer) Thumbnail(videoPath, outDir string, atSeconds float64) Command {
	return Command{
		Mode:   ModeThumbnail,
		Binary: m.config.BinaryPath,
		Args: []string{
			"-nocache",
			"-nofontconfig",
			"-really-quiet",
			"-frames", "1",
			"-ss", formatSeconds(atSeconds),
			"-nosound",
			"-vo", "jpeg:outdir=" + escapeSubopt(outDir) + ":quality=100",
			videoPath,
		},
		MediaPath: videoPath,
	}
}

// Probe returns the ffprobe command that dumps path's stream summary.
func (m *MPlayer) Probe(path string) Command {
	return Command{
		Mode:      ModeProbe,
		Binary:    m.FFprobePath(),
		Args:      []string{"-hide_banner", path},
		MediaPath: path,
	}
}

// FFprobePath returns the path to ffprobe.
// It uses the configured path, then looks in MPlayer's directory, then
// falls back to PATH.
func (m *MPlayer) FFprobePath() string {
	if m.config.FFprobePath != "" {
		return m.config.FFprobePath
	}

	bin := m.config.BinaryPath
	if dir := filepath.Dir(bin); dir != "." && strings.HasPrefix(strings.ToLower(filepath.Base(bin)), "mplayer") {
		name := "ffprobe"
		if strings.HasSuffix(strings.ToLower(bin), ".exe") {
			name += ".exe"
		}
		candidate := filepath.Join(dir, name)
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate
		}
	}

	return "ffprobe"
}

// escapeSubopt quotes a value for an MPlayer sub-option using the
// %len%value form, so paths containing ':' or ',' survive.
func escapeSubopt(v string) string {
	return fmt.Sprintf("%%%d%%%s", len(v), v)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
