// Package process builds command lines for the external media tools
// (MPlayer and ffprobe) without starting them.
package process

import (
	"strings"
	"time"
)

// Mode identifies what a spawned tool process is for.
type Mode string

const (
	// ModePlayback is a long-lived slave-mode MPlayer driven over stdin.
	ModePlayback Mode = "playback"

	// ModeExtractAudio converts a video's soundtrack to a WAV file.
	ModeExtractAudio Mode = "extract_audio"

	// ModeThumbnail grabs a single frame as a JPEG.
	ModeThumbnail Mode = "thumbnail"

	// ModeProbe is a one-shot ffprobe inspection.
	ModeProbe Mode = "probe"
)

// Command is a fully built tool invocation that has not been started.
type Command struct {
	Mode   Mode
	Binary string
	Args   []string

	// MediaPath is the file the process opens. The supervisor waits for
	// it to be released after the process exits.
	MediaPath string
}

// String returns the command line as it would be typed (for debugging).
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Result captures the outcome of a process execution.
type Result struct {
	Mode      Mode
	PID       int
	ExitCode  int
	StartTime time.Time
	Uptime    time.Duration
	Killed    bool
}
