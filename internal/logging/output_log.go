package logging

import (
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single output line before truncation.
	MaxLineLength = 4096

	// DefaultOutputLines is the number of player output lines kept by default.
	DefaultOutputLines = 200
)

// OutputLog keeps the most recent lines printed by the player process and
// logs them. It is safe for concurrent use by the stdout and stderr readers.
type OutputLog struct {
	logger  *slog.Logger
	verbose bool

	mu     sync.Mutex
	buffer []string
	next   int
	total  int
}

// NewOutputLog creates an output log holding up to size lines. In
// non-verbose mode only lines classified as warnings are logged.
func NewOutputLog(size int, logger *slog.Logger, verbose bool) *OutputLog {
	if size <= 0 {
		size = DefaultOutputLines
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutputLog{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, size),
	}
}

// ParseLine records one line of player output.
func (o *OutputLog) ParseLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	o.mu.Lock()
	o.buffer[o.next] = line
	o.next = (o.next + 1) % len(o.buffer)
	o.total++
	o.mu.Unlock()

	level := classifyLine(line)
	if !o.verbose && level == slog.LevelDebug {
		return
	}
	o.logger.Log(nil, level, "player_output", "line", line)
}

// classifyLine picks a log level from the line content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	switch {
	case strings.HasPrefix(lower, "error"),
		strings.Contains(lower, "cannot open"),
		strings.Contains(lower, "failed to open"),
		strings.Contains(lower, "no such file"):
		return slog.LevelWarn
	case strings.Contains(lower, "warning"),
		strings.Contains(lower, "too slow"),
		strings.Contains(lower, "cannot sync"):
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (o *OutputLog) RecentLines(n int) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	size := len(o.buffer)
	if n > size {
		n = size
	}
	if n > o.total {
		n = o.total
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		lines = append(lines, o.buffer[(o.next-n+i+size)%size])
	}
	return lines
}

// Total returns the number of lines recorded since creation.
func (o *OutputLog) Total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.total
}

// WarningPatterns are output fragments counted for the exit summary.
var WarningPatterns = []string{
	"Cannot open",
	"Failed to open",
	"No such file",
	"too slow",
	"Cannot sync",
}

// CountWarnings counts occurrences of WarningPatterns in the buffered lines.
func (o *OutputLog) CountWarnings() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range o.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range WarningPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
