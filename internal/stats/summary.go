// Package stats formats playback times and the exit summary.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/metrics"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/player"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Duration is the total run duration; zero uses the summary's own.
	Duration time.Duration

	// MediaPath is the last file loaded, if any.
	MediaPath string

	// MetricsAddr is the Prometheus metrics endpoint address.
	MetricsAddr string

	// OutputWarnings counts warning patterns seen in player output.
	OutputWarnings map[string]int

	// Cleaned is the number of processes killed by the final cleanup.
	Cleaned int
}

// FormatExitSummary formats collector statistics for display at program exit.
func FormatExitSummary(s *metrics.Summary, cfg SummaryConfig) string {
	if s == nil {
		return formatBasicSummary(cfg)
	}

	duration := cfg.Duration
	if duration == 0 {
		duration = s.Duration
	}

	var b strings.Builder
	writeHeader(&b)

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(duration))
	if cfg.MediaPath != "" {
		fmt.Fprintf(&b, "Last Media:             %s\n", cfg.MediaPath)
	}
	b.WriteString("\n")

	// Processes
	writeSection(&b, "Processes")
	fmt.Fprintf(&b, "  %-20s %10s\n", "Mode", "Started")
	b.WriteString("  " + strings.Repeat("─", 31) + "\n")
	for _, mode := range []process.Mode{process.ModePlayback, process.ModeExtractAudio, process.ModeThumbnail, process.ModeProbe} {
		if n := s.Spawns[mode]; n > 0 {
			fmt.Fprintf(&b, "  %-20s %10s\n", string(mode), FormatNumber(n))
		}
	}
	fmt.Fprintf(&b, "  %-20s %10s\n", "total", FormatNumber(s.TotalSpawns()))
	if s.SpawnFailures > 0 {
		fmt.Fprintf(&b, "  %-20s %10d\n", "failed to start", s.SpawnFailures)
	}
	if cfg.Cleaned > 0 {
		fmt.Fprintf(&b, "  %-20s %10d\n", "killed at exit", cfg.Cleaned)
	}
	if s.TotalSpawns() > 0 {
		fmt.Fprintf(&b, "\n  Spawn Latency:        P50 %s  P95 %s  P99 %s\n",
			FormatMs(s.SpawnLatencyP50), FormatMs(s.SpawnLatencyP95), FormatMs(s.SpawnLatencyP99))
	}
	b.WriteString("\n")

	// File release
	if s.ReleaseWaits > 0 {
		writeSection(&b, "File Release")
		fmt.Fprintf(&b, "  Waits:                %d\n", s.ReleaseWaits)
		fmt.Fprintf(&b, "  Timeouts:             %d\n", s.ReleaseTimeouts)
		fmt.Fprintf(&b, "  Wait Time:            P50 %s  P95 %s  P99 %s\n\n",
			FormatMs(s.ReleaseWaitP50), FormatMs(s.ReleaseWaitP95), FormatMs(s.ReleaseWaitP99))
	}

	// Playback
	if s.Commands > 0 || len(s.Events) > 0 {
		writeSection(&b, "Playback")
		fmt.Fprintf(&b, "  Commands Sent:        %d", s.Commands)
		if s.CommandErrors > 0 {
			fmt.Fprintf(&b, " (%d failed)", s.CommandErrors)
		}
		b.WriteString("\n")
		if s.StaleSignals > 0 {
			fmt.Fprintf(&b, "  Stale Signals:        %d\n", s.StaleSignals)
		}
		for _, kind := range sortedEvents(s.Events) {
			fmt.Fprintf(&b, "  %-22s%d\n", kind.String()+":", s.Events[kind])
		}
		b.WriteString("\n")
	}

	// Exit codes
	if len(s.ExitCodes) > 0 {
		writeSection(&b, "Exit Codes")
		codes := make([]int, 0, len(s.ExitCodes))
		for code := range s.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), s.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	// Player output warnings
	if len(cfg.OutputWarnings) > 0 {
		writeSection(&b, "Player Warnings")
		patterns := make([]string, 0, len(cfg.OutputWarnings))
		for p := range cfg.OutputWarnings {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)
		for _, p := range patterns {
			fmt.Fprintf(&b, "  %-22s%d\n", p+":", cfg.OutputWarnings[p])
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(heavyRule)
	return b.String()
}

// formatBasicSummary formats a summary when metrics were not collected.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder
	writeHeader(&b)

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	if cfg.MediaPath != "" {
		fmt.Fprintf(&b, "Last Media:             %s\n", cfg.MediaPath)
	}
	b.WriteString("\n(Metrics collection was disabled)\n\n")
	b.WriteString(heavyRule)
	return b.String()
}

func writeHeader(b *strings.Builder) {
	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                          go-mplayer-ctl Exit Summary\n")
	b.WriteString(heavyRule + "\n")
}

func writeSection(b *strings.Builder, title string) {
	pad := (len([]rune(lightRule)) - 1 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(lightRule)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(lightRule + "\n")
}

func sortedEvents(m map[player.EventKind]int64) []player.EventKind {
	kinds := make([]player.EventKind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}
