package stats

import (
	"fmt"
	"math"
	"time"
)

// FormatTime formats a media position in seconds, rounded to tenths:
// HH:MM:SS.s from one hour, MM:SS.s from one minute, otherwise S.s.
// Negative values format as zero.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	tenths := int64(math.Round(seconds * 10))
	h := tenths / 36000
	m := tenths / 600 % 60
	s := tenths / 10 % 60
	f := tenths % 10

	switch {
	case h > 0:
		return fmt.Sprintf("%02d:%02d:%02d.%d", h, m, s, f)
	case m > 0:
		return fmt.Sprintf("%02d:%02d.%d", m, s, f)
	default:
		return fmt.Sprintf("%d.%d", s, f)
	}
}

// FormatRange formats a segment as "start - end". An end at or before
// start (an open-ended segment) formats as the start alone.
func FormatRange(start, end float64) string {
	if end <= start {
		return FormatTime(start)
	}
	return FormatTime(start) + " - " + FormatTime(end)
}

// FormatProgress formats a position against a total as "pos / total".
// Without a known total only the position is shown.
func FormatProgress(position, total float64) string {
	if total <= 0 {
		return FormatTime(position)
	}
	return FormatTime(position) + " / " + FormatTime(total)
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
