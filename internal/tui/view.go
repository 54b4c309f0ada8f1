package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/player"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/stats"
)

// renderDashboard renders the whole screen.
func (m Model) renderDashboard() string {
	s := m.player.Snapshot()

	sections := []string{
		m.renderHeader(s),
		m.renderNowPlaying(s),
		m.renderEvents(),
	}
	if m.showOutput {
		sections = append(sections, m.renderOutput())
	}
	if m.lastErr != nil {
		sections = append(sections, statusError.Render("✗ "+m.lastErr.Error()))
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader(s player.Session) string {
	header := fmt.Sprintf(
		" go-mplayer-ctl │ %s │ Elapsed: %s ",
		GetStateLabel(s.State()),
		stats.FormatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Now Playing
// =============================================================================

func (m Model) renderNowPlaying(s player.Session) string {
	if s.Path == "" {
		content := lipgloss.JoinVertical(lipgloss.Left,
			sectionHeaderStyle.Render("Now Playing"),
			mutedStyle.Render("No media loaded"),
		)
		return boxStyle.Width(m.width - 2).Render(content)
	}

	rows := []string{
		sectionHeaderStyle.Render("Now Playing"),
		RenderKeyValue("File", filepath.Base(s.Path)),
	}

	if info := s.Info; info != nil {
		media := info.AudioCodec
		if info.IsVideo {
			media = fmt.Sprintf("%s %dx%d, %s", info.VideoCodec, info.Width, info.Height, info.AudioCodec)
		}
		rows = append(rows, RenderKeyValue("Media", strings.TrimSuffix(media, ", ")))
	}

	start, end := bounds(s)
	if s.Segment.Start > 0 || s.Segment.Length > 0 {
		rows = append(rows, RenderKeyValue("Segment", stats.FormatRange(start, s.Segment.End())))
	}

	barWidth := m.width - 20
	if barWidth < 20 {
		barWidth = 20
	}
	rows = append(rows,
		"",
		RenderProgressBar(m.Progress(), barWidth),
		RenderKeyValue("Position", stats.FormatProgress(s.Position, end)),
		RenderKeyValue("Volume", m.volumeLabel(s)),
		RenderKeyValue("Loop", onOff(m.player.Loop())),
	)

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) volumeLabel(s player.Session) string {
	label := fmt.Sprintf("%d%%", s.Volume)
	if s.Muted {
		return statusWarning.Render(label + " (muted)")
	}
	return label
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// =============================================================================
// Events
// =============================================================================

func (m Model) renderEvents() string {
	rows := []string{sectionHeaderStyle.Render("Events")}

	events := m.events.recent()
	if len(events) == 0 {
		rows = append(rows, dimStyle.Render("(none yet)"))
	}
	for i := len(events) - 1; i >= 0; i-- {
		rows = append(rows, formatEvent(events[i]))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func formatEvent(ev player.Event) string {
	switch ev.Kind {
	case player.PlaybackPositionChanged, player.PlaybackResumed, player.PlaybackPaused:
		return fmt.Sprintf("%-26s %s", ev.Kind, stats.FormatTime(ev.Position))
	case player.VolumeChanged:
		if ev.Muted {
			return fmt.Sprintf("%-26s %d (muted)", ev.Kind, ev.Volume)
		}
		return fmt.Sprintf("%-26s %d", ev.Kind, ev.Volume)
	case player.MediaQueued:
		return fmt.Sprintf("%-26s %s", ev.Kind, filepath.Base(ev.Path))
	default:
		return ev.Kind.String()
	}
}

// =============================================================================
// Player Output
// =============================================================================

func (m Model) renderOutput() string {
	rows := []string{sectionHeaderStyle.Render("Player Output")}

	var lines []string
	if m.output != nil {
		lines = m.output.RecentLines(outputLines)
	}
	if len(lines) == 0 {
		rows = append(rows, dimStyle.Render("(no output)"))
	}
	maxWidth := m.width - 6
	for _, line := range lines {
		if maxWidth > 3 && len(line) > maxWidth {
			line = line[:maxWidth-3] + "..."
		}
		rows = append(rows, dimStyle.Render(line))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	action := "pause"
	if m.player.IsPlayButtonVisible() {
		action = "play"
	}
	footer := "space " + action + " • s stop • ←/→ seek • ↑/↓ volume • m mute • l loop • o output • q quit"
	if m.metricsAddr != "" {
		footer += fmt.Sprintf("\nMetrics: http://%s/metrics", m.metricsAddr)
	}
	return footerStyle.Render(footer)
}
