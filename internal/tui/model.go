package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/player"
)

const (
	// seekStep is how far left/right move the playback position.
	seekStep = 5.0

	// volumeStep is how far up/down move the volume.
	volumeStep = 5

	// eventHistory is how many controller events the dashboard keeps.
	eventHistory = 8

	// outputLines is how many player output lines the log view shows.
	outputLines = 12
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatusMsg carries one parsed player status to the controlling goroutine.
type StatusMsg player.Status

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Player is the part of the playback controller the dashboard drives.
type Player interface {
	Play(ctx context.Context) error
	Pause() error
	Stop(ctx context.Context) error
	Seek(seconds float64) error
	SetVolume(volume int) error
	ToggleVolumeMute() error
	SetLoop(loop bool)
	Loop() bool

	Snapshot() player.Session
	IsPlayButtonVisible() bool

	Signals() <-chan player.Status
	Closed() <-chan struct{}
	Reconcile(st player.Status)
}

// OutputSource provides recent player output lines.
type OutputSource interface {
	RecentLines(n int) []string
}

// Config holds TUI configuration.
type Config struct {
	Player      Player
	Output      OutputSource // optional
	MetricsAddr string
}

// Model represents the TUI state.
type Model struct {
	player      Player
	output      OutputSource
	metricsAddr string

	events *eventLog

	startTime time.Time
	lastErr   error

	showOutput bool

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		player:      cfg.Player,
		output:      cfg.Output,
		metricsAddr: cfg.MetricsAddr,
		events:      &eventLog{},
		startTime:   time.Now(),
		width:       80,
		height:      24,
	}
}

// Listen records a controller event for display. Subscribe it to the
// controller before the program starts.
func (m Model) Listen(ev player.Event) {
	m.events.add(ev)
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init starts the refresh tick and the status pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitForStatus(m.player.Signals(), m.player.Closed()))
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StatusMsg:
		m.player.Reconcile(player.Status(msg))
		return m, waitForStatus(m.player.Signals(), m.player.Closed())

	case TickMsg:
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()

	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case " ", "space", "p":
		if m.player.IsPlayButtonVisible() {
			m.lastErr = m.player.Play(ctx)
		} else {
			m.lastErr = m.player.Pause()
		}

	case "s":
		m.lastErr = m.player.Stop(ctx)

	case "left":
		m.lastErr = m.player.Seek(clampSeek(m.player.Snapshot(), -seekStep))

	case "right":
		m.lastErr = m.player.Seek(clampSeek(m.player.Snapshot(), seekStep))

	case "up":
		m.lastErr = m.player.SetVolume(clampVolume(m.player.Snapshot().Volume + volumeStep))

	case "down":
		m.lastErr = m.player.SetVolume(clampVolume(m.player.Snapshot().Volume - volumeStep))

	case "m":
		m.lastErr = m.player.ToggleVolumeMute()

	case "l":
		m.player.SetLoop(!m.player.Loop())

	case "o":
		m.showOutput = !m.showOutput
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// waitForStatus hands the next player status to Update, which makes the
// Bubble Tea event loop the controller's single controlling goroutine.
// It returns nil once the player is closed.
func waitForStatus(ch <-chan player.Status, closed <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case st, ok := <-ch:
			if !ok {
				return nil
			}
			return StatusMsg(st)
		case <-closed:
			return nil
		}
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// LastError returns the error from the most recent key action.
func (m Model) LastError() error {
	return m.lastErr
}

// Progress returns the position within the segment (or the whole file
// when the segment is open-ended) as 0.0 to 1.0.
func (m Model) Progress() float64 {
	s := m.player.Snapshot()
	start, end := bounds(s)
	if end <= start {
		return 0
	}
	p := (s.Position - start) / (end - start)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// =============================================================================
// Helpers
// =============================================================================

// bounds returns the playable range of the session: the segment when one
// is set, otherwise the whole file.
func bounds(s player.Session) (start, end float64) {
	start = s.Segment.Start
	if e := s.Segment.End(); e > 0 {
		return start, e
	}
	if s.Info != nil {
		return start, s.Info.Duration
	}
	return start, 0
}

func clampSeek(s player.Session, delta float64) float64 {
	start, end := bounds(s)
	pos := s.Position + delta
	if pos < start {
		pos = start
	}
	if end > start && pos > end {
		pos = end
	}
	return pos
}

func clampVolume(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// eventLog keeps the most recent controller events. Listeners run on
// whichever goroutine caused the transition, so it is locked.
type eventLog struct {
	mu     sync.Mutex
	events []player.Event
}

func (l *eventLog) add(ev player.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	if len(l.events) > eventHistory {
		l.events = l.events[len(l.events)-eventHistory:]
	}
}

func (l *eventLog) recent() []player.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]player.Event(nil), l.events...)
}
