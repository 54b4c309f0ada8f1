package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/parser"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/probe"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
)

var (
	// ErrNoMedia is returned by Play when no file is loaded.
	ErrNoMedia = errors.New("no media loaded")

	// ErrMediaNotFound is returned by LoadFile for an empty or missing path.
	ErrMediaNotFound = errors.New("media file not found")

	// ErrInvalidSegment is returned by LoadFile for a negative start or length.
	ErrInvalidSegment = errors.New("invalid segment")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("controller closed")
)

// Status is a parsed output signal tagged with the generation of the
// process that produced it.
type Status struct {
	Gen    uint64
	Signal parser.Signal
}

// Hooks are optional observers, typically metrics.
type Hooks struct {
	// OnCommand is called after every protocol write.
	OnCommand func(cmd Command, err error)

	// OnReconcile is called for every status handed to Reconcile.
	OnReconcile func(sig parser.Signal, stale bool)
}

// Config holds configuration for creating a new Controller.
type Config struct {
	Spawner Spawner
	Prober  MediaProber // optional
	Fs      afero.Fs    // used to check that files exist; defaults to the OS
	Logger  *slog.Logger

	// Volume is the initial volume. Out-of-range values become DefaultVolume.
	Volume int
	Muted  bool
	Loop   bool

	// WindowID embeds video output in an existing window.
	WindowID int64

	// ReleaseTimeout bounds every kill-and-wait (default: 5s).
	ReleaseTimeout time.Duration

	// SignalBuffer is the capacity of the Signals channel (default: 64).
	SignalBuffer int

	// Output receives every raw line the playback process prints.
	Output parser.LineParser

	Hooks Hooks
}

// Controller is the playback state machine. Its API is meant to be driven
// from one controlling goroutine, which also consumes Signals (or calls
// Run). Query methods are safe from any goroutine.
type Controller struct {
	spawner        Spawner
	prober         MediaProber
	fs             afero.Fs
	logger         *slog.Logger
	windowID       int64
	releaseTimeout time.Duration
	output         parser.LineParser
	hooks          Hooks

	mu      sync.Mutex
	session Session
	loop    bool
	proc    Process
	gen     uint64
	stop    chan struct{} // closed when proc is detached
	closed  bool

	signals  chan Status
	closedCh chan struct{}

	listenersMu sync.Mutex
	listeners   []listenerEntry
	nextID      int
}

type listenerEntry struct {
	id int
	fn Listener
}

// New creates a controller in the idle state.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	volume := cfg.Volume
	if volume < 0 || volume > 100 {
		volume = DefaultVolume
	}
	timeout := cfg.ReleaseTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	buf := cfg.SignalBuffer
	if buf <= 0 {
		buf = 64
	}
	output := cfg.Output
	if output == nil {
		output = parser.NoopParser{}
	}

	return &Controller{
		spawner:        cfg.Spawner,
		prober:         cfg.Prober,
		fs:             fsys,
		logger:         logger,
		windowID:       cfg.WindowID,
		releaseTimeout: timeout,
		output:         output,
		hooks:          cfg.Hooks,
		session:        Session{Volume: volume, Muted: cfg.Muted},
		loop:           cfg.Loop,
		signals:        make(chan Status, buf),
		closedCh:       make(chan struct{}),
	}
}

// =============================================================================
// Commands
// =============================================================================

// LoadFile queues path for playback. The file is checked (and probed when
// a prober is configured) before anything changes; on failure the
// previous session is untouched. Any running process is then killed and
// its file released before MediaQueued is emitted. A release timeout is
// returned but the new file stays loaded.
func (c *Controller) LoadFile(ctx context.Context, path string, seg Segment) error {
	if path == "" {
		return ErrMediaNotFound
	}
	if seg.Start < 0 || seg.Length < 0 {
		return fmt.Errorf("%w: start=%v length=%v", ErrInvalidSegment, seg.Start, seg.Length)
	}
	if _, err := c.fs.Stat(path); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMediaNotFound, path, err)
	}

	var info *probe.MediaInfo
	if c.prober != nil {
		var err error
		if info, err = c.prober.Probe(ctx, path); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.detachLocked()
	c.session = Session{
		Path:     path,
		Segment:  seg,
		Position: seg.Start,
		Volume:   c.session.Volume,
		Muted:    c.session.Muted,
		Info:     info,
	}
	ev := c.eventLocked(MediaQueued)
	c.mu.Unlock()

	var err error
	if old != nil {
		err = c.spawner.KillAndWaitForRelease(ctx, old, c.releaseTimeout)
	}

	c.logger.Info("media_queued", "path", path, "start", seg.Start, "length", seg.Length)
	c.emit(ev)
	return err
}

// Play starts or resumes playback. From Loaded it spawns a process at the
// segment start; from Paused it sends a pause toggle; while Playing it
// does nothing.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	switch c.session.State() {
	case StateIdle:
		c.mu.Unlock()
		return ErrNoMedia
	case StatePlaying:
		c.mu.Unlock()
		return nil
	case StatePaused:
		proc := c.proc
		c.mu.Unlock()
		// The paused flag clears when the player reports a position again.
		return c.send(proc, PauseCommand())
	}

	c.gen++
	gen := c.gen
	stop := make(chan struct{})
	opts := process.PlaybackOptions{
		Path:     c.session.Path,
		Start:    c.session.Segment.Start,
		Length:   c.session.Segment.Length,
		Volume:   c.session.Volume,
		WindowID: c.windowID,
	}

	proc, err := c.spawner.SpawnPlayback(ctx, opts, c.statusParser(gen, stop), c.output)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.proc = proc
	c.stop = stop
	c.session.Started = true
	c.session.Paused = false
	c.session.Position = opts.Start
	muted := c.session.Muted
	ev := c.eventLocked(PlaybackStarted)
	c.mu.Unlock()

	if muted {
		_ = c.send(proc, VolumeCommand(opts.Volume, true))
	}

	c.logger.Info("playback_started", "pid", proc.PID(), "path", opts.Path, "start", opts.Start)
	c.emit(ev)
	return nil
}

// Pause asks a playing process to pause. The paused state is only set
// once the player confirms with ID_PAUSED.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.session.State() != StatePlaying {
		c.mu.Unlock()
		return nil
	}
	proc := c.proc
	c.mu.Unlock()
	return c.send(proc, PauseCommand())
}

// Stop ends playback and waits for the file to be released. The file
// stays loaded. It does nothing if playback never started.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.session.Started || c.proc == nil {
		c.mu.Unlock()
		return nil
	}
	proc := c.proc
	_ = c.send(proc, StopCommand())
	c.detachLocked()
	c.session.Started = false
	c.session.Paused = false
	ev := c.eventLocked(PlaybackStopped)
	c.mu.Unlock()

	err := c.spawner.KillAndWaitForRelease(ctx, proc, c.releaseTimeout)
	c.logger.Info("playback_stopped", "pid", proc.PID(), "path", ev.Path)
	c.emit(ev)
	return err
}

// Seek moves playback to an absolute position in seconds. Position is
// updated when the player reports it.
func (c *Controller) Seek(seconds float64) error {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()
	return c.send(proc, SeekCommand(seconds))
}

// SetVolume sets the volume. Values outside [0,100] are ignored.
func (c *Controller) SetVolume(volume int) error {
	if volume < 0 || volume > 100 {
		return nil
	}

	c.mu.Lock()
	c.session.Volume = volume
	proc, muted := c.proc, c.session.Muted
	ev := c.eventLocked(VolumeChanged)
	c.mu.Unlock()

	err := c.send(proc, VolumeCommand(volume, muted))
	c.emit(ev)
	return err
}

// ToggleVolumeMute flips the mute flag and re-sends the volume command.
func (c *Controller) ToggleVolumeMute() error {
	c.mu.Lock()
	c.session.Muted = !c.session.Muted
	proc, volume, muted := c.proc, c.session.Volume, c.session.Muted
	ev := c.eventLocked(VolumeChanged)
	c.mu.Unlock()

	err := c.send(proc, VolumeCommand(volume, muted))
	c.emit(ev)
	return err
}

// SetLoop turns loop mode on or off. In loop mode reaching the end of a
// queued file starts it again.
func (c *Controller) SetLoop(loop bool) {
	c.mu.Lock()
	c.loop = loop
	c.mu.Unlock()
}

// Close kills the playback process, stops Run and drops all listeners.
// It is safe to call more than once.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	old := c.detachLocked()
	c.session.Started = false
	c.session.Paused = false
	close(c.closedCh)
	c.mu.Unlock()

	var err error
	if old != nil {
		err = c.spawner.KillAndWaitForRelease(ctx, old, c.releaseTimeout)
	}

	c.listenersMu.Lock()
	c.listeners = nil
	c.listenersMu.Unlock()
	return err
}

// =============================================================================
// Reconciliation
// =============================================================================

// Signals delivers parsed output from the playback process, in order.
// The controlling goroutine passes each value to Reconcile.
func (c *Controller) Signals() <-chan Status {
	return c.signals
}

// Closed is closed once Close has been called. Consumers of Signals
// select on it so they stop waiting after shutdown.
func (c *Controller) Closed() <-chan struct{} {
	return c.closedCh
}

// Run reconciles signals until ctx is done or the controller is closed.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closedCh:
			return nil
		case st := <-c.signals:
			c.Reconcile(st)
		}
	}
}

// Reconcile applies one status to the session. Statuses from a process
// that has since been stopped or replaced are dropped.
func (c *Controller) Reconcile(st Status) {
	c.mu.Lock()
	if c.closed || st.Gen != c.gen {
		c.mu.Unlock()
		c.observe(st.Signal, true)
		return
	}

	var (
		events []Event
		victim Process
		replay bool
	)

	switch st.Signal.Kind {
	case parser.SignalPosition:
		if c.session.Paused {
			c.session.Paused = false
			events = append(events, c.eventLocked(PlaybackResumed))
		}
		c.session.Position = st.Signal.Position
		events = append(events, c.eventLocked(PlaybackPositionChanged))

	case parser.SignalPaused:
		c.session.Paused = true
		events = append(events, c.eventLocked(PlaybackPaused))

	case parser.SignalEndOfStream:
		c.session.Started = false
		c.session.Paused = false
		victim = c.detachLocked()
		events = append(events, c.eventLocked(PlaybackEnded))
		if c.session.Path != "" {
			events = append(events, c.eventLocked(MediaQueued))
			replay = c.loop
		}
	}
	c.mu.Unlock()

	c.observe(st.Signal, false)

	if victim != nil {
		// The idle process is not waited on; nothing else needs the file yet.
		if err := victim.Kill(); err != nil {
			c.logger.Debug("kill_after_eof_failed", "pid", victim.PID(), "error", err)
		}
	}

	c.emit(events...)

	if replay {
		if err := c.Play(context.Background()); err != nil {
			c.logger.Warn("loop_restart_failed", "error", err)
		}
	}
}

// statusParser feeds one process's stdout to the output log and its
// recognized signals into the signal channel. Sends block until the
// consumer takes them or the process is detached.
func (c *Controller) statusParser(gen uint64, stop <-chan struct{}) parser.LineParser {
	return parser.Tee(c.output, &parser.StatusParser{
		Emit: func(sig parser.Signal) {
			select {
			case c.signals <- Status{Gen: gen, Signal: sig}:
			case <-stop:
			}
		},
	})
}

// detachLocked forgets the current process and invalidates its pending
// signals. Callers hold c.mu.
func (c *Controller) detachLocked() Process {
	proc := c.proc
	c.proc = nil
	c.gen++
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	return proc
}

// =============================================================================
// Events
// =============================================================================

// Subscribe registers l and returns a function that unregisters it.
func (c *Controller) Subscribe(l Listener) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: l})
	c.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			defer c.listenersMu.Unlock()
			for i, e := range c.listeners {
				if e.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Controller) eventLocked(kind EventKind) Event {
	return Event{
		Kind:     kind,
		Path:     c.session.Path,
		Position: c.session.Position,
		Volume:   c.session.Volume,
		Muted:    c.session.Muted,
	}
}

// emit delivers events outside c.mu so listeners may call query methods.
func (c *Controller) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	c.listenersMu.Lock()
	listeners := make([]Listener, len(c.listeners))
	for i, e := range c.listeners {
		listeners[i] = e.fn
	}
	c.listenersMu.Unlock()

	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
}

// send writes cmd to proc. A nil proc is a no-op.
func (c *Controller) send(proc Process, cmd Command) error {
	if proc == nil {
		return nil
	}
	_, err := io.WriteString(proc, cmd.Wire())
	if err != nil {
		err = fmt.Errorf("send %s: %w", cmd.Name, err)
		c.logger.Warn("command_write_failed", "command", cmd.Name, "pid", proc.PID(), "error", err)
	} else {
		c.logger.Debug("command_sent", "command", cmd.Name, "args", cmd.Args)
	}
	if c.hooks.OnCommand != nil {
		c.hooks.OnCommand(cmd, err)
	}
	return err
}

func (c *Controller) observe(sig parser.Signal, stale bool) {
	if c.hooks.OnReconcile != nil {
		c.hooks.OnReconcile(sig, stale)
	}
}

// =============================================================================
// Queries
// =============================================================================

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// State returns the current playback state.
func (c *Controller) State() State {
	return c.Snapshot().State()
}

// Position returns the last reported position in seconds.
func (c *Controller) Position() float64 {
	return c.Snapshot().Position
}

// IsPaused reports whether the player confirmed a pause.
func (c *Controller) IsPaused() bool {
	return c.Snapshot().Paused
}

// HasPlaybackStarted reports whether a process is playing the file.
func (c *Controller) HasPlaybackStarted() bool {
	return c.Snapshot().Started
}

// Volume returns the current volume.
func (c *Controller) Volume() int {
	return c.Snapshot().Volume
}

// IsMuted reports whether the volume is muted.
func (c *Controller) IsMuted() bool {
	return c.Snapshot().Muted
}

// MediaInfo returns the probe result for the loaded file, if any.
func (c *Controller) MediaInfo() *probe.MediaInfo {
	return c.Snapshot().Info
}

// IsPlayButtonVisible reports whether a UI should offer Play rather than
// Pause/Stop.
func (c *Controller) IsPlayButtonVisible() bool {
	s := c.Snapshot()
	return !s.Started || s.Paused
}

// Loop reports whether loop mode is on.
func (c *Controller) Loop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop
}
