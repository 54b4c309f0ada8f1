package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/parser"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
)

var (
	// ErrStartFailure wraps every failure to launch a process.
	ErrStartFailure = errors.New("failed to start process")

	// ErrFileLockTimeout means a media file was still held open when the
	// release wait gave up. It is recoverable: the caller may retry later.
	ErrFileLockTimeout = errors.New("media file still in use")
)

// ReleaseError reports which file stayed locked and for how long.
type ReleaseError struct {
	Path   string
	Waited time.Duration
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("%s is still in use after %s; wait a moment and try again",
		e.Path, e.Waited.Round(time.Millisecond))
}

// Unwrap makes errors.Is(err, ErrFileLockTimeout) true.
func (e *ReleaseError) Unwrap() error { return ErrFileLockTimeout }

// Thumbnail is a single decoded video frame.
type Thumbnail struct {
	At    float64 // seconds into the video
	Image image.Image
	JPEG  []byte
}

// Width returns the frame width in pixels.
func (t *Thumbnail) Width() int { return t.Image.Bounds().Dx() }

// Height returns the frame height in pixels.
func (t *Thumbnail) Height() int { return t.Image.Bounds().Dy() }

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnSpawn is called after a process starts. latency covers building
	// and starting the command.
	OnSpawn func(mode process.Mode, pid int, latency time.Duration)

	// OnSpawnFailed is called when a process could not be started.
	OnSpawnFailed func(mode process.Mode, err error)

	// OnExit is called when a process has been reaped.
	OnExit func(res process.Result)

	// OnRelease is called after every file release wait.
	OnRelease func(path string, waited time.Duration, released bool)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	MPlayer  *process.MPlayer
	Registry *Registry
	Logger   *slog.Logger

	// Fs is used for the settings override lookup, thumbnail scratch
	// files and release checks. Defaults to the OS filesystem.
	Fs afero.Fs

	// TempDir is where thumbnail scratch directories are created.
	TempDir string

	// Release polling. Zero values use DefaultPollConfig.
	ReleaseInterval time.Duration
	ReleaseTimeout  time.Duration

	// ThumbnailTimeout bounds a single frame capture (default: 30s).
	ThumbnailTimeout time.Duration

	Callbacks Callbacks
}

// Supervisor spawns tool processes, tracks them in a Registry and
// terminates them.
type Supervisor struct {
	mplayer   *process.MPlayer
	registry  *Registry
	logger    *slog.Logger
	fs        afero.Fs
	tempDir   string
	release   PollConfig
	thumbWait time.Duration
	callbacks Callbacks

	// commandFunc turns a built command into an exec.Cmd. Replaced in tests.
	commandFunc func(ctx context.Context, c process.Command) *exec.Cmd
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(logger)
	}
	mp := cfg.MPlayer
	if mp == nil {
		mp = process.NewMPlayer(nil)
	}
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	release := DefaultPollConfig()
	if cfg.ReleaseInterval > 0 {
		release.Interval = cfg.ReleaseInterval
	}
	if cfg.ReleaseTimeout > 0 {
		release.Timeout = cfg.ReleaseTimeout
	}

	thumbWait := cfg.ThumbnailTimeout
	if thumbWait <= 0 {
		thumbWait = 30 * time.Second
	}

	return &Supervisor{
		mplayer:     mp,
		registry:    registry,
		logger:      logger,
		fs:          fsys,
		tempDir:     tempDir,
		release:     release,
		thumbWait:   thumbWait,
		callbacks:   cfg.Callbacks,
		commandFunc: defaultCommand,
	}
}

func defaultCommand(ctx context.Context, c process.Command) *exec.Cmd {
	return exec.CommandContext(ctx, c.Binary, c.Args...)
}

// Registry returns the registry processes are tracked in.
func (s *Supervisor) Registry() *Registry { return s.registry }

// MPlayer returns the command builder.
func (s *Supervisor) MPlayer() *process.MPlayer { return s.mplayer }

// ReleaseTimeout returns the default release wait.
func (s *Supervisor) ReleaseTimeout() time.Duration { return s.release.Timeout }

// SettingsOverrideExists reports whether the configured MPlayer settings
// file is present.
func (s *Supervisor) SettingsOverrideExists() bool {
	path := s.mplayer.Config().SettingsPath
	if path == "" {
		return false
	}
	ok, err := afero.Exists(s.fs, path)
	return err == nil && ok
}

// PlaybackCommand returns the command SpawnPlayback would run.
func (s *Supervisor) PlaybackCommand(opts process.PlaybackOptions) process.Command {
	return s.mplayer.Playback(opts, s.SettingsOverrideExists())
}

// SpawnPlayback starts a slave-mode MPlayer. Each output line is handed
// to the matching parser from a dedicated goroutine, in order. The
// process outlives ctx; stop it with Kill or KillAndWaitForRelease.
func (s *Supervisor) SpawnPlayback(ctx context.Context, opts process.PlaybackOptions, stdout, stderr parser.LineParser) (*Handle, error) {
	c := s.PlaybackCommand(opts)
	s.logger.Debug("spawning_playback", "command", c.String())
	return s.start(context.WithoutCancel(ctx), c, true, stdout, stderr)
}

// SpawnAudioExtraction starts converting videoPath's soundtrack to
// wavPath and returns without waiting. The returned handle may be
// ignored; the process is reaped and unregistered on its own.
func (s *Supervisor) SpawnAudioExtraction(ctx context.Context, videoPath, wavPath string) (*Handle, error) {
	c := s.mplayer.ExtractAudio(videoPath, wavPath)
	h, err := s.start(context.WithoutCancel(ctx), c, false, nil, s.debugLines(c.Mode))
	if err != nil {
		return nil, err
	}
	s.logger.Info("audio_extraction_started",
		"pid", h.PID(),
		"video", videoPath,
		"wav", wavPath,
	)
	return h, nil
}

// SpawnThumbnailCapture grabs the frame at atSeconds. A capture that
// produces no usable image returns (nil, nil). Scratch files are removed
// on every path.
func (s *Supervisor) SpawnThumbnailCapture(ctx context.Context, videoPath string, atSeconds float64) (*Thumbnail, error) {
	dir := filepath.Join(s.tempDir, "mplayer-ctl-"+uuid.NewString())
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create thumbnail dir: %w", err)
	}
	defer func() {
		if err := s.fs.RemoveAll(dir); err != nil {
			s.logger.Debug("thumbnail_cleanup_failed", "dir", dir, "error", err)
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, s.thumbWait)
	defer cancel()

	c := s.mplayer.Thumbnail(videoPath, dir, atSeconds)
	h, err := s.start(tctx, c, false, nil, s.debugLines(c.Mode))
	if err != nil {
		return nil, err
	}
	<-h.Done()

	if tctx.Err() != nil {
		s.logger.Warn("thumbnail_timeout", "video", videoPath, "timeout", s.thumbWait.String())
	}

	if err := s.WaitForFileRelease(ctx, videoPath, s.release.Timeout); err != nil {
		s.logger.Warn("thumbnail_release_wait", "video", videoPath, "error", err)
	}

	data, err := afero.ReadFile(s.fs, filepath.Join(dir, process.ThumbnailFileName))
	if err != nil {
		s.logger.Debug("thumbnail_missing", "video", videoPath, "exit_code", h.ExitCode())
		return nil, nil
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Debug("thumbnail_undecodable", "video", videoPath, "error", err)
		return nil, nil
	}

	return &Thumbnail{At: atSeconds, Image: img, JPEG: data}, nil
}

// CaptureOutput runs c to completion and returns its combined stdout and
// stderr. A non-zero exit is returned as an error alongside the output.
func (s *Supervisor) CaptureOutput(ctx context.Context, c process.Command) ([]byte, error) {
	var out lockedBuffer
	h, err := s.start(ctx, c, false, &out, &out)
	if err != nil {
		return nil, err
	}
	<-h.Done()
	return out.Bytes(), h.Err()
}

// KillAndWaitForRelease kills h and waits until its media file can be
// opened again. It returns nil or an error wrapping ErrFileLockTimeout.
// A nil or already-exited handle is fine.
func (s *Supervisor) KillAndWaitForRelease(ctx context.Context, h *Handle, timeout time.Duration) error {
	if h == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = s.release.Timeout
	}

	start := time.Now()
	if err := h.Kill(); err != nil {
		s.logger.Debug("kill_failed", "pid", h.PID(), "error", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.Done():
	case <-timer.C:
		s.logger.Warn("process_exit_timeout", "pid", h.PID(), "timeout", timeout.String())
		return &ReleaseError{Path: h.MediaPath(), Waited: time.Since(start)}
	case <-ctx.Done():
		return ctx.Err()
	}

	remaining := timeout - time.Since(start)
	if remaining < 0 {
		remaining = 0
	}
	return s.WaitForFileRelease(ctx, h.MediaPath(), remaining)
}

// WaitForFileRelease polls until path can be opened for writing or
// timeout elapses.
func (s *Supervisor) WaitForFileRelease(ctx context.Context, path string, timeout time.Duration) error {
	if path == "" {
		return nil
	}

	start := time.Now()
	cfg := PollConfig{Interval: s.release.Interval, Timeout: timeout}
	ok := Poll(ctx, cfg, func() bool { return s.fileReleased(path) })
	waited := time.Since(start)

	if s.callbacks.OnRelease != nil {
		s.callbacks.OnRelease(path, waited, ok)
	}

	if ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Warn("file_release_timeout", "path", path, "waited", waited.String())
	return &ReleaseError{Path: path, Waited: waited}
}

// fileReleased reports whether no process holds path. A missing file is
// released. Files we may not write to are checked read-only.
func (s *Supervisor) fileReleased(path string) bool {
	f, err := s.fs.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrPermission) {
		f, err = s.fs.OpenFile(path, os.O_RDONLY, 0)
	}
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	_ = f.Close()
	return true
}

// CleanupAll kills every tracked process. Safe to call from signal
// handlers and panic recovery.
func (s *Supervisor) CleanupAll() int {
	return s.registry.CleanupAll()
}

// start launches c, registers it and starts one reader goroutine per
// output stream that has a parser. A reaper closes the handle's Done
// channel after the readers drain and the process is waited on.
func (s *Supervisor) start(ctx context.Context, c process.Command, withStdin bool, stdout, stderr parser.LineParser) (*Handle, error) {
	begin := time.Now()

	cmd := s.commandFunc(ctx, c)
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd.Process.Pid)
	}
	h := newHandle(c, cmd)

	fail := func(err error) (*Handle, error) {
		err = fmt.Errorf("%w: %s: %w", ErrStartFailure, c.Mode, err)
		s.logger.Error("failed_to_start_process",
			"mode", string(c.Mode),
			"binary", c.Binary,
			"error", err,
		)
		if s.callbacks.OnSpawnFailed != nil {
			s.callbacks.OnSpawnFailed(c.Mode, err)
		}
		return nil, err
	}

	if withStdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fail(fmt.Errorf("stdin pipe: %w", err))
		}
		h.stdin = stdin
	}

	var pipes []io.Reader
	var parsers []parser.LineParser
	if stdout != nil {
		r, err := cmd.StdoutPipe()
		if err != nil {
			return fail(fmt.Errorf("stdout pipe: %w", err))
		}
		pipes, parsers = append(pipes, r), append(parsers, stdout)
	}
	if stderr != nil {
		r, err := cmd.StderrPipe()
		if err != nil {
			return fail(fmt.Errorf("stderr pipe: %w", err))
		}
		pipes, parsers = append(pipes, r), append(parsers, stderr)
	}

	if err := cmd.Start(); err != nil {
		return fail(err)
	}
	h.pid = cmd.Process.Pid
	h.startTime = time.Now()
	h.setState(StateRunning)

	if err := s.registry.Add(h.pid, c.Mode); err != nil {
		_ = h.Kill()
		_ = cmd.Wait()
		h.setState(StateExited)
		close(h.done)
		return fail(err)
	}

	readers := make([]*parser.PipeReader, len(pipes))
	for i := range pipes {
		reader := parser.NewPipeReader(pipes[i], parsers[i])
		readers[i] = reader
		go reader.Run()
	}

	go s.reap(h, readers)

	latency := time.Since(begin)
	s.logger.Info("process_started",
		"mode", string(c.Mode),
		"pid", h.pid,
		"media", c.MediaPath,
		"latency", latency.String(),
	)
	if s.callbacks.OnSpawn != nil {
		s.callbacks.OnSpawn(c.Mode, h.pid, latency)
	}

	return h, nil
}

// reap waits for output to drain, then for the process, then unregisters
// it. Done is closed last so waiters observe the exit callback's effects.
func (s *Supervisor) reap(h *Handle, readers []*parser.PipeReader) {
	var outBytes, outLines int64
	for _, r := range readers {
		<-r.Done()
		b, l := r.Stats()
		outBytes += b
		outLines += l
		if err := r.Err(); err != nil {
			s.logger.Debug("process_output_read_error", "mode", string(h.mode), "pid", h.pid, "error", err)
		}
	}
	waitErr := h.cmd.Wait()

	h.exitCode = extractExitCode(waitErr)
	h.waitErr = waitErr
	h.uptime = time.Since(h.startTime)
	killed := h.State() == StateKilled
	h.setState(StateExited)
	s.registry.Remove(h.pid)
	defer close(h.done)

	s.logger.Info("process_exited",
		"mode", string(h.mode),
		"pid", h.pid,
		"exit_code", h.exitCode,
		"killed", killed,
		"uptime", h.uptime.String(),
		"output_lines", outLines,
		"output_bytes", outBytes,
	)

	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(process.Result{
			Mode:      h.mode,
			PID:       h.pid,
			ExitCode:  h.exitCode,
			StartTime: h.startTime,
			Uptime:    h.uptime,
			Killed:    killed,
		})
	}
}

// debugLines logs auxiliary process output at debug level.
func (s *Supervisor) debugLines(mode process.Mode) parser.LineParser {
	return parser.LineParserFunc(func(line string) {
		s.logger.Debug("process_output", "mode", string(mode), "line", line)
	})
}

// lockedBuffer collects lines from two reader goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) ParseLine(line string) {
	b.mu.Lock()
	b.buf.WriteString(line)
	b.buf.WriteByte('\n')
	b.mu.Unlock()
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
