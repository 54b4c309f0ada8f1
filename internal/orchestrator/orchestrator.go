// Package orchestrator wires the supervisor, prober, playback controller,
// metrics and front-end together for one run of the program.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/config"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/logging"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/metrics"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/player"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/preflight"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/probe"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/stats"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/supervisor"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/tui"
)

// ErrPreflight is returned by Run when a required preflight check fails.
var ErrPreflight = errors.New("preflight checks failed (use --skip-preflight to override)")

// Status is the /status endpoint payload.
type Status struct {
	State     string  `json:"state"`
	Path      string  `json:"path,omitempty"`
	Position  float64 `json:"position"`
	Volume    int     `json:"volume"`
	Muted     bool    `json:"muted"`
	Loop      bool    `json:"loop"`
	Processes int     `json:"processes"`
}

// Orchestrator coordinates all components for one run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	fs     afero.Fs
	stdout io.Writer

	output     *logging.OutputLog
	registry   *supervisor.Registry
	supervisor *supervisor.Supervisor
	prober     *probe.Prober // nil with -skip-probe
	controller *player.Controller

	promRegistry  *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server // nil when -metrics is empty

	startTime time.Time
	cleaned   int
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, version string) *Orchestrator {
	fsys := afero.NewOsFs()

	mpCfg := cfg.MPlayerConfig()
	mp := process.NewMPlayer(&mpCfg)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version: version,
		MPlayer: cfg.MPlayerPath,
	}, promRegistry)

	registry := supervisor.NewRegistry(logger)
	sup := supervisor.New(supervisor.Config{
		MPlayer:          mp,
		Registry:         registry,
		Logger:           logger,
		Fs:               fsys,
		TempDir:          cfg.TempDir,
		ReleaseInterval:  cfg.ReleaseInterval,
		ReleaseTimeout:   cfg.ReleaseTimeout,
		ThumbnailTimeout: cfg.ThumbnailTimeout,
		Callbacks:        collector.SupervisorCallbacks(),
	})

	o := &Orchestrator{
		config:       cfg,
		logger:       logger,
		fs:           fsys,
		stdout:       os.Stdout,
		output:       logging.NewOutputLog(cfg.OutputLines, logger, cfg.Verbose),
		registry:     registry,
		supervisor:   sup,
		promRegistry: promRegistry,
		metrics:      collector,
	}

	if !cfg.SkipProbe {
		o.prober = probe.New(probe.Config{
			Tools:          sup,
			MPlayer:        mp,
			Logger:         logger,
			ReleaseTimeout: cfg.ReleaseTimeout,
			// Frames are only captured for -thumbnail.
			SkipThumbnail: cfg.Thumbnail == "",
		})
	}

	ctrlCfg := player.Config{
		Spawner:        player.NewSupervisorSpawner(sup),
		Fs:             fsys,
		Logger:         logger,
		Volume:         cfg.Volume,
		Muted:          cfg.Mute,
		Loop:           cfg.Loop,
		WindowID:       cfg.WindowID,
		ReleaseTimeout: cfg.ReleaseTimeout,
		Output:         o.output,
		Hooks:          collector.PlayerHooks(),
	}
	// A nil *probe.Prober must not end up inside the interface.
	if o.prober != nil {
		ctrlCfg.Prober = o.prober
	}
	o.controller = player.New(ctrlCfg)
	o.controller.Subscribe(collector.ObserveEvent)

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, logger, promRegistry, o.status)
	}

	return o
}

// SetOutput redirects what Run prints (banner, tool results, summary).
func (o *Orchestrator) SetOutput(w io.Writer) {
	o.stdout = w
}

// Run executes the configured mode. It blocks until playback ends, the
// user quits, or a signal arrives.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	o.startTime = time.Now()

	// Never leave a player behind, even on panic.
	defer func() {
		if r := recover(); r != nil {
			o.registry.CleanupAll()
			panic(r)
		}
	}()

	if !o.config.SkipPreflight {
		result := preflight.RunAll(ctx, preflight.Options{
			MPlayerPath: o.config.MPlayerPath,
			FFprobePath: o.supervisor.MPlayer().FFprobePath(),
			NeedFFprobe: o.config.Probe || (!o.config.SkipProbe && o.config.Thumbnail != "" && o.config.ThumbnailAt < 0),
			MediaPath:   o.config.MediaPath,
			TempDir:     o.config.TempDir,
			Fs:          o.fs,
		})
		preflight.PrintResults(o.stdout, result)
		if !result.Passed {
			return ErrPreflight
		}
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.config.OneShot() {
		err = o.runTools(ctx)
	} else {
		err = o.runPlayback(ctx)
	}

	o.shutdown()

	if !o.config.OneShot() {
		fmt.Fprint(o.stdout, o.summary())
	}
	if o.config.DumpMetrics {
		if werr := metrics.WriteText(o.stdout, o.promRegistry); werr != nil {
			o.logger.Warn("metrics_dump_failed", "error", werr)
		}
	}

	return err
}

// shutdown stops the controller, kills anything still tracked and stops
// the metrics server.
func (o *Orchestrator) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.controller.Close(shutdownCtx); err != nil {
		o.logger.Warn("controller_close_incomplete", "error", err)
	}

	if n := o.registry.Close(); n > 0 {
		o.logger.Info("cleanup_killed_processes", "count", n)
		o.cleaned = n
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}
}

// =============================================================================
// Playback
// =============================================================================

func (o *Orchestrator) runPlayback(ctx context.Context) error {
	o.logger.Info("loading_media",
		"path", o.config.MediaPath,
		"start", o.config.Start,
		"length", o.config.Length,
	)
	if err := o.controller.LoadFile(ctx, o.config.MediaPath, o.config.Segment()); err != nil {
		if !errors.Is(err, supervisor.ErrFileLockTimeout) {
			return fmt.Errorf("load %s: %w", o.config.MediaPath, err)
		}
		o.logger.Warn("load_release_timeout", "error", err)
	}

	if o.config.TUIEnabled {
		return o.runTUI(ctx)
	}
	return o.runHeadless(ctx)
}

func (o *Orchestrator) runTUI(ctx context.Context) error {
	model := tui.New(tui.Config{
		Player:      o.controller,
		Output:      o.output,
		MetricsAddr: o.config.MetricsAddr,
	})
	unsubscribe := o.controller.Subscribe(model.Listen)
	defer unsubscribe()

	if err := o.controller.Play(ctx); err != nil {
		o.logger.Warn("autoplay_failed", "error", err)
	}

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func (o *Orchestrator) runHeadless(ctx context.Context) error {
	o.printBanner()

	ended := make(chan struct{})
	var once sync.Once
	unsubscribe := o.controller.Subscribe(func(ev player.Event) {
		o.logEvent(ev)
		if ev.Kind == player.PlaybackEnded && !o.controller.Loop() {
			once.Do(func() { close(ended) })
		}
	})
	defer unsubscribe()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = o.controller.Run(runCtx)
	}()

	err := o.controller.Play(ctx)
	if err == nil {
		select {
		case <-ended:
			o.logger.Info("playback_complete")
		case <-ctx.Done():
			o.logger.Info("interrupted")
		}
	}

	cancel()
	<-runDone
	return err
}

func (o *Orchestrator) logEvent(ev player.Event) {
	switch ev.Kind {
	case player.PlaybackPositionChanged:
		o.logger.Debug("player_event", "event", ev.Kind.String(), "position", ev.Position)
	default:
		o.logger.Info("player_event",
			"event", ev.Kind.String(),
			"path", ev.Path,
			"position", ev.Position,
			"volume", ev.Volume,
			"muted", ev.Muted,
		)
	}
}

// printBanner prints the headless startup banner.
func (o *Orchestrator) printBanner() {
	w := o.stdout
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Media:       %s\n", o.config.MediaPath)
	seg := o.config.Segment()
	fmt.Fprintf(w, "  Segment:     %s\n", stats.FormatRange(seg.Start, seg.End()))
	fmt.Fprintf(w, "  Volume:      %d", o.config.Volume)
	if o.config.Mute {
		fmt.Fprint(w, " (muted)")
	}
	fmt.Fprintln(w)
	if o.config.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", o.config.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}

// =============================================================================
// Tool modes
// =============================================================================

func (o *Orchestrator) runTools(ctx context.Context) error {
	if o.config.Probe {
		if err := o.runProbe(ctx); err != nil {
			return err
		}
	}
	if o.config.ExtractAudio != "" {
		if err := o.runExtractAudio(ctx); err != nil {
			return err
		}
	}
	if o.config.Thumbnail != "" {
		if err := o.runThumbnail(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runProbe(ctx context.Context) error {
	if o.prober == nil {
		return errors.New("-probe cannot be combined with -skip-probe")
	}
	info, err := o.prober.Probe(ctx, o.config.MediaPath)
	if err != nil {
		return err
	}
	printMediaInfo(o.stdout, info)
	return nil
}

func (o *Orchestrator) runExtractAudio(ctx context.Context) error {
	h, err := o.supervisor.SpawnAudioExtraction(ctx, o.config.MediaPath, o.config.ExtractAudio)
	if err != nil {
		return err
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		_ = o.supervisor.KillAndWaitForRelease(context.Background(), h, o.config.ReleaseTimeout)
		return ctx.Err()
	}

	if code := h.ExitCode(); code != 0 {
		return fmt.Errorf("audio extraction exited with code %d", code)
	}
	fmt.Fprintf(o.stdout, "Wrote %s\n", o.config.ExtractAudio)
	return nil
}

func (o *Orchestrator) runThumbnail(ctx context.Context) error {
	var thumb *supervisor.Thumbnail

	if o.config.ThumbnailAt >= 0 || o.prober == nil {
		at := o.config.ThumbnailAt
		if at < 0 {
			at = 0
		}
		t, err := o.supervisor.SpawnThumbnailCapture(ctx, o.config.MediaPath, at)
		if err != nil {
			return err
		}
		thumb = t
	} else {
		info, err := o.prober.Probe(ctx, o.config.MediaPath)
		if err != nil {
			return err
		}
		if !info.IsVideo {
			return fmt.Errorf("%s has no video stream", o.config.MediaPath)
		}
		thumb = info.Thumbnail
	}

	if thumb == nil {
		return fmt.Errorf("no frame captured from %s", o.config.MediaPath)
	}
	if err := afero.WriteFile(o.fs, o.config.Thumbnail, thumb.JPEG, 0o644); err != nil {
		return fmt.Errorf("write thumbnail: %w", err)
	}
	fmt.Fprintf(o.stdout, "Wrote %s (%dx%d at %s)\n",
		o.config.Thumbnail, thumb.Width(), thumb.Height(), stats.FormatTime(thumb.At))
	return nil
}

// printMediaInfo prints the probe result.
func printMediaInfo(w io.Writer, info *probe.MediaInfo) {
	fmt.Fprintf(w, "File:        %s\n", info.Path)
	fmt.Fprintf(w, "Duration:    %s\n", stats.FormatTime(info.Duration))
	if info.StartTime > 0 {
		fmt.Fprintf(w, "Start:       %s\n", stats.FormatTime(info.StartTime))
	}
	fmt.Fprintf(w, "Audio:       %s\n", info.AudioCodec)
	if info.IsVideo {
		width, height := info.PictureSize()
		fmt.Fprintf(w, "Video:       %s %dx%d\n", info.VideoCodec, width, height)
	}
	if info.Thumbnail != nil {
		fmt.Fprintf(w, "Thumbnail:   %dx%d at %s\n",
			info.Thumbnail.Width(), info.Thumbnail.Height(), stats.FormatTime(info.Thumbnail.At))
	}
}

// =============================================================================
// Reporting
// =============================================================================

// status is the /status snapshot.
func (o *Orchestrator) status() any {
	s := o.controller.Snapshot()
	return Status{
		State:     s.State().String(),
		Path:      s.Path,
		Position:  s.Position,
		Volume:    s.Volume,
		Muted:     s.Muted,
		Loop:      o.controller.Loop(),
		Processes: o.registry.Len(),
	}
}

// summary formats the exit summary.
func (o *Orchestrator) summary() string {
	return stats.FormatExitSummary(o.metrics.GenerateSummary(), stats.SummaryConfig{
		Duration:       time.Since(o.startTime),
		MediaPath:      o.controller.Snapshot().Path,
		MetricsAddr:    o.config.MetricsAddr,
		OutputWarnings: o.output.CountWarnings(),
		Cleaned:        o.cleaned,
	})
}

// Controller returns the playback controller.
func (o *Orchestrator) Controller() *player.Controller {
	return o.controller
}

// Registry returns the process registry.
func (o *Orchestrator) Registry() *supervisor.Registry {
	return o.registry
}

// Metrics returns the metrics collector.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}
