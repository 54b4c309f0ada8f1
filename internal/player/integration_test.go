//go:build integration

// Integration tests drive a real MPlayer. Run with:
//
//	MPLAYER_TEST_MEDIA=/path/to/clip.wav go test -tags=integration ./internal/player/...
package player

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/supervisor"
)

// testMedia returns the clip to play, skipping when none is configured.
func testMedia(t *testing.T) string {
	path := os.Getenv("MPLAYER_TEST_MEDIA")
	if path == "" {
		t.Skip("MPLAYER_TEST_MEDIA not set - skipping integration test")
	}
	return path
}

// requireMPlayer skips the test if MPlayer is not available.
func requireMPlayer(t *testing.T) {
	if _, err := exec.LookPath("mplayer"); err != nil {
		t.Skip("mplayer not found in PATH - skipping integration test")
	}
}

func newRealController(t *testing.T) (*Controller, *recorder, *supervisor.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := supervisor.NewRegistry(logger)
	cfg := process.DefaultMPlayerConfig()
	cfg.VideoOutput = "null"
	sup := supervisor.New(supervisor.Config{
		MPlayer:  process.NewMPlayer(cfg),
		Registry: registry,
		Logger:   logger,
	})

	c := New(Config{
		Spawner: NewSupervisorSpawner(sup),
		Logger:  logger,
	})
	rec := newRecorder(nil)
	c.Subscribe(rec.listen)

	t.Cleanup(func() {
		_ = c.Close(context.Background())
		registry.Close()
	})
	return c, rec, registry
}

func TestIntegration_PlayPauseStop(t *testing.T) {
	requireMPlayer(t)
	media := testMedia(t)
	c, rec, registry := newRealController(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	if err := c.LoadFile(ctx, media, Segment{}); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	rec.waitFor(t, PlaybackPositionChanged)

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	rec.waitFor(t, PlaybackPaused)
	if !c.IsPaused() {
		t.Error("IsPaused() = false after ID_PAUSED")
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if registry.Len() != 0 {
		t.Errorf("registry still tracks %v after Stop", registry.PIDs())
	}
}

func TestIntegration_SegmentEndsOnItsOwn(t *testing.T) {
	requireMPlayer(t)
	media := testMedia(t)
	c, rec, _ := newRealController(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	if err := c.LoadFile(ctx, media, Segment{Start: 0, Length: 0.5}); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	rec.waitFor(t, PlaybackEnded)

	if c.State() != StateLoaded {
		t.Errorf("State() = %v, want loaded", c.State())
	}
}
