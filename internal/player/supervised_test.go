package player

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/supervisor"
)

// slaveScript stands in for MPlayer: it reports a position on start and
// toggles between ID_PAUSED and a new position on every pause command.
const slaveScript = `#!/bin/sh
paused=0
echo "A:   0.5 V:   0.5 A-V:  0.000"
while read -r line; do
	case "$line" in
	pause*)
		if [ "$paused" -eq 0 ]; then
			paused=1
			echo ID_PAUSED
		else
			paused=0
			echo "A:   1.0 V:   1.0 A-V:  0.000"
		fi
		;;
	esac
done
`

// registrySample is an event kind paired with the number of tracked
// processes at the moment the event was delivered.
type registrySample struct {
	Kind    EventKind
	Tracked int
}

func TestLoadFile_SupervisedProcessReleasedBeforeQueueing(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "mplayer")
	if err := os.WriteFile(script, []byte(slaveScript), 0o755); err != nil {
		t.Fatal(err)
	}
	mediaA := filepath.Join(dir, "a.wav")
	mediaB := filepath.Join(dir, "b.wav")
	for _, p := range []string{mediaA, mediaB} {
		if err := os.WriteFile(p, []byte("media"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := supervisor.NewRegistry(logger)
	sup := supervisor.New(supervisor.Config{
		MPlayer:         process.NewMPlayer(&process.MPlayerConfig{BinaryPath: script}),
		Registry:        registry,
		Logger:          logger,
		TempDir:         dir,
		ReleaseInterval: 10 * time.Millisecond,
		ReleaseTimeout:  2 * time.Second,
	})
	c := New(Config{
		Spawner:        NewSupervisorSpawner(sup),
		Logger:         logger,
		ReleaseTimeout: 2 * time.Second,
	})

	var (
		mu      sync.Mutex
		samples []registrySample
	)
	c.Subscribe(func(ev Event) {
		mu.Lock()
		samples = append(samples, registrySample{Kind: ev.Kind, Tracked: registry.Len()})
		mu.Unlock()
	})
	rec := newRecorder(nil)
	c.Subscribe(rec.listen)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = c.Run(ctx)
	}()
	defer func() {
		_ = c.Close(context.Background())
		<-runDone
		registry.Close()
	}()

	if err := c.LoadFile(ctx, mediaA, Segment{}); err != nil {
		t.Fatalf("LoadFile(a) error = %v", err)
	}
	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	rec.waitFor(t, PlaybackPositionChanged)

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	rec.waitFor(t, PlaybackPaused)

	if err := c.Play(ctx); err != nil {
		t.Fatalf("Play() to resume error = %v", err)
	}
	rec.waitFor(t, PlaybackResumed)
	if registry.Len() != 1 {
		t.Fatalf("tracked = %d while playing, want 1", registry.Len())
	}

	if err := c.LoadFile(ctx, mediaB, Segment{}); err != nil {
		t.Fatalf("LoadFile(b) error = %v", err)
	}

	mu.Lock()
	got := append([]registrySample(nil), samples...)
	mu.Unlock()

	var queued []registrySample
	for _, s := range got {
		if s.Kind == MediaQueued {
			queued = append(queued, s)
		}
	}
	want := []registrySample{{MediaQueued, 0}, {MediaQueued, 0}}
	if diff := cmp.Diff(want, queued); diff != "" {
		t.Errorf("MediaQueued samples mismatch (-want +got):\n%s\nall: %+v", diff, got)
	}
	if pids := registry.PIDs(); len(pids) != 0 {
		t.Errorf("registry still tracks %v after loading the next file", pids)
	}
	if s := c.Snapshot(); s.Path != mediaB || s.Started {
		t.Errorf("session = %+v, want %s loaded and not started", s, mediaB)
	}
}
