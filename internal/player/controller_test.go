package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/parser"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/probe"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/supervisor"
)

// =============================================================================
// LoadFile
// =============================================================================

func TestLoadFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		path string
		seg  Segment
		want error
	}{
		{"empty path", "", Segment{}, ErrMediaNotFound},
		{"missing file", "/media/nope.wav", Segment{}, ErrMediaNotFound},
		{"negative start", testAudio, Segment{Start: -1}, ErrInvalidSegment},
		{"negative length", testAudio, Segment{Length: -2}, ErrInvalidSegment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			err := f.c.LoadFile(context.Background(), tt.path, tt.seg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if f.c.State() != StateIdle {
				t.Errorf("State = %v, want idle", f.c.State())
			}
			if len(f.rec.kinds()) != 0 {
				t.Errorf("events = %v, want none", f.rec.kinds())
			}
		})
	}
}

func TestLoadFile_QueuesMedia(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.c.LoadFile(context.Background(), testAudio, Segment{Start: 2.5, Length: 3}); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if diff := cmp.Diff([]EventKind{MediaQueued}, f.rec.kinds()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	s := f.c.Snapshot()
	if s.Path != testAudio || s.Position != 2.5 || s.Started || s.Paused {
		t.Errorf("session = %+v", s)
	}
	if f.c.State() != StateLoaded {
		t.Errorf("State = %v, want loaded", f.c.State())
	}
	if f.sp.spawnCount() != 0 {
		t.Error("LoadFile must not spawn a process")
	}
}

func TestLoadFile_AcquiresMediaInfo(t *testing.T) {
	prober := &fakeProber{info: &probe.MediaInfo{Duration: 9.5, IsVideo: true, Width: 320, Height: 240}}
	f := newFixture(t, func(cfg *Config) { cfg.Prober = prober })

	if f.c.MediaInfo() != nil {
		t.Fatal("MediaInfo should be nil before LoadFile")
	}
	if err := f.c.LoadFile(context.Background(), testVideo, Segment{}); err != nil {
		t.Fatal(err)
	}
	info := f.c.MediaInfo()
	if info == nil || !info.IsVideo || info.Path != testVideo {
		t.Errorf("MediaInfo = %+v", info)
	}
}

func TestLoadFile_ProbeFailureLeavesSessionUntouched(t *testing.T) {
	prober := &fakeProber{info: &probe.MediaInfo{Duration: 1}}
	f := newFixture(t, func(cfg *Config) { cfg.Prober = prober })
	ctx := context.Background()

	if err := f.c.LoadFile(ctx, testAudio, Segment{}); err != nil {
		t.Fatal(err)
	}
	if err := f.c.Play(ctx); err != nil {
		t.Fatal(err)
	}
	f.rec.reset()

	prober.err = probe.ErrProbeFailure
	if err := f.c.LoadFile(ctx, testVideo, Segment{}); !errors.Is(err, probe.ErrProbeFailure) {
		t.Fatalf("error = %v, want ErrProbeFailure", err)
	}
	if s := f.c.Snapshot(); s.Path != testAudio || !s.Started {
		t.Errorf("session changed after failed load: %+v", s)
	}
	if f.sp.proc(0).Killed() != 0 {
		t.Error("running process killed by a failed load")
	}
	if len(f.rec.kinds()) != 0 {
		t.Errorf("events = %v, want none", f.rec.kinds())
	}
}

func TestLoadFile_TerminatesPlaybackBeforeQueueing(t *testing.T) {
	f := newFixture(t, nil)
	proc := f.playing(t)
	if !f.c.HasPlaybackStarted() {
		t.Fatal("playback should have started")
	}

	if err := f.c.LoadFile(context.Background(), testVideo, Segment{}); err != nil {
		t.Fatal(err)
	}

	if f.c.HasPlaybackStarted() {
		t.Error("HasPlaybackStarted should be false after LoadFile")
	}
	if proc.Killed() == 0 {
		t.Error("previous process not killed")
	}
	want := []string{"media_queued", "spawn", "playback_started", "kill_wait", "media_queued"}
	if diff := cmp.Diff(want, f.tl.all()); diff != "" {
		t.Errorf("timeline mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile_KeepsVolumeAndMute(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_ = f.c.SetVolume(80)
	_ = f.c.ToggleVolumeMute()

	if err := f.c.LoadFile(ctx, testAudio, Segment{}); err != nil {
		t.Fatal(err)
	}
	if f.c.Volume() != 80 || !f.c.IsMuted() {
		t.Errorf("volume=%d muted=%v, want 80/true", f.c.Volume(), f.c.IsMuted())
	}
}

func TestLoadFile_ReleaseTimeoutStillLoads(t *testing.T) {
	f := newFixture(t, nil)
	f.playing(t)
	f.sp.releaseErr = &supervisor.ReleaseError{Path: testAudio, Waited: time.Second}

	err := f.c.LoadFile(context.Background(), testVideo, Segment{})
	if !errors.Is(err, supervisor.ErrFileLockTimeout) {
		t.Fatalf("error = %v, want ErrFileLockTimeout", err)
	}
	if s := f.c.Snapshot(); s.Path != testVideo || s.State() != StateLoaded {
		t.Errorf("session = %+v", s)
	}
	if diff := cmp.Diff([]EventKind{MediaQueued}, f.rec.kinds()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

// =============================================================================
// Play / Pause / Stop
// =============================================================================

func TestPlay_Idle(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.c.Play(context.Background()); !errors.Is(err, ErrNoMedia) {
		t.Errorf("error = %v, want ErrNoMedia", err)
	}
	if f.sp.spawnCount() != 0 {
		t.Error("spawned without media")
	}
}

func TestPlay_SpawnsAtSegmentStart(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Volume = 35
		cfg.WindowID = 77
	})
	ctx := context.Background()

	if err := f.c.LoadFile(ctx, testVideo, Segment{Start: 4, Length: 2.5}); err != nil {
		t.Fatal(err)
	}
	f.rec.reset()
	if err := f.c.Play(ctx); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	if f.sp.spawnCount() != 1 {
		t.Fatalf("spawned %d processes, want 1", f.sp.spawnCount())
	}
	opts := f.sp.opts[0]
	if opts.Path != testVideo || opts.Start != 4 || opts.Length != 2.5 || opts.Volume != 35 || opts.WindowID != 77 {
		t.Errorf("spawn options = %+v", opts)
	}
	if diff := cmp.Diff([]EventKind{PlaybackStarted}, f.rec.kinds()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if f.c.State() != StatePlaying || f.c.Position() != 4 {
		t.Errorf("State=%v Position=%v", f.c.State(), f.c.Position())
	}
	if got := f.sp.proc(0).Stdin(); got != "" {
		t.Errorf("stdin = %q, want nothing when unmuted", got)
	}
	if f.sp.stderr[0] == nil {
		t.Error("stderr parser should be wired to the output log")
	}
}

func TestPlay_MutedSendsVolumeAfterSpawn(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.Muted = true })
	proc := f.playing(t)
	if got, want := proc.Stdin(), "volume 50 1\r\n"; got != want {
		t.Errorf("stdin = %q, want %q", got, want)
	}
}

func TestPlay_WhenPlayingDoesNothing(t *testing.T) {
	f := newFixture(t, nil)
	proc := f.playing(t)

	if err := f.c.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	if proc.Stdin() != "" {
		t.Errorf("stdin = %q, want empty", proc.Stdin())
	}
	if f.sp.spawnCount() != 1 || len(f.rec.kinds()) != 0 {
		t.Errorf("spawns=%d events=%v", f.sp.spawnCount(), f.rec.kinds())
	}
}

func TestPlay_WhenPausedWritesPause(t *testing.T) {
	f := newFixture(t, nil)
	proc := f.playing(t)
	f.feed(t, "ID_PAUSED")

	if err := f.c.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := proc.Stdin(); got != "pause \r\n" {
		t.Errorf("stdin = %q, want %q", got, "pause \r\n")
	}
	if !f.c.IsPaused() {
		t.Error("paused flag must stay set until the player reports a position")
	}

	f.feed(t, "A:  24.8")
	if f.c.IsPaused() {
		t.Error("position report should clear the paused flag")
	}
	want := []EventKind{PlaybackPaused, PlaybackResumed, PlaybackPositionChanged}
	if diff := cmp.Diff(want, f.rec.kinds()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestPlay_SpawnFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_ = f.c.LoadFile(ctx, testAudio, Segment{})
	f.rec.reset()
	f.sp.spawnErr = supervisor.ErrStartFailure

	if err := f.c.Play(ctx); !errors.Is(err, supervisor.ErrStartFailure) {
		t.Fatalf("error = %v, want ErrStartFailure", err)
	}
	if f.c.State() != StateLoaded {
		t.Errorf("State = %v, want loaded", f.c.State())
	}
	if len(f.rec.kinds()) != 0 {
		t.Errorf("events = %v, want none", f.rec.kinds())
	}
}

func TestPause(t *testing.T) {
	f := newFixture(t, nil)
	proc := f.playing(t)

	if err := f.c.Pause(); err != nil {
		t.Fatal(err)
	}
	if got := proc.Stdin(); got != "pause \r\n" {
		t.Errorf("stdin = %q, want %q", got, "pause \r\n")
	}
	if f.c.IsPaused() {
		t.Error("Pause must not flip local state before ID_PAUSED")
	}

	// Already paused: nothing more is written.
	f.feed(t, "ID_PAUSED")
	_ = f.c.Pause()
	if got := proc.Stdin(); got != "pause \r\n" {
		t.Errorf("stdin after second Pause = %q", got)
	}
}

func TestPause_NotPlaying(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.c.Pause(); err != nil {
		t.Errorf("Pause() idle error = %v", err)
	}
	_ = f.c.LoadFile(context.Background(), testAudio, Segment{})
	if err := f.c.Pause(); err != nil {
		t.Errorf("Pause() loaded error = %v", err)
	}
	if f.sp.spawnCount() != 0 {
		t.Error("Pause must not spawn")
	}
}

func TestStop(t *testing.T) {
	f := newFixture(t, nil)
	proc := f.playing(t)

	if err := f.c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := proc.Stdin(); got != "stop \r\n" {
		t.Errorf("stdin = %q, want %q", got, "stop \r\n")
	}
	if f.sp.waitCount() != 1 || proc.Killed() == 0 {
		t.Errorf("kill-and-wait calls = %d, killed = %d", f.sp.waitCount(), proc.Killed())
	}
	if diff := cmp.Diff([]EventKind{PlaybackStopped}, f.rec.kinds()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if f.c.State() != StateLoaded || f.c.HasPlaybackStarted() {
		t.Errorf("State = %v after Stop", f.c.State())
	}

	// Playing again respawns.
	if err := f.c.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.sp.spawnCount() != 2 {
		t.Errorf("spawns = %d, want 2", f.sp.spawnCount())
	}
}

func TestStop_NeverStarted(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.c.LoadFile(context.Background(), testAudio, Segment{})
	f.rec.reset()

	if err := f.c.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.sp.waitCount() != 0 || len(f.rec.kinds()) != 0 {
		t.Errorf("waits=%d events=%v, want none", f.sp.waitCount(), f.rec.kinds())
	}
}

func TestStop_ReleaseTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.playing(t)
	f.sp.releaseErr = &supervisor.ReleaseError{Path: testAudio, Waited: time.Second}

	if err := f.c.Stop(context.Background()); !errors.Is(err, supervisor.ErrFileLockTimeout) {
		t.Errorf("error = %v, want ErrFileLockTimeout", err)
	}
	if f.c.HasPlaybackStarted() {
		t.Error("state should still be stopped")
	}
}

// =============================================================================
// Seek / volume
// =============================================================================

func TestSeek(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.c.Seek(10); err != nil {
		t.Errorf("Seek without process error = %v", err)
	}

	proc := f.playing(t)
	if err := f.c.Seek(32.6); err != nil {
		t.Fatal(err)
	}
	if got := proc.Stdin(); got != "seek 32.6 2\r\n" {
		t.Errorf("stdin = %q, want %q", got, "seek 32.6 2\r\n")
	}
	if f.c.Position() != 0 {
		t.Errorf("Position = %v, Seek must not change it", f.c.Position())
	}
}

func TestSetVolume(t *testing.T) {
	tests := []struct {
		name       string
		volume     int
		wantVolume int
		wantEvent  bool
		wantStdin  string
	}{
		{"below range ignored", -1, 50, false, ""},
		{"above range ignored", 101, 50, false, ""},
		{"raise", 60, 60, true, "volume 60 0\r\n"},
		{"minimum", 0, 0, true, "volume 0 0\r\n"},
		{"maximum", 100, 100, true, "volume 100 0\r\n"},
		{"unchanged value still notifies", 50, 50, true, "volume 50 0\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			proc := f.playing(t)

			if err := f.c.SetVolume(tt.volume); err != nil {
				t.Fatal(err)
			}
			if f.c.Volume() != tt.wantVolume {
				t.Errorf("Volume = %d, want %d", f.c.Volume(), tt.wantVolume)
			}
			gotEvents := len(f.rec.kinds())
			if tt.wantEvent && (gotEvents != 1 || f.rec.last().Kind != VolumeChanged) {
				t.Errorf("events = %v, want one VolumeChanged", f.rec.kinds())
			}
			if !tt.wantEvent && gotEvents != 0 {
				t.Errorf("events = %v, want none", f.rec.kinds())
			}
			if got := proc.Stdin(); got != tt.wantStdin {
				t.Errorf("stdin = %q, want %q", got, tt.wantStdin)
			}
		})
	}
}

func TestSetVolume_NoProcess(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.c.SetVolume(70); err != nil {
		t.Fatal(err)
	}
	if f.c.Volume() != 70 {
		t.Errorf("Volume = %d", f.c.Volume())
	}
	if ev := f.rec.last(); ev.Kind != VolumeChanged || ev.Volume != 70 {
		t.Errorf("event = %+v", ev)
	}
}

func TestToggleVolumeMute(t *testing.T) {
	f := newFixture(t, nil)
	if f.c.IsMuted() {
		t.Fatal("should start unmuted")
	}
	_ = f.c.ToggleVolumeMute()
	if !f.c.IsMuted() {
		t.Error("first toggle should mute")
	}
	_ = f.c.ToggleVolumeMute()
	if f.c.IsMuted() {
		t.Error("second toggle should unmute")
	}
	if diff := cmp.Diff([]EventKind{VolumeChanged, VolumeChanged}, f.rec.kinds()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestToggleVolumeMute_WritesVolume(t *testing.T) {
	f := newFixture(t, nil)
	proc := f.playing(t)
	_ = f.c.ToggleVolumeMute()
	_ = f.c.ToggleVolumeMute()
	if got, want := proc.Stdin(), "volume 50 1\r\nvolume 50 0\r\n"; got != want {
		t.Errorf("stdin = %q, want %q", got, want)
	}
}

func TestSend_WriteError(t *testing.T) {
	var hookErr error
	f := newFixture(t, func(cfg *Config) {
		cfg.Hooks.OnCommand = func(cmd Command, err error) { hookErr = err }
	})
	proc := f.playing(t)
	proc.mu.Lock()
	proc.writeErr = errBoom
	proc.mu.Unlock()

	if err := f.c.Seek(1); !errors.Is(err, errBoom) {
		t.Errorf("Seek error = %v, want wrapped errBoom", err)
	}
	if !errors.Is(hookErr, errBoom) {
		t.Errorf("OnCommand err = %v", hookErr)
	}
}

// =============================================================================
// Reconciliation
// =============================================================================

func TestReconcile_Position(t *testing.T) {
	f := newFixture(t, nil)
	f.playing(t)

	f.feed(t, "A:  24.8 V:  24.8 A-V:  0.000")
	if f.c.Position() != 24.8 {
		t.Errorf("Position = %v, want 24.8", f.c.Position())
	}
	ev := f.rec.last()
	if ev.Kind != PlaybackPositionChanged || ev.Position != 24.8 {
		t.Errorf("event = %+v", ev)
	}
}

func TestReconcile_UnrecognizedIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.playing(t)
	f.feed(t, "MPlayer SVN-r38151")
	f.feed(t, "A:24.8")

	if len(f.rec.kinds()) != 0 {
		t.Errorf("events = %v, want none", f.rec.kinds())
	}
	select {
	case st := <-f.c.Signals():
		t.Errorf("unexpected status %+v", st)
	default:
	}
	if got := f.out.Lines(); len(got) != 2 {
		t.Errorf("output log = %q, want both raw lines", got)
	}
}

func TestReconcile_EndOfStream(t *testing.T) {
	f := newFixture(t, nil)
	proc := f.playing(t)

	f.feed(t, "EOF code: 1")

	want := []EventKind{PlaybackEnded, MediaQueued}
	if diff := cmp.Diff(want, f.rec.kinds()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if f.c.HasPlaybackStarted() || f.c.State() != StateLoaded {
		t.Errorf("State = %v after EOF", f.c.State())
	}
	if proc.Killed() == 0 {
		t.Error("idle process should be killed after EOF")
	}
	if f.sp.waitCount() != 0 {
		t.Error("EOF must not wait for release")
	}
	if !f.c.IsPlayButtonVisible() {
		t.Error("play button should be visible after EOF")
	}
}

func TestReconcile_WithoutProcess(t *testing.T) {
	tests := []struct {
		name string
		load bool
		line string
		want []EventKind
	}{
		{"eof idle", false, "EOF code:", []EventKind{PlaybackEnded}},
		{"eof loaded", true, "EOF code:", []EventKind{PlaybackEnded, MediaQueued}},
		{"paused", false, "ID_PAUSED", []EventKind{PlaybackPaused}},
		{"position", false, "A:  24.8", []EventKind{PlaybackPositionChanged}},
		{"junk", false, "ID_LENGTH=9.50", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.load {
				_ = f.c.LoadFile(context.Background(), testAudio, Segment{})
				f.rec.reset()
			}
			f.reconcileLine(tt.line)
			if diff := cmp.Diff(tt.want, f.rec.kinds()); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReconcile_Loop(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.Loop = true })
	if !f.c.Loop() {
		t.Fatal("Loop() = false")
	}
	f.playing(t)

	f.feed(t, "EOF code: 1")

	want := []EventKind{PlaybackEnded, MediaQueued, PlaybackStarted}
	if diff := cmp.Diff(want, f.rec.kinds()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if f.sp.spawnCount() != 2 || !f.c.HasPlaybackStarted() {
		t.Errorf("spawns=%d started=%v", f.sp.spawnCount(), f.c.HasPlaybackStarted())
	}

	f.c.SetLoop(false)
	f.rec.reset()
	f.feed(t, "EOF code: 1")
	if diff := cmp.Diff([]EventKind{PlaybackEnded, MediaQueued}, f.rec.kinds()); diff != "" {
		t.Errorf("events after loop off (-want +got):\n%s", diff)
	}
}

func TestReconcile_DropsStaleGeneration(t *testing.T) {
	var stale, fresh int
	f := newFixture(t, func(cfg *Config) {
		cfg.Hooks.OnReconcile = func(sig parser.Signal, isStale bool) {
			if isStale {
				stale++
			} else {
				fresh++
			}
		}
	})
	f.playing(t)
	oldStdout := f.sp.stdoutOf(0)

	// Queue a position from the first process, then replace it.
	oldStdout.ParseLine("A:  5.0")
	if err := f.c.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.c.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.rec.reset()

	// Late output from the old process must not block or apply.
	oldStdout.ParseLine("EOF code: 1")

	for {
		select {
		case st := <-f.c.Signals():
			f.c.Reconcile(st)
			continue
		default:
		}
		break
	}

	if len(f.rec.kinds()) != 0 {
		t.Errorf("stale statuses produced events: %v", f.rec.kinds())
	}
	if !f.c.HasPlaybackStarted() || f.c.Position() != 0 {
		t.Errorf("stale status changed session: %+v", f.c.Snapshot())
	}
	if stale == 0 || fresh != 0 {
		t.Errorf("stale=%d fresh=%d", stale, fresh)
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t, nil)
	f.playing(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.c.Run(ctx) }()

	stdout := f.sp.stdoutOf(0)
	stdout.ParseLine("A:  1.0")
	stdout.ParseLine("ID_PAUSED")
	stdout.ParseLine("A:  1.1")
	stdout.ParseLine("EOF code: 0")

	f.rec.waitFor(t, PlaybackEnded)
	want := []EventKind{
		PlaybackPositionChanged,
		PlaybackPaused,
		PlaybackResumed, PlaybackPositionChanged,
		PlaybackEnded, MediaQueued,
	}
	// MediaQueued is emitted right after PlaybackEnded in the same call.
	f.rec.waitFor(t, MediaQueued)
	if diff := cmp.Diff(want, f.rec.kinds()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ReturnsOnClose(t *testing.T) {
	f := newFixture(t, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- f.c.Run(context.Background()) }()

	_ = f.c.Close(context.Background())
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

// =============================================================================
// Subscribe / Close / queries
// =============================================================================

func TestSubscribe_Unsubscribe(t *testing.T) {
	f := newFixture(t, nil)
	var n int
	unsub := f.c.Subscribe(func(Event) { n++ })

	_ = f.c.SetVolume(10)
	unsub()
	unsub() // idempotent
	_ = f.c.SetVolume(20)

	if n != 1 {
		t.Errorf("listener called %d times, want 1", n)
	}
	if len(f.rec.kinds()) != 2 {
		t.Errorf("other listener saw %d events, want 2", len(f.rec.kinds()))
	}
}

func TestListener_CanQueryController(t *testing.T) {
	f := newFixture(t, nil)
	var seen State
	f.c.Subscribe(func(ev Event) {
		if ev.Kind == PlaybackStarted {
			seen = f.c.State()
		}
	})
	f.playing(t)
	if seen != StatePlaying {
		t.Errorf("state seen from listener = %v, want playing", seen)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t, nil)
	proc := f.playing(t)

	if err := f.c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if proc.Killed() == 0 {
		t.Error("Close should kill the playback process")
	}
	if err := f.c.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := f.c.Play(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Play after Close error = %v", err)
	}
	if err := f.c.LoadFile(context.Background(), testAudio, Segment{}); !errors.Is(err, ErrClosed) {
		t.Errorf("LoadFile after Close error = %v", err)
	}
	f.reconcileLine("EOF code: 0")
	if len(f.rec.kinds()) != 0 {
		t.Errorf("events after Close: %v", f.rec.kinds())
	}
	select {
	case <-f.c.Closed():
	default:
		t.Error("Closed() not closed after Close")
	}
}

func TestClosed_OpenUntilClose(t *testing.T) {
	f := newFixture(t, nil)
	f.playing(t)
	select {
	case <-f.c.Closed():
		t.Fatal("Closed() closed before Close")
	default:
	}
	if err := f.c.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-f.c.Closed():
	case <-time.After(time.Second):
		t.Fatal("Closed() not closed after Close")
	}
}

func TestIsPlayButtonVisible(t *testing.T) {
	f := newFixture(t, nil)
	if !f.c.IsPlayButtonVisible() {
		t.Error("idle: play should be visible")
	}
	f.playing(t)
	if f.c.IsPlayButtonVisible() {
		t.Error("playing: play should be hidden")
	}
	f.feed(t, "ID_PAUSED")
	if !f.c.IsPlayButtonVisible() {
		t.Error("paused: play should be visible")
	}
}

func TestNew_Defaults(t *testing.T) {
	tests := []struct {
		volume int
		want   int
	}{
		{-5, DefaultVolume},
		{101, DefaultVolume},
		{0, 0},
		{75, 75},
	}
	for _, tt := range tests {
		c := New(Config{Spawner: &fakeSpawner{}, Volume: tt.volume})
		if c.Volume() != tt.want {
			t.Errorf("New(Volume=%d).Volume() = %d, want %d", tt.volume, c.Volume(), tt.want)
		}
		if c.State() != StateIdle {
			t.Errorf("new controller state = %v", c.State())
		}
	}
}
