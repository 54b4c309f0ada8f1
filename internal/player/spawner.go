package player

import (
	"context"
	"io"
	"time"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/parser"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/probe"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/supervisor"
)

// Process is a running playback process. Writes go to its stdin.
type Process interface {
	io.Writer
	PID() int
	Kill() error
	Done() <-chan struct{}
}

// Spawner starts and terminates playback processes.
type Spawner interface {
	SpawnPlayback(ctx context.Context, opts process.PlaybackOptions, stdout, stderr parser.LineParser) (Process, error)
	KillAndWaitForRelease(ctx context.Context, p Process, timeout time.Duration) error
}

// MediaProber inspects a file before it is queued.
type MediaProber interface {
	Probe(ctx context.Context, path string) (*probe.MediaInfo, error)
}

// NewSupervisorSpawner adapts a supervisor to Spawner.
func NewSupervisorSpawner(s *supervisor.Supervisor) Spawner {
	return supervisorSpawner{s: s}
}

type supervisorSpawner struct {
	s *supervisor.Supervisor
}

func (a supervisorSpawner) SpawnPlayback(ctx context.Context, opts process.PlaybackOptions, stdout, stderr parser.LineParser) (Process, error) {
	h, err := a.s.SpawnPlayback(ctx, opts, stdout, stderr)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (a supervisorSpawner) KillAndWaitForRelease(ctx context.Context, p Process, timeout time.Duration) error {
	h, ok := p.(*supervisor.Handle)
	if !ok {
		if p != nil {
			return p.Kill()
		}
		return nil
	}
	return a.s.KillAndWaitForRelease(ctx, h, timeout)
}
