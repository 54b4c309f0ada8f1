package supervisor

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	psprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
)

// ErrRegistryClosed is returned by Add after Close.
var ErrRegistryClosed = errors.New("process registry closed")

// Registry tracks every process the supervisor has spawned and not yet
// reaped, so they can all be killed on shutdown or crash.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	pids   map[int]process.Mode
	closed bool
	logger *slog.Logger

	// killTree is replaced in tests.
	killTree func(pid int) error
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		pids:     make(map[int]process.Mode),
		logger:   logger,
		killTree: killProcessTree,
	}
}

// Add records pid. After Close it refuses and returns ErrRegistryClosed;
// the caller owns killing the process.
func (r *Registry) Add(pid int, mode process.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	r.pids[pid] = mode
	return nil
}

// Remove forgets pid. Removing an unknown pid is a no-op.
func (r *Registry) Remove(pid int) {
	r.mu.Lock()
	delete(r.pids, pid)
	r.mu.Unlock()
}

// Contains reports whether pid is tracked.
func (r *Registry) Contains(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pids[pid]
	return ok
}

// Len returns the number of tracked processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pids)
}

// PIDs returns the tracked pids in ascending order.
func (r *Registry) PIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.pids))
	for pid := range r.pids {
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}

// CleanupAll kills every tracked process and its children, then clears
// the registry. Individual failures are logged and swallowed. It returns
// the number of processes it attempted to kill.
func (r *Registry) CleanupAll() int {
	r.mu.Lock()
	victims := r.pids
	r.pids = make(map[int]process.Mode)
	r.mu.Unlock()

	for pid, mode := range victims {
		if err := r.killTree(pid); err != nil {
			r.logger.Debug("cleanup_kill_failed",
				"pid", pid,
				"mode", string(mode),
				"error", err,
			)
			continue
		}
		r.logger.Debug("cleanup_killed", "pid", pid, "mode", string(mode))
	}
	return len(victims)
}

// Close cleans up and refuses further registrations.
func (r *Registry) Close() int {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.CleanupAll()
}

// killProcessTree kills pid's descendants, then pid itself, then its
// process group.
func killProcessTree(pid int) error {
	p, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		// Already gone.
		return nil
	}

	var errs []error
	if children, err := p.Children(); err == nil {
		for _, c := range children {
			if err := killProcessTree(int(c.Pid)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := p.Kill(); err != nil {
		if ok, _ := psprocess.PidExists(int32(pid)); ok {
			errs = append(errs, err)
		}
	}
	if err := killProcessGroup(pid); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
