package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
)

// ErrProcessExited is returned when writing to a process that is gone.
var ErrProcessExited = errors.New("process has exited")

// Handle is a reference to one spawned process.
type Handle struct {
	mode      process.Mode
	mediaPath string
	pid       int
	startTime time.Time

	cmd   *exec.Cmd
	stdin io.WriteCloser
	wmu   sync.Mutex

	stateMu sync.RWMutex
	state   State

	done     chan struct{}
	exitCode int
	waitErr  error
	uptime   time.Duration
}

func newHandle(c process.Command, cmd *exec.Cmd) *Handle {
	return &Handle{
		mode:      c.Mode,
		mediaPath: c.MediaPath,
		cmd:       cmd,
		state:     StateStarting,
		done:      make(chan struct{}),
	}
}

// PID returns the operating system process id.
func (h *Handle) PID() int { return h.pid }

// Mode returns what the process was spawned for.
func (h *Handle) Mode() process.Mode { return h.mode }

// MediaPath returns the file the process has open.
func (h *Handle) MediaPath() string { return h.mediaPath }

// StartTime returns when the process was started.
func (h *Handle) StartTime() time.Time { return h.startTime }

// Done is closed once the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitCode returns the exit code. Only meaningful after Done is closed;
// a signal exit is reported as 128+signal.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
		return h.exitCode
	default:
		return -1
	}
}

// Err returns the error from waiting on the process, if any.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.waitErr
	default:
		return nil
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	// Exited is final.
	if h.state == StateExited {
		return
	}
	h.state = s
}

// Write sends raw bytes to the process's stdin. Concurrent writes are
// serialized so commands never interleave.
func (h *Handle) Write(p []byte) (int, error) {
	if h.stdin == nil {
		return 0, fmt.Errorf("%s process has no stdin", h.mode)
	}
	if !h.State().IsActive() {
		return 0, ErrProcessExited
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	return h.stdin.Write(p)
}

// Kill sends SIGKILL to the process group. Killing a process that has
// already exited is a no-op.
func (h *Handle) Kill() error {
	if h.State().IsTerminal() || h.cmd.Process == nil {
		return nil
	}
	h.setState(StateKilled)

	err := killProcessGroup(h.pid)
	if kerr := h.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) && err == nil {
		err = kerr
	}
	return err
}

// Uptime returns how long the process has been running, or ran for.
func (h *Handle) Uptime() time.Duration {
	if h.startTime.IsZero() {
		return 0
	}
	select {
	case <-h.done:
		return h.uptime
	default:
		return time.Since(h.startTime)
	}
}
