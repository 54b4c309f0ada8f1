package supervisor

import (
	"context"
	"time"
)

// PollConfig bounds a retry loop by a fixed interval and an overall timeout.
type PollConfig struct {
	Interval time.Duration // Delay between attempts (default: 100ms)
	Timeout  time.Duration // Give up after this long (default: 5s)
}

// DefaultPollConfig returns the defaults used for file release checks.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval: 100 * time.Millisecond,
		Timeout:  5 * time.Second,
	}
}

// Poll calls cond until it returns true, the timeout elapses, or ctx is
// done. It reports whether cond succeeded. cond is always tried at least
// once, and once more when the timeout fires.
func Poll(ctx context.Context, cfg PollConfig, cond func() bool) bool {
	if cond() {
		return true
	}
	if cfg.Timeout <= 0 {
		return false
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollConfig().Interval
	}

	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return cond()
		case <-ticker.C:
			if cond() {
				return true
			}
		}
	}
}
