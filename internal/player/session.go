// Package player implements the playback state machine that drives a
// slave-mode MPlayer process and turns its output into events.
package player

import (
	"github.com/randomizedcoder/go-mplayer-ctl/internal/probe"
)

// DefaultVolume is the volume a new controller starts at.
const DefaultVolume = 50

// Segment bounds playback to part of a file. A zero Length plays to the end.
type Segment struct {
	Start  float64
	Length float64
}

// End returns the segment end, or 0 when the segment is open-ended.
func (s Segment) End() float64 {
	if s.Length <= 0 {
		return 0
	}
	return s.Start + s.Length
}

// State is the controller's playback state, derived from the session.
type State int

const (
	// StateIdle means no file is loaded.
	StateIdle State = iota

	// StateLoaded means a file is queued and no process is playing it.
	StateLoaded

	// StatePlaying means a process is playing and has not reported a pause.
	StatePlaying

	// StatePaused means the process reported ID_PAUSED.
	StatePaused
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Session is the state of the currently loaded file.
type Session struct {
	Path     string
	Segment  Segment
	Position float64 // seconds, last reported by the player
	Volume   int     // 0..100
	Muted    bool
	Paused   bool
	Started  bool
	Info     *probe.MediaInfo
}

// State derives the playback state from the session flags.
func (s Session) State() State {
	switch {
	case s.Path == "":
		return StateIdle
	case !s.Started:
		return StateLoaded
	case s.Paused:
		return StatePaused
	default:
		return StatePlaying
	}
}
