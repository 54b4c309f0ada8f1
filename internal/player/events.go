package player

// EventKind identifies a controller event.
type EventKind int

const (
	MediaQueued             EventKind = iota // a file is loaded and ready to play
	PlaybackStarted                          // a process was spawned
	PlaybackPaused                           // the player confirmed a pause
	PlaybackResumed                          // a position arrived while paused
	PlaybackPositionChanged                  // the player reported a new position
	PlaybackEnded                            // the player reached end of stream
	PlaybackStopped                          // Stop terminated the process
	VolumeChanged                            // volume or mute changed
)

var eventNames = [...]string{
	MediaQueued:             "media_queued",
	PlaybackStarted:         "playback_started",
	PlaybackPaused:          "playback_paused",
	PlaybackResumed:         "playback_resumed",
	PlaybackPositionChanged: "playback_position_changed",
	PlaybackEnded:           "playback_ended",
	PlaybackStopped:         "playback_stopped",
	VolumeChanged:           "volume_changed",
}

// String returns the snake_case event name.
func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[k]
}

// Event describes one state transition. Path, Position, Volume and Muted
// are a snapshot of the session when the event was emitted.
type Event struct {
	Kind     EventKind
	Path     string
	Position float64
	Volume   int
	Muted    bool
}

// Listener receives events synchronously, in emission order, on the
// goroutine that caused the transition. It must not block for long.
type Listener func(Event)
