package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// SignalKind identifies what a status line reported.
type SignalKind int

const (
	// SignalUnrecognized is any line the controller has no use for.
	SignalUnrecognized SignalKind = iota

	// SignalPosition carries the current playback position in seconds.
	SignalPosition

	// SignalPaused reports that the player entered the paused state.
	SignalPaused

	// SignalEndOfStream reports that playback reached the end of the media.
	SignalEndOfStream
)

// String returns a human-readable name for the kind.
func (k SignalKind) String() string {
	switch k {
	case SignalPosition:
		return "position"
	case SignalPaused:
		return "paused"
	case SignalEndOfStream:
		return "end_of_stream"
	default:
		return "unrecognized"
	}
}

// Signal is one classified line of player output.
// Position is only meaningful when Kind is SignalPosition.
type Signal struct {
	Kind     SignalKind
	Position float64
}

const (
	pausedLine = "ID_PAUSED"
	eofPrefix  = "EOF code:"
)

// positionRe matches the audio clock at the start of a status line, e.g.
// "A:  24.8 V:  24.8 A-V:  0.000 ct:  0.000". Only the first field is used.
// The clock can read "-0.0" right after a start or seek.
var positionRe = regexp.MustCompile(`^A:\s+(-?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+))(?:\s|$)`)

// Parse classifies a single output line. It never fails: lines that do not
// match one of the known forms come back as SignalUnrecognized.
func Parse(line string) Signal {
	switch {
	case line == pausedLine:
		return Signal{Kind: SignalPaused}
	case strings.HasPrefix(line, eofPrefix):
		return Signal{Kind: SignalEndOfStream}
	}

	m := positionRe.FindStringSubmatch(line)
	if m == nil {
		return Signal{Kind: SignalUnrecognized}
	}
	pos, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Signal{Kind: SignalUnrecognized}
	}
	return Signal{Kind: SignalPosition, Position: pos}
}

// StatusParser is a LineParser that classifies each line and hands every
// recognized Signal to Emit.
type StatusParser struct {
	Emit func(Signal)
}

// ParseLine implements LineParser.
func (p *StatusParser) ParseLine(line string) {
	sig := Parse(line)
	if sig.Kind == SignalUnrecognized {
		return
	}
	if p.Emit != nil {
		p.Emit(sig)
	}
}
