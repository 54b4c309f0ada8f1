package player

import (
	"strconv"
	"strings"
)

// Command is one line of the MPlayer slave protocol.
type Command struct {
	Name string
	Args []string
}

// Wire returns the exact bytes sent to the player: the name, a space,
// the space-joined arguments and CRLF. Commands without arguments keep
// the trailing space ("pause \r\n").
func (c Command) Wire() string {
	return c.Name + " " + strings.Join(c.Args, " ") + "\r\n"
}

// PauseCommand toggles pause.
func PauseCommand() Command { return Command{Name: "pause"} }

// StopCommand stops playback.
func StopCommand() Command { return Command{Name: "stop"} }

// SeekCommand seeks to an absolute position in seconds (mode 2).
func SeekCommand(seconds float64) Command {
	return Command{Name: "seek", Args: []string{strconv.FormatFloat(seconds, 'f', -1, 64), "2"}}
}

// VolumeCommand sets the absolute volume and mute flag.
func VolumeCommand(volume int, muted bool) Command {
	flag := "0"
	if muted {
		flag = "1"
	}
	return Command{Name: "volume", Args: []string{strconv.Itoa(volume), flag}}
}
