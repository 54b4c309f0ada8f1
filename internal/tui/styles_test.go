package tui

import (
	"strings"
	"testing"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/player"
)

func TestGetStateLabel(t *testing.T) {
	tests := []struct {
		state player.State
		want  string
	}{
		{player.StateIdle, "idle"},
		{player.StateLoaded, "loaded"},
		{player.StatePlaying, "playing"},
		{player.StatePaused, "paused"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := GetStateLabel(tt.state); !strings.Contains(got, tt.want) {
				t.Errorf("GetStateLabel(%v) = %q", tt.state, got)
			}
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		progress float64
		width    int
		percent  string
	}{
		{"empty", 0, 20, "0%"},
		{"half", 0.5, 20, "50%"},
		{"full", 1, 20, "100%"},
		{"over", 1.5, 20, "150%"},
		{"narrow", 0.5, 2, "50%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := RenderProgressBar(tt.progress, tt.width)
			if !strings.Contains(bar, tt.percent) {
				t.Errorf("bar %q missing %q", bar, tt.percent)
			}
		})
	}
}

func TestRepeatChar(t *testing.T) {
	if got := repeatChar('█', 3); got != "███" {
		t.Errorf("repeatChar = %q", got)
	}
	if got := repeatChar('█', -1); got != "" {
		t.Errorf("repeatChar(-1) = %q", got)
	}
}

func TestRenderKeyValue(t *testing.T) {
	got := RenderKeyValue("Volume", "50%")
	if !strings.Contains(got, "Volume:") || !strings.Contains(got, "50%") {
		t.Errorf("RenderKeyValue = %q", got)
	}
}
