package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseFlags parses os.Args and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args into a Config. Usage and errors go to output.
func ParseArgs(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("go-mplayer-ctl", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.Usage = func() {
		fmt.Fprintf(output, `go-mplayer-ctl - drive MPlayer in slave mode from the terminal

Usage:
  go-mplayer-ctl [flags] <MEDIA_FILE>

Playback:
`)
		printFlagCategory(fs, output, []string{"start", "length", "volume", "mute", "loop"})

		fmt.Fprintf(output, "\nMPlayer:\n")
		printFlagCategory(fs, output, []string{"mplayer", "ffprobe", "settings", "vo", "priority", "wid"})

		fmt.Fprintf(output, "\nProcess Lifecycle:\n")
		printFlagCategory(fs, output, []string{"release-timeout", "release-interval", "thumbnail-timeout", "tmp"})

		fmt.Fprintf(output, "\nTools:\n")
		printFlagCategory(fs, output, []string{"probe", "extract-audio", "thumbnail", "thumbnail-at", "skip-probe"})

		fmt.Fprintf(output, "\nSafety & Diagnostics:\n")
		printFlagCategory(fs, output, []string{"print-cmd", "check", "skip-preflight"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"metrics", "dump-metrics", "v", "log-format", "log-level", "log-file", "output-lines"})

		fmt.Fprintf(output, "\nDashboard:\n")
		printFlagCategory(fs, output, []string{"tui"})

		fmt.Fprintf(output, `
Flag Convention:
  Single-dash flags (-volume, -start) are normal options.
  Double-dash flags (--check, --print-cmd) are diagnostic modes.

Examples:
  # Play a file in the terminal dashboard
  go-mplayer-ctl interview.wav

  # Play 2.5 seconds starting at 1:04, muted, headless
  go-mplayer-ctl -start 64 -length 2.5 -mute -tui=false interview.wav

  # Inspect a video and save a thumbnail
  go-mplayer-ctl -probe -thumbnail thumb.jpg session.mp4

`)
	}

	// Playback
	fs.Float64Var(&cfg.Start, "start", cfg.Start, "Segment start in seconds")
	fs.Float64Var(&cfg.Length, "length", cfg.Length, "Segment length in seconds (0 = to the end)")
	fs.IntVar(&cfg.Volume, "volume", cfg.Volume, "Initial volume (0-100)")
	fs.BoolVar(&cfg.Mute, "mute", cfg.Mute, "Start muted")
	fs.BoolVar(&cfg.Loop, "loop", cfg.Loop, "Restart playback when the segment ends")

	// MPlayer
	fs.StringVar(&cfg.MPlayerPath, "mplayer", cfg.MPlayerPath, "Path to MPlayer binary")
	fs.StringVar(&cfg.FFprobePath, "ffprobe", cfg.FFprobePath, "Path to ffprobe binary (default: next to mplayer, then PATH)")
	fs.StringVar(&cfg.SettingsPath, "settings", cfg.SettingsPath, "MPlayer settings file passed with -include when it exists")
	fs.StringVar(&cfg.VideoOutput, "vo", cfg.VideoOutput, "MPlayer video output driver")
	fs.StringVar(&cfg.Priority, "priority", cfg.Priority, "MPlayer process priority (Windows)")
	fs.Int64Var(&cfg.WindowID, "wid", cfg.WindowID, "Embed video in this window id")

	// Process lifecycle
	fs.DurationVar(&cfg.ReleaseTimeout, "release-timeout", cfg.ReleaseTimeout, "How long to wait for a media file to be released")
	fs.DurationVar(&cfg.ReleaseInterval, "release-interval", cfg.ReleaseInterval, "How often to check for file release")
	fs.DurationVar(&cfg.ThumbnailTimeout, "thumbnail-timeout", cfg.ThumbnailTimeout, "Maximum time for a thumbnail capture")
	fs.StringVar(&cfg.TempDir, "tmp", cfg.TempDir, "Scratch directory for thumbnail captures")

	// Tools
	fs.BoolVar(&cfg.Probe, "probe", cfg.Probe, "Print media information and exit")
	fs.StringVar(&cfg.ExtractAudio, "extract-audio", cfg.ExtractAudio, "Write the soundtrack to this WAV file and exit")
	fs.StringVar(&cfg.Thumbnail, "thumbnail", cfg.Thumbnail, "Write a video thumbnail to this JPEG file and exit")
	fs.Float64Var(&cfg.ThumbnailAt, "thumbnail-at", cfg.ThumbnailAt, "Thumbnail position in seconds (negative = automatic)")
	fs.BoolVar(&cfg.SkipProbe, "skip-probe", cfg.SkipProbe, "Do not run ffprobe when loading media")

	// Safety & Diagnostics
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the MPlayer command and exit")
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config and play up to 10 seconds headless")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.BoolVar(&cfg.DumpMetrics, "dump-metrics", cfg.DumpMetrics, "Print metrics in text format at exit")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file while the dashboard owns the terminal")
	fs.IntVar(&cfg.OutputLines, "output-lines", cfg.OutputLines, "Player output lines kept for the output log")

	// Dashboard
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable terminal dashboard (use -tui=false for headless)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Positional argument: media file
	if rest := fs.Args(); len(rest) >= 1 {
		cfg.MediaPath = rest[0]
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%g", new(float64)); err == nil {
		return "number"
	}

	return "string"
}
