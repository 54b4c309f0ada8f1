// Package main provides the go-mplayer-ctl CLI entry point.
//
// go-mplayer-ctl drives MPlayer in slave mode: it plays a segment of a
// media file, tracks the player's position and pause state from its
// output, and keeps at most one player process alive at a time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/config"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/logging"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/orchestrator"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-mplayer-ctl
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-mplayer-ctl %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if cfg.Check {
		config.ApplyCheckMode(cfg)
	}

	// The dashboard owns the terminal: log to -log-file or nowhere.
	var logger *slog.Logger
	var closer io.Closer = io.NopCloser(nil)
	if cfg.TUIEnabled && !cfg.OneShot() && !cfg.PrintCmd {
		logger, closer, err = logging.NewFileLogger(cfg.LogFile, cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			return 1
		}
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	defer closer.Close()
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.Check {
		logger.Info("check_mode_enabled", "length", cfg.Length)
	}

	if cfg.PrintCmd {
		printMPlayerCommand(cfg)
		return 0
	}

	logger.Info("starting",
		"version", version,
		"media", cfg.MediaPath,
		"mplayer", cfg.MPlayerPath,
		"metrics_addr", cfg.MetricsAddr,
	)

	orch := orchestrator.New(cfg, logger, version)
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("run_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// printMPlayerCommand prints the playback command that would be run.
func printMPlayerCommand(cfg *config.Config) {
	mpCfg := cfg.MPlayerConfig()
	mp := process.NewMPlayer(&mpCfg)

	withSettings := false
	if cfg.SettingsPath != "" {
		if _, err := os.Stat(cfg.SettingsPath); err == nil {
			withSettings = true
		}
	}

	path := cfg.MediaPath
	if path == "" {
		path = "<MEDIA_FILE>"
	}
	seg := cfg.Segment()
	cmd := mp.Playback(process.PlaybackOptions{
		Path:     path,
		Start:    seg.Start,
		Length:   seg.Length,
		Volume:   cfg.Volume,
		WindowID: cfg.WindowID,
	}, withSettings)

	fmt.Println("# MPlayer command that would be run for playback:")
	fmt.Println()
	fmt.Println(cmd.String())
	fmt.Printf("\n# Probe command:\n\n%s\n", mp.Probe(path).String())
}
