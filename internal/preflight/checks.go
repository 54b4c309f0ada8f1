// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// versionTimeout bounds each binary's version query.
const versionTimeout = 5 * time.Second

// Check represents the result of a single preflight check.
type Check struct {
	Name    string // Name of the check
	Passed  bool   // Whether the check passed
	Warning bool   // True if it's a warning (non-fatal)
	Message string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll inspects.
type Options struct {
	MPlayerPath string
	FFprobePath string

	// NeedFFprobe makes a missing ffprobe fatal rather than a warning.
	NeedFFprobe bool

	// MediaPath is checked for readability when set.
	MediaPath string

	// TempDir must be writable for thumbnail captures.
	TempDir string

	// Fs is the filesystem for the media and temp dir checks.
	// Nil uses the OS filesystem.
	Fs afero.Fs
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, opts Options) *Result {
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkMPlayer(ctx, opts.MPlayerPath))
	add(checkFFprobe(ctx, opts.FFprobePath, opts.NeedFFprobe))
	if opts.MediaPath != "" {
		add(checkMediaFile(fsys, opts.MediaPath))
	}
	if opts.TempDir != "" {
		add(checkTempDir(fsys, opts.TempDir))
	}

	return result
}

// checkMPlayer verifies MPlayer is installed. MPlayer has no version
// flag; run bare it prints its banner and exits.
func checkMPlayer(ctx context.Context, path string) Check {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Check{
			Name:    "mplayer",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, _ := exec.CommandContext(ctx, resolved).CombinedOutput()

	// "MPlayer 1.5-12.2.0 (C) 2000-2022 MPlayer Team"
	version := "unknown"
	if fields := strings.Fields(firstLine(out)); len(fields) >= 2 && strings.EqualFold(fields[0], "mplayer") {
		version = fields[1]
	}

	return Check{
		Name:    "mplayer",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", resolved, version),
	}
}

// checkFFprobe verifies ffprobe is available and working.
func checkFFprobe(ctx context.Context, path string, required bool) Check {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, "-version").Output()

	if err != nil {
		return Check{
			Name:    "ffprobe",
			Passed:  !required,
			Warning: !required,
			Message: fmt.Sprintf("not usable at %s: %v", path, err),
		}
	}

	// "ffprobe version 6.1 Copyright ..."
	version := "unknown"
	if parts := strings.Fields(firstLine(output)); len(parts) >= 3 {
		version = parts[2]
	}

	return Check{
		Name:    "ffprobe",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

// checkMediaFile verifies the media file exists and can be opened.
func checkMediaFile(fsys afero.Fs, path string) Check {
	info, err := fsys.Stat(path)
	if err != nil {
		return Check{Name: "media_file", Passed: false, Message: err.Error()}
	}
	if info.IsDir() {
		return Check{Name: "media_file", Passed: false, Message: fmt.Sprintf("%s is a directory", path)}
	}

	f, err := fsys.Open(path)
	if err != nil {
		return Check{Name: "media_file", Passed: false, Message: err.Error()}
	}
	f.Close()

	return Check{
		Name:    "media_file",
		Passed:  true,
		Message: fmt.Sprintf("%s (%d bytes)", path, info.Size()),
	}
}

// checkTempDir verifies thumbnail captures can be written under dir.
func checkTempDir(fsys afero.Fs, dir string) Check {
	probeDir, err := afero.TempDir(fsys, dir, "mplayerctl-preflight-")
	if err != nil {
		return Check{
			Name:    "temp_dir",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s not writable, thumbnails will fail: %v", dir, err),
		}
	}
	fsys.RemoveAll(probeDir)

	return Check{
		Name:    "temp_dir",
		Passed:  true,
		Message: filepath.Clean(dir),
	}
}

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimSpace(line)
}

// PrintResults prints the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed || check.Warning {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "mplayer":
		return "install mplayer (apt install mplayer / brew install mplayer) or pass -mplayer"
	case "ffprobe":
		return "install ffmpeg (apt install ffmpeg / brew install ffmpeg), pass -ffprobe, or use -skip-probe"
	case "media_file":
		return "check the media path and its permissions"
	case "temp_dir":
		return "pass a writable directory with -tmp"
	default:
		return "see documentation"
	}
}
