// Package probe inspects media files with ffprobe.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/randomizedcoder/go-mplayer-ctl/internal/process"
	"github.com/randomizedcoder/go-mplayer-ctl/internal/supervisor"
)

// ErrProbeFailure means the file could not be inspected or lacks the
// required duration and audio stream.
var ErrProbeFailure = errors.New("media probe failed")

// MediaInfo describes one media file. It is immutable once returned.
type MediaInfo struct {
	Path       string
	Duration   float64 // seconds
	StartTime  float64 // seconds; 0 when the container reports none
	IsVideo    bool
	Width      int
	Height     int
	AudioCodec string
	VideoCodec string

	// Thumbnail is a frame from the middle of the first few seconds of a
	// video. Nil for audio or when capture failed.
	Thumbnail *supervisor.Thumbnail
}

// PictureSize returns the video frame size, or 0x0 when unknown.
func (m *MediaInfo) PictureSize() (width, height int) {
	return m.Width, m.Height
}

// Length returns Duration as a time.Duration.
func (m *MediaInfo) Length() time.Duration {
	return time.Duration(m.Duration * float64(time.Second))
}

// ThumbnailTime returns where in a video of the given duration the
// thumbnail frame is taken: halfway, whole seconds, at most 8s in.
func ThumbnailTime(duration float64) float64 {
	return math.Min(8, math.Trunc(duration/2))
}

// Tools is what the prober needs from the process supervisor.
type Tools interface {
	CaptureOutput(ctx context.Context, c process.Command) ([]byte, error)
	WaitForFileRelease(ctx context.Context, path string, timeout time.Duration) error
	SpawnThumbnailCapture(ctx context.Context, videoPath string, atSeconds float64) (*supervisor.Thumbnail, error)
}

// Config holds configuration for creating a new Prober.
type Config struct {
	Tools   Tools
	MPlayer *process.MPlayer
	Logger  *slog.Logger

	// ReleaseTimeout bounds the wait for ffprobe to let go of the file.
	ReleaseTimeout time.Duration

	// SkipThumbnail disables frame capture for videos.
	SkipThumbnail bool
}

// Prober runs ffprobe once per file and parses its text summary.
type Prober struct {
	tools          Tools
	mplayer        *process.MPlayer
	logger         *slog.Logger
	releaseTimeout time.Duration
	skipThumbnail  bool
}

// New creates a new Prober.
func New(cfg Config) *Prober {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mp := cfg.MPlayer
	if mp == nil {
		mp = process.NewMPlayer(nil)
	}
	timeout := cfg.ReleaseTimeout
	if timeout <= 0 {
		timeout = supervisor.DefaultPollConfig().Timeout
	}
	return &Prober{
		tools:          cfg.Tools,
		mplayer:        mp,
		logger:         logger,
		releaseTimeout: timeout,
		skipThumbnail:  cfg.SkipThumbnail,
	}
}

// Probe inspects path. Errors wrap ErrProbeFailure, except a start
// failure of ffprobe itself which wraps supervisor.ErrStartFailure too.
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := p.mplayer.Probe(path)
	out, runErr := p.tools.CaptureOutput(ctx, cmd)
	if errors.Is(runErr, supervisor.ErrStartFailure) {
		return nil, fmt.Errorf("%w: %w", ErrProbeFailure, runErr)
	}

	if err := p.tools.WaitForFileRelease(ctx, path, p.releaseTimeout); err != nil {
		p.logger.Warn("probe_release_wait", "path", path, "error", err)
	}

	info, err := ParseOutput(path, string(out))
	if err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", err, cmd.Binary, runErr)
		}
		return nil, err
	}

	if info.IsVideo && !p.skipThumbnail {
		at := ThumbnailTime(info.Duration)
		thumb, err := p.tools.SpawnThumbnailCapture(ctx, path, at)
		if err != nil {
			p.logger.Warn("thumbnail_failed", "path", path, "at", at, "error", err)
		}
		info.Thumbnail = thumb
	}

	p.logger.Debug("media_probed",
		"path", path,
		"duration", info.Duration,
		"start", info.StartTime,
		"video", info.IsVideo,
		"width", info.Width,
		"height", info.Height,
		"thumbnail", info.Thumbnail != nil,
	)
	return info, nil
}

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	startRe    = regexp.MustCompile(`Duration: .+?, start: ([^,\s]+)`)
	audioRe    = regexp.MustCompile(`(?m)^\s*Stream #.*?: Audio: ([^,\s]+)`)
	videoRe    = regexp.MustCompile(`(?m)^\s*Stream #.*?: Video: ([^,\s]+)(.*)$`)
	sizeRe     = regexp.MustCompile(`(?:^|[\s,])(\d+)x(\d+)(?:[\s,]|$)`)
)

// ParseOutput extracts MediaInfo from ffprobe's human-readable summary.
// The duration and an audio stream are required. Start time and picture
// size are optional and default to zero. Cover art ("attached pic") does
// not make a file a video.
func ParseOutput(path, text string) (*MediaInfo, error) {
	info := &MediaInfo{Path: path}

	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("%w: no duration for %s", ErrProbeFailure, path)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.ParseFloat(m[3], 64)
	info.Duration = float64(h)*3600 + float64(mins)*60 + sec

	a := audioRe.FindStringSubmatch(text)
	if a == nil {
		return nil, fmt.Errorf("%w: no audio stream in %s", ErrProbeFailure, path)
	}
	info.AudioCodec = a[1]

	if s := startRe.FindStringSubmatch(text); s != nil {
		if v, err := strconv.ParseFloat(s[1], 64); err == nil {
			info.StartTime = v
		}
	}

	for _, v := range videoRe.FindAllStringSubmatch(text, -1) {
		if strings.Contains(v[2], "(attached pic)") {
			continue
		}
		info.IsVideo = true
		info.VideoCodec = v[1]
		if sz := sizeRe.FindStringSubmatch(v[2]); sz != nil {
			w, werr := strconv.Atoi(sz[1])
			ht, herr := strconv.Atoi(sz[2])
			if werr == nil && herr == nil {
				info.Width, info.Height = w, ht
			}
		}
		break
	}

	return info, nil
}
