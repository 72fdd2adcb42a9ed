// Package ffmpeg wraps the bundled ffmpeg/ffprobe binaries behind a narrow
// interface. It is the single implementation of the media execution contract
// used throughout the agent; everything else talks to the FFmpeg interface so
// tests can substitute a stub.
package ffmpeg

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"
)

// Format selects the conversion target.
type Format string

const (
	FormatVideo Format = "video"
	FormatWebP  Format = "webp"
)

func ValidFormat(f Format) bool {
	return f == FormatVideo || f == FormatWebP
}

// ProbeResult describes the primary video stream of a file.
type ProbeResult struct {
	Duration   float64
	Width      int
	Height     int
	Codec      string
	AudioCodec string
	Container  string
	Bitrate    int64 // container bitrate in bits/s, 0 if unknown
	FrameRate  float64
	SizeBytes  int64
}

// Chapter is a named span written into chapter-capable outputs.
type Chapter struct {
	Title string
	Start float64
	End   float64
}

// ConvertRequest describes one target-size conversion.
type ConvertRequest struct {
	Input       string
	TargetBytes int64
	Format      Format

	// OutputName overrides the output file's base name. Any directory
	// components and extension are stripped; empty means the input stem.
	OutputName string

	// Optional trim window, applied with hybrid seeking.
	TrimStart    *float64
	TrimDuration *float64

	Chapters []Chapter
}

// ConvertResult reports where the encode landed.
type ConvertResult struct {
	OutputPath string
	OutputSize int64
}

// ProgressFunc receives percent [0,100] and a coarse status string
// (analyzing, converting, completed).
type ProgressFunc func(percent float64, status string)

// FFmpeg is the media backend contract.
type FFmpeg interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// ExtractFrame renders a single downscaled JPEG at the given timestamp.
	ExtractFrame(ctx context.Context, path string, timestamp float64) ([]byte, error)

	// Filmstrip renders count evenly spaced frames. Failed frames yield nil
	// entries rather than aborting the strip.
	Filmstrip(ctx context.Context, path string, duration float64, count int) ([][]byte, error)

	// DetectScenes returns cut timestamps above the given scene-change
	// threshold, earliest first.
	DetectScenes(ctx context.Context, path string, threshold float64) ([]float64, error)

	Convert(ctx context.Context, req ConvertRequest, onProgress ProgressFunc) (*ConvertResult, error)
}

// Config holds the subprocess backend's configuration.
type Config struct {
	FFmpegPath  string // explicit binary path; empty = auto-detect
	FFprobePath string
	TempDir     string // scratch dir for single-frame extractions

	ProbeTimeout   time.Duration
	ExtractTimeout time.Duration
	DetectTimeout  time.Duration
	ConvertTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(dataDir string, logger *slog.Logger) Config {
	return Config{
		TempDir:        filepath.Join(dataDir, "tmp"),
		ProbeTimeout:   15 * time.Second,
		ExtractTimeout: 20 * time.Second,
		DetectTimeout:  10 * time.Minute,
		ConvertTimeout: 4 * time.Hour,
		Logger:         logger,
	}
}
