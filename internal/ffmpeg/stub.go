package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
)

// Stub is an in-memory FFmpeg for tests and for running the agent without
// real binaries. Fields preload the responses.
type Stub struct {
	Logger *slog.Logger

	ProbeInfo ProbeResult
	Frame     []byte
	Scenes    []float64
	Converted ConvertResult

	ProbeErr   error
	ExtractErr error
	DetectErr  error
	ConvertErr error
}

func NewStub(logger *slog.Logger) *Stub {
	return &Stub{
		Logger:    logger,
		ProbeInfo: ProbeResult{Duration: 60, Width: 1920, Height: 1080, FrameRate: 30},
		Frame:     []byte("stub-frame"),
	}
}

func (f *Stub) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if f.ProbeErr != nil {
		return nil, f.ProbeErr
	}
	info := f.ProbeInfo
	return &info, nil
}

func (f *Stub) ExtractFrame(ctx context.Context, path string, timestamp float64) ([]byte, error) {
	if f.ExtractErr != nil {
		return nil, f.ExtractErr
	}
	return append([]byte(nil), f.Frame...), nil
}

func (f *Stub) Filmstrip(ctx context.Context, path string, duration float64, count int) ([][]byte, error) {
	if count <= 0 || duration <= 0 {
		return nil, fmt.Errorf("invalid filmstrip request: count=%d duration=%v", count, duration)
	}
	frames := make([][]byte, count)
	for i := range frames {
		frame, err := f.ExtractFrame(ctx, path, 0)
		if err != nil {
			continue
		}
		frames[i] = frame
	}
	return frames, nil
}

func (f *Stub) DetectScenes(ctx context.Context, path string, threshold float64) ([]float64, error) {
	if f.DetectErr != nil {
		return nil, f.DetectErr
	}
	return append([]float64(nil), f.Scenes...), nil
}

func (f *Stub) Convert(ctx context.Context, req ConvertRequest, onProgress ProgressFunc) (*ConvertResult, error) {
	if onProgress != nil {
		onProgress(0, "analyzing")
		onProgress(50, "converting")
	}
	if f.ConvertErr != nil {
		return nil, f.ConvertErr
	}
	if onProgress != nil {
		onProgress(100, "completed")
	}
	result := f.Converted
	if result.OutputPath == "" {
		result.OutputPath = outputPathFor(req.Input, req.OutputName, "_converted.mp4")
	}
	return &result, nil
}
