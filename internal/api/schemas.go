package api

import (
	"time"

	"github.com/minicut/minicut-agent/internal/convert"
	"github.com/minicut/minicut-agent/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type OpenRequest struct {
	Path string `json:"path"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type SnapRequest struct {
	Enabled bool `json:"enabled"`
}

type WidthRequest struct {
	Px float64 `json:"px"`
}

type PointerRequest struct {
	Type string  `json:"type"` // down, move, up, hover
	X    float64 `json:"x"`
}

type TrimDragRequest struct {
	Kind string  `json:"kind"` // move, start, end
	X    float64 `json:"x"`
}

type LoopDragRequest struct {
	Kind string  `json:"kind"` // start, end
	X    float64 `json:"x"`
}

type SeekRequest struct {
	T float64 `json:"t"`
}

type StepRequest struct {
	Direction int `json:"direction"`
}

type PlayStateResponse struct {
	Playing bool `json:"playing"`
}

// FilmstripResponse carries base64 JPEG thumbnails; entries that failed to
// extract are empty strings at their slot.
type FilmstripResponse struct {
	Frames []string `json:"frames"`
}

type PrefetchRequest struct {
	T        float64 `json:"t"`
	Forward  int     `json:"forward"`
	Backward int     `json:"backward"`
}

type CreateTrimRequest struct {
	// One of: At (preset span from a point, or the active loop zone),
	// At+Length (quick-duration preset), or Start/End.
	At     *float64 `json:"at,omitempty"`
	Length *float64 `json:"length,omitempty"`
	Start  *float64 `json:"start,omitempty"`
	End    *float64 `json:"end,omitempty"`
}

type UpdateTrimRequest struct {
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
	Name  *string  `json:"name,omitempty"`
}

type DetectRequest struct {
	Threshold float64 `json:"threshold"`
}

type DetectResponse struct {
	Trims []timeline.Trim `json:"trims"`
}

type AddMarkerRequest struct {
	T    float64 `json:"t"`
	Name string  `json:"name,omitempty"`
}

type UpdateMarkerRequest struct {
	Name string `json:"name"`
}

type ConvertFileRequest struct {
	Input        string    `json:"input"`
	Format       string    `json:"format"`
	TargetMB     float64   `json:"targetMb,omitempty"`
	OutputName   string    `json:"outputName,omitempty"`
	TrimStart    *float64  `json:"trimStart,omitempty"`
	TrimDuration *float64  `json:"trimDuration,omitempty"`
	Chapters     []Chapter `json:"chapters,omitempty"`
}

type Chapter struct {
	Title string  `json:"title"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type ConvertRequest struct {
	Files []ConvertFileRequest `json:"files"`
}

type ConvertResponse struct {
	Jobs []convert.Job `json:"jobs"`
}

type JobsResponse struct {
	Jobs []convert.Job `json:"jobs"`
}

type PauseRequest struct {
	Paused bool `json:"paused"`
}

type SettingsResponse struct {
	Format   string  `json:"format"`
	TargetMB float64 `json:"targetMb"`
}

type SettingsRequest struct {
	TargetMB float64 `json:"targetMb"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func formatUptime(start time.Time) int64 {
	return int64(time.Since(start).Seconds())
}
