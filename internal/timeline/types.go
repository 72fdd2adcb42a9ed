// Package timeline holds the canonical in-memory edit model for a single
// video file: named trim segments, chapter markers and the id counters that
// survive persistence round trips.
package timeline

const (
	// PaletteSize is the number of trim colors cycled through at creation.
	PaletteSize = 6

	// DefaultTrimSpan is the span of a trim added at the playhead.
	DefaultTrimSpan = 5.0

	// MinCreateSpan is the shortest trim a create operation may produce.
	MinCreateSpan = 0.5

	// MinTrimSpan is the shortest span a drag edit may leave behind.
	MinTrimSpan = 1.0

	// MinLoopSpan is the shortest usable loop zone.
	MinLoopSpan = 0.3
)

type Trim struct {
	ID         int     `json:"id"`
	StartTime  float64 `json:"startTime"`
	EndTime    float64 `json:"endTime"`
	ColorIndex int     `json:"colorIndex"`
	Name       string  `json:"name,omitempty"`
}

func (t Trim) Span() float64 {
	return t.EndTime - t.StartTime
}

func (t Trim) Contains(pos float64) bool {
	return pos >= t.StartTime && pos < t.EndTime
}

type Marker struct {
	ID   int     `json:"id"`
	Time float64 `json:"time"`
	Name string  `json:"name,omitempty"`
}

// LoopZone is a transient scrub selection. It is never persisted and takes
// priority over trim-based looping during playback.
type LoopZone struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (z LoopZone) Span() float64 {
	return z.End - z.Start
}

// Region is a half-open [Start, End) slice of the timeline, used for the
// dimmed/excluded portions outside the active selection.
type Region struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Snapshot is the serializable copy of a model handed to the persistence
// layer. The store never touches a live Model.
type Snapshot struct {
	Trims        []Trim   `json:"trims"`
	NextTrimID   int      `json:"nextTrimId"`
	Markers      []Marker `json:"markers"`
	NextMarkerID int      `json:"nextMarkerId"`
	CreatedTrims int      `json:"createdTrims,omitempty"`
}
