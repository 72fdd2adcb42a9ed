// Package interact turns raw pointer events on the timeline strip into edit
// operations: scrub selections, trim creation, drag edits with snapping and
// marker drops. It holds an explicit interaction state and applies effects to
// the edit model, the playback clock and the frame cache through narrow
// interfaces, so the whole state machine is testable without a UI.
package interact

import (
	"log/slog"
	"math"
	"time"

	"github.com/minicut/minicut-agent/internal/timeline"
)

type Mode string

const (
	ModeSelect Mode = "select"
	ModeTrim   Mode = "trim"
	ModeMarker Mode = "marker"
)

func ValidMode(m Mode) bool {
	return m == ModeSelect || m == ModeTrim || m == ModeMarker
}

type DragKind int

const (
	DragNone DragKind = iota
	DragScrub
	DragCreateTrim
	DragMoveTrim
	DragTrimStart
	DragTrimEnd
	DragLoopStart
	DragLoopEnd
)

const (
	// SnapThresholdPx is the pixel distance within which a moving edge is
	// forced onto a marker or another trim's edge.
	SnapThresholdPx = 8.0

	// ClickTolerancePx separates a motionless click from a drag.
	ClickTolerancePx = 4.0

	// HoverReleaseDelay keeps the hover guard up briefly after pointer-up
	// so a stale hover cannot fire mid-release.
	HoverReleaseDelay = 150 * time.Millisecond

	// Prefetch breadth around the hovered position.
	hoverPrefetchForward  = 6
	hoverPrefetchBackward = 3
)

// ModelOps is the slice of the edit model the controller drives.
type ModelOps interface {
	Duration() float64
	Trims() []timeline.Trim
	Trim(id int) (timeline.Trim, bool)
	Markers() []timeline.Marker
	CreateTrim(start, end float64) *timeline.Trim
	UpdateTrim(id int, start, end float64) bool
	AddMarker(t float64, name string) *timeline.Marker
	AddMarkerPair(zone timeline.LoopZone) []timeline.Marker
	ExcludedRegions(loop *timeline.LoopZone) []timeline.Region
}

// ClockOps is the transport surface used for live preview seeking.
type ClockOps interface {
	SeekTo(t float64)
}

// PreviewOps is the frame cache surface used for scrub previews.
type PreviewOps interface {
	Request(t float64)
	Prefetch(anchorTime float64, forward, backward int)
}

type dragState struct {
	kind       DragKind
	originX    float64
	originTime float64
	moved      bool
	trimID     int
	origStart  float64
	origEnd    float64
}

// Controller is not safe for concurrent use; the owning session serializes
// all entry points.
type Controller struct {
	model   ModelOps
	clock   ClockOps
	preview PreviewOps
	logger  *slog.Logger

	widthPx float64

	mode           Mode
	snapEnabled    bool
	playheadLocked bool
	pendingStart   *float64
	loop           *timeline.LoopZone
	drag           *dragState
	hoverGuard     bool

	// scheduleRelease defers the hover-guard release after pointer-up.
	// The session wraps it to re-enter under its own lock; tests replace it
	// to fire synchronously.
	scheduleRelease func(fn func())
}

func NewController(model ModelOps, clock ClockOps, preview PreviewOps, widthPx float64, logger *slog.Logger) *Controller {
	c := &Controller{
		model:       model,
		clock:       clock,
		preview:     preview,
		logger:      logger,
		widthPx:     widthPx,
		mode:        ModeSelect,
		snapEnabled: true,
	}
	c.scheduleRelease = func(fn func()) {
		time.AfterFunc(HoverReleaseDelay, fn)
	}
	return c
}

// SetReleaseScheduler replaces the deferred hover-guard release hook.
func (c *Controller) SetReleaseScheduler(fn func(func())) {
	c.scheduleRelease = fn
}

// SetWidth updates the rendered timeline width used for pixel/time mapping.
func (c *Controller) SetWidth(px float64) {
	if px > 0 {
		c.widthPx = px
	}
}

func (c *Controller) Mode() Mode            { return c.mode }
func (c *Controller) SnapEnabled() bool     { return c.snapEnabled }
func (c *Controller) PlayheadLocked() bool  { return c.playheadLocked }
func (c *Controller) DragActive() bool      { return c.drag != nil }
func (c *Controller) PendingStart() *float64 {
	if c.pendingStart == nil {
		return nil
	}
	v := *c.pendingStart
	return &v
}

// Loop returns a copy of the active loop zone, or nil.
func (c *Controller) Loop() *timeline.LoopZone {
	if c.loop == nil {
		return nil
	}
	z := *c.loop
	return &z
}

// SetLoop installs a loop zone directly (e.g. restored by the session).
func (c *Controller) SetLoop(z *timeline.LoopZone) {
	c.loop = z
}

func (c *Controller) ClearLoop() {
	c.loop = nil
}

// SetMode switches the interaction mode, discarding any in-progress pending
// trim point and any active loop zone.
func (c *Controller) SetMode(m Mode) {
	if !ValidMode(m) || m == c.mode {
		return
	}
	c.mode = m
	c.pendingStart = nil
	c.loop = nil
	c.drag = nil
}

// SetSnap toggles edge snapping globally.
func (c *Controller) SetSnap(enabled bool) {
	c.snapEnabled = enabled
}

// Excluded returns the dimmed timeline regions for the current selection.
func (c *Controller) Excluded() []timeline.Region {
	return c.model.ExcludedRegions(c.loop)
}

// TimeForX maps a pointer x coordinate to a timestamp.
func (c *Controller) TimeForX(x float64) float64 {
	if c.widthPx <= 0 {
		return 0
	}
	frac := x / c.widthPx
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return frac * c.model.Duration()
}

func (c *Controller) pxToTime(px float64) float64 {
	if c.widthPx <= 0 {
		return 0
	}
	return px / c.widthPx * c.model.Duration()
}

// Hover handles ambient pointer movement with no button down: preview
// seeking plus cache prefetch, unless a drag guard or the playhead lock
// suppresses it.
func (c *Controller) Hover(x float64) {
	if c.hoverGuard || c.drag != nil || c.playheadLocked {
		return
	}
	t := c.TimeForX(x)
	c.clock.SeekTo(t)
	c.preview.Prefetch(t, hoverPrefetchForward, hoverPrefetchBackward)
}

// PointerDown begins a mode-dependent interaction on empty timeline space.
func (c *Controller) PointerDown(x float64) {
	t := c.TimeForX(x)
	c.hoverGuard = true

	switch c.mode {
	case ModeSelect:
		// The next select interaction always discards an existing zone.
		c.loop = nil
		c.drag = &dragState{kind: DragScrub, originX: x, originTime: t}

	case ModeTrim:
		if c.pendingStart != nil {
			// Second click completes the two-point trim.
			start := *c.pendingStart
			c.pendingStart = nil
			c.model.CreateTrim(start, t)
			c.releaseSoon()
			return
		}
		c.drag = &dragState{kind: DragCreateTrim, originX: x, originTime: t}
		c.clock.SeekTo(t)
		c.preview.Request(t)

	case ModeMarker:
		// With a loop zone active the marker lands on its bounds, one at
		// each end, rather than under the pointer.
		if c.loop != nil {
			c.model.AddMarkerPair(*c.loop)
		} else {
			c.model.AddMarker(t, "")
		}
		c.releaseSoon()
	}
}

// BeginTrimDrag starts an edge or whole-region drag of an existing trim.
func (c *Controller) BeginTrimDrag(id int, kind DragKind, x float64) {
	if kind != DragMoveTrim && kind != DragTrimStart && kind != DragTrimEnd {
		return
	}
	tr, ok := c.model.Trim(id)
	if !ok {
		return
	}
	c.hoverGuard = true
	c.drag = &dragState{
		kind:       kind,
		originX:    x,
		originTime: c.TimeForX(x),
		trimID:     id,
		origStart:  tr.StartTime,
		origEnd:    tr.EndTime,
	}
}

// BeginLoopDrag starts a handle drag on the active loop zone.
func (c *Controller) BeginLoopDrag(kind DragKind, x float64) {
	if c.loop == nil || (kind != DragLoopStart && kind != DragLoopEnd) {
		return
	}
	c.hoverGuard = true
	c.drag = &dragState{
		kind:       kind,
		originX:    x,
		originTime: c.TimeForX(x),
		origStart:  c.loop.Start,
		origEnd:    c.loop.End,
	}
}

// PointerMove advances the active drag.
func (c *Controller) PointerMove(x float64) {
	d := c.drag
	if d == nil {
		return
	}
	if math.Abs(x-d.originX) > ClickTolerancePx {
		d.moved = true
	}
	t := c.TimeForX(x)

	switch d.kind {
	case DragScrub:
		if !d.moved {
			return
		}
		start, end := d.originTime, t
		if start > end {
			start, end = end, start
		}
		c.loop = &timeline.LoopZone{Start: start, End: end}
		c.clock.SeekTo(t)
		c.preview.Request(t)

	case DragCreateTrim:
		c.clock.SeekTo(t)
		c.preview.Request(t)

	case DragTrimStart:
		end := d.origEnd
		start := c.maybeSnap(t, d.trimID)
		start = math.Min(start, end-timeline.MinTrimSpan)
		start = math.Max(start, 0)
		c.model.UpdateTrim(d.trimID, start, end)

	case DragTrimEnd:
		start := d.origStart
		end := c.maybeSnap(t, d.trimID)
		end = math.Max(end, start+timeline.MinTrimSpan)
		end = math.Min(end, c.model.Duration())
		c.model.UpdateTrim(d.trimID, start, end)

	case DragMoveTrim:
		delta := t - d.originTime
		span := d.origEnd - d.origStart
		start := d.origStart + delta
		end := start + span

		// Whole-region snapping tries the leading edge first.
		if snapped, ok := c.snapTarget(start, d.trimID); ok {
			start = snapped
			end = start + span
		} else if snapped, ok := c.snapTarget(end, d.trimID); ok {
			end = snapped
			start = end - span
		}

		if start < 0 {
			start = 0
			end = span
		}
		if end > c.model.Duration() {
			end = c.model.Duration()
			start = end - span
		}
		c.model.UpdateTrim(d.trimID, start, end)

	case DragLoopStart:
		if c.loop == nil {
			return
		}
		start := c.maybeSnap(t, 0)
		start = math.Min(start, d.origEnd-timeline.MinLoopSpan)
		start = math.Max(start, 0)
		c.loop = &timeline.LoopZone{Start: start, End: d.origEnd}

	case DragLoopEnd:
		if c.loop == nil {
			return
		}
		end := c.maybeSnap(t, 0)
		end = math.Max(end, d.origStart+timeline.MinLoopSpan)
		end = math.Min(end, c.model.Duration())
		c.loop = &timeline.LoopZone{Start: d.origStart, End: end}
	}
}

// PointerUp finishes the active drag and schedules the hover-guard release.
func (c *Controller) PointerUp(x float64) {
	d := c.drag
	if d == nil {
		c.releaseSoon()
		return
	}
	c.drag = nil
	t := c.TimeForX(x)

	switch d.kind {
	case DragScrub:
		if !d.moved {
			// A motionless click toggles the playhead lock for precise
			// placement.
			c.playheadLocked = !c.playheadLocked
			break
		}
		if c.loop != nil && c.loop.Span() < timeline.MinLoopSpan {
			c.loop = nil
		}

	case DragCreateTrim:
		if !d.moved {
			// Start retained: the next click completes the trim.
			start := d.originTime
			c.pendingStart = &start
			break
		}
		c.model.CreateTrim(d.originTime, t)
	}

	c.releaseSoon()
}

func (c *Controller) releaseSoon() {
	c.scheduleRelease(c.ReleaseHover)
}

// ReleaseHover drops the guard that suppresses hover previews during and
// just after a drag.
func (c *Controller) ReleaseHover() {
	c.hoverGuard = false
}

func (c *Controller) snapThresholdTime() float64 {
	return c.pxToTime(SnapThresholdPx)
}

// snapTarget finds a marker time or another trim's edge within the snap
// threshold of t. The dragged trim's own edges are never targets, so a drag
// cannot snap a trim onto itself.
func (c *Controller) snapTarget(t float64, excludeTrimID int) (float64, bool) {
	if !c.snapEnabled {
		return 0, false
	}
	threshold := c.snapThresholdTime()
	best := 0.0
	bestDist := math.Inf(1)

	consider := func(candidate float64) {
		if d := math.Abs(candidate - t); d <= threshold && d < bestDist {
			best = candidate
			bestDist = d
		}
	}

	for _, mk := range c.model.Markers() {
		consider(mk.Time)
	}
	for _, tr := range c.model.Trims() {
		if tr.ID == excludeTrimID {
			continue
		}
		consider(tr.StartTime)
		consider(tr.EndTime)
	}

	if math.IsInf(bestDist, 1) {
		return 0, false
	}
	return best, true
}

func (c *Controller) maybeSnap(t float64, excludeTrimID int) float64 {
	if snapped, ok := c.snapTarget(t, excludeTrimID); ok {
		return snapped
	}
	return t
}
