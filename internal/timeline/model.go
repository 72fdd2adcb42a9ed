package timeline

import (
	"math"
	"sort"
)

// Model owns the trims and markers of the currently open file. All mutators
// are synchronous, clamp their inputs to [0, duration], and silently reject
// anything that would break an invariant. Every successful mutation fires the
// registered change hooks; rehydration through Restore does not.
type Model struct {
	duration float64

	trims        []Trim
	markers      []Marker
	nextTrimID   int
	nextMarkerID int

	// createdTrims counts every trim ever created, so palette colors keep
	// advancing across deletions instead of reusing recent slots.
	createdTrims int

	onChange []func()
}

func NewModel(duration float64) *Model {
	if duration < 0 {
		duration = 0
	}
	return &Model{
		duration:     duration,
		nextTrimID:   1,
		nextMarkerID: 1,
	}
}

// OnChange registers a hook fired after every successful mutation.
func (m *Model) OnChange(fn func()) {
	m.onChange = append(m.onChange, fn)
}

func (m *Model) notify() {
	for _, fn := range m.onChange {
		fn()
	}
}

func (m *Model) Duration() float64 {
	return m.duration
}

// markerEpsilon is the duration-relative minimum distance between markers.
func (m *Model) markerEpsilon() float64 {
	return m.duration * 0.01
}

func (m *Model) clamp(t float64) float64 {
	return math.Min(math.Max(t, 0), m.duration)
}

// Trims returns a copy of the trim collection.
func (m *Model) Trims() []Trim {
	out := make([]Trim, len(m.trims))
	copy(out, m.trims)
	return out
}

// Markers returns a copy of the marker collection, sorted by time.
func (m *Model) Markers() []Marker {
	out := make([]Marker, len(m.markers))
	copy(out, m.markers)
	return out
}

func (m *Model) Trim(id int) (Trim, bool) {
	for _, t := range m.trims {
		if t.ID == id {
			return t, true
		}
	}
	return Trim{}, false
}

// TrimAt returns the first trim containing pos.
func (m *Model) TrimAt(pos float64) (Trim, bool) {
	for _, t := range m.trims {
		if t.Contains(pos) {
			return t, true
		}
	}
	return Trim{}, false
}

// AddTrimAt creates a default-span trim starting at the playhead position,
// pulled back from the end of the file when it would not fit.
func (m *Model) AddTrimAt(pos float64) *Trim {
	start := m.clamp(pos)
	end := start + DefaultTrimSpan
	if end > m.duration {
		end = m.duration
		start = math.Max(0, end-DefaultTrimSpan)
	}
	return m.CreateTrim(start, end)
}

// CreateTrim creates a trim spanning [start, end], clamped to the file.
// Spans shorter than MinCreateSpan are rejected.
func (m *Model) CreateTrim(start, end float64) *Trim {
	start = m.clamp(start)
	end = m.clamp(end)
	if start > end {
		start, end = end, start
	}
	if end-start < MinCreateSpan {
		return nil
	}

	t := Trim{
		ID:         m.nextTrimID,
		StartTime:  start,
		EndTime:    end,
		ColorIndex: m.createdTrims % PaletteSize,
	}
	m.nextTrimID++
	m.createdTrims++
	m.trims = append(m.trims, t)
	m.notify()
	out := t
	return &out
}

// CreateTrimPreset creates a trim of the given length from start.
func (m *Model) CreateTrimPreset(start, length float64) *Trim {
	return m.CreateTrim(start, start+length)
}

// UpdateTrim moves both boundaries of an existing trim. The result is
// clamped to the file; edits shrinking the trim below MinTrimSpan are
// rejected outright rather than partially applied.
func (m *Model) UpdateTrim(id int, start, end float64) bool {
	start = m.clamp(start)
	end = m.clamp(end)
	if end-start < MinTrimSpan {
		return false
	}
	for i := range m.trims {
		if m.trims[i].ID == id {
			m.trims[i].StartTime = start
			m.trims[i].EndTime = end
			m.notify()
			return true
		}
	}
	return false
}

func (m *Model) RenameTrim(id int, name string) bool {
	for i := range m.trims {
		if m.trims[i].ID == id {
			m.trims[i].Name = name
			m.notify()
			return true
		}
	}
	return false
}

func (m *Model) DeleteTrim(id int) bool {
	for i := range m.trims {
		if m.trims[i].ID == id {
			m.trims = append(m.trims[:i], m.trims[i+1:]...)
			m.notify()
			return true
		}
	}
	return false
}

func (m *Model) ClearTrims() {
	if len(m.trims) == 0 {
		return
	}
	m.trims = m.trims[:0]
	m.notify()
}

// AddTrimsFromCuts builds trims from the consecutive boundaries
// [0, cuts..., duration]. Slivers shorter than MinCreateSpan are discarded.
func (m *Model) AddTrimsFromCuts(cuts []float64) []Trim {
	bounds := make([]float64, 0, len(cuts)+2)
	bounds = append(bounds, 0)
	for _, c := range cuts {
		c = m.clamp(c)
		if c > 0 && c < m.duration {
			bounds = append(bounds, c)
		}
	}
	bounds = append(bounds, m.duration)
	sort.Float64s(bounds)

	var added []Trim
	for i := 0; i+1 < len(bounds); i++ {
		if t := m.CreateTrim(bounds[i], bounds[i+1]); t != nil {
			added = append(added, *t)
		}
	}
	return added
}

// AddMarker inserts a marker at t, keeping the collection sorted by time.
// A marker within duration*0.01 of an existing one is silently dropped.
func (m *Model) AddMarker(t float64, name string) *Marker {
	t = m.clamp(t)
	eps := m.markerEpsilon()
	for _, mk := range m.markers {
		if math.Abs(mk.Time-t) < eps {
			return nil
		}
	}

	mk := Marker{ID: m.nextMarkerID, Time: t, Name: name}
	m.nextMarkerID++

	idx := sort.Search(len(m.markers), func(i int) bool {
		return m.markers[i].Time > t
	})
	m.markers = append(m.markers, Marker{})
	copy(m.markers[idx+1:], m.markers[idx:])
	m.markers[idx] = mk
	m.notify()
	out := mk
	return &out
}

// AddMarkerPair adds markers at the bounds of a loop zone. Either half is
// subject to the usual de-duplication.
func (m *Model) AddMarkerPair(zone LoopZone) []Marker {
	var added []Marker
	if mk := m.AddMarker(zone.Start, ""); mk != nil {
		added = append(added, *mk)
	}
	if mk := m.AddMarker(zone.End, ""); mk != nil {
		added = append(added, *mk)
	}
	return added
}

func (m *Model) RenameMarker(id int, name string) bool {
	for i := range m.markers {
		if m.markers[i].ID == id {
			m.markers[i].Name = name
			m.notify()
			return true
		}
	}
	return false
}

func (m *Model) DeleteMarker(id int) bool {
	for i := range m.markers {
		if m.markers[i].ID == id {
			m.markers = append(m.markers[:i], m.markers[i+1:]...)
			m.notify()
			return true
		}
	}
	return false
}

func (m *Model) ClearMarkers() {
	if len(m.markers) == 0 {
		return
	}
	m.markers = m.markers[:0]
	m.notify()
}

// Snapshot copies the persisted portion of the model.
func (m *Model) Snapshot() Snapshot {
	return Snapshot{
		Trims:        m.Trims(),
		NextTrimID:   m.nextTrimID,
		Markers:      m.Markers(),
		NextMarkerID: m.nextMarkerID,
		CreatedTrims: m.createdTrims,
	}
}

// Restore rehydrates the model from a stored snapshot. Id counters only ever
// advance, so a stale snapshot cannot cause id reuse. No change hooks fire.
func (m *Model) Restore(s Snapshot) {
	m.trims = make([]Trim, 0, len(s.Trims))
	for _, t := range s.Trims {
		t.StartTime = m.clamp(t.StartTime)
		t.EndTime = m.clamp(t.EndTime)
		if t.StartTime < t.EndTime {
			m.trims = append(m.trims, t)
		}
	}
	m.markers = make([]Marker, 0, len(s.Markers))
	for _, mk := range s.Markers {
		mk.Time = m.clamp(mk.Time)
		m.markers = append(m.markers, mk)
	}
	sort.Slice(m.markers, func(i, j int) bool {
		return m.markers[i].Time < m.markers[j].Time
	})

	if s.NextTrimID > m.nextTrimID {
		m.nextTrimID = s.NextTrimID
	}
	if s.NextMarkerID > m.nextMarkerID {
		m.nextMarkerID = s.NextMarkerID
	}
	if s.CreatedTrims > m.createdTrims {
		m.createdTrims = s.CreatedTrims
	}
}

// ExcludedRegions returns the timeline portions outside the active loop zone,
// or outside the union of all trims when no loop zone is active. With neither
// a loop zone nor trims, nothing is excluded.
func (m *Model) ExcludedRegions(loop *LoopZone) []Region {
	if loop != nil {
		var out []Region
		if loop.Start > 0 {
			out = append(out, Region{Start: 0, End: loop.Start})
		}
		if loop.End < m.duration {
			out = append(out, Region{Start: loop.End, End: m.duration})
		}
		return out
	}

	if len(m.trims) == 0 {
		return nil
	}

	sorted := m.Trims()
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	var out []Region
	cursor := 0.0
	for _, t := range sorted {
		if t.StartTime > cursor {
			out = append(out, Region{Start: cursor, End: t.StartTime})
		}
		if t.EndTime > cursor {
			cursor = t.EndTime
		}
	}
	if cursor < m.duration {
		out = append(out, Region{Start: cursor, End: m.duration})
	}
	return out
}
