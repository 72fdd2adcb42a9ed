package timeline

import (
	"math"
	"sort"
	"testing"
)

func checkInvariants(t *testing.T, m *Model) {
	t.Helper()
	for _, tr := range m.Trims() {
		if tr.StartTime < 0 || tr.StartTime >= tr.EndTime || tr.EndTime > m.Duration() {
			t.Errorf("trim %d violates 0 <= %v < %v <= %v", tr.ID, tr.StartTime, tr.EndTime, m.Duration())
		}
	}
	markers := m.Markers()
	if !sort.SliceIsSorted(markers, func(i, j int) bool { return markers[i].Time < markers[j].Time }) {
		t.Errorf("markers not sorted: %v", markers)
	}
	eps := m.Duration() * 0.01
	for i := 1; i < len(markers); i++ {
		if math.Abs(markers[i].Time-markers[i-1].Time) < eps {
			t.Errorf("markers %d and %d closer than epsilon %v", markers[i-1].ID, markers[i].ID, eps)
		}
	}
}

func TestCreateTrim_ClampsAndRejects(t *testing.T) {
	m := NewModel(10)

	if tr := m.CreateTrim(-2, 3); tr == nil || tr.StartTime != 0 || tr.EndTime != 3 {
		t.Fatalf("CreateTrim(-2,3) = %+v, want clamped [0,3]", tr)
	}
	if tr := m.CreateTrim(8, 15); tr == nil || tr.EndTime != 10 {
		t.Fatalf("CreateTrim(8,15) = %+v, want end clamped to 10", tr)
	}
	if tr := m.CreateTrim(5, 5.2); tr != nil {
		t.Errorf("CreateTrim below min span should be rejected, got %+v", tr)
	}
	if tr := m.CreateTrim(4, 4); tr != nil {
		t.Errorf("zero-span trim should be rejected, got %+v", tr)
	}
	checkInvariants(t, m)
}

func TestCreateTrim_ReversedBoundsNormalized(t *testing.T) {
	m := NewModel(10)
	tr := m.CreateTrim(7, 2)
	if tr == nil || tr.StartTime != 2 || tr.EndTime != 7 {
		t.Fatalf("CreateTrim(7,2) = %+v, want [2,7]", tr)
	}
}

func TestAddTrimAt_DefaultSpanAndEndOfFile(t *testing.T) {
	m := NewModel(10)

	tr := m.AddTrimAt(2)
	if tr == nil || tr.StartTime != 2 || tr.EndTime != 7 {
		t.Fatalf("AddTrimAt(2) = %+v, want [2,7]", tr)
	}

	tr = m.AddTrimAt(9.5)
	if tr == nil || tr.EndTime != 10 || tr.StartTime != 5 {
		t.Fatalf("AddTrimAt(9.5) = %+v, want pulled back to [5,10]", tr)
	}
	checkInvariants(t, m)
}

func TestColorIndex_CyclesThroughPalette(t *testing.T) {
	m := NewModel(1000)
	for i := 0; i < PaletteSize+2; i++ {
		tr := m.CreateTrim(float64(i*10), float64(i*10+5))
		if tr == nil {
			t.Fatalf("trim %d not created", i)
		}
		if tr.ColorIndex != i%PaletteSize {
			t.Errorf("trim %d ColorIndex = %d, want %d", i, tr.ColorIndex, i%PaletteSize)
		}
	}
}

func TestColorIndex_AdvancesAcrossDeletes(t *testing.T) {
	m := NewModel(60)
	a := m.CreateTrim(0, 5)
	b := m.CreateTrim(10, 15)
	m.DeleteTrim(a.ID)

	c := m.CreateTrim(20, 25)
	if b.ColorIndex != 1 || c.ColorIndex != 2 {
		t.Errorf("colors = %d, %d, want 1, 2 (deletes must not recycle slots)", b.ColorIndex, c.ColorIndex)
	}

	// The counter survives a persistence round trip.
	m2 := NewModel(60)
	m2.Restore(m.Snapshot())
	d := m2.CreateTrim(30, 35)
	if d.ColorIndex != 3 {
		t.Errorf("restored ColorIndex = %d, want 3", d.ColorIndex)
	}
}

func TestUpdateTrim_MinSpanAndBounds(t *testing.T) {
	m := NewModel(10)
	tr := m.CreateTrim(2, 8)

	if m.UpdateTrim(tr.ID, 3, 3.5) {
		t.Error("UpdateTrim below min span should be rejected")
	}
	got, _ := m.Trim(tr.ID)
	if got.StartTime != 2 || got.EndTime != 8 {
		t.Errorf("rejected update must not partially apply, got %+v", got)
	}

	if !m.UpdateTrim(tr.ID, -1, 12) {
		t.Fatal("UpdateTrim with out-of-range bounds should clamp, not fail")
	}
	got, _ = m.Trim(tr.ID)
	if got.StartTime != 0 || got.EndTime != 10 {
		t.Errorf("UpdateTrim(-1,12) = %+v, want [0,10]", got)
	}

	if m.UpdateTrim(999, 1, 5) {
		t.Error("UpdateTrim on unknown id should be rejected")
	}
	checkInvariants(t, m)
}

func TestDeleteTrim_NoIDReuse(t *testing.T) {
	m := NewModel(100)
	a := m.CreateTrim(0, 5)
	b := m.CreateTrim(10, 15)
	m.DeleteTrim(b.ID)
	c := m.CreateTrim(20, 25)
	if c.ID <= b.ID {
		t.Errorf("id %d reused after delete (previous max %d)", c.ID, b.ID)
	}
	if a.ID == c.ID {
		t.Error("duplicate trim ids")
	}
}

func TestAddTrimsFromCuts_BuildsBoundaries(t *testing.T) {
	m := NewModel(10)
	added := m.AddTrimsFromCuts([]float64{2.0, 7.5})
	if len(added) != 3 {
		t.Fatalf("added %d trims, want 3", len(added))
	}
	want := [][2]float64{{0, 2.0}, {2.0, 7.5}, {7.5, 10}}
	for i, w := range want {
		if added[i].StartTime != w[0] || added[i].EndTime != w[1] {
			t.Errorf("trim %d = [%v,%v], want %v", i, added[i].StartTime, added[i].EndTime, w)
		}
	}
}

func TestAddTrimsFromCuts_DropsSlivers(t *testing.T) {
	m := NewModel(10)
	added := m.AddTrimsFromCuts([]float64{0.2})
	if len(added) != 1 {
		t.Fatalf("added %d trims, want 1 (the 0.2s sliver dropped)", len(added))
	}
	if added[0].StartTime != 0.2 || added[0].EndTime != 10 {
		t.Errorf("trim = [%v,%v], want [0.2,10]", added[0].StartTime, added[0].EndTime)
	}
}

func TestAddMarker_EpsilonDedup(t *testing.T) {
	m := NewModel(100) // epsilon = 1s

	if mk := m.AddMarker(10, "a"); mk == nil {
		t.Fatal("first marker rejected")
	}
	if mk := m.AddMarker(10.5, "b"); mk != nil {
		t.Errorf("marker within epsilon should be dropped, got %+v", mk)
	}
	if mk := m.AddMarker(11.5, "c"); mk == nil {
		t.Error("marker outside epsilon should be accepted")
	}
	checkInvariants(t, m)
}

func TestAddMarker_SortedInsert(t *testing.T) {
	m := NewModel(100)
	for _, tm := range []float64{50, 10, 90, 30, 70} {
		m.AddMarker(tm, "")
	}
	markers := m.Markers()
	if len(markers) != 5 {
		t.Fatalf("have %d markers, want 5", len(markers))
	}
	checkInvariants(t, m)
}

func TestAddMarkerPair_FromLoopZone(t *testing.T) {
	m := NewModel(100)
	added := m.AddMarkerPair(LoopZone{Start: 20, End: 40})
	if len(added) != 2 {
		t.Fatalf("added %d markers, want 2", len(added))
	}
	if added[0].Time != 20 || added[1].Time != 40 {
		t.Errorf("pair times = %v,%v", added[0].Time, added[1].Time)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	m := NewModel(60)
	m.CreateTrim(0, 5)
	m.CreateTrim(10, 20)
	m.AddMarker(30, "ch")
	m.RenameTrim(1, "intro")
	snap := m.Snapshot()

	m2 := NewModel(60)
	m2.Restore(snap)
	snap2 := m2.Snapshot()

	if len(snap2.Trims) != len(snap.Trims) || len(snap2.Markers) != len(snap.Markers) {
		t.Fatalf("round trip lost content: %+v vs %+v", snap2, snap)
	}
	for i := range snap.Trims {
		if snap2.Trims[i] != snap.Trims[i] {
			t.Errorf("trim %d = %+v, want %+v", i, snap2.Trims[i], snap.Trims[i])
		}
	}
	if snap2.NextTrimID < snap.NextTrimID || snap2.NextMarkerID < snap.NextMarkerID {
		t.Error("id counters must never decrease across a round trip")
	}
}

func TestRestore_CountersOnlyAdvance(t *testing.T) {
	m := NewModel(60)
	for i := 0; i < 5; i++ {
		m.CreateTrim(float64(i*10), float64(i*10+5))
	}
	m.Restore(Snapshot{NextTrimID: 2, NextMarkerID: 1})
	tr := m.CreateTrim(0, 5)
	if tr.ID != 6 {
		t.Errorf("new trim id = %d, want 6 (counter must not rewind)", tr.ID)
	}
}

func TestOnChange_FiresOnMutationNotRestore(t *testing.T) {
	m := NewModel(60)
	calls := 0
	m.OnChange(func() { calls++ })

	m.CreateTrim(0, 5)
	m.AddMarker(30, "")
	if calls != 2 {
		t.Errorf("change hook fired %d times, want 2", calls)
	}

	m.Restore(Snapshot{
		Trims:        []Trim{{ID: 1, StartTime: 0, EndTime: 5}},
		NextTrimID:   10,
		Markers:      []Marker{{ID: 1, Time: 30}},
		NextMarkerID: 10,
	})
	if calls != 2 {
		t.Errorf("Restore must not fire change hooks, fired %d times", calls)
	}

	// Rejected mutations stay silent: the marker dedupes against the
	// restored one, the trim id does not exist.
	m.AddMarker(30.1, "")
	m.UpdateTrim(999, 0, 5)
	if calls != 2 {
		t.Errorf("rejected mutations must not fire hooks, fired %d times", calls)
	}
}

func TestExcludedRegions_LoopZonePriority(t *testing.T) {
	m := NewModel(10)
	m.CreateTrim(1, 3)

	loop := &LoopZone{Start: 4, End: 6}
	regions := m.ExcludedRegions(loop)
	if len(regions) != 2 {
		t.Fatalf("have %d regions, want 2", len(regions))
	}
	if regions[0] != (Region{0, 4}) || regions[1] != (Region{6, 10}) {
		t.Errorf("regions = %v", regions)
	}
}

func TestExcludedRegions_TrimUnion(t *testing.T) {
	m := NewModel(10)
	m.CreateTrim(1, 3)
	m.CreateTrim(2, 5) // overlaps the first
	m.CreateTrim(7, 9)

	regions := m.ExcludedRegions(nil)
	want := []Region{{0, 1}, {5, 7}, {9, 10}}
	if len(regions) != len(want) {
		t.Fatalf("regions = %v, want %v", regions, want)
	}
	for i := range want {
		if regions[i] != want[i] {
			t.Errorf("region %d = %v, want %v", i, regions[i], want[i])
		}
	}
}

func TestExcludedRegions_EmptyModel(t *testing.T) {
	m := NewModel(10)
	if regions := m.ExcludedRegions(nil); regions != nil {
		t.Errorf("empty model should exclude nothing, got %v", regions)
	}
}
