package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/minicut/minicut-agent/internal/db"
	"github.com/minicut/minicut-agent/internal/timeline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database, nil)
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/home/user/clip.mp4", "_home_user_clip.mp4"},
		{`C:\Videos\My Clip.mp4`, "C__Videos_My_Clip.mp4"},
		{"plain-name.mov", "plain-name.mov"},
	}
	for _, tt := range tests {
		if got := SanitizeKey(tt.in); got != tt.want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := "/videos/demo.mp4"

	snap := timeline.Snapshot{
		Trims: []timeline.Trim{
			{ID: 1, StartTime: 0, EndTime: 5, ColorIndex: 0, Name: "intro"},
			{ID: 3, StartTime: 10, EndTime: 20, ColorIndex: 2},
		},
		NextTrimID: 4,
		Markers: []timeline.Marker{
			{ID: 1, Time: 2.5, Name: "ch1"},
			{ID: 2, Time: 15},
		},
		NextMarkerID: 3,
	}

	if err := s.Save(ctx, path, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(got.Trims) != 2 || got.Trims[1] != snap.Trims[1] {
		t.Errorf("trims = %+v, want %+v", got.Trims, snap.Trims)
	}
	if len(got.Markers) != 2 || got.Markers[0] != snap.Markers[0] {
		t.Errorf("markers = %+v, want %+v", got.Markers, snap.Markers)
	}
	if got.NextTrimID != 4 || got.NextMarkerID != 3 {
		t.Errorf("counters = %d/%d, want 4/3", got.NextTrimID, got.NextMarkerID)
	}
}

func TestLoad_MissingFileYieldsEmptySnapshot(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Load(context.Background(), "/never/saved.mp4")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Trims) != 0 || len(got.Markers) != 0 {
		t.Errorf("expected empty snapshot, got %+v", got)
	}
	if got.NextTrimID != 1 || got.NextMarkerID != 1 {
		t.Errorf("counters = %d/%d, want 1/1", got.NextTrimID, got.NextMarkerID)
	}
}

func TestLoad_LegacyMarkerMigration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := "/videos/old.mp4"
	key := SanitizeKey(path)

	// Simulate the legacy store shape: a bare array of timestamps and no
	// nextMarkerId record.
	if err := s.put(ctx, key+"_markers", "[1.5, 20.25, 44.0]"); err != nil {
		t.Fatalf("put legacy markers: %v", err)
	}

	got, err := s.Load(ctx, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(got.Markers) != 3 {
		t.Fatalf("have %d markers, want 3", len(got.Markers))
	}
	wantTimes := []float64{1.5, 20.25, 44.0}
	for i, mk := range got.Markers {
		if mk.ID != i+1 {
			t.Errorf("marker %d ID = %d, want %d", i, mk.ID, i+1)
		}
		if mk.Time != wantTimes[i] {
			t.Errorf("marker %d Time = %v, want %v", i, mk.Time, wantTimes[i])
		}
		if want := fmt.Sprintf("Chapter %d", i+1); mk.Name != want {
			t.Errorf("marker %d Name = %q, want %q", i, mk.Name, want)
		}
	}
	if got.NextMarkerID != 4 {
		t.Errorf("NextMarkerID = %d, want 4 (derived from legacy count)", got.NextMarkerID)
	}
}

func TestLoad_EmptyLegacyArray(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := SanitizeKey("/videos/empty.mp4")
	if err := s.put(ctx, key+"_markers", "[]"); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Load(ctx, "/videos/empty.mp4")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Markers) != 0 {
		t.Errorf("markers = %+v, want none", got.Markers)
	}
}

func TestSave_Overwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := "/videos/demo.mp4"

	first := timeline.Snapshot{NextTrimID: 2, NextMarkerID: 1,
		Trims: []timeline.Trim{{ID: 1, StartTime: 0, EndTime: 5}}}
	if err := s.Save(ctx, path, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := timeline.Snapshot{NextTrimID: 3, NextMarkerID: 1,
		Trims: []timeline.Trim{{ID: 2, StartTime: 1, EndTime: 9}}}
	if err := s.Save(ctx, path, second); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	got, err := s.Load(ctx, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Trims) != 1 || got.Trims[0].ID != 2 {
		t.Errorf("trims = %+v, want only the second snapshot's trim", got.Trims)
	}
	if got.NextTrimID != 3 {
		t.Errorf("NextTrimID = %d, want 3", got.NextTrimID)
	}
}

func TestSettings_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetTargetMB(ctx, "webp"); err != nil || ok {
		t.Fatalf("GetTargetMB on empty store = ok=%v err=%v", ok, err)
	}

	if err := s.SetTargetMB(ctx, "webp", 8); err != nil {
		t.Fatalf("SetTargetMB() error = %v", err)
	}
	if err := s.SetTargetMB(ctx, "webp", 12.5); err != nil {
		t.Fatalf("SetTargetMB() update error = %v", err)
	}

	mb, ok, err := s.GetTargetMB(ctx, "webp")
	if err != nil || !ok {
		t.Fatalf("GetTargetMB() = ok=%v err=%v", ok, err)
	}
	if mb != 12.5 {
		t.Errorf("target_mb = %v, want 12.5", mb)
	}

	if err := s.SetTargetMB(ctx, "video", 0); err == nil {
		t.Error("SetTargetMB(0) should be rejected")
	}
}
