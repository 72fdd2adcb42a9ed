package export

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/minicut/minicut-agent/internal/timeline"
)

func TestManifest_RoundTrip(t *testing.T) {
	trims := []timeline.Trim{
		{ID: 1, StartTime: 0, EndTime: 5, Name: "Opening"},
		{ID: 2, StartTime: 10, EndTime: 20},
	}
	markers := []timeline.Marker{{ID: 1, Time: 12.5, Name: "Key moment"}}

	m := BuildManifest("/videos/clip.mp4", 60, trims, markers)

	path := filepath.Join(t.TempDir(), "clip.cuts.yaml")
	if err := WriteCutManifest(path, m); err != nil {
		t.Fatalf("WriteCutManifest: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}

	var got Manifest
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Input != "/videos/clip.mp4" || got.Duration != 60 {
		t.Errorf("header = %q/%v", got.Input, got.Duration)
	}
	if len(got.Trims) != 2 || got.Trims[0].Name != "Opening" || got.Trims[1].End != 20 {
		t.Errorf("trims = %+v", got.Trims)
	}
	if len(got.Markers) != 1 || got.Markers[0].Time != 12.5 {
		t.Errorf("markers = %+v", got.Markers)
	}
}

func TestBuildManifest_EmptyTimeline(t *testing.T) {
	m := BuildManifest("/videos/clip.mp4", 30, nil, nil)
	if len(m.Trims) != 0 || len(m.Markers) != 0 {
		t.Errorf("empty timeline produced %d trims / %d markers", len(m.Trims), len(m.Markers))
	}
}
