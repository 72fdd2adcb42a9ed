package export

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/minicut/minicut-agent/internal/timeline"
)

// Manifest is the machine-readable cut description handed to external
// tooling (batch encoders, upload scripts).
type Manifest struct {
	Input    string           `yaml:"input"`
	Duration float64          `yaml:"duration"`
	Trims    []ManifestTrim   `yaml:"trims"`
	Markers  []ManifestMarker `yaml:"markers,omitempty"`
}

type ManifestTrim struct {
	ID    int     `yaml:"id"`
	Name  string  `yaml:"name,omitempty"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

type ManifestMarker struct {
	ID   int     `yaml:"id"`
	Name string  `yaml:"name,omitempty"`
	Time float64 `yaml:"time"`
}

// BuildManifest converts live timeline state into its manifest form.
func BuildManifest(input string, duration float64, trims []timeline.Trim, markers []timeline.Marker) Manifest {
	m := Manifest{Input: input, Duration: duration}
	for _, t := range trims {
		m.Trims = append(m.Trims, ManifestTrim{
			ID:    t.ID,
			Name:  t.Name,
			Start: t.StartTime,
			End:   t.EndTime,
		})
	}
	for _, mk := range markers {
		m.Markers = append(m.Markers, ManifestMarker{
			ID:   mk.ID,
			Name: mk.Name,
			Time: mk.Time,
		})
	}
	return m
}

// WriteCutManifest serializes the manifest as YAML at path.
func WriteCutManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("cannot marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write manifest: %w", err)
	}
	return nil
}
