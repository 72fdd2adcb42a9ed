package export

// EDLRequest asks for a cut list of the open file's trims.
type EDLRequest struct {
	Title     string  `json:"title"`
	FrameRate float64 `json:"frameRate"`
	OutputDir string  `json:"outputDir"`
}

// ManifestRequest asks for a YAML cut manifest.
type ManifestRequest struct {
	OutputDir string `json:"outputDir"`
}

// Response reports where an export artifact landed.
type Response struct {
	Status     string `json:"status"`
	OutputPath string `json:"outputPath"`
	TrimCount  int    `json:"trimCount"`
}
