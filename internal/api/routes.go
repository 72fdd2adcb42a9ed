package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/minicut/minicut-agent/internal/convert"
	"github.com/minicut/minicut-agent/internal/export"
	"github.com/minicut/minicut-agent/internal/ffmpeg"
	"github.com/minicut/minicut-agent/internal/interact"
	"github.com/minicut/minicut-agent/internal/session"
)

// SettingsStore holds the per-format default target sizes.
type SettingsStore interface {
	GetTargetMB(ctx context.Context, formatID string) (float64, bool, error)
	SetTargetMB(ctx context.Context, formatID string, mb float64) error
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORSAllowlist())
	r.Use(LoopbackGuard())
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Config, cfg.Logger))

		r.Post("/session/open", openHandler(cfg))
		r.Get("/session/state", stateHandler(cfg))
		r.Post("/session/mode", modeHandler(cfg))
		r.Post("/session/snap", snapHandler(cfg))
		r.Post("/session/width", widthHandler(cfg))
		r.Post("/session/pointer", pointerHandler(cfg))
		r.Post("/session/trims/{id}/drag", trimDragHandler(cfg))
		r.Post("/session/loop/drag", loopDragHandler(cfg))
		r.Delete("/session/loop", clearLoopHandler(cfg))

		r.Post("/playback/toggle", toggleHandler(cfg))
		r.Post("/playback/seek", seekHandler(cfg))
		r.Post("/playback/step", stepHandler(cfg))
		r.Post("/playback/start", goToStartHandler(cfg))
		r.Get("/playback/file", playbackFileHandler(cfg))
		r.Head("/playback/file", playbackFileHandler(cfg))

		r.Get("/frames", frameHandler(cfg))
		r.Get("/frames/filmstrip", filmstripHandler(cfg))
		r.Post("/frames/prefetch", prefetchHandler(cfg))

		r.Post("/trims", createTrimHandler(cfg))
		r.Patch("/trims/{id}", updateTrimHandler(cfg))
		r.Delete("/trims/{id}", deleteTrimHandler(cfg))
		r.Delete("/trims", clearTrimsHandler(cfg))
		r.Post("/trims/detect", detectHandler(cfg))

		r.Post("/markers", addMarkerHandler(cfg))
		r.Post("/markers/pair", markerPairHandler(cfg))
		r.Patch("/markers/{id}", updateMarkerHandler(cfg))
		r.Delete("/markers/{id}", deleteMarkerHandler(cfg))
		r.Delete("/markers", clearMarkersHandler(cfg))

		r.Post("/convert", convertHandler(cfg))
		r.Get("/convert/jobs", listJobsHandler(cfg))
		r.Get("/convert/jobs/{id}", getJobHandler(cfg))
		r.Post("/convert/pause", pauseHandler(cfg))

		r.Get("/settings/{format}", getSettingsHandler(cfg))
		r.Put("/settings/{format}", putSettingsHandler(cfg))

		r.Post("/export/edl", exportEDLHandler(cfg))
		r.Post("/export/manifest", exportManifestHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: formatUptime(cfg.StartTime),
		})
	}
}

// writeSessionError maps session failures onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNoFile) {
		WriteError(w, http.StatusConflict, "no file open", "NO_FILE")
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func openHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		result, err := cfg.Session.Open(r.Context(), req.Path)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func stateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := cfg.Session.State()
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, state)
	}
}

func modeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ModeRequest
		if !decode(w, r, &req) {
			return
		}
		mode := interact.Mode(req.Mode)
		if !interact.ValidMode(mode) {
			WriteError(w, http.StatusBadRequest, "unknown mode", "BAD_REQUEST")
			return
		}
		if err := cfg.Session.SetMode(mode); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func snapHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SnapRequest
		if !decode(w, r, &req) {
			return
		}
		if err := cfg.Session.SetSnap(req.Enabled); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func widthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WidthRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Px <= 0 {
			WriteError(w, http.StatusBadRequest, "px must be positive", "BAD_REQUEST")
			return
		}
		if err := cfg.Session.SetStripWidth(req.Px); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func pointerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PointerRequest
		if !decode(w, r, &req) {
			return
		}

		var err error
		switch req.Type {
		case "down":
			err = cfg.Session.PointerDown(req.X)
		case "move":
			err = cfg.Session.PointerMove(req.X)
		case "up":
			err = cfg.Session.PointerUp(req.X)
		case "hover":
			err = cfg.Session.Hover(req.X)
		default:
			WriteError(w, http.StatusBadRequest, "unknown pointer event type", "BAD_REQUEST")
			return
		}
		if err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func trimDragHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid trim id", "BAD_REQUEST")
			return
		}
		var req TrimDragRequest
		if !decode(w, r, &req) {
			return
		}

		var kind interact.DragKind
		switch req.Kind {
		case "move":
			kind = interact.DragMoveTrim
		case "start":
			kind = interact.DragTrimStart
		case "end":
			kind = interact.DragTrimEnd
		default:
			WriteError(w, http.StatusBadRequest, "unknown drag kind", "BAD_REQUEST")
			return
		}
		if err := cfg.Session.BeginTrimDrag(id, kind, req.X); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func loopDragHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoopDragRequest
		if !decode(w, r, &req) {
			return
		}

		var kind interact.DragKind
		switch req.Kind {
		case "start":
			kind = interact.DragLoopStart
		case "end":
			kind = interact.DragLoopEnd
		default:
			WriteError(w, http.StatusBadRequest, "unknown drag kind", "BAD_REQUEST")
			return
		}
		if err := cfg.Session.BeginLoopDrag(kind, req.X); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func clearLoopHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.ClearLoop(); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func toggleHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playing, err := cfg.Session.TogglePlay()
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, PlayStateResponse{Playing: playing})
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if !decode(w, r, &req) {
			return
		}
		if err := cfg.Session.SeekTo(req.T); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func stepHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StepRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Direction != 1 && req.Direction != -1 {
			WriteError(w, http.StatusBadRequest, "direction must be 1 or -1", "BAD_REQUEST")
			return
		}
		if err := cfg.Session.StepFrame(req.Direction); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func goToStartHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.GoToStart(); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func playbackFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := cfg.Session.Path()
		if path == "" {
			WriteError(w, http.StatusConflict, "no file open", "NO_FILE")
			return
		}
		if err := cfg.Playback.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("playback error", "error", err)
		}
	}
}

func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "t is required", "BAD_REQUEST")
			return
		}

		frame, err := cfg.Session.Frame(t)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if frame == nil {
			// Extraction queued; the client polls again.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		w.Write(frame)
	}
}

func filmstripHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := 20
		if raw := r.URL.Query().Get("count"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 200 {
				WriteError(w, http.StatusBadRequest, "count must be 1-200", "BAD_REQUEST")
				return
			}
			count = n
		}

		frames, err := cfg.Session.Filmstrip(r.Context(), count)
		if err != nil {
			if errors.Is(err, session.ErrNoFile) {
				writeSessionError(w, err)
				return
			}
			WriteError(w, http.StatusBadGateway, err.Error(), "EXTRACTION_FAILED")
			return
		}

		resp := FilmstripResponse{Frames: make([]string, len(frames))}
		for i, frame := range frames {
			if frame == nil {
				continue
			}
			resp.Frames[i] = base64.StdEncoding.EncodeToString(frame)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func prefetchHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PrefetchRequest
		if !decode(w, r, &req) {
			return
		}
		if err := cfg.Session.Prefetch(req.T, req.Forward, req.Backward); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func createTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTrimRequest
		if !decode(w, r, &req) {
			return
		}

		switch {
		case req.At != nil && req.Length != nil:
			trim, err := cfg.Session.CreateTrimPreset(*req.At, *req.Length)
			if err != nil {
				writeSessionError(w, err)
				return
			}
			if trim == nil {
				WriteError(w, http.StatusUnprocessableEntity, "span below minimum", "INVALID_SPAN")
				return
			}
			WriteJSON(w, http.StatusCreated, trim)
		case req.At != nil:
			trim, err := cfg.Session.AddTrimAt(*req.At)
			if err != nil {
				writeSessionError(w, err)
				return
			}
			if trim == nil {
				WriteError(w, http.StatusUnprocessableEntity, "span below minimum", "INVALID_SPAN")
				return
			}
			WriteJSON(w, http.StatusCreated, trim)
		case req.Start != nil && req.End != nil:
			trim, err := cfg.Session.CreateTrim(*req.Start, *req.End)
			if err != nil {
				writeSessionError(w, err)
				return
			}
			if trim == nil {
				WriteError(w, http.StatusUnprocessableEntity, "span below minimum", "INVALID_SPAN")
				return
			}
			WriteJSON(w, http.StatusCreated, trim)
		default:
			WriteError(w, http.StatusBadRequest, "at or start/end required", "BAD_REQUEST")
		}
	}
}

func updateTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid trim id", "BAD_REQUEST")
			return
		}
		var req UpdateTrimRequest
		if !decode(w, r, &req) {
			return
		}

		if req.Start != nil && req.End != nil {
			ok, err := cfg.Session.UpdateTrim(id, *req.Start, *req.End)
			if err != nil {
				writeSessionError(w, err)
				return
			}
			if !ok {
				WriteError(w, http.StatusUnprocessableEntity, "update rejected", "INVALID_SPAN")
				return
			}
		}
		if req.Name != nil {
			ok, err := cfg.Session.RenameTrim(id, *req.Name)
			if err != nil {
				writeSessionError(w, err)
				return
			}
			if !ok {
				WriteError(w, http.StatusNotFound, "trim not found", "NOT_FOUND")
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid trim id", "BAD_REQUEST")
			return
		}
		ok, err := cfg.Session.DeleteTrim(id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if !ok {
			WriteError(w, http.StatusNotFound, "trim not found", "NOT_FOUND")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func clearTrimsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.ClearTrims(); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func detectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DetectRequest
		if !decode(w, r, &req) {
			return
		}
		trims, err := cfg.Session.DetectScenes(r.Context(), req.Threshold)
		if err != nil {
			if errors.Is(err, session.ErrNoFile) {
				writeSessionError(w, err)
				return
			}
			WriteError(w, http.StatusBadGateway, err.Error(), "DETECTION_FAILED")
			return
		}
		WriteJSON(w, http.StatusOK, DetectResponse{Trims: trims})
	}
}

func addMarkerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddMarkerRequest
		if !decode(w, r, &req) {
			return
		}
		marker, err := cfg.Session.AddMarker(req.T, req.Name)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if marker == nil {
			// A near-duplicate is silently absorbed.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		WriteJSON(w, http.StatusCreated, marker)
	}
}

func markerPairHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		markers, err := cfg.Session.AddMarkerPair()
		if err != nil {
			if errors.Is(err, session.ErrNoFile) {
				writeSessionError(w, err)
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusCreated, markers)
	}
}

func updateMarkerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid marker id", "BAD_REQUEST")
			return
		}
		var req UpdateMarkerRequest
		if !decode(w, r, &req) {
			return
		}
		ok, err := cfg.Session.RenameMarker(id, req.Name)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if !ok {
			WriteError(w, http.StatusNotFound, "marker not found", "NOT_FOUND")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteMarkerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid marker id", "BAD_REQUEST")
			return
		}
		ok, err := cfg.Session.DeleteMarker(id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if !ok {
			WriteError(w, http.StatusNotFound, "marker not found", "NOT_FOUND")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func clearMarkersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.ClearMarkers(); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func convertHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConvertRequest
		if !decode(w, r, &req) {
			return
		}
		if len(req.Files) == 0 {
			WriteError(w, http.StatusBadRequest, "files is required", "BAD_REQUEST")
			return
		}

		resp := ConvertResponse{}
		for _, f := range req.Files {
			if f.Input == "" {
				WriteError(w, http.StatusBadRequest, "input is required", "BAD_REQUEST")
				return
			}
			chapters := make([]ffmpeg.Chapter, 0, len(f.Chapters))
			for _, ch := range f.Chapters {
				chapters = append(chapters, ffmpeg.Chapter{Title: ch.Title, Start: ch.Start, End: ch.End})
			}
			job, err := cfg.Convert.Enqueue(r.Context(), convert.Request{
				Input:        f.Input,
				Format:       ffmpeg.Format(f.Format),
				TargetBytes:  int64(f.TargetMB * 1024 * 1024),
				OutputName:   f.OutputName,
				TrimStart:    f.TrimStart,
				TrimDuration: f.TrimDuration,
				Chapters:     chapters,
			})
			if err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			resp.Jobs = append(resp.Jobs, job)
		}
		WriteJSON(w, http.StatusAccepted, resp)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, JobsResponse{Jobs: cfg.Convert.Jobs()})
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := cfg.Convert.Job(chi.URLParam(r, "id"))
		if !ok {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func pauseHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PauseRequest
		if !decode(w, r, &req) {
			return
		}
		cfg.Convert.SetPaused(req.Paused)
		w.WriteHeader(http.StatusNoContent)
	}
}

func getSettingsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := chi.URLParam(r, "format")
		mb, ok, err := cfg.Settings.GetTargetMB(r.Context(), format)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if !ok {
			WriteError(w, http.StatusNotFound, "no setting for format", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, SettingsResponse{Format: format, TargetMB: mb})
	}
}

func putSettingsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := chi.URLParam(r, "format")
		var req SettingsRequest
		if !decode(w, r, &req) {
			return
		}
		if err := cfg.Settings.SetTargetMB(r.Context(), format, req.TargetMB); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusOK, SettingsResponse{Format: format, TargetMB: req.TargetMB})
	}
}

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.EDLRequest
		if !decode(w, r, &req) {
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		state, err := cfg.Session.State()
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if len(state.Trims) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "no trims to export", "EMPTY_TIMELINE")
			return
		}

		title := req.Title
		if title == "" {
			title = filepath.Base(state.Path)
		}
		edl := export.GenerateEDL(state.Trims, state.Markers, state.Path, title, req.FrameRate)

		name := export.SanitizeName(title, 60)
		if name == "" {
			name = "export"
		}
		outPath := filepath.Join(req.OutputDir, name+".edl")
		if err := writeFile(outPath, []byte(edl)); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, export.Response{
			Status:     "ok",
			OutputPath: outPath,
			TrimCount:  len(state.Trims),
		})
	}
}

func exportManifestHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.ManifestRequest
		if !decode(w, r, &req) {
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		state, err := cfg.Session.State()
		if err != nil {
			writeSessionError(w, err)
			return
		}

		manifest := export.BuildManifest(state.Path, state.Duration, state.Trims, state.Markers)
		stem := export.SanitizeName(filepath.Base(state.Path), 60)
		if stem == "" {
			stem = "export"
		}
		outPath := filepath.Join(req.OutputDir, stem+".cuts.yaml")
		if err := export.WriteCutManifest(outPath, manifest); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, export.Response{
			Status:     "ok",
			OutputPath: outPath,
			TrimCount:  len(manifest.Trims),
		})
	}
}
