// Package session ties one open file to its edit model, persistence, frame
// cache, playback clock and interaction controller. All entry points
// serialize on the session mutex; the components below it stay simple.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/minicut/minicut-agent/internal/ffmpeg"
	"github.com/minicut/minicut-agent/internal/framecache"
	"github.com/minicut/minicut-agent/internal/interact"
	"github.com/minicut/minicut-agent/internal/logging"
	"github.com/minicut/minicut-agent/internal/playback"
	"github.com/minicut/minicut-agent/internal/timeline"
)

const defaultStripWidthPx = 1000

// Persistence is the slice of the store the session uses.
type Persistence interface {
	Load(ctx context.Context, path string) (timeline.Snapshot, error)
	Save(ctx context.Context, path string, snap timeline.Snapshot) error
}

// OpenResult reports what a file open found and restored.
type OpenResult struct {
	Path            string             `json:"path"`
	Info            ffmpeg.ProbeResult `json:"info"`
	RestoredTrims   int                `json:"restoredTrims"`
	RestoredMarkers int                `json:"restoredMarkers"`
}

// State is the full editing state snapshot served to the frontend.
type State struct {
	Path           string             `json:"path"`
	Duration       float64            `json:"duration"`
	Trims          []timeline.Trim    `json:"trims"`
	Markers        []timeline.Marker  `json:"markers"`
	Loop           *timeline.LoopZone `json:"loop,omitempty"`
	Excluded       []timeline.Region  `json:"excluded,omitempty"`
	Mode           interact.Mode      `json:"mode"`
	SnapEnabled    bool               `json:"snapEnabled"`
	PlayheadLocked bool               `json:"playheadLocked"`
	Playhead       float64            `json:"playhead"`
	Playing        bool               `json:"playing"`
}

type saveReq struct {
	path string
	snap timeline.Snapshot
}

// Session owns exactly one open file at a time.
type Session struct {
	backend ffmpeg.FFmpeg
	store   Persistence
	logger  *slog.Logger

	mu         sync.Mutex
	path       string
	loadedPath string // last path that finished loading; autosave guard
	info       ffmpeg.ProbeResult
	model      *timeline.Model
	media      *virtualMedia
	cache      *framecache.Cache
	clock      *playback.Clock
	ctrl       *interact.Controller

	saveMu  sync.Mutex
	saveCnd *sync.Cond
	pending *saveReq
	saving  bool
	closed  bool
	kick    chan struct{}
	done    chan struct{}
}

func New(backend ffmpeg.FFmpeg, store Persistence, logger *slog.Logger) *Session {
	s := &Session{
		backend: backend,
		store:   store,
		logger:  logger,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.saveCnd = sync.NewCond(&s.saveMu)
	go s.saveLoop()
	return s
}

func scheduleHoverRelease(fn func()) {
	time.AfterFunc(interact.HoverReleaseDelay, fn)
}

// frameExtractor binds the backend to the open file for the cache.
type frameExtractor struct {
	backend ffmpeg.FFmpeg
	path    string
}

func (e frameExtractor) ExtractFrame(ctx context.Context, timeSec float64) ([]byte, error) {
	return e.backend.ExtractFrame(ctx, e.path, timeSec)
}

// Open probes the file, rebuilds the editing stack around it and rehydrates
// any persisted edit data. A previously open file is torn down first.
func (s *Session) Open(ctx context.Context, path string) (OpenResult, error) {
	info, err := s.backend.Probe(ctx, path)
	if err != nil {
		return OpenResult{}, fmt.Errorf("cannot open %s: %w", logging.SanitizePath(path), err)
	}

	snap, err := s.store.Load(ctx, path)
	if err != nil {
		return OpenResult{}, fmt.Errorf("cannot load edit data for %s: %w", logging.SanitizePath(path), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()

	s.path = path
	s.info = *info
	s.model = timeline.NewModel(info.Duration)
	s.model.Restore(snap)

	s.media = newVirtualMedia(info.Duration)
	s.cache = framecache.New(frameExtractor{backend: s.backend, path: path}, s.logger)
	s.clock = playback.NewClock(s.media, s.logger)
	s.ctrl = interact.NewController(s.model, s.clock, s.cache, defaultStripWidthPx, s.logger)

	// A tick already in flight can outlive a teardown; the providers must
	// tolerate the stack being gone.
	s.clock.SetTrimProvider(func() []timeline.Trim {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.model == nil {
			return nil
		}
		return s.model.Trims()
	})
	s.clock.SetLoopZoneProvider(func() *timeline.LoopZone {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ctrl == nil {
			return nil
		}
		return s.ctrl.Loop()
	})
	// The cache serializes its own work; capture needs no session lock.
	cache := s.cache
	s.clock.SetCaptureFunc(func(t float64) { cache.Request(t) })

	// Hover release re-enters the controller; it must hold the session lock
	// like every other entry point.
	s.ctrl.SetReleaseScheduler(func(fn func()) {
		scheduleHoverRelease(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			fn()
		})
	})

	// Only mutations for the path that finished loading may persist.
	// A slow open racing a fast edit on the previous file must not
	// cross-save.
	s.loadedPath = path
	model := s.model
	model.OnChange(func() {
		s.enqueueSave(path, model.Snapshot())
	})

	result := OpenResult{
		Path:            path,
		Info:            *info,
		RestoredTrims:   len(snap.Trims),
		RestoredMarkers: len(snap.Markers),
	}
	s.logger.Info("file opened",
		"path", logging.SanitizePath(path),
		"duration", info.Duration,
		"restored_trims", result.RestoredTrims,
		"restored_markers", result.RestoredMarkers,
	)
	return result, nil
}

func (s *Session) teardownLocked() {
	if s.clock != nil {
		s.clock.Close()
		s.clock = nil
	}
	if s.cache != nil {
		s.cache.Close()
		s.cache = nil
	}
	s.ctrl = nil
	s.model = nil
	s.media = nil
	s.path = ""
}

// enqueueSave coalesces autosaves: only the latest snapshot per mutation
// burst reaches the store. Saves for any path other than the one that last
// finished loading are dropped.
func (s *Session) enqueueSave(path string, snap timeline.Snapshot) {
	s.saveMu.Lock()
	if s.closed {
		s.saveMu.Unlock()
		return
	}
	s.pending = &saveReq{path: path, snap: snap}
	s.saveMu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Session) saveLoop() {
	defer close(s.done)
	for range s.kick {
		for {
			s.saveMu.Lock()
			req := s.pending
			s.pending = nil
			if req == nil {
				s.saveMu.Unlock()
				break
			}
			s.saving = true
			s.saveMu.Unlock()

			s.mu.Lock()
			stale := req.path != s.loadedPath
			s.mu.Unlock()

			if !stale {
				if err := s.store.Save(context.Background(), req.path, req.snap); err != nil {
					s.logger.Error("autosave failed",
						"path", logging.SanitizePath(req.path),
						"error", err,
					)
				}
			}

			s.saveMu.Lock()
			s.saving = false
			s.saveCnd.Broadcast()
			s.saveMu.Unlock()
		}
	}
}

// Flush blocks until no autosave is pending or in flight.
func (s *Session) Flush() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	for s.pending != nil || s.saving {
		s.saveCnd.Wait()
	}
}

// Close tears down the open file and stops the autosave loop.
func (s *Session) Close() {
	s.Flush()

	s.mu.Lock()
	s.teardownLocked()
	s.loadedPath = ""
	s.mu.Unlock()

	s.saveMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.kick)
	}
	s.saveMu.Unlock()
	<-s.done
}

// ErrNoFile is returned by operations that need an open file.
var ErrNoFile = fmt.Errorf("no file open")

func (s *Session) requireOpenLocked() error {
	if s.model == nil {
		return ErrNoFile
	}
	return nil
}

// State snapshots everything the frontend renders.
func (s *Session) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return State{}, err
	}
	loop := s.ctrl.Loop()
	return State{
		Path:           s.path,
		Duration:       s.model.Duration(),
		Trims:          s.model.Trims(),
		Markers:        s.model.Markers(),
		Loop:           loop,
		Excluded:       s.model.ExcludedRegions(loop),
		Mode:           s.ctrl.Mode(),
		SnapEnabled:    s.ctrl.SnapEnabled(),
		PlayheadLocked: s.ctrl.PlayheadLocked(),
		Playhead:       s.clock.Current(),
		Playing:        s.clock.IsPlaying(),
	}, nil
}

func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *Session) Info() (ffmpeg.ProbeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return ffmpeg.ProbeResult{}, err
	}
	return s.info, nil
}

// --- interaction passthroughs ---

func (s *Session) SetMode(m interact.Mode) error {
	return s.withCtrl(func(c *interact.Controller) { c.SetMode(m) })
}

func (s *Session) SetSnap(enabled bool) error {
	return s.withCtrl(func(c *interact.Controller) { c.SetSnap(enabled) })
}

func (s *Session) SetStripWidth(px float64) error {
	return s.withCtrl(func(c *interact.Controller) { c.SetWidth(px) })
}

func (s *Session) PointerDown(x float64) error {
	return s.withCtrl(func(c *interact.Controller) { c.PointerDown(x) })
}

func (s *Session) PointerMove(x float64) error {
	return s.withCtrl(func(c *interact.Controller) { c.PointerMove(x) })
}

func (s *Session) PointerUp(x float64) error {
	return s.withCtrl(func(c *interact.Controller) { c.PointerUp(x) })
}

func (s *Session) Hover(x float64) error {
	return s.withCtrl(func(c *interact.Controller) { c.Hover(x) })
}

func (s *Session) BeginTrimDrag(id int, kind interact.DragKind, x float64) error {
	return s.withCtrl(func(c *interact.Controller) { c.BeginTrimDrag(id, kind, x) })
}

func (s *Session) BeginLoopDrag(kind interact.DragKind, x float64) error {
	return s.withCtrl(func(c *interact.Controller) { c.BeginLoopDrag(kind, x) })
}

func (s *Session) ClearLoop() error {
	return s.withCtrl(func(c *interact.Controller) { c.ClearLoop() })
}

func (s *Session) withCtrl(fn func(*interact.Controller)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return err
	}
	fn(s.ctrl)
	return nil
}

// --- playback passthroughs ---

func (s *Session) TogglePlay() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return false, err
	}
	return s.clock.TogglePlay(), nil
}

func (s *Session) SeekTo(t float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return err
	}
	s.clock.SeekTo(t)
	return nil
}

func (s *Session) StepFrame(direction int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return err
	}
	s.clock.StepFrame(direction)
	return nil
}

func (s *Session) GoToStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return err
	}
	s.clock.GoToStart()
	return nil
}

// --- frame cache passthroughs ---

// Frame returns the cached thumbnail for t, or nil when absent. A miss also
// queues extraction so a poll loop converges.
func (s *Session) Frame(t float64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return nil, err
	}
	frame := s.cache.Get(t)
	if frame == nil {
		s.cache.Request(t)
	}
	return frame, nil
}

func (s *Session) Prefetch(t float64, forward, backward int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return err
	}
	s.cache.Prefetch(t, forward, backward)
	return nil
}

// --- model passthroughs ---

// AddTrimAt creates a preset-span trim at t, or from the active loop zone's
// bounds when one is selected.
func (s *Session) AddTrimAt(t float64) (*timeline.Trim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return nil, err
	}
	if loop := s.ctrl.Loop(); loop != nil {
		return s.model.CreateTrim(loop.Start, loop.End), nil
	}
	return s.model.AddTrimAt(t), nil
}

func (s *Session) CreateTrimPreset(start, length float64) (*timeline.Trim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return nil, err
	}
	return s.model.CreateTrimPreset(start, length), nil
}

func (s *Session) CreateTrim(start, end float64) (*timeline.Trim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return nil, err
	}
	return s.model.CreateTrim(start, end), nil
}

func (s *Session) UpdateTrim(id int, start, end float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return false, err
	}
	return s.model.UpdateTrim(id, start, end), nil
}

func (s *Session) RenameTrim(id int, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return false, err
	}
	return s.model.RenameTrim(id, name), nil
}

func (s *Session) DeleteTrim(id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return false, err
	}
	return s.model.DeleteTrim(id), nil
}

func (s *Session) ClearTrims() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return err
	}
	s.model.ClearTrims()
	return nil
}

func (s *Session) AddMarker(t float64, name string) (*timeline.Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return nil, err
	}
	return s.model.AddMarker(t, name), nil
}

func (s *Session) AddMarkerPair() ([]timeline.Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return nil, err
	}
	loop := s.ctrl.Loop()
	if loop == nil {
		return nil, fmt.Errorf("no loop zone selected")
	}
	return s.model.AddMarkerPair(*loop), nil
}

func (s *Session) RenameMarker(id int, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return false, err
	}
	return s.model.RenameMarker(id, name), nil
}

func (s *Session) DeleteMarker(id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return false, err
	}
	return s.model.DeleteMarker(id), nil
}

func (s *Session) ClearMarkers() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireOpenLocked(); err != nil {
		return err
	}
	s.model.ClearMarkers()
	return nil
}

// DetectScenes runs scene detection on the open file and turns the cuts into
// trims. Detection failure adds nothing.
func (s *Session) DetectScenes(ctx context.Context, threshold float64) ([]timeline.Trim, error) {
	s.mu.Lock()
	if err := s.requireOpenLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	path := s.path
	s.mu.Unlock()

	cuts, err := s.backend.DetectScenes(ctx, path, threshold)
	if err != nil {
		s.logger.Warn("scene detection failed",
			"path", logging.SanitizePath(path),
			"error", err,
		)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != path || s.model == nil {
		return nil, fmt.Errorf("file changed during scene detection")
	}
	return s.model.AddTrimsFromCuts(cuts), nil
}

// Filmstrip renders the strip background thumbnails for the open file.
func (s *Session) Filmstrip(ctx context.Context, count int) ([][]byte, error) {
	s.mu.Lock()
	if err := s.requireOpenLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	path := s.path
	duration := s.info.Duration
	s.mu.Unlock()

	return s.backend.Filmstrip(ctx, path, duration, count)
}
