// Package convert runs target-size conversions through a serialized queue.
// Encodes are heavy; running them one at a time keeps the machine usable and
// makes progress reporting legible.
package convert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/minicut/minicut-agent/internal/ffmpeg"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAnalyzing  Status = "analyzing"
	StatusConverting Status = "converting"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Job tracks one conversion through the queue.
type Job struct {
	ID           string           `json:"id"`
	Input        string           `json:"input"`
	Format       ffmpeg.Format    `json:"format"`
	TargetBytes  int64            `json:"targetBytes"`
	OutputName   string           `json:"outputName,omitempty"`
	TrimStart    *float64         `json:"trimStart,omitempty"`
	TrimDuration *float64         `json:"trimDuration,omitempty"`
	Chapters     []ffmpeg.Chapter `json:"chapters,omitempty"`

	Status     Status  `json:"status"`
	Progress   float64 `json:"progress"`
	OutputPath string  `json:"outputPath,omitempty"`
	OutputSize int64   `json:"outputSize,omitempty"`
	Error      string  `json:"error,omitempty"`

	CreatedAt  time.Time `json:"createdAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

// ProgressEvent is published to subscribers on every job update.
type ProgressEvent struct {
	ID       string  `json:"id"`
	Progress float64 `json:"progress"`
	Status   Status  `json:"status"`
}

// Request describes a conversion to enqueue. A zero TargetBytes falls back
// to the per-format default from settings; an empty OutputName derives the
// output name from the input stem.
type Request struct {
	Input        string
	Format       ffmpeg.Format
	TargetBytes  int64
	OutputName   string
	TrimStart    *float64
	TrimDuration *float64
	Chapters     []ffmpeg.Chapter
}

// SettingsSource supplies per-format default target sizes.
type SettingsSource interface {
	GetTargetMB(ctx context.Context, formatID string) (float64, bool, error)
}

// Service owns the queue. Encodes run strictly one at a time; a failed job
// records its error and never blocks the jobs behind it.
type Service struct {
	backend  ffmpeg.FFmpeg
	settings SettingsSource
	logger   *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	paused  bool
	closed  bool
	jobs    map[string]*Job
	order   []string
	pending []string
	running bool
	subs    map[int]chan ProgressEvent
	nextID  int

	// Encodes outlive the requests that enqueue them, so the worker runs on
	// the service's own context rather than any caller's.
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
}

func NewService(backend ffmpeg.FFmpeg, settings SettingsSource, logger *slog.Logger) *Service {
	s := &Service{
		backend:  backend,
		settings: settings,
		logger:   logger,
		jobs:     make(map[string]*Job),
		subs:     make(map[int]chan ProgressEvent),
	}
	s.cond = sync.NewCond(&s.mu)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.group.SetLimit(1)
	return s
}

// Enqueue registers the job and schedules it. The returned snapshot is
// immediately pollable by ID. ctx only scopes the settings lookup; the
// encode itself is not tied to the caller.
func (s *Service) Enqueue(ctx context.Context, req Request) (Job, error) {
	if !ffmpeg.ValidFormat(req.Format) {
		return Job{}, &InvalidFormatError{Format: string(req.Format)}
	}

	target := req.TargetBytes
	if target <= 0 {
		target = s.defaultTarget(ctx, req.Format)
	}

	job := &Job{
		ID:           uuid.NewString(),
		Input:        req.Input,
		Format:       req.Format,
		TargetBytes:  target,
		OutputName:   req.OutputName,
		TrimStart:    req.TrimStart,
		TrimDuration: req.TrimDuration,
		Chapters:     req.Chapters,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.pending = append(s.pending, job.ID)
	snapshot := *job
	start := !s.running && !s.closed
	if start {
		s.running = true
	}
	s.mu.Unlock()

	s.logger.Info("conversion enqueued",
		"job_id", job.ID,
		"format", job.Format,
		"target_bytes", job.TargetBytes,
	)

	if start {
		s.group.Go(func() error {
			s.worker()
			return nil
		})
	}
	s.cond.Broadcast()
	return snapshot, nil
}

// worker drains the pending queue in enqueue order, one encode at a time.
// It exits when the queue empties; the next Enqueue restarts it.
func (s *Service) worker() {
	for {
		s.mu.Lock()
		for s.paused && !s.closed {
			s.cond.Wait()
		}
		if s.closed || len(s.pending) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		id := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.run(s.ctx, id)
	}
}

func (s *Service) defaultTarget(ctx context.Context, format ffmpeg.Format) int64 {
	const fallbackMB = 10.0
	mb := fallbackMB
	if s.settings != nil {
		if v, ok, err := s.settings.GetTargetMB(ctx, string(format)); err == nil && ok {
			mb = v
		}
	}
	return int64(mb * 1024 * 1024)
}

func (s *Service) run(ctx context.Context, id string) {
	s.mu.Lock()
	job := s.jobs[id]
	s.mu.Unlock()

	req := ffmpeg.ConvertRequest{
		Input:        job.Input,
		TargetBytes:  job.TargetBytes,
		Format:       job.Format,
		OutputName:   job.OutputName,
		TrimStart:    job.TrimStart,
		TrimDuration: job.TrimDuration,
		Chapters:     job.Chapters,
	}

	result, err := s.backend.Convert(ctx, req, func(percent float64, status string) {
		s.update(id, func(j *Job) {
			j.Progress = percent
			j.Status = statusFromBackend(status)
		})
	})

	if err != nil {
		s.logger.Warn("conversion failed", "job_id", id, "error", err)
		s.update(id, func(j *Job) {
			j.Status = StatusError
			j.Error = err.Error()
			j.FinishedAt = time.Now()
		})
		return
	}

	s.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Progress = 100
		j.OutputPath = result.OutputPath
		j.OutputSize = result.OutputSize
		j.FinishedAt = time.Now()
	})
}

func statusFromBackend(status string) Status {
	switch status {
	case "analyzing":
		return StatusAnalyzing
	case "completed":
		return StatusCompleted
	default:
		return StatusConverting
	}
}

// update mutates a job under the lock and publishes the resulting event.
func (s *Service) update(id string, fn func(*Job)) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(job)
	event := ProgressEvent{ID: id, Progress: job.Progress, Status: job.Status}
	subs := make([]chan ProgressEvent, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default: // slow subscribers drop events rather than stall encodes
		}
	}
}

// Subscribe returns a progress event channel and its cancel func.
func (s *Service) Subscribe() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 64)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SetPaused gates the queue. In-flight encodes finish; pending jobs wait.
func (s *Service) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
	s.cond.Broadcast()
	s.logger.Info("conversion queue state changed", "paused", paused)
}

func (s *Service) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Jobs returns snapshots in enqueue order.
func (s *Service) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.jobs[id])
	}
	return out
}

func (s *Service) Job(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Close aborts the in-flight encode, releases paused workers and waits for
// the worker to exit.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.cond.Broadcast()
	s.group.Wait()
}

// InvalidFormatError rejects enqueue requests for unknown formats.
type InvalidFormatError struct {
	Format string
}

func (e *InvalidFormatError) Error() string {
	return "unknown conversion format " + e.Format
}
