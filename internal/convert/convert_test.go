package convert

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minicut/minicut-agent/internal/ffmpeg"
)

type fakeBackend struct {
	*ffmpeg.Stub

	mu      sync.Mutex
	active  int
	maxSeen int
	failFor string
	delay   time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{Stub: ffmpeg.NewStub(discardLogger())}
}

func (f *fakeBackend) Convert(ctx context.Context, req ffmpeg.ConvertRequest, onProgress ffmpeg.ProgressFunc) (*ffmpeg.ConvertResult, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	fail := f.failFor != "" && req.Input == f.failFor
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if fail {
		if onProgress != nil {
			onProgress(0, "analyzing")
		}
		return nil, errors.New("ffmpeg exited: exit status 1: No such file or directory")
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.Stub.Convert(ctx, req, onProgress)
}

type fakeSettings struct {
	targets map[string]float64
}

func (f *fakeSettings) GetTargetMB(ctx context.Context, formatID string) (float64, bool, error) {
	v, ok := f.targets[formatID]
	return v, ok, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func waitForStatus(t *testing.T, s *Service, id string, want Status) Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := s.Job(id)
		if ok && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := s.Job(id)
	t.Fatalf("job %s status = %s, want %s", id, job.Status, want)
	return Job{}
}

func TestEnqueue_CompletesAndRecordsOutput(t *testing.T) {
	backend := newFakeBackend()
	backend.Converted = ffmpeg.ConvertResult{OutputPath: "/videos/clip_converted.mp4", OutputSize: 9_000_000}

	s := NewService(backend, nil, discardLogger())
	defer s.Close()

	events, cancel := s.Subscribe()
	defer cancel()

	job, err := s.Enqueue(context.Background(), Request{
		Input:       "/videos/clip.mp4",
		Format:      ffmpeg.FormatVideo,
		TargetBytes: 10_000_000,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.Status != StatusPending {
		t.Errorf("initial status = %s, want pending", job.Status)
	}

	done := waitForStatus(t, s, job.ID, StatusCompleted)
	if done.OutputPath != "/videos/clip_converted.mp4" || done.OutputSize != 9_000_000 {
		t.Errorf("output = %q/%d", done.OutputPath, done.OutputSize)
	}
	if done.Progress != 100 {
		t.Errorf("Progress = %v, want 100", done.Progress)
	}

	// The event stream carried the status transitions.
	seen := map[Status]bool{}
	for {
		select {
		case ev := <-events:
			seen[ev.Status] = true
			if ev.Status == StatusCompleted {
				for _, want := range []Status{StatusAnalyzing, StatusConverting, StatusCompleted} {
					if !seen[want] {
						t.Errorf("missing %s event", want)
					}
				}
				return
			}
		case <-time.After(time.Second):
			t.Fatal("no completed event received")
		}
	}
}

func TestEnqueue_SurvivesCallerContextCancel(t *testing.T) {
	backend := newFakeBackend()
	backend.delay = 100 * time.Millisecond

	s := NewService(backend, nil, discardLogger())
	defer s.Close()

	// An HTTP handler's context dies as soon as it responds; the encode must
	// keep running regardless.
	ctx, cancel := context.WithCancel(context.Background())
	job, err := s.Enqueue(ctx, Request{Input: "/videos/a.mp4", Format: ffmpeg.FormatVideo, TargetBytes: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	cancel()

	done := waitForStatus(t, s, job.ID, StatusCompleted)
	if done.Error != "" {
		t.Errorf("Error = %q, want none", done.Error)
	}
}

func TestEnqueue_HonorsOutputName(t *testing.T) {
	backend := newFakeBackend()
	s := NewService(backend, nil, discardLogger())
	defer s.Close()

	job, err := s.Enqueue(context.Background(), Request{
		Input:       "/videos/clip.mp4",
		Format:      ffmpeg.FormatVideo,
		TargetBytes: 1,
		OutputName:  "final cut",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := waitForStatus(t, s, job.ID, StatusCompleted)
	if done.OutputPath != "/videos/final cut.mp4" {
		t.Errorf("OutputPath = %q, want the requested name next to the input", done.OutputPath)
	}
}

func TestFailedJob_RecordsErrorAndDoesNotBlockQueue(t *testing.T) {
	backend := newFakeBackend()
	backend.failFor = "/videos/broken.mp4"

	s := NewService(backend, nil, discardLogger())
	defer s.Close()

	bad, _ := s.Enqueue(context.Background(), Request{Input: "/videos/broken.mp4", Format: ffmpeg.FormatVideo, TargetBytes: 1})
	good, _ := s.Enqueue(context.Background(), Request{Input: "/videos/fine.mp4", Format: ffmpeg.FormatVideo, TargetBytes: 1})

	failed := waitForStatus(t, s, bad.ID, StatusError)
	if !strings.Contains(failed.Error, "No such file") {
		t.Errorf("Error = %q, want the raw backend error text", failed.Error)
	}
	waitForStatus(t, s, good.ID, StatusCompleted)
}

func TestEncodes_RunOneAtATime(t *testing.T) {
	backend := newFakeBackend()
	s := NewService(backend, nil, discardLogger())
	defer s.Close()

	var last Job
	for i := 0; i < 8; i++ {
		last, _ = s.Enqueue(context.Background(), Request{Input: "/videos/a.mp4", Format: ffmpeg.FormatWebP, TargetBytes: 1})
	}
	waitForStatus(t, s, last.ID, StatusCompleted)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.maxSeen > 1 {
		t.Errorf("observed %d concurrent encodes, want at most 1", backend.maxSeen)
	}
}

func TestEnqueue_DefaultTargetFromSettings(t *testing.T) {
	backend := newFakeBackend()
	settings := &fakeSettings{targets: map[string]float64{"webp": 2.5}}
	s := NewService(backend, settings, discardLogger())
	defer s.Close()

	job, err := s.Enqueue(context.Background(), Request{Input: "/videos/a.mp4", Format: ffmpeg.FormatWebP})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if want := int64(2.5 * 1024 * 1024); job.TargetBytes != want {
		t.Errorf("TargetBytes = %d, want %d from settings", job.TargetBytes, want)
	}

	// No setting for video: the built-in fallback applies.
	job, _ = s.Enqueue(context.Background(), Request{Input: "/videos/a.mp4", Format: ffmpeg.FormatVideo})
	if want := int64(10 * 1024 * 1024); job.TargetBytes != want {
		t.Errorf("TargetBytes = %d, want fallback %d", job.TargetBytes, want)
	}
}

func TestPause_GatesPendingJobs(t *testing.T) {
	backend := newFakeBackend()
	s := NewService(backend, nil, discardLogger())
	defer s.Close()

	s.SetPaused(true)
	job, _ := s.Enqueue(context.Background(), Request{Input: "/videos/a.mp4", Format: ffmpeg.FormatVideo, TargetBytes: 1})

	time.Sleep(50 * time.Millisecond)
	if got, _ := s.Job(job.ID); got.Status != StatusPending {
		t.Fatalf("paused queue ran a job: status = %s", got.Status)
	}

	s.SetPaused(false)
	waitForStatus(t, s, job.ID, StatusCompleted)
}

func TestEnqueue_RejectsUnknownFormat(t *testing.T) {
	s := NewService(newFakeBackend(), nil, discardLogger())
	defer s.Close()

	if _, err := s.Enqueue(context.Background(), Request{Input: "/a.mp4", Format: "gif"}); err == nil {
		t.Error("expected an error for unknown format")
	}
}
