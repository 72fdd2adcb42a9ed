package playback

import (
	"sync"
	"testing"

	"github.com/minicut/minicut-agent/internal/timeline"
)

// fakeMedia is a hand-driven MediaClock.
type fakeMedia struct {
	mu       sync.Mutex
	time     float64
	duration float64
	playing  bool
	seeks    []float64
}

func (m *fakeMedia) Play()  { m.mu.Lock(); m.playing = true; m.mu.Unlock() }
func (m *fakeMedia) Pause() { m.mu.Lock(); m.playing = false; m.mu.Unlock() }
func (m *fakeMedia) Seek(t float64) {
	m.mu.Lock()
	m.time = t
	m.seeks = append(m.seeks, t)
	m.mu.Unlock()
}
func (m *fakeMedia) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.time
}
func (m *fakeMedia) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}
func (m *fakeMedia) set(t float64) { m.mu.Lock(); m.time = t; m.mu.Unlock() }

func newPausedClock(media *fakeMedia) *Clock {
	c := NewClock(media, nil)
	return c
}

// startPlaying flips the clock to playing and immediately tears down the
// background ticker so tests can drive Tick by hand.
func startPlaying(t *testing.T, c *Clock) {
	t.Helper()
	if !c.TogglePlay() {
		t.Fatal("TogglePlay() = false, want playing")
	}
	c.mu.Lock()
	stop := c.stopTick
	c.stopTick = nil
	c.mu.Unlock()
	close(stop)
}

func TestTrimLoop_ResetsToOwnStart(t *testing.T) {
	media := &fakeMedia{duration: 20}
	c := newPausedClock(media)
	trims := []timeline.Trim{
		{ID: 1, StartTime: 0, EndTime: 5},
		{ID: 2, StartTime: 10, EndTime: 15},
	}
	c.SetTrimProvider(func() []timeline.Trim { return trims })

	c.SeekTo(3)
	startPlaying(t, c)

	media.set(5.0)
	c.Tick()
	if got := c.Current(); got != 0 {
		t.Fatalf("position after crossing 5.0 = %v, want reset to 0 (not 10)", got)
	}

	// A coalesced tick landing at 5.1 from inside must also reset once.
	c.SeekTo(4.9)
	media.set(5.1)
	c.Tick()
	if got := c.Current(); got != 0 {
		t.Fatalf("position after 4.9->5.1 = %v, want 0", got)
	}
}

func TestTrimLoop_NoRetriggerFromOutside(t *testing.T) {
	media := &fakeMedia{duration: 20}
	c := newPausedClock(media)
	c.SetTrimProvider(func() []timeline.Trim {
		return []timeline.Trim{{ID: 1, StartTime: 0, EndTime: 5}}
	})

	// Previous position already past the segment: no loop.
	c.SeekTo(7)
	startPlaying(t, c)
	media.set(8)
	c.Tick()
	if got := c.Current(); got != 8 {
		t.Errorf("position = %v, want 8 (no reset from outside the segment)", got)
	}
}

func TestLoopZone_TakesPriorityOverTrims(t *testing.T) {
	media := &fakeMedia{duration: 30}
	c := newPausedClock(media)
	c.SetTrimProvider(func() []timeline.Trim {
		return []timeline.Trim{{ID: 1, StartTime: 0, EndTime: 5}}
	})
	zone := &timeline.LoopZone{Start: 10, End: 12}
	c.SetLoopZoneProvider(func() *timeline.LoopZone { return zone })

	c.SeekTo(11)
	startPlaying(t, c)
	media.set(12.05)
	c.Tick()
	if got := c.Current(); got != 10 {
		t.Errorf("position = %v, want loop zone start 10", got)
	}
}

func TestTick_NoOpWhilePaused(t *testing.T) {
	media := &fakeMedia{duration: 30}
	c := newPausedClock(media)
	c.SeekTo(2)
	media.set(9)
	c.Tick()
	if got := c.Current(); got != 2 {
		t.Errorf("paused Tick moved the playhead to %v", got)
	}
}

func TestStepFrame_OnlyWhilePaused(t *testing.T) {
	media := &fakeMedia{duration: 10}
	c := newPausedClock(media)

	c.SeekTo(1)
	c.StepFrame(1)
	if got := c.Current(); got != 1+FrameStep {
		t.Errorf("StepFrame(+1) = %v, want %v", got, 1+FrameStep)
	}
	c.StepFrame(-1)
	if got := c.Current(); got != 1 {
		t.Errorf("StepFrame(-1) = %v, want 1", got)
	}

	startPlaying(t, c)
	before := c.Current()
	c.StepFrame(1)
	if got := c.Current(); got != before {
		t.Error("StepFrame while playing must be ignored")
	}
}

func TestSeekTo_Clamps(t *testing.T) {
	media := &fakeMedia{duration: 10}
	c := newPausedClock(media)

	c.SeekTo(-3)
	if got := c.Current(); got != 0 {
		t.Errorf("SeekTo(-3) = %v, want 0", got)
	}
	c.SeekTo(99)
	if got := c.Current(); got != 10 {
		t.Errorf("SeekTo(99) = %v, want clamped 10", got)
	}
	c.GoToStart()
	if got := c.Current(); got != 0 {
		t.Errorf("GoToStart() = %v, want 0", got)
	}
}

func TestCapture_ThrottledPerBucket(t *testing.T) {
	media := &fakeMedia{duration: 10}
	c := newPausedClock(media)

	var captured []float64
	c.SetCaptureFunc(func(t float64) { captured = append(captured, t) })

	startPlaying(t, c)
	media.set(1.01)
	c.Tick()
	media.set(1.04) // same 100ms bucket
	c.Tick()
	media.set(1.17)
	c.Tick()

	if len(captured) != 2 {
		t.Errorf("captured %d times (%v), want 2 (one per bucket)", len(captured), captured)
	}
}

func TestTogglePlay_PausesMedia(t *testing.T) {
	media := &fakeMedia{duration: 10}
	c := newPausedClock(media)

	if !c.TogglePlay() {
		t.Fatal("first toggle should start playback")
	}
	if !media.playing {
		t.Error("media should be playing")
	}
	if c.TogglePlay() {
		t.Fatal("second toggle should pause")
	}
	if media.playing {
		t.Error("media should be paused")
	}
	c.Close()
}
