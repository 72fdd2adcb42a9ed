package playback

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/minicut/minicut-agent/internal/timeline"
)

// FrameStep is the seek distance of a single frame step while paused.
const FrameStep = 1.0 / 30

// defaultTickInterval drives the per-display-frame loop check. The media
// backend's own coarse time-update signal is far too slow to catch short
// trim boundaries.
const defaultTickInterval = 33 * time.Millisecond

// MediaClock abstracts the media backend's transport so the clock works
// against any player implementation.
type MediaClock interface {
	Play()
	Pause()
	Seek(t float64)
	CurrentTime() float64
	Duration() float64
}

// Clock drives the published playhead during playback and enforces
// loop-region semantics. An active loop zone takes priority over trim loops.
type Clock struct {
	media  MediaClock
	logger *slog.Logger

	trims     func() []timeline.Trim
	loopZone  func() *timeline.LoopZone
	onCapture func(t float64)

	mu           sync.Mutex
	playing      bool
	current      float64
	lastCaptured int64
	stopTick     chan struct{}

	tickInterval time.Duration
}

func NewClock(media MediaClock, logger *slog.Logger) *Clock {
	return &Clock{
		media:        media,
		logger:       logger,
		trims:        func() []timeline.Trim { return nil },
		loopZone:     func() *timeline.LoopZone { return nil },
		lastCaptured: -1,
		tickInterval: defaultTickInterval,
	}
}

// SetTrimProvider wires the source of trims checked for loop resets.
func (c *Clock) SetTrimProvider(fn func() []timeline.Trim) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trims = fn
}

// SetLoopZoneProvider wires the transient loop-zone selection.
func (c *Clock) SetLoopZoneProvider(fn func() *timeline.LoopZone) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopZone = fn
}

// SetCaptureFunc wires the opportunistic frame-cache capture issued while
// playing, throttled to one request per quantized bucket.
func (c *Clock) SetCaptureFunc(fn func(t float64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCapture = fn
}

func (c *Clock) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *Clock) Current() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// TogglePlay flips between playing and paused and returns the new state.
// The tick loop only runs while playing.
func (c *Clock) TogglePlay() bool {
	c.mu.Lock()
	if c.playing {
		c.playing = false
		stop := c.stopTick
		c.stopTick = nil
		c.mu.Unlock()
		if stop != nil {
			close(stop)
		}
		c.media.Pause()
		return false
	}

	c.playing = true
	stop := make(chan struct{})
	c.stopTick = stop
	interval := c.tickInterval
	c.mu.Unlock()

	c.media.Play()
	go c.run(stop, interval)
	return true
}

func (c *Clock) run(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick re-reads the authoritative position, applies loop-region resets and
// republishes the current time. It runs once per display frame while
// playing; tests drive it directly.
func (c *Clock) Tick() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	prev := c.current
	trims := c.trims
	loopZone := c.loopZone
	capture := c.onCapture
	c.mu.Unlock()

	now := c.media.CurrentTime()

	if zone := loopZone(); zone != nil {
		if now >= zone.End {
			c.media.Seek(zone.Start)
			now = zone.Start
		}
	} else {
		// A trim only loops when the previous tick was inside it; a tick
		// already past the end from outside must not re-trigger the loop.
		for _, t := range trims() {
			if prev >= t.StartTime && prev < t.EndTime && now >= t.EndTime {
				c.media.Seek(t.StartTime)
				now = t.StartTime
				break
			}
		}
	}

	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.current = now

	bucket := int64(math.Round(now * 10))
	doCapture := capture != nil && bucket != c.lastCaptured
	if doCapture {
		c.lastCaptured = bucket
	}
	c.mu.Unlock()

	// Frames are free to harvest during normal playback.
	if doCapture {
		capture(now)
	}
}

// SeekTo moves the playhead, clamped to the file.
func (c *Clock) SeekTo(t float64) {
	dur := c.media.Duration()
	t = math.Min(math.Max(t, 0), dur)

	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
	c.media.Seek(t)
}

// StepFrame nudges the playhead by one frame in either direction.
// Only available while paused.
func (c *Clock) StepFrame(direction int) {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return
	}
	target := c.current + float64(direction)*FrameStep
	c.mu.Unlock()
	c.SeekTo(target)
}

// GoToStart rewinds to time zero.
func (c *Clock) GoToStart() {
	c.SeekTo(0)
}

// Close tears down the tick loop. The clock is unusable afterwards.
func (c *Clock) Close() {
	c.mu.Lock()
	stop := c.stopTick
	c.stopTick = nil
	c.playing = false
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}
