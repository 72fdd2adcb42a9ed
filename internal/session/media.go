package session

import (
	"sync"
	"time"
)

// virtualMedia is the agent-side transport: a wall-clock position model for
// the file being edited. The rendering frontend mirrors it; the agent stays
// authoritative so loop resets and frame stepping behave identically with or
// without a player attached.
type virtualMedia struct {
	mu       sync.Mutex
	duration float64
	base     float64
	playing  bool
	since    time.Time
}

func newVirtualMedia(duration float64) *virtualMedia {
	return &virtualMedia{duration: duration}
}

func (m *virtualMedia) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		return
	}
	m.playing = true
	m.since = time.Now()
}

func (m *virtualMedia) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.playing {
		return
	}
	m.base = m.positionLocked()
	m.playing = false
}

func (m *virtualMedia) Seek(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.base = t
	m.since = time.Now()
}

func (m *virtualMedia) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionLocked()
}

func (m *virtualMedia) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *virtualMedia) positionLocked() float64 {
	pos := m.base
	if m.playing {
		pos += time.Since(m.since).Seconds()
	}
	if pos > m.duration {
		pos = m.duration
	}
	return pos
}
