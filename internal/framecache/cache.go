// Package framecache maps quantized video timestamps to thumbnail payloads
// so scrubbing previews never wait on a live decode. Extraction runs through
// a single sequential worker: the external decoder is not safe to call
// concurrently.
package framecache

import (
	"context"
	"log/slog"
	"math"
	"sync"
)

const (
	// Capacity bounds the cache. Eviction is FIFO on insertion order;
	// re-reading an entry does not move it to the back.
	Capacity = 400

	// prefetchForwardRatio interleaves two forward buckets per backward one.
	prefetchForwardRatio = 2
)

// Bucket quantizes a timestamp to its 100ms cache key.
func Bucket(t float64) int64 {
	return int64(math.Round(t * 10))
}

// BucketTime is the timestamp a bucket key stands for.
func BucketTime(b int64) float64 {
	return float64(b) / 10
}

// Extractor produces a thumbnail payload for a timestamp.
type Extractor interface {
	ExtractFrame(ctx context.Context, timeSec float64) ([]byte, error)
}

type Cache struct {
	extractor Extractor
	logger    *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	entries  map[int64][]byte
	order    []int64
	failed   map[int64]bool
	inflight int64
	hasWork  bool
	queue    []int64
	queued   map[int64]bool
	gen      uint64
	closed   bool

	kick chan struct{}
	done chan struct{}
	ctx  context.Context
	stop context.CancelFunc
}

func New(extractor Extractor, logger *slog.Logger) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		extractor: extractor,
		logger:    logger,
		entries:   make(map[int64][]byte),
		failed:    make(map[int64]bool),
		queued:    make(map[int64]bool),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		ctx:       ctx,
		stop:      cancel,
	}
	c.cond = sync.NewCond(&c.mu)
	go c.worker()
	return c
}

// Get returns the cached thumbnail for the bucket containing t, or nil.
func (c *Cache) Get(t float64) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[Bucket(t)]
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Request ensures a thumbnail for t's bucket will exist. Buckets already
// cached, queued, in flight, or permanently failed are not re-requested.
func (c *Cache) Request(t float64) {
	c.mu.Lock()
	c.enqueueLocked(Bucket(t))
	c.mu.Unlock()
	c.wake()
}

// Prefetch wipes any still-pending queue entries, then schedules buckets
// around anchorTime, interleaved two ahead per one behind. A fresh scrub
// position always beats stale prefetch work.
func (c *Cache) Prefetch(anchorTime float64, forward, backward int) {
	anchor := Bucket(anchorTime)

	c.mu.Lock()
	for _, b := range c.queue {
		delete(c.queued, b)
	}
	c.queue = c.queue[:0]

	c.enqueueLocked(anchor)
	f, bk := 1, 1
	for f <= forward || bk <= backward {
		for i := 0; i < prefetchForwardRatio && f <= forward; i++ {
			c.enqueueLocked(anchor + int64(f))
			f++
		}
		if bk <= backward {
			c.enqueueLocked(anchor - int64(bk))
			bk++
		}
	}
	c.mu.Unlock()
	c.wake()
}

// Clear resets all state. Called on file switch; an extraction already in
// flight for the old file is ignored when it completes.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[int64][]byte)
	c.order = c.order[:0]
	c.failed = make(map[int64]bool)
	for _, b := range c.queue {
		delete(c.queued, b)
	}
	c.queue = c.queue[:0]
	c.gen++
	c.mu.Unlock()
}

// Close stops the worker. Outstanding requests are abandoned.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.stop()
	<-c.done
}

// Quiesce blocks until the queue is empty and nothing is in flight.
func (c *Cache) Quiesce() {
	c.mu.Lock()
	for len(c.queue) > 0 || c.hasWork {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

func (c *Cache) enqueueLocked(b int64) {
	if b < 0 {
		return
	}
	if _, ok := c.entries[b]; ok {
		return
	}
	if c.failed[b] || c.queued[b] || (c.hasWork && c.inflight == b) {
		return
	}
	c.queue = append(c.queue, b)
	c.queued[b] = true
}

func (c *Cache) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Cache) worker() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.kick:
		}
		c.drain()
	}
}

// drain processes queued buckets one at a time, strictly sequentially.
func (c *Cache) drain() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.cond.Broadcast()
			c.mu.Unlock()
			return
		}
		b := c.queue[0]
		c.queue = c.queue[1:]
		delete(c.queued, b)
		c.inflight = b
		c.hasWork = true
		gen := c.gen
		c.mu.Unlock()

		data, err := c.extractor.ExtractFrame(c.ctx, BucketTime(b))

		c.mu.Lock()
		c.hasWork = false
		if gen != c.gen {
			// File switched mid-extraction; the result belongs to the old
			// file and is dropped.
			c.cond.Broadcast()
			c.mu.Unlock()
			continue
		}
		if err != nil {
			c.failed[b] = true
			if c.logger != nil {
				c.logger.Warn("frame extraction failed", "bucket", b, "time", BucketTime(b), "error", err)
			}
			c.cond.Broadcast()
			c.mu.Unlock()
			continue
		}
		c.storeLocked(b, data)
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}

func (c *Cache) storeLocked(b int64, data []byte) {
	if _, exists := c.entries[b]; !exists {
		c.order = append(c.order, b)
	}
	c.entries[b] = data

	for len(c.entries) > Capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
