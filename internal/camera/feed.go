// Package camera holds the most recent still frame pushed by a live camera.
package camera

import (
	"sync"
	"time"

	"vibetunes/internal/domain"
)

// DefaultMaxAge is how long a frame stays usable without a newer one arriving.
const DefaultMaxAge = 5 * time.Second

// Frame is one encoded still image (typically JPEG). Data must not be modified
// after Publish.
type Frame struct {
	Data     []byte
	Received time.Time
	Seq      uint64
}

// Stats are cumulative feed counters.
type Stats struct {
	Published   uint64 `json:"published"`
	Overwritten uint64 `json:"overwritten"`
}

// Feed is a single-slot mailbox: a new frame always replaces the previous one.
type Feed struct {
	mu      sync.Mutex
	frame   *Frame
	seq     uint64
	stats   Stats
	stopped bool
	maxAge  time.Duration
	now     func() time.Time
}

// NewFeed returns a running, empty feed. maxAge <= 0 selects DefaultMaxAge.
func NewFeed(maxAge time.Duration) *Feed {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Feed{maxAge: maxAge, now: time.Now}
}

// Publish stores data as the latest frame. Frames published while stopped are ignored.
func (f *Feed) Publish(data []byte) {
	if len(data) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	if f.frame != nil {
		f.stats.Overwritten++
	}
	f.seq++
	f.stats.Published++
	f.frame = &Frame{Data: data, Received: f.now(), Seq: f.seq}
}

// Latest returns the current frame, or ErrNoFrameAvailable when the feed is
// stopped, empty, or its frame is older than the max age.
func (f *Feed) Latest() (Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped || f.frame == nil {
		return Frame{}, domain.ErrNoFrameAvailable
	}
	if f.now().Sub(f.frame.Received) > f.maxAge {
		return Frame{}, domain.ErrNoFrameAvailable
	}
	return *f.frame, nil
}

// Snapshot returns a private copy of the latest frame bytes.
func (f *Feed) Snapshot() ([]byte, error) {
	frame, err := f.Latest()
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(frame.Data))
	copy(data, frame.Data)
	return data, nil
}

// Start resumes accepting frames.
func (f *Feed) Start() {
	f.mu.Lock()
	f.stopped = false
	f.mu.Unlock()
}

// Stop drops the current frame and ignores frames until Start.
func (f *Feed) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.frame = nil
	f.mu.Unlock()
}

// Stats returns the feed counters.
func (f *Feed) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}
