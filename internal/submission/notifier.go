package submission

import (
	"sync"
	"time"
)

// DefaultDelayThreshold is how long a request may run before the advisory is shown.
const DefaultDelayThreshold = 15 * time.Second

// DelayNotifier is a single-shot cancelable timer. At most one timer is armed at a time.
type DelayNotifier struct {
	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// NewDelayNotifier returns an unarmed notifier.
func NewDelayNotifier() *DelayNotifier {
	return &DelayNotifier{}
}

// Arm starts the timer, canceling any previously armed one. onFire runs at most once,
// on its own goroutine. Cancel or a later Arm suppresses it unless it already started.
func (n *DelayNotifier) Arm(threshold time.Duration, onFire func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	n.seq++
	seq := n.seq
	n.timer = time.AfterFunc(threshold, func() {
		n.mu.Lock()
		if n.seq != seq || n.timer == nil {
			n.mu.Unlock()
			return
		}
		n.timer = nil
		n.mu.Unlock()
		onFire()
	})
}

// Cancel disarms the timer. Safe to call when nothing is armed.
func (n *DelayNotifier) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	n.seq++
}

// Armed reports whether a timer is pending.
func (n *DelayNotifier) Armed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.timer != nil
}

func (n *DelayNotifier) stopLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
