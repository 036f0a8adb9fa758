package submission

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vibetunes/internal/domain"
	"vibetunes/internal/infra"
)

// Options configures a Controller.
type Options struct {
	Recommender    Recommender
	Camera         FrameSource
	DelayThreshold time.Duration
	Logger         *infra.Logger
	// Now is the clock used for elapsed time; defaults to time.Now.
	Now func() time.Time
}

// Observer receives every published state. It is called with the controller
// lock held and must not call back into the Controller.
type Observer func(State)

// Controller is the submission state machine. It owns the image selector, the
// delay notifier and the single current State; all transitions are serialized.
type Controller struct {
	mu          sync.Mutex
	recommender Recommender
	selector    *Selector
	notifier    *DelayNotifier
	threshold   time.Duration
	logger      *infra.Logger
	now         func() time.Time

	state     State
	startedAt time.Time
	// gen identifies the current attempt; completions from older attempts are dropped.
	gen           uint64
	cancelAttempt context.CancelFunc

	observers  map[int]Observer
	observerID int
}

// NewController returns a controller in Idle.
func NewController(opts Options) (*Controller, error) {
	if opts.Recommender == nil {
		return nil, errors.New("submission: recommender is required")
	}
	threshold := opts.DelayThreshold
	if threshold <= 0 {
		threshold = DefaultDelayThreshold
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Controller{
		recommender: opts.Recommender,
		selector:    NewSelector(opts.Camera),
		notifier:    NewDelayNotifier(),
		threshold:   threshold,
		logger:      logger,
		now:         now,
		state:       idleState(),
		observers:   make(map[int]Observer),
	}, nil
}

// Subscribe registers an observer and returns a function that removes it.
func (c *Controller) Subscribe(fn Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observerID++
	id := c.observerID
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// State returns the current state snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Selection describes the image selector without exposing its payload bytes.
type Selection struct {
	Mode     domain.ImageSource `json:"mode"`
	Source   domain.ImageSource `json:"source"`
	HasImage bool               `json:"has_image"`
}

// Selection returns the current acquisition mode and payload presence.
func (c *Controller) Selection() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selector.Payload()
	return Selection{Mode: c.selector.Mode(), Source: c.selector.Source(), HasImage: ok}
}

// Payload returns the current image, if any.
func (c *Controller) Payload() (domain.ImagePayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selector.Payload()
}

// SelectMode switches acquisition mode, dropping the payload and any result.
func (c *Controller) SelectMode(mode domain.ImageSource) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.selector.SelectMode(mode); err != nil {
		return c.snapshotLocked(), err
	}
	c.clearResultLocked()
	return c.snapshotLocked(), nil
}

// Capture replaces the payload with the current camera frame.
func (c *Controller) Capture() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.selector.Capture(); err != nil {
		return c.snapshotLocked(), err
	}
	c.clearResultLocked()
	return c.snapshotLocked(), nil
}

// Upload replaces the payload with an uploaded file.
func (c *Controller) Upload(filename, contentType string, data []byte) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.selector.Upload(filename, contentType, data); err != nil {
		return c.snapshotLocked(), err
	}
	c.clearResultLocked()
	return c.snapshotLocked(), nil
}

// Submit classifies the current payload and blocks until the attempt resolves,
// returning the resulting state. Canceling ctx abandons the request. While an
// attempt is already loading the call is a no-op returning the current state.
func (c *Controller) Submit(ctx context.Context) State {
	st, run := c.begin(ctx)
	if run == nil {
		return st
	}
	return run()
}

// Start is Submit without waiting: the precondition check and the Loading
// transition happen before it returns, the request resolves in the background
// and is not bound to ctx cancellation.
func (c *Controller) Start(ctx context.Context) State {
	st, run := c.begin(context.WithoutCancel(ctx))
	if run != nil {
		go run()
	}
	return st
}

// TryAgain discards the payload, any result and any pending attempt, and returns to Idle.
func (c *Controller) TryAgain() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonLocked()
	c.selector.Reset()
	c.transitionLocked(idleState())
	return c.snapshotLocked()
}

// Close abandons any pending attempt and drops all observers.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonLocked()
	c.observers = make(map[int]Observer)
}

func (c *Controller) begin(ctx context.Context) (State, func() State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status.Loading() {
		c.logger.Debug().Msg("submission: already loading, ignoring submit")
		return c.snapshotLocked(), nil
	}
	payload, ok := c.selector.Payload()
	if !ok {
		c.transitionLocked(failedState(domain.ErrNoImage))
		return c.snapshotLocked(), nil
	}

	c.gen++
	gen := c.gen
	attemptCtx, cancel := context.WithCancel(ctx)
	c.cancelAttempt = cancel
	c.startedAt = c.now()
	c.transitionLocked(State{Status: StatusLoading})
	c.notifier.Arm(c.threshold, func() { c.onDelay(gen) })

	return c.snapshotLocked(), func() State {
		rec, err := c.recommender.Recommend(attemptCtx, payload)
		cancel()
		return c.complete(gen, rec, err)
	}
}

func (c *Controller) onDelay(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state.Status != StatusLoading {
		return
	}
	c.logger.Info().Dur("threshold", c.threshold).Msg("submission: request is taking longer than usual")
	c.transitionLocked(State{Status: StatusLoadingWithDelayWarning, Advisory: DelayAdvisory})
}

func (c *Controller) complete(gen uint64, rec *domain.Recommendation, err error) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.state.Status.Loading() {
		c.logger.Debug().Uint64("attempt", gen).Msg("submission: dropping stale completion")
		return c.snapshotLocked()
	}
	c.notifier.Cancel()
	c.cancelAttempt = nil
	elapsed := c.now().Sub(c.startedAt)

	if err == nil && rec == nil {
		err = domain.ErrMalformedResponse
	}
	if err != nil {
		next := failedState(err)
		c.logger.Warn().
			Err(err).
			Str("category", string(next.Category)).
			Dur("elapsed", elapsed).
			Msg("submission: request failed")
		c.transitionLocked(next)
		return c.snapshotLocked()
	}
	c.logger.Info().
		Str("genre", rec.Genre).
		Int("videos", len(rec.Videos)).
		Dur("elapsed", elapsed).
		Msg("submission: recommendation received")
	c.transitionLocked(succeededState(rec))
	return c.snapshotLocked()
}

// clearResultLocked returns a finished workflow to Idle after the image changed.
// A pending attempt keeps loading with the payload it borrowed.
func (c *Controller) clearResultLocked() {
	switch c.state.Status {
	case StatusSucceeded, StatusFailed:
		c.transitionLocked(idleState())
	}
}

func (c *Controller) abandonLocked() {
	c.gen++
	c.notifier.Cancel()
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
}

func (c *Controller) transitionLocked(next State) {
	next.Version = c.state.Version + 1
	c.state = next
	c.logger.Debug().
		Uint64("version", next.Version).
		Str("status", string(next.Status)).
		Msg("submission: transition")
	snapshot := c.snapshotLocked()
	for _, fn := range c.observers {
		fn(snapshot.clone())
	}
}

func (c *Controller) snapshotLocked() State {
	s := c.state.clone()
	if s.Status.Loading() {
		s.Elapsed = c.now().Sub(c.startedAt)
		s.ElapsedMS = s.Elapsed.Milliseconds()
	}
	return s
}
