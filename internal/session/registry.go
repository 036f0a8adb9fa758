package session

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vibetunes/internal/camera"
	"vibetunes/internal/domain"
	"vibetunes/internal/infra"
	"vibetunes/internal/submission"
)

// Publisher receives the serialized state events of each session.
type Publisher interface {
	Broadcast(topic string, payload []byte)
	CloseTopic(topic string)
}

// Event is the message published on every state transition.
type Event struct {
	SessionID string           `json:"session_id"`
	State     submission.State `json:"state"`
}

// Session is one browser tab's workflow: a controller fed by its own camera feed.
type Session struct {
	ID         string
	Controller *submission.Controller
	Camera     *camera.Feed
	CreatedAt  time.Time

	lastSeen atomic.Int64
}

// Touch marks the session as used now.
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns the last time the session was used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Options configures a Registry.
type Options struct {
	Recommender    submission.Recommender
	DelayThreshold time.Duration
	FrameMaxAge    time.Duration
	IdleTTL        time.Duration
	Publisher      Publisher
	Logger         *infra.Logger
}

// Registry keeps sessions in memory. Nothing outlives the process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	recommender submission.Recommender
	threshold   time.Duration
	frameMaxAge time.Duration
	idleTTL     time.Duration
	publisher   Publisher
	logger      *infra.Logger
	now         func() time.Time
}

// NewRegistry builds an empty registry.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		recommender: opts.Recommender,
		threshold:   opts.DelayThreshold,
		frameMaxAge: opts.FrameMaxAge,
		idleTTL:     ttl,
		publisher:   opts.Publisher,
		logger:      logger,
		now:         time.Now,
	}
}

// Create starts a new session in Idle.
func (r *Registry) Create() (*Session, error) {
	id := uuid.NewString()
	feed := camera.NewFeed(r.frameMaxAge)
	logger := r.logger.With().Str("session_id", id).Logger()
	ctrl, err := submission.NewController(submission.Options{
		Recommender:    r.recommender,
		Camera:         feed,
		DelayThreshold: r.threshold,
		Logger:         &logger,
	})
	if err != nil {
		return nil, err
	}
	s := &Session{ID: id, Controller: ctrl, Camera: feed, CreatedAt: r.now()}
	s.Touch(s.CreatedAt)
	if r.publisher != nil {
		ctrl.Subscribe(func(st submission.State) {
			payload, err := json.Marshal(Event{SessionID: id, State: st})
			if err != nil {
				logger.Error().Err(err).Msg("session: encode state event")
				return
			}
			r.publisher.Broadcast(id, payload)
		})
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	logger.Info().Msg("session: created")
	return s, nil
}

// Get returns a session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.Touch(r.now())
	return s, nil
}

// Delete abandons the session's pending attempt and forgets it.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	r.close(s)
	r.logger.Info().Str("session_id", id).Msg("session: deleted")
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the TTL, abandoning any attempt
// still in flight.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)
	var expired []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.LastSeen().After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		expired = append(expired, s)
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.close(s)
	}
	if len(expired) > 0 {
		r.logger.Info().Int("expired", len(expired)).Msg("session: swept idle sessions")
	}
	return len(expired)
}

// Run sweeps periodically until ctx is canceled, then closes every session.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		r.close(s)
	}
}

func (r *Registry) close(s *Session) {
	s.Controller.Close()
	s.Camera.Stop()
	if r.publisher != nil {
		r.publisher.CloseTopic(s.ID)
	}
}
