// Package session keeps one workflow controller per browser session and
// evicts sessions that have been idle too long.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ocrdesk/internal/logger"
	"ocrdesk/internal/workflow"
)

// ErrNotFound is returned for unknown or evicted session IDs.
var ErrNotFound = errors.New("session not found")

// Session is a workflow controller with its notice queue.
type Session struct {
	ID         string
	Controller *workflow.Controller
	Notices    *workflow.NoticeQueue
	Created    time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Factory builds the controller for a new session.
type Factory func(id string, notices workflow.Notifier) *workflow.Controller

// Registry is a concurrency-safe set of sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
	idle     time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewRegistry creates a registry evicting sessions idle for longer than idle.
func NewRegistry(factory Factory, idle time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
		idle:     idle,
		now:      time.Now,
		log:      logger.WithComponent("session"),
	}
}

// Create starts a new session.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	q := &workflow.NoticeQueue{}
	now := r.now()
	s := &Session{
		ID:         id,
		Controller: r.factory(id, q),
		Notices:    q,
		Created:    now,
		lastSeen:   now,
	}

	r.mu.Lock()
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.log.Debug().Str("session_id", id).Int("active", n).Msg("Session created")
	return s
}

// Get returns the session and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Delete resets and removes a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Controller.Reset()
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts idle sessions, resetting them so their previews are revoked.
// It returns the number evicted.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Controller.Reset()
	}
	if len(expired) > 0 {
		r.log.Info().Int("evicted", len(expired)).Msg("Evicted idle sessions")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close resets every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		s.Controller.Reset()
	}
}
