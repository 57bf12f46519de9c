// ABOUTME: Thread-safe registry of editor sessions, one holder per store
// ABOUTME: Sessions are advisory and expire after a TTL unless refreshed

package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/vitrine/internal/errs"
)

// DefaultTTL is how long a session lives without being refreshed.
const DefaultTTL = 30 * time.Minute

// Session is an actor's claim on editing one store's theme.
type Session struct {
	StoreID   string
	ActorID   string
	OpenedAt  time.Time
	ExpiresAt time.Time
}

// Registry tracks open editor sessions. It is created once at startup and
// passed by reference to the HTTP layer.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session // by store ID
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry. ttl <= 0 uses DefaultTTL.
func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.With("component", "session"),
	}
}

// live returns the unexpired session of a store. Caller holds mu.
func (r *Registry) live(storeID string) *Session {
	s, ok := r.sessions[storeID]
	if !ok {
		return nil
	}
	if !r.now().Before(s.ExpiresAt) {
		delete(r.sessions, storeID)
		return nil
	}
	return s
}

// Open claims the store for actorID. Reopening by the same actor refreshes the
// expiry. Returns errs.ErrConflict when another actor holds the store.
func (r *Registry) Open(storeID, actorID string) (Session, error) {
	if storeID == "" || actorID == "" {
		return Session{}, errs.New(errs.ErrValidation, "store and actor are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if s := r.live(storeID); s != nil {
		if s.ActorID != actorID {
			return Session{}, errs.New(errs.ErrConflict, "store %s is being edited by %s", storeID, s.ActorID)
		}
		s.ExpiresAt = now.Add(r.ttl)
		return *s, nil
	}

	s := &Session{StoreID: storeID, ActorID: actorID, OpenedAt: now, ExpiresAt: now.Add(r.ttl)}
	r.sessions[storeID] = s
	r.logger.Info("editor session opened", "store", storeID, "actor", actorID)
	return *s, nil
}

// Close releases the store if actorID holds it. Closing a session held by
// someone else fails with errs.ErrConflict; closing nothing is a no-op.
func (r *Registry) Close(storeID, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.live(storeID)
	if s == nil {
		return nil
	}
	if s.ActorID != actorID {
		return fmt.Errorf("closing session of %s: %w", s.ActorID, errs.ErrConflict)
	}
	delete(r.sessions, storeID)
	r.logger.Info("editor session closed", "store", storeID, "actor", actorID)
	return nil
}

// Holder returns the actor currently editing the store, if any.
func (r *Registry) Holder(storeID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.live(storeID); s != nil {
		return s.ActorID, true
	}
	return "", false
}

// Check reports whether actorID may write to the store. Writes are refused only
// when a different actor holds a live session; anonymous writes always pass.
func (r *Registry) Check(storeID, actorID string) error {
	if actorID == "" {
		return nil
	}
	holder, ok := r.Holder(storeID)
	if !ok || holder == actorID {
		return nil
	}
	return errs.New(errs.ErrConflict, "store %s is being edited by %s", storeID, holder)
}

// Clear drops every session. Called at shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.sessions)
	r.sessions = make(map[string]*Session)
	if n > 0 {
		r.logger.Info("cleared editor sessions", "count", n)
	}
}
