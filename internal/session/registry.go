// Package session keeps one form controller per browser tab.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/lippe-assistant/internal/form"
)

// Factory builds the controller for a new tab session.
type Factory func(userID, sessionID string) *form.Controller

// Registry manages form controllers keyed by user and tab session.
type Registry struct {
	mu      sync.RWMutex
	active  map[string]map[string]*form.Controller
	factory Factory
	ttl     time.Duration
	logger  *slog.Logger
}

// NewRegistry creates a registry. Controllers idle longer than ttl are
// dropped by Sweep.
func NewRegistry(factory Factory, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		active:  make(map[string]map[string]*form.Controller),
		factory: factory,
		ttl:     ttl,
		logger:  logger,
	}
}

// Get returns the controller for a user/session, creating it on first use.
// The controller is touched while the registry lock is held, so a
// concurrent Sweep never drops a controller Get has just handed out.
func (r *Registry) Get(userID, sessionID string) *form.Controller {
	r.mu.RLock()
	c, ok := r.active[userID][sessionID]
	if ok {
		c.Touch()
	}
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[userID]; !exists {
		r.active[userID] = make(map[string]*form.Controller)
	}
	if c, exists := r.active[userID][sessionID]; exists {
		c.Touch()
		return c
	}

	c = r.factory(userID, sessionID)
	r.active[userID][sessionID] = c
	r.logger.Info("Form session registered", "user_id", userID, "session_id", sessionID)
	return c
}

// Lookup returns an existing controller without creating one.
func (r *Registry) Lookup(userID, sessionID string) (*form.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sessions, ok := r.active[userID]; ok {
		c, ok := sessions[sessionID]
		return c, ok
	}
	return nil, false
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, sessions := range r.active {
		n += len(sessions)
	}
	return n
}

// Sweep drops controllers idle since before now-ttl that have no exchange
// in flight, and returns how many were dropped.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for userID, sessions := range r.active {
		for sessionID, c := range sessions {
			if c.InFlight() || now.Sub(c.LastActivity()) < r.ttl {
				continue
			}
			delete(sessions, sessionID)
			removed++
			r.logger.Info("Form session expired", "user_id", userID, "session_id", sessionID)
		}
		if len(sessions) == 0 {
			delete(r.active, userID)
		}
	}
	return removed
}

// Close cancels every in-flight exchange and waits for them to settle.
func (r *Registry) Close() {
	r.mu.Lock()
	controllers := make([]*form.Controller, 0)
	for _, sessions := range r.active {
		for _, c := range sessions {
			controllers = append(controllers, c)
		}
	}
	r.active = make(map[string]map[string]*form.Controller)
	r.mu.Unlock()

	cancelled := 0
	for _, c := range controllers {
		cancelled += c.Cancel()
	}
	for _, c := range controllers {
		c.Wait()
	}
	r.logger.Info("Form sessions closed", "sessions", len(controllers), "cancelled", cancelled)
}
