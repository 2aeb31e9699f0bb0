package gallery

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"photogallery/internal/logging"
)

// Sessions holds one Controller per upload session. Sessions idle for longer than the
// TTL are evicted and torn down.
type Sessions struct {
	deps  Deps
	cache *cache.Cache
	mu    sync.Mutex
}

// NewSessions creates a registry whose sessions expire after ttl without use.
func NewSessions(deps Deps, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	c := cache.New(ttl, ttl/2)
	c.OnEvicted(func(id string, v interface{}) {
		if ctrl, ok := v.(*Controller); ok {
			ctrl.Teardown()
		}
		logging.Log.Debugf("Upload session %s expired", id)
	})
	return &Sessions{deps: deps, cache: c}
}

// Get returns the controller for id and refreshes its expiry.
func (s *Sessions) Get(id string) (*Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Sessions) getLocked(id string) (*Controller, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	ctrl := v.(*Controller)
	s.cache.SetDefault(id, ctrl)
	return ctrl, true
}

// GetOrCreate returns the controller for id, creating a new session (with a fresh id)
// when id is unknown. created reports whether a new session was made.
func (s *Sessions) GetOrCreate(id string) (ctrl *Controller, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctrl, ok := s.getLocked(id); ok {
		return ctrl, false
	}
	ctrl = NewController(uuid.NewString(), s.deps)
	s.cache.SetDefault(ctrl.ID(), ctrl)
	return ctrl, true
}

// Remove ends a session immediately.
func (s *Sessions) Remove(id string) {
	s.cache.Delete(id)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	return s.cache.ItemCount()
}

// Close tears down every session.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.cache.Items() {
		if ctrl, ok := item.Object.(*Controller); ok {
			ctrl.Teardown()
		}
		s.cache.Delete(id)
	}
}
