package session

import (
	"sort"
	"sync"
	"time"

	"github.com/sipeed/hybridmem/pkg/scratchpad"
)

// DefaultKey is used when a caller does not name a session.
const DefaultKey = "default"

// Session is one conversation's working memory.
type Session struct {
	Key     string
	Store   *scratchpad.Store
	Created time.Time

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

// LastUsed reports when the session was last handed out.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Factory builds the scratchpad for a new session.
type Factory func() *scratchpad.Store

// SessionManager maps session keys to scratchpad stores. Stores live for
// the process; nothing is written to disk.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	factory  Factory
	now      func() time.Time
}

func NewSessionManager(factory Factory) *SessionManager {
	if factory == nil {
		factory = func() *scratchpad.Store { return scratchpad.New() }
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		factory:  factory,
		now:      time.Now,
	}
}

func (sm *SessionManager) GetOrCreate(key string) *Session {
	if key == "" {
		key = DefaultKey
	}

	sm.mu.RLock()
	session, ok := sm.sessions[key]
	sm.mu.RUnlock()

	if !ok {
		sm.mu.Lock()
		// Double-check after acquiring write lock
		session, ok = sm.sessions[key]
		if !ok {
			now := sm.now()
			session = &Session{
				Key:      key,
				Store:    sm.factory(),
				Created:  now,
				lastUsed: now,
			}
			sm.sessions[key] = session
		}
		sm.mu.Unlock()
	}

	session.touch(sm.now())
	return session
}

// Store is shorthand for GetOrCreate(key).Store.
func (sm *SessionManager) Store(key string) *scratchpad.Store {
	return sm.GetOrCreate(key).Store
}

// Get returns an existing session without creating one.
func (sm *SessionManager) Get(key string) (*Session, bool) {
	if key == "" {
		key = DefaultKey
	}
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.sessions[key]
	return s, ok
}

func (sm *SessionManager) Remove(key string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[key]; !ok {
		return false
	}
	delete(sm.sessions, key)
	return true
}

// ListSessionKeys returns all session keys in sorted order.
func (sm *SessionManager) ListSessionKeys() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	keys := make([]string, 0, len(sm.sessions))
	for k := range sm.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (sm *SessionManager) snapshot() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// Sweep drops expired entries from every session and returns the total.
func (sm *SessionManager) Sweep() int {
	n := 0
	for _, s := range sm.snapshot() {
		n += s.Store.Sweep()
	}
	return n
}

// PruneIdle removes sessions that are empty and unused for longer than
// idle. It returns the removed keys.
func (sm *SessionManager) PruneIdle(idle time.Duration) []string {
	if idle <= 0 {
		return nil
	}
	cutoff := sm.now().Add(-idle)

	sm.mu.Lock()
	defer sm.mu.Unlock()

	var removed []string
	for key, s := range sm.sessions {
		if s.LastUsed().Before(cutoff) && s.Store.Len() == 0 {
			delete(sm.sessions, key)
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)
	return removed
}
