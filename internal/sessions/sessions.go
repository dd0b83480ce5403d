// package sessions binds opaque session identifiers to Spotify token material
package sessions

import (
	"sync"
	"time"
)

// Session binds a client-facing identifier to a Spotify access/refresh token pair and its expiry.
//
// The identifier is the only credential a browser client ever holds; the
// Spotify tokens never leave the server.
type Session struct {
	ID           string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token can no longer be attached to outbound calls.
//
// A session is usable iff now < ExpiresAt.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store is the process-wide keyed storage of session records.
//
// Implementations must be safe for concurrent use. The store itself never
// evicts; records are removed only through an explicit Delete (logout).
type Store interface {
	Get(id string) (Session, bool)  // Get retrieves a session by its identifier
	Put(id string, session Session) // Put stores a session, overwriting any existing record
	Has(id string) bool             // Has reports whether a session exists for the identifier
	Delete(id string) bool          // Delete removes a session and reports whether it existed
}

// MemoryStore is an in-memory [Store] backed by a mutex-guarded map.
//
// Records do not survive a process restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (s *MemoryStore) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *MemoryStore) Put(id string, session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = session
}

func (s *MemoryStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
