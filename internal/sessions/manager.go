package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nmoreira/spotiproxy/internal/shared"
	"golang.org/x/oauth2"
)

// Refresher exchanges a refresh token for a new access token.
//
// Implemented by services.SpotifyService.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Manager owns the session store and gates every API call behind a valid access token.
//
// It is the single authority over session records: handlers never touch the
// store directly. Per-session mutexes serialize the check-expiry, refresh,
// persist sequence, so two requests racing on one session cannot lose a
// refresh-token rotation and at most one of them performs the refresh.
type Manager struct {
	store     Store
	refresher Refresher
	logger    *log.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager over the given store and refresher.
func NewManager(store Store, refresher Refresher, logger *log.Logger) *Manager {
	return &Manager{
		store:     store,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Create mints a new session from a freshly exchanged token and stores it.
//
// Called exactly once per successful authorization-code exchange. The returned
// session identifier is the value handed back to the client.
func (m *Manager) Create(token *oauth2.Token) Session {
	session := Session{
		ID:           shared.GenerateID(),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	m.store.Put(session.ID, session)
	m.logger.Info("session created", "session", session.ID, "expires_at", session.ExpiresAt)
	return session
}

// Access resolves a session identifier to a currently valid access token,
// refreshing the stored record first when it has expired.
//
// Returns an error wrapping [shared.ErrUnauthenticated] when the identifier is
// absent or unknown, or when Spotify rejects the refresh. A rejected refresh
// leaves the stored record untouched so repeated calls fail the same way
// without side effects; the client must restart the authorization flow.
func (m *Manager) Access(ctx context.Context, id string) (string, error) {
	if id == "" || !m.store.Has(id) {
		return "", fmt.Errorf("%w: unknown session", shared.ErrUnauthenticated)
	}

	lock := m.lock(id)
	lock.Lock()
	defer lock.Unlock()

	session, ok := m.store.Get(id)
	if !ok {
		// Deleted between the Has check and acquiring the lock.
		return "", fmt.Errorf("%w: unknown session", shared.ErrUnauthenticated)
	}

	if !session.Expired(m.now()) {
		return session.AccessToken, nil
	}

	token, err := m.refresher.Refresh(ctx, session.RefreshToken)
	if err != nil {
		m.logger.Warn("token refresh rejected", "session", id, "error", err)
		return "", fmt.Errorf("%w: token refresh rejected: %v", shared.ErrUnauthenticated, err)
	}

	session.AccessToken = token.AccessToken
	session.ExpiresAt = token.Expiry
	if token.RefreshToken != "" {
		// Spotify may rotate the refresh token; replace, never append.
		session.RefreshToken = token.RefreshToken
	}
	m.store.Put(id, session)

	m.logger.Debug("session refreshed", "session", id, "expires_at", session.ExpiresAt)
	return session.AccessToken, nil
}

// Destroy removes a session record and reports whether it existed.
//
// This is the only eviction path; idle sessions are kept indefinitely. Takes
// the per-session lock, so a refresh in flight for the same session finishes
// its write before the record is deleted and cannot resurrect it.
func (m *Manager) Destroy(id string) bool {
	lock := m.lock(id)
	lock.Lock()

	existed := m.store.Delete(id)

	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()

	lock.Unlock()

	if existed {
		m.logger.Info("session destroyed", "session", id)
	}
	return existed
}

// lock returns the mutex serializing writes for one session, creating it on demand.
func (m *Manager) lock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}
