package sessions

import (
	"sync"

	"github.com/chargeview/dashboard-bff/internal/errors"
	"github.com/google/uuid"
)

// InMemorySessionRepo is an in-memory implementation of Repo for a
// single-process deployment. Horizontal scaling requires an external keyed
// store that preserves the same Replace atomicity.
type InMemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

var _ Repo = (*InMemorySessionRepo)(nil)

// NewInMemorySessionRepo creates a new in-memory session repository
func NewInMemorySessionRepo() *InMemorySessionRepo {
	return &InMemorySessionRepo{
		sessions: make(map[string]Session),
	}
}

// Insert stores the session under a new random 128-bit identifier.
func (r *InMemorySessionRepo) Insert(session Session) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID := uuid.NewString()
	// UUIDv4 collisions are not a practical concern, but the contract says
	// never reuse a live identifier.
	for {
		if _, exists := r.sessions[sessionID]; !exists {
			break
		}
		sessionID = uuid.NewString()
	}

	session.ID = sessionID
	r.sessions[sessionID] = session
	return sessionID, nil
}

// Get retrieves a session by ID.
func (r *InMemorySessionRepo) Get(sessionID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, errors.ErrSessionNotFound
	}
	return session, nil
}

// Replace applies mutate to the current row under the write lock, so the
// new access token, refresh token and expiry become visible as one state.
func (r *InMemorySessionRepo) Replace(sessionID string, mutate func(Session) Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, errors.ErrSessionNotFound
	}

	updated := mutate(session)
	updated.ID = sessionID // the identifier is immutable
	r.sessions[sessionID] = updated
	return updated, nil
}

// Delete removes a session. Deleting an absent session is a no-op.
func (r *InMemorySessionRepo) Delete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
}
