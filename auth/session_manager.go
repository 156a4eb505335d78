// Package auth owns the session lifecycle: login, logout, resolution and
// the refresh policy. All credential mutation for a session funnels
// through a per-session single-flight group, so concurrent requests never
// race two refresh exchanges against the upstream (which would invalidate
// one another under refresh-token rotation).
package auth

import (
	"context"
	"time"

	apperrors "github.com/chargeview/dashboard-bff/internal/errors"
	"github.com/chargeview/dashboard-bff/internal/utils"
	"github.com/chargeview/dashboard-bff/sessions"
	"github.com/chargeview/dashboard-bff/upstream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshWindow is how long before expiry a proactive refresh is
// attempted. It absorbs the latency of the forwarded call itself plus
// clock skew against the upstream.
const DefaultRefreshWindow = 5 * time.Minute

// Issuer performs the upstream credential exchanges.
type Issuer interface {
	ExchangePincode(ctx context.Context, login upstream.PincodeLogin) (*upstream.Credentials, error)
	ExchangeOTP(ctx context.Context, login upstream.OTPLogin) (*upstream.Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (*upstream.Credentials, error)
}

// SessionManager maps opaque session identifiers to stored credentials,
// creates sessions after login, refreshes credentials before they expire
// and deletes sessions on logout or terminal expiry.
type SessionManager struct {
	store         sessions.Repo
	issuer        Issuer
	refreshWindow time.Duration
	refreshGroup  singleflight.Group // keyed by session ID; shared by proactive and reactive refresh
	nowTime       func() time.Time   // nowTime function (injectable for testing)
	logger        zerolog.Logger
}

// SessionManagerOption defines a function type to modify the SessionManager instance.
type SessionManagerOption func(*SessionManager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		m.nowTime = nowFunc
	}
}

// WithRefreshWindow sets how long before expiry a proactive refresh fires.
func WithRefreshWindow(window time.Duration) SessionManagerOption {
	return func(m *SessionManager) {
		m.refreshWindow = window
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) SessionManagerOption {
	return func(m *SessionManager) {
		m.logger = logger
	}
}

// NewSessionManager initializes a new SessionManager with required dependencies.
func NewSessionManager(store sessions.Repo, issuer Issuer, options ...SessionManagerOption) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("[NewSessionManager] store is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewSessionManager] issuer is required")
	}

	m := &SessionManager{
		store:         store,
		issuer:        issuer,
		refreshWindow: DefaultRefreshWindow,
		nowTime:       time.Now,
		logger:        zerolog.Nop(),
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// LoginWithPincode exchanges a connector-pincode payload for credentials
// and stores a new session. Upstream rejections pass through untouched
// (*upstream.APIError) so the boundary can relay status and message.
func (m *SessionManager) LoginWithPincode(ctx context.Context, login upstream.PincodeLogin) (string, error) {
	creds, err := m.issuer.ExchangePincode(ctx, login)
	if err != nil {
		return "", err
	}
	return m.createSession(creds)
}

// LoginWithOTP exchanges a one-time-password payload for credentials and
// stores a new session.
func (m *SessionManager) LoginWithOTP(ctx context.Context, login upstream.OTPLogin) (string, error) {
	creds, err := m.issuer.ExchangeOTP(ctx, login)
	if err != nil {
		return "", err
	}
	return m.createSession(creds)
}

func (m *SessionManager) createSession(creds *upstream.Credentials) (string, error) {
	now := m.nowTime()
	session := sessions.Session{
		AccessToken:  creds.AccessToken,
		RefreshToken: utils.Value(creds.RefreshToken),
		ExpiresAt:    now.Add(time.Duration(creds.ExpiresIn) * time.Second),
		CreatedAt:    now,
	}
	if len(creds.User) > 0 || len(creds.Customer) > 0 {
		session.Identity = &sessions.Identity{User: creds.User, Customer: creds.Customer}
	}

	sessionID, err := m.store.Insert(session)
	if err != nil {
		return "", apperrors.Wrapf(err, "[SessionManager.createSession] insert")
	}

	m.logger.Info().Str("session_id", sessionID).Time("expires_at", session.ExpiresAt).Msg("session created")
	return sessionID, nil
}

// Logout deletes the session. Always succeeds, whether or not the session
// existed.
func (m *SessionManager) Logout(sessionID string) {
	m.store.Delete(sessionID)
}

// Resolve looks up the session and keeps its credentials usable:
//   - absent row: ErrNotAuthenticated
//   - expired: the session is deleted and ErrNotAuthenticated returned
//     (lazy expiry, detected at next use — no background sweeper)
//   - near expiry with a refresh credential: one proactive refresh,
//     coalesced across concurrent callers; on failure the session is
//     deleted and ErrNotAuthenticated returned
//   - otherwise: the session as stored
func (m *SessionManager) Resolve(ctx context.Context, sessionID string) (sessions.Session, error) {
	session, err := m.store.Get(sessionID)
	if err != nil {
		return sessions.Session{}, apperrors.ErrNotAuthenticated
	}

	now := m.nowTime()
	if session.ExpiredAt(now) {
		m.store.Delete(sessionID)
		m.logger.Info().Str("session_id", sessionID).Msg("session expired, removed")
		return sessions.Session{}, apperrors.ErrNotAuthenticated
	}

	if !m.needsRefresh(session, now) {
		return session, nil
	}

	return m.refreshSession(ctx, sessionID, func(current sessions.Session) bool {
		return m.needsRefresh(current, m.nowTime())
	})
}

// Reauthorize performs the reactive refresh after the upstream rejected a
// forwarded call with 401 despite a token that looked valid locally
// (upstream-side revocation). staleAccessToken is the token the caller
// used; if the stored token already differs, a concurrent refresh has won
// and its outcome is reused instead of issuing another exchange.
func (m *SessionManager) Reauthorize(ctx context.Context, sessionID, staleAccessToken string) (sessions.Session, error) {
	return m.refreshSession(ctx, sessionID, func(current sessions.Session) bool {
		return current.AccessToken == staleAccessToken
	})
}

// SessionInfo reports whether the session is usable and returns the cached
// identity snapshot. Read-only: never triggers an upstream call or any
// mutation, so an expired row is reported unauthenticated but left for
// Resolve to reap.
func (m *SessionManager) SessionInfo(sessionID string) (Info, error) {
	session, err := m.store.Get(sessionID)
	if err != nil {
		return Info{}, nil
	}
	if session.ExpiredAt(m.nowTime()) {
		return Info{}, nil
	}
	return Info{IsAuthenticated: true, Identity: session.Identity}, nil
}

// Info is the session-info query result.
type Info struct {
	IsAuthenticated bool
	Identity        *sessions.Identity
}

// needsRefresh reports whether the session should be proactively
// refreshed: inside the window before expiry, and refreshable at all.
func (m *SessionManager) needsRefresh(session sessions.Session, now time.Time) bool {
	return session.CanRefresh() && session.ExpiresAt.Before(now.Add(m.refreshWindow))
}

// refreshSession runs the check-refresh-replace sequence inside the
// per-session flight. stillStale re-checks the freshly read row inside the
// flight: a caller that lost the race to an already-completed refresh
// simply gets the refreshed session back.
func (m *SessionManager) refreshSession(ctx context.Context, sessionID string, stillStale func(sessions.Session) bool) (sessions.Session, error) {
	result, err, _ := m.refreshGroup.Do(sessionID, func() (interface{}, error) {
		session, err := m.store.Get(sessionID)
		if err != nil {
			return sessions.Session{}, apperrors.ErrNotAuthenticated
		}
		if !stillStale(session) {
			return session, nil
		}
		if !session.CanRefresh() {
			m.store.Delete(sessionID)
			return sessions.Session{}, apperrors.ErrNotAuthenticated
		}

		creds, err := m.issuer.Refresh(ctx, session.RefreshToken)
		if err != nil {
			// A session whose refresh failed is unrecoverable; it must
			// not be retried per-request.
			m.store.Delete(sessionID)
			m.logger.Warn().Str("session_id", sessionID).Err(err).Msg("refresh failed, session removed")
			return sessions.Session{}, apperrors.ErrNotAuthenticated
		}

		updated, err := m.store.Replace(sessionID, func(s sessions.Session) sessions.Session {
			s.AccessToken = creds.AccessToken
			s.ExpiresAt = m.nowTime().Add(time.Duration(creds.ExpiresIn) * time.Second)
			if creds.RefreshToken != nil {
				s.RefreshToken = *creds.RefreshToken
			}
			return s
		})
		if err != nil {
			// Deleted by a concurrent logout while the exchange was in
			// flight; the logout wins.
			return sessions.Session{}, apperrors.ErrNotAuthenticated
		}

		m.logger.Debug().Str("session_id", sessionID).Time("expires_at", updated.ExpiresAt).Msg("session refreshed")
		return updated, nil
	})
	if err != nil {
		return sessions.Session{}, err
	}
	return result.(sessions.Session), nil
}
