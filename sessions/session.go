package sessions

import (
	"encoding/json"
	"time"
)

// Session binds an opaque browser-presented identifier to the upstream
// credentials held server-side on its behalf. The browser only ever sees
// the ID (as an HttpOnly cookie); tokens never leave the process.
type Session struct {
	ID           string    // Opaque session identifier (UUID), immutable once issued
	AccessToken  string    // Bearer token for forwarded calls; opaque to this service
	RefreshToken string    // Exchange token for renewal; empty when the credential cannot be refreshed
	ExpiresAt    time.Time // Derived from the upstream-reported expires_in, never guessed
	Identity     *Identity // Profile snapshot captured at login, served without an upstream round trip
	CreatedAt    time.Time // When the session was created
}

// Identity is the cached user/customer profile from the login response.
// Both payloads are opaque upstream JSON, relayed as-is on session-info
// queries.
type Identity struct {
	User     json.RawMessage `json:"user,omitempty"`
	Customer json.RawMessage `json:"customer,omitempty"`
}

// CanRefresh reports whether the session holds a refresh credential.
func (s Session) CanRefresh() bool {
	return s.RefreshToken != ""
}

// ExpiredAt reports whether the access credential must no longer be used
// at the given instant.
func (s Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
