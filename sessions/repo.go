package sessions

// Repo defines the interface for session storage operations.
// Absence is the only failure mode: callers treat a missing row uniformly
// as "not authenticated". An alternative implementation must preserve the
// atomicity of Replace — no reader may observe a partially updated row.
type Repo interface {
	// Insert stores a new session under a freshly generated unique
	// identifier and returns that identifier. The identifier never
	// collides with a live one.
	Insert(session Session) (string, error)

	// Get retrieves a session by ID. No side effects.
	Get(sessionID string) (Session, error)

	// Replace atomically reads the current row and writes back the result
	// of applying mutate to it, as a single visible state. No-op when the
	// row is absent (deleted by a concurrent logout); absence is reported
	// via ErrSessionNotFound.
	Replace(sessionID string, mutate func(Session) Session) (Session, error)

	// Delete removes the row. Idempotent; deleting an absent session is
	// not an error.
	Delete(sessionID string)
}
