package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chargeview/dashboard-bff/auth"
	"github.com/chargeview/dashboard-bff/internal/errors"
	"github.com/chargeview/dashboard-bff/internal/utils"
	"github.com/chargeview/dashboard-bff/sessions"
	"github.com/chargeview/dashboard-bff/upstream"
	"github.com/stretchr/testify/require"
)

const (
	testConnectorUUID = "u1"
	testPincode       = "1234"
	testAccessToken   = "A1"
	testRefreshToken  = "R1"
)

// fakeIssuer is a scripted upstream credential issuer with call counters.
type fakeIssuer struct {
	mu           sync.Mutex
	loginCreds   *upstream.Credentials
	loginErr     error
	refreshCreds *upstream.Credentials
	refreshErr   error

	loginCalls   atomic.Int32
	refreshCalls atomic.Int32

	// refreshGate, when non-nil, blocks Refresh until closed
	refreshGate chan struct{}
}

func (f *fakeIssuer) ExchangePincode(_ context.Context, _ upstream.PincodeLogin) (*upstream.Credentials, error) {
	f.loginCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	creds := *f.loginCreds
	return &creds, nil
}

func (f *fakeIssuer) ExchangeOTP(ctx context.Context, _ upstream.OTPLogin) (*upstream.Credentials, error) {
	return f.ExchangePincode(ctx, upstream.PincodeLogin{})
}

func (f *fakeIssuer) Refresh(_ context.Context, _ string) (*upstream.Credentials, error) {
	f.refreshCalls.Add(1)
	f.mu.Lock()
	gate := f.refreshGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	creds := *f.refreshCreds
	return &creds, nil
}

// testFixture holds all test dependencies
type testFixture struct {
	repo    sessions.Repo
	issuer  *fakeIssuer
	manager *auth.SessionManager
	now     time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		repo: sessions.NewInMemorySessionRepo(),
		issuer: &fakeIssuer{
			loginCreds: &upstream.Credentials{
				AccessToken:  testAccessToken,
				RefreshToken: utils.Ptr(testRefreshToken),
				TokenType:    "bearer",
				ExpiresIn:    3600,
			},
			refreshCreds: &upstream.Credentials{
				AccessToken: "A2",
				ExpiresIn:   3600,
			},
		},
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	manager, err := auth.NewSessionManager(f.repo, f.issuer,
		auth.WithNowTime(func() time.Time { return f.now }),
		auth.WithRefreshWindow(5*time.Minute),
	)
	require.NoError(t, err)
	f.manager = manager

	return f
}

func (f *testFixture) login(t *testing.T) string {
	t.Helper()
	sessionID, err := f.manager.LoginWithPincode(context.Background(), upstream.PincodeLogin{
		ConnectorUUID: testConnectorUUID,
		Pincode:       testPincode,
	})
	require.NoError(t, err)
	return sessionID
}

func TestSessionManager_LoginThenResolve(t *testing.T) {
	f := setupTestFixture(t)

	sessionID := f.login(t)
	require.NotEmpty(t, sessionID)

	session, err := f.manager.Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, testAccessToken, session.AccessToken)
	require.Equal(t, testRefreshToken, session.RefreshToken)
	require.Equal(t, f.now.Add(3600*time.Second), session.ExpiresAt)
	require.EqualValues(t, 1, f.issuer.loginCalls.Load())
	require.EqualValues(t, 0, f.issuer.refreshCalls.Load())
}

func TestSessionManager_LoginRejected(t *testing.T) {
	f := setupTestFixture(t)
	f.issuer.loginErr = &upstream.APIError{StatusCode: 401, Body: []byte(`{"error":"bad_pincode"}`)}

	_, err := f.manager.LoginWithPincode(context.Background(), upstream.PincodeLogin{
		ConnectorUUID: testConnectorUUID,
		Pincode:       "0000",
	})
	require.Error(t, err)

	// The upstream rejection passes through untouched
	var apiErr *upstream.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.StatusCode)
}

func TestSessionManager_SessionInfoRoundTrip(t *testing.T) {
	f := setupTestFixture(t)
	f.issuer.loginCreds.User = []byte(`{"name":"Jane"}`)
	f.issuer.loginCreds.Customer = []byte(`{"id":"c1"}`)

	sessionID := f.login(t)

	info, err := f.manager.SessionInfo(sessionID)
	require.NoError(t, err)
	require.True(t, info.IsAuthenticated)
	require.NotNil(t, info.Identity)
	require.JSONEq(t, `{"name":"Jane"}`, string(info.Identity.User))
	require.JSONEq(t, `{"id":"c1"}`, string(info.Identity.Customer))

	// Pure read: no additional upstream traffic
	require.EqualValues(t, 1, f.issuer.loginCalls.Load())
	require.EqualValues(t, 0, f.issuer.refreshCalls.Load())
}

func TestSessionManager_ResolveAbsent(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.Resolve(context.Background(), "no-such-session")
	require.ErrorIs(t, err, errors.ErrNotAuthenticated)
}

func TestSessionManager_LazyExpiry(t *testing.T) {
	f := setupTestFixture(t)
	f.issuer.loginCreds.RefreshToken = nil // not refreshable

	sessionID := f.login(t)

	f.now = f.now.Add(2 * time.Hour) // past expires_at

	_, err := f.manager.Resolve(context.Background(), sessionID)
	require.ErrorIs(t, err, errors.ErrNotAuthenticated)

	// The row is removed on first observation of expiry
	_, err = f.repo.Get(sessionID)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
	require.EqualValues(t, 0, f.issuer.refreshCalls.Load())
}

func TestSessionManager_ProactiveRefresh(t *testing.T) {
	f := setupTestFixture(t)

	sessionID := f.login(t)

	// 60 seconds before expiry, inside the 300-second window
	f.now = f.now.Add(3540 * time.Second)

	session, err := f.manager.Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, "A2", session.AccessToken)
	require.Equal(t, f.now.Add(3600*time.Second), session.ExpiresAt)
	require.EqualValues(t, 1, f.issuer.refreshCalls.Load())

	// The refresh credential is kept when the upstream does not rotate it
	require.Equal(t, testRefreshToken, session.RefreshToken)
}

func TestSessionManager_ProactiveRefreshRotatesRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	f.issuer.refreshCreds.RefreshToken = utils.Ptr("R2")

	sessionID := f.login(t)
	f.now = f.now.Add(3540 * time.Second)

	session, err := f.manager.Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, "R2", session.RefreshToken)
}

func TestSessionManager_NotNearExpiryReturnsUnchanged(t *testing.T) {
	f := setupTestFixture(t)

	sessionID := f.login(t)
	f.now = f.now.Add(30 * time.Minute) // well outside the window

	session, err := f.manager.Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, testAccessToken, session.AccessToken)
	require.EqualValues(t, 0, f.issuer.refreshCalls.Load())
}

func TestSessionManager_NearExpiryWithoutRefreshCredential(t *testing.T) {
	f := setupTestFixture(t)
	f.issuer.loginCreds.RefreshToken = nil

	sessionID := f.login(t)
	f.now = f.now.Add(3540 * time.Second) // near expiry but not past it

	session, err := f.manager.Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, testAccessToken, session.AccessToken)
	require.EqualValues(t, 0, f.issuer.refreshCalls.Load())
}

func TestSessionManager_RefreshFailureDeletesSession(t *testing.T) {
	f := setupTestFixture(t)
	f.issuer.refreshErr = errors.ErrRefreshRejected

	sessionID := f.login(t)
	f.now = f.now.Add(3540 * time.Second)

	_, err := f.manager.Resolve(context.Background(), sessionID)
	require.ErrorIs(t, err, errors.ErrNotAuthenticated)
	require.EqualValues(t, 1, f.issuer.refreshCalls.Load())

	// Unrecoverable: the session is gone, no per-request retries
	_, err = f.repo.Get(sessionID)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestSessionManager_SingleFlightRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.issuer.refreshGate = make(chan struct{})

	sessionID := f.login(t)
	f.now = f.now.Add(3540 * time.Second) // inside the refresh window

	const callers = 20
	results := make(chan string, callers)
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := f.manager.Resolve(context.Background(), sessionID)
			if err != nil {
				errs <- err
				return
			}
			results <- session.AccessToken
		}()
	}

	// Give every caller time to reach the flight, then let the single
	// upstream refresh complete.
	time.Sleep(100 * time.Millisecond)
	close(f.issuer.refreshGate)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for token := range results {
		require.Equal(t, "A2", token)
	}
	require.EqualValues(t, 1, f.issuer.refreshCalls.Load(), "exactly one upstream refresh for %d concurrent callers", callers)
}

func TestSessionManager_ReauthorizeStaleToken(t *testing.T) {
	f := setupTestFixture(t)

	sessionID := f.login(t)

	session, err := f.manager.Reauthorize(context.Background(), sessionID, testAccessToken)
	require.NoError(t, err)
	require.Equal(t, "A2", session.AccessToken)
	require.EqualValues(t, 1, f.issuer.refreshCalls.Load())
}

func TestSessionManager_ReauthorizeReusesConcurrentRefresh(t *testing.T) {
	f := setupTestFixture(t)

	sessionID := f.login(t)

	// First reactive refresh replaces A1 with A2
	_, err := f.manager.Reauthorize(context.Background(), sessionID, testAccessToken)
	require.NoError(t, err)

	// A caller still holding A1 gets the already-refreshed session
	// without a second exchange
	session, err := f.manager.Reauthorize(context.Background(), sessionID, testAccessToken)
	require.NoError(t, err)
	require.Equal(t, "A2", session.AccessToken)
	require.EqualValues(t, 1, f.issuer.refreshCalls.Load())
}

func TestSessionManager_ReauthorizeWithoutRefreshCredential(t *testing.T) {
	f := setupTestFixture(t)
	f.issuer.loginCreds.RefreshToken = nil

	sessionID := f.login(t)

	_, err := f.manager.Reauthorize(context.Background(), sessionID, testAccessToken)
	require.ErrorIs(t, err, errors.ErrNotAuthenticated)

	_, err = f.repo.Get(sessionID)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestSessionManager_LogoutIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)

	sessionID := f.login(t)

	f.manager.Logout(sessionID)
	f.manager.Logout(sessionID)          // second logout on the same session
	f.manager.Logout("never-existed-id") // and on an absent one

	_, err := f.manager.Resolve(context.Background(), sessionID)
	require.ErrorIs(t, err, errors.ErrNotAuthenticated)
}

func TestSessionManager_SessionInfoExpiredIsReadOnly(t *testing.T) {
	f := setupTestFixture(t)

	sessionID := f.login(t)
	f.now = f.now.Add(2 * time.Hour)

	info, err := f.manager.SessionInfo(sessionID)
	require.NoError(t, err)
	require.False(t, info.IsAuthenticated)

	// SessionInfo never mutates; the expired row is reaped by Resolve
	_, err = f.repo.Get(sessionID)
	require.NoError(t, err)
}
