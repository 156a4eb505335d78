// Package proxy forwards already-authorized dashboard operations to the
// upstream API, attaching the session's bearer credential and performing
// at most one corrective refresh-and-retry when the upstream answers 401.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/chargeview/dashboard-bff/internal/errors"
	"github.com/chargeview/dashboard-bff/sessions"
	"github.com/rs/zerolog"
)

// DefaultForwardTimeout bounds a forwarded call. Data queries can be
// slower than the credential exchanges.
const DefaultForwardTimeout = 30 * time.Second

// SessionBroker resolves and repairs session credentials. Satisfied by
// *auth.SessionManager.
type SessionBroker interface {
	Resolve(ctx context.Context, sessionID string) (sessions.Session, error)
	Reauthorize(ctx context.Context, sessionID, staleAccessToken string) (sessions.Session, error)
	Logout(sessionID string)
}

// Result is a relayed upstream response: status, headers and body
// verbatim. The dispatcher performs no semantic interpretation of
// forwarded payloads.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// outcome is the state of a single forwarded call after one upstream
// attempt. Reifying it keeps the at-most-one-retry invariant structural
// instead of buried in nested branches.
type outcome int

const (
	outcomeSuccess outcome = iota // relay the response
	outcomeRetry                  // 401: refresh once, then one more attempt
	outcomeFailed                 // upstream unreachable
)

// Dispatcher forwards requests to the upstream API on behalf of resolved
// sessions.
type Dispatcher struct {
	broker     SessionBroker
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a Dispatcher forwarding to the given API base URL.
func NewDispatcher(broker SessionBroker, baseURL string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		broker:  broker,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultForwardTimeout,
			// Don't follow redirects — return them to the caller.
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Forward resolves the session, issues the call upstream with the current
// access credential and relays the response. A 401 triggers exactly one
// reactive refresh-and-retry; a second 401, or a failed refresh, deletes
// the session and reports ErrNotAuthenticated. Upstream network failures
// surface as ErrUpstreamUnavailable and leave the session intact.
func (d *Dispatcher) Forward(ctx context.Context, sessionID, method, path, rawQuery string, header http.Header, body []byte) (*Result, error) {
	session, err := d.broker.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result, state, err := d.attempt(ctx, method, path, rawQuery, header, body, session.AccessToken)
	if state == outcomeFailed {
		return nil, err
	}
	if state == outcomeSuccess {
		return result, nil
	}

	// Stale token despite proactive refresh (e.g. upstream-side
	// revocation). One refresh, one retry, no loops.
	if !session.CanRefresh() {
		d.broker.Logout(sessionID)
		return nil, apperrors.ErrNotAuthenticated
	}

	refreshed, err := d.broker.Reauthorize(ctx, sessionID, session.AccessToken)
	if err != nil {
		return nil, err
	}

	result, state, err = d.attempt(ctx, method, path, rawQuery, header, body, refreshed.AccessToken)
	switch state {
	case outcomeSuccess:
		return result, nil
	case outcomeRetry:
		// Fresh credential rejected too: the session is beyond repair.
		d.broker.Logout(sessionID)
		d.logger.Warn().Str("session_id", sessionID).Str("path", path).Msg("retried call rejected, session removed")
		return nil, apperrors.ErrNotAuthenticated
	default:
		return nil, err
	}
}

// attempt issues one upstream call and classifies the result.
func (d *Dispatcher) attempt(ctx context.Context, method, path, rawQuery string, header http.Header, body []byte, accessToken string) (*Result, outcome, error) {
	upstreamURL := d.baseURL + path
	if rawQuery != "" {
		upstreamURL += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, upstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, outcomeFailed, apperrors.Wrapf(apperrors.ErrInternal, "[Dispatcher.attempt] build request: %v", err)
	}
	copyHeaders(req.Header, header)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Warn().Str("method", method).Str("path", path).Err(err).Msg("upstream request failed")
		cause := apperrors.ErrUpstreamUnavailable
		if isTimeout(err) {
			cause = apperrors.ErrUpstreamTimeout
		}
		return nil, outcomeFailed, apperrors.Wrapf(cause, "[Dispatcher.attempt] %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, outcomeFailed, apperrors.Wrapf(apperrors.ErrUpstreamUnavailable, "[Dispatcher.attempt] read response: %v", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, outcomeRetry, nil
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       respBody,
	}, outcomeSuccess, nil
}

// isTimeout distinguishes a slow upstream from an unreachable one, so the
// boundary can answer 504 instead of 502.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// copyHeaders copies HTTP headers, excluding hop-by-hop headers and the
// caller's own authorization, which is replaced by the session credential.
func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		switch strings.ToLower(k) {
		case "connection", "keep-alive", "transfer-encoding",
			"te", "trailer", "upgrade", "host",
			"authorization", "cookie", "content-length":
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
