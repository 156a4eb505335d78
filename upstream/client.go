package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/chargeview/dashboard-bff/internal/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultExchangeTimeout bounds the login and refresh exchanges.
	DefaultExchangeTimeout = 10 * time.Second

	pincodeExchangePath = "/auth/pincode"
	otpExchangePath     = "/auth/otp"
	refreshExchangePath = "/auth/refresh"
)

// Client performs the two upstream exchanges that produce credentials.
// It is stateless: every call is a single upstream request/response.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// ClientOption configures the upstream client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new upstream client for the given API base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultExchangeTimeout},
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-success response from a login exchange. Status and
// body are carried verbatim so the HTTP boundary can relay the upstream's
// own error to the client unchanged.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream rejected request: status %d", e.StatusCode)
}

// ExchangePincode posts the connector-pincode payload to the upstream
// login endpoint. A non-success upstream status is returned as *APIError;
// a network failure as ErrUpstreamUnavailable.
func (c *Client) ExchangePincode(ctx context.Context, login PincodeLogin) (*Credentials, error) {
	return c.exchange(ctx, pincodeExchangePath, login)
}

// ExchangeOTP posts the one-time-password payload to the upstream login
// endpoint. Failure semantics match ExchangePincode.
func (c *Client) ExchangeOTP(ctx context.Context, login OTPLogin) (*Credentials, error) {
	return c.exchange(ctx, otpExchangePath, login)
}

// Refresh exchanges a refresh credential for fresh credentials. Any
// non-success response, including a network failure, collapses to
// ErrRefreshRejected: the caller must not retry a failed refresh, to avoid
// refresh-loop amplification against a degraded upstream.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	payload := struct {
		RefreshToken string `json:"refresh_token"`
	}{RefreshToken: refreshToken}

	creds, err := c.exchange(ctx, refreshExchangePath, payload)
	if err != nil {
		c.logger.Warn().Err(err).Msg("refresh exchange failed")
		return nil, apperrors.Wrapf(apperrors.ErrRefreshRejected, "[Client.Refresh] %v", err)
	}
	return creds, nil
}

func (c *Client) exchange(ctx context.Context, path string, payload any) (*Credentials, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("[Client.exchange] marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("[Client.exchange] build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrUpstreamUnavailable, "[Client.exchange] POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrUpstreamUnavailable, "[Client.exchange] read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var creds Credentials
	if err := json.Unmarshal(respBody, &creds); err != nil || creds.AccessToken == "" || creds.ExpiresIn <= 0 {
		// A success status with an unusable body must never fabricate
		// credentials; treat it like an unavailable upstream.
		return nil, apperrors.Wrapf(apperrors.ErrMalformedUpstreamResponse, "[Client.exchange] POST %s", path)
	}

	return &creds, nil
}
