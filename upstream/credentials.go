package upstream

import "encoding/json"

// Credentials represents the response from the upstream credential
// exchanges (login and refresh). Tokens are opaque strings; the BFF never
// inspects them.
type Credentials struct {
	// AccessToken is the bearer token used to authorize forwarded calls.
	AccessToken string `json:"access_token"`

	// RefreshToken is the exchange token for renewal. Absent for
	// credential types that cannot be refreshed (e.g. one-shot OTP
	// sessions on some tenants).
	RefreshToken *string `json:"refresh_token,omitempty"`

	// TokenType is "bearer" in practice; relayed but not interpreted.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds from issuance.
	// Session expiry is always derived from this value.
	ExpiresIn int `json:"expires_in"`

	// User and Customer are the profile snapshot the login endpoint
	// returns alongside the tokens. Opaque JSON, cached on the session.
	User     json.RawMessage `json:"user,omitempty"`
	Customer json.RawMessage `json:"customer,omitempty"`
}

// PincodeLogin is the connector-pincode login payload.
type PincodeLogin struct {
	ConnectorUUID string `json:"connector_uuid"`
	Pincode       string `json:"pincode"`
}

// OTPLogin is the one-time-password login payload.
type OTPLogin struct {
	PhoneNumber string `json:"phone_number"`
	OTP         string `json:"otp"`
}
