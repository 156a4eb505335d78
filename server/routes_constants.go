package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth routes
	RouteLoginPincode = "/api/auth/login/pincode"
	RouteLoginOTP     = "/api/auth/login/otp"
	RouteSessionInfo  = "/api/auth/session"
	RouteLogout       = "/api/auth/logout"

	// Catch-all forwarded to the upstream API
	RouteProxy = "/api/"

	// apiPrefix is stripped from forwarded paths so the upstream sees its
	// own path space.
	apiPrefix = "/api"
)
