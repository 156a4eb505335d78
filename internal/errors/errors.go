package errors

import (
	"errors"
	"fmt"
)

// Common error types for the dashboard BFF
var (
	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionNotFound  = errors.New("session not found")

	// Upstream errors
	ErrRefreshRejected           = errors.New("refresh rejected")
	ErrUpstreamUnavailable       = errors.New("upstream unavailable")
	ErrUpstreamTimeout           = fmt.Errorf("upstream timeout: %w", ErrUpstreamUnavailable)
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
