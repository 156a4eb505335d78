package config

import (
	"strconv"
	"time"
)

type SessionConfig interface {
	GetSessionCookieName() string
	GetSessionCookieMaxAge() int
	GetRefreshWindow() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetSessionCookieName() string {
	return GetEnv("SESSION_COOKIE_NAME", "session_id")
}

// GetSessionCookieMaxAge returns the cookie lifetime in seconds.
// The cookie only names the session row; the row's ExpiresAt is the
// source of truth for credential validity.
func (Session) GetSessionCookieMaxAge() int {
	return getEnvSeconds("SESSION_COOKIE_MAX_AGE_SECONDS", 7*24*3600)
}

// GetRefreshWindow returns how long before expiry a proactive refresh is
// attempted. Configurable so deployments with short upstream token
// lifetimes can shrink it below the token lifetime.
func (Session) GetRefreshWindow() time.Duration {
	return time.Duration(getEnvSeconds("REFRESH_WINDOW_SECONDS", 300)) * time.Second
}

func getEnvSeconds(envVar string, defaultValue int) int {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return defaultValue
	}
	return seconds
}
