package config

import "time"

type UpstreamConfig interface {
	GetUpstreamBaseURL() string
	GetExchangeTimeout() time.Duration
	GetForwardTimeout() time.Duration
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

func (Upstream) GetUpstreamBaseURL() string {
	return GetEnv("UPSTREAM_BASE_URL", "http://localhost:9090")
}

// GetExchangeTimeout bounds the login and refresh exchanges.
func (Upstream) GetExchangeTimeout() time.Duration {
	return time.Duration(getEnvSeconds("EXCHANGE_TIMEOUT_SECONDS", 10)) * time.Second
}

// GetForwardTimeout bounds forwarded data calls, which can be slower than
// the credential exchanges.
func (Upstream) GetForwardTimeout() time.Duration {
	return time.Duration(getEnvSeconds("FORWARD_TIMEOUT_SECONDS", 30)) * time.Second
}
