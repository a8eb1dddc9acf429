package config

import "time"

type OAuthConfig interface {
	GetStateTimeout() time.Duration
	GetStateLength() int
	GetExpiryWarningWindow() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetStateTimeout bounds how long an issued state nonce stays valid while
// the user completes the provider consent screen
func (OAuth) GetStateTimeout() time.Duration {
	return 15 * time.Minute
}

func (OAuth) GetStateLength() int {
	return 32 // 32 bytes = 256 bits
}

// GetExpiryWarningWindow is the threshold under which a live connection is
// reported as expiring rather than connected
func (OAuth) GetExpiryWarningWindow() time.Duration {
	return 5 * time.Minute
}
