package config

import "time"

type SessionConfig interface {
	GetSessionTimeout() time.Duration
	GetRefreshMargin() time.Duration
	GetActivityCheckInterval() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetSessionTimeout is the maximum allowed gap since the last recorded
// user activity before forced logout
func (Session) GetSessionTimeout() time.Duration {
	return 30 * time.Minute
}

// GetRefreshMargin is how far ahead of access-token expiry the scheduled
// refresh fires
func (Session) GetRefreshMargin() time.Duration {
	return 5 * time.Minute
}

func (Session) GetActivityCheckInterval() time.Duration {
	return 1 * time.Minute
}
