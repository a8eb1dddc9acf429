package session

import "errors"

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNoRefreshToken       = errors.New("no refresh token")
	ErrRefreshFailed        = errors.New("token refresh failed")
	ErrSessionExpired       = errors.New("session expired")
)
