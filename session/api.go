package session

import (
	"context"
	"time"
)

// User is the minimal identity the dashboard needs for display and
// permission checks.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Credentials are passed through to the backend verbatim; no hashing or
// validation happens on this side.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenSet is a freshly issued token pair. ExpiresIn is relative to the
// moment of issue; the manager converts it to an absolute expiry when it
// stores the bundle.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// LoginResult is what a successful authenticate call resolves to.
type LoginResult struct {
	User        *User
	Tokens      TokenSet
	Permissions []string
	Session     string
}

// VerifyResult is returned when an already-held access token is verified
// at process start.
type VerifyResult struct {
	User        *User
	Permissions []string
	Session     string
}

// AuthAPI is the backend contract the session manager drives. Logout is
// best-effort from the manager's perspective; the other calls fail with an
// error on any non-successful response.
type AuthAPI interface {
	Authenticate(ctx context.Context, credentials Credentials) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	Verify(ctx context.Context, accessToken string) (*VerifyResult, error)
	Logout(ctx context.Context, accessToken string) error
}
