package credentials

import "time"

// PrimaryKey is the store key for the dashboard's own login session.
// OAuth provider connections are stored under their provider ID.
const PrimaryKey = "auth"

// Bundle is one named credential set: an access/refresh token pair plus
// the absolute expiry of the access token. The store is the single source
// of truth for bundles; callers hold transient copies for scheduling math
// only.
type Bundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}
