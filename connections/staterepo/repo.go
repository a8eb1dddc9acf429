package staterepo

import "time"

// PendingAuth is the short-lived state recorded between issuing the
// authorize redirect and receiving the callback. The state nonce that
// keys it is single-use: lookups consume the record.
type PendingAuth struct {
	Provider     string
	CodeVerifier string
	Params       map[string]string
	CreatedAt    time.Time
}

type Repo interface {
	// Upsert stores pending auth state under a state nonce
	Upsert(state string, pending *PendingAuth) error

	// Consume retrieves and deletes pending auth state. The record is
	// removed whether or not the caller's subsequent verification
	// succeeds, preventing replay.
	Consume(state string) (*PendingAuth, error)

	// DeleteExpired removes pending state created before cutoff
	DeleteExpired(cutoff time.Time) error
}
