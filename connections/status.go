package connections

import "time"

// Status classifies a provider link's freshness. It is derived from the
// wall clock on every read and never stored; caching it would go stale.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
	StatusExpiring     Status = "expiring"
	StatusExpired      Status = "expired"
)

// DeriveStatus classifies a live connection's expiry against now. The
// warning-window boundary itself counts as expiring.
func DeriveStatus(now, expiresAt time.Time, warningWindow time.Duration) Status {
	remaining := expiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return StatusExpired
	case remaining <= warningWindow:
		return StatusExpiring
	default:
		return StatusConnected
	}
}
