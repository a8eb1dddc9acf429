package connections

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider        = errors.New("unknown provider")
	ErrMissingOAuthParameters = errors.New("missing code or state parameter")
	ErrStateMismatch          = errors.New("state parameter mismatch")
)

// ProviderError carries an error reported by the provider itself through
// the callback redirect. It is surfaced verbatim, never retried.
type ProviderError struct {
	Provider    string
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider %s returned error %q", e.Provider, e.Code)
	}
	return fmt.Sprintf("provider %s returned error %q: %s", e.Provider, e.Code, e.Description)
}

// ValidationError reports a missing or malformed connect-time parameter.
// Nothing is stored when one is returned.
type ValidationError struct {
	Provider string
	Param    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("provider %s: parameter %q %s", e.Provider, e.Param, e.Reason)
}
