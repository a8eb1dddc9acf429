package credentials

import "errors"

var ErrNotFound = errors.New("credential bundle not found")

// Repo manages named credential bundles. Store replaces the whole bundle
// as a unit; there is no partial update.
type Repo interface {
	Store(name string, bundle Bundle) error
	Get(name string) (*Bundle, error)
	Remove(name string) error
}
