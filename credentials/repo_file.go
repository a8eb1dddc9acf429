package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const bundleFileMode = os.FileMode(0o600)

// FileRepo persists credential bundles as a single JSON file so that a
// verified session can survive a process restart. The afero filesystem is
// injectable so tests run against an in-memory filesystem.
type FileRepo struct {
	mu      sync.Mutex
	fs      afero.Fs
	path    string
	bundles map[string]Bundle
}

// NewFileRepo loads any existing bundle file from path. A missing file is
// not an error; it means no credentials have been stored yet.
func NewFileRepo(fs afero.Fs, path string) (*FileRepo, error) {
	r := &FileRepo{
		fs:      fs,
		path:    path,
		bundles: make(map[string]Bundle),
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, errors.Wrap(err, "[NewFileRepo] read bundle file")
	}
	if err := json.Unmarshal(data, &r.bundles); err != nil {
		return nil, errors.Wrap(err, "[NewFileRepo] parse bundle file")
	}
	return r, nil
}

func (r *FileRepo) Store(name string, bundle Bundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bundles[name] = bundle
	return r.flushLocked()
}

func (r *FileRepo) Get(name string) (*Bundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bundle, exists := r.bundles[name]
	if !exists {
		return nil, ErrNotFound
	}
	copied := bundle
	return &copied, nil
}

func (r *FileRepo) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bundles[name]; !exists {
		return nil
	}
	delete(r.bundles, name)
	return r.flushLocked()
}

func (r *FileRepo) flushLocked() error {
	data, err := json.MarshalIndent(r.bundles, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileRepo] marshal bundles")
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := r.fs.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrap(err, "[FileRepo] create data folder")
		}
	}
	if err := afero.WriteFile(r.fs, r.path, data, bundleFileMode); err != nil {
		return errors.Wrap(err, "[FileRepo] write bundle file")
	}
	return nil
}
