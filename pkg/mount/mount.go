package mount

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Manager owns the local directories where sources write their artifacts.
type Manager struct {
	base string
}

func New(base string) *Manager {
	return &Manager{
		base: base,
	}
}

// Allocate returns the work directory of the named source, creating it when
// needed. The directory is stable across runs so that already exported files
// can be found again.
func (m *Manager) Allocate(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", errors.Errorf("invalid work directory name '%s'", name)
	}

	dir := filepath.Join(m.base, name)

	err := os.MkdirAll(dir, os.ModeDir|0755)
	if err != nil {
		return "", errors.Wrap(err, "unable to create work directory")
	}
	return dir, nil
}

// Remove deletes a local file. A file that is already gone is not an error.
func (m *Manager) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
