// Package transfer holds the offsite storage backends.
package transfer

import (
	"github.com/pkg/errors"

	"github.com/yurykabanov/archiver/pkg/domain"
)

var (
	ErrMountDoesNotExist = errors.New("requested storage doesn't exist")
)

// Manager resolves configured storages by name.
type Manager struct {
	mounts map[string]domain.RemoteStorage
}

func NewManager(mounts map[string]domain.RemoteStorage) *Manager {
	return &Manager{
		mounts: mounts,
	}
}

func (m *Manager) Storage(name string) (domain.RemoteStorage, error) {
	if mount, ok := m.mounts[name]; ok {
		return mount, nil
	}
	return nil, errors.Wrapf(ErrMountDoesNotExist, "storage %q", name)
}

func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.mounts))
	for name := range m.mounts {
		names = append(names, name)
	}
	return names
}
