package transfer

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/archiver/pkg/domain"
)

func TestManager_Storage(t *testing.T) {
	local := NewLocalMount(t.TempDir())
	m := NewManager(map[string]domain.RemoteStorage{"nas": local})

	s, err := m.Storage("nas")
	require.NoError(t, err)
	assert.Equal(t, local, s)

	_, err = m.Storage("drive")
	assert.Equal(t, ErrMountDoesNotExist, errors.Cause(err))

	assert.Equal(t, []string{"nas"}, m.Names())
}
