package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkhas/Rescue/internal/domain"
)

func TestLoadAbsentFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	id, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	require.NoError(t, store.Save("abc"))

	id, ok, err := store.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.SessionID("abc"), id)

	// atomic rename leaves no tmp file behind
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSaveOverwrites(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, store.Save("first"))
	require.NoError(t, store.Save("second"))

	id, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SessionID("second"), id)
}

func TestClearRemovesState(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, store.Save("abc"))
	require.NoError(t, store.Clear())

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearToleratesAbsentFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	assert.NoError(t, store.Clear())
}

func TestLoadEmptyIDTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sessionId":""}`), 0o600))

	_, ok, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.False(t, ok)
}
