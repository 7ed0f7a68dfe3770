package workdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrepareCreatesLayoutAndClearsStale(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	require.NoError(t, m.Prepare(1))
	stale := filepath.Join(m.DataDir(1), "leftover.bin")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))

	require.NoError(t, m.Prepare(1))
	_, err := os.Stat(stale)
	require.True(t, os.IsNotExist(err), "expected stale file to be gone, err = %v", err)
	_, err = os.Stat(m.MetaDir(1))
	require.NoError(t, err, "meta dir missing")
}

func TestWriteAndReadKV(t *testing.T) {
	root := t.TempDir()
	m := New(root)
	require.NoError(t, m.Prepare(5))

	require.NoError(t, m.WriteKVString(5, "meta/cmd", "export"))
	got, err := m.ReadKVString(5, "meta/cmd")
	require.NoError(t, err)
	require.Equal(t, "export", got)

	require.NoError(t, m.WriteKVInt(5, "meta/pid", 4242))
	gotInt, err := m.ReadKVInt(5, "meta/pid")
	require.NoError(t, err)
	require.Equal(t, 4242, gotInt)
}

func TestReadKVMissingReturnsErrNotFound(t *testing.T) {
	root := t.TempDir()
	m := New(root)
	require.NoError(t, m.Prepare(9))
	_, err := m.ReadKVString(9, "meta/status")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInheritMovesDataAndLeavesSourceEmpty(t *testing.T) {
	root := t.TempDir()
	m := New(root)
	require.NoError(t, m.Prepare(1))
	require.NoError(t, m.Prepare(2))
	payload := filepath.Join(m.DataDir(1), "snapshot.img")
	require.NoError(t, os.WriteFile(payload, []byte("data"), 0o600))

	require.NoError(t, m.Inherit(1, 2))

	_, err := os.Stat(filepath.Join(m.DataDir(2), "snapshot.img"))
	require.NoError(t, err, "expected data to land in dst")
	entries, err := os.ReadDir(m.DataDir(1))
	require.NoError(t, err)
	require.Empty(t, entries, "expected source data dir to be empty")
}

func TestCleanupAndExists(t *testing.T) {
	root := t.TempDir()
	m := New(root)
	require.NoError(t, m.Prepare(3))
	require.True(t, m.Exists(3), "expected job dir to exist after Prepare")
	require.NoError(t, m.Cleanup(3))
	require.False(t, m.Exists(3), "expected job dir to be gone after Cleanup")
}
