// pkg/blockio/file_test.go
package blockio

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStorePersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.idx")

	in := bytes.Repeat([]byte{0x5A}, 64)

	{
		store, err := OpenFileStore(path, 64, 16)
		require.NoError(t, err)
		require.Equal(t, 64, store.BlockSize())
		require.Equal(t, 16, store.NumBlocks())

		require.NoError(t, store.WriteBlock(5, in))
		require.NoError(t, store.Sync())
		require.NoError(t, store.Close())
	}

	{
		store, err := OpenFileStore(path, 64, 16)
		require.NoError(t, err)
		defer store.Close()

		out := make([]byte, 64)
		require.NoError(t, store.ReadBlock(5, out))
		require.Equal(t, in, out)
	}
}

func TestFileStoreBounds(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenFileStore(filepath.Join(dir, "test.idx"), 64, 4)
	require.NoError(t, err)
	defer store.Close()

	buf := make([]byte, 64)
	require.ErrorIs(t, store.ReadBlock(4, buf), ErrOutOfRange)
	require.ErrorIs(t, store.WriteBlock(4, buf), ErrOutOfRange)
	require.ErrorIs(t, store.WriteBlock(0, make([]byte, 63)), ErrBadLength)
}

func TestFileStoreLocking(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.idx")

	store, err := OpenFileStore(path, 64, 4)
	require.NoError(t, err)

	_, err = OpenFileStore(path, 64, 4)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, store.Close())

	// the lock is released on close
	second, err := OpenFileStore(path, 64, 4)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestFileStoreRejectsBadGeometry(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenFileStore(filepath.Join(dir, "test.idx"), 0, 4)
	require.Error(t, err)
	_, err = OpenFileStore(filepath.Join(dir, "test.idx"), 64, 0)
	require.Error(t, err)
}
