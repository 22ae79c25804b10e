package freetext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDirectory_CreatesMissingLocation(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "index")

	dir, err := OpenDirectory(root)
	require.NoError(t, err)
	defer func() { _ = dir.Close() }()

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenDirectory_SecondOpenIsRejected(t *testing.T) {
	root := t.TempDir()

	dir, err := OpenDirectory(root)
	require.NoError(t, err)
	defer func() { _ = dir.Close() }()

	_, err = OpenDirectory(root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexLocked)
}

func TestOpenDirectory_ClearsStaleLock(t *testing.T) {
	root := t.TempDir()

	// A lock file with no live holder simulates a crashed process.
	lockPath := filepath.Join(root, lockFileName)
	require.NoError(t, os.WriteFile(lockPath, nil, 0o644))

	dir, err := OpenDirectory(root)
	require.NoError(t, err)
	defer func() { _ = dir.Close() }()
}

func TestOpenDirectory_ReopenAfterClose(t *testing.T) {
	root := t.TempDir()

	dir, err := OpenDirectory(root)
	require.NoError(t, err)
	require.NoError(t, dir.Close())

	dir2, err := OpenDirectory(root)
	require.NoError(t, err)
	require.NoError(t, dir2.Close())
}

func TestDirectory_ManifestRoundTrip(t *testing.T) {
	dir, err := OpenDirectory(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = dir.Close() }()

	// No commit yet.
	gen, err := dir.ReadManifest()
	require.NoError(t, err)
	assert.Equal(t, GenerationNone, gen)

	require.NoError(t, dir.WriteManifest(42, 7))

	gen, err = dir.ReadManifest()
	require.NoError(t, err)
	assert.Equal(t, Generation(42), gen)
}

func TestDirectory_Delete(t *testing.T) {
	root := t.TempDir()
	dir, err := OpenDirectory(root)
	require.NoError(t, err)
	require.NoError(t, dir.WriteManifest(1, 0))
	require.NoError(t, dir.Close())

	require.NoError(t, dir.Delete())

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}
