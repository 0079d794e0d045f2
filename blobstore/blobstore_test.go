package blobstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestCreateAndExists(t *testing.T) {
	s := newTestStore(t)

	require.False(t, s.Exists("tune"))

	f, err := s.Create("tune")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.True(t, s.Exists("tune"))
}

func TestCreateRejectsExisting(t *testing.T) {
	s := newTestStore(t)

	f, err := s.Create("tune")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.Create("tune")
	require.Error(t, err)
	require.True(t, os.IsExist(err))
}

func TestUnlinkMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.Unlink("ghost")
	require.Error(t, err)
	var nf NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "ghost", nf.Name)
}

func TestRenameMovesBlob(t *testing.T) {
	s := newTestStore(t)

	f, err := s.Create("tune")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Rename("tune", "song"))
	require.False(t, s.Exists("tune"))
	require.True(t, s.Exists("song"))
}

func TestSymlinkAndReadlink(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Symlink("../elsewhere/tune.mp3", "tune"))

	target, err := s.Readlink("tune")
	require.NoError(t, err)
	require.Equal(t, "../elsewhere/tune.mp3", target)
}

func TestStatReflectsRealPermissions(t *testing.T) {
	s := newTestStore(t)

	f, err := s.Create("tune")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Chmod("tune", 0o640))

	fi, err := s.Stat("tune")
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
}

func TestTempNameDoesNotCollide(t *testing.T) {
	a := TempName("tune")
	b := TempName("tune")
	require.NotEqual(t, a, b)
	require.Equal(t, filepath.Base(a), a) // no path separators
}
