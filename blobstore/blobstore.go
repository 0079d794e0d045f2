// Package blobstore implements the flat content directory described in
// §4.C: one entry per File, named identically to the File record it backs,
// living under <datastore>/store. It is a thin forwarder to the host
// filesystem; no tag awareness lives here, mirroring how
// storagedriver.StorageDriver in the teacher codebase never knows what a
// manifest or a tag is, only how to move bytes at a path.
//
// Unlike a registry StorageDriver, this store is never asked to run over a
// pluggable remote backend: it has to support chmod/chown/utimens/symlink
// faithfully, which only a local directory can give it, so there is no
// driver interface here, just a concrete Store over os.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmorris/tagfs/internal/uuid"
)

// NotFoundError is returned when operating on a name with no blob.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("blobstore: no blob named %q", e.Name)
}

// Store is a flat directory of content files keyed by File name.
type Store struct {
	root string
}

// Open returns a Store rooted at dir, creating dir if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Root returns the directory the store is rooted at, for the Mutation
// Engine to stat when synthesizing directory attributes (§4.F getattr).
func (s *Store) Root() string { return s.root }

func (s *Store) path(name string) string {
	return filepath.Join(s.root, name)
}

// PathFor returns the real filesystem path backing the blob named name, for
// callers (the Mutation Engine's access/xattr forwarders) that need to
// issue a raw syscall against it directly.
func (s *Store) PathFor(name string) string {
	return s.path(name)
}

// Exists reports whether a blob named name is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Lstat(s.path(name))
	return err == nil
}

// Create makes a new, empty blob named name. It fails if one already
// exists: the Mutation Engine is responsible for ensuring the Metadata
// Store transaction committed first, so an existing blob here is always a
// bug or a leftover orphan, never a legitimate overwrite.
func (s *Store) Create(name string) (*os.File, error) {
	f, err := os.OpenFile(s.path(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Open opens the blob named name with the given os flags.
func (s *Store) Open(name string, flag int) (*os.File, error) {
	f, err := os.OpenFile(s.path(name), flag, 0o644)
	if os.IsNotExist(err) {
		return nil, NotFoundError{Name: name}
	}
	return f, err
}

// Unlink removes the blob named name.
func (s *Store) Unlink(name string) error {
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return NotFoundError{Name: name}
	}
	return err
}

// Rename moves the blob named oldName to newName, both within the store.
// newName is guaranteed fresh by the Metadata Store invariants before this
// is ever called, so a plain os.Rename is already atomic with no staging
// needed.
func (s *Store) Rename(oldName, newName string) error {
	err := os.Rename(s.path(oldName), s.path(newName))
	if os.IsNotExist(err) {
		return NotFoundError{Name: oldName}
	}
	return err
}

// Stat returns the FileInfo for the blob named name.
func (s *Store) Stat(name string) (os.FileInfo, error) {
	fi, err := os.Lstat(s.path(name))
	if os.IsNotExist(err) {
		return nil, NotFoundError{Name: name}
	}
	return fi, err
}

// Symlink creates a symlink blob named name pointing at target. A relative
// target is left as-is at this layer; rewriting it to resolve correctly
// from both the store directory and the mounted view is the Mutation
// Engine's job (§4.F symlink), since only it knows the mount layout.
//
// The link is created at a TempName and renamed into place so a reader
// racing the create (e.g. via the Metadata Store already reporting the
// File as present) never observes a symlink entry mid-creation.
func (s *Store) Symlink(target, name string) error {
	tmp := TempName(name)
	if err := os.Symlink(target, s.path(tmp)); err != nil {
		return err
	}
	if err := os.Rename(s.path(tmp), s.path(name)); err != nil {
		os.Remove(s.path(tmp))
		return err
	}
	return nil
}

// Readlink reads the raw target of the symlink blob named name.
func (s *Store) Readlink(name string) (string, error) {
	target, err := os.Readlink(s.path(name))
	if os.IsNotExist(err) {
		return "", NotFoundError{Name: name}
	}
	return target, err
}

// Truncate resizes the blob named name to size bytes.
func (s *Store) Truncate(name string, size int64) error {
	return os.Truncate(s.path(name), size)
}

// Chmod changes the mode of the blob named name.
func (s *Store) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(s.path(name), mode)
}

// Chown changes the owner of the blob named name.
func (s *Store) Chown(name string, uid, gid int) error {
	return os.Chown(s.path(name), uid, gid)
}

// Utimens sets the access and modification times of the blob named name.
func (s *Store) Utimens(name string, atime, mtime time.Time) error {
	return os.Chtimes(s.path(name), atime, mtime)
}

// TempName returns a store-local name guaranteed not to collide with any
// real File, for staging writes the caller wants to commit atomically by
// rename.
func TempName(prefix string) string {
	return prefix + ".tmp." + uuid.NewString()
}
