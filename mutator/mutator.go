// Package mutator implements the Mutation Engine (§4.F): the polymorphic
// semantics of mkdir, rmdir, create, unlink, rename, symlink, and link
// against the Metadata Store and Blob Store, atomically. spec.md §9 asks
// that the four rename cases (tag-rename, tag-set-replace, tag-set-add,
// filename-rename) be decided up front from the path triples and the
// file's current tag set, then executed without interleaving decision and
// mutation; every method here follows that shape: validate and classify
// first, mutate second.
package mutator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dmorris/tagfs/blobstore"
	"github.com/dmorris/tagfs/internal/dcontext"
	"github.com/dmorris/tagfs/internal/errcode"
	"github.com/dmorris/tagfs/metastore"
	"github.com/dmorris/tagfs/pathspec"
	"github.com/dmorris/tagfs/resolver"
	"github.com/dmorris/tagfs/tagset"
)

// deletemeSentinel is the magic rename target (§6) that deletes the source
// tag for clients that cannot issue rmdir directly. It must be matched
// against the raw path string before pathspec.Parse strips its leading
// dot; see DESIGN.md's "`/..deleteme` sentinel matching" entry.
const deletemeSentinel = "/..deleteme"

// Config holds the Mutation Engine's behavioral flags, all sourced from
// the CLI surface in spec.md §6.
type Config struct {
	// FlatDelete, when true, makes unlink inside a tag directory remove
	// only the last tag from the file rather than the file itself.
	FlatDelete bool

	// AnywhereDelete allows FlatDelete's tag-stripping behavior at any
	// directory depth. When false (the default), it is only honored one
	// level below the root, guarding against clients whose recursive
	// delete would otherwise strip every tag from a file one directory at
	// a time.
	AnywhereDelete bool

	// MountPoint is the absolute path the filesystem is mounted at. Used
	// only to translate symlink targets between their Blob Store-relative
	// persisted form and their mount-relative display form (§4.F symlink
	// and readlink).
	MountPoint string
}

// Engine is the Mutation Engine: the only component in this tree that
// writes to both the Metadata Store and the Blob Store in the same
// operation.
type Engine struct {
	meta   *metastore.Store
	blobs  *blobstore.Store
	config Config
}

// New builds an Engine over the given stores and configuration.
func New(meta *metastore.Store, blobs *blobstore.Store, config Config) *Engine {
	return &Engine{meta: meta, blobs: blobs, config: config}
}

// Blobs exposes the underlying Blob Store for the byte-level forwarders
// (read/write/open/flush/release/fsync) that carry no tag logic per §1's
// scope note; those never need to go through the Engine.
func (e *Engine) Blobs() *blobstore.Store { return e.blobs }

func requireTagsExist(ctx context.Context, meta *metastore.Store, tags []string) error {
	for _, t := range tags {
		ok, err := meta.TagExists(ctx, t)
		if err != nil {
			return err
		}
		if !ok {
			return errcode.Newf(errcode.NoEnt, "tag %q", t)
		}
	}
	return nil
}

func nameTaken(ctx context.Context, meta *metastore.Store, name string) (bool, error) {
	if ok, err := meta.TagExists(ctx, name); err != nil || ok {
		return ok, err
	}
	return meta.FileExists(ctx, name)
}

// Mkdir creates a new Tag named by path's leaf (§4.F mkdir). The
// directory-tag-sequence leading to it must already exist, matching
// ordinary mkdir's "parent must exist" expectation even though tags are
// not hierarchical among themselves.
func (e *Engine) Mkdir(ctx context.Context, path string) error {
	log := dcontext.GetLoggerWithOperation(ctx, "mkdir", path)

	p, err := pathspec.Parse(path)
	if err != nil {
		return err
	}
	if !p.HasLeaf {
		return errcode.New(errcode.Perm, "mkdir requires a name")
	}
	if p.LeafHidden {
		return errcode.Newf(errcode.Perm, "tag name %q must not begin with '.'", p.Leaf)
	}
	if err := pathspec.ValidName(p.Leaf); err != nil {
		return err
	}
	if err := requireTagsExist(ctx, e.meta, p.Tags); err != nil {
		return err
	}
	if taken, err := nameTaken(ctx, e.meta, p.Leaf); err != nil {
		return err
	} else if taken {
		return errcode.Newf(errcode.Exist, "%q", p.Leaf)
	}

	if err := e.meta.InsertTag(ctx, p.Leaf); err != nil {
		return err
	}
	log.Debug("tag created")
	return nil
}

// Rmdir deletes the Tag named by path's leaf, if it has no members
// (§4.F rmdir).
func (e *Engine) Rmdir(ctx context.Context, path string) error {
	log := dcontext.GetLoggerWithOperation(ctx, "rmdir", path)

	p, err := pathspec.Parse(path)
	if err != nil {
		return err
	}
	if !p.HasLeaf {
		return errcode.New(errcode.Perm, "rmdir requires a name")
	}

	if err := e.meta.DeleteTag(ctx, p.Leaf); err != nil {
		return err
	}
	log.Debug("tag removed")
	return nil
}

// Create makes a new File named by path's leaf, tagged with path's
// directory-tag-sequence, and returns the newly opened blob (§4.F create).
// Every tag in the sequence must already exist.
func (e *Engine) Create(ctx context.Context, path string, mode os.FileMode) (*os.File, error) {
	log := dcontext.GetLoggerWithOperation(ctx, "create", path)

	p, err := pathspec.Parse(path)
	if err != nil {
		return nil, err
	}
	if !p.HasLeaf {
		return nil, errcode.New(errcode.Perm, "create requires a name")
	}
	if p.LeafHidden {
		return nil, errcode.Newf(errcode.Perm, "file name %q must not begin with '.'", p.Leaf)
	}
	if err := pathspec.ValidName(p.Leaf); err != nil {
		return nil, err
	}
	if err := requireTagsExist(ctx, e.meta, p.Tags); err != nil {
		return nil, err
	}
	if taken, err := nameTaken(ctx, e.meta, p.Leaf); err != nil {
		return nil, err
	} else if taken {
		return nil, errcode.Newf(errcode.Exist, "%q", p.Leaf)
	}

	if err := e.meta.InsertFile(ctx, p.Leaf, p.Tags); err != nil {
		return nil, err
	}

	f, err := e.blobs.Create(p.Leaf)
	if err != nil {
		// Metadata Store committed but the blob side-effect failed: leave
		// the stale File row for Scrub to report rather than attempting a
		// best-effort compensating delete here, which could itself fail.
		log.WithError(err).Error("blob create failed after metadata commit")
		return nil, errcode.Newf(errcode.IO, "create blob %q: %v", p.Leaf, err)
	}
	if mode != 0 {
		if err := f.Chmod(mode); err != nil {
			log.WithError(err).Warn("chmod on create failed")
		}
	}
	log.Debug("file created")
	return f, nil
}

// Mknod is Create without a returned handle, for callers (the FUSE
// adapter's Mknod upcall) that only need the side effect.
func (e *Engine) Mknod(ctx context.Context, path string, mode os.FileMode) error {
	f, err := e.Create(ctx, path, mode)
	if err != nil {
		return err
	}
	return f.Close()
}

// Symlink creates a new File named by path's leaf whose blob is a symlink
// to target (§4.F symlink). A relative target is resolved against the
// mount-view directory the call was made in, then re-expressed relative to
// the Blob Store directory, so the persisted link resolves correctly
// whether read directly out of the store or through the mount at the
// depth it was created at. See DESIGN.md for why this (rather than the
// alternating behavior of the source across revisions) was chosen.
func (e *Engine) Symlink(ctx context.Context, path, target string) error {
	log := dcontext.GetLoggerWithOperation(ctx, "symlink", path)

	p, err := pathspec.Parse(path)
	if err != nil {
		return err
	}
	if !p.HasLeaf || p.LeafHidden {
		return errcode.New(errcode.Perm, "symlink requires a non-hidden name")
	}
	if err := pathspec.ValidName(p.Leaf); err != nil {
		return err
	}
	if err := requireTagsExist(ctx, e.meta, p.Tags); err != nil {
		return err
	}
	if taken, err := nameTaken(ctx, e.meta, p.Leaf); err != nil {
		return err
	} else if taken {
		return errcode.Newf(errcode.Exist, "%q", p.Leaf)
	}

	storeTarget := target
	if !filepath.IsAbs(target) {
		mountDir := filepath.Join(append([]string{e.config.MountPoint}, p.Tags...)...)
		abs := filepath.Join(mountDir, target)
		rel, err := filepath.Rel(e.blobs.Root(), abs)
		if err == nil {
			storeTarget = rel
		}
	}

	if err := e.meta.InsertFile(ctx, p.Leaf, p.Tags); err != nil {
		return err
	}
	if err := e.blobs.Symlink(storeTarget, p.Leaf); err != nil {
		log.WithError(err).Error("blob symlink failed after metadata commit")
		return errcode.Newf(errcode.IO, "symlink %q: %v", p.Leaf, err)
	}
	log.Debug("symlink created")
	return nil
}

// Readlink returns the target of the symlink File named by path, rewritten
// to be relative to the mount-view directory path was reached through if
// it was stored relative, or returned unchanged if absolute (§4.F
// readlink).
func (e *Engine) Readlink(ctx context.Context, path string) (string, error) {
	p, err := pathspec.Parse(path)
	if err != nil {
		return "", err
	}
	if _, err := resolver.Resolve(ctx, e.meta, p); err != nil {
		return "", err
	}

	raw, err := e.blobs.Readlink(p.Leaf)
	if err != nil {
		return "", errcode.Newf(errcode.IO, "readlink %q: %v", p.Leaf, err)
	}
	if filepath.IsAbs(raw) {
		return raw, nil
	}

	abs := filepath.Join(e.blobs.Root(), raw)
	mountDir := filepath.Join(append([]string{e.config.MountPoint}, p.Tags...)...)
	rel, err := filepath.Rel(mountDir, abs)
	if err != nil {
		return raw, nil
	}
	return rel, nil
}

// Unlink removes the File named by path, or (under FlatDelete) strips the
// last tag of path from it (§4.F unlink).
func (e *Engine) Unlink(ctx context.Context, path string) error {
	log := dcontext.GetLoggerWithOperation(ctx, "unlink", path)

	p, err := pathspec.Parse(path)
	if err != nil {
		return err
	}
	if !p.HasLeaf {
		return errcode.New(errcode.Perm, "unlink requires a name")
	}

	// Flat delete strips the path's last tag from the file named by the
	// leaf, by name only: it does not gate on the Resolver's strict
	// dir-tags-equal-file-tags consistency rule, since a file can (and in
	// the flat-delete case routinely does) carry more tags than the path
	// it was reached through names. The original src/tagfs.py does no
	// consistency check here either, stripping tags[-1] from the path
	// directly.
	if e.config.FlatDelete && len(p.Tags) > 0 {
		if !e.config.AnywhereDelete && len(p.Tags) > 1 {
			return errcode.New(errcode.Perm, "flat delete is root-only unless anywhere-delete is set")
		}
		ok, err := e.meta.FileExists(ctx, p.Leaf)
		if err != nil {
			return err
		}
		if !ok {
			return errcode.Newf(errcode.NoEnt, "%q", p.Leaf)
		}
		lastTag := p.Tags[len(p.Tags)-1]
		if err := e.meta.RemoveFileTags(ctx, p.Leaf, []string{lastTag}); err != nil {
			return err
		}
		log.Debug("tag stripped from file")
		return nil
	}

	res, err := resolver.Resolve(ctx, e.meta, p)
	if err != nil {
		return err
	}

	// Full delete: remove the blob first, so a crash before the Metadata
	// Store commit leaves only a stale File row for Scrub to report,
	// never a blob with no way to find it again.
	if err := e.blobs.Unlink(res.Name); err != nil {
		if _, ok := err.(blobstore.NotFoundError); !ok {
			return errcode.Newf(errcode.IO, "unlink blob %q: %v", res.Name, err)
		}
	}
	// The blob is already gone at this point; finish the matching Metadata
	// Store delete on a detached context so a host-side cancellation of
	// this upcall can't abort it and leave a File row with no backing blob.
	if err := e.meta.DeleteFile(dcontext.DetachedContext(ctx), res.Name); err != nil {
		return err
	}
	log.Debug("file removed")
	return nil
}

// splitFinal extracts a path's final component and its leading directory
// tag sequence, whether the path ended in a trailing slash (an explicit
// tag directory) or a bare leaf that might itself name a Tag rather than a
// File (§4.F rename's "leaf names a Tag, not a File" case).
func splitFinal(p pathspec.Path) (final string, dirTags []string, ok bool) {
	if p.HasLeaf {
		return p.Leaf, p.Tags, true
	}
	if len(p.Tags) == 0 {
		return "", nil, false
	}
	return p.Tags[len(p.Tags)-1], p.Tags[:len(p.Tags)-1], true
}

// Rename implements §4.F's rename polymorphism: a tag rename when old
// names a Tag, otherwise a file mutation that may replace or add to the
// File's tag set, rename the File itself, or both.
func (e *Engine) Rename(ctx context.Context, oldPath, newPath string) error {
	log := dcontext.GetLoggerWithOperation(ctx, "rename", oldPath)

	oldP, err := pathspec.Parse(oldPath)
	if err != nil {
		return err
	}

	oldFinal, oldDirTags, ok := splitFinal(oldP)
	if !ok {
		return errcode.New(errcode.Perm, "rename source must not be the mount root")
	}

	isTag, err := e.meta.TagExists(ctx, oldFinal)
	if err != nil {
		return err
	}

	if newPath == deletemeSentinel {
		if !isTag {
			return errcode.New(errcode.Perm, "deleteme sentinel only applies to a tag directory")
		}
		// Delete directly rather than routing through Rmdir(oldPath): old
		// may have arrived in either leaf form ("/x") or trailing-slash
		// form ("/x/"), and oldFinal has already been extracted from
		// either shape by splitFinal.
		if err := e.meta.DeleteTag(ctx, oldFinal); err != nil {
			return err
		}
		log.Debug("tag deleted via deleteme sentinel")
		return nil
	}

	newP, err := pathspec.Parse(newPath)
	if err != nil {
		return err
	}

	if isTag {
		return e.renameTag(ctx, oldFinal, oldDirTags, newP, log)
	}

	isFile, err := e.meta.FileExists(ctx, oldFinal)
	if err != nil {
		return err
	}
	if !isFile {
		return errcode.Newf(errcode.NoEnt, "%q", oldFinal)
	}
	return e.renameFile(ctx, oldP, oldFinal, newP)
}

func (e *Engine) renameTag(ctx context.Context, oldFinal string, oldDirTags []string, newP pathspec.Path, log dcontext.Logger) error {
	newFinal, newDirTags, ok := splitFinal(newP)
	if !ok {
		return errcode.New(errcode.Perm, "rename destination must not be the mount root")
	}
	if !tagset.New(oldDirTags).Equal(tagset.New(newDirTags)) {
		return errcode.New(errcode.NoSys, "tag rename cannot change the enclosing tag path")
	}
	if err := pathspec.ValidName(newFinal); err != nil {
		return err
	}
	if taken, err := nameTaken(ctx, e.meta, newFinal); err != nil {
		return err
	} else if taken {
		return errcode.Newf(errcode.Exist, "%q", newFinal)
	}

	if err := e.meta.RenameTag(ctx, oldFinal, newFinal); err != nil {
		return err
	}
	log.Debug("tag renamed")
	return nil
}

// renameFile decides the full shape of the mutation (consistency of old,
// whether the tag set changes and by which rule, whether the name changes
// and whether the new name is free) before executing any store write, per
// §9's "decide then execute": a failing late check (e.g. the new name
// clashing with an existing Tag or File) must never leave an earlier part
// of the rename already committed.
func (e *Engine) renameFile(ctx context.Context, oldP pathspec.Path, oldName string, newP pathspec.Path) error {
	if !newP.HasLeaf {
		return errcode.New(errcode.Perm, "rename destination must name a file")
	}
	newName := newP.Leaf

	trueTags, err := e.meta.FileTags(ctx, oldName)
	if err != nil {
		return err
	}
	fromTags := tagset.New(oldP.Tags)
	consistent := fromTags.Equal(trueTags)
	if oldP.LeafHidden {
		consistent = fromTags.SubsetOf(trueTags)
	}
	if !consistent {
		return errcode.Newf(errcode.NoEnt, "%q inconsistent with its current tags", oldName)
	}

	toTags := tagset.New(newP.Tags)
	tagsChange := !fromTags.Equal(toTags)
	if tagsChange {
		if err := requireTagsExist(ctx, e.meta, newP.Tags); err != nil {
			return err
		}
	}
	// Add-only when the source had no tag context or was reached through a
	// hidden (partial-match) leaf; replace otherwise. See spec.md §4.F's
	// rationale: dragging a visible file out replaces its tag set,
	// dragging a hidden one adds to it.
	addOnly := len(oldP.Tags) == 0 || oldP.LeafHidden

	nameChanges := oldName != newName
	if nameChanges {
		if err := pathspec.ValidName(newName); err != nil {
			return err
		}
		if taken, err := nameTaken(ctx, e.meta, newName); err != nil {
			return err
		} else if taken {
			return errcode.Newf(errcode.Exist, "%q", newName)
		}
	}

	if tagsChange {
		if addOnly {
			if err := e.meta.AddFileTags(ctx, oldName, newP.Tags); err != nil {
				return err
			}
		} else {
			if err := e.meta.SetFileTags(ctx, oldName, newP.Tags); err != nil {
				return err
			}
		}
	}

	if nameChanges {
		if err := e.meta.RenameFile(ctx, oldName, newName); err != nil {
			return err
		}
		if err := e.blobs.Rename(oldName, newName); err != nil {
			return errcode.Newf(errcode.IO, "rename blob %q -> %q: %v", oldName, newName, err)
		}
	}
	return nil
}

// Link implements the hardlink verb (§4.F link): the two leaf names must
// be identical, and the operation unions the tag sets implied by both
// paths into the File's tag set, rather than creating a second File
// record; a true hardlink to a different name is not representable in
// this model.
func (e *Engine) Link(ctx context.Context, target, name string) error {
	targetP, err := pathspec.Parse(target)
	if err != nil {
		return err
	}
	nameP, err := pathspec.Parse(name)
	if err != nil {
		return err
	}
	if !targetP.HasLeaf || !nameP.HasLeaf || targetP.Leaf != nameP.Leaf {
		return errcode.New(errcode.Perm, "link requires identical leaf names")
	}

	if ok, err := e.meta.FileExists(ctx, targetP.Leaf); err != nil {
		return err
	} else if !ok {
		return errcode.Newf(errcode.NoEnt, "%q", targetP.Leaf)
	}

	union := append(append([]string{}, targetP.Tags...), nameP.Tags...)
	if err := requireTagsExist(ctx, e.meta, union); err != nil {
		return err
	}
	return e.meta.AddFileTags(ctx, targetP.Leaf, union)
}

// Attr is the subset of stat(2) fields the filesystem synthesizes or
// forwards for getattr (§4.F getattr).
type Attr struct {
	IsDir bool
	Mode  os.FileMode
	Size  int64
	Uid   uint32
	Gid   uint32
	Nlink uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// Getattr resolves path and returns its attributes: the Blob Store root's
// stat (presented as a directory) for ROOT/TAG_DIR, the blob's own stat
// for FILE. Nlink is synthesized rather than computed; spec.md §4.F notes
// the true tag-path count is exponential in tag count and need only
// satisfy ≥ 1.
func (e *Engine) Getattr(ctx context.Context, path string) (Attr, error) {
	p, err := pathspec.Parse(path)
	if err != nil {
		return Attr{}, err
	}
	res, err := resolver.Resolve(ctx, e.meta, p)
	if errors.Is(err, errcode.NoEnt) && p.HasLeaf {
		// A tag directory arrives without a trailing slash from the FUSE
		// adapter; retry a leaf that is not a File as the final tag.
		p.Tags, p.HasLeaf = append(append([]string{}, p.Tags...), p.Leaf), false
		res, err = resolver.Resolve(ctx, e.meta, p)
	}
	if err != nil {
		return Attr{}, err
	}

	if res.Kind == resolver.File {
		fi, err := e.blobs.Stat(res.Name)
		if err != nil {
			return Attr{}, errcode.Newf(errcode.IO, "stat %q: %v", res.Name, err)
		}
		return attrFromFileInfo(fi, false, 1), nil
	}

	fi, err := os.Lstat(e.blobs.Root())
	if err != nil {
		return Attr{}, errcode.Newf(errcode.IO, "stat store root: %v", err)
	}
	return attrFromFileInfo(fi, true, 2), nil
}

func attrFromFileInfo(fi os.FileInfo, isDir bool, nlink uint32) Attr {
	a := Attr{
		IsDir: isDir,
		Mode:  fi.Mode(),
		Size:  fi.Size(),
		Nlink: nlink,
		Mtime: fi.ModTime(),
	}
	a.Atime, a.Ctime = a.Mtime, a.Mtime
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		a.Uid = st.Uid
		a.Gid = st.Gid
		a.Atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
		a.Ctime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return a
}

// Chmod forwards to the File's blob, or to the Blob Store root for a tag
// directory (§4.F chmod).
func (e *Engine) Chmod(ctx context.Context, path string, mode os.FileMode) error {
	name, isRoot, err := e.resolveTarget(ctx, path)
	if err != nil {
		return err
	}
	if isRoot {
		return os.Chmod(e.blobs.Root(), mode)
	}
	return e.blobs.Chmod(name, mode)
}

// Chown forwards to the File's blob, or to the Blob Store root for a tag
// directory (§4.F chown).
func (e *Engine) Chown(ctx context.Context, path string, uid, gid int) error {
	name, isRoot, err := e.resolveTarget(ctx, path)
	if err != nil {
		return err
	}
	if isRoot {
		return os.Chown(e.blobs.Root(), uid, gid)
	}
	return e.blobs.Chown(name, uid, gid)
}

// Utimens forwards to the File's blob, or to the Blob Store root for a tag
// directory (§4.F utimens).
func (e *Engine) Utimens(ctx context.Context, path string, atime, mtime time.Time) error {
	name, isRoot, err := e.resolveTarget(ctx, path)
	if err != nil {
		return err
	}
	if isRoot {
		return os.Chtimes(e.blobs.Root(), atime, mtime)
	}
	return e.blobs.Utimens(name, atime, mtime)
}

// Truncate forwards to the File's blob (§4.F truncate). Truncating a tag
// directory makes no sense and is rejected.
func (e *Engine) Truncate(ctx context.Context, path string, size int64) error {
	name, isRoot, err := e.resolveTarget(ctx, path)
	if err != nil {
		return err
	}
	if isRoot {
		return errcode.New(errcode.Perm, "cannot truncate a tag directory")
	}
	return e.blobs.Truncate(name, size)
}

// Access checks the requested access mode against the File's blob, or the
// Blob Store root for a tag directory (§4.F access).
func (e *Engine) Access(ctx context.Context, path string, mode uint32) error {
	name, isRoot, err := e.resolveTarget(ctx, path)
	if err != nil {
		return err
	}
	target := e.blobs.Root()
	if !isRoot {
		target = e.blobs.PathFor(name)
	}
	if err := unix.Access(target, mode); err != nil {
		return errcode.Newf(errcode.Access, "%s: %v", path, err)
	}
	return nil
}

// GetXattr forwards an extended-attribute read to the File's blob, or the
// Blob Store root for a tag directory (§4.F getxattr).
func (e *Engine) GetXattr(ctx context.Context, path, attr string) ([]byte, error) {
	name, isRoot, err := e.resolveTarget(ctx, path)
	if err != nil {
		return nil, err
	}
	target := e.blobs.Root()
	if !isRoot {
		target = e.blobs.PathFor(name)
	}
	buf := make([]byte, 4096)
	n, err := unix.Lgetxattr(target, attr, buf)
	if err != nil {
		return nil, errcode.Newf(errcode.IO, "getxattr %s %s: %v", path, attr, err)
	}
	return buf[:n], nil
}

// Statfs reports filesystem-wide statistics sourced from the Blob Store's
// backing volume (§4.F statfs).
func (e *Engine) Statfs() (*unix.Statfs_t, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(e.blobs.Root(), &st); err != nil {
		return nil, errcode.Newf(errcode.IO, "statfs: %v", err)
	}
	return &st, nil
}

// resolveTarget resolves path and reports the File name to act on, or
// isRoot=true when path is ROOT/TAG_DIR and the caller should act on the
// Blob Store root instead.
func (e *Engine) resolveTarget(ctx context.Context, path string) (name string, isRoot bool, err error) {
	p, err := pathspec.Parse(path)
	if err != nil {
		return "", false, err
	}
	res, err := resolver.Resolve(ctx, e.meta, p)
	if errors.Is(err, errcode.NoEnt) && p.HasLeaf {
		// Same trailing-slash retry as Getattr, for a tag directory named
		// by a bare leaf.
		p.Tags, p.HasLeaf = append(append([]string{}, p.Tags...), p.Leaf), false
		res, err = resolver.Resolve(ctx, e.meta, p)
	}
	if err != nil {
		return "", false, err
	}
	if res.Kind == resolver.File {
		return res.Name, false, nil
	}
	return "", true, nil
}

// ScrubReport names the two recoverable inconsistencies §7 calls out: a
// File record with no backing blob, and a blob with no File record.
type ScrubReport struct {
	MissingBlobs []string
	OrphanBlobs  []string
}

// Scrub reconciles the Metadata Store's File set against the Blob Store's
// directory listing and reports (without modifying) any mismatch, per
// §7's "implementers should detect and log both conditions." It never
// runs implicitly inside a request path.
func (e *Engine) Scrub(ctx context.Context) (ScrubReport, error) {
	fileNames, err := e.meta.AllFileNames(ctx)
	if err != nil {
		return ScrubReport{}, err
	}

	entries, err := os.ReadDir(e.blobs.Root())
	if err != nil {
		return ScrubReport{}, fmt.Errorf("mutator: scrub: read store dir: %w", err)
	}
	blobNames := tagset.New(nil)
	for _, ent := range entries {
		blobNames[ent.Name()] = struct{}{}
	}

	var report ScrubReport
	for _, name := range fileNames.Slice() {
		if !blobNames.Has(name) {
			report.MissingBlobs = append(report.MissingBlobs, name)
		}
	}
	for _, name := range blobNames.Slice() {
		if !fileNames.Has(name) {
			report.OrphanBlobs = append(report.OrphanBlobs, name)
		}
	}
	return report, nil
}
