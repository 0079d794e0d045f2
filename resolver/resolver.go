// Package resolver implements the Resolver (§4.D): the single source of
// "does this path exist, and what does it name" for the filesystem. It
// centralizes the dynamic dispatch spec.md §9 calls out: deciding once,
// per call, whether a path is a directory or a file, rather than probing
// existence repeatedly from scattered call sites the way the original
// source did.
package resolver

import (
	"context"

	"github.com/dmorris/tagfs/internal/errcode"
	"github.com/dmorris/tagfs/metastore"
	"github.com/dmorris/tagfs/pathspec"
	"github.com/dmorris/tagfs/tagset"
)

// Kind classifies a resolved path. There is deliberately no "nonexistent"
// member: a path that does not resolve is reported as an error from
// Resolve instead (see DESIGN.md's "Resolver's NONEXISTENT case").
type Kind int

const (
	// Root is the mount root: empty tag sequence, no leaf.
	Root Kind = iota
	// TagDir is a non-empty tag sequence with every tag existing, no leaf.
	TagDir
	// File is a leaf naming an existing File whose tag set is consistent
	// with the directory-tag-sequence it was reached through.
	File
)

// Result is the outcome of resolving one path.
type Result struct {
	Kind Kind

	// Tags is the directory-tag-sequence the path was resolved through
	// (with any hidden markers already stripped), valid for TagDir and
	// File.
	Tags []string

	// Name is the File's name, valid only when Kind == File.
	Name string

	// FileTags is the File's true, persisted tag set, valid only when
	// Kind == File.
	FileTags tagset.Set

	// Hidden is whether the leaf was hidden-prefixed in the path, valid
	// only when Kind == File.
	Hidden bool
}

// Resolve classifies p against the Metadata Store. It returns an
// errcode.NoEnt-class error for every path that does not resolve: a dead
// tag anywhere in the sequence, or a leaf that does not name an existing
// File consistent with its directory-tag-sequence. A leaf is only ever
// resolved as a File; a leaf naming a Tag also yields NoEnt, and resolves
// as a TagDir only when passed in trailing-slash form.
func Resolve(ctx context.Context, meta *metastore.Store, p pathspec.Path) (Result, error) {
	if !p.HasLeaf {
		if err := requireTagsExist(ctx, meta, p.Tags); err != nil {
			return Result{}, err
		}
		if len(p.Tags) == 0 {
			return Result{Kind: Root}, nil
		}
		return Result{Kind: TagDir, Tags: p.Tags}, nil
	}

	// A leaf is present. It might name a File, or (if the path would
	// otherwise be a valid tag directory) the leaf might actually be
	// intended as the final tag, e.g. a trailing lookup during readdir
	// dispatch. The Resolver's contract per §4.D is leaf-as-file only;
	// callers that need to look up a tag-shaped leaf do so by constructing
	// a Path with HasLeaf=false (a trailing slash) instead.
	if err := requireTagsExist(ctx, meta, p.Tags); err != nil {
		return Result{}, err
	}

	fileExists, err := meta.FileExists(ctx, p.Leaf)
	if err != nil {
		return Result{}, err
	}
	if !fileExists {
		return Result{}, errcode.Newf(errcode.NoEnt, "file %q", p.Leaf)
	}

	trueTags, err := meta.FileTags(ctx, p.Leaf)
	if err != nil {
		return Result{}, err
	}

	dirTags := tagset.New(p.Tags)
	consistent := dirTags.Equal(trueTags)
	if p.LeafHidden {
		consistent = dirTags.SubsetOf(trueTags)
	}
	if !consistent {
		return Result{}, errcode.Newf(errcode.NoEnt,
			"file %q inconsistent with path tags %v", p.Leaf, p.Tags)
	}

	return Result{
		Kind:     File,
		Tags:     p.Tags,
		Name:     p.Leaf,
		FileTags: trueTags,
		Hidden:   p.LeafHidden,
	}, nil
}

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
