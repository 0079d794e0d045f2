// Package lister implements the Directory Lister (§4.E): the
// query-with-remainder-hiding algorithm that decides what readdir shows,
// hides behind a dot, or omits entirely.
package lister

import (
	"context"
	"sort"

	"github.com/dmorris/tagfs/internal/errcode"
	"github.com/dmorris/tagfs/metastore"
	"github.com/dmorris/tagfs/resolver"
	"github.com/dmorris/tagfs/tagset"
)

// Entry is one readdir result, before `.`/`..` are prepended by the
// caller's protocol adapter.
type Entry struct {
	Name   string
	Hidden bool
	IsDir  bool
}

// DotEntries are the "." and ".." entries every listing starts with,
// exported so fusefs doesn't need to hand-spell them.
var DotEntries = []Entry{
	{Name: ".", IsDir: true},
	{Name: "..", IsDir: true},
}

// List implements readdir for a resolved Root or TagDir result.
// hiddenLimit caps the number of hidden (dot-prefixed) entries returned at
// the root; -1 disables the cap. It has no effect inside a tag directory,
// since spec.md §4.E only mentions the cap at enormous roots.
func List(ctx context.Context, meta *metastore.Store, res resolver.Result, hiddenLimit int) ([]Entry, error) {
	switch res.Kind {
	case resolver.Root:
		return listRoot(ctx, meta, hiddenLimit)
	case resolver.TagDir:
		return listTagDir(ctx, meta, res.Tags)
	default:
		return nil, errcode.New(errcode.NoEnt, "readdir called on a non-directory result")
	}
}

func listRoot(ctx context.Context, meta *metastore.Store, hiddenLimit int) ([]Entry, error) {
	tagNames, err := meta.AllTagNames(ctx)
	if err != nil {
		return nil, err
	}

	orphans, err := meta.OrphanFiles(ctx)
	if err != nil {
		return nil, err
	}

	tagsByFile, err := taggedFileNames(ctx, meta)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, name := range tagNames.Slice() {
		entries = append(entries, Entry{Name: name, IsDir: true})
	}

	hiddenCount := 0
	for _, name := range orphans.Slice() {
		entries = append(entries, Entry{Name: name})
	}
	for _, name := range tagsByFile {
		if hiddenLimit >= 0 && hiddenCount >= hiddenLimit {
			break
		}
		entries = append(entries, Entry{Name: name, Hidden: true})
		hiddenCount++
	}

	return entries, nil
}

// taggedFileNames returns the names of every File with at least one tag,
// sorted, for the root listing's hidden-entry half.
func taggedFileNames(ctx context.Context, meta *metastore.Store) ([]string, error) {
	all, err := meta.AllTagNames(ctx)
	if err != nil {
		return nil, err
	}
	seen := tagset.New(nil)
	for _, tag := range all.Slice() {
		members, err := meta.FilesWithAllTags(ctx, []string{tag})
		if err != nil {
			return nil, err
		}
		seen = seen.Union(members)
	}
	return seen.Slice(), nil
}

func listTagDir(ctx context.Context, meta *metastore.Store, tags []string) ([]Entry, error) {
	for _, t := range tags {
		ok, err := meta.TagExists(ctx, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errcode.Newf(errcode.NoEnt, "tag %q", t)
		}
	}

	want := tagset.New(tags)
	matches, err := meta.FilesWithAllTags(ctx, tags)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, name := range matches.Slice() {
		fileTags, err := meta.FileTags(ctx, name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: name, Hidden: !fileTags.Equal(want)})
	}

	matchingTags, err := meta.TagsIntersectingFiles(ctx, matches.Slice())
	if err != nil {
		return nil, err
	}

	allTags, err := meta.AllTagNames(ctx)
	if err != nil {
		return nil, err
	}
	var otherTagNames []string
	for name := range allTags {
		if !want.Has(name) {
			otherTagNames = append(otherTagNames, name)
		}
	}
	sort.Strings(otherTagNames)

	for _, name := range otherTagNames {
		entries = append(entries, Entry{Name: name, Hidden: !matchingTags.Has(name), IsDir: true})
	}

	return entries, nil
}
