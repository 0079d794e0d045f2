package lister

import (
	"context"
	"sort"
	"testing"

	"github.com/dmorris/tagfs/metastore"
	"github.com/dmorris/tagfs/pathspec"
	"github.com/dmorris/tagfs/resolver"
)

func newTestMeta(t *testing.T) *metastore.Store {
	t.Helper()
	s, err := metastore.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func names(entries []Entry, hidden bool) []string {
	var out []string
	for _, e := range entries {
		if e.Hidden == hidden {
			out = append(out, e.Name)
		}
	}
	sort.Strings(out)
	return out
}

func resolveDir(t *testing.T, ctx context.Context, meta *metastore.Store, path string) resolver.Result {
	t.Helper()
	p, err := pathspec.Parse(path)
	if err != nil {
		t.Fatal(err)
	}
	res, err := resolver.Resolve(ctx, meta, p)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

// TestScenarioOne reproduces spec.md §8 scenario 1: mkdir("/music");
// mkdir("/jazz"); create("/music/jazz/tune").
func TestScenarioOne(t *testing.T) {
	ctx := context.Background()
	meta := newTestMeta(t)

	if err := meta.InsertTag(ctx, "music"); err != nil {
		t.Fatal(err)
	}
	if err := meta.InsertTag(ctx, "jazz"); err != nil {
		t.Fatal(err)
	}
	if err := meta.InsertFile(ctx, "tune", []string{"music", "jazz"}); err != nil {
		t.Fatal(err)
	}

	root := resolveDir(t, ctx, meta, "/")
	entries, err := List(ctx, meta, root, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got := names(entries, false); len(got) != 2 || got[0] != "jazz" || got[1] != "music" {
		t.Fatalf("root unhidden = %v, want [jazz music]", got)
	}
	if got := names(entries, true); len(got) != 1 || got[0] != "tune" {
		t.Fatalf("root hidden = %v, want [tune]", got)
	}

	musicDir := resolveDir(t, ctx, meta, "/music/")
	entries, err = List(ctx, meta, musicDir, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got := names(entries, false); len(got) != 1 || got[0] != "jazz" {
		t.Fatalf("/music unhidden = %v, want [jazz]", got)
	}
	if got := names(entries, true); len(got) != 1 || got[0] != "tune" {
		t.Fatalf("/music hidden = %v, want [tune]", got)
	}

	jazzDir := resolveDir(t, ctx, meta, "/music/jazz/")
	entries, err = List(ctx, meta, jazzDir, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got := names(entries, false); len(got) != 1 || got[0] != "tune" {
		t.Fatalf("/music/jazz unhidden = %v, want [tune]", got)
	}
}

func TestDeadTagFailsResolveBeforeListing(t *testing.T) {
	ctx := context.Background()
	meta := newTestMeta(t)

	p, _ := pathspec.Parse("/ghost/")
	_, err := resolver.Resolve(ctx, meta, p)
	if err == nil {
		t.Fatal("expected resolve to fail for a dead tag before listing is attempted")
	}
}

func TestHiddenLimitCapsRootHiddenEntries(t *testing.T) {
	ctx := context.Background()
	meta := newTestMeta(t)

	if err := meta.InsertTag(ctx, "music"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if err := meta.InsertFile(ctx, name, []string{"music"}); err != nil {
			t.Fatal(err)
		}
	}

	root := resolveDir(t, ctx, meta, "/")
	entries, err := List(ctx, meta, root, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(names(entries, true)); got != 2 {
		t.Fatalf("hidden entries = %d, want 2", got)
	}
}
