package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/dmorris/tagfs/internal/errcode"
	"github.com/dmorris/tagfs/metastore"
	"github.com/dmorris/tagfs/pathspec"
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

func TestResolveRoot(t *testing.T) {
	meta := newTestMeta(t)
	ctx := context.Background()

	p, _ := pathspec.Parse("/")
	got, err := Resolve(ctx, meta, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != Root {
		t.Fatalf("Kind = %v, want Root", got.Kind)
	}
}

func TestResolveTagDir(t *testing.T) {
	meta := newTestMeta(t)
	ctx := context.Background()
	if err := meta.InsertTag(ctx, "music"); err != nil {
		t.Fatal(err)
	}

	p, _ := pathspec.Parse("/music/")
	got, err := Resolve(ctx, meta, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != TagDir {
		t.Fatalf("Kind = %v, want TagDir", got.Kind)
	}
}

func TestResolveDeadTagIsNoEnt(t *testing.T) {
	meta := newTestMeta(t)
	ctx := context.Background()

	p, _ := pathspec.Parse("/ghost/")
	_, err := Resolve(ctx, meta, p)
	if !errors.Is(err, errcode.NoEnt) {
		t.Fatalf("expected NoEnt, got %v", err)
	}
}

func TestResolveFileExactMatch(t *testing.T) {
	meta := newTestMeta(t)
	ctx := context.Background()
	if err := meta.InsertTag(ctx, "music"); err != nil {
		t.Fatal(err)
	}
	if err := meta.InsertTag(ctx, "jazz"); err != nil {
		t.Fatal(err)
	}
	if err := meta.InsertFile(ctx, "tune", []string{"music", "jazz"}); err != nil {
		t.Fatal(err)
	}

	p, _ := pathspec.Parse("/music/jazz/tune")
	got, err := Resolve(ctx, meta, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != File || got.Name != "tune" || got.Hidden {
		t.Fatalf("got %+v", got)
	}
}

func TestResolveFilePartialPathIsNoEntUnlessHidden(t *testing.T) {
	meta := newTestMeta(t)
	ctx := context.Background()
	if err := meta.InsertTag(ctx, "music"); err != nil {
		t.Fatal(err)
	}
	if err := meta.InsertTag(ctx, "jazz"); err != nil {
		t.Fatal(err)
	}
	if err := meta.InsertFile(ctx, "tune", []string{"music", "jazz"}); err != nil {
		t.Fatal(err)
	}

	p, _ := pathspec.Parse("/music/tune")
	_, err := Resolve(ctx, meta, p)
	if !errors.Is(err, errcode.NoEnt) {
		t.Fatalf("expected NoEnt for unprefixed partial path, got %v", err)
	}

	hidden, _ := pathspec.Parse("/music/.tune")
	got, err := Resolve(ctx, meta, hidden)
	if err != nil {
		t.Fatalf("unexpected error for hidden partial path: %v", err)
	}
	if got.Kind != File || !got.Hidden {
		t.Fatalf("got %+v, want hidden File", got)
	}
}

func TestResolveUnknownFileIsNoEnt(t *testing.T) {
	meta := newTestMeta(t)
	ctx := context.Background()

	p, _ := pathspec.Parse("/ghost")
	_, err := Resolve(ctx, meta, p)
	if !errors.Is(err, errcode.NoEnt) {
		t.Fatalf("expected NoEnt, got %v", err)
	}
}
