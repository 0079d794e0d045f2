package pathspec

import (
	"errors"
	"testing"

	"github.com/dmorris/tagfs/internal/errcode"
)

func TestParseRoot(t *testing.T) {
	for _, p := range []string{"/", "//"} {
		got, err := Parse(p)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", p, err)
		}
		if len(got.Tags) != 0 || got.HasLeaf {
			t.Fatalf("Parse(%q) = %+v, want empty root path", p, got)
		}
	}
}

func TestParseTagDirTrailingSlash(t *testing.T) {
	got, err := Parse("/a/b/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.HasLeaf {
		t.Fatal("expected no leaf for a trailing-slash path")
	}
	want := []string{"a", "b"}
	for i, tag := range want {
		if got.Tags[i] != tag {
			t.Fatalf("Tags = %v, want %v", got.Tags, want)
		}
	}
}

func TestParseFileLeaf(t *testing.T) {
	got, err := Parse("/a/b/c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.HasLeaf || got.Leaf != "c" {
		t.Fatalf("Leaf = %q, HasLeaf = %v, want c/true", got.Leaf, got.HasLeaf)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "a" || got.Tags[1] != "b" {
		t.Fatalf("Tags = %v, want [a b]", got.Tags)
	}
}

func TestParseHiddenLeaf(t *testing.T) {
	got, err := Parse("/music/.tune")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Leaf != "tune" || !got.LeafHidden {
		t.Fatalf("Leaf = %q, LeafHidden = %v, want tune/true", got.Leaf, got.LeafHidden)
	}
}

func TestParseRejectsRelativePath(t *testing.T) {
	_, err := Parse("music/jazz")
	if !errors.Is(err, errcode.NoEnt) {
		t.Fatalf("expected NoEnt, got %v", err)
	}
}

func TestParseRejectsEmptyComponent(t *testing.T) {
	_, err := Parse("/music//jazz")
	if !errors.Is(err, errcode.NoEnt) {
		t.Fatalf("expected NoEnt, got %v", err)
	}
}

func TestParseDeletemeSentinel(t *testing.T) {
	got, err := Parse("/..deleteme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The sentinel is matched on the raw string by the Mutation Engine
	// before parsing; once parsed it is just an ordinary (if unreachable)
	// hidden leaf name.
	if got.Leaf != ".deleteme" || !got.LeafHidden {
		t.Fatalf("Leaf = %q, LeafHidden = %v", got.Leaf, got.LeafHidden)
	}
}

func TestValidName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"tune", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
	}
	for _, c := range cases {
		err := ValidName(c.name)
		if (err == nil) != c.ok {
			t.Errorf("ValidName(%q) error = %v, want ok=%v", c.name, err, c.ok)
		}
	}
}
