// Package pathspec implements the Path Grammar: the translation of a POSIX
// path into the (tag-sequence, optional leaf, hidden-marker) triple the
// Resolver, Directory Lister, and Mutation Engine build their queries from.
// It never touches the Metadata Store, since it is pure syntax, grounded the
// same way registry/storage's pathMapper turns a path spec into a string:
// one function, switching once on shape, instead of ad hoc probing
// scattered across callers.
package pathspec

import (
	"strings"

	"github.com/dmorris/tagfs/internal/errcode"
)

// Path is the parsed form of an absolute POSIX path beneath the mount
// root.
type Path struct {
	// Tags is the ordered sequence of directory-tag components, each with
	// any leading "." already stripped for identity lookup.
	Tags []string

	// TagHidden records, per Tags entry, whether that component began with
	// a ".". The grammar carries a hidden marker on every component per
	// §4.A; only the leaf's marker is given meaning downstream (§4.D), but
	// it is preserved here rather than silently discarded.
	TagHidden []bool

	// Leaf is the final path component when the path names a file. It is
	// empty, with HasLeaf false, when the path ends in "/" or is "/"
	// itself.
	Leaf string

	// HasLeaf is true when the path supplied an explicit final component.
	HasLeaf bool

	// LeafHidden is whether Leaf began with a ".".
	LeafHidden bool
}

// Parse splits an absolute POSIX path into its tag sequence and optional
// leaf. "/" and any path that collapses to it (e.g. "//") yield the empty
// Path. Parse rejects relative paths and empty components (e.g. "//a//b")
// outright; it does not reject "." or ".." components, since those are
// valid (if inert) names to carry through the grammar; ValidName is the
// gate mutation operations use to refuse them as a new Tag or File name.
func Parse(p string) (Path, error) {
	if !strings.HasPrefix(p, "/") {
		return Path{}, errcode.Newf(errcode.NoEnt, "path %q is not absolute", p)
	}

	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return Path{}, nil
	}

	trailingSlash := strings.HasSuffix(p, "/")
	parts := strings.Split(trimmed, "/")
	for _, part := range parts {
		if part == "" {
			return Path{}, errcode.Newf(errcode.NoEnt, "path %q contains an empty component", p)
		}
	}

	var out Path
	dirParts := parts
	if !trailingSlash {
		dirParts = parts[:len(parts)-1]
		out.Leaf, out.LeafHidden = splitHidden(parts[len(parts)-1])
		out.HasLeaf = true
	}

	out.Tags = make([]string, 0, len(dirParts))
	out.TagHidden = make([]bool, 0, len(dirParts))
	for _, part := range dirParts {
		name, hidden := splitHidden(part)
		out.Tags = append(out.Tags, name)
		out.TagHidden = append(out.TagHidden, hidden)
	}

	return out, nil
}

// splitHidden strips a single leading "." from component, reporting
// whether it did. "." and ".." pass through untouched: they are relative
// navigation markers, not hidden-prefixed user names.
func splitHidden(component string) (name string, hidden bool) {
	if component == "." || component == ".." {
		return component, false
	}
	if strings.HasPrefix(component, ".") {
		return component[1:], true
	}
	return component, false
}

// ValidName reports whether name is an acceptable persisted Tag or File
// name: non-empty, free of "/", and not "." or "..". Mutation operations
// call this on every new name they mint (a mkdir leaf, a create leaf, a
// rename destination); Parse itself stays permissive so read operations
// never fail on syntax alone.
func ValidName(name string) error {
	if name == "" {
		return errcode.New(errcode.Perm, "name must not be empty")
	}
	if name == "." || name == ".." {
		return errcode.Newf(errcode.Perm, "%q is not a valid name", name)
	}
	if strings.Contains(name, "/") {
		return errcode.Newf(errcode.Perm, "%q must not contain '/'", name)
	}
	return nil
}
