package mutator

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmorris/tagfs/blobstore"
	"github.com/dmorris/tagfs/internal/errcode"
	"github.com/dmorris/tagfs/lister"
	"github.com/dmorris/tagfs/metastore"
	"github.com/dmorris/tagfs/pathspec"
	"github.com/dmorris/tagfs/resolver"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	meta, err := metastore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	blobs, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)

	cfg.MountPoint = t.TempDir()
	return New(meta, blobs, cfg)
}

func listNames(t *testing.T, ctx context.Context, e *Engine, path string) (visible, hidden []string) {
	t.Helper()
	p, err := pathspec.Parse(path)
	require.NoError(t, err)
	res, err := resolver.Resolve(ctx, e.meta, p)
	require.NoError(t, err)
	entries, err := lister.List(ctx, e.meta, res, -1)
	require.NoError(t, err)
	for _, ent := range entries {
		if ent.Hidden {
			hidden = append(hidden, ent.Name)
		} else {
			visible = append(visible, ent.Name)
		}
	}
	return
}

// TestEndToEndScenario reproduces steps 1 through 4 of spec.md §8's
// concrete scenario; steps 5 and 6 are the two tests that follow it.
func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{FlatDelete: true, AnywhereDelete: true})

	require.NoError(t, e.Mkdir(ctx, "/music"))
	require.NoError(t, e.Mkdir(ctx, "/jazz"))
	f, err := e.Create(ctx, "/music/jazz/tune", 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	visible, hidden := listNames(t, ctx, e, "/")
	require.ElementsMatch(t, []string{"music", "jazz"}, visible)
	require.ElementsMatch(t, []string{"tune"}, hidden)

	visible, hidden = listNames(t, ctx, e, "/music/")
	require.ElementsMatch(t, []string{"jazz"}, visible)
	require.ElementsMatch(t, []string{"tune"}, hidden)

	// Step 2: rename unprefixed leaf -> tag-set replace to {music}.
	require.NoError(t, e.Rename(ctx, "/music/jazz/tune", "/music/tune"))

	visible, hidden = listNames(t, ctx, e, "/music/jazz/")
	require.Empty(t, visible)
	require.Empty(t, hidden)

	visible, hidden = listNames(t, ctx, e, "/music/")
	require.ElementsMatch(t, []string{"tune"}, visible)
	require.ElementsMatch(t, []string{"jazz"}, hidden)

	// Step 3: rename hidden leaf -> add-only union with {jazz}.
	require.NoError(t, e.Rename(ctx, "/music/.tune", "/jazz/tune"))

	visible, hidden = listNames(t, ctx, e, "/jazz/")
	require.ElementsMatch(t, []string{"music"}, visible)
	require.ElementsMatch(t, []string{"tune"}, hidden)

	// Step 4: rmdir on a non-empty tag fails; flat_delete unlink strips a
	// tag without removing the file; rmdir then succeeds.
	err = e.Rmdir(ctx, "/jazz")
	require.Error(t, err)
	require.True(t, errors.Is(err, errcode.NotEmpty))

	require.NoError(t, e.Unlink(ctx, "/jazz/tune"))
	require.NoError(t, e.Rmdir(ctx, "/jazz"))

	tags, err := e.meta.FileTags(ctx, "tune")
	require.NoError(t, err)
	require.True(t, tags.Has("music"))
}

func TestCreateThenRenameCollisionIsEexist(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})

	fa, err := e.Create(ctx, "/a", 0o644)
	require.NoError(t, err)
	require.NoError(t, fa.Close())
	fb, err := e.Create(ctx, "/b", 0o644)
	require.NoError(t, err)
	require.NoError(t, fb.Close())

	err = e.Rename(ctx, "/a", "/b")
	require.Error(t, err)
	require.True(t, errors.Is(err, errcode.Exist))
}

func TestDeletemeSentinelDeletesTag(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})

	require.NoError(t, e.Mkdir(ctx, "/x"))
	require.NoError(t, e.Rename(ctx, "/x/", "/..deleteme"))

	ok, err := e.meta.TagExists(ctx, "x")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMkdirRmdirRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})

	require.NoError(t, e.Mkdir(ctx, "/music"))
	require.NoError(t, e.Rmdir(ctx, "/music"))

	ok, err := e.meta.TagExists(ctx, "music")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLinkIsIdempotentWhenTagsAlreadyPresent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})

	require.NoError(t, e.Mkdir(ctx, "/music"))
	f, err := e.Create(ctx, "/music/tune", 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, e.Link(ctx, "/music/tune", "/music/tune"))

	tags, err := e.meta.FileTags(ctx, "tune")
	require.NoError(t, err)
	require.Equal(t, 1, len(tags))
}

func TestLinkRejectsMismatchedLeaf(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})

	require.NoError(t, e.Mkdir(ctx, "/music"))
	f, err := e.Create(ctx, "/music/tune", 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = e.Link(ctx, "/music/tune", "/music/song")
	require.Error(t, err)
	require.True(t, errors.Is(err, errcode.Perm))
}

func TestFlatDeleteRootOnlyByDefault(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{FlatDelete: true})

	require.NoError(t, e.Mkdir(ctx, "/a"))
	require.NoError(t, e.Mkdir(ctx, "/b"))
	f, err := e.Create(ctx, "/a/b/tune", 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = e.Unlink(ctx, "/a/b/tune")
	require.Error(t, err)
	require.True(t, errors.Is(err, errcode.Perm))
}

func TestScrubDetectsOrphanAndMissingBlobs(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})

	require.NoError(t, e.Mkdir(ctx, "/music"))
	f, err := e.Create(ctx, "/music/tune", 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// simulate an orphan blob with no metadata row
	orphan, err := e.blobs.Create("ghost")
	require.NoError(t, err)
	require.NoError(t, orphan.Close())

	report, err := e.Scrub(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ghost"}, report.OrphanBlobs)
	require.Empty(t, report.MissingBlobs)

	// simulate a File row whose blob has gone missing
	require.NoError(t, e.blobs.Unlink("tune"))

	report, err = e.Scrub(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ghost"}, report.OrphanBlobs)
	require.ElementsMatch(t, []string{"tune"}, report.MissingBlobs)
}

func TestGetattrFileReflectsBlobMode(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})

	require.NoError(t, e.Mkdir(ctx, "/music"))
	f, err := e.Create(ctx, "/music/tune", 0o600)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	attr, err := e.Getattr(ctx, "/music/tune")
	require.NoError(t, err)
	require.False(t, attr.IsDir)
	require.Equal(t, os.FileMode(0o600), attr.Mode.Perm())
	require.Equal(t, uint32(1), attr.Nlink)
}

func TestGetattrTagDirIsSynthesizedDirectory(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, Config{})

	require.NoError(t, e.Mkdir(ctx, "/music"))

	attr, err := e.Getattr(ctx, "/music/")
	require.NoError(t, err)
	require.True(t, attr.IsDir)
	require.Equal(t, uint32(2), attr.Nlink)
}
