package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/filesystem"
	"github.com/brettbedarf/webmirror/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "nested", "mirror.db")
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), testDBPath(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func rootRecord() webmirror.Node {
	return webmirror.Node{ID: "root", Name: "/", Kind: webmirror.KindDirectory, IsRoot: true}
}

func TestOpen_CreatesEmptyDatabase(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	nodes, err := db.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.FileExists(t, db.Path())
}

func TestDB_ApplyLoadRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	mtime := time.Unix(1469711432, 123456789)

	leaf := webmirror.Node{
		ID:         "leaf",
		Name:       "cat.gif",
		Path:       "/cat.gif",
		Kind:       webmirror.KindAnimatedImage,
		Size:       util.Pointer[int64](512),
		ModifiedAt: &mtime,
		IsFavorite: true,
		ParentID:   "root",
	}
	stub := webmirror.Node{ID: "stub", Name: "pending", Path: "/pending", ParentID: "root"}

	require.NoError(t, db.Apply(ctx, filesystem.Batch{Upserts: []webmirror.Node{rootRecord(), leaf, stub}}))

	nodes, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	byID := make(map[string]webmirror.Node)
	for _, n := range nodes {
		byID[n.ID] = n
	}
	assert.True(t, byID["root"].IsRoot)
	assert.Empty(t, byID["root"].ParentID)

	got := byID["leaf"]
	assert.Equal(t, leaf.Name, got.Name)
	assert.Equal(t, leaf.Kind, got.Kind)
	assert.Equal(t, int64(512), *got.Size)
	assert.True(t, got.IsFavorite)
	require.NotNil(t, got.ModifiedAt)
	assert.True(t, mtime.Equal(*got.ModifiedAt), "nanosecond precision survives")

	assert.Equal(t, webmirror.KindUnset, byID["stub"].Kind)
	assert.Nil(t, byID["stub"].Size)
	assert.Nil(t, byID["stub"].ModifiedAt)
}

func TestDB_DeleteCascades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.Apply(ctx, filesystem.Batch{Upserts: []webmirror.Node{
		rootRecord(),
		{ID: "dir", Name: "dir", Kind: webmirror.KindDirectory, ParentID: "root"},
		{ID: "child", Name: "child", ParentID: "dir"},
	}}))

	require.NoError(t, db.Apply(ctx, filesystem.Batch{Deletes: []string{"dir"}}))

	nodes, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "root", nodes[0].ID)
}

func TestDB_ApplyIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Apply(ctx, filesystem.Batch{Upserts: []webmirror.Node{rootRecord()}}))

	err := db.Apply(ctx, filesystem.Batch{Upserts: []webmirror.Node{
		{ID: "a", Name: "dup", ParentID: "root"},
		{ID: "b", Name: "dup", ParentID: "root"},
	}})
	require.Error(t, err)

	nodes, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 1, "a failed batch must not leave partial rows")
}

func TestDB_SingleRootEnforced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Apply(ctx, filesystem.Batch{Upserts: []webmirror.Node{rootRecord()}}))

	second := rootRecord()
	second.ID = "root2"
	assert.Error(t, db.Apply(ctx, filesystem.Batch{Upserts: []webmirror.Node{second}}))
}

func TestDB_ReplaceSameNameInOneBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.Apply(ctx, filesystem.Batch{Upserts: []webmirror.Node{
		rootRecord(),
		{ID: "old", Name: "file", ParentID: "root"},
	}}))

	require.NoError(t, db.Apply(ctx, filesystem.Batch{
		Deletes: []string{"old"},
		Upserts: []webmirror.Node{{ID: "new", Name: "file", Kind: webmirror.KindText, ParentID: "root"}},
	}))

	nodes, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
}

func TestDB_BacksFileSystem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := testDBPath(t)

	db, err := Open(ctx, path)
	require.NoError(t, err)
	fs, err := filesystem.NewFS(ctx, db)
	require.NoError(t, err)
	root := fs.Root()
	dir, err := fs.Insert(ctx, root.ID, filesystem.Attrs{Name: "docs", Kind: webmirror.KindDirectory})
	require.NoError(t, err)
	_, err = fs.InsertMany(ctx, dir.ID, []filesystem.Attrs{filesystem.StubAttrs("a"), filesystem.StubAttrs("b")})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	reopened, err := filesystem.NewFS(ctx, db)
	require.NoError(t, err)

	assert.Equal(t, root.ID, reopened.Root().ID)
	children, err := reopened.Children(dir.ID, "")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].Name)
	assert.Equal(t, "/docs/a", children[0].Path)
}
