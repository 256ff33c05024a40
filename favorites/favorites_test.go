package favorites

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/cache"
	"github.com/brettbedarf/webmirror/filesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCache is an in-memory ContentCache that can be told to fail
type memCache struct {
	mu         sync.Mutex
	entries    map[string][]byte
	failPut    bool
	failDelete bool
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Put(key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPut {
		return fmt.Errorf("%w: disk full", webmirror.ErrCacheWriteFailed)
	}
	c.entries[key] = append([]byte(nil), data...)
	return nil
}

func (c *memCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok
}

func (c *memCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failDelete {
		return fmt.Errorf("%w: read-only", webmirror.ErrCacheDeleteFailed)
	}
	delete(c.entries, key)
	return nil
}

func (c *memCache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

type fixture struct {
	fs    *filesystem.FileSystem
	cache *memCache
	ctrl  *Controller
	scope *filesystem.Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs, err := filesystem.NewFS(context.Background(), nil)
	require.NoError(t, err)
	f := &fixture{fs: fs, cache: newMemCache(), scope: filesystem.NewScope()}
	f.ctrl = New(fs, f.cache, f.scope)
	return f
}

func (f *fixture) insert(t *testing.T, name string, kind webmirror.Kind) webmirror.Node {
	t.Helper()
	n, err := f.fs.Insert(context.Background(), f.fs.Root().ID, filesystem.Attrs{Name: name, Kind: kind})
	require.NoError(t, err)
	return n
}

func (f *fixture) get(t *testing.T, id string) webmirror.Node {
	t.Helper()
	n, ok := f.fs.Get(id)
	require.True(t, ok)
	return n
}

func TestToggle_FavoriteThenUnfavorite(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.insert(t, "notes.txt", webmirror.KindText)
	ctx := context.Background()

	on, err := f.ctrl.Toggle(ctx, n.ID, []byte("hello"))
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, f.get(t, n.ID).IsFavorite)
	data, ok := f.ctrl.Content(n.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)

	on, err = f.ctrl.Toggle(ctx, n.ID, nil)
	require.NoError(t, err)
	assert.False(t, on)
	assert.False(t, f.get(t, n.ID).IsFavorite)
	assert.False(t, f.cache.Has(n.ID))
	_, ok = f.ctrl.Content(n.ID)
	assert.False(t, ok)
}

func TestToggle_EmptyContentIsAllowed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.insert(t, "empty.txt", webmirror.KindText)

	on, err := f.ctrl.Toggle(context.Background(), n.ID, []byte{})

	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, f.cache.Has(n.ID))
}

func TestToggle_Ineligible(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, kind := range []webmirror.Kind{
		webmirror.KindUnset, webmirror.KindUnknown, webmirror.KindDirectory, webmirror.KindAudio, webmirror.KindVideo,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			n := f.insert(t, "item-"+kind.String(), kind)
			_, err := f.ctrl.Toggle(context.Background(), n.ID, []byte("x"))
			assert.ErrorIs(t, err, webmirror.ErrIneligible)
			assert.False(t, f.cache.Has(n.ID))
		})
	}

	_, err := f.ctrl.Toggle(context.Background(), f.fs.Root().ID, []byte("x"))
	assert.ErrorIs(t, err, webmirror.ErrIneligible)
}

func TestToggle_MissingContentOrNode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.insert(t, "pic.png", webmirror.KindStaticImage)

	_, err := f.ctrl.Toggle(context.Background(), n.ID, nil)
	assert.ErrorIs(t, err, webmirror.ErrMissingContent)
	assert.False(t, f.get(t, n.ID).IsFavorite)

	_, err = f.ctrl.Toggle(context.Background(), "missing", []byte("x"))
	assert.ErrorIs(t, err, webmirror.ErrNodeNotFound)
}

func TestToggle_FailedWriteLeavesUnfavorited(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.insert(t, "cat.gif", webmirror.KindAnimatedImage)
	f.cache.failPut = true

	on, err := f.ctrl.Toggle(context.Background(), n.ID, []byte("gif"))

	require.ErrorIs(t, err, webmirror.ErrCacheWriteFailed)
	assert.False(t, on)
	assert.False(t, f.get(t, n.ID).IsFavorite)
	assert.False(t, f.cache.Has(n.ID))
}

func TestToggle_FailedDeleteLeavesFavorited(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.insert(t, "cat.gif", webmirror.KindAnimatedImage)
	_, err := f.ctrl.Toggle(context.Background(), n.ID, []byte("gif"))
	require.NoError(t, err)
	f.cache.failDelete = true

	on, err := f.ctrl.Toggle(context.Background(), n.ID, nil)

	require.ErrorIs(t, err, webmirror.ErrCacheDeleteFailed)
	assert.True(t, on)
	assert.True(t, f.get(t, n.ID).IsFavorite)
	assert.True(t, f.cache.Has(n.ID))
}

func TestToggle_WaitsForDirectoryScope(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.insert(t, "a.txt", webmirror.KindText)

	release, ok := f.scope.TryAcquire(n.ParentID)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.ctrl.Toggle(ctx, n.ID, []byte("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.cache.Has(n.ID))

	release()
	on, err := f.ctrl.Toggle(context.Background(), n.ID, []byte("x"))
	require.NoError(t, err)
	assert.True(t, on)
}

func TestToggle_NodeReplacedWhileWaiting(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	n := f.insert(t, "a.txt", webmirror.KindText)

	release, ok := f.scope.TryAcquire(n.ParentID)
	require.True(t, ok)

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Toggle(context.Background(), n.ID, []byte("x"))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	_, _, err := f.fs.Replace(context.Background(), n.ID, filesystem.Attrs{Name: "a.txt", Kind: webmirror.KindText})
	require.NoError(t, err)
	release()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, webmirror.ErrNodeNotFound)
	case <-time.After(time.Second):
		t.Fatal("toggle never returned")
	}
	assert.False(t, f.cache.Has(n.ID))
}

func TestPurge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := f.insert(t, "a.txt", webmirror.KindText)
	b := f.insert(t, "b.txt", webmirror.KindText)
	require.NoError(t, f.cache.Put(a.ID, []byte("a")))
	require.NoError(t, f.cache.Put(b.ID, []byte("b")))

	f.ctrl.Purge([]webmirror.Node{a})

	assert.False(t, f.cache.Has(a.ID))
	assert.True(t, f.cache.Has(b.ID))

	f.cache.failDelete = true
	assert.NotPanics(t, func() { f.ctrl.Purge([]webmirror.Node{b}) })
}

func TestRepair(t *testing.T) {
	t.Parallel()
	fs, err := filesystem.NewFS(context.Background(), nil)
	require.NoError(t, err)
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	ctrl := New(fs, c, nil)
	ctx := context.Background()

	kept, err := fs.Insert(ctx, fs.Root().ID, filesystem.Attrs{Name: "kept.txt", Kind: webmirror.KindText})
	require.NoError(t, err)
	_, err = ctrl.Toggle(ctx, kept.ID, []byte("kept"))
	require.NoError(t, err)

	lost, err := fs.Insert(ctx, fs.Root().ID, filesystem.Attrs{Name: "lost.txt", Kind: webmirror.KindText, IsFavorite: true})
	require.NoError(t, err)
	require.NoError(t, c.Put("orphan-id", []byte("stale")))

	report, err := ctrl.Repair(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{lost.ID}, report.Unflagged)
	assert.Equal(t, []string{"orphan-id"}, report.Orphans)
	n, _ := fs.Get(lost.ID)
	assert.False(t, n.IsFavorite)
	assert.True(t, c.Has(kept.ID))
	assert.False(t, c.Has("orphan-id"))

	report, err = ctrl.Repair(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Unflagged)
	assert.Empty(t, report.Orphans)
}

func TestRepair_WithoutKeyLister(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.cache.Put("orphan", []byte("x")))

	report, err := f.ctrl.Repair(context.Background())

	require.NoError(t, err)
	assert.Empty(t, report.Orphans)
	assert.True(t, f.cache.Has("orphan"))
}
