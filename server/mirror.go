package server

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/cache"
	"github.com/brettbedarf/webmirror/config"
	"github.com/brettbedarf/webmirror/favorites"
	"github.com/brettbedarf/webmirror/filesystem"
	wfuse "github.com/brettbedarf/webmirror/fuse"
	"github.com/brettbedarf/webmirror/internal/util"
	"github.com/brettbedarf/webmirror/reconcile"
	"github.com/brettbedarf/webmirror/storage"
	"github.com/brettbedarf/webmirror/view"
)

// Mirror wires the node store, its database, the content cache, the remote,
// the reconciler and the favorite controller behind one facade.
type Mirror struct {
	*filesystem.FileSystem
	cfg        *config.Config
	db         *storage.DB
	cache      *cache.Cache
	remote     webmirror.RemoteStore
	scope      *filesystem.Scope
	reconciler *reconcile.Reconciler
	favorites  *favorites.Controller

	mu     sync.Mutex
	server *wfuse.Server
}

// New opens the node database and content cache named by cfg and repairs any
// favorite left inconsistent by a previous run.
func New(ctx context.Context, cfg *config.Config, remote webmirror.RemoteStore) (*Mirror, error) {
	logger := util.GetLogger("Mirror.New")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := storage.Open(ctx, cfg.DBPath())
	if err != nil {
		return nil, err
	}
	fs, err := filesystem.NewFS(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	scope := filesystem.NewScope()
	fav := favorites.New(fs, c, scope)
	m := &Mirror{
		FileSystem: fs,
		cfg:        cfg,
		db:         db,
		cache:      c,
		remote:     remote,
		scope:      scope,
		reconciler: reconcile.New(fs, remote, scope, fav, reconcile.OptionsFromConfig(cfg)),
		favorites:  fav,
	}

	if _, err := fav.Repair(ctx); err != nil {
		logger.Warn().Err(err).Msg("Favorite repair failed")
	}
	logger.Info().Str("db", db.Path()).Str("cache", c.Dir()).Int("nodes", fs.Len()).Msg("Mirror opened")
	return m, nil
}

// Config returns the configuration the mirror was opened with
func (m *Mirror) Config() *config.Config {
	return m.cfg
}

// Close unmounts if needed and closes the node database
func (m *Mirror) Close() error {
	return errors.Join(m.Unmount(), m.db.Close())
}

// Resolve walks a slash separated path from the root by name. With
// syncMissing, a directory whose child is missing is synced once before
// giving up.
func (m *Mirror) Resolve(ctx context.Context, p string, syncMissing bool) (webmirror.Node, error) {
	cur := m.Root()
	clean := path.Clean("/" + p)
	if clean == "/" {
		return cur, nil
	}

	for _, name := range strings.Split(strings.TrimPrefix(clean, "/"), "/") {
		child, ok := m.Child(cur.ID, name)
		if !ok && syncMissing && cur.Kind.IsDir() {
			if _, err := m.Sync(ctx, cur.ID); err != nil {
				return webmirror.Node{}, err
			}
			child, ok = m.Child(cur.ID, name)
		}
		if !ok {
			return webmirror.Node{}, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, clean)
		}
		cur = child
	}
	return cur, nil
}

// Sync reconciles the directory nodeID with the remote
func (m *Mirror) Sync(ctx context.Context, nodeID string) (reconcile.Result, error) {
	return m.reconciler.Sync(ctx, nodeID)
}

// Sections returns the sectioned children of nodeID matching search
func (m *Mirror) Sections(nodeID, search string) ([]view.Section, error) {
	return view.Sections(m.FileSystem, nodeID, search)
}

// Directory returns a browsable listing of nodeID
func (m *Mirror) Directory(nodeID string) (*view.Directory, error) {
	return view.NewDirectory(m.FileSystem, nodeID)
}

// LoadContent returns the payload of a leaf: pinned content for favorites,
// otherwise a fresh fetch from the remote.
func (m *Mirror) LoadContent(ctx context.Context, nodeID string) ([]byte, error) {
	logger := util.GetLogger("Mirror.LoadContent")

	n, ok := m.Get(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, nodeID)
	}
	if n.Kind.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", webmirror.ErrContentFetchFailed, n.Name)
	}
	if data, ok := m.favorites.Content(nodeID); ok {
		logger.Debug().Str("nodeID", nodeID).Msg("Serving pinned content")
		return data, nil
	}

	rctx, cancel := m.requestCtx(ctx)
	defer cancel()
	data, err := m.remote.FetchContent(rctx, n.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", webmirror.ErrContentFetchFailed, n.Path, err)
	}
	return data, nil
}

// ToggleFavorite pins or unpins nodeID, loading its content when pinning.
// Returns the new favorite state.
func (m *Mirror) ToggleFavorite(ctx context.Context, nodeID string) (bool, error) {
	n, ok := m.Get(nodeID)
	if !ok {
		return false, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, nodeID)
	}

	var content []byte
	if !n.IsFavorite && n.Kind.Cacheable() {
		var err error
		if content, err = m.LoadContent(ctx, nodeID); err != nil {
			return false, err
		}
	}
	return m.favorites.Toggle(ctx, nodeID, content)
}

// CreateDirectory creates an empty directory called name under parentID
func (m *Mirror) CreateDirectory(ctx context.Context, parentID, name string) (webmirror.Node, error) {
	return m.CreateItem(ctx, parentID, name, webmirror.KindDirectory, nil)
}

// CreateItem pushes a new item to the remote and, once accepted, inserts it
// locally at parent.Path + "/" + name while holding the parent's scope. The
// local node carries no modification time until the next sync describes it.
func (m *Mirror) CreateItem(ctx context.Context, parentID, name string, kind webmirror.Kind, data []byte) (webmirror.Node, error) {
	logger := util.GetLogger("Mirror.CreateItem")

	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return webmirror.Node{}, fmt.Errorf("invalid item name %q", name)
	}
	if kind == webmirror.KindUnset || !kind.Valid() {
		return webmirror.Node{}, fmt.Errorf("invalid item kind %s", kind)
	}
	parent, ok := m.Get(parentID)
	if !ok {
		return webmirror.Node{}, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, parentID)
	}
	if !parent.Kind.IsDir() {
		return webmirror.Node{}, fmt.Errorf("%w: %s", webmirror.ErrNotDirectory, parent.Name)
	}

	// a sync of the parent must not prune the item between push and insert
	release, err := m.scope.Acquire(ctx, parentID)
	if err != nil {
		return webmirror.Node{}, err
	}
	defer release()
	if _, exists := m.Child(parentID, name); exists {
		return webmirror.Node{}, fmt.Errorf("%w: %q", webmirror.ErrNameExists, name)
	}

	rctx, cancel := m.requestCtx(ctx)
	defer cancel()
	if err := m.remote.PushItem(rctx, parent.Path, name, kind, data); err != nil {
		logger.Warn().Err(err).Str("path", parent.Path).Str("name", name).Msg("Push failed")
		return webmirror.Node{}, fmt.Errorf("%w: %s/%s: %w", webmirror.ErrPushFailed, parent.Path, name, err)
	}

	a := filesystem.Attrs{Name: name, Path: parent.Path + "/" + name, Kind: kind}
	if !kind.IsDir() {
		a.Size = util.Pointer(int64(len(data)))
	}
	n, err := m.Insert(context.WithoutCancel(ctx), parentID, a)
	if err != nil {
		return webmirror.Node{}, err
	}
	logger.Info().Str("path", n.Path).Str("kind", kind.String()).Msg("Created item")
	return n, nil
}

// Serve mounts and serves the read-only view at the given mountPoint.
func (m *Mirror) Serve(mountPoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		return fmt.Errorf("already mounted")
	}

	opts := wfuse.Options{
		AttrTimeout:   m.cfg.AttrTimeoutDuration(),
		EntryTimeout:  m.cfg.EntryTimeoutDuration(),
		SyncOnReaddir: m.cfg.SyncOnReaddir,
		Sync: func(ctx context.Context, nodeID string) error {
			_, err := m.Sync(ctx, nodeID)
			return err
		},
	}
	srv, err := wfuse.Mount(mountPoint, m, opts, m.cfg.MountOptions)
	if err != nil {
		return err
	}
	m.server = srv
	return nil
}

// ServeAsync mounts in the background; the channel yields the mount result.
func (m *Mirror) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- m.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Wait blocks until the mount is gone. Returns immediately when not mounted.
func (m *Mirror) Wait() {
	m.mu.Lock()
	srv := m.server
	m.mu.Unlock()
	if srv != nil {
		srv.Wait()
	}
}

// Unmount cleanly unmounts the filesystem.
func (m *Mirror) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return nil
	}
	err := m.server.Unmount()
	if err == nil {
		m.server = nil
	}
	return err
}

func (m *Mirror) requestCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := m.cfg.RequestTimeoutDuration(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

var _ wfuse.Tree = (*Mirror)(nil)
