// Package reconcile merges remote directory listings into the node store.
//
// A sync of a directory lists its remote children, prunes local children
// absent from the listing, then walks the listing in order fetching metadata
// for one name at a time. Children whose modification time changed are
// replaced with a fresh node; unchanged children keep their id and favorite
// state. A failed metadata fetch only affects its own name.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/config"
	"github.com/brettbedarf/webmirror/filesystem"
	"github.com/brettbedarf/webmirror/internal/util"
)

// Purger drops pinned content for nodes removed from the store
type Purger interface {
	Purge(nodes []webmirror.Node)
}

// Options tune a [Reconciler]. Zero timeouts disable the deadline.
type Options struct {
	ListingTimeout time.Duration
	RequestTimeout time.Duration
	SyncPolicy     config.SyncPolicy
	CreateStubs    bool
}

// OptionsFromConfig extracts the reconciliation settings of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ListingTimeout: cfg.ListingTimeoutDuration(),
		RequestTimeout: cfg.RequestTimeoutDuration(),
		SyncPolicy:     cfg.SyncPolicy,
		CreateStubs:    cfg.CreateStubs,
	}
}

// NameError is a per-name failure absorbed into a sync [Result]
type NameError struct {
	Name string
	Err  error
}

func (e NameError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e NameError) Unwrap() error {
	return e.Err
}

// Result summarizes one sync
type Result struct {
	Listed    int // Distinct names in the remote listing
	Pruned    int // Nodes removed because their name left the listing (descendants included)
	Created   int // Names that gained a described node
	Replaced  int // Described nodes replaced after a change
	Unchanged int
	Failed    []NameError
}

// Reconciler syncs directories of the node store against a remote
type Reconciler struct {
	fs     *filesystem.FileSystem
	remote webmirror.RemoteStore
	scope  *filesystem.Scope
	purger Purger
	opts   Options
}

// New returns a Reconciler. purger may be nil when nothing is ever pinned.
func New(fs *filesystem.FileSystem, remote webmirror.RemoteStore, scope *filesystem.Scope, purger Purger, opts Options) *Reconciler {
	if scope == nil {
		scope = filesystem.NewScope()
	}
	return &Reconciler{fs: fs, remote: remote, scope: scope, purger: purger, opts: opts}
}

// Sync reconciles the children of the directory nodeID with the remote.
//
// A listing failure returns [webmirror.ErrListingFailed] with the store
// unchanged. Per-name metadata failures are collected in Result.Failed and do
// not fail the sync. Cancellation is honored between names; the returned
// Result then covers the names completed so far.
func (r *Reconciler) Sync(ctx context.Context, nodeID string) (Result, error) {
	logger := util.GetLogger("Reconciler.Sync")
	logger.Trace().Str("nodeID", nodeID).Msg("Sync called")

	if err := r.checkDir(nodeID); err != nil {
		return Result{}, err
	}
	release, err := r.enter(ctx, nodeID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	// may have been removed while waiting for the scope
	node, ok := r.fs.Get(nodeID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, nodeID)
	}
	logger = logger.With().Str("nodeID", nodeID).Str("path", node.Path).Logger()

	names, err := r.list(ctx, node)
	if err != nil {
		logger.Warn().Err(err).Msg("Listing failed")
		return Result{}, err
	}
	res := Result{Listed: len(names)}

	// writes below must not be torn by cancellation; ctx is checked between names
	storeCtx := context.WithoutCancel(ctx)

	if res.Pruned, err = r.prune(storeCtx, nodeID, names); err != nil {
		return res, err
	}
	if r.opts.CreateStubs {
		if err := r.insertStubs(storeCtx, nodeID, names); err != nil {
			return res, err
		}
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			logger.Debug().Err(err).Int("done", res.Created+res.Replaced+res.Unchanged+len(res.Failed)).Msg("Sync cancelled")
			return res, err
		}
		if err := r.syncName(ctx, storeCtx, node, name, &res); err != nil {
			return res, err
		}
	}

	r.fs.NotifySynced(nodeID)
	logger.Info().
		Int("listed", res.Listed).Int("pruned", res.Pruned).Int("created", res.Created).
		Int("replaced", res.Replaced).Int("unchanged", res.Unchanged).Int("failed", len(res.Failed)).
		Msg("Sync complete")
	return res, nil
}

func (r *Reconciler) checkDir(nodeID string) error {
	node, ok := r.fs.Get(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, nodeID)
	}
	if !node.Kind.IsDir() {
		return fmt.Errorf("%w: %s (%s)", webmirror.ErrNotDirectory, node.Name, node.Kind)
	}
	return nil
}

// enter takes the node's scope according to the sync policy. The scope is
// shared with favorite toggles and item creation, so under the reject policy
// any of those holding the node makes Sync fail with ErrSyncInProgress.
func (r *Reconciler) enter(ctx context.Context, nodeID string) (func(), error) {
	if r.opts.SyncPolicy == config.SyncPolicyReject {
		release, ok := r.scope.TryAcquire(nodeID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", webmirror.ErrSyncInProgress, nodeID)
		}
		return release, nil
	}
	return r.scope.Acquire(ctx, nodeID)
}

// list fetches the remote listing, dropping repeated names
func (r *Reconciler) list(ctx context.Context, node webmirror.Node) ([]string, error) {
	lctx, cancel := withTimeout(ctx, r.opts.ListingTimeout)
	defer cancel()

	raw, err := r.remote.ListDirectory(lctx, node.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", webmirror.ErrListingFailed, node.Path, err)
	}

	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, name := range raw {
		if _, dup := seen[name]; dup {
			logger := util.GetLogger("Reconciler.list")
			logger.Warn().Str("path", node.Path).Str("name", name).Msg("Remote listed name twice")
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// prune deletes children whose names are absent from the listing in one batch
func (r *Reconciler) prune(ctx context.Context, nodeID string, names []string) (int, error) {
	children, err := r.fs.Children(nodeID, "")
	if err != nil {
		return 0, err
	}
	listed := make(map[string]struct{}, len(names))
	for _, name := range names {
		listed[name] = struct{}{}
	}

	var obsolete []string
	for _, c := range children {
		if _, ok := listed[c.Name]; !ok {
			obsolete = append(obsolete, c.ID)
		}
	}
	if len(obsolete) == 0 {
		return 0, nil
	}

	removed, err := r.fs.DeleteMany(ctx, obsolete)
	if err != nil {
		return 0, fmt.Errorf("prune obsolete children: %w", err)
	}
	r.purge(removed)
	logger := util.GetLogger("Reconciler.prune")
	logger.Debug().Str("nodeID", nodeID).Int("removed", len(removed)).Msg("Pruned obsolete children")
	return len(removed), nil
}

// insertStubs makes every new name visible as an Unset child in one batch
func (r *Reconciler) insertStubs(ctx context.Context, nodeID string, names []string) error {
	var stubs []filesystem.Attrs
	for _, name := range names {
		if _, exists := r.fs.Child(nodeID, name); !exists {
			stubs = append(stubs, filesystem.StubAttrs(name))
		}
	}
	if _, err := r.fs.InsertMany(ctx, nodeID, stubs); err != nil {
		return fmt.Errorf("insert stubs: %w", err)
	}
	return nil
}

// syncName fetches metadata for one name and creates, replaces or keeps its
// node. Only a vanished parent or cancellation is returned as an error.
func (r *Reconciler) syncName(ctx, storeCtx context.Context, parent webmirror.Node, name string, res *Result) error {
	logger := util.GetLogger("Reconciler.syncName").With().Str("parentID", parent.ID).Str("name", name).Logger()

	mctx, cancel := withTimeout(ctx, r.opts.RequestTimeout)
	md, err := r.remote.FetchMetadata(mctx, parent.Path, name)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Err(err).Msg("Metadata fetch failed")
		res.Failed = append(res.Failed, NameError{Name: name, Err: fmt.Errorf("%w: %w", webmirror.ErrMetadataFetchFailed, err)})
		return nil
	}
	if md == nil {
		logger.Warn().Msg("Remote returned no metadata")
		res.Failed = append(res.Failed, NameError{Name: name, Err: fmt.Errorf("%w: no metadata for %q", webmirror.ErrMetadataFetchFailed, name)})
		return nil
	}

	attrs := filesystem.AttrsFromMetadata(name, md)
	existing, exists := r.fs.Child(parent.ID, name)

	switch {
	case !exists:
		_, err = r.fs.Insert(storeCtx, parent.ID, attrs)
		if err == nil {
			res.Created++
		}
	case existing.HasMetadata() && existing.SameModTime(md.ModifiedAt):
		res.Unchanged++
		return nil
	default:
		if existing.HasMetadata() && existing.ModifiedAt == nil {
			logger.Debug().Str("reason", "missing_mtime").Str("id", existing.ID).Msg("Replacing node without stored modification time")
		}
		var removed []webmirror.Node
		_, removed, err = r.fs.Replace(storeCtx, existing.ID, attrs)
		if err == nil {
			r.purge(removed)
			if existing.HasMetadata() {
				res.Replaced++
			} else {
				res.Created++
			}
		}
	}

	if err != nil {
		if _, ok := r.fs.Get(parent.ID); !ok {
			return fmt.Errorf("%w: directory %s removed during sync", webmirror.ErrNodeNotFound, parent.ID)
		}
		logger.Error().Err(err).Msg("Failed to store node")
		res.Failed = append(res.Failed, NameError{Name: name, Err: err})
	}
	return nil
}

func (r *Reconciler) purge(removed []webmirror.Node) {
	if r.purger == nil {
		return
	}
	var pinned []webmirror.Node
	for _, n := range removed {
		if n.IsFavorite {
			pinned = append(pinned, n)
		}
	}
	if len(pinned) > 0 {
		r.purger.Purge(pinned)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// IsListingFailure reports whether err aborted a sync before any store change
func IsListingFailure(err error) bool {
	return errors.Is(err, webmirror.ErrListingFailed)
}
