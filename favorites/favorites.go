// Package favorites pins node content in the content cache and keeps each
// node's favorite flag in step with the presence of its cache entry.
package favorites

import (
	"context"
	"fmt"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/filesystem"
	"github.com/brettbedarf/webmirror/internal/util"
)

// KeyLister is implemented by caches that can enumerate their entries
type KeyLister interface {
	Keys() ([]string, error)
}

// Controller toggles favorites. The cache operation always runs first; the
// flag only changes once it succeeded.
type Controller struct {
	fs    *filesystem.FileSystem
	cache webmirror.ContentCache
	scope *filesystem.Scope
}

// New returns a Controller sharing scope with the reconciler so a toggle
// never interleaves with a sync of the node's directory
func New(fs *filesystem.FileSystem, cache webmirror.ContentCache, scope *filesystem.Scope) *Controller {
	if scope == nil {
		scope = filesystem.NewScope()
	}
	return &Controller{fs: fs, cache: cache, scope: scope}
}

// Toggle flips the favorite state of nodeID and returns the new state.
//
// Favoriting requires content, the already loaded payload of the node, and
// writes it to the cache before setting the flag. Unfavoriting deletes the
// cache entry before clearing the flag; content is ignored.
// Only cacheable kinds are eligible ([webmirror.ErrIneligible]).
func (c *Controller) Toggle(ctx context.Context, nodeID string, content []byte) (bool, error) {
	logger := util.GetLogger("Favorites.Toggle")
	logger.Trace().Str("nodeID", nodeID).Msg("Toggle called")

	n, ok := c.fs.Get(nodeID)
	if !ok {
		return false, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, nodeID)
	}
	if !n.Kind.Cacheable() {
		return false, fmt.Errorf("%w: %s is %s", webmirror.ErrIneligible, n.Name, n.Kind)
	}

	release, err := c.scope.Acquire(ctx, n.ParentID, n.ID)
	if err != nil {
		return false, err
	}
	defer release()

	// a sync may have replaced the node while we waited
	n, ok = c.fs.Get(nodeID)
	if !ok {
		return false, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, nodeID)
	}

	storeCtx := context.WithoutCancel(ctx)
	if n.IsFavorite {
		err = c.unpin(storeCtx, n)
	} else {
		err = c.pin(storeCtx, n, content)
	}
	if err != nil {
		logger.Warn().Err(err).Str("nodeID", nodeID).Str("name", n.Name).Msg("Toggle failed")
		return n.IsFavorite, err
	}
	logger.Info().Str("nodeID", nodeID).Str("name", n.Name).Bool("favorite", !n.IsFavorite).Msg("Toggled favorite")
	return !n.IsFavorite, nil
}

func (c *Controller) pin(ctx context.Context, n webmirror.Node, content []byte) error {
	if content == nil {
		return fmt.Errorf("%w: %s", webmirror.ErrMissingContent, n.Name)
	}
	if err := c.cache.Put(n.ID, content); err != nil {
		return err
	}
	if _, err := c.setFavorite(ctx, n.ID, true); err != nil {
		if delErr := c.cache.Delete(n.ID); delErr != nil {
			logger := util.GetLogger("Favorites.pin")
			logger.Error().Err(delErr).Str("nodeID", n.ID).Msg("Failed to roll back cache entry")
		}
		return err
	}
	return nil
}

func (c *Controller) unpin(ctx context.Context, n webmirror.Node) error {
	saved, _ := c.cache.Get(n.ID)
	if err := c.cache.Delete(n.ID); err != nil {
		return err
	}
	if _, err := c.setFavorite(ctx, n.ID, false); err != nil {
		if _, exists := c.fs.Get(n.ID); exists && saved != nil {
			if putErr := c.cache.Put(n.ID, saved); putErr != nil {
				logger := util.GetLogger("Favorites.unpin")
				logger.Error().Err(putErr).Str("nodeID", n.ID).Msg("Failed to restore cache entry")
			}
		}
		return err
	}
	return nil
}

func (c *Controller) setFavorite(ctx context.Context, id string, on bool) (webmirror.Node, error) {
	return c.fs.Update(ctx, id, func(a *filesystem.Attrs) { a.IsFavorite = on })
}

// Purge deletes the cache entries of nodes removed from the store.
// Failures are logged; a leftover entry is collected by [Controller.Repair].
func (c *Controller) Purge(nodes []webmirror.Node) {
	logger := util.GetLogger("Favorites.Purge")
	for _, n := range nodes {
		if err := c.cache.Delete(n.ID); err != nil {
			logger.Warn().Err(err).Str("nodeID", n.ID).Str("name", n.Name).Msg("Failed to purge cache entry")
			continue
		}
		logger.Debug().Str("nodeID", n.ID).Str("name", n.Name).Msg("Purged cache entry")
	}
}

// Content returns the pinned payload of a favorited node
func (c *Controller) Content(nodeID string) ([]byte, bool) {
	n, ok := c.fs.Get(nodeID)
	if !ok || !n.IsFavorite {
		return nil, false
	}
	return c.cache.Get(nodeID)
}

// RepairReport lists what [Controller.Repair] fixed
type RepairReport struct {
	Unflagged []string // Favorited node ids whose cache entry was missing
	Orphans   []string // Cache keys with no favorited node
}

// Repair restores the favorite invariant after a crash or a failed purge:
// favorites without a cache entry lose their flag and entries without a
// favorited node are deleted. Orphans are only swept when the cache
// implements [KeyLister].
func (c *Controller) Repair(ctx context.Context) (RepairReport, error) {
	logger := util.GetLogger("Favorites.Repair")
	var report RepairReport

	root := c.fs.Root()
	rctx := c.fs.NodeCtx(root.ID)
	all := rctx.Subtree()
	rctx.Close()

	favorites := make(map[string]struct{})
	for _, n := range all {
		if !n.IsFavorite {
			continue
		}
		favorites[n.ID] = struct{}{}
		if c.cache.Has(n.ID) {
			continue
		}
		if _, err := c.setFavorite(ctx, n.ID, false); err != nil {
			return report, fmt.Errorf("unflag %s: %w", n.ID, err)
		}
		delete(favorites, n.ID)
		report.Unflagged = append(report.Unflagged, n.ID)
	}

	if lister, ok := c.cache.(KeyLister); ok {
		keys, err := lister.Keys()
		if err != nil {
			return report, err
		}
		for _, key := range keys {
			if _, ok := favorites[key]; ok {
				continue
			}
			if err := c.cache.Delete(key); err != nil {
				return report, err
			}
			report.Orphans = append(report.Orphans, key)
		}
	}

	if len(report.Unflagged)+len(report.Orphans) > 0 {
		logger.Info().Int("unflagged", len(report.Unflagged)).Int("orphans", len(report.Orphans)).Msg("Repaired favorites")
	}
	return report, nil
}
