package filesystem

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
)

// RootName is the display name of the root node
const RootName = "/"

// ErrKindRevert is returned when an update would move a described node back to KindUnset
var ErrKindRevert = errors.New("kind cannot revert to unset")

// FileSystem is the node store: an arena of immutable node snapshots keyed by
// id plus a parent -> name -> id child index.
//
// Point reads (Get, Root) are lock-free. Every mutation is one atomic batch:
// it is persisted first and only committed in memory when persistence
// succeeded, so no partial state is ever observable.
type FileSystem struct {
	mu       sync.RWMutex                        // Mutation boundary; protects children
	nodes    *xsync.Map[string, *webmirror.Node] // id -> snapshot
	children map[string]map[string]string        // parent id -> name -> child id
	rootID   string
	persist  Persister
	events   *Broadcaster
}

// NewFS loads every persisted node and validates the tree. The root is created
// and persisted on first launch. A nil persister keeps the store in memory.
func NewFS(ctx context.Context, p Persister) (*FileSystem, error) {
	logger := util.GetLogger("NewFS")

	if p == nil {
		p = nopPersister{}
	}
	fs := &FileSystem{
		nodes:    xsync.NewMap[string, *webmirror.Node](),
		children: make(map[string]map[string]string),
		persist:  p,
		events:   NewBroadcaster(),
	}

	records, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	if err := fs.index(records); err != nil {
		logger.Error().Err(err).Int("records", len(records)).Msg("Invalid persisted tree")
		return nil, err
	}

	if fs.rootID == "" {
		root := newRoot()
		if err := p.Apply(ctx, Batch{Upserts: []webmirror.Node{*root}}); err != nil {
			return nil, fmt.Errorf("create root: %w", err)
		}
		fs.store(root)
		fs.rootID = root.ID
		logger.Info().Str("id", root.ID).Msg("Created root node")
	}

	logger.Debug().Int("nodes", fs.nodes.Size()).Msg("Node store ready")
	return fs, nil
}

func (fs *FileSystem) index(records []webmirror.Node) error {
	for i := range records {
		n := records[i]
		if n.IsRoot {
			if fs.rootID != "" {
				return fmt.Errorf("%w: multiple root nodes (%s, %s)", webmirror.ErrStoreCorrupt, fs.rootID, n.ID)
			}
			fs.rootID = n.ID
		}
		fs.nodes.Store(n.ID, &n)
	}
	if fs.rootID == "" && len(records) > 0 {
		return fmt.Errorf("%w: %d nodes without a root", webmirror.ErrStoreCorrupt, len(records))
	}

	for i := range records {
		n := &records[i]
		if n.IsRoot {
			continue
		}
		if _, ok := fs.nodes.Load(n.ParentID); !ok {
			return fmt.Errorf("%w: node %s has missing parent %q", webmirror.ErrStoreCorrupt, n.ID, n.ParentID)
		}
		siblings := fs.childIndex(n.ParentID)
		if other, dup := siblings[n.Name]; dup {
			return fmt.Errorf("%w: duplicate name %q (%s, %s)", webmirror.ErrStoreCorrupt, n.Name, other, n.ID)
		}
		siblings[n.Name] = n.ID
	}
	return nil
}

// Root returns a snapshot of the root node
func (fs *FileSystem) Root() webmirror.Node {
	n, _ := fs.nodes.Load(fs.rootID)
	return *n
}

// Get returns a snapshot of the node with id
func (fs *FileSystem) Get(id string) (webmirror.Node, bool) {
	n, ok := fs.nodes.Load(id)
	if !ok {
		return webmirror.Node{}, false
	}
	return *n, true
}

// Len returns the number of nodes in the store, root included
func (fs *FileSystem) Len() int {
	return fs.nodes.Size()
}

// NodeCtx returns a read-locked NodeContext with its Close() wired up.
// If the node does not exist, returns nil
//
// Caller is responsible for closing the context when done `defer ctx.Close()`.
func (fs *FileSystem) NodeCtx(id string) *NodeContext {
	fs.mu.RLock()
	n, ok := fs.nodes.Load(id)
	if !ok {
		fs.mu.RUnlock()
		return nil
	}
	ctx := &NodeContext{fs: fs, node: n}
	ctx.AddClose(fs.mu.RUnlock)
	return ctx
}

// Child returns the child of parentID called name
func (fs *FileSystem) Child(parentID, name string) (webmirror.Node, bool) {
	ctx := fs.NodeCtx(parentID)
	defer ctx.Close()
	if ctx == nil {
		return webmirror.Node{}, false
	}
	return ctx.Child(name)
}

// Children returns the children of parentID whose name contains search,
// ignoring case, ordered by name. An empty search returns every child.
func (fs *FileSystem) Children(parentID, search string) ([]webmirror.Node, error) {
	ctx := fs.NodeCtx(parentID)
	defer ctx.Close()
	if ctx == nil {
		return nil, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, parentID)
	}
	out := ctx.Search(search)
	slices.SortFunc(out, func(a, b webmirror.Node) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// PathOf returns the slash separated names from the root down to id.
// The root itself is "/".
func (fs *FileSystem) PathOf(id string) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var names []string
	for cur := id; cur != fs.rootID; {
		n, ok := fs.nodes.Load(cur)
		if !ok {
			return "", fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, cur)
		}
		names = append(names, n.Name)
		cur = n.ParentID
	}
	slices.Reverse(names)
	return "/" + strings.Join(names, "/"), nil
}

// Insert adds one child under parentID
func (fs *FileSystem) Insert(ctx context.Context, parentID string, a Attrs) (webmirror.Node, error) {
	created, err := fs.InsertMany(ctx, parentID, []Attrs{a})
	if err != nil {
		return webmirror.Node{}, err
	}
	return created[0], nil
}

// InsertMany adds every child under parentID in one atomic batch. Names must
// be unique among the existing children and within the batch.
func (fs *FileSystem) InsertMany(ctx context.Context, parentID string, attrs []Attrs) ([]webmirror.Node, error) {
	logger := util.GetLogger("FS.InsertMany")
	logger.Trace().Str("parentID", parentID).Int("count", len(attrs)).Msg("InsertMany called")

	if len(attrs) == 0 {
		return nil, nil
	}

	var out []webmirror.Node
	err := fs.mutate(ctx, func() (Batch, func() []Event, error) {
		parent, err := fs.dirLocked(parentID)
		if err != nil {
			return Batch{}, nil, err
		}
		siblings := fs.children[parentID]
		seen := make(map[string]struct{}, len(attrs))
		created := make([]*webmirror.Node, 0, len(attrs))
		for _, a := range attrs {
			if !a.Kind.Valid() {
				return Batch{}, nil, fmt.Errorf("invalid kind %d for %q", a.Kind, a.Name)
			}
			_, exists := siblings[a.Name]
			_, dup := seen[a.Name]
			if exists || dup {
				return Batch{}, nil, fmt.Errorf("%w: %q", webmirror.ErrNameExists, a.Name)
			}
			seen[a.Name] = struct{}{}
			created = append(created, newNode(parent, a))
		}

		b := Batch{Upserts: make([]webmirror.Node, len(created))}
		for i, n := range created {
			b.Upserts[i] = *n
		}
		return b, func() []Event {
			events := make([]Event, len(created))
			for i, n := range created {
				fs.store(n)
				events[i] = Event{Type: EventInsert, NodeID: n.ID, ParentID: parentID}
			}
			out = b.Upserts
			return events
		}, nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("parentID", parentID).Int("count", len(out)).Msg("Inserted nodes")
	return out, nil
}

// Replace atomically deletes oldID (cascading) and inserts a fresh node with a
// new id in its place. Readers never observe the name missing or duplicated.
// Returns the new node and every removed node.
func (fs *FileSystem) Replace(ctx context.Context, oldID string, a Attrs) (webmirror.Node, []webmirror.Node, error) {
	logger := util.GetLogger("FS.Replace")
	logger.Trace().Str("oldID", oldID).Str("name", a.Name).Msg("Replace called")

	var fresh *webmirror.Node
	var removed []webmirror.Node
	err := fs.mutate(ctx, func() (Batch, func() []Event, error) {
		old, ok := fs.nodes.Load(oldID)
		if !ok {
			return Batch{}, nil, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, oldID)
		}
		if old.IsRoot {
			return Batch{}, nil, webmirror.ErrRootImmutable
		}
		if !a.Kind.Valid() {
			return Batch{}, nil, fmt.Errorf("invalid kind %d for %q", a.Kind, a.Name)
		}
		parent, _ := fs.nodes.Load(old.ParentID)
		if a.Name != old.Name {
			if _, exists := fs.children[old.ParentID][a.Name]; exists {
				return Batch{}, nil, fmt.Errorf("%w: %q", webmirror.ErrNameExists, a.Name)
			}
		}

		removed = fs.subtreeLocked(oldID)
		fresh = newNode(parent, a)
		b := Batch{Deletes: nodeIDs(removed), Upserts: []webmirror.Node{*fresh}}
		return b, func() []Event {
			fs.unstore(removed)
			fs.store(fresh)
			return []Event{
				{Type: EventDelete, NodeID: oldID, ParentID: parent.ID},
				{Type: EventInsert, NodeID: fresh.ID, ParentID: parent.ID},
			}
		}, nil
	})
	if err != nil {
		return webmirror.Node{}, nil, err
	}
	logger.Debug().Str("oldID", oldID).Str("newID", fresh.ID).Str("name", fresh.Name).Msg("Replaced node")
	return *fresh, removed, nil
}

// Delete removes id and all its descendants. Returns every removed node.
func (fs *FileSystem) Delete(ctx context.Context, id string) ([]webmirror.Node, error) {
	if _, ok := fs.nodes.Load(id); !ok {
		return nil, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, id)
	}
	return fs.DeleteMany(ctx, []string{id})
}

// DeleteMany removes every id and all their descendants in one atomic batch.
// Ids that no longer exist are skipped. Returns every removed node.
func (fs *FileSystem) DeleteMany(ctx context.Context, ids []string) ([]webmirror.Node, error) {
	logger := util.GetLogger("FS.DeleteMany")
	logger.Trace().Strs("ids", ids).Msg("DeleteMany called")

	var removed []webmirror.Node
	err := fs.mutate(ctx, func() (Batch, func() []Event, error) {
		seen := make(map[string]struct{})
		var tops []webmirror.Node
		for _, id := range ids {
			n, ok := fs.nodes.Load(id)
			if !ok {
				continue
			}
			if n.IsRoot {
				return Batch{}, nil, webmirror.ErrRootImmutable
			}
			if _, done := seen[id]; done {
				continue
			}
			tops = append(tops, *n)
			for _, d := range fs.subtreeLocked(id) {
				if _, done := seen[d.ID]; !done {
					seen[d.ID] = struct{}{}
					removed = append(removed, d)
				}
			}
		}
		b := Batch{Deletes: nodeIDs(removed)}
		return b, func() []Event {
			fs.unstore(removed)
			events := make([]Event, 0, len(tops))
			for _, n := range tops {
				events = append(events, Event{Type: EventDelete, NodeID: n.ID, ParentID: n.ParentID})
			}
			return events
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		logger.Debug().Int("count", len(removed)).Msg("Deleted nodes")
	}
	return removed, nil
}

// Update applies fn to a copy of the node's attributes and commits the result.
// Identity, parent and root flags cannot change; a described node never
// reverts to KindUnset.
func (fs *FileSystem) Update(ctx context.Context, id string, fn func(a *Attrs)) (webmirror.Node, error) {
	logger := util.GetLogger("FS.Update")
	logger.Trace().Str("id", id).Msg("Update called")

	var updated *webmirror.Node
	err := fs.mutate(ctx, func() (Batch, func() []Event, error) {
		n, ok := fs.nodes.Load(id)
		if !ok {
			return Batch{}, nil, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, id)
		}
		a := attrsOf(n)
		fn(&a)

		switch {
		case !a.Kind.Valid():
			return Batch{}, nil, fmt.Errorf("invalid kind %d for %q", a.Kind, a.Name)
		case n.Kind != webmirror.KindUnset && a.Kind == webmirror.KindUnset:
			return Batch{}, nil, fmt.Errorf("%w: %s", ErrKindRevert, id)
		case n.IsRoot && (a.Name != n.Name || a.Kind != n.Kind || a.Path != n.Path):
			return Batch{}, nil, webmirror.ErrRootImmutable
		case !a.Kind.IsDir() && len(fs.children[id]) > 0:
			return Batch{}, nil, fmt.Errorf("%w: %s has children", webmirror.ErrNotDirectory, id)
		}

		parentPath := ""
		if !n.IsRoot {
			if a.Name != n.Name {
				if _, exists := fs.children[n.ParentID][a.Name]; exists {
					return Batch{}, nil, fmt.Errorf("%w: %q", webmirror.ErrNameExists, a.Name)
				}
			}
			parent, _ := fs.nodes.Load(n.ParentID)
			parentPath = parent.Path
		}
		updated = withAttrs(n, parentPath, a)
		if n.IsRoot {
			updated.Path = n.Path
		}

		return Batch{Upserts: []webmirror.Node{*updated}}, func() []Event {
			if !n.IsRoot && n.Name != updated.Name {
				delete(fs.children[n.ParentID], n.Name)
			}
			fs.store(updated)
			return []Event{{Type: EventUpdate, NodeID: id, ParentID: n.ParentID}}
		}, nil
	})
	if err != nil {
		return webmirror.Node{}, err
	}
	return *updated, nil
}

// Subscribe returns a channel of store change events and its cancel func
func (fs *FileSystem) Subscribe() (<-chan Event, func()) {
	return fs.events.Subscribe()
}

// NotifySynced tells subscribers a reconciliation of parentID completed
func (fs *FileSystem) NotifySynced(parentID string) {
	fs.events.Publish(Event{Type: EventSynced, NodeID: parentID, ParentID: parentID})
}

// mutate runs plan under the write lock, persists the batch it returns and
// only then runs its commit func. Events are published after unlocking.
func (fs *FileSystem) mutate(ctx context.Context, plan func() (Batch, func() []Event, error)) error {
	fs.mu.Lock()
	b, commit, err := plan()
	if err != nil {
		fs.mu.Unlock()
		return err
	}
	if !b.Empty() {
		if err := fs.persist.Apply(ctx, b); err != nil {
			fs.mu.Unlock()
			logger := util.GetLogger("FS")
			logger.Error().Err(err).
				Int("deletes", len(b.Deletes)).Int("upserts", len(b.Upserts)).
				Msg("Failed to persist batch")
			return fmt.Errorf("persist batch: %w", err)
		}
	}
	events := commit()
	fs.mu.Unlock()

	if len(events) > 0 {
		fs.events.Publish(events...)
	}
	return nil
}

// dirLocked returns the directory node id; fs.mu must be held
func (fs *FileSystem) dirLocked(id string) (*webmirror.Node, error) {
	n, ok := fs.nodes.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", webmirror.ErrNodeNotFound, id)
	}
	if !n.Kind.IsDir() {
		return nil, fmt.Errorf("%w: %s (%s)", webmirror.ErrNotDirectory, n.Name, n.Kind)
	}
	return n, nil
}

// subtreeLocked returns id and its descendants parents first; fs.mu must be held
func (fs *FileSystem) subtreeLocked(id string) []webmirror.Node {
	var out []webmirror.Node
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if n, ok := fs.nodes.Load(cur); ok {
			out = append(out, *n)
		}
		for _, child := range fs.children[cur] {
			queue = append(queue, child)
		}
	}
	return out
}

func (fs *FileSystem) childIndex(parentID string) map[string]string {
	idx, ok := fs.children[parentID]
	if !ok {
		idx = make(map[string]string)
		fs.children[parentID] = idx
	}
	return idx
}

// store indexes n; fs.mu must be held
func (fs *FileSystem) store(n *webmirror.Node) {
	fs.nodes.Store(n.ID, n)
	if !n.IsRoot {
		fs.childIndex(n.ParentID)[n.Name] = n.ID
	}
}

// unstore drops nodes from the arena and index; fs.mu must be held
func (fs *FileSystem) unstore(nodes []webmirror.Node) {
	for _, n := range nodes {
		fs.nodes.Delete(n.ID)
		delete(fs.children, n.ID)
		if siblings, ok := fs.children[n.ParentID]; ok && siblings[n.Name] == n.ID {
			delete(siblings, n.Name)
		}
	}
}

func nodeIDs(nodes []webmirror.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

var _ webmirror.NodeReader = (*FileSystem)(nil)
