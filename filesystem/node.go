package filesystem

import (
	"time"

	"github.com/brettbedarf/webmirror"
	"github.com/google/uuid"
)

// Attrs are the caller supplied fields of a node. Identity, parent and root
// flags are owned by the [FileSystem].
type Attrs struct {
	Name       string
	Path       string // Remote address; derived from the parent when empty
	Kind       webmirror.Kind
	Size       *int64
	ModifiedAt *time.Time
	IsFavorite bool
}

// StubAttrs returns the attributes of a listed but not yet described child
func StubAttrs(name string) Attrs {
	return Attrs{Name: name, Kind: webmirror.KindUnset}
}

// AttrsFromMetadata builds a fully populated record for name from md
func AttrsFromMetadata(name string, md *webmirror.ItemMetadata) Attrs {
	return Attrs{
		Name:       name,
		Path:       md.Path,
		Kind:       md.Kind(),
		Size:       md.Size,
		ModifiedAt: md.ModifiedAt,
	}
}

func attrsOf(n *webmirror.Node) Attrs {
	return Attrs{
		Name:       n.Name,
		Path:       n.Path,
		Kind:       n.Kind,
		Size:       n.Size,
		ModifiedAt: n.ModifiedAt,
		IsFavorite: n.IsFavorite,
	}
}

// newNode mints a fresh node with a new id under parent
func newNode(parent *webmirror.Node, a Attrs) *webmirror.Node {
	return &webmirror.Node{
		ID:         uuid.NewString(),
		Name:       a.Name,
		Path:       childPath(parent.Path, a),
		Kind:       a.Kind,
		Size:       a.Size,
		ModifiedAt: a.ModifiedAt,
		IsFavorite: a.IsFavorite,
		ParentID:   parent.ID,
	}
}

// withAttrs returns a copy of n carrying a, keeping identity fields
func withAttrs(n *webmirror.Node, parentPath string, a Attrs) *webmirror.Node {
	cp := *n
	cp.Name = a.Name
	cp.Path = childPath(parentPath, a)
	cp.Kind = a.Kind
	cp.Size = a.Size
	cp.ModifiedAt = a.ModifiedAt
	cp.IsFavorite = a.IsFavorite
	return &cp
}

func childPath(parentPath string, a Attrs) string {
	if a.Path != "" {
		return a.Path
	}
	return parentPath + "/" + a.Name
}

func newRoot() *webmirror.Node {
	return &webmirror.Node{
		ID:     uuid.NewString(),
		Name:   RootName,
		Path:   "",
		Kind:   webmirror.KindDirectory,
		IsRoot: true,
	}
}
