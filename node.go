// Package webmirror contains core domain types and interfaces for the mirrored
// remote file tree
package webmirror

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Node is an immutable snapshot of one entry in the mirrored tree.
// Stores hand out copies; mutate through the store, never in place.
type Node struct {
	ID         string     // Stable for the node's lifetime; also the content cache key
	Name       string     // Unique among siblings (case-sensitive)
	Path       string     // Remote address; "" for the root
	Kind       Kind       // KindUnset until metadata has been fetched
	Size       *int64     // nil until metadata arrives
	ModifiedAt *time.Time // Remote modification time; change-detection key
	IsFavorite bool       // Only true while content is present in the cache
	IsRoot     bool
	ParentID   string // "" for the root
}

// Initial returns the uppercased first character of the name, or "" when the
// name is empty. Used as the section key for listings.
func (n Node) Initial() string {
	r, size := utf8.DecodeRuneInString(n.Name)
	switch {
	case size == 0:
		return ""
	case r == utf8.RuneError:
		// invalid encoding; key on the raw leading byte
		return strings.ToUpper(n.Name[:size])
	}
	return string(unicode.ToUpper(r))
}

// HasMetadata reports whether the node has been populated from a metadata fetch
func (n Node) HasMetadata() bool {
	return n.Kind != KindUnset
}

// SameModTime reports whether the node's stored modification time equals t.
// A node without a stored time never matches.
func (n Node) SameModTime(t *time.Time) bool {
	if n.ModifiedAt == nil || t == nil {
		return false
	}
	return n.ModifiedAt.Equal(*t)
}

// ItemMetadata is the per-item metadata returned by a [RemoteStore]
type ItemMetadata struct {
	Mimetype   string
	Path       string
	Size       *int64
	ModifiedAt *time.Time
}

// Kind derives the node kind from the metadata mimetype
func (m *ItemMetadata) Kind() Kind {
	return KindFromMimetype(m.Mimetype)
}
