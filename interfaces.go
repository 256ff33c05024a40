package webmirror

import (
	"context"
	"time"
)

// RemoteStore is the remote directory service the mirror is reconciled against.
// Implementations must be safe for concurrent use.
type RemoteStore interface {
	// ListDirectory returns the child names of the directory at path, in the
	// order the remote reports them
	ListDirectory(ctx context.Context, path string) ([]string, error)

	// FetchMetadata returns metadata for the item name inside directory dirPath
	FetchMetadata(ctx context.Context, dirPath, name string) (*ItemMetadata, error)

	// FetchContent returns the full payload of the leaf at path
	FetchContent(ctx context.Context, path string) ([]byte, error)

	// PushItem creates a directory or leaf named name inside dirPath.
	// Directories send no body.
	PushItem(ctx context.Context, dirPath, name string, kind Kind, data []byte) error
}

// ContentCache is a name-keyed blob store for pinned payloads.
// Writes must be atomic: a failed Put never leaves a readable entry.
type ContentCache interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, bool)
	Delete(key string) error
	Has(key string) bool
}

// NodeReader is the read-only query surface of the node store
type NodeReader interface {
	Root() Node
	Get(id string) (Node, bool)
	Child(parentID, name string) (Node, bool)
	// Children returns the children of parentID whose name contains search
	// (case-insensitive). An empty search returns all children.
	Children(parentID, search string) ([]Node, error)
}

// RemoteOptions configures a [RemoteStore] built by a [RemoteProvider]
type RemoteOptions struct {
	URL              string            // Base URL every remote path is appended to
	Headers          map[string]string // Sent with every request
	RetryMaxAttempts int               // Attempts per call including the first
	RetryInitialWait time.Duration     // Wait before the first retry
}

// RemoteProvider builds RemoteStores for one registered remote type
type RemoteProvider interface {
	NewRemote(opts RemoteOptions) (RemoteStore, error)
}
