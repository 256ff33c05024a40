package webmirror

import "errors"

var (
	// ErrListingFailed aborts a sync; the store is left unchanged
	ErrListingFailed = errors.New("directory listing failed")
	// ErrMetadataFetchFailed is per-name and never aborts a sync
	ErrMetadataFetchFailed = errors.New("metadata fetch failed")
	ErrContentFetchFailed  = errors.New("content fetch failed")
	ErrCacheWriteFailed    = errors.New("cache write failed")
	ErrCacheDeleteFailed   = errors.New("cache delete failed")
	// ErrIneligible is returned when toggling a favorite on a non-cacheable kind
	ErrIneligible = errors.New("node kind cannot be favorited")

	ErrNodeNotFound   = errors.New("node not found")
	ErrNameExists     = errors.New("name already exists under parent")
	ErrRootImmutable  = errors.New("root node cannot be deleted or replaced")
	ErrNotDirectory   = errors.New("node is not a directory")
	ErrSyncInProgress = errors.New("node busy: sync or favorite toggle in progress")
	ErrMissingContent = errors.New("content required to favorite node")
	ErrStoreCorrupt   = errors.New("node store is corrupt")
	ErrPushFailed     = errors.New("remote push failed")
)
