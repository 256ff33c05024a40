// Package cache stores pinned node content on local disk, one file per key.
// There is no index: a file's existence is the source of truth.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/internal/util"
)

const tempPrefix = ".put-"

// ErrInvalidKey is returned for keys that cannot name a cache file
var ErrInvalidKey = errors.New("invalid cache key")

// Cache is a directory backed [webmirror.ContentCache]
type Cache struct {
	dir string
}

var _ webmirror.ContentCache = (*Cache)(nil)

// New creates the cache directory if needed and removes temp files left by
// interrupted writes.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &Cache{dir: dir}
	c.removeStaleTemps()
	return c, nil
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.dir
}

// Put atomically stores data under key. Readers see either the previous entry
// or the complete new one; a failed Put leaves no entry behind.
func (c *Cache) Put(key string, data []byte) error {
	path, err := c.path(key)
	if err != nil {
		return fmt.Errorf("%w: %w", webmirror.ErrCacheWriteFailed, err)
	}
	if err := writeFileAtomic(c.dir, path, data); err != nil {
		logger := util.GetLogger("Cache.Put")
		logger.Error().Err(err).Str("key", key).Msg("Failed to write cache entry")
		return fmt.Errorf("%w: %w", webmirror.ErrCacheWriteFailed, err)
	}
	return nil
}

// Get returns the content stored under key
func (c *Cache) Get(key string) ([]byte, bool) {
	path, err := c.path(key)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger := util.GetLogger("Cache.Get")
			logger.Warn().Err(err).Str("key", key).Msg("Failed to read cache entry")
		}
		return nil, false
	}
	return data, true
}

// Has reports whether an entry exists for key
func (c *Cache) Has(key string) bool {
	path, err := c.path(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes the entry for key. Deleting a missing entry succeeds.
func (c *Cache) Delete(key string) error {
	path, err := c.path(key)
	if err != nil {
		return fmt.Errorf("%w: %w", webmirror.ErrCacheDeleteFailed, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger := util.GetLogger("Cache.Delete")
		logger.Error().Err(err).Str("key", key).Msg("Failed to delete cache entry")
		return fmt.Errorf("%w: %w", webmirror.ErrCacheDeleteFailed, err)
	}
	return nil
}

// Keys returns the key of every stored entry
func (c *Cache) Keys() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && validKey(e.Name()) == nil {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}

func (c *Cache) path(key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	return filepath.Join(c.dir, key), nil
}

func (c *Cache) removeStaleTemps() {
	matches, _ := filepath.Glob(filepath.Join(c.dir, tempPrefix+"*"))
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

// validKey rejects keys that would escape the cache dir or collide with
// temp files
func validKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.HasPrefix(key, "."):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, key)
	case strings.ContainsAny(key, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidKey, key)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in dir, syncs it and renames it
// over path
func writeFileAtomic(dir, path string, data []byte) error {
	f, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
