// Package fuse exposes the node store as a read-only FUSE filesystem.
//
// Directories list their children from the store, optionally refreshing from
// the remote first. Leaves read their content through the [Tree]. Children
// still waiting for metadata are listed but fail to open with EAGAIN.
package fuse

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"syscall"
	"time"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/internal/util"
	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
)

const blockSize = 4096

// Tree is the node source of the mount
type Tree interface {
	webmirror.NodeReader
	LoadContent(ctx context.Context, nodeID string) ([]byte, error)
}

// SyncFunc refreshes a directory from the remote
type SyncFunc func(ctx context.Context, nodeID string) error

// Options tune the mounted view
type Options struct {
	AttrTimeout  time.Duration
	EntryTimeout time.Duration
	// SyncOnReaddir refreshes a directory through Sync before listing it
	SyncOnReaddir bool
	Sync          SyncFunc
}

// Node is one mounted store node
type Node struct {
	fs.Inode

	tree Tree
	opts *Options
	id   string
}

var _ fs.InodeEmbedder = (*Node)(nil)
var _ fs.NodeGetattrer = (*Node)(nil)
var _ fs.NodeLookuper = (*Node)(nil)
var _ fs.NodeReaddirer = (*Node)(nil)
var _ fs.NodeOpener = (*Node)(nil)

// NewRoot returns the root of the mounted view
func NewRoot(tree Tree, opts Options) *Node {
	return &Node{tree: tree, opts: &opts, id: tree.Root().ID}
}

func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	node, ok := n.tree.Get(n.id)
	if !ok {
		return syscall.ENOENT
	}
	fillAttr(node, &out.Attr)
	out.SetTimeout(n.opts.AttrTimeout)
	return 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *gofuse.EntryOut) (*fs.Inode, syscall.Errno) {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Trace().Str("parentID", n.id).Str("name", name).Msg("Lookup called")

	child, ok := n.tree.Child(n.id, name)
	if !ok {
		return nil, syscall.ENOENT
	}
	fillAttr(child, &out.Attr)
	out.SetAttrTimeout(n.opts.AttrTimeout)
	out.SetEntryTimeout(n.opts.EntryTimeout)

	embed := &Node{tree: n.tree, opts: n.opts, id: child.ID}
	return n.NewInode(ctx, embed, stableAttr(child)), 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	logger := util.GetLogger("Fuse.Readdir")

	node, ok := n.tree.Get(n.id)
	if !ok {
		return nil, syscall.ENOENT
	}
	if !node.Kind.IsDir() {
		return nil, syscall.ENOTDIR
	}
	if n.opts.SyncOnReaddir && n.opts.Sync != nil {
		if err := n.opts.Sync(ctx, n.id); err != nil {
			// serve the last known listing
			logger.Warn().Err(err).Str("nodeID", n.id).Msg("Refresh before listing failed")
		}
	}

	children, err := n.tree.Children(n.id, "")
	if err != nil {
		return nil, toErrno(err)
	}
	return fs.NewListDirStream(dirEntries(children)), 0
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	logger := util.GetLogger("Fuse.Open")
	logger.Trace().Str("nodeID", n.id).Uint32("flags", flags).Msg("Open called")

	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_APPEND|syscall.O_TRUNC) != 0 {
		return nil, 0, syscall.EROFS
	}
	node, ok := n.tree.Get(n.id)
	switch {
	case !ok:
		return nil, 0, syscall.ENOENT
	case node.Kind.IsDir():
		return nil, 0, syscall.EISDIR
	case !node.HasMetadata():
		return nil, 0, syscall.EAGAIN
	}

	data, err := n.tree.LoadContent(ctx, n.id)
	if err != nil {
		logger.Warn().Err(err).Str("nodeID", n.id).Str("path", node.Path).Msg("Failed to load content")
		return nil, 0, toErrno(err)
	}
	return &handle{data: data}, gofuse.FOPEN_KEEP_CACHE, 0
}

// handle serves reads from content loaded at open
type handle struct {
	data []byte
}

var _ fs.FileReader = (*handle)(nil)

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (gofuse.ReadResult, syscall.Errno) {
	if off < 0 {
		return nil, syscall.EINVAL
	}
	if off >= int64(len(h.data)) {
		return gofuse.ReadResultData(nil), 0
	}
	end := min(off+int64(len(dest)), int64(len(h.data)))
	return gofuse.ReadResultData(h.data[off:end]), 0
}

func fillAttr(n webmirror.Node, out *gofuse.Attr) {
	out.Ino = inoFor(n)
	out.Mode = modeFor(n)
	out.Nlink = 1
	out.Owner = gofuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
	out.Blksize = blockSize
	if n.Size != nil && *n.Size > 0 {
		out.Size = uint64(*n.Size)
		out.Blocks = (out.Size + 511) / 512
	}
	if n.ModifiedAt != nil {
		sec, nsec := uint64(n.ModifiedAt.Unix()), uint32(n.ModifiedAt.Nanosecond())
		out.Mtime, out.Mtimensec = sec, nsec
		out.Atime, out.Atimensec = sec, nsec
		out.Ctime, out.Ctimensec = sec, nsec
	}
}

func modeFor(n webmirror.Node) uint32 {
	if n.Kind.IsDir() {
		return syscall.S_IFDIR | 0o555
	}
	return syscall.S_IFREG | 0o444
}

func stableAttr(n webmirror.Node) fs.StableAttr {
	return fs.StableAttr{Mode: modeFor(n) & syscall.S_IFMT, Ino: inoFor(n)}
}

// inoFor derives the inode number from the node id. A replaced node gets a
// new id and therefore a new inode, so the kernel never serves stale pages.
func inoFor(n webmirror.Node) uint64 {
	if n.IsRoot {
		return gofuse.FUSE_ROOT_ID
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(n.ID))
	ino := h.Sum64()
	if ino <= gofuse.FUSE_ROOT_ID {
		ino += gofuse.FUSE_ROOT_ID + 1
	}
	return ino
}

func dirEntries(children []webmirror.Node) []gofuse.DirEntry {
	entries := make([]gofuse.DirEntry, 0, len(children))
	for _, c := range children {
		if c.Name == "" {
			continue
		}
		entries = append(entries, gofuse.DirEntry{Name: c.Name, Mode: modeFor(c), Ino: inoFor(c)})
	}
	return entries
}

func toErrno(err error) syscall.Errno {
	switch {
	case errors.Is(err, webmirror.ErrNodeNotFound):
		return syscall.ENOENT
	case errors.Is(err, webmirror.ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}
