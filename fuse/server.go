package fuse

import (
	"fmt"
	"os"

	"github.com/brettbedarf/webmirror/config"
	"github.com/brettbedarf/webmirror/internal/util"
	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
)

// Server wraps the underlying gofuse.Server.
type Server struct {
	server *gofuse.Server
}

// Mount mounts tree read-only at mountPoint and waits until the kernel
// reports the mount ready.
func Mount(mountPoint string, tree Tree, opts Options, mount config.MountOptions) (*Server, error) {
	logger := util.GetLogger("Fuse.Mount")

	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}

	lvl := util.InfoLevel
	if mount.Debug {
		lvl = util.TraceLevel
	}
	fsOpts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			Name:    mount.Name,
			FsName:  mount.FsName,
			Debug:   mount.Debug,
			Logger:  util.NewLogLogger("FuseServer", lvl),
			Options: []string{"ro"},
		},
		AttrTimeout:  &opts.AttrTimeout,
		EntryTimeout: &opts.EntryTimeout,
		UID:          uint32(os.Getuid()),
		GID:          uint32(os.Getgid()),
	}

	srv, err := fs.Mount(mountPoint, NewRoot(tree, opts), fsOpts)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", mountPoint, err)
	}
	logger.Info().Str("mountPoint", mountPoint).Msg("Mounted")
	return &Server{server: srv}, nil
}

// Wait blocks until the filesystem is unmounted.
func (s *Server) Wait() {
	s.server.Wait()
}

// Unmount cleanly unmounts the filesystem.
func (s *Server) Unmount() error {
	return s.server.Unmount()
}
