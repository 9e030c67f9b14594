package dbfs

import (
	"context"
	"log/slog"
	"os"
	"time"

	"bazil.org/fuse"

	"github.com/dendrascience/dbooru/backend"
)

// fsys is the state every node variant shares.
type fsys struct {
	b       *backend.Backend
	s       *Session
	logger  *slog.Logger
	uid     uint32
	gid     uint32
	mounted time.Time

	root *rootNode
	all  *allNode
}

func newFsys(b *backend.Backend, logger *slog.Logger) *fsys {
	sys := &fsys{
		b:       b,
		logger:  logger,
		uid:     uint32(os.Getuid()),
		gid:     uint32(os.Getgid()),
		mounted: time.Now(),
	}
	sys.root = &rootNode{sys: sys}
	sys.all = &allNode{sys: sys, pending: make(map[string]*pendingNode)}
	return sys
}

func (sys *fsys) dirAttr(a *fuse.Attr) {
	a.Mode = os.ModeDir | 0o755
	a.Nlink = 2
	a.Size = 4096
	a.Uid = sys.uid
	a.Gid = sys.gid
	a.Atime = sys.mounted
	a.Mtime = sys.mounted
	a.Ctime = sys.mounted
}

// blobAttr fills a from the committed blob fid.
func (sys *fsys) blobAttr(fid string, a *fuse.Attr) error {
	info, err := sys.b.Stat(fid)
	if err != nil {
		return err
	}
	a.Mode = 0o444
	a.Nlink = 1
	a.Size = uint64(info.Size())
	a.Blocks = (a.Size + 511) / 512
	a.Uid = sys.uid
	a.Gid = sys.gid
	a.Atime = info.ModTime()
	a.Mtime = info.ModTime()
	a.Ctime = info.ModTime()
	return nil
}

// inodeFor is the inode number reported in a listing for key.
func (sys *fsys) inodeFor(key string) uint64 {
	if id, ok := sys.s.InodeOf(key); ok {
		return uint64(id)
	}
	return syntheticIno(key)
}

// staticDir lists a fixed set of entries.
type staticDir struct {
	baseHandle
	entries []Dirent
}

func newStaticDir(entries ...Dirent) *staticDir {
	for i := range entries {
		entries[i].Off = uint64(i + 1)
	}
	return &staticDir{entries: entries}
}

func (d *staticDir) Readdir(_ context.Context, off uint64) func(yield func(Dirent, error) bool) {
	return func(yield func(Dirent, error) bool) {
		for i := off; i < uint64(len(d.entries)); i++ {
			if !yield(d.entries[i], nil) {
				return
			}
		}
	}
}

func (d *staticDir) Fsyncdir(context.Context, bool) error { return nil }

func (d *staticDir) Releasedir(context.Context) error { return nil }

var _ Handle = (*staticDir)(nil)
