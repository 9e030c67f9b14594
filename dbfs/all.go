package dbfs

import (
	"context"
	"os"
	"sync"
	"syscall"

	"bazil.org/fuse"

	"github.com/dendrascience/dbooru/metadata"
)

// listPageSize is how many fids one metadata query fetches while listing.
const listPageSize = 256

// allNode is the flat directory of every committed blob. Names created in
// it are pending writes until their handle is released, at which point the
// name disappears and the blob shows up under its fid.
type allNode struct {
	baseNode
	sys *fsys

	mu      sync.Mutex
	pending map[string]*pendingNode
}

func (*allNode) key() string { return "/" + allName }

func (d *allNode) Attr(_ context.Context, a *fuse.Attr) error {
	d.sys.dirAttr(a)
	return nil
}

func (*allNode) Access(context.Context, uint32) error { return nil }

func (d *allNode) Setattr(ctx context.Context, _ *fuse.SetattrRequest, a *fuse.Attr) error {
	return d.Attr(ctx, a)
}

func (d *allNode) pendingNamed(name string) (*pendingNode, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[name]
	return p, ok
}

func (d *allNode) dropPending(name string, p *pendingNode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[name] == p {
		delete(d.pending, name)
	}
}

// Lookup finds an in-flight write by name or a committed blob by fid.
// Names that are not fids do not exist here.
func (d *allNode) Lookup(_ context.Context, name string) (Node, error) {
	if p, ok := d.pendingNamed(name); ok {
		return p, nil
	}
	f, err := d.sys.b.Locator().Parse(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	n := &fileNode{sys: d.sys, fid: f.String()}
	if _, err := d.sys.b.Stat(n.fid); err != nil {
		return nil, err
	}
	return n, nil
}

func (d *allNode) Create(_ context.Context, name string, _ fuse.OpenFlags, _ os.FileMode) (Node, Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[name]; ok {
		return nil, nil, ErrBusy
	}
	w, err := d.sys.b.Create()
	if err != nil {
		return nil, nil, err
	}
	p := newPendingNode(d, name, w)
	d.pending[name] = p
	d.sys.logger.Debug("write started", "name", name)
	return p, &writeHandle{p: p}, nil
}

// Remove deletes a committed blob. Removing a name whose write is still in
// flight is refused.
func (d *allNode) Remove(ctx context.Context, name string, dir bool) error {
	if dir {
		return syscall.ENOTDIR
	}
	if _, ok := d.pendingNamed(name); ok {
		return ErrBusy
	}
	f, err := d.sys.b.Locator().Parse(name)
	if err != nil {
		return syscall.ENOENT
	}
	if err := d.sys.b.Delete(ctx, f.String()); err != nil {
		return err
	}
	d.sys.logger.Info("blob removed", "fid", f.String())
	return nil
}

func (d *allNode) Opendir(context.Context) (Handle, error) {
	return &allDirHandle{d: d}, nil
}

func (*allNode) Getxattr(context.Context, string) ([]byte, error) {
	return nil, metadata.ErrNoAttribute
}

func (*allNode) Listxattr(context.Context) ([]string, error) { return nil, nil }

// allDirHandle lists "." and ".." followed by every fid in the metadata
// store, paging through it from the requested cursor.
type allDirHandle struct {
	baseHandle
	d *allNode
}

func (h *allDirHandle) Readdir(ctx context.Context, off uint64) func(yield func(Dirent, error) bool) {
	sys := h.d.sys
	return func(yield func(Dirent, error) bool) {
		if off == 0 && !yield(Dirent{Inode: sys.inodeFor(h.d.key()), Off: 1, Name: ".", Type: fuse.DT_Dir}, nil) {
			return
		}
		if off <= 1 && !yield(Dirent{Inode: uint64(fuse.RootID), Off: 2, Name: "..", Type: fuse.DT_Dir}, nil) {
			return
		}
		pos := int(max(off, 2) - 2)
		for {
			page, err := sys.b.Metadata().ListFiles(ctx, pos, listPageSize)
			if err != nil {
				yield(Dirent{}, err)
				return
			}
			for _, fid := range page {
				pos++
				de := Dirent{
					Inode: sys.inodeFor(fileKey(fid)),
					Off:   uint64(pos) + 2,
					Name:  fid,
					Type:  fuse.DT_File,
				}
				if !yield(de, nil) {
					return
				}
			}
			if len(page) < listPageSize {
				return
			}
		}
	}
}

func (*allDirHandle) Fsyncdir(context.Context, bool) error { return nil }

func (*allDirHandle) Releasedir(context.Context) error { return nil }

var (
	_ Node   = (*allNode)(nil)
	_ Handle = (*allDirHandle)(nil)
)

