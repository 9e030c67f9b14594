package dbfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"bazil.org/fuse"
	"github.com/google/uuid"

	"github.com/dendrascience/dbooru/backend"
	"github.com/dendrascience/dbooru/metadata"
)

// pendingNode is a file created in all whose contents are still being
// written. It has exactly one write handle; when that handle is released
// the contents are committed and the node then describes the blob.
type pendingNode struct {
	baseNode
	dir     *allNode
	name    string
	id      string
	w       *backend.Writer
	created time.Time

	mu     sync.Mutex
	open   bool
	failed error
}

func newPendingNode(dir *allNode, name string, w *backend.Writer) *pendingNode {
	return &pendingNode{
		dir:     dir,
		name:    name,
		id:      uuid.NewString(),
		w:       w,
		created: time.Now(),
		open:    true,
	}
}

func (p *pendingNode) key() string { return "pending:" + p.id }

// Lookups of a pending name must not be cached: the name goes away at
// commit.
func (*pendingNode) cacheable() bool { return false }

// committed returns the blob this write became, if it has been committed.
func (p *pendingNode) committed() (*fileNode, bool) {
	fid := p.w.Fid()
	if fid == "" {
		return nil, false
	}
	return &fileNode{sys: p.dir.sys, fid: fid}, true
}

func (p *pendingNode) Attr(ctx context.Context, a *fuse.Attr) error {
	if f, ok := p.committed(); ok {
		return f.Attr(ctx, a)
	}
	size, err := p.w.Size()
	if err != nil {
		return err
	}
	sys := p.dir.sys
	a.Mode = 0o644
	a.Nlink = 1
	a.Size = uint64(size)
	a.Blocks = (a.Size + 511) / 512
	a.Uid = sys.uid
	a.Gid = sys.gid
	a.Atime = p.created
	a.Mtime = p.created
	a.Ctime = p.created
	return nil
}

func (*pendingNode) Access(context.Context, uint32) error { return nil }

func (p *pendingNode) Setattr(ctx context.Context, req *fuse.SetattrRequest, a *fuse.Attr) error {
	if f, ok := p.committed(); ok {
		return f.Setattr(ctx, req, a)
	}
	if req.Valid.Size() {
		if err := p.w.Truncate(int64(req.Size)); err != nil {
			return err
		}
	}
	return p.Attr(ctx, a)
}

// Open hands out a second handle only after commit, and then only for
// reading.
func (p *pendingNode) Open(ctx context.Context, flags fuse.OpenFlags) (Handle, error) {
	if f, ok := p.committed(); ok {
		return f.Open(ctx, flags)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return nil, fmt.Errorf("open %s: %w", p.name, ErrBusy)
	}
	if p.failed != nil {
		return nil, fmt.Errorf("open %s: %w", p.name, p.failed)
	}
	return nil, fmt.Errorf("open %s: %w", p.name, fs.ErrNotExist)
}

func (p *pendingNode) Getxattr(ctx context.Context, name string) ([]byte, error) {
	if f, ok := p.committed(); ok {
		return f.Getxattr(ctx, name)
	}
	return nil, metadata.ErrNoAttribute
}

func (p *pendingNode) Listxattr(ctx context.Context) ([]string, error) {
	if f, ok := p.committed(); ok {
		return f.Listxattr(ctx)
	}
	return nil, nil
}

func (p *pendingNode) Setxattr(ctx context.Context, name string, value []byte) error {
	if f, ok := p.committed(); ok {
		return f.Setxattr(ctx, name, value)
	}
	return ErrBusy
}

func (p *pendingNode) Removexattr(ctx context.Context, name string) error {
	if f, ok := p.committed(); ok {
		return f.Removexattr(ctx, name)
	}
	return metadata.ErrNoAttribute
}

// finish commits the sink, or discards it when abort is set, and retires
// the pending name.
func (p *pendingNode) finish(ctx context.Context, abort bool) error {
	logger := p.dir.sys.logger
	defer p.dir.dropPending(p.name, p)

	var err error
	if abort {
		err = p.w.Discard()
	} else {
		var fid string
		fid, err = p.w.Commit(ctx)
		if err != nil {
			p.w.Discard()
			logger.Error("commit failed", "name", p.name, "error", err)
		} else {
			logger.Info("blob committed", "name", p.name, "fid", fid)
		}
	}

	p.mu.Lock()
	p.open = false
	if abort {
		p.failed = fs.ErrNotExist
	} else {
		p.failed = err
	}
	p.mu.Unlock()
	return err
}

// writeHandle is the single handle of a pendingNode.
type writeHandle struct {
	baseHandle
	p *pendingNode
}

func (h *writeHandle) Read(_ context.Context, off int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := h.p.w.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func (h *writeHandle) Write(_ context.Context, off int64, data []byte) (int, error) {
	return h.p.w.WriteAt(data, off)
}

func (*writeHandle) Flush(context.Context) error { return nil }

func (h *writeHandle) Fsync(_ context.Context, datasync bool) error {
	return h.p.w.Sync(datasync)
}

// Release commits the written contents.
func (h *writeHandle) Release(ctx context.Context) error {
	return h.p.finish(ctx, false)
}

// abandon discards the write without committing it.
func (h *writeHandle) abandon(ctx context.Context) error {
	return h.p.finish(ctx, true)
}

var (
	_ Node   = (*pendingNode)(nil)
	_ Handle = (*writeHandle)(nil)
)
