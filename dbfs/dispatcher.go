package dbfs

import (
	"context"
	"errors"
	"log/slog"
	"syscall"
	"time"

	"bazil.org/fuse"

	"github.com/dendrascience/dbooru/backend"
)

// Options configures a Dispatcher.
type Options struct {
	Logger *slog.Logger
	// EntryValid and AttrValid are how long the kernel may cache names and
	// attributes. Pending writes are never cached.
	EntryValid time.Duration
	AttrValid  time.Duration
}

// Dispatcher resolves each kernel request to the node or handle it names
// in the session and forwards it there.
type Dispatcher struct {
	sys        *fsys
	s          *Session
	logger     *slog.Logger
	entryValid time.Duration
	attrValid  time.Duration
}

// New creates a dispatcher with a fresh session over b.
func New(b *backend.Backend, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sys := newFsys(b, logger)
	sys.s = NewSession(sys.root, logger)
	return &Dispatcher{
		sys:        sys,
		s:          sys.s,
		logger:     logger,
		entryValid: opts.EntryValid,
		attrValid:  opts.AttrValid,
	}
}

// Session exposes the inode and handle tables.
func (d *Dispatcher) Session() *Session { return d.s }

func (d *Dispatcher) Statfs(context.Context, *fuse.StatfsRequest) (*fuse.StatfsResponse, error) {
	return statfs(d.sys.b.Locator().Root())
}

func (d *Dispatcher) Access(ctx context.Context, req *fuse.AccessRequest) error {
	n, err := d.s.Node(req.Node)
	if err != nil {
		return err
	}
	return n.Access(ctx, req.Mask)
}

func (d *Dispatcher) attr(ctx context.Context, id fuse.NodeID, n Node) (fuse.Attr, error) {
	var a fuse.Attr
	if err := n.Attr(ctx, &a); err != nil {
		return a, err
	}
	a.Inode = uint64(id)
	if n.cacheable() {
		a.Valid = d.attrValid
	}
	return a, nil
}

func (d *Dispatcher) Getattr(ctx context.Context, req *fuse.GetattrRequest) (*fuse.GetattrResponse, error) {
	n, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	a, err := d.attr(ctx, req.Node, n)
	if err != nil {
		return nil, err
	}
	return &fuse.GetattrResponse{Attr: a}, nil
}

func (d *Dispatcher) Setattr(ctx context.Context, req *fuse.SetattrRequest) (*fuse.SetattrResponse, error) {
	n, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	var a fuse.Attr
	if err := n.Setattr(ctx, req, &a); err != nil {
		return nil, err
	}
	a.Inode = uint64(req.Node)
	if n.cacheable() {
		a.Valid = d.attrValid
	}
	return &fuse.SetattrResponse{Attr: a}, nil
}

// entry registers one lookup of n and builds the reply. Attributes are
// read first so a failing child never takes a lookup count.
func (d *Dispatcher) entry(ctx context.Context, n Node) (fuse.LookupResponse, error) {
	var a fuse.Attr
	if err := n.Attr(ctx, &a); err != nil {
		return fuse.LookupResponse{}, err
	}
	id, n := d.s.Register(n)
	a.Inode = uint64(id)
	resp := fuse.LookupResponse{Node: id, Attr: a}
	if n.cacheable() {
		resp.EntryValid = d.entryValid
		resp.Attr.Valid = d.attrValid
	}
	return resp, nil
}

func (d *Dispatcher) Lookup(ctx context.Context, req *fuse.LookupRequest) (*fuse.LookupResponse, error) {
	parent, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	child, err := parent.Lookup(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	resp, err := d.entry(ctx, child)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (d *Dispatcher) Create(ctx context.Context, req *fuse.CreateRequest) (*fuse.CreateResponse, error) {
	parent, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	child, h, err := parent.Create(ctx, req.Name, req.Flags, req.Mode)
	if err != nil {
		return nil, err
	}
	entry, err := d.entry(ctx, child)
	if err != nil {
		if a, ok := h.(interface{ abandon(context.Context) error }); ok {
			a.abandon(ctx)
		} else {
			h.Release(ctx)
		}
		return nil, err
	}
	return &fuse.CreateResponse{
		LookupResponse: entry,
		OpenResponse:   fuse.OpenResponse{Handle: d.s.Open(h)},
	}, nil
}

func (d *Dispatcher) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (*fuse.MkdirResponse, error) {
	parent, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	child, err := parent.Mkdir(ctx, req.Name, req.Mode)
	if err != nil {
		return nil, err
	}
	entry, err := d.entry(ctx, child)
	if err != nil {
		return nil, err
	}
	return &fuse.MkdirResponse{LookupResponse: entry}, nil
}

func (d *Dispatcher) Mknod(ctx context.Context, req *fuse.MknodRequest) (*fuse.LookupResponse, error) {
	parent, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	child, err := parent.Mknod(ctx, req.Name, req.Mode, req.Rdev)
	if err != nil {
		return nil, err
	}
	entry, err := d.entry(ctx, child)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Remove serves both unlink and rmdir.
func (d *Dispatcher) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	parent, err := d.s.Node(req.Node)
	if err != nil {
		return err
	}
	return parent.Remove(ctx, req.Name, req.Dir)
}

func (d *Dispatcher) Rename(ctx context.Context, req *fuse.RenameRequest) error {
	parent, err := d.s.Node(req.Node)
	if err != nil {
		return err
	}
	newDir, err := d.s.Node(req.NewDir)
	if err != nil {
		return err
	}
	return parent.Rename(ctx, req.OldName, newDir, req.NewName)
}

func (d *Dispatcher) Link(ctx context.Context, req *fuse.LinkRequest) (*fuse.LookupResponse, error) {
	parent, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	target, err := d.s.Node(req.OldNode)
	if err != nil {
		return nil, err
	}
	child, err := parent.Link(ctx, target, req.NewName)
	if err != nil {
		return nil, err
	}
	entry, err := d.entry(ctx, child)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (d *Dispatcher) Symlink(ctx context.Context, req *fuse.SymlinkRequest) (*fuse.SymlinkResponse, error) {
	parent, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	child, err := parent.Symlink(ctx, req.NewName, req.Target)
	if err != nil {
		return nil, err
	}
	entry, err := d.entry(ctx, child)
	if err != nil {
		return nil, err
	}
	return &fuse.SymlinkResponse{LookupResponse: entry}, nil
}

func (d *Dispatcher) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	n, err := d.s.Node(req.Node)
	if err != nil {
		return "", err
	}
	return n.Readlink(ctx)
}

// Open serves open and opendir. Every call gets its own handle.
func (d *Dispatcher) Open(ctx context.Context, req *fuse.OpenRequest) (*fuse.OpenResponse, error) {
	n, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	var h Handle
	if req.Dir {
		h, err = n.Opendir(ctx)
	} else {
		h, err = n.Open(ctx, req.Flags)
	}
	if err != nil {
		return nil, err
	}
	resp := &fuse.OpenResponse{Handle: d.s.Open(h)}
	if _, ok := h.(*fileHandle); ok {
		resp.Flags |= fuse.OpenKeepCache
	}
	return resp, nil
}

// Read serves read and readdir.
func (d *Dispatcher) Read(ctx context.Context, req *fuse.ReadRequest) (*fuse.ReadResponse, error) {
	h, err := d.s.Handle(req.Handle)
	if err != nil {
		return nil, err
	}
	if req.Dir {
		data, err := d.readdir(ctx, h, uint64(req.Offset), req.Size)
		if err != nil {
			return nil, err
		}
		return &fuse.ReadResponse{Data: data}, nil
	}
	data, err := h.Read(ctx, req.Offset, req.Size)
	if err != nil {
		return nil, err
	}
	return &fuse.ReadResponse{Data: data}, nil
}

// readdir encodes entries from cursor off until size bytes are used. An
// error after some entries were encoded is deferred to the next call.
func (d *Dispatcher) readdir(ctx context.Context, h Handle, off uint64, size int) ([]byte, error) {
	buf := make([]byte, 0, size)
	for de, err := range h.Readdir(ctx, off) {
		if err != nil {
			if len(buf) > 0 {
				break
			}
			return nil, err
		}
		if len(buf)+direntSize(de.Name) > size {
			break
		}
		buf = appendDirent(buf, de)
	}
	return buf, nil
}

func (d *Dispatcher) Write(ctx context.Context, req *fuse.WriteRequest) (*fuse.WriteResponse, error) {
	h, err := d.s.Handle(req.Handle)
	if err != nil {
		return nil, err
	}
	n, err := h.Write(ctx, req.Offset, req.Data)
	if err != nil {
		return nil, err
	}
	return &fuse.WriteResponse{Size: n}, nil
}

func (d *Dispatcher) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	h, err := d.s.Handle(req.Handle)
	if err != nil {
		return err
	}
	return h.Flush(ctx)
}

// Fsync serves fsync and fsyncdir.
func (d *Dispatcher) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	h, err := d.s.Handle(req.Handle)
	if err != nil {
		return err
	}
	datasync := req.Flags&1 != 0
	if req.Dir {
		return h.Fsyncdir(ctx, datasync)
	}
	return h.Fsync(ctx, datasync)
}

// Release serves release and releasedir. The handler is torn down once
// its last reference is gone.
func (d *Dispatcher) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h, last, err := d.s.Release(req.Handle)
	if errors.Is(err, ErrStale) {
		return err
	}
	if err != nil {
		d.logger.Error("handle table inconsistent", "handle", req.Handle, "error", err)
	}
	if last {
		var terr error
		if req.Dir {
			terr = h.Releasedir(ctx)
		} else {
			terr = h.Release(ctx)
		}
		if err == nil {
			err = terr
		}
	}
	return err
}

func (d *Dispatcher) Getxattr(ctx context.Context, req *fuse.GetxattrRequest) (*fuse.GetxattrResponse, error) {
	n, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	val, err := n.Getxattr(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	if req.Size != 0 && uint32(len(val)) > req.Size {
		return nil, syscall.ERANGE
	}
	return &fuse.GetxattrResponse{Xattr: val}, nil
}

func (d *Dispatcher) Listxattr(ctx context.Context, req *fuse.ListxattrRequest) (*fuse.ListxattrResponse, error) {
	n, err := d.s.Node(req.Node)
	if err != nil {
		return nil, err
	}
	names, err := n.Listxattr(ctx)
	if err != nil {
		return nil, err
	}
	resp := &fuse.ListxattrResponse{}
	resp.Append(names...)
	if req.Size != 0 && uint32(len(resp.Xattr)) > req.Size {
		return nil, syscall.ERANGE
	}
	return resp, nil
}

func (d *Dispatcher) Setxattr(ctx context.Context, req *fuse.SetxattrRequest) error {
	n, err := d.s.Node(req.Node)
	if err != nil {
		return err
	}
	return n.Setxattr(ctx, req.Name, req.Xattr)
}

func (d *Dispatcher) Removexattr(ctx context.Context, req *fuse.RemovexattrRequest) error {
	n, err := d.s.Node(req.Node)
	if err != nil {
		return err
	}
	return n.Removexattr(ctx, req.Name)
}

// Forget drops lookup counts for a batch of inodes. Forgetting an inode
// that is not resident or more times than it was looked up is logged; the
// remaining items are still applied.
func (d *Dispatcher) Forget(_ context.Context, items []fuse.BatchForgetItem) {
	for _, it := range items {
		err := d.s.Forget(it.NodeID, it.N)
		switch {
		case err == nil:
		case errors.Is(err, ErrRefcountUnderflow):
			d.logger.Error("inode table inconsistent", "inode", it.NodeID, "n", it.N, "error", err)
		default:
			d.logger.Warn("forget of unknown inode", "inode", it.NodeID, "n", it.N)
		}
	}
}
