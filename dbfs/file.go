package dbfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"bazil.org/fuse"

	"github.com/dendrascience/dbooru/metadata"
)

// xattrPrefix is the namespace metadata attributes are exposed under.
const xattrPrefix = "user."

func fileKey(fid string) string { return "/" + allName + "/" + fid }

// fileNode is a committed blob. It cannot be written; its metadata
// attributes are readable and writable as user.* extended attributes.
type fileNode struct {
	baseNode
	sys *fsys
	fid string
}

func (n *fileNode) key() string { return fileKey(n.fid) }

func (n *fileNode) Attr(_ context.Context, a *fuse.Attr) error {
	return n.sys.blobAttr(n.fid, a)
}

func (*fileNode) Access(context.Context, uint32) error { return nil }

func (n *fileNode) Setattr(ctx context.Context, req *fuse.SetattrRequest, a *fuse.Attr) error {
	if req.Valid.Size() {
		return fmt.Errorf("truncate %s: %w", n.fid, ErrImmutable)
	}
	return n.Attr(ctx, a)
}

func (n *fileNode) Open(_ context.Context, flags fuse.OpenFlags) (Handle, error) {
	if !flags.IsReadOnly() || flags&(fuse.OpenTruncate|fuse.OpenAppend) != 0 {
		return nil, fmt.Errorf("open %s for writing: %w", n.fid, ErrImmutable)
	}
	f, err := n.sys.b.OpenBlob(n.fid)
	if err != nil {
		return nil, err
	}
	return &fileHandle{f: f}, nil
}

func attrKey(name string) (string, bool) {
	key, ok := strings.CutPrefix(name, xattrPrefix)
	return key, ok && key != ""
}

func (n *fileNode) Getxattr(ctx context.Context, name string) ([]byte, error) {
	key, ok := attrKey(name)
	if !ok {
		return nil, metadata.ErrNoAttribute
	}
	val, err := n.sys.b.Metadata().GetAttribute(ctx, n.fid, key)
	if err != nil {
		return nil, err
	}
	return []byte(val), nil
}

func (n *fileNode) Listxattr(ctx context.Context) ([]string, error) {
	attrs, err := n.sys.b.Metadata().ListAttributes(ctx, n.fid)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(attrs))
	for _, a := range attrs {
		names = append(names, xattrPrefix+a.Key)
	}
	return names, nil
}

func (n *fileNode) Setxattr(ctx context.Context, name string, value []byte) error {
	key, ok := attrKey(name)
	if !ok {
		return syscall.ENOTSUP
	}
	return n.sys.b.Metadata().SetAttribute(ctx, n.fid, key, string(value))
}

func (n *fileNode) Removexattr(ctx context.Context, name string) error {
	key, ok := attrKey(name)
	if !ok {
		return metadata.ErrNoAttribute
	}
	return n.sys.b.Metadata().DeleteAttribute(ctx, n.fid, key)
}

// fileHandle reads a committed blob.
type fileHandle struct {
	baseHandle
	f *os.File
}

func (h *fileHandle) Read(_ context.Context, off int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := h.f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func (*fileHandle) Flush(context.Context) error { return nil }

// Fsync has nothing to do: the blob was synced before it was renamed into
// place and cannot change.
func (*fileHandle) Fsync(context.Context, bool) error { return nil }

func (h *fileHandle) Release(context.Context) error {
	return h.f.Close()
}

var (
	_ Node   = (*fileNode)(nil)
	_ Handle = (*fileHandle)(nil)
)
