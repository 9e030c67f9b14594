package dbfs

import (
	"context"
	"os"

	"bazil.org/fuse"
)

// Node is the capability set of one filesystem entry. The variants are
// rootNode, allNode, fileNode and pendingNode; operations a variant does
// not support fail with ErrNotImplemented through the embedded baseNode.
type Node interface {
	// key is the identity used to deduplicate inodes in the session.
	key() string
	// cacheable reports whether the kernel may cache lookups of this node.
	cacheable() bool

	Attr(ctx context.Context, a *fuse.Attr) error
	Access(ctx context.Context, mask uint32) error
	Setattr(ctx context.Context, req *fuse.SetattrRequest, a *fuse.Attr) error

	Lookup(ctx context.Context, name string) (Node, error)
	Create(ctx context.Context, name string, flags fuse.OpenFlags, mode os.FileMode) (Node, Handle, error)
	Mkdir(ctx context.Context, name string, mode os.FileMode) (Node, error)
	Mknod(ctx context.Context, name string, mode os.FileMode, rdev uint32) (Node, error)
	Remove(ctx context.Context, name string, dir bool) error
	Rename(ctx context.Context, oldName string, newDir Node, newName string) error
	Link(ctx context.Context, target Node, newName string) (Node, error)
	Symlink(ctx context.Context, newName, target string) (Node, error)
	Readlink(ctx context.Context) (string, error)

	Open(ctx context.Context, flags fuse.OpenFlags) (Handle, error)
	Opendir(ctx context.Context) (Handle, error)

	Getxattr(ctx context.Context, name string) ([]byte, error)
	Listxattr(ctx context.Context) ([]string, error)
	Setxattr(ctx context.Context, name string, value []byte) error
	Removexattr(ctx context.Context, name string) error
}

type baseNode struct{}

func (baseNode) cacheable() bool { return true }

func (baseNode) Attr(context.Context, *fuse.Attr) error { return ErrNotImplemented }

func (baseNode) Access(context.Context, uint32) error { return ErrNotImplemented }

func (baseNode) Setattr(context.Context, *fuse.SetattrRequest, *fuse.Attr) error {
	return ErrNotImplemented
}

func (baseNode) Lookup(context.Context, string) (Node, error) { return nil, ErrNotImplemented }

func (baseNode) Create(context.Context, string, fuse.OpenFlags, os.FileMode) (Node, Handle, error) {
	return nil, nil, ErrNotImplemented
}

func (baseNode) Mkdir(context.Context, string, os.FileMode) (Node, error) {
	return nil, ErrNotImplemented
}

func (baseNode) Mknod(context.Context, string, os.FileMode, uint32) (Node, error) {
	return nil, ErrNotImplemented
}

func (baseNode) Remove(context.Context, string, bool) error { return ErrNotImplemented }

func (baseNode) Rename(context.Context, string, Node, string) error { return ErrNotImplemented }

func (baseNode) Link(context.Context, Node, string) (Node, error) { return nil, ErrNotImplemented }

func (baseNode) Symlink(context.Context, string, string) (Node, error) {
	return nil, ErrNotImplemented
}

func (baseNode) Readlink(context.Context) (string, error) { return "", ErrNotImplemented }

func (baseNode) Open(context.Context, fuse.OpenFlags) (Handle, error) {
	return nil, ErrNotImplemented
}

func (baseNode) Opendir(context.Context) (Handle, error) { return nil, ErrNotImplemented }

func (baseNode) Getxattr(context.Context, string) ([]byte, error) { return nil, ErrNotImplemented }

func (baseNode) Listxattr(context.Context) ([]string, error) { return nil, ErrNotImplemented }

func (baseNode) Setxattr(context.Context, string, []byte) error { return ErrNotImplemented }

func (baseNode) Removexattr(context.Context, string) error { return ErrNotImplemented }

// Dirent is one directory entry. Off is the cursor at which a listing
// resumes after this entry.
type Dirent struct {
	Inode uint64
	Off   uint64
	Name  string
	Type  fuse.DirentType
}

// Handle is the capability set of one open instance of a node.
type Handle interface {
	Read(ctx context.Context, off int64, size int) ([]byte, error)
	// Readdir yields entries starting at cursor off. Callers stop pulling
	// once their buffer is full.
	Readdir(ctx context.Context, off uint64) func(yield func(Dirent, error) bool)
	Write(ctx context.Context, off int64, data []byte) (int, error)
	Flush(ctx context.Context) error
	Fsync(ctx context.Context, datasync bool) error
	Fsyncdir(ctx context.Context, datasync bool) error
	Release(ctx context.Context) error
	Releasedir(ctx context.Context) error
}

type baseHandle struct{}

func (baseHandle) Read(context.Context, int64, int) ([]byte, error) { return nil, ErrNotImplemented }

func (baseHandle) Readdir(context.Context, uint64) func(yield func(Dirent, error) bool) {
	return func(yield func(Dirent, error) bool) {
		yield(Dirent{}, ErrNotImplemented)
	}
}

func (baseHandle) Write(context.Context, int64, []byte) (int, error) { return 0, ErrNotImplemented }

func (baseHandle) Flush(context.Context) error { return ErrNotImplemented }

func (baseHandle) Fsync(context.Context, bool) error { return ErrNotImplemented }

func (baseHandle) Fsyncdir(context.Context, bool) error { return ErrNotImplemented }

func (baseHandle) Release(context.Context) error { return ErrNotImplemented }

func (baseHandle) Releasedir(context.Context) error { return ErrNotImplemented }
