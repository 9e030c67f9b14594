package dbfs

import (
	"context"
	"syscall"

	"bazil.org/fuse"

	"github.com/dendrascience/dbooru/metadata"
)

// allName is the only entry of the mount root.
const allName = "all"

// rootNode is the mount root. It holds the all directory and nothing else.
type rootNode struct {
	baseNode
	sys *fsys
}

func (*rootNode) key() string { return "/" }

func (r *rootNode) Attr(_ context.Context, a *fuse.Attr) error {
	r.sys.dirAttr(a)
	a.Nlink = 3
	return nil
}

func (*rootNode) Access(context.Context, uint32) error { return nil }

func (r *rootNode) Setattr(ctx context.Context, _ *fuse.SetattrRequest, a *fuse.Attr) error {
	return r.Attr(ctx, a)
}

func (r *rootNode) Lookup(_ context.Context, name string) (Node, error) {
	if name == allName {
		return r.sys.all, nil
	}
	return nil, syscall.ENOENT
}

func (r *rootNode) Remove(_ context.Context, name string, _ bool) error {
	if name == allName {
		return syscall.EPERM
	}
	return syscall.ENOENT
}

func (r *rootNode) Opendir(context.Context) (Handle, error) {
	return newStaticDir(
		Dirent{Inode: uint64(fuse.RootID), Name: ".", Type: fuse.DT_Dir},
		Dirent{Inode: uint64(fuse.RootID), Name: "..", Type: fuse.DT_Dir},
		Dirent{Inode: r.sys.inodeFor(r.sys.all.key()), Name: allName, Type: fuse.DT_Dir},
	), nil
}

func (*rootNode) Getxattr(context.Context, string) ([]byte, error) {
	return nil, metadata.ErrNoAttribute
}

func (*rootNode) Listxattr(context.Context) ([]string, error) { return nil, nil }

var _ Node = (*rootNode)(nil)
