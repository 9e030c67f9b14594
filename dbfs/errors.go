package dbfs

import (
	"context"
	"errors"
	"io/fs"
	"syscall"

	"bazil.org/fuse"

	"github.com/dendrascience/dbooru/backend"
	"github.com/dendrascience/dbooru/metadata"
	"github.com/dendrascience/dbooru/resource"
)

var (
	// ErrNotImplemented is returned by node and handle variants for
	// operations they do not support.
	ErrNotImplemented = errors.New("operation not implemented")

	// ErrStale is returned when a request names an inode or handle that is
	// not in the session tables.
	ErrStale = errors.New("unknown inode or handle")

	// ErrImmutable is returned for attempts to modify a committed blob.
	ErrImmutable = errors.New("committed blobs are immutable")

	// ErrBusy is returned when a name already has a write in flight.
	ErrBusy = errors.New("write in progress")

	// ErrRefcountUnderflow is returned when a forget or release would take
	// a refcount below zero. The entry is evicted regardless.
	ErrRefcountUnderflow = errors.New("refcount underflow")
)

// Errno translates err into the errno sent to the kernel. Errors that are
// already a syscall.Errno pass through unchanged.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	switch {
	case errors.Is(err, ErrNotImplemented):
		return syscall.ENOSYS
	case errors.Is(err, ErrStale):
		return syscall.ESTALE
	case errors.Is(err, resource.ErrInvalidFid):
		return syscall.EINVAL
	case errors.Is(err, ErrImmutable):
		return syscall.EPERM
	case errors.Is(err, ErrBusy):
		return syscall.EBUSY
	case errors.Is(err, metadata.ErrNoAttribute):
		return syscall.Errno(fuse.ErrNoXattr)
	case errors.Is(err, backend.ErrSinkClosed):
		return syscall.EBADF
	case errors.Is(err, context.Canceled):
		return syscall.EINTR
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, fs.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, fs.ErrExist):
		return syscall.EEXIST
	default:
		return syscall.EIO
	}
}
