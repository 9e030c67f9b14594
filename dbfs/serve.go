package dbfs

import (
	"context"
	"errors"
	"io"
	"runtime/debug"
	"sync"
	"syscall"

	"bazil.org/fuse"
)

// Serve reads requests from c until the connection is closed, handling
// each on its own goroutine. It waits for in-flight requests before
// returning.
func (d *Dispatcher) Serve(ctx context.Context, c *fuse.Conn) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		req, err := c.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.serve(ctx, req)
		}()
	}
}

func (d *Dispatcher) fail(req fuse.Request, err error) {
	errno := Errno(err)
	switch errno {
	case syscall.ENOENT, syscall.ENOSYS, syscall.Errno(fuse.ErrNoXattr):
		d.logger.Debug("request failed", "request", req.String(), "errno", errno)
	default:
		d.logger.Warn("request failed", "request", req.String(), "errno", errno, "error", err)
	}
	req.RespondError(fuse.Errno(errno))
}

func (d *Dispatcher) serve(ctx context.Context, req fuse.Request) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while serving request",
				"request", req.String(), "panic", r, "stack", string(debug.Stack()))
			req.RespondError(fuse.Errno(syscall.EIO))
		}
	}()

	switch r := req.(type) {
	case *fuse.StatfsRequest:
		resp, err := d.Statfs(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.AccessRequest:
		if err := d.Access(ctx, r); err != nil {
			d.fail(r, err)
			return
		}
		r.Respond()

	case *fuse.GetattrRequest:
		resp, err := d.Getattr(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.SetattrRequest:
		resp, err := d.Setattr(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.LookupRequest:
		resp, err := d.Lookup(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.CreateRequest:
		resp, err := d.Create(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.MkdirRequest:
		resp, err := d.Mkdir(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.MknodRequest:
		resp, err := d.Mknod(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.RemoveRequest:
		if err := d.Remove(ctx, r); err != nil {
			d.fail(r, err)
			return
		}
		r.Respond()

	case *fuse.RenameRequest:
		if err := d.Rename(ctx, r); err != nil {
			d.fail(r, err)
			return
		}
		r.Respond()

	case *fuse.LinkRequest:
		resp, err := d.Link(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.SymlinkRequest:
		resp, err := d.Symlink(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.ReadlinkRequest:
		target, err := d.Readlink(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(target)

	case *fuse.OpenRequest:
		resp, err := d.Open(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.ReadRequest:
		resp, err := d.Read(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.WriteRequest:
		resp, err := d.Write(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.FlushRequest:
		if err := d.Flush(ctx, r); err != nil {
			d.fail(r, err)
			return
		}
		r.Respond()

	case *fuse.FsyncRequest:
		if err := d.Fsync(ctx, r); err != nil {
			d.fail(r, err)
			return
		}
		r.Respond()

	case *fuse.ReleaseRequest:
		if err := d.Release(ctx, r); err != nil {
			d.fail(r, err)
			return
		}
		r.Respond()

	case *fuse.GetxattrRequest:
		resp, err := d.Getxattr(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.ListxattrRequest:
		resp, err := d.Listxattr(ctx, r)
		if err != nil {
			d.fail(r, err)
			return
		}
		r.Respond(resp)

	case *fuse.SetxattrRequest:
		if err := d.Setxattr(ctx, r); err != nil {
			d.fail(r, err)
			return
		}
		r.Respond()

	case *fuse.RemovexattrRequest:
		if err := d.Removexattr(ctx, r); err != nil {
			d.fail(r, err)
			return
		}
		r.Respond()

	case *fuse.ForgetRequest:
		d.Forget(ctx, []fuse.BatchForgetItem{{NodeID: r.Node, N: r.N}})
		r.Respond()

	case *fuse.BatchForgetRequest:
		d.Forget(ctx, r.Forget)
		r.Respond()

	// Requests run to completion; there is nothing to interrupt.
	case *fuse.InterruptRequest:
		r.Respond()

	case *fuse.DestroyRequest:
		nodes, handles := d.s.Counts()
		d.logger.Info("filesystem destroyed", "inodes", nodes, "handles", handles)
		r.Respond()

	default:
		d.fail(req, ErrNotImplemented)
	}
}
