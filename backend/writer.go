package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/dendrascience/dbooru/resource"
	"github.com/dendrascience/dbooru/util"
)

// ErrSinkClosed is returned by I/O on a Writer that was committed or
// discarded.
var ErrSinkClosed = errors.New("write sink closed")

// Writer is a temporary write sink. Bytes may be written at any offset;
// Commit turns the final contents into a blob. Concurrent WriteAt and
// ReadAt calls are safe.
type Writer struct {
	b    *Backend
	path string

	mu     sync.RWMutex
	f      *os.File
	off    int64
	fid    string
	closed bool
}

// Create allocates a fresh sink in the store's temp tree, which shares a
// filesystem with the blob tree so the final rename is atomic.
func (b *Backend) Create() (*Writer, error) {
	path := filepath.Join(b.loc.TmpRoot(), uuid.NewString())
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create sink: %w", err)
	}
	return &Writer{b: b, path: path, f: f}, nil
}

// Write appends p after the last sequential write.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrSinkClosed
	}
	n, err := w.f.WriteAt(p, w.off)
	w.off += int64(n)
	return n, err
}

func (w *Writer) WriteAt(p []byte, off int64) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return 0, ErrSinkClosed
	}
	return w.f.WriteAt(p, off)
}

func (w *Writer) ReadAt(p []byte, off int64) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return 0, ErrSinkClosed
	}
	return w.f.ReadAt(p, off)
}

// Truncate sets the sink's length.
func (w *Writer) Truncate(size int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrSinkClosed
	}
	if w.off > size {
		w.off = size
	}
	return w.f.Truncate(size)
}

// Size reports the in-flight length, or the committed blob's length once
// committed.
func (w *Writer) Size() (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.fid != "" {
		info, err := w.b.Stat(w.fid)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}
	if w.closed {
		return 0, ErrSinkClosed
	}
	info, err := w.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Sync flushes the sink to stable storage. With datasync set only the data
// and the metadata needed to read it back are flushed.
func (w *Writer) Sync(datasync bool) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil
	}
	if datasync {
		return fdatasync(w.f)
	}
	return w.f.Sync()
}

// Fid returns the committed fid, or "" before Commit succeeds.
func (w *Writer) Fid() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fid
}

// Commit syncs and closes the sink, hashes its contents, renames it into the blob
// tree and records the fid. The rename is the durability point; a crash
// before the metadata insert leaves an orphan blob that validate reports.
// Commit after a successful Commit returns the same fid.
func (w *Writer) Commit(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fid != "" {
		return w.fid, nil
	}
	if w.closed {
		return "", ErrSinkClosed
	}
	w.closed = true

	if err := w.f.Sync(); err != nil {
		w.f.Close()
		os.Remove(w.path)
		return "", fmt.Errorf("commit: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.path)
		return "", fmt.Errorf("commit: %w", err)
	}

	digest, err := util.GetFileHashChunked(w.path, w.b.chunkSize)
	if err != nil {
		os.Remove(w.path)
		return "", fmt.Errorf("commit: %w", err)
	}
	fid := resource.Fid{Digest: digest}
	dst := w.b.loc.Path(fid)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		os.Remove(w.path)
		return "", fmt.Errorf("commit %s: %w", fid, err)
	}
	if err := os.Chmod(w.path, 0o444); err != nil {
		os.Remove(w.path)
		return "", fmt.Errorf("commit %s: %w", fid, err)
	}
	if err := os.Rename(w.path, dst); err != nil {
		os.Remove(w.path)
		return "", fmt.Errorf("commit %s: %w", fid, err)
	}

	if err := w.b.meta.InsertFile(ctx, fid.String()); err != nil {
		return "", err
	}
	w.fid = fid.String()
	w.b.logger.Debug("blob committed", "fid", w.fid)
	return w.fid, nil
}

// Discard abandons the sink and removes its temporary file. It is a no-op
// after Commit or a previous Discard.
func (w *Writer) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.f.Close()
	if err := os.Remove(w.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
