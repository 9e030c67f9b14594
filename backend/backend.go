// Package backend stores immutable blobs named by the SHA-256 of their
// contents and keeps the metadata store in step with the blob tree.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dendrascience/dbooru/metadata"
	"github.com/dendrascience/dbooru/resource"
	"github.com/dendrascience/dbooru/util"
)

// ErrNotInitialized is returned by Open when root has no blob tree.
var ErrNotInitialized = errors.New("store not initialized")

// Options configures a Backend. The zero value is usable.
type Options struct {
	// ChunkSize is the read size used while hashing a committed sink.
	ChunkSize int
	// PoolSize is passed through to the metadata connection pool.
	PoolSize int
	Logger   *slog.Logger
}

// Backend is safe for concurrent use.
type Backend struct {
	loc       *resource.Locator
	meta      *metadata.Store
	logger    *slog.Logger
	chunkSize int
}

// Init creates root, the blob and temp trees, and the metadata schema if
// they are missing, then opens the store. Calling Init on an existing store
// is harmless.
func Init(root string, opts Options) (*Backend, error) {
	loc := resource.NewLocator(root, util.DigestHexLen)
	for _, dir := range []string{loc.Root(), loc.FilesRoot(), loc.TmpRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("init %s: %w", root, err)
		}
	}
	return Open(root, opts)
}

// Open opens an initialized store.
func Open(root string, opts Options) (*Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = util.HashChunkSize
	}

	loc := resource.NewLocator(root, util.DigestHexLen)
	for _, dir := range []string{loc.FilesRoot(), loc.TmpRoot()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("open %s: %w", root, ErrNotInitialized)
		}
	}

	meta, err := metadata.Open(loc.DBPath(), metadata.Options{
		PoolSize: opts.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &Backend{
		loc:       loc,
		meta:      meta,
		logger:    logger,
		chunkSize: chunkSize,
	}, nil
}

// Close releases the metadata store.
func (b *Backend) Close() error {
	return b.meta.Close()
}

func (b *Backend) Locator() *resource.Locator { return b.loc }

func (b *Backend) Metadata() *metadata.Store { return b.meta }

// Stat returns the blob's file info without reading content. A fid whose
// blob is missing reports an error wrapping fs.ErrNotExist even if a
// metadata row remains.
func (b *Backend) Stat(fid string) (fs.FileInfo, error) {
	path, err := b.loc.Resolve(fid)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// OpenBlob opens the blob for reading.
func (b *Backend) OpenBlob(fid string) (*os.File, error) {
	path, err := b.loc.Resolve(fid)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete unlinks the blob and then removes its metadata row. The two steps
// are not atomic: a blob that is already gone with its row still present is
// treated as a completed first step. Delete fails with fs.ErrNotExist only
// when neither the blob nor the row existed.
func (b *Backend) Delete(ctx context.Context, fid string) error {
	f, err := b.loc.Parse(fid)
	if err != nil {
		return err
	}
	path := b.loc.Path(f)

	blobGone := false
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", fid, err)
		}
		blobGone = true
	}

	existed, err := b.meta.DeleteFile(ctx, f.String())
	if err != nil {
		return err
	}
	switch {
	case blobGone && !existed:
		return fmt.Errorf("delete %s: %w", fid, fs.ErrNotExist)
	case blobGone:
		b.logger.Warn("removed metadata for missing blob", "fid", f.String())
	case !existed:
		b.logger.Warn("removed blob with no metadata row", "fid", f.String())
	}
	b.logger.Debug("blob deleted", "fid", f.String())
	return nil
}

// Put stores everything read from r and returns its fid.
func (b *Backend) Put(ctx context.Context, r io.Reader) (string, error) {
	return b.WithWriter(ctx, func(w *Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// WithWriter creates a sink, hands it to fn and commits it if fn returns
// nil. On any error the sink is discarded so no partial blob ever becomes
// visible.
func (b *Backend) WithWriter(ctx context.Context, fn func(*Writer) error) (fid string, err error) {
	w, err := b.Create()
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			w.Discard()
		}
	}()
	if err = fn(w); err != nil {
		return "", err
	}
	return w.Commit(ctx)
}

// Verify rehashes the blob and reports whether its contents still match
// its fid. The computed digest is returned either way.
func (b *Backend) Verify(fid string) (bool, string, error) {
	f, err := b.loc.Parse(fid)
	if err != nil {
		return false, "", err
	}
	digest, err := util.GetFileHashChunked(b.loc.Path(f), b.chunkSize)
	if err != nil {
		return false, "", err
	}
	return digest == f.Digest, digest, nil
}

// Blob is one entry found by walking the blob tree.
type Blob struct {
	Fid  resource.Fid
	Path string
	Size int64
}

// Blobs walks the blob tree. Entries whose names are not valid blob paths
// are yielded with an error wrapping resource.ErrInvalidFid and the walk
// continues; any other error ends it.
func (b *Backend) Blobs() func(yield func(Blob, error) bool) {
	return func(yield func(Blob, error) bool) {
		root := b.loc.FilesRoot()
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			f, perr := b.loc.FromPath(path)
			if perr != nil {
				if !yield(Blob{Path: path}, perr) {
					return fs.SkipAll
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if !yield(Blob{Fid: f, Path: path, Size: info.Size()}, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(Blob{}, err)
		}
	}
}

// StaleTemps lists sinks left in the temp tree by writers that never
// committed or discarded, such as after a crash.
func (b *Backend) StaleTemps() ([]string, error) {
	entries, err := os.ReadDir(b.loc.TmpRoot())
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, filepath.Join(b.loc.TmpRoot(), e.Name()))
	}
	return paths, nil
}
