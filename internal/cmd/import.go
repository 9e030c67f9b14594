package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dendrascience/dbooru/backend"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewImportCmd creates and returns the import subcommand, which stores
// every regular file under a directory tree in parallel.
func NewImportCmd() *cobra.Command {
	var (
		workers int
		verbose bool
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "import DIR",
		Short: "Store every file in a directory tree",
		Long: `Walk DIR and store each regular file as a blob. The file's path relative
to DIR is recorded as the "name" attribute; a file whose contents are
already stored only gains the attribute.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", args[0])
			}
			if dryRun {
				return listImport(cmd, args[0])
			}

			b, _, logger, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			stats, err := importTree(cmd.Context(), b, logger, args[0], workers, verbose, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			total, err := b.Metadata().CountFiles(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s files (%s), %d failed; store holds %s blobs\n",
				humanize.Comma(stats.files.Load()), humanize.IBytes(uint64(stats.bytes.Load())),
				stats.failed.Load(), humanize.Comma(total))
			if stats.failed.Load() > 0 {
				return fmt.Errorf("%d files failed to import", stats.failed.Load())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "j", runtime.NumCPU(), "Number of files stored concurrently")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print each stored file and its fid")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the files that would be stored")

	return cmd
}

type importStats struct {
	files  atomic.Int64
	failed atomic.Int64
	bytes  atomic.Int64
}

func listImport(cmd *cobra.Command, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	})
}

// importTree walks dir on the calling goroutine and feeds paths to the
// workers. Per-file errors are logged and counted; only a walk error or
// cancellation is returned.
func importTree(ctx context.Context, b *backend.Backend, logger *slog.Logger, dir string, workers int, verbose bool, out io.Writer) (*importStats, error) {
	if workers < 1 {
		workers = 1
	}
	stats := &importStats{}
	paths := make(chan string, workers*2)

	var wg sync.WaitGroup
	var outMu sync.Mutex
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				fid, size, err := importFile(ctx, b, dir, path)
				if err != nil {
					logger.Error("import failed", "path", path, "err", err)
					stats.failed.Add(1)
					continue
				}
				stats.files.Add(1)
				stats.bytes.Add(size)
				if verbose {
					outMu.Lock()
					fmt.Fprintf(out, "%s %s\n", fid, path)
					outMu.Unlock()
				}
			}
		}()
	}

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		select {
		case paths <- path:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(paths)
	wg.Wait()

	return stats, walkErr
}

func importFile(ctx context.Context, b *backend.Backend, dir, path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}

	fid, err := b.Put(ctx, f)
	if err != nil {
		return "", 0, err
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		rel = path
	}
	if err := b.Metadata().SetAttribute(ctx, fid, nameAttribute, filepath.ToSlash(rel)); err != nil {
		return "", 0, err
	}
	return fid, info.Size(), nil
}
