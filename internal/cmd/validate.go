package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"sync"

	"github.com/dendrascience/dbooru/backend"
	"github.com/dendrascience/dbooru/resource"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewValidateCmd creates and returns the validate subcommand for the dbooru
// CLI. It checks the blob tree against the metadata store.
func NewValidateCmd() *cobra.Command {
	var (
		workers int
		verbose bool
		repair  bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check blobs and metadata for corruption and consistency",
		Long: `Validate the store by rehashing every blob and comparing the blob tree
with the metadata database.

Problems found:
  - corrupt: a blob whose contents no longer match its fid
  - orphan: a blob with no metadata row (a commit interrupted after rename)
  - dangling: a metadata row with no blob (a delete interrupted after unlink)
  - stray: a file in the blob tree whose name is not a fid
  - stale: a leftover write sink in the temp directory

With --repair, orphans that verify are recorded, dangling rows are removed
and stale sinks are deleted. Corrupt and stray files are only reported.
Do not repair a store that is currently mounted: its in-flight writes look
like stale sinks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, logger, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			r, err := validateStore(cmd.Context(), b, logger, workers, repair)
			if err != nil {
				return err
			}
			r.print(cmd.OutOrStdout(), verbose)
			if n := r.unresolved(repair); n > 0 {
				return fmt.Errorf("validation found %d problems", n)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "j", runtime.NumCPU(), "Number of blobs verified concurrently")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every problem found")
	cmd.Flags().BoolVar(&repair, "repair", false, "Fix orphans, dangling rows and stale sinks")

	return cmd
}

type validateReport struct {
	blobs    int
	rows     int
	corrupt  []string
	orphans  []string
	dangling []string
	stray    []string
	stale    []string
	repaired int
}

// unresolved counts problems left in the store after the run.
func (r *validateReport) unresolved(repaired bool) int {
	n := len(r.corrupt) + len(r.stray)
	if !repaired {
		n += len(r.orphans) + len(r.dangling) + len(r.stale)
	}
	return n
}

func (r *validateReport) print(w io.Writer, verbose bool) {
	sections := []struct {
		name  string
		items []string
	}{
		{"Corrupt blobs", r.corrupt},
		{"Orphan blobs", r.orphans},
		{"Dangling rows", r.dangling},
		{"Stray files", r.stray},
		{"Stale sinks", r.stale},
	}

	fmt.Fprintf(w, "Validation complete:\n")
	fmt.Fprintf(w, "  Blobs checked: %d\n", r.blobs)
	fmt.Fprintf(w, "  Metadata rows: %d\n", r.rows)
	for _, s := range sections {
		fmt.Fprintf(w, "  %s: %d\n", s.name, len(s.items))
		if verbose {
			for _, item := range s.items {
				fmt.Fprintf(w, "    - %s\n", item)
			}
		}
	}
	if r.repaired > 0 {
		fmt.Fprintf(w, "  Repaired: %d\n", r.repaired)
	}
}

// validateStore walks the blob tree once, verifying digests on a bounded
// pool, then walks the metadata rows to find the ones with no blob.
func validateStore(ctx context.Context, b *backend.Backend, logger *slog.Logger, workers int, repair bool) (*validateReport, error) {
	if workers < 1 {
		workers = 1
	}
	r := &validateReport{}
	meta := b.Metadata()

	var mu sync.Mutex
	onDisk := make(map[string]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for blob, err := range b.Blobs() {
		if errors.Is(err, resource.ErrInvalidFid) {
			r.stray = append(r.stray, blob.Path)
			continue
		}
		if err != nil {
			g.Wait()
			return nil, err
		}
		fid := blob.Fid.String()
		r.blobs++
		onDisk[fid] = struct{}{}

		g.Go(func() error {
			ok, digest, err := b.Verify(fid)
			if err != nil {
				return fmt.Errorf("verify %s: %w", fid, err)
			}
			tracked, err := meta.HasFile(gctx, fid)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if !ok {
				logger.Error("blob digest mismatch", "fid", fid, "digest", digest)
				r.corrupt = append(r.corrupt, fid)
				return nil
			}
			if !tracked {
				r.orphans = append(r.orphans, fid)
				if repair {
					if err := meta.InsertFile(gctx, fid); err != nil {
						return err
					}
					logger.Info("recorded orphan blob", "fid", fid)
					r.repaired++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.Sort(r.corrupt)
	slices.Sort(r.orphans)

	for fid, err := range meta.Files(ctx, 1024) {
		if err != nil {
			return nil, err
		}
		r.rows++
		if _, ok := onDisk[fid]; !ok {
			r.dangling = append(r.dangling, fid)
		}
	}
	// Rows are removed after the iteration so paging is not disturbed.
	if repair {
		for _, fid := range r.dangling {
			if _, err := meta.DeleteFile(ctx, fid); err != nil {
				return nil, err
			}
			logger.Info("removed dangling row", "fid", fid)
			r.repaired++
		}
	}

	stale, err := b.StaleTemps()
	if err != nil {
		return nil, err
	}
	r.stale = stale
	if repair {
		for _, path := range stale {
			if err := os.Remove(path); err != nil {
				return nil, err
			}
			logger.Info("removed stale sink", "path", path)
			r.repaired++
		}
	}

	return r, nil
}
