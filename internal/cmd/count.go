package cmd

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dendrascience/dbooru/resource"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewCountCmd creates and returns the count subcommand for the dbooru CLI.
// It reports how blobs are spread across the shard directories.
func NewCountCmd() *cobra.Command {
	var (
		showShards   bool
		showProgress bool
	)

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count blobs per shard",
		Long: `Count the blobs in the store and how they are distributed across the
sixteen shard directories. Useful for quick statistics about a store and
for checking that the blob tree and metadata agree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			w := cmd.OutOrStdout()
			shards := make(map[string]int)
			var count, stray int
			var size int64
			for blob, err := range b.Blobs() {
				if errors.Is(err, resource.ErrInvalidFid) {
					stray++
					continue
				}
				if err != nil {
					return err
				}
				count++
				size += blob.Size
				shards[blob.Fid.Shard()]++
				if showProgress && count%10000 == 0 {
					fmt.Fprintf(w, "Progress: %s blobs counted\n", humanize.Comma(int64(count)))
				}
			}
			rows, err := b.Metadata().CountFiles(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "Total blobs: %s (%s)\n", humanize.Comma(int64(count)), humanize.IBytes(uint64(size)))
			fmt.Fprintf(w, "Metadata rows: %s\n", humanize.Comma(rows))
			if len(shards) > 0 {
				lo, hi := count, 0
				for _, n := range shards {
					lo = min(lo, n)
					hi = max(hi, n)
				}
				fmt.Fprintf(w, "Shards: %d (min=%d, max=%d)\n", len(shards), lo, hi)
			}
			if stray > 0 {
				fmt.Fprintf(w, "Stray files: %d\n", stray)
			}
			if showShards {
				keys := make([]string, 0, len(shards))
				for k := range shards {
					keys = append(keys, k)
				}
				slices.Sort(keys)
				for _, k := range keys {
					fmt.Fprintf(w, "  %s: %d\n", k, shards[k])
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showShards, "shards", false, "List the count for every shard")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Show progress every 10,000 blobs")

	return cmd
}
