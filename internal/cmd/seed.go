package cmd

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// seedPoolSize is the number of distinct UUIDs seed content is drawn from.
// Drawing from a small pool produces duplicate content on purpose.
const seedPoolSize = 50

// NewSeedCmd creates and returns the seed subcommand for the dbooru CLI.
// It stores a large number of small test blobs.
func NewSeedCmd() *cobra.Command {
	var (
		blobCount int
		lines     int
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store randomly generated test blobs",
		Long: `Store a number of small blobs for testing dbooru.

Each blob holds UUID lines picked from a pool of 50, so some writes repeat
earlier content and exercise deduplication. Every blob gets a "seed"
attribute with its sequence number.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			if verbose {
				fmt.Fprintf(w, "Generating %d test blobs in %s\n", blobCount, b.Locator().Root())
			}

			pool := make([]string, seedPoolSize)
			for i := range pool {
				pool[i] = uuid.NewString()
			}

			unique := make(map[string]struct{})
			for i := range blobCount {
				var sb strings.Builder
				for range lines {
					sb.WriteString(pool[rand.IntN(len(pool))])
					sb.WriteByte('\n')
				}
				fid, err := b.Put(ctx, strings.NewReader(sb.String()))
				if err != nil {
					return err
				}
				if err := b.Metadata().SetAttribute(ctx, fid, "seed", fmt.Sprint(i)); err != nil {
					return err
				}
				unique[fid] = struct{}{}

				if verbose && (i+1)%1000 == 0 {
					fmt.Fprintf(w, "Created %d/%d blobs...\n", i+1, blobCount)
				}
			}

			fmt.Fprintf(w, "Stored %d blobs, %d unique\n", blobCount, len(unique))
			return nil
		},
	}

	cmd.Flags().IntVarP(&blobCount, "count", "n", 1000, "Number of blobs to store")
	cmd.Flags().IntVarP(&lines, "lines", "l", 2, "UUID lines per blob")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	return cmd
}
