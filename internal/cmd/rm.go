package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRmCmd creates and returns the rm subcommand. Removing a blob also
// removes its attributes.
func NewRmCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "rm FID...",
		Short: "Delete blobs and their attributes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			for _, fid := range args {
				if err := b.Delete(cmd.Context(), fid); err != nil {
					return err
				}
				if verbose {
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", fid)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print each removed fid")

	return cmd
}
