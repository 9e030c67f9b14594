package cmd

import (
	"io"

	"github.com/spf13/cobra"
)

// NewCatCmd creates and returns the cat subcommand.
func NewCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat FID...",
		Short: "Write blob contents to standard output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			for _, fid := range args {
				f, err := b.OpenBlob(fid)
				if err != nil {
					return err
				}
				_, err = io.Copy(cmd.OutOrStdout(), f)
				f.Close()
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
