package cmd

import (
	"fmt"

	"github.com/dendrascience/dbooru/backend"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewStatCmd creates and returns the stat subcommand, which prints a
// blob's size, location and attributes.
func NewStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat FID...",
		Short: "Show blob details and attributes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			for i, fid := range args {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				if err := printStat(cmd, b, fid); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func printStat(cmd *cobra.Command, b *backend.Backend, fid string) error {
	ctx := cmd.Context()
	fid, err := canonicalFid(b, fid)
	if err != nil {
		return err
	}
	path, err := b.Locator().Resolve(fid)
	if err != nil {
		return err
	}
	info, err := b.Stat(fid)
	if err != nil {
		return err
	}
	tracked, err := b.Metadata().HasFile(ctx, fid)
	if err != nil {
		return err
	}
	attrs, err := b.Metadata().ListAttributes(ctx, fid)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Fid:      %s\n", fid)
	fmt.Fprintf(w, "Path:     %s\n", path)
	fmt.Fprintf(w, "Size:     %s (%d bytes)\n", humanize.IBytes(uint64(info.Size())), info.Size())
	fmt.Fprintf(w, "Mode:     %s\n", info.Mode())
	fmt.Fprintf(w, "Modified: %s (%s)\n", info.ModTime().Format("2006-01-02 15:04:05"), humanize.Time(info.ModTime()))
	if !tracked {
		fmt.Fprintln(w, "Warning:  blob has no metadata row; run validate --repair")
	}
	printAttributes(w, attrs)
	return nil
}
