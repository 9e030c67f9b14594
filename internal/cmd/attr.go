package cmd

import (
	"fmt"
	"io"

	"github.com/dendrascience/dbooru/metadata"
	"github.com/spf13/cobra"
)

// NewAttrCmd creates and returns the attr command group for reading and
// modifying blob attributes.
func NewAttrCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attr",
		Short: "Get, set, list and remove blob attributes",
		Long: `Attributes are string key/value pairs stored per blob. They are removed
with the blob and are visible through a mount as user.<key> extended
attributes.`,
	}

	cmd.AddCommand(
		newAttrGetCmd(),
		newAttrSetCmd(),
		newAttrRmCmd(),
		newAttrLsCmd(),
	)
	return cmd
}

// attrCmd builds a subcommand that receives the canonical fid and the
// remaining arguments with the store open.
func attrCmd(use, short string, nargs int, run func(cmd *cobra.Command, s *metadata.Store, fid string, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			fid, err := canonicalFid(b, args[0])
			if err != nil {
				return err
			}
			return run(cmd, b.Metadata(), fid, args[1:])
		},
	}
}

func newAttrGetCmd() *cobra.Command {
	return attrCmd("get FID KEY", "Print one attribute", 2,
		func(cmd *cobra.Command, s *metadata.Store, fid string, args []string) error {
			val, err := s.GetAttribute(cmd.Context(), fid, args[0])
			if err != nil {
				return fmt.Errorf("%s %s: %w", fid, args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		})
}

func newAttrSetCmd() *cobra.Command {
	return attrCmd("set FID KEY VALUE", "Set an attribute, replacing any existing value", 3,
		func(cmd *cobra.Command, s *metadata.Store, fid string, args []string) error {
			return s.SetAttribute(cmd.Context(), fid, args[0], args[1])
		})
}

func newAttrRmCmd() *cobra.Command {
	return attrCmd("rm FID KEY", "Remove an attribute", 2,
		func(cmd *cobra.Command, s *metadata.Store, fid string, args []string) error {
			if err := s.DeleteAttribute(cmd.Context(), fid, args[0]); err != nil {
				return fmt.Errorf("%s %s: %w", fid, args[0], err)
			}
			return nil
		})
}

func newAttrLsCmd() *cobra.Command {
	return attrCmd("ls FID", "List all attributes of a blob", 1,
		func(cmd *cobra.Command, s *metadata.Store, fid string, _ []string) error {
			attrs, err := s.ListAttributes(cmd.Context(), fid)
			if err != nil {
				return err
			}
			printAttributes(cmd.OutOrStdout(), attrs)
			return nil
		})
}

func printAttributes(w io.Writer, attrs []metadata.Attribute) {
	for _, a := range attrs {
		fmt.Fprintf(w, "%s=%s\n", a.Key, a.Value)
	}
}
