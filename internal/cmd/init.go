package cmd

import (
	"fmt"

	"github.com/dendrascience/dbooru/backend"
	"github.com/spf13/cobra"
)

// NewInitCmd creates and returns the init subcommand, which creates an
// empty store.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [ROOT]",
		Short: "Create an empty store",
		Long: `Create the store directory, its blob and temp trees, and the metadata
database. Running init on an existing store leaves its contents alone.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cmd.Flags().Set("root", args[0])
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := backend.Init(cfg.Root, backendOptions(cfg, cfg.Logger(cmd.ErrOrStderr())))
			if err != nil {
				return err
			}
			defer b.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized store at %s\n", cfg.Root)
			return nil
		},
	}
}
