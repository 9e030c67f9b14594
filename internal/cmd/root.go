package cmd

import (
	"github.com/dendrascience/dbooru/version"
	"github.com/spf13/cobra"
)

// NewRootCmd creates and returns the root cobra command for the dbooru CLI.
// It sets up all subcommands, command groups, and the flags shared by them.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dbooru",
		Short: "dbooru - a content-addressed blob store exposed over FUSE",
		Long: `dbooru stores immutable blobs named by the SHA-256 of their contents and
keeps arbitrary key/value attributes for each one in a SQLite database.

The store can be mounted as a filesystem: every blob appears under /all by
its fid, new files created there are committed as blobs when closed, and
attributes are exposed as user.* extended attributes.

Use subcommands to perform different operations:
  - init: Create an empty store
  - mount: Mount a store at a mountpoint
  - put, import, cat, stat, rm, attr: Work with blobs directly
  - validate, count, seed: Maintenance and testing utilities`,
		Version:       version.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file (default $"+configEnvVar+")")
	rootCmd.PersistentFlags().StringP("root", "r", "", "Store directory (overrides the config file)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")

	groupFilesystem := "filesystem"
	groupBlobs := "blobs"
	groupUtilities := "utilities"

	rootCmd.AddGroup(&cobra.Group{
		ID:    groupFilesystem,
		Title: "Filesystem Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupBlobs,
		Title: "Blob Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupUtilities,
		Title: "Utility Commands",
	})

	for _, c := range []*cobra.Command{NewInitCmd(), NewMountCmd()} {
		c.GroupID = groupFilesystem
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{
		NewPutCmd(),
		NewImportCmd(),
		NewCatCmd(),
		NewStatCmd(),
		NewRmCmd(),
		NewAttrCmd(),
	} {
		c.GroupID = groupBlobs
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{NewValidateCmd(), NewCountCmd(), NewSeedCmd(), NewVersionCmd()} {
		c.GroupID = groupUtilities
		rootCmd.AddCommand(c)
	}

	return rootCmd
}
