package cmd

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"

	"github.com/dendrascience/dbooru/backend"
	"github.com/spf13/cobra"
)

// nameAttribute records where a blob was stored from.
const nameAttribute = "name"

// NewPutCmd creates and returns the put subcommand, which stores files as
// blobs and prints their fids.
func NewPutCmd() *cobra.Command {
	var (
		attrs  map[string]string
		noName bool
	)

	cmd := &cobra.Command{
		Use:   "put FILE...",
		Short: "Store files as blobs",
		Long: `Store each FILE as a blob and print its fid. Use - to read standard input.

Unless --no-name is given, the file's base name is recorded as the "name"
attribute. Additional attributes can be set with --attr key=value.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			for _, path := range args {
				fid, err := putFile(cmd, b, path)
				if err != nil {
					return err
				}
				set := maps.Clone(attrs)
				if !noName && path != "-" {
					set[nameAttribute] = filepath.Base(path)
				}
				for k, v := range set {
					if err := b.Metadata().SetAttribute(cmd.Context(), fid, k, v); err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), fid)
			}
			return nil
		},
	}

	cmd.Flags().StringToStringVarP(&attrs, "attr", "a", map[string]string{}, "Attribute to set on every stored blob (repeatable)")
	cmd.Flags().BoolVar(&noName, "no-name", false, "Do not record the file name as an attribute")

	return cmd
}

func putFile(cmd *cobra.Command, b *backend.Backend, path string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	fid, err := b.Put(cmd.Context(), r)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return fid, nil
}
