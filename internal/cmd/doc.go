// Package cmd provides the command-line interface implementation for dbooru.
//
// It uses the Cobra library for command structure; main wraps the root
// command with Fang for styling. Each command lives in its own file with a
// constructor returning a *cobra.Command:
//   - root: Main command coordinator, persistent --config and --root flags
//   - init, mount: Store creation and FUSE serving
//   - put, import, cat, stat, rm, attr: Direct blob and attribute access
//   - validate, count, seed: Maintenance and test data
//
// Configuration comes from internal/config; flags override the file.
package cmd
