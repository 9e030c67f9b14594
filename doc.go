// Package main provides the dbooru command-line interface.
//
// dbooru is a content-addressed blob store with a SQLite attribute index,
// served to the kernel over FUSE. Blobs are immutable and named by the
// SHA-256 of their contents; writes land in a temporary sink and become
// visible only once committed.
//
// The main binary supports multiple subcommands:
//   - init: Create an empty store
//   - mount: Mount a store at a specified mountpoint
//   - put, import, cat, stat, rm, attr: Work with blobs and attributes
//   - validate: Check blobs and metadata for corruption and consistency
//   - count, seed: Statistics and test data
package main
