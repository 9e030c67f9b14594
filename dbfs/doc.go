// Package dbfs serves a dbooru store over the raw bazil.org/fuse protocol.
//
// A Dispatcher owns one Session, which holds the inode table, the
// file-handle table and the handle generator behind a single lock. Kernel
// requests are resolved against those tables and forwarded to the node or
// handle they name.
//
// The mount tree is fixed:
//   - /: the root, containing only all
//   - /all: every committed blob, listed by fid
//   - /all/<fid>: a read-only blob whose metadata attributes appear as
//     user.* extended attributes
//
// Files created in /all are pending writes. Releasing the write handle
// commits the contents; the created name then disappears and the blob is
// reachable under its fid.
package dbfs
