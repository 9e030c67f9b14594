// Package util provides the small building blocks shared by the dbooru
// backend and filesystem layers.
//
// File Hashing:
//   - SHA-256 content digests streamed in fixed-size chunks (HashChunkSize)
//   - Lowercase hex output used directly as the fid of a blob
//
// Handle Generation:
//   - HandleGenerator issues file-handle numbers above a reserved range
//   - Forgotten handles go on a free list and are reused before the counter
//     grows, so handle values stay small under open/release churn
//   - Double forgets and forgets of never-issued values are reported as
//     errors rather than silently ignored
package util
