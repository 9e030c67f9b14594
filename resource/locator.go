// Package resource maps fids to their locations under a dbooru root.
//
// A fid is a lowercase hex digest of fixed length, optionally followed by
// "+" and a non-negative decimal index:
//
//	b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9
//	b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9+2
//
// An absent index is index 0. Blobs are sharded by the first hex character
// of the digest:
//
//	<root>/files/b/94d27b...cde9+0
package resource

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// ErrInvalidFid is returned for strings that are not fids.
var ErrInvalidFid = errors.New("invalid fid")

const (
	dbName   = "dbooru.db"
	filesDir = "files"
	tmpDir   = "tmp"
)

// Fid is a parsed file identifier.
type Fid struct {
	Digest string
	Index  uint64
}

// String returns the canonical form: the bare digest for index 0, otherwise
// digest+index.
func (f Fid) String() string {
	if f.Index == 0 {
		return f.Digest
	}
	return f.Digest + "+" + strconv.FormatUint(f.Index, 10)
}

// Shard is the one-character shard directory name.
func (f Fid) Shard() string {
	return f.Digest[:1]
}

// Leaf is the file name inside the shard directory.
func (f Fid) Leaf() string {
	return f.Digest[1:] + "+" + strconv.FormatUint(f.Index, 10)
}

// Locator resolves fids and store resources under one root directory.
type Locator struct {
	root      string
	digestLen int
	pattern   *regexp.Regexp
}

// NewLocator returns a Locator for fids whose digest is digestLen hex
// characters long.
func NewLocator(root string, digestLen int) *Locator {
	return &Locator{
		root:      root,
		digestLen: digestLen,
		pattern:   regexp.MustCompile(fmt.Sprintf(`^([0-9a-f]{%d})(?:\+([0-9]+))?$`, digestLen)),
	}
}

// Root is the directory all resources are anchored under.
func (l *Locator) Root() string { return l.root }

// DigestLen is the hex length of digests this Locator accepts.
func (l *Locator) DigestLen() int { return l.digestLen }

// DBPath is the location of the metadata database.
func (l *Locator) DBPath() string {
	return filepath.Join(l.root, dbName)
}

// FilesRoot is the top of the blob tree.
func (l *Locator) FilesRoot() string {
	return filepath.Join(l.root, filesDir)
}

// TmpRoot holds in-flight write sinks. It lives on the same filesystem as
// FilesRoot so commits can rename atomically.
func (l *Locator) TmpRoot() string {
	return filepath.Join(l.root, tmpDir)
}

// Parse validates fid syntax.
func (l *Locator) Parse(fid string) (Fid, error) {
	m := l.pattern.FindStringSubmatch(fid)
	if m == nil {
		return Fid{}, fmt.Errorf("%w: %q", ErrInvalidFid, fid)
	}
	f := Fid{Digest: m[1]}
	if m[2] != "" {
		idx, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			return Fid{}, fmt.Errorf("%w: %q: index out of range", ErrInvalidFid, fid)
		}
		f.Index = idx
	}
	return f, nil
}

// Resolve returns the blob path for fid. It is a pure function of fid and
// never touches the filesystem.
func (l *Locator) Resolve(fid string) (string, error) {
	f, err := l.Parse(fid)
	if err != nil {
		return "", err
	}
	return l.Path(f), nil
}

// Path returns the blob path of an already parsed fid.
func (l *Locator) Path(f Fid) string {
	return filepath.Join(l.FilesRoot(), f.Shard(), f.Leaf())
}

// FromPath recovers the fid of a blob path inside FilesRoot. It is the
// inverse of Path and is used when scanning the blob tree.
func (l *Locator) FromPath(path string) (Fid, error) {
	rel, err := filepath.Rel(l.FilesRoot(), path)
	if err != nil {
		return Fid{}, fmt.Errorf("%w: %s", ErrInvalidFid, path)
	}
	shard, leaf := filepath.Split(rel)
	shard = filepath.Clean(shard)
	if len(shard) != 1 {
		return Fid{}, fmt.Errorf("%w: %s", ErrInvalidFid, path)
	}
	f, err := l.Parse(shard + leaf)
	if err != nil {
		return Fid{}, err
	}
	// Leaves always carry an explicit index.
	if l.Path(f) != filepath.Join(l.FilesRoot(), rel) {
		return Fid{}, fmt.Errorf("%w: %s", ErrInvalidFid, path)
	}
	return f, nil
}
