//go:build !linux

package dbfs

import (
	"bazil.org/fuse"
	"golang.org/x/sys/unix"
)

func statfs(path string) (*fuse.StatfsResponse, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nil, err
	}
	return &fuse.StatfsResponse{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  uint64(st.Bavail),
		Files:   st.Files,
		Ffree:   uint64(st.Ffree),
		Bsize:   uint32(st.Bsize),
		Namelen: 255,
		Frsize:  uint32(st.Bsize),
	}, nil
}
