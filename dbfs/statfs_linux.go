package dbfs

import (
	"bazil.org/fuse"
	"golang.org/x/sys/unix"
)

// statfs reports the filesystem holding the store root.
func statfs(path string) (*fuse.StatfsResponse, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nil, err
	}
	return &fuse.StatfsResponse{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		Namelen: uint32(st.Namelen),
		Frsize:  uint32(st.Frsize),
	}, nil
}
