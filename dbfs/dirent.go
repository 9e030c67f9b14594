package dbfs

import (
	"encoding/binary"
	"hash/fnv"
)

// direntHeader is the fixed part of a fuse_dirent: ino, off, namelen, type.
const direntHeader = 8 + 8 + 4 + 4

// appendDirent encodes d in the kernel's fuse_dirent layout, padded to
// eight bytes. The off field carries d.Off so the kernel hands it back as
// the cursor of the next readdir.
func appendDirent(buf []byte, d Dirent) []byte {
	size := (direntHeader + len(d.Name) + 7) &^ 7
	start := len(buf)
	buf = append(buf, make([]byte, size)...)
	e := buf[start:]
	binary.NativeEndian.PutUint64(e[0:], d.Inode)
	binary.NativeEndian.PutUint64(e[8:], d.Off)
	binary.NativeEndian.PutUint32(e[16:], uint32(len(d.Name)))
	binary.NativeEndian.PutUint32(e[20:], uint32(d.Type))
	copy(e[direntHeader:], d.Name)
	return buf
}

// direntSize is the encoded length of an entry named name.
func direntSize(name string) int {
	return (direntHeader + len(name) + 7) &^ 7
}

// syntheticIno derives a stable inode number for a listed entry that the
// kernel has not looked up. The high bit keeps it clear of session ids.
func syntheticIno(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64() | 1<<63
}
