package util

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
)

// HashChunkSize is the read size used when streaming content through the
// digest. Memory use while hashing is bounded by this value regardless of the
// size of the file.
const HashChunkSize = 10 << 20 // 10 MiB

// DigestHexLen is the length of a lowercase hex SHA-256 digest.
const DigestHexLen = sha256.Size * 2

// GetFileHash hashes a file and returns the digest as a lowercase hex string
// suitable for use as a fid
func GetFileHash(path string) (string, error) {
	return GetFileHashChunked(path, HashChunkSize)
}

// GetFileHashChunked is GetFileHash with an explicit read size.
func GetFileHashChunked(path string, chunkSize int) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", ErrExpectedFile
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return GetHashChunked(file, chunkSize)
}

// GetHash calculates the SHA-256 hash of data from an io.Reader.
// It returns the hash as a hexadecimal string.
func GetHash(r io.Reader) (string, error) {
	return GetHashChunked(r, HashChunkSize)
}

// GetHashChunked reads r in chunks of at most chunkSize bytes and feeds each
// chunk to a SHA-256 digest. The result does not depend on chunkSize.
func GetHashChunked(r io.Reader, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = HashChunkSize
	}
	h := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
