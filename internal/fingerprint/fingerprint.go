// Package fingerprint computes stable content hashes for files tracked by
// the indexing engine. The hash deliberately excludes mtime: touching a file
// without changing its bytes must not trigger re-indexing.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	"github.com/foldermcp/folderindex/internal/kerrors"
)

// Hash is a 128-bit hex digest over (absolute path, file bytes, file size).
type Hash string

// FileSystem is the minimal capability Compute needs to read a file. It is
// satisfied by scanner.FileSystem, and by *os.File-backed implementations in
// tests.
type FileSystem interface {
	Open(path string) (io.ReadCloser, error)
	Size(path string) (int64, error)
}

// OSFileSystem reads directly from the local disk.
type OSFileSystem struct{}

func (OSFileSystem) Open(path string) (io.ReadCloser, error) { return os.Open(path) }

func (OSFileSystem) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Compute hashes absPath ‖ bytes ‖ size into a stable hex digest. It never
// mutates file timestamps — it only reads. On I/O failure it returns a
// *kerrors.Error of kind ErrRead; callers must mark the file skipped and
// continue scanning rather than abort the folder.
func Compute(fs FileSystem, absPath string) (Hash, error) {
	size, err := fs.Size(absPath)
	if err != nil {
		return "", kerrors.Read("stat file for fingerprint", err)
	}

	f, err := fs.Open(absPath)
	if err != nil {
		return "", kerrors.Read("open file for fingerprint", err)
	}
	defer f.Close()

	h := md5.New()
	h.Write([]byte(absPath))
	if _, err := io.Copy(h, f); err != nil {
		return "", kerrors.Read("read file for fingerprint", err)
	}
	sizeBytes := []byte{
		byte(size >> 56), byte(size >> 48), byte(size >> 40), byte(size >> 32),
		byte(size >> 24), byte(size >> 16), byte(size >> 8), byte(size),
	}
	h.Write(sizeBytes)

	return Hash(hex.EncodeToString(h.Sum(nil))), nil
}
