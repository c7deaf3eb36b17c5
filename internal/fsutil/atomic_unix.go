//go:build !windows

package fsutil

import (
	"os"

	"github.com/google/renameio/v2"
)

// AtomicWriteFile writes data to path as a whole-file replacement: the
// caller never observes a torn write, and a crash mid-write leaves the
// previous contents intact. On Unix this uses renameio, which writes to a
// temp file in the same directory and renames it into place.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
