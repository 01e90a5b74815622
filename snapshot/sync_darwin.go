//go:build darwin

package snapshot

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync performs file descriptor sync.
//
// macOS has no fdatasync; Fsync is the closest primitive.
func fdatasync(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
