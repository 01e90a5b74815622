//go:build linux || freebsd

package snapshot

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync performs file descriptor sync.
//
// On Linux/FreeBSD, fdatasync() provides sufficient guarantees: the image
// bytes reach stable storage even if the metadata sync is deferred.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
