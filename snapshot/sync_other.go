//go:build !linux && !freebsd && !darwin

package snapshot

import "os"

// fdatasync performs file descriptor sync via the portable os.File API.
func fdatasync(f *os.File) error {
	return f.Sync()
}
