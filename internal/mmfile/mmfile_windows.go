//go:build windows

package mmfile

import (
	"os"
)

// Map reads the whole image file; images are a handful of 64 KiB pages, so
// plain reads are cheap enough not to bother with CreateFileMapping.
func Map(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	return data, func() error { return nil }, nil
}
