// Package snapshot saves and loads images of the three linear memories for
// offline inspection and for suspending a runtime instance.
//
// An image is a 24-byte header (signature, version, per-region page counts)
// followed by the raw bytes of the fixed, dynamic and shadow memories in
// that order. Because every piece of allocator state lives inside the
// memories themselves, a restored image is immediately usable without any
// rebuild step.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/internal/mmfile"
	"github.com/joshuapare/memkit/mem"
)

var (
	// ErrBadImage indicates a file that is not a memory image or whose
	// header disagrees with its size.
	ErrBadImage = errors.New("snapshot: malformed image")

	// ErrBadVersion indicates an image written by an incompatible version.
	ErrBadVersion = errors.New("snapshot: unsupported image version")
)

// Image is a loaded memory image. The memories of an Open'd image are backed
// by a read-only mapping; callers that want to mutate them must copy first.
type Image struct {
	Fixed   *mem.Memory
	Dynamic *mem.Memory
	Shadow  *mem.Memory

	cleanup func() error
}

// Close releases the underlying mapping. The image's memories must not be
// used afterwards.
func (img *Image) Close() error {
	if img.cleanup == nil {
		return nil
	}
	err := img.cleanup()
	img.cleanup = nil
	return err
}

func encodeHeader(fixedPages, dynPages, shadowPages int) []byte {
	hdr := make([]byte, format.ImageHeaderSize)
	copy(hdr[format.ImageSignatureOffset:], format.ImageSignature)
	format.PutU32(hdr, format.ImageVersionOffset, format.ImageVersion)
	format.PutU32(hdr, format.ImageFixedPagesOffset, uint32(fixedPages))
	format.PutU32(hdr, format.ImageDynPagesOffset, uint32(dynPages))
	format.PutU32(hdr, format.ImageShadowPagesOffset, uint32(shadowPages))
	return hdr
}

// Write streams an image of the three memories to w.
func Write(w io.Writer, fixed, dyn, shadow *mem.Memory) error {
	if _, err := w.Write(encodeHeader(fixed.Pages(), dyn.Pages(), shadow.Pages())); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}
	for _, m := range []*mem.Memory{fixed, dyn, shadow} {
		if _, err := w.Write(m.Bytes()); err != nil {
			return fmt.Errorf("snapshot: write region: %w", err)
		}
	}
	return nil
}

// WriteFile writes an image to path and flushes it to stable storage before
// returning.
func WriteFile(path string, fixed, dyn, shadow *mem.Memory) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := Write(f, fixed, dyn, shadow); err != nil {
		f.Close()
		return err
	}
	if err := fdatasync(f); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot: close %s: %w", path, err)
	}
	return nil
}

// decode splices an image buffer into its three memories. The memories alias
// the buffer.
func decode(data []byte) (*Image, error) {
	if len(data) < format.ImageHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadImage, len(data))
	}
	sig := data[format.ImageSignatureOffset : format.ImageSignatureOffset+len(format.ImageSignature)]
	if !bytes.Equal(sig, format.ImageSignature) {
		return nil, fmt.Errorf("%w: bad signature", ErrBadImage)
	}
	if v := format.ReadU32(data, format.ImageVersionOffset); v != format.ImageVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}

	fixedPages := int(format.ReadU32(data, format.ImageFixedPagesOffset))
	dynPages := int(format.ReadU32(data, format.ImageDynPagesOffset))
	shadowPages := int(format.ReadU32(data, format.ImageShadowPagesOffset))

	want := format.ImageHeaderSize + (fixedPages+dynPages+shadowPages)*format.PageSize
	if fixedPages < 1 || dynPages < 1 || shadowPages < 1 || len(data) != want {
		return nil, fmt.Errorf("%w: %d bytes for %d+%d+%d pages",
			ErrBadImage, len(data), fixedPages, dynPages, shadowPages)
	}

	off := format.ImageHeaderSize
	img := &Image{}
	for _, r := range []struct {
		dst   **mem.Memory
		pages int
	}{
		{&img.Fixed, fixedPages},
		{&img.Dynamic, dynPages},
		{&img.Shadow, shadowPages},
	} {
		m, err := mem.FromBytes(data[off : off+r.pages*format.PageSize])
		if err != nil {
			return nil, err
		}
		*r.dst = m
		off += r.pages * format.PageSize
	}
	return img, nil
}

// Read loads an image from r into fresh buffers.
func Read(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return decode(data)
}

// Open maps the image at path read-only. Close the image to release the
// mapping.
func Open(path string) (*Image, error) {
	data, cleanup, err := mmfile.Map(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: map %s: %w", path, err)
	}
	img, err := decode(data)
	if err != nil {
		cleanup()
		return nil, err
	}
	img.cleanup = cleanup
	return img, nil
}
