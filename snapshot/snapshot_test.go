package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem"
)

func newMemories(t *testing.T) (fixed, dyn, shadow *mem.Memory) {
	t.Helper()

	fixed, err := mem.New(1)
	require.NoError(t, err)
	dyn, err = mem.New(2)
	require.NoError(t, err)
	shadow, err = mem.New(1)
	require.NoError(t, err)

	// Distinguishable content per region.
	fixed.Bytes()[100] = 0xF1
	dyn.Bytes()[200] = 0xD2
	shadow.Bytes()[300] = 0x53
	return fixed, dyn, shadow
}

func Test_WriteReadRoundTrip(t *testing.T) {
	fixed, dyn, shadow := newMemories(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, fixed, dyn, shadow))
	assert.Equal(t, format.ImageHeaderSize+4*format.PageSize, buf.Len())

	img, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1, img.Fixed.Pages())
	assert.Equal(t, 2, img.Dynamic.Pages())
	assert.Equal(t, 1, img.Shadow.Pages())
	assert.Equal(t, byte(0xF1), img.Fixed.Bytes()[100])
	assert.Equal(t, byte(0xD2), img.Dynamic.Bytes()[200])
	assert.Equal(t, byte(0x53), img.Shadow.Bytes()[300])
}

func Test_WriteFileAndOpen(t *testing.T) {
	fixed, dyn, shadow := newMemories(t)
	path := filepath.Join(t.TempDir(), "run.memimg")

	require.NoError(t, WriteFile(path, fixed, dyn, shadow))

	img, err := Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, img.Close()) }()

	assert.Equal(t, byte(0xF1), img.Fixed.Bytes()[100])
	assert.Equal(t, byte(0xD2), img.Dynamic.Bytes()[200])
	assert.Equal(t, byte(0x53), img.Shadow.Bytes()[300])
}

func Test_OpenRejectsBadSignature(t *testing.T) {
	fixed, dyn, shadow := newMemories(t)
	path := filepath.Join(t.TempDir(), "run.memimg")
	require.NoError(t, WriteFile(path, fixed, dyn, shadow))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] = 'X'
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(path)
	require.ErrorIs(t, err, ErrBadImage)
}

func Test_OpenRejectsBadVersion(t *testing.T) {
	fixed, dyn, shadow := newMemories(t)
	path := filepath.Join(t.TempDir(), "run.memimg")
	require.NoError(t, WriteFile(path, fixed, dyn, shadow))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	format.PutU32(data, format.ImageVersionOffset, 99)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(path)
	require.ErrorIs(t, err, ErrBadVersion)
}

func Test_ReadRejectsTruncatedImage(t *testing.T) {
	fixed, dyn, shadow := newMemories(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, fixed, dyn, shadow))
	truncated := buf.Bytes()[:buf.Len()-format.PageSize]

	_, err := Read(bytes.NewReader(truncated))
	require.ErrorIs(t, err, ErrBadImage)
}

func Test_CloseIsIdempotent(t *testing.T) {
	fixed, dyn, shadow := newMemories(t)
	path := filepath.Join(t.TempDir(), "run.memimg")
	require.NoError(t, WriteFile(path, fixed, dyn, shadow))

	img, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, img.Close())
	require.NoError(t, img.Close())
}
