package objectstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompressing(t *testing.T) *Compressing {
	t.Helper()
	fs := newTestFilesystem(t)
	c, err := NewCompressing(fs)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCompressing_RoundTripsSmallPayload(t *testing.T) {
	c := newTestCompressing(t)
	ctx := context.Background()

	data := []byte("short")
	n, err := c.Write(ctx, "k", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	rc, err := c.Read(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCompressing_RoundTripsLargeCompressiblePayload(t *testing.T) {
	c := newTestCompressing(t)
	ctx := context.Background()

	data := []byte(strings.Repeat("abcdefgh", 2000)) // 16000 bytes, highly compressible
	n, err := c.Write(ctx, "k", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	rc, err := c.Read(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// underlying physical size should be smaller than the logical payload.
	physical, err := c.Size(ctx, "k")
	require.NoError(t, err)
	assert.Less(t, physical, int64(len(data)))
}

func TestCompressing_LargeIncompressiblePayloadStoredIdentity(t *testing.T) {
	c := newTestCompressing(t)
	ctx := context.Background()

	// Pseudo-random bytes don't compress well; zstd should back off to identity.
	data := make([]byte, compressionThreshold*2)
	x := uint32(7)
	for i := range data {
		x = x*1664525 + 1013904223
		data[i] = byte(x >> 24)
	}

	_, err := c.Write(ctx, "k", bytes.NewReader(data))
	require.NoError(t, err)

	// Identity framing: the payload plus the one-byte encoding marker.
	physical, err := c.Size(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)+1), physical)

	rc, err := c.Read(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCompressing_EmptyPayload(t *testing.T) {
	c := newTestCompressing(t)
	ctx := context.Background()

	_, err := c.Write(ctx, "k", bytes.NewReader(nil))
	require.NoError(t, err)

	rc, err := c.Read(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompressing_DelegatesDeleteExistsKeysFreeSpace(t *testing.T) {
	c := newTestCompressing(t)
	ctx := context.Background()

	_, err := c.Write(ctx, "k", bytes.NewReader([]byte("payload")))
	require.NoError(t, err)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "k")

	free, err := c.FreeSpace(ctx)
	require.NoError(t, err)
	assert.Greater(t, free, int64(0))

	require.NoError(t, c.Delete(ctx, "k"))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCompressing_Unwrap(t *testing.T) {
	fs := newTestFilesystem(t)
	c, err := NewCompressing(fs)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	assert.Same(t, fs, c.Unwrap())
}
