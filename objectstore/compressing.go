package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// compressionThreshold is the minimum payload size before compression is
// considered; below it zstd's framing overhead isn't worth paying.
const compressionThreshold = 2048

// maxDecompressedSize is the largest decompressed payload Read returns;
// the check runs after decoding, and a larger payload is rejected with an
// error.
const maxDecompressedSize = 1 << 30 // 1GiB

const (
	encodingIdentity byte = 0
	encodingZstd     byte = 1
)

// Compressing wraps a Store with transparent zstd compression, grounded on
// the teacher's metadb.EnvelopeCodec. Payloads are stored with a one-byte
// encoding marker prefix so Read can tell whether to decompress.
type Compressing struct {
	store Store

	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressing wraps store with a pooled zstd encoder/decoder.
func NewCompressing(store Store) (*Compressing, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Compressing{store: store, encoder: enc, decoder: dec}, nil
}

// Close releases the encoder/decoder.
func (c *Compressing) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}

// Write compresses data if beneficial and stores it with an encoding
// marker prefix. Returns the logical (uncompressed) byte count written.
func (c *Compressing) Write(ctx context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading payload: %w", err)
	}

	encoding := encodingIdentity
	encoded := data

	if len(data) >= compressionThreshold {
		c.mu.Lock()
		enc := c.encoder
		c.mu.Unlock()
		if enc != nil {
			compressed := enc.EncodeAll(data, nil)
			if len(compressed) < len(data) {
				encoding = encodingZstd
				encoded = compressed
			}
		}
	}

	framed := make([]byte, 0, len(encoded)+1)
	framed = append(framed, encoding)
	framed = append(framed, encoded...)

	if _, err := c.store.Write(ctx, key, bytes.NewReader(framed)); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// Read decompresses the payload at key, if it was stored compressed.
func (c *Compressing) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := c.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	framed, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading framed payload: %w", err)
	}
	if len(framed) == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	encoding, payload := framed[0], framed[1:]
	switch encoding {
	case encodingIdentity:
		return io.NopCloser(bytes.NewReader(payload)), nil
	case encodingZstd:
		c.mu.Lock()
		dec := c.decoder
		c.mu.Unlock()
		if dec == nil {
			return nil, fmt.Errorf("objectstore: decoder closed")
		}
		decoded, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing payload: %w", err)
		}
		if len(decoded) > maxDecompressedSize {
			return nil, fmt.Errorf("objectstore: decompressed payload exceeds maximum size")
		}
		return io.NopCloser(bytes.NewReader(decoded)), nil
	default:
		return nil, fmt.Errorf("objectstore: unknown encoding marker %d for key %s", encoding, key)
	}
}

func (c *Compressing) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

func (c *Compressing) Exists(ctx context.Context, key string) (bool, error) {
	return c.store.Exists(ctx, key)
}

// Size returns the physical (on-disk, possibly compressed) size of the
// stored payload, including the one-byte encoding marker.
func (c *Compressing) Size(ctx context.Context, key string) (int64, error) {
	return c.store.Size(ctx, key)
}

func (c *Compressing) Keys(ctx context.Context) ([]string, error) {
	return c.store.Keys(ctx)
}

func (c *Compressing) FreeSpace(ctx context.Context) (int64, error) {
	return c.store.FreeSpace(ctx)
}

// Unwrap returns the underlying store.
func (c *Compressing) Unwrap() Store {
	return c.store
}

var _ Store = (*Compressing)(nil)
