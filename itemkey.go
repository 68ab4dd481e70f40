package utilitycache

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// ItemKeySize is the size of an ItemKey digest in bytes (256 bits).
const ItemKeySize = 32

// ItemKey is an opaque content digest derived from the inputs of a pure
// computation. It is the cache's primary identity for an item and is
// produced by the content-hash collaborator (here, BLAKE3 over producer
// inputs); the cache itself never constructs one from raw arguments.
type ItemKey [ItemKeySize]byte

// String returns the hex-encoded representation of the key.
func (k ItemKey) String() string {
	return hex.EncodeToString(k[:])
}

// ShortString returns a shortened hex representation for display, suitable
// for a CacheItem's pretty_description default.
func (k ItemKey) ShortString() string {
	return hex.EncodeToString(k[:8])
}

// IsZero reports whether the key is all zeros (uninitialized).
func (k ItemKey) IsZero() bool {
	return k == ItemKey{}
}

// MarshalText implements encoding.TextMarshaler.
func (k ItemKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ItemKey) UnmarshalText(text []byte) error {
	if len(text) != ItemKeySize*2 {
		return fmt.Errorf("invalid item key length: expected %d hex chars, got %d", ItemKeySize*2, len(text))
	}
	_, err := hex.Decode(k[:], text)
	return err
}

// ParseItemKey parses a hex-encoded item key string.
func ParseItemKey(s string) (ItemKey, error) {
	var k ItemKey
	if err := k.UnmarshalText([]byte(s)); err != nil {
		return ItemKey{}, err
	}
	return k, nil
}

// HashBytes computes the ItemKey of the given bytes using the reference
// content-hash collaborator (BLAKE3).
func HashBytes(data []byte) ItemKey {
	return ItemKey(blake3.Sum256(data))
}

// HashReader computes the ItemKey of content read from r, returning the key
// and the number of bytes read.
func HashReader(r io.Reader) (ItemKey, int64, error) {
	h := blake3.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return ItemKey{}, n, fmt.Errorf("hashing content: %w", err)
	}
	var key ItemKey
	h.Sum(key[:0])
	return key, n, nil
}

// Hasher wraps a BLAKE3 hasher for incremental ItemKey construction by a
// content-hash collaborator assembling a key from several hashable inputs.
type Hasher struct {
	h *blake3.Hasher
}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New()}
}

// Write implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum returns the current ItemKey without resetting the hasher.
func (h *Hasher) Sum() ItemKey {
	var key ItemKey
	h.h.Sum(key[:0])
	return key
}

// Reset resets the hasher to its initial state.
func (h *Hasher) Reset() {
	h.h.Reset()
}
