package utilitycache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemKey_StringRoundTrip(t *testing.T) {
	k := HashBytes([]byte("xyz"))

	parsed, err := ParseItemKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
}

func TestItemKey_UnmarshalText_InvalidLength(t *testing.T) {
	var k ItemKey
	err := k.UnmarshalText([]byte("deadbeef"))
	assert.Error(t, err)
}

func TestItemKey_IsZero(t *testing.T) {
	var k ItemKey
	assert.True(t, k.IsZero())

	k = HashBytes([]byte("anything"))
	assert.False(t, k.IsZero())
}

func TestHashBytes_Deterministic(t *testing.T) {
	a := HashBytes([]byte("same input"))
	b := HashBytes([]byte("same input"))
	assert.Equal(t, a, b)

	c := HashBytes([]byte("different input"))
	assert.NotEqual(t, a, c)
}

func TestHashReader_MatchesHashBytes(t *testing.T) {
	data := []byte("streamed content")
	k, n, err := HashReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, HashBytes(data), k)
}

func TestHasher_Incremental(t *testing.T) {
	h := NewHasher()
	_, _ = h.Write([]byte("ab"))
	_, _ = h.Write([]byte("cd"))
	assert.Equal(t, HashBytes([]byte("abcd")), h.Sum())

	h.Reset()
	_, _ = h.Write([]byte("xy"))
	assert.Equal(t, HashBytes([]byte("xy")), h.Sum())
}
