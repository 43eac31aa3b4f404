package compressor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cardFrame = []byte(`{"CardDrawn":{"card":{"suit":"Hearts","value":"Ten"},"from":0}}`)

func TestZstdRoundTrip(t *testing.T) {
	z, err := NewZstd(ZstdOptions{})
	require.NoError(t, err)
	defer z.Close()

	src := bytes.Repeat(cardFrame, 32)
	packed, err := z.Compress(nil, src)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(src))

	unpacked, err := z.Decompress(nil, packed)
	require.NoError(t, err)
	assert.Equal(t, src, unpacked)
}

func TestZstdThreshold(t *testing.T) {
	z, err := NewZstd(ZstdOptions{MinSize: 64})
	require.NoError(t, err)
	defer z.Close()

	assert.False(t, z.ShouldCompress(0))
	assert.False(t, z.ShouldCompress(63))
	assert.True(t, z.ShouldCompress(64))

	assert.False(t, NopCompressor{}.ShouldCompress(1<<20))
}

func TestZstdMaxDecodedSize(t *testing.T) {
	big, err := NewZstd(ZstdOptions{})
	require.NoError(t, err)
	defer big.Close()
	packed, err := big.Compress(nil, bytes.Repeat(cardFrame, 4096))
	require.NoError(t, err)

	small, err := NewZstd(ZstdOptions{MaxDecodedSize: 1024})
	require.NoError(t, err)
	defer small.Close()
	_, err = small.Decompress(nil, packed)
	assert.Error(t, err)
}

func TestZstdClosed(t *testing.T) {
	z, err := NewZstd(ZstdOptions{})
	require.NoError(t, err)
	z.Close()

	_, err = z.Compress(nil, []byte("x"))
	assert.Error(t, err)
	_, err = z.Decompress(nil, []byte("x"))
	assert.Error(t, err)
}
