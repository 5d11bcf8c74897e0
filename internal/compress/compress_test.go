package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("kvsearch schema document "), 200)
	incompressible := []byte{0x01, 0x7f, 0x33}

	for _, typ := range []Type{None, LZ4, ZSTD} {
		t.Run(typ.String(), func(t *testing.T) {
			for _, data := range [][]byte{compressible, incompressible, {}} {
				block, err := Compress(data, typ)
				require.NoError(t, err)
				out, err := Decompress(block)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(out))
				assert.True(t, bytes.Equal(data, out))
			}
		})
	}
}

func TestCompressionShrinks(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 1024)
	for _, typ := range []Type{LZ4, ZSTD} {
		block, err := Compress(data, typ)
		require.NoError(t, err)
		assert.Less(t, len(block), len(data)/2, typ.String())
	}
}

func TestCorrupt(t *testing.T) {
	_, err := Decompress([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorrupt)

	block, err := Compress(bytes.Repeat([]byte("x"), 512), ZSTD)
	require.NoError(t, err)
	_, err = Decompress(block[:len(block)-1])
	assert.ErrorIs(t, err, ErrCorrupt)

	block[headerSize] ^= 0xff
	_, err = Decompress(block)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Compress([]byte("x"), Type(9))
	assert.Error(t, err)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("brotli")
	assert.Error(t, err)
}
