package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C(t *testing.T) {
	data := []byte("123456789")
	assert.Equal(t, uint32(0xE3069283), CRC32C(data))
	assert.Equal(t, "4waSgw==", CRC32CBase64(data))
}

func TestVerify(t *testing.T) {
	data := []byte("catalog document")
	assert.NoError(t, Verify(data, CRC32C(data)))

	data[0] ^= 1
	err := Verify(data, CRC32C([]byte("catalog document")))
	assert.ErrorIs(t, err, ErrMismatch)
}
