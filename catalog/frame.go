package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/kvsearch/codec"
	"github.com/hupe1980/kvsearch/internal/compress"
	"github.com/hupe1980/kvsearch/internal/hash"
)

// Frame layout:
//
//	magic "KVSC" | format u8 | version u64 | codec len u8 | codec name |
//	crc32c u32 | compressed block
//
// The checksum covers the compressed block.
const (
	frameMagic   = "KVSC"
	frameFormat  = 1
	frameFixed   = len(frameMagic) + 1 + 8 + 1
	frameTrailer = 4
)

// ErrCorrupt is returned for documents that are not valid frames.
var ErrCorrupt = errors.New("catalog: corrupt document")

func encodeFrame(c codec.Codec, ct compress.Type, version uint64, v any) ([]byte, error) {
	payload, err := c.Marshal(v)
	if err != nil {
		return nil, err
	}
	block, err := compress.Compress(payload, ct)
	if err != nil {
		return nil, err
	}
	name := c.Name()
	if len(name) > 255 {
		return nil, fmt.Errorf("catalog: codec name %q too long", name)
	}

	buf := make([]byte, 0, frameFixed+len(name)+frameTrailer+len(block))
	buf = append(buf, frameMagic...)
	buf = append(buf, frameFormat)
	buf = binary.LittleEndian.AppendUint64(buf, version)
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)
	buf = binary.LittleEndian.AppendUint32(buf, hash.CRC32C(block))
	buf = append(buf, block...)
	return buf, nil
}

// FrameVersion returns the descriptor version recorded in a frame header.
func FrameVersion(data []byte) (uint64, error) {
	if len(data) < frameFixed || string(data[:len(frameMagic)]) != frameMagic {
		return 0, ErrCorrupt
	}
	if data[len(frameMagic)] != frameFormat {
		return 0, fmt.Errorf("%w: unsupported format %d", ErrCorrupt, data[len(frameMagic)])
	}
	return binary.LittleEndian.Uint64(data[len(frameMagic)+1:]), nil
}

func decodeFrame(data []byte, v any) (uint64, error) {
	version, err := FrameVersion(data)
	if err != nil {
		return 0, err
	}
	rest := data[frameFixed:]
	n := int(data[frameFixed-1])
	if len(rest) < n+frameTrailer {
		return 0, ErrCorrupt
	}
	name := string(rest[:n])
	c, ok := codec.ByName(name)
	if !ok {
		return 0, fmt.Errorf("%w: unknown codec %q", ErrCorrupt, name)
	}
	sum := binary.LittleEndian.Uint32(rest[n:])
	block := rest[n+frameTrailer:]
	if err := hash.Verify(block, sum); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	payload, err := compress.Decompress(block)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := c.Unmarshal(payload, v); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return version, nil
}
