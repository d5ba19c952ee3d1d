package obu

import (
	"encoding/binary"
	"fmt"

	"github.com/deepteams/av1/internal/bitio"
)

// tileSizeBytes is the width of the size field before every tile but the
// last.
const tileSizeBytes = 4

// AppendFrame appends a frame unit holding the marshalled header and the
// tile payloads in raster order.
func AppendFrame(dst []byte, header []byte, tiles [][]byte) []byte {
	n := len(header)
	for i, t := range tiles {
		n += len(t)
		if i < len(tiles)-1 {
			n += tileSizeBytes
		}
	}
	dst = append(dst, byte(TypeFrame)<<3|hasSizeFlag)
	dst = bitio.AppendLeb128(dst, uint64(n))
	dst = append(dst, header...)
	for i, t := range tiles {
		if i < len(tiles)-1 {
			dst = binary.LittleEndian.AppendUint32(dst, uint32(len(t)))
		}
		dst = append(dst, t...)
	}
	return dst
}

// SplitTiles splits a tile group into n tile payloads. The payloads are
// sub-slices of data.
func SplitTiles(data []byte, n int) ([][]byte, error) {
	tiles := make([][]byte, 0, n)
	for i := 0; i < n-1; i++ {
		if len(data) < tileSizeBytes {
			return nil, fmt.Errorf("%w: size of tile %d", ErrTruncated, i)
		}
		size := binary.LittleEndian.Uint32(data)
		data = data[tileSizeBytes:]
		if uint64(size) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: tile %d of %d bytes, %d left", ErrTruncated, i, size, len(data))
		}
		tiles = append(tiles, data[:size])
		data = data[size:]
	}
	return append(tiles, data), nil
}
