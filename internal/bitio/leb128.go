package bitio

import "errors"

// ErrLeb128 is returned for a LEB128 value that is truncated or longer
// than eight bytes.
var ErrLeb128 = errors.New("bitio: malformed leb128")

// AppendLeb128 appends v in unsigned LEB128 form.
func AppendLeb128(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			dst = append(dst, b|0x80)
			continue
		}
		return append(dst, b)
	}
}

// Leb128Size returns the encoded length of v.
func Leb128Size(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// ReadLeb128 decodes a LEB128 value from the start of data and returns it
// with the number of bytes consumed.
func ReadLeb128(data []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < 8; i++ {
		if i >= len(data) {
			return 0, 0, ErrLeb128
		}
		b := data[i]
		v |= uint64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrLeb128
}
