package bitio

import "errors"

// ErrUnexpectedEOF is returned when a raw field extends past the buffer.
var ErrUnexpectedEOF = errors.New("bitio: unexpected end of data")

// BitReader reads fields written by BitWriter.
type BitReader struct {
	buf []byte
	pos int // bit position
	err error
}

// NewBitReader returns a reader over buf.
func NewBitReader(buf []byte) *BitReader {
	return &BitReader{buf: buf}
}

// ReadBit reads one bit. Past the end it returns false and records
// ErrUnexpectedEOF.
func (br *BitReader) ReadBit() bool {
	if br.pos >= len(br.buf)*8 {
		br.err = ErrUnexpectedEOF
		return false
	}
	b := br.buf[br.pos>>3]>>(7-uint(br.pos&7))&1 != 0
	br.pos++
	return b
}

// ReadBits reads n bits, most significant first.
func (br *BitReader) ReadBits(n int) uint32 {
	v := uint32(0)
	for i := 0; i < n; i++ {
		v <<= 1
		if br.ReadBit() {
			v |= 1
		}
	}
	return v
}

// ReadSigned reads a field written by WriteSigned.
func (br *BitReader) ReadSigned(n int) int {
	v := int(br.ReadBits(n))
	if br.ReadBit() {
		v = -v
	}
	return v
}

// ReadUvlc reads a field written by WriteUvlc.
func (br *BitReader) ReadUvlc() uint32 {
	n := 0
	for !br.ReadBit() {
		if br.err != nil || n >= 32 {
			br.err = ErrUnexpectedEOF
			return 0
		}
		n++
	}
	if n == 0 {
		return 0
	}
	return br.ReadBits(n) + (1 << uint(n)) - 1
}

// ByteAlign skips to the next byte boundary.
func (br *BitReader) ByteAlign() {
	br.pos = (br.pos + 7) &^ 7
}

// BytePos returns the current position in whole bytes, rounded up.
func (br *BitReader) BytePos() int {
	return (br.pos + 7) >> 3
}

// Err returns the first error encountered, if any.
func (br *BitReader) Err() error {
	return br.err
}
