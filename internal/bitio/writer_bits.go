package bitio

// BitWriter writes raw, most-significant-bit-first fields. It carries the
// uncompressed parts of the bitstream: OBU headers, sequence and frame
// headers.
type BitWriter struct {
	buf  []byte
	cur  byte
	used int
}

// NewBitWriter creates a BitWriter with capacity for expectedSize bytes.
func NewBitWriter(expectedSize int) *BitWriter {
	if expectedSize < 64 {
		expectedSize = 64
	}
	return &BitWriter{buf: make([]byte, 0, expectedSize)}
}

// WriteBit appends a single bit.
func (bw *BitWriter) WriteBit(b bool) {
	bw.cur <<= 1
	if b {
		bw.cur |= 1
	}
	bw.used++
	if bw.used == 8 {
		bw.buf = append(bw.buf, bw.cur)
		bw.cur = 0
		bw.used = 0
	}
}

// WriteBits appends the low n bits of v, most significant first.
func (bw *BitWriter) WriteBits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		bw.WriteBit((v>>uint(i))&1 != 0)
	}
}

// WriteSigned appends v as an n-bit magnitude followed by a sign bit.
func (bw *BitWriter) WriteSigned(v int, n int) {
	mag := v
	if mag < 0 {
		mag = -mag
	}
	bw.WriteBits(uint32(mag), n)
	bw.WriteBit(v < 0)
}

// WriteUvlc appends v with the AV1 uvlc code (leading zeros, marker,
// value bits).
func (bw *BitWriter) WriteUvlc(v uint32) {
	x := uint64(v) + 1
	n := 0
	for t := x; t > 1; t >>= 1 {
		n++
	}
	for i := 0; i < n; i++ {
		bw.WriteBit(false)
	}
	bw.WriteBit(true)
	bw.WriteBits(uint32(x-(1<<uint(n))), n)
}

// ByteAlign pads with zero bits up to the next byte boundary.
func (bw *BitWriter) ByteAlign() {
	for bw.used != 0 {
		bw.WriteBit(false)
	}
}

// BitsWritten returns the number of bits written.
func (bw *BitWriter) BitsWritten() int {
	return len(bw.buf)*8 + bw.used
}

// Bytes aligns the stream and returns the written bytes.
func (bw *BitWriter) Bytes() []byte {
	bw.ByteAlign()
	return bw.buf
}
