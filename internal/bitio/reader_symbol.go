package bitio

import "math/bits"

const (
	windowSize = 32
	lotsOfBits = 0x4000
)

// SymbolReader decodes a stream produced by SymbolWriter. Reading past the
// end of the buffer yields the same symbols an encoder padding with ones
// would have produced, so truncated tails never panic.
type SymbolReader struct {
	buf []byte
	pos int
	dif uint32
	rng uint32
	cnt int
}

// NewSymbolReader returns a reader positioned at the start of buf.
func NewSymbolReader(buf []byte) *SymbolReader {
	r := &SymbolReader{}
	r.Init(buf)
	return r
}

// Init resets the reader to decode buf.
func (r *SymbolReader) Init(buf []byte) {
	r.buf = buf
	r.pos = 0
	r.dif = 1<<(windowSize-1) - 1
	r.rng = 0x8000
	r.cnt = -15
	r.refill()
}

func (r *SymbolReader) refill() {
	s := windowSize - 9 - (r.cnt + 15)
	for ; s >= 0 && r.pos < len(r.buf); s -= 8 {
		r.dif ^= uint32(r.buf[r.pos]) << uint(s)
		r.pos++
		r.cnt += 8
	}
	if r.pos >= len(r.buf) {
		r.cnt = lotsOfBits
	}
}

func (r *SymbolReader) normalize(dif, rng uint32, ret int) int {
	d := 16 - bits.Len32(rng)
	r.cnt -= d
	r.dif = ((dif + 1) << uint(d)) - 1
	r.rng = rng << uint(d)
	if r.cnt < 0 {
		r.refill()
	}
	return ret
}

// ReadSymbol decodes one symbol of an n-symbol alphabet with inverted CDF f.
func (r *SymbolReader) ReadSymbol(f []uint16, n int) int {
	dif := r.dif
	rng := r.rng
	last := uint32(n - 1)
	c := dif >> (windowSize - 16)
	u := uint32(0)
	v := rng
	ret := -1
	for {
		u = v
		ret++
		v = (rng>>8)*(uint32(f[ret])>>probShift)>>(7-probShift) + minProb*(last-uint32(ret))
		if c >= v {
			break
		}
	}
	dif -= v << (windowSize - 16)
	return r.normalize(dif, u-v, ret)
}

// ReadBool decodes a binary decision coded with WriteBool.
func (r *SymbolReader) ReadBool(f []uint16) bool {
	return r.ReadSymbol(f, 2) == 1
}

// ReadLiteral decodes n equiprobable bits, most significant first.
func (r *SymbolReader) ReadLiteral(n int) uint32 {
	v := uint32(0)
	for i := 0; i < n; i++ {
		v = v<<1 | uint32(r.ReadSymbol(uniformBit, 2))
	}
	return v
}

// Exhausted reports whether the reader consumed more bits than the buffer
// holds (beyond the flush padding).
func (r *SymbolReader) Exhausted() bool {
	return r.pos >= len(r.buf) && r.cnt < lotsOfBits-64
}
