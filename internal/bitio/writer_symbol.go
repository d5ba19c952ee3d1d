// Package bitio provides the bit-level I/O of the codec.
//
// It implements the multi-symbol range coder that carries all adaptive
// syntax elements, a plain MSB-first bit writer and reader for headers, and
// LEB128 integers for unit sizes.
package bitio

import (
	"errors"
	"math/bits"
)

const (
	// CDFTop is the probability scale of a 15-bit inverted CDF.
	CDFTop = 1 << 15

	probShift = 6
	minProb   = 4
)

// ErrWriterFinished is reported when a symbol is written after Finish.
var ErrWriterFinished = errors.New("bitio: symbol written after flush")

type writerState uint8

const (
	stateIdle writerState = iota
	stateCoding
	stateFlushed
)

// uniformBit is the fixed, non-adapting CDF used for literal bits.
var uniformBit = []uint16{CDFTop / 2, 0}

// SymbolWriter is a multi-symbol range encoder driven by 15-bit inverted
// CDFs. An inverted CDF f of an n-symbol alphabet holds n values where
// f[i] = 32768 - 32768*P(X <= i); f[n-1] is always 0.
//
// Output bytes are held in a pre-carry buffer of 16-bit cells and resolved
// once, at Finish. A writer codes a single tile: Reset starts coding, Finish
// is terminal until the next Reset.
type SymbolWriter struct {
	precarry []uint16
	low      uint64
	rng      uint32
	cnt      int
	state    writerState
	err      error
}

// NewSymbolWriter creates a SymbolWriter with room for expectedSize output
// bytes and puts it in the coding state.
func NewSymbolWriter(expectedSize int) *SymbolWriter {
	w := &SymbolWriter{}
	w.Reset(expectedSize)
	return w
}

// Reset discards all coded data and starts a new coding run, reusing the
// pre-carry buffer when it is large enough.
func (w *SymbolWriter) Reset(expectedSize int) {
	if expectedSize < 1024 {
		expectedSize = 1024
	}
	if cap(w.precarry) >= expectedSize {
		w.precarry = w.precarry[:0]
	} else {
		w.precarry = make([]uint16, 0, expectedSize)
	}
	w.low = 0
	w.rng = 0x8000
	w.cnt = -9
	w.state = stateCoding
	w.err = nil
}

// WriteSymbol codes symbol s with the inverted CDF f. len(f) must be at
// least the alphabet size; entries beyond the alphabet (the adaptation
// counter) are ignored when n is given.
func (w *SymbolWriter) WriteSymbol(s int, f []uint16, n int) {
	if w.state != stateCoding {
		if w.err == nil {
			w.err = ErrWriterFinished
		}
		return
	}
	fl := uint32(CDFTop)
	if s > 0 {
		fl = uint32(f[s-1])
	}
	w.encode(fl, uint32(f[s]), s, n)
}

// WriteBool codes a binary decision with a two-symbol inverted CDF.
func (w *SymbolWriter) WriteBool(b bool, f []uint16) {
	s := 0
	if b {
		s = 1
	}
	w.WriteSymbol(s, f, 2)
}

// WriteLiteral codes the low n bits of v, most significant first, with
// equiprobable non-adapting decisions.
func (w *SymbolWriter) WriteLiteral(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteSymbol(int(v>>uint(i))&1, uniformBit, 2)
	}
}

func (w *SymbolWriter) encode(fl, fh uint32, s, nsyms int) {
	l := w.low
	r := w.rng
	n := uint32(nsyms - 1)
	if fl < CDFTop {
		u := ((r>>8)*(fl>>probShift)>>(7-probShift) + minProb*(n-uint32(s-1)))
		v := ((r>>8)*(fh>>probShift)>>(7-probShift) + minProb*(n-uint32(s)))
		l += uint64(r - u)
		r = u - v
	} else {
		r -= (r>>8)*(fh>>probShift)>>(7-probShift) + minProb*(n-uint32(s))
	}
	w.normalize(l, r)
}

// normalize renormalises the range into [32768, 65535], moving completed
// bytes (with a possible pending carry bit) into the pre-carry buffer.
func (w *SymbolWriter) normalize(low uint64, rng uint32) {
	d := 16 - bits.Len32(rng)
	c := w.cnt
	s := c + d
	if s >= 0 {
		c += 16
		m := uint64(1)<<uint(c) - 1
		if s >= 8 {
			w.precarry = append(w.precarry, uint16(low>>uint(c)))
			low &= m
			c -= 8
			m >>= 8
		}
		w.precarry = append(w.precarry, uint16(low>>uint(c)))
		s = c + d - 24
		low &= m
	}
	w.low = low << uint(d)
	w.rng = rng << uint(d)
	w.cnt = s
}

// Finish terminates the coding run and returns the coded bytes. It writes
// the minimum number of bits that decode correctly regardless of what
// follows, then resolves carries. Further writes set ErrWriterFinished.
func (w *SymbolWriter) Finish() []byte {
	if w.state != stateCoding {
		return nil
	}
	w.state = stateFlushed
	c := w.cnt
	s := c + 10
	m := uint64(0x3FFF)
	e := ((w.low + m) &^ m) | (m + 1)
	if s > 0 {
		n := uint64(1)<<uint(c+16) - 1
		for {
			w.precarry = append(w.precarry, uint16(e>>uint(c+16)))
			e &= n
			s -= 8
			c -= 8
			n >>= 8
			if s <= 0 {
				break
			}
		}
	}
	out := make([]byte, len(w.precarry))
	carry := uint32(0)
	for i := len(w.precarry) - 1; i >= 0; i-- {
		carry += uint32(w.precarry[i])
		out[i] = byte(carry)
		carry >>= 8
	}
	return out
}

// Tell returns the number of bits written so far, rounded up.
func (w *SymbolWriter) Tell() int {
	return len(w.precarry)*8 + w.cnt + 10
}

// Coding reports whether the writer accepts symbols.
func (w *SymbolWriter) Coding() bool { return w.state == stateCoding }

// Err returns the first error encountered during writing, if any.
func (w *SymbolWriter) Err() error {
	return w.err
}
