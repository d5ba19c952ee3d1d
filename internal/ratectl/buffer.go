package ratectl

// Buffer models the decoder's input buffer: it fills at the channel rate
// for every shown frame and drains by each temporal unit's size.
type Buffer struct {
	Size     float64
	Fullness float64
	inflow   float64

	// Underflows counts units larger than the buffer held.
	Underflows int
}

func newBuffer(bitrate float64, ms int, perFrame float64) *Buffer {
	size := bitrate * float64(ms) / 1000
	return &Buffer{Size: size, Fullness: size * 0.75, inflow: perFrame}
}

// Add accounts for a unit of bits, returning how many padding bits must
// follow it to keep the buffer from overflowing.
func (b *Buffer) Add(bits int, show bool) (padding int) {
	if show {
		b.Fullness += b.inflow
	}
	b.Fullness -= float64(bits)
	if b.Fullness < 0 {
		b.Underflows++
		b.Fullness = 0
	}
	if b.Fullness > b.Size {
		padding = int(b.Fullness-b.Size+7) &^ 7
		b.Fullness -= float64(padding)
	}
	return padding
}
