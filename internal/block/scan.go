package block

// scans holds the zig-zag scan of every transform size, generated once.
var scans [NumTxSizes][]uint16

func init() {
	for t := TxSize(0); t < NumTxSizes; t++ {
		scans[t] = zigzag(t.Width(), t.Height())
	}
}

// zigzag walks anti-diagonals of a w x h block, alternating direction,
// and returns raster positions (row*w + col).
func zigzag(w, h int) []uint16 {
	out := make([]uint16, 0, w*h)
	for d := 0; d < w+h-1; d++ {
		if d&1 == 0 {
			// up-right: row descending
			for r := min(d, h-1); r >= 0; r-- {
				c := d - r
				if c >= w {
					break
				}
				out = append(out, uint16(r*w+c))
			}
		} else {
			for c := min(d, w-1); c >= 0; c-- {
				r := d - c
				if r >= h {
					break
				}
				out = append(out, uint16(r*w+c))
			}
		}
	}
	return out
}

// Scan returns the coefficient scan order of t as raster positions.
func Scan(t TxSize) []uint16 {
	return scans[t]
}
