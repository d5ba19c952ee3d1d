package block

// ModeInfo is the per-4x4 record of a coded block. Every 4x4 unit of a
// block carries a copy; transform-level fields (Nonzero, DcSign, TxW, TxH)
// describe the transform covering that unit.
type ModeInfo struct {
	Size      Size
	Skip      bool
	Inter     bool
	Compound  bool
	YMode     PredMode
	UVMode    PredMode
	InterMode uint8
	CompType  CompoundType
	Ref       [2]RefFrame
	Mv        [2]MotionVector
	QIndex    uint8
	TxLog2W   uint8
	TxLog2H   uint8
	Nonzero   [3]bool
	DcSign    [3]int8
}

// Grid is the mode-info map of a frame in 4x4 luma units, together with
// the per-plane set of units already reconstructed in the current coding
// pass. Chroma reconstruction is tracked on the luma units it covers.
type Grid struct {
	Cols, Rows int
	info       []ModeInfo
	decoded    [3][]bool
}

// NewGrid returns a grid covering w x h luma samples.
func NewGrid(w, h int) *Grid {
	cols := (w + 3) >> 2
	rows := (h + 3) >> 2
	g := &Grid{
		Cols: cols,
		Rows: rows,
		info: make([]ModeInfo, cols*rows),
	}
	for p := range g.decoded {
		g.decoded[p] = make([]bool, cols*rows)
	}
	return g
}

// Reset clears all records.
func (g *Grid) Reset() {
	clear(g.info)
	for p := range g.decoded {
		clear(g.decoded[p])
	}
}

// At returns the record of unit (col, row). The caller must keep the
// coordinates in range.
func (g *Grid) At(col, row int) *ModeInfo {
	return &g.info[row*g.Cols+col]
}

// Decoded reports whether unit (col, row) lies in the grid and has been
// reconstructed in plane p.
func (g *Grid) Decoded(p, col, row int) bool {
	if col < 0 || row < 0 || col >= g.Cols || row >= g.Rows {
		return false
	}
	return g.decoded[p][row*g.Cols+col]
}

// Fill stores mi into every unit of r (in 4x4 units, clipped to the grid)
// without marking them decoded.
func (g *Grid) Fill(r Rect, mi ModeInfo) {
	x1, y1 := min(r.X+r.W, g.Cols), min(r.Y+r.H, g.Rows)
	for y := r.Y; y < y1; y++ {
		row := g.info[y*g.Cols : (y+1)*g.Cols]
		for x := r.X; x < x1; x++ {
			row[x] = mi
		}
	}
}

// MarkDecoded sets the decoded state of every unit of r in plane p.
func (g *Grid) MarkDecoded(r Rect, p int, v bool) {
	x1, y1 := min(r.X+r.W, g.Cols), min(r.Y+r.H, g.Rows)
	for y := r.Y; y < y1; y++ {
		row := g.decoded[p][y*g.Cols : (y+1)*g.Cols]
		for x := r.X; x < x1; x++ {
			row[x] = v
		}
	}
}

// MarkAll sets the decoded state of every unit of r in all planes.
func (g *Grid) MarkAll(r Rect, v bool) {
	for p := range g.decoded {
		g.MarkDecoded(r, p, v)
	}
}

// SetTx records transform-level state for the units of r in plane p.
// For chroma the rectangle is given in luma 4x4 units.
func (g *Grid) SetTx(r Rect, p int, nonzero bool, dcSign int8, log2w, log2h int) {
	x1, y1 := min(r.X+r.W, g.Cols), min(r.Y+r.H, g.Rows)
	for y := r.Y; y < y1; y++ {
		for x := r.X; x < x1; x++ {
			mi := &g.info[y*g.Cols+x]
			mi.Nonzero[p] = nonzero
			mi.DcSign[p] = dcSign
			if p == 0 {
				mi.TxLog2W = uint8(log2w)
				mi.TxLog2H = uint8(log2h)
			}
		}
	}
}

// Region is a saved copy of part of a Grid.
type Region struct {
	r       Rect
	info    []ModeInfo
	decoded [3][]bool
}

// Save copies the units of r into dst, reusing its storage.
func (g *Grid) Save(r Rect, dst *Region) {
	r = g.clip(r)
	dst.r = r
	n := r.W * r.H
	if cap(dst.info) < n {
		dst.info = make([]ModeInfo, n)
		for p := range dst.decoded {
			dst.decoded[p] = make([]bool, n)
		}
	}
	dst.info = dst.info[:n]
	for p := range dst.decoded {
		dst.decoded[p] = dst.decoded[p][:n]
	}
	for y := 0; y < r.H; y++ {
		off := (r.Y+y)*g.Cols + r.X
		copy(dst.info[y*r.W:(y+1)*r.W], g.info[off:off+r.W])
		for p := range dst.decoded {
			copy(dst.decoded[p][y*r.W:(y+1)*r.W], g.decoded[p][off:off+r.W])
		}
	}
}

// Restore writes a saved region back.
func (g *Grid) Restore(src *Region) {
	r := src.r
	for y := 0; y < r.H; y++ {
		off := (r.Y+y)*g.Cols + r.X
		copy(g.info[off:off+r.W], src.info[y*r.W:(y+1)*r.W])
		for p := range src.decoded {
			copy(g.decoded[p][off:off+r.W], src.decoded[p][y*r.W:(y+1)*r.W])
		}
	}
}

func (g *Grid) clip(r Rect) Rect {
	x1, y1 := min(r.X+r.W, g.Cols), min(r.Y+r.H, g.Rows)
	r.W = max(x1-r.X, 0)
	r.H = max(y1-r.Y, 0)
	return r
}

// CopyFrom makes g an exact copy of o. Both grids must have the same size.
func (g *Grid) CopyFrom(o *Grid) {
	copy(g.info, o.info)
	for p := range g.decoded {
		copy(g.decoded[p], o.decoded[p])
	}
}
