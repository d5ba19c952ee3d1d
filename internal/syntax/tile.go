package syntax

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/frame"
)

// FrameInfo carries the frame-header state the block syntax depends on.
type FrameInfo struct {
	Width, Height int // coded luma size, multiples of frame.Align
	BitDepth      int
	Subsampling   frame.Subsampling
	NumPlanes     int
	Intra         bool // no inter syntax
	AllowHP       bool // eighth-pel motion vectors
	DeltaQ        bool // per-superblock quantizer deltas
	BaseQ         int
	CDEFBits      int     // bits of the per-superblock CDEF preset index
	LR            [3]bool // per-superblock restoration flags coded
	// RefCount active references; list position i is named LastFrame+i.
	RefCount int
	// RefDist holds the signed display distance from each active
	// reference to the current frame.
	RefDist [block.InterRefsPerFrame]int
	// Refs holds the reconstructed reference frames in list order. Only
	// reconstruction reads them.
	Refs [block.InterRefsPerFrame]*frame.Frame
}

// CompoundAllowed reports whether blocks may use two references.
func (fi *FrameInfo) CompoundAllowed() bool {
	return !fi.Intra && fi.RefCount >= 2
}

// Tile is the rectangle of a frame coded with one context store, in 4x4
// luma units. Neighbours outside the tile are unavailable to every
// context and predictor.
type Tile struct {
	Frame      *FrameInfo
	Grid       *block.Grid
	Col0, Row0 int
	Col1, Row1 int // exclusive
}

// Inside reports whether unit (col, row) belongs to the tile.
func (t *Tile) Inside(col, row int) bool {
	return col >= t.Col0 && col < t.Col1 && row >= t.Row0 && row < t.Row1
}

// mi returns the mode info of unit (col, row), or nil outside the tile.
func (t *Tile) mi(col, row int) *block.ModeInfo {
	if !t.Inside(col, row) {
		return nil
	}
	return t.Grid.At(col, row)
}

// Rect returns the tile in luma samples.
func (t *Tile) Rect() block.Rect {
	return block.Rect{X: t.Col0 << 2, Y: t.Row0 << 2, W: (t.Col1 - t.Col0) << 2, H: (t.Row1 - t.Row0) << 2}
}

// ResetGrid clears the tile's part of the grid before coding a frame.
func (t *Tile) ResetGrid() {
	r := block.Rect{X: t.Col0, Y: t.Row0, W: t.Col1 - t.Col0, H: t.Row1 - t.Row0}
	t.Grid.Fill(r, block.ModeInfo{})
	t.Grid.MarkAll(r, false)
}

// Tiles splits a w x h luma frame into cols x rows tiles on superblock
// boundaries, as evenly as possible, in raster order.
func Tiles(fi *FrameInfo, g *block.Grid, cols, rows int) []Tile {
	sbCols := (fi.Width + block.SuperblockSize - 1) / block.SuperblockSize
	sbRows := (fi.Height + block.SuperblockSize - 1) / block.SuperblockSize
	cols = min(max(cols, 1), sbCols)
	rows = min(max(rows, 1), sbRows)
	const sb4 = block.SuperblockSize / 4
	tiles := make([]Tile, 0, cols*rows)
	for r := 0; r < rows; r++ {
		r0 := r * sbRows / rows * sb4
		r1 := min((r+1)*sbRows/rows*sb4, g.Rows)
		for c := 0; c < cols; c++ {
			c0 := c * sbCols / cols * sb4
			c1 := min((c+1)*sbCols/cols*sb4, g.Cols)
			tiles = append(tiles, Tile{Frame: fi, Grid: g, Col0: c0, Row0: r0, Col1: c1, Row1: r1})
		}
	}
	return tiles
}
