package syntax

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
)

// TxBlock is one transform block of a coding block.
type TxBlock struct {
	X, Y   int // plane samples
	Size   block.TxSize
	Type   block.TxType
	Eob    int
	Levels []int32 // raster order, Size.Area() entries
}

// Block is a leaf coding block: its mode decisions and, per plane, its
// transform blocks in coding order.
type Block struct {
	X, Y     int // luma samples
	Size     block.Size
	QIndex   int
	Skip     bool
	Inter    bool
	Compound bool
	YMode    block.PredMode
	UVMode   block.PredMode
	TxSplit  bool
	Mode     block.InterMode // joint mode for compound blocks
	CompType block.CompoundType
	RefIdx   [2]int // active-list positions; RefIdx[1] is -1 unless compound
	Mv       [2]block.MotionVector
	Tx       [3][]TxBlock

	levels [3][]int32
}

// LumaTxSize returns the luma transform size implied by the block size
// and TxSplit.
func (b *Block) LumaTxSize() block.TxSize {
	t := block.MaxTxSize(b.Size.Width(), b.Size.Height())
	if b.TxSplit {
		t = t.Split()
	}
	return t
}

// Layout (re)builds the transform blocks of every plane from the block
// size and TxSplit. Levels storage is reused; Type and Eob are kept for
// transform blocks that already existed.
func (b *Block) Layout(fi *FrameInfo) {
	for p := 0; p < fi.NumPlanes; p++ {
		sx, sy := 0, 0
		var tx block.TxSize
		w, h := b.Size.Width(), b.Size.Height()
		if p == 0 {
			tx = b.LumaTxSize()
		} else {
			sx, sy = fi.Subsampling.Shift()
			w >>= sx
			h >>= sy
			tx = block.TxSizeFor(w, h)
		}
		if cap(b.levels[p]) < w*h {
			b.levels[p] = make([]int32, w*h)
		}
		b.levels[p] = b.levels[p][:w*h]
		tw, th := tx.Width(), tx.Height()
		n := (w / tw) * (h / th)
		if cap(b.Tx[p]) < n {
			old := b.Tx[p]
			b.Tx[p] = make([]TxBlock, n)
			copy(b.Tx[p], old)
		}
		b.Tx[p] = b.Tx[p][:n]
		px, py := b.X>>sx, b.Y>>sy
		i, off := 0, 0
		for y := 0; y < h; y += th {
			for x := 0; x < w; x += tw {
				tb := &b.Tx[p][i]
				tb.X, tb.Y, tb.Size = px+x, py+y, tx
				tb.Levels = b.levels[p][off : off+tw*th]
				i++
				off += tw * th
			}
		}
	}
}

// Refs returns the named references of an inter block.
func (b *Block) Refs() [2]block.RefFrame {
	r := [2]block.RefFrame{block.LastFrame + block.RefFrame(b.RefIdx[0]), block.NoneFrame}
	if b.Compound {
		r[1] = block.LastFrame + block.RefFrame(b.RefIdx[1])
	}
	return r
}

// ModeInfo returns the grid record of b, without transform state.
func (b *Block) ModeInfo() block.ModeInfo {
	mi := block.ModeInfo{
		Size:     b.Size,
		Skip:     b.Skip,
		Inter:    b.Inter,
		Compound: b.Compound,
		YMode:    b.YMode,
		UVMode:   b.UVMode,
		QIndex:   uint8(b.QIndex),
		Ref:      [2]block.RefFrame{block.IntraFrame, block.NoneFrame},
	}
	if b.Inter {
		mi.InterMode = uint8(b.Mode)
		mi.CompType = b.CompType
		mi.Ref = b.Refs()
		mi.Mv[0] = b.Mv[0]
		if b.Compound {
			mi.Mv[1] = b.Mv[1]
		}
	}
	return mi
}

// Rect4 returns the block in 4x4 luma units.
func (b *Block) Rect4() block.Rect {
	return block.Rect{X: b.X >> 2, Y: b.Y >> 2, W: b.Size.Width() >> 2, H: b.Size.Height() >> 2}
}

// txRect4 returns the luma 4x4 units covered by tb of plane p.
func (t *Tile) txRect4(p int, tb *TxBlock) block.Rect {
	sx, sy := 0, 0
	if p > 0 {
		sx, sy = t.Frame.Subsampling.Shift()
	}
	return block.Rect{
		X: (tb.X << sx) >> 2,
		Y: (tb.Y << sy) >> 2,
		W: max((tb.Size.Width()<<sx)>>2, 1),
		H: max((tb.Size.Height()<<sy)>>2, 1),
	}
}

// CodeBlock codes the mode info and coefficients of b and records b in
// the grid. A Reader fills b in; the levels of every coded transform
// block are overwritten.
func CodeBlock(c Coder, t *Tile, b *Block) {
	fi := t.Frame
	col, row := b.X>>2, b.Y>>2
	above, left := t.mi(col, row-1), t.mi(col-1, row)

	skipCtx := 0
	if above != nil && above.Skip {
		skipCtx++
	}
	if left != nil && left.Skip {
		skipCtx++
	}
	b.Skip = c.Bool(cdf.Skip, skipCtx, b.Skip)

	if fi.Intra {
		b.Inter = false
	} else {
		b.Inter = c.Bool(cdf.IsInter, isInterContext(above, left), b.Inter)
	}
	if b.Inter {
		codeInterInfo(c, t, b, above, left)
	} else {
		b.Compound = false
		b.RefIdx = [2]int{-1, -1}
		k, ctx := t.YModeContext(b.X, b.Y, b.Size)
		b.YMode = block.PredMode(c.Symbol(k, ctx, int(b.YMode)))
		b.UVMode = block.DCPred
		if fi.NumPlanes > 1 {
			b.UVMode = block.PredMode(c.Symbol(cdf.UVMode, int(b.YMode), int(b.UVMode)))
		}
	}

	maxTx := block.MaxTxSize(b.Size.Width(), b.Size.Height())
	if !b.Inter || !b.Skip {
		b.TxSplit = c.Bool(cdf.TxDepth, maxTx.Category(), b.TxSplit)
	} else {
		b.TxSplit = false
	}
	b.Layout(fi)

	t.Grid.Fill(b.Rect4(), b.ModeInfo())
	for p := 0; p < fi.NumPlanes; p++ {
		for i := range b.Tx[p] {
			tb := &b.Tx[p][i]
			if b.Skip {
				tb.Eob = 0
				tb.Type = block.DctDct
			} else {
				codeTxb(c, t, b, p, tb)
			}
			var dc int8
			if tb.Eob > 0 {
				dc = sign(tb.Levels[0])
			}
			t.Grid.SetTx(t.txRect4(p, tb), p, tb.Eob > 0, dc, tb.Size.Log2W(), tb.Size.Log2H())
		}
	}
}

// YModeContext returns the symbol kind and context of the luma intra mode
// of a block of size s at luma (x, y).
func (t *Tile) YModeContext(x, y int, s block.Size) (cdf.Kind, int) {
	if !t.Frame.Intra {
		return cdf.YMode, s.SizeGroup()
	}
	above, left := t.mi(x>>2, (y>>2)-1), t.mi((x>>2)-1, y>>2)
	return cdf.KfYMode, block.ModeContext[neighbourMode(above)]*5 + block.ModeContext[neighbourMode(left)]
}

func neighbourMode(mi *block.ModeInfo) block.PredMode {
	if mi == nil || mi.Inter {
		return block.DCPred
	}
	return mi.YMode
}

func isInterContext(above, left *block.ModeInfo) int {
	switch {
	case above != nil && left != nil:
		ai, li := !above.Inter, !left.Inter
		if ai && li {
			return 3
		}
		if ai || li {
			return 1
		}
		return 0
	case above != nil:
		return 2 * b2i(!above.Inter)
	case left != nil:
		return 2 * b2i(!left.Inter)
	}
	return 0
}

func sign(v int32) int8 {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

func countIf(above, left *block.ModeInfo, f func(*block.ModeInfo) bool) int {
	n := 0
	if above != nil && f(above) {
		n++
	}
	if left != nil && f(left) {
		n++
	}
	return n
}

func codeInterInfo(c Coder, t *Tile, b *Block, above, left *block.ModeInfo) {
	fi := t.Frame
	if fi.CompoundAllowed() {
		ctx := countIf(above, left, func(m *block.ModeInfo) bool { return m.Inter && m.Compound })
		b.Compound = c.Bool(cdf.CompMode, ctx, b.Compound)
	} else {
		b.Compound = false
	}

	if !b.Compound {
		i := 0
		for ; i < fi.RefCount-1; i++ {
			ref := block.LastFrame + block.RefFrame(i)
			nctx := countIf(above, left, func(m *block.ModeInfo) bool { return m.Inter && m.Ref[0] == ref })
			if !c.Bool(cdf.RefBit, i*3+nctx, b.RefIdx[0] > i) {
				break
			}
		}
		b.RefIdx = [2]int{i, -1}
	} else {
		i := 0
		for ; i < fi.RefCount-2; i++ {
			if !c.Bool(cdf.CompRef0Bit, i, b.RefIdx[0] > i) {
				break
			}
		}
		j := i + 1
		for ; j < fi.RefCount-1; j++ {
			if !c.Bool(cdf.CompRef1Bit, j, b.RefIdx[1] > j) {
				break
			}
		}
		b.RefIdx = [2]int{i, j}
	}

	cands := t.MvCandidates(b.X, b.Y, b.Size, b.Refs(), b.Compound)
	ctx := min(cands.N, 2)*2 + b2i(cands.NewNeighbour)
	if b.Compound {
		b.Mode = block.InterMode(c.Symbol(cdf.CompInterMode, ctx, int(b.Mode)))
	} else {
		b.Mode = block.InterMode(c.Symbol(cdf.InterMode, ctx, int(b.Mode)))
	}
	nref := 1 + b2i(b.Compound)
	for k := 0; k < nref; k++ {
		switch b.Mode {
		case block.NearestMV:
			b.Mv[k] = cands.Mv[0][k]
		case block.NearMV:
			b.Mv[k] = cands.Mv[1][k]
		case block.GlobalMV:
			b.Mv[k] = block.MotionVector{}
		default:
			pred := cands.Mv[0][k]
			diff := codeMv(c, b.Mv[k].Sub(pred), fi.AllowHP)
			b.Mv[k] = pred.Add(diff)
		}
	}
	if !b.Compound {
		b.Mv[1] = block.MotionVector{}
		b.CompType = block.CompoundAverage
		return
	}
	ctctx := countIf(above, left, func(m *block.ModeInfo) bool {
		return m.Inter && m.Compound && m.CompType == block.CompoundDistance
	})
	if c.Bool(cdf.CompType, ctctx, b.CompType == block.CompoundDistance) {
		b.CompType = block.CompoundDistance
	} else {
		b.CompType = block.CompoundAverage
	}
}
