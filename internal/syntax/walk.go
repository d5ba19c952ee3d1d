package syntax

import (
	"github.com/deepteams/av1/internal/block"
)

// Superblock-level side information coded before the partition tree.
type SuperblockInfo struct {
	QIndex int     // absolute quantizer index of the superblock
	CDEF   int     // preset index into the frame's CDEF presets
	LR     [3]bool // Wiener restoration enabled per plane
}

// CodeSuperblockInfo codes the side information of a superblock. prevQ is
// the quantizer index of the previous superblock of the tile (the frame
// base index for the first).
func CodeSuperblockInfo(c Coder, fi *FrameInfo, prevQ int, sb *SuperblockInfo) {
	if fi.DeltaQ {
		d := CodeDeltaQ(c, (sb.QIndex-prevQ)/DeltaQRes)
		sb.QIndex = prevQ + d*DeltaQRes
	} else {
		sb.QIndex = fi.BaseQ
	}
	if fi.CDEFBits > 0 {
		sb.CDEF = int(c.Literal(uint32(sb.CDEF), fi.CDEFBits))
	} else {
		sb.CDEF = 0
	}
	for p := 0; p < fi.NumPlanes; p++ {
		if fi.LR[p] {
			sb.LR[p] = c.Literal(uint32(b2i(sb.LR[p])), 1) == 1
		} else {
			sb.LR[p] = false
		}
	}
}

// WalkTree codes the partition tree of the square node of side n at luma
// (x, y) in coding order. choose supplies the partition a writer codes at
// each node; readers pass nil. leaf is called for every leaf inside the
// coded area, after its partition symbol.
func WalkTree(c Coder, t *Tile, x, y, n int, choose func(x, y, n int) block.Partition, leaf func(x, y int, s block.Size) error) error {
	fi := t.Frame
	if fi.NodeEdge(x, y, n) == EdgeOutside {
		return nil
	}
	var want block.Partition
	if choose != nil {
		want = choose(x, y, n)
	}
	p := CodePartition(c, t, x, y, n, want)
	if p == block.PartitionSplit {
		h := n / 2
		for _, d := range [4][2]int{{0, 0}, {h, 0}, {0, h}, {h, h}} {
			if err := WalkTree(c, t, x+d[0], y+d[1], h, choose, leaf); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range block.Layout(p, n) {
		lx, ly := x+r.X, y+r.Y
		if lx >= fi.Width || ly >= fi.Height {
			continue
		}
		s, ok := block.SizeFor(r.W, r.H)
		if !ok {
			return ErrBadPartition
		}
		if err := leaf(lx, ly, s); err != nil {
			return err
		}
	}
	return nil
}

// CopyFrom makes b a deep copy of o, reusing b's storage.
func (b *Block) CopyFrom(o *Block) {
	tx, levels := b.Tx, b.levels
	*b = *o
	b.Tx, b.levels = tx, levels
	for p := range o.Tx {
		n := len(o.levels[p])
		if cap(b.levels[p]) < n {
			b.levels[p] = make([]int32, n)
		}
		b.levels[p] = b.levels[p][:n]
		copy(b.levels[p], o.levels[p])
		if cap(b.Tx[p]) < len(o.Tx[p]) {
			b.Tx[p] = make([]TxBlock, len(o.Tx[p]))
		}
		b.Tx[p] = b.Tx[p][:len(o.Tx[p])]
		off := 0
		for i := range o.Tx[p] {
			b.Tx[p][i] = o.Tx[p][i]
			a := o.Tx[p][i].Size.Area()
			b.Tx[p][i].Levels = b.levels[p][off : off+a]
			off += a
		}
	}
}
