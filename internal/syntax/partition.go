package syntax

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
)

// EdgeRule classifies a partition node against the coded frame area.
type EdgeRule uint8

const (
	EdgeInside    EdgeRule = iota // every partition allowed
	EdgeHorzSplit                 // exactly the lower half outside: HORZ or SPLIT
	EdgeVertSplit                 // exactly the right half outside: VERT or SPLIT
	EdgeForced                    // any other crossing: SPLIT
	EdgeOutside                   // node not coded at all
)

// NodeEdge returns the rule for the square node of side n at luma (x, y).
func (fi *FrameInfo) NodeEdge(x, y, n int) EdgeRule {
	w, h := fi.Width, fi.Height
	switch {
	case x >= w || y >= h:
		return EdgeOutside
	case x+n <= w && y+n <= h:
		return EdgeInside
	case n == block.MinSize:
		// Coded sizes are multiples of MinSize.
		return EdgeInside
	case x+n <= w && y+n/2 == h:
		return EdgeHorzSplit
	case y+n <= h && x+n/2 == w:
		return EdgeVertSplit
	}
	return EdgeForced
}

// Allowed returns the partitions a node may choose, NONE first.
func (fi *FrameInfo) Allowed(x, y, n int) []block.Partition {
	switch fi.NodeEdge(x, y, n) {
	case EdgeInside:
		return allPartitions[:block.PartitionCount(n)]
	case EdgeHorzSplit:
		return []block.Partition{block.PartitionHorz, block.PartitionSplit}
	case EdgeVertSplit:
		return []block.Partition{block.PartitionVert, block.PartitionSplit}
	case EdgeForced:
		return []block.Partition{block.PartitionSplit}
	}
	return nil
}

var allPartitions = [block.NumPartitions]block.Partition{
	block.PartitionNone, block.PartitionHorz, block.PartitionVert, block.PartitionSplit,
	block.PartitionHorzA, block.PartitionHorzB, block.PartitionVertA, block.PartitionVertB,
	block.PartitionHorz4, block.PartitionVert4,
}

// partitionContext counts neighbours narrower (above) or shorter (left)
// than the node.
func (t *Tile) partitionContext(x, y, n int) int {
	col, row := x>>2, y>>2
	ctx := 0
	if a := t.mi(col, row-1); a != nil && a.Size.Width() < n {
		ctx |= 1
	}
	if l := t.mi(col-1, row); l != nil && l.Size.Height() < n {
		ctx |= 2
	}
	return ctx
}

// CodePartition codes the partition of the square node of side n at luma
// (x, y) and returns it. Nodes of side MinSize are always NONE and nodes
// forced by the frame edge code nothing.
func CodePartition(c Coder, t *Tile, x, y, n int, p block.Partition) block.Partition {
	if n <= block.MinSize {
		return block.PartitionNone
	}
	ctx := t.partitionContext(x, y, n)
	switch t.Frame.NodeEdge(x, y, n) {
	case EdgeInside:
		k := cdf.PartitionLarge
		switch n {
		case 16:
			k = cdf.PartitionSmall
		case 32:
			k = cdf.PartitionMid
		}
		return block.Partition(c.Symbol(k, ctx, int(p)))
	case EdgeHorzSplit:
		if c.Bool(cdf.PartitionEdge, min(ctx, 2), p == block.PartitionSplit) {
			return block.PartitionSplit
		}
		return block.PartitionHorz
	case EdgeVertSplit:
		if c.Bool(cdf.PartitionEdge, 3+min(ctx, 2), p == block.PartitionSplit) {
			return block.PartitionSplit
		}
		return block.PartitionVert
	}
	return block.PartitionSplit
}

// Delta q coding: magnitudes 0..2 directly, 3 escapes to an explicit
// length. Deltas are in units of DeltaQRes.
const (
	DeltaQRes    = 4
	deltaQSmall  = 3
	deltaQMaxLen = 8
)

// CodeDeltaQ codes the change of quantizer index at the start of a
// superblock, in units of DeltaQRes, and returns it.
func CodeDeltaQ(c Coder, delta int) int {
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	s := c.Symbol(cdf.DeltaQ, 0, min(abs, deltaQSmall))
	if s == deltaQSmall {
		// abs = (1<<n) + 1 + rem, n in 1..8
		n := 1
		for v := abs - 1; v >= 1<<(n+1); n++ {
		}
		n = int(c.Literal(uint32(n-1), 3)) + 1
		rem := c.Literal(uint32(abs-1-(1<<n)), n)
		abs = int(rem) + 1<<n + 1
	} else {
		abs = s
	}
	if abs != 0 && c.Literal(uint32(b2i(delta < 0)), 1) == 1 {
		return -abs
	}
	return abs
}
