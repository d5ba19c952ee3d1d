package syntax

import (
	"math/bits"

	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
)

// MvCands is the motion vector prediction list of a block: NEAREST and
// NEAR vectors (zero when fewer neighbours supply one), per reference.
type MvCands struct {
	N            int // distinct candidates found, up to 2
	Mv           [2][2]block.MotionVector
	NewNeighbour bool
}

const maxScanCands = 8

// MvCandidates scans the row above, the column left and the top-left
// neighbour of the block at luma (x, y) for vectors pointing at refs.
// Candidates are ranked by how many neighbouring units use them, ties in
// scan order.
func (t *Tile) MvCandidates(x, y int, s block.Size, refs [2]block.RefFrame, compound bool) MvCands {
	var (
		list   [maxScanCands][2]block.MotionVector
		weight [maxScanCands]int
		n      int
		out    MvCands
	)
	add := func(mi *block.ModeInfo, units int) {
		if mi == nil || !mi.Inter {
			return
		}
		if mi.InterMode == uint8(block.NewMV) {
			out.NewNeighbour = true
		}
		var cand [2]block.MotionVector
		switch {
		case compound:
			if !mi.Compound || mi.Ref != refs {
				return
			}
			cand = mi.Mv
		case mi.Ref[0] == refs[0]:
			cand[0] = mi.Mv[0]
		case mi.Compound && mi.Ref[1] == refs[0]:
			cand[0] = mi.Mv[1]
		default:
			return
		}
		for i := 0; i < n; i++ {
			if list[i] == cand {
				weight[i] += units
				return
			}
		}
		if n < maxScanCands {
			list[n] = cand
			weight[n] = units
			n++
		}
	}

	col, row := x>>2, y>>2
	w4, h4 := s.Width()>>2, s.Height()>>2
	for i := 0; i < w4; {
		mi := t.mi(col+i, row-1)
		if mi == nil {
			break
		}
		step := min(mi.Size.Width()>>2, w4-i)
		add(mi, step)
		i += step
	}
	for i := 0; i < h4; {
		mi := t.mi(col-1, row+i)
		if mi == nil {
			break
		}
		step := min(mi.Size.Height()>>2, h4-i)
		add(mi, step)
		i += step
	}
	add(t.mi(col-1, row-1), 1)

	// Insertion sort by weight keeps scan order among equal weights.
	for i := 1; i < n; i++ {
		for k := i; k > 0 && weight[k] > weight[k-1]; k-- {
			list[k], list[k-1] = list[k-1], list[k]
			weight[k], weight[k-1] = weight[k-1], weight[k]
		}
	}
	out.N = min(n, 2)
	for k := 0; k < out.N; k++ {
		for r := 0; r < 2; r++ {
			out.Mv[k][r] = list[k][r].LowerPrecision(t.Frame.AllowHP)
		}
	}
	return out
}

// Motion vector component coding: classes of doubling size, class 0
// covering the first two integer positions.
const (
	mvClass0Size = 2
	mvMaxClass   = cdf.MvClasses - 1
)

func mvClassBase(c int) int {
	if c == 0 {
		return 0
	}
	return mvClass0Size << (c + 2)
}

// mvJoint values: which components are non-zero.
const (
	mvJointZero = iota
	mvJointHnzVz
	mvJointHzVnz
	mvJointHnzVnz
)

func codeMv(c Coder, diff block.MotionVector, hp bool) block.MotionVector {
	j := mvJointZero
	if diff.Col != 0 {
		j |= mvJointHnzVz
	}
	if diff.Row != 0 {
		j |= mvJointHzVnz
	}
	j = c.Symbol(cdf.MvJoint, 0, j)
	var out block.MotionVector
	if j&mvJointHzVnz != 0 {
		out.Row = codeMvComponent(c, 0, diff.Row, hp)
	}
	if j&mvJointHnzVz != 0 {
		out.Col = codeMvComponent(c, 1, diff.Col, hp)
	}
	return out
}

// codeMvComponent codes a non-zero component v (1/8 sample) of axis comp.
func codeMvComponent(c Coder, comp int, v int32, hp bool) int32 {
	neg := v < 0
	z := int(v)
	if neg {
		z = -z
	}
	z-- // magnitude minus one
	if z < 0 {
		z = 0
	}
	class := 0
	if z >= mvClass0Size<<3 {
		class = min(bits.Len(uint(z>>3))-1, mvMaxClass)
	}
	off := z - mvClassBase(class)

	neg = c.Bool(cdf.MvSign, comp, neg)
	class = c.Symbol(cdf.MvClass, comp, class)
	d := off >> 3
	if class == 0 {
		d = b2i(c.Bool(cdf.MvClass0Bit, comp, d == 1))
	} else {
		nd := 0
		for i := 0; i < class; i++ {
			bit := c.Bool(cdf.MvBits, comp*cdf.MvMaxBits+i, (d>>i)&1 == 1)
			nd |= b2i(bit) << i
		}
		d = nd
	}
	fr := (off >> 1) & 3
	if class == 0 {
		fr = c.Symbol(cdf.MvClass0Fr, comp*2+d, fr)
	} else {
		fr = c.Symbol(cdf.MvFr, comp, fr)
	}
	hpBit := 1
	if hp {
		if class == 0 {
			hpBit = b2i(c.Bool(cdf.MvClass0Hp, comp, off&1 == 1))
		} else {
			hpBit = b2i(c.Bool(cdf.MvHp, comp, off&1 == 1))
		}
	}
	mag := int32(mvClassBase(class) + (d<<3 | fr<<1 | hpBit) + 1)
	if neg {
		return -mag
	}
	return mag
}

// MvDiffLimit bounds the magnitude of a coded motion vector difference.
const MvDiffLimit = mvClass0Size<<(mvMaxClass+2) + (1<<(mvMaxClass+3) - 1) + 1
