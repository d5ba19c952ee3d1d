package loopfilter

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/pool"
)

// unitRect returns the area of plane p covered by restoration unit sb,
// which is the superblock of the same index scaled to the plane.
func unitRect(f *frame.Frame, p int, m *Map, sb int) (x, y, w, h int) {
	sx, sy := f.PlaneShift(p)
	pl := &f.Planes[p]
	x = (sb % m.Cols * block.SuperblockSize) >> sx
	y = (sb / m.Cols * block.SuperblockSize) >> sy
	w = min(block.SuperblockSize>>sx, pl.Width-x)
	h = min(block.SuperblockSize>>sy, pl.Height-y)
	return
}

// ApplyWiener filters the units of f that m enables, reading the
// unrestored frame with replicated borders.
func ApplyWiener(f *frame.Frame, lr *[3]Wiener, m *Map) {
	var src *frame.Frame
	for p := 0; p < f.NumPlanes; p++ {
		if !lr[p].Enabled {
			continue
		}
		if src == nil {
			src = f.Clone()
			src.ExtendBorders()
		}
		sp, dp := &src.Planes[p], &f.Planes[p]
		for sb, on := range m.LR[p] {
			if !on {
				continue
			}
			x, y, w, h := unitRect(f, p, m, sb)
			dsp.WienerFilter(dp.Data[dp.Offset(x, y):], dp.Stride, sp.Data, sp.Offset(x, y), sp.Stride,
				w, h, lr[p].H, lr[p].V, f.BitDepth)
		}
	}
}

// wienerBank seeds the tap search.
var wienerBank = []dsp.WienerTaps{
	{3, -7, 15},
	{0, 0, 12},
	{0, 4, 20},
	{2, 6, 28},
	{-1, -4, 8},
}

// Header cost of an enabled plane: six taps of about six bits.
const wienerHeaderBits = 36

type wienerSearch struct {
	src, in *frame.Frame
	p       int
	m       *Map
	off     []uint64 // unfiltered SSE per unit
	lambda  uint64
	out     []uint16
}

// unitSSE filters every unit with h, v and returns its SSE.
func (ws *wienerSearch) unitSSE(h, v dsp.WienerTaps, dst []uint64) {
	sp, ip := &ws.src.Planes[ws.p], &ws.in.Planes[ws.p]
	for sb := range ws.off {
		x, y, w, hh := unitRect(ws.in, ws.p, ws.m, sb)
		dsp.WienerFilter(ws.out, w, ip.Data, ip.Offset(x, y), ip.Stride, w, hh, h, v, ws.in.BitDepth)
		dst[sb] = dsp.SSE(sp.Data[sp.Offset(x, y):], sp.Stride, ws.out, w, w, hh)
	}
}

// score returns the cost of the plane with taps h, v and the per-unit
// decision that reaches it.
func (ws *wienerSearch) score(h, v dsp.WienerTaps, on []uint64, flags []bool) uint64 {
	ws.unitSSE(h, v, on)
	total := ws.lambda * wienerHeaderBits * 256
	for sb := range on {
		flags[sb] = on[sb] < ws.off[sb]
		total += 256*min(on[sb], ws.off[sb]) + ws.lambda*256
	}
	return total
}

// searchWiener chooses the filter of plane p and the units it restores,
// returning a disabled filter when restoration does not pay for its rate.
func searchWiener(src, in *frame.Frame, p int, m *Map, iters, lambda int) Wiener {
	n := m.Cols * m.Rows
	ws := &wienerSearch{src: src, in: in, p: p, m: m, off: make([]uint64, n), lambda: uint64(lambda)}
	ws.out = pool.GetSamples(block.SuperblockSize * block.SuperblockSize)
	defer pool.PutSamples(ws.out)

	sp, ip := &src.Planes[p], &in.Planes[p]
	var disabled uint64
	for sb := range ws.off {
		x, y, w, h := unitRect(in, p, m, sb)
		ws.off[sb] = dsp.PlaneSSE(sp, ip, x, y, w, h)
		disabled += 256 * ws.off[sb]
	}

	on := make([]uint64, n)
	flags, bestFlags := make([]bool, n), make([]bool, n)
	best := Wiener{Enabled: true}
	bestScore := ^uint64(0)
	try := func(h, v dsp.WienerTaps) bool {
		if sc := ws.score(h, v, on, flags); sc < bestScore {
			bestScore, best.H, best.V = sc, h, v
			copy(bestFlags, flags)
			return true
		}
		return false
	}
	for _, t := range wienerBank {
		try(t, t)
	}
	for it := 0; it < iters; it++ {
		for _, step := range []int32{4, 2, 1} {
			for k := 0; k < 3; k++ {
				for _, d := range []int32{step, -step} {
					h := best.H
					h[k] += d
					if h.Clamp() == h {
						try(h, best.V)
					}
					v := best.V
					v[k] += d
					if v.Clamp() == v {
						try(best.H, v)
					}
				}
			}
		}
	}
	if bestScore >= disabled {
		clear(m.LR[p])
		return Wiener{}
	}
	copy(m.LR[p], bestFlags)
	return best
}
