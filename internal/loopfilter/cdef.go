package loopfilter

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/frame"
)

const (
	cdefBlock  = 8 // luma side of a CDEF block
	cdefStride = cdefBlock + 2*dsp.CDEFPad
)

// cdefUnit is the state of one 8x8 luma CDEF block: its padded input per
// plane and the direction found on luma.
type cdefUnit struct {
	buf      [3][cdefStride * cdefStride]int32
	dir      int
	variance int32
}

// skipped reports whether every unit of the 8x8 luma block at (x, y) is
// a skip block.
func skipped(g *block.Grid, x, y int) bool {
	c, r := x>>2, y>>2
	for j := r; j < min(r+2, g.Rows); j++ {
		for i := c; i < min(c+2, g.Cols); i++ {
			if !g.At(i, j).Skip {
				return false
			}
		}
	}
	return true
}

// load fills u with the samples of src around the 8x8 luma block at (x,
// y) and finds its direction.
func (u *cdefUnit) load(src *frame.Frame, x, y int) {
	for p := 0; p < src.NumPlanes; p++ {
		sx, sy := src.PlaneShift(p)
		pl := &src.Planes[p]
		px, py := x>>sx, y>>sy
		w, h := cdefBlock>>sx, cdefBlock>>sy
		stride := w + 2*dsp.CDEFPad
		for r := -dsp.CDEFPad; r < h+dsp.CDEFPad; r++ {
			row := u.buf[p][(r+dsp.CDEFPad)*stride:]
			yy := py + r
			for c := -dsp.CDEFPad; c < w+dsp.CDEFPad; c++ {
				xx := px + c
				v := dsp.CDEFUnavailable
				if xx >= 0 && xx < pl.Width && yy >= 0 && yy < pl.Height {
					v = int32(pl.At(xx, yy))
				}
				row[c+dsp.CDEFPad] = v
			}
		}
	}
	l := &src.Planes[0]
	u.dir, u.variance = dsp.CDEFDirection(l.Data[l.Offset(x, y):], l.Stride, src.BitDepth)
}

// filter writes plane p of the block filtered with strength s into dst.
func (u *cdefUnit) filter(dst []uint16, dstStride int, f *frame.Frame, p int, s Strength, damping int) {
	sx, sy := f.PlaneShift(p)
	w, h := cdefBlock>>sx, cdefBlock>>sy
	stride := w + 2*dsp.CDEFPad
	base := dsp.CDEFPad*stride + dsp.CDEFPad
	shift := uint(f.BitDepth - 8)
	pri := s.Pri
	if p == 0 {
		pri = dsp.CDEFAdjustStrength(pri, u.variance)
	} else {
		damping--
	}
	if pri == 0 && s.Sec == 0 {
		src := u.buf[p][:]
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				dst[r*dstStride+c] = uint16(src[base+r*stride+c])
			}
		}
		return
	}
	dir := u.dir
	if pri == 0 {
		dir = 0
	}
	dsp.CDEFFilterBlock(dst, dstStride, u.buf[p][:], base, stride, w, h,
		pri<<shift, s.Sec<<shift, dir, damping+int(shift), f.BitDepth)
}

// ApplyCDEF filters f in place with the preset each superblock of m
// selects. Every block reads the unfiltered frame.
func ApplyCDEF(f *frame.Frame, g *block.Grid, c *CDEF, m *Map) {
	if !c.Enabled() {
		return
	}
	src := f.Clone()
	var u cdefUnit
	for y := 0; y < f.Planes[0].Height; y += cdefBlock {
		for x := 0; x < f.Planes[0].Width; x += cdefBlock {
			sb := (y/block.SuperblockSize)*m.Cols + x/block.SuperblockSize
			idx := m.CDEF[sb]
			ys, uvs := c.Y[idx], c.UV[idx]
			if ys == (Strength{}) && uvs == (Strength{}) || skipped(g, x, y) {
				continue
			}
			u.load(src, x, y)
			for p := 0; p < f.NumPlanes; p++ {
				s := uvs
				if p == 0 {
					s = ys
				}
				sx, sy := f.PlaneShift(p)
				pl := &f.Planes[p]
				u.filter(pl.Data[pl.Offset(x>>sx, y>>sy):], pl.Stride, f, p, s, c.Damping)
			}
		}
	}
}

// cdefCosts holds, per superblock and candidate strength, the luma and
// chroma SSE of the filtered frame.
type cdefCosts struct {
	y, uv [][]uint64
}

func measureCDEF(src, recon *frame.Frame, g *block.Grid, m *Map, strengths []Strength, damping int) cdefCosts {
	n := m.Cols * m.Rows
	cc := cdefCosts{y: make([][]uint64, n), uv: make([][]uint64, n)}
	for i := range cc.y {
		cc.y[i] = make([]uint64, len(strengths))
		cc.uv[i] = make([]uint64, len(strengths))
	}
	var u cdefUnit
	var out [cdefBlock * cdefBlock]uint16
	for y := 0; y < recon.Planes[0].Height; y += cdefBlock {
		for x := 0; x < recon.Planes[0].Width; x += cdefBlock {
			sb := (y/block.SuperblockSize)*m.Cols + x/block.SuperblockSize
			u.load(recon, x, y)
			skip := skipped(g, x, y)
			for p := 0; p < recon.NumPlanes; p++ {
				sx, sy := recon.PlaneShift(p)
				w, h := cdefBlock>>sx, cdefBlock>>sy
				sp := &src.Planes[p]
				rp := &recon.Planes[p]
				so := sp.Offset(x>>sx, y>>sy)
				base := dsp.SSE(sp.Data[so:], sp.Stride, rp.Data[rp.Offset(x>>sx, y>>sy):], rp.Stride, w, h)
				acc := cc.uv[sb]
				if p == 0 {
					acc = cc.y[sb]
				}
				for i, s := range strengths {
					if skip || s == (Strength{}) {
						acc[i] += base
						continue
					}
					u.filter(out[:], w, recon, p, s, damping)
					acc[i] += dsp.SSE(sp.Data[so:], sp.Stride, out[:], w, w, h)
				}
			}
		}
	}
	return cc
}

type preset struct{ y, uv int }

// choosePresets greedily picks up to 1<<bits (luma, chroma) strength
// pairs and returns them with the per-superblock choice and the total SSE.
func (cc *cdefCosts) choosePresets(bits, nStrengths int) ([]preset, []int, uint64) {
	var set []preset
	n := len(cc.y)
	choice := make([]int, n)
	for len(set) < 1<<bits {
		best, bestDist := preset{}, ^uint64(0)
		for yi := 0; yi < nStrengths; yi++ {
			for ui := 0; ui < nStrengths; ui++ {
				cand := preset{yi, ui}
				var d uint64
				for sb := 0; sb < n; sb++ {
					v := cc.y[sb][yi] + cc.uv[sb][ui]
					for _, q := range set {
						v = min(v, cc.y[sb][q.y]+cc.uv[sb][q.uv])
					}
					d += v
				}
				if d < bestDist {
					best, bestDist = cand, d
				}
			}
		}
		set = append(set, best)
	}
	var total uint64
	for sb := 0; sb < n; sb++ {
		bi, bd := 0, ^uint64(0)
		for i, q := range set {
			if v := cc.y[sb][q.y] + cc.uv[sb][q.uv]; v < bd {
				bi, bd = i, v
			}
		}
		choice[sb] = bi
		total += bd
	}
	return set, choice, total
}

// presetBits is the frame header cost of one preset: two 4-bit primary
// and two 2-bit secondary strengths.
const presetBits = 12

// searchCDEF picks the CDEF parameters and superblock presets of recon.
func searchCDEF(src, recon *frame.Frame, g *block.Grid, m *Map, s *Search, q, lambda int) CDEF {
	c := CDEF{Damping: DampingFromQ(q)}
	if len(s.Strengths) == 0 {
		return c
	}
	cc := measureCDEF(src, recon, g, m, s.Strengths, c.Damping)
	n := m.Cols * m.Rows
	bestScore := ^uint64(0)
	var bestSet []preset
	var bestChoice []int
	for bits := 0; bits <= MaxCDEFBits; bits++ {
		if 1<<bits > len(s.Strengths)*len(s.Strengths) {
			break
		}
		set, choice, dist := cc.choosePresets(bits, len(s.Strengths))
		rate := (bits*n + presetBits<<bits) * 256
		if sc := uint64(rate)*uint64(lambda) + 256*dist; sc < bestScore {
			bestScore, bestSet, bestChoice = sc, set, choice
			c.Bits = bits
		}
	}
	for i, p := range bestSet {
		c.Y[i], c.UV[i] = s.Strengths[p.y], s.Strengths[p.uv]
	}
	copy(m.CDEF, bestChoice)
	return c
}
