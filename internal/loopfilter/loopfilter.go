package loopfilter

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/quant"
	"github.com/deepteams/av1/internal/syntax"
)

// Apply runs every filter of p on the reconstruction f and extends its
// borders, leaving it ready to serve as a reference.
func Apply(f *frame.Frame, g *block.Grid, p *Params, m *Map) {
	ApplyDeblock(f, g, &p.Deblock)
	ApplyCDEF(f, g, &p.CDEF, m)
	ApplyWiener(f, &p.LR, m)
	f.ExtendBorders()
}

// Select chooses the parameters of every filter for recon against src.
// Each stage is applied to recon as soon as it is chosen, so on return
// recon holds the same frame Apply would produce.
func Select(src, recon *frame.Frame, g *block.Grid, q int, intra bool, s *Search) (Params, *Map) {
	var p Params
	m := NewMap(recon.CodedWidth, recon.CodedHeight)
	lambda := quant.Lambda(q, recon.BitDepth)

	if s.Deblock {
		p.Deblock = searchDeblock(src, recon, g, q, intra, s.DeblockRadius)
		ApplyDeblock(recon, g, &p.Deblock)
	}

	if s.CDEF {
		p.CDEF = searchCDEF(src, recon, g, m, s, q, lambda)
		ApplyCDEF(recon, g, &p.CDEF, m)
	}

	if s.Wiener {
		in := recon.Clone()
		in.ExtendBorders()
		for pl := 0; pl < recon.NumPlanes; pl++ {
			p.LR[pl] = searchWiener(src, in, pl, m, s.WienerIters, lambda)
		}
		ApplyWiener(recon, &p.LR, m)
	}
	recon.ExtendBorders()
	return p, m
}

// searchDeblock tries levels around the quantizer-based guess and keeps
// the one with the least distortion.
func searchDeblock(src, recon *frame.Frame, g *block.Grid, q int, intra bool, radius int) Deblock {
	guess := LevelFromQ(q, recon.BitDepth, intra)
	d := Deblock{Level: [4]int{guess, guess, guess, guess}}
	if radius == 0 {
		return d
	}
	scratch := recon.Clone()
	best := ^uint64(0)
	for lvl := max(guess-radius, 0); lvl <= min(guess+radius, MaxLevel); lvl++ {
		scratch.CopyFrom(recon)
		cand := Deblock{Level: [4]int{lvl, lvl, lvl, lvl}}
		ApplyDeblock(scratch, g, &cand)
		if e := frameSSE(src, scratch); e < best {
			best, d = e, cand
		}
	}
	return d
}

func frameSSE(a, b *frame.Frame) uint64 {
	var sum uint64
	for p := 0; p < a.NumPlanes; p++ {
		pl := &a.Planes[p]
		sum += dsp.PlaneSSE(pl, &b.Planes[p], 0, 0, pl.Width, pl.Height)
	}
	return sum
}

// FrameInfo sets the superblock signalling of p on fi.
func (p *Params) FrameInfo(fi *syntax.FrameInfo) {
	fi.CDEFBits = 0
	if p.CDEF.Enabled() {
		fi.CDEFBits = p.CDEF.Bits
	}
	for i := range fi.LR {
		fi.LR[i] = p.LR[i].Enabled
	}
}

// Superblock copies the choices of superblock sb of the frame into info.
func (m *Map) Superblock(sb int, info *syntax.SuperblockInfo) {
	info.CDEF = m.CDEF[sb]
	for p := range info.LR {
		info.LR[p] = m.LR[p][sb]
	}
}

// SetSuperblock records the parsed choices of superblock sb.
func (m *Map) SetSuperblock(sb int, info *syntax.SuperblockInfo) {
	m.CDEF[sb] = info.CDEF
	for p := range info.LR {
		m.LR[p][sb] = info.LR[p]
	}
}
