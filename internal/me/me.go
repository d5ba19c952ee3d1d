// Package me searches reference frames for motion vectors. The search is
// coarse to fine: predictor candidates, a shrinking diamond at integer
// positions, an optional exhaustive window at the slowest settings, then
// sub-sample refinement on interpolated samples.
package me

import (
	"math/bits"

	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/syntax"
)

// Params controls how exhaustive a search is. They never change which
// vectors are legal, only which local optimum is reached.
type Params struct {
	Range      int // integer search radius around the best start, in samples
	Diamond    int // largest diamond step
	Exhaustive int // radius of a full integer search around the best start; 0 disables
	Subpel     int // refinement passes: 1 half, 2 quarter, 3 eighth
	JointIters int // alternating refinement rounds for compound pairs
}

// ParamsForSpeed returns the search parameters of speed 0 (slowest) to 10.
func ParamsForSpeed(speed int) Params {
	switch {
	case speed <= 1:
		return Params{Range: 64, Diamond: 16, Exhaustive: 4, Subpel: 3, JointIters: 3}
	case speed <= 4:
		return Params{Range: 48, Diamond: 16, Subpel: 3, JointIters: 2}
	case speed <= 7:
		return Params{Range: 32, Diamond: 8, Subpel: 2, JointIters: 1}
	}
	return Params{Range: 16, Diamond: 4, Subpel: 1}
}

// Request describes one block to search.
type Request struct {
	Src       []uint16 // top-left sample of the source block
	SrcStride int
	X, Y      int // block position in luma samples
	Size      block.Size
	Ref       *frame.Plane
	Pred      block.MotionVector   // the vector the difference will be coded against
	Starts    []block.MotionVector // additional starting candidates
}

// Result is a searched vector and its cost, in 1/256 of a SATD unit plus
// weighted vector rate.
type Result struct {
	Mv   block.MotionVector
	Cost uint64
}

// Searcher runs motion searches with fixed parameters. A Searcher holds
// scratch buffers and must not be shared between goroutines.
type Searcher struct {
	p       Params
	weight  int // cost of one bit in SAD units, times 256
	allowHP bool
	bd      int

	prep  [block.SuperblockSize * block.SuperblockSize]int32
	pix   [block.SuperblockSize * block.SuperblockSize]uint16
	tgt   [block.SuperblockSize * block.SuperblockSize]uint16
	other [block.SuperblockSize * block.SuperblockSize]int32
}

// NewSearcher returns a Searcher for frames coded with RD multiplier
// lambda.
func NewSearcher(p Params, lambda, bitDepth int, allowHP bool) *Searcher {
	return &Searcher{p: p, weight: Weight(lambda), allowHP: allowHP, bd: bitDepth}
}

// Weight converts an RD multiplier into the cost of one bit (1/256 bit
// rates) against SAD or SATD distortion scaled by 256.
func Weight(lambda int) int {
	return isqrt(lambda << 16)
}

// SetLambda changes the RD multiplier vector rates are weighted with.
func (s *Searcher) SetLambda(lambda int) {
	s.weight = Weight(lambda)
}

func isqrt(v int) int {
	if v <= 0 {
		return 0
	}
	x := 1 << ((bits.Len(uint(v)) + 1) / 2)
	for {
		y := (x + v/x) / 2
		if y >= x {
			return x
		}
		x = y
	}
}

// MvRate estimates the cost of coding mv against pred, in 1/256 bit.
func MvRate(mv, pred block.MotionVector, allowHP bool) int {
	comp := func(d int32) int {
		if d == 0 {
			return 0
		}
		if d < 0 {
			d = -d
		}
		n := 3 + 2*bits.Len32(uint32(d-1)>>3) + 2
		if allowHP {
			n++
		}
		return n
	}
	d := mv.Sub(pred)
	return (1 + comp(d.Row) + comp(d.Col)) << 8
}

func (s *Searcher) rateCost(mv, pred block.MotionVector) uint64 {
	return uint64(MvRate(mv, pred, s.allowHP)*s.weight) >> 8
}

func (s *Searcher) legal(r *Request, mv block.MotionVector) bool {
	return syntax.MvLegal(r.X, r.Y, r.Size, mv, r.Ref.Width, r.Ref.Height, r.Ref.Border)
}

// integerCost is SAD at an integer vector, given in samples.
func (s *Searcher) integerCost(r *Request, dx, dy int) uint64 {
	w, h := r.Size.Width(), r.Size.Height()
	off := r.Ref.Offset(r.X+dx, r.Y+dy)
	sad := dsp.SAD(r.Src, r.SrcStride, r.Ref.Data[off:], r.Ref.Stride, w, h)
	mv := block.MotionVector{Row: int32(dy * 8), Col: int32(dx * 8)}
	return uint64(sad)<<8 + s.rateCost(mv, r.Pred)
}

// subpelCost is SATD of the interpolated prediction at mv.
func (s *Searcher) subpelCost(r *Request, mv block.MotionVector) uint64 {
	w, h := r.Size.Width(), r.Size.Height()
	dsp.InterPrep(s.prep[:w*h], w, h, r.Ref, r.X<<4+int(mv.Col)*2, r.Y<<4+int(mv.Row)*2)
	dsp.PrepToPixels(s.pix[:w*h], w, s.prep[:w*h], w, h, s.bd)
	satd := dsp.SATD(r.Src, r.SrcStride, s.pix[:w*h], w, w, h)
	return uint64(satd)<<8 + s.rateCost(mv, r.Pred)
}

type point struct{ x, y int }

var diamond = [4]point{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
var square = [8]point{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}

// Search returns the best vector for r. The zero vector is always legal
// for a block inside the frame, so a result is always found.
func (s *Searcher) Search(r *Request) Result {
	// Starting points: zero, the coded predictor and the candidates, all
	// rounded to integer positions.
	best := point{}
	bestCost := s.integerCost(r, 0, 0)
	try := func(mv block.MotionVector) {
		p := point{int((mv.Col + 4) >> 3), int((mv.Row + 4) >> 3)}
		if p == best || !s.legal(r, block.MotionVector{Row: int32(p.y * 8), Col: int32(p.x * 8)}) {
			return
		}
		if c := s.integerCost(r, p.x, p.y); c < bestCost {
			best, bestCost = p, c
		}
	}
	try(r.Pred)
	for _, mv := range r.Starts {
		try(mv)
	}
	center := best

	inRange := func(p point) bool {
		dx, dy := p.x-center.x, p.y-center.y
		return dx >= -s.p.Range && dx <= s.p.Range && dy >= -s.p.Range && dy <= s.p.Range &&
			s.legal(r, block.MotionVector{Row: int32(p.y * 8), Col: int32(p.x * 8)})
	}

	// Shrinking diamond. Each step size repeats until no neighbour
	// improves, bounded by the search range.
	for step := s.p.Diamond; step >= 1; step >>= 1 {
		for iter := 0; iter < 2*s.p.Range/step+1; iter++ {
			moved := false
			for _, d := range diamond {
				p := point{best.x + d.x*step, best.y + d.y*step}
				if !inRange(p) {
					continue
				}
				if c := s.integerCost(r, p.x, p.y); c < bestCost {
					best, bestCost, moved = p, c, true
				}
			}
			if !moved {
				break
			}
		}
	}
	for _, d := range square {
		p := point{best.x + d.x, best.y + d.y}
		if inRange(p) {
			if c := s.integerCost(r, p.x, p.y); c < bestCost {
				best, bestCost = p, c
			}
		}
	}
	if e := s.p.Exhaustive; e > 0 {
		c0 := center
		for dy := -e; dy <= e; dy++ {
			for dx := -e; dx <= e; dx++ {
				p := point{c0.x + dx, c0.y + dy}
				if inRange(p) {
					if c := s.integerCost(r, p.x, p.y); c < bestCost {
						best, bestCost = p, c
					}
				}
			}
		}
	}

	mv := block.MotionVector{Row: int32(best.y * 8), Col: int32(best.x * 8)}
	return s.refine(r, mv)
}

// refine runs the sub-sample passes around mv: steps of 4, 2 and 1
// eighth-sample units, the last only with high precision vectors.
func (s *Searcher) refine(r *Request, mv block.MotionVector) Result {
	bestCost := s.subpelCost(r, mv)
	for pass := 0; pass < s.p.Subpel; pass++ {
		step := int32(4 >> pass)
		if step == 1 && !s.allowHP {
			break
		}
		c0 := mv
		for _, d := range square {
			cand := block.MotionVector{Row: c0.Row + int32(d.y)*step, Col: c0.Col + int32(d.x)*step}
			if !s.legal(r, cand) {
				continue
			}
			if c := s.subpelCost(r, cand); c < bestCost {
				mv, bestCost = cand, c
			}
		}
	}
	return Result{Mv: mv, Cost: bestCost}
}

// CompoundRequest describes a block predicted from two references.
type CompoundRequest struct {
	Src       []uint16
	SrcStride int
	X, Y      int
	Size      block.Size
	Refs      [2]*frame.Plane
	Preds     [2]block.MotionVector
	Weight0   int // weight of the first prediction out of 16
}

// RefineCompound improves a pair of vectors jointly: each round holds one
// vector fixed and searches the other against the residual target that
// the fixed prediction leaves.
func (s *Searcher) RefineCompound(r *CompoundRequest, mvs [2]block.MotionVector) [2]block.MotionVector {
	w, h := r.Size.Width(), r.Size.Height()
	n := w * h
	maxV := int32(1)<<uint(s.bd) - 1
	for iter := 0; iter < s.p.JointIters; iter++ {
		for k := 0; k < 2; k++ {
			o := 1 - k
			other := s.other[:n]
			dsp.InterPrep(other, w, h, r.Refs[o], r.X<<4+int(mvs[o].Col)*2, r.Y<<4+int(mvs[o].Row)*2)
			// With p = (wk*pk + wo*po)/16, the ideal pk is
			// (16*src - wo*po)/wk.
			wk := int32(r.Weight0)
			if k == 1 {
				wk = 16 - wk
			}
			wo := 16 - wk
			const round = 1 << (dsp.PrepBits - 1)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					po := (other[y*w+x] + round) >> dsp.PrepBits
					v := (16*int32(r.Src[y*r.SrcStride+x]) - wo*po + wk/2) / wk
					s.tgt[y*w+x] = uint16(min(max(v, 0), maxV))
				}
			}
			mv := mvs[k]
			req := &Request{
				Src: s.tgt[:n], SrcStride: w,
				X: r.X, Y: r.Y, Size: r.Size,
				Ref: r.Refs[k], Pred: r.Preds[k],
				Starts: []block.MotionVector{mv},
			}
			saved := s.p
			s.p.Range, s.p.Diamond, s.p.Exhaustive = 4, 2, 0
			res := s.Search(req)
			s.p = saved
			if cur := s.subpelCost(req, mv); res.Cost < cur {
				mvs[k] = res.Mv
			}
		}
	}
	return mvs
}
