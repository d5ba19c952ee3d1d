package quant

import "github.com/deepteams/av1/internal/dsp"

// Rounding offsets in 1/128 of a step. Smaller offsets widen the dead zone.
const (
	roundIntra = 48
	roundInter = 36
	roundDC    = 56
)

// Params holds the quantizer of one plane at one index.
type Params struct {
	QIndex int
	DC, AC int32
	dcRnd  int32
	acRnd  int32
	limit  int32
}

// New returns the quantizer for index q at bit depth bd.
func New(q, bd int, inter bool) Params {
	p := Params{QIndex: clampQ(q), DC: DCStep(q, bd), AC: ACStep(q, bd), limit: dsp.CoeffLimit(bd)}
	r := int32(roundIntra)
	if inter {
		r = roundInter
	}
	p.dcRnd = (p.DC*roundDC + 64) >> 7
	p.acRnd = (p.AC*r + 64) >> 7
	return p
}

// Step returns the step applied to raster position pos.
func (p *Params) Step(pos int) int32 {
	if pos == 0 {
		return p.DC
	}
	return p.AC
}

// MaxLevel returns the largest level at pos whose dequantized value stays
// within the coefficient range.
func (p *Params) MaxLevel(pos int) int32 {
	return p.limit / p.Step(pos)
}

// Quantize converts coef (raster order) into levels with dead-zone
// rounding and returns the end of block: one past the last non-zero
// position in scan order.
func (p *Params) Quantize(coef, levels []int32, scan []uint16) int {
	eob := 0
	for i, pos := range scan {
		c := coef[pos]
		a := c
		if a < 0 {
			a = -a
		}
		step, rnd := p.AC, p.acRnd
		if pos == 0 {
			step, rnd = p.DC, p.dcRnd
		}
		l := (a + rnd) / step
		if m := p.limit / step; l > m {
			l = m
		}
		if c < 0 {
			l = -l
		}
		levels[pos] = l
		if l != 0 {
			eob = i + 1
		}
	}
	return eob
}

// Dequantize converts levels back into coefficients. It reports false when
// a value leaves the coefficient range, which a conforming stream never
// does.
func (p *Params) Dequantize(levels, coef []int32, scan []uint16, eob int) bool {
	clear(coef[:len(scan)])
	for _, pos := range scan[:eob] {
		l := levels[pos]
		if l == 0 {
			continue
		}
		v := int64(l) * int64(p.Step(int(pos)))
		if v > int64(p.limit) || v < -int64(p.limit) {
			return false
		}
		coef[pos] = int32(v)
	}
	return true
}
