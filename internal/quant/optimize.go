package quant

// RateModel estimates coefficient coding costs in 1/256 bit.
type RateModel interface {
	// LevelCost is the cost of coding magnitude level (sign included) at
	// scan index i, given that it is not the last coefficient.
	LevelCost(i int, level int32) int
	// EobCost is the cost of signalling end of block eob (>= 1).
	EobCost(eob int) int
}

// Optimize revisits the levels produced by Quantize, lowering magnitudes
// by one and moving the end of block earlier wherever that reduces
// rate*lambda + 256*SSE. coef holds the unquantized coefficients; the new
// end of block is returned (0 means every level was dropped).
func (p *Params) Optimize(coef, levels []int32, scan []uint16, eob int, lambda int, rm RateModel) int {
	if eob == 0 {
		return 0
	}
	// Coefficients carry 3 extra bits over an orthonormal transform, so
	// 256*SSE in samples equals 4*err^2 in coefficients.
	dist := func(c int64, l int32, step int32) int64 {
		e := c - int64(l)*int64(step)
		return 4 * e * e
	}
	lam := int64(lambda)

	var keep [1024]int64 // score of coding index i with its final level
	var drop [1024]int64 // score of index i being zero past the end of block
	for i := eob - 1; i >= 0; i-- {
		pos := scan[i]
		c := int64(coef[pos])
		sign := int32(1)
		if c < 0 {
			c, sign = -c, -1
		}
		step := p.Step(int(pos))
		l := levels[pos] * sign
		drop[i] = dist(c, 0, step)
		if l == 0 {
			keep[i] = drop[i] + lam*int64(rm.LevelCost(i, 0))
			continue
		}
		best := dist(c, l, step) + lam*int64(rm.LevelCost(i, l))
		if alt := dist(c, l-1, step) + lam*int64(rm.LevelCost(i, l-1)); alt < best {
			best = alt
			l--
		}
		levels[pos] = l * sign
		keep[i] = best
	}

	// Choose the end of block: every index below it coded with its kept
	// level, every index at or above it zero.
	var prefix, tail int64
	for i := 0; i < eob; i++ {
		tail += drop[i]
	}
	bestEob, bestScore := 0, tail
	for e := 1; e <= eob; e++ {
		prefix += keep[e-1]
		tail -= drop[e-1]
		if levels[scan[e-1]] == 0 {
			continue
		}
		if s := prefix + tail + lam*int64(rm.EobCost(e)); s < bestScore {
			bestEob, bestScore = e, s
		}
	}
	for _, pos := range scan[bestEob:eob] {
		levels[pos] = 0
	}
	return bestEob
}
