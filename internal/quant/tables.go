// Package quant maps quantizer indices to step sizes and turns transform
// coefficients into levels and back.
package quant

// NumQIndex is the number of quantizer indices.
const NumQIndex = 256

// Step tables for 8-bit content. Each starts with a unit slope (so the
// low indices are near lossless) and switches to geometric growth once
// that overtakes it. Growth is computed in Q16 fixed point so the tables
// are identical on every platform.
var (
	dcTable [NumQIndex]int32
	acTable [NumQIndex]int32
)

const (
	acRatioQ16 = 67129 // 1.0243^q reaches 1828 at q=255
	dcRatioQ16 = 67047 // 1.0230^q reaches 1336 at q=255
)

func init() {
	fill := func(t *[NumQIndex]int32, ratio uint64) {
		e := uint64(4) << 16
		for q := range t {
			v := int32((e + 1<<15) >> 16)
			t[q] = max(v, int32(4+q))
			e = (e*ratio + 1<<15) >> 16
		}
	}
	fill(&dcTable, dcRatioQ16)
	fill(&acTable, acRatioQ16)
}

func clampQ(q int) int {
	return min(max(q, 0), NumQIndex-1)
}

// DCStep returns the DC quantizer step of index q at bit depth bd.
func DCStep(q, bd int) int32 {
	return dcTable[clampQ(q)] << uint(bd-8)
}

// ACStep returns the AC quantizer step of index q at bit depth bd.
func ACStep(q, bd int) int32 {
	return acTable[clampQ(q)] << uint(bd-8)
}

// Lambda returns the rate multiplier for quantizer index q: a score is
// rate*Lambda + 256*SSE with rates in 1/256 bit.
func Lambda(q, bd int) int {
	ac := int(ACStep(q, bd))
	dc := int(DCStep(q, bd))
	avg := (dc + 15*ac + 8) >> 4
	return max((3*avg*avg)>>9, 1)
}

// Score combines a rate (1/256 bit) and a distortion (SSE).
func Score(dist uint64, rate int, lambda int) uint64 {
	return uint64(rate)*uint64(lambda) + 256*dist
}
