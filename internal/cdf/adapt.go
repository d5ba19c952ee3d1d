package cdf

import "math"

// speedByCount adds to the adaptation shift for larger alphabets.
var speedByCount = [17]int{0, 0, 1, 1, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}

// Update moves the inverted CDF f of an n-symbol alphabet toward the
// observed symbol s. The shift starts at 4 for alphabets of two or three
// symbols and at 5 for larger ones, and grows by one at counts 16 and 32;
// the counter in f[n] saturates at 32. Encoder and decoder call it with
// identical arguments after every adaptive symbol.
func Update(f []uint16, s, n int) {
	count := int(f[n])
	rate := 3 + speedByCount[n]
	if count > 15 {
		rate++
	}
	if count > 31 {
		rate++
	}
	tmp := 32768
	for i := 0; i < n-1; i++ {
		if i == s {
			tmp = 0
		}
		v := int(f[i])
		if tmp < v {
			v -= (v - tmp) >> uint(rate)
		} else {
			v += (tmp - v) >> uint(rate)
		}
		f[i] = uint16(v)
	}
	if count < 32 {
		f[n]++
	}
}

// CostShift is the fixed-point precision of rate estimates: costs are in
// units of 1/256 bit.
const CostShift = 8

var costTable [4097]int32

func init() {
	for i := 1; i < len(costTable); i++ {
		p := float64(i) / 4096
		costTable[i] = int32(math.Round(-math.Log2(p) * (1 << CostShift)))
	}
	costTable[0] = costTable[1]
}

// Cost returns the estimated cost of coding s with inverted CDF f.
func Cost(f []uint16, s int) int {
	hi := 32768
	if s > 0 {
		hi = int(f[s-1])
	}
	p := hi - int(f[s])
	return int(costTable[p>>3])
}

// LiteralCost returns the cost of n equiprobable bits.
func LiteralCost(n int) int {
	return n << CostShift
}
