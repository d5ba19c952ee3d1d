// Package loopfilter implements the in-loop filters applied to a fully
// reconstructed frame, in order: deblocking across transform edges, the
// constrained directional enhancement filter (CDEF) and Wiener loop
// restoration. The encoder side also chooses their parameters.
package loopfilter

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/quant"
)

// MaxLevel is the largest deblocking level.
const MaxLevel = 63

// Deblock holds the frame-level deblocking parameters.
type Deblock struct {
	// Level holds the filter levels of luma vertical edges, luma
	// horizontal edges, then the U and V planes (both directions).
	Level     [4]int
	Sharpness int
}

// Strength is one CDEF strength pair. Sec is 0, 1, 2 or 4.
type Strength struct {
	Pri, Sec int
}

// MaxCDEFBits bounds the per-superblock preset index.
const MaxCDEFBits = 3

// CDEF holds the frame-level CDEF parameters: 1<<Bits presets.
type CDEF struct {
	Damping int
	Bits    int
	Y, UV   [1 << MaxCDEFBits]Strength
}

// Enabled reports whether any preset filters.
func (c *CDEF) Enabled() bool {
	for i := 0; i < 1<<c.Bits; i++ {
		if c.Y[i] != (Strength{}) || c.UV[i] != (Strength{}) {
			return true
		}
	}
	return false
}

// Wiener holds the restoration filter of one plane.
type Wiener struct {
	Enabled bool
	H, V    dsp.WienerTaps
}

// Params is the complete loop filter description of a frame.
type Params struct {
	Deblock Deblock
	CDEF    CDEF
	LR      [3]Wiener
}

// Map holds the per-superblock choices of a frame in raster order.
type Map struct {
	Cols, Rows int
	CDEF       []int
	LR         [3][]bool
}

// NewMap returns an all-zero map for a w x h luma frame.
func NewMap(w, h int) *Map {
	const sb = block.SuperblockSize
	m := &Map{Cols: (w + sb - 1) / sb, Rows: (h + sb - 1) / sb}
	n := m.Cols * m.Rows
	m.CDEF = make([]int, n)
	for p := range m.LR {
		m.LR[p] = make([]bool, n)
	}
	return m
}

// Search controls how much effort parameter selection spends.
type Search struct {
	Deblock bool
	// DeblockRadius is how many levels either side of the quantizer-based
	// guess are tried; 0 uses the guess.
	DeblockRadius int
	CDEF          bool
	// Strengths are the CDEF candidates evaluated per superblock.
	Strengths   []Strength
	Wiener      bool
	WienerIters int // coordinate-descent rounds over the taps
}

var (
	allStrengths = []Strength{
		{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {2, 0}, {2, 1}, {2, 2},
		{3, 1}, {4, 0}, {4, 2}, {6, 1}, {8, 2}, {10, 2}, {12, 4}, {15, 4},
	}
	fewStrengths = []Strength{{0, 0}, {1, 0}, {2, 1}, {4, 2}, {8, 2}}
)

// SearchForSpeed returns the selection effort of speed 0 (slowest) to 10.
func SearchForSpeed(speed int) Search {
	switch {
	case speed <= 2:
		return Search{Deblock: true, DeblockRadius: 4, CDEF: true, Strengths: allStrengths, Wiener: true, WienerIters: 2}
	case speed <= 5:
		return Search{Deblock: true, DeblockRadius: 2, CDEF: true, Strengths: allStrengths, Wiener: true, WienerIters: 1}
	case speed <= 8:
		return Search{Deblock: true, CDEF: true, Strengths: fewStrengths, Wiener: true}
	}
	return Search{Deblock: true, CDEF: true, Strengths: fewStrengths}
}

// LevelFromQ guesses the deblocking level of a frame from its quantizer.
func LevelFromQ(q, bd int, intra bool) int {
	step := int(quant.ACStep(q, bd)) >> uint(bd-8)
	var lvl int
	if intra {
		lvl = (step*20723 + 1015158 + 1<<17) >> 18
	} else {
		lvl = (step*20723 + 4060632 + 1<<19) >> 20
	}
	return min(max(lvl, 0), MaxLevel)
}

// DampingFromQ returns the CDEF damping of a frame.
func DampingFromQ(q int) int {
	return min(3+(q>>6), 6)
}
