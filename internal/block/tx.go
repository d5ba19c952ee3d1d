package block

// TxSize is a transform block size with sides between 4 and 32.
type TxSize uint8

const (
	Tx4x4 TxSize = iota
	Tx8x8
	Tx16x16
	Tx32x32
	Tx4x8
	Tx8x4
	Tx8x16
	Tx16x8
	Tx16x32
	Tx32x16
	Tx4x16
	Tx16x4
	Tx8x32
	Tx32x8

	NumTxSizes
)

// MaxTxSide is the largest transform side.
const MaxTxSide = 32

var txLog2 = [NumTxSizes][2]uint8{
	Tx4x4: {2, 2}, Tx8x8: {3, 3}, Tx16x16: {4, 4}, Tx32x32: {5, 5},
	Tx4x8: {2, 3}, Tx8x4: {3, 2}, Tx8x16: {3, 4}, Tx16x8: {4, 3},
	Tx16x32: {4, 5}, Tx32x16: {5, 4}, Tx4x16: {2, 4}, Tx16x4: {4, 2},
	Tx8x32: {3, 5}, Tx32x8: {5, 3},
}

// Width returns the transform width.
func (t TxSize) Width() int { return 1 << txLog2[t][0] }

// Height returns the transform height.
func (t TxSize) Height() int { return 1 << txLog2[t][1] }

// Log2W returns log2 of the width.
func (t TxSize) Log2W() int { return int(txLog2[t][0]) }

// Log2H returns log2 of the height.
func (t TxSize) Log2H() int { return int(txLog2[t][1]) }

// Area returns the number of coefficients.
func (t TxSize) Area() int { return t.Width() * t.Height() }

// Category buckets transform sizes by their mean side for coefficient
// contexts: 0 (4), 1 (8), 2 (16), 3 (32).
func (t TxSize) Category() int {
	return (t.Log2W()+t.Log2H()+1)/2 - 2
}

// TxSizeFor returns the transform size with sides w and h, clamped to
// MaxTxSide.
func TxSizeFor(w, h int) TxSize {
	if w > MaxTxSide {
		w = MaxTxSide
	}
	if h > MaxTxSide {
		h = MaxTxSide
	}
	for t := TxSize(0); t < NumTxSizes; t++ {
		if t.Width() == w && t.Height() == h {
			return t
		}
	}
	// 8:1 and wider shapes do not occur for legal block sizes; fall back
	// to the square of the short side.
	s := w
	if h < s {
		s = h
	}
	return TxSizeFor(s, s)
}

// Split returns the transform size one depth below t: squares halve both
// sides, rectangles halve their long side. 4x4 does not split.
func (t TxSize) Split() TxSize {
	w, h := t.Width(), t.Height()
	switch {
	case w == 4 && h == 4:
		return t
	case w == h:
		return TxSizeFor(w/2, h/2)
	case w > h:
		return TxSizeFor(w/2, h)
	}
	return TxSizeFor(w, h/2)
}

// MaxTxSize returns the largest transform for a block of w x h samples.
func MaxTxSize(w, h int) TxSize {
	return TxSizeFor(w, h)
}

// TxType is a 2-D transform type: the 1-D kernel applied vertically
// (columns) and horizontally (rows).
type TxType uint8

const (
	DctDct TxType = iota
	AdstDct
	DctAdst
	AdstAdst
	FlipadstDct
	DctFlipadst
	Idtx
	VDct
	HDct

	NumTxTypes
)

// Kernel is a 1-D transform kernel.
type Kernel uint8

const (
	KernelDCT Kernel = iota
	KernelADST
	KernelFlipADST
	KernelIdentity
)

var txKernels = [NumTxTypes][2]Kernel{
	DctDct:      {KernelDCT, KernelDCT},
	AdstDct:     {KernelADST, KernelDCT},
	DctAdst:     {KernelDCT, KernelADST},
	AdstAdst:    {KernelADST, KernelADST},
	FlipadstDct: {KernelFlipADST, KernelDCT},
	DctFlipadst: {KernelDCT, KernelFlipADST},
	Idtx:        {KernelIdentity, KernelIdentity},
	VDct:        {KernelDCT, KernelIdentity},
	HDct:        {KernelIdentity, KernelDCT},
}

// Kernels returns the vertical and horizontal kernels of t.
func (t TxType) Kernels() (vert, horz Kernel) {
	k := txKernels[t]
	return k[0], k[1]
}

// TxTypeSignaled reports whether a luma transform of size t codes its type.
// Transforms with a side of 32 always use DCT_DCT.
func TxTypeSignaled(t TxSize) bool {
	return t.Width() <= 16 && t.Height() <= 16
}

// TxSetCategory maps a signalled transform size to its type-context
// bucket (0..2).
func TxSetCategory(t TxSize) int {
	c := t.Category()
	if c > 2 {
		c = 2
	}
	return c
}
