package encoder

import (
	"math"

	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/quant"
)

// maxAQDelta bounds the adaptive offset from the frame quantizer.
const maxAQDelta = 24

// aqStrength is the quantizer offset per doubling of superblock activity.
const aqStrength = 4

// adaptiveQ assigns every superblock of src a quantizer around base:
// superblocks busier than the frame average are quantized harder, flat
// ones more finely, since flat areas show artifacts first. The result is
// in raster order.
func adaptiveQ(src *frame.Frame, base int) []int {
	const sb = block.SuperblockSize
	pl := &src.Planes[0]
	cols := (src.CodedWidth + sb - 1) / sb
	rows := (src.CodedHeight + sb - 1) / sb
	act := make([]float64, cols*rows)
	var mean float64
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x, y := c*sb, r*sb
			w := min(sb, src.CodedWidth-x)
			h := min(sb, src.CodedHeight-y)
			v := dsp.Variance(pl.Data[pl.Offset(x, y):], pl.Stride, w, h)
			// Per-sample variance at 8-bit scale; +1 keeps flat blocks finite.
			norm := float64(v)/float64(w*h)/float64(int(1)<<uint(2*(src.BitDepth-8))) + 1
			a := math.Log2(norm)
			act[r*cols+c] = a
			mean += a
		}
	}
	mean /= float64(len(act))

	qs := make([]int, len(act))
	for i, a := range act {
		d := int(math.Round(aqStrength * (a - mean)))
		d = min(max(d, -maxAQDelta), maxAQDelta)
		qs[i] = min(max(base+d, 1), quant.NumQIndex-1)
	}
	return qs
}
