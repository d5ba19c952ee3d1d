// Package dsp holds the sample-level kernels shared by the encoder and the
// decoder: prediction, transforms, loop filters and distortion metrics. All
// samples are uint16 regardless of bit depth.
package dsp

import (
	"math"

	"github.com/deepteams/av1/internal/frame"
)

// SSE returns the sum of squared differences of two w x h blocks.
func SSE(a []uint16, aStride int, b []uint16, bStride int, w, h int) uint64 {
	var sse uint64
	for y := 0; y < h; y++ {
		ra := a[y*aStride : y*aStride+w]
		rb := b[y*bStride : y*bStride+w]
		for x := range ra {
			d := int64(ra[x]) - int64(rb[x])
			sse += uint64(d * d)
		}
	}
	return sse
}

// SAD returns the sum of absolute differences of two w x h blocks.
func SAD(a []uint16, aStride int, b []uint16, bStride int, w, h int) uint32 {
	var sad uint32
	for y := 0; y < h; y++ {
		ra := a[y*aStride : y*aStride+w]
		rb := b[y*bStride : y*bStride+w]
		for x := range ra {
			d := int32(ra[x]) - int32(rb[x])
			if d < 0 {
				d = -d
			}
			sad += uint32(d)
		}
	}
	return sad
}

// PlaneSSE returns the SSE of the rectangle (x, y, w, h) of two planes.
func PlaneSSE(a, b *frame.Plane, x, y, w, h int) uint64 {
	return SSE(a.Data[a.Offset(x, y):], a.Stride, b.Data[b.Offset(x, y):], b.Stride, w, h)
}

// Variance returns the sum of squared deviations from the mean of a
// w x h block, scaled by the sample count.
func Variance(a []uint16, stride, w, h int) uint64 {
	var s, ss uint64
	for y := 0; y < h; y++ {
		row := a[y*stride : y*stride+w]
		for _, v := range row {
			s += uint64(v)
			ss += uint64(v) * uint64(v)
		}
	}
	n := uint64(w * h)
	return ss - s*s/n
}

// SATD returns the sum of absolute 4x4 Hadamard-transformed differences of
// two w x h blocks (w, h multiples of 4).
func SATD(a []uint16, aStride int, b []uint16, bStride int, w, h int) uint32 {
	var total uint32
	var d [16]int32
	for by := 0; by < h; by += 4 {
		for bx := 0; bx < w; bx += 4 {
			for y := 0; y < 4; y++ {
				for x := 0; x < 4; x++ {
					d[y*4+x] = int32(a[(by+y)*aStride+bx+x]) - int32(b[(by+y)*bStride+bx+x])
				}
			}
			total += hadamard4x4(&d)
		}
	}
	return total
}

func hadamard4x4(d *[16]int32) uint32 {
	var t [16]int32
	for i := 0; i < 4; i++ {
		a0 := d[i*4] + d[i*4+2]
		a1 := d[i*4+1] + d[i*4+3]
		a2 := d[i*4+1] - d[i*4+3]
		a3 := d[i*4] - d[i*4+2]
		t[i*4] = a0 + a1
		t[i*4+1] = a3 + a2
		t[i*4+2] = a3 - a2
		t[i*4+3] = a0 - a1
	}
	var sum uint32
	for i := 0; i < 4; i++ {
		a0 := t[i] + t[8+i]
		a1 := t[4+i] + t[12+i]
		a2 := t[4+i] - t[12+i]
		a3 := t[i] - t[8+i]
		for _, v := range [4]int32{a0 + a1, a3 + a2, a3 - a2, a0 - a1} {
			if v < 0 {
				v = -v
			}
			sum += uint32(v)
		}
	}
	return (sum + 1) >> 1
}

// PSNRFromSSE computes the PSNR from the sum of squared errors over count
// samples at bit depth bd.
func PSNRFromSSE(sse uint64, count int, bd int) float64 {
	if sse == 0 || count == 0 {
		return 99.0 // perfect
	}
	peak := float64(int(1)<<uint(bd) - 1)
	mse := float64(sse) / float64(count)
	return 10.0 * math.Log10(peak*peak/mse)
}

// ssimKernel is the radius of the hat-shaped SSIM window.
const ssimKernel = 3

var ssimWeight = [2*ssimKernel + 1]uint64{1, 2, 3, 4, 3, 2, 1}

// DistoStats accumulates weighted first and second moments of two signals.
type DistoStats struct {
	W             uint64
	Xm, Ym        uint64
	Xxm, Xym, Yym uint64
}

// AccumulateWeighted adds a sample pair with weight w.
func (s *DistoStats) AccumulateWeighted(x, y uint16, w uint64) {
	s.W += w
	s.Xm += w * uint64(x)
	s.Ym += w * uint64(y)
	s.Xxm += w * uint64(x) * uint64(x)
	s.Xym += w * uint64(x) * uint64(y)
	s.Yym += w * uint64(y) * uint64(y)
}

// ssimCalculation evaluates SSIM from the moments, with the stabilising
// constants scaled to bit depth bd.
func ssimCalculation(s *DistoStats, bd int) float64 {
	if s.W == 0 {
		return 0
	}
	n := float64(s.W)
	scale := float64(int(1) << uint(bd-8))
	c1 := 20 * scale * scale
	c2 := 60 * scale * scale
	dark := 8 * 8 * scale * scale

	xm := float64(s.Xm) / n
	ym := float64(s.Ym) / n
	if xm*xm+ym*ym < dark {
		return 1.0
	}
	sxx := float64(s.Xxm)/n - xm*xm
	syy := float64(s.Yym)/n - ym*ym
	sxy := float64(s.Xym)/n - xm*ym
	if sxy < 0 {
		sxy = 0
	}
	num := (2*xm*ym + c1) * (2*sxy + c2)
	den := (xm*xm + ym*ym + c1) * (sxx + syy + c2)
	if den == 0 {
		return 1.0
	}
	return num / den
}

// PlaneSSIM returns the mean SSIM of the w x h area of two planes, using a
// 7x7 hat window clipped at the edges and evaluated every other sample.
func PlaneSSIM(a, b *frame.Plane, w, h, bd int) float64 {
	var sum float64
	var count int
	for yo := 0; yo < h; yo += 2 {
		for xo := 0; xo < w; xo += 2 {
			var s DistoStats
			y0, y1 := max(yo-ssimKernel, 0), min(yo+ssimKernel, h-1)
			x0, x1 := max(xo-ssimKernel, 0), min(xo+ssimKernel, w-1)
			for y := y0; y <= y1; y++ {
				for x := x0; x <= x1; x++ {
					wt := ssimWeight[ssimKernel+x-xo] * ssimWeight[ssimKernel+y-yo]
					s.AccumulateWeighted(a.At(x, y), b.At(x, y), wt)
				}
			}
			sum += ssimCalculation(&s, bd)
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return sum / float64(count)
}
