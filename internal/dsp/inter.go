package dsp

import "github.com/deepteams/av1/internal/frame"

// subpelFilters are the 8-tap REGULAR interpolation kernels at 1/16
// sample positions; each sums to 128.
var subpelFilters = [16][8]int32{
	{0, 0, 0, 128, 0, 0, 0, 0},
	{0, 2, -6, 126, 8, -2, 0, 0},
	{0, 2, -10, 122, 18, -4, 0, 0},
	{0, 2, -12, 116, 28, -8, 2, 0},
	{0, 2, -14, 110, 38, -10, 2, 0},
	{0, 2, -14, 102, 48, -12, 2, 0},
	{0, 2, -16, 94, 58, -12, 2, 0},
	{0, 2, -14, 84, 66, -12, 2, 0},
	{0, 2, -14, 76, 76, -14, 2, 0},
	{0, 2, -12, 66, 84, -14, 2, 0},
	{0, 2, -12, 58, 94, -16, 2, 0},
	{0, 2, -12, 48, 102, -14, 2, 0},
	{0, 2, -10, 38, 110, -14, 2, 0},
	{0, 2, -8, 28, 116, -12, 2, 0},
	{0, 0, -4, 18, 122, -10, 2, 0},
	{0, 0, -2, 8, 126, -6, 2, 0},
}

// PrepBits is the precision of an intermediate inter prediction: samples
// scaled by 1 << PrepBits.
const PrepBits = 14

// FilterTaps is the reach of the interpolation filter on either side of
// the integer position: 3 samples before, 4 after.
const FilterTaps = 4

// InterPrep computes the w x h prediction at position (x16, y16), in 1/16
// samples of ref, into dst at intermediate precision. The caller
// guarantees the filter footprint lies inside ref's border.
func InterPrep(dst []int32, w, h int, ref *frame.Plane, x16, y16 int) {
	x0, fx := x16>>4, x16&15
	y0, fy := y16>>4, y16&15
	hf := &subpelFilters[fx]
	vf := &subpelFilters[fy]

	var tmpBuf [(64 + 7) * 64]int32
	tmp := tmpBuf[:(h+7)*w]
	for r := 0; r < h+7; r++ {
		off := ref.Offset(x0-3, y0-3+r)
		src := ref.Data[off : off+w+7]
		out := tmp[r*w : (r+1)*w]
		for c := 0; c < w; c++ {
			s := src[c : c+8]
			out[c] = hf[0]*int32(s[0]) + hf[1]*int32(s[1]) + hf[2]*int32(s[2]) +
				hf[3]*int32(s[3]) + hf[4]*int32(s[4]) + hf[5]*int32(s[5]) +
				hf[6]*int32(s[6]) + hf[7]*int32(s[7])
		}
	}
	for r := 0; r < h; r++ {
		out := dst[r*w : (r+1)*w]
		for c := 0; c < w; c++ {
			var s int32
			for k := 0; k < 8; k++ {
				s += vf[k] * tmp[(r+k)*w+c]
			}
			out[c] = s
		}
	}
}

// PrepToPixels rounds an intermediate prediction to samples.
func PrepToPixels(dst []uint16, stride int, src []int32, w, h, bd int) {
	maxV := int32(1)<<uint(bd) - 1
	const round = 1 << (PrepBits - 1)
	for r := 0; r < h; r++ {
		row := dst[r*stride : r*stride+w]
		s := src[r*w : (r+1)*w]
		for c := range row {
			row[c] = uint16(clamp32((s[c]+round)>>PrepBits, 0, maxV))
		}
	}
}

// CompoundAverage blends two intermediate predictions with equal weight.
func CompoundAverage(dst []uint16, stride int, p0, p1 []int32, w, h, bd int) {
	maxV := int64(1)<<uint(bd) - 1
	const round = 1 << PrepBits
	for r := 0; r < h; r++ {
		row := dst[r*stride : r*stride+w]
		a := p0[r*w : (r+1)*w]
		b := p1[r*w : (r+1)*w]
		for c := range row {
			v := (int64(a[c]) + int64(b[c]) + round) >> (PrepBits + 1)
			row[c] = uint16(clamp64(v, 0, maxV))
		}
	}
}

// CompoundDistance blends two intermediate predictions with weights w0 and
// 16-w0.
func CompoundDistance(dst []uint16, stride int, p0, p1 []int32, w, h, w0, bd int) {
	maxV := int64(1)<<uint(bd) - 1
	const round = 1 << (PrepBits + 3)
	w1 := int64(16 - w0)
	for r := 0; r < h; r++ {
		row := dst[r*stride : r*stride+w]
		a := p0[r*w : (r+1)*w]
		b := p1[r*w : (r+1)*w]
		for c := range row {
			v := (int64(w0)*int64(a[c]) + w1*int64(b[c]) + round) >> (PrepBits + 4)
			row[c] = uint16(clamp64(v, 0, maxV))
		}
	}
}

// DistanceWeight returns the weight of the first prediction for frame
// distances d0 and d1: the nearer reference weighs more.
func DistanceWeight(d0, d1 int) int {
	d0, d1 = abs(d0), abs(d1)
	switch {
	case d0 == d1:
		return 8
	case d0 < d1:
		if 2*d0 <= d1 {
			return 12
		}
		return 10
	default:
		if 2*d1 <= d0 {
			return 4
		}
		return 6
	}
}

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
