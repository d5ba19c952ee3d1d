package dsp

// WienerTaps are the three outer coefficients of a symmetric 7-tap filter;
// the centre tap is 128 minus twice their sum.
type WienerTaps [3]int32

// Wiener tap ranges, inclusive.
var (
	WienerTapMin = WienerTaps{-5, -23, -17}
	WienerTapMax = WienerTaps{10, 8, 46}
)

// Full returns the 7 coefficients of t.
func (t WienerTaps) Full() [7]int32 {
	c := 128 - 2*(t[0]+t[1]+t[2])
	return [7]int32{t[0], t[1], t[2], c, t[2], t[1], t[0]}
}

// Clamp limits every tap to its legal range.
func (t WienerTaps) Clamp() WienerTaps {
	for i := range t {
		t[i] = clamp32(t[i], WienerTapMin[i], WienerTapMax[i])
	}
	return t
}

func wienerRounding(bd int) (r0, r1 uint) {
	if bd == 12 {
		return 5, 9
	}
	return 3, 11
}

// WienerFilter applies the separable filter (h horizontally, v vertically)
// to the w x h area of src starting at src[srcOff], writing dst. src must
// provide 3 readable samples around the area.
func WienerFilter(dst []uint16, dstStride int, src []uint16, srcOff, srcStride, w, h int,
	hTaps, vTaps WienerTaps, bd int) {
	r0, r1 := wienerRounding(bd)
	hf := hTaps.Full()
	vf := vTaps.Full()
	maxV := int32(1)<<uint(bd) - 1

	var tmpBuf [(64 + 6) * 64]int32
	tmp := tmpBuf[:(h+6)*w]
	for r := 0; r < h+6; r++ {
		row := src[srcOff+(r-3)*srcStride-3:]
		out := tmp[r*w : (r+1)*w]
		for c := 0; c < w; c++ {
			var s int32
			for k := 0; k < 7; k++ {
				s += hf[k] * int32(row[c+k])
			}
			out[c] = (s + int32(1)<<(r0-1)) >> r0
		}
	}
	for r := 0; r < h; r++ {
		out := dst[r*dstStride : r*dstStride+w]
		for c := 0; c < w; c++ {
			var s int32
			for k := 0; k < 7; k++ {
				s += vf[k] * tmp[(r+k)*w+c]
			}
			out[c] = uint16(clamp32((s+int32(1)<<(r1-1))>>r1, 0, maxV))
		}
	}
}
