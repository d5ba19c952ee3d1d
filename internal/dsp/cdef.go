package dsp

import "math/bits"

// CDEFUnavailable marks padding samples outside the frame. Taps landing on
// it contribute nothing and are excluded from the clamping range.
const CDEFUnavailable = int32(1) << 30

// CDEFPad is the number of padding samples the filter reads on each side.
const CDEFPad = 3

var cdefDivTable = [9]int32{0, 840, 420, 280, 210, 168, 140, 120, 105}

// cdefDirections holds the (row, col) offsets of the two primary taps of
// each of the 8 directions.
var cdefDirections = [8][2][2]int{
	{{-1, 1}, {-2, 2}},
	{{0, 1}, {-1, 2}},
	{{0, 1}, {0, 2}},
	{{0, 1}, {1, 2}},
	{{1, 1}, {2, 2}},
	{{1, 0}, {2, 1}},
	{{1, 0}, {2, 0}},
	{{1, 0}, {2, -1}},
}

var (
	cdefPriTaps = [2][2]int32{{4, 2}, {3, 3}}
	cdefSecTaps = [2]int32{2, 1}
)

// CDEFDirection returns the dominant edge direction of the 8x8 block at
// img[0] and its directional variance.
func CDEFDirection(img []uint16, stride, bd int) (dir int, variance int32) {
	var cost [8]int32
	var partial [8][15]int32
	shift := uint(bd - 8)
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			x := int32(img[i*stride+j]>>shift) - 128
			partial[0][i+j] += x
			partial[1][i+j/2] += x
			partial[2][i] += x
			partial[3][3+i-j/2] += x
			partial[4][7+i-j] += x
			partial[5][3-i/2+j] += x
			partial[6][j] += x
			partial[7][i/2+j] += x
		}
	}
	for i := 0; i < 8; i++ {
		cost[2] += partial[2][i] * partial[2][i]
		cost[6] += partial[6][i] * partial[6][i]
	}
	cost[2] *= cdefDivTable[8]
	cost[6] *= cdefDivTable[8]
	for i := 0; i < 7; i++ {
		cost[0] += (partial[0][i]*partial[0][i] + partial[0][14-i]*partial[0][14-i]) * cdefDivTable[i+1]
		cost[4] += (partial[4][i]*partial[4][i] + partial[4][14-i]*partial[4][14-i]) * cdefDivTable[i+1]
	}
	cost[0] += partial[0][7] * partial[0][7] * cdefDivTable[8]
	cost[4] += partial[4][7] * partial[4][7] * cdefDivTable[8]
	for i := 1; i < 8; i += 2 {
		for j := 0; j < 5; j++ {
			cost[i] += partial[i][3+j] * partial[i][3+j]
		}
		cost[i] *= cdefDivTable[8]
		for j := 0; j < 3; j++ {
			cost[i] += (partial[i][j]*partial[i][j] + partial[i][10-j]*partial[i][10-j]) * cdefDivTable[2*j+2]
		}
	}
	best := cost[0]
	for d := 1; d < 8; d++ {
		if cost[d] > best {
			best, dir = cost[d], d
		}
	}
	return dir, (best - cost[(dir+4)&7]) >> 10
}

// CDEFAdjustStrength scales the luma primary strength by the block's
// directional variance.
func CDEFAdjustStrength(strength int, variance int32) int {
	if variance == 0 {
		return 0
	}
	i := 0
	if variance>>6 != 0 {
		i = min(bits.Len32(uint32(variance>>6))-1, 12)
	}
	return (strength*(4+i) + 8) >> 4
}

func cdefConstrain(diff, threshold int32, damping int) int32 {
	if threshold == 0 {
		return 0
	}
	shift := max(0, damping-(bits.Len32(uint32(threshold))-1))
	ad := diff
	if ad < 0 {
		ad = -ad
	}
	v := clamp32(threshold-(ad>>uint(shift)), 0, ad)
	if diff < 0 {
		return -v
	}
	return v
}

// CDEFFilterBlock filters a w x h block. src holds padded input samples
// with the block's top-left at src[base]; unavailable samples are
// CDEFUnavailable. pri and sec are strengths already scaled to bd.
func CDEFFilterBlock(dst []uint16, dstStride int, src []int32, base, srcStride, w, h int,
	pri, sec, dir, damping, bd int) {
	priTaps := &cdefPriTaps[(pri>>uint(bd-8))&1]
	priDamp, secDamp := damping, damping
	var offs [3][2]int
	for k := 0; k < 2; k++ {
		d := cdefDirections[dir][k]
		offs[0][k] = d[0]*srcStride + d[1]
		d = cdefDirections[(dir+2)&7][k]
		offs[1][k] = d[0]*srcStride + d[1]
		d = cdefDirections[(dir+6)&7][k]
		offs[2][k] = d[0]*srcStride + d[1]
	}
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			p := base + i*srcStride + j
			x := src[p]
			lo, hi := x, x
			var sum int32
			track := func(v int32) {
				if v == CDEFUnavailable {
					return
				}
				lo = min(lo, v)
				hi = max(hi, v)
			}
			for k := 0; k < 2; k++ {
				if pri != 0 {
					a, b := src[p+offs[0][k]], src[p-offs[0][k]]
					sum += priTaps[k] * (cdefConstrain(a-x, int32(pri), priDamp) +
						cdefConstrain(b-x, int32(pri), priDamp))
					track(a)
					track(b)
				}
				if sec != 0 {
					s0, s1 := src[p+offs[1][k]], src[p-offs[1][k]]
					s2, s3 := src[p+offs[2][k]], src[p-offs[2][k]]
					sum += cdefSecTaps[k] * (cdefConstrain(s0-x, int32(sec), secDamp) +
						cdefConstrain(s1-x, int32(sec), secDamp) +
						cdefConstrain(s2-x, int32(sec), secDamp) +
						cdefConstrain(s3-x, int32(sec), secDamp))
					track(s0)
					track(s1)
					track(s2)
					track(s3)
				}
			}
			neg := int32(0)
			if sum < 0 {
				neg = 1
			}
			y := x + ((8 + sum - neg) >> 4)
			dst[i*dstStride+j] = uint16(clamp32(y, lo, hi))
		}
	}
}
