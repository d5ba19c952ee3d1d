package dsp

// EdgeLimits holds the thresholds of one deblocking level, already scaled
// to the sample bit depth.
type EdgeLimits struct {
	Limit  int32 // inner activity
	BLimit int32 // step across the edge
	Thresh int32 // high edge variance
}

// LimitsFor derives the thresholds for filter level lvl (0..63) and
// sharpness (0..7).
func LimitsFor(lvl, sharpness, bd int) EdgeLimits {
	shift := 0
	switch {
	case sharpness > 4:
		shift = 2
	case sharpness > 0:
		shift = 1
	}
	limit := lvl >> uint(shift)
	if sharpness > 0 {
		limit = min(limit, 9-sharpness)
	}
	limit = max(limit, 1)
	s := uint(bd - 8)
	return EdgeLimits{
		Limit:  int32(limit) << s,
		BLimit: int32(2*(lvl+2)+limit) << s,
		Thresh: int32(lvl>>4) << s,
	}
}

func absDiff(a, b int32) int32 {
	if a > b {
		return a - b
	}
	return b - a
}

// FilterEdge filters one line of samples across an edge. buf[pos] is the
// first sample on the q side, buf[pos-step] the first on the p side. size
// is the longest filter allowed (4, 6, 8 or 14).
func FilterEdge(buf []uint16, pos, step, size int, l EdgeLimits, bd int) {
	at := func(i int) int32 { return int32(buf[pos+i*step]) }
	p0, p1, q0, q1 := at(-1), at(-2), at(0), at(1)

	mask := absDiff(p1, p0) <= l.Limit && absDiff(q1, q0) <= l.Limit &&
		absDiff(p0, q0)*2+absDiff(p1, q1)/2 <= l.BLimit
	if !mask {
		return
	}
	hev := absDiff(p1, p0) > l.Thresh || absDiff(q1, q0) > l.Thresh
	one := int32(1) << uint(bd-8)

	switch size {
	case 4:
		filter4(buf, pos, step, hev, bd)
	case 6:
		p2, q2 := at(-3), at(2)
		if absDiff(p2, p1) > l.Limit || absDiff(q2, q1) > l.Limit {
			return
		}
		if absDiff(p1, p0) <= one && absDiff(q1, q0) <= one &&
			absDiff(p2, p0) <= one && absDiff(q2, q0) <= one {
			filter6(buf, pos, step)
			return
		}
		filter4(buf, pos, step, hev, bd)
	default:
		p2, q2, p3, q3 := at(-3), at(2), at(-4), at(3)
		if absDiff(p2, p1) > l.Limit || absDiff(q2, q1) > l.Limit ||
			absDiff(p3, p2) > l.Limit || absDiff(q3, q2) > l.Limit {
			return
		}
		flat := absDiff(p1, p0) <= one && absDiff(q1, q0) <= one &&
			absDiff(p2, p0) <= one && absDiff(q2, q0) <= one &&
			absDiff(p3, p0) <= one && absDiff(q3, q0) <= one
		if !flat {
			filter4(buf, pos, step, hev, bd)
			return
		}
		if size == 14 {
			flat2 := true
			for i := 4; i <= 6 && flat2; i++ {
				flat2 = absDiff(at(-1-i), p0) <= one && absDiff(at(i), q0) <= one
			}
			if flat2 {
				filter14(buf, pos, step)
				return
			}
		}
		filter8(buf, pos, step)
	}
}

func filter4(buf []uint16, pos, step int, hev bool, bd int) {
	s := uint(bd - 8)
	off := int32(0x80) << s
	lo, hi := -off, off-1
	c := func(v int32) int32 { return clamp32(v, lo, hi) }

	ps1 := int32(buf[pos-2*step]) - off
	ps0 := int32(buf[pos-step]) - off
	qs0 := int32(buf[pos]) - off
	qs1 := int32(buf[pos+step]) - off

	var f int32
	if hev {
		f = c(ps1 - qs1)
	}
	f = c(f + 3*(qs0-ps0))
	f1 := c(f+4) >> 3
	f2 := c(f+3) >> 3
	buf[pos] = uint16(c(qs0-f1) + off)
	buf[pos-step] = uint16(c(ps0+f2) + off)
	if !hev {
		f = (f1 + 1) >> 1
		buf[pos+step] = uint16(c(qs1-f) + off)
		buf[pos-2*step] = uint16(c(ps1+f) + off)
	}
}

func filter6(buf []uint16, pos, step int) {
	p2, p1, p0 := int32(buf[pos-3*step]), int32(buf[pos-2*step]), int32(buf[pos-step])
	q0, q1, q2 := int32(buf[pos]), int32(buf[pos+step]), int32(buf[pos+2*step])
	buf[pos-2*step] = uint16((p2*3 + p1*2 + p0*2 + q0 + 4) >> 3)
	buf[pos-step] = uint16((p2 + p1*2 + p0*2 + q0*2 + q1 + 4) >> 3)
	buf[pos] = uint16((p1 + p0*2 + q0*2 + q1*2 + q2 + 4) >> 3)
	buf[pos+step] = uint16((p0 + q0*2 + q1*2 + q2*3 + 4) >> 3)
}

func filter8(buf []uint16, pos, step int) {
	p3, p2 := int32(buf[pos-4*step]), int32(buf[pos-3*step])
	p1, p0 := int32(buf[pos-2*step]), int32(buf[pos-step])
	q0, q1 := int32(buf[pos]), int32(buf[pos+step])
	q2, q3 := int32(buf[pos+2*step]), int32(buf[pos+3*step])
	buf[pos-3*step] = uint16((3*p3 + 2*p2 + p1 + p0 + q0 + 4) >> 3)
	buf[pos-2*step] = uint16((2*p3 + p2 + 2*p1 + p0 + q0 + q1 + 4) >> 3)
	buf[pos-step] = uint16((p3 + p2 + p1 + 2*p0 + q0 + q1 + q2 + 4) >> 3)
	buf[pos] = uint16((p2 + p1 + p0 + 2*q0 + q1 + q2 + q3 + 4) >> 3)
	buf[pos+step] = uint16((p1 + p0 + q0 + 2*q1 + q2 + 2*q3 + 4) >> 3)
	buf[pos+2*step] = uint16((p0 + q0 + q1 + 2*q2 + 3*q3 + 4) >> 3)
}

// filter14Weights lists, for each of the 12 output samples p5..q5, the
// weights of the 14 inputs p6..q6. Every row sums to 16.
var filter14Weights = [12][14]int32{
	{7, 2, 2, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0},
	{5, 2, 2, 2, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0},
	{4, 1, 2, 2, 2, 1, 1, 1, 1, 1, 0, 0, 0, 0},
	{3, 1, 1, 2, 2, 2, 1, 1, 1, 1, 1, 0, 0, 0},
	{2, 1, 1, 1, 2, 2, 2, 1, 1, 1, 1, 1, 0, 0},
	{1, 1, 1, 1, 1, 2, 2, 2, 1, 1, 1, 1, 1, 0},
	{0, 1, 1, 1, 1, 1, 2, 2, 2, 1, 1, 1, 1, 1},
	{0, 0, 1, 1, 1, 1, 1, 2, 2, 2, 1, 1, 1, 2},
	{0, 0, 0, 1, 1, 1, 1, 1, 2, 2, 2, 1, 1, 3},
	{0, 0, 0, 0, 1, 1, 1, 1, 1, 2, 2, 2, 1, 4},
	{0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 2, 2, 2, 5},
	{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 2, 2, 7},
}

func filter14(buf []uint16, pos, step int) {
	var in [14]int32
	for i := range in {
		in[i] = int32(buf[pos+(i-7)*step])
	}
	for o, w := range filter14Weights {
		s := int32(8)
		for i, k := range w {
			s += k * in[i]
		}
		buf[pos+(o-6)*step] = uint16(s >> 4)
	}
}
