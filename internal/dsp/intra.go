package dsp

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/frame"
)

// maxEdge is the number of edge samples a transform block may need on
// each side (w+h for the largest transform), plus the corner.
const maxEdge = 2*block.MaxTxSide + 1

// IntraEdges holds the neighbours of a block. Top[0] and Left[0] both hold
// the top-left sample; Top[1+i] is the sample above column i and Left[1+j]
// the sample left of row j. Both extend w+h samples.
type IntraEdges struct {
	Top      [maxEdge]uint16
	Left     [maxEdge]uint16
	HaveTop  bool
	HaveLeft bool
}

// BuildEdges fills e for the w x h block at (x, y) of pl. nTop is the count
// of reconstructed samples available in the row above starting at column
// x (0 when the row is unavailable) and nLeft the count down the left
// column. Missing samples repeat the last available one; a missing side
// falls back to the nearest sample of the other side, or to mid-grey
// offset by one (top: base-1, left: base+1, corner: base).
func BuildEdges(e *IntraEdges, pl *frame.Plane, x, y, w, h, nTop, nLeft, bd int) {
	base := uint16(1) << uint(bd-1)
	n := w + h
	e.HaveTop = nTop > 0
	e.HaveLeft = nLeft > 0
	nTop = min(nTop, n)
	nLeft = min(nLeft, n)

	switch {
	case e.HaveTop:
		row := pl.Row(x, y-1, nTop)
		copy(e.Top[1:], row)
		last := row[nTop-1]
		for i := nTop; i < n; i++ {
			e.Top[1+i] = last
		}
	case e.HaveLeft:
		v := pl.At(x-1, y)
		for i := 0; i < n; i++ {
			e.Top[1+i] = v
		}
	default:
		for i := 0; i < n; i++ {
			e.Top[1+i] = base - 1
		}
	}

	switch {
	case e.HaveLeft:
		off := pl.Offset(x-1, y)
		for i := 0; i < nLeft; i++ {
			e.Left[1+i] = pl.Data[off+i*pl.Stride]
		}
		last := e.Left[nLeft]
		for i := nLeft; i < n; i++ {
			e.Left[1+i] = last
		}
	case e.HaveTop:
		v := pl.At(x, y-1)
		for i := 0; i < n; i++ {
			e.Left[1+i] = v
		}
	default:
		for i := 0; i < n; i++ {
			e.Left[1+i] = base + 1
		}
	}

	var corner uint16
	switch {
	case e.HaveTop && e.HaveLeft:
		corner = pl.At(x-1, y-1)
	case e.HaveTop:
		corner = pl.At(x, y-1)
	case e.HaveLeft:
		corner = pl.At(x-1, y)
	default:
		corner = base
	}
	e.Top[0] = corner
	e.Left[0] = corner
}

var smoothWeights = [...]uint8{
	// 4
	255, 149, 85, 64,
	// 8
	255, 197, 146, 105, 73, 50, 37, 32,
	// 16
	255, 225, 196, 170, 145, 123, 102, 84, 68, 54, 43, 33, 26, 20, 17, 16,
	// 32
	255, 240, 225, 210, 196, 182, 169, 157, 145, 133, 122, 111, 101, 92, 83, 74,
	66, 59, 52, 45, 39, 34, 29, 25, 21, 17, 14, 12, 10, 9, 8, 8,
}

// smoothWeightsFor returns the n weights of a side of length n (4..32).
func smoothWeightsFor(n int) []uint8 {
	return smoothWeights[n-4 : 2*n-4]
}

// drDerivative maps the angles used by the directional modes to their
// 1/64-sample step.
func drDerivative(angle int) int {
	switch angle {
	case 23:
		return 151
	case 45:
		return 64
	case 67:
		return 27
	}
	return 0
}

// PredictIntra writes the w x h prediction of mode into dst.
func PredictIntra(mode block.PredMode, dst []uint16, stride, w, h int, e *IntraEdges, bd int) {
	top := e.Top[1:]
	left := e.Left[1:]
	switch mode {
	case block.DCPred:
		predictDC(dst, stride, w, h, e, bd)
	case block.VPred:
		for r := 0; r < h; r++ {
			copy(dst[r*stride:r*stride+w], top[:w])
		}
	case block.HPred:
		for r := 0; r < h; r++ {
			row := dst[r*stride : r*stride+w]
			for c := range row {
				row[c] = left[r]
			}
		}
	case block.SmoothPred:
		wh := smoothWeightsFor(h)
		ww := smoothWeightsFor(w)
		below := int(left[h-1])
		right := int(top[w-1])
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				v := int(wh[r])*int(top[c]) + (256-int(wh[r]))*below +
					int(ww[c])*int(left[r]) + (256-int(ww[c]))*right
				dst[r*stride+c] = uint16((v + 256) >> 9)
			}
		}
	case block.SmoothVPred:
		wh := smoothWeightsFor(h)
		below := int(left[h-1])
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				v := int(wh[r])*int(top[c]) + (256-int(wh[r]))*below
				dst[r*stride+c] = uint16((v + 128) >> 8)
			}
		}
	case block.SmoothHPred:
		ww := smoothWeightsFor(w)
		right := int(top[w-1])
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				v := int(ww[c])*int(left[r]) + (256-int(ww[c]))*right
				dst[r*stride+c] = uint16((v + 128) >> 8)
			}
		}
	case block.PaethPred:
		tl := int(e.Top[0])
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				dst[r*stride+c] = paeth(int(left[r]), int(top[c]), tl)
			}
		}
	default:
		predictDirectional(mode.Angle(), dst, stride, w, h, e)
	}
}

func predictDC(dst []uint16, stride, w, h int, e *IntraEdges, bd int) {
	var v int
	switch {
	case e.HaveTop && e.HaveLeft:
		s := 0
		for i := 0; i < w; i++ {
			s += int(e.Top[1+i])
		}
		for i := 0; i < h; i++ {
			s += int(e.Left[1+i])
		}
		v = (s + (w+h)/2) / (w + h)
	case e.HaveTop:
		s := 0
		for i := 0; i < w; i++ {
			s += int(e.Top[1+i])
		}
		v = (s + w/2) / w
	case e.HaveLeft:
		s := 0
		for i := 0; i < h; i++ {
			s += int(e.Left[1+i])
		}
		v = (s + h/2) / h
	default:
		v = 1 << uint(bd-1)
	}
	for r := 0; r < h; r++ {
		row := dst[r*stride : r*stride+w]
		for c := range row {
			row[c] = uint16(v)
		}
	}
}

func paeth(left, top, topLeft int) uint16 {
	base := top + left - topLeft
	pl := abs(base - left)
	pt := abs(base - top)
	ptl := abs(base - topLeft)
	if pl <= pt && pl <= ptl {
		return uint16(left)
	}
	if pt <= ptl {
		return uint16(top)
	}
	return uint16(topLeft)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// predictDirectional extrapolates along angle (degrees, 0 pointing right,
// 90 straight down from the top edge, 180 straight right from the left
// edge).
func predictDirectional(angle int, dst []uint16, stride, w, h int, e *IntraEdges) {
	// above(i) = e.Top[1+i], valid for i >= -1; likewise left.
	above := e.Top[:]
	left := e.Left[:]
	switch {
	case angle < 90:
		dx := drDerivative(angle)
		maxBase := w + h - 1
		x := dx
		for r := 0; r < h; r, x = r+1, x+dx {
			base := x >> 6
			shift := (x & 0x3f) >> 1
			row := dst[r*stride : r*stride+w]
			if base >= maxBase {
				for i := r; i < h; i++ {
					fill := dst[i*stride : i*stride+w]
					for c := range fill {
						fill[c] = above[1+maxBase]
					}
				}
				return
			}
			for c := 0; c < w; c, base = c+1, base+1 {
				if base < maxBase {
					v := int(above[1+base])*(32-shift) + int(above[2+base])*shift
					row[c] = uint16((v + 16) >> 5)
				} else {
					row[c] = above[1+maxBase]
				}
			}
		}
	case angle == 90:
		for r := 0; r < h; r++ {
			copy(dst[r*stride:r*stride+w], above[1:1+w])
		}
	case angle < 180:
		dx := drDerivative(180 - angle)
		dy := drDerivative(angle - 90)
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				var v int
				x := (c << 6) - (r+1)*dx
				if bx := x >> 6; bx >= -1 {
					shift := (x & 0x3f) >> 1
					v = int(above[1+bx])*(32-shift) + int(above[2+bx])*shift
				} else {
					y := (r << 6) - (c+1)*dy
					by := y >> 6
					shift := (y & 0x3f) >> 1
					v = int(left[1+by])*(32-shift) + int(left[2+by])*shift
				}
				dst[r*stride+c] = uint16((v + 16) >> 5)
			}
		}
	case angle == 180:
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				dst[r*stride+c] = left[1+r]
			}
		}
	default:
		dy := drDerivative(270 - angle)
		maxBase := w + h - 1
		y := dy
		for c := 0; c < w; c, y = c+1, y+dy {
			base := y >> 6
			shift := (y & 0x3f) >> 1
			for r := 0; r < h; r, base = r+1, base+1 {
				if base >= maxBase {
					for ; r < h; r++ {
						dst[r*stride+c] = left[1+maxBase]
					}
					break
				}
				v := int(left[1+base])*(32-shift) + int(left[2+base])*shift
				dst[r*stride+c] = uint16((v + 16) >> 5)
			}
		}
	}
}
