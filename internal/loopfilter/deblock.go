package loopfilter

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/frame"
)

// ApplyDeblock filters every transform edge of f in place: per plane,
// all vertical edges first, then all horizontal ones.
func ApplyDeblock(f *frame.Frame, g *block.Grid, d *Deblock) {
	for p := 0; p < f.NumPlanes; p++ {
		lv, lh := d.Level[0], d.Level[1]
		if p > 0 {
			lv, lh = d.Level[1+p], d.Level[1+p]
		}
		if lv > 0 {
			deblockPlane(f, g, p, false, dsp.LimitsFor(lv, d.Sharpness, f.BitDepth))
		}
		if lh > 0 {
			deblockPlane(f, g, p, true, dsp.LimitsFor(lh, d.Sharpness, f.BitDepth))
		}
	}
}

// txExtent returns the transform width (or height when horiz) of plane p
// at unit mi.
func txExtent(mi *block.ModeInfo, p, sx, sy int, horiz bool) int {
	if p == 0 {
		if horiz {
			return 1 << mi.TxLog2H
		}
		return 1 << mi.TxLog2W
	}
	t := block.TxSizeFor(mi.Size.Width()>>sx, mi.Size.Height()>>sy)
	if horiz {
		return t.Height()
	}
	return t.Width()
}

func deblockPlane(f *frame.Frame, g *block.Grid, p int, horiz bool, lim dsp.EdgeLimits) {
	pl := &f.Planes[p]
	sx, sy := f.PlaneShift(p)
	bd := f.BitDepth
	at := func(x, y int) *block.ModeInfo {
		return g.At(min((x<<sx)>>2, g.Cols-1), min((y<<sy)>>2, g.Rows-1))
	}
	for y := 0; y < pl.Height; y += 4 {
		for x := 0; x < pl.Width; x += 4 {
			pos := x
			if horiz {
				pos = y
			}
			if pos == 0 {
				continue
			}
			q := at(x, y)
			var pm *block.ModeInfo
			if horiz {
				pm = at(x, y-1)
			} else {
				pm = at(x-1, y)
			}
			qExt := txExtent(q, p, sx, sy, horiz)
			if pos%qExt != 0 {
				continue
			}
			bExt := q.Size.Width() >> sx
			if horiz {
				bExt = q.Size.Height() >> sy
			}
			if pos%max(bExt, 4) != 0 && q.Skip && q.Inter {
				continue
			}
			n := min(qExt, txExtent(pm, p, sx, sy, horiz))
			size := 4
			switch {
			case p > 0 && n >= 8:
				size = 6
			case p == 0 && n == 8:
				size = 8
			case p == 0 && n >= 16:
				size = 14
			}
			for i := 0; i < 4; i++ {
				if horiz {
					if x+i < pl.Width {
						dsp.FilterEdge(pl.Data, pl.Offset(x+i, y), pl.Stride, size, lim, bd)
					}
				} else if y+i < pl.Height {
					dsp.FilterEdge(pl.Data, pl.Offset(x, y+i), 1, size, lim, bd)
				}
			}
		}
	}
}
