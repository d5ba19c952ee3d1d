package encoder

import (
	"github.com/deepteams/av1/internal/frame"
)

// sceneBlock is the side of the luma blocks a thumbnail averages.
const sceneBlock = 16

// sceneCutThreshold is the mean absolute thumbnail difference, at 8-bit
// scale, above which a picture starts a new scene.
const sceneCutThreshold = 28

// thumbnail returns the block means of the luma picture area at 8-bit
// scale.
func thumbnail(f *frame.Frame) []int32 {
	pl := &f.Planes[0]
	cols := (f.Width + sceneBlock - 1) / sceneBlock
	rows := (f.Height + sceneBlock - 1) / sceneBlock
	out := make([]int32, 0, cols*rows)
	shift := uint(f.BitDepth - 8)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x0, y0 := c*sceneBlock, r*sceneBlock
			w := min(sceneBlock, f.Width-x0)
			h := min(sceneBlock, f.Height-y0)
			var sum int64
			for y := y0; y < y0+h; y++ {
				for _, v := range pl.Row(x0, y, w) {
					sum += int64(v)
				}
			}
			out = append(out, int32(sum/int64(w*h))>>shift)
		}
	}
	return out
}

// sceneCut reports whether cur differs enough from prev to be coded as a
// key frame.
func sceneCut(prev, cur []int32) bool {
	if len(prev) != len(cur) || len(cur) == 0 {
		return false
	}
	var diff int64
	for i := range cur {
		d := int64(cur[i] - prev[i])
		if d < 0 {
			d = -d
		}
		diff += d
	}
	return diff > sceneCutThreshold*int64(len(cur))
}
