package rdo

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/frame"
)

// snapshot is a saved copy of the reconstruction and grid state of a
// luma rectangle, used to roll back abandoned candidates.
type snapshot struct {
	x, y, w, h int
	planes     [3][]uint16
	grid       block.Region
}

func (s *snapshot) save(f *frame.Frame, g *block.Grid, x, y, w, h int) {
	w = min(w, f.CodedWidth-x)
	h = min(h, f.CodedHeight-y)
	s.x, s.y, s.w, s.h = x, y, w, h
	for p := 0; p < f.NumPlanes; p++ {
		sx, sy := f.PlaneShift(p)
		pw, ph := w>>sx, h>>sy
		if cap(s.planes[p]) < pw*ph {
			s.planes[p] = make([]uint16, pw*ph)
		}
		s.planes[p] = s.planes[p][:pw*ph]
		pl := &f.Planes[p]
		for r := 0; r < ph; r++ {
			copy(s.planes[p][r*pw:(r+1)*pw], pl.Row(x>>sx, (y>>sy)+r, pw))
		}
	}
	g.Save(block.Rect{X: x >> 2, Y: y >> 2, W: (w + 3) >> 2, H: (h + 3) >> 2}, &s.grid)
}

func (s *snapshot) restore(f *frame.Frame, g *block.Grid) {
	for p := 0; p < f.NumPlanes; p++ {
		sx, sy := f.PlaneShift(p)
		pw, ph := s.w>>sx, s.h>>sy
		pl := &f.Planes[p]
		for r := 0; r < ph; r++ {
			copy(pl.Row(s.x>>sx, (s.y>>sy)+r, pw), s.planes[p][r*pw:(r+1)*pw])
		}
	}
	g.Restore(&s.grid)
}
