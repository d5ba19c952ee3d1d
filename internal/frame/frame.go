// Package frame holds sample planes and frames with replicated borders.
package frame

// Plane is a rectangle of samples surrounded by a border of Border samples
// on every side. Coordinates passed to accessors are relative to the
// top-left visible sample and may reach into the border.
type Plane struct {
	Data   []uint16
	Stride int
	Width  int
	Height int
	Border int
	origin int
}

// NewPlane allocates a w x h plane with the given border.
func NewPlane(w, h, border int) Plane {
	stride := w + 2*border
	rows := h + 2*border
	return Plane{
		Data:   make([]uint16, stride*rows),
		Stride: stride,
		Width:  w,
		Height: h,
		Border: border,
		origin: border*stride + border,
	}
}

// Offset returns the index of sample (x, y) in Data.
func (p *Plane) Offset(x, y int) int {
	return p.origin + y*p.Stride + x
}

// At returns sample (x, y).
func (p *Plane) At(x, y int) uint16 {
	return p.Data[p.origin+y*p.Stride+x]
}

// Set writes sample (x, y).
func (p *Plane) Set(x, y int, v uint16) {
	p.Data[p.origin+y*p.Stride+x] = v
}

// Row returns the visible-width slice of row y starting at column x.
func (p *Plane) Row(x, y, n int) []uint16 {
	off := p.origin + y*p.Stride + x
	return p.Data[off : off+n]
}

// Clamped returns sample (x, y) with coordinates clamped into the visible
// area.
func (p *Plane) Clamped(x, y int) uint16 {
	x = min(max(x, 0), p.Width-1)
	y = min(max(y, 0), p.Height-1)
	return p.Data[p.origin+y*p.Stride+x]
}

// ExtendBorders replicates edge samples into the border.
func (p *Plane) ExtendBorders() {
	b := p.Border
	if b == 0 {
		return
	}
	for y := 0; y < p.Height; y++ {
		row := p.origin + y*p.Stride
		left := p.Data[row]
		right := p.Data[row+p.Width-1]
		for x := 1; x <= b; x++ {
			p.Data[row-x] = left
			p.Data[row+p.Width-1+x] = right
		}
	}
	top := p.Data[p.origin-b : p.origin-b+p.Stride]
	bottom := p.origin + (p.Height-1)*p.Stride - b
	for y := 1; y <= b; y++ {
		copy(p.Data[p.origin-b-y*p.Stride:], top)
		copy(p.Data[bottom+y*p.Stride:bottom+y*p.Stride+p.Stride], p.Data[bottom:bottom+p.Stride])
	}
}

// CopyFrom copies the visible samples of o, which must have the same
// dimensions.
func (p *Plane) CopyFrom(o *Plane) {
	for y := 0; y < p.Height; y++ {
		copy(p.Row(0, y, p.Width), o.Row(0, y, o.Width))
	}
}

// CopyRect copies the rectangle (x, y, w, h) of o into the same position
// of p, clipped to the visible area.
func (p *Plane) CopyRect(o *Plane, x, y, w, h int) {
	w = min(w, p.Width-x)
	h = min(h, p.Height-y)
	if w <= 0 || h <= 0 {
		return
	}
	for j := 0; j < h; j++ {
		copy(p.Row(x, y+j, w), o.Row(x, y+j, w))
	}
}

// Subsampling describes the chroma layout.
type Subsampling uint8

const (
	Subsampling420 Subsampling = iota
	Subsampling422
	Subsampling444
	SubsamplingMono
)

// Shift returns the horizontal and vertical chroma shifts.
func (s Subsampling) Shift() (sx, sy int) {
	switch s {
	case Subsampling420:
		return 1, 1
	case Subsampling422:
		return 1, 0
	}
	return 0, 0
}

// Planes returns the number of coded planes.
func (s Subsampling) Planes() int {
	if s == SubsamplingMono {
		return 1
	}
	return 3
}

func (s Subsampling) String() string {
	switch s {
	case Subsampling420:
		return "4:2:0"
	case Subsampling422:
		return "4:2:2"
	case Subsampling444:
		return "4:4:4"
	case SubsamplingMono:
		return "4:0:0"
	}
	return "invalid"
}

// Frame is a set of planes covering the coded area of a picture. The
// coded area is the picture size rounded up to a multiple of Align; Width
// and Height keep the picture size.
type Frame struct {
	Planes      [3]Plane
	NumPlanes   int
	Width       int
	Height      int
	CodedWidth  int
	CodedHeight int
	BitDepth    int
	Subsampling Subsampling
}

// Align is the coded-area granularity in luma samples.
const Align = 8

// RefBorder is the luma border of frames used as references. Encoder and
// decoder must agree on it since it bounds legal motion vectors.
const RefBorder = 96

// New allocates a frame for a w x h picture.
func New(w, h, bitDepth int, ss Subsampling, border int) *Frame {
	cw := (w + Align - 1) &^ (Align - 1)
	ch := (h + Align - 1) &^ (Align - 1)
	f := &Frame{
		NumPlanes:   ss.Planes(),
		Width:       w,
		Height:      h,
		CodedWidth:  cw,
		CodedHeight: ch,
		BitDepth:    bitDepth,
		Subsampling: ss,
	}
	sx, sy := ss.Shift()
	f.Planes[0] = NewPlane(cw, ch, border)
	// Chroma motion reaches as far past the edge as luma motion along any
	// axis that is not subsampled.
	cb := border >> min(sx, sy)
	for p := 1; p < f.NumPlanes; p++ {
		f.Planes[p] = NewPlane(cw>>sx, ch>>sy, cb)
	}
	return f
}

// PlaneShift returns the subsampling shifts of plane p.
func (f *Frame) PlaneShift(p int) (sx, sy int) {
	if p == 0 {
		return 0, 0
	}
	return f.Subsampling.Shift()
}

// ExtendBorders replicates the edges of every plane into its border.
func (f *Frame) ExtendBorders() {
	for p := 0; p < f.NumPlanes; p++ {
		f.Planes[p].ExtendBorders()
	}
}

// CopyFrom copies the coded area of every plane of o.
func (f *Frame) CopyFrom(o *Frame) {
	for p := 0; p < f.NumPlanes; p++ {
		f.Planes[p].CopyFrom(&o.Planes[p])
	}
}

// Clone returns a deep copy of f with the same border.
func (f *Frame) Clone() *Frame {
	c := &Frame{}
	*c = *f
	for p := 0; p < f.NumPlanes; p++ {
		d := make([]uint16, len(f.Planes[p].Data))
		copy(d, f.Planes[p].Data)
		c.Planes[p].Data = d
	}
	return c
}

// Equal reports whether the visible picture area of f and o match sample
// for sample.
func (f *Frame) Equal(o *Frame) bool {
	if f.Width != o.Width || f.Height != o.Height || f.NumPlanes != o.NumPlanes {
		return false
	}
	for p := 0; p < f.NumPlanes; p++ {
		sx, sy := f.PlaneShift(p)
		w := (f.Width + sx) >> sx
		h := (f.Height + sy) >> sy
		a, b := &f.Planes[p], &o.Planes[p]
		for y := 0; y < h; y++ {
			ra, rb := a.Row(0, y, w), b.Row(0, y, w)
			for x := range ra {
				if ra[x] != rb[x] {
					return false
				}
			}
		}
	}
	return true
}

// FirstMismatch returns the first differing sample of the visible area as
// (plane, x, y), or ok=false when the frames match.
func (f *Frame) FirstMismatch(o *Frame) (plane, x, y int, ok bool) {
	for p := 0; p < f.NumPlanes; p++ {
		sx, sy := f.PlaneShift(p)
		w := (f.Width + sx) >> sx
		h := (f.Height + sy) >> sy
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				if f.Planes[p].At(i, j) != o.Planes[p].At(i, j) {
					return p, i, j, true
				}
			}
		}
	}
	return 0, 0, 0, false
}

// FillCodedArea edge-replicates the picture area into the coded area
// beyond Width x Height.
func (f *Frame) FillCodedArea() {
	for p := 0; p < f.NumPlanes; p++ {
		sx, sy := f.PlaneShift(p)
		w := (f.Width + sx) >> sx
		h := (f.Height + sy) >> sy
		pl := &f.Planes[p]
		for y := 0; y < h; y++ {
			v := pl.At(w-1, y)
			for x := w; x < pl.Width; x++ {
				pl.Set(x, y, v)
			}
		}
		for y := h; y < pl.Height; y++ {
			copy(pl.Row(0, y, pl.Width), pl.Row(0, h-1, pl.Width))
		}
	}
}
