package av1

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/deepteams/av1/internal/frame"
)

// ChromaSubsampling is the chroma sampling of a sequence.
type ChromaSubsampling int

const (
	Chroma420 ChromaSubsampling = iota
	Chroma422
	Chroma444
	// ChromaMono has a luma plane only.
	ChromaMono
)

func (c ChromaSubsampling) String() string { return frame.Subsampling(c).String() }

// shift returns the horizontal and vertical chroma shifts.
func (c ChromaSubsampling) shift() (sx, sy int) { return frame.Subsampling(c).Shift() }

// Rational is a frame rate Num/Den.
type Rational struct {
	Num, Den int
}

// SequenceParams are fixed for a session.
type SequenceParams struct {
	Width, Height int
	// BitDepth is 8, 10 or 12.
	BitDepth    int
	Subsampling ChromaSubsampling
	// FrameRate defaults to 30/1 when zero.
	FrameRate Rational
}

// NumPlanes returns the number of sample planes of a picture.
func (s *SequenceParams) NumPlanes() int { return frame.Subsampling(s.Subsampling).Planes() }

// PlaneSize returns the dimensions of plane p.
func (s *SequenceParams) PlaneSize(p int) (w, h int) {
	if p == 0 {
		return s.Width, s.Height
	}
	sx, sy := s.Subsampling.shift()
	return (s.Width + sx) >> sx, (s.Height + sy) >> sy
}

func (s *SequenceParams) validate() error {
	switch {
	case s.Width < 1 || s.Height < 1 || s.Width > 1<<16 || s.Height > 1<<16:
		return fmt.Errorf("%w: picture size %dx%d (must be 1-65536)", ErrInvalidConfig, s.Width, s.Height)
	case s.BitDepth != 8 && s.BitDepth != 10 && s.BitDepth != 12:
		return fmt.Errorf("%w: BitDepth %d (must be 8, 10 or 12)", ErrInvalidConfig, s.BitDepth)
	case s.Subsampling < Chroma420 || s.Subsampling > ChromaMono:
		return fmt.Errorf("%w: Subsampling %d", ErrInvalidConfig, s.Subsampling)
	case s.FrameRate.Num < 0 || s.FrameRate.Den < 0 || (s.FrameRate.Num == 0) != (s.FrameRate.Den == 0):
		return fmt.Errorf("%w: FrameRate %d/%d", ErrInvalidConfig, s.FrameRate.Num, s.FrameRate.Den)
	}
	return nil
}

// Picture is one input picture. Samples are stored one per uint16 at the
// sequence bit depth; planes beyond the sequence's plane count are unused.
type Picture struct {
	Planes [3][]uint16
	Stride [3]int
	// DisplayIndex must count the pictures of the session from zero.
	DisplayIndex int64
	// CodingIndex is informational; the encoder chooses the coding order
	// from its GOP structure and reports it in Packet.CodingIndex.
	CodingIndex int64
	PTS         int64
}

// NewPicture allocates a zeroed picture for seq with tightly packed planes.
func NewPicture(seq SequenceParams) *Picture {
	p := &Picture{}
	for i := 0; i < seq.NumPlanes(); i++ {
		w, h := seq.PlaneSize(i)
		p.Planes[i] = make([]uint16, w*h)
		p.Stride[i] = w
	}
	return p
}

// PictureFromImage converts img to a picture for seq with full-range
// BT.601 coefficients, scaling it when its size differs.
func PictureFromImage(img image.Image, seq SequenceParams) (*Picture, error) {
	if err := seq.validate(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	rgba := image.NewRGBA64(image.Rect(0, 0, seq.Width, seq.Height))
	if b.Dx() == seq.Width && b.Dy() == seq.Height {
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(rgba, rgba.Bounds(), img, b, draw.Src, nil)
	}

	pic := NewPicture(seq)
	maxv := float64(int(1)<<uint(seq.BitDepth) - 1)
	scale := maxv / 0xffff
	half := float64(int(1) << uint(seq.BitDepth-1))
	clamp := func(v float64) uint16 {
		return uint16(math.Max(0, math.Min(maxv, math.Round(v))))
	}
	sx, sy := seq.Subsampling.shift()
	cw, _ := seq.PlaneSize(1)
	mono := seq.Subsampling == ChromaMono
	var cb, cr []float64
	var cnt []int
	if !mono {
		_, ch := seq.PlaneSize(1)
		cb = make([]float64, cw*ch)
		cr = make([]float64, cw*ch)
		cnt = make([]int, cw*ch)
	}
	for y := 0; y < seq.Height; y++ {
		for x := 0; x < seq.Width; x++ {
			c := rgba.RGBA64At(x, y)
			r, g, bl := float64(c.R)*scale, float64(c.G)*scale, float64(c.B)*scale
			pic.Planes[0][y*pic.Stride[0]+x] = clamp(0.299*r + 0.587*g + 0.114*bl)
			if mono {
				continue
			}
			i := (y>>sy)*cw + x>>sx
			cb[i] += -0.168736*r - 0.331264*g + 0.5*bl
			cr[i] += 0.5*r - 0.418688*g - 0.081312*bl
			cnt[i]++
		}
	}
	for i := range cnt {
		n := float64(cnt[i])
		pic.Planes[1][i] = clamp(half + cb[i]/n)
		pic.Planes[2][i] = clamp(half + cr[i]/n)
	}
	return pic, nil
}

// check validates the plane layout and sample range of p.
func (p *Picture) check(seq *SequenceParams) error {
	maxv := uint16(int(1)<<uint(seq.BitDepth) - 1)
	for i := 0; i < seq.NumPlanes(); i++ {
		w, h := seq.PlaneSize(i)
		if p.Stride[i] < w || len(p.Planes[i]) < p.Stride[i]*(h-1)+w {
			return fmt.Errorf("%w: plane %d holds %d samples at stride %d, want %dx%d", ErrFrameSize, i, len(p.Planes[i]), p.Stride[i], w, h)
		}
		for y := 0; y < h; y++ {
			for x, v := range p.Planes[i][y*p.Stride[i] : y*p.Stride[i]+w] {
				if v > maxv {
					return fmt.Errorf("%w: plane %d sample (%d,%d) = %d exceeds %d bits", ErrFrameSize, i, x, y, v, seq.BitDepth)
				}
			}
		}
	}
	return nil
}

// toFrame copies p into a frame at the coded size, edge-replicating the
// area beyond the picture.
func (p *Picture) toFrame(seq *SequenceParams) *frame.Frame {
	f := frame.New(seq.Width, seq.Height, seq.BitDepth, frame.Subsampling(seq.Subsampling), frame.RefBorder)
	for i := 0; i < f.NumPlanes; i++ {
		w, h := seq.PlaneSize(i)
		pl := &f.Planes[i]
		for y := 0; y < h; y++ {
			copy(pl.Row(0, y, w), p.Planes[i][y*p.Stride[i]:y*p.Stride[i]+w])
		}
	}
	f.FillCodedArea()
	f.ExtendBorders()
	return f
}

// pictureFromFrame copies the picture area of f.
func pictureFromFrame(f *frame.Frame, seq *SequenceParams) *Picture {
	p := NewPicture(*seq)
	for i := 0; i < f.NumPlanes; i++ {
		w, h := seq.PlaneSize(i)
		for y := 0; y < h; y++ {
			copy(p.Planes[i][y*w:(y+1)*w], f.Planes[i].Row(0, y, w))
		}
	}
	return p
}
