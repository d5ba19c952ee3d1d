package main

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/deepteams/av1"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/y4m"
)

// source yields the pictures of one input.
type source interface {
	Sequence() av1.SequenceParams
	// Next returns io.EOF after the last picture.
	Next() (*av1.Picture, error)
	Close() error
}

func openSource(c *cli.Context) (source, error) {
	args := c.Args().Slice()
	if len(args) == 1 && (args[0] == "-" || strings.EqualFold(filepath.Ext(args[0]), ".y4m")) {
		return openY4M(args[0])
	}
	fr, err := parseRate(c.String("fps"))
	if err != nil {
		return nil, err
	}
	ss, err := parseSubsampling(c.String("subsampling"))
	if err != nil {
		return nil, err
	}
	return openImages(args, c.Int("bit-depth"), ss, fr)
}

func parseRate(s string) (av1.Rational, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		den = "1"
	}
	n, err1 := strconv.Atoi(num)
	d, err2 := strconv.Atoi(den)
	if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
		return av1.Rational{}, fmt.Errorf("invalid frame rate %q", s)
	}
	return av1.Rational{Num: n, Den: d}, nil
}

func parseSubsampling(s string) (av1.ChromaSubsampling, error) {
	switch strings.ToLower(s) {
	case "420":
		return av1.Chroma420, nil
	case "422":
		return av1.Chroma422, nil
	case "444":
		return av1.Chroma444, nil
	case "mono", "400":
		return av1.ChromaMono, nil
	}
	return 0, fmt.Errorf("unknown subsampling %q (use 420, 422, 444 or mono)", s)
}

func y4mHeader(seq av1.SequenceParams) y4m.Header {
	return y4m.Header{
		Width:        seq.Width,
		Height:       seq.Height,
		BitDepth:     seq.BitDepth,
		Subsampling:  frame.Subsampling(seq.Subsampling),
		FrameRateNum: seq.FrameRate.Num,
		FrameRateDen: seq.FrameRate.Den,
	}
}

type y4mSource struct {
	c   io.Closer
	r   *y4m.Reader
	seq av1.SequenceParams
}

func openY4M(path string) (*y4mSource, error) {
	var rc io.ReadCloser = io.NopCloser(os.Stdin)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		rc = f
	}
	r, err := y4m.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	h := r.Header()
	seq := av1.SequenceParams{
		Width:       h.Width,
		Height:      h.Height,
		BitDepth:    h.BitDepth,
		Subsampling: av1.ChromaSubsampling(h.Subsampling),
		FrameRate:   av1.Rational{Num: h.FrameRateNum, Den: h.FrameRateDen},
	}
	if seq.FrameRate.Num <= 0 || seq.FrameRate.Den <= 0 {
		seq.FrameRate = av1.Rational{Num: 30, Den: 1}
	}
	return &y4mSource{c: rc, r: r, seq: seq}, nil
}

func (s *y4mSource) Sequence() av1.SequenceParams { return s.seq }

func (s *y4mSource) Next() (*av1.Picture, error) {
	p, err := s.r.Read()
	if err != nil {
		return nil, err
	}
	return &av1.Picture{Planes: p.Planes, Stride: p.Stride}, nil
}

func (s *y4mSource) Close() error { return s.c.Close() }

// imageSource codes each still image as one picture. Every image is
// scaled to the size of the first.
type imageSource struct {
	paths []string
	first image.Image
	seq   av1.SequenceParams
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

func openImages(paths []string, bitDepth int, ss av1.ChromaSubsampling, fr av1.Rational) (*imageSource, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input images")
	}
	img, err := decodeImage(paths[0])
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &imageSource{
		paths: paths[1:],
		first: img,
		seq:   av1.SequenceParams{Width: b.Dx(), Height: b.Dy(), BitDepth: bitDepth, Subsampling: ss, FrameRate: fr},
	}, nil
}

func (s *imageSource) Sequence() av1.SequenceParams { return s.seq }

func (s *imageSource) Next() (*av1.Picture, error) {
	img := s.first
	s.first = nil
	if img == nil {
		if len(s.paths) == 0 {
			return nil, io.EOF
		}
		var err error
		if img, err = decodeImage(s.paths[0]); err != nil {
			return nil, err
		}
		s.paths = s.paths[1:]
	}
	return av1.PictureFromImage(img, s.seq)
}

func (s *imageSource) Close() error { return nil }
