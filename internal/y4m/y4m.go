// Package y4m reads and writes YUV4MPEG2 streams: a text header line,
// then one "FRAME" line followed by the raw planes per picture. Samples
// above 8 bits are stored as 16-bit little-endian words.
package y4m

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/deepteams/av1/internal/frame"
)

const (
	magic      = "YUV4MPEG2"
	frameMagic = "FRAME"
	maxLine    = 1 << 12
	maxSide    = 1 << 16
)

var (
	// ErrFormat is returned for a malformed header or frame line.
	ErrFormat = errors.New("y4m: malformed stream")
	// ErrUnsupported is returned for a colour space this package does
	// not handle, such as interlaced or alpha streams.
	ErrUnsupported = errors.New("y4m: unsupported stream")
)

// Header describes a stream.
type Header struct {
	Width, Height int
	BitDepth      int
	Subsampling   frame.Subsampling
	// FrameRate is Num/Den pictures per second; zero when absent.
	FrameRateNum, FrameRateDen int
}

// PlaneSize returns the dimensions of plane p.
func (h *Header) PlaneSize(p int) (w, hgt int) {
	if p == 0 {
		return h.Width, h.Height
	}
	sx, sy := h.Subsampling.Shift()
	return (h.Width + 1<<uint(sx) - 1) >> uint(sx), (h.Height + 1<<uint(sy) - 1) >> uint(sy)
}

func (h *Header) sampleBytes() int {
	if h.BitDepth > 8 {
		return 2
	}
	return 1
}

// colorspace returns the C tag of h.
func (h *Header) colorspace() string {
	var s string
	switch h.Subsampling {
	case frame.Subsampling420:
		s = "420"
		if h.BitDepth == 8 {
			s = "420jpeg"
		}
	case frame.Subsampling422:
		s = "422"
	case frame.Subsampling444:
		s = "444"
	default:
		s = "mono"
	}
	if h.BitDepth > 8 {
		s += "p" + strconv.Itoa(h.BitDepth)
	}
	return s
}

func parseColorspace(tag string, h *Header) error {
	base := tag
	h.BitDepth = 8
	for _, bd := range []int{10, 12} {
		if s, ok := strings.CutSuffix(tag, "p"+strconv.Itoa(bd)); ok {
			base, h.BitDepth = s, bd
		}
	}
	switch base {
	case "420", "420jpeg", "420paldv", "420mpeg2":
		h.Subsampling = frame.Subsampling420
	case "422":
		h.Subsampling = frame.Subsampling422
	case "444":
		h.Subsampling = frame.Subsampling444
	case "mono":
		h.Subsampling = frame.SubsamplingMono
	default:
		return fmt.Errorf("%w: colour space %s", ErrUnsupported, tag)
	}
	return nil
}

// Picture holds the planes of one frame, tightly packed.
type Picture struct {
	Planes [3][]uint16
	Stride [3]int
}

// Reader reads pictures from a stream.
type Reader struct {
	r      *bufio.Reader
	hdr    Header
	buf    []byte
	frames int
}

// NewReader parses the stream header.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	line, err := readLine(br)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != magic {
		return nil, fmt.Errorf("%w: missing %s signature", ErrFormat, magic)
	}
	h := Header{BitDepth: 8, Subsampling: frame.Subsampling420}
	for _, f := range fields[1:] {
		key, val := f[0], f[1:]
		switch key {
		case 'W':
			h.Width, err = strconv.Atoi(val)
		case 'H':
			h.Height, err = strconv.Atoi(val)
		case 'F':
			num, den, ok := strings.Cut(val, ":")
			if !ok {
				return nil, fmt.Errorf("%w: frame rate %s", ErrFormat, val)
			}
			if h.FrameRateNum, err = strconv.Atoi(num); err == nil {
				h.FrameRateDen, err = strconv.Atoi(den)
			}
		case 'I':
			if val != "p" && val != "?" {
				return nil, fmt.Errorf("%w: interlacing %s", ErrUnsupported, val)
			}
		case 'C':
			err = parseColorspace(val, &h)
		}
		if err != nil {
			if errors.Is(err, ErrUnsupported) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: field %s", ErrFormat, f)
		}
	}
	if h.Width < 1 || h.Height < 1 || h.Width > maxSide || h.Height > maxSide {
		return nil, fmt.Errorf("%w: size %dx%d", ErrFormat, h.Width, h.Height)
	}
	return &Reader{r: br, hdr: h}, nil
}

// Header returns the stream header.
func (r *Reader) Header() Header { return r.hdr }

// Read reads the next picture. It returns io.EOF after the last one.
func (r *Reader) Read() (*Picture, error) {
	line, err := readLine(r.r)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, frameMagic) {
		return nil, fmt.Errorf("%w: frame %d header %q", ErrFormat, r.frames, line)
	}
	pic := &Picture{}
	bs := r.hdr.sampleBytes()
	for p := 0; p < r.hdr.Subsampling.Planes(); p++ {
		w, h := r.hdr.PlaneSize(p)
		n := w * h * bs
		if cap(r.buf) < n {
			r.buf = make([]byte, n)
		}
		buf := r.buf[:n]
		if _, err := io.ReadFull(r.r, buf); err != nil {
			return nil, fmt.Errorf("%w: frame %d plane %d: %v", ErrFormat, r.frames, p, err)
		}
		pic.Planes[p] = make([]uint16, w*h)
		pic.Stride[p] = w
		if bs == 1 {
			for i, b := range buf {
				pic.Planes[p][i] = uint16(b)
			}
		} else {
			for i := range pic.Planes[p] {
				pic.Planes[p][i] = uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
			}
		}
	}
	r.frames++
	return pic, nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadSlice('\n')
	if err == bufio.ErrBufferFull || len(line) > maxLine {
		return "", fmt.Errorf("%w: header line too long", ErrFormat)
	}
	if err == io.EOF && len(line) == 0 {
		return "", io.EOF
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return strings.TrimSuffix(string(line), "\n"), nil
}

// Writer writes pictures to a stream.
type Writer struct {
	w   *bufio.Writer
	hdr Header
	buf []byte
}

// NewWriter writes the stream header for h.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	bw := bufio.NewWriter(w)
	num, den := h.FrameRateNum, h.FrameRateDen
	if num == 0 || den == 0 {
		num, den = 30, 1
	}
	_, err := fmt.Fprintf(bw, "%s W%d H%d F%d:%d Ip A1:1 C%s\n", magic, h.Width, h.Height, num, den, h.colorspace())
	if err != nil {
		return nil, err
	}
	return &Writer{w: bw, hdr: h}, nil
}

// Write writes one picture whose planes have the given strides.
func (w *Writer) Write(planes [3][]uint16, stride [3]int) error {
	if _, err := w.w.WriteString(frameMagic + "\n"); err != nil {
		return err
	}
	bs := w.hdr.sampleBytes()
	for p := 0; p < w.hdr.Subsampling.Planes(); p++ {
		pw, ph := w.hdr.PlaneSize(p)
		w.buf = w.buf[:0]
		for y := 0; y < ph; y++ {
			row := planes[p][y*stride[p] : y*stride[p]+pw]
			for _, v := range row {
				if bs == 1 {
					w.buf = append(w.buf, byte(v))
				} else {
					w.buf = append(w.buf, byte(v), byte(v>>8))
				}
			}
		}
		if _, err := w.w.Write(w.buf); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered data.
func (w *Writer) Flush() error { return w.w.Flush() }
