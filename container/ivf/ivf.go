// Package ivf writes and reads IVF files: a 32-byte file header followed
// by one 12-byte frame header and payload per temporal unit.
package ivf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/deepteams/av1"
)

const (
	signature  = "DKIF"
	fourCC     = "AV01"
	headerSize = 32
	frameSize  = 12
	// maxFrame bounds a frame payload accepted by the reader.
	maxFrame = 256 << 20
)

// Common errors.
var (
	ErrSignature = errors.New("ivf: invalid signature")
	ErrTruncated = errors.New("ivf: truncated data")
	ErrTooLarge  = errors.New("ivf: frame too large")
)

// Header is the IVF file header. Timestamps count TimebaseNum/TimebaseDen
// seconds.
type Header struct {
	FourCC                   string
	Width, Height            int
	TimebaseDen, TimebaseNum int
	Frames                   int
}

func (h *Header) marshal() []byte {
	b := make([]byte, headerSize)
	copy(b, signature)
	binary.LittleEndian.PutUint16(b[4:], 0)
	binary.LittleEndian.PutUint16(b[6:], headerSize)
	copy(b[8:12], h.FourCC)
	binary.LittleEndian.PutUint16(b[12:], uint16(h.Width))
	binary.LittleEndian.PutUint16(b[14:], uint16(h.Height))
	binary.LittleEndian.PutUint32(b[16:], uint32(h.TimebaseDen))
	binary.LittleEndian.PutUint32(b[20:], uint32(h.TimebaseNum))
	binary.LittleEndian.PutUint32(b[24:], uint32(h.Frames))
	return b
}

// Writer is an av1.Packager that writes packets to an IVF file. Packet
// PTS values are written as they are, in timebase units.
type Writer struct {
	w      io.Writer
	hdr    Header
	frames int
	buf    [frameSize]byte
	err    error
}

var _ av1.Packager = (*Writer)(nil)

// NewWriter writes the file header for seq with a timebase of
// 1/FrameRate.Num seconds, so picture i has PTS i*FrameRate.Den.
// When w is an io.WriteSeeker the frame count is patched on Close.
func NewWriter(w io.Writer, seq av1.SequenceParams) (*Writer, error) {
	num := seq.FrameRate.Num
	if num == 0 {
		num = 30
	}
	return NewWriterTimebase(w, seq, 1, num)
}

// NewWriterTimebase writes the file header with an explicit timebase of
// num/den seconds.
func NewWriterTimebase(w io.Writer, seq av1.SequenceParams, num, den int) (*Writer, error) {
	if num <= 0 || den <= 0 {
		return nil, fmt.Errorf("ivf: invalid timebase %d/%d", num, den)
	}
	if seq.Width > 0xffff || seq.Height > 0xffff {
		return nil, fmt.Errorf("ivf: %dx%d exceeds the header fields", seq.Width, seq.Height)
	}
	iw := &Writer{w: w, hdr: Header{FourCC: fourCC, Width: seq.Width, Height: seq.Height, TimebaseDen: den, TimebaseNum: num}}
	if _, err := w.Write(iw.hdr.marshal()); err != nil {
		return nil, fmt.Errorf("ivf: write header: %w", err)
	}
	return iw, nil
}

// WritePacket appends one temporal unit.
func (w *Writer) WritePacket(p av1.Packet) error {
	if w.err != nil {
		return w.err
	}
	binary.LittleEndian.PutUint32(w.buf[0:], uint32(len(p.Data)))
	binary.LittleEndian.PutUint64(w.buf[4:], uint64(p.PTS))
	if _, err := w.w.Write(w.buf[:]); err != nil {
		w.err = fmt.Errorf("ivf: write frame header: %w", err)
		return w.err
	}
	if _, err := w.w.Write(p.Data); err != nil {
		w.err = fmt.Errorf("ivf: write frame: %w", err)
		return w.err
	}
	w.frames++
	return nil
}

// Frames returns the number of packets written.
func (w *Writer) Frames() int { return w.frames }

// Close patches the frame count when the destination can seek. It does
// not close the destination.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	ws, ok := w.w.(io.WriteSeeker)
	if !ok {
		return nil
	}
	end, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("ivf: %w", err)
	}
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(w.frames))
	if _, err := ws.Seek(24, io.SeekStart); err != nil {
		return fmt.Errorf("ivf: %w", err)
	}
	if _, err := ws.Write(n[:]); err != nil {
		return fmt.Errorf("ivf: %w", err)
	}
	if _, err := ws.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("ivf: %w", err)
	}
	return nil
}

// Frame is one frame record of a file.
type Frame struct {
	PTS  int64
	Data []byte
}

// Reader reads frames from an IVF file.
type Reader struct {
	r   io.Reader
	hdr Header
	buf [frameSize]byte
}

// NewReader parses the file header.
func NewReader(r io.Reader) (*Reader, error) {
	b := make([]byte, headerSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrTruncated
	}
	if string(b[:4]) != signature {
		return nil, ErrSignature
	}
	hlen := int(binary.LittleEndian.Uint16(b[6:]))
	if hlen < headerSize {
		return nil, fmt.Errorf("%w: header size %d", ErrSignature, hlen)
	}
	if _, err := io.CopyN(io.Discard, r, int64(hlen-headerSize)); err != nil {
		return nil, ErrTruncated
	}
	return &Reader{r: r, hdr: Header{
		FourCC:      string(b[8:12]),
		Width:       int(binary.LittleEndian.Uint16(b[12:])),
		Height:      int(binary.LittleEndian.Uint16(b[14:])),
		TimebaseDen: int(binary.LittleEndian.Uint32(b[16:])),
		TimebaseNum: int(binary.LittleEndian.Uint32(b[20:])),
		Frames:      int(binary.LittleEndian.Uint32(b[24:])),
	}}, nil
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.hdr }

// Next returns the next frame, or io.EOF after the last.
func (r *Reader) Next() (Frame, error) {
	if _, err := io.ReadFull(r.r, r.buf[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, ErrTruncated
	}
	n := binary.LittleEndian.Uint32(r.buf[0:])
	if n > maxFrame {
		return Frame{}, ErrTooLarge
	}
	// The buffer grows with the data actually read.
	var b bytes.Buffer
	if _, err := io.CopyN(&b, r.r, int64(n)); err != nil {
		return Frame{}, ErrTruncated
	}
	return Frame{PTS: int64(binary.LittleEndian.Uint64(r.buf[4:])), Data: b.Bytes()}, nil
}
