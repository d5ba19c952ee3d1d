package obu

import (
	"fmt"

	"github.com/deepteams/av1/internal/bitio"
	"github.com/deepteams/av1/internal/frame"
)

// SequenceHeader holds the parameters shared by every frame of a stream.
type SequenceHeader struct {
	Profile       uint8
	Width, Height int
	BitDepth      int
	Subsampling   frame.Subsampling
	// Timing is present when both are non-zero: TimeScale units per second,
	// TickDuration units per frame.
	TimeScale, TickDuration uint32
}

// ProfileFor returns the lowest profile that carries the given format.
func ProfileFor(bitDepth int, ss frame.Subsampling) uint8 {
	switch {
	case bitDepth == 12 || ss == frame.Subsampling422:
		return 2
	case ss == frame.Subsampling444:
		return 1
	}
	return 0
}

func bitDepthCode(bd int) (uint32, bool) {
	switch bd {
	case 8:
		return 0, true
	case 10:
		return 1, true
	case 12:
		return 2, true
	}
	return 0, false
}

func bitsFor(v int) int {
	n := 1
	for v >= 1<<uint(n) {
		n++
	}
	return n
}

// Marshal returns the sequence header payload.
func (s *SequenceHeader) Marshal() ([]byte, error) {
	code, ok := bitDepthCode(s.BitDepth)
	if !ok {
		return nil, fmt.Errorf("%w: bit depth %d", ErrSyntax, s.BitDepth)
	}
	if s.Width < 1 || s.Height < 1 || s.Width > 1<<16 || s.Height > 1<<16 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrSyntax, s.Width, s.Height)
	}
	bw := bitio.NewBitWriter(16)
	bw.WriteBits(uint32(s.Profile), 3)
	wb, hb := bitsFor(s.Width-1), bitsFor(s.Height-1)
	bw.WriteBits(uint32(wb-1), 4)
	bw.WriteBits(uint32(hb-1), 4)
	bw.WriteBits(uint32(s.Width-1), wb)
	bw.WriteBits(uint32(s.Height-1), hb)
	bw.WriteBits(code, 2)
	bw.WriteBits(uint32(s.Subsampling), 2)
	timing := s.TimeScale != 0 && s.TickDuration != 0
	bw.WriteBit(timing)
	if timing {
		bw.WriteBits(s.TickDuration, 32)
		bw.WriteBits(s.TimeScale, 32)
	}
	return bw.Bytes(), nil
}

// ParseSequenceHeader parses a sequence header payload.
func ParseSequenceHeader(data []byte) (SequenceHeader, error) {
	br := bitio.NewBitReader(data)
	var s SequenceHeader
	s.Profile = uint8(br.ReadBits(3))
	wb := int(br.ReadBits(4)) + 1
	hb := int(br.ReadBits(4)) + 1
	s.Width = int(br.ReadBits(wb)) + 1
	s.Height = int(br.ReadBits(hb)) + 1
	switch br.ReadBits(2) {
	case 0:
		s.BitDepth = 8
	case 1:
		s.BitDepth = 10
	case 2:
		s.BitDepth = 12
	default:
		return s, fmt.Errorf("%w: bit depth code 3", ErrSyntax)
	}
	s.Subsampling = frame.Subsampling(br.ReadBits(2))
	if br.ReadBit() {
		s.TickDuration = br.ReadBits(32)
		s.TimeScale = br.ReadBits(32)
	}
	if br.Err() != nil {
		return s, ErrTruncated
	}
	if s.Profile > 2 {
		return s, fmt.Errorf("%w: profile %d", ErrSyntax, s.Profile)
	}
	return s, nil
}

// NumPlanes returns the number of coded planes.
func (s *SequenceHeader) NumPlanes() int { return s.Subsampling.Planes() }
