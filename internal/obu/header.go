package obu

import (
	"fmt"

	"github.com/deepteams/av1/internal/bitio"
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/loopfilter"
)

// NumSlots is the number of reference slots a header can name.
const NumSlots = 8

// NoPrimaryRef marks a frame that starts from default contexts.
const NoPrimaryRef = 7

// MaxTiles bounds the tile columns and rows of a frame.
const MaxTiles = 64

// FrameHeader is the uncompressed header of a frame.
type FrameHeader struct {
	// ShowExisting frames only display the frame held in ExistingSlot.
	ShowExisting bool
	ExistingSlot int

	Key     bool
	Show    bool
	Refresh uint8 // slots that receive this frame
	// OrderHint is the display index modulo 256.
	OrderHint uint8
	// Refs names the slot of each active reference in list order.
	Refs []int
	// PrimaryRef is the index in Refs whose final contexts this frame
	// starts from, or NoPrimaryRef.
	PrimaryRef int

	BaseQ   int
	DeltaQ  bool
	AllowHP bool
	Filter  loopfilter.Params

	TileCols, TileRows int
}

// secValues lists the CDEF secondary strengths by two-bit code.
var secValues = [4]int{0, 1, 2, 4}

func secCode(s int) (uint32, bool) {
	for i, v := range secValues {
		if v == s {
			return uint32(i), true
		}
	}
	return 0, false
}

func tapBits(i int) int {
	return bitsFor(int(dsp.WienerTapMax[i] - dsp.WienerTapMin[i]))
}

// Marshal returns the header bits, byte aligned. numPlanes is the number
// of coded planes of the sequence.
func (h *FrameHeader) Marshal(numPlanes int) ([]byte, error) {
	bw := bitio.NewBitWriter(64)
	bw.WriteBit(h.ShowExisting)
	if h.ShowExisting {
		if h.ExistingSlot < 0 || h.ExistingSlot >= NumSlots {
			return nil, fmt.Errorf("%w: slot %d", ErrSyntax, h.ExistingSlot)
		}
		bw.WriteBits(uint32(h.ExistingSlot), 3)
		return bw.Bytes(), nil
	}
	bw.WriteBit(h.Key)
	bw.WriteBit(h.Show)
	bw.WriteBits(uint32(h.Refresh), 8)
	bw.WriteBits(uint32(h.OrderHint), 8)
	if !h.Key {
		if len(h.Refs) < 1 || len(h.Refs) > block.InterRefsPerFrame {
			return nil, fmt.Errorf("%w: %d references", ErrSyntax, len(h.Refs))
		}
		bw.WriteBits(uint32(len(h.Refs)-1), 3)
		for _, s := range h.Refs {
			if s < 0 || s >= NumSlots {
				return nil, fmt.Errorf("%w: slot %d", ErrSyntax, s)
			}
			bw.WriteBits(uint32(s), 3)
		}
		if h.PrimaryRef != NoPrimaryRef && (h.PrimaryRef < 0 || h.PrimaryRef >= len(h.Refs)) {
			return nil, fmt.Errorf("%w: primary reference %d", ErrSyntax, h.PrimaryRef)
		}
		bw.WriteBits(uint32(h.PrimaryRef), 3)
		bw.WriteBit(h.AllowHP)
	}
	if h.BaseQ < 0 || h.BaseQ > 255 {
		return nil, fmt.Errorf("%w: base q %d", ErrSyntax, h.BaseQ)
	}
	bw.WriteBits(uint32(h.BaseQ), 8)
	bw.WriteBit(h.DeltaQ)
	if err := writeFilter(bw, &h.Filter, numPlanes); err != nil {
		return nil, err
	}
	if h.TileCols < 1 || h.TileCols > MaxTiles || h.TileRows < 1 || h.TileRows > MaxTiles {
		return nil, fmt.Errorf("%w: %dx%d tiles", ErrSyntax, h.TileCols, h.TileRows)
	}
	bw.WriteBits(uint32(h.TileCols-1), 6)
	bw.WriteBits(uint32(h.TileRows-1), 6)
	return bw.Bytes(), nil
}

func writeFilter(bw *bitio.BitWriter, f *loopfilter.Params, numPlanes int) error {
	for i, l := range f.Deblock.Level {
		if l < 0 || l > loopfilter.MaxLevel {
			return fmt.Errorf("%w: deblock level %d = %d", ErrSyntax, i, l)
		}
		bw.WriteBits(uint32(l), 6)
	}
	bw.WriteBits(uint32(f.Deblock.Sharpness), 3)

	c := &f.CDEF
	bw.WriteBit(c.Enabled())
	if c.Enabled() {
		if c.Damping < 3 || c.Damping > 6 || c.Bits > loopfilter.MaxCDEFBits {
			return fmt.Errorf("%w: cdef damping %d bits %d", ErrSyntax, c.Damping, c.Bits)
		}
		bw.WriteBits(uint32(c.Damping-3), 2)
		bw.WriteBits(uint32(c.Bits), 2)
		for i := 0; i < 1<<c.Bits; i++ {
			for _, s := range []loopfilter.Strength{c.Y[i], c.UV[i]} {
				sc, ok := secCode(s.Sec)
				if !ok || s.Pri < 0 || s.Pri > 15 {
					return fmt.Errorf("%w: cdef strength %+v", ErrSyntax, s)
				}
				bw.WriteBits(uint32(s.Pri), 4)
				bw.WriteBits(sc, 2)
			}
		}
	}

	for p := 0; p < numPlanes; p++ {
		w := &f.LR[p]
		bw.WriteBit(w.Enabled)
		if !w.Enabled {
			continue
		}
		for _, taps := range []dsp.WienerTaps{w.H, w.V} {
			for i, t := range taps {
				if t < dsp.WienerTapMin[i] || t > dsp.WienerTapMax[i] {
					return fmt.Errorf("%w: wiener tap %d = %d", ErrSyntax, i, t)
				}
				bw.WriteBits(uint32(t-dsp.WienerTapMin[i]), tapBits(i))
			}
		}
	}
	return nil
}

// ParseFrameHeader parses a header written by Marshal and returns it with
// the number of bytes it occupies.
func ParseFrameHeader(data []byte, numPlanes int) (FrameHeader, int, error) {
	br := bitio.NewBitReader(data)
	var h FrameHeader
	h.ShowExisting = br.ReadBit()
	if h.ShowExisting {
		h.ExistingSlot = int(br.ReadBits(3))
		if br.Err() != nil {
			return h, 0, ErrTruncated
		}
		return h, br.BytePos(), nil
	}
	h.Key = br.ReadBit()
	h.Show = br.ReadBit()
	h.Refresh = uint8(br.ReadBits(8))
	h.OrderHint = uint8(br.ReadBits(8))
	h.PrimaryRef = NoPrimaryRef
	if !h.Key {
		n := int(br.ReadBits(3)) + 1
		h.Refs = make([]int, n)
		for i := range h.Refs {
			h.Refs[i] = int(br.ReadBits(3))
		}
		h.PrimaryRef = int(br.ReadBits(3))
		h.AllowHP = br.ReadBit()
		if n > block.InterRefsPerFrame || (h.PrimaryRef != NoPrimaryRef && h.PrimaryRef >= n) {
			return h, 0, fmt.Errorf("%w: %d references, primary %d", ErrSyntax, n, h.PrimaryRef)
		}
	}
	h.BaseQ = int(br.ReadBits(8))
	h.DeltaQ = br.ReadBit()

	f := &h.Filter
	for i := range f.Deblock.Level {
		f.Deblock.Level[i] = int(br.ReadBits(6))
	}
	f.Deblock.Sharpness = int(br.ReadBits(3))
	if br.ReadBit() {
		c := &f.CDEF
		c.Damping = int(br.ReadBits(2)) + 3
		c.Bits = int(br.ReadBits(2))
		if c.Bits > loopfilter.MaxCDEFBits {
			return h, 0, fmt.Errorf("%w: cdef bits %d", ErrSyntax, c.Bits)
		}
		for i := 0; i < 1<<c.Bits; i++ {
			for _, s := range []*loopfilter.Strength{&c.Y[i], &c.UV[i]} {
				s.Pri = int(br.ReadBits(4))
				s.Sec = secValues[br.ReadBits(2)]
			}
		}
	}
	for p := 0; p < numPlanes; p++ {
		w := &f.LR[p]
		w.Enabled = br.ReadBit()
		if !w.Enabled {
			continue
		}
		for _, taps := range []*dsp.WienerTaps{&w.H, &w.V} {
			for i := range taps {
				taps[i] = int32(br.ReadBits(tapBits(i))) + dsp.WienerTapMin[i]
				if taps[i] > dsp.WienerTapMax[i] {
					return h, 0, fmt.Errorf("%w: wiener tap %d = %d", ErrSyntax, i, taps[i])
				}
			}
		}
	}
	h.TileCols = int(br.ReadBits(6)) + 1
	h.TileRows = int(br.ReadBits(6)) + 1
	if br.Err() != nil {
		return h, 0, ErrTruncated
	}
	return h, br.BytePos(), nil
}

// RelativeDist returns the signed display distance from order hint b to a.
func RelativeDist(a, b uint8) int {
	return int(int8(a - b))
}
