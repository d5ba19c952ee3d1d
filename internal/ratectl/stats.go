package ratectl

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/deepteams/av1/internal/gop"
)

// FrameStats is the first-pass record of one plan entry.
type FrameStats struct {
	Display      int64
	Type         gop.FrameType
	Level        int
	Show         bool
	ShowExisting bool
	QIndex       int
	Bits         int
	SSE          uint64
}

// complexity is the frame's bits scaled back to a unit quantizer step.
func (s *FrameStats) complexity(bd int) float64 {
	if s.ShowExisting {
		return 0
	}
	c := Controller{cfg: Config{BitDepth: bd}}
	return float64(max(s.Bits, 1)) * c.step(s.QIndex)
}

const statsMagic = "AV1STAT1"

// ErrStatsFormat reports a statistics file this version cannot read.
var ErrStatsFormat = errors.New("ratectl: bad statistics file")

type statsRecord struct {
	Display int64
	Flags   uint8 // bit 0 key, 1 shown, 2 show-existing
	Level   uint8
	QIndex  uint8
	_       uint8
	Bits    uint32
	SSE     uint64
}

// WriteStats writes the records zstd-compressed to w.
func WriteStats(w io.Writer, stats []FrameStats) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("ratectl: zstd encoder: %w", err)
	}
	bw := bufio.NewWriter(enc)
	bw.WriteString(statsMagic)
	binary.Write(bw, binary.LittleEndian, uint32(len(stats)))
	for _, s := range stats {
		r := statsRecord{Display: s.Display, Level: uint8(s.Level), QIndex: uint8(s.QIndex), Bits: uint32(s.Bits), SSE: s.SSE}
		if s.Type == gop.KeyFrame {
			r.Flags |= 1
		}
		if s.Show {
			r.Flags |= 2
		}
		if s.ShowExisting {
			r.Flags |= 4
		}
		if err := binary.Write(bw, binary.LittleEndian, &r); err != nil {
			enc.Close()
			return fmt.Errorf("ratectl: writing stats: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("ratectl: writing stats: %w", err)
	}
	return enc.Close()
}

// ReadStats reads a file written by WriteStats.
func ReadStats(r io.Reader) ([]FrameStats, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("ratectl: zstd decoder: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReader(dec)
	magic := make([]byte, len(statsMagic))
	if _, err := io.ReadFull(br, magic); err != nil || string(magic) != statsMagic {
		return nil, ErrStatsFormat
	}
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, ErrStatsFormat
	}
	if n > 1<<24 {
		return nil, fmt.Errorf("%w: %d records", ErrStatsFormat, n)
	}
	out := make([]FrameStats, 0, n)
	for i := uint32(0); i < n; i++ {
		var rec statsRecord
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrStatsFormat, i, err)
		}
		s := FrameStats{
			Display:      rec.Display,
			Type:         gop.InterFrame,
			Level:        int(rec.Level),
			Show:         rec.Flags&2 != 0,
			ShowExisting: rec.Flags&4 != 0,
			QIndex:       int(rec.QIndex),
			Bits:         int(rec.Bits),
			SSE:          rec.SSE,
		}
		if rec.Flags&1 != 0 {
			s.Type = gop.KeyFrame
		}
		out = append(out, s)
	}
	return out, nil
}
