// Package mp4 packages encoder output as fragmented MP4 with an av01
// sample entry. Each key frame starts a new movie fragment.
package mp4

import (
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/av1"
	"github.com/Eyevinn/mp4ff/mp4"

	av1enc "github.com/deepteams/av1"
)

const trackID = 1

// Header describes the coded sequence. Encoder.SequenceHeader and
// Encoder.Profile supply the first two fields.
type Header struct {
	ConfigOBUs []byte
	Profile    int
	// Timescale is the number of PTS ticks per second; zero uses
	// FrameRate.Num.
	Timescale uint32
	// SampleDuration is the duration of the final sample in ticks; zero
	// uses FrameRate.Den.
	SampleDuration uint32
}

// ErrNoSequenceHeader is returned when the header carries no OBUs.
var ErrNoSequenceHeader = errors.New("mp4: missing sequence header")

// Writer is an av1.Packager writing a fragmented MP4 stream.
type Writer struct {
	w       io.Writer
	dur     uint32
	pending []av1enc.Packet
	seqNum  uint32
	samples int
	err     error
}

var _ av1enc.Packager = (*Writer)(nil)

// NewWriter writes the ftyp and moov boxes.
func NewWriter(w io.Writer, seq av1enc.SequenceParams, h Header) (*Writer, error) {
	if len(h.ConfigOBUs) == 0 {
		return nil, ErrNoSequenceHeader
	}
	if seq.Width > 0xffff || seq.Height > 0xffff {
		return nil, fmt.Errorf("mp4: %dx%d exceeds the sample entry fields", seq.Width, seq.Height)
	}
	fr := seq.FrameRate
	if fr.Num <= 0 || fr.Den <= 0 {
		fr = av1enc.Rational{Num: 30, Den: 1}
	}
	if h.Timescale == 0 {
		h.Timescale = uint32(fr.Num)
	}
	if h.SampleDuration == 0 {
		h.SampleDuration = uint32(fr.Den)
	}

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(h.Timescale, "video", "und")
	trak := init.Moov.Trak
	entry := mp4.CreateVisualSampleEntryBox("av01", uint16(seq.Width), uint16(seq.Height), configBox(seq, h))
	trak.Mdia.Minf.Stbl.Stsd.AddChild(entry)
	trak.Tkhd.Width = mp4.Fixed32(seq.Width << 16)
	trak.Tkhd.Height = mp4.Fixed32(seq.Height << 16)

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6", "av01", "mp41"})
	if err := ftyp.Encode(w); err != nil {
		return nil, fmt.Errorf("mp4: encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(w); err != nil {
		return nil, fmt.Errorf("mp4: encode moov: %w", err)
	}
	return &Writer{w: w, dur: h.SampleDuration}, nil
}

func configBox(seq av1enc.SequenceParams, h Header) *mp4.Av1CBox {
	rec := av1.CodecConfRec{
		Version:      1,
		SeqProfile:   byte(h.Profile),
		SeqLevelIdx0: 31, // unconstrained
		ConfigOBUs:   h.ConfigOBUs,
	}
	if seq.BitDepth > 8 {
		rec.HighBitdepth = 1
	}
	if seq.BitDepth == 12 {
		rec.TwelveBit = 1
	}
	switch seq.Subsampling {
	case av1enc.ChromaMono:
		rec.MonoChrome = 1
		rec.ChromaSubsamplingX, rec.ChromaSubsamplingY = 1, 1
	case av1enc.Chroma420:
		rec.ChromaSubsamplingX, rec.ChromaSubsamplingY = 1, 1
	case av1enc.Chroma422:
		rec.ChromaSubsamplingX = 1
	}
	return &mp4.Av1CBox{CodecConfRec: rec}
}

// WritePacket queues a temporal unit. Samples are written a fragment at
// a time since a sample's duration is known only once the next arrives.
func (w *Writer) WritePacket(p av1enc.Packet) error {
	if w.err != nil {
		return w.err
	}
	if p.Keyframe && len(w.pending) > 0 {
		if err := w.flush(uint32(p.PTS - w.pending[len(w.pending)-1].PTS)); err != nil {
			return err
		}
	}
	w.pending = append(w.pending, p)
	return nil
}

// flush writes the queued packets as one fragment. last is the duration
// of the final sample.
func (w *Writer) flush(last uint32) error {
	w.seqNum++
	frag, err := mp4.CreateFragment(w.seqNum, trackID)
	if err != nil {
		w.err = fmt.Errorf("mp4: create fragment: %w", err)
		return w.err
	}
	for i, p := range w.pending {
		dur := last
		if i+1 < len(w.pending) {
			dur = uint32(w.pending[i+1].PTS - p.PTS)
		}
		if dur == 0 {
			dur = w.dur
		}
		flags := mp4.NonSyncSampleFlags
		if p.Keyframe {
			flags = mp4.SyncSampleFlags
		}
		frag.AddFullSample(mp4.FullSample{
			Sample:     mp4.Sample{Flags: flags, Size: uint32(len(p.Data)), Dur: dur},
			DecodeTime: uint64(p.PTS),
			Data:       p.Data,
		})
	}
	if err := frag.Encode(w.w); err != nil {
		w.err = fmt.Errorf("mp4: encode fragment: %w", err)
		return w.err
	}
	w.samples += len(w.pending)
	w.pending = w.pending[:0]
	return nil
}

// Samples returns the number of samples written so far.
func (w *Writer) Samples() int { return w.samples }

// Close writes the final fragment. It does not close the destination.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if len(w.pending) == 0 {
		return nil
	}
	return w.flush(w.dur)
}
