package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/urfave/cli/v2"

	"github.com/deepteams/av1/container/ivf"
	"github.com/deepteams/av1/internal/obu"
)

// streamInfo summarises a coded stream.
type streamInfo struct {
	Container string
	Seq       obu.SequenceHeader
	Frames    int
	Bytes     int64
	// Seconds is the duration covered by the frame timestamps.
	Seconds float64
}

func runInfo(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New(`info: missing input file`)
	}
	path := c.Args().First()
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var info *streamInfo
	if strings.EqualFold(filepath.Ext(path), ".mp4") {
		info, err = mp4Info(f)
	} else {
		info, err = ivfInfo(f)
	}
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "File:        %s\n", path)
	fmt.Fprintf(w, "Container:   %s\n", info.Container)
	fmt.Fprintf(w, "Profile:     %d\n", info.Seq.Profile)
	fmt.Fprintf(w, "Dimensions:  %d x %d\n", info.Seq.Width, info.Seq.Height)
	fmt.Fprintf(w, "Format:      %d-bit %s\n", info.Seq.BitDepth, info.Seq.Subsampling)
	fmt.Fprintf(w, "Frames:      %d\n", info.Frames)
	fmt.Fprintf(w, "Coded bytes: %d\n", info.Bytes)
	if info.Seconds > 0 {
		fmt.Fprintf(w, "Bitrate:     %.2f kbps\n", float64(info.Bytes)*8/info.Seconds/1000)
	}
	return nil
}

func sequenceHeader(data []byte) (obu.SequenceHeader, error) {
	units, err := obu.Split(data)
	if err != nil {
		return obu.SequenceHeader{}, err
	}
	for _, u := range units {
		if u.Type == obu.TypeSequenceHeader {
			return obu.ParseSequenceHeader(u.Payload)
		}
	}
	return obu.SequenceHeader{}, errors.New("no sequence header")
}

func ivfInfo(r io.Reader) (*streamInfo, error) {
	rd, err := ivf.NewReader(r)
	if err != nil {
		return nil, err
	}
	h := rd.Header()
	info := &streamInfo{Container: "IVF (" + h.FourCC + ")"}
	var first, last int64
	for {
		fr, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if info.Frames == 0 {
			if info.Seq, err = sequenceHeader(fr.Data); err != nil {
				return nil, err
			}
			first = fr.PTS
		}
		last = fr.PTS
		info.Frames++
		info.Bytes += int64(len(fr.Data))
	}
	if info.Frames == 0 {
		return nil, errors.New("no frames")
	}
	if h.TimebaseDen > 0 {
		// The final frame lasts the average spacing.
		span := float64(last-first) * float64(h.TimebaseNum) / float64(h.TimebaseDen)
		if info.Frames > 1 {
			span += span / float64(info.Frames-1)
		}
		info.Seconds = span
	}
	return info, nil
}

func mp4Info(r io.ReadSeeker) (*streamInfo, error) {
	f, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, err
	}
	if f.Init == nil || f.Init.Moov == nil || f.Init.Moov.Trak == nil {
		return nil, errors.New("no movie box")
	}
	trak := f.Init.Moov.Trak
	info := &streamInfo{Container: "MP4 (fragmented)"}
	found := false
	for _, c := range trak.Mdia.Minf.Stbl.Stsd.Children {
		vse, ok := c.(*mp4.VisualSampleEntryBox)
		if !ok {
			continue
		}
		for _, cc := range vse.Children {
			if b, ok := cc.(*mp4.Av1CBox); ok {
				if info.Seq, err = sequenceHeader(b.CodecConfRec.ConfigOBUs); err != nil {
					return nil, err
				}
				found = true
			}
		}
	}
	if !found {
		return nil, errors.New("no av1C configuration")
	}
	var trex *mp4.TrexBox
	if f.Init.Moov.Mvex != nil {
		for _, t := range f.Init.Moov.Mvex.Trexs {
			if t.TrackID == trak.Tkhd.TrackID {
				trex = t
			}
		}
	}
	var ticks uint64
	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			samples, err := frag.GetFullSamples(trex)
			if err != nil {
				return nil, err
			}
			for _, s := range samples {
				info.Frames++
				info.Bytes += int64(len(s.Data))
				ticks += uint64(s.Dur)
			}
		}
	}
	if ts := trak.Mdia.Mdhd.Timescale; ts > 0 {
		info.Seconds = float64(ticks) / float64(ts)
	}
	return info, nil
}
