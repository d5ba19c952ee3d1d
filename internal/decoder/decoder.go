// Package decoder reconstructs pictures from the encoder's temporal units.
// It mirrors the encoder's syntax and reconstruction exactly and serves as
// the conformance oracle of the round-trip tests.
package decoder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/deepteams/av1/internal/bitio"
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/loopfilter"
	"github.com/deepteams/av1/internal/obu"
	"github.com/deepteams/av1/internal/syntax"
)

// ErrCorrupt is returned for data that does not form a valid stream.
var ErrCorrupt = errors.New("decoder: corrupt stream")

// Picture is a displayed frame. Frame must not be modified: later frames
// may predict from it.
type Picture struct {
	Frame     *frame.Frame
	OrderHint uint8
	Key       bool
	// ShowExisting reports a picture decoded earlier and shown now.
	ShowExisting bool
}

type slot struct {
	frame *frame.Frame
	hint  uint8
	key   bool
	store *cdf.Store
}

// Decoder holds the sequence parameters and the reference slots.
type Decoder struct {
	// Workers bounds the tiles decoded concurrently; 0 decodes serially.
	Workers int

	seq   *obu.SequenceHeader
	slots [obu.NumSlots]*slot
}

// New returns a decoder awaiting a sequence header.
func New() *Decoder { return &Decoder{} }

// Sequence returns the active sequence header, or nil before the first.
func (d *Decoder) Sequence() *obu.SequenceHeader { return d.seq }

// Decode decodes one temporal unit and returns the pictures it shows.
func (d *Decoder) Decode(tu []byte) ([]Picture, error) {
	units, err := obu.Split(tu)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	var out []Picture
	for _, u := range units {
		switch u.Type {
		case obu.TypeTemporalDelimiter, obu.TypePadding:
		case obu.TypeSequenceHeader:
			s, err := obu.ParseSequenceHeader(u.Payload)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
			if d.seq == nil || *d.seq != s {
				d.seq = &s
				d.slots = [obu.NumSlots]*slot{}
			}
		case obu.TypeFrameHeader:
			if err := d.need(); err != nil {
				return nil, err
			}
			h, _, err := obu.ParseFrameHeader(u.Payload, d.seq.NumPlanes())
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
			if !h.ShowExisting {
				return nil, fmt.Errorf("%w: lone frame header", ErrCorrupt)
			}
			s := d.slots[h.ExistingSlot]
			if s == nil {
				return nil, fmt.Errorf("%w: slot %d is empty", ErrCorrupt, h.ExistingSlot)
			}
			out = append(out, Picture{Frame: s.frame, OrderHint: s.hint, Key: s.key, ShowExisting: true})
		case obu.TypeFrame:
			if err := d.need(); err != nil {
				return nil, err
			}
			pic, shown, err := d.decodeFrame(u.Payload)
			if err != nil {
				return nil, err
			}
			if shown {
				out = append(out, pic)
			}
		default:
			return nil, fmt.Errorf("%w: unexpected %s unit", ErrCorrupt, u.Type)
		}
	}
	return out, nil
}

func (d *Decoder) need() error {
	if d.seq == nil {
		return fmt.Errorf("%w: frame before sequence header", ErrCorrupt)
	}
	return nil
}

func (d *Decoder) decodeFrame(data []byte) (Picture, bool, error) {
	seq := d.seq
	h, n, err := obu.ParseFrameHeader(data, seq.NumPlanes())
	if err != nil {
		return Picture{}, false, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if h.ShowExisting {
		return Picture{}, false, fmt.Errorf("%w: show-existing header in a frame unit", ErrCorrupt)
	}
	f := frame.New(seq.Width, seq.Height, seq.BitDepth, seq.Subsampling, frame.RefBorder)
	fi := &syntax.FrameInfo{
		Width:       f.CodedWidth,
		Height:      f.CodedHeight,
		BitDepth:    seq.BitDepth,
		Subsampling: seq.Subsampling,
		NumPlanes:   f.NumPlanes,
		Intra:       h.Key,
		AllowHP:     h.AllowHP,
		DeltaQ:      h.DeltaQ,
		BaseQ:       h.BaseQ,
		RefCount:    len(h.Refs),
	}
	h.Filter.FrameInfo(fi)
	for i, s := range h.Refs {
		ref := d.slots[s]
		if ref == nil {
			return Picture{}, false, fmt.Errorf("%w: reference slot %d is empty", ErrCorrupt, s)
		}
		fi.RefDist[i] = obu.RelativeDist(h.OrderHint, ref.hint)
		fi.Refs[i] = ref.frame
	}
	start := cdf.NewStore()
	if h.PrimaryRef != obu.NoPrimaryRef {
		if h.PrimaryRef >= len(h.Refs) {
			return Picture{}, false, fmt.Errorf("%w: primary reference %d", ErrCorrupt, h.PrimaryRef)
		}
		start = d.slots[h.Refs[h.PrimaryRef]].store
	}

	g := block.NewGrid(fi.Width, fi.Height)
	tiles := syntax.Tiles(fi, g, h.TileCols, h.TileRows)
	if len(tiles) != h.TileCols*h.TileRows {
		return Picture{}, false, fmt.Errorf("%w: %dx%d tiles in a %dx%d frame", ErrCorrupt, h.TileCols, h.TileRows, seq.Width, seq.Height)
	}
	payloads, err := obu.SplitTiles(data[n:], len(tiles))
	if err != nil {
		return Picture{}, false, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	m := loopfilter.NewMap(fi.Width, fi.Height)
	stores := make([]*cdf.Store, len(tiles))
	errs := make([]error, len(tiles))
	decode := func(i int) {
		stores[i], errs[i] = decodeTile(&tiles[i], payloads[i], start.Clone(), f, m)
	}
	if d.Workers <= 1 || len(tiles) == 1 {
		for i := range tiles {
			decode(i)
		}
	} else {
		sem := make(chan struct{}, d.Workers)
		var wg sync.WaitGroup
		for i := range tiles {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				decode(i)
				<-sem
			}(i)
		}
		wg.Wait()
	}
	for i, err := range errs {
		if err != nil {
			return Picture{}, false, fmt.Errorf("%w: tile %d: %w", ErrCorrupt, i, err)
		}
	}

	loopfilter.Apply(f, g, &h.Filter, m)
	s := &slot{frame: f, hint: h.OrderHint, key: h.Key, store: stores[0].Frozen()}
	for i := range d.slots {
		if h.Refresh&(1<<i) != 0 {
			d.slots[i] = s
		}
	}
	return Picture{Frame: f, OrderHint: h.OrderHint, Key: h.Key}, h.Show, nil
}

// decodeTile parses and reconstructs one tile, recording its superblock
// side information in m. It returns the tile's final contexts.
func decodeTile(t *syntax.Tile, data []byte, store *cdf.Store, out *frame.Frame, m *loopfilter.Map) (end *cdf.Store, err error) {
	defer func() {
		// Malformed symbols can drive indices out of range.
		if r := recover(); r != nil {
			end, err = nil, fmt.Errorf("malformed tile: %v", r)
		}
	}()
	fi := t.Frame
	r := &syntax.Reader{R: bitio.NewSymbolReader(data), Store: store}
	var s syntax.Scratch
	const sb = block.SuperblockSize
	sbCols := (fi.Width + sb - 1) / sb
	prevQ := fi.BaseQ
	rect := t.Rect()
	for y := rect.Y; y < rect.Y+rect.H; y += sb {
		for x := rect.X; x < rect.X+rect.W; x += sb {
			var info syntax.SuperblockInfo
			syntax.CodeSuperblockInfo(r, fi, prevQ, &info)
			prevQ = info.QIndex
			m.SetSuperblock((y/sb)*sbCols+x/sb, &info)
			q := info.QIndex
			err := syntax.WalkTree(r, t, x, y, sb, nil, func(bx, by int, size block.Size) error {
				b := &syntax.Block{X: bx, Y: by, Size: size, QIndex: q}
				syntax.CodeBlock(r, t, b)
				return t.Reconstruct(out, b, &s)
			})
			if err != nil {
				return nil, err
			}
		}
	}
	if r.R.Exhausted() {
		return nil, bitio.ErrUnexpectedEOF
	}
	return r.Store, nil
}
