package av1

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/deepteams/av1/internal/encoder"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/gop"
	"github.com/deepteams/av1/internal/logging"
	"github.com/deepteams/av1/internal/ratectl"
)

// Logger receives the session's log messages. Messages are format
// templates; implementations may translate them before formatting.
type Logger = logging.Logger

// FrameType is the coding type of the frame a packet displays.
type FrameType int

const (
	FrameKey FrameType = iota
	FrameInter
)

func (t FrameType) String() string {
	if t == FrameKey {
		return "key"
	}
	return "inter"
}

// Packet is one temporal unit: a temporal delimiter, the sequence header
// before key frames, the frames coded ahead of display since the previous
// unit and the frame this unit displays.
type Packet struct {
	Data []byte
	PTS  int64
	// DisplayIndex is the picture shown; CodingIndex is the position of
	// the frame that shows it in the coding order.
	DisplayIndex, CodingIndex int64
	FrameType                 FrameType
	// Shown reports that the unit displays a picture. Frames coded ahead
	// of display travel inside the unit of the next shown frame, so every
	// packet the encoder returns is shown.
	Shown bool
	// ShowExisting reports a unit that displays a frame coded earlier.
	ShowExisting bool
	// Keyframe reports a unit from which decoding can start.
	Keyframe bool
	QIndex   int
	// Bits is the size of Data in bits.
	Bits int
	// PSNR per plane and SSIM of the luma plane against the source.
	PSNR [3]float64
	SSIM float64
	// Recon is the decoder's output for this unit when the session was
	// created with WithRecon.
	Recon *Picture
}

// Packager is a container or transport sink for the packets of a session.
type Packager interface {
	WritePacket(Packet) error
	Close() error
}

// Stats summarizes a session.
type Stats struct {
	Frames      int // shown pictures
	CodedFrames int // coded frames, hidden ones included
	Bytes       int64
	// Bitrate in kilobits per second at the sequence frame rate.
	Bitrate    float64
	Recodes    int
	Overflows  int
	Underflows int
	PSNR       [3]float64
	SSIM       float64
}

// Option configures an Encoder beyond its EncoderOptions.
type Option func(*Encoder)

// WithLogger sends the session's log messages to l.
func WithLogger(l Logger) Option {
	return func(e *Encoder) { e.log = l }
}

// WithRecon attaches the reconstruction of every displayed picture to its
// packet.
func WithRecon() Option {
	return func(e *Encoder) { e.recon = true }
}

// Encoder is one encoding session. Its methods must not be called
// concurrently.
type Encoder struct {
	seq      SequenceParams
	opts     EncoderOptions
	log      Logger
	recon    bool
	enc      *encoder.Encoder
	next     int64
	statsOut string
}

// NewEncoder validates seq and opts and starts a session. A nil opts uses
// DefaultOptions.
func NewEncoder(seq SequenceParams, opts *EncoderOptions, options ...Option) (*Encoder, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := seq.validate(); err != nil {
		return nil, err
	}
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	e := &Encoder{seq: seq, opts: *opts, log: logging.NewNoop(), statsOut: opts.StatsOut}
	for _, o := range options {
		o(e)
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	enc, err := encoder.New(cfg)
	if err != nil {
		return nil, mapError(err)
	}
	e.enc = enc
	return e, nil
}

// config resolves the options into the session configuration.
func (e *Encoder) config() (encoder.Config, error) {
	o := &e.opts
	fr := e.seq.FrameRate
	if fr.Num == 0 {
		fr = Rational{30, 1}
	}
	cfg := encoder.Config{
		Width:           e.seq.Width,
		Height:          e.seq.Height,
		BitDepth:        e.seq.BitDepth,
		Subsampling:     frame.Subsampling(e.seq.Subsampling),
		FrameRateNum:    fr.Num,
		FrameRateDen:    fr.Den,
		Speed:           resolveSpeed(o.Speed),
		RateControl:     ratectl.Mode(o.RateControl),
		QIndex:          resolveQIndex(o.QIndex),
		MinQ:            o.MinQIndex,
		MaxQ:            resolveMaxQIndex(o.MaxQIndex),
		Bitrate:         o.TargetBitrate,
		BufferMs:        resolveBufferMs(o.BufferMs),
		RateLag:         resolveRateLag(o.RateLag),
		TileCols:        o.TileCols,
		TileRows:        o.TileRows,
		TileWorkers:     resolveWorkers(o.TileWorkers),
		FrameWorkers:    o.FrameWorkers,
		Lookahead:       o.Lookahead,
		InheritContexts: o.InheritContexts,
		DeltaQ:          o.DeltaQ,
		AllowHP:         o.AllowHighPrecisionMV,
		Deblock:         o.Deblock,
		CDEF:            o.CDEF,
		Restoration:     o.Restoration,
		KeepRecon:       e.recon,
		CollectStats:    true,
		Logger:          e.log,
		GOP: gop.Config{
			MiniGOP:     o.MiniGOP,
			KeyInterval: resolveKeyframeInterval(o.KeyframeInterval),
			RefFrames:   resolveRefFrames(o.RefFrames),
		},
	}
	if o.StatsIn != "" {
		f, err := os.Open(o.StatsIn)
		if err != nil {
			return cfg, fmt.Errorf("%w: stats: %w", ErrInvalidConfig, err)
		}
		defer f.Close()
		stats, err := ratectl.ReadStats(f)
		if err != nil {
			return cfg, mapError(err)
		}
		cfg.Stats = stats
	}
	return cfg, nil
}

// Encode submits the next picture in display order and returns the
// packets that became complete, in decoding order.
func (e *Encoder) Encode(ctx context.Context, pic *Picture) ([]Packet, error) {
	if pic == nil {
		return nil, fmt.Errorf("%w: nil picture", ErrFrameSize)
	}
	if pic.DisplayIndex != e.next {
		return nil, fmt.Errorf("%w: display index %d, want %d", ErrPictureOrder, pic.DisplayIndex, e.next)
	}
	if err := pic.check(&e.seq); err != nil {
		return nil, err
	}
	pkts, err := e.enc.Encode(ctx, encoder.Source{Frame: pic.toFrame(&e.seq), PTS: pic.PTS})
	if err == nil {
		e.next++
	}
	return e.packets(pkts), mapError(err)
}

// Flush codes the pictures still queued and returns the remaining packets.
// The session is closed afterwards; when StatsOut is set the first-pass
// statistics are written to it.
func (e *Encoder) Flush(ctx context.Context) ([]Packet, error) {
	pkts, err := e.enc.Flush(ctx)
	out := e.packets(pkts)
	if err != nil {
		return out, mapError(err)
	}
	if e.statsOut != "" {
		if err := e.writeStatsFile(e.statsOut); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (e *Encoder) writeStatsFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("av1: stats: %w", err)
	}
	if err := e.WriteStats(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteStats writes the first-pass statistics gathered so far to w. A
// second session over the same pictures reads them through StatsIn.
func (e *Encoder) WriteStats(w io.Writer) error {
	if err := ratectl.WriteStats(w, e.enc.FirstPassStats()); err != nil {
		return fmt.Errorf("av1: stats: %w", err)
	}
	return nil
}

// Close abandons the session. Frames in flight are finished and dropped.
func (e *Encoder) Close() error {
	e.enc.Close()
	return nil
}

// Stats returns the statistics of the packets returned so far.
func (e *Encoder) Stats() Stats {
	s := e.enc.Summary()
	st := Stats{
		Frames:      s.Frames,
		CodedFrames: s.Coded,
		Bytes:       s.Bytes,
		Recodes:     s.Recodes,
		Overflows:   s.Overflows,
		Underflows:  s.Underflows,
		PSNR:        s.PSNR,
		SSIM:        s.SSIM,
	}
	if s.Frames > 0 {
		fr := e.seq.FrameRate
		rate := 30.0
		if fr.Num > 0 {
			rate = float64(fr.Num) / float64(fr.Den)
		}
		st.Bitrate = float64(s.Bytes*8) * rate / float64(s.Frames) / 1000
	}
	return st
}

// SequenceHeader returns the sequence header unit. Decoders need it before
// the first packet; containers store it in their codec configuration.
func (e *Encoder) SequenceHeader() []byte {
	return append([]byte(nil), e.enc.SequenceHeader()...)
}

// Sequence returns the session's sequence parameters.
func (e *Encoder) Sequence() SequenceParams { return e.seq }

// Profile returns the bitstream profile the sequence header declares.
func (e *Encoder) Profile() int { return int(e.enc.Sequence().Profile) }

func (e *Encoder) packets(in []encoder.Packet) []Packet {
	if len(in) == 0 {
		return nil
	}
	out := make([]Packet, len(in))
	for i := range in {
		p := &in[i]
		out[i] = Packet{
			Data:         p.Data,
			PTS:          p.PTS,
			DisplayIndex: p.Display,
			CodingIndex:  p.Coding,
			FrameType:    FrameInter,
			Shown:        true,
			ShowExisting: p.ShowExisting,
			Keyframe:     p.Key,
			QIndex:       p.QIndex,
			Bits:         p.Bits,
			PSNR:         p.PSNR,
			SSIM:         p.SSIM,
		}
		if p.Type == gop.KeyFrame {
			out[i].FrameType = FrameKey
		}
		if p.Recon != nil {
			out[i].Recon = pictureFromFrame(p.Recon, &e.seq)
			out[i].Recon.DisplayIndex = p.Display
			out[i].Recon.CodingIndex = p.Coding
			out[i].Recon.PTS = p.PTS
		}
	}
	return out
}
