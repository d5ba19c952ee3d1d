package encoder

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/gop"
	"github.com/deepteams/av1/internal/logging"
	"github.com/deepteams/av1/internal/obu"
	"github.com/deepteams/av1/internal/quant"
	"github.com/deepteams/av1/internal/ratectl"
)

var (
	// ErrConfig reports a configuration rejected before any frame is coded.
	ErrConfig = errors.New("encoder: invalid configuration")
	// ErrClosed is returned by calls after Flush or Close.
	ErrClosed = errors.New("encoder: session closed")
	// ErrFrameSize reports a source that does not match the sequence.
	ErrFrameSize = errors.New("encoder: source does not match the sequence")
	// ErrBitstream wraps internal failures that make the output unusable.
	ErrBitstream = errors.New("encoder: bitstream invariant violated")
)

// MaxLookahead bounds the pictures held before planning.
const MaxLookahead = 250

// Config is the resolved configuration of a session.
type Config struct {
	Width, Height int
	BitDepth      int
	Subsampling   frame.Subsampling
	// FrameRateNum/FrameRateDen pictures per second.
	FrameRateNum, FrameRateDen int

	Speed int // 0 slowest .. 10 fastest

	RateControl ratectl.Mode
	QIndex      int
	MinQ, MaxQ  int
	Bitrate     int64 // bits per second
	BufferMs    int
	RateLag     int
	Stats       []ratectl.FrameStats // first-pass statistics

	TileCols, TileRows int
	TileWorkers        int
	FrameWorkers       int

	GOP gop.Config
	// Lookahead is the number of pictures held before planning; when set,
	// scene cuts are coded as key frames.
	Lookahead int

	InheritContexts bool
	DeltaQ          bool // per-superblock adaptive quantization
	AllowHP         bool

	Deblock, CDEF, Restoration bool

	// KeepRecon attaches a copy of every displayed reconstruction to its
	// packet.
	KeepRecon bool
	// CollectStats records first-pass statistics for a second pass.
	CollectStats bool

	Logger logging.Logger
}

// frameRate returns the pictures per second, 30 when unset.
func (c *Config) frameRate() float64 {
	if c.FrameRateNum <= 0 || c.FrameRateDen <= 0 {
		return 30
	}
	return float64(c.FrameRateNum) / float64(c.FrameRateDen)
}

func (c *Config) validate() error {
	switch {
	case c.Width < 1 || c.Height < 1 || c.Width > 1<<16 || c.Height > 1<<16:
		return fmt.Errorf("%w: size %dx%d", ErrConfig, c.Width, c.Height)
	case c.BitDepth != 8 && c.BitDepth != 10 && c.BitDepth != 12:
		return fmt.Errorf("%w: bit depth %d", ErrConfig, c.BitDepth)
	case c.Subsampling > frame.SubsamplingMono:
		return fmt.Errorf("%w: subsampling %d", ErrConfig, c.Subsampling)
	case c.Speed < 0 || c.Speed > 10:
		return fmt.Errorf("%w: speed %d", ErrConfig, c.Speed)
	case c.QIndex < 0 || c.QIndex >= quant.NumQIndex:
		return fmt.Errorf("%w: q index %d", ErrConfig, c.QIndex)
	case c.TileCols < 0 || c.TileRows < 0 || c.TileCols > obu.MaxTiles || c.TileRows > obu.MaxTiles:
		return fmt.Errorf("%w: %dx%d tiles", ErrConfig, c.TileCols, c.TileRows)
	case c.GOP.MiniGOP < 0 || c.GOP.MiniGOP > 64:
		return fmt.Errorf("%w: mini-GOP %d", ErrConfig, c.GOP.MiniGOP)
	case c.GOP.KeyInterval < 0:
		return fmt.Errorf("%w: key interval %d", ErrConfig, c.GOP.KeyInterval)
	case c.GOP.RefFrames < 0 || c.GOP.RefFrames > 7:
		return fmt.Errorf("%w: %d reference frames", ErrConfig, c.GOP.RefFrames)
	case c.RateLag < 0:
		return fmt.Errorf("%w: rate lag %d", ErrConfig, c.RateLag)
	case c.Lookahead < 0 || c.Lookahead > MaxLookahead:
		return fmt.Errorf("%w: lookahead %d", ErrConfig, c.Lookahead)
	}
	// Pyramid anchors are displayed up to MiniGOP frames after they are
	// coded; order hints must stay unambiguous.
	if c.GOP.MiniGOP > gop.MaxRefDistance/2 {
		return fmt.Errorf("%w: mini-GOP %d too long", ErrConfig, c.GOP.MiniGOP)
	}
	return nil
}

// setDefaults fills zero-valued sizes of the worker pools and the GOP.
func (c *Config) setDefaults() {
	if c.TileCols == 0 {
		c.TileCols = 1
	}
	if c.TileRows == 0 {
		c.TileRows = 1
	}
	if c.TileWorkers <= 0 {
		c.TileWorkers = runtime.GOMAXPROCS(0)
	}
	if c.FrameWorkers <= 0 {
		c.FrameWorkers = 1
	}
	if c.GOP.MiniGOP == 0 {
		c.GOP.MiniGOP = 1
	}
	if c.GOP.RefFrames == 0 {
		c.GOP.RefFrames = 3
	}
	if c.Logger == nil {
		c.Logger = logging.NewNoop()
	}
}

func (c *Config) rateConfig() ratectl.Config {
	return ratectl.Config{
		Mode:      c.RateControl,
		QIndex:    c.QIndex,
		MinQ:      c.MinQ,
		MaxQ:      c.MaxQ,
		Bitrate:   c.Bitrate,
		FrameRate: c.frameRate(),
		BufferMs:  c.BufferMs,
		Lag:       c.RateLag,
		BitDepth:  c.BitDepth,
		Pixels:    c.Width * c.Height,
		GOP:       c.GOP,
		Stats:     c.Stats,
	}
}
