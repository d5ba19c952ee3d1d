package av1

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/deepteams/av1/internal/encoder"
	"github.com/deepteams/av1/internal/gop"
	"github.com/deepteams/av1/internal/obu"
)

// RateControl selects how quantizers are chosen.
type RateControl int

const (
	// RateCQ codes every frame class at a fixed quantizer.
	RateCQ RateControl = iota
	// RateABR targets an average bitrate over the session.
	RateABR
	// RateCBR targets a constant bitrate and keeps the decoder buffer
	// model from underflowing, padding units that undershoot.
	RateCBR
)

func (r RateControl) String() string {
	switch r {
	case RateCQ:
		return "cq"
	case RateABR:
		return "abr"
	case RateCBR:
		return "cbr"
	}
	return fmt.Sprintf("RateControl(%d)", int(r))
}

// ParseRateControl parses "cq", "abr" or "cbr".
func ParseRateControl(s string) (RateControl, error) {
	for r := RateCQ; r <= RateCBR; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: rate control %q", ErrInvalidConfig, s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RateControl) UnmarshalText(b []byte) error {
	v, err := ParseRateControl(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (r RateControl) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Preset names a set of options tuned for a use case.
type Preset string

const (
	// PresetRealtime favours latency: fast search, no reordering.
	PresetRealtime Preset = "realtime"
	// PresetGood is the balanced default.
	PresetGood Preset = "good"
	// PresetBest searches exhaustively with deep pyramids.
	PresetBest Preset = "best"
)

// EncoderOptions controls an encoding session. Negative values of the int
// fields documented with a default are sentinels resolved to that default,
// so an options struct decoded from a sparse file behaves sensibly.
type EncoderOptions struct {
	// Preset records the preset the options started from.
	Preset Preset `yaml:"preset"`

	// Speed trades compression for time, 0 slowest .. 10 fastest
	// (default 6). It changes which local optimum the searches reach,
	// never the legality of the output.
	Speed int `yaml:"speed"`

	RateControl RateControl `yaml:"rate_control"`
	// QIndex is the quantizer index of RateCQ and the first guess of the
	// other modes (0-255, default 100).
	QIndex int `yaml:"qindex"`
	// MinQIndex and MaxQIndex bound every quantizer (default 0 and 255).
	MinQIndex int `yaml:"min_qindex"`
	MaxQIndex int `yaml:"max_qindex"`
	// TargetBitrate in bits per second, required by RateABR and RateCBR.
	TargetBitrate int64 `yaml:"bitrate"`
	// BufferMs is the decoder buffer of RateCBR in milliseconds
	// (default 1000).
	BufferMs int `yaml:"buffer_ms"`
	// RateLag is how many frames may be in flight before their sizes feed
	// the rate controller (default 2). Together with the frame count it
	// fixes the output; FrameWorkers does not change it.
	RateLag int `yaml:"rate_lag"`

	// TileCols and TileRows split every frame into independently coded
	// tiles (1-64, clamped to the superblock grid).
	TileCols int `yaml:"tile_cols"`
	TileRows int `yaml:"tile_rows"`
	// TileWorkers bounds the tiles coded concurrently per frame
	// (0 = GOMAXPROCS).
	TileWorkers int `yaml:"tile_workers"`
	// FrameWorkers bounds the frames coded concurrently (0 = 1).
	FrameWorkers int `yaml:"frame_workers"`

	// KeyframeInterval is the distance between key frames; 0 codes only
	// the first (default 240).
	KeyframeInterval int `yaml:"keyframe_interval"`
	// MiniGOP is the number of frames per hierarchical group, 1 for low
	// delay (1-63).
	MiniGOP int `yaml:"mini_gop"`
	// RefFrames is the number of references per inter frame (1-7,
	// default 3).
	RefFrames int `yaml:"ref_frames"`
	// Lookahead is the number of pictures held before planning. When set,
	// scene cuts are coded as key frames.
	Lookahead int `yaml:"lookahead"`

	// InheritContexts starts inter frames from the adapted contexts of
	// their nearest reference.
	InheritContexts bool `yaml:"inherit_contexts"`
	// DeltaQ adapts the quantizer per superblock to its activity.
	DeltaQ bool `yaml:"delta_q"`
	// AllowHighPrecisionMV enables eighth-pel motion vectors.
	AllowHighPrecisionMV bool `yaml:"high_precision_mv"`

	// Loop filter toggles. The zero value disables a filter;
	// DefaultOptions enables all three.
	Deblock     bool `yaml:"deblock"`
	CDEF        bool `yaml:"cdef"`
	Restoration bool `yaml:"restoration"`

	// StatsOut names a file the first-pass statistics are written to when
	// the session is flushed.
	StatsOut string `yaml:"stats_out"`
	// StatsIn names a statistics file from an earlier pass over the same
	// pictures; RateABR and RateCBR allocate bits from it.
	StatsIn string `yaml:"stats_in"`
}

// DefaultOptions returns the options of PresetGood.
func DefaultOptions() *EncoderOptions {
	return &EncoderOptions{
		Preset:               PresetGood,
		Speed:                -1, // sentinel: 6
		RateControl:          RateCQ,
		QIndex:               -1, // sentinel: 100
		MaxQIndex:            -1, // sentinel: 255
		BufferMs:             -1, // sentinel: 1000
		RateLag:              -1, // sentinel: 2
		TileCols:             1,
		TileRows:             1,
		KeyframeInterval:     -1, // sentinel: 240
		MiniGOP:              4,
		RefFrames:            -1, // sentinel: 3
		InheritContexts:      true,
		AllowHighPrecisionMV: true,
		Deblock:              true,
		CDEF:                 true,
		Restoration:          true,
	}
}

// OptionsForPreset returns the options of a named preset.
func OptionsForPreset(p Preset) (*EncoderOptions, error) {
	opts := DefaultOptions()
	opts.Preset = p
	switch p {
	case PresetRealtime:
		opts.Speed = 10
		opts.MiniGOP = 1
		opts.RefFrames = 2
		opts.RateLag = 0
		opts.AllowHighPrecisionMV = false
		opts.Restoration = false
	case PresetGood:
		// use defaults
	case PresetBest:
		opts.Speed = 1
		opts.MiniGOP = 8
		opts.RefFrames = 7
		opts.Lookahead = 16
		opts.DeltaQ = true
	default:
		return nil, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, p)
	}
	return opts, nil
}

// LoadOptions reads options from a YAML file. Keys absent from the file
// keep the value of the preset named by its "preset" key, PresetGood when
// there is none.
func LoadOptions(path string) (*EncoderOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var head struct {
		Preset Preset `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if head.Preset == "" {
		head.Preset = PresetGood
	}
	opts, err := OptionsForPreset(head.Preset)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// validateOptions returns the first invalid option. Negative sentinels
// are accepted where documented.
func validateOptions(opts *EncoderOptions) error {
	if opts.Speed > 10 {
		return fmt.Errorf("%w: Speed %d (must be 0-10)", ErrInvalidConfig, opts.Speed)
	}
	if opts.RateControl < RateCQ || opts.RateControl > RateCBR {
		return fmt.Errorf("%w: RateControl %d", ErrInvalidConfig, opts.RateControl)
	}
	if opts.QIndex > 255 {
		return fmt.Errorf("%w: QIndex %d (must be 0-255)", ErrInvalidConfig, opts.QIndex)
	}
	qmin, qmax := opts.MinQIndex, resolveMaxQIndex(opts.MaxQIndex)
	if qmin < 0 || qmax > 255 || qmin > qmax {
		return fmt.Errorf("%w: MinQIndex/MaxQIndex %d/%d (must be 0-255, MinQIndex <= MaxQIndex)", ErrInvalidConfig, opts.MinQIndex, opts.MaxQIndex)
	}
	if opts.RateControl != RateCQ && opts.TargetBitrate <= 0 {
		return fmt.Errorf("%w: TargetBitrate %d (%s needs a positive bitrate)", ErrInvalidConfig, opts.TargetBitrate, opts.RateControl)
	}
	if opts.TargetBitrate < 0 {
		return fmt.Errorf("%w: TargetBitrate %d (must be >= 0)", ErrInvalidConfig, opts.TargetBitrate)
	}
	if opts.RateControl == RateCBR && opts.BufferMs == 0 {
		return fmt.Errorf("%w: BufferMs 0 (cbr needs a buffer)", ErrInvalidConfig)
	}
	if opts.TileCols < 0 || opts.TileCols > obu.MaxTiles || opts.TileRows < 0 || opts.TileRows > obu.MaxTiles {
		return fmt.Errorf("%w: TileCols/TileRows %d/%d (must be 1-%d)", ErrInvalidConfig, opts.TileCols, opts.TileRows, obu.MaxTiles)
	}
	if opts.TileWorkers < 0 || opts.FrameWorkers < 0 {
		return fmt.Errorf("%w: TileWorkers/FrameWorkers %d/%d (must be >= 0)", ErrInvalidConfig, opts.TileWorkers, opts.FrameWorkers)
	}
	if opts.MiniGOP < 0 || opts.MiniGOP > gop.MaxRefDistance/2 {
		return fmt.Errorf("%w: MiniGOP %d (must be 1-%d)", ErrInvalidConfig, opts.MiniGOP, gop.MaxRefDistance/2)
	}
	if opts.RefFrames == 0 || opts.RefFrames > 7 {
		return fmt.Errorf("%w: RefFrames %d (must be 1-7)", ErrInvalidConfig, opts.RefFrames)
	}
	if opts.Lookahead < 0 || opts.Lookahead > encoder.MaxLookahead {
		return fmt.Errorf("%w: Lookahead %d (must be 0-%d)", ErrInvalidConfig, opts.Lookahead, encoder.MaxLookahead)
	}
	return nil
}

// resolveSpeed returns the effective speed. Negative values map to 6.
func resolveSpeed(v int) int {
	if v < 0 {
		return 6
	}
	return v
}

// resolveQIndex returns the effective quantizer. Negative values map to 100.
func resolveQIndex(v int) int {
	if v < 0 {
		return 100
	}
	return v
}

// resolveMaxQIndex returns the effective upper quantizer bound. Negative
// values map to 255.
func resolveMaxQIndex(v int) int {
	if v < 0 {
		return 255
	}
	return v
}

// resolveBufferMs returns the effective buffer size. Negative values map
// to one second.
func resolveBufferMs(v int) int {
	if v < 0 {
		return 1000
	}
	return v
}

// resolveRateLag returns the effective rate feedback lag. Negative values
// map to 2.
func resolveRateLag(v int) int {
	if v < 0 {
		return 2
	}
	return v
}

// resolveKeyframeInterval returns the effective key frame distance.
// Negative values map to 240.
func resolveKeyframeInterval(v int) int {
	if v < 0 {
		return 240
	}
	return v
}

// resolveRefFrames returns the effective reference count. Negative values
// map to 3.
func resolveRefFrames(v int) int {
	if v < 0 {
		return 3
	}
	return v
}

// resolveWorkers returns the effective tile worker count.
func resolveWorkers(v int) int {
	if v <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return v
}
