package av1

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.Preset != PresetGood {
		t.Errorf("Preset = %q, want %q", opts.Preset, PresetGood)
	}
	if opts.Speed >= 0 || resolveSpeed(opts.Speed) != 6 {
		t.Errorf("Speed = %d, want sentinel resolving to 6", opts.Speed)
	}
	if got := resolveQIndex(opts.QIndex); got != 100 {
		t.Errorf("QIndex resolves to %d, want 100", got)
	}
	if got := resolveMaxQIndex(opts.MaxQIndex); got != 255 {
		t.Errorf("MaxQIndex resolves to %d, want 255", got)
	}
	if got := resolveKeyframeInterval(opts.KeyframeInterval); got != 240 {
		t.Errorf("KeyframeInterval resolves to %d, want 240", got)
	}
	if got := resolveRefFrames(opts.RefFrames); got != 3 {
		t.Errorf("RefFrames resolves to %d, want 3", got)
	}
	if !opts.Deblock || !opts.CDEF || !opts.Restoration {
		t.Error("loop filters should be enabled by default")
	}
	if err := validateOptions(opts); err != nil {
		t.Errorf("default options invalid: %v", err)
	}
}

func TestPresetValues(t *testing.T) {
	tests := []struct {
		preset  Preset
		speed   int
		miniGOP int
	}{
		{PresetRealtime, 10, 1},
		{PresetGood, 6, 4},
		{PresetBest, 1, 8},
	}
	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			opts, err := OptionsForPreset(tt.preset)
			if err != nil {
				t.Fatal(err)
			}
			if got := resolveSpeed(opts.Speed); got != tt.speed {
				t.Errorf("Speed = %d, want %d", got, tt.speed)
			}
			if opts.MiniGOP != tt.miniGOP {
				t.Errorf("MiniGOP = %d, want %d", opts.MiniGOP, tt.miniGOP)
			}
			if err := validateOptions(opts); err != nil {
				t.Errorf("preset options invalid: %v", err)
			}
		})
	}
	if _, err := OptionsForPreset("fastest"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown preset: err = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*EncoderOptions)
		ok     bool
	}{
		{"defaults", func(o *EncoderOptions) {}, true},
		{"speed 0", func(o *EncoderOptions) { o.Speed = 0 }, true},
		{"speed 11", func(o *EncoderOptions) { o.Speed = 11 }, false},
		{"qindex 255", func(o *EncoderOptions) { o.QIndex = 255 }, true},
		{"qindex 256", func(o *EncoderOptions) { o.QIndex = 256 }, false},
		{"min above max", func(o *EncoderOptions) { o.MinQIndex, o.MaxQIndex = 200, 100 }, false},
		{"abr without bitrate", func(o *EncoderOptions) { o.RateControl = RateABR }, false},
		{"abr", func(o *EncoderOptions) { o.RateControl, o.TargetBitrate = RateABR, 500000 }, true},
		{"cbr zero buffer", func(o *EncoderOptions) {
			o.RateControl, o.TargetBitrate, o.BufferMs = RateCBR, 500000, 0
		}, false},
		{"unknown rate control", func(o *EncoderOptions) { o.RateControl = 7 }, false},
		{"65 tile columns", func(o *EncoderOptions) { o.TileCols = 65 }, false},
		{"negative workers", func(o *EncoderOptions) { o.FrameWorkers = -1 }, false},
		{"mini-GOP 64", func(o *EncoderOptions) { o.MiniGOP = 64 }, false},
		{"8 references", func(o *EncoderOptions) { o.RefFrames = 8 }, false},
		{"zero references", func(o *EncoderOptions) { o.RefFrames = 0 }, false},
		{"lookahead", func(o *EncoderOptions) { o.Lookahead = 251 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(opts)
			err := validateOptions(opts)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enc.yaml")
	data := "preset: realtime\nrate_control: cbr\nbitrate: 800000\ntile_cols: 2\ncdef: false\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.RateControl != RateCBR || opts.TargetBitrate != 800000 {
		t.Errorf("rate control %v at %d, want cbr at 800000", opts.RateControl, opts.TargetBitrate)
	}
	if opts.TileCols != 2 || opts.CDEF {
		t.Errorf("TileCols = %d, CDEF = %v", opts.TileCols, opts.CDEF)
	}
	// Keys absent from the file keep the preset's values.
	if opts.Speed != 10 || opts.MiniGOP != 1 || !opts.Deblock {
		t.Errorf("Speed = %d, MiniGOP = %d, Deblock = %v; want the realtime preset", opts.Speed, opts.MiniGOP, opts.Deblock)
	}
}

func TestLoadOptions_Rejects(t *testing.T) {
	tests := []struct {
		name, data string
	}{
		{"unknown rate control", "rate_control: vbr\n"},
		{"unknown preset", "preset: turbo\n"},
		{"out of range", "speed: 12\n"},
		{"not yaml", "speed: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "enc.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadOptions(path); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
