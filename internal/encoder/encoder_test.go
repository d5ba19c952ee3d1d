package encoder

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/deepteams/av1/internal/decoder"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/gop"
	"github.com/deepteams/av1/internal/ratectl"
)

// movingSquare returns picture t of a textured background with a bright
// square moving two samples right and one down per picture.
func movingSquare(rng *rand.Rand, w, h, bd int, ss frame.Subsampling, t int) *frame.Frame {
	f := frame.New(w, h, bd, ss, frame.RefBorder)
	shift := uint(bd - 8)
	for p := 0; p < f.NumPlanes; p++ {
		sx, sy := f.PlaneShift(p)
		pw, ph := (w+sx)>>sx, (h+sy)>>sy
		pl := &f.Planes[p]
		for y := 0; y < ph; y++ {
			for x := 0; x < pw; x++ {
				lx, ly := x<<sx, y<<sy
				v := 40 + (lx*2+ly)%96 + rng.Intn(8)
				if p > 0 {
					v = 96 + (lx+ly*2)%48
				}
				dx, dy := lx-2*t-8, ly-t-8
				if dx >= 0 && dx < 20 && dy >= 0 && dy < 20 {
					v = 220
				}
				pl.Set(x, y, uint16(v)<<shift)
			}
		}
	}
	f.FillCodedArea()
	f.ExtendBorders()
	return f
}

func testConfig(w, h int) Config {
	return Config{
		Width:        w,
		Height:       h,
		BitDepth:     8,
		Subsampling:  frame.Subsampling420,
		FrameRateNum: 30,
		FrameRateDen: 1,
		Speed:        9,
		RateControl:  ratectl.CQ,
		QIndex:       120,
		TileWorkers:  2,
		FrameWorkers: 1,
		GOP:          gop.Config{MiniGOP: 1, RefFrames: 2},
		Deblock:      true,
		CDEF:         true,
		Restoration:  true,
		KeepRecon:    true,
	}
}

func sources(cfg *Config, n int) []*frame.Frame {
	rng := rand.New(rand.NewSource(42))
	out := make([]*frame.Frame, n)
	for i := range out {
		out[i] = movingSquare(rng, cfg.Width, cfg.Height, cfg.BitDepth, cfg.Subsampling, i)
	}
	return out
}

func encodeAll(t *testing.T, cfg Config, srcs []*frame.Frame) ([]Packet, *Encoder) {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	var out []Packet
	for i, f := range srcs {
		pk, err := e.Encode(ctx, Source{Frame: f, PTS: int64(i) * 100})
		if err != nil {
			t.Fatalf("Encode %d: %v", i, err)
		}
		out = append(out, pk...)
	}
	pk, err := e.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return append(out, pk...), e
}

// checkRoundTrip decodes every packet and compares the shown picture with
// the encoder's reconstruction.
func checkRoundTrip(t *testing.T, pkts []Packet, n int) {
	t.Helper()
	if len(pkts) != n {
		t.Fatalf("got %d packets, want %d", len(pkts), n)
	}
	dec := decoder.New()
	for i, pk := range pkts {
		if pk.Display != int64(i) {
			t.Fatalf("packet %d shows picture %d", i, pk.Display)
		}
		if pk.PTS != int64(i)*100 {
			t.Errorf("packet %d PTS = %d, want %d", i, pk.PTS, i*100)
		}
		pics, err := dec.Decode(pk.Data)
		if err != nil {
			t.Fatalf("decode packet %d: %v", i, err)
		}
		if len(pics) != 1 {
			t.Fatalf("packet %d shows %d pictures", i, len(pics))
		}
		if pics[0].OrderHint != uint8(i) {
			t.Errorf("packet %d order hint %d", i, pics[0].OrderHint)
		}
		if p, x, y, bad := pics[0].Frame.FirstMismatch(pk.Recon); bad {
			t.Fatalf("packet %d: decoder differs from reconstruction at plane %d (%d,%d)", i, p, x, y)
		}
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		bd     int
		ss     frame.Subsampling
		frames int
		adjust func(*Config)
	}{
		{"low delay", 64, 64, 8, frame.Subsampling420, 5, nil},
		{"odd size", 65, 65, 8, frame.Subsampling420, 3, nil},
		{"pyramid", 64, 48, 8, frame.Subsampling420, 9, func(c *Config) {
			c.GOP = gop.Config{MiniGOP: 4, RefFrames: 3}
		}},
		{"tiles and delta q", 128, 128, 8, frame.Subsampling420, 3, func(c *Config) {
			c.TileCols, c.TileRows = 2, 2
			c.DeltaQ = true
		}},
		{"inherited contexts", 64, 64, 8, frame.Subsampling420, 4, func(c *Config) {
			c.InheritContexts = true
			c.AllowHP = true
		}},
		{"key interval", 32, 32, 8, frame.Subsampling420, 6, func(c *Config) {
			c.GOP.KeyInterval = 3
		}},
		{"10-bit 444", 40, 24, 10, frame.Subsampling444, 3, nil},
		{"422 full search", 64, 64, 8, frame.Subsampling422, 3, func(c *Config) {
			c.Speed = 0
		}},
		{"422 speed 3", 48, 32, 10, frame.Subsampling422, 3, func(c *Config) {
			c.Speed = 3
			c.GOP = gop.Config{MiniGOP: 2, RefFrames: 2}
		}},
		{"mono no filters", 48, 40, 8, frame.SubsamplingMono, 3, func(c *Config) {
			c.Deblock, c.CDEF, c.Restoration = false, false, false
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(tt.w, tt.h)
			cfg.BitDepth, cfg.Subsampling = tt.bd, tt.ss
			if tt.adjust != nil {
				tt.adjust(&cfg)
			}
			pkts, _ := encodeAll(t, cfg, sources(&cfg, tt.frames))
			checkRoundTrip(t, pkts, tt.frames)
			if !pkts[0].Key {
				t.Error("first packet is not a key frame")
			}
			for i, pk := range pkts {
				if pk.PSNR[0] < 20 {
					t.Errorf("packet %d luma PSNR %.2f", i, pk.PSNR[0])
				}
			}
		})
	}
}

func TestEncode_PyramidShowsExisting(t *testing.T) {
	cfg := testConfig(64, 64)
	cfg.GOP = gop.Config{MiniGOP: 4, RefFrames: 3}
	pkts, _ := encodeAll(t, cfg, sources(&cfg, 5))
	var existing int
	for _, pk := range pkts {
		if pk.ShowExisting {
			existing++
			if pk.Bits > 64 {
				t.Errorf("show-existing unit of %d bits", pk.Bits)
			}
		}
	}
	// Frames 4 and 2 are coded ahead and shown later.
	if existing != 2 {
		t.Errorf("%d show-existing units, want 2", existing)
	}
}

func TestEncode_FrameWorkersDoNotChangeOutput(t *testing.T) {
	for _, mode := range []ratectl.Mode{ratectl.CQ, ratectl.ABR} {
		t.Run(mode.String(), func(t *testing.T) {
			var streams [][]byte
			for _, workers := range []int{1, 3} {
				cfg := testConfig(64, 64)
				cfg.GOP = gop.Config{MiniGOP: 2, RefFrames: 2}
				cfg.RateControl = mode
				cfg.Bitrate = 200000
				cfg.RateLag = 2
				cfg.FrameWorkers = workers
				cfg.TileCols = 2
				pkts, _ := encodeAll(t, cfg, sources(&cfg, 8))
				var all []byte
				for _, pk := range pkts {
					all = append(all, pk.Data...)
				}
				streams = append(streams, all)
			}
			if !bytes.Equal(streams[0], streams[1]) {
				t.Error("stream depends on the number of frame workers")
			}
		})
	}
}

func TestEncode_CBRPadsToBitrate(t *testing.T) {
	cfg := testConfig(32, 32)
	cfg.RateControl = ratectl.CBR
	cfg.Bitrate = 3_000_000
	cfg.BufferMs = 500
	const n = 10
	pkts, e := encodeAll(t, cfg, sources(&cfg, n))
	checkRoundTrip(t, pkts, n)

	var total int
	for _, pk := range pkts {
		total += pk.Bits
	}
	perFrame := float64(cfg.Bitrate) / 30
	size := float64(cfg.Bitrate) * float64(cfg.BufferMs) / 1000
	// Fullness starts at three quarters and ends at most full.
	if want := n*perFrame - size/4 - 16*n; float64(total) < want {
		t.Errorf("total %d bits, want at least %.0f", total, want)
	}
	if u := e.Summary().Underflows; u != 0 {
		t.Errorf("%d underflows", u)
	}
}

func TestEncode_ABRMeetsTarget(t *testing.T) {
	for _, miniGOP := range []int{1, 2} {
		cfg := testConfig(64, 64)
		cfg.GOP = gop.Config{MiniGOP: miniGOP, RefFrames: 2}
		cfg.RateControl = ratectl.ABR
		cfg.Bitrate = 60000
		const n = 60
		pkts, _ := encodeAll(t, cfg, sources(&cfg, n))
		var total int
		for _, pk := range pkts {
			total += pk.Bits
		}
		want := float64(cfg.Bitrate) * n / 30
		if r := float64(total) / want; r < 0.9 || r > 1.1 {
			t.Errorf("mini-GOP %d: %d bits, %.3f of the %.0f-bit budget", miniGOP, total, r, want)
		}
	}
}

func TestEncode_FlushReleasesReferences(t *testing.T) {
	cfg := testConfig(32, 32)
	cfg.GOP = gop.Config{MiniGOP: 4, RefFrames: 3}
	_, e := encodeAll(t, cfg, sources(&cfg, 7))
	live, free := e.refs.Live()
	if live == 0 || free != live {
		t.Errorf("%d of %d reference buffers still pinned after Flush", live-free, live)
	}
}

func TestEncode_FirstPassStatsDriveSecondPass(t *testing.T) {
	cfg := testConfig(64, 64)
	cfg.GOP = gop.Config{MiniGOP: 2, RefFrames: 2}
	cfg.CollectStats = true
	srcs := sources(&cfg, 6)
	_, first := encodeAll(t, cfg, srcs)
	stats := first.FirstPassStats()
	coded := 0
	for _, s := range stats {
		if !s.ShowExisting {
			coded++
		}
	}
	if coded != len(srcs) {
		t.Errorf("%d coded entries, want %d", coded, len(srcs))
	}

	cfg.CollectStats = false
	cfg.RateControl = ratectl.ABR
	cfg.Bitrate = 150000
	cfg.Stats = stats
	pkts, _ := encodeAll(t, cfg, srcs)
	checkRoundTrip(t, pkts, len(srcs))
}

func TestNew_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		adjust func(*Config)
	}{
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"bit depth", func(c *Config) { c.BitDepth = 9 }},
		{"speed", func(c *Config) { c.Speed = 11 }},
		{"q index", func(c *Config) { c.QIndex = 256 }},
		{"tiles", func(c *Config) { c.TileCols = 65 }},
		{"references", func(c *Config) { c.GOP.RefFrames = 8 }},
		{"abr without bitrate", func(c *Config) { c.RateControl = ratectl.ABR }},
		{"cbr without buffer", func(c *Config) { c.RateControl, c.Bitrate = ratectl.CBR, 1000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(64, 64)
			tt.adjust(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestEncode_SessionErrors(t *testing.T) {
	cfg := testConfig(32, 32)
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	wrong := frame.New(16, 32, 8, frame.Subsampling420, frame.RefBorder)
	if _, err := e.Encode(ctx, Source{Frame: wrong}); !errors.Is(err, ErrFrameSize) {
		t.Errorf("wrong size: err = %v, want ErrFrameSize", err)
	}
	deep := frame.New(32, 32, 10, frame.Subsampling420, frame.RefBorder)
	if _, err := e.Encode(ctx, Source{Frame: deep}); !errors.Is(err, ErrFrameSize) {
		t.Errorf("wrong depth: err = %v, want ErrFrameSize", err)
	}
	if _, err := e.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Encode(ctx, Source{Frame: sources(&cfg, 1)[0]}); !errors.Is(err, ErrClosed) {
		t.Errorf("after flush: err = %v, want ErrClosed", err)
	}
}

func TestEncode_CancelledContextFailsSession(t *testing.T) {
	cfg := testConfig(32, 32)
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srcs := sources(&cfg, 2)
	if _, err := e.Encode(ctx, Source{Frame: srcs[0]}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := e.Encode(context.Background(), Source{Frame: srcs[1]}); !errors.Is(err, context.Canceled) {
		t.Errorf("session still usable after cancellation: %v", err)
	}
}

func TestAdaptiveQ_FlatAreasGetFinerQuantizers(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := frame.New(128, 64, 8, frame.Subsampling420, 0)
	pl := &f.Planes[0]
	for y := 0; y < 64; y++ {
		for x := 0; x < 128; x++ {
			v := 128
			if x >= 64 {
				v = rng.Intn(256)
			}
			pl.Set(x, y, uint16(v))
		}
	}
	qs := adaptiveQ(f, 100)
	if len(qs) != 2 {
		t.Fatalf("%d superblocks, want 2", len(qs))
	}
	if qs[0] >= 100 || qs[1] <= 100 {
		t.Errorf("flat q %d, busy q %d around 100", qs[0], qs[1])
	}
	for _, q := range qs {
		if q < 100-maxAQDelta || q > 100+maxAQDelta {
			t.Errorf("q %d beyond the adaptive range", q)
		}
	}
}

func TestEncode_SceneCutStartsKeyFrame(t *testing.T) {
	cfg := testConfig(64, 64)
	cfg.GOP = gop.Config{MiniGOP: 2, RefFrames: 2}
	cfg.Lookahead = 3
	srcs := sources(&cfg, 6)
	for _, f := range srcs[4:] {
		for p := 0; p < f.NumPlanes; p++ {
			pl := &f.Planes[p]
			for y := 0; y < pl.Height; y++ {
				for x := 0; x < pl.Width; x++ {
					pl.Set(x, y, 255-pl.At(x, y))
				}
			}
		}
		f.ExtendBorders()
	}
	pkts, _ := encodeAll(t, cfg, srcs)
	checkRoundTrip(t, pkts, 6)
	for i, pk := range pkts {
		if want := i == 0 || i == 4; pk.Key != want {
			t.Errorf("packet %d key = %v, want %v", i, pk.Key, want)
		}
	}
}

func TestSceneCut(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := thumbnail(movingSquare(rng, 64, 64, 8, frame.Subsampling420, 0))
	b := thumbnail(movingSquare(rng, 64, 64, 8, frame.Subsampling420, 1))
	if sceneCut(a, b) {
		t.Error("consecutive pictures detected as a scene cut")
	}
	flat := make([]int32, len(a))
	for i := range flat {
		flat[i] = 240
	}
	if !sceneCut(a, flat) {
		t.Error("flat picture not detected as a scene cut")
	}
	if sceneCut(nil, a) {
		t.Error("first picture detected as a scene cut")
	}
}
