package ratectl

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/deepteams/av1/internal/gop"
	"github.com/deepteams/av1/internal/quant"
)

const testPixels = 320 * 240

// trueComplexity is the simulated content: bits times step per class.
var trueComplexity = [numClasses]float64{30 * testPixels, 10 * testPixels, 3 * testPixels}

type simFrame struct {
	req  Request
	q    int
	bits int
}

// simulate codes n frames of the GOP structure in cfg. delay is how many
// later plans each result is withheld for, which must not change any
// decision as long as it does not exceed the lag.
func simulate(t *testing.T, cfg Config, n, delay int) ([]simFrame, *Buffer) {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	buf := c.NewBuffer()
	rng := rand.New(rand.NewSource(42))
	planner := gop.New(cfg.GOP)
	var out []simFrame
	var held []Result
	seq := int64(0)
	for planner.NextDisplay() < int64(n) {
		for _, pl := range planner.Next(n-int(planner.NextDisplay()), true) {
			req := Request{Seq: seq, Display: pl.Display, Type: pl.Type, Level: pl.Level, Show: pl.Show, ShowExisting: pl.ShowExisting}
			d, err := c.Plan(req)
			if err != nil {
				t.Fatal(err)
			}
			bits := 16
			if !pl.ShowExisting {
				noise := 0.9 + 0.2*rng.Float64()
				cost := func(q int) int {
					return int(trueComplexity[classOf(&req)] * noise / c.step(q))
				}
				bits = cost(d.QIndex)
				attempts := []Attempt{{d.QIndex, bits}}
				for {
					nd, again := c.Recode(d, attempts)
					if !again {
						break
					}
					d = nd
					bits = cost(d.QIndex)
					attempts = append(attempts, Attempt{d.QIndex, bits})
				}
			}
			if buf != nil {
				bits += buf.Add(bits, pl.Show)
			}
			out = append(out, simFrame{req: req, q: d.QIndex, bits: bits})
			held = append(held, Result{Seq: seq, Req: req, QIndex: d.QIndex, Bits: bits})
			for len(held) > delay {
				c.Update(held[0])
				held = held[1:]
			}
			seq++
		}
	}
	return out, buf
}

func TestCQ_LevelOffsets(t *testing.T) {
	c, err := New(Config{Mode: CQ, QIndex: 100})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		req  Request
		want int
	}{
		{Request{Seq: 0, Type: gop.KeyFrame, Show: true}, 84},
		{Request{Seq: 1, Type: gop.InterFrame, Level: 1}, 92},
		{Request{Seq: 2, Type: gop.InterFrame, Level: 2}, 96},
		{Request{Seq: 3, Type: gop.InterFrame, Level: 5}, 100},
		{Request{Seq: 4, Type: gop.InterFrame, Level: 3, Show: true}, 100},
	}
	for _, tt := range tests {
		c.Update(Result{Seq: tt.req.Seq, Req: tt.req, QIndex: tt.want, Bits: 1000})
	}
	for _, tt := range tests {
		d, err := c.Plan(tt.req)
		if err != nil {
			t.Fatal(err)
		}
		if d.QIndex != tt.want {
			t.Errorf("Plan(%+v).QIndex = %d, want %d", tt.req, d.QIndex, tt.want)
		}
	}
}

func abrConfig(mode Mode) Config {
	return Config{
		Mode:      mode,
		QIndex:    100,
		Bitrate:   300000,
		FrameRate: 30,
		BufferMs:  1000,
		BitDepth:  8,
		Pixels:    testPixels,
		Lag:       2,
		GOP:       gop.Config{MiniGOP: 4, KeyInterval: 60, RefFrames: 3},
	}
}

func TestABR_Converges(t *testing.T) {
	const n = 120
	frames, _ := simulate(t, abrConfig(ABR), n, 0)
	total := 0
	for _, f := range frames {
		total += f.bits
	}
	want := 300000 * n / 30
	if lo, hi := want*85/100, want*115/100; total < lo || total > hi {
		t.Errorf("total bits %d, want within [%d, %d]", total, lo, hi)
	}
}

func TestPlan_IndependentOfResultTiming(t *testing.T) {
	cfg := abrConfig(ABR)
	a, _ := simulate(t, cfg, 40, 0)
	b, _ := simulate(t, cfg, 40, cfg.Lag)
	for i := range a {
		if a[i].q != b[i].q {
			t.Fatalf("frame %d: q %d with prompt results, %d with delayed", i, a[i].q, b[i].q)
		}
	}
}

func TestPlan_MissingResult(t *testing.T) {
	c, _ := New(Config{Mode: CQ, QIndex: 50, Lag: 1})
	if _, err := c.Plan(Request{Seq: 0, Type: gop.KeyFrame, Show: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Plan(Request{Seq: 2, Show: true}); !errors.Is(err, ErrMissingResult) {
		t.Errorf("err = %v, want ErrMissingResult", err)
	}
}

func TestCBR_BufferNeverUnderflows(t *testing.T) {
	frames, buf := simulate(t, abrConfig(CBR), 90, 0)
	if buf.Underflows != 0 {
		t.Errorf("%d buffer underflows", buf.Underflows)
	}
	for _, f := range frames {
		if f.q < 0 || f.q >= quant.NumQIndex {
			t.Fatalf("q %d out of range", f.q)
		}
	}
}

func TestRecode_RaisesQuantizer(t *testing.T) {
	c, _ := New(abrConfig(CBR))
	d := Decision{QIndex: 100, MaxBits: 10000}
	nd, ok := c.Recode(d, []Attempt{{100, 40000}})
	if !ok || nd.QIndex <= 100 {
		t.Fatalf("Recode = %d, %v", nd.QIndex, ok)
	}
	if _, ok := c.Recode(d, []Attempt{{100, 9000}}); ok {
		t.Error("recode requested for a frame that fits")
	}
	last, ok := c.Recode(d, []Attempt{{100, 40000}, {130, 30000}, {150, 20000}})
	if !ok || last.QIndex != quant.NumQIndex-1 {
		t.Errorf("final attempt q %d, want %d", last.QIndex, quant.NumQIndex-1)
	}
	if _, ok := c.Recode(d, make([]Attempt, MaxRecodes)); ok {
		t.Error("more than MaxRecodes attempts")
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	bad := []Config{
		{Mode: CQ, QIndex: 300},
		{Mode: CQ, MinQ: 200, MaxQ: 100},
		{Mode: ABR, QIndex: 100, FrameRate: 30, Pixels: 100},
		{Mode: CBR, QIndex: 100, Bitrate: 1000, FrameRate: 30, Pixels: 100},
		{Mode: CQ, Lag: -1},
	}
	for _, cfg := range bad {
		if _, err := New(cfg); !errors.Is(err, ErrConfig) {
			t.Errorf("New(%+v) = %v, want ErrConfig", cfg, err)
		}
	}
}

func TestStats_SecondPassFollowsComplexity(t *testing.T) {
	stats := []FrameStats{
		{Display: 0, Type: gop.KeyFrame, Show: true, QIndex: 80, Bits: 80000},
		{Display: 1, Type: gop.InterFrame, Show: true, QIndex: 80, Bits: 4000},
		{Display: 2, Type: gop.InterFrame, Show: true, QIndex: 80, Bits: 40000},
	}
	var file bytes.Buffer
	if err := WriteStats(&file, stats); err != nil {
		t.Fatal(err)
	}
	got, err := ReadStats(&file)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != stats[0] || got[2] != stats[2] {
		t.Fatalf("read %+v", got)
	}

	cfg := abrConfig(ABR)
	cfg.GOP.MiniGOP = 1
	cfg.Stats = got
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var targets []int
	for i, s := range got {
		req := Request{Seq: int64(i), Display: s.Display, Type: s.Type, Show: true}
		d, err := c.Plan(req)
		if err != nil {
			t.Fatal(err)
		}
		targets = append(targets, d.TargetBits)
	}
	if !(targets[1] < targets[2] && targets[2] < targets[0]) {
		t.Errorf("targets %v do not follow first-pass complexity", targets)
	}
}

func TestReadStats_RejectsGarbage(t *testing.T) {
	if _, err := ReadStats(bytes.NewReader([]byte("not zstd at all"))); err == nil {
		t.Error("garbage accepted")
	}
}
