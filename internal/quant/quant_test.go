package quant

import (
	"math/rand"
	"testing"

	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/dsp"
)

func TestStepTables(t *testing.T) {
	if DCStep(0, 8) != 4 || ACStep(0, 8) != 4 {
		t.Errorf("q=0 steps = %d/%d, want 4/4", DCStep(0, 8), ACStep(0, 8))
	}
	for q := 1; q < NumQIndex; q++ {
		if ACStep(q, 8) <= ACStep(q-1, 8) || DCStep(q, 8) <= DCStep(q-1, 8) {
			t.Fatalf("tables not increasing at q=%d", q)
		}
	}
	if ac := ACStep(255, 8); ac < 1700 || ac > 1950 {
		t.Errorf("ACStep(255) = %d, want about 1828", ac)
	}
	if ACStep(100, 10) != 4*ACStep(100, 8) {
		t.Errorf("10-bit step not scaled by 4")
	}
	if Lambda(200, 8) <= Lambda(50, 8) {
		t.Errorf("lambda must grow with q")
	}
}

func TestQuantizeDequantize(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tx := block.Tx8x8
	scan := block.Scan(tx)
	p := New(60, 8, false)
	coef := make([]int32, 64)
	for i := range coef {
		coef[i] = int32(rng.Intn(4001) - 2000)
	}
	levels := make([]int32, 64)
	eob := p.Quantize(coef, levels, scan)
	if eob == 0 {
		t.Fatal("eob = 0 for large coefficients")
	}
	for _, pos := range scan[eob:] {
		if levels[pos] != 0 {
			t.Fatalf("level past eob at %d", pos)
		}
	}
	rec := make([]int32, 64)
	if !p.Dequantize(levels, rec, scan, eob) {
		t.Fatal("Dequantize reported overflow")
	}
	for i := range coef {
		step := p.Step(i)
		if d := coef[i] - rec[i]; d > step || d < -step {
			t.Errorf("pos %d: %d -> %d, error beyond one step %d", i, coef[i], rec[i], step)
		}
	}
}

func TestQuantize_ClampsToLimit(t *testing.T) {
	p := New(0, 8, false)
	coef := make([]int32, 16)
	coef[0] = 1 << 20
	levels := make([]int32, 16)
	scan := block.Scan(block.Tx4x4)
	p.Quantize(coef, levels, scan)
	rec := make([]int32, 16)
	if !p.Dequantize(levels, rec, scan, 1) {
		t.Fatal("clamped level must dequantize legally")
	}
	if rec[0] > dsp.CoeffLimit(8) {
		t.Errorf("dequantized %d beyond limit", rec[0])
	}
	levels[0] = p.MaxLevel(0) + 1
	if p.Dequantize(levels, rec, scan, 1) {
		t.Error("overflowing level accepted")
	}
}

type flatRate struct{ perLevel, eob int }

func (r flatRate) LevelCost(i int, l int32) int {
	if l < 0 {
		l = -l
	}
	return int(l) * r.perLevel
}
func (r flatRate) EobCost(int) int { return r.eob }

func TestOptimize_DropsCostlyTail(t *testing.T) {
	p := New(100, 8, false)
	scan := block.Scan(block.Tx4x4)
	coef := make([]int32, 16)
	coef[scan[0]] = 20 * p.DC
	coef[scan[9]] = p.AC * 7 / 10 // rounds up to 1
	levels := make([]int32, 16)
	eob := p.Quantize(coef, levels, scan)
	if eob != 10 {
		t.Fatalf("eob = %d, want 10", eob)
	}
	// With expensive levels the lone tail coefficient is not worth coding.
	eob = p.Optimize(coef, levels, scan, eob, 1000, flatRate{perLevel: 256, eob: 512})
	if eob != 1 {
		t.Errorf("optimized eob = %d, want 1", eob)
	}
	if levels[scan[0]] == 0 {
		t.Errorf("DC level dropped")
	}

	// With free rate nothing changes.
	eob = p.Quantize(coef, levels, scan)
	if got := p.Optimize(coef, levels, scan, eob, 1, flatRate{}); got != eob {
		t.Errorf("free-rate eob = %d, want %d", got, eob)
	}
}
