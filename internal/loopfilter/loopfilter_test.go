package loopfilter

import (
	"math/rand"
	"testing"

	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/frame"
)

func flatFrame(w, h int, v uint16) *frame.Frame {
	f := frame.New(w, h, 8, frame.Subsampling420, 16)
	for p := 0; p < f.NumPlanes; p++ {
		pl := &f.Planes[p]
		for y := 0; y < pl.Height; y++ {
			for x := 0; x < pl.Width; x++ {
				pl.Set(x, y, v)
			}
		}
	}
	f.ExtendBorders()
	return f
}

func gridOf(w, h int, mi block.ModeInfo) *block.Grid {
	g := block.NewGrid(w, h)
	g.Fill(block.Rect{W: g.Cols, H: g.Rows}, mi)
	return g
}

func TestLevelFromQ(t *testing.T) {
	prev := -1
	for q := 0; q < 256; q += 5 {
		lvl := LevelFromQ(q, 8, true)
		if lvl < 0 || lvl > MaxLevel {
			t.Fatalf("q %d: level %d out of range", q, lvl)
		}
		if lvl < prev {
			t.Errorf("q %d: level %d below %d of a smaller q", q, lvl, prev)
		}
		prev = lvl
		if inter := LevelFromQ(q, 8, false); inter > lvl {
			t.Errorf("q %d: inter level %d above intra %d", q, inter, lvl)
		}
	}
	if LevelFromQ(200, 10, true) != LevelFromQ(200, 8, true) {
		t.Error("level depends on bit depth")
	}
}

func TestDeblock_SmoothsTransformEdge(t *testing.T) {
	f := flatFrame(32, 16, 100)
	for y := 0; y < 16; y++ {
		for x := 16; x < 32; x++ {
			f.Planes[0].Set(x, y, 108)
		}
	}
	g := gridOf(32, 16, block.ModeInfo{Size: block.Block16x16, TxLog2W: 4, TxLog2H: 4})
	ApplyDeblock(f, g, &Deblock{Level: [4]int{40, 40, 40, 40}})
	l := &f.Planes[0]
	for y := 0; y < 16; y++ {
		if d := int(l.At(16, y)) - int(l.At(15, y)); d >= 8 || d < 0 {
			t.Fatalf("row %d: step %d across the edge after filtering", y, d)
		}
		if l.At(0, y) != 100 || l.At(31, y) != 108 {
			t.Fatalf("row %d: samples far from the edge changed", y)
		}
	}
}

func TestDeblock_SkipsInteriorOfSkippedInterBlock(t *testing.T) {
	f := flatFrame(32, 32, 100)
	for y := 0; y < 32; y++ {
		for x := 16; x < 32; x++ {
			f.Planes[0].Set(x, y, 108)
		}
	}
	want := f.Clone()
	g := gridOf(32, 32, block.ModeInfo{Size: block.Block32x32, Skip: true, Inter: true, TxLog2W: 4, TxLog2H: 4})
	ApplyDeblock(f, g, &Deblock{Level: [4]int{40, 40, 40, 40}})
	if !f.Equal(want) {
		t.Error("interior transform edge of a skipped inter block was filtered")
	}
}

func noisy(rng *rand.Rand, f *frame.Frame, amp int) {
	for p := 0; p < f.NumPlanes; p++ {
		pl := &f.Planes[p]
		for y := 0; y < pl.Height; y++ {
			for x := 0; x < pl.Width; x++ {
				pl.Set(x, y, uint16(int(pl.At(x, y))+rng.Intn(2*amp+1)-amp))
			}
		}
	}
	f.ExtendBorders()
}

func TestCDEF_FollowsSuperblockPreset(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := flatFrame(128, 64, 128)
	noisy(rng, f, 8)
	orig := f.Clone()
	g := gridOf(128, 64, block.ModeInfo{Size: block.Block16x16, TxLog2W: 4, TxLog2H: 4})
	c := &CDEF{Damping: 4, Bits: 1}
	c.Y[1], c.UV[1] = Strength{4, 2}, Strength{2, 2}
	m := NewMap(128, 64)
	m.CDEF[1] = 1
	ApplyCDEF(f, g, c, m)

	changed := false
	for y := 0; y < 64; y++ {
		for x := 0; x < 128; x++ {
			a, b := f.Planes[0].At(x, y), orig.Planes[0].At(x, y)
			if x < 64 && a != b {
				t.Fatalf("(%d,%d) filtered under a zero preset", x, y)
			}
			changed = changed || a != b
		}
	}
	if !changed {
		t.Error("nonzero preset left the superblock untouched")
	}
}

func TestCDEF_SkipBlocksUntouched(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := flatFrame(64, 64, 128)
	noisy(rng, f, 8)
	orig := f.Clone()
	g := gridOf(64, 64, block.ModeInfo{Size: block.Block16x16, Skip: true, TxLog2W: 4, TxLog2H: 4})
	c := &CDEF{Damping: 4}
	c.Y[0], c.UV[0] = Strength{8, 2}, Strength{4, 2}
	ApplyCDEF(f, g, c, NewMap(64, 64))
	if !f.Equal(orig) {
		t.Error("skip blocks were filtered")
	}
}

func TestUnitRect_ClipsToPlane(t *testing.T) {
	f := flatFrame(72, 40, 0)
	m := NewMap(72, 40)
	if m.Cols != 2 || m.Rows != 1 {
		t.Fatalf("map %dx%d", m.Cols, m.Rows)
	}
	if x, y, w, h := unitRect(f, 0, m, 1); x != 64 || y != 0 || w != 8 || h != 40 {
		t.Errorf("luma unit 1: %d,%d %dx%d", x, y, w, h)
	}
	if x, y, w, h := unitRect(f, 1, m, 1); x != 32 || y != 0 || w != 4 || h != 20 {
		t.Errorf("chroma unit 1: %d,%d %dx%d", x, y, w, h)
	}
}

// blocky returns a reconstruction-like copy of src: noise plus a constant
// offset per 8x8 block.
func blocky(rng *rand.Rand, src *frame.Frame) *frame.Frame {
	r := src.Clone()
	for p := 0; p < r.NumPlanes; p++ {
		pl := &r.Planes[p]
		sx, _ := r.PlaneShift(p)
		bs := 8 >> sx
		for by := 0; by < pl.Height; by += bs {
			for bx := 0; bx < pl.Width; bx += bs {
				off := rng.Intn(9) - 4
				for y := by; y < min(by+bs, pl.Height); y++ {
					for x := bx; x < min(bx+bs, pl.Width); x++ {
						v := int(pl.At(x, y)) + off + rng.Intn(5) - 2
						pl.Set(x, y, uint16(min(max(v, 0), 255)))
					}
				}
			}
		}
	}
	r.ExtendBorders()
	return r
}

func gradient(w, h int) *frame.Frame {
	f := frame.New(w, h, 8, frame.Subsampling420, 16)
	for p := 0; p < f.NumPlanes; p++ {
		pl := &f.Planes[p]
		for y := 0; y < pl.Height; y++ {
			for x := 0; x < pl.Width; x++ {
				pl.Set(x, y, uint16(40+(x*2+y*3)%160))
			}
		}
	}
	f.ExtendBorders()
	return f
}

func TestSelect_ApplyReproducesEncoderFrame(t *testing.T) {
	for _, speed := range []int{0, 6, 10} {
		rng := rand.New(rand.NewSource(42))
		src := gradient(128, 72)
		recon := blocky(rng, src)
		g := gridOf(128, 72, block.ModeInfo{Size: block.Block8x8, TxLog2W: 3, TxLog2H: 3})

		enc := recon.Clone()
		s := SearchForSpeed(speed)
		p, m := Select(src, enc, g, 120, true, &s)

		dec := recon.Clone()
		Apply(dec, g, &p, m)
		if pl, x, y, bad := enc.FirstMismatch(dec); bad {
			t.Fatalf("speed %d: Apply differs from Select at plane %d (%d,%d)", speed, pl, x, y)
		}

		// CDEF and restoration only keep choices that lower distortion.
		deblocked := recon.Clone()
		ApplyDeblock(deblocked, g, &p.Deblock)
		if after, before := frameSSE(src, enc), frameSSE(src, deblocked); after > before {
			t.Errorf("speed %d: SSE %d after CDEF and restoration, %d before", speed, after, before)
		}
	}
}

func TestSearchForSpeed(t *testing.T) {
	slow, fast := SearchForSpeed(0), SearchForSpeed(10)
	if slow.DeblockRadius == 0 || !slow.Wiener || len(slow.Strengths) <= len(fast.Strengths) {
		t.Errorf("speed 0: %+v", slow)
	}
	if fast.Wiener || fast.DeblockRadius != 0 {
		t.Errorf("speed 10: %+v", fast)
	}
}
