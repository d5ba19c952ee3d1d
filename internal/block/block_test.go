package block

import "testing"

func TestLayout_CoversNode(t *testing.T) {
	for _, n := range []int{16, 32, 64} {
		for p := Partition(0); p < Partition(PartitionCount(n)); p++ {
			covered := make([]int, n*n)
			for _, r := range Layout(p, n) {
				if r.W < MinSize || r.H < MinSize {
					t.Errorf("n=%d %v: leaf %dx%d below minimum", n, p, r.W, r.H)
				}
				if p != PartitionSplit {
					if _, ok := SizeFor(r.W, r.H); !ok {
						t.Errorf("n=%d %v: leaf %dx%d has no block size", n, p, r.W, r.H)
					}
				}
				for y := r.Y; y < r.Y+r.H; y++ {
					for x := r.X; x < r.X+r.W; x++ {
						covered[y*n+x]++
					}
				}
			}
			for i, c := range covered {
				if c != 1 {
					t.Fatalf("n=%d %v: sample %d covered %d times", n, p, i, c)
				}
			}
		}
	}
}

func TestTxSplit(t *testing.T) {
	tests := []struct {
		in, want TxSize
	}{
		{Tx32x32, Tx16x16},
		{Tx16x32, Tx16x16},
		{Tx32x8, Tx16x8},
		{Tx8x32, Tx8x16},
		{Tx8x8, Tx4x4},
		{Tx4x4, Tx4x4},
	}
	for _, tt := range tests {
		if got := tt.in.Split(); got != tt.want {
			t.Errorf("%dx%d.Split() = %dx%d, want %dx%d", tt.in.Width(), tt.in.Height(),
				got.Width(), got.Height(), tt.want.Width(), tt.want.Height())
		}
	}
	if got := MaxTxSize(64, 16); got != Tx32x16 {
		t.Errorf("MaxTxSize(64,16) = %dx%d, want 32x16", got.Width(), got.Height())
	}
}

func TestScan_IsPermutation(t *testing.T) {
	for tx := TxSize(0); tx < NumTxSizes; tx++ {
		s := Scan(tx)
		if len(s) != tx.Area() {
			t.Fatalf("tx %d: scan length %d, want %d", tx, len(s), tx.Area())
		}
		seen := make([]bool, tx.Area())
		for _, p := range s {
			if seen[p] {
				t.Fatalf("tx %d: position %d repeated", tx, p)
			}
			seen[p] = true
		}
		if s[0] != 0 {
			t.Errorf("tx %d: scan starts at %d, want DC", tx, s[0])
		}
	}
}

func TestGrid_SaveRestore(t *testing.T) {
	g := NewGrid(64, 64)
	r := Rect{X: 2, Y: 2, W: 4, H: 4}
	g.Fill(r, ModeInfo{Size: Block16x16, Skip: true})
	g.MarkAll(r, true)

	var saved Region
	g.Save(r, &saved)
	g.Fill(r, ModeInfo{Size: Block8x8})
	g.MarkAll(r, false)
	g.Restore(&saved)

	if !g.Decoded(0, 3, 3) || !g.Decoded(2, 3, 3) || !g.At(3, 3).Skip || g.At(5, 5).Size != Block16x16 {
		t.Error("Restore did not bring back the saved region")
	}
	if g.Decoded(0, -1, 0) || g.Decoded(0, 0, 16) {
		t.Error("out-of-grid units reported decoded")
	}
}

func TestMotionVector_LowerPrecision(t *testing.T) {
	mv := MotionVector{Row: 3, Col: -5}
	if got := mv.LowerPrecision(false); got != (MotionVector{2, -4}) {
		t.Errorf("LowerPrecision = %+v, want {2 -4}", got)
	}
	if got := mv.LowerPrecision(true); got != mv {
		t.Errorf("LowerPrecision(hp) = %+v, want %+v", got, mv)
	}
}
