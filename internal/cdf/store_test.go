package cdf

import (
	"math/rand"
	"testing"

	"github.com/deepteams/av1/internal/bitio"
)

func TestUniformDefaults(t *testing.T) {
	s := NewStore()
	for k := Kind(0); k < NumKinds; k++ {
		n := Symbols(k)
		f := s.CDF(k, Contexts(k)-1)
		if len(f) != n+1 {
			t.Fatalf("%v: len(CDF) = %d, want %d", k, len(f), n+1)
		}
		if f[n-1] != 0 {
			t.Errorf("%v: last CDF entry = %d, want 0", k, f[n-1])
		}
		for i := 1; i < n; i++ {
			if f[i] > f[i-1] {
				t.Errorf("%v: CDF not monotone at %d", k, i)
			}
		}
	}
}

func TestUpdate_InitialShift(t *testing.T) {
	tests := []struct {
		n    int
		f    []uint16
		want uint16 // f[0] after one update toward the last symbol
	}{
		{2, []uint16{16384, 0, 0}, 16384 + 16384>>4},
		{3, []uint16{21845, 10923, 0, 0}, 21845 + (32768-21845)>>4},
		{4, []uint16{24576, 16384, 8192, 0, 0}, 24576 + 8192>>5},
	}
	for _, tt := range tests {
		Update(tt.f, tt.n-1, tt.n)
		if tt.f[0] != tt.want {
			t.Errorf("n=%d: f[0] = %d, want %d", tt.n, tt.f[0], tt.want)
		}
	}
}

func TestUpdate_MovesTowardSymbol(t *testing.T) {
	f := make([]uint16, 5)
	Uniform(f, 4)
	before := Cost(f, 2)
	for i := 0; i < 20; i++ {
		Update(f, 2, 4)
	}
	if after := Cost(f, 2); after >= before {
		t.Errorf("Cost(2) after adaptation = %d, want < %d", after, before)
	}
	if f[4] != 20 {
		t.Errorf("counter = %d, want 20", f[4])
	}
	for i := 0; i < 40; i++ {
		Update(f, 2, 4)
	}
	if f[4] != 32 {
		t.Errorf("counter = %d, want saturated at 32", f[4])
	}
	if f[3] != 0 {
		t.Errorf("last entry = %d, want 0", f[3])
	}
}

func TestClone_CopyOnWrite(t *testing.T) {
	s := NewStore()
	Update(s.Mutable(Skip, 1), 1, 2)
	c := s.Clone()
	if !c.Equal(s) {
		t.Fatal("clone differs from parent")
	}

	Update(c.Mutable(Skip, 1), 1, 2)
	if c.Equal(s) {
		t.Fatal("write to clone leaked into parent")
	}
	if got, want := s.CDF(Skip, 1)[2], uint16(1); got != want {
		t.Errorf("parent counter = %d, want %d", got, want)
	}

	Update(s.Mutable(YMode, 0), 3, IntraModes)
	if c.CDF(YMode, 0)[IntraModes] != 0 {
		t.Error("write to parent leaked into clone")
	}
}

func TestReset_DoesNotTouchDefaults(t *testing.T) {
	s := NewStore()
	Update(s.Mutable(MvJoint, 0), 0, 4)
	s.Reset()
	fresh := NewStore()
	if !s.Equal(fresh) {
		t.Error("Reset did not restore defaults")
	}
}

func TestFrozen_ClearsCounters(t *testing.T) {
	s := NewStore()
	f := s.Mutable(InterMode, 2)
	for i := 0; i < 10; i++ {
		Update(f, 3, 4)
	}
	fr := s.Frozen()
	g := fr.CDF(InterMode, 2)
	if g[4] != 0 {
		t.Errorf("frozen counter = %d, want 0", g[4])
	}
	for i := 0; i < 4; i++ {
		if g[i] != f[i] {
			t.Errorf("frozen CDF[%d] = %d, want %d", i, g[i], f[i])
		}
	}
}

// TestAdaptiveRoundTrip codes symbols through adapting CDFs and checks the
// decoder side reaches the same model state after every symbol.
func TestAdaptiveRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	enc := NewStore()
	type sym struct {
		k   Kind
		ctx int
		v   int
	}
	syms := make([]sym, 3000)
	w := bitio.NewSymbolWriter(0)
	for i := range syms {
		k := Kind(rng.Intn(int(NumKinds)))
		ctx := rng.Intn(Contexts(k))
		n := Symbols(k)
		v := rng.Intn(n)
		if rng.Intn(3) > 0 {
			v = 0
		}
		syms[i] = sym{k, ctx, v}
		f := enc.Mutable(k, ctx)
		w.WriteSymbol(v, f, n)
		Update(f, v, n)
	}
	data := w.Finish()

	dec := NewStore()
	r := bitio.NewSymbolReader(data)
	for i, s := range syms {
		n := Symbols(s.k)
		f := dec.Mutable(s.k, s.ctx)
		got := r.ReadSymbol(f, n)
		if got != s.v {
			t.Fatalf("symbol %d (%v ctx %d): got %d, want %d", i, s.k, s.ctx, got, s.v)
		}
		Update(f, got, n)
	}
	if !dec.Equal(enc) {
		t.Error("decoder model state differs from encoder after all symbols")
	}
}

func TestCost(t *testing.T) {
	f := make([]uint16, 3)
	Uniform(f, 2)
	if got := Cost(f, 0); got != 1<<CostShift {
		t.Errorf("Cost(uniform bit) = %d, want %d", got, 1<<CostShift)
	}
	if got := LiteralCost(3); got != 3<<CostShift {
		t.Errorf("LiteralCost(3) = %d, want %d", got, 3<<CostShift)
	}
}
