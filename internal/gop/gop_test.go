package gop

import (
	"fmt"
	"testing"

	"github.com/deepteams/av1/internal/refs"
)

// run plans n frames with every frame available up front.
func run(cfg Config, n int) []Plan {
	p := New(cfg)
	var all []Plan
	for p.NextDisplay() < int64(n) {
		plans := p.Next(n-int(p.NextDisplay()), true)
		if plans == nil {
			panic("planner stalled")
		}
		all = append(all, plans...)
	}
	return all
}

func TestPlans_DisplayOrderAndReferences(t *testing.T) {
	configs := []Config{
		{MiniGOP: 1, KeyInterval: 0, RefFrames: 3},
		{MiniGOP: 4, KeyInterval: 0, RefFrames: 7},
		{MiniGOP: 8, KeyInterval: 30, RefFrames: 4},
		{MiniGOP: 16, KeyInterval: 0, RefFrames: 7},
		{MiniGOP: 6, KeyInterval: 10, RefFrames: 2},
		{MiniGOP: 16, KeyInterval: 5, RefFrames: 1},
	}
	for _, cfg := range configs {
		t.Run(fmt.Sprintf("%+v", cfg), func(t *testing.T) {
			var slots [refs.NumSlots]int64
			filled := [refs.NumSlots]bool{}
			coded := make(map[int64]bool)
			shown := int64(0)
			for _, pl := range run(cfg, 47) {
				if pl.ShowExisting {
					if !filled[pl.ExistingSlot] || slots[pl.ExistingSlot] != pl.Display {
						t.Fatalf("show-existing %d: slot %d holds %d", pl.Display, pl.ExistingSlot, slots[pl.ExistingSlot])
					}
				} else {
					if coded[pl.Display] {
						t.Fatalf("frame %d coded twice", pl.Display)
					}
					coded[pl.Display] = true
					if pl.Type == InterFrame && len(pl.Refs) == 0 {
						t.Fatalf("inter frame %d without references", pl.Display)
					}
					if len(pl.Refs) > cfg.RefFrames {
						t.Fatalf("frame %d: %d references", pl.Display, len(pl.Refs))
					}
					for _, r := range pl.Refs {
						if !filled[r] || !coded[slots[r]] || slots[r] == pl.Display {
							t.Fatalf("frame %d names slot %d which holds no earlier frame", pl.Display, r)
						}
					}
					for i := range slots {
						if pl.Refresh&(1<<i) != 0 {
							slots[i], filled[i] = pl.Display, true
						}
					}
				}
				if pl.Show {
					if pl.Display != shown {
						t.Fatalf("displayed %d, want %d", pl.Display, shown)
					}
					shown++
				}
			}
			if shown != 47 {
				t.Errorf("%d frames shown, want 47", shown)
			}
		})
	}
}

func TestPlans_PyramidOrder(t *testing.T) {
	plans := run(Config{MiniGOP: 4, RefFrames: 7}, 5)
	var got []string
	for _, p := range plans {
		s := fmt.Sprint(p.Display)
		switch {
		case p.ShowExisting:
			s = "show" + s
		case !p.Show:
			s = "hide" + s
		}
		got = append(got, s)
	}
	want := "[0 hide4 hide2 1 show2 3 show4]"
	if fmt.Sprint(got) != want {
		t.Errorf("order %v, want %s", got, want)
	}
	if plans[1].Level != 1 || plans[2].Level != 2 || plans[3].Level != 3 {
		t.Errorf("levels %d %d %d", plans[1].Level, plans[2].Level, plans[3].Level)
	}
}

func TestNext_WaitsForInput(t *testing.T) {
	p := New(Config{MiniGOP: 8, RefFrames: 3})
	if got := p.Next(3, false); len(got) != 1 || got[0].Type != KeyFrame {
		t.Fatalf("first frame: %+v", got)
	}
	if got := p.Next(2, false); got != nil {
		t.Errorf("planned %d frames from a partial mini-GOP", len(got))
	}
	if got := p.Next(2, true); len(got) == 0 {
		t.Error("flush did not plan the remaining frames")
	}
}

func TestKeyInterval(t *testing.T) {
	for _, p := range run(Config{MiniGOP: 4, KeyInterval: 6, RefFrames: 3}, 20) {
		if want := p.Display%6 == 0; (p.Type == KeyFrame) != want {
			t.Errorf("frame %d: type %v", p.Display, p.Type)
		}
	}
}

func TestReferences_NearestFirst(t *testing.T) {
	plans := run(Config{MiniGOP: 1, RefFrames: 3}, 6)
	last := plans[5]
	if len(last.Refs) != 3 {
		t.Fatalf("refs %v", last.Refs)
	}
	// Replay slot contents to check the order.
	var slots [refs.NumSlots]int64
	for _, pl := range plans[:5] {
		for i := range slots {
			if pl.Refresh&(1<<i) != 0 {
				slots[i] = pl.Display
			}
		}
	}
	for i, want := range []int64{4, 3, 2} {
		if got := slots[last.Refs[i]]; got != want {
			t.Errorf("ref %d holds %d, want %d", i, got, want)
		}
	}
}

func TestForceKey_SplitsMiniGOP(t *testing.T) {
	p := New(Config{MiniGOP: 4, RefFrames: 3})
	p.ForceKey(5)
	var plans []Plan
	for p.NextDisplay() < 12 {
		plans = append(plans, p.Next(12-int(p.NextDisplay()), true)...)
	}
	var slots [refs.NumSlots]int64
	for _, pl := range plans {
		if want := pl.Display == 0 || pl.Display == 5; (pl.Type == KeyFrame) != want {
			t.Errorf("frame %d: type %v", pl.Display, pl.Type)
		}
		if pl.Display > 5 {
			for _, r := range pl.Refs {
				if slots[r] < 5 {
					t.Errorf("frame %d references frame %d across the cut", pl.Display, slots[r])
				}
			}
		}
		for i := range slots {
			if pl.Refresh&(1<<i) != 0 {
				slots[i] = pl.Display
			}
		}
	}
}
