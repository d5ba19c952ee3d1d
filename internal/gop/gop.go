// Package gop plans the coding order and reference structure of a
// sequence: key frames, hierarchical mini-GOPs whose anchors are coded
// ahead of display and shown later, and the slot each coded frame
// refreshes.
package gop

import (
	"slices"

	"github.com/deepteams/av1/internal/refs"
)

// FrameType is the coding type of a frame.
type FrameType uint8

const (
	KeyFrame FrameType = iota
	InterFrame
)

func (t FrameType) String() string {
	if t == KeyFrame {
		return "key"
	}
	return "inter"
}

// MaxRefDistance bounds the display distance between a frame and its
// references so that order hints stay unambiguous.
const MaxRefDistance = 127

// Plan describes one entry of the coding order.
type Plan struct {
	Display int64
	Type    FrameType
	Show    bool
	// ShowExisting displays the frame in ExistingSlot without coding it.
	ShowExisting bool
	ExistingSlot int
	// Refs lists the reference slots, nearest in display order first.
	Refs    []int
	Refresh uint8
	// Level is the pyramid depth: 0 for key frames, growing towards
	// frames that nothing references.
	Level int
}

// Config controls the structure.
type Config struct {
	MiniGOP     int // frames per mini-GOP, 1 for low delay
	KeyInterval int // distance between key frames, 0 for only the first
	RefFrames   int // active references per inter frame, 1..7
}

type slotState struct {
	display     int64
	used        bool
	pendingShow bool
	key         bool
}

// Planner produces plans in coding order.
type Planner struct {
	cfg     Config
	slots   [refs.NumSlots]slotState
	next    int64
	lastKey int64
	cuts    map[int64]bool
	out     []Plan
}

// New returns a planner for cfg.
func New(cfg Config) *Planner {
	cfg.MiniGOP = max(cfg.MiniGOP, 1)
	cfg.RefFrames = min(max(cfg.RefFrames, 1), refs.NumSlots-1)
	return &Planner{cfg: cfg}
}

// ForceKey makes the frame at display index d a key frame. It has no
// effect once d is planned.
func (p *Planner) ForceKey(d int64) {
	if d < p.next {
		return
	}
	if p.cuts == nil {
		p.cuts = make(map[int64]bool)
	}
	p.cuts[d] = true
}

// NextDisplay returns the display index of the first unplanned frame.
func (p *Planner) NextDisplay() int64 { return p.next }

// Next plans the frames starting at NextDisplay. buffered is the number
// of those frames already available and flushing reports that no more
// will arrive. It returns nil when it needs more input.
func (p *Planner) Next(buffered int, flushing bool) []Plan {
	if buffered <= 0 {
		return nil
	}
	p.out = nil
	if p.next == 0 || p.cuts[p.next] || p.cfg.KeyInterval > 0 && p.next-p.lastKey >= int64(p.cfg.KeyInterval) {
		delete(p.cuts, p.next)
		p.codeKey(p.next)
		p.next++
		return p.out
	}
	size := p.cfg.MiniGOP
	if p.cfg.KeyInterval > 0 {
		size = min(size, int(p.lastKey+int64(p.cfg.KeyInterval)-p.next))
	}
	// A mini-GOP never spans a forced key frame.
	for i := 1; i < size; i++ {
		if p.cuts[p.next+int64(i)] {
			size = i
			break
		}
	}
	if buffered < size {
		if !flushing {
			return nil
		}
		size = buffered
	}
	lo, hi := p.next-1, p.next+int64(size)-1
	if size == 1 {
		p.code(hi, true, 1)
	} else {
		p.code(hi, false, 1)
		p.inner(lo, hi, 2)
		p.showExisting(hi)
	}
	p.next = hi + 1
	return p.out
}

// inner plans the frames strictly between the coded anchors lo and hi.
func (p *Planner) inner(lo, hi int64, level int) {
	if hi-lo < 2 {
		return
	}
	mid := (lo + hi) / 2
	if mid-lo == 1 {
		p.code(mid, true, level)
	} else {
		p.code(mid, false, level)
		p.inner(lo, mid, level+1)
		p.showExisting(mid)
	}
	p.inner(mid, hi, level+1)
}

func (p *Planner) codeKey(d int64) {
	p.out = append(p.out, Plan{Display: d, Type: KeyFrame, Show: true, Refresh: 0xFF})
	for i := range p.slots {
		p.slots[i] = slotState{display: d, used: true, key: true}
	}
	p.lastKey = d
}

func (p *Planner) code(d int64, show bool, level int) {
	pl := Plan{Display: d, Type: InterFrame, Show: show, Level: level, Refs: p.references(d)}
	v := p.victim(d)
	pl.Refresh = 1 << v
	p.slots[v] = slotState{display: d, used: true, pendingShow: !show}
	p.out = append(p.out, pl)
}

func (p *Planner) showExisting(d int64) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.used && s.pendingShow && s.display == d {
			s.pendingShow = false
			p.out = append(p.out, Plan{Display: d, Type: InterFrame, Show: true, ShowExisting: true, ExistingSlot: i})
			return
		}
	}
	panic("gop: hidden frame lost its slot")
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// references picks the nearest distinct frames held in the slots.
func (p *Planner) references(d int64) []int {
	var cand []int
	seen := make(map[int64]bool)
	for i, s := range p.slots {
		if !s.used || s.display == d || seen[s.display] || abs64(d-s.display) > MaxRefDistance {
			continue
		}
		seen[s.display] = true
		cand = append(cand, i)
	}
	slices.SortStableFunc(cand, func(a, b int) int {
		da, db := d-p.slots[a].display, d-p.slots[b].display
		if abs64(da) != abs64(db) {
			return int(abs64(da) - abs64(db))
		}
		// Past frames first on equal distance.
		return int(db - da)
	})
	if len(cand) > p.cfg.RefFrames {
		cand = cand[:p.cfg.RefFrames]
	}
	return cand
}

// victim chooses the slot a frame at display d overwrites: an empty slot,
// otherwise the oldest past frame that is neither awaiting display nor
// the only copy of the last key frame.
func (p *Planner) victim(d int64) int {
	copies := make(map[int64]int)
	for _, s := range p.slots {
		if s.used {
			copies[s.display]++
		}
	}
	best, bestRank := -1, int64(0)
	for i, s := range p.slots {
		if !s.used {
			return i
		}
		if s.pendingShow || s.display > d {
			continue
		}
		rank := s.display
		if s.key && copies[s.display] == 1 {
			rank += 1 << 40
		}
		if best < 0 || rank < bestRank {
			best, bestRank = i, rank
		}
	}
	if best < 0 {
		panic("gop: no reference slot can be refreshed")
	}
	return best
}
