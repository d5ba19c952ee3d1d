// Package cdf owns the adaptive probability tables of a tile.
package cdf

import "github.com/deepteams/av1/internal/bitio"

// Store holds one adaptive CDF table per Kind. A Store is owned by exactly
// one tile coder at a time and is not safe for concurrent use.
//
// Tables are shared copy-on-write between a Store and its clones: Clone is
// O(NumKinds) and a table is copied the first time either side mutates it.
// Each CDF occupies Symbols(k)+1 cells: the inverted CDF followed by the
// adaptation counter.
type Store struct {
	tabs  [NumKinds][]uint16
	owned [NumKinds]bool
}

var defaults [NumKinds][]uint16

func init() {
	for k := Kind(0); k < NumKinds; k++ {
		n := kinds[k].symbols
		stride := n + 1
		tab := make([]uint16, kinds[k].contexts*stride)
		for c := 0; c < kinds[k].contexts; c++ {
			Uniform(tab[c*stride:(c+1)*stride], n)
		}
		defaults[k] = tab
	}
}

// Uniform writes an equiprobable inverted CDF of n symbols into f and
// clears its counter. len(f) must be n+1.
func Uniform(f []uint16, n int) {
	for i := 0; i < n; i++ {
		f[i] = uint16(bitio.CDFTop - (i+1)*bitio.CDFTop/n)
	}
	f[n] = 0
}

// NewStore returns a Store initialised with the default tables.
func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset restores the default tables. Default tables are shared and never
// written.
func (s *Store) Reset() {
	for k := range s.tabs {
		s.tabs[k] = defaults[k]
		s.owned[k] = false
	}
}

// Clone returns a Store sharing all tables with s. Both sides copy a table
// before their next write to it. Cloning a store that owns no table only
// reads it, so such a store may be cloned from several goroutines.
func (s *Store) Clone() *Store {
	c := &Store{tabs: s.tabs}
	for k := range s.owned {
		if s.owned[k] {
			s.owned[k] = false
		}
	}
	return c
}

// CopyFrom makes s share the tables of o.
func (s *Store) CopyFrom(o *Store) {
	s.tabs = o.tabs
	for k := range s.owned {
		s.owned[k] = false
		o.owned[k] = false
	}
}

// CDF returns the read-only CDF of kind k in context ctx.
func (s *Store) CDF(k Kind, ctx int) []uint16 {
	stride := kinds[k].symbols + 1
	return s.tabs[k][ctx*stride : (ctx+1)*stride]
}

// Mutable returns the CDF of kind k in context ctx for adaptation, copying
// the table first if it is shared.
func (s *Store) Mutable(k Kind, ctx int) []uint16 {
	if !s.owned[k] {
		t := make([]uint16, len(s.tabs[k]))
		copy(t, s.tabs[k])
		s.tabs[k] = t
		s.owned[k] = true
	}
	return s.CDF(k, ctx)
}

// Equal reports whether every table of s matches o.
func (s *Store) Equal(o *Store) bool {
	for k := range s.tabs {
		a, b := s.tabs[k], o.tabs[k]
		if len(a) != len(b) {
			return false
		}
		if len(a) > 0 && &a[0] == &b[0] {
			continue
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

// Frozen returns the copy kept by a reference slot for CDF inheritance.
// Counters are cleared so an inheriting frame adapts quickly again.
func (s *Store) Frozen() *Store {
	c := &Store{}
	for k := range s.tabs {
		t := make([]uint16, len(s.tabs[k]))
		copy(t, s.tabs[k])
		stride := kinds[k].symbols + 1
		for i := stride - 1; i < len(t); i += stride {
			t[i] = 0
		}
		c.tabs[k] = t
	}
	return c
}
