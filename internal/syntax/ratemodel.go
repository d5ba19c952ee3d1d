package syntax

import (
	"math/bits"

	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
)

// TxRate approximates the coefficient costs of one transform block from
// the current contexts of a Store. Neighbour-dependent contexts are
// replaced by a typical neighbourhood, so the estimate is position-exact
// but not level-exact; the final cost is always measured by an Estimator.
type TxRate struct {
	store *cdf.Store
	scan  []uint16
	lw    int
	w     int
	area  int
	cat   int
	ptype int
}

// NewTxRate returns the rate model for transforms of size tx in plane p.
func NewTxRate(s *cdf.Store, tx block.TxSize, p int) *TxRate {
	return &TxRate{
		store: s,
		scan:  block.Scan(tx),
		lw:    tx.Log2W(),
		w:     tx.Width(),
		area:  tx.Area(),
		cat:   tx.Category(),
		ptype: min(p, 1),
	}
}

func (r *TxRate) brCost(ctx int, level int) int {
	f := func(s int) int { return cdf.Cost(r.store.CDF(cdf.CoeffBr, ctx), s) }
	cost := 0
	rem := level - numBaseLevels
	for k := 0; k < brSymbols; k++ {
		s := min(rem, cdf.BrCdfSize-1)
		cost += f(s)
		rem -= s
		if s < cdf.BrCdfSize-1 {
			break
		}
	}
	if level >= maxBrLevel {
		cost += cdf.LiteralCost(2*bits.Len(uint(level-maxBrLevel+1)) - 1)
	}
	return cost
}

func (r *TxRate) contexts(i int) (base, br int) {
	pos := int(r.scan[i])
	row, col := pos>>r.lw, pos&(r.w-1)
	switch d := row + col; {
	case d == 0:
		base = 0
	case d == 1:
		base = 2
	case d == 2:
		base = 7
	case d <= 4:
		base = 12
	default:
		base = 17
	}
	switch {
	case row == 0 && col == 0:
		br = 1
	case row < 2 && col < 2:
		br = 8
	default:
		br = 15
	}
	return ctxIndex(r.cat, r.ptype, cdf.BaseContexts, base), ctxIndex(r.cat, r.ptype, cdf.BrContexts, br)
}

// LevelCost implements quant.RateModel.
func (r *TxRate) LevelCost(i int, level int32) int {
	l := int(level)
	if l < 0 {
		l = -l
	}
	bctx, brctx := r.contexts(i)
	cost := cdf.Cost(r.store.CDF(cdf.CoeffBase, bctx), min(l, numBaseLevels))
	if l == 0 {
		return cost
	}
	cost += 1 << cdf.CostShift // sign
	if l >= numBaseLevels {
		cost += r.brCost(brctx, l)
	}
	return cost
}

// EobCost implements quant.RateModel. It includes the saving of coding
// the last coefficient with the end-of-block base symbol instead of the
// regular one, assuming a level of one.
func (r *TxRate) EobCost(eob int) int {
	l2 := bits.Len(uint(r.area)) - 1
	k := 0
	if eob > 1 {
		k = bits.Len(uint(eob - 1))
	}
	cost := cdf.Cost(r.store.CDF(cdf.EobPt16+cdf.Kind(l2-4), r.ptype), k)
	if k >= 2 {
		cost += cdf.LiteralCost(k - 1)
	}
	ectx := ctxIndex(r.cat, r.ptype, 4, eobBaseContext(eob-1, r.area))
	bctx, _ := r.contexts(eob - 1)
	cost += cdf.Cost(r.store.CDF(cdf.CoeffBaseEob, ectx), 0)
	cost -= cdf.Cost(r.store.CDF(cdf.CoeffBase, bctx), 1)
	return cost
}
