package syntax

import (
	"math/bits"

	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
)

// Level coding: a base symbol covers 0..2 with 3 meaning "more", up to
// four range symbols add 0..3 each, and magnitudes from maxBrLevel up
// continue with an Exp-Golomb remainder in the sign pass.
const (
	numBaseLevels = 3
	brSymbols     = 4
	maxBrLevel    = numBaseLevels + brSymbols*(cdf.BrCdfSize-1)
	maxGolombLen  = 20
	levelPad      = 2
)

func ctxIndex(cat, ptype, per, ctx int) int {
	return (cat*cdf.PlaneTypes+ptype)*per + ctx
}

// txContexts derives the all-zero and DC-sign contexts of tb from the
// transform state of the units above and left of it.
func (t *Tile) txContexts(p int, tb *TxBlock) (nz, dc int) {
	r := t.txRect4(p, tb)
	var an, ln bool
	var dcSum int
	for i := 0; i < r.W; i++ {
		if mi := t.mi(r.X+i, r.Y-1); mi != nil {
			an = an || mi.Nonzero[p]
			dcSum += int(mi.DcSign[p])
		}
	}
	for i := 0; i < r.H; i++ {
		if mi := t.mi(r.X-1, r.Y+i); mi != nil {
			ln = ln || mi.Nonzero[p]
			dcSum += int(mi.DcSign[p])
		}
	}
	nz = b2i(an) + b2i(ln)
	switch {
	case dcSum < 0:
		dc = 1
	case dcSum > 0:
		dc = 2
	}
	return nz, dc
}

func baseContext(lv []uint8, stride, r, c int) int {
	if r == 0 && c == 0 {
		return 0
	}
	i := r*stride + c
	mag := min(int(lv[i+1]), 3) + min(int(lv[i+stride]), 3) + min(int(lv[i+stride+1]), 3) +
		min(int(lv[i+2]), 3) + min(int(lv[i+2*stride]), 3)
	m := min((mag+1)>>1, 4)
	switch d := r + c; {
	case d == 1:
		return 1 + m
	case d == 2:
		return 6 + m
	case d <= 4:
		return 11 + m
	}
	return 16 + m
}

func brContext(lv []uint8, stride, r, c int) int {
	i := r*stride + c
	mag := int(lv[i+1]) + int(lv[i+stride]) + int(lv[i+stride+1])
	m := min((mag+1)>>1, 6)
	switch {
	case r == 0 && c == 0:
		return m
	case r < 2 && c < 2:
		return m + 7
	}
	return m + 14
}

func eobBaseContext(i, area int) int {
	switch {
	case i == 0:
		return 0
	case i <= area/8:
		return 1
	case i <= area/4:
		return 2
	}
	return 3
}

// codeTxb codes one transform block of a non-skipped block.
func codeTxb(c Coder, t *Tile, b *Block, p int, tb *TxBlock) {
	ptype := min(p, 1)
	tx := tb.Size
	cat := tx.Category()
	nzCtx, dcCtx := t.txContexts(p, tb)
	reading := c.Reading()
	if reading {
		clear(tb.Levels)
	}

	if c.Bool(cdf.TxbSkip, ctxIndex(cat, ptype, 3, nzCtx), tb.Eob == 0) {
		tb.Eob = 0
		tb.Type = block.DctDct
		return
	}

	typ := block.DctDct
	if p == 0 && block.TxTypeSignaled(tx) {
		set := block.TxSetCategory(tx)
		if b.Inter {
			typ = block.TxType(c.Symbol(cdf.TxTypeInter, set, int(tb.Type)))
		} else {
			typ = block.TxType(c.Symbol(cdf.TxTypeIntra, set*cdf.IntraModes+int(b.YMode), int(tb.Type)))
		}
	}
	tb.Type = typ

	area := tx.Area()
	eob := codeEob(c, tb.Eob, area, cat, ptype)
	tb.Eob = eob

	w := tx.Width()
	lw := tx.Log2W()
	stride := w + levelPad
	var lvBuf [(block.MaxTxSide + levelPad) * (block.MaxTxSide + levelPad)]uint8
	lv := lvBuf[:stride*(tx.Height()+levelPad)]
	scan := block.Scan(tx)

	for i := eob - 1; i >= 0; i-- {
		pos := int(scan[i])
		r, col := pos>>lw, pos&(w-1)
		level := tb.Levels[pos]
		if level < 0 {
			level = -level
		}
		var l int
		if i == eob-1 {
			ctx := ctxIndex(cat, ptype, 4, eobBaseContext(i, area))
			l = c.Symbol(cdf.CoeffBaseEob, ctx, int(min(level, 3))-1) + 1
		} else {
			ctx := ctxIndex(cat, ptype, cdf.BaseContexts, baseContext(lv, stride, r, col))
			l = c.Symbol(cdf.CoeffBase, ctx, int(min(level, 3)))
		}
		if l == numBaseLevels {
			ctx := ctxIndex(cat, ptype, cdf.BrContexts, brContext(lv, stride, r, col))
			for k := 0; k < brSymbols; k++ {
				s := c.Symbol(cdf.CoeffBr, ctx, min(int(level)-l, cdf.BrCdfSize-1))
				l += s
				if s < cdf.BrCdfSize-1 {
					break
				}
			}
		}
		lv[r*stride+col] = uint8(l)
		if reading {
			tb.Levels[pos] = int32(l)
		}
	}

	for i := 0; i < eob; i++ {
		pos := scan[i]
		v := tb.Levels[pos]
		if v == 0 {
			continue
		}
		neg := v < 0
		mag := v
		if neg {
			mag = -mag
		}
		if pos == 0 {
			neg = c.Bool(cdf.DcSign, ptype*3+dcCtx, neg)
		} else {
			neg = c.Literal(uint32(b2i(neg)), 1) == 1
		}
		if mag >= maxBrLevel {
			mag = maxBrLevel + int32(golomb(c, uint32(mag-maxBrLevel)))
		}
		if neg {
			mag = -mag
		}
		tb.Levels[pos] = mag
	}
}

func codeEob(c Coder, eob, area, cat, ptype int) int {
	l2 := bits.Len(uint(area)) - 1
	k := 0
	if eob > 1 {
		k = bits.Len(uint(eob - 1))
	}
	k = c.Symbol(cdf.EobPt16+cdf.Kind(l2-4), ptype, k)
	if k < 2 {
		return k + 1
	}
	base := 1<<(k-1) + 1
	extra := max(eob-base, 0)
	nb := k - 1
	hi := c.Bool(cdf.EobExtra, ctxIndex(cat, ptype, cdf.EobClassesMax, k), (extra>>(nb-1))&1 == 1)
	v := b2i(hi) << (nb - 1)
	if nb > 1 {
		v |= int(c.Literal(uint32(extra&(1<<(nb-1)-1)), nb-1))
	}
	return base + v
}

// golomb codes v as an order-0 Exp-Golomb number with literal bits.
func golomb(c Coder, v uint32) uint32 {
	x := v + 1
	n := bits.Len32(x)
	i := 0
	for ; i < maxGolombLen; i++ {
		if c.Literal(uint32(b2i(i == n-1)), 1) == 1 {
			break
		}
	}
	n = i + 1
	x = 1
	for j := n - 2; j >= 0; j-- {
		x = x<<1 | c.Literal(((v+1)>>uint(j))&1, 1)
	}
	return x - 1
}
