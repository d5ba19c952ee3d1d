package rdo

import (
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/quant"
	"github.com/deepteams/av1/internal/syntax"
)

// buildResidual predicts, quantizes and reconstructs every transform
// block of b in coding order, marking each one decoded, and returns the
// sample distortion of the block over all planes. ok is false when the
// block cannot be reconstructed (an illegal vector or a coefficient out
// of range); the reconstruction is then partial.
func (te *TileEncoder) buildResidual(b *syntax.Block, st *cdf.Store) (dist uint64, ok bool) {
	fi := te.f.Info
	t := &te.tile
	b.Layout(fi)
	q := quant.New(b.QIndex, fi.BitDepth, b.Inter)
	nonzero := false
	for p := 0; p < fi.NumPlanes; p++ {
		sx, sy := te.f.Recon.PlaneShift(p)
		bw, bh := b.Size.Width()>>sx, b.Size.Height()>>sy
		px, py := b.X>>sx, b.Y>>sy
		pred := te.scratch.Pred[p][:]
		if b.Inter {
			if err := t.PredictInter(b, p, pred, bw, &te.scratch); err != nil {
				return 0, false
			}
		}
		mode := b.YMode
		if p > 0 {
			mode = b.UVMode
		}
		src := &te.f.Src.Planes[p]
		out := &te.f.Recon.Planes[p]
		var rm *syntax.TxRate
		for i := range b.Tx[p] {
			tb := &b.Tx[p][i]
			off := (tb.Y-py)*bw + tb.X - px
			if !b.Inter {
				t.PredictIntraTx(te.f.Recon, p, tb, mode, pred[off:], bw)
			}
			if b.Skip {
				tb.Eob, tb.Type = 0, block.DctDct
			} else {
				if rm == nil {
					rm = syntax.NewTxRate(st, tb.Size, p)
				}
				te.quantizeTx(b, p, tb, &q, rm, st, src.Data[src.Offset(tb.X, tb.Y):], src.Stride, pred[off:], bw)
			}
			if err := syntax.ReconstructTx(&q, tb, pred[off:], bw, out, fi.BitDepth, &te.scratch); err != nil {
				return 0, false
			}
			t.MarkTx(p, tb)
			nonzero = nonzero || tb.Eob > 0
		}
		dist += dsp.SSE(src.Data[src.Offset(px, py):], src.Stride, out.Data[out.Offset(px, py):], out.Stride, bw, bh)
	}
	if !nonzero {
		b.Skip = true
	}
	return dist, true
}

// quantizeTx chooses the transform type and levels of tb from the
// residual between src and pred, minimizing coefficient distortion plus
// estimated rate.
func (te *TileEncoder) quantizeTx(b *syntax.Block, p int, tb *syntax.TxBlock, q *quant.Params, rm *syntax.TxRate,
	st *cdf.Store, src []uint16, srcStride int, pred []uint16, predStride int) {
	w, h := tb.Size.Width(), tb.Size.Height()
	area := w * h
	res := te.res[:area]
	for r := 0; r < h; r++ {
		s := src[r*srcStride : r*srcStride+w]
		pr := pred[r*predStride : r*predStride+w]
		for c := range s {
			res[r*w+c] = int32(s[c]) - int32(pr[c])
		}
	}

	types := dctOnly
	var typeCDF []uint16
	if p == 0 && block.TxTypeSignaled(tb.Size) {
		types = te.p.TxTypes
		set := block.TxSetCategory(tb.Size)
		if b.Inter {
			typeCDF = st.CDF(cdf.TxTypeInter, set)
		} else {
			typeCDF = st.CDF(cdf.TxTypeIntra, set*cdf.IntraModes+int(b.YMode))
		}
	}

	scan := block.Scan(tb.Size)
	coef, lv, deq := te.coef[:area], te.lv[:area], te.deq[:area]
	lam := uint64(te.lambda)
	bestScore := ^uint64(0)
	bestEob, bestType := 0, block.DctDct
	for _, typ := range types {
		dsp.ForwardTransform(res, coef, tb.Size, typ)
		eob := q.Quantize(coef, lv, scan)
		if te.p.Optimize {
			eob = q.Optimize(coef, lv, scan, eob, te.lambda, rm)
		}
		var d uint64
		rate := 0
		if eob == 0 {
			for _, c := range coef {
				d += uint64(4 * int64(c) * int64(c))
			}
		} else {
			if !q.Dequantize(lv, deq, scan, eob) {
				continue
			}
			for i, c := range coef {
				e := int64(c) - int64(deq[i])
				d += uint64(4 * e * e)
			}
			for i := 0; i < eob; i++ {
				rate += rm.LevelCost(i, lv[scan[i]])
			}
			rate += rm.EobCost(eob)
			if typeCDF != nil {
				rate += cdf.Cost(typeCDF, int(typ))
			}
		}
		if s := d + lam*uint64(rate); s < bestScore {
			bestScore, bestEob, bestType = s, eob, typ
			copy(te.bestLv[:area], lv)
		}
	}
	tb.Eob = bestEob
	if bestEob == 0 {
		tb.Type = block.DctDct
		clear(tb.Levels)
		return
	}
	tb.Type = bestType
	copy(tb.Levels, te.bestLv[:area])
}
