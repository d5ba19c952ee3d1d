package rdo

import (
	"errors"
	"slices"

	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/me"
	"github.com/deepteams/av1/internal/quant"
	"github.com/deepteams/av1/internal/syntax"
)

var errTreeMismatch = errors.New("rdo: committed tree does not match partition walk")

// candidate is a prediction choice for a leaf, before residual coding.
type candidate struct {
	inter    bool
	compound bool
	yMode    block.PredMode
	uvMode   block.PredMode
	mode     block.InterMode
	compType block.CompoundType
	refIdx   [2]int
	mv       [2]block.MotionVector
	cost     uint64 // prescreen: SATD*256 plus weighted side rate
}

func (c *candidate) apply(b *syntax.Block) {
	b.Inter, b.Compound = c.inter, c.compound
	b.YMode, b.UVMode = c.yMode, c.uvMode
	b.Mode, b.CompType = c.mode, c.compType
	b.RefIdx, b.Mv = c.refIdx, c.mv
}

// encodeLeaf decides the modes and residual of the leaf of size s at luma
// (x, y), leaves its reconstruction in place and adapts st by coding it.
// It returns the block, its score and rate, and whether it is a skipped
// block with a small prediction error.
func (te *TileEncoder) encodeLeaf(x, y int, s block.Size, st *cdf.Store) (*syntax.Block, uint64, int, bool) {
	fi := te.f.Info
	t := &te.tile
	work, best := te.newBlock(), te.newBlock()
	work.X, work.Y, work.Size, work.QIndex = x, y, s, te.q
	rect := work.Rect4()

	te.cands = te.cands[:0]
	te.intraCandidates(work, st)
	if !fi.Intra {
		te.interCandidates(work, st)
	}

	splits := []bool{false}
	if maxTx := block.MaxTxSize(s.Width(), s.Height()); te.p.TxSplit && maxTx.Split() != maxTx {
		splits = append(splits, true)
	}
	bestCost := ^uint64(0)
	var bestDist uint64
	try := func(c *candidate, txSplit, skip bool) {
		te.f.Grid.MarkAll(rect, false)
		c.apply(work)
		work.TxSplit, work.Skip = txSplit, skip
		dist, ok := te.buildResidual(work, st)
		if !ok {
			return
		}
		est := &syntax.Estimator{Store: st.Clone()}
		syntax.CodeBlock(est, t, work)
		if cost := quant.Score(dist, est.Bits, te.lambda); cost < bestCost {
			bestCost, bestDist = cost, dist
			best.CopyFrom(work)
		}
	}
	for i := range te.cands {
		c := &te.cands[i]
		for _, split := range splits {
			try(c, split, false)
		}
		if c.inter && te.p.SkipTrial {
			try(c, false, true)
		}
	}

	te.f.Grid.MarkAll(rect, false)
	if err := t.Reconstruct(te.f.Recon, best, &te.scratch); err != nil {
		te.fail(err)
	}
	est := &syntax.Estimator{Store: st}
	syntax.CodeBlock(est, t, best)
	te.free = append(te.free, work)

	flat := false
	if best.Skip && te.p.PruneSplit > 0 {
		lim := uint64(te.p.PruneSplit*te.p.PruneSplit*s.Width()*s.Height()) << uint(2*(fi.BitDepth-8))
		flat = bestDist < lim
	}
	return best, bestCost, est.Bits, flat
}

// prescreenCost combines a SATD with a side-information rate in 1/256 bit.
func (te *TileEncoder) prescreenCost(satd uint32, rate int) uint64 {
	return uint64(satd)*256 + uint64(rate*te.weight)>>8
}

// keepBest sorts the candidates from index start on by prescreen cost
// and keeps the first k.
func (te *TileEncoder) keepBest(start, k int) {
	tail := te.cands[start:]
	slices.SortStableFunc(tail, func(a, b candidate) int {
		switch {
		case a.cost < b.cost:
			return -1
		case a.cost > b.cost:
			return 1
		}
		return 0
	})
	if len(tail) > k {
		te.cands = te.cands[:start+k]
	}
}

// intraCandidates ranks the luma modes by the SATD of the first transform
// block and picks one chroma mode for all of them.
func (te *TileEncoder) intraCandidates(b *syntax.Block, st *cdf.Store) {
	fi := te.f.Info
	t := &te.tile
	start := len(te.cands)
	k, ctx := t.YModeContext(b.X, b.Y, b.Size)
	yCDF := st.CDF(k, ctx)

	tx := block.MaxTxSize(b.Size.Width(), b.Size.Height())
	tb := syntax.TxBlock{X: b.X, Y: b.Y, Size: tx}
	tw, th := tx.Width(), tx.Height()
	src := &te.f.Src.Planes[0]
	pred := te.scratch.Pred[0][:]
	for _, m := range te.p.IntraModes {
		t.PredictIntraTx(te.f.Recon, 0, &tb, m, pred, tw)
		satd := dsp.SATD(src.Data[src.Offset(b.X, b.Y):], src.Stride, pred, tw, tw, th)
		te.cands = append(te.cands, candidate{
			yMode:  m,
			refIdx: [2]int{-1, -1},
			cost:   te.prescreenCost(satd, cdf.Cost(yCDF, int(m))),
		})
	}
	te.keepBest(start, te.p.IntraTopK)

	uv := block.DCPred
	if fi.NumPlanes > 1 {
		uv = te.chromaMode(b, te.cands[start].yMode, st)
	}
	for i := start; i < len(te.cands); i++ {
		te.cands[i].uvMode = uv
	}
}

func (te *TileEncoder) chromaMode(b *syntax.Block, yMode block.PredMode, st *cdf.Store) block.PredMode {
	t := &te.tile
	sx, sy := te.f.Recon.PlaneShift(1)
	bw, bh := b.Size.Width()>>sx, b.Size.Height()>>sy
	tx := block.TxSizeFor(bw, bh)
	tw, th := tx.Width(), tx.Height()
	tb := syntax.TxBlock{X: b.X >> sx, Y: b.Y >> sy, Size: tx}
	f := st.CDF(cdf.UVMode, int(yMode))
	best, bestCost := block.DCPred, ^uint64(0)
	for _, m := range te.p.IntraModes {
		var satd uint32
		for p := 1; p < te.f.Info.NumPlanes; p++ {
			pred := te.scratch.Pred[p][:]
			t.PredictIntraTx(te.f.Recon, p, &tb, m, pred, tw)
			src := &te.f.Src.Planes[p]
			satd += dsp.SATD(src.Data[src.Offset(tb.X, tb.Y):], src.Stride, pred, tw, tw, th)
		}
		if c := te.prescreenCost(satd, cdf.Cost(f, int(m))); c < bestCost {
			best, bestCost = m, c
		}
	}
	return best
}

// single is the motion search result of one reference.
type single struct {
	idx  int
	mv   block.MotionVector
	cost uint64
}

// interCandidates searches every active reference and ranks the
// resulting single and compound modes by luma SATD.
func (te *TileEncoder) interCandidates(b *syntax.Block, st *cdf.Store) {
	fi := te.f.Info
	t := &te.tile
	start := len(te.cands)
	src := &te.f.Src.Planes[0]
	srcBlk := src.Data[src.Offset(b.X, b.Y):]

	var singles []single
	for i := 0; i < fi.RefCount; i++ {
		if fi.Refs[i] == nil {
			continue
		}
		refs := [2]block.RefFrame{block.LastFrame + block.RefFrame(i), block.NoneFrame}
		mc := t.MvCandidates(b.X, b.Y, b.Size, refs, false)
		f := st.CDF(cdf.InterMode, min(mc.N, 2)*2+b2i(mc.NewNeighbour))
		res := te.searcher.Search(&me.Request{
			Src: srcBlk, SrcStride: src.Stride,
			X: b.X, Y: b.Y, Size: b.Size,
			Ref:    &fi.Refs[i].Planes[0],
			Pred:   mc.Mv[0][0],
			Starts: []block.MotionVector{mc.Mv[1][0]},
		})
		singles = append(singles, single{idx: i, mv: res.Mv, cost: res.Cost})

		add := func(mode block.InterMode, mv block.MotionVector, extra int) {
			c := candidate{
				inter:  true,
				mode:   mode,
				refIdx: [2]int{i, -1},
				mv:     [2]block.MotionVector{mv},
			}
			te.addInter(b, &c, cdf.Cost(f, int(mode))+extra)
		}
		add(block.NearestMV, mc.Mv[0][0], 0)
		if mc.N >= 2 {
			add(block.NearMV, mc.Mv[1][0], 0)
		}
		add(block.GlobalMV, block.MotionVector{}, 0)
		if res.Mv != mc.Mv[0][0] && diffCodable(res.Mv, mc.Mv[0][0]) {
			add(block.NewMV, res.Mv, me.MvRate(res.Mv, mc.Mv[0][0], fi.AllowHP))
		}
	}

	if te.p.Compound && fi.CompoundAllowed() && len(singles) >= 2 {
		slices.SortStableFunc(singles, func(a, b single) int {
			switch {
			case a.cost < b.cost:
				return -1
			case a.cost > b.cost:
				return 1
			}
			return 0
		})
		a, c := singles[0], singles[1]
		if a.idx > c.idx {
			a, c = c, a
		}
		te.compoundCandidates(b, st, a, c)
	}
	te.keepBest(start, te.p.InterTopK)
}

func (te *TileEncoder) compoundCandidates(b *syntax.Block, st *cdf.Store, a, c single) {
	fi := te.f.Info
	t := &te.tile
	src := &te.f.Src.Planes[0]
	refs := [2]block.RefFrame{block.LastFrame + block.RefFrame(a.idx), block.LastFrame + block.RefFrame(c.idx)}
	mc := t.MvCandidates(b.X, b.Y, b.Size, refs, true)
	f := st.CDF(cdf.CompInterMode, min(mc.N, 2)*2+b2i(mc.NewNeighbour))

	for _, ct := range []block.CompoundType{block.CompoundAverage, block.CompoundDistance} {
		add := func(mode block.InterMode, mvs [2]block.MotionVector, extra int) {
			cand := candidate{
				inter:    true,
				compound: true,
				mode:     mode,
				compType: ct,
				refIdx:   [2]int{a.idx, c.idx},
				mv:       mvs,
			}
			te.addInter(b, &cand, cdf.Cost(f, int(mode))+extra)
		}
		add(block.NearestMV, mc.Mv[0], 0)
		if mc.N >= 2 {
			add(block.NearMV, mc.Mv[1], 0)
		}
		add(block.GlobalMV, [2]block.MotionVector{}, 0)

		w0 := 8
		if ct == block.CompoundDistance {
			w0 = dsp.DistanceWeight(fi.RefDist[a.idx], fi.RefDist[c.idx])
		}
		mvs := te.searcher.RefineCompound(&me.CompoundRequest{
			Src: src.Data[src.Offset(b.X, b.Y):], SrcStride: src.Stride,
			X: b.X, Y: b.Y, Size: b.Size,
			Refs:    [2]*frame.Plane{&fi.Refs[a.idx].Planes[0], &fi.Refs[c.idx].Planes[0]},
			Preds:   mc.Mv[0],
			Weight0: w0,
		}, [2]block.MotionVector{a.mv, c.mv})
		if mvs != mc.Mv[0] && diffCodable(mvs[0], mc.Mv[0][0]) && diffCodable(mvs[1], mc.Mv[0][1]) {
			rate := me.MvRate(mvs[0], mc.Mv[0][0], fi.AllowHP) + me.MvRate(mvs[1], mc.Mv[0][1], fi.AllowHP)
			add(block.NewMV, mvs, rate)
		}
	}
}

// addInter appends c when its vectors are usable, costed by the SATD of
// its luma prediction.
func (te *TileEncoder) addInter(b *syntax.Block, c *candidate, rate int) {
	fi := te.f.Info
	nref := 1 + b2i(c.compound)
	for k := 0; k < nref; k++ {
		ref := &fi.Refs[c.refIdx[k]].Planes[0]
		if !syntax.MvLegal(b.X, b.Y, b.Size, c.mv[k], ref.Width, ref.Height, ref.Border) {
			return
		}
	}
	probe := &te.probe
	probe.X, probe.Y, probe.Size = b.X, b.Y, b.Size
	c.apply(probe)
	w, h := b.Size.Width(), b.Size.Height()
	pred := te.scratch.Pred[0][:]
	if err := te.tile.PredictInter(probe, 0, pred, w, &te.scratch); err != nil {
		return
	}
	src := &te.f.Src.Planes[0]
	satd := dsp.SATD(src.Data[src.Offset(b.X, b.Y):], src.Stride, pred, w, w, h)
	c.cost = te.prescreenCost(satd, rate)
	te.cands = append(te.cands, *c)
}

// diffCodable reports whether mv can be coded as a difference from pred.
func diffCodable(mv, pred block.MotionVector) bool {
	d := mv.Sub(pred)
	return d.Row > -syntax.MvDiffLimit && d.Row < syntax.MvDiffLimit &&
		d.Col > -syntax.MvDiffLimit && d.Col < syntax.MvDiffLimit
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
