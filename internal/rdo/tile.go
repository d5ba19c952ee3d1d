package rdo

import (
	"github.com/deepteams/av1/internal/bitio"
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/me"
	"github.com/deepteams/av1/internal/quant"
	"github.com/deepteams/av1/internal/syntax"
)

// Frame is the frame-wide state the tile encoders of one frame share.
// Tiles write disjoint parts of Recon and Grid.
type Frame struct {
	Info   *syntax.FrameInfo
	Src    *frame.Frame // source at the coded size, borders replicated
	Recon  *frame.Frame
	Grid   *block.Grid
	Params Params
	// QIndex holds the requested quantizer index of every superblock in
	// raster order; nil codes every superblock at Info.BaseQ.
	QIndex []int
}

// SuperblockCols returns the number of superblock columns of f.
func (f *Frame) SuperblockCols() int {
	return (f.Info.Width + block.SuperblockSize - 1) / block.SuperblockSize
}

// Tree is the committed coding decisions of a tile in coding order: one
// SuperblockInfo per superblock, the partition of every coded node and
// the leaf blocks.
type Tree struct {
	SB     []syntax.SuperblockInfo
	Parts  []block.Partition
	Blocks []*syntax.Block
}

// result is the outcome of searching one node: its cost, the decisions
// below it and the context state after coding them.
type result struct {
	cost   uint64
	rate   int
	parts  []block.Partition
	blocks []*syntax.Block
	store  *cdf.Store
	// flat reports a single skipped leaf with low prediction error.
	flat bool
}

// maxDepth is the number of partition levels from a superblock down to
// the smallest node.
const maxDepth = 4

// TileEncoder searches the superblocks of one tile. It owns the tile's
// context store and scratch buffers; distinct tiles may run concurrently.
type TileEncoder struct {
	f        *Frame
	tile     syntax.Tile
	p        Params
	store    *cdf.Store
	searcher *me.Searcher

	q, lambda int
	weight    int // one bit against SATD*256
	prevQ     int

	scratch syntax.Scratch
	res     [block.MaxTxSide * block.MaxTxSide]int32
	coef    [block.MaxTxSide * block.MaxTxSide]int32
	deq     [block.MaxTxSide * block.MaxTxSide]int32
	lv      [block.MaxTxSide * block.MaxTxSide]int32
	bestLv  [block.MaxTxSide * block.MaxTxSide]int32
	snaps   [maxDepth][2]snapshot
	cands   []candidate
	probe   syntax.Block
	free    []*syntax.Block
	err     error

	// Tree receives the committed decisions of every superblock searched.
	Tree Tree
	// Bits is the estimated size of the committed decisions, in 1/256 bit.
	Bits int
	// Cost is the rate-distortion score of the committed decisions.
	Cost uint64
}

// NewTileEncoder returns an encoder for tile t of f, starting from the
// contexts of store (which it takes ownership of).
func NewTileEncoder(f *Frame, t syntax.Tile, store *cdf.Store) *TileEncoder {
	te := &TileEncoder{
		f:     f,
		tile:  t,
		p:     f.Params,
		store: store,
		prevQ: f.Info.BaseQ,
	}
	lambda := quant.Lambda(f.Info.BaseQ, f.Info.BitDepth)
	te.searcher = me.NewSearcher(f.Params.Motion, lambda, f.Info.BitDepth, f.Info.AllowHP)
	return te
}

// Tile returns the tile being encoded.
func (te *TileEncoder) Tile() *syntax.Tile { return &te.tile }

// Encode searches every superblock of the tile in raster order.
func (te *TileEncoder) Encode() error {
	r := te.tile.Rect()
	const sb = block.SuperblockSize
	for y := r.Y; y < r.Y+r.H; y += sb {
		for x := r.X; x < r.X+r.W; x += sb {
			if err := te.EncodeSuperblock(x, y); err != nil {
				return err
			}
		}
	}
	return nil
}

func (te *TileEncoder) fail(err error) {
	if te.err == nil {
		te.err = err
	}
}

// EncodeSuperblock searches and commits the superblock at luma (x, y).
func (te *TileEncoder) EncodeSuperblock(x, y int) error {
	fi := te.f.Info
	info := syntax.SuperblockInfo{QIndex: fi.BaseQ}
	if te.f.QIndex != nil {
		const sb = block.SuperblockSize
		info.QIndex = te.f.QIndex[(y/sb)*te.f.SuperblockCols()+x/sb]
	}
	// Deltas are coded in steps of DeltaQRes from the previous superblock.
	if fi.DeltaQ {
		d := (info.QIndex - te.prevQ) / syntax.DeltaQRes
		for te.prevQ+d*syntax.DeltaQRes > quant.NumQIndex-1 {
			d--
		}
		for te.prevQ+d*syntax.DeltaQRes < 1 {
			d++
		}
		info.QIndex = te.prevQ + d*syntax.DeltaQRes
	}
	est := &syntax.Estimator{Store: te.store}
	syntax.CodeSuperblockInfo(est, fi, te.prevQ, &info)
	te.prevQ = info.QIndex
	te.setQ(info.QIndex)

	res := te.searchNode(x, y, block.SuperblockSize, 0, te.store)
	if te.err != nil {
		return te.err
	}
	te.store = res.store
	te.Bits += est.Bits + res.rate
	te.Cost += quant.Score(0, est.Bits, te.lambda) + res.cost
	te.Tree.SB = append(te.Tree.SB, info)
	te.Tree.Parts = append(te.Tree.Parts, res.parts...)
	te.Tree.Blocks = append(te.Tree.Blocks, res.blocks...)
	return nil
}


func (te *TileEncoder) setQ(q int) {
	te.q = q
	te.lambda = quant.Lambda(q, te.f.Info.BitDepth)
	te.weight = me.Weight(te.lambda)
	te.searcher.SetLambda(te.lambda)
}

func (te *TileEncoder) newBlock() *syntax.Block {
	if n := len(te.free); n > 0 {
		b := te.free[n-1]
		te.free = te.free[:n-1]
		return b
	}
	return &syntax.Block{}
}

func (te *TileEncoder) release(r *result) {
	te.free = append(te.free, r.blocks...)
	r.blocks = nil
}

// searchNode returns the best coding of the square node of side n at luma
// (x, y), starting from contexts st. On return the reconstruction and grid
// hold the winning candidate's state. Candidates are tried in partition
// symbol order with NONE first and only a strictly lower cost replaces
// the incumbent, so ties keep the less split choice.
func (te *TileEncoder) searchNode(x, y, n, depth int, st *cdf.Store) result {
	fi := te.f.Info
	edge := fi.NodeEdge(x, y, n)
	if edge == syntax.EdgeOutside {
		return result{store: st}
	}
	allowed := fi.Allowed(x, y, n)
	if edge == syntax.EdgeInside && len(allowed) > te.p.Partitions {
		allowed = allowed[:te.p.Partitions]
	}

	start, bestSnap := &te.snaps[depth][0], &te.snaps[depth][1]
	start.save(te.f.Recon, te.f.Grid, x, y, n, n)
	var best result
	have, bestIsLast := false, false
	for i, p := range allowed {
		if have && best.flat && p != block.PartitionNone && te.p.PruneSplit > 0 {
			break
		}
		if i > 0 {
			start.restore(te.f.Recon, te.f.Grid)
		}
		cand := te.evalPartition(x, y, n, depth, p, st)
		if !have || cand.cost < best.cost {
			if have {
				te.release(&best)
			}
			best, have, bestIsLast = cand, true, true
			if i < len(allowed)-1 {
				bestSnap.save(te.f.Recon, te.f.Grid, x, y, n, n)
			}
		} else {
			te.release(&cand)
			bestIsLast = false
		}
	}
	if !bestIsLast {
		bestSnap.restore(te.f.Recon, te.f.Grid)
	}
	return best
}

func (te *TileEncoder) evalPartition(x, y, n, depth int, p block.Partition, st *cdf.Store) result {
	fi := te.f.Info
	s := st.Clone()
	est := &syntax.Estimator{Store: s}
	syntax.CodePartition(est, &te.tile, x, y, n, p)
	r := result{
		cost:  quant.Score(0, est.Bits, te.lambda),
		rate:  est.Bits,
		parts: []block.Partition{p},
	}
	if p == block.PartitionSplit {
		h := n / 2
		for _, d := range [4][2]int{{0, 0}, {h, 0}, {0, h}, {h, h}} {
			c := te.searchNode(x+d[0], y+d[1], h, depth+1, s)
			s = c.store
			r.cost += c.cost
			r.rate += c.rate
			r.parts = append(r.parts, c.parts...)
			r.blocks = append(r.blocks, c.blocks...)
		}
		r.store = s
		return r
	}
	for _, lr := range block.Layout(p, n) {
		lx, ly := x+lr.X, y+lr.Y
		if lx >= fi.Width || ly >= fi.Height {
			continue
		}
		size, _ := block.SizeFor(lr.W, lr.H)
		b, cost, rate, flat := te.encodeLeaf(lx, ly, size, s)
		r.cost += cost
		r.rate += rate
		r.blocks = append(r.blocks, b)
		r.flat = flat && p == block.PartitionNone
	}
	r.store = s
	return r
}

// WriteTile codes the committed tree of a tile with a fresh writer,
// starting from contexts store, and returns the tile payload and the
// contexts at its end. The tile's grid is rebuilt in the process.
func WriteTile(t *syntax.Tile, tree *Tree, store *cdf.Store) ([]byte, *cdf.Store, error) {
	fi := t.Frame
	t.ResetGrid()
	w := &syntax.Writer{W: bitio.NewSymbolWriter(0), Store: store}
	prevQ := fi.BaseQ
	pi, bi := 0, 0
	choose := func(x, y, n int) block.Partition {
		p := tree.Parts[pi]
		pi++
		return p
	}
	leaf := func(x, y int, s block.Size) error {
		b := tree.Blocks[bi]
		bi++
		if b.X != x || b.Y != y || b.Size != s {
			return errTreeMismatch
		}
		syntax.CodeBlock(w, t, b)
		return nil
	}
	r := t.Rect()
	const sb = block.SuperblockSize
	k := 0
	for y := r.Y; y < r.Y+r.H; y += sb {
		for x := r.X; x < r.X+r.W; x += sb {
			info := tree.SB[k]
			k++
			syntax.CodeSuperblockInfo(w, fi, prevQ, &info)
			prevQ = info.QIndex
			if err := syntax.WalkTree(w, t, x, y, sb, choose, leaf); err != nil {
				return nil, nil, err
			}
		}
	}
	data := w.W.Finish()
	if err := w.W.Err(); err != nil {
		return nil, nil, err
	}
	return data, w.Store, nil
}
