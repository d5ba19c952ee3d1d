package syntax

import (
	"math/rand"
	"testing"

	"github.com/deepteams/av1/internal/bitio"
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/quant"
)

func testFrame(intra bool) *FrameInfo {
	fi := &FrameInfo{
		Width:       64,
		Height:      64,
		BitDepth:    8,
		Subsampling: frame.Subsampling420,
		NumPlanes:   3,
		Intra:       intra,
		BaseQ:       100,
	}
	if !intra {
		fi.RefCount = 3
		fi.RefDist = [block.InterRefsPerFrame]int{1, 2, -1}
	}
	return fi
}

// blockPositions tiles the frame with 16x16 cells, each either one block
// or four 8x8 blocks in coding order.
func blockPositions(rng *rand.Rand, fi *FrameInfo) []Block {
	var out []Block
	for y := 0; y < fi.Height; y += 16 {
		for x := 0; x < fi.Width; x += 16 {
			if rng.Intn(2) == 0 {
				out = append(out, Block{X: x, Y: y, Size: block.Block16x16})
				continue
			}
			for _, d := range [][2]int{{0, 0}, {8, 0}, {0, 8}, {8, 8}} {
				out = append(out, Block{X: x + d[0], Y: y + d[1], Size: block.Block8x8})
			}
		}
	}
	return out
}

func randomLevels(rng *rand.Rand, b *Block, fi *FrameInfo) {
	b.Layout(fi)
	for p := 0; p < fi.NumPlanes; p++ {
		for i := range b.Tx[p] {
			tb := &b.Tx[p][i]
			clear(tb.Levels)
			tb.Eob = 0
			tb.Type = block.DctDct
			if p == 0 && block.TxTypeSignaled(tb.Size) {
				tb.Type = block.TxType(rng.Intn(int(block.NumTxTypes)))
			}
			if rng.Intn(3) == 0 {
				continue
			}
			scan := block.Scan(tb.Size)
			for k := 1 + rng.Intn(6); k > 0; k-- {
				pos := scan[rng.Intn(min(len(scan), 20))]
				v := int32(1 + rng.Intn(20))
				if rng.Intn(10) == 0 {
					v = int32(1 + rng.Intn(5000))
				}
				if rng.Intn(2) == 0 {
					v = -v
				}
				tb.Levels[pos] = v
			}
			for e := len(scan); e > 0; e-- {
				if tb.Levels[scan[e-1]] != 0 {
					tb.Eob = e
					break
				}
			}
		}
	}
}

func randomModes(rng *rand.Rand, b *Block, fi *FrameInfo) {
	b.QIndex = fi.BaseQ
	b.Skip = rng.Intn(4) == 0
	b.TxSplit = rng.Intn(3) == 0
	b.YMode = block.PredMode(rng.Intn(int(block.NumIntraModes)))
	b.UVMode = block.PredMode(rng.Intn(int(block.NumIntraModes)))
	b.Inter = !fi.Intra && rng.Intn(4) != 0
	if !b.Inter {
		return
	}
	b.Compound = fi.CompoundAllowed() && rng.Intn(3) == 0
	b.Mode = block.InterMode(rng.Intn(int(block.NumInterModes)))
	b.RefIdx = [2]int{rng.Intn(fi.RefCount), -1}
	if b.Compound {
		i := rng.Intn(fi.RefCount - 1)
		b.RefIdx = [2]int{i, i + 1 + rng.Intn(fi.RefCount-1-i)}
		b.CompType = block.CompoundType(rng.Intn(2))
	}
	for k := range b.Mv {
		b.Mv[k] = block.MotionVector{
			Row: int32(rng.Intn(129)-64) * 2,
			Col: int32(rng.Intn(129)-64) * 2,
		}
	}
}

func sameBlock(t *testing.T, i int, got, want *Block, fi *FrameInfo) {
	t.Helper()
	if got.Skip != want.Skip || got.Inter != want.Inter || got.TxSplit != want.TxSplit {
		t.Fatalf("block %d: flags got skip=%v inter=%v split=%v, want %v %v %v",
			i, got.Skip, got.Inter, got.TxSplit, want.Skip, want.Inter, want.TxSplit)
	}
	if got.Inter {
		if got.Compound != want.Compound || got.Mode != want.Mode || got.RefIdx != want.RefIdx {
			t.Fatalf("block %d: inter info got %v %v %v, want %v %v %v",
				i, got.Compound, got.Mode, got.RefIdx, want.Compound, want.Mode, want.RefIdx)
		}
		if got.Mv[0] != want.Mv[0] || (got.Compound && (got.Mv[1] != want.Mv[1] || got.CompType != want.CompType)) {
			t.Fatalf("block %d: vectors got %v, want %v", i, got.Mv, want.Mv)
		}
	} else if got.YMode != want.YMode || got.UVMode != want.UVMode {
		t.Fatalf("block %d: modes got %v/%v, want %v/%v", i, got.YMode, got.UVMode, want.YMode, want.UVMode)
	}
	for p := 0; p < fi.NumPlanes; p++ {
		for j := range want.Tx[p] {
			g, w := &got.Tx[p][j], &want.Tx[p][j]
			if g.Eob != w.Eob || g.Type != w.Type {
				t.Fatalf("block %d plane %d tx %d: eob/type got %d/%d, want %d/%d", i, p, j, g.Eob, g.Type, w.Eob, w.Type)
			}
			if w.Eob == 0 {
				continue
			}
			for k := range w.Levels {
				if g.Levels[k] != w.Levels[k] {
					t.Fatalf("block %d plane %d tx %d: level %d got %d, want %d", i, p, j, k, g.Levels[k], w.Levels[k])
				}
			}
		}
	}
}

func roundTripBlocks(t *testing.T, fi *FrameInfo, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	blocks := blockPositions(rng, fi)

	encGrid := block.NewGrid(fi.Width, fi.Height)
	estGrid := block.NewGrid(fi.Width, fi.Height)
	enc := &Tile{Frame: fi, Grid: encGrid, Col1: encGrid.Cols, Row1: encGrid.Rows}
	est := &Tile{Frame: fi, Grid: estGrid, Col1: estGrid.Cols, Row1: estGrid.Rows}
	w := &Writer{W: bitio.NewSymbolWriter(0), Store: cdf.NewStore()}
	e := &Estimator{Store: cdf.NewStore()}

	for i := range blocks {
		b := &blocks[i]
		randomModes(rng, b, fi)
		randomLevels(rng, b, fi)
		eb := *b
		eb.Tx = [3][]TxBlock{}
		eb.levels = [3][]int32{}
		eb.Layout(fi)
		for p := range b.Tx {
			for j := range b.Tx[p] {
				eb.Tx[p][j].Type, eb.Tx[p][j].Eob = b.Tx[p][j].Type, b.Tx[p][j].Eob
				copy(eb.Tx[p][j].Levels, b.Tx[p][j].Levels)
			}
		}
		CodeBlock(w, enc, b)
		CodeBlock(e, est, &eb)
	}
	data := w.W.Finish()
	if !e.Store.Equal(w.Store) {
		t.Fatal("estimator contexts diverged from writer")
	}
	if e.Bits <= 0 {
		t.Fatal("estimator counted no bits")
	}
	// The estimate tracks the coded size closely; the range coder adds a
	// few bytes of flush.
	coded := len(data) * 8 << cdf.CostShift
	slack := coded/8 + 32<<cdf.CostShift
	if diff := e.Bits - coded; diff > slack || -diff > slack {
		t.Errorf("estimate %d, coded %d (1/256 bit)", e.Bits, coded)
	}

	decGrid := block.NewGrid(fi.Width, fi.Height)
	dec := &Tile{Frame: fi, Grid: decGrid, Col1: decGrid.Cols, Row1: decGrid.Rows}
	r := &Reader{R: bitio.NewSymbolReader(data), Store: cdf.NewStore()}
	for i := range blocks {
		got := &Block{X: blocks[i].X, Y: blocks[i].Y, Size: blocks[i].Size, QIndex: fi.BaseQ}
		CodeBlock(r, dec, got)
		sameBlock(t, i, got, &blocks[i], fi)
	}
	if !r.Store.Equal(w.Store) {
		t.Error("reader contexts diverged from writer")
	}
}

func TestCodeBlock_RoundTripIntra(t *testing.T) {
	roundTripBlocks(t, testFrame(true), 42)
}

func TestCodeBlock_RoundTripInter(t *testing.T) {
	for _, hp := range []bool{false, true} {
		fi := testFrame(false)
		fi.AllowHP = hp
		roundTripBlocks(t, fi, 43)
	}
}

func TestCodeMv_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var diffs []block.MotionVector
	w := &Writer{W: bitio.NewSymbolWriter(0), Store: cdf.NewStore()}
	for i := 0; i < 2000; i++ {
		hp := i%2 == 0
		d := block.MotionVector{
			Row: int32(rng.Intn(2*MvDiffLimit+1) - MvDiffLimit),
			Col: int32(rng.Intn(64) - 32),
		}
		if i%7 == 0 {
			d.Col = 0
		}
		if !hp {
			d.Row &^= 1
			d.Col &^= 1
		}
		diffs = append(diffs, d)
		if got := codeMv(w, d, hp); got != d {
			t.Fatalf("writer returned %v for %v", got, d)
		}
	}
	r := &Reader{R: bitio.NewSymbolReader(w.W.Finish()), Store: cdf.NewStore()}
	for i, d := range diffs {
		if got := codeMv(r, block.MotionVector{}, i%2 == 0); got != d {
			t.Fatalf("diff %d: got %v, want %v", i, got, d)
		}
	}
}

func TestCodeDeltaQ_RoundTrip(t *testing.T) {
	deltas := []int{0, 1, -1, 2, -2, 3, -3, 4, 7, -12, 63, -63, 200, -255, 0}
	w := &Writer{W: bitio.NewSymbolWriter(0), Store: cdf.NewStore()}
	for _, d := range deltas {
		CodeDeltaQ(w, d)
	}
	r := &Reader{R: bitio.NewSymbolReader(w.W.Finish()), Store: cdf.NewStore()}
	for _, d := range deltas {
		if got := CodeDeltaQ(r, 0); got != d {
			t.Errorf("delta %d decoded as %d", d, got)
		}
	}
}

func TestNodeEdge(t *testing.T) {
	fi := &FrameInfo{Width: 72, Height: 40}
	tests := []struct {
		x, y, n int
		want    EdgeRule
	}{
		{0, 0, 32, EdgeInside},
		{0, 0, 64, EdgeForced},
		{64, 0, 64, EdgeForced},
		{64, 0, 16, EdgeVertSplit},
		{0, 32, 16, EdgeHorzSplit},
		{64, 32, 8, EdgeInside},
		{72, 0, 8, EdgeOutside},
		{0, 48, 16, EdgeOutside},
	}
	for _, tt := range tests {
		if got := fi.NodeEdge(tt.x, tt.y, tt.n); got != tt.want {
			t.Errorf("NodeEdge(%d,%d,%d) = %d, want %d", tt.x, tt.y, tt.n, got, tt.want)
		}
	}
}

func TestCodePartition_RoundTrip(t *testing.T) {
	fi := &FrameInfo{Width: 72, Height: 40, NumPlanes: 1}
	g := block.NewGrid(fi.Width, fi.Height)
	tile := &Tile{Frame: fi, Grid: g, Col1: g.Cols, Row1: g.Rows}
	rng := rand.New(rand.NewSource(42))
	type node struct{ x, y, n int }
	nodes := []node{{0, 0, 64}, {64, 0, 64}, {0, 0, 32}, {32, 0, 16}, {64, 0, 16}, {0, 32, 16}, {16, 16, 16}}
	var want []block.Partition
	w := &Writer{W: bitio.NewSymbolWriter(0), Store: cdf.NewStore()}
	for _, nd := range nodes {
		allowed := fi.Allowed(nd.x, nd.y, nd.n)
		p := allowed[rng.Intn(len(allowed))]
		want = append(want, CodePartition(w, tile, nd.x, nd.y, nd.n, p))
		if want[len(want)-1] != p {
			t.Fatalf("node %v: writer returned %v for %v", nd, want[len(want)-1], p)
		}
	}
	r := &Reader{R: bitio.NewSymbolReader(w.W.Finish()), Store: cdf.NewStore()}
	for i, nd := range nodes {
		if got := CodePartition(r, tile, nd.x, nd.y, nd.n, 0); got != want[i] {
			t.Errorf("node %v: got %v, want %v", nd, got, want[i])
		}
	}
}

func TestTiles_CoverFrame(t *testing.T) {
	fi := &FrameInfo{Width: 200, Height: 136}
	g := block.NewGrid(fi.Width, fi.Height)
	tiles := Tiles(fi, g, 3, 2)
	if len(tiles) != 6 {
		t.Fatalf("got %d tiles, want 6", len(tiles))
	}
	seen := make([]int, g.Cols*g.Rows)
	for _, tl := range tiles {
		if tl.Col0%16 != 0 || tl.Row0%16 != 0 {
			t.Errorf("tile %+v not superblock aligned", tl.Rect())
		}
		for r := tl.Row0; r < tl.Row1; r++ {
			for c := tl.Col0; c < tl.Col1; c++ {
				seen[r*g.Cols+c]++
			}
		}
	}
	for i, n := range seen {
		if n != 1 {
			t.Fatalf("unit %d covered %d times", i, n)
		}
	}
}

func TestMvLegal(t *testing.T) {
	tests := []struct {
		mv   block.MotionVector
		want bool
	}{
		{block.MotionVector{}, true},
		{block.MotionVector{Row: -80 * 8, Col: 0}, true},
		{block.MotionVector{Row: -81 * 8, Col: 0}, false},
		{block.MotionVector{Row: 0, Col: 80 * 8}, true},
		{block.MotionVector{Row: 0, Col: 81 * 8}, false},
	}
	for _, tt := range tests {
		if got := MvLegal(0, 0, block.Block16x16, tt.mv, 16, 16, 96); got != tt.want {
			t.Errorf("MvLegal(%v) = %v, want %v", tt.mv, got, tt.want)
		}
	}
}

func TestReconstruct_SkipIntraIsFlat(t *testing.T) {
	fi := testFrame(true)
	g := block.NewGrid(fi.Width, fi.Height)
	tile := &Tile{Frame: fi, Grid: g, Col1: g.Cols, Row1: g.Rows}
	recon := frame.New(fi.Width, fi.Height, fi.BitDepth, fi.Subsampling, 32)
	b := &Block{Size: block.Block16x16, QIndex: 60, Skip: true, YMode: block.DCPred, UVMode: block.DCPred}
	b.Layout(fi)
	var s Scratch
	if err := tile.Reconstruct(recon, b, &s); err != nil {
		t.Fatal(err)
	}
	for p := 0; p < 3; p++ {
		n := 16 >> b2i(p > 0)
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				if v := recon.Planes[p].At(x, y); v != 128 {
					t.Fatalf("plane %d (%d,%d) = %d, want 128", p, x, y, v)
				}
			}
		}
		if !g.Decoded(p, 0, 0) || !g.Decoded(p, 3, 3) || g.Decoded(p, 4, 0) {
			t.Errorf("plane %d: decoded map does not match the block", p)
		}
	}
}

func TestReconstructTx_RejectsHugeLevel(t *testing.T) {
	fi := testFrame(true)
	b := &Block{Size: block.Block8x8, QIndex: 255}
	b.Layout(fi)
	tb := &b.Tx[0][0]
	tb.Levels[0] = 1 << 24
	tb.Eob = 1
	recon := frame.New(8, 8, 8, frame.Subsampling420, 32)
	q := quant.New(b.QIndex, 8, false)
	pred := make([]uint16, 64)
	var s Scratch
	if err := ReconstructTx(&q, tb, pred, 8, &recon.Planes[0], 8, &s); err != ErrCoeffRange {
		t.Errorf("got %v, want ErrCoeffRange", err)
	}
}
