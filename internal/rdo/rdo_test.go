package rdo

import (
	"math/rand"
	"testing"

	"github.com/deepteams/av1/internal/bitio"
	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/syntax"
)

const testBorder = 64

// texture is a deterministic smooth-plus-noise picture function.
func texture(rng *rand.Rand, w, h int) [][]uint16 {
	img := make([][]uint16, h)
	for y := range img {
		img[y] = make([]uint16, w)
		for x := range img[y] {
			v := 60 + (x*3+y*2)%120 + rng.Intn(24)
			if (x/8+y/8)%3 == 0 {
				v += 40
			}
			img[y][x] = uint16(min(v, 255))
		}
	}
	return img
}

// sourceFrame builds a frame whose luma at (x, y) is img[y+dy][x+dx] and
// whose chroma is a coarser copy.
func sourceFrame(img [][]uint16, w, h, dx, dy int) *frame.Frame {
	f := frame.New(w, h, 8, frame.Subsampling420, testBorder)
	for p := 0; p < f.NumPlanes; p++ {
		sx, sy := f.PlaneShift(p)
		pl := &f.Planes[p]
		for y := 0; y < pl.Height; y++ {
			for x := 0; x < pl.Width; x++ {
				v := img[(y<<sy)+dy][(x<<sx)+dx]
				if p > 0 {
					v = 64 + v/2
				}
				pl.Set(x, y, v)
			}
		}
	}
	f.ExtendBorders()
	return f
}

func frameInfo(f *frame.Frame, intra bool) *syntax.FrameInfo {
	return &syntax.FrameInfo{
		Width:       f.CodedWidth,
		Height:      f.CodedHeight,
		BitDepth:    8,
		Subsampling: frame.Subsampling420,
		NumPlanes:   3,
		Intra:       intra,
		BaseQ:       96,
	}
}

type encoded struct {
	recon *frame.Frame
	te    *TileEncoder
	data  []byte
}

func encodeFrame(t *testing.T, fi *syntax.FrameInfo, src *frame.Frame, p Params) encoded {
	t.Helper()
	recon := frame.New(src.Width, src.Height, 8, frame.Subsampling420, testBorder)
	g := block.NewGrid(fi.Width, fi.Height)
	f := &Frame{Info: fi, Src: src, Recon: recon, Grid: g, Params: p}
	te := NewTileEncoder(f, syntax.Tiles(fi, g, 1, 1)[0], cdf.NewStore())
	if err := te.Encode(); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data, _, err := WriteTile(te.Tile(), &te.Tree, cdf.NewStore())
	if err != nil {
		t.Fatalf("WriteTile: %v", err)
	}
	return encoded{recon: recon, te: te, data: data}
}

// decodeFrame parses a single-tile payload and reconstructs it.
func decodeFrame(t *testing.T, fi *syntax.FrameInfo, w, h int, data []byte) *frame.Frame {
	t.Helper()
	out := frame.New(w, h, 8, frame.Subsampling420, testBorder)
	g := block.NewGrid(fi.Width, fi.Height)
	tile := syntax.Tiles(fi, g, 1, 1)[0]
	r := &syntax.Reader{R: bitio.NewSymbolReader(data), Store: cdf.NewStore()}
	var s syntax.Scratch
	prevQ := fi.BaseQ
	const sb = block.SuperblockSize
	for y := 0; y < fi.Height; y += sb {
		for x := 0; x < fi.Width; x += sb {
			var info syntax.SuperblockInfo
			syntax.CodeSuperblockInfo(r, fi, prevQ, &info)
			prevQ = info.QIndex
			err := syntax.WalkTree(r, &tile, x, y, sb, nil, func(bx, by int, size block.Size) error {
				b := &syntax.Block{X: bx, Y: by, Size: size, QIndex: info.QIndex}
				syntax.CodeBlock(r, &tile, b)
				return tile.Reconstruct(out, b, &s)
			})
			if err != nil {
				t.Fatalf("decode superblock (%d,%d): %v", x, y, err)
			}
		}
	}
	return out
}

func TestEncodeIntra_DecoderMatchesReconstruction(t *testing.T) {
	for _, speed := range []int{2, 8} {
		rng := rand.New(rand.NewSource(42))
		img := texture(rng, 96, 64)
		// 72x40 exercises both frame-edge partition rules.
		src := sourceFrame(img, 72, 40, 0, 0)
		fi := frameInfo(src, true)
		enc := encodeFrame(t, fi, src, ParamsForSpeed(speed))
		dec := decodeFrame(t, fi, 72, 40, enc.data)
		if p, x, y, bad := enc.recon.FirstMismatch(dec); bad {
			t.Fatalf("speed %d: decoder differs at plane %d (%d,%d)", speed, p, x, y)
		}
		if len(enc.te.Tree.SB) != 2 {
			t.Errorf("speed %d: %d superblocks, want 2", speed, len(enc.te.Tree.SB))
		}
	}
}

func TestEncodeInter_DecoderMatchesReconstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	img := texture(rng, 96, 96)
	const w, h = 64, 64
	src0 := sourceFrame(img, w, h, 0, 0)
	fi0 := frameInfo(src0, true)
	key := encodeFrame(t, fi0, src0, ParamsForSpeed(6))
	key.recon.ExtendBorders()

	src1 := sourceFrame(img, w, h, 3, 2)
	fi1 := frameInfo(src1, false)
	fi1.RefCount = 1
	fi1.RefDist[0] = 1
	fi1.Refs[0] = key.recon
	enc := encodeFrame(t, fi1, src1, ParamsForSpeed(6))
	dec := decodeFrame(t, fi1, w, h, enc.data)
	if p, x, y, bad := enc.recon.FirstMismatch(dec); bad {
		t.Fatalf("decoder differs at plane %d (%d,%d)", p, x, y)
	}

	inter := 0
	for _, b := range enc.te.Tree.Blocks {
		if b.Inter {
			inter++
		}
	}
	if 2*inter < len(enc.te.Tree.Blocks) {
		t.Errorf("%d of %d blocks inter, want a majority for a shifted picture", inter, len(enc.te.Tree.Blocks))
	}
	if len(enc.data) >= len(key.data) {
		t.Errorf("inter frame %d bytes, key frame %d", len(enc.data), len(key.data))
	}
}

func TestSearch_NeverWorseThanNone(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	img := texture(rng, 64, 64)
	src := sourceFrame(img, 64, 64, 0, 0)

	full := ParamsForSpeed(0)
	full.PruneSplit = 0
	full.IntraTopK = 2
	none := full
	none.Partitions = 1

	a := encodeFrame(t, frameInfo(src, true), src, full)
	b := encodeFrame(t, frameInfo(src, true), src, none)
	if a.te.Cost > b.te.Cost {
		t.Errorf("full search cost %d, NONE only %d", a.te.Cost, b.te.Cost)
	}
	if got := b.te.Tree.Parts[0]; got != block.PartitionNone {
		t.Errorf("NONE-only root partition %v", got)
	}
}

func TestDeltaQ_SnapsToResolution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	img := texture(rng, 128, 64)
	src := sourceFrame(img, 128, 64, 0, 0)
	fi := frameInfo(src, true)
	fi.DeltaQ = true
	recon := frame.New(128, 64, 8, frame.Subsampling420, testBorder)
	g := block.NewGrid(fi.Width, fi.Height)
	f := &Frame{Info: fi, Src: src, Recon: recon, Grid: g, Params: ParamsForSpeed(8), QIndex: []int{90, 250}}
	te := NewTileEncoder(f, syntax.Tiles(fi, g, 1, 1)[0], cdf.NewStore())
	if err := te.Encode(); err != nil {
		t.Fatal(err)
	}
	// Deltas truncate toward the previous superblock: 96 -> 92 -> 248.
	want := []int{92, 248}
	for i, sb := range te.Tree.SB {
		if sb.QIndex != want[i] {
			t.Errorf("superblock %d: q %d, want %d", i, sb.QIndex, want[i])
		}
	}
	for _, b := range te.Tree.Blocks {
		if b.X < 64 && b.QIndex != want[0] || b.X >= 64 && b.QIndex != want[1] {
			t.Errorf("block (%d,%d) q %d", b.X, b.Y, b.QIndex)
		}
	}
	dec := decodeFrame(t, fi, 128, 64, mustWrite(t, te))
	if p, x, y, bad := recon.FirstMismatch(dec); bad {
		t.Fatalf("decoder differs at plane %d (%d,%d)", p, x, y)
	}
}

func mustWrite(t *testing.T, te *TileEncoder) []byte {
	t.Helper()
	data, _, err := WriteTile(te.Tile(), &te.Tree, cdf.NewStore())
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestParamsForSpeed(t *testing.T) {
	slow, fast := ParamsForSpeed(0), ParamsForSpeed(10)
	if slow.Partitions != int(block.NumPartitions) || slow.PruneSplit != 0 {
		t.Errorf("speed 0 prunes: %+v", slow)
	}
	if len(slow.IntraModes) != int(block.NumIntraModes) {
		t.Errorf("speed 0 tries %d intra modes", len(slow.IntraModes))
	}
	if fast.Optimize || fast.Compound || len(fast.TxTypes) != 1 {
		t.Errorf("speed 10 too slow: %+v", fast)
	}
	for s := 0; s < 10; s++ {
		a, b := ParamsForSpeed(s), ParamsForSpeed(s+1)
		if b.Partitions > a.Partitions || b.IntraTopK > a.IntraTopK || b.InterTopK > a.InterTopK {
			t.Errorf("speed %d searches more than speed %d", s+1, s)
		}
	}
}
