package syntax

import (
	"errors"

	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/quant"
)

var (
	// ErrMvRange is returned for a motion vector whose filter footprint
	// leaves the reference border.
	ErrMvRange = errors.New("syntax: motion vector outside reference border")
	// ErrCoeffRange is returned for a dequantized coefficient beyond the
	// legal range.
	ErrCoeffRange = errors.New("syntax: coefficient out of range")
	// ErrMissingRef is returned when a block names an inactive reference.
	ErrMissingRef = errors.New("syntax: reference not available")
	// ErrBadPartition is returned for a partition with no leaf size.
	ErrBadPartition = errors.New("syntax: invalid partition")
)

// MvMargin is the distance, in luma samples, a motion-compensated block
// must keep from the outer edge of the reference border.
const MvMargin = 16

// MvLegal reports whether mv keeps the block of size s at luma (x, y)
// within the border of the w x h reference.
func MvLegal(x, y int, s block.Size, mv block.MotionVector, w, h, border int) bool {
	ix := x + int(mv.Col>>3)
	iy := y + int(mv.Row>>3)
	lim := border - MvMargin
	return ix >= -lim && iy >= -lim &&
		ix+s.Width() <= w+lim && iy+s.Height() <= h+lim &&
		mv.Row <= block.MaxMvComponent && mv.Row >= -block.MaxMvComponent &&
		mv.Col <= block.MaxMvComponent && mv.Col >= -block.MaxMvComponent
}

// Scratch holds per-tile working buffers for reconstruction.
type Scratch struct {
	Pred [3][block.SuperblockSize * block.SuperblockSize]uint16
	Prep [2][block.SuperblockSize * block.SuperblockSize]int32
	Coef [block.MaxTxSide * block.MaxTxSide]int32
	Res  [block.MaxTxSide * block.MaxTxSide]int32
}

// edgeCounts returns how many reconstructed samples of plane p are
// available above and left of the w x h transform at plane (px, py),
// walking at most w+h samples along each edge.
func (t *Tile) edgeCounts(p, px, py, w, h int) (nTop, nLeft int) {
	sx, sy := 0, 0
	if p > 0 {
		sx, sy = t.Frame.Subsampling.Shift()
	}
	pw := t.Frame.Width >> sx
	ph := t.Frame.Height >> sy
	ux := 4 >> sx // plane samples per 4x4 luma unit
	uy := 4 >> sy
	n := w + h

	if py > 0 {
		row := ((py << sy) >> 2) - 1
		for nTop < n && px+nTop < pw {
			col := ((px + nTop) << sx) >> 2
			if !t.Inside(col, row) || !t.Grid.Decoded(p, col, row) {
				break
			}
			nTop += ux
		}
		nTop = min(nTop, n, pw-px)
	}
	if px > 0 {
		col := ((px << sx) >> 2) - 1
		for nLeft < n && py+nLeft < ph {
			row := ((py + nLeft) << sy) >> 2
			if !t.Inside(col, row) || !t.Grid.Decoded(p, col, row) {
				break
			}
			nLeft += uy
		}
		nLeft = min(nLeft, n, ph-py)
	}
	return nTop, nLeft
}

// PredictIntraTx writes the intra prediction of tb in plane p of recon
// into dst.
func (t *Tile) PredictIntraTx(recon *frame.Frame, p int, tb *TxBlock, mode block.PredMode, dst []uint16, stride int) {
	w, h := tb.Size.Width(), tb.Size.Height()
	nTop, nLeft := t.edgeCounts(p, tb.X, tb.Y, w, h)
	var e dsp.IntraEdges
	dsp.BuildEdges(&e, &recon.Planes[p], tb.X, tb.Y, w, h, nTop, nLeft, recon.BitDepth)
	dsp.PredictIntra(mode, dst, stride, w, h, &e, recon.BitDepth)
}

// MarkTx records tb of plane p as reconstructed.
func (t *Tile) MarkTx(p int, tb *TxBlock) {
	t.Grid.MarkDecoded(t.txRect4(p, tb), p, true)
}

// PredictInter writes the motion-compensated prediction of plane p of b
// into dst.
func (t *Tile) PredictInter(b *Block, p int, dst []uint16, stride int, s *Scratch) error {
	fi := t.Frame
	sx, sy := 0, 0
	if p > 0 {
		sx, sy = fi.Subsampling.Shift()
	}
	w, h := b.Size.Width()>>sx, b.Size.Height()>>sy
	px, py := b.X>>sx, b.Y>>sy
	nref := 1 + b2i(b.Compound)
	for k := 0; k < nref; k++ {
		idx := b.RefIdx[k]
		if idx < 0 || idx >= fi.RefCount || fi.Refs[idx] == nil {
			return ErrMissingRef
		}
		ref := fi.Refs[idx]
		mv := b.Mv[k]
		if !MvLegal(b.X, b.Y, b.Size, mv, ref.Planes[0].Width, ref.Planes[0].Height, ref.Planes[0].Border) {
			return ErrMvRange
		}
		x16 := px<<4 + int(mv.Col*2)>>sx
		y16 := py<<4 + int(mv.Row*2)>>sy
		dsp.InterPrep(s.Prep[k][:w*h], w, h, &ref.Planes[p], x16, y16)
	}
	bd := fi.BitDepth
	switch {
	case nref == 1:
		dsp.PrepToPixels(dst, stride, s.Prep[0][:w*h], w, h, bd)
	case b.CompType == block.CompoundDistance:
		w0 := dsp.DistanceWeight(fi.RefDist[b.RefIdx[0]], fi.RefDist[b.RefIdx[1]])
		dsp.CompoundDistance(dst, stride, s.Prep[0][:w*h], s.Prep[1][:w*h], w, h, w0, bd)
	default:
		dsp.CompoundAverage(dst, stride, s.Prep[0][:w*h], s.Prep[1][:w*h], w, h, bd)
	}
	return nil
}

// ReconstructTx adds the decoded residual of tb to its prediction and
// stores the result in out. pred points at the top-left of the
// transform's prediction.
func ReconstructTx(q *quant.Params, tb *TxBlock, pred []uint16, predStride int, out *frame.Plane, bd int, s *Scratch) error {
	w, h := tb.Size.Width(), tb.Size.Height()
	if tb.Eob == 0 {
		for r := 0; r < h; r++ {
			copy(out.Row(tb.X, tb.Y+r, w), pred[r*predStride:r*predStride+w])
		}
		return nil
	}
	area := w * h
	coef := s.Coef[:area]
	res := s.Res[:area]
	if !q.Dequantize(tb.Levels, coef, block.Scan(tb.Size), tb.Eob) {
		return ErrCoeffRange
	}
	dsp.InverseTransform(coef, res, tb.Size, tb.Type)
	maxV := 1<<uint(bd) - 1
	for r := 0; r < h; r++ {
		row := out.Row(tb.X, tb.Y+r, w)
		pr := pred[r*predStride : r*predStride+w]
		rr := res[r*w : (r+1)*w]
		for c := range row {
			row[c] = uint16(dsp.Clamp(int(pr[c])+int(rr[c]), 0, maxV))
		}
	}
	return nil
}

// Reconstruct predicts and reconstructs every plane of a coded block into
// recon, marking its transform blocks decoded.
func (t *Tile) Reconstruct(recon *frame.Frame, b *Block, s *Scratch) error {
	fi := t.Frame
	q := quant.New(b.QIndex, fi.BitDepth, b.Inter)
	for p := 0; p < fi.NumPlanes; p++ {
		sx, sy := 0, 0
		if p > 0 {
			sx, sy = fi.Subsampling.Shift()
		}
		bw := b.Size.Width() >> sx
		px, py := b.X>>sx, b.Y>>sy
		pred := s.Pred[p][:]
		if b.Inter {
			if err := t.PredictInter(b, p, pred, bw, s); err != nil {
				return err
			}
		}
		mode := b.YMode
		if p > 0 {
			mode = b.UVMode
		}
		for i := range b.Tx[p] {
			tb := &b.Tx[p][i]
			off := (tb.Y-py)*bw + (tb.X - px)
			if !b.Inter {
				t.PredictIntraTx(recon, p, tb, mode, pred[off:], bw)
			}
			if err := ReconstructTx(&q, tb, pred[off:], bw, &recon.Planes[p], fi.BitDepth, s); err != nil {
				return err
			}
			t.MarkTx(p, tb)
		}
	}
	return nil
}
