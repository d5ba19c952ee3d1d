package encoder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/deepteams/av1/internal/block"
	"github.com/deepteams/av1/internal/cdf"
	"github.com/deepteams/av1/internal/dsp"
	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/gop"
	"github.com/deepteams/av1/internal/loopfilter"
	"github.com/deepteams/av1/internal/obu"
	"github.com/deepteams/av1/internal/ratectl"
	"github.com/deepteams/av1/internal/rdo"
	"github.com/deepteams/av1/internal/syntax"
)

// coded is the outcome of one attempt at a frame.
type coded struct {
	data []byte
	q    int
	// store holds the contexts at the end of the first tile.
	store *cdf.Store
}

// encodeJob codes j once its references are published, raising the
// quantizer while the frame overflows the buffer model.
func (e *Encoder) encodeJob(ctx context.Context, j *job) {
	j.err = e.codeJob(ctx, j)
	e.finish(j)
}

// finish releases the references of j and publishes or fails its buffer.
func (e *Encoder) finish(j *job) {
	e.releaseAll(j.refs)
	j.refs = nil
	if j.err != nil {
		j.buf.Fail(j.err)
	} else {
		j.buf.Publish()
	}
	j.src.Frame = nil
}

func (e *Encoder) codeJob(ctx context.Context, j *job) error {
	for _, r := range j.refs {
		if err := r.Wait(ctx); err != nil {
			return err
		}
	}
	d := j.dec
	var attempts []ratectl.Attempt
	var c coded
	for {
		var err error
		if c, err = e.codeFrame(j, d.QIndex); err != nil {
			return err
		}
		bits := len(c.data) * 8
		attempts = append(attempts, ratectl.Attempt{QIndex: d.QIndex, Bits: bits})
		next, again := e.rc.Recode(d, attempts)
		if !again {
			if d.MaxBits > 0 && bits > d.MaxBits {
				j.overflow = true
				e.log.Warn("frame %d exceeds the buffer after %d attempts: %d bits over %d", j.plan.Display, len(attempts), bits, d.MaxBits)
			}
			break
		}
		e.log.Warn("frame %d exceeds the buffer: %d bits over %d, recoding at q=%d", j.plan.Display, bits, d.MaxBits, next.QIndex)
		d = next
	}
	j.recodes = len(attempts) - 1
	j.data, j.q = c.data, c.q
	j.buf.QIndex = c.q
	j.buf.Store = c.store
	j.psnr, j.ssim, j.sse = measure(j.src.Frame, j.buf.Frame)
	return nil
}

// codeFrame runs the tile searches, the loop filters and the write pass of
// one attempt at quantizer q.
func (e *Encoder) codeFrame(j *job, q int) (coded, error) {
	cfg := &e.cfg
	src, recon := j.src.Frame, j.buf.Frame
	key := j.plan.Type == gop.KeyFrame
	fi := &syntax.FrameInfo{
		Width:       recon.CodedWidth,
		Height:      recon.CodedHeight,
		BitDepth:    cfg.BitDepth,
		Subsampling: cfg.Subsampling,
		NumPlanes:   recon.NumPlanes,
		Intra:       key,
		AllowHP:     cfg.AllowHP && !key,
		DeltaQ:      cfg.DeltaQ,
		BaseQ:       q,
	}
	hdr := obu.FrameHeader{
		Key:        key,
		Show:       j.plan.Show,
		Refresh:    j.plan.Refresh,
		OrderHint:  uint8(j.plan.Display),
		PrimaryRef: obu.NoPrimaryRef,
		BaseQ:      q,
		DeltaQ:     cfg.DeltaQ,
		AllowHP:    fi.AllowHP,
	}
	start := cdf.NewStore()
	if !key {
		hdr.Refs = j.plan.Refs
		fi.RefCount = len(j.refs)
		for i, r := range j.refs {
			fi.RefDist[i] = obu.RelativeDist(hdr.OrderHint, uint8(r.OrderHint))
			fi.Refs[i] = r.Frame
		}
		if cfg.InheritContexts && j.refs[0].Store != nil {
			start = j.refs[0].Store
			hdr.PrimaryRef = 0
		}
	}

	rf := &rdo.Frame{Info: fi, Src: src, Recon: recon, Grid: block.NewGrid(fi.Width, fi.Height), Params: e.params}
	if cfg.DeltaQ {
		rf.QIndex = adaptiveQ(src, q)
	}
	cols, rows := tileLayout(fi, cfg.TileCols, cfg.TileRows)
	tiles := syntax.Tiles(fi, rf.Grid, cols, rows)
	encs := make([]*rdo.TileEncoder, len(tiles))
	for i := range tiles {
		encs[i] = rdo.NewTileEncoder(rf, tiles[i], start.Clone())
	}
	if err := e.parallelTiles(len(encs), func(i int) error { return encs[i].Encode() }); err != nil {
		return coded{}, e.violation(j, err)
	}

	lf, m := loopfilter.Select(src, recon, rf.Grid, q, key, &e.search)
	lf.FrameInfo(fi)
	hdr.Filter = lf
	hdr.TileCols, hdr.TileRows = cols, rows

	const sb = block.SuperblockSize
	sbCols := rf.SuperblockCols()
	payloads := make([][]byte, len(encs))
	var end *cdf.Store
	err := e.parallelTiles(len(encs), func(i int) error {
		t, tree := encs[i].Tile(), &encs[i].Tree
		r := t.Rect()
		k := 0
		for y := r.Y; y < r.Y+r.H; y += sb {
			for x := r.X; x < r.X+r.W; x += sb {
				m.Superblock((y/sb)*sbCols+x/sb, &tree.SB[k])
				k++
			}
		}
		data, st, err := rdo.WriteTile(t, tree, start.Clone())
		if err != nil {
			return err
		}
		payloads[i] = data
		if i == 0 {
			end = st
		}
		return nil
	})
	if err != nil {
		return coded{}, e.violation(j, err)
	}
	hb, err := hdr.Marshal(fi.NumPlanes)
	if err != nil {
		return coded{}, e.violation(j, err)
	}
	return coded{data: obu.AppendFrame(nil, hb, payloads), q: q, store: end.Frozen()}, nil
}

func (e *Encoder) violation(j *job, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: frame %d: %w", ErrBitstream, j.plan.Display, err)
}

// tileLayout clamps the requested tile grid to the superblock grid.
func tileLayout(fi *syntax.FrameInfo, cols, rows int) (int, int) {
	const sb = block.SuperblockSize
	sbCols := (fi.Width + sb - 1) / sb
	sbRows := (fi.Height + sb - 1) / sb
	return min(max(cols, 1), sbCols), min(max(rows, 1), sbRows)
}

// parallelTiles runs fn for 0..n-1 on up to TileWorkers goroutines and
// returns the error of the lowest failing index.
func (e *Encoder) parallelTiles(n int, fn func(i int) error) error {
	errs := make([]error, n)
	workers := min(e.cfg.TileWorkers, n)
	if workers <= 1 {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	var next atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= n {
					return
				}
				errs[i] = fn(i)
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// measure returns the per-plane PSNR, the luma SSIM and the total squared
// error of recon over the picture area.
func measure(src, recon *frame.Frame) (psnr [3]float64, ssim float64, sse uint64) {
	for p := 0; p < src.NumPlanes; p++ {
		sx, sy := src.PlaneShift(p)
		w := (src.Width + sx) >> sx
		h := (src.Height + sy) >> sy
		e := dsp.PlaneSSE(&src.Planes[p], &recon.Planes[p], 0, 0, w, h)
		psnr[p] = dsp.PSNRFromSSE(e, w*h, src.BitDepth)
		sse += e
	}
	ssim = dsp.PlaneSSIM(&src.Planes[0], &recon.Planes[0], src.Width, src.Height, src.BitDepth)
	return psnr, ssim, sse
}
