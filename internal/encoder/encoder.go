// Package encoder is the frame encoder orchestrator. It plans frames in
// coding order, asks the rate controller for their quantizers, runs up to
// FrameWorkers frames concurrently once their references are published and
// packs the coded frames into temporal units.
package encoder

import (
	"context"
	"fmt"

	"github.com/deepteams/av1/internal/frame"
	"github.com/deepteams/av1/internal/gop"
	"github.com/deepteams/av1/internal/logging"
	"github.com/deepteams/av1/internal/loopfilter"
	"github.com/deepteams/av1/internal/obu"
	"github.com/deepteams/av1/internal/ratectl"
	"github.com/deepteams/av1/internal/rdo"
	"github.com/deepteams/av1/internal/refs"
)

// Source is one input picture. Frame holds the picture at the coded size
// with the area beyond the picture edge-replicated.
type Source struct {
	Frame *frame.Frame
	PTS   int64
}

// Packet is one temporal unit: every frame coded since the previous shown
// frame, ending with the frame it displays.
type Packet struct {
	Data []byte
	PTS  int64
	// Display is the display index of the shown frame; Coding is the
	// position of the entry that shows it in the coding order.
	Display, Coding int64
	Type            gop.FrameType
	// Key reports a temporal unit decodable without earlier ones.
	Key          bool
	ShowExisting bool
	QIndex       int
	// Bits is the size of the unit, padding included.
	Bits     int
	PSNR     [3]float64
	SSIM     float64
	SSE      uint64
	Recodes  int
	Overflow bool
	// Recon is a copy of the displayed reconstruction when KeepRecon is
	// set.
	Recon *frame.Frame
}

// Summary accumulates session statistics.
type Summary struct {
	Frames     int // shown frames
	Coded      int // coded frames, hidden ones included
	Bytes      int64
	Recodes    int
	Overflows  int
	Underflows int
	// PSNR and SSIM are means over the shown frames.
	PSNR [3]float64
	SSIM float64
}

// job is one entry of the coding order.
type job struct {
	seq  int64
	plan gop.Plan
	req  ratectl.Request
	dec  ratectl.Decision
	src  Source
	// buf receives the reconstruction; for show-existing entries it is the
	// pinned frame being shown.
	buf  *refs.Buffer
	refs []*refs.Buffer
	done chan struct{}

	data     []byte // frame unit
	q        int
	recodes  int
	overflow bool
	psnr     [3]float64
	ssim     float64
	sse      uint64
	err      error
}

// Encoder is a single encoding session. Its methods must not be called
// concurrently.
type Encoder struct {
	cfg    Config
	log    logging.Logger
	seqHdr obu.SequenceHeader
	seqOBU []byte
	lag    int

	planner *gop.Planner
	rc      *ratectl.Controller
	vbv     *ratectl.Buffer
	refs    *refs.Manager
	params  rdo.Params
	search  loopfilter.Search
	sem     chan struct{}

	// ctx bounds the frame workers; it outlives individual calls.
	ctx    context.Context
	cancel context.CancelFunc

	sources  map[int64]Source
	received int64
	thumb    []int32 // luma thumbnail of the last picture received
	nextSeq  int64
	jobs     []*job
	hidden   map[int64]*job

	// tu holds the hidden frames of the temporal unit being assembled.
	tu     []byte
	tuBits int
	tuKey  bool

	stats   []ratectl.FrameStats
	summary Summary
	err     error
	closed  bool
}

// New validates cfg and starts a session.
func New(cfg Config) (*Encoder, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	// Constant-quantizer decisions ignore feedback, so the lag only bounds
	// how many frames may be in flight.
	lag := cfg.RateLag
	if cfg.RateControl == ratectl.CQ {
		lag = cfg.FrameWorkers + cfg.GOP.MiniGOP
	}
	rcfg := cfg.rateConfig()
	rcfg.Lag = lag
	rc, err := ratectl.New(rcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	seq := obu.SequenceHeader{
		Profile:      obu.ProfileFor(cfg.BitDepth, cfg.Subsampling),
		Width:        cfg.Width,
		Height:       cfg.Height,
		BitDepth:     cfg.BitDepth,
		Subsampling:  cfg.Subsampling,
		TimeScale:    30,
		TickDuration: 1,
	}
	if cfg.FrameRateNum > 0 && cfg.FrameRateDen > 0 {
		seq.TimeScale, seq.TickDuration = uint32(cfg.FrameRateNum), uint32(cfg.FrameRateDen)
	}
	payload, err := seq.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	search := loopfilter.SearchForSpeed(cfg.Speed)
	search.Deblock = search.Deblock && cfg.Deblock
	search.CDEF = search.CDEF && cfg.CDEF
	search.Wiener = search.Wiener && cfg.Restoration

	w, h, bd, ss := cfg.Width, cfg.Height, cfg.BitDepth, cfg.Subsampling
	alloc := func() *frame.Frame { return frame.New(w, h, bd, ss, frame.RefBorder) }
	// Every slot, plus one buffer per entry not yet emitted.
	capacity := refs.NumSlots + 2*(lag+cfg.GOP.MiniGOP+2)

	ctx, cancel := context.WithCancel(context.Background())
	e := &Encoder{
		cfg:     cfg,
		log:     cfg.Logger.WithComponent("encoder"),
		seqHdr:  seq,
		seqOBU:  obu.Append(nil, obu.TypeSequenceHeader, payload),
		lag:     lag,
		planner: gop.New(cfg.GOP),
		rc:      rc,
		vbv:     rc.NewBuffer(),
		refs:    refs.NewManager(capacity, alloc),
		params:  rdo.ParamsForSpeed(cfg.Speed),
		search:  search,
		sem:     make(chan struct{}, cfg.FrameWorkers),
		ctx:     ctx,
		cancel:  cancel,
		sources: make(map[int64]Source),
		hidden:  make(map[int64]*job),
	}
	e.log.Debug("session %dx%d %d-bit %s, %s, speed %d, %d frame workers",
		cfg.Width, cfg.Height, cfg.BitDepth, cfg.Subsampling, cfg.RateControl, cfg.Speed, cfg.FrameWorkers)
	return e, nil
}

// SequenceHeader returns the sequence header unit that starts every key
// temporal unit.
func (e *Encoder) SequenceHeader() []byte { return e.seqOBU }

// Sequence returns the sequence parameters.
func (e *Encoder) Sequence() obu.SequenceHeader { return e.seqHdr }

// Summary returns the statistics of the units emitted so far.
func (e *Encoder) Summary() Summary {
	s := e.summary
	s.Underflows = 0
	if e.vbv != nil {
		s.Underflows = e.vbv.Underflows
	}
	if s.Frames > 0 {
		for p := range s.PSNR {
			s.PSNR[p] /= float64(s.Frames)
		}
		s.SSIM /= float64(s.Frames)
	}
	return s
}

// FirstPassStats returns the per-entry statistics collected when
// CollectStats is set, in coding order.
func (e *Encoder) FirstPassStats() []ratectl.FrameStats { return e.stats }

// Encode queues src and returns the temporal units that became complete.
func (e *Encoder) Encode(ctx context.Context, src Source) ([]Packet, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	if err := e.checkSource(src.Frame); err != nil {
		return nil, err
	}
	if e.cfg.Lookahead > 0 {
		th := thumbnail(src.Frame)
		if sceneCut(e.thumb, th) {
			e.planner.ForceKey(e.received)
			e.log.Debug("scene cut at picture %d", e.received)
		}
		e.thumb = th
	}
	e.sources[e.received] = src
	e.received++
	return e.run(ctx, false)
}

// Flush codes every queued picture and returns the remaining units. The
// session is closed afterwards.
func (e *Encoder) Flush(ctx context.Context) ([]Packet, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	out, err := e.run(ctx, true)
	if err != nil {
		return out, err
	}
	e.closed = true
	e.cancel()
	e.refs.Reset()
	live, free := e.refs.Live()
	e.log.Debug("reference pool: %d buffers, %d still pinned", live, live-free)
	s := e.Summary()
	var kbps float64
	if s.Frames > 0 {
		kbps = float64(s.Bytes*8) * e.cfg.frameRate() / float64(s.Frames) / 1000
	}
	e.log.Info("encoded %d frames, %d bytes, %.2f kbps, PSNR-Y %.2f dB", s.Frames, s.Bytes, kbps, s.PSNR[0])
	return out, nil
}

// Close abandons the session, waiting for frames in flight.
func (e *Encoder) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.cancel()
	e.drain()
}

func (e *Encoder) usable() error {
	if e.err != nil {
		return e.err
	}
	if e.closed {
		return ErrClosed
	}
	return nil
}

func (e *Encoder) checkSource(f *frame.Frame) error {
	switch {
	case f == nil:
		return fmt.Errorf("%w: no frame", ErrFrameSize)
	case f.Width != e.cfg.Width || f.Height != e.cfg.Height:
		return fmt.Errorf("%w: %dx%d, want %dx%d", ErrFrameSize, f.Width, f.Height, e.cfg.Width, e.cfg.Height)
	case f.BitDepth != e.cfg.BitDepth || f.Subsampling != e.cfg.Subsampling:
		return fmt.Errorf("%w: %d-bit %s, want %d-bit %s", ErrFrameSize, f.BitDepth, f.Subsampling, e.cfg.BitDepth, e.cfg.Subsampling)
	}
	return nil
}

// run plans every entry the queued pictures allow, starting each once its
// rate decision can be taken, and emits the units that are complete.
func (e *Encoder) run(ctx context.Context, flushing bool) ([]Packet, error) {
	var out []Packet
	for {
		if err := ctx.Err(); err != nil {
			return out, e.abort(err)
		}
		buffered := int(e.received - e.planner.NextDisplay())
		if !flushing && buffered < e.cfg.Lookahead {
			break
		}
		plans := e.planner.Next(buffered, flushing)
		if plans == nil {
			break
		}
		for _, p := range plans {
			pk, err := e.retire(ctx, e.nextSeq-int64(e.lag))
			out = append(out, pk...)
			if err != nil {
				return out, e.abort(err)
			}
			if err := e.start(ctx, p); err != nil {
				return out, e.abort(err)
			}
		}
	}
	if flushing {
		pk, err := e.retire(ctx, e.nextSeq)
		out = append(out, pk...)
		if err != nil {
			return out, e.abort(err)
		}
	}
	return out, nil
}

// start builds the entry for p and hands coded frames to a worker. Slot
// updates happen here, in coding order, so later plans pin the new frame
// before it is finished.
func (e *Encoder) start(ctx context.Context, p gop.Plan) error {
	j := &job{seq: e.nextSeq, plan: p, done: make(chan struct{})}
	e.nextSeq++
	j.req = ratectl.Request{
		Seq:          j.seq,
		Display:      p.Display,
		Type:         p.Type,
		Level:        p.Level,
		Show:         p.Show,
		ShowExisting: p.ShowExisting,
	}
	dec, err := e.rc.Plan(j.req)
	if err != nil {
		return err
	}
	j.dec = dec

	if p.ShowExisting {
		buf, err := e.refs.Acquire(p.ExistingSlot)
		if err != nil {
			return err
		}
		j.buf = buf
		hdr := obu.FrameHeader{ShowExisting: true, ExistingSlot: p.ExistingSlot}
		hb, err := hdr.Marshal(e.seqHdr.NumPlanes())
		if err != nil {
			e.refs.Release(buf)
			return fmt.Errorf("%w: %w", ErrBitstream, err)
		}
		j.data = obu.Append(nil, obu.TypeFrameHeader, hb)
		close(j.done)
		e.jobs = append(e.jobs, j)
		return nil
	}

	src, ok := e.sources[p.Display]
	if !ok {
		return fmt.Errorf("%w: picture %d not queued", ErrBitstream, p.Display)
	}
	delete(e.sources, p.Display)
	j.src = src
	for _, slot := range p.Refs {
		b, err := e.refs.Acquire(slot)
		if err != nil {
			e.releaseAll(j.refs)
			return err
		}
		j.refs = append(j.refs, b)
	}
	buf, err := e.refs.Reserve()
	if err != nil {
		e.releaseAll(j.refs)
		return err
	}
	buf.DisplayIndex = p.Display
	buf.CodingIndex = j.seq
	buf.OrderHint = int(uint8(p.Display))
	buf.Key = p.Type == gop.KeyFrame
	j.buf = buf
	e.refs.Refresh(buf, p.Refresh)
	e.jobs = append(e.jobs, j)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		// The frame never runs; waiters on it must not hang.
		j.err = ctx.Err()
		e.finish(j)
		close(j.done)
		return ctx.Err()
	}
	go func() {
		defer func() { <-e.sem }()
		e.encodeJob(e.ctx, j)
		close(j.done)
	}()
	return nil
}

func (e *Encoder) releaseAll(bs []*refs.Buffer) {
	for _, b := range bs {
		e.refs.Release(b)
	}
}

// retire emits the entries below seq in coding order, waiting for the
// frames still being coded.
func (e *Encoder) retire(ctx context.Context, seq int64) ([]Packet, error) {
	var out []Packet
	for len(e.jobs) > 0 && e.jobs[0].seq < seq {
		j := e.jobs[0]
		select {
		case <-j.done:
		case <-ctx.Done():
			return out, ctx.Err()
		}
		if j.err != nil {
			return out, j.err
		}
		e.jobs = e.jobs[1:]
		if pk, ok := e.emit(j); ok {
			out = append(out, pk)
		}
	}
	return out, nil
}

// emit accounts for a finished entry. Hidden frames are held until the
// entry that completes their temporal unit.
func (e *Encoder) emit(j *job) (Packet, bool) {
	p := &j.plan
	key := p.Type == gop.KeyFrame
	if !p.Show {
		bits := len(j.data) * 8
		e.tu = append(e.tu, j.data...)
		e.tuBits += bits
		e.tuKey = e.tuKey || key
		e.rc.Update(ratectl.Result{Seq: j.seq, Req: j.req, QIndex: j.q, Bits: bits})
		e.collect(j, bits)
		e.hidden[p.Display] = j
		e.summary.Coded++
		e.summary.Recodes += j.recodes
		e.refs.Release(j.buf)
		e.log.Debug("frame %d (%s, hidden) q=%d bits=%d", p.Display, p.Type, j.q, bits)
		return Packet{}, false
	}

	data := obu.Append(nil, obu.TypeTemporalDelimiter, nil)
	if key || e.tuKey {
		data = append(data, e.seqOBU...)
	}
	data = append(data, e.tu...)
	data = append(data, j.data...)
	if e.vbv != nil {
		under := e.vbv.Underflows
		if pad := e.vbv.Add(len(data)*8, true); pad > 0 {
			n := max(pad/8, 2)
			e.vbv.Fullness -= float64(n*8 - pad)
			data = obu.AppendPadding(data, n)
		}
		if e.vbv.Underflows > under {
			e.log.Warn("decoder buffer underflow at frame %d (%d bits)", p.Display, len(data)*8)
		}
	}
	if p.ShowExisting {
		if h, ok := e.hidden[p.Display]; ok {
			delete(e.hidden, p.Display)
			j.src = h.src
			j.q, j.psnr, j.ssim, j.sse = h.q, h.psnr, h.ssim, h.sse
			j.recodes, j.overflow = h.recodes, h.overflow
		}
	} else {
		e.summary.Coded++
		e.summary.Recodes += j.recodes
	}
	bits := len(data)*8 - e.tuBits
	e.rc.Update(ratectl.Result{Seq: j.seq, Req: j.req, QIndex: j.q, Bits: bits})
	e.collect(j, bits)

	pk := Packet{
		Data:         data,
		PTS:          j.src.PTS,
		Display:      p.Display,
		Coding:       j.seq,
		Type:         p.Type,
		Key:          key,
		ShowExisting: p.ShowExisting,
		QIndex:       j.q,
		Bits:         len(data) * 8,
		PSNR:         j.psnr,
		SSIM:         j.ssim,
		SSE:          j.sse,
		Recodes:      j.recodes,
		Overflow:     j.overflow,
	}
	if e.cfg.KeepRecon {
		pk.Recon = j.buf.Frame.Clone()
	}
	e.refs.Release(j.buf)

	e.tu, e.tuBits, e.tuKey = nil, 0, false
	e.summary.Frames++
	e.summary.Bytes += int64(len(data))
	if pk.Overflow {
		e.summary.Overflows++
	}
	for i := range pk.PSNR {
		e.summary.PSNR[i] += pk.PSNR[i]
	}
	e.summary.SSIM += pk.SSIM
	e.log.Debug("frame %d (%s) q=%d bits=%d psnr=%.2f", p.Display, p.Type, pk.QIndex, pk.Bits, pk.PSNR[0])
	return pk, true
}

func (e *Encoder) collect(j *job, bits int) {
	if !e.cfg.CollectStats {
		return
	}
	e.stats = append(e.stats, ratectl.FrameStats{
		Display:      j.plan.Display,
		Type:         j.plan.Type,
		Level:        j.plan.Level,
		Show:         j.plan.Show,
		ShowExisting: j.plan.ShowExisting,
		QIndex:       j.q,
		Bits:         bits,
		SSE:          j.sse,
	})
}

// abort fails the session: frames in flight are waited for and nothing
// more is emitted.
func (e *Encoder) abort(err error) error {
	if e.err == nil {
		e.err = err
	}
	e.cancel()
	e.drain()
	return e.err
}

// drain waits for every unfinished entry and drops its buffers.
func (e *Encoder) drain() {
	for _, j := range e.jobs {
		<-j.done
		e.refs.Release(j.buf)
	}
	e.jobs = nil
	e.refs.Reset()
	e.hidden = make(map[int64]*job)
	e.sources = make(map[int64]Source)
	e.tu = nil
}
