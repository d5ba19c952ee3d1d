// Package ratectl chooses the quantizer of every frame. It supports a
// constant quantizer (CQ), an average bitrate (ABR) and a constant
// bitrate (CBR) mode whose decoder buffer model bounds each frame's size.
// Feedback from coded frames is applied strictly in coding order, Lag
// frames late, so decisions do not depend on how many frames are coded
// concurrently.
package ratectl

import (
	"errors"
	"fmt"
	"math"

	"github.com/deepteams/av1/internal/gop"
	"github.com/deepteams/av1/internal/quant"
)

// Mode is the rate control strategy.
type Mode uint8

const (
	CQ Mode = iota
	ABR
	CBR
)

func (m Mode) String() string {
	switch m {
	case CQ:
		return "cq"
	case ABR:
		return "abr"
	case CBR:
		return "cbr"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// MaxRecodes bounds the attempts at a frame that overflows the buffer.
const MaxRecodes = 4

var (
	// ErrConfig reports an unusable configuration.
	ErrConfig = errors.New("ratectl: invalid configuration")
	// ErrMissingResult reports a plan requested before the results it
	// depends on were recorded.
	ErrMissingResult = errors.New("ratectl: result of an earlier frame missing")
)

// Config configures a controller.
type Config struct {
	Mode       Mode
	QIndex     int // CQ quantizer; first-frame guess otherwise
	MinQ, MaxQ int
	Bitrate    int64   // bits per second (ABR, CBR)
	FrameRate  float64 // shown frames per second
	BufferMs   int
	Lag        int
	BitDepth   int
	Pixels     int // luma samples per frame
	GOP        gop.Config
	// Stats holds first-pass statistics; when set, bits are distributed
	// in proportion to each frame's measured complexity.
	Stats []FrameStats
}

// Request describes the frame about to be planned.
type Request struct {
	Seq     int64 // position in the coding order, counting show-existing
	Display int64
	Type    gop.FrameType
	Level   int
	Show    bool
	// ShowExisting frames carry only a header.
	ShowExisting bool
}

// Decision is the controller's choice for one frame.
type Decision struct {
	QIndex     int
	TargetBits int
	// MaxBits is the largest size the buffer model accepts; 0 is
	// unbounded.
	MaxBits int
}

// Result reports a coded frame.
type Result struct {
	Seq    int64
	Req    Request
	QIndex int
	Bits   int
}

// class groups frames with similar bits-per-step behaviour.
type class uint8

const (
	classKey class = iota
	classAnchor
	classShown
	numClasses
)

func classOf(r *Request) class {
	switch {
	case r.Type == gop.KeyFrame:
		return classKey
	case !r.Show:
		return classAnchor
	}
	return classShown
}

// initial complexity guesses, in bits times 8-bit quantizer step per
// luma sample.
var initialComplexity = [numClasses]float64{40, 12, 4}

// weights sets how many times the average per-frame budget each class
// receives before normalization.
var weights = [numClasses]float64{6, 3, 1}

// Controller is the rate controller state. It is not safe for concurrent
// use; the orchestrator is its only caller.
type Controller struct {
	cfg        Config
	perFrame   float64 // budget of one shown frame
	avgWeight  float64 // mean weight per shown frame of the GOP structure
	complexity [numClasses]float64
	seen       [numClasses]bool

	buf     *Buffer
	spent   float64
	budget  float64
	lastQ   [numClasses]int
	pending map[int64]Result
	applied int64

	stats        map[int64]*FrameStats
	statsCx      float64
	statsPerShow float64
}

// New validates cfg and returns a controller.
func New(cfg Config) (*Controller, error) {
	if cfg.MaxQ == 0 {
		cfg.MaxQ = quant.NumQIndex - 1
	}
	if cfg.MinQ < 0 || cfg.MaxQ >= quant.NumQIndex || cfg.MinQ > cfg.MaxQ {
		return nil, fmt.Errorf("%w: q range %d..%d", ErrConfig, cfg.MinQ, cfg.MaxQ)
	}
	if cfg.QIndex < 0 || cfg.QIndex >= quant.NumQIndex {
		return nil, fmt.Errorf("%w: q index %d", ErrConfig, cfg.QIndex)
	}
	if cfg.Lag < 0 {
		return nil, fmt.Errorf("%w: lag %d", ErrConfig, cfg.Lag)
	}
	if cfg.BitDepth == 0 {
		cfg.BitDepth = 8
	}
	c := &Controller{cfg: cfg, complexity: initialComplexity, pending: make(map[int64]Result)}
	for i := range c.lastQ {
		c.lastQ[i] = cfg.QIndex
	}
	if cfg.Mode == CQ {
		return c, nil
	}
	if cfg.Bitrate <= 0 || cfg.FrameRate <= 0 || cfg.Pixels <= 0 {
		return nil, fmt.Errorf("%w: bitrate %d at %.3f fps", ErrConfig, cfg.Bitrate, cfg.FrameRate)
	}
	c.perFrame = float64(cfg.Bitrate) / cfg.FrameRate
	c.avgWeight = structureWeight(cfg.GOP)
	if cfg.Mode == CBR {
		if cfg.BufferMs <= 0 {
			return nil, fmt.Errorf("%w: CBR needs a buffer size", ErrConfig)
		}
		c.buf = c.NewBuffer()
	}
	if len(cfg.Stats) > 0 {
		c.stats = make(map[int64]*FrameStats, len(cfg.Stats))
		shown := 0
		for i := range cfg.Stats {
			s := &cfg.Stats[i]
			if s.ShowExisting {
				shown++
				continue
			}
			if s.Show {
				shown++
			}
			c.stats[s.Display] = s
			c.statsCx += s.complexity(cfg.BitDepth)
		}
		c.statsPerShow = c.statsCx / float64(max(shown, 1))
	}
	return c, nil
}

// structureWeight simulates the GOP structure and returns the mean class
// weight per shown frame.
func structureWeight(cfg gop.Config) float64 {
	n := 64
	if cfg.KeyInterval > 0 {
		n = min(max(cfg.KeyInterval, 16), 240)
	}
	p := gop.New(cfg)
	var sum float64
	shown := 0
	for p.NextDisplay() < int64(n) {
		for _, pl := range p.Next(n-int(p.NextDisplay()), true) {
			if pl.Show {
				shown++
			}
			if pl.ShowExisting {
				continue
			}
			r := Request{Type: pl.Type, Show: pl.Show}
			sum += weights[classOf(&r)]
		}
	}
	return sum / float64(shown)
}

// levelOffset lowers the quantizer of frames that others predict from.
func levelOffset(r *Request) int {
	switch classOf(r) {
	case classKey:
		return -16
	case classAnchor:
		return min(-12+4*r.Level, 0)
	}
	return 0
}

// step returns the 8-bit-normalized AC quantizer step of q.
func (c *Controller) step(q int) float64 {
	return float64(quant.ACStep(q, c.cfg.BitDepth)) / float64(int(1)<<uint(c.cfg.BitDepth-8))
}

// qForStep returns the smallest index in range whose step reaches s.
func (c *Controller) qForStep(s float64) int {
	lo, hi := c.cfg.MinQ, c.cfg.MaxQ
	for lo < hi {
		mid := (lo + hi) / 2
		if c.step(mid) >= s {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (c *Controller) clampQ(q int) int {
	return min(max(q, c.cfg.MinQ), c.cfg.MaxQ)
}

// Plan returns the decision for r. Every frame with Seq below
// r.Seq-Lag must have been recorded with Update.
func (c *Controller) Plan(r Request) (Decision, error) {
	for ; c.applied < r.Seq-int64(c.cfg.Lag); c.applied++ {
		res, ok := c.pending[c.applied]
		if !ok {
			return Decision{}, fmt.Errorf("%w: frame %d before %d", ErrMissingResult, c.applied, r.Seq)
		}
		delete(c.pending, c.applied)
		c.apply(&res)
	}
	if r.ShowExisting {
		return Decision{QIndex: c.lastQ[classShown]}, nil
	}
	if c.cfg.Mode == CQ {
		return Decision{QIndex: c.clampQ(c.cfg.QIndex + levelOffset(&r))}, nil
	}

	cl := classOf(&r)
	var target, cx float64
	if s, ok := c.stats[r.Display]; ok && c.statsCx > 0 {
		cx = s.complexity(c.cfg.BitDepth)
		target = c.perFrame * cx / c.statsPerShow
	} else {
		target = c.perFrame * weights[cl] / c.avgWeight
		cx = c.complexity[cl] * float64(c.cfg.Pixels)
	}
	// Spread the accumulated error over the next second of frames.
	horizon := max(c.cfg.FrameRate, 8)
	target += (c.budget - c.spent) / horizon * weights[cl] / c.avgWeight
	target = min(max(target, c.perFrame/16), c.perFrame*16)

	d := Decision{}
	if c.cfg.Mode == CBR {
		// The frame must fit in what the decoder holds after this
		// frame's inflow, less what frames in flight are expected to use.
		avail := c.buf.Fullness + float64(c.cfg.Lag+1)*c.perFrame
		for seq := c.applied; seq < r.Seq; seq++ {
			avail -= c.perFrame
		}
		avail = min(avail, c.buf.Size)
		d.MaxBits = max(int(avail*0.9), 1)
		target = min(target, float64(d.MaxBits)*0.8)
	}
	d.TargetBits = max(int(target), 1)

	q := c.qForStep(cx / float64(d.TargetBits))
	if c.seen[cl] && cl != classKey {
		// Limit the swing against the last frame of the same class.
		q = min(max(q, c.lastQ[cl]-32), c.lastQ[cl]+32)
	}
	if !c.seen[cl] && c.stats == nil {
		q = min(max(q, c.cfg.QIndex+levelOffset(&r)-24), c.cfg.QIndex+levelOffset(&r)+24)
	}
	d.QIndex = c.clampQ(q)
	return d, nil
}

// Recode returns the quantizer for another attempt at a frame that
// produced bits over d.MaxBits, interpolating between the attempts so far
// the way a secant search does. ok is false when no attempt is left or
// the quantizer cannot rise.
func (c *Controller) Recode(d Decision, attempts []Attempt) (Decision, bool) {
	if d.MaxBits == 0 || len(attempts) == 0 || len(attempts) >= MaxRecodes {
		return d, false
	}
	last := attempts[len(attempts)-1]
	if last.Bits <= d.MaxBits || last.QIndex >= c.cfg.MaxQ {
		return d, false
	}
	target := float64(d.MaxBits) * 0.85
	var q float64
	if len(attempts) >= 2 && attempts[len(attempts)-2].Bits != last.Bits {
		prev := attempts[len(attempts)-2]
		slope := float64(last.QIndex-prev.QIndex) / (math.Log(float64(last.Bits)) - math.Log(float64(prev.Bits)))
		q = float64(last.QIndex) + slope*(math.Log(target)-math.Log(float64(last.Bits)))
	} else {
		// Bits roughly halve for every 24 steps of q.
		q = float64(last.QIndex) + 24*math.Log2(float64(last.Bits)/target)
	}
	next := int(math.Ceil(q))
	next = min(max(next, last.QIndex+4), last.QIndex+64)
	if len(attempts) == MaxRecodes-1 {
		next = c.cfg.MaxQ
	}
	d.QIndex = c.clampQ(next)
	return d, d.QIndex > last.QIndex
}

// Attempt is one try at coding a frame.
type Attempt struct {
	QIndex int
	Bits   int
}

// Update records the outcome of a frame, padding included. Results may
// arrive in any order.
func (c *Controller) Update(res Result) {
	c.pending[res.Seq] = res
}

func (c *Controller) apply(res *Result) {
	r := &res.Req
	if r.Show {
		c.budget += c.perFrame
	}
	c.spent += float64(res.Bits)
	if c.buf != nil {
		c.buf.Add(res.Bits, r.Show)
	}
	if r.ShowExisting {
		return
	}
	cl := classOf(r)
	c.lastQ[cl] = res.QIndex
	cx := float64(res.Bits) * c.step(res.QIndex) / float64(c.cfg.Pixels)
	if c.seen[cl] {
		c.complexity[cl] = 0.5*c.complexity[cl] + 0.5*cx
	} else {
		c.complexity[cl] = cx
		c.seen[cl] = true
	}
}

// NewBuffer returns a model of the stream's decoder buffer, or nil outside
// CBR. The orchestrator feeds it every temporal unit as it is emitted.
func (c *Controller) NewBuffer() *Buffer {
	if c.cfg.Mode != CBR {
		return nil
	}
	return newBuffer(float64(c.cfg.Bitrate), c.cfg.BufferMs, c.perFrame)
}
