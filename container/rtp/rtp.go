// Package rtp carries temporal units over RTP using the AV1 payload
// format: a one-byte aggregation header followed by length-prefixed OBU
// elements whose own size fields are removed. Temporal delimiters are
// dropped by the sender and restored by the receiver.
package rtp

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"

	"github.com/deepteams/av1"
	"github.com/deepteams/av1/internal/bitio"
	"github.com/deepteams/av1/internal/obu"
)

// ClockRate is the RTP timestamp rate for video.
const ClockRate = 90000

// Aggregation header bits.
const (
	flagZ = 0x80 // first element continues the previous packet's last
	flagY = 0x40 // last element continues in the next packet
	flagN = 0x08 // first packet of a coded video sequence
)

const minMTU = rtpHeaderSize + 3

const rtpHeaderSize = 12

var (
	// ErrMTU is returned for an MTU too small to carry any payload.
	ErrMTU = errors.New("rtp: MTU too small")
	// ErrPayload is returned for a malformed aggregation packet.
	ErrPayload = errors.New("rtp: malformed AV1 payload")
)

// Config configures a Sender.
type Config struct {
	MTU         uint16
	PayloadType uint8
	SSRC        uint32
	// FirstSequence seeds the packet sequence numbers.
	FirstSequence uint16
	// InitialTimestamp is added to every packet timestamp.
	InitialTimestamp uint32
	// FrameRate converts packet PTS values, counted in 1/FrameRate.Num
	// seconds, to the 90 kHz clock. Zero means PTS is already in it.
	FrameRate av1.Rational
}

// Sender is an av1.Packager that packetizes each temporal unit and hands
// the RTP packets to a callback.
type Sender struct {
	cfg  Config
	pk   rtp.Packetizer
	emit func(*rtp.Packet) error
	sent int
}

var _ av1.Packager = (*Sender)(nil)

// NewSender returns a Sender delivering packets to emit.
func NewSender(cfg Config, emit func(*rtp.Packet) error) (*Sender, error) {
	if cfg.MTU < minMTU {
		return nil, fmt.Errorf("%w: %d", ErrMTU, cfg.MTU)
	}
	pk := rtp.NewPacketizer(cfg.MTU, cfg.PayloadType, cfg.SSRC, &Payloader{}, rtp.NewFixedSequencer(cfg.FirstSequence), ClockRate)
	return &Sender{cfg: cfg, pk: pk, emit: emit}, nil
}

func (s *Sender) timestamp(pts int64) int64 {
	if s.cfg.FrameRate.Num <= 0 {
		return pts
	}
	return pts * ClockRate / int64(s.cfg.FrameRate.Num)
}

// WritePacket packetizes one temporal unit. The marker bit is set on its
// last packet.
func (s *Sender) WritePacket(p av1.Packet) error {
	if _, err := obu.Split(p.Data); err != nil {
		return fmt.Errorf("rtp: %w", err)
	}
	ts := s.cfg.InitialTimestamp + uint32(s.timestamp(p.PTS))
	for _, pkt := range s.pk.Packetize(p.Data, 0) {
		pkt.Timestamp = ts
		if err := s.emit(pkt); err != nil {
			return err
		}
	}
	s.sent++
	return nil
}

// Units returns the number of temporal units sent.
func (s *Sender) Units() int { return s.sent }

// Close is a no-op; packets are delivered as they are produced.
func (s *Sender) Close() error { return nil }

// Payloader splits temporal units into AV1 aggregation packets. It
// implements rtp.Payloader.
type Payloader struct{}

// Payload returns the payloads of one temporal unit, each at most mtu
// bytes. It returns nil when data does not parse as units.
func (*Payloader) Payload(mtu uint16, data []byte) [][]byte {
	units, err := obu.Split(data)
	if err != nil || mtu < 3 {
		return nil
	}
	var (
		out [][]byte
		cur = []byte{0}
	)
	for _, u := range units {
		if u.Type == obu.TypeTemporalDelimiter {
			continue
		}
		if u.Type == obu.TypeSequenceHeader && len(out) == 0 {
			cur[0] |= flagN
		}
		el := append([]byte{byte(u.Type) << 3}, u.Payload...)
		for len(el) > 0 {
			space := int(mtu) - len(cur)
			if space < 2 {
				out = append(out, cur)
				cur = []byte{0}
				continue
			}
			n := min(len(el), space-1)
			for n > 0 && bitio.Leb128Size(uint64(n))+n > space {
				n--
			}
			cur = bitio.AppendLeb128(cur, uint64(n))
			cur = append(cur, el[:n]...)
			el = el[n:]
			if len(el) > 0 {
				cur[0] |= flagY
				out = append(out, cur)
				cur = []byte{flagZ}
			}
		}
	}
	if len(cur) > 1 {
		out = append(out, cur)
	}
	return out
}

// Receiver reassembles temporal units from AV1 RTP packets.
type Receiver struct {
	units   []byte
	partial []byte
	broken  bool
	lastSeq uint16
	started bool
}

// Push consumes one packet in sequence order. It returns the temporal
// unit, framed as the encoder writes it, when the packet carries the
// marker bit. A sequence number gap discards the unit in progress.
func (r *Receiver) Push(pkt *rtp.Packet) ([]byte, error) {
	if r.started && pkt.SequenceNumber != r.lastSeq+1 {
		r.broken = true
	}
	r.started = true
	r.lastSeq = pkt.SequenceNumber
	if err := r.depacketize(pkt.Payload); err != nil {
		r.broken = true
	}
	if !pkt.Marker {
		return nil, nil
	}
	defer r.reset()
	if r.broken || r.partial != nil {
		return nil, ErrPayload
	}
	tu := obu.Append(nil, obu.TypeTemporalDelimiter, nil)
	return append(tu, r.units...), nil
}

func (r *Receiver) reset() {
	r.units, r.partial, r.broken = r.units[:0], nil, false
}

func (r *Receiver) depacketize(payload []byte) error {
	if len(payload) < 2 {
		return ErrPayload
	}
	agg := payload[0]
	data := payload[1:]
	if agg&flagZ != 0 && r.partial == nil {
		return ErrPayload
	}
	if agg&flagZ == 0 && r.partial != nil {
		return ErrPayload
	}
	first := true
	for len(data) > 0 {
		size, n, err := bitio.ReadLeb128(data)
		if err != nil || size > uint64(len(data)-n) {
			return ErrPayload
		}
		el := data[n : n+int(size)]
		data = data[n+int(size):]
		if first && agg&flagZ != 0 {
			el = append(r.partial, el...)
			r.partial = nil
		}
		first = false
		if len(data) == 0 && agg&flagY != 0 {
			r.partial = append([]byte(nil), el...)
			break
		}
		if err := r.appendElement(el); err != nil {
			return err
		}
	}
	return nil
}

func (r *Receiver) appendElement(el []byte) error {
	if len(el) == 0 {
		return ErrPayload
	}
	r.units = obu.Append(r.units, obu.Type(el[0]>>3&0xf), el[1:])
	return nil
}
