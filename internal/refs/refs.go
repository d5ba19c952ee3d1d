// Package refs manages the reconstructed frames that later frames predict
// from. Buffers are reference counted: every slot holding a buffer and
// every pending frame plan naming it keeps it alive, so refreshing a slot
// never recycles a frame an unfinished plan still reads.
package refs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deepteams/av1/internal/cdf"
	"github.com/deepteams/av1/internal/frame"
)

// NumSlots is the number of reference slots.
const NumSlots = 8

// ErrSlotsExhausted is returned when every buffer of the pool is pinned.
var ErrSlotsExhausted = errors.New("refs: reference buffer pool exhausted")

// ErrEmptySlot is returned when a plan names a slot that holds no frame.
var ErrEmptySlot = errors.New("refs: slot holds no frame")

// Buffer is one reconstructed frame together with the state later frames
// inherit from it.
type Buffer struct {
	Frame        *frame.Frame
	DisplayIndex int64
	CodingIndex  int64
	OrderHint    int
	QIndex       int
	Key          bool
	// Store holds the adapted contexts at the end of the frame's first
	// tile; frames naming this buffer as primary reference start from it.
	Store *cdf.Store

	id    int
	refs  int
	ready chan struct{}
	err   error
}

// ID identifies the pooled buffer; a recycled buffer keeps its ID.
func (b *Buffer) ID() int { return b.id }

// Wait blocks until the buffer is final. It returns the producer's error
// if the frame failed, or the context error.
func (b *Buffer) Wait(ctx context.Context) error {
	select {
	case <-b.ready:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish marks the buffer final.
func (b *Buffer) Publish() { close(b.ready) }

// Fail marks the buffer unusable; waiters receive err.
func (b *Buffer) Fail(err error) {
	b.err = err
	close(b.ready)
}

// Manager owns the buffer pool and the slot table. Only the planner
// mutates the slot table; Release may be called from any goroutine.
type Manager struct {
	mu       sync.Mutex
	slots    [NumSlots]*Buffer
	free     []*Buffer
	live     int
	capacity int
	alloc    func() *frame.Frame
	nextID   int
}

// NewManager returns a manager with at most capacity live buffers. alloc
// creates the frame of a new buffer.
func NewManager(capacity int, alloc func() *frame.Frame) *Manager {
	return &Manager{capacity: max(capacity, NumSlots+1), alloc: alloc}
}

// Reserve returns an unpublished buffer for a frame about to be coded. The
// caller holds one reference until it calls Release.
func (m *Manager) Reserve() (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b *Buffer
	if n := len(m.free); n > 0 {
		b = m.free[n-1]
		m.free = m.free[:n-1]
		*b = Buffer{Frame: b.Frame, id: b.id}
	} else {
		if m.live >= m.capacity {
			return nil, fmt.Errorf("%w: %d buffers pinned", ErrSlotsExhausted, m.live)
		}
		b = &Buffer{Frame: m.alloc(), id: m.nextID}
		m.nextID++
		m.live++
	}
	b.refs = 1
	b.ready = make(chan struct{})
	return b, nil
}

// Acquire pins the buffer held by slot for a pending plan.
func (m *Manager) Acquire(slot int) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.slots[slot]
	if b == nil {
		return nil, fmt.Errorf("%w: %d", ErrEmptySlot, slot)
	}
	b.refs++
	return b, nil
}

// Release drops one reference to b, recycling it when none remain.
func (m *Manager) Release(b *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unref(b)
}

func (m *Manager) unref(b *Buffer) {
	b.refs--
	if b.refs < 0 {
		panic("refs: buffer released twice")
	}
	if b.refs == 0 {
		b.Store = nil
		m.free = append(m.free, b)
	}
}

// Refresh stores b into every slot whose bit is set in mask. The previous
// occupants lose their slot reference.
func (m *Manager) Refresh(b *Buffer, mask uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if mask&(1<<i) == 0 {
			continue
		}
		b.refs++
		if old := m.slots[i]; old != nil {
			m.unref(old)
		}
		m.slots[i] = b
	}
}

// Live returns the number of allocated buffers and how many are free.
func (m *Manager) Live() (live, free int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live, len(m.free)
}

// Reset empties every slot. Buffers no plan pins return to the pool.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.slots {
		if b != nil {
			m.unref(b)
			m.slots[i] = nil
		}
	}
}
