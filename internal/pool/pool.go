// Package pool provides bucketed sync.Pool instances for the sample
// windows the loop filter searches work on. Buffers are organized by size
// class to minimize waste.
package pool

import "sync"

// Size classes, in elements.
const (
	Size256  = 256
	Size1K   = 1024
	Size4K   = 4096
	Size16K  = 16384
	Size64K  = 65536
	Size256K = 262144
	Size1M   = 1048576
)

var sizes = [7]int{Size256, Size1K, Size4K, Size16K, Size64K, Size256K, Size1M}

// bucketIndex returns the pool index for n elements.
func bucketIndex(n int) int {
	for i, s := range sizes[:len(sizes)-1] {
		if n <= s {
			return i
		}
	}
	return len(sizes) - 1
}

type bucketed[T any] struct {
	pools [len(sizes)]sync.Pool
}

func newBucketed[T any]() *bucketed[T] {
	b := &bucketed[T]{}
	for i := range b.pools {
		sz := sizes[i]
		b.pools[i].New = func() any {
			s := make([]T, sz)
			return &s
		}
	}
	return b
}

func (b *bucketed[T]) get(n int) []T {
	sp := b.pools[bucketIndex(n)].Get().(*[]T)
	s := *sp
	if cap(s) < n {
		s = make([]T, n)
		*sp = s
		return s
	}
	return s[:n]
}

func (b *bucketed[T]) put(s []T) {
	c := cap(s)
	if c < Size256 {
		return
	}
	s = s[:c]
	b.pools[bucketIndex(c)].Put(&s)
}

var samplePool = newBucketed[uint16]()

// GetSamples returns a sample slice of length n. Contents are unspecified.
// The caller must call PutSamples when done.
func GetSamples(n int) []uint16 { return samplePool.get(n) }

// PutSamples returns a slice obtained from GetSamples. Slices smaller than
// Size256 are not pooled.
func PutSamples(s []uint16) { samplePool.put(s) }
