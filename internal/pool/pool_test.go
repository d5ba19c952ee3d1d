package pool

import (
	"sync"
	"testing"
)

func TestGetPut_Lengths(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		minCap int
	}{
		{"zero", 0, Size256},
		{"small", 100, Size256},
		{"256", 256, Size256},
		{"257", 257, Size1K},
		{"3000", 3000, Size4K},
		{"64K", 65536, Size64K},
		{"1M", 1048576, Size1M},
		{"2M", 2 * 1048576, 2 * 1048576},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := GetSamples(tt.size)
			if len(s) != tt.size || cap(s) < tt.minCap {
				t.Errorf("GetSamples(%d): len %d cap %d, want len %d cap >= %d", tt.size, len(s), cap(s), tt.size, tt.minCap)
			}
			PutSamples(s)
		})
	}
}

func TestBucketIndex(t *testing.T) {
	tests := []struct{ n, want int }{
		{1, 0}, {256, 0}, {257, 1}, {1024, 1}, {1025, 2}, {4097, 3},
		{16385, 4}, {65537, 5}, {262145, 6}, {1048576, 6}, {1 << 22, 6},
	}
	for _, tt := range tests {
		if got := bucketIndex(tt.n); got != tt.want {
			t.Errorf("bucketIndex(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestPut_SmallAndNil(t *testing.T) {
	PutSamples(nil)
	PutSamples(make([]uint16, 0, 10))
	if s := GetSamples(256); len(s) != 256 {
		t.Errorf("GetSamples(256) after small Put: len = %d", len(s))
	}
}

func TestConcurrency(t *testing.T) {
	const goroutines = 16
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				for _, n := range []int{128, 2048, 32768, 131072} {
					s := GetSamples(n)
					for j := range s {
						s[j] = uint16(j)
					}
					PutSamples(s)
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkGetSamples(b *testing.B) {
	for i := 0; i < b.N; i++ {
		PutSamples(GetSamples(4096))
	}
}
