package dsp

import (
	"math/rand"
	"testing"
)

func TestLimitsFor(t *testing.T) {
	l := LimitsFor(32, 0, 8)
	if l.Limit != 32 || l.BLimit != 2*34+32 || l.Thresh != 2 {
		t.Errorf("LimitsFor(32,0,8) = %+v", l)
	}
	l = LimitsFor(32, 5, 10)
	if l.Limit != 4<<2 || l.Thresh != 2<<2 {
		t.Errorf("LimitsFor(32,5,10) = %+v", l)
	}
	if l := LimitsFor(0, 0, 8); l.Limit != 1 {
		t.Errorf("limit floor = %d, want 1", l.Limit)
	}
}

func TestFilterEdge_SmoothsStep(t *testing.T) {
	for _, size := range []int{4, 6, 8, 14} {
		buf := make([]uint16, 16)
		for i := range buf {
			if i < 8 {
				buf[i] = 100
			} else {
				buf[i] = 104
			}
		}
		FilterEdge(buf, 8, 1, size, LimitsFor(20, 0, 8), 8)
		if d := int(buf[8]) - int(buf[7]); d >= 4 || d < 0 {
			t.Errorf("size %d: step after filter = %d, want in [0,4)", size, d)
		}
		for i := 1; i < len(buf); i++ {
			if buf[i] < buf[i-1] {
				t.Errorf("size %d: filtered edge not monotonic: %v", size, buf)
				break
			}
		}
	}
}

func TestFilterEdge_KeepsRealEdges(t *testing.T) {
	buf := make([]uint16, 16)
	for i := 8; i < 16; i++ {
		buf[i] = 200
	}
	want := append([]uint16(nil), buf...)
	FilterEdge(buf, 8, 1, 14, LimitsFor(10, 0, 8), 8)
	for i := range buf {
		if buf[i] != want[i] {
			t.Fatalf("strong edge modified at %d: %d != %d", i, buf[i], want[i])
		}
	}
}

func TestCDEFDirection(t *testing.T) {
	img := make([]uint16, 64)
	// Vertical stripes: the dominant direction is vertical (6).
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			if j%2 == 0 {
				img[i*8+j] = 200
			} else {
				img[i*8+j] = 50
			}
		}
	}
	if dir, v := CDEFDirection(img, 8, 8); dir != 6 || v <= 0 {
		t.Errorf("vertical stripes: dir=%d var=%d, want 6 and >0", dir, v)
	}
	// Horizontal stripes: direction 2.
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			img[i*8+j] = uint16(50 + 150*(i%2))
		}
	}
	if dir, _ := CDEFDirection(img, 8, 8); dir != 2 {
		t.Errorf("horizontal stripes: dir=%d, want 2", dir)
	}
}

func TestCDEFFilterBlock_FlatIsIdentity(t *testing.T) {
	const stride = 8 + 2*CDEFPad
	src := make([]int32, stride*stride)
	for i := range src {
		src[i] = 77
	}
	dst := make([]uint16, 64)
	CDEFFilterBlock(dst, 8, src, CDEFPad*stride+CDEFPad, stride, 8, 8, 4, 2, 3, 3, 8)
	for i, v := range dst {
		if v != 77 {
			t.Fatalf("flat block sample %d = %d, want 77", i, v)
		}
	}
}

func TestCDEFFilterBlock_StaysInNeighbourRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const stride = 8 + 2*CDEFPad
	src := make([]int32, stride*stride)
	for i := range src {
		src[i] = int32(rng.Intn(256))
	}
	// Mark the top padding rows unavailable.
	for i := 0; i < CDEFPad*stride; i++ {
		src[i] = CDEFUnavailable
	}
	dst := make([]uint16, 64)
	CDEFFilterBlock(dst, 8, src, CDEFPad*stride+CDEFPad, stride, 8, 8, 8, 4, 1, 5, 8)
	for i, v := range dst {
		if v > 255 {
			t.Fatalf("sample %d = %d out of range", i, v)
		}
	}
}

func TestWienerIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const w, h, stride = 16, 8, 16 + 6
	src := make([]uint16, stride*(h+6))
	for i := range src {
		src[i] = uint16(rng.Intn(1024))
	}
	dst := make([]uint16, w*h)
	off := 3*stride + 3
	WienerFilter(dst, w, src, off, stride, w, h, WienerTaps{}, WienerTaps{}, 10)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			if dst[r*w+c] != src[off+r*stride+c] {
				t.Fatalf("identity taps changed (%d,%d)", c, r)
			}
		}
	}
	if f := (WienerTaps{3, -7, 15}).Full(); f[3] != 128-2*11 {
		t.Errorf("centre tap = %d", f[3])
	}
}
