// Package block defines the coding-block vocabulary shared by the encoder
// and the verification decoder: block and transform sizes, partition
// layouts, prediction modes, motion vectors, scan orders, and the
// mode-info grid.
package block

// Size is a coding block size in luma samples. The smallest leaf is 8x8;
// rectangular sizes come from HORZ/VERT partitions (2:1) and HORZ_4/VERT_4
// (4:1).
type Size uint8

const (
	Block8x8 Size = iota
	Block8x16
	Block16x8
	Block16x16
	Block16x32
	Block32x16
	Block32x32
	Block32x64
	Block64x32
	Block64x64
	Block8x32
	Block32x8
	Block16x64
	Block64x16

	NumSizes
)

// SuperblockSize is the side of a superblock in luma samples.
const SuperblockSize = 64

// MinSize is the smallest leaf dimension in luma samples.
const MinSize = 8

var sizeLog2 = [NumSizes][2]uint8{
	Block8x8:   {3, 3},
	Block8x16:  {3, 4},
	Block16x8:  {4, 3},
	Block16x16: {4, 4},
	Block16x32: {4, 5},
	Block32x16: {5, 4},
	Block32x32: {5, 5},
	Block32x64: {5, 6},
	Block64x32: {6, 5},
	Block64x64: {6, 6},
	Block8x32:  {3, 5},
	Block32x8:  {5, 3},
	Block16x64: {4, 6},
	Block64x16: {6, 4},
}

// Width returns the block width in luma samples.
func (s Size) Width() int { return 1 << sizeLog2[s][0] }

// Height returns the block height in luma samples.
func (s Size) Height() int { return 1 << sizeLog2[s][1] }

// Log2W returns log2 of the width.
func (s Size) Log2W() int { return int(sizeLog2[s][0]) }

// Log2H returns log2 of the height.
func (s Size) Log2H() int { return int(sizeLog2[s][1]) }

// SizeFor returns the block size with the given dimensions and reports
// whether it exists.
func SizeFor(w, h int) (Size, bool) {
	for s := Size(0); s < NumSizes; s++ {
		if s.Width() == w && s.Height() == h {
			return s, true
		}
	}
	return 0, false
}

// SizeGroup buckets block sizes by area for mode contexts (0..3).
func (s Size) SizeGroup() int {
	a := s.Log2W() + s.Log2H()
	switch {
	case a <= 6:
		return 0
	case a <= 8:
		return 1
	case a <= 10:
		return 2
	}
	return 3
}

// Rect is an axis-aligned rectangle in samples.
type Rect struct {
	X, Y, W, H int
}

// Partition is a superblock-tree split decision, in AV1 symbol order.
type Partition uint8

const (
	PartitionNone Partition = iota
	PartitionHorz
	PartitionVert
	PartitionSplit
	PartitionHorzA // top split, bottom whole
	PartitionHorzB // top whole, bottom split
	PartitionVertA // left split, right whole
	PartitionVertB // left whole, right split
	PartitionHorz4
	PartitionVert4

	NumPartitions
)

var partitionNames = [NumPartitions]string{
	"NONE", "HORZ", "VERT", "SPLIT", "HORZ_A", "HORZ_B", "VERT_A", "VERT_B", "HORZ_4", "VERT_4",
}

func (p Partition) String() string {
	if p >= NumPartitions {
		return "INVALID"
	}
	return partitionNames[p]
}

// PartitionCount returns how many partition types a square node of side n
// may signal. 8x8 nodes are always NONE.
func PartitionCount(n int) int {
	switch {
	case n <= 8:
		return 1
	case n == 16:
		return 8
	}
	return int(NumPartitions)
}

// Layout returns the leaf rectangles, relative to the node origin and in
// coding order, produced by partition p of a square node of side n.
// SPLIT returns the four square children.
func Layout(p Partition, n int) []Rect {
	h := n / 2
	q := n / 4
	switch p {
	case PartitionNone:
		return []Rect{{0, 0, n, n}}
	case PartitionHorz:
		return []Rect{{0, 0, n, h}, {0, h, n, h}}
	case PartitionVert:
		return []Rect{{0, 0, h, n}, {h, 0, h, n}}
	case PartitionSplit:
		return []Rect{{0, 0, h, h}, {h, 0, h, h}, {0, h, h, h}, {h, h, h, h}}
	case PartitionHorzA:
		return []Rect{{0, 0, h, h}, {h, 0, h, h}, {0, h, n, h}}
	case PartitionHorzB:
		return []Rect{{0, 0, n, h}, {0, h, h, h}, {h, h, h, h}}
	case PartitionVertA:
		return []Rect{{0, 0, h, h}, {0, h, h, h}, {h, 0, h, n}}
	case PartitionVertB:
		return []Rect{{0, 0, h, n}, {h, 0, h, h}, {h, h, h, h}}
	case PartitionHorz4:
		return []Rect{{0, 0, n, q}, {0, q, n, q}, {0, 2 * q, n, q}, {0, 3 * q, n, q}}
	case PartitionVert4:
		return []Rect{{0, 0, q, n}, {q, 0, q, n}, {2 * q, 0, q, n}, {3 * q, 0, q, n}}
	}
	return nil
}
