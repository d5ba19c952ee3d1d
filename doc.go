// Package av1 provides a pure Go AV1-family video encoder.
//
// A session codes a sequence of same-sized pictures into temporal units of
// OBUs (open bitstream units). The encoder searches partitions, prediction
// modes and transforms under a rate-distortion objective and codes them
// with an adaptive multi-symbol range coder. The package supports:
//   - 8, 10 and 12-bit pictures in 4:2:0, 4:2:2, 4:4:4 and monochrome
//   - Intra and inter coding with up to seven references and compound
//     prediction
//   - Hierarchical mini-GOPs whose anchors are shown later
//   - Deblocking, CDEF and Wiener loop restoration
//   - Constant quantizer, average and constant bitrate control with
//     two-pass statistics
//   - Tile and frame parallelism that leaves the output unchanged
//
// Basic usage:
//
//	enc, err := av1.NewEncoder(av1.SequenceParams{Width: 640, Height: 360, BitDepth: 8}, nil)
//	for _, pic := range pictures {
//		pkts, err := enc.Encode(ctx, pic)
//		// write pkts
//	}
//	pkts, err := enc.Flush(ctx)
//
// The container/ivf, container/mp4 and container/rtp packages package the
// output.
package av1
