package av1

import (
	"context"
	"math/rand"
	"testing"
)

func benchmarkEncode(b *testing.B, seq SequenceParams, opts *EncoderOptions) {
	rng := rand.New(rand.NewSource(42))
	const n = 8
	pics := make([]*Picture, n)
	for i := range pics {
		pics[i] = gradientPicture(rng, seq, i)
	}
	ctx := context.Background()
	var bytes int64
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		enc, err := NewEncoder(seq, opts)
		if err != nil {
			b.Fatal(err)
		}
		for _, pic := range pics {
			if _, err := enc.Encode(ctx, pic); err != nil {
				b.Fatal(err)
			}
		}
		if _, err := enc.Flush(ctx); err != nil {
			b.Fatal(err)
		}
		bytes = enc.Stats().Bytes
	}
	b.SetBytes(bytes)
}

func BenchmarkEncode_Realtime(b *testing.B) {
	opts, _ := OptionsForPreset(PresetRealtime)
	benchmarkEncode(b, SequenceParams{Width: 176, Height: 144, BitDepth: 8}, opts)
}

func BenchmarkEncode_Good(b *testing.B) {
	benchmarkEncode(b, SequenceParams{Width: 176, Height: 144, BitDepth: 8}, DefaultOptions())
}

func BenchmarkEncode_10Bit(b *testing.B) {
	opts := DefaultOptions()
	opts.Speed = 8
	benchmarkEncode(b, SequenceParams{Width: 176, Height: 144, BitDepth: 10}, opts)
}

func BenchmarkEncode_Tiles(b *testing.B) {
	opts := DefaultOptions()
	opts.Speed = 8
	opts.TileCols, opts.TileRows = 2, 2
	benchmarkEncode(b, SequenceParams{Width: 352, Height: 288, BitDepth: 8}, opts)
}
