package dsp

import (
	"math/rand"
	"testing"

	"github.com/deepteams/av1/internal/block"
)

func TestTransform_RoundTripNearLossless(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for tx := block.TxSize(0); tx < block.NumTxSizes; tx++ {
		for typ := block.TxType(0); typ < block.NumTxTypes; typ++ {
			if typ != block.DctDct && typ != block.Idtx && !block.TxTypeSignaled(tx) {
				continue
			}
			n := tx.Area()
			res := make([]int32, n)
			for i := range res {
				res[i] = int32(rng.Intn(511) - 255)
			}
			coef := make([]int32, n)
			out := make([]int32, n)
			ForwardTransform(res, coef, tx, typ)
			InverseTransform(coef, out, tx, typ)
			for i := range res {
				if d := out[i] - res[i]; d < -1 || d > 1 {
					t.Fatalf("tx %dx%d type %d: sample %d = %d, want %d +-1",
						tx.Width(), tx.Height(), typ, i, out[i], res[i])
				}
			}
		}
	}
}

func TestTransform_DCEnergy(t *testing.T) {
	res := make([]int32, 64)
	for i := range res {
		res[i] = 10
	}
	coef := make([]int32, 64)
	ForwardTransform(res, coef, block.Tx8x8, block.DctDct)
	// Orthonormal DC of a flat 8x8 block is 8*value, scaled by 8.
	if want := int32(10 * 8 << txScaleBits); coef[0] < want-2 || coef[0] > want+2 {
		t.Errorf("DC = %d, want ~%d", coef[0], want)
	}
	for i := 1; i < 64; i++ {
		if coef[i] > 1 || coef[i] < -1 {
			t.Errorf("AC[%d] = %d, want ~0", i, coef[i])
		}
	}
}

func TestTransform_Limit(t *testing.T) {
	res := make([]int32, 32*32)
	for i := range res {
		res[i] = 255
	}
	coef := make([]int32, len(res))
	ForwardTransform(res, coef, block.Tx32x32, block.DctDct)
	for i, c := range coef {
		if c > CoeffLimit(8) || c < -CoeffLimit(8) {
			t.Fatalf("coef %d = %d exceeds limit %d", i, c, CoeffLimit(8))
		}
	}
}

func BenchmarkForwardTransform16x16(b *testing.B) {
	res := make([]int32, 256)
	coef := make([]int32, 256)
	for i := range res {
		res[i] = int32(i%37 - 18)
	}
	for i := 0; i < b.N; i++ {
		ForwardTransform(res, coef, block.Tx16x16, block.DctDct)
	}
}
