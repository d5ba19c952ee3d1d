package dsp

import (
	"math"

	"github.com/deepteams/av1/internal/block"
)

// Transform basis matrices are orthonormal and held at txPrec bits.
// Coefficients carry txScaleBits extra bits over an orthonormal transform
// of the residual.
const (
	txPrec      = 12
	txRound     = 1 << (txPrec - 1)
	txScaleBits = 3
)

// basis[kernel][log2n-2] is an n x n matrix, row k holding basis function k.
var basis [4][4][]int32

func init() {
	for l := 2; l <= 5; l++ {
		n := 1 << l
		dct := make([]int32, n*n)
		adst := make([]int32, n*n)
		idt := make([]int32, n*n)
		for k := 0; k < n; k++ {
			ck := math.Sqrt(2 / float64(n))
			if k == 0 {
				ck = math.Sqrt(1 / float64(n))
			}
			for i := 0; i < n; i++ {
				c := ck * math.Cos(math.Pi*float64((2*i+1)*k)/float64(2*n))
				dct[k*n+i] = int32(math.Round(c * (1 << txPrec)))
				s := 2 / math.Sqrt(float64(2*n+1)) *
					math.Sin(math.Pi*float64((2*k+1)*(i+1))/float64(2*n+1))
				adst[k*n+i] = int32(math.Round(s * (1 << txPrec)))
			}
			idt[k*n+k] = 1 << txPrec
		}
		basis[block.KernelDCT][l-2] = dct
		basis[block.KernelADST][l-2] = adst
		basis[block.KernelFlipADST][l-2] = adst
		basis[block.KernelIdentity][l-2] = idt
	}
}

func log2(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// fwd1D transforms n values read from in[0], in[step], ... into out with
// the same stride.
func fwd1D(k block.Kernel, n int, in []int64, out []int64, step int) {
	m := basis[k][log2(n)-2]
	var tmp [block.MaxTxSide]int64
	for i := 0; i < n; i++ {
		tmp[i] = in[i*step]
	}
	if k == block.KernelFlipADST {
		for i := 0; i < n/2; i++ {
			tmp[i], tmp[n-1-i] = tmp[n-1-i], tmp[i]
		}
	}
	for j := 0; j < n; j++ {
		row := m[j*n : (j+1)*n]
		var s int64
		for i := 0; i < n; i++ {
			s += int64(row[i]) * tmp[i]
		}
		out[j*step] = (s + txRound) >> txPrec
	}
}

// inv1D is the transpose of fwd1D.
func inv1D(k block.Kernel, n int, in []int64, out []int64, step int) {
	m := basis[k][log2(n)-2]
	var tmp [block.MaxTxSide]int64
	for i := 0; i < n; i++ {
		tmp[i] = in[i*step]
	}
	var res [block.MaxTxSide]int64
	for i := 0; i < n; i++ {
		var s int64
		for j := 0; j < n; j++ {
			s += int64(m[j*n+i]) * tmp[j]
		}
		res[i] = (s + txRound) >> txPrec
	}
	if k == block.KernelFlipADST {
		for i := 0; i < n/2; i++ {
			res[i], res[n-1-i] = res[n-1-i], res[i]
		}
	}
	for i := 0; i < n; i++ {
		out[i*step] = res[i]
	}
}

// ForwardTransform computes the coefficients of the w x h residual block
// res (row-major) into coef.
func ForwardTransform(res []int32, coef []int32, tx block.TxSize, typ block.TxType) {
	w, h := tx.Width(), tx.Height()
	vk, hk := typ.Kernels()
	var buf [block.MaxTxSide * block.MaxTxSide]int64
	b := buf[:w*h]
	for i := range b {
		b[i] = int64(res[i]) << txScaleBits
	}
	for y := 0; y < h; y++ {
		fwd1D(hk, w, b[y*w:], b[y*w:], 1)
	}
	for x := 0; x < w; x++ {
		fwd1D(vk, h, b[x:], b[x:], w)
	}
	for i := range b {
		coef[i] = int32(b[i])
	}
}

// InverseTransform reconstructs the residual from dequantized coefficients.
// It is the exact integer inverse used by both the encoder's
// reconstruction and the decoder.
func InverseTransform(coef []int32, res []int32, tx block.TxSize, typ block.TxType) {
	w, h := tx.Width(), tx.Height()
	vk, hk := typ.Kernels()
	var buf [block.MaxTxSide * block.MaxTxSide]int64
	b := buf[:w*h]
	for i := range b {
		b[i] = int64(coef[i])
	}
	for x := 0; x < w; x++ {
		inv1D(vk, h, b[x:], b[x:], w)
	}
	for y := 0; y < h; y++ {
		inv1D(hk, w, b[y*w:], b[y*w:], 1)
	}
	const r = 1 << (txScaleBits - 1)
	for i := range b {
		res[i] = int32((b[i] + r) >> txScaleBits)
	}
}

// CoeffLimit returns the largest coefficient magnitude a legal stream may
// carry at bit depth bd.
func CoeffLimit(bd int) int32 {
	return 1 << uint(bd+9)
}
