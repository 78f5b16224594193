package nnue

import "github.com/hailam/chessplay/sfnnue/layers"

// Fixed-point kernels. All integer arithmetic is exact, so any
// implementation of these must agree with them bit for bit. The hidden
// layers themselves are sfnnue affine and clipped ReLU layers.

// clipTransformed clamps accumulator values into [0, 127].
func clipTransformed(dst []uint8, src []int16) {
	for i, v := range src {
		switch {
		case v < 0:
			dst[i] = 0
		case v > 127:
			dst[i] = 127
		default:
			dst[i] = uint8(v)
		}
	}
}

// row returns the weights feeding output o, without the SIMD padding.
func row(a *layers.AffineTransform, o int) []int8 {
	start := o * a.PaddedInputDimensions
	return a.Weights[start : start+a.InputDimensions]
}

func addColumn(acc, col []int16) {
	col = col[:len(acc)]
	for i := range acc {
		acc[i] += col[i]
	}
}

func subColumn(acc, col []int16) {
	col = col[:len(acc)]
	for i := range acc {
		acc[i] -= col[i]
	}
}
