package nnue

import (
	"math/rand/v2"

	"github.com/hailam/chessplay/sfnnue/layers"

	"github.com/hailam/kestrel/internal/board"
)

// Network holds the NNUE weights. It is read-only once loaded and shared by
// every search thread.
type Network struct {
	// Feature transformer: NumFeatures -> HalfDims (per perspective).
	// Weights are stored one feature column after another.
	FTBiases  [HalfDims]int16
	FTWeights []int16

	Hidden1 *layers.AffineTransform // TransformedDims -> Hidden1Dims
	Hidden2 *layers.AffineTransform // Hidden1Dims -> Hidden2Dims
	Output  *layers.AffineTransform // Hidden2Dims -> 1

	relu1 *layers.ClippedReLU
	relu2 *layers.ClippedReLU
}

// NewNetwork creates a network with zero weights.
func NewNetwork() *Network {
	return &Network{
		FTWeights: make([]int16, NumFeatures*HalfDims),
		Hidden1:   layers.NewAffineTransform(TransformedDims, Hidden1Dims),
		Hidden2:   layers.NewAffineTransform(Hidden1Dims, Hidden2Dims),
		Output:    layers.NewAffineTransform(Hidden2Dims, 1),
		relu1:     layers.NewClippedReLU(Hidden1Dims),
		relu2:     layers.NewClippedReLU(Hidden2Dims),
	}
}

func (n *Network) column(idx int) []int16 {
	return n.FTWeights[idx*HalfDims : (idx+1)*HalfDims]
}

func (n *Network) hidden() [3]*layers.AffineTransform {
	return [3]*layers.AffineTransform{n.Hidden1, n.Hidden2, n.Output}
}

// Forward propagates an accumulator through the network and returns the
// score in centipawns for sideToMove.
func (n *Network) Forward(acc *Accumulator, sideToMove board.Color) int {
	var input [TransformedDims]uint8
	clipTransformed(input[:HalfDims], acc.Values[sideToMove][:])
	clipTransformed(input[HalfDims:], acc.Values[sideToMove.Other()][:])

	var sum1 [Hidden1Dims]int32
	var out1 [Hidden1Dims]uint8
	n.Hidden1.Propagate(input[:], sum1[:])
	n.relu1.Propagate(sum1[:], out1[:])

	var sum2 [Hidden2Dims]int32
	var out2 [Hidden2Dims]uint8
	n.Hidden2.Propagate(out1[:], sum2[:])
	n.relu2.Propagate(sum2[:], out2[:])

	var out [1]int32
	n.Output.Propagate(out2[:], out[:])
	return int(out[0] / OutputDivisor)
}

// InitRandom fills the network with small random weights. Used by tests and
// for exercising the evaluator without a trained net.
func (n *Network) InitRandom(seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	small := func(span int) int { return rng.IntN(2*span+1) - span }

	for i := range n.FTBiases {
		n.FTBiases[i] = int16(small(32) + 32)
	}
	for i := range n.FTWeights {
		n.FTWeights[i] = int16(small(4))
	}
	spans := [3]struct{ bias, weight int }{{256, 8}, {256, 24}, {512, 64}}
	for l, a := range n.hidden() {
		for o := range a.Biases {
			a.Biases[o] = int32(small(spans[l].bias))
			for i := range row(a, o) {
				row(a, o)[i] = int8(small(spans[l].weight))
			}
		}
	}
}
