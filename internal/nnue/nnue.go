// Package nnue implements NNUE (Efficiently Updatable Neural Network) evaluation.
//
// The network is HalfKP: for each perspective, every non-king piece is a
// feature relative to that side's king square. The feature transformer
// produces two 256-wide int16 accumulators which are clipped, concatenated
// (side to move first) and propagated through 512->32->32->1 int8 layers.
package nnue

import (
	"errors"

	"github.com/hailam/chessplay/sfnnue/layers"

	"github.com/hailam/kestrel/internal/board"
)

// Network architecture constants
const (
	// Inputs per king square: 10 piece kinds on 64 squares plus one unused slot.
	FeaturesPerKing = 64*10 + 1
	NumFeatures     = 64 * FeaturesPerKing // 41024

	HalfDims        = 256
	TransformedDims = HalfDims * 2
	Hidden1Dims     = 32
	Hidden2Dims     = 32

	// Hidden layer outputs are shifted right before clipping.
	WeightShift = layers.WeightScaleBits
	// The final layer output is divided by this to give centipawns.
	OutputDivisor = 16

	// MaxActiveFeatures is the most features a legal position can have per perspective.
	MaxActiveFeatures = 30

	// MaxPly bounds the accumulator stack depth.
	MaxPly = 256
)

var (
	ErrBadVersion = errors.New("nnue: unsupported network version")
	ErrChecksum   = errors.New("nnue: checksum mismatch")
	ErrSize       = errors.New("nnue: wrong network file size")
)

// Evaluator is one search thread's view of a shared network: the network
// weights are read-only, the accumulator stack belongs to the caller.
type Evaluator struct {
	net   *Network
	stack *AccumulatorStack
}

// NewEvaluator creates an evaluator for the network.
func NewEvaluator(net *Network) *Evaluator {
	return &Evaluator{
		net:   net,
		stack: NewAccumulatorStack(net),
	}
}

// Network returns the evaluator's network.
func (e *Evaluator) Network() *Network {
	return e.net
}

// Evaluate returns the NNUE evaluation of the position in centipawns from
// the side to move's point of view. The position must be the one the stack
// has been following since the last Reset.
func (e *Evaluator) Evaluate(pos *board.Position) int {
	acc := e.stack.Current(pos)
	return e.net.Forward(acc, pos.SideToMove)
}

// Reset empties the stack; the next Evaluate refreshes from the position given.
func (e *Evaluator) Reset() {
	e.stack.Reset()
}

// Push records the move just made on pos (call after a successful MakeMove).
func (e *Evaluator) Push(pos *board.Position) {
	e.stack.Push(pos)
}

// PushNull records a null move.
func (e *Evaluator) PushNull() {
	e.stack.PushNull()
}

// Pop drops the top frame (call after UnmakeMove or UnmakeNullMove).
func (e *Evaluator) Pop() {
	e.stack.Pop()
}
