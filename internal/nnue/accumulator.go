package nnue

import "github.com/hailam/kestrel/internal/board"

// lookback is how many plies an accumulator may be derived across before a
// full refresh is forced.
const lookback = 2

// Accumulator stores the feature transformer output for both perspectives.
type Accumulator struct {
	Values   [2][HalfDims]int16 // indexed by perspective color
	Computed [2]bool
}

// dirtyPiece is one piece change made by a move. From is NoSquare for a
// piece that appeared, To is NoSquare for one that disappeared.
type dirtyPiece struct {
	piece    board.Piece
	from, to board.Square
}

type frame struct {
	acc     Accumulator
	dirty   [3]dirtyPiece
	nDirty  int
	refresh [2]bool // that side's king moved, its view cannot be derived
}

func (f *frame) add(pc board.Piece, from, to board.Square) {
	f.dirty[f.nDirty] = dirtyPiece{piece: pc, from: from, to: to}
	f.nDirty++
}

// AccumulatorStack holds one accumulator per ply. Frames are filled lazily:
// Push only records what changed, Current derives or refreshes on demand.
type AccumulatorStack struct {
	net    *Network
	frames [MaxPly + 1]frame
	top    int
	buf    []int
}

// NewAccumulatorStack creates a stack for the network.
func NewAccumulatorStack(net *Network) *AccumulatorStack {
	return &AccumulatorStack{
		net: net,
		buf: make([]int, 0, MaxActiveFeatures),
	}
}

// Reset empties the stack.
func (s *AccumulatorStack) Reset() {
	s.top = 0
	s.frames[0].acc.Computed = [2]bool{}
	s.frames[0].nDirty = 0
}

// Depth returns the number of frames above the root.
func (s *AccumulatorStack) Depth() int {
	return s.top
}

// Push records the piece changes of the last move made on pos.
func (s *AccumulatorStack) Push(pos *board.Position) {
	rec, ok := pos.History(1)
	if !ok || s.top >= MaxPly {
		panic("nnue: accumulator stack overflow or missing move")
	}
	s.top++
	f := &s.frames[s.top]
	f.acc.Computed = [2]bool{}
	f.nDirty = 0
	f.refresh = [2]bool{}

	m := rec.Move
	us := rec.Piece.Color()
	from, to := m.From(), m.To()

	switch {
	case m.IsNull():
	case m.IsCastle():
		_, rTo := m.CastleSquares()
		f.refresh[us] = true
		if to != rTo {
			f.add(board.NewPiece(board.Rook, us), to, rTo)
		}
	default:
		if rec.Captured != board.NoPiece {
			capSq := to
			if m.IsEnPassant() {
				capSq = to ^ 8
			}
			f.add(rec.Captured, capSq, board.NoSquare)
		}
		switch {
		case rec.Piece.Type() == board.King:
			f.refresh[us] = true
		case m.IsPromotion():
			f.add(rec.Piece, from, board.NoSquare)
			f.add(board.NewPiece(m.Promotion(), us), board.NoSquare, to)
		default:
			f.add(rec.Piece, from, to)
		}
	}
}

// PushNull pushes a frame with no piece changes.
func (s *AccumulatorStack) PushNull() {
	if s.top >= MaxPly {
		panic("nnue: accumulator stack overflow")
	}
	s.top++
	f := &s.frames[s.top]
	f.acc.Computed = [2]bool{}
	f.nDirty = 0
	f.refresh = [2]bool{}
}

// Pop discards the top frame.
func (s *AccumulatorStack) Pop() {
	if s.top > 0 {
		s.top--
	}
}

// Current returns the accumulator for the top frame, computing whichever
// perspectives are missing. pos must be the position at the top frame.
func (s *AccumulatorStack) Current(pos *board.Position) *Accumulator {
	acc := &s.frames[s.top].acc
	for _, side := range [2]board.Color{board.White, board.Black} {
		if !acc.Computed[side] {
			s.update(pos, side)
		}
	}
	return acc
}

func (s *AccumulatorStack) update(pos *board.Position, side board.Color) {
	base := -1
	for i := s.top; i > s.top-lookback && i > 0; i-- {
		if s.frames[i].refresh[side] {
			break
		}
		if s.frames[i-1].acc.Computed[side] {
			base = i - 1
			break
		}
	}
	if base < 0 {
		s.Refresh(pos, side)
		return
	}

	// The king has not moved since base, so its current square is valid.
	ksq := pos.KingSquare(side)
	for i := base + 1; i <= s.top; i++ {
		f := &s.frames[i]
		dst := &f.acc.Values[side]
		*dst = s.frames[i-1].acc.Values[side]
		for _, d := range f.dirty[:f.nDirty] {
			if d.from != board.NoSquare {
				subColumn(dst[:], s.net.column(FeatureIndex(side, ksq, d.piece, d.from)))
			}
			if d.to != board.NoSquare {
				addColumn(dst[:], s.net.column(FeatureIndex(side, ksq, d.piece, d.to)))
			}
		}
		f.acc.Computed[side] = true
	}
}

// Refresh recomputes the top accumulator for one perspective from scratch.
func (s *AccumulatorStack) Refresh(pos *board.Position, side board.Color) {
	acc := &s.frames[s.top].acc
	s.net.refresh(pos, side, &acc.Values[side], s.buf[:0])
	acc.Computed[side] = true
}

// ComputeFull fills acc for both perspectives of pos from scratch.
func (n *Network) ComputeFull(pos *board.Position, acc *Accumulator) {
	buf := make([]int, 0, MaxActiveFeatures)
	for _, side := range [2]board.Color{board.White, board.Black} {
		n.refresh(pos, side, &acc.Values[side], buf[:0])
		acc.Computed[side] = true
	}
}

func (n *Network) refresh(pos *board.Position, side board.Color, dst *[HalfDims]int16, buf []int) {
	*dst = n.FTBiases
	for _, idx := range ActiveFeatures(pos, side, buf) {
		addColumn(dst[:], n.column(idx))
	}
}
