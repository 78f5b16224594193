package engine

import (
	"github.com/hailam/kestrel/internal/board"
)

// History bonus scaling. Scores converge toward historyUp*historyDown for a
// move that always cuts off.
const (
	historyUp       = 32
	historyDown     = 512
	maxHistoryDepth = 20
)

// History holds the per-worker quiet move statistics: butterfly history
// keyed by piece and destination, counter and follow-up continuation
// tables, one killer per ply and a counter move per previous destination.
type History struct {
	main     [12][64]int32
	counter  [12][64][12][64]int32
	followUp [12][64][12][64]int32

	killers      [MaxPly + 1]board.Move
	counterMoves [12][64]board.Move
}

// NewHistory allocates empty tables.
func NewHistory() *History {
	return &History{}
}

// Clear resets every table.
func (h *History) Clear() {
	*h = History{}
}

// ClearKillers drops the killer moves, which only make sense within one
// search.
func (h *History) ClearKillers() {
	clear(h.killers[:])
}

// destination returns the square used to key a move: the king's
// destination for castles, the target square otherwise.
func destination(m board.Move) board.Square {
	if m.IsCastle() {
		kTo, _ := m.CastleSquares()
		return kTo
	}
	return m.To()
}

// continuation describes an earlier move a continuation table is keyed on.
type continuation struct {
	piece board.Piece
	to    board.Square
	ok    bool
}

// previousMoves returns the opponent's last move and our move before it,
// skipping either when a null move interrupts the sequence.
func previousMoves(pos *board.Position) (counter, follow continuation) {
	r1, ok := pos.History(1)
	if !ok || r1.Move.IsNull() {
		return
	}
	counter = continuation{r1.Piece, destination(r1.Move), true}
	if r2, ok := pos.History(2); ok && !r2.Move.IsNull() {
		follow = continuation{r2.Piece, destination(r2.Move), true}
	}
	return
}

func gravity(score int32, delta int) int32 {
	return score + int32(historyUp*delta-int(score)*abs(delta)/historyDown)
}

// Update rewards best, the quiet move that failed high, and penalizes the
// quiet moves searched before it.
func (h *History) Update(pos *board.Position, tried []board.Move, best board.Move, depth int) {
	depth = min(depth, maxHistoryDepth)
	bonus := depth * depth
	cm, fm := previousMoves(pos)

	for _, m := range tried {
		if m != best {
			h.apply(pos, cm, fm, m, -bonus)
		}
	}
	h.apply(pos, cm, fm, best, bonus)
}

func (h *History) apply(pos *board.Position, cm, fm continuation, m board.Move, delta int) {
	pc := pos.Board[m.From()]
	to := destination(m)
	h.main[pc][to] = gravity(h.main[pc][to], delta)
	if cm.ok {
		e := &h.counter[cm.piece][cm.to][pc][to]
		*e = gravity(*e, delta)
	}
	if fm.ok {
		e := &h.followUp[fm.piece][fm.to][pc][to]
		*e = gravity(*e, delta)
	}
}

// Scores returns the butterfly, counter and follow-up history of m.
func (h *History) Scores(pos *board.Position, m board.Move) (hist, counter, follow int) {
	pc := pos.Board[m.From()]
	to := destination(m)
	hist = int(h.main[pc][to])
	cm, fm := previousMoves(pos)
	if cm.ok {
		counter = int(h.counter[cm.piece][cm.to][pc][to])
	}
	if fm.ok {
		follow = int(h.followUp[fm.piece][fm.to][pc][to])
	}
	return
}

// Score returns the sum of the three history tables for m.
func (h *History) Score(pos *board.Position, m board.Move) int {
	a, b, c := h.Scores(pos, m)
	return a + b + c
}

// Killer returns the killer move at ply.
func (h *History) Killer(ply int) board.Move {
	return h.killers[ply]
}

// SetKiller records m as the killer at ply.
func (h *History) SetKiller(ply int, m board.Move) {
	h.killers[ply] = m
}

// CounterMove returns the move that last refuted the opponent's previous
// move.
func (h *History) CounterMove(pos *board.Position) board.Move {
	r, ok := pos.History(1)
	if !ok || r.Move.IsNull() {
		return board.NoMove
	}
	return h.counterMoves[r.Piece][destination(r.Move)]
}

// SetCounterMove records m as the refutation of the previous move.
func (h *History) SetCounterMove(pos *board.Position, m board.Move) {
	r, ok := pos.History(1)
	if !ok || r.Move.IsNull() {
		return
	}
	h.counterMoves[r.Piece][destination(r.Move)] = m
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
