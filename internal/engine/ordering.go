package engine

import (
	"github.com/hailam/kestrel/internal/board"
)

// Selector phases, in the order moves are produced.
const (
	phaseTT = iota
	phaseGenTactical
	phaseGoodTactical
	phaseKiller
	phaseCounter
	phaseGenQuiet
	phaseQuiet
	phaseBadTactical
	phaseDone
)

// MVV-LVA (Most Valuable Victim - Least Valuable Attacker) scores
// Higher score = search first
var mvvLva = [6][6]int{
	//       P    N    B    R    Q    K  (attacker)
	/* P */ {15, 14, 14, 13, 12, 11}, // Pawn victim
	/* N */ {25, 24, 24, 23, 22, 21}, // Knight victim
	/* B */ {35, 34, 34, 33, 32, 31}, // Bishop victim
	/* R */ {45, 44, 44, 43, 42, 41}, // Rook victim
	/* Q */ {55, 54, 54, 53, 52, 51}, // Queen victim
	/* K */ {0, 0, 0, 0, 0, 0}, // King can't be captured
}

type scoredMove struct {
	move  board.Move
	score int
}

// MoveSelector hands out the moves of one node lazily, best first. Losing
// tacticals are kept at the tail of the buffer and come last.
type MoveSelector struct {
	pos  *board.Position
	hist *History

	phase        int
	tacticalOnly bool
	inCheck      bool

	ttMove  board.Move
	killer  board.Move
	counter board.Move

	moves [256]scoredMove
	idx   int
	last  int
	nbad  int
}

// Init prepares the selector for the current node. In tactical-only mode
// quiet moves and underpromotions are skipped unless the side to move is in
// check, and losing tacticals are never returned.
func (ms *MoveSelector) Init(pos *board.Position, hist *History, ply int, ttMove board.Move, inCheck, tacticalOnly bool) {
	ms.pos = pos
	ms.hist = hist
	ms.phase = phaseTT
	ms.tacticalOnly = tacticalOnly
	ms.inCheck = inCheck
	ms.idx, ms.last, ms.nbad = 0, 0, 0

	switch {
	case ttMove == board.NoMove || !pos.IsPseudoLegal(ttMove):
		ttMove = board.NoMove
	case tacticalOnly && !inCheck && (!ttMove.IsTactical() || ttMove.IsUnderpromotion()):
		ttMove = board.NoMove
	}
	ms.ttMove = ttMove

	ms.killer, ms.counter = board.NoMove, board.NoMove
	if !tacticalOnly || inCheck {
		ms.killer = hist.Killer(ply)
		ms.counter = hist.CounterMove(pos)
	}
}

// Next returns the next move to search, NoMove when the node is exhausted.
// Moves are pseudo-legal.
func (ms *MoveSelector) Next() board.Move {
	for {
		switch ms.phase {
		case phaseTT:
			ms.phase++
			if ms.ttMove != board.NoMove {
				return ms.ttMove
			}
		case phaseGenTactical:
			var ml board.MoveList
			if ms.inCheck {
				ms.pos.GenerateEvasionCaptures(&ml)
			} else {
				ms.pos.GenerateCaptures(&ml)
			}
			ms.add(&ml)
			ms.phase++
		case phaseGoodTactical:
			if ms.idx < ms.last {
				return ms.pick()
			}
			if ms.tacticalOnly && !ms.inCheck {
				ms.phase = phaseDone
				continue
			}
			ms.phase++
		case phaseKiller:
			ms.phase++
			if k := ms.killer; k != board.NoMove && k != ms.ttMove && ms.pos.IsPseudoLegal(k) {
				return k
			}
		case phaseCounter:
			ms.phase++
			if c := ms.counter; c != board.NoMove && c != ms.ttMove && c != ms.killer && ms.pos.IsPseudoLegal(c) {
				return c
			}
		case phaseGenQuiet:
			var ml board.MoveList
			if ms.inCheck {
				ms.pos.GenerateEvasionQuiets(&ml)
			} else {
				ms.pos.GenerateQuiets(&ml)
			}
			ms.add(&ml)
			ms.phase++
		case phaseQuiet:
			if ms.idx < ms.last {
				return ms.pick()
			}
			ms.idx = len(ms.moves) - ms.nbad
			ms.last = len(ms.moves)
			ms.phase++
		case phaseBadTactical:
			if ms.idx < ms.last {
				return ms.pick()
			}
			ms.phase++
		default:
			return board.NoMove
		}
	}
}

// InBadTacticals reports whether the last move returned was a losing
// tactical.
func (ms *MoveSelector) InBadTacticals() bool {
	return ms.phase == phaseBadTactical
}

func (ms *MoveSelector) add(ml *board.MoveList) {
	for _, m := range ml.Slice() {
		if m == ms.ttMove || m == ms.killer || m == ms.counter {
			continue
		}
		if ms.tacticalOnly && !ms.inCheck && m.IsUnderpromotion() {
			continue
		}
		var e *scoredMove
		if m.IsTactical() && !ms.pos.SeeGE(m, 0) {
			ms.nbad++
			e = &ms.moves[len(ms.moves)-ms.nbad]
		} else {
			e = &ms.moves[ms.last]
			ms.last++
		}
		e.move = m
		if m.IsTactical() {
			e.score = ms.tacticalScore(m)
		} else {
			e.score = ms.hist.Score(ms.pos, m)
		}
	}
}

func (ms *MoveSelector) tacticalScore(m board.Move) int {
	attacker := ms.pos.Board[m.From()].Type()
	switch {
	case m.IsEnPassant():
		return mvvLva[board.Pawn][board.Pawn]
	case m.IsCapture():
		return mvvLva[ms.pos.Board[m.To()].Type()][attacker]
	}
	return 0
}

// pick moves the best remaining entry to idx and returns it.
func (ms *MoveSelector) pick() board.Move {
	best := ms.idx
	for j := ms.idx + 1; j < ms.last; j++ {
		if ms.moves[j].score > ms.moves[best].score {
			best = j
		}
	}
	ms.moves[ms.idx], ms.moves[best] = ms.moves[best], ms.moves[ms.idx]
	m := ms.moves[ms.idx].move
	ms.idx++
	return m
}
