package eval

import "github.com/hailam/kestrel/internal/board"

// PawnEntry stores a cached pawn structure evaluation.
type PawnEntry struct {
	Key    uint64
	MG, EG int32
	Passed board.Bitboard // passed pawns of both colors
}

// PawnTable caches pawn structure terms by pawn key. A slot is simply
// overwritten on store; a miss only costs a recomputation.
type PawnTable struct {
	entries []PawnEntry
	mask    uint64
}

// NewPawnTable creates a pawn table with the given number of entries,
// rounded down to a power of two.
func NewPawnTable(entries int) *PawnTable {
	size := 1
	for size*2 <= entries {
		size *= 2
	}
	return &PawnTable{
		entries: make([]PawnEntry, size),
		mask:    uint64(size - 1),
	}
}

// Probe looks up the entry for key.
func (pt *PawnTable) Probe(key uint64) (*PawnEntry, bool) {
	e := &pt.entries[key&pt.mask]
	return e, e.Key == key
}

// Store saves an entry.
func (pt *PawnTable) Store(e PawnEntry) {
	pt.entries[e.Key&pt.mask] = e
}

// Clear empties the table.
func (pt *PawnTable) Clear() {
	clear(pt.entries)
}

var adjacentFiles [8]board.Bitboard

func init() {
	for f := range 8 {
		if f > 0 {
			adjacentFiles[f] |= board.FileMask[f-1]
		}
		if f < 7 {
			adjacentFiles[f] |= board.FileMask[f+1]
		}
	}
}

// forwardSpan returns the squares in front of sq on its file, from c's side.
func forwardSpan(c board.Color, sq board.Square) board.Bitboard {
	b := board.SquareBB(sq)
	if c == board.White {
		return b.NorthFill() &^ b
	}
	return b.SouthFill() &^ b
}

// ranksAhead returns every square on a rank strictly in front of sq.
func ranksAhead(c board.Color, sq board.Square) board.Bitboard {
	r := sq.Rank()
	if c == board.White {
		if r == 7 {
			return 0
		}
		return ^board.Bitboard(0) << (8 * (r + 1))
	}
	return board.Bitboard(1)<<(8*r) - 1
}

func passedMask(c board.Color, sq board.Square) board.Bitboard {
	span := forwardSpan(c, sq)
	return span | span.East() | span.West()
}

// pawnStructure computes the pawn terms from White's point of view.
func (e *Evaluator) pawnStructure(pos *board.Position) PawnEntry {
	w := e.weights
	var t terms
	var passed board.Bitboard
	for c := board.White; c <= board.Black; c++ {
		sign := colorSign(c)
		own := pos.Pieces(c, board.Pawn)
		opp := pos.Pieces(c.Other(), board.Pawn)
		for bb := own; bb != 0; {
			sq := bb.PopLSB()
			f := sq.File()
			front := forwardSpan(c, sq)

			if own&front != 0 {
				t.add(w.DoubledPawn, sign)
			}
			if own&adjacentFiles[f] == 0 {
				t.add(w.IsolatedPawn, sign)
			} else if own&adjacentFiles[f]&^ranksAhead(c, sq) == 0 {
				// No neighbour level or behind; backward if the stop square is guarded.
				stop := board.SquareBB(sq).Forward(c)
				if stop != 0 && board.PawnAttacks(stop.LSB(), c)&opp != 0 {
					t.add(w.BackwardPawn, sign)
				}
			}
			if opp&passedMask(c, sq) == 0 && own&front == 0 {
				passed |= board.SquareBB(sq)
			}
		}
	}
	return PawnEntry{Key: pos.PawnKey, MG: int32(t.mg), EG: int32(t.eg), Passed: passed}
}

// passedPawns scores passed pawns. These terms depend on pieces and kings,
// so they are not cached.
func (e *Evaluator) passedPawns(pos *board.Position, passed board.Bitboard, t *terms) {
	w := e.weights
	for bb := passed; bb != 0; {
		sq := bb.PopLSB()
		c := pos.Board[sq].Color()
		sign := colorSign(c)
		rr := sq.RelativeRank(c)
		t.add(w.PassedPawn[rr], sign)

		if forwardSpan(c, sq)&pos.Occupied == 0 {
			t.add(w.PassedFreePath, sign)
		}
		if board.PawnAttacks(sq, c.Other())&pos.Pieces(c, board.Pawn) != 0 {
			t.add(w.PassedProtected, sign)
		}
		stop := board.SquareBB(sq).Forward(c)
		if stop != 0 {
			s := stop.LSB()
			lead := board.Distance(pos.KingSquare(c.Other()), s) - board.Distance(pos.KingSquare(c), s)
			t.add(w.PassedKingDistance, sign*lead)
		}
	}
}
