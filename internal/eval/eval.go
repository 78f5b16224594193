// Package eval implements the classical hand-crafted evaluator: material,
// piece-square tables, mobility, king safety and pawn structure, tapered
// between middlegame and endgame by the remaining material.
package eval

import "github.com/hailam/kestrel/internal/board"

// DefaultPawnEntries is the pawn table size used by NewEvaluator.
const DefaultPawnEntries = 1 << 14

type terms struct {
	mg, eg int
}

func (t *terms) add(s S, n int) {
	t.mg += s.MG * n
	t.eg += s.EG * n
}

func colorSign(c board.Color) int {
	if c == board.White {
		return 1
	}
	return -1
}

// psqIndex maps a square to the piece-square table index for color c.
func psqIndex(c board.Color, sq board.Square) int {
	if c == board.White {
		return int(sq ^ 56)
	}
	return int(sq)
}

// Evaluator scores positions with a fixed set of weights. The weights are
// shared read-only; the pawn table belongs to the evaluator, so each search
// thread needs its own Evaluator.
type Evaluator struct {
	weights *EvalWeights
	pawns   *PawnTable
}

// NewEvaluator creates an evaluator. A nil w selects DefaultWeights.
func NewEvaluator(w *EvalWeights) *Evaluator {
	if w == nil {
		w = DefaultWeights()
	}
	return &Evaluator{
		weights: w,
		pawns:   NewPawnTable(DefaultPawnEntries),
	}
}

// Weights returns the evaluator's weights.
func (e *Evaluator) Weights() *EvalWeights {
	return e.weights
}

// SetWeights swaps the weights and drops cached pawn terms.
func (e *Evaluator) SetWeights(w *EvalWeights) {
	e.weights = w
	e.pawns.Clear()
}

// Clear empties the pawn cache.
func (e *Evaluator) Clear() {
	e.pawns.Clear()
}

// Evaluate returns the static evaluation in centipawns from the side to
// move's point of view.
func (e *Evaluator) Evaluate(pos *board.Position) int {
	if pos.IsInsufficientMaterial() {
		return 0
	}
	w := e.weights
	var t terms
	phase := 0

	for c := board.White; c <= board.Black; c++ {
		sign := colorSign(c)
		for pt := board.Pawn; pt <= board.King; pt++ {
			bb := pos.Pieces(c, pt)
			phase += w.PhaseWeights[pt] * bb.PopCount()
			for bb != 0 {
				sq := bb.PopLSB()
				t.add(w.Material[pt], sign)
				t.add(w.PSQT[pt][psqIndex(c, sq)], sign)
			}
		}
	}

	pe, ok := e.pawns.Probe(pos.PawnKey)
	if !ok {
		entry := e.pawnStructure(pos)
		e.pawns.Store(entry)
		pe = &entry
	}
	t.mg += int(pe.MG)
	t.eg += int(pe.EG)
	e.passedPawns(pos, pe.Passed, &t)

	e.mobility(pos, &t)
	e.kingSafety(pos, &t)
	e.pieces(pos, &t)

	phase = min(phase, MaxPhase)
	score := (t.mg*phase + t.eg*(MaxPhase-phase)) / MaxPhase
	score = scale(pos, score)

	if pos.SideToMove == board.Black {
		score = -score
	}
	return score + w.Tempo
}

// Material returns the middlegame material balance from the side to move's
// point of view.
func (e *Evaluator) Material(pos *board.Position) int {
	score := 0
	for pt := board.Pawn; pt < board.King; pt++ {
		score += pos.Pieces(board.White, pt).PopCount() * e.weights.Material[pt].MG
		score -= pos.Pieces(board.Black, pt).PopCount() * e.weights.Material[pt].MG
	}
	if pos.SideToMove == board.Black {
		return -score
	}
	return score
}

// pawnAttacks returns the squares attacked by c's pawns.
func pawnAttacks(pos *board.Position, c board.Color) board.Bitboard {
	fwd := pos.Pieces(c, board.Pawn).Forward(c)
	return fwd.East() | fwd.West()
}

func (e *Evaluator) mobility(pos *board.Position, t *terms) {
	w := e.weights
	for c := board.White; c <= board.Black; c++ {
		sign := colorSign(c)
		safe := ^(pos.ColorBB[c] | pawnAttacks(pos, c.Other()))
		for pt := board.Knight; pt <= board.Queen; pt++ {
			for bb := pos.Pieces(c, pt); bb != 0; {
				sq := bb.PopLSB()
				n := (board.Attacks(pt, sq, pos.Occupied) & safe).PopCount()
				t.add(w.Mobility[pt], sign*n)
			}
		}
	}
}

// kingSafety scores attackers on the king zone and the pawn shield. Only
// the middlegame half is affected.
func (e *Evaluator) kingSafety(pos *board.Position, t *terms) {
	w := e.weights
	for c := board.White; c <= board.Black; c++ {
		sign := colorSign(c)
		enemy := c.Other()
		ksq := pos.KingSquare(c)
		if ksq == board.NoSquare {
			continue
		}

		zone := board.KingAttacks(ksq) | board.SquareBB(ksq)
		zone |= zone.Forward(c)

		count, weight := 0, 0
		for pt := board.Knight; pt <= board.Queen; pt++ {
			for bb := pos.Pieces(enemy, pt); bb != 0; {
				sq := bb.PopLSB()
				if board.Attacks(pt, sq, pos.Occupied)&zone != 0 {
					count++
					weight += w.KingAttack[pt]
				}
			}
		}
		if count >= 2 {
			weight = weight * count / 2
		}
		t.mg -= sign * weight

		own := pos.Pieces(c, board.Pawn)
		opp := pos.Pieces(enemy, board.Pawn)
		shieldRank := board.RankMask[board.NewSquare(0, 1).Relative(c).Rank()]
		kf := ksq.File()
		for f := max(kf-1, 0); f <= min(kf+1, 7); f++ {
			file := board.FileMask[f]
			switch {
			case own&file&shieldRank != 0:
				t.mg += sign * w.PawnShield
			case own&file == 0:
				t.mg += sign * w.ShieldMissing
			}
			switch {
			case own&file == 0 && opp&file == 0:
				t.mg += sign * w.KingOpenFile
			case own&file == 0:
				t.mg += sign * w.KingSemiOpen
			}
		}
	}
}

// pieces scores the bishop pair and rooks on open files.
func (e *Evaluator) pieces(pos *board.Position, t *terms) {
	w := e.weights
	pawns := pos.TypeBB(board.Pawn)
	for c := board.White; c <= board.Black; c++ {
		sign := colorSign(c)
		if pos.Pieces(c, board.Bishop).MoreThanOne() {
			t.add(w.BishopPair, sign)
		}
		own := pos.Pieces(c, board.Pawn)
		for bb := pos.Pieces(c, board.Rook); bb != 0; {
			file := board.FileMask[bb.PopLSB().File()]
			switch {
			case pawns&file == 0:
				t.add(w.RookOpenFile, sign)
			case own&file == 0:
				t.add(w.RookSemiOpenFile, sign)
			}
		}
	}
}

// scale damps scores the stronger side cannot usually convert: no pawns
// and at most a minor piece more.
func scale(pos *board.Position, score int) int {
	strong := board.White
	if score < 0 {
		strong = board.Black
	}
	if pos.Pieces(strong, board.Pawn) != 0 {
		return score
	}
	diff := pos.NonPawnMaterial(strong) - pos.NonPawnMaterial(strong.Other())
	if diff <= board.SeeValue[board.Bishop] {
		return score / 8
	}
	return score
}
