package engine

import (
	"github.com/hailam/kestrel/internal/board"
)

const (
	correctionSize  = 1 << 14
	correctionGrain = 256 // fixed-point scale of stored corrections
	correctionLimit = 32 * correctionGrain
)

// CorrectionHistory tracks how far static evaluations of similar pawn
// structures have been from search results and nudges new evaluations by
// that amount. One table per side to move.
type CorrectionHistory struct {
	table [2][correctionSize]int16
}

// NewCorrectionHistory creates a new correction history table.
func NewCorrectionHistory() *CorrectionHistory {
	return &CorrectionHistory{}
}

func correctionIndex(pos *board.Position) int {
	k := pos.PawnKey
	return int((k ^ k>>32) & (correctionSize - 1))
}

// Apply returns eval adjusted by the recorded correction.
func (ch *CorrectionHistory) Apply(pos *board.Position, eval int) int {
	c := int(ch.table[pos.SideToMove][correctionIndex(pos)]) / correctionGrain
	return clampEval(eval + c)
}

// Update moves the correction for pos toward the error between the search
// result and the static evaluation. Deeper results weigh more.
func (ch *CorrectionHistory) Update(pos *board.Position, searchScore, staticEval, depth int) {
	e := &ch.table[pos.SideToMove][correctionIndex(pos)]
	weight := min(depth+1, 16)
	target := (searchScore - staticEval) * correctionGrain
	v := (int(*e)*(256-weight) + target*weight) / 256
	*e = int16(max(-correctionLimit, min(v, correctionLimit)))
}

// Clear resets all correction values.
func (ch *CorrectionHistory) Clear() {
	*ch = CorrectionHistory{}
}

// clampEval keeps heuristic scores clear of the proven-result range.
func clampEval(v int) int {
	return max(-KnownWin+1, min(v, KnownWin-1))
}
