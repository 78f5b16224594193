// Package tablebase answers endgame win/draw/loss queries for positions
// with few pieces.
package tablebase

import (
	"github.com/hailam/kestrel/internal/board"
)

// WDL represents Win/Draw/Loss result from the side to move's view.
type WDL int

const (
	WDLLoss        WDL = -2
	WDLBlessedLoss WDL = -1 // Loss, but the 50-move rule saves the draw
	WDLDraw        WDL = 0
	WDLCursedWin   WDL = 1 // Win, but the 50-move rule spoils it
	WDLWin         WDL = 2
)

func (w WDL) String() string {
	switch w {
	case WDLLoss:
		return "loss"
	case WDLBlessedLoss:
		return "blessed-loss"
	case WDLDraw:
		return "draw"
	case WDLCursedWin:
		return "cursed-win"
	case WDLWin:
		return "win"
	}
	return "unknown"
}

// ProbeResult contains the result of a tablebase probe.
type ProbeResult struct {
	Found bool
	WDL   WDL
	DTZ   int // Distance to zeroing move (pawn move or capture)
}

// RootResult contains the best move from tablebase at root position.
type RootResult struct {
	Found bool
	Move  board.Move
	WDL   WDL // after Move, from the root side's view
	DTZ   int
}

// Prober is the interface for tablebase probing.
type Prober interface {
	// Probe looks up a position in the tablebase.
	Probe(pos *board.Position) ProbeResult

	// ProbeRoot finds the best move from the tablebase at the root position.
	ProbeRoot(pos *board.Position) RootResult

	// MaxPieces returns the maximum number of pieces supported.
	MaxPieces() int

	// Available returns true if tablebases are loaded and available.
	Available() bool
}

// NoopProber is a prober that always returns "not found".
type NoopProber struct{}

func (NoopProber) Probe(pos *board.Position) ProbeResult {
	return ProbeResult{}
}

func (NoopProber) ProbeRoot(pos *board.Position) RootResult {
	return RootResult{}
}

func (NoopProber) MaxPieces() int {
	return 0
}

func (NoopProber) Available() bool {
	return false
}

// CountPieces returns the total number of pieces on the board, kings
// included.
func CountPieces(pos *board.Position) int {
	return pos.Occupied.PopCount()
}

// Probeable reports whether p can answer for pos: it must be available,
// small enough, and without castling rights, which tablebases ignore.
func Probeable(p Prober, pos *board.Position) bool {
	return p.Available() && pos.Castling == board.NoCastling && CountPieces(pos) <= p.MaxPieces()
}
