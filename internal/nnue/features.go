package nnue

import "github.com/hailam/kestrel/internal/board"

// FeatureIndex returns the HalfKP input index of piece pc on sq seen from
// perspective, whose king stands on kingSq. Black's view is the board
// turned 180 degrees. Own pieces come before the opponent's of the same kind.
func FeatureIndex(perspective board.Color, kingSq board.Square, pc board.Piece, sq board.Square) int {
	if perspective == board.Black {
		sq = sq.Rotate()
		kingSq = kingSq.Rotate()
	}
	kind := 2 * int(pc.Type())
	if pc.Color() != perspective {
		kind++
	}
	return int(sq) + 1 + 64*kind + FeaturesPerKing*int(kingSq)
}

// ActiveFeatures appends the active feature indices of pos for perspective
// to dst and returns it.
func ActiveFeatures(pos *board.Position, perspective board.Color, dst []int) []int {
	ksq := pos.KingSquare(perspective)
	pieces := pos.Occupied &^ pos.TypeBB(board.King)
	for pieces != 0 {
		sq := pieces.PopLSB()
		dst = append(dst, FeatureIndex(perspective, ksq, pos.Board[sq], sq))
	}
	return dst
}
