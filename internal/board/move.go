package board

// Move packs a move into 32 bits:
//
//	bits 0-5:   from square
//	bits 6-11:  to square
//	bits 12-15: promotion piece type
//	bits 16-21: flags
//
// Castling is encoded as the king capturing its own rook: from is the king
// square and to is the rook's origin square. This covers Chess960 with the
// same code path as standard chess.
type Move uint32

// Move flags
const (
	FlagCapture     uint32 = 1 << 16
	FlagPromotion   uint32 = 2 << 16
	FlagEnPassant   uint32 = 4 << 16
	FlagKingCastle  uint32 = 8 << 16
	FlagQueenCastle uint32 = 16 << 16
	FlagNull        uint32 = 32 << 16

	flagCastle = FlagKingCastle | FlagQueenCastle
)

const (
	// NoMove is the zero move; it never equals a generated move.
	NoMove Move = 0
	// NullMove passes the turn.
	NullMove Move = Move(FlagNull)
)

// NewMove creates a move with explicit flags.
func NewMove(from, to Square, flags uint32) Move {
	return Move(uint32(from) | uint32(to)<<6 | flags)
}

// NewPromotion creates a promotion, optionally capturing.
func NewPromotion(from, to Square, promo PieceType, capture bool) Move {
	flags := FlagPromotion
	if capture {
		flags |= FlagCapture
	}
	return Move(uint32(from) | uint32(to)<<6 | uint32(promo)<<12 | flags)
}

// NewCastle creates a castling move from the king square to the rook square.
func NewCastle(kingSq, rookSq Square, kingSide bool) Move {
	if kingSide {
		return NewMove(kingSq, rookSq, FlagKingCastle)
	}
	return NewMove(kingSq, rookSq, FlagQueenCastle)
}

// From returns the origin square.
func (m Move) From() Square {
	return Square(m & 0x3F)
}

// To returns the destination square. For castling this is the rook square.
func (m Move) To() Square {
	return Square((m >> 6) & 0x3F)
}

// Flags returns the flag bits.
func (m Move) Flags() uint32 {
	return uint32(m) & 0x3F0000
}

// Promotion returns the promotion piece type, NoPieceType if none.
func (m Move) Promotion() PieceType {
	if !m.IsPromotion() {
		return NoPieceType
	}
	return PieceType((m >> 12) & 0xF)
}

func (m Move) IsCapture() bool   { return uint32(m)&FlagCapture != 0 }
func (m Move) IsPromotion() bool { return uint32(m)&FlagPromotion != 0 }
func (m Move) IsEnPassant() bool { return uint32(m)&FlagEnPassant != 0 }
func (m Move) IsCastle() bool    { return uint32(m)&flagCastle != 0 }
func (m Move) IsNull() bool      { return uint32(m)&FlagNull != 0 }

// IsKingCastle reports a short-side castle.
func (m Move) IsKingCastle() bool { return uint32(m)&FlagKingCastle != 0 }

// IsTactical reports captures and promotions.
func (m Move) IsTactical() bool {
	return uint32(m)&(FlagCapture|FlagPromotion) != 0
}

// IsQuiet is the complement of IsTactical.
func (m Move) IsQuiet() bool {
	return !m.IsTactical()
}

// IsUnderpromotion reports a promotion to anything but a queen.
func (m Move) IsUnderpromotion() bool {
	return m.IsPromotion() && m.Promotion() != Queen
}

// String returns the move in standard UCI form (castling as the king's
// destination). Use Position.MoveToUCI for Chess960 output.
func (m Move) String() string {
	switch {
	case m == NoMove:
		return "0000"
	case m.IsNull():
		return "0000"
	case m.IsCastle():
		kTo, _ := castleTargets(m.From(), m.IsKingCastle())
		return m.From().String() + kTo.String()
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += string(m.Promotion().Char())
	}
	return s
}

// CastleSquares returns the king and rook destinations of a castling move.
func (m Move) CastleSquares() (kTo, rTo Square) {
	return castleTargets(m.From(), m.IsKingCastle())
}

// castleTargets returns the king and rook destination squares for a castle
// by the king standing on kingSq.
func castleTargets(kingSq Square, kingSide bool) (kTo, rTo Square) {
	rank := kingSq.Rank()
	if kingSide {
		return NewSquare(6, rank), NewSquare(5, rank)
	}
	return NewSquare(2, rank), NewSquare(3, rank)
}

// MoveList is a fixed-size list of moves to avoid allocations.
type MoveList struct {
	moves [256]Move
	count int
}

// Add appends a move.
func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = m
	ml.count++
}

// Len returns the number of moves in the list.
func (ml *MoveList) Len() int {
	return ml.count
}

// Get returns the move at index i.
func (ml *MoveList) Get(i int) Move {
	return ml.moves[i]
}

// Set replaces the move at index i.
func (ml *MoveList) Set(i int, m Move) {
	ml.moves[i] = m
}

// Swap swaps two moves in the list.
func (ml *MoveList) Swap(i, j int) {
	ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i]
}

// Clear empties the list.
func (ml *MoveList) Clear() {
	ml.count = 0
}

// Contains reports whether m is in the list.
func (ml *MoveList) Contains(m Move) bool {
	for i := 0; i < ml.count; i++ {
		if ml.moves[i] == m {
			return true
		}
	}
	return false
}

// Slice returns the moves as a slice backed by the list.
func (ml *MoveList) Slice() []Move {
	return ml.moves[:ml.count]
}
