package board

// Pre-computed attack tables for non-sliding pieces.
var (
	knightAttacks [64]Bitboard
	kingAttacks   [64]Bitboard
	pawnAttacks   [2][64]Bitboard
	pawnPushes    [2][64]Bitboard

	betweenBB [64][64]Bitboard // squares strictly between two aligned squares
	lineBB    [64][64]Bitboard // full edge-to-edge line through two aligned squares
)

func init() {
	initStepAttacks()
	initMagics()
	initLines()
}

var (
	knightSteps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{0, 1}, {1, 1}, {1, 0}, {1, -1}, {0, -1}, {-1, -1}, {-1, 0}, {-1, 1}}
)

func stepTargets(sq Square, steps [][2]int) Bitboard {
	var bb Bitboard
	for _, s := range steps {
		f, r := sq.File()+s[0], sq.Rank()+s[1]
		if f >= 0 && f <= 7 && r >= 0 && r <= 7 {
			bb |= SquareBB(NewSquare(f, r))
		}
	}
	return bb
}

func initStepAttacks() {
	for sq := A1; sq <= H8; sq++ {
		knightAttacks[sq] = stepTargets(sq, knightSteps[:])
		kingAttacks[sq] = stepTargets(sq, kingSteps[:])

		bb := SquareBB(sq)
		pawnAttacks[White][sq] = bb.North().East() | bb.North().West()
		pawnAttacks[Black][sq] = bb.South().East() | bb.South().West()
		pawnPushes[White][sq] = bb.North()
		pawnPushes[Black][sq] = bb.South()
	}
}

func initLines() {
	for a := A1; a <= H8; a++ {
		for b := A1; b <= H8; b++ {
			if a == b {
				continue
			}
			if RookAttacks(a, 0).IsSet(b) {
				lineBB[a][b] = (RookAttacks(a, 0) & RookAttacks(b, 0)) | SquareBB(a) | SquareBB(b)
				betweenBB[a][b] = RookAttacks(a, SquareBB(b)) & RookAttacks(b, SquareBB(a))
			} else if BishopAttacks(a, 0).IsSet(b) {
				lineBB[a][b] = (BishopAttacks(a, 0) & BishopAttacks(b, 0)) | SquareBB(a) | SquareBB(b)
				betweenBB[a][b] = BishopAttacks(a, SquareBB(b)) & BishopAttacks(b, SquareBB(a))
			}
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// KnightAttacks returns the knight attack bitboard for a square.
func KnightAttacks(sq Square) Bitboard {
	return knightAttacks[sq]
}

// KingAttacks returns the king attack bitboard for a square.
func KingAttacks(sq Square) Bitboard {
	return kingAttacks[sq]
}

// PawnAttacks returns the squares a pawn of color c on sq attacks.
func PawnAttacks(sq Square, c Color) Bitboard {
	return pawnAttacks[c][sq]
}

// PawnPushes returns the single push target for a pawn of color c on sq.
func PawnPushes(sq Square, c Color) Bitboard {
	return pawnPushes[c][sq]
}

// PawnDoublePush returns the double push target for a pawn on its start rank,
// empty when the intermediate or target square is occupied.
func PawnDoublePush(sq Square, c Color, occupied Bitboard) Bitboard {
	if sq.RelativeRank(c) != 1 {
		return 0
	}
	one := pawnPushes[c][sq] &^ occupied
	return one.Forward(c) &^ occupied
}

// Attacks returns the attack set of a piece type on sq. Pawns need
// PawnAttacks since they depend on color.
func Attacks(pt PieceType, sq Square, occupied Bitboard) Bitboard {
	switch pt {
	case Knight:
		return knightAttacks[sq]
	case Bishop:
		return BishopAttacks(sq, occupied)
	case Rook:
		return RookAttacks(sq, occupied)
	case Queen:
		return QueenAttacks(sq, occupied)
	case King:
		return kingAttacks[sq]
	}
	return 0
}

// Between returns the squares strictly between two aligned squares, empty
// when they are not on a common rank, file or diagonal.
func Between(sq1, sq2 Square) Bitboard {
	return betweenBB[sq1][sq2]
}

// Line returns the full line through two aligned squares.
func Line(sq1, sq2 Square) Bitboard {
	return lineBB[sq1][sq2]
}

// Aligned reports whether three squares lie on one line.
func Aligned(sq1, sq2, sq3 Square) bool {
	return lineBB[sq1][sq2].IsSet(sq3)
}

// AttackersTo returns every piece of either color attacking sq.
func (p *Position) AttackersTo(sq Square, occupied Bitboard) Bitboard {
	return (pawnAttacks[Black][sq] & p.PieceBB[WhitePawn]) |
		(pawnAttacks[White][sq] & p.PieceBB[BlackPawn]) |
		(knightAttacks[sq] & p.TypeBB(Knight)) |
		(kingAttacks[sq] & p.TypeBB(King)) |
		(BishopAttacks(sq, occupied) & (p.TypeBB(Bishop) | p.TypeBB(Queen))) |
		(RookAttacks(sq, occupied) & (p.TypeBB(Rook) | p.TypeBB(Queen)))
}

// AttackersByColor returns the pieces of color c attacking sq.
func (p *Position) AttackersByColor(sq Square, c Color, occupied Bitboard) Bitboard {
	return p.AttackersTo(sq, occupied) & p.ColorBB[c]
}

// IsSquareAttacked reports whether byColor attacks sq.
func (p *Position) IsSquareAttacked(sq Square, byColor Color) bool {
	return p.isAttacked(sq, byColor, p.Occupied)
}

func (p *Position) isAttacked(sq Square, by Color, occupied Bitboard) bool {
	if pawnAttacks[by.Other()][sq]&p.Pieces(by, Pawn) != 0 ||
		knightAttacks[sq]&p.Pieces(by, Knight) != 0 ||
		kingAttacks[sq]&p.Pieces(by, King) != 0 {
		return true
	}
	queens := p.Pieces(by, Queen)
	if BishopAttacks(sq, occupied)&(p.Pieces(by, Bishop)|queens) != 0 {
		return true
	}
	return RookAttacks(sq, occupied)&(p.Pieces(by, Rook)|queens) != 0
}

// Checkers returns the enemy pieces giving check to the side to move.
func (p *Position) Checkers() Bitboard {
	us := p.SideToMove
	ksq := p.KingSquare(us)
	if ksq == NoSquare {
		return 0
	}
	return p.AttackersByColor(ksq, us.Other(), p.Occupied)
}

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	ksq := p.KingSquare(p.SideToMove)
	return ksq != NoSquare && p.isAttacked(ksq, p.SideToMove.Other(), p.Occupied)
}

// GivesCheck reports whether the pseudo-legal move m checks the enemy king,
// directly or by discovery.
func (p *Position) GivesCheck(m Move) bool {
	us := p.SideToMove
	ksq := p.KingSquare(us.Other())
	if ksq == NoSquare {
		return false
	}
	from, to := m.From(), m.To()
	pt := p.Board[from].Type()
	occ := p.Occupied &^ SquareBB(from)
	moved := SquareBB(from)

	switch {
	case m.IsCastle():
		kTo, rTo := m.CastleSquares()
		occ = occ&^SquareBB(to) | SquareBB(kTo) | SquareBB(rTo)
		moved |= SquareBB(to)
		pt, to = Rook, rTo
	case m.IsPromotion():
		pt = m.Promotion()
	case m.IsEnPassant():
		occ &^= SquareBB(to ^ 8)
	}
	occ |= SquareBB(to)

	switch pt {
	case Pawn:
		if pawnAttacks[us][to].IsSet(ksq) {
			return true
		}
	case King:
	default:
		if Attacks(pt, to, occ).IsSet(ksq) {
			return true
		}
	}

	queens := p.Pieces(us, Queen)
	diag := (p.Pieces(us, Bishop) | queens) &^ moved
	ortho := (p.Pieces(us, Rook) | queens) &^ moved
	return BishopAttacks(ksq, occ)&diag != 0 || RookAttacks(ksq, occ)&ortho != 0
}

// Pinned returns the pieces of color c pinned against their own king.
func (p *Position) Pinned(c Color) Bitboard {
	ksq := p.KingSquare(c)
	if ksq == NoSquare {
		return 0
	}
	them := c.Other()
	snipers := (RookAttacks(ksq, 0) & (p.Pieces(them, Rook) | p.Pieces(them, Queen))) |
		(BishopAttacks(ksq, 0) & (p.Pieces(them, Bishop) | p.Pieces(them, Queen)))
	var pinned Bitboard
	for snipers != 0 {
		s := snipers.PopLSB()
		blockers := Between(ksq, s) & p.Occupied
		if blockers != 0 && !blockers.MoreThanOne() {
			pinned |= blockers & p.ColorBB[c]
		}
	}
	return pinned
}
