package board

import (
	"fmt"
	"slices"
	"strings"
)

// CastlingRights is a set of the four castling flags.
type CastlingRights uint8

const (
	WhiteKingSideCastle  CastlingRights = 1 << iota // K
	WhiteQueenSideCastle                            // Q
	BlackKingSideCastle                             // k
	BlackQueenSideCastle                            // q
	NoCastling           CastlingRights = 0
	AllCastling          CastlingRights = WhiteKingSideCastle | WhiteQueenSideCastle | BlackKingSideCastle | BlackQueenSideCastle
)

// castleRight returns the flag for one side of one color.
func castleRight(c Color, kingSide bool) CastlingRights {
	cr := WhiteKingSideCastle
	if !kingSide {
		cr = WhiteQueenSideCastle
	}
	if c == Black {
		cr <<= 2
	}
	return cr
}

// CanCastle reports whether the right for c on the given side is present.
func (cr CastlingRights) CanCastle(c Color, kingSide bool) bool {
	return cr&castleRight(c, kingSide) != 0
}

// UnmakeRecord holds everything needed to reverse one MakeMove.
type UnmakeRecord struct {
	Move      Move
	Piece     Piece // moving piece
	Captured  Piece
	Castling  CastlingRights
	EnPassant Square
	HalfMove  int
	Hash      uint64
	PawnKey   uint64
}

// Position is a complete chess position plus the undo history of the moves
// that led to it. The piece array and the bitboards are kept in agreement by
// every mutation; Validate checks it.
type Position struct {
	Board    [64]Piece
	PieceBB  [12]Bitboard
	ColorBB  [2]Bitboard
	Occupied Bitboard

	SideToMove     Color
	Castling       CastlingRights
	CastleRooks    [2][2]Square // [color][0 king side, 1 queen side] rook origins
	EnPassant      Square       // set after every double push, NoSquare otherwise
	HalfMoveClock  int
	FullMoveNumber int

	Hash    uint64
	PawnKey uint64

	Chess960 bool

	castleMask [64]CastlingRights // rights lost when a move touches the square
	history    []UnmakeRecord
}

// NewPosition returns the standard starting position.
func NewPosition() *Position {
	pos, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return pos
}

// Copy returns a deep copy, including the move history.
func (p *Position) Copy() *Position {
	np := *p
	np.history = slices.Clone(p.history)
	return &np
}

// Clear resets the position to an empty board.
func (p *Position) Clear() {
	*p = Position{
		EnPassant:      NoSquare,
		FullMoveNumber: 1,
		history:        p.history[:0],
	}
	for sq := range p.Board {
		p.Board[sq] = NoPiece
	}
	for c := range p.CastleRooks {
		p.CastleRooks[c] = [2]Square{NoSquare, NoSquare}
	}
}

// PieceAt returns the piece on sq, or NoPiece.
func (p *Position) PieceAt(sq Square) Piece {
	return p.Board[sq]
}

// IsEmpty reports whether sq is empty.
func (p *Position) IsEmpty(sq Square) bool {
	return p.Board[sq] == NoPiece
}

// Pieces returns the bitboard of pieces of one type and color.
func (p *Position) Pieces(c Color, pt PieceType) Bitboard {
	return p.PieceBB[NewPiece(pt, c)]
}

// TypeBB returns pieces of one type of either color.
func (p *Position) TypeBB(pt PieceType) Bitboard {
	return p.PieceBB[pt] | p.PieceBB[pt+6]
}

// KingSquare returns the square of c's king, NoSquare if absent.
func (p *Position) KingSquare(c Color) Square {
	return p.Pieces(c, King).LSB()
}

// NonPawnMaterial returns the SEE-scale value of c's knights, bishops,
// rooks and queens.
func (p *Position) NonPawnMaterial(c Color) int {
	v := 0
	for pt := Knight; pt <= Queen; pt++ {
		v += p.Pieces(c, pt).PopCount() * SeeValue[pt]
	}
	return v
}

// HasNonPawnMaterial reports whether c has any piece besides pawns and king.
func (p *Position) HasNonPawnMaterial(c Color) bool {
	return p.ColorBB[c]&^(p.Pieces(c, Pawn)|p.Pieces(c, King)) != 0
}

// Ply returns the number of moves recorded in the history.
func (p *Position) Ply() int {
	return len(p.history)
}

// History returns the record of the move made n plies ago (1 = last move).
func (p *Position) History(n int) (UnmakeRecord, bool) {
	i := len(p.history) - n
	if n <= 0 || i < 0 {
		return UnmakeRecord{}, false
	}
	return p.history[i], true
}

// LastMove returns the most recent move, NoMove if none.
func (p *Position) LastMove() Move {
	if len(p.history) == 0 {
		return NoMove
	}
	return p.history[len(p.history)-1].Move
}

// ResetHistory drops the undo history, keeping the current position.
func (p *Position) ResetHistory() {
	p.history = p.history[:0]
}

// putPiece places pc on an empty square and updates both keys.
func (p *Position) putPiece(pc Piece, sq Square) {
	bb := SquareBB(sq)
	p.Board[sq] = pc
	p.PieceBB[pc] |= bb
	p.ColorBB[pc.Color()] |= bb
	p.Occupied |= bb
	p.Hash ^= zobristPiece[pc][sq]
	if pt := pc.Type(); pt == Pawn || pt == King {
		p.PawnKey ^= zobristPiece[pc][sq]
	}
}

func (p *Position) removePiece(sq Square) Piece {
	pc := p.Board[sq]
	bb := SquareBB(sq)
	p.Board[sq] = NoPiece
	p.PieceBB[pc] &^= bb
	p.ColorBB[pc.Color()] &^= bb
	p.Occupied &^= bb
	p.Hash ^= zobristPiece[pc][sq]
	if pt := pc.Type(); pt == Pawn || pt == King {
		p.PawnKey ^= zobristPiece[pc][sq]
	}
	return pc
}

func (p *Position) movePiece(from, to Square) {
	p.putPiece(p.removePiece(from), to)
}

// epCapturable reports whether the side to move has a pawn that attacks the
// en passant square. Only then is the square part of the hash.
func (p *Position) epCapturable() bool {
	return p.EnPassant != NoSquare &&
		pawnAttacks[p.SideToMove.Other()][p.EnPassant]&p.Pieces(p.SideToMove, Pawn) != 0
}

// setCastleRight grants the castling right for the rook on rookSq.
func (p *Position) setCastleRight(c Color, rookSq Square) {
	ksq := p.KingSquare(c)
	kingSide := rookSq > ksq
	side := 1
	if kingSide {
		side = 0
	}
	cr := castleRight(c, kingSide)
	p.Castling |= cr
	p.CastleRooks[c][side] = rookSq
	p.castleMask[ksq] |= cr
	p.castleMask[rookSq] |= cr
}

// MakeMove plays a pseudo-legal move. If the move leaves the mover's king in
// check it is taken back and MakeMove returns false.
func (p *Position) MakeMove(m Move) bool {
	us, them := p.SideToMove, p.SideToMove.Other()
	from, to := m.From(), m.To()
	pc := p.Board[from]

	p.history = append(p.history, UnmakeRecord{
		Move:      m,
		Piece:     pc,
		Captured:  NoPiece,
		Castling:  p.Castling,
		EnPassant: p.EnPassant,
		HalfMove:  p.HalfMoveClock,
		Hash:      p.Hash,
		PawnKey:   p.PawnKey,
	})
	rec := &p.history[len(p.history)-1]

	if p.epCapturable() {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
	}
	p.EnPassant = NoSquare
	p.HalfMoveClock++

	switch {
	case m.IsCastle():
		kTo, rTo := castleTargets(from, m.IsKingCastle())
		rook := p.removePiece(to)
		p.removePiece(from)
		p.putPiece(pc, kTo)
		p.putPiece(rook, rTo)

	case m.IsEnPassant():
		capSq := to ^ 8
		rec.Captured = p.removePiece(capSq)
		p.movePiece(from, to)
		p.HalfMoveClock = 0

	default:
		if p.Board[to] != NoPiece {
			rec.Captured = p.removePiece(to)
			p.HalfMoveClock = 0
		}
		p.removePiece(from)
		if m.IsPromotion() {
			p.putPiece(NewPiece(m.Promotion(), us), to)
		} else {
			p.putPiece(pc, to)
		}
		if pc.Type() == Pawn {
			p.HalfMoveClock = 0
			if to^from == 16 {
				p.EnPassant = (from + to) / 2
			}
		}
	}

	if cr := p.Castling &^ (p.castleMask[from] | p.castleMask[to]); cr != p.Castling {
		p.Hash ^= zobristCastling[p.Castling] ^ zobristCastling[cr]
		p.Castling = cr
	}

	p.SideToMove = them
	p.Hash ^= zobristSideToMove
	if p.epCapturable() {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
	}
	if us == Black {
		p.FullMoveNumber++
	}

	if ksq := p.KingSquare(us); ksq != NoSquare && p.isAttacked(ksq, them, p.Occupied) {
		p.UnmakeMove()
		return false
	}
	return true
}

// UnmakeMove takes back the last move made with MakeMove.
func (p *Position) UnmakeMove() {
	rec := p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]

	us := p.SideToMove.Other()
	p.SideToMove = us
	if us == Black {
		p.FullMoveNumber--
	}

	m := rec.Move
	from, to := m.From(), m.To()
	switch {
	case m.IsCastle():
		kTo, rTo := castleTargets(from, m.IsKingCastle())
		rook := p.removePiece(rTo)
		p.removePiece(kTo)
		p.putPiece(rec.Piece, from)
		p.putPiece(rook, to)

	case m.IsEnPassant():
		p.movePiece(to, from)
		p.putPiece(rec.Captured, to^8)

	default:
		p.removePiece(to)
		p.putPiece(rec.Piece, from)
		if rec.Captured != NoPiece {
			p.putPiece(rec.Captured, to)
		}
	}

	p.Castling = rec.Castling
	p.EnPassant = rec.EnPassant
	p.HalfMoveClock = rec.HalfMove
	p.Hash = rec.Hash
	p.PawnKey = rec.PawnKey
}

// MakeNullMove passes the turn. The side to move must not be in check.
func (p *Position) MakeNullMove() {
	p.history = append(p.history, UnmakeRecord{
		Move:      NullMove,
		Piece:     NoPiece,
		Captured:  NoPiece,
		Castling:  p.Castling,
		EnPassant: p.EnPassant,
		HalfMove:  p.HalfMoveClock,
		Hash:      p.Hash,
		PawnKey:   p.PawnKey,
	})
	if p.epCapturable() {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
	}
	p.EnPassant = NoSquare
	p.HalfMoveClock++
	p.SideToMove = p.SideToMove.Other()
	p.Hash ^= zobristSideToMove
}

// UnmakeNullMove reverses MakeNullMove.
func (p *Position) UnmakeNullMove() {
	rec := p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	p.SideToMove = p.SideToMove.Other()
	p.EnPassant = rec.EnPassant
	p.HalfMoveClock = rec.HalfMove
	p.Hash = rec.Hash
}

// IsRepetition reports whether the current position occurred earlier with
// the same side to move. The scan stops at the last irreversible move and
// at null moves.
func (p *Position) IsRepetition() bool {
	n := len(p.history)
	limit := max(n-p.HalfMoveClock, 0)
	for i := n - 1; i >= limit; i-- {
		rec := &p.history[i]
		if rec.Move.IsNull() {
			return false
		}
		if (n-i)%2 == 0 && rec.Hash == p.Hash {
			return true
		}
	}
	return false
}

// IsInsufficientMaterial reports positions where neither side can mate:
// bare kings, a single minor piece, or bishops all on one color.
func (p *Position) IsInsufficientMaterial() bool {
	if p.TypeBB(Pawn)|p.TypeBB(Rook)|p.TypeBB(Queen) != 0 {
		return false
	}
	minors := p.TypeBB(Knight) | p.TypeBB(Bishop)
	if minors.PopCount() <= 1 {
		return true
	}
	if p.TypeBB(Knight) == 0 {
		b := p.TypeBB(Bishop)
		return b&LightSquares == 0 || b&DarkSquares == 0
	}
	return false
}

// IsDraw reports a draw by the fifty-move rule, repetition or insufficient
// material. A fifty-move position that is checkmate is not a draw; callers
// with a legal move list should handle that case.
func (p *Position) IsDraw() bool {
	return p.HalfMoveClock >= 100 || p.IsRepetition() || p.IsInsufficientMaterial()
}

// IsCastlingAllowed reports whether the side to move may castle on the given
// side: the right is present, every square the king and rook cross is empty
// apart from the two pieces themselves, and no square on the king's path,
// start and destination included, is attacked.
func (p *Position) IsCastlingAllowed(kingSide bool) bool {
	us := p.SideToMove
	if !p.Castling.CanCastle(us, kingSide) {
		return false
	}
	side := 1
	if kingSide {
		side = 0
	}
	ksq := p.KingSquare(us)
	rsq := p.CastleRooks[us][side]
	if ksq == NoSquare || rsq == NoSquare || p.Board[rsq] != NewPiece(Rook, us) {
		return false
	}
	kTo, rTo := castleTargets(ksq, kingSide)
	occ := p.Occupied &^ (SquareBB(ksq) | SquareBB(rsq))
	path := Between(ksq, kTo) | SquareBB(kTo) | Between(rsq, rTo) | SquareBB(rTo)
	if path&occ != 0 {
		return false
	}
	kingPath := Between(ksq, kTo) | SquareBB(kTo) | SquareBB(ksq)
	them := us.Other()
	for kingPath != 0 {
		if p.isAttacked(kingPath.PopLSB(), them, p.Occupied) {
			return false
		}
	}
	return true
}

// String draws the board with the FEN and key underneath.
func (p *Position) String() string {
	var sb strings.Builder
	sb.WriteString("\n +---+---+---+---+---+---+---+---+\n")
	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			pc := p.Board[NewSquare(file, rank)]
			c := " "
			if pc != NoPiece {
				c = pc.String()
			}
			sb.WriteString(" | " + c)
		}
		sb.WriteString(" | " + string(byte('1'+rank)) + "\n +---+---+---+---+---+---+---+---+\n")
	}
	sb.WriteString("   a   b   c   d   e   f   g   h\n\n")
	sb.WriteString("Fen: " + p.FEN() + "\n")
	fmt.Fprintf(&sb, "Key: %016X\n", p.Hash)
	return sb.String()
}
