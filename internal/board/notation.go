package board

import "strings"

// CastleStyle selects how castling moves are written.
type CastleStyle uint8

const (
	CastleKingDest      CastleStyle = iota // e1g1, standard UCI
	CastleKingTakesRook                    // e1h1, UCI_Chess960
	CastleOO                               // O-O / O-O-O
)

// FormatMove writes m in coordinate notation using the given castling style.
func (p *Position) FormatMove(m Move, style CastleStyle) string {
	if !m.IsCastle() {
		return m.String()
	}
	switch style {
	case CastleKingTakesRook:
		return m.From().String() + m.To().String()
	case CastleOO:
		if m.IsKingCastle() {
			return "O-O"
		}
		return "O-O-O"
	}
	return m.String()
}

// MoveToUCI writes m for the UCI protocol: king-takes-rook castling in
// Chess960 positions, king destination otherwise.
func (p *Position) MoveToUCI(m Move) string {
	if p.Chess960 {
		return p.FormatMove(m, CastleKingTakesRook)
	}
	return p.FormatMove(m, CastleKingDest)
}

// ParseUCIMove converts coordinate notation to a legal move of the position.
// Castling is accepted as O-O/O-O-O, as king takes rook, or (outside
// Chess960) as the king's destination. Malformed or illegal text yields
// NoMove.
func (p *Position) ParseUCIMove(s string) Move {
	s = strings.TrimSpace(s)
	legal := p.GenerateLegalMoves()

	switch strings.ReplaceAll(s, "0", "O") {
	case "O-O", "O-O-O":
		kingSide := len(s) == 3
		for _, m := range legal.Slice() {
			if m.IsCastle() && m.IsKingCastle() == kingSide {
				return m
			}
		}
		return NoMove
	}

	if len(s) != 4 && len(s) != 5 {
		return NoMove
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return NoMove
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return NoMove
	}
	promo := NoPieceType
	if len(s) == 5 {
		promo = PieceTypeFromChar(s[4])
		if promo < Knight || promo > Queen {
			return NoMove
		}
	}

	var castle Move
	for _, m := range legal.Slice() {
		if m.From() != from {
			continue
		}
		if m.IsCastle() {
			kTo, _ := castleTargets(from, m.IsKingCastle())
			if promo == NoPieceType && (m.To() == to || (!p.Chess960 && kTo == to)) {
				castle = m
			}
			continue
		}
		if m.To() == to && m.Promotion() == promo {
			return m
		}
	}
	return castle
}
