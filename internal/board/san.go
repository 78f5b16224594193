package board

import "strings"

// SAN returns m in Standard Algebraic Notation. m must be legal.
func (p *Position) SAN(m Move) string {
	if m == NoMove {
		return "-"
	}
	if m.IsNull() {
		return "--"
	}

	var sb strings.Builder
	from, to := m.From(), m.To()
	pt := p.Board[from].Type()

	switch {
	case m.IsCastle():
		sb.WriteString(p.FormatMove(m, CastleOO))
	case pt == Pawn:
		if m.IsCapture() {
			sb.WriteByte(byte('a' + from.File()))
			sb.WriteByte('x')
		}
		sb.WriteString(to.String())
		if m.IsPromotion() {
			sb.WriteByte('=')
			sb.WriteByte(m.Promotion().Char() - ('a' - 'A'))
		}
	default:
		sb.WriteByte(pt.Char() - ('a' - 'A'))
		sb.WriteString(p.disambiguation(m, pt))
		if m.IsCapture() {
			sb.WriteByte('x')
		}
		sb.WriteString(to.String())
	}

	if p.MakeMove(m) {
		if p.InCheck() {
			if p.HasLegalMoves() {
				sb.WriteByte('+')
			} else {
				sb.WriteByte('#')
			}
		}
		p.UnmakeMove()
	}
	return sb.String()
}

// disambiguation returns the file, rank or square needed to tell m apart
// from other legal moves of the same piece type to the same square.
func (p *Position) disambiguation(m Move, pt PieceType) string {
	from, to := m.From(), m.To()
	var sameFile, sameRank, ambiguous bool
	for _, other := range p.GenerateLegalMoves().Slice() {
		if other.To() != to || other.From() == from || other.IsCastle() ||
			p.Board[other.From()].Type() != pt {
			continue
		}
		ambiguous = true
		sameFile = sameFile || other.From().File() == from.File()
		sameRank = sameRank || other.From().Rank() == from.Rank()
	}
	switch {
	case !ambiguous:
		return ""
	case !sameFile:
		return string(rune('a' + from.File()))
	case !sameRank:
		return string(rune('1' + from.Rank()))
	}
	return from.String()
}

// ParseSAN finds the legal move written s in Standard Algebraic Notation,
// NoMove if there is none.
func (p *Position) ParseSAN(s string) Move {
	s = strings.TrimRight(strings.TrimSpace(s), "+#!?")
	if strings.HasPrefix(s, "O-O") || strings.HasPrefix(s, "0-0") {
		return p.ParseUCIMove(s)
	}
	for _, m := range p.GenerateLegalMoves().Slice() {
		if strings.TrimRight(p.SAN(m), "+#") == s {
			return m
		}
	}
	return NoMove
}

// MovesToSAN converts a line of moves starting at this position.
func (p *Position) MovesToSAN(moves []Move) []string {
	out := make([]string, 0, len(moves))
	q := p.Copy()
	for _, m := range moves {
		if !q.IsPseudoLegal(m) || !q.MakeMove(m) {
			break
		}
		q.UnmakeMove()
		out = append(out, q.SAN(m))
		q.MakeMove(m)
	}
	return out
}
