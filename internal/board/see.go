package board

// SeeGE reports whether the static exchange evaluation of m is at least
// threshold. Both sides recapture on the destination square with their
// least valuable attacker, x-ray attackers join as pieces are removed, and
// either side may stop capturing when that is better for it. Promotions are
// valued as plain pawn moves.
func (p *Position) SeeGE(m Move, threshold int) bool {
	// The rook's destination of a legal castle is never attacked.
	if m.IsCastle() {
		return threshold <= 0
	}

	us := p.SideToMove
	from, sq := m.From(), m.To()
	piece := p.Board[from]

	score := 0
	switch {
	case m.IsEnPassant():
		score = SeeValue[Pawn]
	case p.Board[sq] != NoPiece:
		score = SeeValue[p.Board[sq].Type()]
	}

	if piece.Type() != King {
		if score < threshold {
			return false
		}
		if score-SeeValue[piece.Type()] >= threshold {
			return true
		}
	}

	occ := p.Occupied &^ SquareBB(from)
	if m.IsEnPassant() {
		occ &^= SquareBB(sq ^ 8)
	}
	victim := piece.Type()
	stm := us.Other()

	attackers := p.AttackersTo(sq, occ) &^ SquareBB(from)
	if victim == King && attackers&p.ColorBB[stm] != 0 {
		return false
	}

	bq := p.TypeBB(Bishop) | p.TypeBB(Queen)
	rq := p.TypeBB(Rook) | p.TypeBB(Queen)
	for attackers != 0 {
		if (stm == us && score >= threshold) || (stm != us && score < threshold) {
			break
		}

		attacker := Bitboard(0)
		pt := Pawn
		for ; pt <= King; pt++ {
			if bb := attackers & p.Pieces(stm, pt); bb != 0 {
				attacker = bb & -bb
				break
			}
		}
		if attacker == 0 {
			break
		}

		old := score
		if stm == us {
			score += SeeValue[victim]
		} else {
			score -= SeeValue[victim]
		}

		attackers &^= attacker
		occ &^= attacker
		victim = pt
		stm = stm.Other()

		if pt == Pawn || pt == Bishop || pt == Queen {
			attackers |= BishopAttacks(sq, occ) & bq
		}
		if pt == Rook || pt == Queen {
			attackers |= RookAttacks(sq, occ) & rq
		}
		attackers &= occ

		// A king may not capture into a defended square.
		if victim == King && attackers&p.ColorBB[stm] != 0 {
			score = old
			break
		}
	}
	return score >= threshold
}
