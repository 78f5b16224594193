package board

type genKind uint8

const (
	genTactical genKind = 1 << iota // captures and promotions
	genQuiet                        // everything else, castling included
	genAll      = genTactical | genQuiet
)

// GenerateMoves appends all pseudo-legal moves to ml.
func (p *Position) GenerateMoves(ml *MoveList) {
	p.generate(ml, genAll)
}

// GenerateCaptures appends pseudo-legal captures and promotions, including
// quiet promotions and underpromotions.
func (p *Position) GenerateCaptures(ml *MoveList) {
	p.generate(ml, genTactical)
}

// GenerateQuiets appends pseudo-legal non-capturing, non-promoting moves.
func (p *Position) GenerateQuiets(ml *MoveList) {
	p.generate(ml, genQuiet)
}

// GenerateEvasions appends the legal replies to a check. The side to move
// must be in check.
func (p *Position) GenerateEvasions(ml *MoveList) {
	p.generateEvasions(ml, genAll)
}

// GenerateEvasionCaptures appends the captures and promotions among the
// legal check evasions.
func (p *Position) GenerateEvasionCaptures(ml *MoveList) {
	p.generateEvasions(ml, genTactical)
}

// GenerateEvasionQuiets appends the remaining legal check evasions.
func (p *Position) GenerateEvasionQuiets(ml *MoveList) {
	p.generateEvasions(ml, genQuiet)
}

// GeneratePseudoLegalMoves returns all pseudo-legal moves.
func (p *Position) GeneratePseudoLegalMoves() *MoveList {
	ml := &MoveList{}
	p.generate(ml, genAll)
	return ml
}

// GenerateLegalMoves returns the pseudo-legal moves that survive MakeMove.
func (p *Position) GenerateLegalMoves() *MoveList {
	var pseudo MoveList
	p.generate(&pseudo, genAll)
	ml := &MoveList{}
	for _, m := range pseudo.Slice() {
		if p.MakeMove(m) {
			p.UnmakeMove()
			ml.Add(m)
		}
	}
	return ml
}

// HasLegalMoves reports whether the side to move has any legal move.
func (p *Position) HasLegalMoves() bool {
	var pseudo MoveList
	p.generate(&pseudo, genAll)
	for _, m := range pseudo.Slice() {
		if p.MakeMove(m) {
			p.UnmakeMove()
			return true
		}
	}
	return false
}

// IsCheckmate reports whether the side to move is mated.
func (p *Position) IsCheckmate() bool {
	return p.InCheck() && !p.HasLegalMoves()
}

// IsStalemate reports whether the side to move has no move and is not in check.
func (p *Position) IsStalemate() bool {
	return !p.InCheck() && !p.HasLegalMoves()
}

func (p *Position) generate(ml *MoveList, kind genKind) {
	us := p.SideToMove
	var targets Bitboard
	if kind&genTactical != 0 {
		targets |= p.ColorBB[us.Other()]
	}
	if kind&genQuiet != 0 {
		targets |= ^p.Occupied
	}

	p.genPawnMoves(ml, kind, p.Pieces(us, Pawn), Universe)
	p.genPieceMoves(ml, p.ColorBB[us], targets)

	if ksq := p.KingSquare(us); ksq != NoSquare {
		p.addMoves(ml, ksq, KingAttacks(ksq)&targets)
	}
	if kind&genQuiet != 0 {
		for _, kingSide := range [2]bool{true, false} {
			if p.IsCastlingAllowed(kingSide) {
				side := 1
				if kingSide {
					side = 0
				}
				ml.Add(NewCastle(p.KingSquare(us), p.CastleRooks[us][side], kingSide))
			}
		}
	}
}

// generateEvasions produces only legal moves: king steps to squares that are
// safe with the king lifted off the board, and, in single check, captures of
// the checker or interpositions by unpinned pieces.
func (p *Position) generateEvasions(ml *MoveList, kind genKind) {
	us, them := p.SideToMove, p.SideToMove.Other()
	ksq := p.KingSquare(us)
	checkers := p.Checkers()

	var kindTargets Bitboard
	if kind&genTactical != 0 {
		kindTargets |= p.ColorBB[them]
	}
	if kind&genQuiet != 0 {
		kindTargets |= ^p.Occupied
	}

	occ := p.Occupied &^ SquareBB(ksq)
	kingTo := KingAttacks(ksq) & kindTargets
	for kingTo != 0 {
		to := kingTo.PopLSB()
		if !p.isAttacked(to, them, occ) {
			p.addMove(ml, ksq, to)
		}
	}

	if checkers.MoreThanOne() || checkers == 0 {
		return
	}

	csq := checkers.LSB()
	targets := checkers | Between(ksq, csq)
	movable := p.ColorBB[us] &^ p.Pinned(us)

	p.genPawnMoves(ml, kind, p.Pieces(us, Pawn)&movable, targets)
	p.genPieceMoves(ml, movable, targets&kindTargets)
}

// genPieceMoves adds knight, bishop, rook and queen moves of the pieces in
// movable to the squares in targets.
func (p *Position) genPieceMoves(ml *MoveList, movable, targets Bitboard) {
	us := p.SideToMove
	for pt := Knight; pt <= Queen; pt++ {
		bb := p.Pieces(us, pt) & movable
		for bb != 0 {
			from := bb.PopLSB()
			p.addMoves(ml, from, Attacks(pt, from, p.Occupied)&targets)
		}
	}
}

func (p *Position) addMoves(ml *MoveList, from Square, to Bitboard) {
	for to != 0 {
		p.addMove(ml, from, to.PopLSB())
	}
}

func (p *Position) addMove(ml *MoveList, from, to Square) {
	if p.Board[to] != NoPiece {
		ml.Add(NewMove(from, to, FlagCapture))
	} else {
		ml.Add(NewMove(from, to, 0))
	}
}

func addPromotions(ml *MoveList, from, to Square, capture bool) {
	ml.Add(NewPromotion(from, to, Queen, capture))
	ml.Add(NewPromotion(from, to, Knight, capture))
	ml.Add(NewPromotion(from, to, Rook, capture))
	ml.Add(NewPromotion(from, to, Bishop, capture))
}

// genPawnMoves adds moves of the given pawns whose destination (or, for en
// passant, captured pawn) lies in targets.
func (p *Position) genPawnMoves(ml *MoveList, kind genKind, pawns, targets Bitboard) {
	us, them := p.SideToMove, p.SideToMove.Other()
	enemies := p.ColorBB[them]
	empty := ^p.Occupied

	up := 8
	promoRank, thirdRank := Rank8, Rank3
	if us == Black {
		up = -8
		promoRank, thirdRank = Rank1, Rank6
	}

	push1 := pawns.Forward(us) & empty
	push2 := (push1 & thirdRank).Forward(us) & empty & targets
	push1 &= targets
	capWest := pawns.Forward(us).West() & enemies & targets
	capEast := pawns.Forward(us).East() & enemies & targets

	if kind&genTactical != 0 {
		for bb := push1 & promoRank; bb != 0; {
			to := bb.PopLSB()
			addPromotions(ml, Square(int(to)-up), to, false)
		}
		for bb := capWest & promoRank; bb != 0; {
			to := bb.PopLSB()
			addPromotions(ml, Square(int(to)-up+1), to, true)
		}
		for bb := capEast & promoRank; bb != 0; {
			to := bb.PopLSB()
			addPromotions(ml, Square(int(to)-up-1), to, true)
		}
		for bb := capWest &^ promoRank; bb != 0; {
			to := bb.PopLSB()
			ml.Add(NewMove(Square(int(to)-up+1), to, FlagCapture))
		}
		for bb := capEast &^ promoRank; bb != 0; {
			to := bb.PopLSB()
			ml.Add(NewMove(Square(int(to)-up-1), to, FlagCapture))
		}

		if ep := p.EnPassant; ep != NoSquare && p.Board[ep^8] == NewPiece(Pawn, them) &&
			(targets.IsSet(ep) || targets.IsSet(ep^8)) {
			for bb := pawnAttacks[them][ep] & p.Pieces(us, Pawn); bb != 0; {
				from := bb.PopLSB()
				if p.epLegal(from, ep) {
					ml.Add(NewMove(from, ep, FlagCapture|FlagEnPassant))
				}
			}
		}
	}

	if kind&genQuiet != 0 {
		for bb := push1 &^ promoRank; bb != 0; {
			to := bb.PopLSB()
			ml.Add(NewMove(Square(int(to)-up), to, 0))
		}
		for bb := push2; bb != 0; {
			to := bb.PopLSB()
			ml.Add(NewMove(Square(int(to)-2*up), to, 0))
		}
	}
}

// epLegal reports whether capturing en passant from `from` leaves the king
// safe. Two pawns leave the rank at once, so pins are checked directly.
func (p *Position) epLegal(from, ep Square) bool {
	us, them := p.SideToMove, p.SideToMove.Other()
	ksq := p.KingSquare(us)
	if ksq == NoSquare {
		return true
	}
	occ := (p.Occupied &^ SquareBB(from) &^ SquareBB(ep^8)) | SquareBB(ep)
	queens := p.Pieces(them, Queen)
	return RookAttacks(ksq, occ)&(p.Pieces(them, Rook)|queens) == 0 &&
		BishopAttacks(ksq, occ)&(p.Pieces(them, Bishop)|queens) == 0 &&
		(p.Pieces(them, Knight)&KnightAttacks(ksq)) == 0 &&
		(p.Pieces(them, Pawn)&^SquareBB(ep^8)&pawnAttacks[us][ksq]) == 0
}

// IsPseudoLegal reports whether m could have been generated in this
// position. It guards moves taken from the transposition table and the
// killer and counter slots, which may belong to a different position.
func (p *Position) IsPseudoLegal(m Move) bool {
	if m == NoMove || m.IsNull() || uint32(m)>>22 != 0 {
		return false
	}
	us := p.SideToMove
	from, to := m.From(), m.To()
	pc := p.Board[from]
	if pc == NoPiece || pc.Color() != us {
		return false
	}
	if !m.IsPromotion() && (m>>12)&0xF != 0 {
		return false
	}

	if m.IsCastle() {
		if pc.Type() != King || m.Flags()&^flagCastle != 0 || m.Flags() == flagCastle {
			return false
		}
		kingSide := m.IsKingCastle()
		side := 1
		if kingSide {
			side = 0
		}
		return p.CastleRooks[us][side] == to && !p.InCheck() && p.IsCastlingAllowed(kingSide)
	}

	captured := p.Board[to]
	if captured != NoPiece && (captured.Color() == us || captured.Type() == King) {
		return false
	}

	if pc.Type() != Pawn {
		if m.Flags() != 0 && m.Flags() != FlagCapture {
			return false
		}
		if m.IsCapture() != (captured != NoPiece) {
			return false
		}
		return Attacks(pc.Type(), from, p.Occupied).IsSet(to)
	}

	if m.IsEnPassant() {
		return m.Flags() == FlagCapture|FlagEnPassant && to == p.EnPassant &&
			pawnAttacks[us][from].IsSet(to) &&
			p.Board[to^8] == NewPiece(Pawn, us.Other()) && p.epLegal(from, to)
	}

	lastRank := to.RelativeRank(us) == 7
	if m.IsPromotion() != lastRank || m.IsCapture() != (captured != NoPiece) {
		return false
	}
	if m.IsPromotion() {
		if pt := m.Promotion(); pt < Knight || pt > Queen {
			return false
		}
	}

	if m.IsCapture() {
		return pawnAttacks[us][from].IsSet(to)
	}
	if pawnPushes[us][from].IsSet(to) {
		return captured == NoPiece
	}
	return PawnDoublePush(from, us, p.Occupied).IsSet(to)
}
