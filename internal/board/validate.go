package board

import (
	"errors"
	"fmt"
)

// Validate checks the internal consistency of the position: the piece array
// against the bitboards, the incremental keys against a full recomputation,
// castling rook placement and king legality. Search never calls it; tests and
// debug mode do after make/unmake.
func (p *Position) Validate() error {
	if err := p.validatePieces(); err != nil {
		return err
	}

	var union Bitboard
	for pc := WhitePawn; pc < NoPiece; pc++ {
		if union&p.PieceBB[pc] != 0 {
			return fmt.Errorf("piece bitboards overlap at %s", pc)
		}
		union |= p.PieceBB[pc]
	}
	if union != p.Occupied || p.ColorBB[White]|p.ColorBB[Black] != p.Occupied ||
		p.ColorBB[White]&p.ColorBB[Black] != 0 {
		return errors.New("occupancy does not match piece bitboards")
	}
	for sq := A1; sq <= H8; sq++ {
		pc := p.Board[sq]
		if pc == NoPiece {
			if p.Occupied.IsSet(sq) {
				return fmt.Errorf("square %s empty in array but occupied", sq)
			}
			continue
		}
		if !p.PieceBB[pc].IsSet(sq) || !p.ColorBB[pc.Color()].IsSet(sq) {
			return fmt.Errorf("square %s holds %s but bitboards disagree", sq, pc)
		}
	}

	if h := p.ComputeHash(); h != p.Hash {
		return fmt.Errorf("hash %016x, recomputed %016x", p.Hash, h)
	}
	if k := p.ComputePawnKey(); k != p.PawnKey {
		return fmt.Errorf("pawn key %016x, recomputed %016x", p.PawnKey, k)
	}

	for c := White; c <= Black; c++ {
		for side, kingSide := range [2]bool{true, false} {
			if !p.Castling.CanCastle(c, kingSide) {
				continue
			}
			rsq := p.CastleRooks[c][side]
			if rsq == NoSquare || p.Board[rsq] != NewPiece(Rook, c) {
				return fmt.Errorf("castling right %s without rook", castleRight(c, kingSide))
			}
		}
	}

	if p.EnPassant != NoSquare && p.EnPassant.RelativeRank(p.SideToMove) != 5 {
		return fmt.Errorf("en passant square %s on wrong rank", p.EnPassant)
	}
	return nil
}

// validatePieces checks the rules a FEN must satisfy: one king per side, no
// pawns on the back ranks, and the side not to move is not in check.
func (p *Position) validatePieces() error {
	for c := White; c <= Black; c++ {
		if n := p.Pieces(c, King).PopCount(); n != 1 {
			return fmt.Errorf("%s has %d kings", c, n)
		}
	}
	if p.TypeBB(Pawn)&(Rank1|Rank8) != 0 {
		return errors.New("pawn on first or last rank")
	}
	them := p.SideToMove.Other()
	if p.IsSquareAttacked(p.KingSquare(them), p.SideToMove) {
		return fmt.Errorf("%s king can be captured", them)
	}
	return nil
}

// String returns the rights as KQkq letters.
func (cr CastlingRights) String() string {
	if cr == NoCastling {
		return "-"
	}
	s := ""
	for i, l := range "KQkq" {
		if cr&(1<<i) != 0 {
			s += string(l)
		}
	}
	return s
}
