package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// StartFEN is the FEN string for the starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrInvalidFEN is wrapped by every ParseFEN failure.
var ErrInvalidFEN = errors.New("invalid FEN")

// ParseFEN parses a FEN string. The castling field accepts KQkq, X-FEN and
// Shredder-FEN file letters; any castling rook off the standard corners
// switches the position to Chess960 addressing. The clocks are optional.
func ParseFEN(fen string) (*Position, error) {
	pos := &Position{}
	if err := pos.SetFEN(fen); err != nil {
		return nil, err
	}
	return pos, nil
}

// SetFEN replaces the position with the one described by fen.
func (p *Position) SetFEN(fen string) error {
	parts := strings.Fields(fen)
	if len(parts) < 4 {
		return fmt.Errorf("%w: need at least 4 fields, got %d", ErrInvalidFEN, len(parts))
	}

	p.Clear()
	if err := p.parsePlacement(parts[0]); err != nil {
		return err
	}

	switch parts[1] {
	case "w":
		p.SideToMove = White
	case "b":
		p.SideToMove = Black
	default:
		return fmt.Errorf("%w: side to move %q", ErrInvalidFEN, parts[1])
	}

	if err := p.validatePieces(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}

	if err := p.parseCastling(parts[2]); err != nil {
		return err
	}

	if parts[3] != "-" {
		sq, err := ParseSquare(parts[3])
		if err != nil || sq.RelativeRank(p.SideToMove) != 5 {
			return fmt.Errorf("%w: en passant square %q", ErrInvalidFEN, parts[3])
		}
		p.EnPassant = sq
	}

	if len(parts) > 4 {
		n, err := strconv.Atoi(parts[4])
		if err != nil || n < 0 {
			return fmt.Errorf("%w: half-move clock %q", ErrInvalidFEN, parts[4])
		}
		p.HalfMoveClock = n
	}
	if len(parts) > 5 {
		n, err := strconv.Atoi(parts[5])
		if err != nil || n < 1 {
			return fmt.Errorf("%w: full-move number %q", ErrInvalidFEN, parts[5])
		}
		p.FullMoveNumber = n
	}

	p.Hash = p.ComputeHash()
	p.PawnKey = p.ComputePawnKey()
	return nil
}

func (p *Position) parsePlacement(placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return fmt.Errorf("%w: need 8 ranks, got %d", ErrInvalidFEN, len(ranks))
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			if file > 7 {
				return fmt.Errorf("%w: too many squares in rank %d", ErrInvalidFEN, rank+1)
			}
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			pc := PieceFromChar(c)
			if pc == NoPiece {
				return fmt.Errorf("%w: piece character %q", ErrInvalidFEN, c)
			}
			p.putPiece(pc, NewSquare(file, rank))
			file++
		}
		if file != 8 {
			return fmt.Errorf("%w: rank %d has %d squares", ErrInvalidFEN, rank+1, file)
		}
	}
	return nil
}

func (p *Position) parseCastling(field string) error {
	if field == "-" {
		return nil
	}
	for i := 0; i < len(field); i++ {
		c := field[i]
		color := White
		if c >= 'a' {
			color = Black
		}
		ksq := p.KingSquare(color)
		backRank := RankMask[Square(0).Relative(color).Rank()]
		rooks := p.Pieces(color, Rook) & backRank
		if ksq.RelativeRank(color) != 0 {
			return fmt.Errorf("%w: castling %q without king on back rank", ErrInvalidFEN, c)
		}

		var rsq Square
		switch c | 0x20 {
		case 'k':
			// outermost rook on the king side
			rsq = (rooks & ^(SquareBB(ksq+1) - 1)).MSB()
		case 'q':
			rsq = (rooks & (SquareBB(ksq) - 1)).LSB()
		default:
			f := int(c|0x20) - 'a'
			if f < 0 || f > 7 {
				return fmt.Errorf("%w: castling character %q", ErrInvalidFEN, c)
			}
			rsq = NewSquare(f, ksq.Rank())
			if !rooks.IsSet(rsq) {
				rsq = NoSquare
			}
			p.Chess960 = true
		}
		if rsq == NoSquare {
			return fmt.Errorf("%w: no rook for castling %q", ErrInvalidFEN, c)
		}
		p.setCastleRight(color, rsq)
	}

	for c := White; c <= Black; c++ {
		if p.Castling&(castleRight(c, true)|castleRight(c, false)) == 0 {
			continue
		}
		if p.KingSquare(c).File() != 4 {
			p.Chess960 = true
		}
		for _, rsq := range p.CastleRooks[c] {
			if rsq != NoSquare && rsq.File() != 0 && rsq.File() != 7 {
				p.Chess960 = true
			}
		}
	}
	return nil
}

// FEN returns the FEN string for the position. Chess960 positions write
// castling rights as Shredder-FEN rook files.
func (p *Position) FEN() string {
	var sb strings.Builder

	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := p.Board[NewSquare(file, rank)]
			if pc == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteString(pc.String())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}

	if p.SideToMove == White {
		sb.WriteString(" w ")
	} else {
		sb.WriteString(" b ")
	}
	sb.WriteString(p.castlingString())
	sb.WriteByte(' ')
	sb.WriteString(p.EnPassant.String())
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.HalfMoveClock))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.FullMoveNumber))
	return sb.String()
}

func (p *Position) castlingString() string {
	if p.Castling == NoCastling {
		return "-"
	}
	var sb strings.Builder
	for _, c := range [2]Color{White, Black} {
		for side, kingSide := range [2]bool{true, false} {
			if !p.Castling.CanCastle(c, kingSide) {
				continue
			}
			letter := byte('k')
			if !kingSide {
				letter = 'q'
			}
			rsq := p.CastleRooks[c][side]
			if p.Chess960 {
				letter = byte('a' + rsq.File())
			}
			if c == White {
				letter -= 'a' - 'A'
			}
			sb.WriteByte(letter)
		}
	}
	return sb.String()
}
