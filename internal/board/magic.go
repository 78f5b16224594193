package board

// Magic bitboards for sliding piece attacks. The multipliers are found at
// startup by trial: a random sparse candidate is accepted once every subset of
// the relevant occupancy mask maps to a slot holding the same attack set.

// Magic holds the lookup parameters for a single square.
type Magic struct {
	Mask   Bitboard
	Magic  uint64
	Shift  uint8
	Offset uint32
}

var (
	bishopMagics [64]Magic
	rookMagics   [64]Magic

	bishopTable [5248]Bitboard
	rookTable   [102400]Bitboard
)

// Seeds per rank that make the search converge quickly.
var magicSeeds = [8]uint64{728, 10316, 55013, 32803, 12281, 15100, 16645, 255}

func initMagics() {
	initSliderMagics(bishopMagics[:], bishopTable[:], bishopMask, bishopAttacksSlow)
	initSliderMagics(rookMagics[:], rookTable[:], rookMask, rookAttacksSlow)
}

func initSliderMagics(magics []Magic, table []Bitboard, maskFn func(Square) Bitboard,
	slowFn func(Square, Bitboard) Bitboard) {
	var (
		occupancy [4096]Bitboard
		reference [4096]Bitboard
		epoch     [4096]int
		offset    uint32
		cnt       int
	)

	for sq := A1; sq <= H8; sq++ {
		mask := maskFn(sq)
		n := mask.PopCount()
		m := &magics[sq]
		m.Mask = mask
		m.Shift = uint8(64 - n)
		m.Offset = offset

		size := 1 << n
		for i := 0; i < size; i++ {
			occupancy[i] = indexToOccupancy(i, n, mask)
			reference[i] = slowFn(sq, occupancy[i])
		}

		rng := newPRNG(magicSeeds[sq.Rank()])
		for i := 0; i < size; {
			m.Magic = 0
			for Bitboard((uint64(mask)*m.Magic)>>56).PopCount() < 6 {
				m.Magic = rng.sparse()
			}

			// epoch marks slots written during the current attempt so the
			// table does not need clearing between candidates.
			cnt++
			for i = 0; i < size; i++ {
				idx := offset + uint32((uint64(occupancy[i])*m.Magic)>>m.Shift)
				slot := idx - offset
				if epoch[slot] < cnt {
					epoch[slot] = cnt
					table[idx] = reference[i]
				} else if table[idx] != reference[i] {
					break
				}
			}
		}
		offset += uint32(size)
	}
}

// bishopMask returns the relevant occupancy mask for a bishop. Edge squares
// never block anything beyond themselves and are excluded.
func bishopMask(sq Square) Bitboard {
	return bishopAttacksSlow(sq, 0) & ^(Rank1 | Rank8 | FileA | FileH)
}

func rookMask(sq Square) Bitboard {
	file, rank := sq.File(), sq.Rank()
	var mask Bitboard
	for f := 1; f < 7; f++ {
		if f != file {
			mask |= SquareBB(NewSquare(f, rank))
		}
	}
	for r := 1; r < 7; r++ {
		if r != rank {
			mask |= SquareBB(NewSquare(file, r))
		}
	}
	return mask
}

// indexToOccupancy maps the bits of index onto the set squares of mask.
func indexToOccupancy(index, n int, mask Bitboard) Bitboard {
	var occ Bitboard
	for i := 0; i < n; i++ {
		sq := mask.PopLSB()
		if index&(1<<i) != 0 {
			occ |= SquareBB(sq)
		}
	}
	return occ
}

var (
	bishopDirs = [4][2]int{{1, 1}, {-1, 1}, {1, -1}, {-1, -1}}
	rookDirs   = [4][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
)

func slideAttacks(sq Square, occupied Bitboard, dirs *[4][2]int) Bitboard {
	var attacks Bitboard
	for _, d := range dirs {
		for f, r := sq.File()+d[0], sq.Rank()+d[1]; f >= 0 && f <= 7 && r >= 0 && r <= 7; f, r = f+d[0], r+d[1] {
			s := SquareBB(NewSquare(f, r))
			attacks |= s
			if occupied&s != 0 {
				break
			}
		}
	}
	return attacks
}

// bishopAttacksSlow computes bishop attacks by ray casting (init only).
func bishopAttacksSlow(sq Square, occupied Bitboard) Bitboard {
	return slideAttacks(sq, occupied, &bishopDirs)
}

// rookAttacksSlow computes rook attacks by ray casting (init only).
func rookAttacksSlow(sq Square, occupied Bitboard) Bitboard {
	return slideAttacks(sq, occupied, &rookDirs)
}

// BishopAttacks returns bishop attacks from sq given the board occupancy.
func BishopAttacks(sq Square, occupied Bitboard) Bitboard {
	m := &bishopMagics[sq]
	return bishopTable[m.Offset+uint32(((uint64(occupied)&uint64(m.Mask))*m.Magic)>>m.Shift)]
}

// RookAttacks returns rook attacks from sq given the board occupancy.
func RookAttacks(sq Square, occupied Bitboard) Bitboard {
	m := &rookMagics[sq]
	return rookTable[m.Offset+uint32(((uint64(occupied)&uint64(m.Mask))*m.Magic)>>m.Shift)]
}

// QueenAttacks returns the union of bishop and rook attacks.
func QueenAttacks(sq Square, occupied Bitboard) Bitboard {
	return BishopAttacks(sq, occupied) | RookAttacks(sq, occupied)
}
