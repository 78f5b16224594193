package board

// Zobrist hash keys. A fixed seed keeps keys stable across runs so that
// stored analysis and cache files stay valid.
var (
	zobristPiece      [12][64]uint64
	zobristEnPassant  [8]uint64
	zobristCastling   [16]uint64
	zobristSideToMove uint64
)

func init() {
	initZobrist()
}

type prng struct {
	state uint64
}

func newPRNG(seed uint64) *prng {
	return &prng{state: seed}
}

// xorshift64*
func (p *prng) next() uint64 {
	p.state ^= p.state >> 12
	p.state ^= p.state << 25
	p.state ^= p.state >> 27
	return p.state * 0x2545F4914F6CDD1D
}

// sparse returns a value with roughly 1/8 of its bits set.
func (p *prng) sparse() uint64 {
	return p.next() & p.next() & p.next()
}

func initZobrist() {
	rng := newPRNG(0x98F107A2BEEF1234)
	for pc := WhitePawn; pc < NoPiece; pc++ {
		for sq := A1; sq <= H8; sq++ {
			zobristPiece[pc][sq] = rng.next()
		}
	}
	for file := 0; file < 8; file++ {
		zobristEnPassant[file] = rng.next()
	}
	// Combined rights hash as the XOR of their single-right keys, so a
	// right can be toggled without knowing the others.
	var single [4]uint64
	for i := range single {
		single[i] = rng.next()
	}
	for cr := 0; cr < 16; cr++ {
		for i := range single {
			if cr&(1<<i) != 0 {
				zobristCastling[cr] ^= single[i]
			}
		}
	}
	zobristSideToMove = rng.next()
}

// ZobristPiece returns the key for a piece on a square.
func ZobristPiece(pc Piece, sq Square) uint64 {
	return zobristPiece[pc][sq]
}

// ZobristEnPassant returns the key for an en passant file.
func ZobristEnPassant(file int) uint64 {
	return zobristEnPassant[file]
}

// ZobristCastling returns the key for a set of castling rights.
func ZobristCastling(cr CastlingRights) uint64 {
	return zobristCastling[cr]
}

// ZobristSideToMove returns the key XORed in when black is to move.
func ZobristSideToMove() uint64 {
	return zobristSideToMove
}

// ComputeHash recomputes the position key from scratch.
func (p *Position) ComputeHash() uint64 {
	var h uint64
	for sq := A1; sq <= H8; sq++ {
		if pc := p.Board[sq]; pc != NoPiece {
			h ^= zobristPiece[pc][sq]
		}
	}
	h ^= zobristCastling[p.Castling]
	if p.epCapturable() {
		h ^= zobristEnPassant[p.EnPassant.File()]
	}
	if p.SideToMove == Black {
		h ^= zobristSideToMove
	}
	return h
}

// ComputePawnKey recomputes the pawn structure key from scratch. Kings are
// included since pawn evaluation depends on their placement.
func (p *Position) ComputePawnKey() uint64 {
	var h uint64
	for _, pc := range [...]Piece{WhitePawn, BlackPawn, WhiteKing, BlackKing} {
		bb := p.PieceBB[pc]
		for bb != 0 {
			h ^= zobristPiece[pc][bb.PopLSB()]
		}
	}
	return h
}
