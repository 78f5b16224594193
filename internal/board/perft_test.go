package board

import (
	"sort"
	"testing"

	"github.com/dylhunn/dragontoothmg"
)

type perftCase struct {
	depth    int
	expected uint64
}

func runPerft(t *testing.T, fen string, cases []perftCase) {
	t.Helper()
	pos, err := ParseFEN(fen)
	if err != nil {
		t.Fatalf("Failed to parse FEN: %v", err)
	}
	for _, tc := range cases {
		if tc.expected > 1_000_000 && testing.Short() {
			continue
		}
		got := pos.Perft(tc.depth)
		if got != tc.expected {
			t.Errorf("perft(%d) = %d, want %d", tc.depth, got, tc.expected)
		}
	}
	if err := pos.Validate(); err != nil {
		t.Errorf("position corrupted after perft: %v", err)
	}
}

func TestPerftStartingPosition(t *testing.T) {
	runPerft(t, StartFEN, []perftCase{
		{1, 20},
		{2, 400},
		{3, 8902},
		{4, 197281},
		{5, 4865609},
	})
}

// Kiwipete exercises castling, pins and promotions.
func TestPerftKiwipete(t *testing.T) {
	runPerft(t, "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1", []perftCase{
		{1, 48},
		{2, 2039},
		{3, 97862},
	})
}

func TestPerftPosition3(t *testing.T) {
	runPerft(t, "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1", []perftCase{
		{1, 14},
		{2, 191},
		{3, 2812},
		{4, 43238},
	})
}

func TestPerftPosition4(t *testing.T) {
	runPerft(t, "r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1", []perftCase{
		{1, 6},
		{2, 264},
		{3, 9467},
	})
}

func TestPerftPosition5(t *testing.T) {
	runPerft(t, "rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8", []perftCase{
		{1, 44},
		{2, 1486},
		{3, 62379},
	})
}

func TestPerftChess960(t *testing.T) {
	runPerft(t, "bqnb1rkr/pp3ppp/3ppn2/2p5/5P2/P2P4/NPP1P1PP/BQ1BNRKR w HFhf - 2 9", []perftCase{
		{1, 21},
		{2, 528},
		{3, 12189},
	})
}

// A black pawn on e4 may not capture en passant on d3: both pawns would
// leave the fourth rank and expose the king on a4 to the rook on h4.
func TestPerftEnPassantPin(t *testing.T) {
	pos, err := ParseFEN("8/8/8/8/k2Pp2R/8/8/4K3 b - d3 0 1")
	if err != nil {
		t.Fatalf("Failed to parse FEN: %v", err)
	}
	for _, m := range pos.GenerateLegalMoves().Slice() {
		if m.IsEnPassant() {
			t.Errorf("en passant move %v should be illegal (horizontal pin)", m)
		}
	}
	if got := pos.Perft(1); got != 6 {
		t.Errorf("perft(1) = %d, want 6", got)
	}
}

func TestDivideSumsToPerft(t *testing.T) {
	pos := NewPosition()
	var sum uint64
	entries := pos.Divide(3)
	for _, e := range entries {
		sum += e.Nodes
	}
	if len(entries) != 20 || sum != 8902 {
		t.Errorf("divide(3): %d moves, %d nodes; want 20 moves, 8902 nodes", len(entries), sum)
	}
}

// moveStrings returns the sorted UCI strings of the legal moves.
func moveStrings(pos *Position) []string {
	var out []string
	for _, m := range pos.GenerateLegalMoves().Slice() {
		out = append(out, m.String())
	}
	sort.Strings(out)
	return out
}

func oracleMoveStrings(b *dragontoothmg.Board) []string {
	var out []string
	for _, m := range b.GenerateLegalMoves() {
		out = append(out, m.String())
	}
	sort.Strings(out)
	return out
}

// compareTree walks both generators in lockstep and reports the first node
// where the legal move sets differ.
func compareTree(t *testing.T, pos *Position, b *dragontoothmg.Board, depth int) bool {
	t.Helper()
	ours, theirs := moveStrings(pos), oracleMoveStrings(b)
	if len(ours) != len(theirs) {
		t.Errorf("%s: %d moves, oracle has %d\nours:   %v\noracle: %v", pos.FEN(), len(ours), len(theirs), ours, theirs)
		return false
	}
	for i := range ours {
		if ours[i] != theirs[i] {
			t.Errorf("%s: move sets differ\nours:   %v\noracle: %v", pos.FEN(), ours, theirs)
			return false
		}
	}
	if depth <= 1 {
		return true
	}
	for _, m := range b.GenerateLegalMoves() {
		our := pos.ParseUCIMove(m.String())
		if our == NoMove {
			t.Errorf("%s: cannot parse oracle move %s", pos.FEN(), m.String())
			return false
		}
		pos.MakeMove(our)
		unapply := b.Apply(m)
		ok := compareTree(t, pos, b, depth-1)
		unapply()
		pos.UnmakeMove()
		if !ok {
			return false
		}
	}
	return true
}

func TestMoveGenerationMatchesOracle(t *testing.T) {
	fens := []string{
		StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
		"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
		"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
		"r4rk1/1pp1qppp/p1np1n2/2b1p1B1/2B1P1b1/P1NP1N2/1PP1QPPP/R4RK1 w - - 0 10",
	}
	for _, fen := range fens {
		t.Run(fen, func(t *testing.T) {
			pos, err := ParseFEN(fen)
			if err != nil {
				t.Fatal(err)
			}
			b := dragontoothmg.ParseFen(fen)
			compareTree(t, pos, &b, 2)
		})
	}
}
