package eval

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hailam/kestrel/internal/board"
)

var evalFENs = []string{
	"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
	"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
	"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
	"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
	"2r3k1/pp3ppp/8/3P4/8/8/PP3PPP/4R1K1 b - - 0 1",
	"8/5k2/8/3PP3/8/8/6K1/8 w - - 0 1",
}

// flipFEN mirrors a FEN vertically and swaps the colors.
func flipFEN(t *testing.T, fen string) string {
	t.Helper()
	f := strings.Fields(fen)
	ranks := strings.Split(f[0], "/")
	for i, j := 0, len(ranks)-1; i < j; i, j = i+1, j-1 {
		ranks[i], ranks[j] = ranks[j], ranks[i]
	}
	swap := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			switch {
			case r >= 'a' && r <= 'z':
				b.WriteRune(r - 'a' + 'A')
			case r >= 'A' && r <= 'Z':
				b.WriteRune(r - 'A' + 'a')
			default:
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	side := "w"
	if f[1] == "w" {
		side = "b"
	}
	castle := swap(f[2])
	ep := f[3]
	if ep != "-" {
		ep = string(ep[0]) + string("87654321"[ep[1]-'1'])
	}
	return strings.Join([]string{swap(strings.Join(ranks, "/")), side, castle, ep, f[4], f[5]}, " ")
}

func TestEvaluateStartPosition(t *testing.T) {
	e := NewEvaluator(nil)
	if got, want := e.Evaluate(board.NewPosition()), e.Weights().Tempo; got != want {
		t.Fatalf("start position = %d, want tempo %d", got, want)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	e := NewEvaluator(nil)
	for _, fen := range evalFENs {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatal(err)
		}
		first := e.Evaluate(pos)
		for i := 0; i < 3; i++ {
			if got := e.Evaluate(pos); got != first {
				t.Fatalf("%s: evaluation changed from %d to %d", fen, first, got)
			}
		}
		if got := NewEvaluator(nil).Evaluate(pos); got != first {
			t.Fatalf("%s: cold cache %d, warm cache %d", fen, got, first)
		}
	}
}

func TestEvaluateColorSymmetry(t *testing.T) {
	e := NewEvaluator(nil)
	for _, fen := range evalFENs {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatal(err)
		}
		flipped, err := board.ParseFEN(flipFEN(t, fen))
		if err != nil {
			t.Fatalf("flip of %s: %v", fen, err)
		}
		if a, b := e.Evaluate(pos), e.Evaluate(flipped); a != b {
			t.Errorf("%s: %d, color-flipped %d", fen, a, b)
		}
	}
}

func TestInsufficientMaterialIsDraw(t *testing.T) {
	e := NewEvaluator(nil)
	for _, fen := range []string{
		"8/8/4k3/8/8/3K4/8/8 w - - 0 1",
		"8/8/4k3/8/8/3KN3/8/8 b - - 0 1",
	} {
		pos, _ := board.ParseFEN(fen)
		if got := e.Evaluate(pos); got != 0 {
			t.Errorf("%s = %d, want 0", fen, got)
		}
	}
}

func TestMaterialAdvantage(t *testing.T) {
	e := NewEvaluator(nil)
	pos, _ := board.ParseFEN("rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	if got := e.Evaluate(pos); got < 500 {
		t.Fatalf("queen up evaluates %d", got)
	}
	pos, _ = board.ParseFEN("rnb1kbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1")
	if got := e.Evaluate(pos); got > -500 {
		t.Fatalf("queen down evaluates %d", got)
	}
}

func TestPawnStructureTerms(t *testing.T) {
	e := NewEvaluator(nil)
	w := e.Weights()
	tests := []struct {
		fen    string
		mg, eg int
		passed board.Bitboard
	}{
		// White: doubled isolated c-pawns, c3 passed. Black: isolated passed h7.
		{"4k3/7p/8/8/8/2P5/2P5/4K3 w - - 0 1",
			w.DoubledPawn.MG + w.IsolatedPawn.MG, w.DoubledPawn.EG + w.IsolatedPawn.EG,
			board.SquareBB(board.C3) | board.SquareBB(board.H7)},
		{"4k3/p7/8/8/8/8/7P/4K3 w - - 0 1", 0, 0,
			board.SquareBB(board.A7) | board.SquareBB(board.H2)},
		// Lone e4 is isolated; the black duo is neither isolated nor passed.
		{"4k3/8/8/3pp3/4P3/8/8/4K3 w - - 0 1",
			w.IsolatedPawn.MG, w.IsolatedPawn.EG, 0},
	}
	for _, tt := range tests {
		pos, err := board.ParseFEN(tt.fen)
		if err != nil {
			t.Fatal(err)
		}
		pe := e.pawnStructure(pos)
		if int(pe.MG) != tt.mg || int(pe.EG) != tt.eg {
			t.Errorf("%s: pawn terms (%d, %d), want (%d, %d)", tt.fen, pe.MG, pe.EG, tt.mg, tt.eg)
		}
		if pe.Passed != tt.passed {
			t.Errorf("%s: passed pawns\n%v\nwant\n%v", tt.fen, pe.Passed, tt.passed)
		}
	}
}

func TestLoadWeightsOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.json")
	if err := os.WriteFile(path, []byte(`{"tempo": 25, "bishop_pair": {"mg": 1, "eg": 2}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := LoadWeights(path)
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultWeights()
	if w.Tempo != 25 || w.BishopPair != (S{1, 2}) {
		t.Fatalf("overrides not applied: tempo %d, bishop pair %+v", w.Tempo, w.BishopPair)
	}
	if w.Material != def.Material || w.PSQT != def.PSQT {
		t.Fatal("fields absent from the file lost their defaults")
	}

	saved := filepath.Join(dir, "saved.json")
	if err := w.Save(saved); err != nil {
		t.Fatal(err)
	}
	again, err := LoadWeights(saved)
	if err != nil {
		t.Fatal(err)
	}
	if *again != *w {
		t.Fatal("saved weights load differently")
	}

	if _, err := LoadWeights(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("missing file loaded")
	}
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{"), 0o644)
	if _, err := LoadWeights(bad); err == nil {
		t.Fatal("malformed file loaded")
	}
}

func TestSetWeightsChangesScore(t *testing.T) {
	e := NewEvaluator(nil)
	pos := board.NewPosition()
	w := *DefaultWeights()
	w.Tempo = 0
	e.SetWeights(&w)
	if got := e.Evaluate(pos); got != 0 {
		t.Fatalf("start position with zero tempo = %d", got)
	}
}
