package uci

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/notnil/chess"

	"github.com/hailam/kestrel/internal/board"
	"github.com/hailam/kestrel/internal/engine"
	"github.com/hailam/kestrel/internal/storage"
)

func newTestUCI(t *testing.T) (*UCI, *bytes.Buffer) {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.HashMB = 8
	var out bytes.Buffer
	return New(engine.NewEngine(cfg), &out), &out
}

// session feeds commands to a fresh handler and returns the output lines.
func session(t *testing.T, u *UCI, out *bytes.Buffer, cmds ...string) []string {
	t.Helper()
	if err := u.Run(strings.NewReader(strings.Join(cmds, "\n") + "\n")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return strings.Split(strings.TrimSpace(out.String()), "\n")
}

func bestMove(t *testing.T, lines []string) (best, ponder string) {
	t.Helper()
	for i := len(lines) - 1; i >= 0; i-- {
		f := strings.Fields(lines[i])
		if len(f) >= 2 && f[0] == "bestmove" {
			if len(f) == 4 && f[2] == "ponder" {
				return f[1], f[3]
			}
			return f[1], ""
		}
	}
	t.Fatalf("no bestmove in output:\n%s", strings.Join(lines, "\n"))
	return "", ""
}

func hasLine(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

// oracleGame replays a position command with an independent move
// generator.
func oracleGame(t *testing.T, fen string, moves []string) *chess.Game {
	t.Helper()
	game := chess.NewGame()
	if fen != "" {
		opt, err := chess.FEN(fen)
		if err != nil {
			t.Fatalf("oracle FEN: %v", err)
		}
		game = chess.NewGame(opt)
	}
	for _, s := range moves {
		m, err := chess.UCINotation{}.Decode(game.Position(), s)
		if err != nil {
			t.Fatalf("oracle decode %s: %v", s, err)
		}
		if err := game.Move(m); err != nil {
			t.Fatalf("oracle move %s: %v", s, err)
		}
	}
	return game
}

func oracleLegal(game *chess.Game, uci string) bool {
	for _, m := range game.ValidMoves() {
		if m.String() == uci {
			return true
		}
	}
	return false
}

func TestHandshake(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out, "uci", "isready")

	for _, want := range []string{
		"id name Kestrel",
		"option name Hash type spin default 64",
		"option name Threads type spin",
		"option name MultiPV type spin",
		"option name UseNNUE type check default true",
		"option name EvalFile type string default <empty>",
		"option name Clear Hash type button",
		"uciok",
		"readyok",
	} {
		if !hasLine(lines, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestBestMoveIsLegal(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		moves []string
	}{
		{"startpos", "", nil},
		{"after moves", "", []string{"e2e4", "c7c5", "g1f3", "d7d6", "d2d4"}},
		{"castling available", "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1", nil},
		{"promotion", "8/P7/8/8/8/8/k6K/8 w - - 0 1", nil},
		{"en passant", "rnbqkbnr/ppp1p1pp/8/3pPp2/8/8/PPPP1PPP/RNBQKBNR w KQkq f6 0 3", nil},
		{"in check", "4k3/8/8/8/8/8/3q4/4K3 w - - 0 1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := "position startpos"
			if tt.fen != "" {
				cmd = "position fen " + tt.fen
			}
			if len(tt.moves) > 0 {
				cmd += " moves " + strings.Join(tt.moves, " ")
			}

			u, out := newTestUCI(t)
			lines := session(t, u, out, cmd, "go depth 4")
			best, _ := bestMove(t, lines)

			game := oracleGame(t, tt.fen, tt.moves)
			if !oracleLegal(game, best) {
				t.Errorf("bestmove %s is illegal in %s", best, game.Position())
			}
		})
	}
}

func TestInfoLines(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out, "position startpos", "go depth 3")

	var infos int
	for _, l := range lines {
		if !strings.HasPrefix(l, "info depth") || strings.Contains(l, "currmove") {
			continue
		}
		infos++
		for _, field := range []string{" seldepth ", " multipv ", " score ", " nodes ", " nps ", " hashfull ", " tbhits ", " time ", " pv "} {
			if !strings.Contains(l, field) {
				t.Errorf("info line %q lacks%s", l, field)
			}
		}
	}
	if infos == 0 {
		t.Fatal("no info lines")
	}
}

func TestMultiPVOutput(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out,
		"setoption name MultiPV value 3",
		"position startpos",
		"go depth 3")

	for _, want := range []string{" multipv 1 ", " multipv 2 ", " multipv 3 "} {
		found := false
		for _, l := range lines {
			if strings.HasPrefix(l, "info depth 3 ") && strings.Contains(l, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("no depth 3 line with%s", want)
		}
	}
}

func TestSearchMoves(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out, "position startpos", "go depth 3 searchmoves h2h3 a2a3")
	if best, _ := bestMove(t, lines); best != "h2h3" && best != "a2a3" {
		t.Errorf("bestmove %s outside searchmoves", best)
	}
}

func TestMatedAndStalemate(t *testing.T) {
	for _, fen := range []string{
		"R5k1/5ppp/8/8/8/8/8/6K1 b - - 0 1",
		"k7/2Q5/1K6/8/8/8/8/8 b - - 0 1",
	} {
		u, out := newTestUCI(t)
		lines := session(t, u, out, "position fen "+fen, "go depth 3")
		if best, _ := bestMove(t, lines); best != "0000" {
			t.Errorf("%s: bestmove %s, want 0000", fen, best)
		}
	}
}

func TestMateScore(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out, "position fen 6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", "go depth 3")
	if !hasLine(lines, "bestmove a1a8") {
		t.Errorf("mate not played:\n%s", strings.Join(lines, "\n"))
	}
	found := false
	for _, l := range lines {
		if strings.Contains(l, "score mate 1 ") {
			found = true
		}
	}
	if !found {
		t.Error("no 'score mate 1' info line")
	}
}

func TestPonder(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out,
		"setoption name Ponder value true",
		"position startpos",
		"go depth 5")
	best, ponder := bestMove(t, lines)
	if ponder == "" {
		t.Fatal("no ponder move")
	}
	game := oracleGame(t, "", []string{best})
	if !oracleLegal(game, ponder) {
		t.Errorf("ponder move %s illegal after %s", ponder, best)
	}
}

func TestPonderHit(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out, "position startpos", "go ponder depth 2", "ponderhit")
	best, _ := bestMove(t, lines)
	if !oracleLegal(oracleGame(t, "", nil), best) {
		t.Errorf("bestmove %s is illegal", best)
	}
}

func TestStopInfinite(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out, "position startpos", "go infinite", "isready", "stop")
	if best, _ := bestMove(t, lines); best == "0000" {
		t.Error("stopped search returned no move")
	}
}

func TestPerft(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out, "position startpos", "perft 3")
	if !hasLine(lines, "Nodes searched: 8902") {
		t.Errorf("perft 3 output:\n%s", strings.Join(lines, "\n"))
	}
	if !hasLine(lines, "e2e4: 600") {
		t.Error("missing divide line for e2e4")
	}
}

func TestDisplayAndEval(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out, "position startpos moves e2e4", "d", "eval")
	if !hasLine(lines, "Fen: rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq") {
		t.Error("display lacks FEN")
	}
	if !hasLine(lines, "info string eval ") {
		t.Error("no eval output")
	}
}

func TestBadInput(t *testing.T) {
	u, out := newTestUCI(t)
	lines := session(t, u, out,
		"position fen not a fen",
		"position startpos moves e2e5",
		"setoption name NoSuchOption value 1",
		"setoption name Hash value big",
		"isready")
	for _, want := range []string{"info string invalid fen", "info string illegal move e2e5", "info string unknown option", "info string option Hash"} {
		if !hasLine(lines, want) {
			t.Errorf("missing %q", want)
		}
	}
	if !hasLine(lines, "readyok") {
		t.Error("handler stopped after bad input")
	}
}

// writeBook writes a one-entry Polyglot book answering d2d4 from the start.
func writeBook(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, board.NewPosition().PolyglotHash())
	binary.Write(&buf, binary.BigEndian, uint16(3|3<<3|3<<6|1<<9)) // d2d4
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, uint32(0))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.bin")
	writeBook(t, path)

	u, out := newTestUCI(t)
	lines := session(t, u, out,
		"setoption name BookFile value "+path,
		"setoption name OwnBook value true",
		"position startpos",
		"go depth 10")
	if best, _ := bestMove(t, lines); best != "d2d4" {
		t.Errorf("bestmove %s, want book move d2d4", best)
	}
}

func TestBookFileFromBookDirectory(t *testing.T) {
	paths := storage.Paths{Root: t.TempDir()}
	if err := paths.Ensure(); err != nil {
		t.Fatal(err)
	}
	writeBook(t, filepath.Join(paths.Books(), "openings.bin"))

	u, out := newTestUCI(t)
	u.SetPaths(paths)
	lines := session(t, u, out,
		"setoption name BookFile value openings.bin",
		"setoption name OwnBook value true",
		"position startpos",
		"go depth 10")
	if !hasLine(lines, "info string book move d2d4") {
		t.Errorf("book not found by name:\n%s", strings.Join(lines, "\n"))
	}
	if best, _ := bestMove(t, lines); best != "d2d4" {
		t.Errorf("bestmove %s, want book move d2d4", best)
	}
}

func TestStoredOptionsAndLearning(t *testing.T) {
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	u, out := newTestUCI(t)
	if err := u.SetStorage(store); err != nil {
		t.Fatal(err)
	}
	lines := session(t, u, out,
		"setoption name Hash value 16",
		"setoption name Learning value true",
		"position startpos",
		"go depth 3")
	first, _ := bestMove(t, lines)

	saved, err := store.LoadOptions()
	if err != nil {
		t.Fatal(err)
	}
	if saved["Hash"] != "16" || saved["Learning"] != "true" {
		t.Errorf("saved options = %v", saved)
	}
	a, err := store.LookupAnalysis(board.NewPosition().Hash)
	if err != nil {
		t.Fatalf("no analysis recorded: %v", err)
	}
	if a.Move != first || a.Depth != 3 {
		t.Errorf("recorded %+v, want %s at depth 3", a, first)
	}

	// A second handler restores Learning from the store and answers from it.
	u2, out2 := newTestUCI(t)
	if err := u2.SetStorage(store); err != nil {
		t.Fatal(err)
	}
	lines = session(t, u2, out2, "position startpos", "go depth 2")
	if best, _ := bestMove(t, lines); best != first {
		t.Errorf("learned move %s, want %s", best, first)
	}
	if hasLine(lines, "info depth 1 ") {
		t.Error("searched although a deeper analysis was stored")
	}
}

func TestLearningAfterNodeLimit(t *testing.T) {
	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	u, out := newTestUCI(t)
	if err := u.SetStorage(store); err != nil {
		t.Fatal(err)
	}
	lines := session(t, u, out,
		"setoption name Learning value true",
		"position fen r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"go nodes 30000")
	bestMove(t, lines)

	pos, _ := board.ParseFEN("r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	a, err := store.LookupAnalysis(pos.Hash)
	if err != nil {
		t.Fatalf("no analysis recorded: %v", err)
	}
	// The search stops inside an iteration; what is recorded comes from
	// an earlier, finished one.
	deepest := 0
	for _, l := range lines {
		f := strings.Fields(l)
		if len(f) > 2 && f[0] == "info" && f[1] == "depth" {
			if d, err := strconv.Atoi(f[2]); err == nil {
				deepest = max(deepest, d)
			}
		}
	}
	if a.Depth < 1 || a.Depth > deepest {
		t.Errorf("recorded depth %d, deepest reported depth %d", a.Depth, deepest)
	}
	if pos.ParseUCIMove(a.Move) == board.NoMove {
		t.Errorf("recorded move %q is not legal", a.Move)
	}
}
