package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hailam/kestrel/internal/board"
)

const kiwipete = "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1"

func mustFEN(t *testing.T, fen string) *board.Position {
	t.Helper()
	pos, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return pos
}

func newTestEngine() *Engine {
	cfg := DefaultConfig()
	cfg.HashMB = 8
	return NewEngine(cfg)
}

func TestSearchBasic(t *testing.T) {
	pos := board.NewPosition()
	eng := newTestEngine()

	best, _, _ := eng.SearchPosition(context.Background(), pos, Options{Depth: 1}, false)
	if best == board.NoMove {
		t.Fatal("search returned NoMove for starting position")
	}
	if !pos.GenerateLegalMoves().Contains(best) {
		t.Errorf("best move %s is not legal", best)
	}
}

func TestSearchFindsMate(t *testing.T) {
	tests := []struct {
		name string
		fen  string
		want string
	}{
		{"back rank", "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", "a1a8"},
		{"rook", "k7/8/1K6/8/8/8/8/7R w - - 0 1", "h1h8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := mustFEN(t, tt.fen)
			eng := newTestEngine()
			best, _, score := eng.SearchPosition(context.Background(), pos, Options{Depth: 4}, false)
			if got := pos.MoveToUCI(best); got != tt.want {
				t.Errorf("best = %s, want %s", got, tt.want)
			}
			if score != MateScore-1 {
				t.Errorf("score = %d, want %d", score, MateScore-1)
			}
		})
	}
}

func TestSearchNoLegalMoves(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		score int
	}{
		{"checkmate", "R5k1/5ppp/8/8/8/8/8/6K1 b - - 0 1", -MateScore},
		{"stalemate", "k7/2Q5/1K6/8/8/8/8/8 b - - 0 1", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine()
			best, _, score := eng.SearchPosition(context.Background(), mustFEN(t, tt.fen), Options{Depth: 3}, false)
			if best != board.NoMove {
				t.Errorf("best = %s, want NoMove", best)
			}
			if score != tt.score {
				t.Errorf("score = %d, want %d", score, tt.score)
			}
		})
	}
}

func TestMultiPV(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multipv search in short mode")
	}
	pos := board.NewPosition()
	eng := newTestEngine()

	last := map[int]SearchInfo{}
	eng.OnInfo = func(si SearchInfo) {
		if len(si.PV) > 0 {
			last[si.MultiPV] = si
		}
	}
	eng.SearchPosition(context.Background(), pos, Options{Depth: 4, MultiPV: 3}, false)

	if len(last) != 3 {
		t.Fatalf("got %d lines, want 3", len(last))
	}
	seen := map[board.Move]bool{}
	for i := 1; i <= 3; i++ {
		m := last[i].PV[0]
		if seen[m] {
			t.Errorf("line %d repeats root move %s", i, m)
		}
		seen[m] = true
	}
	for i := 2; i <= 3; i++ {
		if last[i].Score > last[i-1].Score {
			t.Errorf("line %d scores above line %d (%d > %d)", i, i-1, last[i].Score, last[i-1].Score)
		}
	}
}

func TestSearchMovesFilter(t *testing.T) {
	pos := board.NewPosition()
	only := pos.ParseUCIMove("a2a3")
	eng := newTestEngine()

	best, _, _ := eng.SearchPosition(context.Background(), pos, Options{Depth: 3, SearchMoves: []board.Move{only}}, false)
	if best != only {
		t.Errorf("best = %s, want a2a3", best)
	}
}

func TestRootStoreSkipsRestrictedSearches(t *testing.T) {
	pos := board.NewPosition()

	eng := newTestEngine()
	opts := Options{Depth: 3, SearchMoves: []board.Move{pos.ParseUCIMove("h2h3")}}
	eng.SearchPosition(context.Background(), pos, opts, false)
	if e, ok := eng.tt.Probe(pos.Hash, 0); ok {
		t.Errorf("searchmoves search stored a root entry: %+v", e)
	}

	eng = newTestEngine()
	best, _, _ := eng.SearchPosition(context.Background(), pos, Options{Depth: 3, MultiPV: 3}, false)
	e, ok := eng.tt.Probe(pos.Hash, 0)
	if !ok {
		t.Fatal("no root entry after a MultiPV search")
	}
	if e.Move != best || e.Depth != 3 {
		t.Errorf("root entry %s depth %d, want the first line %s at depth 3", pos.MoveToUCI(e.Move), e.Depth, pos.MoveToUCI(best))
	}
}

func TestSearchNodeLimit(t *testing.T) {
	eng := newTestEngine()
	best, _, _ := eng.SearchPosition(context.Background(), mustFEN(t, kiwipete), Options{Nodes: 5000}, false)
	if best == board.NoMove {
		t.Fatal("search returned NoMove")
	}
	// Limits are checked every checkupInterval nodes.
	if n := eng.totalNodes(); n > 5000+checkupInterval {
		t.Errorf("searched %d nodes, limit 5000", n)
	}
}

func TestResultCompletedIteration(t *testing.T) {
	pos := mustFEN(t, kiwipete)

	eng := newTestEngine()
	r := <-eng.Go(context.Background(), pos, Options{Depth: 4}, false)
	if r.Completed.Depth != 4 || r.Completed.Move != r.Best {
		t.Errorf("depth-limited search: completed %s at depth %d, best %s",
			pos.MoveToUCI(r.Completed.Move), r.Completed.Depth, pos.MoveToUCI(r.Best))
	}
	if r.Nodes == 0 {
		t.Error("result reports no nodes")
	}

	// A node limit interrupts an iteration; only the one before it counts.
	eng = newTestEngine()
	r = <-eng.Go(context.Background(), pos, Options{Nodes: 30000}, false)
	interrupted := int(eng.workers[0].depth.Load())
	if r.Completed.Depth != interrupted-1 {
		t.Errorf("completed depth %d, interrupted iteration %d", r.Completed.Depth, interrupted)
	}
	if r.Completed.Depth > 0 && !pos.GenerateLegalMoves().Contains(r.Completed.Move) {
		t.Errorf("completed move %s is not legal", pos.MoveToUCI(r.Completed.Move))
	}
}

func TestSearchStopsOnCancel(t *testing.T) {
	eng := newTestEngine()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan board.Move)
	go func() {
		best, _, _ := eng.SearchPosition(ctx, board.NewPosition(), Options{Infinite: true}, false)
		done <- best
	}()
	select {
	case best := <-done:
		if best == board.NoMove {
			t.Error("cancelled search returned NoMove")
		}
	case <-time.After(5 * time.Second):
		eng.Stop()
		t.Fatal("search did not stop after cancel")
	}
}

func TestLazySMP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping parallel search in short mode")
	}
	eng := newTestEngine()
	eng.SetThreads(4)
	pos := mustFEN(t, kiwipete)
	best, _, _ := eng.SearchPosition(context.Background(), pos, Options{Depth: 6}, false)
	if !pos.GenerateLegalMoves().Contains(best) {
		t.Errorf("best move %s is not legal", best)
	}
	if eng.completedDepth.Load() < 6 {
		t.Errorf("completed depth %d, want 6", eng.completedDepth.Load())
	}
}

func TestPonderMove(t *testing.T) {
	eng := newTestEngine()
	pos := board.NewPosition()
	best, ponder, _ := eng.SearchPosition(context.Background(), pos, Options{Depth: 5, Ponder: true}, false)
	if ponder == board.NoMove {
		t.Fatal("no ponder move")
	}
	p := pos.Copy()
	p.MakeMove(best)
	if !p.GenerateLegalMoves().Contains(ponder) {
		t.Errorf("ponder move %s is not legal after %s", ponder, best)
	}
}

func TestTranspositionTable(t *testing.T) {
	tt := NewTranspositionTable(1)
	pos := board.NewPosition()
	m := pos.ParseUCIMove("e2e4")

	if _, ok := tt.Probe(pos.Hash, 0); ok {
		t.Fatal("probe hit on empty table")
	}
	tt.Store(pos.Hash, 0, m, 7, 35, TTExact, 20)
	e, ok := tt.Probe(pos.Hash, 0)
	if !ok {
		t.Fatal("probe missed after store")
	}
	if e.Move != m || e.Score != 35 || e.Eval != 20 || e.Depth != 7 || e.Flag != TTExact {
		t.Errorf("entry = %+v", e)
	}

	// A shallower result for the same key in the same search is ignored.
	tt.Store(pos.Hash, 0, m, 3, -10, TTUpperBound, 20)
	if e, _ := tt.Probe(pos.Hash, 0); e.Depth != 7 {
		t.Errorf("shallower store replaced entry: depth %d", e.Depth)
	}

	tt.Clear()
	if _, ok := tt.Probe(pos.Hash, 0); ok {
		t.Error("probe hit after clear")
	}
}

func TestTranspositionReplacement(t *testing.T) {
	// Keys differing only above the index bits share a bucket.
	bucketKeys := func(tt *TranspositionTable, index uint64) func(i int) uint64 {
		return func(i int) uint64 { return index&tt.mask | uint64(i+1)<<40 }
	}
	present := func(tt *TranspositionTable, key uint64) bool {
		_, ok := tt.Probe(key, 0)
		return ok
	}

	t.Run("empty slots first", func(t *testing.T) {
		tt := NewTranspositionTable(1)
		key := bucketKeys(tt, 77)
		tt.Store(key(0), 0, board.NoMove, 1, 0, TTExact, 0)
		tt.Store(key(1), 0, board.NoMove, 10, 0, TTExact, 0)
		tt.Store(key(2), 0, board.NoMove, 10, 0, TTExact, 0)
		for i := range BucketSize {
			if !present(tt, key(i)) {
				t.Errorf("key %d evicted while the bucket had room", i)
			}
		}

		// A full bucket gives up its shallowest entry.
		tt.Store(key(3), 0, board.NoMove, 2, 0, TTExact, 0)
		if present(tt, key(0)) {
			t.Error("shallowest entry survived")
		}
		for _, i := range []int{1, 2, 3} {
			if !present(tt, key(i)) {
				t.Errorf("key %d missing", i)
			}
		}
	})

	t.Run("older generation evicted first", func(t *testing.T) {
		tt := NewTranspositionTable(1)
		key := bucketKeys(tt, 1234)
		tt.NewSearch()
		tt.Store(key(0), 0, board.NoMove, 5, 0, TTExact, 0)
		tt.Store(key(1), 0, board.NoMove, 5, 0, TTExact, 0)
		tt.NewSearch()
		tt.Store(key(2), 0, board.NoMove, 5, 0, TTExact, 0)

		tt.Store(key(3), 0, board.NoMove, 5, 0, TTExact, 0)
		if present(tt, key(0)) {
			t.Error("entry from the earlier search survived")
		}
		for _, i := range []int{1, 2, 3} {
			if !present(tt, key(i)) {
				t.Errorf("key %d missing", i)
			}
		}

		// Depth outweighs a small age difference.
		tt.NewSearch()
		tt.Store(key(4), 0, board.NoMove, 1, 0, TTExact, 0)
		tt.Store(key(5), 0, board.NoMove, 1, 0, TTExact, 0)
		if present(tt, key(4)) {
			t.Error("shallow entry of the current search survived")
		}
	})

	t.Run("same key from an earlier search", func(t *testing.T) {
		tt := NewTranspositionTable(1)
		const key = 0x51f2c3d4e5a6b7c8
		m := board.NewPosition().ParseUCIMove("g1f3")
		tt.Store(key, 0, board.NoMove, 9, 40, TTLowerBound, 0)
		tt.NewSearch()
		tt.Store(key, 0, m, 2, -15, TTUpperBound, 0)
		e, ok := tt.Probe(key, 0)
		if !ok {
			t.Fatal("probe missed")
		}
		if e.Depth != 2 || e.Score != -15 || e.Move != m || e.Flag != TTUpperBound {
			t.Errorf("entry = %+v, want the newer shallow result", e)
		}
	})
}

func TestTranspositionMateScores(t *testing.T) {
	tt := NewTranspositionTable(1)
	const key = 0x9d39247e33776d41

	// Mate in 3 plies seen from ply 5 is stored as mate from the node and
	// read back relative to the probing ply.
	tt.Store(key, 5, board.NoMove, 4, MateScore-8, TTExact, 0)
	e, ok := tt.Probe(key, 2)
	if !ok {
		t.Fatal("probe missed")
	}
	if e.Score != MateScore-5 {
		t.Errorf("score = %d, want %d", e.Score, MateScore-5)
	}

	// Mate bounds are kept only as exact scores.
	const other = 0x3c8123ea7b067637
	tt.Store(other, 0, board.NoMove, 4, -MateScore+6, TTUpperBound, 0)
	if _, ok := tt.Probe(other, 0); ok {
		t.Error("mate bound was stored")
	}
}

func TestHashFull(t *testing.T) {
	tt := NewTranspositionTable(1)
	if hf := tt.HashFull(); hf != 0 {
		t.Errorf("empty table hashfull = %d", hf)
	}
	eng := newTestEngine()
	eng.SearchPosition(context.Background(), board.NewPosition(), Options{Depth: 6}, false)
	if eng.tt.HashFull() == 0 {
		t.Error("hashfull is zero after a search")
	}
}

func TestMoveSelectorYieldsAllMoves(t *testing.T) {
	fens := []string{
		board.StartFEN,
		kiwipete,
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1",
		"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
		"rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8",
		"4k3/8/8/8/8/8/8/4K2q w - - 0 1", // in check
	}
	for _, fen := range fens {
		pos := mustFEN(t, fen)
		hist := NewHistory()
		var ms MoveSelector
		ms.Init(pos, hist, 0, board.NoMove, pos.InCheck(), false)

		seen := map[board.Move]int{}
		for m := ms.Next(); m != board.NoMove; m = ms.Next() {
			if !pos.MakeMove(m) {
				continue
			}
			pos.UnmakeMove()
			seen[m]++
		}
		legal := pos.GenerateLegalMoves().Slice()
		if len(seen) != len(legal) {
			t.Errorf("%s: selector gave %d legal moves, want %d", fen, len(seen), len(legal))
		}
		for _, m := range legal {
			if seen[m] != 1 {
				t.Errorf("%s: move %s returned %d times", fen, m, seen[m])
			}
		}
	}
}

func TestMoveSelectorTTMoveFirst(t *testing.T) {
	pos := mustFEN(t, kiwipete)
	tm := pos.ParseUCIMove("a2a3")
	var ms MoveSelector
	ms.Init(pos, NewHistory(), 0, tm, false, false)
	if m := ms.Next(); m != tm {
		t.Fatalf("first move = %s, want table move a2a3", m)
	}
	for m := ms.Next(); m != board.NoMove; m = ms.Next() {
		if m == tm {
			t.Fatal("table move returned twice")
		}
	}
}

func TestMoveSelectorTacticalOnly(t *testing.T) {
	pos := mustFEN(t, kiwipete)
	var ms MoveSelector
	ms.Init(pos, NewHistory(), 0, board.NoMove, false, true)
	for m := ms.Next(); m != board.NoMove; m = ms.Next() {
		if !m.IsTactical() {
			t.Errorf("quiet move %s in tactical-only mode", m)
		}
		if ms.InBadTacticals() {
			t.Errorf("losing capture %s in tactical-only mode", m)
		}
	}
}

func TestHistoryGravity(t *testing.T) {
	pos := board.NewPosition()
	h := NewHistory()
	good := pos.ParseUCIMove("g1f3")
	bad := pos.ParseUCIMove("a2a3")

	for range 200 {
		h.Update(pos, []board.Move{bad, good}, good, 20)
	}
	hi, _, _ := h.Scores(pos, good)
	lo, _, _ := h.Scores(pos, bad)
	if limit := historyUp * historyDown; hi <= 0 || hi > limit {
		t.Errorf("rewarded score %d outside (0, %d]", hi, limit)
	}
	if limit := -historyUp * historyDown; lo >= 0 || lo < limit {
		t.Errorf("penalized score %d outside [%d, 0)", lo, limit)
	}
}

func TestKillerAndCounterMove(t *testing.T) {
	pos := board.NewPosition()
	h := NewHistory()
	m := pos.ParseUCIMove("e2e4")
	h.SetKiller(3, m)
	if h.Killer(3) != m || h.Killer(2) != board.NoMove {
		t.Error("killer not stored at its ply")
	}

	pos.MakeMove(m)
	reply := pos.ParseUCIMove("e7e5")
	h.SetCounterMove(pos, reply)
	if got := h.CounterMove(pos); got != reply {
		t.Errorf("counter move = %s, want e7e5", got)
	}
	h.ClearKillers()
	if h.Killer(3) != board.NoMove {
		t.Error("killer survived ClearKillers")
	}
}

func TestTimeManager(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		limited bool
		soft    time.Duration
		hard    time.Duration
	}{
		{"infinite", Options{Infinite: true, Time: [2]time.Duration{time.Minute, time.Minute}}, false, 0, 0},
		{"movetime", Options{MoveTime: 2 * time.Second}, true, 2 * time.Second, 2 * time.Second},
		{"no clock", Options{}, false, 0, 0},
		{
			"sudden death",
			Options{Time: [2]time.Duration{60 * time.Second, 60 * time.Second}},
			true, 2 * time.Second, 10 * time.Second,
		},
		{
			"moves to go with increment",
			Options{Time: [2]time.Duration{10 * time.Second}, Inc: [2]time.Duration{time.Second}, MovesToGo: 10},
			true, 2 * time.Second, 8 * time.Second,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := NewTimeManager()
			tm.Init(tt.opts, board.White, 0)
			if tm.Limited() != tt.limited {
				t.Errorf("limited = %v, want %v", tm.Limited(), tt.limited)
			}
			if tm.OptimumTime() != tt.soft || tm.MaximumTime() != tt.hard {
				t.Errorf("soft/hard = %v/%v, want %v/%v", tm.OptimumTime(), tm.MaximumTime(), tt.soft, tt.hard)
			}
		})
	}
}

func TestTimeManagerOverhead(t *testing.T) {
	tm := NewTimeManager()
	tm.Init(Options{Time: [2]time.Duration{0, 100 * time.Millisecond}, MovesToGo: 1}, board.Black, 80*time.Millisecond)
	if tm.OptimumTime() > 20*time.Millisecond {
		t.Errorf("soft limit %v ignores move overhead", tm.OptimumTime())
	}
	if !tm.CheckTime(1, 0, false) {
		t.Error("first ply must always be allowed")
	}
}

func TestParamsLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.json")
	if err := os.WriteFile(path, []byte(`{"null_move_reduction": 3, "delta_margin": 150}`), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadParams(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.NullMoveReduction != 3 || p.DeltaMargin != 150 {
		t.Errorf("loaded values not applied: %+v", p)
	}
	if p.SingularDepth != DefaultParams().SingularDepth {
		t.Error("missing field lost its default")
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"lmr_divisor": 0}`), 0o644)
	if _, err := LoadParams(bad); err == nil {
		t.Error("expected validation error for zero lmr_divisor")
	}

	out := filepath.Join(dir, "saved.json")
	if err := p.Save(out); err != nil {
		t.Fatal(err)
	}
	q, err := LoadParams(out)
	if err != nil {
		t.Fatal(err)
	}
	if *q != *p {
		t.Error("saved params differ after reload")
	}
}

func TestScoreToString(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, "0.00"},
		{-57, "-0.57"},
		{250, "2.50"},
		{MateScore - 1, "Mate in 1"},
		{MateScore - 4, "Mate in 2"},
		{-MateScore + 2, "Mated in 1"},
	}
	for _, tt := range tests {
		if got := ScoreToString(tt.score); got != tt.want {
			t.Errorf("ScoreToString(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestEvalCache(t *testing.T) {
	c := NewEvalCache()
	if _, ok := c.Probe(42); ok {
		t.Fatal("hit on empty cache")
	}
	c.Store(42, -17)
	if v, ok := c.Probe(42); !ok || v != -17 {
		t.Errorf("Probe = %d, %v", v, ok)
	}
	c.Store(42+evalCacheSize, 5)
	if _, ok := c.Probe(42); ok {
		t.Error("colliding key did not replace entry")
	}
}

func TestEngineEvaluateSymmetry(t *testing.T) {
	eng := newTestEngine()
	eng.SetUseNNUE(false)
	white := mustFEN(t, "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3")
	black := mustFEN(t, "rnbqkb1r/pppp1ppp/5n2/4p3/4P3/2N5/PPPP1PPP/R1BQKBNR b KQkq - 2 3")
	if a, b := eng.Evaluate(white), eng.Evaluate(black); a != b {
		t.Errorf("mirrored evaluations differ: %d vs %d", a, b)
	}
}
