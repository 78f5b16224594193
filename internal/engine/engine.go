// Package engine implements the search: a shared transposition table,
// per-worker move ordering and history, and Lazy SMP over alpha-beta
// workers.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/kestrel/internal/board"
	"github.com/hailam/kestrel/internal/eval"
	"github.com/hailam/kestrel/internal/nnue"
	"github.com/hailam/kestrel/internal/tablebase"
)

// currMoveDelay is how long a search runs before root moves are announced.
const currMoveDelay = 3 * time.Second

// Config holds the engine settings that outlive a single search.
type Config struct {
	HashMB  int // Transposition table size
	Threads int

	// UseNNUE selects the network when one is loaded.
	UseNNUE bool
	// HybridThreshold is the material imbalance, in centipawns, above
	// which the classical evaluation replaces the network.
	HybridThreshold int

	MoveOverhead time.Duration
	// TBProbeDepth is the minimum remaining depth for tablebase probes.
	TBProbeDepth int
}

// DefaultConfig returns the settings used by a fresh engine.
func DefaultConfig() Config {
	return Config{
		HashMB:          64,
		Threads:         1,
		UseNNUE:         true,
		HybridThreshold: 800,
		MoveOverhead:    50 * time.Millisecond,
		TBProbeDepth:    1,
	}
}

// Options limits a single search. Zero values mean no limit.
type Options struct {
	Time      [2]time.Duration // remaining clock time, indexed by color
	Inc       [2]time.Duration
	MovesToGo int
	MoveTime  time.Duration

	Depth int
	Nodes uint64

	MultiPV     int
	SearchMoves []board.Move // restrict the root to these moves
	Infinite    bool
	Ponder      bool // also find a move to ponder on
}

// Engine is the chess AI engine.
type Engine struct {
	mu sync.Mutex // held for the duration of a search

	cfg     Config
	params  *SearchParams
	lmr     *lmrTable
	tt      *TranspositionTable
	weights *eval.EvalWeights
	net     *nnue.Network
	prober  tablebase.Prober
	workers []*Worker
	tm      *TimeManager

	// Per-search state
	opts           Options
	maxDepth       int
	probeTB        bool
	stopFlag       atomic.Bool
	pondering      atomic.Bool
	completedDepth atomic.Int32
	iterMu         sync.Mutex
	completed      RootLine // deepest finished iteration, guarded by iterMu
	release        chan struct{}

	// Callbacks
	OnInfo func(SearchInfo)
}

// NewEngine creates a new chess engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	params := DefaultParams()
	e := &Engine{
		cfg:     cfg,
		params:  params,
		lmr:     newLMRTable(params),
		tt:      NewTranspositionTable(cfg.HashMB),
		weights: eval.DefaultWeights(),
		prober:  tablebase.NoopProber{},
		tm:      NewTimeManager(),
		release: make(chan struct{}, 1),
	}
	e.rebuildWorkers()
	return e
}

func (e *Engine) rebuildWorkers() {
	net := e.net
	if !e.cfg.UseNNUE {
		net = nil
	}
	e.workers = make([]*Worker, e.cfg.Threads)
	for i := range e.workers {
		e.workers[i] = NewWorker(i, e, e.weights, net)
	}
}

// Config returns the current settings.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetHashSize resizes and clears the transposition table.
func (e *Engine) SetHashSize(mb int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.HashMB = mb
	e.tt = NewTranspositionTable(mb)
}

// SetThreads sets the number of search workers.
func (e *Engine) SetThreads(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Threads = max(n, 1)
	e.rebuildWorkers()
}

// SetNetwork installs an NNUE network; nil removes it.
func (e *Engine) SetNetwork(net *nnue.Network) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.net = net
	e.rebuildWorkers()
}

// LoadNNUE loads a network file. On failure the previous evaluation stays
// in use.
func (e *Engine) LoadNNUE(path string) error {
	net, err := nnue.LoadFile(path)
	if err != nil {
		return fmt.Errorf("engine: load network: %w", err)
	}
	e.SetNetwork(net)
	log.Info().Str("path", path).Msg("network loaded")
	return nil
}

// HasNetwork reports whether a network is loaded and enabled.
func (e *Engine) HasNetwork() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net != nil && e.cfg.UseNNUE
}

// SetUseNNUE switches between the network and the classical evaluation.
func (e *Engine) SetUseNNUE(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.UseNNUE = on
	e.rebuildWorkers()
}

// SetHybridThreshold sets the imbalance above which the classical
// evaluation is used.
func (e *Engine) SetHybridThreshold(cp int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.HybridThreshold = cp
}

// SetMoveOverhead sets the time reserved for communication per move.
func (e *Engine) SetMoveOverhead(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.MoveOverhead = d
}

// SetWeights installs classical evaluation weights.
func (e *Engine) SetWeights(w *eval.EvalWeights) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights = w
	e.rebuildWorkers()
}

// SetParams installs search parameters.
func (e *Engine) SetParams(p *SearchParams) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p
	e.lmr = newLMRTable(p)
}

// Params returns the search parameters in use.
func (e *Engine) Params() *SearchParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetTablebase installs an endgame tablebase prober; nil disables probing.
func (e *Engine) SetTablebase(p tablebase.Prober) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p == nil {
		p = tablebase.NoopProber{}
	}
	e.prober = p
}

// SetTBProbeDepth sets the minimum remaining depth for tablebase probes.
func (e *Engine) SetTBProbeDepth(depth int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.TBProbeDepth = max(depth, 1)
}

// Clear clears the transposition table and other caches.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tt.Clear()
	for _, w := range e.workers {
		w.Clear()
	}
}

// Stop stops the current search.
func (e *Engine) Stop() {
	e.stopFlag.Store(true)
	e.wake()
}

// PonderHit turns a ponder search into a normal one; the clock starts now.
func (e *Engine) PonderHit() {
	if e.pondering.CompareAndSwap(true, false) {
		e.tm.Start()
		e.wake()
	}
}

func (e *Engine) wake() {
	select {
	case e.release <- struct{}{}:
	default:
	}
}

// waitForRelease holds the main worker after its last iteration while the
// search is infinite or pondering, so the result is not announced early.
func (e *Engine) waitForRelease() {
	for !e.stopFlag.Load() && (e.opts.Infinite || e.pondering.Load()) {
		<-e.release
	}
	e.stopFlag.Store(true)
}

// Result is the outcome of a search. Score is from the side to move's
// point of view.
type Result struct {
	Best   board.Move
	Ponder board.Move // set when Options.Ponder asked for one
	Score  int
	Nodes  uint64

	// Completed is the first line of the deepest iteration that finished
	// with an exact score. Its Depth is zero when none did.
	Completed RootLine
}

// Go starts a search of pos and returns a channel that receives its result.
// Setup happens before Go returns, so Stop and PonderHit apply to this
// search from then on. The search ends at its limits, on Stop or when ctx
// is cancelled, and always yields a legal move if one exists.
func (e *Engine) Go(ctx context.Context, pos *board.Position, opts Options, pondering bool) <-chan Result {
	result := make(chan Result, 1)
	e.mu.Lock()

	e.stopFlag.Store(false)
	e.pondering.Store(pondering)
	for len(e.release) > 0 {
		<-e.release
	}

	legal := e.rootMoves(pos, opts.SearchMoves)
	if len(legal) == 0 {
		e.mu.Unlock()
		if pos.InCheck() {
			result <- Result{Score: -MateScore}
		} else {
			result <- Result{}
		}
		return result
	}

	e.opts = opts
	e.maxDepth = MaxPly - 1
	if opts.Depth > 0 {
		e.maxDepth = min(opts.Depth, MaxPly-1)
	}
	e.probeTB = e.prober.Available()
	e.completedDepth.Store(0)
	e.completed = RootLine{}
	e.tt.NewSearch()
	e.tm.Init(opts, pos.SideToMove, e.cfg.MoveOverhead)

	multiPV := max(1, min(opts.MultiPV, len(legal)))
	for _, w := range e.workers {
		w.prepare(pos, multiPV)
	}
	stop := context.AfterFunc(ctx, e.Stop)

	log.Debug().
		Int("threads", len(e.workers)).
		Int("depth", e.maxDepth).
		Dur("soft", e.tm.OptimumTime()).
		Dur("hard", e.tm.MaximumTime()).
		Msg("search started")

	go func() {
		defer e.mu.Unlock()
		defer stop()

		var g errgroup.Group
		for _, w := range e.workers {
			g.Go(func() error {
				w.run()
				return nil
			})
		}
		g.Wait()

		line := e.bestLine()
		r := Result{Best: line.Move, Score: line.Score}
		if r.Best == board.NoMove {
			r = Result{Best: legal[0]}
		}
		r.Nodes = e.totalNodes()
		e.iterMu.Lock()
		r.Completed = e.completed
		e.iterMu.Unlock()
		if opts.Ponder {
			r.Ponder = e.ponderMove(pos, line)
		}

		log.Debug().
			Str("best", r.Best.String()).
			Int("score", r.Score).
			Uint64("nodes", e.totalNodes()).
			Dur("elapsed", e.tm.Elapsed()).
			Msg("search finished")
		result <- r
	}()
	return result
}

// SearchPosition runs a search to completion and returns the best move, a
// move to ponder on (when requested) and the score.
func (e *Engine) SearchPosition(ctx context.Context, pos *board.Position, opts Options, pondering bool) (best, ponder board.Move, score int) {
	r := <-e.Go(ctx, pos, opts, pondering)
	return r.Best, r.Ponder, r.Score
}

// rootMoves returns the legal moves at the root, restricted to filter when
// it is not empty.
func (e *Engine) rootMoves(pos *board.Position, filter []board.Move) []board.Move {
	var out []board.Move
	for _, m := range pos.GenerateLegalMoves().Slice() {
		if len(filter) == 0 || containsMove(filter, m) {
			out = append(out, m)
		}
	}
	return out
}

func containsMove(moves []board.Move, m board.Move) bool {
	for _, x := range moves {
		if x == m {
			return true
		}
	}
	return false
}

// bestLine prefers the main worker's first line and falls back to any
// helper that has one.
func (e *Engine) bestLine() RootLine {
	for _, w := range e.workers {
		if len(w.lines) > 0 && w.lines[0].Move != board.NoMove {
			return w.lines[0]
		}
	}
	return RootLine{}
}

// ponderMove returns the second move of the line, or the table move of the
// position after the best move.
func (e *Engine) ponderMove(pos *board.Position, line RootLine) board.Move {
	if len(line.PV) >= 2 {
		return line.PV[1]
	}
	if line.Move == board.NoMove {
		return board.NoMove
	}
	p := pos.Copy()
	if !p.MakeMove(line.Move) {
		return board.NoMove
	}
	te, ok := e.tt.Probe(p.Hash, 0)
	if !ok || te.Move == board.NoMove || !p.IsPseudoLegal(te.Move) {
		return board.NoMove
	}
	if !p.MakeMove(te.Move) {
		return board.NoMove
	}
	return te.Move
}

// completeIteration records a finished iteration and returns the depth the
// worker should search next. Helpers skip depths that half of the workers
// are already searching.
func (e *Engine) completeIteration(w *Worker) int {
	e.iterMu.Lock()
	defer e.iterMu.Unlock()

	depth := int(w.depth.Load())
	if depth > int(e.completedDepth.Load()) && len(w.lines[0].PV) > 0 {
		e.completedDepth.Store(int32(depth))
		e.completed = w.lines[0]
		e.completed.Depth = depth
	}
	if w.id == 0 {
		return depth + 1
	}

	n := len(e.workers)
	next := depth + 1
	for ; ; next++ {
		count := 0
		for _, o := range e.workers {
			if int(o.depth.Load()) >= next {
				count++
			}
		}
		if (count+1)/2 < n/2 || n == 1 {
			return next
		}
	}
}

func (e *Engine) totalNodes() uint64 {
	var n uint64
	for _, w := range e.workers {
		n += w.nodes.Load()
	}
	return n
}

func (e *Engine) totalTBHits() uint64 {
	var n uint64
	for _, w := range e.workers {
		n += w.tbHits.Load()
	}
	return n
}

func (e *Engine) info(w *Worker) SearchInfo {
	return SearchInfo{
		Depth:    int(w.depth.Load()),
		SelDepth: w.seldepth,
		MultiPV:  1,
		Nodes:    e.totalNodes(),
		TBHits:   e.totalTBHits(),
		Time:     e.tm.Elapsed(),
		HashFull: e.tt.HashFull(),
	}
}

func (e *Engine) reportLine(w *Worker, line RootLine, bound Bound) {
	if e.OnInfo == nil {
		return
	}
	si := e.info(w)
	si.Depth, si.SelDepth = line.Depth, line.SelDepth
	si.Score, si.Bound, si.PV = line.Score, bound, line.PV
	e.OnInfo(si)
}

// reportBound announces an aspiration failure at the root.
func (e *Engine) reportBound(w *Worker, score int, bound Bound) {
	if e.OnInfo == nil {
		return
	}
	line := w.lines[w.pvIdx]
	line.Score = score
	line.Depth = int(w.depth.Load())
	line.SelDepth = w.seldepth
	e.reportLine(w, line, bound)
}

// reportLines announces every MultiPV line after an iteration.
func (e *Engine) reportLines(w *Worker) {
	if e.OnInfo == nil {
		return
	}
	for i, line := range w.lines {
		if line.Move == board.NoMove {
			continue
		}
		si := e.info(w)
		si.Depth, si.SelDepth = line.Depth, line.SelDepth
		si.MultiPV = i + 1
		si.Score, si.PV = line.Score, line.PV
		e.OnInfo(si)
	}
}

func (e *Engine) reportCurrMove(w *Worker, m board.Move, n int) {
	if e.OnInfo == nil || e.tm.Elapsed() < currMoveDelay {
		return
	}
	si := e.info(w)
	si.CurrMove, si.CurrMoveNumber = m, n
	e.OnInfo(si)
}

// Evaluate returns the static evaluation of a position from the side to
// move's point of view, as the search would see it.
func (e *Engine) Evaluate(pos *board.Position) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.workers[0]
	w.pos = pos.Copy()
	if w.net != nil {
		w.net.Reset()
	}
	return w.evaluate()
}

// Perft counts the leaf nodes of the legal move tree.
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	return pos.Copy().Perft(depth)
}

// DefaultThreads suggests a worker count for the machine.
func DefaultThreads() int {
	return max(1, runtime.NumCPU()/2)
}
