package engine

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/hailam/kestrel/internal/board"
	"github.com/hailam/kestrel/internal/eval"
	"github.com/hailam/kestrel/internal/nnue"
	"github.com/hailam/kestrel/internal/tablebase"
)

// RootLine is the best line a worker has found for one MultiPV slot.
type RootLine struct {
	Move     board.Move
	PV       []board.Move
	Score    int
	Depth    int
	SelDepth int
}

// Worker represents a search worker for parallel Lazy SMP search.
// Each worker owns its position, evaluators and history; only the
// transposition table is shared.
type Worker struct {
	id  int
	eng *Engine

	pos       *board.Position
	hist      *History
	corr      *CorrectionHistory
	classical *eval.Evaluator
	net       *nnue.Evaluator // nil when the network is not used
	cache     *EvalCache

	pv        PVTable
	evalStack [MaxPly + 1]int

	nodes  atomic.Uint64
	polled uint64 // nodes at the last checkup
	tbHits atomic.Uint64
	depth  atomic.Int32

	seldepth      int
	resolvingFail bool

	multiPV int
	pvIdx   int
	lines   []RootLine
}

// NewWorker creates a new search worker.
func NewWorker(id int, eng *Engine, weights *eval.EvalWeights, net *nnue.Network) *Worker {
	w := &Worker{
		id:        id,
		eng:       eng,
		hist:      NewHistory(),
		corr:      NewCorrectionHistory(),
		classical: eval.NewEvaluator(weights),
		cache:     NewEvalCache(),
	}
	if net != nil {
		w.net = nnue.NewEvaluator(net)
	}
	return w
}

// ID returns the worker's ID.
func (w *Worker) ID() int {
	return w.id
}

// Nodes returns the number of nodes searched by this worker.
func (w *Worker) Nodes() uint64 {
	return w.nodes.Load()
}

// Clear forgets everything learned in earlier games.
func (w *Worker) Clear() {
	w.hist.Clear()
	w.corr.Clear()
	w.classical.Clear()
	w.cache.Clear()
}

// prepare readies the worker for a search from pos.
func (w *Worker) prepare(pos *board.Position, multiPV int) {
	w.pos = pos.Copy()
	if w.net != nil {
		w.net.Reset()
	}
	w.hist.ClearKillers()
	w.nodes.Store(0)
	w.polled = 0
	w.tbHits.Store(0)
	w.depth.Store(0)
	w.seldepth = 0
	w.resolvingFail = false
	w.multiPV = multiPV
	w.pvIdx = 0
	w.lines = make([]RootLine, multiPV)
}

// run is the iterative deepening loop of one worker.
func (w *Worker) run() {
	e := w.eng
	depth := min(1+w.id%2, e.maxDepth)
	logger := log.With().Int("worker", w.id).Logger()
	logger.Debug().Int("depth", depth).Msg("worker started")

	for {
		if !w.iteration(depth) {
			break
		}
		depth = e.completeIteration(w)
		logger.Debug().
			Int("depth", int(w.depth.Load())).
			Int("score", w.lines[0].Score).
			Uint64("nodes", w.Nodes()).
			Msg("iteration complete")

		if depth > e.maxDepth {
			break
		}
		if w.id != 0 {
			continue
		}
		if !e.tm.NewIteration(int(w.depth.Load()), e.pondering.Load()) {
			e.stopFlag.Store(true)
			break
		}
	}

	if w.id == 0 {
		e.waitForRelease()
	}
	logger.Debug().Uint64("nodes", w.Nodes()).Msg("worker stopped")
}

// iteration searches every MultiPV slot at depth. It returns false when
// the search was aborted.
func (w *Worker) iteration(depth int) (completed bool) {
	defer func() {
		if r := recover(); r != nil {
			if r != errSearchAborted {
				panic(r)
			}
			completed = false
		}
	}()

	for w.pvIdx = 0; w.pvIdx < w.multiPV; w.pvIdx++ {
		w.aspiration(depth, w.lines[w.pvIdx].Score)
	}
	if w.id == 0 && w.multiPV > 1 {
		w.eng.reportLines(w)
	}
	return true
}

// aspiration searches the root with a window around the previous score,
// widening the failing side until the score lands inside.
func (w *Worker) aspiration(depth, prev int) {
	p := w.eng.params
	windows := p.AspirationWindows
	lo, hi := 0, 0
	alpha, beta := -Infinity, Infinity
	if depth > p.AspirationDepth {
		alpha = prev - windows[0]
		beta = prev + windows[0]
	}

	for {
		w.depth.Store(int32(depth))
		w.seldepth = 0
		alpha = max(alpha, -Infinity)
		beta = min(beta, Infinity)
		score := w.searchRoot(depth, alpha, beta)

		switch {
		case score <= alpha && alpha > -Infinity:
			lo = min(lo+1, len(windows)-1)
			alpha = score - windows[lo]
			w.resolvingFail = true
			if w.id == 0 && w.multiPV == 1 {
				w.eng.reportBound(w, score, BoundUpper)
			}
		case score >= beta && beta < Infinity:
			hi = min(hi+1, len(windows)-1)
			beta = score + windows[hi]
			if w.id == 0 && w.multiPV == 1 {
				w.eng.reportBound(w, score, BoundLower)
			}
		default:
			if w.resolvingFail && w.id == 0 && w.multiPV == 1 {
				w.eng.reportLine(w, w.lines[0], BoundExact)
			}
			w.resolvingFail = false
			return
		}
	}
}

// checkupInterval is the number of nodes between checks for a stop.
const checkupInterval = 1024

// checkup aborts the search when it has been stopped. Worker 0 also
// enforces the node and time limits.
func (w *Worker) checkup() {
	nodes := w.nodes.Load()
	if nodes-w.polled < checkupInterval {
		return
	}
	w.polled = nodes

	e := w.eng
	if e.stopFlag.Load() {
		panic(errSearchAborted)
	}
	if w.id != 0 {
		return
	}
	if e.opts.Nodes > 0 && e.totalNodes() >= e.opts.Nodes {
		e.stopFlag.Store(true)
		panic(errSearchAborted)
	}
	if !e.pondering.Load() &&
		!e.tm.CheckTime(int(w.depth.Load()), int(e.completedDepth.Load()), w.resolvingFail) {
		e.stopFlag.Store(true)
		panic(errSearchAborted)
	}
}

func (w *Worker) makeMove(m board.Move) bool {
	if !w.pos.MakeMove(m) {
		return false
	}
	if w.net != nil {
		w.net.Push(w.pos)
	}
	w.nodes.Add(1)
	return true
}

func (w *Worker) unmakeMove() {
	w.pos.UnmakeMove()
	if w.net != nil {
		w.net.Pop()
	}
}

func (w *Worker) makeNullMove() {
	w.pos.MakeNullMove()
	if w.net != nil {
		w.net.PushNull()
	}
	w.nodes.Add(1)
}

func (w *Worker) unmakeNullMove() {
	w.pos.UnmakeNullMove()
	if w.net != nil {
		w.net.Pop()
	}
}

// evaluate returns the uncorrected static evaluation. The network is used
// unless the material imbalance exceeds the hybrid threshold.
func (w *Worker) evaluate() int {
	if w.net == nil || abs(w.classical.Material(w.pos)) > w.eng.cfg.HybridThreshold {
		return w.classical.Evaluate(w.pos)
	}
	if s, ok := w.cache.Probe(w.pos.Hash); ok {
		return s
	}
	s := w.net.Evaluate(w.pos)
	w.cache.Store(w.pos.Hash, s)
	return s
}

func (w *Worker) isDraw() bool {
	return w.pos.HalfMoveClock >= 100 || w.pos.IsRepetition() || w.pos.IsInsufficientMaterial()
}

// probeWDL looks the position up in the endgame tablebase. It reports a
// cutoff for draws and for results outside the window.
func (w *Worker) probeWDL(ply, alpha, beta int) (int, bool) {
	r := w.eng.prober.Probe(w.pos)
	if !r.Found {
		return 0, false
	}
	w.tbHits.Add(1)
	switch r.WDL {
	case tablebase.WDLWin:
		score := TBWin - ply
		return score, score >= beta
	case tablebase.WDLLoss:
		score := -TBWin + ply
		return score, score <= alpha
	}
	return 0, true
}

func (w *Worker) canProbeTB(depth, ply int) bool {
	e := w.eng
	return e.probeTB && ply > 0 && depth >= e.cfg.TBProbeDepth && tablebase.Probeable(e.prober, w.pos)
}

func ttCutoff(te TTEntry, depth, alpha, beta int) bool {
	if te.Depth < depth {
		return false
	}
	switch te.Flag {
	case TTExact:
		return true
	case TTUpperBound:
		return te.Score <= alpha
	case TTLowerBound:
		return te.Score >= beta
	}
	return false
}

// isRecapture reports a capture on the square of the previous capture that
// takes back a piece of the same class.
func (w *Worker) isRecapture(m board.Move) bool {
	prev, ok := w.pos.History(1)
	if !ok || !prev.Move.IsCapture() || !m.IsCapture() || m.IsEnPassant() || prev.Move.To() != m.To() {
		return false
	}
	victim := w.pos.Board[m.To()].Type()
	switch prev.Captured.Type() {
	case board.Knight, board.Bishop:
		return victim == board.Knight || victim == board.Bishop
	case board.NoPieceType:
		return false
	}
	return victim == prev.Captured.Type()
}

// materialGain is the material won by a tactical move if it is not answered.
func (w *Worker) materialGain(m board.Move) int {
	gain := 0
	switch {
	case m.IsEnPassant():
		gain = board.SeeValue[board.Pawn]
	case m.IsCapture():
		gain = board.SeeValue[w.pos.Board[m.To()].Type()]
	}
	if m.IsPromotion() {
		gain += board.SeeValue[m.Promotion()] - board.SeeValue[board.Pawn]
	}
	return gain
}

// isAdvancedPawnPush reports pawn moves reaching the sixth rank or beyond.
func (w *Worker) isAdvancedPawnPush(m board.Move) bool {
	pc := w.pos.Board[m.From()]
	return pc.Type() == board.Pawn && m.To().RelativeRank(pc.Color()) >= 5
}

func (w *Worker) isRootExcluded(m board.Move) bool {
	for i := 0; i < w.pvIdx; i++ {
		if w.lines[i].Move == m {
			return true
		}
	}
	if moves := w.eng.opts.SearchMoves; len(moves) > 0 {
		for _, sm := range moves {
			if sm == m {
				return false
			}
		}
		return true
	}
	return false
}

// rootRestricted reports whether some legal root moves are left out of
// the current root search.
func (w *Worker) rootRestricted() bool {
	return w.pvIdx > 0 || len(w.eng.opts.SearchMoves) > 0
}

// searchRoot searches the root moves with a full window each and records
// the best line for the current MultiPV slot.
func (w *Worker) searchRoot(depth, alpha, beta int) int {
	w.checkup()
	w.pv.clear(0)

	ttMove := board.NoMove
	if te, ok := w.eng.tt.Probe(w.pos.Hash, 0); ok {
		ttMove = te.Move
	}
	inCheck := w.pos.InCheck()
	rawEval := w.evaluate()
	w.evalStack[0] = w.corr.Apply(w.pos, rawEval)

	var quiets []board.Move
	flag := TTUpperBound
	bestScore := -Infinity
	bestMove := ttMove
	moveNumber := 0

	var ms MoveSelector
	ms.Init(w.pos, w.hist, 0, ttMove, inCheck, false)
	for m := ms.Next(); m != board.NoMove; m = ms.Next() {
		if w.isRootExcluded(m) {
			continue
		}
		if !m.IsTactical() {
			quiets = append(quiets, m)
		}
		if !w.makeMove(m) {
			continue
		}
		moveNumber++
		if w.id == 0 {
			w.eng.reportCurrMove(w, m, moveNumber)
		}

		newDepth := depth
		if w.pos.InCheck() {
			newDepth++
		}
		score := -w.search(newDepth-1, 1, -beta, -alpha, true, board.NoMove)
		w.unmakeMove()

		if score <= bestScore {
			continue
		}
		bestScore = score
		bestMove = m
		if score <= alpha {
			continue
		}
		if score >= beta {
			if !m.IsTactical() || !w.pos.SeeGE(m, 0) {
				w.hist.SetKiller(0, m)
			}
			flag = TTLowerBound
			break
		}

		flag = TTExact
		alpha = score
		w.pv.update(0, m)
		w.lines[w.pvIdx] = RootLine{
			Move:     m,
			PV:       w.pv.line(0),
			Score:    score,
			Depth:    depth,
			SelDepth: w.seldepth,
		}
		if w.id == 0 && w.multiPV == 1 && !w.resolvingFail {
			w.eng.reportLine(w, w.lines[0], BoundExact)
		}
	}

	if flag == TTLowerBound && !bestMove.IsTactical() {
		w.hist.Update(w.pos, quiets, bestMove, depth)
	}
	// A bound over a subset of the root moves does not hold for the position.
	if !w.rootRestricted() {
		w.eng.tt.Store(w.pos.Hash, 0, bestMove, depth, bestScore, flag, rawEval)
	}
	return bestScore
}

// search is the principal variation search below the root.
func (w *Worker) search(depth, ply, alpha, beta int, tryNull bool, exclude board.Move) int {
	e := w.eng
	p := e.params
	pvNode := beta-alpha > 1

	if depth <= 0 || ply >= MaxPly-1 {
		return w.quiescence(ply, alpha, beta)
	}

	w.checkup()
	w.seldepth = max(w.seldepth, ply)
	w.pv.clear(ply)

	if w.isDraw() {
		return 0
	}

	// Transposition table
	ttMove := board.NoMove
	te, ttHit := e.tt.Probe(w.pos.Hash, ply)
	if ttHit {
		ttMove = te.Move
		if !pvNode && ttMove != exclude && ttCutoff(te, depth, alpha, beta) {
			return te.Score
		}
	}

	// Endgame tablebases
	if w.canProbeTB(depth, ply) {
		if score, cut := w.probeWDL(ply, alpha, beta); cut {
			return score
		}
	}

	var rawEval int
	if ttHit {
		rawEval = te.Eval
	} else {
		rawEval = w.evaluate()
	}
	staticEval := w.corr.Apply(w.pos, rawEval)
	w.evalStack[ply] = staticEval
	improving := ply >= 2 && staticEval > w.evalStack[ply-2]

	us := w.pos.SideToMove
	inCheck := w.pos.InCheck()
	hasPieces := w.pos.HasNonPawnMaterial(us)
	futilityDepth := len(p.FutilityMargins) - 1

	// Reverse futility pruning
	if depth <= futilityDepth && !inCheck && !pvNode && hasPieces &&
		staticEval-p.FutilityMargins[depth] >= beta {
		return staticEval
	}

	// Razoring
	if !inCheck && !pvNode && ttMove == board.NoMove &&
		depth < len(p.RazoringMargins) && staticEval+p.RazoringMargins[depth] <= alpha {
		if depth == 1 {
			return w.quiescence(ply, alpha, beta)
		}
		threshold := alpha - p.RazoringMargins[depth]
		if score := w.quiescence(ply, threshold, threshold+1); score <= threshold {
			return score
		}
	}

	// Null move pruning
	if tryNull && !inCheck && depth > p.NullMoveDepth && hasPieces {
		r := p.NullMoveReduction + depth/p.NullMoveDivisor
		w.makeNullMove()
		score := -w.search(depth-r-1, ply+1, -beta, -beta+1, false, board.NoMove)
		w.unmakeNullMove()
		if score >= beta {
			if score < KnownWin {
				return score
			}
			return beta
		}
	}

	// ProbCut
	if !pvNode && !inCheck && depth >= p.ProbCutDepth && hasPieces {
		threshold := beta + p.ProbCutMargin
		var ms MoveSelector
		ms.Init(w.pos, w.hist, ply, ttMove, false, true)
		for m := ms.Next(); m != board.NoMove; m = ms.Next() {
			if !m.IsCapture() || m == exclude || !w.pos.SeeGE(m, threshold-staticEval) {
				continue
			}
			if !w.makeMove(m) {
				continue
			}
			score := -w.search(depth-p.ProbCutDepth+1, ply+1, -threshold, -threshold+1, true, board.NoMove)
			w.unmakeMove()
			if score >= threshold {
				return score
			}
		}
	}

	// Singular move detection
	singular := false
	if depth >= p.SingularDepth && exclude == board.NoMove && ttMove != board.NoMove &&
		te.Flag == TTLowerBound && te.Depth >= depth-3 && abs(beta) < KnownWin &&
		w.pos.IsPseudoLegal(ttMove) {
		threshold := te.Score - 2*depth
		singular = w.search(depth/2, ply, threshold-1, threshold, true, ttMove) < threshold
	}

	futility := depth <= futilityDepth && staticEval+p.FutilityMargins[depth] <= alpha
	seeMargins := [2]int{p.SEEQuietMargin * depth, p.SEETacticalMargin * depth * depth}
	lmpDepth := len(p.LMPCounts) - 1
	histDepth := len(p.CounterHistoryMargins) - 1

	var quiets []board.Move
	bestScore := -Infinity
	bestMove := board.NoMove
	flag := TTUpperBound
	moveNumber := 0
	found := false

	var ms MoveSelector
	ms.Init(w.pos, w.hist, ply, ttMove, inCheck, false)
	for m := ms.Next(); m != board.NoMove; m = ms.Next() {
		if m == exclude {
			continue
		}

		givesCheck := w.pos.GivesCheck(m)
		tactical := m.IsTactical() || inCheck || givesCheck
		hist, chist, fhist := w.hist.Scores(w.pos, m)
		if !m.IsTactical() {
			quiets = append(quiets, m)
		}

		if bestScore > -KnownWin {
			if futility && !tactical {
				continue
			}
			if !pvNode && depth <= lmpDepth && moveNumber > p.LMPCounts[depth] &&
				abs(alpha) < KnownWin && !tactical {
				continue
			}
			t := 0
			if tactical {
				t = 1
			}
			if depth < p.SEEPruneDepth && !w.pos.SeeGE(m, seeMargins[t]) {
				continue
			}
			if !tactical && depth <= histDepth &&
				(chist < p.CounterHistoryMargins[depth] || fhist < p.FollowupHistoryMargins[depth]) {
				continue
			}
		}

		// Extensions
		newDepth := depth
		extended := true
		switch {
		case m == ttMove && singular:
		case givesCheck && w.pos.SeeGE(m, 0):
		case ply >= 1 && pvNode && !givesCheck && w.isRecapture(m) && w.pos.SeeGE(m, 0):
		default:
			extended = false
		}
		if extended {
			newDepth++
		}

		if !w.makeMove(m) {
			continue
		}
		moveNumber++
		found = true

		reduction := 0
		if !tactical && !extended && newDepth > 2 && moveNumber > 1 {
			reduction = e.lmr[min(newDepth, 63)][min(moveNumber, 63)]
			reduction -= max(-2, min((hist+chist+fhist)/p.LMRHistoryDivisor, 2))
			if !pvNode && !improving {
				reduction++
			}
		}
		reduction = max(0, min(reduction, newDepth-1))

		var score int
		if bestScore == -Infinity {
			score = -w.search(newDepth-1, ply+1, -beta, -alpha, true, board.NoMove)
		} else {
			score = -w.search(newDepth-reduction-1, ply+1, -alpha-1, -alpha, true, board.NoMove)
			if score > alpha && reduction > 0 {
				score = -w.search(newDepth-1, ply+1, -alpha-1, -alpha, true, board.NoMove)
			}
			if pvNode && score > alpha {
				score = -w.search(newDepth-1, ply+1, -beta, -alpha, true, board.NoMove)
			}
		}
		w.unmakeMove()

		if score <= bestScore {
			continue
		}
		bestScore = score
		bestMove = m
		if score <= alpha {
			continue
		}
		if score >= beta {
			if !m.IsTactical() || !w.pos.SeeGE(m, 0) {
				w.hist.SetKiller(ply, m)
				w.hist.SetCounterMove(w.pos, m)
			}
			flag = TTLowerBound
			break
		}
		flag = TTExact
		alpha = score
		w.pv.update(ply, m)
	}

	if flag == TTLowerBound && !bestMove.IsTactical() {
		w.hist.Update(w.pos, quiets, bestMove, depth)
	}

	if !found {
		flag = TTExact
		bestScore = 0
		if inCheck {
			bestScore = -MateScore + ply
		}
	}

	if exclude == board.NoMove {
		if !inCheck && !bestMove.IsTactical() && !isMateScore(bestScore) &&
			(flag == TTExact ||
				(flag == TTLowerBound && bestScore > staticEval) ||
				(flag == TTUpperBound && bestScore < staticEval)) {
			w.corr.Update(w.pos, bestScore, rawEval, depth)
		}
		e.tt.Store(w.pos.Hash, ply, bestMove, depth, bestScore, flag, rawEval)
	}
	return bestScore
}

// quiescence resolves captures and promotions, and every evasion when in
// check, until the position is quiet.
func (w *Worker) quiescence(ply, alpha, beta int) int {
	w.seldepth = max(w.seldepth, ply)
	w.checkup()
	w.pv.clear(ply)

	if w.isDraw() {
		return 0
	}

	staticEval := w.corr.Apply(w.pos, w.evaluate())
	if ply >= MaxPly-1 {
		return staticEval
	}

	inCheck := w.pos.InCheck()
	bestScore := -Infinity
	if !inCheck {
		bestScore = staticEval
		if staticEval >= beta {
			return staticEval
		}
		alpha = max(alpha, staticEval)
	}

	ttMove := board.NoMove
	if te, ok := w.eng.tt.Probe(w.pos.Hash, ply); ok {
		if ttCutoff(te, 0, alpha, beta) {
			return te.Score
		}
		ttMove = te.Move
	}

	them := w.pos.SideToMove.Other()
	deltaMargin := w.eng.params.DeltaMargin
	found := false

	var ms MoveSelector
	ms.Init(w.pos, w.hist, ply, ttMove, inCheck, true)
	for m := ms.Next(); m != board.NoMove; m = ms.Next() {
		if !inCheck && w.pos.HasNonPawnMaterial(them) && !w.isAdvancedPawnPush(m) &&
			!w.pos.GivesCheck(m) && staticEval+w.materialGain(m)+deltaMargin < alpha {
			continue
		}
		if !w.makeMove(m) {
			continue
		}
		found = true
		score := -w.quiescence(ply+1, -beta, -alpha)
		w.unmakeMove()

		if score > bestScore {
			bestScore = score
			if score > alpha {
				if score >= beta {
					break
				}
				alpha = score
				w.pv.update(ply, m)
			}
		}
	}

	if inCheck && !found {
		return -MateScore + ply
	}
	return bestScore
}
