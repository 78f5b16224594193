// Package uci implements the Universal Chess Interface front end of the
// engine.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/kestrel/internal/board"
	"github.com/hailam/kestrel/internal/book"
	"github.com/hailam/kestrel/internal/engine"
	"github.com/hailam/kestrel/internal/storage"
	"github.com/hailam/kestrel/internal/tablebase"
)

const (
	engineName   = "Kestrel"
	engineAuthor = "the Kestrel developers"
)

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	engine   *engine.Engine
	store    *storage.Storage // nil without a database
	paths    storage.Paths
	book     *book.Book
	tb       tablebase.Prober
	position *board.Position

	outMu sync.Mutex
	out   io.Writer

	options []*option
	values  map[string]string

	multiPV  int
	ponder   bool
	chess960 bool
	ownBook  bool
	learning bool

	// Search state
	searchDone chan struct{} // nil when idle
	cancel     context.CancelFunc

	logger zerolog.Logger
}

// New creates a UCI handler that writes protocol output to out.
func New(eng *engine.Engine, out io.Writer) *UCI {
	u := &UCI{
		engine:   eng,
		position: board.NewPosition(),
		out:      out,
		options:  options(),
		values:   map[string]string{},
		multiPV:  1,
		logger:   log.With().Str("component", "uci").Logger(),
	}
	eng.OnInfo = u.sendInfo
	return u
}

// SetPaths sets where bare EvalFile and BookFile names are looked up.
func (u *UCI) SetPaths(p storage.Paths) {
	u.paths = p
}

// SetStorage attaches a database and restores the options saved in it.
func (u *UCI) SetStorage(s *storage.Storage) error {
	u.store = s
	saved, err := s.LoadOptions()
	if err != nil {
		return fmt.Errorf("uci: load options: %w", err)
	}
	for name, value := range saved {
		if err := u.setOption(name, value, false); err != nil {
			u.logger.Warn().Err(err).Str("option", name).Msg("ignoring saved option")
		}
	}
	return nil
}

func (u *UCI) send(format string, args ...any) {
	u.outMu.Lock()
	defer u.outMu.Unlock()
	fmt.Fprintf(u.out, format+"\n", args...)
}

// Run reads commands from in until quit or end of input. At end of input
// a running search is allowed to finish.
func (u *UCI) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if !u.handle(fields[0], fields[1:]) {
			u.handleStop()
			return nil
		}
	}
	u.wait()
	return scanner.Err()
}

// handle executes one command and reports whether the loop goes on.
func (u *UCI) handle(cmd string, args []string) bool {
	u.logger.Debug().Str("cmd", cmd).Strs("args", args).Msg("command")
	switch cmd {
	case "uci":
		u.handleUCI()
	case "isready":
		u.send("readyok")
	case "ucinewgame":
		u.handleNewGame()
	case "setoption":
		u.handleSetOption(args)
	case "position":
		u.handlePosition(args)
	case "go":
		u.handleGo(args)
	case "stop":
		u.handleStop()
	case "ponderhit":
		u.engine.PonderHit()
	case "quit":
		return false
	// Debug commands
	case "d":
		u.display()
	case "perft":
		u.handlePerft(args)
	case "eval":
		u.handleEval()
	default:
		u.logger.Warn().Str("cmd", cmd).Msg("unknown command")
	}
	return true
}

// handleUCI responds to the "uci" command.
func (u *UCI) handleUCI() {
	u.send("id name %s", engineName)
	u.send("id author %s", engineAuthor)
	u.send("")
	for _, o := range u.options {
		u.send("%s", o.declaration())
	}
	u.send("uciok")
}

// handleNewGame resets the engine for a new game.
func (u *UCI) handleNewGame() {
	u.wait()
	u.engine.Clear()
	u.position = board.NewPosition()
	u.position.Chess960 = u.chess960
}

// handleSetOption processes "setoption name <name> [value <value>]".
func (u *UCI) handleSetOption(args []string) {
	var name, value []string
	target := &name
	for _, arg := range args {
		switch arg {
		case "name":
			target = &name
		case "value":
			target = &value
		default:
			*target = append(*target, arg)
		}
	}
	u.wait()
	if err := u.setOption(strings.Join(name, " "), strings.Join(value, " "), true); err != nil {
		u.send("info string %v", err)
	}
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos [moves e2e4 e7e5 ...]
//   - position fen <fen> [moves ...]
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}
	movesAt := len(args)
	for i, arg := range args {
		if arg == "moves" {
			movesAt = i
			break
		}
	}

	var pos *board.Position
	switch args[0] {
	case "startpos":
		pos = board.NewPosition()
	case "fen":
		p, err := board.ParseFEN(strings.Join(args[1:movesAt], " "))
		if err != nil {
			u.send("info string invalid fen: %v", err)
			return
		}
		pos = p
	default:
		return
	}
	pos.Chess960 = pos.Chess960 || u.chess960

	if movesAt < len(args) {
		for _, s := range args[movesAt+1:] {
			m := pos.ParseUCIMove(s)
			if m == board.NoMove || !pos.MakeMove(m) {
				u.send("info string illegal move %s", s)
				break
			}
		}
	}
	u.wait()
	u.position = pos
}

// parseGo converts the arguments of "go" into search options. It reports
// whether the search starts in ponder mode.
func (u *UCI) parseGo(args []string) (opts engine.Options, ponder bool) {
	ms := func(i int) time.Duration {
		if i >= len(args) {
			return 0
		}
		n, _ := strconv.Atoi(args[i])
		return time.Duration(n) * time.Millisecond
	}
	num := func(i int) int {
		if i >= len(args) {
			return 0
		}
		n, _ := strconv.Atoi(args[i])
		return n
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "wtime":
			i++
			opts.Time[board.White] = ms(i)
		case "btime":
			i++
			opts.Time[board.Black] = ms(i)
		case "winc":
			i++
			opts.Inc[board.White] = ms(i)
		case "binc":
			i++
			opts.Inc[board.Black] = ms(i)
		case "movestogo":
			i++
			opts.MovesToGo = num(i)
		case "movetime":
			i++
			opts.MoveTime = ms(i)
		case "depth":
			i++
			opts.Depth = num(i)
		case "nodes":
			i++
			if i < len(args) {
				opts.Nodes, _ = strconv.ParseUint(args[i], 10, 64)
			}
		case "infinite":
			opts.Infinite = true
		case "ponder":
			ponder = true
		case "searchmoves":
			for i+1 < len(args) {
				m := u.position.ParseUCIMove(args[i+1])
				if m == board.NoMove {
					break
				}
				opts.SearchMoves = append(opts.SearchMoves, m)
				i++
			}
		}
	}
	opts.MultiPV = u.multiPV
	opts.Ponder = u.ponder
	return opts, ponder
}

// handleGo starts a search with the given parameters.
func (u *UCI) handleGo(args []string) {
	u.wait()
	opts, ponder := u.parseGo(args)
	pos := u.position.Copy()

	if !ponder && len(opts.SearchMoves) == 0 {
		if m, ok := u.knownMove(pos, opts); ok {
			u.send("bestmove %s", pos.MoveToUCI(m))
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	done := make(chan struct{})
	u.searchDone = done
	result := u.engine.Go(ctx, pos, opts, ponder)

	go func() {
		defer close(done)
		defer cancel()

		r := <-result
		if r.Best == board.NoMove {
			u.send("bestmove 0000")
			return
		}
		u.learn(pos, r)
		if r.Ponder != board.NoMove {
			u.send("bestmove %s ponder %s", pos.MoveToUCI(r.Best), pos.MoveToUCI(r.Ponder))
		} else {
			u.send("bestmove %s", pos.MoveToUCI(r.Best))
		}
	}()
}

// knownMove answers from the opening book, the tablebase or the learning
// store before any search.
func (u *UCI) knownMove(pos *board.Position, opts engine.Options) (board.Move, bool) {
	if u.ownBook && u.book != nil {
		if m, ok := u.book.Probe(pos); ok {
			u.send("info string book move %s", pos.MoveToUCI(m))
			return m, true
		}
	}
	if u.tb != nil && tablebase.Probeable(u.tb, pos) {
		if r := u.tb.ProbeRoot(pos); r.Found {
			u.send("info string tablebase %s dtz %d", r.WDL, r.DTZ)
			return r.Move, true
		}
	}
	if u.learning && u.store != nil && opts.Depth > 0 {
		a, err := u.store.LookupAnalysis(pos.Hash)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			u.logger.Warn().Err(err).Msg("analysis lookup failed")
		case a.Depth >= opts.Depth:
			if m := pos.ParseUCIMove(a.Move); m != board.NoMove {
				u.send("info depth %d score %s pv %s", a.Depth, formatScore(a.Score), a.Move)
				return m, true
			}
		}
	}
	return board.NoMove, false
}

// learn records the deepest finished iteration when learning is on.
func (u *UCI) learn(pos *board.Position, r engine.Result) {
	line := r.Completed
	if !u.learning || u.store == nil || line.Depth == 0 || line.Move == board.NoMove {
		return
	}
	err := u.store.RecordAnalysis(pos.Hash, storage.Analysis{
		Move:  pos.MoveToUCI(line.Move),
		Score: line.Score,
		Depth: line.Depth,
		Nodes: r.Nodes,
	})
	if err != nil {
		u.logger.Warn().Err(err).Msg("recording analysis failed")
	}
}

// handleStop stops the current search and waits for its bestmove.
func (u *UCI) handleStop() {
	if u.cancel != nil {
		u.cancel()
	}
	u.wait()
}

// wait blocks until a running search has finished.
func (u *UCI) wait() {
	if u.searchDone != nil {
		<-u.searchDone
		u.searchDone = nil
		u.cancel = nil
	}
}

// handlePerft runs a perft test.
func (u *UCI) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			depth = n
		}
	}
	u.wait()

	start := time.Now()
	var total uint64
	for _, e := range u.position.Copy().Divide(depth) {
		u.send("%s: %d", u.position.MoveToUCI(e.Move), e.Nodes)
		total += e.Nodes
	}
	elapsed := time.Since(start)

	u.send("")
	u.send("Nodes searched: %d", total)
	u.send("Time: %d ms", elapsed.Milliseconds())
	if elapsed > 0 {
		u.send("NPS: %.0f", float64(total)/elapsed.Seconds())
	}
}

func (u *UCI) handleEval() {
	u.wait()
	score := u.engine.Evaluate(u.position)
	if u.position.SideToMove == board.Black {
		score = -score
	}
	kind := "classical"
	if u.engine.HasNetwork() {
		kind = "nnue"
	}
	u.send("info string eval %s (white side) %s", engine.ScoreToString(score), kind)
}

// display prints the board, the FEN and the hash key.
func (u *UCI) display() {
	pos := u.position
	var b strings.Builder
	b.WriteString(" +---+---+---+---+---+---+---+---+\n")
	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			c := " "
			if pc := pos.Board[board.NewSquare(file, rank)]; pc != board.NoPiece {
				c = pc.String()
			}
			b.WriteString(" | " + c)
		}
		fmt.Fprintf(&b, " | %d\n +---+---+---+---+---+---+---+---+\n", rank+1)
	}
	b.WriteString("   a   b   c   d   e   f   g   h\n")
	fmt.Fprintf(&b, "\nFen: %s\nKey: %016X\n", pos.FEN(), pos.Hash)
	if pos.InCheck() {
		b.WriteString("In check\n")
	}
	u.send("%s", b.String())
}
