package engine

import (
	"errors"
	"time"

	"github.com/hailam/kestrel/internal/board"
)

// Search constants
const (
	Infinity  = 30000
	MateScore = 29000
	MaxPly    = 128

	// MateInMaxPly is the lowest score that still denotes a forced mate.
	MateInMaxPly = MateScore - MaxPly
	// TBWin is a tablebase win at the root; deeper wins count down by ply.
	TBWin = MateInMaxPly - 1
	// KnownWin separates proven results (mates and tablebase wins) from
	// heuristic scores.
	KnownWin = TBWin - MaxPly
)

// errSearchAborted unwinds a worker's recursion back to its iteration loop.
var errSearchAborted = errors.New("engine: search aborted")

// Bound tells how a reported score relates to the true value.
type Bound uint8

const (
	BoundExact Bound = iota
	BoundLower       // fail high: the score is at least this
	BoundUpper       // fail low: the score is at most this
)

// SearchInfo contains information about the current search.
type SearchInfo struct {
	Depth    int
	SelDepth int
	MultiPV  int // 1-based line number
	Score    int
	Bound    Bound
	Nodes    uint64
	TBHits   uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // Permille of hash table used

	// Set instead of PV when announcing the root move being searched.
	CurrMove       board.Move
	CurrMoveNumber int
}

// NPS returns the search speed in nodes per second.
func (si SearchInfo) NPS() uint64 {
	if si.Time <= 0 {
		return 0
	}
	return uint64(float64(si.Nodes) / si.Time.Seconds())
}

// PVTable stores the principal variation, one line per ply.
type PVTable struct {
	length [MaxPly + 1]int
	moves  [MaxPly + 1][MaxPly + 1]board.Move
}

func (pv *PVTable) clear(ply int) {
	pv.length[ply] = 0
}

// update makes m followed by the child line the PV at ply.
func (pv *PVTable) update(ply int, m board.Move) {
	pv.moves[ply][0] = m
	n := pv.length[ply+1]
	copy(pv.moves[ply][1:n+1], pv.moves[ply+1][:n])
	pv.length[ply] = n + 1
}

// line returns a copy of the PV at ply.
func (pv *PVTable) line(ply int) []board.Move {
	return append([]board.Move(nil), pv.moves[ply][:pv.length[ply]]...)
}

// isMateScore reports scores that denote a forced mate or a tablebase result.
func isMateScore(score int) bool {
	return score > KnownWin || score < -KnownWin
}

// ScoreToString converts a score to a human-readable string.
func ScoreToString(score int) string {
	switch {
	case score > MateInMaxPly:
		return "Mate in " + itoa((MateScore-score+1)/2)
	case score < -MateInMaxPly:
		return "Mated in " + itoa((MateScore+score+1)/2)
	}
	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	cp := score % 100
	frac := itoa(cp)
	if cp < 10 {
		frac = "0" + frac
	}
	return sign + itoa(score/100) + "." + frac
}

// MateDistance returns the signed number of moves to mate for mate scores:
// positive when the side to move mates, negative when it is mated.
func MateDistance(score int) (int, bool) {
	switch {
	case score > MateInMaxPly:
		return (MateScore - score + 1) / 2, true
	case score < -MateInMaxPly:
		return -(MateScore + score) / 2, true
	}
	return 0, false
}

// Simple integer to string (avoid fmt import)
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}
