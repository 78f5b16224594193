package engine

import (
	"sync/atomic"
	"time"

	"github.com/hailam/kestrel/internal/board"
)

// movesToTimeControl is assumed when the clock gives no moves-to-go.
const movesToTimeControl = 30

// TimeManager turns the clock state into a soft limit, the time a search is
// expected to use, and a hard limit it may reach while resolving a root
// fail-low.
type TimeManager struct {
	soft    time.Duration
	hard    time.Duration
	limited bool

	startTime atomic.Int64 // unix nanoseconds
}

// NewTimeManager creates a new time manager.
func NewTimeManager() *TimeManager {
	return &TimeManager{}
}

// Init allocates time for a search by side us and starts the clock.
func (tm *TimeManager) Init(opts Options, us board.Color, overhead time.Duration) {
	tm.Start()
	tm.soft, tm.hard, tm.limited = 0, 0, false

	switch {
	case opts.Infinite:
		return
	case opts.MoveTime > 0:
		tm.soft, tm.hard, tm.limited = opts.MoveTime, opts.MoveTime, true
		return
	case opts.Time[us] <= 0:
		return
	}

	timeLeft := opts.Time[us]
	mtg := opts.MovesToGo
	if mtg <= 0 {
		mtg = movesToTimeControl
	}
	safe := max(timeLeft-overhead, 0)

	tm.soft = min(timeLeft/time.Duration(mtg)+opts.Inc[us], safe)
	tm.hard = min(5*tm.soft, timeLeft*8/10, safe)
	tm.limited = true
}

// Start restarts the clock, keeping the allocation.
func (tm *TimeManager) Start() {
	tm.startTime.Store(time.Now().UnixNano())
}

// Elapsed returns the time elapsed since search started.
func (tm *TimeManager) Elapsed() time.Duration {
	return time.Duration(time.Now().UnixNano() - tm.startTime.Load())
}

// Limited reports whether the search runs against the clock.
func (tm *TimeManager) Limited() bool {
	return tm.limited
}

// OptimumTime returns the soft limit.
func (tm *TimeManager) OptimumTime() time.Duration {
	return tm.soft
}

// MaximumTime returns the hard limit.
func (tm *TimeManager) MaximumTime() time.Duration {
	return tm.hard
}

// CheckTime reports whether the search at depth may go on. The first ply
// always completes; an unfinished iteration that is resolving a root
// fail-low may run to the hard limit.
func (tm *TimeManager) CheckTime(depth, completedDepth int, resolvingFail bool) bool {
	if !tm.limited || depth <= 1 {
		return true
	}
	if resolvingFail && depth > completedDepth {
		return tm.Elapsed() < tm.hard
	}
	return tm.Elapsed() < tm.soft
}

// NewIteration reports whether another iteration should be started.
func (tm *TimeManager) NewIteration(depth int, pondering bool) bool {
	return pondering || !tm.limited || depth <= 1 || tm.Elapsed() < tm.soft
}
