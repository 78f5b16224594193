package uci

import (
	"strconv"
	"strings"

	"github.com/hailam/kestrel/internal/board"
	"github.com/hailam/kestrel/internal/engine"
)

// formatScore writes a score as "cp N" or "mate N", mate counted in moves
// and negative when the side to move is mated.
func formatScore(score int) string {
	if n, ok := engine.MateDistance(score); ok {
		return "mate " + strconv.Itoa(n)
	}
	return "cp " + strconv.Itoa(score)
}

// sendInfo outputs search info in UCI format.
func (u *UCI) sendInfo(info engine.SearchInfo) {
	var b strings.Builder
	b.WriteString("info depth ")
	b.WriteString(strconv.Itoa(info.Depth))

	if info.CurrMove != board.NoMove {
		b.WriteString(" currmove ")
		b.WriteString(u.position.MoveToUCI(info.CurrMove))
		b.WriteString(" currmovenumber ")
		b.WriteString(strconv.Itoa(info.CurrMoveNumber))
		u.send("%s", b.String())
		return
	}

	field := func(name string, v uint64) {
		b.WriteByte(' ')
		b.WriteString(name)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(v, 10))
	}

	field("seldepth", uint64(info.SelDepth))
	field("multipv", uint64(max(info.MultiPV, 1)))
	b.WriteString(" score ")
	b.WriteString(formatScore(info.Score))
	switch info.Bound {
	case engine.BoundLower:
		b.WriteString(" lowerbound")
	case engine.BoundUpper:
		b.WriteString(" upperbound")
	}
	field("nodes", info.Nodes)
	field("nps", info.NPS())
	field("hashfull", uint64(info.HashFull))
	field("tbhits", info.TBHits)
	field("time", uint64(info.Time.Milliseconds()))

	if len(info.PV) > 0 {
		b.WriteString(" pv")
		for _, m := range info.PV {
			b.WriteByte(' ')
			b.WriteString(u.position.MoveToUCI(m))
		}
	}

	u.outMu.Lock()
	defer u.outMu.Unlock()
	u.out.Write([]byte(b.String() + "\n"))
}
