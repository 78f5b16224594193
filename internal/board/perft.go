package board

// Perft counts the leaf nodes of the legal move tree to the given depth.
func (p *Position) Perft(depth int) uint64 {
	if depth <= 0 {
		return 1
	}
	var ml MoveList
	p.GenerateMoves(&ml)
	var nodes uint64
	for _, m := range ml.Slice() {
		if !p.MakeMove(m) {
			continue
		}
		if depth == 1 {
			nodes++
		} else {
			nodes += p.Perft(depth - 1)
		}
		p.UnmakeMove()
	}
	return nodes
}

// DivideEntry is the subtree size below one root move.
type DivideEntry struct {
	Move  Move
	Nodes uint64
}

// Divide runs perft below each legal root move.
func (p *Position) Divide(depth int) []DivideEntry {
	var out []DivideEntry
	for _, m := range p.GenerateLegalMoves().Slice() {
		p.MakeMove(m)
		out = append(out, DivideEntry{Move: m, Nodes: p.Perft(depth - 1)})
		p.UnmakeMove()
	}
	return out
}
