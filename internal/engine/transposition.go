package engine

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hailam/kestrel/internal/board"
)

// TTFlag indicates the type of bound stored in the transposition table.
type TTFlag uint8

const (
	TTExact      TTFlag = iota // Exact score
	TTLowerBound               // Failed high (beta cutoff)
	TTUpperBound               // Failed low
)

// BucketSize is the number of entries sharing one index.
const BucketSize = 3

// Packed data word layout.
const (
	ttMoveBits  = 22
	ttMoveMask  = 1<<ttMoveBits - 1
	ttFlagShift = 22
	ttDepthShft = 24
	ttGenShift  = 32
	ttScoreShft = 40
)

// TTEntry is a decoded transposition table entry.
type TTEntry struct {
	Move  board.Move
	Score int // adjusted to the probing node for mate scores
	Eval  int // static evaluation
	Depth int
	Flag  TTFlag
}

// ttSlot stores one entry as three words. check is key^data^aux, so a slot
// torn by a concurrent store fails verification and reads as a miss.
type ttSlot struct {
	check atomic.Uint64
	data  atomic.Uint64
	aux   atomic.Uint64
}

type ttBucket [BucketSize]ttSlot

// TranspositionTable is a lock-free hash table shared by all search
// workers.
type TranspositionTable struct {
	buckets []ttBucket
	mask    uint64
	gen     atomic.Uint32
}

// NewTranspositionTable creates a transposition table with the given size in MB.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	const bucketBytes = BucketSize * 24
	n := uint64(max(sizeMB, 1)) * 1024 * 1024 / bucketBytes
	n = roundDownToPowerOf2(n)
	return &TranspositionTable{
		buckets: make([]ttBucket, n),
		mask:    n - 1,
	}
}

// roundDownToPowerOf2 rounds n down to the nearest power of 2.
func roundDownToPowerOf2(n uint64) uint64 {
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

func packData(m board.Move, flag TTFlag, depth int, gen uint8, score int) uint64 {
	return uint64(m)&ttMoveMask |
		uint64(flag&3)<<ttFlagShift |
		uint64(uint8(depth))<<ttDepthShft |
		uint64(gen)<<ttGenShift |
		uint64(uint16(int16(score)))<<ttScoreShft
}

func dataDepth(d uint64) int   { return int(uint8(d >> ttDepthShft)) }
func dataGen(d uint64) uint8   { return uint8(d >> ttGenShift) }
func dataScore(d uint64) int   { return int(int16(uint16(d >> ttScoreShft))) }
func dataFlag(d uint64) TTFlag { return TTFlag(d>>ttFlagShift) & 3 }

// NewSearch ages the table; entries of earlier searches become preferred
// replacement victims.
func (tt *TranspositionTable) NewSearch() {
	tt.gen.Add(1)
}

func (tt *TranspositionTable) generation() uint8 {
	return uint8(tt.gen.Load())
}

// Probe looks up key. Mate scores are converted to be relative to the node
// at ply.
func (tt *TranspositionTable) Probe(key uint64, ply int) (TTEntry, bool) {
	b := &tt.buckets[key&tt.mask]
	for i := range b {
		s := &b[i]
		data, aux := s.data.Load(), s.aux.Load()
		if s.check.Load()^data^aux != key || data == 0 {
			continue
		}
		score := dataScore(data)
		if score > KnownWin {
			score -= ply
		} else if score < -KnownWin {
			score += ply
		}
		return TTEntry{
			Move:  board.Move(data & ttMoveMask),
			Score: score,
			Eval:  int(int16(uint16(aux))),
			Depth: dataDepth(data),
			Flag:  dataFlag(data),
		}, true
	}
	return TTEntry{}, false
}

// Store saves a search result. Mate and tablebase scores are only kept as
// exact scores, stored relative to the node.
func (tt *TranspositionTable) Store(key uint64, ply int, m board.Move, depth, score int, flag TTFlag, eval int) {
	if score > KnownWin {
		if flag != TTExact {
			return
		}
		score += ply
	} else if score < -KnownWin {
		if flag != TTExact {
			return
		}
		score -= ply
	}

	gen := tt.generation()
	b := &tt.buckets[key&tt.mask]
	var victim *ttSlot
	worst := int(^uint(0) >> 1)
	for i := range b {
		s := &b[i]
		data, aux := s.data.Load(), s.aux.Load()
		if data == 0 {
			victim = s
			break
		}
		if s.check.Load()^data^aux == key {
			if depth >= dataDepth(data) || dataGen(data) != gen {
				victim = s
				break
			}
			return
		}
		age := int(gen - dataGen(data))
		if v := 255 - age + dataDepth(data)*256; v < worst {
			worst = v
			victim = s
		}
	}

	data := packData(m, flag, depth, gen, score)
	aux := uint64(uint16(int16(eval)))
	victim.data.Store(data)
	victim.aux.Store(aux)
	victim.check.Store(key ^ data ^ aux)
}

// Clear empties the table and resets its generation.
func (tt *TranspositionTable) Clear() {
	var g errgroup.Group
	chunks := runtime.GOMAXPROCS(0)
	size := (len(tt.buckets) + chunks - 1) / chunks
	for start := 0; start < len(tt.buckets); start += size {
		part := tt.buckets[start:min(start+size, len(tt.buckets))]
		g.Go(func() error {
			for i := range part {
				for j := range part[i] {
					part[i][j].check.Store(0)
					part[i][j].data.Store(0)
					part[i][j].aux.Store(0)
				}
			}
			return nil
		})
	}
	g.Wait()
	tt.gen.Store(0)
}

// HashFull returns the permille of sampled entries written by the current
// search.
func (tt *TranspositionTable) HashFull() int {
	n := min(1000, len(tt.buckets))
	gen := tt.generation()
	used := 0
	for i := 0; i < n; i++ {
		for j := range tt.buckets[i] {
			if d := tt.buckets[i][j].data.Load(); d != 0 && dataGen(d) == gen {
				used++
			}
		}
	}
	return used * 1000 / (n * BucketSize)
}

// Size returns the number of entries in the table.
func (tt *TranspositionTable) Size() int {
	return len(tt.buckets) * BucketSize
}
