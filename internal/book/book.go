// Package book reads Polyglot opening books.
package book

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"

	"github.com/hailam/kestrel/internal/board"
)

// entrySize is the length of one Polyglot record: key, move, weight and
// learn data, all big-endian.
const entrySize = 16

// BookEntry represents a single book entry.
type BookEntry struct {
	Move   board.Move
	Weight uint16
}

// rawEntry keeps a move in Polyglot encoding until the position it belongs
// to is known.
type rawEntry struct {
	move   uint16
	weight uint16
}

// Book represents an opening book.
type Book struct {
	entries map[uint64][]rawEntry
}

// New creates an empty book.
func New() *Book {
	return &Book{entries: make(map[uint64][]rawEntry)}
}

// LoadPolyglot loads a Polyglot format opening book from a file.
func LoadPolyglot(filename string) (*Book, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("book: %w", err)
	}
	defer file.Close()
	return LoadPolyglotReader(file)
}

// LoadPolyglotReader loads a Polyglot format book from a reader.
func LoadPolyglotReader(r io.Reader) (*Book, error) {
	b := New()
	var rec [entrySize]byte
	for {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return b, nil
			}
			return nil, fmt.Errorf("book: read entry %d: %w", b.Len(), err)
		}
		key := binary.BigEndian.Uint64(rec[0:8])
		b.entries[key] = append(b.entries[key], rawEntry{
			move:   binary.BigEndian.Uint16(rec[8:10]),
			weight: binary.BigEndian.Uint16(rec[10:12]),
		})
	}
}

// Add inserts a move for the position, mainly for building books in
// tests and tools.
func (b *Book) Add(pos *board.Position, m board.Move, weight uint16) {
	key := pos.PolyglotHash()
	b.entries[key] = append(b.entries[key], rawEntry{move: encodeMove(m), weight: weight})
}

// decodeMove writes a Polyglot move as coordinate text. Bits 0-5 hold the
// destination, 6-11 the origin and 12-14 the promotion piece. Castling is
// already king-takes-rook.
func decodeMove(data uint16) string {
	to := board.NewSquare(int(data&7), int(data>>3&7))
	from := board.NewSquare(int(data>>6&7), int(data>>9&7))
	s := from.String() + to.String()
	if promo := data >> 12 & 7; promo > 0 && promo <= 4 {
		s += string("nbrq"[promo-1])
	}
	return s
}

func encodeMove(m board.Move) uint16 {
	from, to := m.From(), m.To()
	data := uint16(to.File()) | uint16(to.Rank())<<3 | uint16(from.File())<<6 | uint16(from.Rank())<<9
	if m.IsPromotion() {
		data |= uint16(m.Promotion()-board.Knight+1) << 12
	}
	return data
}

// ProbeAll returns the legal book moves for the position, highest weight
// first.
func (b *Book) ProbeAll(pos *board.Position) []BookEntry {
	if b == nil {
		return nil
	}
	raw := b.entries[pos.PolyglotHash()]
	out := make([]BookEntry, 0, len(raw))
	for _, e := range raw {
		if m := pos.ParseUCIMove(decodeMove(e.move)); m != board.NoMove {
			out = append(out, BookEntry{Move: m, Weight: e.weight})
		}
	}
	slices.SortStableFunc(out, func(a, b BookEntry) int {
		return int(b.Weight) - int(a.Weight)
	})
	return out
}

// Probe picks a book move at random in proportion to the weights. With
// all weights zero the first move is returned.
func (b *Book) Probe(pos *board.Position) (board.Move, bool) {
	entries := b.ProbeAll(pos)
	if len(entries) == 0 {
		return board.NoMove, false
	}

	total := uint32(0)
	for _, e := range entries {
		total += uint32(e.Weight)
	}
	if total == 0 {
		return entries[0].Move, true
	}

	r := rand.Uint32N(total)
	for _, e := range entries {
		if r < uint32(e.Weight) {
			return e.Move, true
		}
		r -= uint32(e.Weight)
	}
	return entries[0].Move, true
}

// Size returns the number of unique positions in the book.
func (b *Book) Size() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Len returns the number of entries.
func (b *Book) Len() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, es := range b.entries {
		n += len(es)
	}
	return n
}
