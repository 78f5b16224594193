// Package storage persists engine options and analysed positions in a
// BadgerDB database.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("storage: not found")

// Storage keys
const (
	keyOptions     = "options"
	prefixAnalysis = "analysis/"
)

// Analysis is the result of a completed search of one position.
type Analysis struct {
	Move     string    `json:"move"` // UCI notation
	Score    int       `json:"score"`
	Depth    int       `json:"depth"`
	Nodes    uint64    `json:"nodes"`
	Recorded time.Time `json:"recorded"`
}

// Storage wraps BadgerDB for persistent storage
type Storage struct {
	db *badger.DB
}

// Open opens or creates the database in dir. An empty dir selects the
// database directory of DefaultPaths.
func Open(dir string) (*Storage, error) {
	if dir == "" {
		paths, err := DefaultPaths()
		if err != nil {
			return nil, err
		}
		if err := paths.Ensure(); err != nil {
			return nil, err
		}
		dir = paths.DB()
	}
	return open(badger.DefaultOptions(dir))
}

// OpenInMemory opens a database that lives only as long as the process.
func OpenInMemory() (*Storage, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Storage, error) {
	logger := log.With().Str("component", "storage").Logger()
	opts = opts.WithLogger(badgerLogger{logger}).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", opts.Dir, err)
	}
	logger.Debug().Str("dir", opts.Dir).Bool("in_memory", opts.InMemory).Msg("database opened")
	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Storage) putJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *Storage) getJSON(key []byte, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// SaveOptions stores UCI option values by name.
func (s *Storage) SaveOptions(opts map[string]string) error {
	return s.putJSON([]byte(keyOptions), opts)
}

// LoadOptions returns the stored option values. A fresh database yields
// an empty map.
func (s *Storage) LoadOptions() (map[string]string, error) {
	opts := map[string]string{}
	err := s.getJSON([]byte(keyOptions), &opts)
	if errors.Is(err, ErrNotFound) {
		return opts, nil
	}
	return opts, err
}

func analysisKey(hash uint64) []byte {
	key := make([]byte, len(prefixAnalysis)+8)
	copy(key, prefixAnalysis)
	binary.BigEndian.PutUint64(key[len(prefixAnalysis):], hash)
	return key
}

// RecordAnalysis stores a for the position with the given Zobrist key. An
// existing deeper analysis is kept.
func (s *Storage) RecordAnalysis(hash uint64, a Analysis) error {
	if a.Recorded.IsZero() {
		a.Recorded = time.Now()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	key := analysisKey(hash)
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			var old Analysis
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &old) }); err != nil {
				return err
			}
			if old.Depth > a.Depth {
				return nil
			}
		}
		return txn.Set(key, data)
	})
}

// LookupAnalysis returns the stored analysis of a position, or ErrNotFound.
func (s *Storage) LookupAnalysis(hash uint64) (Analysis, error) {
	var a Analysis
	err := s.getJSON(analysisKey(hash), &a)
	return a, err
}

// AnalysisCount returns the number of positions with a stored analysis.
func (s *Storage) AnalysisCount() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixAnalysis)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// ClearAnalysis deletes every stored analysis.
func (s *Storage) ClearAnalysis() error {
	return s.db.DropPrefix([]byte(prefixAnalysis))
}

// badgerLogger routes badger's messages to zerolog.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(f string, v ...any)   { b.log(zerolog.ErrorLevel, f, v) }
func (b badgerLogger) Warningf(f string, v ...any) { b.log(zerolog.WarnLevel, f, v) }
func (b badgerLogger) Infof(f string, v ...any)    { b.log(zerolog.InfoLevel, f, v) }
func (b badgerLogger) Debugf(f string, v ...any)   { b.log(zerolog.DebugLevel, f, v) }

func (b badgerLogger) log(level zerolog.Level, f string, v []any) {
	b.l.WithLevel(level).Msg(strings.TrimSpace(fmt.Sprintf(f, v...)))
}
