package uci

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/kestrel/internal/book"
	"github.com/hailam/kestrel/internal/tablebase"
)

type optionKind int

const (
	optSpin optionKind = iota
	optCheck
	optString
	optButton
)

// option describes one UCI option and applies new values to the handler.
type option struct {
	name     string
	kind     optionKind
	def      string
	min, max int
	persist  bool
	apply    func(u *UCI, value string) error
}

func (o *option) declaration() string {
	switch o.kind {
	case optSpin:
		return fmt.Sprintf("option name %s type spin default %s min %d max %d", o.name, o.def, o.min, o.max)
	case optCheck:
		return fmt.Sprintf("option name %s type check default %s", o.name, o.def)
	case optString:
		def := o.def
		if def == "" {
			def = "<empty>"
		}
		return fmt.Sprintf("option name %s type string default %s", o.name, def)
	}
	return fmt.Sprintf("option name %s type button", o.name)
}

// parse validates value for the option type.
func (o *option) parse(value string) (string, error) {
	switch o.kind {
	case optSpin:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", fmt.Errorf("option %s: %q is not a number", o.name, value)
		}
		return strconv.Itoa(max(o.min, min(n, o.max))), nil
	case optCheck:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", fmt.Errorf("option %s: %q is not true or false", o.name, value)
		}
		return strconv.FormatBool(b), nil
	case optString:
		if value == "<empty>" {
			return "", nil
		}
	}
	return value, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func options() []*option {
	return []*option{
		{name: "Hash", kind: optSpin, def: "64", min: 1, max: 65536, persist: true,
			apply: func(u *UCI, v string) error { u.engine.SetHashSize(atoi(v)); return nil }},
		{name: "Threads", kind: optSpin, def: "1", min: 1, max: 256, persist: true,
			apply: func(u *UCI, v string) error { u.engine.SetThreads(atoi(v)); return nil }},
		{name: "MultiPV", kind: optSpin, def: "1", min: 1, max: 256,
			apply: func(u *UCI, v string) error { u.multiPV = atoi(v); return nil }},
		{name: "Ponder", kind: optCheck, def: "false",
			apply: func(u *UCI, v string) error { u.ponder = v == "true"; return nil }},
		{name: "UseNNUE", kind: optCheck, def: "true", persist: true,
			apply: func(u *UCI, v string) error { u.engine.SetUseNNUE(v == "true"); return nil }},
		{name: "EvalFile", kind: optString, persist: true, apply: (*UCI).loadNetwork},
		{name: "HybridThreshold", kind: optSpin, def: "800", min: 0, max: 10000, persist: true,
			apply: func(u *UCI, v string) error { u.engine.SetHybridThreshold(atoi(v)); return nil }},
		{name: "UCI_Chess960", kind: optCheck, def: "false",
			apply: func(u *UCI, v string) error {
				u.chess960 = v == "true"
				u.position.Chess960 = u.chess960 || u.position.Chess960
				return nil
			}},
		{name: "SyzygyOnline", kind: optCheck, def: "false", persist: true, apply: (*UCI).setTablebase},
		{name: "SyzygyProbeDepth", kind: optSpin, def: "1", min: 1, max: 100, persist: true,
			apply: func(u *UCI, v string) error { u.engine.SetTBProbeDepth(atoi(v)); return nil }},
		{name: "OwnBook", kind: optCheck, def: "false", persist: true,
			apply: func(u *UCI, v string) error { u.ownBook = v == "true"; return nil }},
		{name: "BookFile", kind: optString, persist: true, apply: (*UCI).loadBook},
		{name: "MoveOverhead", kind: optSpin, def: "50", min: 0, max: 5000, persist: true,
			apply: func(u *UCI, v string) error {
				u.engine.SetMoveOverhead(time.Duration(atoi(v)) * time.Millisecond)
				return nil
			}},
		{name: "Learning", kind: optCheck, def: "false", persist: true,
			apply: func(u *UCI, v string) error { u.learning = v == "true"; return nil }},
		{name: "Debug Log", kind: optCheck, def: "false",
			apply: func(u *UCI, v string) error {
				if v == "true" {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				} else {
					zerolog.SetGlobalLevel(zerolog.InfoLevel)
				}
				return nil
			}},
		{name: "Clear Hash", kind: optButton,
			apply: func(u *UCI, _ string) error { u.engine.Clear(); return nil }},
	}
}

func (u *UCI) findOption(name string) *option {
	for _, o := range u.options {
		if strings.EqualFold(o.name, name) {
			return o
		}
	}
	return nil
}

// setOption validates and applies a value. Persistent options are written
// to the store when save is set.
func (u *UCI) setOption(name, value string, save bool) error {
	o := u.findOption(name)
	if o == nil {
		return fmt.Errorf("unknown option %q", name)
	}
	v, err := o.parse(value)
	if err != nil {
		return err
	}
	if err := o.apply(u, v); err != nil {
		return err
	}
	u.values[o.name] = v
	if save && o.persist && u.store != nil {
		saved := map[string]string{}
		for _, p := range u.options {
			if cur, ok := u.values[p.name]; ok && p.persist {
				saved[p.name] = cur
			}
		}
		if err := u.store.SaveOptions(saved); err != nil {
			return fmt.Errorf("save options: %w", err)
		}
	}
	return nil
}

func (u *UCI) loadNetwork(path string) error {
	if path == "" {
		u.engine.SetNetwork(nil)
		return nil
	}
	return u.engine.LoadNNUE(u.paths.ResolveNetwork(path))
}

func (u *UCI) loadBook(path string) error {
	if path == "" {
		u.book = nil
		return nil
	}
	path = u.paths.ResolveBook(path)
	b, err := book.LoadPolyglot(path)
	if err != nil {
		return err
	}
	u.book = b
	u.logger.Info().Str("path", path).Int("positions", b.Size()).Msg("book loaded")
	return nil
}

func (u *UCI) setTablebase(v string) error {
	if v != "true" {
		u.tb = nil
		u.engine.SetTablebase(nil)
		return nil
	}
	u.tb = tablebase.NewCachedLichessProber()
	u.engine.SetTablebase(u.tb)
	return nil
}
