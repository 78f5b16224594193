package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// SearchParams holds the tunable pruning and reduction constants. Arrays are
// indexed by remaining depth; a heuristic applies up to the last index.
type SearchParams struct {
	FutilityMargins [8]int  `json:"futility_margins"`
	RazoringMargins [4]int  `json:"razoring_margins"`
	LMPCounts       [11]int `json:"lmp_counts"`

	// Successive half-widths after a root fail; the last entry should be
	// Infinity.
	AspirationWindows [8]int `json:"aspiration_windows"`
	AspirationDepth   int    `json:"aspiration_depth"` // windows are used above this depth

	NullMoveDepth     int `json:"null_move_depth"` // null move is tried above this depth
	NullMoveReduction int `json:"null_move_reduction"`
	NullMoveDivisor   int `json:"null_move_divisor"`

	ProbCutDepth  int `json:"probcut_depth"`
	ProbCutMargin int `json:"probcut_margin"`

	SEEPruneDepth     int `json:"see_prune_depth"` // SEE pruning below this depth
	SEEQuietMargin    int `json:"see_quiet_margin"`
	SEETacticalMargin int `json:"see_tactical_margin"`

	DeltaMargin   int `json:"delta_margin"`
	SingularDepth int `json:"singular_depth"`

	CounterHistoryMargins  [4]int `json:"counter_history_margins"`
	FollowupHistoryMargins [4]int `json:"followup_history_margins"`

	LMRBase           float64 `json:"lmr_base"`
	LMRDivisor        float64 `json:"lmr_divisor"`
	LMRHistoryDivisor int     `json:"lmr_history_divisor"`
}

// DefaultParams returns the built-in search parameters.
func DefaultParams() *SearchParams {
	return &SearchParams{
		FutilityMargins:        [8]int{0, 104, 205, 339, 437, 520, 667, 785},
		RazoringMargins:        [4]int{0, 54, 152, 448},
		LMPCounts:              [11]int{0, 4, 6, 8, 12, 17, 24, 33, 44, 57, 72},
		AspirationWindows:      [8]int{10, 20, 40, 80, 160, 320, 640, Infinity},
		AspirationDepth:        5,
		NullMoveDepth:          3,
		NullMoveReduction:      2,
		NullMoveDivisor:        6,
		ProbCutDepth:           5,
		ProbCutMargin:          210,
		SEEPruneDepth:          8,
		SEEQuietMargin:         -100,
		SEETacticalMargin:      -29,
		DeltaMargin:            200,
		SingularDepth:          8,
		CounterHistoryMargins:  [4]int{0, 0, -500, -1000},
		FollowupHistoryMargins: [4]int{0, -500, -1000, -2000},
		LMRBase:                0.5,
		LMRDivisor:             2.0,
		LMRHistoryDivisor:      5000,
	}
}

// LoadParams reads parameters from a JSON file. Fields missing from the
// file keep their default values.
func LoadParams(path string) (*SearchParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read params: %w", err)
	}
	p := DefaultParams()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("engine: parse params %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("engine: params %s: %w", path, err)
	}
	return p, nil
}

// Save writes the parameters as indented JSON.
func (p *SearchParams) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (p *SearchParams) validate() error {
	switch {
	case p.NullMoveDivisor <= 0:
		return fmt.Errorf("null_move_divisor must be positive")
	case p.LMRDivisor <= 0:
		return fmt.Errorf("lmr_divisor must be positive")
	case p.LMRHistoryDivisor <= 0:
		return fmt.Errorf("lmr_history_divisor must be positive")
	case p.ProbCutDepth < 1:
		return fmt.Errorf("probcut_depth must be at least 1")
	}
	for _, w := range p.AspirationWindows {
		if w <= 0 {
			return fmt.Errorf("aspiration windows must be positive")
		}
	}
	return nil
}

// lmrTable holds base late move reductions indexed by depth and move number.
type lmrTable [64][64]int

func newLMRTable(p *SearchParams) *lmrTable {
	var t lmrTable
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			t[d][m] = int(p.LMRBase + math.Log(float64(d))*math.Log(float64(m))/p.LMRDivisor)
		}
	}
	return &t
}
