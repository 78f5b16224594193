package eval

import (
	"encoding/json"
	"fmt"
	"os"
)

// S is a middlegame/endgame score pair.
type S struct {
	MG int `json:"mg"`
	EG int `json:"eg"`
}

// EvalWeights holds every tunable term of the classical evaluator.
// Piece-square tables are laid out as seen from White's side of the board:
// index 0 is a8, index 63 is h1. Black uses the same tables flipped.
type EvalWeights struct {
	Material [6]S     `json:"material"`
	PSQT     [6][64]S `json:"psqt"`
	Mobility [6]S     `json:"mobility"` // per safe square reached

	PassedPawn         [8]S `json:"passed_pawn"` // by relative rank
	PassedFreePath     S    `json:"passed_free_path"`
	PassedProtected    S    `json:"passed_protected"`
	PassedKingDistance S    `json:"passed_king_distance"` // per square of king race lead
	DoubledPawn        S    `json:"doubled_pawn"`
	IsolatedPawn       S    `json:"isolated_pawn"`
	BackwardPawn       S    `json:"backward_pawn"`

	BishopPair       S `json:"bishop_pair"`
	RookOpenFile     S `json:"rook_open_file"`
	RookSemiOpenFile S `json:"rook_semi_open_file"`

	KingAttack    [6]int `json:"king_attack"` // per piece hitting the king zone
	PawnShield    int    `json:"pawn_shield"`
	ShieldMissing int    `json:"shield_missing"`
	KingOpenFile  int    `json:"king_open_file"`
	KingSemiOpen  int    `json:"king_semi_open_file"`
	PhaseWeights  [6]int `json:"phase_weights"`
	Tempo         int    `json:"tempo"`
}

// MaxPhase is the game phase of the starting material.
const MaxPhase = 24

var (
	pawnPST = [64]int{
		0, 0, 0, 0, 0, 0, 0, 0,
		50, 50, 50, 50, 50, 50, 50, 50,
		10, 10, 20, 30, 30, 20, 10, 10,
		5, 5, 10, 25, 25, 10, 5, 5,
		0, 0, 0, 20, 20, 0, 0, 0,
		5, -5, -10, 0, 0, -10, -5, 5,
		5, 10, 10, -20, -20, 10, 10, 5,
		0, 0, 0, 0, 0, 0, 0, 0,
	}
	knightPST = [64]int{
		-50, -40, -30, -30, -30, -30, -40, -50,
		-40, -20, 0, 0, 0, 0, -20, -40,
		-30, 0, 10, 15, 15, 10, 0, -30,
		-30, 5, 15, 20, 20, 15, 5, -30,
		-30, 0, 15, 20, 20, 15, 0, -30,
		-30, 5, 10, 15, 15, 10, 5, -30,
		-40, -20, 0, 5, 5, 0, -20, -40,
		-50, -40, -30, -30, -30, -30, -40, -50,
	}
	bishopPST = [64]int{
		-20, -10, -10, -10, -10, -10, -10, -20,
		-10, 0, 0, 0, 0, 0, 0, -10,
		-10, 0, 5, 10, 10, 5, 0, -10,
		-10, 5, 5, 10, 10, 5, 5, -10,
		-10, 0, 10, 10, 10, 10, 0, -10,
		-10, 10, 10, 10, 10, 10, 10, -10,
		-10, 5, 0, 0, 0, 0, 5, -10,
		-20, -10, -10, -10, -10, -10, -10, -20,
	}
	rookPST = [64]int{
		0, 0, 0, 0, 0, 0, 0, 0,
		5, 10, 10, 10, 10, 10, 10, 5,
		-5, 0, 0, 0, 0, 0, 0, -5,
		-5, 0, 0, 0, 0, 0, 0, -5,
		-5, 0, 0, 0, 0, 0, 0, -5,
		-5, 0, 0, 0, 0, 0, 0, -5,
		-5, 0, 0, 0, 0, 0, 0, -5,
		0, 0, 0, 5, 5, 0, 0, 0,
	}
	queenPST = [64]int{
		-20, -10, -10, -5, -5, -10, -10, -20,
		-10, 0, 0, 0, 0, 0, 0, -10,
		-10, 0, 5, 5, 5, 5, 0, -10,
		-5, 0, 5, 5, 5, 5, 0, -5,
		0, 0, 5, 5, 5, 5, 0, -5,
		-10, 5, 5, 5, 5, 5, 0, -10,
		-10, 0, 5, 0, 0, 0, 0, -10,
		-20, -10, -10, -5, -5, -10, -10, -20,
	}
	kingMidgamePST = [64]int{
		-30, -40, -40, -50, -50, -40, -40, -30,
		-30, -40, -40, -50, -50, -40, -40, -30,
		-30, -40, -40, -50, -50, -40, -40, -30,
		-30, -40, -40, -50, -50, -40, -40, -30,
		-20, -30, -30, -40, -40, -30, -30, -20,
		-10, -20, -20, -20, -20, -20, -20, -10,
		20, 20, 0, 0, 0, 0, 20, 20,
		20, 30, 10, 0, 0, 10, 30, 20,
	}
	kingEndgamePST = [64]int{
		-50, -40, -30, -20, -20, -30, -40, -50,
		-30, -20, -10, 0, 0, -10, -20, -30,
		-30, -10, 20, 30, 30, 20, -10, -30,
		-30, -10, 30, 40, 40, 30, -10, -30,
		-30, -10, 30, 40, 40, 30, -10, -30,
		-30, -10, 20, 30, 30, 20, -10, -30,
		-30, -30, 0, 0, 0, 0, -30, -30,
		-50, -30, -30, -30, -30, -30, -30, -50,
	}
)

// DefaultWeights returns the built-in evaluation weights.
func DefaultWeights() *EvalWeights {
	w := &EvalWeights{
		Material: [6]S{{100, 120}, {320, 310}, {330, 340}, {500, 540}, {950, 1000}, {}},
		Mobility: [6]S{{}, {4, 3}, {5, 4}, {2, 4}, {1, 2}, {}},
		PassedPawn: [8]S{
			{}, {5, 10}, {10, 20}, {20, 40}, {35, 70}, {60, 120}, {100, 200}, {},
		},
		PassedFreePath:     S{10, 30},
		PassedProtected:    S{10, 15},
		PassedKingDistance: S{0, 5},
		DoubledPawn:        S{-15, -20},
		IsolatedPawn:       S{-20, -25},
		BackwardPawn:       S{-15, -10},
		BishopPair:         S{25, 50},
		RookOpenFile:       S{20, 25},
		RookSemiOpenFile:   S{10, 15},
		KingAttack:         [6]int{0, 20, 20, 40, 80, 0},
		PawnShield:         10,
		ShieldMissing:      -15,
		KingOpenFile:       -20,
		KingSemiOpen:       -10,
		PhaseWeights:       [6]int{0, 1, 1, 2, 4, 0},
		Tempo:              10,
	}
	tables := [5]*[64]int{&pawnPST, &knightPST, &bishopPST, &rookPST, &queenPST}
	for pt, tbl := range tables {
		for sq, v := range tbl {
			w.PSQT[pt][sq] = S{v, v}
		}
	}
	for sq := range 64 {
		w.PSQT[5][sq] = S{kingMidgamePST[sq], kingEndgamePST[sq]}
	}
	return w
}

// LoadWeights reads weights from a JSON file. Fields missing from the file
// keep their default values.
func LoadWeights(path string) (*EvalWeights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eval: read weights: %w", err)
	}
	w := DefaultWeights()
	if err := json.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("eval: parse weights %s: %w", path, err)
	}
	return w, nil
}

// Save writes the weights as indented JSON.
func (w *EvalWeights) Save(path string) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
