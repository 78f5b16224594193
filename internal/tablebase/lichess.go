package tablebase

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hailam/kestrel/internal/board"
)

// DefaultLichessEndpoint is the public 7-piece Syzygy service.
const DefaultLichessEndpoint = "https://tablebase.lichess.ovh/standard"

// LichessProber uses the Lichess tablebase API for online lookups.
// Every probe is a network round trip; wrap it in a CachedProber for
// use inside a search.
type LichessProber struct {
	client    *http.Client
	endpoint  string
	maxPieces int
}

// NewLichessProber creates a new Lichess-based tablebase prober.
func NewLichessProber() *LichessProber {
	return NewLichessProberAt(DefaultLichessEndpoint)
}

// NewLichessProberAt creates a prober for a service compatible with the
// Lichess API at endpoint.
func NewLichessProberAt(endpoint string) *LichessProber {
	return &LichessProber{
		client:    &http.Client{Timeout: 5 * time.Second},
		endpoint:  endpoint,
		maxPieces: 7,
	}
}

// Lichess API response structure. Move categories are from the point of
// view of the side to move after the move.
type lichessResponse struct {
	Category string `json:"category"`
	DTZ      int    `json:"dtz"`
	Moves    []struct {
		UCI      string `json:"uci"`
		Category string `json:"category"`
		DTZ      int    `json:"dtz"`
	} `json:"moves"`
}

func (lp *LichessProber) query(pos *board.Position) (*lichessResponse, error) {
	// Lichess accepts underscores for the spaces of a FEN.
	fen := strings.ReplaceAll(pos.FEN(), " ", "_")
	resp, err := lp.client.Get(lp.endpoint + "?fen=" + url.QueryEscape(fen))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tablebase: lichess returned %s", resp.Status)
	}
	var result lichessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("tablebase: decode lichess response: %w", err)
	}
	return &result, nil
}

func (lp *LichessProber) Probe(pos *board.Position) ProbeResult {
	if CountPieces(pos) > lp.maxPieces {
		return ProbeResult{}
	}
	result, err := lp.query(pos)
	if err != nil {
		log.Debug().Err(err).Str("component", "tablebase").Msg("probe failed")
		return ProbeResult{}
	}
	wdl, ok := categoryToWDL(result.Category)
	if !ok {
		return ProbeResult{}
	}
	return ProbeResult{Found: true, WDL: wdl, DTZ: result.DTZ}
}

func (lp *LichessProber) ProbeRoot(pos *board.Position) RootResult {
	if CountPieces(pos) > lp.maxPieces {
		return RootResult{}
	}
	result, err := lp.query(pos)
	if err != nil {
		log.Debug().Err(err).Str("component", "tablebase").Msg("root probe failed")
		return RootResult{}
	}
	if len(result.Moves) == 0 {
		return RootResult{}
	}

	// Moves are sorted best first.
	best := result.Moves[0]
	move := pos.ParseUCIMove(best.UCI)
	wdl, ok := categoryToWDL(best.Category)
	if move == board.NoMove || !ok {
		return RootResult{}
	}
	return RootResult{Found: true, Move: move, WDL: -wdl, DTZ: best.DTZ}
}

func (lp *LichessProber) MaxPieces() int {
	return lp.maxPieces
}

func (lp *LichessProber) Available() bool {
	return true
}

// categoryToWDL maps a Lichess category. Uncertain results are taken at
// their least favourable reading.
func categoryToWDL(category string) (WDL, bool) {
	switch category {
	case "win":
		return WDLWin, true
	case "cursed-win", "maybe-win":
		return WDLCursedWin, true
	case "draw":
		return WDLDraw, true
	case "blessed-loss", "maybe-loss":
		return WDLBlessedLoss, true
	case "loss":
		return WDLLoss, true
	}
	return WDLDraw, false
}
