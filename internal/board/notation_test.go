package board

import "testing"

func TestParseUCIMoveRejectsBadInput(t *testing.T) {
	pos := NewPosition()
	for _, s := range []string{
		"", "e2", "e2e", "e2e4e5", "i2i4", "e9e4", "e2e5", "e7e5", // malformed or illegal
		"e2e4x", "e2e4q", "O-O", "a1a1", "0000", "d1h5",
	} {
		if m := pos.ParseUCIMove(s); m != NoMove {
			t.Errorf("ParseUCIMove(%q) = %v, want NoMove", s, m)
		}
	}
}

func TestParseUCIMove(t *testing.T) {
	pos, _ := ParseFEN("r3k2r/1P6/8/8/8/8/8/R3K2R w KQkq - 0 1")
	tests := []struct {
		in   string
		want string
	}{
		{"e1g1", "e1g1"},
		{"e1h1", "e1g1"},
		{"O-O", "e1g1"},
		{"O-O-O", "e1c1"},
		{"e1c1", "e1c1"},
		{"b7a8q", "b7a8q"},
		{"b7b8n", "b7b8n"},
	}
	for _, tc := range tests {
		m := pos.ParseUCIMove(tc.in)
		if got := m.String(); got != tc.want {
			t.Errorf("ParseUCIMove(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
	if m := pos.ParseUCIMove("e1g1"); !m.IsCastle() || m.To() != H1 {
		t.Errorf("castle encoded as %v to %s, want king takes rook on h1", m, m.To())
	}
}

func TestMoveToUCIChess960(t *testing.T) {
	pos, _ := ParseFEN("r3k2r/8/8/8/8/8/8/1R2K1R1 w GBkq - 0 1")
	m := pos.ParseUCIMove("O-O")
	if got := pos.MoveToUCI(m); got != "e1g1" {
		t.Errorf("MoveToUCI = %s, want e1g1", got)
	}
	m = pos.ParseUCIMove("O-O-O")
	if got := pos.MoveToUCI(m); got != "e1b1" {
		t.Errorf("MoveToUCI = %s, want e1b1", got)
	}
	if got := pos.FormatMove(m, CastleOO); got != "O-O-O" {
		t.Errorf("FormatMove = %s, want O-O-O", got)
	}
}

func TestSAN(t *testing.T) {
	pos, _ := ParseFEN("r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	tests := []struct {
		uci, san string
	}{
		{"e1g1", "O-O"},
		{"e1c1", "O-O-O"},
		{"e5f7", "Nxf7"},
		{"d5e6", "dxe6"},
		{"f3f6", "Qxf6"},
		{"c3b1", "Nb1"},
		{"e2a6", "Bxa6"},
		{"a1b1", "Rb1"},
	}
	for _, tc := range tests {
		m := pos.ParseUCIMove(tc.uci)
		if got := pos.SAN(m); got != tc.san {
			t.Errorf("SAN(%s) = %s, want %s", tc.uci, got, tc.san)
		}
		if back := pos.ParseSAN(tc.san); back != m {
			t.Errorf("ParseSAN(%s) = %v, want %v", tc.san, back, m)
		}
	}

	pos, _ = ParseFEN("rnbqkbnr/pppp1ppp/8/4p3/6P1/5P2/PPPPP2P/RNBQKBNR b KQkq - 0 2")
	if got := pos.SAN(pos.ParseUCIMove("d8h4")); got != "Qh4#" {
		t.Errorf("mate SAN = %s, want Qh4#", got)
	}
}

func TestPolyglotHash(t *testing.T) {
	pos := NewPosition()
	keys := []struct {
		move string
		key  uint64
	}{
		{"", 0x463b96181691fc9c},
		{"e2e4", 0x823c9b50fd114196},
		{"d7d5", 0x0756b94461c50fb0},
		{"e4e5", 0x662fafb965db29d4},
		{"f7f5", 0x22a48b5a8e47ff78},
	}
	for _, k := range keys {
		if k.move != "" {
			if !pos.MakeMove(pos.ParseUCIMove(k.move)) {
				t.Fatalf("move %s rejected", k.move)
			}
		}
		if got := pos.PolyglotHash(); got != k.key {
			t.Errorf("after %q: key %016x, want %016x", k.move, got, k.key)
		}
	}
}
