package nnue

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hailam/chessplay/sfnnue/layers"

	"github.com/hailam/kestrel/internal/board"
)

var (
	testNetOnce sync.Once
	testNet     *Network
)

// randomNet returns a shared network with deterministic random weights.
func randomNet() *Network {
	testNetOnce.Do(func() {
		testNet = NewNetwork()
		testNet.InitRandom(7)
	})
	return testNet
}

func TestFeatureIndex(t *testing.T) {
	tests := []struct {
		perspective board.Color
		king        board.Square
		piece       board.Piece
		sq          board.Square
		want        int
	}{
		{board.White, board.E1, board.WhitePawn, board.A2, 8 + 1 + 641*4},
		{board.White, board.E1, board.BlackPawn, board.A7, 48 + 1 + 64 + 641*4},
		{board.White, board.A1, board.BlackQueen, board.H8, 63 + 1 + 64*9},
		{board.Black, board.E8, board.BlackPawn, board.A7, 15 + 1 + 641*3},
		{board.Black, board.E8, board.WhiteKnight, board.B1, 62 + 1 + 64*3 + 641*3},
	}
	for _, tt := range tests {
		if got := FeatureIndex(tt.perspective, tt.king, tt.piece, tt.sq); got != tt.want {
			t.Errorf("FeatureIndex(%v, %v, %v, %v) = %d, want %d", tt.perspective, tt.king, tt.piece, tt.sq, got, tt.want)
		}
	}
}

func TestActiveFeaturesStartPosition(t *testing.T) {
	pos := board.NewPosition()
	for _, side := range []board.Color{board.White, board.Black} {
		feats := ActiveFeatures(pos, side, nil)
		if len(feats) != 30 {
			t.Fatalf("%v: %d features, want 30", side, len(feats))
		}
		seen := map[int]bool{}
		for _, f := range feats {
			if f <= 0 || f >= NumFeatures || seen[f] {
				t.Fatalf("%v: bad or duplicate feature %d", side, f)
			}
			seen[f] = true
		}
	}
}

func TestIncrementalMatchesRefresh(t *testing.T) {
	net := randomNet()
	fens := []string{
		board.StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"n1n5/PPPk4/8/8/8/8/4Kppp/5N1N b - - 0 1",
		"rnbqkbnr/ppp1p1pp/8/3pPp2/8/8/PPPP1PPP/RNBQKBNR w KQkq f6 0 3",
		"bqnb1rkr/pp3ppp/3ppn2/2p5/5P2/P2P4/NPP1P1PP/BQ1BNRKR w HFhf - 2 9",
	}
	depth := 5
	if testing.Short() {
		depth = 3
	}
	for i, fen := range fens {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatal(err)
		}
		rng := rand.New(rand.NewPCG(uint64(i), 99))
		stack := NewAccumulatorStack(net)
		checked := 0

		var walk func(d int)
		walk = func(d int) {
			// Skip some nodes so that derivation crosses one or two plies.
			if rng.IntN(3) != 0 {
				acc := stack.Current(pos)
				var ref Accumulator
				net.ComputeFull(pos, &ref)
				if acc.Values != ref.Values {
					t.Fatalf("%s at %s: incremental accumulator differs from refresh", fen, pos.FEN())
				}
				checked++
			}
			if d == 0 {
				return
			}
			moves := pos.GenerateLegalMoves()
			for k := 0; k < 3 && moves.Len() > 0; k++ {
				m := moves.Get(rng.IntN(moves.Len()))
				if !pos.MakeMove(m) {
					t.Fatalf("legal move %v rejected", m)
				}
				stack.Push(pos)
				walk(d - 1)
				pos.UnmakeMove()
				stack.Pop()
			}
			if d >= 2 && !pos.InCheck() {
				pos.MakeNullMove()
				stack.PushNull()
				walk(d - 2)
				pos.UnmakeNullMove()
				stack.Pop()
			}
		}
		walk(depth)
		if checked == 0 {
			t.Fatalf("%s: nothing checked", fen)
		}
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	net := randomNet()
	pos, _ := board.ParseFEN("r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1")
	a := NewEvaluator(net)
	b := NewEvaluator(net)
	if x, y := a.Evaluate(pos), a.Evaluate(pos); x != y {
		t.Fatalf("repeated evaluation %d != %d", x, y)
	}
	if x, y := a.Evaluate(pos), b.Evaluate(pos); x != y {
		t.Fatalf("evaluators disagree: %d != %d", x, y)
	}
}

func TestForwardOutputScaling(t *testing.T) {
	tests := []struct {
		bias int32
		want int
	}{
		{0, 0},
		{16 * 37, 37},
		{-33, -2},
		{15, 0},
		{-16 * 5, -5},
	}
	net := NewNetwork()
	var acc Accumulator
	for _, tt := range tests {
		net.Output.Biases[0] = tt.bias
		if got := net.Forward(&acc, board.White); got != tt.want {
			t.Errorf("bias %d: got %d, want %d", tt.bias, got, tt.want)
		}
	}
}

func TestHiddenActivation(t *testing.T) {
	in := make([]int32, Hidden1Dims)
	copy(in, []int32{-1000, -1, 0, 63, 64, 127 << 6, 128 << 6, 1 << 20})
	want := []uint8{0, 0, 0, 0, 1, 127, 127, 127}
	got := make([]uint8, Hidden1Dims)
	NewNetwork().relu1.Propagate(in, got)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("activation(%d) = %d, want %d", in[i], got[i], want[i])
		}
	}
}

func TestClipTransformed(t *testing.T) {
	in := []int16{-32768, -1, 0, 1, 126, 127, 128, 32767}
	want := []uint8{0, 0, 0, 1, 126, 127, 127, 127}
	got := make([]uint8, len(in))
	clipTransformed(got, in)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("clipTransformed(%d) = %d, want %d", in[i], got[i], want[i])
		}
	}
}

// referenceForward is a direct transcription of the fixed-point contract.
func referenceForward(n *Network, acc *Accumulator, stm board.Color) int {
	clamp := func(v int32) int32 { return max(0, min(v, 127)) }
	input := make([]int32, 0, TransformedDims)
	for _, side := range []board.Color{stm, stm.Other()} {
		for _, v := range acc.Values[side] {
			input = append(input, clamp(int32(v)))
		}
	}
	for l, a := range n.hidden() {
		next := make([]int32, a.OutputDimensions)
		for o := range next {
			sum := a.Biases[o]
			for i, w := range row(a, o) {
				sum += int32(w) * input[i]
			}
			if l < 2 {
				sum = clamp(sum >> WeightShift)
			}
			next[o] = sum
		}
		input = next
	}
	return int(input[0] / OutputDivisor)
}

func TestForwardMatchesReference(t *testing.T) {
	net := randomNet()
	fens := []string{
		board.StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 b - - 0 1",
	}
	for _, fen := range fens {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatal(err)
		}
		var acc Accumulator
		net.ComputeFull(pos, &acc)
		for _, stm := range []board.Color{board.White, board.Black} {
			if got, want := net.Forward(&acc, stm), referenceForward(net, &acc, stm); got != want {
				t.Errorf("%s (%v to move): Forward = %d, reference %d", fen, stm, got, want)
			}
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	net := randomNet()
	buf := net.Encode()
	if len(buf) != FileSize {
		t.Fatalf("encoded %d bytes, want %d", len(buf), FileSize)
	}
	got, err := Load(bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Encode(), buf) {
		t.Fatal("decoded network re-encodes differently")
	}

	pos := board.NewPosition()
	if a, b := NewEvaluator(net).Evaluate(pos), NewEvaluator(got).Evaluate(pos); a != b {
		t.Fatalf("loaded network evaluates %d, original %d", b, a)
	}
}

func TestDecodeRejectsCorruptFiles(t *testing.T) {
	good := randomNet().Encode()
	corrupt := func(f func([]byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"truncated", good[:FileSize-1], ErrSize},
		{"trailing", append(append([]byte(nil), good...), 0), ErrSize},
		{"empty", nil, ErrSize},
		{"version", corrupt(func(b []byte) []byte { b[0] ^= 1; return b }), ErrBadVersion},
		{"transformer", corrupt(func(b []byte) []byte { b[headerSize+1000] ^= 0x40; return b }), ErrChecksum},
		{"hidden", corrupt(func(b []byte) []byte { b[headerSize+transformerSize+5] ^= 1; return b }), ErrChecksum},
		{"output", corrupt(func(b []byte) []byte { b[FileSize-1] ^= 1; return b }), ErrChecksum},
		{"checksum field", corrupt(func(b []byte) []byte { b[8] ^= 1; return b }), ErrChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if n != nil {
				t.Fatal("network returned alongside an error")
			}
		})
	}
}

func TestReadAffineShortInput(t *testing.T) {
	net := randomNet()
	var buf bytes.Buffer
	if err := writeAffine(&buf, net.Hidden2); err != nil {
		t.Fatal(err)
	}
	full := buf.Bytes()

	if err := readAffine(bytes.NewReader(full), layers.NewAffineTransform(Hidden1Dims, Hidden2Dims)); err != nil {
		t.Fatalf("full layer: %v", err)
	}
	for _, n := range []int{0, 3, Hidden2Dims * 4, len(full) - 1} {
		if err := readAffine(bytes.NewReader(full[:n]), layers.NewAffineTransform(Hidden1Dims, Hidden2Dims)); err == nil {
			t.Errorf("%d of %d bytes: no error", n, len(full))
		}
	}
}

func TestSaveLoadFile(t *testing.T) {
	net := randomNet()
	want := net.Encode()
	dir := t.TempDir()
	for _, compress := range []bool{false, true} {
		path := filepath.Join(dir, "plain.nnue")
		if compress {
			path = filepath.Join(dir, "packed.nnue.zst")
		}
		if err := net.SaveFile(path, compress); err != nil {
			t.Fatal(err)
		}
		got, err := LoadFile(path)
		if err != nil {
			t.Fatalf("compress=%v: %v", compress, err)
		}
		if !bytes.Equal(got.Encode(), want) {
			t.Fatalf("compress=%v: file round trip changed the network", compress)
		}
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.nnue")); err == nil {
		t.Fatal("missing file loaded")
	}
}
