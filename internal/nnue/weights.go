package nnue

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"github.com/hailam/chessplay/sfnnue/common"
	"github.com/hailam/chessplay/sfnnue/layers"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Weight file layout (little-endian):
//
//	header:      version uint32, then checksums of the three sections
//	transformer: HalfDims int16 biases, NumFeatures*HalfDims int16 weights
//	hidden:      layer 1 int32 biases and int8 weights, then layer 2
//	output:      one int32 bias, Hidden2Dims int8 weights
//
// A checksum is the low 32 bits of the section's xxhash64.
const (
	Version uint32 = 0x4B4E0001

	headerSize      = 16
	transformerSize = HalfDims*2 + NumFeatures*HalfDims*2
	hiddenSize      = Hidden1Dims*4 + Hidden1Dims*TransformedDims + Hidden2Dims*4 + Hidden2Dims*Hidden1Dims
	outputSize      = 4 + Hidden2Dims
	FileSize        = headerSize + transformerSize + hiddenSize + outputSize
)

// Transformer weights are decoded in parallel, this many features per task.
const decodeChunkFeatures = 4096

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func checksum(b []byte) uint32 {
	return uint32(xxhash.Sum64(b))
}

// sections splits a file buffer of FileSize bytes into its three sections.
func sections(buf []byte) [3][]byte {
	t := buf[headerSize : headerSize+transformerSize]
	h := buf[headerSize+transformerSize : headerSize+transformerSize+hiddenSize]
	o := buf[headerSize+transformerSize+hiddenSize:]
	return [3][]byte{t, h, o}
}

var sectionNames = [3]string{"transformer", "hidden", "output"}

// Decode validates and decodes a complete weight file. Nothing is returned
// unless the size, version and all three checksums match.
func Decode(buf []byte) (*Network, error) {
	if len(buf) != FileSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrSize, len(buf), FileSize)
	}
	le := binary.LittleEndian
	if v := le.Uint32(buf); v != Version {
		return nil, fmt.Errorf("%w: %#x", ErrBadVersion, v)
	}

	secs := sections(buf)
	var g errgroup.Group
	for i, sec := range secs {
		want := le.Uint32(buf[4+4*i:])
		g.Go(func() error {
			if got := checksum(sec); got != want {
				return fmt.Errorf("%w: %s section %#08x, want %#08x", ErrChecksum, sectionNames[i], got, want)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := NewNetwork()

	t := bytes.NewReader(secs[0])
	if err := common.ReadLittleEndianSlice(t, n.FTBiases[:]); err != nil {
		return nil, fmt.Errorf("nnue: transformer biases: %w", err)
	}
	weights := secs[0][HalfDims*2:]
	var dg errgroup.Group
	dg.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < NumFeatures; start += decodeChunkFeatures {
		end := min(start+decodeChunkFeatures, NumFeatures)
		dg.Go(func() error {
			r := bytes.NewReader(weights[2*start*HalfDims : 2*end*HalfDims])
			if err := common.ReadLittleEndianSlice(r, n.FTWeights[start*HalfDims:end*HalfDims]); err != nil {
				return fmt.Errorf("nnue: transformer features %d-%d: %w", start, end, err)
			}
			return nil
		})
	}
	if err := dg.Wait(); err != nil {
		return nil, err
	}

	h := bytes.NewReader(secs[1])
	for i, a := range []*layers.AffineTransform{n.Hidden1, n.Hidden2} {
		if err := readAffine(h, a); err != nil {
			return nil, fmt.Errorf("nnue: hidden layer %d: %w", i+1, err)
		}
	}
	if err := readAffine(bytes.NewReader(secs[2]), n.Output); err != nil {
		return nil, fmt.Errorf("nnue: output layer: %w", err)
	}
	return n, nil
}

// readAffine reads int32 biases followed by int8 weights, one output row
// after another.
func readAffine(r io.Reader, a *layers.AffineTransform) error {
	if err := common.ReadLittleEndianSlice(r, a.Biases); err != nil {
		return err
	}
	for o := range a.OutputDimensions {
		if err := common.ReadLittleEndianSlice(r, row(a, o)); err != nil {
			return err
		}
	}
	return nil
}

func writeAffine(w io.Writer, a *layers.AffineTransform) error {
	if err := common.WriteLittleEndian(w, a.Biases); err != nil {
		return err
	}
	for o := range a.OutputDimensions {
		if err := common.WriteLittleEndian(w, row(a, o)); err != nil {
			return err
		}
	}
	return nil
}

// Encode serializes the network into the weight file format.
func (n *Network) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(FileSize)
	// Writes to a bytes.Buffer cannot fail.
	_ = common.WriteLittleEndian(&buf, [4]uint32{Version})
	_ = common.WriteLittleEndian(&buf, n.FTBiases[:])
	_ = common.WriteLittleEndian(&buf, n.FTWeights)
	for _, a := range n.hidden() {
		_ = writeAffine(&buf, a)
	}

	out := buf.Bytes()
	for i, sec := range sections(out) {
		binary.LittleEndian.PutUint32(out[4+4*i:], checksum(sec))
	}
	return out
}

// Load reads a weight file from r.
func Load(r io.Reader) (*Network, error) {
	buf, err := io.ReadAll(io.LimitReader(r, FileSize+1))
	if err != nil {
		return nil, fmt.Errorf("nnue: read network: %w", err)
	}
	return Decode(buf)
}

// Save writes the network to w.
func (n *Network) Save(w io.Writer) error {
	_, err := w.Write(n.Encode())
	return err
}

// LoadFile loads a weight file, decompressing it first if it is zstd framed.
func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nnue: open network: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	magic, _ := br.Peek(len(zstdMagic))
	compressed := bytes.Equal(magic, zstdMagic)
	if compressed {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("nnue: zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	n, err := Load(r)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("component", "nnue").
		Str("path", path).
		Bool("compressed", compressed).
		Msg("network loaded")
	return n, nil
}

// SaveFile writes the network to path, zstd compressed if compress is set.
func (n *Network) SaveFile(path string, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("nnue: create network file: %w", err)
	}
	var w io.Writer = f
	var enc *zstd.Encoder
	if compress {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("nnue: zstd writer: %w", err)
		}
		w = enc
	}
	if err := n.Save(w); err != nil {
		f.Close()
		return fmt.Errorf("nnue: write network: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			f.Close()
			return fmt.Errorf("nnue: finish zstd stream: %w", err)
		}
	}
	return f.Close()
}
