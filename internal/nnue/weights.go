package nnue

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// weightsMagic identifies a corvid NNUE weights blob; weightsVersion guards
// against layout changes (HIDDEN/KING_BUCKETS/OUTPUT_BUCKETS are baked into
// the file, not negotiated).
const (
	weightsMagic   uint32 = 0x434e4e45 // "CNNE"
	weightsVersion uint32 = 1
)

// LoadNetwork reads a quantized weights blob from path.
func LoadNetwork(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadNetworkFromReader(bufio.NewReader(f))
}

// LoadNetworkFromReader reads the header then the four weight sections in
// the fixed order feature_weights, feature_biases, output_weights,
// output_bias, each a flat little-endian int16 array.
func LoadNetworkFromReader(r io.Reader) (*Network, error) {
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("nnue: reading magic: %w", err)
	}
	if magic != weightsMagic {
		return nil, fmt.Errorf("nnue: bad magic %08x", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("nnue: reading version: %w", err)
	}
	if version != weightsVersion {
		return nil, fmt.Errorf("nnue: unsupported version %d", version)
	}

	net := &Network{}

	for i := range net.FeatureWeights {
		if err := binary.Read(r, binary.LittleEndian, net.FeatureWeights[i][:]); err != nil {
			return nil, fmt.Errorf("nnue: feature_weights row %d: %w", i, err)
		}
	}
	if err := binary.Read(r, binary.LittleEndian, net.FeatureBiases[:]); err != nil {
		return nil, fmt.Errorf("nnue: feature_biases: %w", err)
	}
	for i := range net.OutputWeights {
		if err := binary.Read(r, binary.LittleEndian, net.OutputWeights[i][:]); err != nil {
			return nil, fmt.Errorf("nnue: output_weights row %d: %w", i, err)
		}
	}
	if err := binary.Read(r, binary.LittleEndian, net.OutputBias[:]); err != nil {
		return nil, fmt.Errorf("nnue: output_bias: %w", err)
	}

	return net, nil
}

// SaveNetwork writes net to path in the same format LoadNetwork reads,
// mirroring the teacher's Polyglot-book save/load symmetry.
func SaveNetwork(net *Network, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, weightsMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, weightsVersion); err != nil {
		return err
	}
	for i := range net.FeatureWeights {
		if err := binary.Write(w, binary.LittleEndian, net.FeatureWeights[i][:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, net.FeatureBiases[:]); err != nil {
		return err
	}
	for i := range net.OutputWeights {
		if err := binary.Write(w, binary.LittleEndian, net.OutputWeights[i][:]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, net.OutputBias[:]); err != nil {
		return err
	}

	return w.Flush()
}
