package nnue

import "github.com/corvidchess/corvid/internal/board"

// Network holds the quantized weights of a trained net: a feature
// transformer (one row per input feature, shared across king buckets via
// MakeIndex's bucket offset) and an output layer selected by material-count
// bucket.
type Network struct {
	FeatureWeights [KingBuckets * Input][Hidden]int16
	FeatureBiases  [Hidden]int16
	OutputWeights  [2 * Hidden][OutputBuckets]int16
	OutputBias     [OutputBuckets]int16
}

// screlu is the squared clipped ReLU activation: clamp to [0, QA], then
// square. Computed in int32 since QA*QA already exceeds int16 range.
func screlu(x int16) int32 {
	v := int32(x)
	if v < 0 {
		v = 0
	} else if v > QA {
		v = QA
	}
	return v * v
}

// outputBucket maps the total piece count (2..32, both kings included) to
// one of OutputBuckets output-layer columns: fewer pieces on the board
// select an earlier bucket, more material a later one.
func outputBucket(pieceCount int) int {
	const divisor = (32 + OutputBuckets - 1) / OutputBuckets
	b := (pieceCount - 2) / divisor
	if b < 0 {
		b = 0
	}
	if b >= OutputBuckets {
		b = OutputBuckets - 1
	}
	return b
}

// Evaluate runs the output layer over both perspectives' feature-transformer
// output, returning a centipawn score from sideToMove's point of view. us is
// placed first and them second, matching the output-weight layout's
// [2*Hidden] concatenation (own half, then opponent half).
func Evaluate(us, them *[Hidden]int16, net *Network, pieceCount int) int {
	bucket := outputBucket(pieceCount)

	var sum int64
	wcol := &net.OutputWeights
	for i := 0; i < Hidden; i++ {
		sum += int64(screlu(us[i])) * int64(wcol[i][bucket])
	}
	for i := 0; i < Hidden; i++ {
		sum += int64(screlu(them[i])) * int64(wcol[Hidden+i][bucket])
	}

	sum /= QA
	sum += int64(net.OutputBias[bucket])
	sum = sum * Scale / (QA * QB)

	return int(sum)
}

// perspectiveOrder returns the us/them accumulator halves in the order
// Evaluate expects, given whose turn it is to move.
func perspectiveOrder(values *[2][Hidden]int16, sideToMove board.Color) (us, them *[Hidden]int16) {
	if sideToMove == board.White {
		return &values[board.White], &values[board.Black]
	}
	return &values[board.Black], &values[board.White]
}
