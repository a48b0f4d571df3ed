package nnue

import (
	"math/rand"
	"testing"

	"github.com/corvidchess/corvid/internal/board"
)

// randomNetwork builds a small deterministic weight set so evaluation is
// exercised without depending on a real trained blob.
func randomNetwork(seed int64) *Network {
	r := rand.New(rand.NewSource(seed))
	net := &Network{}

	for i := range net.FeatureWeights {
		for j := range net.FeatureWeights[i] {
			net.FeatureWeights[i][j] = int16(r.Intn(2*QA+1) - QA)
		}
	}
	for i := range net.FeatureBiases {
		net.FeatureBiases[i] = int16(r.Intn(201) - 100)
	}
	for i := range net.OutputWeights {
		for j := range net.OutputWeights[i] {
			net.OutputWeights[i][j] = int16(r.Intn(201) - 100)
		}
	}
	for i := range net.OutputBias {
		net.OutputBias[i] = int16(r.Intn(201) - 100)
	}

	return net
}

func newTestEvaluator(net *Network) *Evaluator {
	return &Evaluator{
		net:   net,
		stack: NewAccumulatorStack(),
		finny: NewFinnyTables(),
	}
}

// freshEvaluate builds an evaluator from scratch against pos and returns its
// score, used as the ground truth the incremental path must match.
func freshEvaluate(net *Network, pos *board.Position) int {
	e := newTestEvaluator(net)
	e.Reset(pos)
	return e.Evaluate(pos)
}

// TestIncrementalMatchesRefresh walks several plies of legal moves, keeping
// one evaluator updated incrementally via Push/Pop alongside a from-scratch
// evaluation at every node, and requires them to agree exactly. This is the
// accumulator's core correctness invariant: the lazily folded/refreshed
// value must always equal a full rebuild from the current position.
func TestIncrementalMatchesRefresh(t *testing.T) {
	net := randomNetwork(1)
	pos := board.NewPosition()

	e := newTestEvaluator(net)
	e.Reset(pos)

	if got, want := e.Evaluate(pos), freshEvaluate(net, pos); got != want {
		t.Fatalf("root: incremental eval = %d, want %d", got, want)
	}

	var walk func(depth int)
	walk = func(depth int) {
		if depth == 0 {
			return
		}

		moves := board.NewMoveList()
		pos.GenerateLegalMoves(moves)

		for i := 0; i < moves.Len() && i < 8; i++ {
			m := moves.Get(i)

			dirty := ComputeDirtyPieces(pos, m)
			pos.MakeMove(m)
			e.Push(dirty, pos)

			got := e.Evaluate(pos)
			want := freshEvaluate(net, pos)
			if got != want {
				t.Fatalf("depth %d move %v: incremental eval = %d, want %d", depth, m, got, want)
			}

			walk(depth - 1)

			e.Pop()
			pos.UnmakeMove(m)
		}
	}

	walk(3)
}

// TestOutputBucketMonotonic checks the output bucket selector stays within
// range and decreases (or holds) as pieces come off the board.
func TestOutputBucketMonotonic(t *testing.T) {
	prev := outputBucket(32)
	for pc := 31; pc >= 2; pc-- {
		b := outputBucket(pc)
		if b < 0 || b >= OutputBuckets {
			t.Fatalf("outputBucket(%d) = %d out of range", pc, b)
		}
		if b > prev {
			t.Fatalf("outputBucket(%d) = %d, want <= previous bucket %d", pc, b, prev)
		}
		prev = b
	}
}

// TestOrientKingNormalizedToADFiles checks the king's own oriented square is
// always on the a-d files (horizontal mirror applied when needed), for
// every starting square and both perspectives.
func TestOrientKingNormalizedToADFiles(t *testing.T) {
	for sq := board.Square(0); sq < 64; sq++ {
		for _, c := range []board.Color{board.White, board.Black} {
			_, orientedKingSq, _ := orient(c, sq, sq)
			if orientedKingSq.File()&4 != 0 {
				t.Fatalf("perspective %v king %v oriented to %v: file %d not normalized", c, sq, orientedKingSq, orientedKingSq.File())
			}
		}
	}
}
