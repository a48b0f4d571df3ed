// Package nnue implements the accumulator-based efficiently-updatable neural
// network evaluator: king-bucketed HalfKA-style features, lazy incremental
// accumulator updates, and a quantized forward pass.
package nnue

import "github.com/corvidchess/corvid/internal/board"

// Evaluator wraps a loaded network with the per-search-thread state needed
// to evaluate positions incrementally: the accumulator stack mirrors the
// position's make/unmake history, and the Finny tables provide the refresh
// path for king moves that invalidate incremental updates.
type Evaluator struct {
	net   *Network
	stack *AccumulatorStack
	finny *FinnyTables
}

// NewEvaluator loads weights from weightsFile and returns a ready evaluator.
// The caller must call Reset on an actual position before the first Evaluate.
func NewEvaluator(weightsFile string) (*Evaluator, error) {
	net, err := LoadNetwork(weightsFile)
	if err != nil {
		return nil, err
	}

	return &Evaluator{
		net:   net,
		stack: NewAccumulatorStack(),
		finny: NewFinnyTables(),
	}, nil
}

// Reset rebuilds the accumulator stack from scratch for pos, to be called
// whenever the evaluator is pointed at a new game or root position.
func (e *Evaluator) Reset(pos *board.Position) {
	e.stack.Reset()
	acc := e.stack.Current()
	acc.KingSq = pos.KingSquare
	acc.fullCompute(pos, e.net, board.White)
	acc.fullCompute(pos, e.net, board.Black)
}

// Push advances the evaluator for a move about to be made: dirty must come
// from ComputeDirtyPieces called against pos BEFORE MakeMove, while Push
// itself must be called AFTER MakeMove so the new top-of-stack slot records
// the resulting king squares.
func (e *Evaluator) Push(dirty DirtyPieces, pos *board.Position) {
	e.stack.Push(dirty, pos)
}

// Pop rewinds the evaluator after a move is unmade.
func (e *Evaluator) Pop() {
	e.stack.Pop()
}

// Evaluate returns a centipawn score for pos from its side to move's point
// of view, materializing any accumulator values left lazily unfolded.
func (e *Evaluator) Evaluate(pos *board.Position) int {
	refresh := func(perspective board.Color) {
		acc := e.stack.Current()
		e.finny.Refresh(pos, perspective, e.net, &acc.Values[perspective])
		acc.Computed[perspective] = true
	}

	e.stack.ensureComputed(board.White, e.net, refresh)
	e.stack.ensureComputed(board.Black, e.net, refresh)

	acc := e.stack.Current()
	us, them := perspectiveOrder(&acc.Values, pos.SideToMove)
	pieceCount := pos.AllOccupied.PopCount()

	return Evaluate(us, them, e.net, pieceCount)
}
