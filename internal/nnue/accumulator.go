package nnue

import "github.com/corvidchess/corvid/internal/board"

// MaxPly bounds the accumulator stack, mirroring the search stack's own
// fixed-depth bound.
const MaxPly = 128

// Accumulator holds one search node's feature-transformer output for both
// perspectives, the dirty-piece record of the move leading into this node,
// and the king squares of the resulting position (needed to re-derive
// feature indices for entries folded in from this slot). Values[c] is only
// valid to read once Computed[c] is true; until then it is folded in lazily
// by applyLazyFold.
type Accumulator struct {
	Values   [2][Hidden]int16
	Computed [2]bool
	Dirty    DirtyPieces
	KingSq   [2]board.Square
}

// fullCompute rebuilds Values[perspective] from scratch by enumerating every
// piece on the board, used for the search root and for king-bucket refresh.
func (acc *Accumulator) fullCompute(pos *board.Position, net *Network, perspective board.Color) {
	values := &acc.Values[perspective]
	copy(values[:], net.FeatureBiases[:])

	kingSq := pos.KingSquare[perspective]
	for c := board.White; c <= board.Black; c++ {
		for pt := board.Pawn; pt <= board.King; pt++ {
			bb := pos.Pieces[c][pt]
			for bb != 0 {
				sq := bb.PopLSB()
				idx := MakeIndex(perspective, sq, pt, c, kingSq)
				addRow(values, net, idx)
			}
		}
	}

	acc.Computed[perspective] = true
}

// AccumulatorStack parallels the position's status history: one slot per
// ply, advanced on Push (called after MakeMove, so the resulting king
// squares are available) and rewound on Pop (called after UnmakeMove).
type AccumulatorStack struct {
	slots [MaxPly]Accumulator
	top   int
}

// NewAccumulatorStack creates a stack with an empty root slot. The caller
// must populate slot 0 via fullCompute (through Evaluator.Reset) before any
// Evaluate call.
func NewAccumulatorStack() *AccumulatorStack {
	return &AccumulatorStack{}
}

// Push advances the stack for a move just made, recording its dirty pieces
// and the resulting king squares. The new slot starts uncomputed for both
// perspectives; values are folded in lazily on read.
func (s *AccumulatorStack) Push(dirty DirtyPieces, pos *board.Position) {
	s.top++
	s.slots[s.top] = Accumulator{Dirty: dirty, KingSq: pos.KingSquare}
}

// Pop rewinds the stack after a move is unmade.
func (s *AccumulatorStack) Pop() {
	s.top--
}

// Current returns the accumulator slot for the position at the top of the
// stack.
func (s *AccumulatorStack) Current() *Accumulator {
	return &s.slots[s.top]
}

// Reset clears the stack back to a single root slot.
func (s *AccumulatorStack) Reset() {
	s.top = 0
	s.slots[0] = Accumulator{}
}

// ensureComputed materializes Values[perspective] at the top of the stack.
// It walks backward to the nearest ancestor already computed for this
// perspective and folds the intervening sub/add operations forward — unless
// a king-bucket Refresh flag is crossed along the way, in which case folding
// is abandoned and refreshTop recomputes the top-of-stack position directly
// (via the Finny table) against the live board, since no historical board
// state is kept to recompute an intermediate ancestor from scratch.
func (s *AccumulatorStack) ensureComputed(perspective board.Color, net *Network, refreshTop func(board.Color)) {
	if s.slots[s.top].Computed[perspective] {
		return
	}

	i := s.top
	needsRefresh := false
	for i > 0 && !s.slots[i].Computed[perspective] {
		if s.slots[i].Dirty.Refresh[perspective] {
			needsRefresh = true
		}
		i--
	}

	if needsRefresh {
		refreshTop(perspective)
		return
	}

	acc := &s.slots[s.top]
	copy(acc.Values[perspective][:], s.slots[i].Values[perspective][:])

	for j := i + 1; j <= s.top; j++ {
		d := &s.slots[j].Dirty
		kingSq := s.slots[j].KingSq[perspective]
		for k := 0; k < d.NumSub; k++ {
			e := d.Sub[k]
			subtractRow(&acc.Values[perspective], net, MakeIndex(perspective, e.sq, e.piece.Type(), e.piece.Color(), kingSq))
		}
		for k := 0; k < d.NumAdd; k++ {
			e := d.Add[k]
			addRow(&acc.Values[perspective], net, MakeIndex(perspective, e.sq, e.piece.Type(), e.piece.Color(), kingSq))
		}
	}

	acc.Computed[perspective] = true
}

func addRow(values *[Hidden]int16, net *Network, idx int) {
	row := &net.FeatureWeights[idx]
	for i := range values {
		values[i] += row[i]
	}
}

func subtractRow(values *[Hidden]int16, net *Network, idx int) {
	row := &net.FeatureWeights[idx]
	for i := range values {
		values[i] -= row[i]
	}
}
