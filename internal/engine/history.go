package engine

import "github.com/corvidchess/corvid/internal/board"

// historyMax bounds every history table to ±historyMax via the gravity
// update rule, so no table needs periodic halving.
const historyMax = 16384

// historyBonus returns the gravity-update magnitude for a fail-high (or
// malus, for a rejected quiet) at the given depth.
func historyBonus(depth int) int {
	b := depth*364 - 66
	if b < 0 {
		return 0
	}
	if b > 1882 {
		return 1882
	}
	return b
}

// gravityUpdate applies `x += bonus - x*|bonus|/max`, the self-bounding
// history update every table below shares.
func gravityUpdate(x int, bonus int) int {
	if bonus < 0 {
		return x + bonus - x*(-bonus)/historyMax
	}
	return x + bonus - x*bonus/historyMax
}

// HistoryTables holds the side-aware move-ordering tables used by the move
// picker, aged (scaled down) rather than cleared between searches so
// learned ordering carries across iterative-deepening iterations.
type HistoryTables struct {
	// main history: [color][from][to].
	main [2][64][64]int16

	// capture history: [piece][to][captured-type].
	capture [12][64][6]int16

	// continuation history: [prev-piece][prev-to][piece][to]. Index 0 is
	// keyed by the move one ply back; index 1 is allocated (and aged by
	// Clear) but nothing reads or updates it.
	continuation [2][12][64][12][64]int16

	// counter-move table: [opp-color][prev-piece][prev-to] -> move.
	counterMove [2][12][64]board.Move

	killers [MaxPly][2]board.Move
}

// NewHistoryTables returns an empty set of history tables.
func NewHistoryTables() *HistoryTables {
	return &HistoryTables{}
}

// Clear ages the tables for a new search: main, capture and continuation
// scores are halved rather than zeroed, so move ordering carries from one
// search to the next, while the counter-move and killer slots are reset.
func (h *HistoryTables) Clear() {
	for c := range h.main {
		for f := range h.main[c] {
			for t := range h.main[c][f] {
				h.main[c][f][t] /= 2
			}
		}
	}
	for p := range h.capture {
		for t := range h.capture[p] {
			for v := range h.capture[p][t] {
				h.capture[p][t][v] /= 2
			}
		}
	}
	for k := range h.continuation {
		for pp := range h.continuation[k] {
			for pt := range h.continuation[k][pp] {
				for p := range h.continuation[k][pp][pt] {
					for t := range h.continuation[k][pp][pt][p] {
						h.continuation[k][pp][pt][p][t] /= 2
					}
				}
			}
		}
	}
	for c := range h.counterMove {
		for p := range h.counterMove[c] {
			for t := range h.counterMove[c][p] {
				h.counterMove[c][p][t] = board.NoMove
			}
		}
	}
	for i := range h.killers {
		h.killers[i][0] = board.NoMove
		h.killers[i][1] = board.NoMove
	}
}

// Main returns the main-history score for a quiet move by the side to move.
func (h *HistoryTables) Main(us board.Color, m board.Move) int {
	return int(h.main[us][m.From()][m.To()])
}

// UpdateMain applies a gravity bonus/malus to a quiet move's main history.
func (h *HistoryTables) UpdateMain(us board.Color, m board.Move, bonus int) {
	from, to := m.From(), m.To()
	h.main[us][from][to] = int16(gravityUpdate(int(h.main[us][from][to]), bonus))
}

// Capture returns the capture-history score for attackerPiece taking a
// capturedType piece on toSq.
func (h *HistoryTables) Capture(attackerPiece board.Piece, toSq board.Square, capturedType board.PieceType) int {
	if attackerPiece == board.NoPiece || capturedType >= board.King {
		return 0
	}
	return int(h.capture[attackerPiece][toSq][capturedType])
}

// UpdateCapture applies a gravity bonus/malus to a capture's history.
func (h *HistoryTables) UpdateCapture(attackerPiece board.Piece, toSq board.Square, capturedType board.PieceType, bonus int) {
	if attackerPiece == board.NoPiece || capturedType >= board.King {
		return
	}
	cell := &h.capture[attackerPiece][toSq][capturedType]
	*cell = int16(gravityUpdate(int(*cell), bonus))
}

// Continuation returns the continuation-history score at the given stack
// depth (0 = one ply back, 1 = two plies back) for a quiet move given the
// piece/to-square of the move that many plies earlier.
func (h *HistoryTables) Continuation(stackBack int, prevPiece board.Piece, prevTo board.Square, piece board.Piece, to board.Square) int {
	if prevPiece == board.NoPiece {
		return 0
	}
	return int(h.continuation[stackBack][prevPiece][prevTo][piece][to])
}

// UpdateContinuation applies a gravity bonus/malus to a continuation-history
// entry.
func (h *HistoryTables) UpdateContinuation(stackBack int, prevPiece board.Piece, prevTo board.Square, piece board.Piece, to board.Square, bonus int) {
	if prevPiece == board.NoPiece {
		return
	}
	cell := &h.continuation[stackBack][prevPiece][prevTo][piece][to]
	*cell = int16(gravityUpdate(int(*cell), bonus))
}

// SetCounterMove records reply as the counter-move to prevMove, played by
// prevPiece on prevMove's destination.
func (h *HistoryTables) SetCounterMove(us board.Color, prevPiece board.Piece, prevTo board.Square, reply board.Move) {
	if prevPiece == board.NoPiece {
		return
	}
	h.counterMove[us][prevPiece][prevTo] = reply
}

// CounterMove returns the recorded counter-move to a previous move by
// prevPiece landing on prevTo, from the opponent's (us's) table.
func (h *HistoryTables) CounterMove(us board.Color, prevPiece board.Piece, prevTo board.Square) board.Move {
	if prevPiece == board.NoPiece {
		return board.NoMove
	}
	return h.counterMove[us][prevPiece][prevTo]
}

// Killers returns the two killer moves recorded for ply.
func (h *HistoryTables) Killers(ply int) (board.Move, board.Move) {
	return h.killers[ply][0], h.killers[ply][1]
}

// UpdateKillers records m as the newest killer at ply, demoting the
// previous first killer to second.
func (h *HistoryTables) UpdateKillers(ply int, m board.Move) {
	if ply >= MaxPly || h.killers[ply][0] == m {
		return
	}
	h.killers[ply][1] = h.killers[ply][0]
	h.killers[ply][0] = m
}
