package engine

import (
	"math"
	"sync/atomic"

	"github.com/corvidchess/corvid/internal/board"
	"github.com/corvidchess/corvid/internal/nnue"
	"github.com/corvidchess/corvid/internal/tablebase"
)

// Search bounds shared across the engine package.
const (
	Infinity  = 30000
	MateScore = 29000
	MaxPly    = 128
)

// debugAssertions gates the worker's development-only self-checks. Left
// false in normal builds; flip to catch position corruption while working
// on move generation or the make/unmake path.
const debugAssertions = false

// Pruning and extension tuning, ported from the teacher's worker.go and
// grounded in the node contract of §4.8.
const (
	razoringDepth      = 5
	razoringMarginBase = 485
	razoringMarginStep = 281

	snmpDepth  = 6
	snmpMargin = 80

	nmpDepth      = 3
	nmpBaseReduce = 4

	probcutSearchDepth = 5
	probcutMargin      = 235

	futilityDepth = 5

	lmpDepth = 7

	seeQuietMargin = -64
	seeNoisyMargin = -20

	historyPruningDepth     = 3
	historyPruningThreshold = -2000

	singularDepth = 6

	lazyEvalMargin = 900
)

var futilityMargin = [futilityDepth + 1]int{0, 200, 300, 500, 700, 900}
var lmpThreshold = [lmpDepth + 1]int{0, 5, 8, 13, 18, 23, 30, 38}

// lmrReductions is a precomputed logarithmic reduction table, Stockfish's
// 21.46*log(depth)*log(moveCount)/1024 formula.
var lmrReductions [64][64]int

func init() {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			lmrReductions[d][m] = int(21.46 * math.Log(float64(d)) * math.Log(float64(m)) / 1024.0)
		}
	}
}

// PVTable stores the principal variation found at each ply.
type PVTable struct {
	length [MaxPly]int
	moves  [MaxPly][MaxPly]board.Move
}

// stackFrame is the per-ply search-stack record used for continuation
// history lookups, per §4.7/§4.8. Its reduction and cutoffCount fields are
// recorded but not read back; no hindsight depth adjustment is made.
type stackFrame struct {
	move        board.Move
	movedPiece  board.Piece
	moveTo      board.Square
	staticEval  int
	reduction   int
	cutoffCount int
}

// Worker is one Lazy-SMP search thread. Every field below is private to the
// worker except the transposition table, which is shared lock-free across
// all workers (§5).
type Worker struct {
	id int

	pos *board.Position

	tt          *TranspositionTable
	history     *HistoryTables
	corrHistory *CorrectionHistory
	pawnTable   *PawnTable
	nnueEval    *nnue.Evaluator

	stopFlag *atomic.Bool
	nodes    uint64

	pv    PVTable
	stack [MaxPly]stackFrame

	rootHashes []uint64

	tbProber     tablebase.Prober
	tbProbeDepth int

	resultCh chan<- WorkerResult
	depth    int
}

// WorkerResult is what a worker reports after finishing one iterative-
// deepening depth.
type WorkerResult struct {
	WorkerID int
	Depth    int
	Score    int
	Move     board.Move
	PV       []board.Move
	Nodes    uint64
}

// NewWorker creates a search worker sharing tt but owning its own move
// ordering and correction state.
func NewWorker(id int, tt *TranspositionTable, pawnTable *PawnTable, stopFlag *atomic.Bool) *Worker {
	return &Worker{
		id:           id,
		tt:           tt,
		pawnTable:    pawnTable,
		history:      NewHistoryTables(),
		corrHistory:  NewCorrectionHistory(),
		stopFlag:     stopFlag,
		tbProbeDepth: 1,
	}
}

// SetNNUE attaches a loaded NNUE evaluator to this worker.
func (w *Worker) SetNNUE(e *nnue.Evaluator) {
	w.nnueEval = e
}

// SetTablebase sets the tablebase prober for this worker.
func (w *Worker) SetTablebase(prober tablebase.Prober, probeDepth int) {
	w.tbProber = prober
	w.tbProbeDepth = probeDepth
	if w.tbProbeDepth < 1 {
		w.tbProbeDepth = 1
	}
}

// ID returns the worker's ID.
func (w *Worker) ID() int { return w.id }

// Nodes returns the number of nodes searched by this worker.
func (w *Worker) Nodes() uint64 { return w.nodes }

// Reset resets the worker for a new search, aging (not clearing) history so
// move ordering carries across searches.
func (w *Worker) Reset() {
	w.nodes = 0
	w.history.Clear()
	w.corrHistory.Age()
}

// SetRootHistory sets the game's position history (for repetition detection
// of positions reached before this search's root).
func (w *Worker) SetRootHistory(hashes []uint64) {
	w.rootHashes = make([]uint64, len(hashes))
	copy(w.rootHashes, hashes)
}

// SetResultChannel sets the channel results are sent on.
func (w *Worker) SetResultChannel(ch chan<- WorkerResult) {
	w.resultCh = ch
}

// InitSearch points the worker at pos, which must be a dedicated copy not
// shared with any other worker.
func (w *Worker) InitSearch(pos *board.Position) {
	w.pos = pos
	if w.nnueEval != nil {
		w.nnueEval.Reset(pos)
	}
}

// Pos returns the worker's current position.
func (w *Worker) Pos() *board.Position { return w.pos }

// GetPV returns the principal variation from the most recent search.
func (w *Worker) GetPV() []board.Move {
	pv := make([]board.Move, w.pv.length[0])
	copy(pv, w.pv.moves[0][:w.pv.length[0]])
	return pv
}

func (w *Worker) stopped() bool { return w.stopFlag.Load() }

// evaluate returns the static evaluation, NNUE if loaded, otherwise the
// classical pawn-table-cached evaluator.
func (w *Worker) evaluate() int {
	if w.nnueEval != nil {
		return w.nnueEval.Evaluate(w.pos)
	}
	return EvaluateWithPawnTable(w.pos, w.pawnTable)
}

func (w *Worker) makeMove(m board.Move, ply int) {
	if w.nnueEval != nil {
		dirty := nnue.ComputeDirtyPieces(w.pos, m)
		w.pos.MakeMove(m)
		w.nnueEval.Push(dirty, w.pos)
	} else {
		w.pos.MakeMove(m)
	}
	w.stack[ply].move = m
}

func (w *Worker) unmakeMove(m board.Move) {
	w.pos.UnmakeMove(m)
	if w.nnueEval != nil {
		w.nnueEval.Pop()
	}
}

// isDraw reports 50-move, insufficient material, or repetition draws,
// walking the position's own status-history stack plus the pre-root game
// history within the halfmove-clock horizon.
func (w *Worker) isDraw() bool {
	if w.pos.HalfMoveClock >= 100 {
		return true
	}
	if w.pos.IsInsufficientMaterial() {
		return true
	}

	hash := w.pos.Hash
	limit := w.pos.HalfMoveClock
	count := 0

	hist := w.pos.History()
	for i := len(hist) - 1; i >= 0 && limit > 0; i-- {
		if hist[i].Key == hash {
			count++
			if count >= 2 {
				return true
			}
		}
		limit--
	}
	for i := len(w.rootHashes) - 1; i >= 0 && limit > 0; i-- {
		if w.rootHashes[i] == hash {
			count++
			if count >= 2 {
				return true
			}
		}
		limit--
	}
	return false
}

// SearchDepth runs one iterative-deepening iteration at depth within the
// given aspiration window and reports the result on the worker's channel.
func (w *Worker) SearchDepth(depth, alpha, beta int) (board.Move, int) {
	w.depth = depth

	score := w.negamax(depth, 0, alpha, beta, board.NoMove, board.NoMove, false)

	var bestMove board.Move
	if w.pv.length[0] > 0 {
		bestMove = w.pv.moves[0][0]
	}
	if bestMove == board.NoMove && !w.stopFlag.Load() {
		moves := board.NewMoveList()
		w.pos.GenerateLegalMoves(moves)
		if moves.Len() > 0 {
			bestMove = moves.Get(0)
		}
	}

	if w.resultCh != nil && !w.stopFlag.Load() {
		w.resultCh <- WorkerResult{
			WorkerID: w.id,
			Depth:    depth,
			Score:    score,
			Move:     bestMove,
			PV:       w.GetPV(),
			Nodes:    w.nodes,
		}
	}

	return bestMove, score
}

// negamax is the PVS node function described by §4.8's node contract.
func (w *Worker) negamax(depth, ply int, alpha, beta int, prevMove, excludedMove board.Move, cutNode bool) int {
	if debugAssertions && alpha >= beta {
		panic("negamax: alpha >= beta on entry")
	}

	if ply >= MaxPly-1 {
		return w.evaluate()
	}

	if w.nodes&2047 == 0 && w.stopFlag.Load() {
		return 0
	}
	w.nodes++

	isPV := beta-alpha > 1
	w.pv.length[ply] = ply

	if ply > 0 {
		if w.isDraw() {
			return 0
		}
		if mAlpha := -MateScore + ply; mAlpha > alpha {
			alpha = mAlpha
		}
		if mBeta := MateScore - ply; mBeta < beta {
			beta = mBeta
		}
		if alpha >= beta {
			return alpha
		}
	}

	if ply > 0 && w.tbProber != nil && depth >= w.tbProbeDepth {
		pieceCount := tablebase.CountPieces(w.pos)
		if pieceCount <= w.tbProber.MaxPieces() {
			if tbResult := w.tbProber.Probe(w.pos); tbResult.Found {
				tbScore := tablebase.WDLToScore(tbResult.WDL, ply)
				switch tbResult.WDL {
				case tablebase.WDLWin, tablebase.WDLCursedWin:
					if tbScore >= beta {
						w.tt.Store(w.pos.Hash, depth, tbScore, tbScore, TTLowerBound, isPV, board.NoMove)
						return tbScore
					}
				case tablebase.WDLLoss, tablebase.WDLBlessedLoss:
					if tbScore <= alpha {
						w.tt.Store(w.pos.Hash, depth, tbScore, tbScore, TTUpperBound, isPV, board.NoMove)
						return tbScore
					}
				default:
					w.tt.Store(w.pos.Hash, depth, tbScore, tbScore, TTExact, isPV, board.NoMove)
					return tbScore
				}
			}
		}
	}

	ttResult := w.tt.Probe(w.pos.Hash)
	ttMove := ttResult.Move
	if ttResult.Hit && !isPV && ttResult.Depth >= depth {
		score := AdjustScoreFromTT(ttResult.Score, ply)
		switch ttResult.Bound {
		case TTExact:
			return score
		case TTLowerBound:
			if score >= beta {
				return score
			}
		case TTUpperBound:
			if score <= alpha {
				return score
			}
		}
	}

	if depth <= 0 {
		return w.quiescence(ply, alpha, beta)
	}

	inCheck := w.pos.InCheck()

	if depth >= 4 && ttMove == board.NoMove && !inCheck {
		depth--
	}

	var rawEval, staticEval int
	if inCheck {
		staticEval = -MateScore + ply
		w.stack[ply].staticEval = staticEval
	} else {
		rawEval = w.evaluate()
		staticEval = rawEval + w.corrHistory.Get(w.pos)
		if ttResult.Hit {
			switch ttResult.Bound {
			case TTExact:
				staticEval = AdjustScoreFromTT(ttResult.Score, ply)
			case TTLowerBound:
				if s := AdjustScoreFromTT(ttResult.Score, ply); s > staticEval {
					staticEval = s
				}
			case TTUpperBound:
				if s := AdjustScoreFromTT(ttResult.Score, ply); s < staticEval {
					staticEval = s
				}
			}
		}
		w.stack[ply].staticEval = staticEval
	}

	improving := false
	if !inCheck && ply >= 2 {
		improving = staticEval > w.stack[ply-2].staticEval
	}

	if ply+2 < MaxPly {
		w.stack[ply+2].cutoffCount = 0
	}

	if !isPV && !inCheck {
		if depth <= razoringDepth {
			margin := razoringMarginBase + razoringMarginStep*depth*depth
			if staticEval+margin <= alpha {
				score := w.quiescence(ply, alpha, alpha+1)
				if score <= alpha {
					return score
				}
			}
		}

		if depth <= snmpDepth {
			margin := snmpMargin * depth
			if !improving {
				margin -= 20
			}
			if staticEval-margin >= beta {
				return staticEval
			}
		}

		if depth >= nmpDepth && staticEval >= beta && w.pos.HasNonPawnMaterial() {
			r := nmpBaseReduce + depth/4
			if bonus := (staticEval - beta) / 200; bonus > 0 {
				r += min(bonus, 3)
			}
			if r > depth-1 {
				r = depth - 1
			}
			undo := w.pos.MakeNullMove()
			nullScore := -w.negamax(depth-1-r, ply+1, -beta, -beta+1, board.NoMove, board.NoMove, !cutNode)
			w.pos.UnmakeNullMove(undo)

			if w.stopFlag.Load() {
				return 0
			}
			if nullScore >= beta && nullScore < MateScore-MaxPly {
				return nullScore
			}
		}

		if depth >= probcutSearchDepth && abs(beta) < MateScore-100 {
			probBeta := beta + probcutMargin
			searchDepth := depth - 4
			if searchDepth < 1 {
				searchDepth = 1
			}

			picker := NewMovePicker(w.pos, w.history, ply, ttMove, true)
			for {
				m, ok := picker.Next(false)
				if !ok {
					break
				}
				if !m.IsCapture() || !w.pos.SEEGreaterOrEqual(m, probBeta-staticEval) {
					continue
				}
				w.makeMove(m, ply)
				score := -w.negamax(searchDepth, ply+1, -probBeta, -probBeta+1, m, board.NoMove, !cutNode)
				w.unmakeMove(m)
				if w.stopFlag.Load() {
					return 0
				}
				if score >= probBeta {
					w.tt.Store(w.pos.Hash, searchDepth+1, score, rawEval, TTLowerBound, isPV, m)
					return score
				}
			}
		}
	}

	// Is the TT move's bound strong enough to justify a singular probe?
	singularCandidate := depth >= singularDepth && ttMove != board.NoMove &&
		excludedMove == board.NoMove && ply > 0 &&
		ttResult.Hit && ttResult.Depth >= depth-3 && ttResult.Bound != TTUpperBound

	picker := NewMovePicker(w.pos, w.history, ply, ttMove, false)
	if prevMove != board.NoMove && ply >= 1 {
		prevPiece := w.stack[ply-1].movedPiece
		prevTo := w.stack[ply-1].moveTo
		picker.SetContinuation(prevPiece, prevTo)
		picker.SetCounter(w.history.CounterMove(w.pos.SideToMove, prevPiece, prevTo))
	}

	bestScore := -Infinity
	bestMove := board.NoMove
	bound := TTUpperBound
	movesSearched := 0
	legalMoves := 0
	var triedQuiets []board.Move

	for {
		move, ok := picker.Next(false)
		if !ok {
			break
		}
		if move == excludedMove {
			continue
		}

		isCapture := move.IsCapture()
		isPromotion := move.IsPromotion()
		isQuiet := !isCapture && !isPromotion

		if legalMoves > 0 && !inCheck && bestScore > -MateScore+MaxPly {
			if isQuiet {
				if depth <= lmpDepth {
					threshold := lmpThreshold[depth]
					if !improving {
						threshold = threshold * 2 / 3
					}
					if legalMoves >= threshold {
						continue
					}
				}
				if depth <= historyPruningDepth && move != ttMove {
					if w.history.Main(w.pos.SideToMove, move) < historyPruningThreshold {
						continue
					}
				}
				if depth <= futilityDepth && staticEval+futilityMargin[depth] <= alpha && bestMove != board.NoMove {
					continue
				}
				if !w.pos.SEEGreaterOrEqual(move, seeQuietMargin*depth) {
					continue
				}
			} else {
				if depth <= 7 && !w.pos.SEEGreaterOrEqual(move, seeNoisyMargin*depth*depth) {
					continue
				}
			}
		}

		extension := 0
		if inCheck {
			extension = 1
		}

		if move == ttMove && singularCandidate {
			singularBeta := AdjustScoreFromTT(ttResult.Score, ply) - 2*depth
			singularSearchDepth := (depth - 1) / 2
			score := w.negamax(singularSearchDepth, ply, singularBeta-1, singularBeta, prevMove, ttMove, cutNode)
			if score < singularBeta {
				extension = 1
			} else if singularBeta >= beta {
				return singularBeta
			} else if cutNode {
				extension = -1
			}
		}

		movedPiece := w.pos.PieceAt(move.From())
		w.stack[ply].movedPiece = movedPiece
		w.stack[ply].moveTo = move.To()

		w.makeMove(move, ply)
		legalMoves++
		movesSearched++

		newDepth := depth - 1 + extension
		var score int

		childInCheck := w.pos.InCheck()

		if movesSearched > 1 && depth >= 3 && isQuiet {
			d, m := min(depth, 63), min(movesSearched, 63)
			reduction := lmrReductions[d][m]

			reduction -= w.history.Main(w.pos.SideToMove.Other(), move) * 1024 / (2 * historyMax)
			if !improving {
				reduction++
			}
			if childInCheck {
				reduction--
			}
			if isPV {
				reduction -= 2
			}
			if cutNode {
				reduction += 2
			}
			if reduction < 0 {
				reduction = 0
			}

			reducedDepth := newDepth - reduction
			if reducedDepth < 1 {
				reducedDepth = 1
			}
			w.stack[ply].reduction = reduction

			score = -w.negamax(reducedDepth, ply+1, -alpha-1, -alpha, move, board.NoMove, true)
			if score > alpha && reducedDepth < newDepth {
				score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, move, board.NoMove, !cutNode)
			}
			if score > alpha && score < beta {
				score = -w.negamax(newDepth, ply+1, -beta, -alpha, move, board.NoMove, false)
			}
		} else if movesSearched == 1 {
			score = -w.negamax(newDepth, ply+1, -beta, -alpha, move, board.NoMove, false)
		} else {
			score = -w.negamax(newDepth, ply+1, -alpha-1, -alpha, move, board.NoMove, !cutNode)
			if score > alpha && score < beta {
				score = -w.negamax(newDepth, ply+1, -beta, -alpha, move, board.NoMove, false)
			}
		}

		w.unmakeMove(move)

		if w.stopFlag.Load() {
			return 0
		}

		if score > bestScore {
			bestScore = score
			bestMove = move

			if score > alpha {
				alpha = score
				bound = TTExact

				w.pv.moves[ply][ply] = move
				copy(w.pv.moves[ply][ply+1:w.pv.length[ply+1]], w.pv.moves[ply+1][ply+1:w.pv.length[ply+1]])
				w.pv.length[ply] = w.pv.length[ply+1]
			}
		}

		if isQuiet && score < beta {
			triedQuiets = append(triedQuiets, move)
		}

		if score >= beta {
			if extension < 2 || isPV {
				w.stack[ply].cutoffCount++
			}

			bonus := historyBonus(depth)
			if isQuiet {
				w.history.UpdateKillers(ply, move)
				w.history.UpdateMain(w.pos.SideToMove, move, bonus)
				if prevMove != board.NoMove {
					prevPiece := w.stack[ply-1].movedPiece
					prevTo := w.stack[ply-1].moveTo
					w.history.SetCounterMove(w.pos.SideToMove.Other(), prevPiece, prevTo, move)
					w.history.UpdateContinuation(0, prevPiece, prevTo, movedPiece, move.To(), bonus)
				}
				for _, tried := range triedQuiets {
					if tried == move {
						continue
					}
					w.history.UpdateMain(w.pos.SideToMove, tried, -bonus)
				}
			} else {
				capturedType := board.Pawn
				if !move.IsEnPassant() {
					if captured := move.CapturedPiece(); captured != board.NoPiece {
						capturedType = captured.Type()
					}
				}
				w.history.UpdateCapture(movedPiece, move.To(), capturedType, bonus)
			}

			w.tt.Store(w.pos.Hash, depth, AdjustScoreToTT(score, ply), rawEval, TTLowerBound, isPV, bestMove)
			return score
		}
	}

	if legalMoves == 0 {
		if excludedMove != board.NoMove {
			return alpha
		}
		if inCheck {
			return -MateScore + ply
		}
		return 0
	}

	if bound == TTExact && !inCheck && depth >= 2 {
		w.corrHistory.Update(w.pos, bestScore, rawEval, depth)
	}

	w.tt.Store(w.pos.Hash, depth, AdjustScoreToTT(bestScore, ply), rawEval, bound, isPV, bestMove)
	return bestScore
}

// quiescence searches noisy moves (plus evasions when in check) to avoid
// the horizon effect, per §4.8's quiescence section.
func (w *Worker) quiescence(ply, alpha, beta int) int {
	if ply >= MaxPly-1 {
		return w.evaluate()
	}
	if w.stopFlag.Load() {
		return 0
	}
	w.nodes++

	originalAlpha := alpha
	isPV := beta-alpha > 1

	ttResult := w.tt.Probe(w.pos.Hash)
	ttMove := ttResult.Move
	if ttResult.Hit && !isPV {
		score := AdjustScoreFromTT(ttResult.Score, ply)
		switch ttResult.Bound {
		case TTExact:
			return score
		case TTLowerBound:
			if score >= beta {
				return score
			}
		case TTUpperBound:
			if score <= alpha {
				return score
			}
		}
	}

	inCheck := w.pos.InCheck()
	var bestValue, rawEval int
	var bestMove board.Move

	if inCheck {
		bestValue = -MateScore + ply
	} else {
		rawEval = w.evaluate()
		bestValue = rawEval + w.corrHistory.Get(w.pos)
		if bestValue >= beta {
			w.tt.Store(w.pos.Hash, 0, AdjustScoreToTT(bestValue, ply), rawEval, TTLowerBound, isPV, board.NoMove)
			return bestValue
		}
		if bestValue > alpha {
			alpha = bestValue
		}
	}

	// In check, captures alone can miss the only legal replies (a block or
	// king step with no capturing evasion available), so the picker must
	// also generate and try quiet evasions.
	picker := NewMovePicker(w.pos, w.history, ply, ttMove, !inCheck)
	for {
		move, ok := picker.Next(!inCheck)
		if !ok {
			break
		}

		if !inCheck {
			if !move.IsPromotion() {
				captureValue := qsCaptureValue(w.pos, move)
				if bestValue+captureValue+lazyEvalMargin < alpha {
					continue
				}
			}
			if !w.pos.SEEGreaterOrEqual(move, 0) {
				continue
			}
		}

		w.makeMove(move, ply)
		score := -w.quiescence(ply+1, -beta, -alpha)
		w.unmakeMove(move)

		if w.stopFlag.Load() {
			return 0
		}

		if score > bestValue {
			bestValue = score
			bestMove = move
			if score > alpha {
				alpha = score
				if score >= beta {
					break
				}
			}
		}
	}

	if inCheck && bestMove == board.NoMove && bestValue == -MateScore+ply {
		return -MateScore + ply
	}

	var bound TTBound
	switch {
	case bestValue >= beta:
		bound = TTLowerBound
	case bestValue > originalAlpha:
		bound = TTExact
	default:
		bound = TTUpperBound
	}
	w.tt.Store(w.pos.Hash, 0, AdjustScoreToTT(bestValue, ply), rawEval, bound, isPV, bestMove)

	return bestValue
}

// qsCaptureValue is the material value used for quiescence delta pruning.
func qsCaptureValue(pos *board.Position, move board.Move) int {
	var value int
	if move.IsEnPassant() {
		value = PawnValue
	} else if captured := move.CapturedPiece(); captured != board.NoPiece {
		value = pieceValues[captured.Type()]
	}
	if move.IsPromotion() {
		value += pieceValues[move.Promotion()] - PawnValue
	}
	return value
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
