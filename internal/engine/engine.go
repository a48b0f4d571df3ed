package engine

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvidchess/corvid/internal/book"
	"github.com/corvidchess/corvid/internal/nnue"
	"github.com/corvidchess/corvid/internal/tablebase"

	"github.com/corvidchess/corvid/internal/board"
)

// NumWorkers is the number of parallel search workers (matches CPU cores).
var NumWorkers = runtime.GOMAXPROCS(0)

// SearchInfo reports progress of the current search, one per completed
// iterative-deepening iteration (or improved root result).
type SearchInfo struct {
	Depth    int
	Score    int
	Nodes    uint64
	Time     time.Duration
	PV       []board.Move
	HashFull int // Permille of hash table used
}

// SearchLimits bounds a Search call initiated outside the UCI protocol
// (e.g. from tests or tooling); Depth/Nodes/MoveTime of 0 means unbounded.
type SearchLimits struct {
	Depth    int
	Nodes    uint64
	MoveTime time.Duration
	Infinite bool
}

// Engine owns the shared search state (transposition table, Lazy-SMP
// worker pool) and the auxiliary subsystems (opening book, tablebase,
// NNUE) that feed into a search.
type Engine struct {
	workers   []*Worker
	tt        *TranspositionTable
	stopFlag  atomic.Bool
	book      *book.Book
	tablebase tablebase.Prober

	rootPosHashes []uint64

	nnueEval *nnue.Evaluator

	// OnInfo, when set, is called once per improved root result during a
	// search, on the goroutine driving the search call.
	OnInfo func(SearchInfo)
}

// NewEngine creates an engine with a transposition table of the given size
// in megabytes and one worker per available CPU.
func NewEngine(ttSizeMB int) *Engine {
	tt := NewTranspositionTable(ttSizeMB)

	e := &Engine{
		tt:      tt,
		workers: make([]*Worker, NumWorkers),
	}

	log.Printf("[Engine] Creating %d workers (GOMAXPROCS=%d)", NumWorkers, runtime.GOMAXPROCS(0))

	for i := 0; i < NumWorkers; i++ {
		workerPawnTable := NewPawnTable(1)
		e.workers[i] = NewWorker(i, tt, workerPawnTable, &e.stopFlag)
	}

	return e
}

// LoadBook loads an opening book from a Polyglot file.
func (e *Engine) LoadBook(filename string) error {
	b, err := book.LoadPolyglot(filename)
	if err != nil {
		return err
	}
	e.book = b
	return nil
}

// SetBook sets the opening book.
func (e *Engine) SetBook(b *book.Book) {
	e.book = b
}

// HasBook returns true if an opening book is loaded.
func (e *Engine) HasBook() bool {
	return e.book != nil
}

// SetTablebase sets the tablebase prober, probed only at or above
// probeDepth in-search (probeDepth < 1 is treated as 1).
func (e *Engine) SetTablebase(tb tablebase.Prober, probeDepth int) {
	e.tablebase = tb
	for _, w := range e.workers {
		w.SetTablebase(tb, probeDepth)
	}
}

// EnableLichessTablebase switches to the online Lichess tablebase,
// cached locally to avoid repeat lookups of the same position.
func (e *Engine) EnableLichessTablebase() {
	e.SetTablebase(tablebase.NewCachedLichessProber(), 1)
}

// HasTablebase returns true if a tablebase is available.
func (e *Engine) HasTablebase() bool {
	return e.tablebase != nil && e.tablebase.Available()
}

// LoadNNUE loads a network file and switches all workers to NNUE
// evaluation. Pass an empty string to revert to classical evaluation.
func (e *Engine) LoadNNUE(weightsFile string) error {
	ev, err := nnue.NewEvaluator(weightsFile)
	if err != nil {
		return err
	}
	e.nnueEval = ev
	for _, w := range e.workers {
		w.SetNNUE(ev)
	}
	log.Printf("[Engine] NNUE network loaded: %s", weightsFile)
	return nil
}

// UseNNUE returns whether NNUE evaluation is active.
func (e *Engine) UseNNUE() bool {
	return e.nnueEval != nil
}

// SetPositionHistory supplies the game's move history (as Zobrist hashes,
// oldest first) so repetition detection can see past the search root.
func (e *Engine) SetPositionHistory(hashes []uint64) {
	e.rootPosHashes = append([]uint64(nil), hashes...)
	for _, w := range e.workers {
		w.SetRootHistory(hashes)
	}
}

// Search finds the best move for pos under limits, blocking until the
// search completes or is stopped. Consults the opening book and
// tablebase before falling back to a Lazy-SMP alpha-beta search.
func (e *Engine) Search(pos *board.Position, limits SearchLimits) board.Move {
	if e.book != nil {
		if move, ok := e.book.Probe(pos); ok {
			return move
		}
	}

	if e.tablebase != nil && e.tablebase.Available() {
		if tablebase.CountPieces(pos) <= e.tablebase.MaxPieces() {
			if result := e.tablebase.ProbeRoot(pos); result.Found && result.Move != board.NoMove {
				return result.Move
			}
		}
	}

	e.stopFlag.Store(false)
	e.tt.NewSearch()
	for _, w := range e.workers {
		w.Reset()
	}

	startTime := time.Now()
	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}
	var deadline time.Time
	if limits.MoveTime > 0 {
		deadline = startTime.Add(limits.MoveTime)
	}

	resultCh := make(chan WorkerResult, NumWorkers*maxDepth)
	var wg sync.WaitGroup
	for i := 0; i < NumWorkers; i++ {
		wg.Add(1)
		go e.workerSearch(i, pos, maxDepth, resultCh, &wg)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(resultCh)
		close(done)
	}()

	var bestMove board.Move
	var bestScore, bestDepth int

resultLoop:
	for {
		select {
		case result, ok := <-resultCh:
			if !ok {
				break resultLoop
			}
			if result.Move != board.NoMove &&
				(result.Depth > bestDepth || (result.Depth == bestDepth && result.Score > bestScore)) {
				bestMove, bestScore, bestDepth = result.Move, result.Score, result.Depth
				e.reportInfo(bestDepth, bestScore, result.PV, startTime)
				if bestScore > MateScore-100 || bestScore < -MateScore+100 {
					e.stopFlag.Store(true)
					break resultLoop
				}
			}
			if limits.Nodes > 0 && e.getTotalNodes() >= limits.Nodes {
				e.stopFlag.Store(true)
				break resultLoop
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				e.stopFlag.Store(true)
				break resultLoop
			}
		case <-done:
			break resultLoop
		}
	}

	e.stopFlag.Store(true)
	<-done
	return bestMove
}

// SearchWithUCILimits runs a search governed by UCI time controls
// (wtime/btime/winc/binc), adapting the allotted time to move stability.
func (e *Engine) SearchWithUCILimits(pos *board.Position, limits UCILimits, ply int) board.Move {
	if e.book != nil {
		if move, ok := e.book.Probe(pos); ok {
			return move
		}
	}
	if e.tablebase != nil && e.tablebase.Available() {
		if tablebase.CountPieces(pos) <= e.tablebase.MaxPieces() {
			if result := e.tablebase.ProbeRoot(pos); result.Found && result.Move != board.NoMove {
				return result.Move
			}
		}
	}

	tm := NewTimeManager()
	tm.Init(limits, pos.SideToMove, ply)

	e.stopFlag.Store(false)
	e.tt.NewSearch()
	for _, w := range e.workers {
		w.Reset()
	}

	startTime := time.Now()
	maxDepth := MaxPly
	if limits.Depth > 0 {
		maxDepth = limits.Depth
	}

	resultCh := make(chan WorkerResult, NumWorkers*maxDepth)
	var wg sync.WaitGroup
	for i := 0; i < NumWorkers; i++ {
		wg.Add(1)
		go e.workerSearch(i, pos, maxDepth, resultCh, &wg)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(resultCh)
		close(done)
	}()

	var bestMove board.Move
	var bestScore, bestDepth int
	var lastBestMove board.Move
	var stabilityCount, instabilityCount int

resultLoop:
	for {
		select {
		case result, ok := <-resultCh:
			if !ok {
				break resultLoop
			}
			if result.Move == board.NoMove ||
				!(result.Depth > bestDepth || (result.Depth == bestDepth && result.Score > bestScore)) {
				continue
			}

			if result.Depth > bestDepth {
				if result.Move == lastBestMove {
					stabilityCount++
					instabilityCount = 0
				} else {
					instabilityCount++
					stabilityCount = 0
				}
				lastBestMove = result.Move
			}

			bestMove, bestScore, bestDepth = result.Move, result.Score, result.Depth
			e.reportInfo(bestDepth, bestScore, result.PV, startTime)

			if bestScore > MateScore-100 || bestScore < -MateScore+100 {
				e.stopFlag.Store(true)
				break resultLoop
			}

			if instabilityCount > 0 {
				tm.AdjustForInstability(instabilityCount)
			} else if stabilityCount > 0 {
				tm.AdjustForStability(stabilityCount)
			}

			if tm.PastOptimum() && stabilityCount >= 4 {
				e.stopFlag.Store(true)
				break resultLoop
			}

		case <-done:
			break resultLoop
		}

		if tm.ShouldStop() {
			e.stopFlag.Store(true)
			break resultLoop
		}
		if limits.Nodes > 0 && e.getTotalNodes() >= limits.Nodes {
			e.stopFlag.Store(true)
			break resultLoop
		}
	}

	e.stopFlag.Store(true)
	<-done
	return bestMove
}

func (e *Engine) reportInfo(depth, score int, pv []board.Move, startTime time.Time) {
	if e.OnInfo == nil {
		return
	}
	e.OnInfo(SearchInfo{
		Depth:    depth,
		Score:    score,
		Nodes:    e.getTotalNodes(),
		Time:     time.Since(startTime),
		PV:       pv,
		HashFull: e.tt.HashFull(),
	})
}

// workerSearch drives one worker's iterative-deepening loop, staggering
// its start depth by worker ID so helper threads skip redundant shallow
// work, and widening an aspiration window around the previous score once
// scores settle.
func (e *Engine) workerSearch(workerID int, pos *board.Position, maxDepth int, resultCh chan<- WorkerResult, wg *sync.WaitGroup) {
	defer wg.Done()

	worker := e.workers[workerID]
	worker.InitSearch(pos)

	var prevScore int
	recentScores := make([]int, 0, 10)

	startDepth := 1
	switch {
	case workerID >= 6:
		startDepth = 4
	case workerID >= 3:
		startDepth = 3
	case workerID >= 1:
		startDepth = 2
	}

	for depth := startDepth; depth <= maxDepth; depth++ {
		if e.stopFlag.Load() {
			return
		}

		var move board.Move
		var score int

		if depth >= 5 && prevScore != 0 {
			volatility := 0
			if len(recentScores) >= 2 {
				lo, hi := recentScores[0], recentScores[0]
				for _, s := range recentScores {
					lo = min(lo, s)
					hi = max(hi, s)
				}
				volatility = hi - lo
			}

			var window int
			switch {
			case volatility > 400:
				window = 150 + volatility/4
			case volatility < 50:
				window = 25
			default:
				window = 50 + volatility/8
			}
			window += (workerID % 8) * 3

			alpha := prevScore - window
			beta := prevScore + window
			retries := 0
			for {
				move, score = worker.SearchDepth(depth, alpha, beta)
				if e.stopFlag.Load() {
					return
				}
				if score <= alpha {
					retries++
					if retries >= 2 {
						alpha = -Infinity
					} else {
						alpha = prevScore - window*2
					}
				} else if score >= beta {
					retries++
					if retries >= 2 {
						beta = Infinity
					} else {
						beta = prevScore + window*2
					}
				} else {
					break
				}
				if alpha == -Infinity && beta == Infinity {
					break
				}
			}
		} else {
			move, score = worker.SearchDepth(depth, -Infinity, Infinity)
		}

		if e.stopFlag.Load() {
			return
		}

		prevScore = score
		recentScores = append(recentScores, score)
		if len(recentScores) > 10 {
			recentScores = recentScores[1:]
		}

		resultCh <- WorkerResult{
			WorkerID: workerID,
			Depth:    depth,
			Score:    score,
			Move:     move,
			PV:       worker.GetPV(),
			Nodes:    worker.Nodes(),
		}
	}
}

func (e *Engine) getTotalNodes() uint64 {
	var total uint64
	for _, w := range e.workers {
		total += w.Nodes()
	}
	return total
}

// Stop aborts the current search at its next stop-flag check.
func (e *Engine) Stop() {
	e.stopFlag.Store(true)
}

// Clear empties the transposition table and every worker's history and
// correction tables, as for a new game.
func (e *Engine) Clear() {
	e.tt.Clear()
	for _, w := range e.workers {
		*w.history = HistoryTables{}
		w.corrHistory.Clear()
	}
}

// Perft counts leaf nodes at the given depth, for move generator testing.
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}

	moves := board.NewMoveList()
	pos.GenerateLegalMoves(moves)
	if depth == 1 {
		return uint64(moves.Len())
	}

	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		move := moves.Get(i)
		pos.MakeMove(move)
		nodes += e.Perft(pos, depth-1)
		pos.UnmakeMove(move)
	}
	return nodes
}

// Evaluate returns the static evaluation of a position from the classical
// evaluator, independent of whichever evaluator the workers are using.
func (e *Engine) Evaluate(pos *board.Position) int {
	return Evaluate(pos)
}

// ScoreToString renders a centipawn or mate score as readable text ("Mate
// in N", "Mated in N", or the score in pawns such as "0.35"), for logging
// and diagnostics. It is not the UCI "info score" form.
func ScoreToString(score int) string {
	if score > MateScore-100 {
		mateIn := (MateScore - score + 1) / 2
		return "Mate in " + itoa(mateIn)
	}
	if score < -MateScore+100 {
		mateIn := (MateScore + score + 1) / 2
		return "Mated in " + itoa(mateIn)
	}

	sign := ""
	if score < 0 {
		sign = "-"
		score = -score
	}
	return sign + itoa(score/100) + "." + itoa(score%100)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	s := ""
	for n > 0 {
		s = string('0'+byte(n%10)) + s
		n /= 10
	}
	return s
}
