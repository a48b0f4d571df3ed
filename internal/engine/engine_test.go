package engine

import (
	"testing"
	"time"

	"github.com/corvidchess/corvid/internal/board"
)

func TestSearchBasic(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	move := eng.Search(pos, SearchLimits{Depth: 6, MoveTime: 2 * time.Second})
	if move == board.NoMove {
		t.Error("Search returned NoMove for starting position")
	}
	t.Logf("Best move: %s", move.String())
}

// TestConcurrentSearchRace stress-tests the Lazy-SMP worker pool.
// Run with: GOMAXPROCS=8 go test -race -run TestConcurrentSearchRace ./internal/engine -v
func TestConcurrentSearchRace(t *testing.T) {
	pos := board.NewPosition()
	eng := NewEngine(16)

	iterations := 10
	if testing.Short() {
		iterations = 3
	}

	for i := 0; i < iterations; i++ {
		move := eng.Search(pos, SearchLimits{Depth: 6, MoveTime: 500 * time.Millisecond})
		if move == board.NoMove {
			t.Errorf("iteration %d: search returned NoMove for starting position", i)
		}

		if i%2 == 0 {
			pos, _ = board.ParseFEN("rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2")
		} else {
			pos, _ = board.ParseFEN("rnbqkbnr/ppp1pppp/8/3p4/3P4/8/PPP1PPPP/RNBQKBNR w KQkq d6 0 2")
		}
	}

	t.Logf("completed %d concurrent search iterations without race condition", iterations)
}

func TestConcurrentSearchMultiplePositions(t *testing.T) {
	eng := NewEngine(16)

	positions := []string{
		board.StartFEN,
		"r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R b KQkq - 3 3", // Italian Game
		"8/8/8/4k3/8/4K3/4P3/8 w - - 0 1",                                  // KP endgame
	}

	for i, fen := range positions {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			t.Fatalf("failed to parse position %d: %v", i, err)
		}

		move := eng.Search(pos, SearchLimits{Depth: 5, MoveTime: 300 * time.Millisecond})
		if move == board.NoMove {
			legal := board.NewMoveList()
			pos.GenerateLegalMoves(legal)
			if legal.Len() > 0 {
				t.Errorf("position %d: search returned NoMove", i)
			}
		} else {
			t.Logf("position %d: best move = %s", i, move.String())
		}
	}
}

func TestPawnHashTable(t *testing.T) {
	pt := NewPawnTable(1)
	pos := board.NewPosition()

	if _, _, found := pt.Probe(pos.PawnKey); found {
		t.Error("expected cache miss on first probe")
	}

	pt.Store(pos.PawnKey, -15, -20)

	mg, eg, found := pt.Probe(pos.PawnKey)
	if !found {
		t.Error("expected cache hit after store")
	}
	if mg != -15 || eg != -20 {
		t.Errorf("wrong values: got mg=%d, eg=%d, want -15, -20", mg, eg)
	}

	oldKey := pos.PawnKey
	move, err := board.ParseMove("e2e4", pos)
	if err != nil {
		t.Fatalf("ParseMove: %v", err)
	}
	pos.MakeMove(move)
	if pos.PawnKey == oldKey {
		t.Error("PawnKey should change when a pawn moves")
	}

	pos.UnmakeMove(move)
	if pos.PawnKey != oldKey {
		t.Error("PawnKey should be restored on unmake")
	}

	t.Logf("PawnKey: %016x", pos.PawnKey)
}
