package engine

import (
	"sync/atomic"
	"testing"

	"github.com/corvidchess/corvid/internal/board"
)

// TestQuiescenceInCheckTriesQuietEvasions regresses a bug where the
// quiescence move picker was always constructed with quiescence=true, which
// skips generating quiet moves even when the side to move is in check. A
// king with no capturing evasion but a quiet one available (a king step, or
// a block) would then find no moves at all and quiescence would misreport
// checkmate.
func TestQuiescenceInCheckTriesQuietEvasions(t *testing.T) {
	// White king on e1, checked by a rook on e8 along an empty file. White
	// has no piece able to capture the rook, but Kd1/Kd2/Kf1/Kf2 are all
	// quiet, legal evasions.
	pos, err := board.ParseFEN("k3r3/8/8/8/8/8/8/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}
	if !pos.InCheck() {
		t.Fatal("test position must be check")
	}

	var stop atomic.Bool
	w := NewWorker(0, NewTranspositionTable(1), NewPawnTable(1), &stop)
	w.pos = pos

	score := w.quiescence(0, -Infinity, Infinity)
	if score <= -MateScore+MaxPly {
		t.Fatalf("quiescence misreported checkmate despite a quiet evasion: score=%d", score)
	}
}
