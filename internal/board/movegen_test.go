package board

import "testing"

// TestEnPassantOnlyInNoisyList regresses a bug where generatePawnMoves
// called generateEnPassant unconditionally, so GenerateLegalQuiet (noisy
// false) included the en passant capture alongside GenerateLegalNoisy,
// making the same move appear in both lists.
func TestEnPassantOnlyInNoisyList(t *testing.T) {
	pos, err := ParseFEN("4k3/8/8/3pP3/8/8/8/4K3 w - d6")
	if err != nil {
		t.Fatalf("ParseFEN: %v", err)
	}

	noisy := NewMoveList()
	pos.GenerateLegalNoisy(noisy)

	found := false
	for i := 0; i < noisy.Len(); i++ {
		if noisy.Get(i).IsEnPassant() {
			found = true
		}
	}
	if !found {
		t.Fatal("expected en passant capture in GenerateLegalNoisy")
	}

	quiet := NewMoveList()
	pos.GenerateLegalQuiet(quiet)
	for i := 0; i < quiet.Len(); i++ {
		if quiet.Get(i).IsEnPassant() {
			t.Fatalf("en passant capture %v must not appear in GenerateLegalQuiet", quiet.Get(i))
		}
	}
}
