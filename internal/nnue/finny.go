package nnue

import "github.com/corvidchess/corvid/internal/board"

// finnyEntry caches the last accumulator values computed for one
// (perspective, king bucket, horizontal-mirror) slot, along with the piece
// bitboards that produced it, so a later refresh for the same slot only
// needs to add/subtract the pieces that actually changed rather than
// recompute from an empty board.
type finnyEntry struct {
	values [Hidden]int16
	pieces [2][6]board.Bitboard
	valid  bool
}

// FinnyTables holds one refresh cache per perspective, king bucket and
// mirror half, indexed [perspective][bucket][mirror]. Named after the
// teacher's "Finny table" king-bucket refresh idiom.
type FinnyTables struct {
	entries [2][KingBuckets][2]finnyEntry
}

// NewFinnyTables returns an empty set of refresh caches.
func NewFinnyTables() *FinnyTables {
	return &FinnyTables{}
}

// slotFor locates the cache entry for perspective given its own king square.
func slotFor(perspective board.Color, kingSq board.Square) (bucket int, mirror int) {
	_, orientedKingSq, horizFlip := orient(perspective, kingSq, kingSq)
	bucket = kingBucketOf[orientedKingSq]
	if horizFlip {
		mirror = 1
	}
	return
}

// Refresh recomputes values for perspective against the current position,
// using the cached entry for that perspective's current king bucket as a
// diff base: pieces present in both the cache and the board are untouched,
// pieces removed from the cache's snapshot are subtracted, pieces newly
// present are added. The cache is then updated to the current snapshot.
func (ft *FinnyTables) Refresh(pos *board.Position, perspective board.Color, net *Network, out *[Hidden]int16) {
	kingSq := pos.KingSquare[perspective]
	bucket, mirror := slotFor(perspective, kingSq)
	entry := &ft.entries[perspective][bucket][mirror]

	if !entry.valid {
		copy(entry.values[:], net.FeatureBiases[:])
		entry.pieces = [2][6]board.Bitboard{}
		entry.valid = true
	}

	for c := board.White; c <= board.Black; c++ {
		for pt := board.Pawn; pt <= board.King; pt++ {
			cur := pos.Pieces[c][pt]
			cached := entry.pieces[c][pt]

			removed := cached &^ cur
			for removed != 0 {
				sq := removed.PopLSB()
				idx := MakeIndex(perspective, sq, pt, c, kingSq)
				subtractRow(&entry.values, net, idx)
			}

			added := cur &^ cached
			for added != 0 {
				sq := added.PopLSB()
				idx := MakeIndex(perspective, sq, pt, c, kingSq)
				addRow(&entry.values, net, idx)
			}

			entry.pieces[c][pt] = cur
		}
	}

	*out = entry.values
}
