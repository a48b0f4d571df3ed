package engine

import "github.com/corvidchess/corvid/internal/board"

// correctionTableSize bounds each correction table by masking the hash key;
// a power of 2 keeps the mask a single AND.
const correctionTableSize = 1 << 16

const (
	correctionGravityDivisor = 16
	correctionBonusMax       = 256
	correctionValueMax       = 16000
)

// correctionTable is one [hash mod N] -> signed correction table, shared by
// the pawn-keyed and per-color material-keyed tables below.
type correctionTable [correctionTableSize]int16

func (t *correctionTable) get(key uint64) int {
	return int(t[key&(correctionTableSize-1)])
}

func (t *correctionTable) update(key uint64, searchScore, staticEval, depth int) {
	if depth < 1 {
		return
	}

	diff := searchScore - staticEval
	bonus := diff * depth / 8
	if bonus > correctionBonusMax {
		bonus = correctionBonusMax
	} else if bonus < -correctionBonusMax {
		bonus = -correctionBonusMax
	}

	idx := key & (correctionTableSize - 1)
	old := int(t[idx])
	newVal := old + (bonus-old)/correctionGravityDivisor
	if newVal > correctionValueMax {
		newVal = correctionValueMax
	} else if newVal < -correctionValueMax {
		newVal = -correctionValueMax
	}
	t[idx] = int16(newVal)
}

func (t *correctionTable) clear() {
	for i := range t {
		t[i] = 0
	}
}

// CorrectionHistory adjusts static evaluation toward what search actually
// found, keyed separately by pawn structure and by each side's non-pawn
// material so corrections generalize across positions that share one of
// those but not the full position. Based on Stockfish's correction
// history, split per spec §4.7 instead of the teacher's single
// full-hash-keyed table.
type CorrectionHistory struct {
	pawn     correctionTable
	material [2]correctionTable
}

// NewCorrectionHistory creates empty correction tables.
func NewCorrectionHistory() *CorrectionHistory {
	return &CorrectionHistory{}
}

// Get returns the total correction to add to pos's static evaluation.
func (ch *CorrectionHistory) Get(pos *board.Position) int {
	us := pos.SideToMove
	return ch.pawn.get(pos.PawnKey) + ch.material[us].get(pos.MaterialKey[us])
}

// Update records how far the search's score diverged from the static eval
// used at this node, scaled by depth, for both the pawn and
// side-to-move's material correction tables.
func (ch *CorrectionHistory) Update(pos *board.Position, searchScore, staticEval, depth int) {
	us := pos.SideToMove
	ch.pawn.update(pos.PawnKey, searchScore, staticEval, depth)
	ch.material[us].update(pos.MaterialKey[us], searchScore, staticEval, depth)
}

// Clear empties every correction table.
func (ch *CorrectionHistory) Clear() {
	ch.pawn.clear()
	ch.material[board.White].clear()
	ch.material[board.Black].clear()
}

// Age halves every correction table between searches.
func (ch *CorrectionHistory) Age() {
	for i := range ch.pawn {
		ch.pawn[i] /= 2
	}
	for c := range ch.material {
		for i := range ch.material[c] {
			ch.material[c][i] /= 2
		}
	}
}
