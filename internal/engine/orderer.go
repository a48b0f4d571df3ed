package engine

import "github.com/corvidchess/corvid/internal/board"

// MVV-LVA (Most Valuable Victim - Least Valuable Attacker) base scores,
// indexed [victim][attacker]; higher searches first.
var mvvLva = [6][6]int{
	//       P    N    B    R    Q    K  (attacker)
	/* P */ {15, 14, 14, 13, 12, 11},
	/* N */ {25, 24, 24, 23, 22, 21},
	/* B */ {35, 34, 34, 33, 32, 31},
	/* R */ {45, 44, 44, 43, 42, 41},
	/* Q */ {55, 54, 54, 53, 52, 51},
	/* K */ {0, 0, 0, 0, 0, 0},
}

// pickerStage names the move picker's state machine stages, per §4.6.
type pickerStage int

const (
	stageTT pickerStage = iota
	stageGenNoisy
	stageGoodNoisy
	stageKiller1
	stageKiller2
	stageCounter
	stageGenQuiet
	stageQuiet
	stageBadNoisy
	stageDone
)

// MovePicker yields one move at a time from a position, staged so that
// cheap, high-value candidates (TT move, good captures, killers) are tried
// before the full quiet list is sorted. The position's move generator
// produces only fully legal moves (no separate legality filter on make), so
// the noisy and quiet lists are generated eagerly at construction and the
// TT/killer/counter candidates are validated by list membership rather than
// a cheaper pseudo-legality check.
type MovePicker struct {
	pos     *board.Position
	history *HistoryTables

	stage      pickerStage
	ply        int
	ttMove     board.Move
	killer1    board.Move
	killer2    board.Move
	counter    board.Move
	quiescence bool

	noisy    *board.MoveList
	noisyIdx int
	quiet    *board.MoveList
	quietIdx int
	bad      *board.MoveList
	badIdx   int

	prevPiece   board.Piece
	prevTo      board.Square
	quietScored bool
}

// NewMovePicker sets up a picker for a node at ply, given the TT move; the
// killer slots for ply are read from history. The counter-move candidate
// and previous-move piece/square (used for continuation-history scoring of
// quiets) are supplied afterwards through SetCounter and SetContinuation.
// quiescence pickers skip generating the quiet list entirely.
func NewMovePicker(pos *board.Position, history *HistoryTables, ply int, ttMove board.Move, quiescence bool) *MovePicker {
	k1, k2 := history.Killers(ply)
	mp := &MovePicker{
		pos:        pos,
		history:    history,
		ply:        ply,
		ttMove:     ttMove,
		killer1:    k1,
		killer2:    k2,
		quiescence: quiescence,
		noisy:      board.NewMoveList(),
		bad:        board.NewMoveList(),
	}
	pos.GenerateLegalNoisy(mp.noisy)
	mp.scoreNoisy()
	if !quiescence {
		mp.quiet = board.NewMoveList()
		pos.GenerateLegalQuiet(mp.quiet)
		// Scored lazily in Next, once SetContinuation/SetCounter (called by
		// the caller after construction) have supplied the previous move.
	}
	return mp
}

// SetContinuation supplies the previous move's piece/destination so quiet
// moves can be scored with continuation history.
func (mp *MovePicker) SetContinuation(prevPiece board.Piece, prevTo board.Square) {
	mp.prevPiece = prevPiece
	mp.prevTo = prevTo
}

// SetCounter supplies the counter-move candidate for the previous move.
func (mp *MovePicker) SetCounter(m board.Move) {
	mp.counter = m
}

// legal reports whether m is one of this position's generated legal moves;
// TT entries and killer slots can outlive the position that produced them
// (hash collisions, moves from a different line), so membership must be
// checked against this node's own move lists rather than assumed.
func (mp *MovePicker) legal(m board.Move) bool {
	if m == board.NoMove {
		return false
	}
	if mp.noisy.Contains(m) {
		return true
	}
	return mp.quiet != nil && mp.quiet.Contains(m)
}

// Next returns the next move to try, or (NoMove, false) when exhausted.
// skipQuiets suppresses the killer, counter-move and quiet stages; the
// quiescence search passes it when not in check.
func (mp *MovePicker) Next(skipQuiets bool) (board.Move, bool) {
	for {
		switch mp.stage {
		case stageTT:
			mp.stage = stageGoodNoisy
			if mp.legal(mp.ttMove) {
				return mp.ttMove, true
			}

		case stageGoodNoisy:
			if mp.noisyIdx >= mp.noisy.Len() {
				if mp.quiescence || skipQuiets {
					mp.stage = stageBadNoisy
				} else {
					mp.stage = stageKiller1
				}
				continue
			}
			m := mp.noisy.PickMove(mp.noisyIdx)
			score := mp.noisy.Score(mp.noisyIdx)
			mp.noisyIdx++
			if m == mp.ttMove {
				continue
			}
			if !mp.pos.SEEGreaterOrEqual(m, 0) {
				mp.bad.AddScored(m, score)
				continue
			}
			return m, true

		case stageKiller1:
			mp.stage = stageKiller2
			if mp.killer1 != mp.ttMove && mp.legal(mp.killer1) && !mp.killer1.IsCapture() {
				return mp.killer1, true
			}

		case stageKiller2:
			mp.stage = stageCounter
			if mp.killer2 != mp.ttMove && mp.killer2 != mp.killer1 && mp.legal(mp.killer2) && !mp.killer2.IsCapture() {
				return mp.killer2, true
			}

		case stageCounter:
			mp.stage = stageQuiet
			if mp.counter != mp.ttMove && mp.counter != mp.killer1 && mp.counter != mp.killer2 &&
				mp.legal(mp.counter) && !mp.counter.IsCapture() {
				return mp.counter, true
			}

		case stageQuiet:
			if skipQuiets || mp.quiet == nil || mp.quietIdx >= mp.quiet.Len() {
				mp.stage = stageBadNoisy
				continue
			}
			if !mp.quietScored {
				mp.scoreQuiet()
				mp.quietScored = true
			}
			m := mp.quiet.PickMove(mp.quietIdx)
			mp.quietIdx++
			if m == mp.ttMove || m == mp.killer1 || m == mp.killer2 || m == mp.counter {
				continue
			}
			return m, true

		case stageBadNoisy:
			if mp.badIdx >= mp.bad.Len() {
				mp.stage = stageDone
				continue
			}
			m := mp.bad.Get(mp.badIdx)
			mp.badIdx++
			return m, true

		case stageDone:
			return board.NoMove, false
		}
	}
}

func (mp *MovePicker) scoreNoisy() {
	for i := 0; i < mp.noisy.Len(); i++ {
		m := mp.noisy.Get(i)
		from, to := m.From(), m.To()
		attackerPiece := mp.pos.PieceAt(from)
		attacker := attackerPiece.Type()

		var victim board.PieceType
		if m.IsEnPassant() {
			victim = board.Pawn
		} else {
			victim = m.CapturedPiece().Type()
		}
		if victim >= board.King {
			victim = board.Pawn
		}

		score := mvvLva[victim][attacker] * 1000
		score += mp.history.Capture(attackerPiece, to, victim) / 4
		if m.IsPromotion() {
			score += 20000 + int(m.Promotion())*100
		}

		mp.noisy.SetScore(i, int32(score))
	}
}

func (mp *MovePicker) scoreQuiet() {
	us := mp.pos.SideToMove
	for i := 0; i < mp.quiet.Len(); i++ {
		m := mp.quiet.Get(i)
		piece := mp.pos.PieceAt(m.From())
		score := mp.history.Main(us, m)
		score += mp.history.Continuation(0, mp.prevPiece, mp.prevTo, piece, m.To())
		mp.quiet.SetScore(i, int32(score))
	}
}
