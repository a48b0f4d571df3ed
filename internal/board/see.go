package board

// seeValue mirrors the piece values used for static exchange evaluation
// (distinct from the general PieceValue table: SEE uses a fixed, simpler
// scale and treats the king as effectively invaluable).
var seeValue = [7]int{100, 300, 300, 500, 900, 9999, 0} // Pawn..King, NoPieceType

// attackersTo returns every piece (either color) attacking sq given an
// explicit occupancy bitboard, for use mid-swap-list once pieces have been
// removed from the board.
func (p *Position) attackersTo(sq Square, occupied Bitboard) Bitboard {
	attackers := KnightAttacks(sq) & (p.Pieces[White][Knight] | p.Pieces[Black][Knight])
	attackers |= KingAttacks(sq) & (p.Pieces[White][King] | p.Pieces[Black][King])
	attackers |= PawnAttacks(sq, White) & p.Pieces[Black][Pawn]
	attackers |= PawnAttacks(sq, Black) & p.Pieces[White][Pawn]

	bishopsQueens := p.Pieces[White][Bishop] | p.Pieces[Black][Bishop] | p.Pieces[White][Queen] | p.Pieces[Black][Queen]
	attackers |= BishopAttacks(sq, occupied) & bishopsQueens

	rooksQueens := p.Pieces[White][Rook] | p.Pieces[Black][Rook] | p.Pieces[White][Queen] | p.Pieces[Black][Queen]
	attackers |= RookAttacks(sq, occupied) & rooksQueens

	return attackers & occupied
}

// leastValuableAttacker finds the cheapest attacker of color c in the given
// attacker set, returning its square and piece type (NoPieceType if none).
func (p *Position) leastValuableAttacker(attackers Bitboard, c Color) (Square, PieceType) {
	for pt := Pawn; pt <= King; pt++ {
		bb := attackers & p.Pieces[c][pt]
		if bb != 0 {
			return bb.LSB(), pt
		}
	}
	return NoSquare, NoPieceType
}

// SEE runs the static exchange evaluation swap-list algorithm for a capture
// (or quiet move, for completeness) and returns the net material gain for
// the side to move, assuming both sides recapture with their cheapest
// attacker at every step.
func (p *Position) SEE(m Move) int {
	from := m.From()
	to := m.To()

	var gain [32]int
	depth := 0

	occupied := p.AllOccupied
	attacker := m.MovingPiece()
	us := attacker.Color()

	captured := m.CapturedPiece()
	if m.IsEnPassant() {
		gain[0] = seeValue[Pawn]
	} else {
		gain[0] = seeValue[captured.Type()]
	}

	occupied &^= SquareBB(from)
	if m.IsEnPassant() {
		capSq := to - 8
		if us == Black {
			capSq = to + 8
		}
		occupied &^= SquareBB(capSq)
	}

	attackerType := attacker.Type()
	side := us.Other()

	for {
		attackers := p.attackersTo(to, occupied)
		sq, pt := p.leastValuableAttacker(attackers, side)
		if pt == NoPieceType {
			break
		}

		depth++
		gain[depth] = seeValue[attackerType] - gain[depth-1]

		if max(-gain[depth-1], gain[depth]) < 0 {
			break
		}

		occupied &^= SquareBB(sq)
		attackerType = pt
		side = side.Other()
	}

	for depth > 0 {
		depth--
		gain[depth] = -max(-gain[depth], gain[depth+1])
	}

	return gain[0]
}

// SEEGreaterOrEqual reports whether the move's static exchange evaluation
// meets or exceeds threshold. It computes the full SEE value and compares it
// with threshold; there is no early cutoff. Used by quiescence/move-ordering to
// prune moves that lose material beyond what is tolerable.
func (p *Position) SEEGreaterOrEqual(m Move, threshold int) bool {
	return p.SEE(m) >= threshold
}
