package board

// Move generation produces only legal moves directly: no move is generated
// and later discarded by a make/unmake legality check. Pins are resolved by
// restricting a pinned piece's destinations to the line through the king and
// that piece; checks are resolved by restricting every non-king destination
// to the checker's square (capture) and, for a sliding checker, the squares
// between checker and king (block). A double check allows king moves only.

// GenerateLegalMoves appends every legal move (quiet and noisy) to ml.
func (p *Position) GenerateLegalMoves(ml *MoveList) {
	p.generate(ml, true, true)
}

// GenerateLegalNoisy appends every legal capture and promotion to ml.
func (p *Position) GenerateLegalNoisy(ml *MoveList) {
	p.generate(ml, true, false)
}

// GenerateLegalQuiet appends every legal non-capture, non-promotion move to ml.
func (p *Position) GenerateLegalQuiet(ml *MoveList) {
	p.generate(ml, false, true)
}

func (p *Position) generate(ml *MoveList, noisy, quiet bool) {
	us := p.SideToMove
	them := us.Other()
	kingSq := p.KingSquare[us]

	numCheckers := p.Checkers.PopCount()

	var captureMask, pushMask Bitboard
	switch numCheckers {
	case 0:
		captureMask = p.Occupied[them]
		pushMask = ^p.AllOccupied
	case 1:
		checkerSq := p.Checkers.LSB()
		captureMask = SquareBB(checkerSq)
		if isSliderType(p.PieceAt(checkerSq).Type()) {
			pushMask = Between(kingSq, checkerSq)
		} else {
			pushMask = Empty
		}
	default:
		// Double check: only the king may move.
		captureMask = Empty
		pushMask = Empty
	}

	if numCheckers < 2 {
		p.generatePawnMoves(ml, us, them, captureMask, pushMask, noisy, quiet)
		p.generatePieceMoves(ml, us, Knight, KnightAttacks, captureMask, pushMask, noisy, quiet)
		occ := p.AllOccupied
		p.generatePieceMoves(ml, us, Bishop, func(sq Square) Bitboard { return BishopAttacks(sq, occ) }, captureMask, pushMask, noisy, quiet)
		p.generatePieceMoves(ml, us, Rook, func(sq Square) Bitboard { return RookAttacks(sq, occ) }, captureMask, pushMask, noisy, quiet)
		p.generatePieceMoves(ml, us, Queen, func(sq Square) Bitboard { return QueenAttacks(sq, occ) }, captureMask, pushMask, noisy, quiet)

		if numCheckers == 0 && quiet {
			p.generateCastlingMoves(ml, us)
		}
	}

	p.generateKingMoves(ml, us, them, noisy, quiet)
}

func isSliderType(pt PieceType) bool {
	return pt == Bishop || pt == Rook || pt == Queen
}

// pieceAttackFunc returns the attack bitboard of a piece standing on sq.
type pieceAttackFunc func(sq Square) Bitboard

func (p *Position) generatePieceMoves(ml *MoveList, us Color, pt PieceType, attacksOf pieceAttackFunc, captureMask, pushMask Bitboard, noisy, quiet bool) {
	pieces := p.Pieces[us][pt]
	for pieces != 0 {
		from := pieces.PopLSB()
		attacks := attacksOf(from) &^ p.Occupied[us]

		targets := Empty
		if noisy {
			targets |= attacks & captureMask
		}
		if quiet {
			targets |= attacks & pushMask &^ captureMask
		}

		if p.Pinned&SquareBB(from) != 0 {
			targets &= Line(p.KingSquare[us], from)
		}

		for targets != 0 {
			to := targets.PopLSB()
			moving := NewPiece(pt, us)
			captured := p.PieceAt(to)
			ml.Add(NewMove(from, to, moving, captured, NoPieceType, FlagNormal))
		}
	}
}

func (p *Position) generatePawnMoves(ml *MoveList, us, them Color, captureMask, pushMask Bitboard, noisy, quiet bool) {
	pawns := p.Pieces[us][Pawn]
	pinned := p.Pinned
	kingSq := p.KingSquare[us]

	unpinned := pawns &^ pinned
	p.generatePawnGroup(ml, us, them, unpinned, captureMask, pushMask, Empty, noisy, quiet)

	pinnedPawns := pawns & pinned
	for pinnedPawns != 0 {
		sq := pinnedPawns.PopLSB()
		line := Line(kingSq, sq)
		p.generatePawnGroup(ml, us, them, SquareBB(sq), captureMask, pushMask, line, noisy, quiet)
	}

	if noisy {
		p.generateEnPassant(ml, us, them, captureMask, pushMask, pinned, kingSq)
	}
}

// generatePawnGroup generates non-ep pawn moves for a set of pawns; if
// pinLine is non-zero every destination is further restricted to it.
func (p *Position) generatePawnGroup(ml *MoveList, us, them Color, pawns, captureMask, pushMask, pinLine Bitboard, noisy, quiet bool) {
	if pawns == 0 {
		return
	}

	empty := ^p.AllOccupied
	enemies := p.Occupied[them]

	var push1, push2, attackL, attackR Bitboard
	var promotionRank Bitboard
	var pushDir int

	if us == White {
		push1 = pawns.North() & empty
		push2 = (push1 & Rank3).North() & empty
		attackL = pawns.NorthWest() & enemies
		attackR = pawns.NorthEast() & enemies
		promotionRank = Rank8
		pushDir = 8
	} else {
		push1 = pawns.South() & empty
		push2 = (push1 & Rank6).South() & empty
		attackL = pawns.SouthWest() & enemies
		attackR = pawns.SouthEast() & enemies
		promotionRank = Rank1
		pushDir = -8
	}

	restrict := func(bb Bitboard, mask Bitboard) Bitboard {
		bb &= mask
		if pinLine != 0 {
			bb &= pinLine
		}
		return bb
	}

	moving := NewPiece(Pawn, us)

	if quiet {
		nonPromo := restrict(push1&^promotionRank, pushMask)
		for nonPromo != 0 {
			to := nonPromo.PopLSB()
			from := Square(int(to) - pushDir)
			ml.Add(NewMove(from, to, moving, NoPiece, NoPieceType, FlagNormal))
		}

		dbl := restrict(push2, pushMask)
		for dbl != 0 {
			to := dbl.PopLSB()
			from := Square(int(to) - 2*pushDir)
			ml.Add(NewMove(from, to, moving, NoPiece, NoPieceType, FlagDoublePush))
		}
	}

	if noisy {
		promoPush := restrict(push1&promotionRank, pushMask)
		for promoPush != 0 {
			to := promoPush.PopLSB()
			from := Square(int(to) - pushDir)
			addPromotions(ml, from, to, moving, NoPiece)
		}
	}

	capL := restrict(attackL, captureMask)
	capR := restrict(attackR, captureMask)

	if noisy {
		nonPromoL := capL &^ promotionRank
		for nonPromoL != 0 {
			to := nonPromoL.PopLSB()
			from := Square(int(to) - pushDir + 1)
			ml.Add(NewMove(from, to, moving, p.PieceAt(to), NoPieceType, FlagNormal))
		}
		nonPromoR := capR &^ promotionRank
		for nonPromoR != 0 {
			to := nonPromoR.PopLSB()
			from := Square(int(to) - pushDir - 1)
			ml.Add(NewMove(from, to, moving, p.PieceAt(to), NoPieceType, FlagNormal))
		}
		promoL := capL & promotionRank
		for promoL != 0 {
			to := promoL.PopLSB()
			from := Square(int(to) - pushDir + 1)
			addPromotions(ml, from, to, moving, p.PieceAt(to))
		}
		promoR := capR & promotionRank
		for promoR != 0 {
			to := promoR.PopLSB()
			from := Square(int(to) - pushDir - 1)
			addPromotions(ml, from, to, moving, p.PieceAt(to))
		}
	}
}

// generateEnPassant handles the en passant capture, including the classic
// horizontal-discovered-check case (both pawns vanish from the king's rank)
// which a simple pin mask cannot express.
func (p *Position) generateEnPassant(ml *MoveList, us, them Color, captureMask, pushMask, pinned Bitboard, kingSq Square) {
	if p.EnPassant == NoSquare {
		return
	}

	to := p.EnPassant
	capSq := to - 8
	if us == Black {
		capSq = to + 8
	}

	notInCheck := p.Checkers == 0

	attackers := PawnAttacks(to, them) & p.Pieces[us][Pawn]
	for attackers != 0 {
		from := attackers.PopLSB()

		resolvesCheck := notInCheck || captureMask&SquareBB(capSq) != 0 || (captureMask|pushMask)&SquareBB(to) != 0
		if !resolvesCheck {
			continue
		}

		if pinned&SquareBB(from) != 0 && Line(kingSq, from)&SquareBB(to) == 0 {
			continue
		}

		moving := NewPiece(Pawn, us)
		captured := NewPiece(Pawn, them)
		m := NewMove(from, to, moving, captured, NoPieceType, FlagEnPassant)

		if kingSq.Rank() == from.Rank() {
			vb := NewVBoard(p)
			vb.ApplyMove(m, us)
			if vb.IsKingAttacked(kingSq, them) {
				continue
			}
		}

		ml.Add(m)
	}
}

// addPromotions adds all four promotion moves for one from/to pair.
func addPromotions(ml *MoveList, from, to Square, moving, captured Piece) {
	ml.Add(NewMove(from, to, moving, captured, Queen, FlagNormal))
	ml.Add(NewMove(from, to, moving, captured, Rook, FlagNormal))
	ml.Add(NewMove(from, to, moving, captured, Bishop, FlagNormal))
	ml.Add(NewMove(from, to, moving, captured, Knight, FlagNormal))
}

// generateKingMoves generates non-castling king moves, filtering destinations
// by direct attack (with the king removed from the occupancy, so a slider
// cannot be "blocked" by the square the king is vacating).
func (p *Position) generateKingMoves(ml *MoveList, us, them Color, noisy, quiet bool) {
	from := p.KingSquare[us]
	occWithoutKing := p.AllOccupied &^ SquareBB(from)
	attacks := KingAttacks(from) &^ p.Occupied[us]
	moving := NewPiece(King, us)

	for attacks != 0 {
		to := attacks.PopLSB()
		isCapture := p.Occupied[them]&SquareBB(to) != 0
		if isCapture && !noisy {
			continue
		}
		if !isCapture && !quiet {
			continue
		}
		if p.AttackersByColor(to, them, occWithoutKing) != 0 {
			continue
		}
		ml.Add(NewMove(from, to, moving, p.PieceAt(to), NoPieceType, FlagNormal))
	}
}

// generateCastlingMoves generates legal castling moves. Only called when
// the side to move is not currently in check.
func (p *Position) generateCastlingMoves(ml *MoveList, us Color) {
	them := us.Other()
	king := NewPiece(King, us)

	if us == White {
		if p.CastlingRights&WhiteKingSideCastle != 0 &&
			p.AllOccupied&(SquareBB(F1)|SquareBB(G1)) == 0 &&
			!p.IsSquareAttacked(F1, them) && !p.IsSquareAttacked(G1, them) {
			ml.Add(NewMove(E1, G1, king, NoPiece, NoPieceType, FlagCastle))
		}
		if p.CastlingRights&WhiteQueenSideCastle != 0 &&
			p.AllOccupied&(SquareBB(B1)|SquareBB(C1)|SquareBB(D1)) == 0 &&
			!p.IsSquareAttacked(D1, them) && !p.IsSquareAttacked(C1, them) {
			ml.Add(NewMove(E1, C1, king, NoPiece, NoPieceType, FlagCastle))
		}
	} else {
		if p.CastlingRights&BlackKingSideCastle != 0 &&
			p.AllOccupied&(SquareBB(F8)|SquareBB(G8)) == 0 &&
			!p.IsSquareAttacked(F8, them) && !p.IsSquareAttacked(G8, them) {
			ml.Add(NewMove(E8, G8, king, NoPiece, NoPieceType, FlagCastle))
		}
		if p.CastlingRights&BlackQueenSideCastle != 0 &&
			p.AllOccupied&(SquareBB(B8)|SquareBB(C8)|SquareBB(D8)) == 0 &&
			!p.IsSquareAttacked(D8, them) && !p.IsSquareAttacked(C8, them) {
			ml.Add(NewMove(E8, C8, king, NoPiece, NoPieceType, FlagCastle))
		}
	}
}

// MakeMove applies a legal move to the position, pushing a new Status.
func (p *Position) MakeMove(m Move) {
	us := p.SideToMove
	them := us.Other()
	from := m.From()
	to := m.To()
	moving := m.MovingPiece()
	pt := moving.Type()

	if p.EnPassant != NoSquare {
		p.Hash ^= zobristEnPassant[p.EnPassant.File()]
	}
	p.EnPassant = NoSquare

	if m.IsEnPassant() {
		capSq := to - 8
		if us == Black {
			capSq = to + 8
		}
		p.removePiece(capSq)
	} else if m.CapturedPiece() != NoPiece {
		p.removePiece(to)
	}

	p.removePiece(from)
	if m.IsPromotion() {
		p.setPiece(NewPiece(m.Promotion(), us), to)
	} else {
		p.setPiece(moving, to)
	}

	if m.IsCastling() {
		var rookFrom, rookTo Square
		if to > from {
			rookFrom = NewSquare(7, from.Rank())
			rookTo = NewSquare(5, from.Rank())
		} else {
			rookFrom = NewSquare(0, from.Rank())
			rookTo = NewSquare(3, from.Rank())
		}
		rook := p.removePiece(rookFrom)
		p.setPiece(rook, rookTo)
	}

	newRights := p.CastlingRights & castlingRightsMask[from] & castlingRightsMask[to]
	p.Hash ^= zobristCastling[p.CastlingRights]
	p.Hash ^= zobristCastling[newRights]
	p.CastlingRights = newRights

	if m.IsDoublePush() {
		epSq := Square((int(from) + int(to)) / 2)
		if PawnAttacks(epSq, us)&p.Pieces[them][Pawn] != 0 {
			p.EnPassant = epSq
			p.Hash ^= zobristEnPassant[epSq.File()]
		}
	}

	if pt == Pawn || m.IsCapture() {
		p.HalfMoveClock = 0
	} else {
		p.HalfMoveClock++
	}

	if us == Black {
		p.FullMoveNumber++
	}

	p.SideToMove = them
	p.Hash ^= zobristSideToMove

	p.UpdateCheckers()
	p.Pinned = p.ComputePinned()

	p.pushStatus(m)
}

// UnmakeMove reverses the most recent MakeMove. m must be the move that was
// just made; it is not checked against the status stack.
func (p *Position) UnmakeMove(m Move) {
	n := len(p.history)
	prev := p.history[n-2]
	p.history = p.history[:n-1]

	them := p.SideToMove
	us := them.Other()
	from := m.From()
	to := m.To()

	p.SideToMove = us
	p.EnPassant = prev.EnPassant
	p.CastlingRights = prev.CastlingRights
	p.HalfMoveClock = prev.HalfMoveClock
	p.FullMoveNumber = prev.FullMoveNumber
	p.Hash = prev.Key
	p.PawnKey = prev.PawnKey
	p.MaterialKey = prev.MaterialKey
	p.Checkers = prev.Checkers
	p.Pinned = prev.Pinned

	if m.IsPromotion() {
		p.Pieces[us][m.Promotion()] &^= SquareBB(to)
		p.Occupied[us] &^= SquareBB(to)
		p.AllOccupied &^= SquareBB(to)
		p.setPieceNoHash(NewPiece(Pawn, us), to)
	}

	p.movePieceNoHash(to, from)

	if m.IsCastling() {
		var rookFrom, rookTo Square
		if to > from {
			rookFrom = NewSquare(7, from.Rank())
			rookTo = NewSquare(5, from.Rank())
		} else {
			rookFrom = NewSquare(0, from.Rank())
			rookTo = NewSquare(3, from.Rank())
		}
		p.movePieceNoHash(rookTo, rookFrom)
	}

	if m.CapturedPiece() != NoPiece {
		if m.IsEnPassant() {
			capSq := to - 8
			if us == Black {
				capSq = to + 8
			}
			p.setPieceNoHash(m.CapturedPiece(), capSq)
		} else {
			p.setPieceNoHash(m.CapturedPiece(), to)
		}
	}
}

// setPieceNoHash / movePieceNoHash mutate the board without touching the
// Zobrist keys, used by UnmakeMove which restores keys from the status
// stack directly instead of unwinding them incrementally.
func (p *Position) setPieceNoHash(piece Piece, sq Square) {
	c := piece.Color()
	pt := piece.Type()
	bb := SquareBB(sq)
	p.Pieces[c][pt] |= bb
	p.Occupied[c] |= bb
	p.AllOccupied |= bb
	if pt == King {
		p.KingSquare[c] = sq
	}
}

func (p *Position) movePieceNoHash(from, to Square) {
	piece := p.PieceAt(from)
	if piece == NoPiece {
		return
	}
	c := piece.Color()
	pt := piece.Type()
	fromBB := SquareBB(from)
	toBB := SquareBB(to)
	p.Pieces[c][pt] = (p.Pieces[c][pt] &^ fromBB) | toBB
	p.Occupied[c] = (p.Occupied[c] &^ fromBB) | toBB
	p.AllOccupied = (p.AllOccupied &^ fromBB) | toBB
	if pt == King {
		p.KingSquare[c] = to
	}
}

// HasLegalMoves returns true if the side to move has any legal moves.
func (p *Position) HasLegalMoves() bool {
	ml := NewMoveList()
	p.GenerateLegalMoves(ml)
	return ml.Len() > 0
}

// IsCheckmate returns true if the position is checkmate.
func (p *Position) IsCheckmate() bool {
	return p.InCheck() && !p.HasLegalMoves()
}

// IsStalemate returns true if the position is stalemate.
func (p *Position) IsStalemate() bool {
	return !p.InCheck() && !p.HasLegalMoves()
}

// IsDraw returns true if the position is an immediate draw (stalemate,
// 50-move rule, or insufficient material). Repetition draws are handled by
// repetition.go since they require the status-history stack / game history.
func (p *Position) IsDraw() bool {
	if p.IsStalemate() {
		return true
	}
	if p.HalfMoveClock >= 100 {
		return true
	}
	return p.IsInsufficientMaterial()
}

// IsInsufficientMaterial returns true if neither side can checkmate.
func (p *Position) IsInsufficientMaterial() bool {
	if p.Pieces[White][Pawn]|p.Pieces[Black][Pawn] != 0 ||
		p.Pieces[White][Rook]|p.Pieces[Black][Rook] != 0 ||
		p.Pieces[White][Queen]|p.Pieces[Black][Queen] != 0 {
		return false
	}

	wMinor := p.Pieces[White][Knight].PopCount() + p.Pieces[White][Bishop].PopCount()
	bMinor := p.Pieces[Black][Knight].PopCount() + p.Pieces[Black][Bishop].PopCount()

	if wMinor+bMinor == 0 {
		return true
	}
	if wMinor <= 1 && bMinor == 0 {
		return true
	}
	if bMinor <= 1 && wMinor == 0 {
		return true
	}

	return false
}
