package board

import "fmt"

// Move encodes a chess move in a packed 32-bit word:
// bits 0-5:   from square (0-63)
// bits 6-11:  to square (0-63)
// bits 12-15: moving piece (Piece, 0-12)
// bits 16-19: captured piece (Piece, 12 = none)
// bits 20-23: promotion piece type (NoPieceType if none)
// bits 24-26: flags (0=normal, 1=double_push, 2=en_passant, 3=castle)
type Move uint32

// Move flags. Exclusive: a move carries at most one of these.
const (
	FlagNormal     uint32 = 0
	FlagDoublePush uint32 = 1
	FlagEnPassant  uint32 = 2
	FlagCastle     uint32 = 3
)

const (
	moveFromShift     = 0
	moveToShift       = 6
	movePieceShift    = 12
	moveCapturedShift = 16
	movePromoShift    = 20
	moveFlagShift     = 24

	moveSquareMask = 0x3F
	movePieceMask  = 0xF
	moveFlagMask   = 0x7
)

// NoMove represents the absence of a move (e.g. empty slot, "no counter-move").
const NoMove Move = 0

// NullMove is a distinguished code for a null move: neither NoMove nor any
// legal move can equal it, since from==to is otherwise impossible.
const NullMove Move = Move(1) | Move(1)<<moveToShift

// NewMove packs a move. captured is NoPiece if the move is not a capture.
// promo is NoPieceType for non-promotions.
func NewMove(from, to Square, moving, captured Piece, promo PieceType, flag uint32) Move {
	return Move(from)<<moveFromShift |
		Move(to)<<moveToShift |
		Move(moving)<<movePieceShift |
		Move(captured)<<moveCapturedShift |
		Move(promo)<<movePromoShift |
		Move(flag)<<moveFlagShift
}

// NewQuiet creates a quiet (non-capture, non-special) move.
func NewQuiet(from, to Square, moving Piece) Move {
	return NewMove(from, to, moving, NoPiece, NoPieceType, FlagNormal)
}

// NewCapture creates a capturing move.
func NewCapture(from, to Square, moving, captured Piece) Move {
	return NewMove(from, to, moving, captured, NoPieceType, FlagNormal)
}

// NewDoublePush creates a double pawn push.
func NewDoublePush(from, to Square, moving Piece) Move {
	return NewMove(from, to, moving, NoPiece, NoPieceType, FlagDoublePush)
}

// NewPromotion creates a (possibly capturing) promotion move.
func NewPromotion(from, to Square, moving, captured Piece, promo PieceType) Move {
	return NewMove(from, to, moving, captured, promo, FlagNormal)
}

// NewEnPassant creates an en passant capture. captured is always the enemy pawn.
func NewEnPassant(from, to Square, moving, captured Piece) Move {
	return NewMove(from, to, moving, captured, NoPieceType, FlagEnPassant)
}

// NewCastling creates a castling move (the king's from/to squares).
func NewCastling(from, to Square, moving Piece) Move {
	return NewMove(from, to, moving, NoPiece, NoPieceType, FlagCastle)
}

// From returns the origin square.
func (m Move) From() Square {
	return Square(m>>moveFromShift) & moveSquareMask
}

// To returns the destination square.
func (m Move) To() Square {
	return Square(m>>moveToShift) & moveSquareMask
}

// MovingPiece returns the piece that is moving.
func (m Move) MovingPiece() Piece {
	return Piece(m>>movePieceShift) & movePieceMask
}

// CapturedPiece returns the captured piece, or NoPiece if this move is quiet.
func (m Move) CapturedPiece() Piece {
	return Piece(m>>moveCapturedShift) & movePieceMask
}

// Promotion returns the promotion piece type, or NoPieceType if not a promotion.
func (m Move) Promotion() PieceType {
	return PieceType(m>>movePromoShift) & movePieceMask
}

// Flag returns the move's special-move flag.
func (m Move) Flag() uint32 {
	return uint32(m>>moveFlagShift) & moveFlagMask
}

// IsPromotion returns true if this move promotes a pawn.
func (m Move) IsPromotion() bool {
	return m.Promotion() != NoPieceType
}

// IsDoublePush returns true if this is a double pawn push.
func (m Move) IsDoublePush() bool {
	return m.Flag() == FlagDoublePush
}

// IsCastling returns true if this is a castling move.
func (m Move) IsCastling() bool {
	return m.Flag() == FlagCastle
}

// IsEnPassant returns true if this is an en passant capture.
func (m Move) IsEnPassant() bool {
	return m.Flag() == FlagEnPassant
}

// IsCapture returns true if this move captures a piece (including en passant).
func (m Move) IsCapture() bool {
	return m.CapturedPiece() != NoPiece
}

// IsQuiet returns true if this move is neither a capture nor a promotion.
func (m Move) IsQuiet() bool {
	return !m.IsCapture() && !m.IsPromotion()
}

// IsNoisy returns true if this move is a capture or a promotion.
func (m Move) IsNoisy() bool {
	return m.IsCapture() || m.IsPromotion()
}

// String returns the UCI format of the move (e.g., "e2e4", "e7e8q").
func (m Move) String() string {
	if m == NoMove {
		return "0000"
	}

	s := m.From().String() + m.To().String()

	if m.IsPromotion() {
		promoChars := []byte{'n', 'b', 'r', 'q'}
		s += string(promoChars[m.Promotion()-Knight])
	}

	return s
}

// ParseMove parses a UCI format move string against a position, filling in
// the moving/captured piece and flag fields by consulting the board.
func ParseMove(s string, pos *Position) (Move, error) {
	if len(s) < 4 {
		return NoMove, fmt.Errorf("invalid move string: %s", s)
	}

	from, err := ParseSquare(s[0:2])
	if err != nil {
		return NoMove, err
	}

	to, err := ParseSquare(s[2:4])
	if err != nil {
		return NoMove, err
	}

	moving := pos.PieceAt(from)
	if moving == NoPiece {
		return NoMove, fmt.Errorf("no piece at %s", from)
	}
	pt := moving.Type()
	captured := pos.PieceAt(to)

	if len(s) == 5 {
		var promo PieceType
		switch s[4] {
		case 'n':
			promo = Knight
		case 'b':
			promo = Bishop
		case 'r':
			promo = Rook
		case 'q':
			promo = Queen
		default:
			return NoMove, fmt.Errorf("invalid promotion piece: %c", s[4])
		}
		return NewPromotion(from, to, moving, captured, promo), nil
	}

	if pt == King && abs(int(to)-int(from)) == 2 {
		return NewCastling(from, to, moving), nil
	}

	if pt == Pawn && to == pos.EnPassant && captured == NoPiece {
		capSq := to - 8
		if moving.Color() == Black {
			capSq = to + 8
		}
		return NewEnPassant(from, to, moving, pos.PieceAt(capSq)), nil
	}

	if pt == Pawn && abs(to.Rank()-from.Rank()) == 2 {
		return NewDoublePush(from, to, moving), nil
	}

	return NewCapture(from, to, moving, captured), nil
}

// scoredMove pairs a move with an ordering score, for MoveList.
type scoredMove struct {
	move  Move
	score int32
}

// MoveList is a fixed-size list of {move, score} pairs; no allocation.
type MoveList struct {
	moves [256]scoredMove
	count int
}

// NewMoveList creates an empty move list.
func NewMoveList() *MoveList {
	return &MoveList{}
}

// Add adds a move to the list with a zero score.
func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = scoredMove{move: m}
	ml.count++
}

// AddScored adds a move with an explicit ordering score.
func (ml *MoveList) AddScored(m Move, score int32) {
	ml.moves[ml.count] = scoredMove{move: m, score: score}
	ml.count++
}

// Len returns the number of moves in the list.
func (ml *MoveList) Len() int {
	return ml.count
}

// Get returns the move at index i.
func (ml *MoveList) Get(i int) Move {
	return ml.moves[i].move
}

// Score returns the ordering score at index i.
func (ml *MoveList) Score(i int) int32 {
	return ml.moves[i].score
}

// SetScore sets the ordering score at index i.
func (ml *MoveList) SetScore(i int, score int32) {
	ml.moves[i].score = score
}

// Set sets the move at index i.
func (ml *MoveList) Set(i int, m Move) {
	ml.moves[i].move = m
}

// Swap swaps two moves (and their scores) in the list.
func (ml *MoveList) Swap(i, j int) {
	ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i]
}

// Clear clears the list.
func (ml *MoveList) Clear() {
	ml.count = 0
}

// Contains returns true if the list contains the move.
func (ml *MoveList) Contains(m Move) bool {
	for i := 0; i < ml.count; i++ {
		if ml.moves[i].move == m {
			return true
		}
	}
	return false
}

// Slice returns the moves (without scores) as a slice.
func (ml *MoveList) Slice() []Move {
	out := make([]Move, ml.count)
	for i := 0; i < ml.count; i++ {
		out[i] = ml.moves[i].move
	}
	return out
}

// PickMove finds the highest-scored move at or after index i and swaps it
// into position i, returning it. Used by the staged move picker for lazy
// selection-sort instead of sorting the whole list up front.
func (ml *MoveList) PickMove(i int) Move {
	best := i
	for j := i + 1; j < ml.count; j++ {
		if ml.moves[j].score > ml.moves[best].score {
			best = j
		}
	}
	ml.Swap(i, best)
	return ml.moves[i].move
}
