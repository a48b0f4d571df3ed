package nnue

import "github.com/corvidchess/corvid/internal/board"

// Network dimensions. HIDDEN sits inside spec's 768-1024 band; OUTPUT_BUCKETS
// and KING_BUCKETS are spec-fixed.
const (
	Input         = 768 // 6 piece types * 2 colors * 64 squares, per king bucket
	Hidden        = 1024
	OutputBuckets = 8
	KingBuckets   = 4

	// Quantization. QA scales the feature transformer output (screlu clamps
	// to [0, QA]); QB scales the output layer; SCALE converts to centipawns.
	QA    = 255
	QB    = 64
	Scale = 400
)

// kingBucketOf maps an oriented king square (already horizontally mirrored
// onto the a-d files) to one of KingBuckets buckets, by rank quartile: king
// safety differs mainly by how far the king has travelled up the board, and
// the horizontal half is already resolved by orientation.
var kingBucketOf [64]int

func init() {
	for sq := board.Square(0); sq < 64; sq++ {
		kingBucketOf[sq] = sq.Rank() / 2
	}
}

// orient returns the square and king square as seen from perspective: black's
// view is vertically mirrored, and if the (vertically-mirrored) king sits on
// the e-h files the whole board is additionally mirrored horizontally so the
// king is always normalized onto the a-d side. Mirroring piece and king square
// through the same XOR keeps their relative geometry intact. horizFlip
// reports whether the horizontal mirror was applied, for boundary detection.
func orient(perspective board.Color, sq, kingSq board.Square) (orientedSq, orientedKingSq board.Square, horizFlip bool) {
	var flip board.Square
	if perspective == board.Black {
		flip = 56
	}
	orientedKingSq = kingSq ^ flip
	if orientedKingSq.File()&4 != 0 {
		flip ^= 7
		orientedKingSq ^= 7
		horizFlip = true
	}
	orientedSq = sq ^ flip
	return
}

// MakeIndex computes the feature index for a piece at sq, of type pt and
// color pc, as seen by perspective whose king stands at kingSq.
func MakeIndex(perspective board.Color, sq board.Square, pt board.PieceType, pc board.Color, kingSq board.Square) int {
	orientedSq, orientedKingSq, _ := orient(perspective, sq, kingSq)
	bucket := kingBucketOf[orientedKingSq]

	side := 1
	if pc == perspective {
		side = 0
	}

	return bucket*Input + side*384 + int(pt)*64 + int(orientedSq)
}

// dirtyEntry names a single piece removed from or added to a square.
type dirtyEntry struct {
	piece board.Piece
	sq    board.Square
}

// DirtyPieces records the raw piece/square changes a move makes, so each
// perspective's feature index can be derived lazily when the accumulator is
// actually read. There are at most two removals and two additions: a quiet
// move or promotion is sub+add, a capture (including en passant and
// promotion-capture) is sub+sub+add, and castling (king and rook both move)
// is sub+sub+add+add.
type DirtyPieces struct {
	Sub    [2]dirtyEntry
	Add    [2]dirtyEntry
	NumSub int
	NumAdd int

	// Refresh[c] is true when color c's own king move invalidated that
	// color's accumulator orientation/bucket, requiring a full refresh
	// instead of an incremental fold for that perspective.
	Refresh [2]bool
}

func (d *DirtyPieces) pushSub(p board.Piece, sq board.Square) {
	d.Sub[d.NumSub] = dirtyEntry{p, sq}
	d.NumSub++
}

func (d *DirtyPieces) pushAdd(p board.Piece, sq board.Square) {
	d.Add[d.NumAdd] = dirtyEntry{p, sq}
	d.NumAdd++
}

// ComputeDirtyPieces derives the feature changes a move is about to make.
// Must be called BEFORE the move is applied to pos, since it reads the
// board's pre-move state (mirroring the teacher's computeDirtyPieces, which
// carried the same must-call-before-MakeMove contract).
func ComputeDirtyPieces(pos *board.Position, m board.Move) DirtyPieces {
	var d DirtyPieces

	from, to := m.From(), m.To()
	moving := m.MovingPiece()
	us := moving.Color()

	if moving.Type() == board.King || m.IsCastling() {
		oldBucket, oldFlip := bucketAndFlip(us, pos.KingSquare[us])
		newBucket, newFlip := bucketAndFlip(us, to)
		if oldBucket != newBucket || oldFlip != newFlip {
			d.Refresh[us] = true
		}
	}

	d.pushSub(moving, from)
	if m.IsPromotion() {
		d.pushAdd(board.NewPiece(m.Promotion(), us), to)
	} else {
		d.pushAdd(moving, to)
	}

	if m.IsEnPassant() {
		capSq := to - 8
		if us == board.Black {
			capSq = to + 8
		}
		d.pushSub(m.CapturedPiece(), capSq)
	} else if m.CapturedPiece() != board.NoPiece {
		d.pushSub(m.CapturedPiece(), to)
	}

	if m.IsCastling() {
		var rookFrom, rookTo board.Square
		if to > from {
			rookFrom = board.NewSquare(7, from.Rank())
			rookTo = board.NewSquare(5, from.Rank())
		} else {
			rookFrom = board.NewSquare(0, from.Rank())
			rookTo = board.NewSquare(3, from.Rank())
		}
		rook := board.NewPiece(board.Rook, us)
		d.pushSub(rook, rookFrom)
		d.pushAdd(rook, rookTo)
	}

	return d
}

// bucketAndFlip returns the king bucket and horizontal-flip state a color's
// king occupies from its own perspective, used to detect whether a king move
// crosses a bucket or mirror-line boundary.
func bucketAndFlip(perspective board.Color, kingSq board.Square) (int, bool) {
	_, orientedKingSq, horizFlip := orient(perspective, kingSq, kingSq)
	return kingBucketOf[orientedKingSq], horizFlip
}
