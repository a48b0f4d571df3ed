package engine

import (
	"math/bits"

	"github.com/corvidchess/corvid/internal/board"
)

// TTBound indicates the type of bound stored in the transposition table.
type TTBound uint8

const (
	TTExact      TTBound = iota // Exact score
	TTLowerBound                // Failed high (beta cutoff)
	TTUpperBound                // Failed low
)

// ttAgeMask/ttPVShift/ttBoundShift pack age(5)/pv(1)/bound(2) into one byte.
const (
	ttAgeBits    = 5
	ttAgeMask    = (1 << ttAgeBits) - 1
	ttPVShift    = ttAgeBits
	ttBoundMask  = 0x3
	ttBoundShift = ttAgeBits + 1
)

func packAgePVBound(age uint8, pv bool, bound TTBound) uint8 {
	b := age & ttAgeMask
	if pv {
		b |= 1 << ttPVShift
	}
	b |= uint8(bound&ttBoundMask) << ttBoundShift
	return b
}

func unpackAge(b uint8) uint8    { return b & ttAgeMask }
func unpackPV(b uint8) bool      { return b&(1<<ttPVShift) != 0 }
func unpackBound(b uint8) TTBound { return TTBound((b >> ttBoundShift) & ttBoundMask) }

// TTEntry is one slot of a cluster: a 32-bit key prefix, a packed move, a
// 16-bit score, a 16-bit static eval, an 8-bit depth, and a packed
// {age(5),pv(1),bound(2)} byte.
type TTEntry struct {
	Key       uint32
	Move      board.Move
	Score     int16
	StaticEval int16
	Depth     int8
	AgePVBound uint8
}

func (e *TTEntry) empty() bool { return e.Depth == 0 && e.Key == 0 }

func (e *TTEntry) priority(currentAge uint8) int {
	ageDelta := int(currentAge) - int(unpackAge(e.AgePVBound))
	if ageDelta < 0 {
		ageDelta += 1 << ttAgeBits
	}
	return int(e.Depth) - 2*ageDelta
}

// ttCluster groups 4 entries sharing the same table index, per spec §4.5.
const clusterSize = 4

type ttCluster struct {
	entries [clusterSize]TTEntry
}

// TranspositionTable is a cluster-addressed hash table for storing search
// results, shared across Lazy-SMP worker goroutines.
type TranspositionTable struct {
	clusters []ttCluster
	count    uint64
	age      uint8

	hits   uint64
	probes uint64
}

// NewTranspositionTable creates a transposition table with the given size
// in MB, rounding the cluster count down to a power of 2.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	clusterBytes := uint64(clusterSize) * 16 // approximate TTEntry size
	numClusters := (uint64(sizeMB) * 1024 * 1024) / clusterBytes
	numClusters = roundDownToPowerOf2(numClusters)
	if numClusters == 0 {
		numClusters = 1
	}

	return &TranspositionTable{
		clusters: make([]ttCluster, numClusters),
		count:    numClusters,
	}
}

func roundDownToPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

// index computes the cluster slot for hash via `(hash * count) >> 64`, the
// fast multiply-shift modulo per spec §4.5, using math/bits.Mul64 for the
// 128-bit product's high half.
func (tt *TranspositionTable) index(hash uint64) uint64 {
	hi, _ := bits.Mul64(hash, tt.count)
	return hi
}

// Prefetch touches the cluster's first key so the access pattern reads the
// cluster before ProbeResult needs its contents. Go has no portable
// cache-line prefetch intrinsic, so this is a plain memory touch rather
// than an actual PREFETCHT0.
func (tt *TranspositionTable) Prefetch(hash uint64) {
	_ = tt.clusters[tt.index(hash)].entries[0].Key
}

// ProbeResult is what Probe returns: the matching entry's contents plus
// whether a match was found at all.
type ProbeResult struct {
	Move       board.Move
	Score      int
	StaticEval int
	Depth      int
	Bound      TTBound
	PV         bool
	Hit        bool
}

// Probe looks up hash's cluster and returns the first entry whose 32-bit
// key prefix matches.
func (tt *TranspositionTable) Probe(hash uint64) ProbeResult {
	tt.probes++

	cluster := &tt.clusters[tt.index(hash)]
	key32 := uint32(hash)

	for i := range cluster.entries {
		e := &cluster.entries[i]
		if e.empty() || e.Key != key32 {
			continue
		}
		tt.hits++
		return ProbeResult{
			Move:       e.Move,
			Score:      int(e.Score),
			StaticEval: int(e.StaticEval),
			Depth:      int(e.Depth),
			Bound:      unpackBound(e.AgePVBound),
			PV:         unpackPV(e.AgePVBound),
			Hit:        true,
		}
	}

	return ProbeResult{}
}

// Store saves a search result in hash's cluster. It prefers an already-
// matching slot; otherwise it replaces the slot with the lowest
// replacement priority (depth minus twice the age delta), always
// overwriting when the new depth is greater, the new bound is exact, the
// slot is empty, or the slot is from an older generation.
func (tt *TranspositionTable) Store(hash uint64, depth int, score, staticEval int, bound TTBound, pv bool, move board.Move) {
	cluster := &tt.clusters[tt.index(hash)]
	key32 := uint32(hash)

	var victim *TTEntry
	for i := range cluster.entries {
		e := &cluster.entries[i]
		if e.empty() || e.Key == key32 {
			victim = e
			break
		}
		if victim == nil || e.priority(tt.age) < victim.priority(tt.age) {
			victim = e
		}
	}

	replace := victim.empty() ||
		victim.Key != key32 ||
		depth > int(victim.Depth) ||
		bound == TTExact ||
		unpackAge(victim.AgePVBound) != tt.age

	if !replace {
		return
	}

	if move == board.NoMove && victim.Key == key32 {
		move = victim.Move // keep the previous best move on a bound-only refresh
	}

	victim.Key = key32
	victim.Move = move
	victim.Score = int16(score)
	victim.StaticEval = int16(staticEval)
	victim.Depth = int8(depth)
	victim.AgePVBound = packAgePVBound(tt.age, pv, bound)
}

// NewSearch bumps the age counter (mod 32) for a new search.
func (tt *TranspositionTable) NewSearch() {
	tt.age = (tt.age + 1) & ttAgeMask
}

// Clear empties the table.
func (tt *TranspositionTable) Clear() {
	for i := range tt.clusters {
		tt.clusters[i] = ttCluster{}
	}
	tt.age = 0
	tt.hits = 0
	tt.probes = 0
}

// HashFull returns the permille of the table that is used by the current
// search generation, sampling the first 1000 clusters' first slot.
func (tt *TranspositionTable) HashFull() int {
	used := 0
	sampleSize := 1000
	if uint64(sampleSize) > tt.count {
		sampleSize = int(tt.count)
	}

	for i := 0; i < sampleSize; i++ {
		e := &tt.clusters[i].entries[0]
		if !e.empty() && unpackAge(e.AgePVBound) == tt.age {
			used++
		}
	}

	return (used * 1000) / sampleSize
}

// HitRate returns the cache hit rate as a percentage.
func (tt *TranspositionTable) HitRate() float64 {
	if tt.probes == 0 {
		return 0
	}
	return float64(tt.hits) / float64(tt.probes) * 100
}

// Size returns the number of clusters in the table.
func (tt *TranspositionTable) Size() uint64 {
	return tt.count
}

// AdjustScoreFromTT converts a stored mate/TB-distance score to be relative
// to the current search ply.
func AdjustScoreFromTT(score int, ply int) int {
	if score > MateScore-MaxPly {
		return score - ply
	}
	if score < -MateScore+MaxPly {
		return score + ply
	}
	return score
}

// AdjustScoreToTT converts a ply-relative mate/TB-distance score to be
// relative to the root, for storage.
func AdjustScoreToTT(score int, ply int) int {
	if score > MateScore-MaxPly {
		return score + ply
	}
	if score < -MateScore+MaxPly {
		return score - ply
	}
	return score
}
