// Package store provides a disk-backed, Zobrist-keyed cache that
// survives process restarts, for lookups whose results are otherwise
// recomputed or re-fetched from scratch every run (Syzygy/Lichess
// tablebase verdicts). It complements the in-process
// tablebase.CachedProber, which only lives as long as the engine does.
package store

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/corvidchess/corvid/internal/board"
	"github.com/corvidchess/corvid/internal/tablebase"
)

const tablebasePrefix = "tb:"

// Store wraps a BadgerDB instance keyed by Zobrist hash.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a store at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// DefaultDir returns the default cache directory for the store.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./corvid-cache"
	}
	return filepath.Join(home, ".corvid", "cache")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func tablebaseKey(hash uint64) []byte {
	key := make([]byte, len(tablebasePrefix)+8)
	copy(key, tablebasePrefix)
	binary.BigEndian.PutUint64(key[len(tablebasePrefix):], hash)
	return key
}

// GetTablebase looks up a cached tablebase probe result for hash.
func (s *Store) GetTablebase(hash uint64) (tablebase.ProbeResult, bool, error) {
	var result tablebase.ProbeResult
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tablebaseKey(hash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &result)
		})
	})

	return result, found, err
}

// PutTablebase caches a tablebase probe result for hash.
func (s *Store) PutTablebase(hash uint64, result tablebase.ProbeResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(tablebaseKey(hash), data)
	})
}

// DiskCachedProber wraps a tablebase.Prober with a Store-backed cache, so
// probes of positions already seen in a prior process (e.g. a repeated
// opening line) skip the network round trip. ProbeRoot is never cached,
// since its result depends on the position's full legal move list rather
// than the position alone.
type DiskCachedProber struct {
	inner tablebase.Prober
	store *Store
}

// NewDiskCachedProber wraps inner with a cache persisted to store.
func NewDiskCachedProber(inner tablebase.Prober, store *Store) *DiskCachedProber {
	return &DiskCachedProber{inner: inner, store: store}
}

func (p *DiskCachedProber) Probe(pos *board.Position) tablebase.ProbeResult {
	if result, found, err := p.store.GetTablebase(pos.Hash); err == nil && found {
		return result
	}

	result := p.inner.Probe(pos)
	_ = p.store.PutTablebase(pos.Hash, result)
	return result
}

func (p *DiskCachedProber) ProbeRoot(pos *board.Position) tablebase.RootResult {
	return p.inner.ProbeRoot(pos)
}

func (p *DiskCachedProber) MaxPieces() int {
	return p.inner.MaxPieces()
}

func (p *DiskCachedProber) Available() bool {
	return p.inner.Available()
}
