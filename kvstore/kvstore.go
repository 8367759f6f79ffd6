// Package kvstore wraps a single embedded pebble.DB handle shared by the
// document and columnar collection layers: reads and iterators take a
// read guard, while single-key writes and batch commits take the write
// guard. Pebble itself has no notion of
// column families, so namespaces are modeled as key prefixes, matching
// the prefixed-key schema the collection layers use.
package kvstore

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Store is the shared KV handle. All collection-layer code opens exactly
// one Store per data directory and multiplexes namespaces through key
// prefixes rather than opening separate pebble databases.
type Store struct {
	mu  sync.RWMutex
	db  *pebble.DB
	dir string
}

// Open opens (creating if necessary) a pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	slog.Info("kvstore opened", "dir", dir)
	return &Store{db: db, dir: dir}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Get fetches a single key. The returned bool is false if the key is absent.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, true, nil
}

// Set writes a single key/value pair, synced so it survives a crash.
func (s *Store) Set(key, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Set(key, val, pebble.Sync)
}

// Delete removes a single key. Deleting an absent key is a no-op.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(key, pebble.Sync)
}

// Batch accumulates writes for atomic commit, used by document/columnar
// insert/update/remove so a document's data and all its index entries land
// together.
type Batch struct {
	store *Store
	b     *pebble.Batch
}

// NewBatch starts a new atomic write batch. Commit acquires the write
// guard; building the batch itself does not.
func (s *Store) NewBatch() *Batch {
	return &Batch{store: s, b: s.db.NewBatch()}
}

func (b *Batch) Set(key, val []byte) error { return b.b.Set(key, val, nil) }
func (b *Batch) Delete(key []byte) error   { return b.b.Delete(key, nil) }

func (b *Batch) Commit() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return b.store.db.Apply(b.b, pebble.Sync)
}

// ScanPrefix iterates every key with the given prefix in ascending key
// order, calling fn(key, value) for each. Iteration stops early if fn
// returns false, or once the prefix no longer matches.
func (s *Store) ScanPrefix(prefix []byte, fn func(key, val []byte) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(append([]byte(nil), iter.Key()...), append([]byte(nil), iter.Value()...)) {
			break
		}
	}
	return iter.Error()
}

// ScanRange iterates keys in [start, end) ascending order.
func (s *Store) ScanRange(start, end []byte, fn func(key, val []byte) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: end})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(append([]byte(nil), iter.Key()...), append([]byte(nil), iter.Value()...)) {
			break
		}
	}
	return iter.Error()
}

// DeletePrefix removes every key under prefix, used by truncate/drop
// operations.
func (s *Store) DeletePrefix(prefix []byte) error {
	var keys [][]byte
	if err := s.ScanPrefix(prefix, func(k, _ []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		return true
	}); err != nil {
		return err
	}
	b := s.NewBatch()
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return b.Commit()
}

// prefixUpperBound computes the smallest key that is greater than every
// key with the given prefix, by incrementing the last non-0xff byte and
// truncating. A prefix of all 0xff bytes has no finite upper bound and
// returns nil (unbounded).
func prefixUpperBound(prefix []byte) []byte {
	ub := append([]byte(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] == 0xff {
			ub = ub[:i]
			continue
		}
		ub[i]++
		return ub[:i+1]
	}
	return nil
}
