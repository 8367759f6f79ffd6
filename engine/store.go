// Package engine wires the storage layers (document, columnar, kvstore),
// the sharding coordinator, and the transaction lock manager into one
// handle. Store is what cmd/solidb opens once per data directory and
// hands to the DBQL executor as its DataSource.
package engine

import (
	"github.com/solisoft/solidb/columnar"
	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/document"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/sharding"
	"github.com/solisoft/solidb/txn"
	"github.com/solisoft/solidb/value"
)

// Store dispatches collection operations to whichever of document or
// columnar actually owns the named collection, and satisfies
// dbql/exec.DataSource, exec.KeyGetter and exec.IndexLookup so it can be
// handed directly to exec.New.
type Store struct {
	KV       *kvstore.Store
	Docs     *document.Manager
	Columns  *columnar.Manager
	Locks    *txn.LockManager
	Shards   *sharding.Coordinator
	database string
}

// Open opens the embedded store rooted at dir. Both collection kinds
// share one pebble instance, namespaced by key prefix.
// The caller sets Shards once its own Membership/Rebalancer are ready.
func Open(dir, database string) (*Store, error) {
	kv, err := kvstore.Open(dir)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "opening data directory")
	}
	return &Store{
		KV:       kv,
		Docs:     document.NewManager(kv),
		Columns:  columnar.NewManager(kv),
		Locks:    txn.NewLockManager(),
		database: database,
	}, nil
}

func (s *Store) Close() error {
	s.Docs.FlushAll()
	return s.KV.Close()
}

// CollectionExists implements exec.DataSource.
func (s *Store) CollectionExists(name string) bool {
	return s.Docs.CollectionExists(name) || s.Columns.CollectionExists(name)
}

// Scan implements exec.DataSource, preferring a document collection over
// a columnar one of the same name (collections are expected to be
// disjoint by name; first match wins rather than erroring).
func (s *Store) Scan(name string, limit int) ([]value.Value, error) {
	if s.Docs.CollectionExists(name) {
		return s.Docs.Scan(name, limit)
	}
	if s.Columns.CollectionExists(name) {
		return s.Columns.Scan(name, limit)
	}
	return nil, dberr.New(dberr.CollectionNotFound, "collection %q not found", name)
}

// GetByKey implements exec.KeyGetter. Columnar collections have no
// document-style `_key` lookup (rows are keyed by UUIDv7, not a user
// key), so it only ever resolves document collections.
func (s *Store) GetByKey(name, key string) (value.Value, bool, error) {
	if !s.Docs.CollectionExists(name) {
		return value.Null(), false, nil
	}
	return s.Docs.GetByKey(name, key)
}

// IndexLookupEq implements exec.IndexLookup, document collections only
// (columnar index lookups go through columnar's ScanFiltered and are not
// exposed through this interface).
func (s *Store) IndexLookupEq(name, index string, values []value.Value) ([]value.Value, error) {
	if !s.Docs.CollectionExists(name) {
		return nil, dberr.New(dberr.CollectionNotFound, "collection %q not found", name)
	}
	return s.Docs.IndexLookupEq(name, index, values)
}

// Insert writes a document through the locking mutation path: the
// generated (or supplied) key is locked for the transaction before the
// collection write, and unlocked only by ReleaseTx.
func (s *Store) Insert(tx txn.TxID, collection string, doc value.Value) (value.Value, error) {
	c, ok := s.Docs.Collection(collection)
	if !ok {
		return value.Null(), dberr.New(dberr.CollectionNotFound, "collection %q not found", collection)
	}
	key := ""
	if kv, ok := doc.Get("_key"); ok {
		key = kv.AsString()
	}
	if key != "" {
		if err := s.lockKey(tx, collection, key); err != nil {
			return value.Null(), err
		}
	}
	out, err := c.Insert(doc)
	if err != nil {
		return value.Null(), err
	}
	if key == "" {
		// Generated key: lock it after the fact so subsequent writers in
		// other transactions conflict until this tx releases.
		kv, _ := out.Get("_key")
		if err := s.lockKey(tx, collection, kv.AsString()); err != nil {
			return value.Null(), err
		}
	}
	return out, nil
}

// Update mutates a document under the transaction's exclusive lock.
func (s *Store) Update(tx txn.TxID, collection, key string, patch value.Value, expectedRev string, replace bool) (value.Value, error) {
	c, ok := s.Docs.Collection(collection)
	if !ok {
		return value.Null(), dberr.New(dberr.CollectionNotFound, "collection %q not found", collection)
	}
	if err := s.lockKey(tx, collection, key); err != nil {
		return value.Null(), err
	}
	return c.Update(key, patch, expectedRev, replace)
}

// Remove deletes a document under the transaction's exclusive lock.
func (s *Store) Remove(tx txn.TxID, collection, key string) error {
	c, ok := s.Docs.Collection(collection)
	if !ok {
		return dberr.New(dberr.CollectionNotFound, "collection %q not found", collection)
	}
	if err := s.lockKey(tx, collection, key); err != nil {
		return err
	}
	return c.Remove(key)
}

// ReleaseTx drops every lock the transaction holds; callers run it on
// commit and on abort alike.
func (s *Store) ReleaseTx(tx txn.TxID) {
	s.Locks.ReleaseLocks(tx)
}

func (s *Store) lockKey(tx txn.TxID, collection, key string) error {
	return s.Locks.AcquireExclusive(tx, txn.Key{
		Database:   s.database,
		Collection: collection,
		DocKey:     key,
	})
}

// HealthyMembers implements sharding.Membership for a single-node
// deployment: the local node is always its own (and only) healthy member.
// A clustered deployment replaces this with real membership tracking.
type SingleNodeMembership struct{ Self string }

func (m SingleNodeMembership) HealthyMembers() []string { return []string{m.Self} }

// NoopRebalancer implements sharding.Rebalancer for a single-node
// deployment, where a shard-count change has no physical data to move yet.
type NoopRebalancer struct{}

func (NoopRebalancer) EnqueueRebalance(collection string, cfg sharding.Config) {}
