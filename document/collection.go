// Package document implements the document collection layer:
// a KV-backed store where documents, index entries, blob chunks, and
// collection metadata all live under prefixed keys inside a shared
// embedded pebble handle (kvstore.Store).
package document

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

// Type distinguishes the three collection kinds; blob and edge
// operations are rejected on the other kinds.
type Type string

const (
	TypeDocument Type = "document"
	TypeEdge     Type = "edge"
	TypeBlob     Type = "blob"
)

// Collection is a single document collection living inside a shared Store.
type Collection struct {
	Name string
	Type Type

	store    *kvstore.Store
	count    atomic.Int64
	lastFl   atomic.Int64 // unix nanos of last persisted flush
	indexes  map[string]*indexDescriptor
	ttl      *ttlDescriptor
	fulltext map[string]*ftDescriptor
	geo      map[string]*geoDescriptor
	vectors  map[string]*vecDescriptor
	onChange ChangeListener
}

type indexDescriptor struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
	Sparse bool     `json:"sparse"`
	Kind   string   `json:"kind"` // sorted | hash
}

// Open loads (or initializes) a collection of the given type inside store.
func Open(store *kvstore.Store, name string, typ Type) (*Collection, error) {
	c := &Collection{
		Name: name, Type: typ, store: store,
		indexes:  map[string]*indexDescriptor{},
		fulltext: map[string]*ftDescriptor{},
		geo:      map[string]*geoDescriptor{},
		vectors:  map[string]*vecDescriptor{},
	}
	if err := c.storeType(); err != nil {
		return nil, err
	}
	if err := c.loadIndexes(); err != nil {
		return nil, err
	}
	if err := c.loadCount(); err != nil {
		return nil, err
	}
	if err := c.loadTTL(); err != nil {
		return nil, err
	}
	if err := c.loadFullText(); err != nil {
		return nil, err
	}
	if err := c.loadGeo(); err != nil {
		return nil, err
	}
	if err := c.loadVectors(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collection) storeType() error {
	existing, ok, err := c.store.Get(colTypeKey(c.Name))
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "reading collection type")
	}
	if ok {
		c.Type = Type(existing)
		return nil
	}
	return c.store.Set(colTypeKey(c.Name), []byte(c.Type))
}

func (c *Collection) loadCount() error {
	raw, ok, err := c.store.Get(statsKey(c.Name))
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "reading stats count")
	}
	if !ok {
		return nil
	}
	v, err := decodeDoc(raw)
	if err != nil {
		return nil
	}
	n := int64(v.ToFloat())
	c.count.Store(n)
	return nil
}

func decodeDoc(raw []byte) (value.Value, error) {
	return value.UnmarshalJSON(raw)
}
func encodeDoc(v value.Value) ([]byte, error) {
	return value.MarshalJSON(v)
}

// Insert assigns a fresh _key/_rev if absent, enforces unique-index
// constraints, and atomically writes the document plus its index entries.
func (c *Collection) Insert(doc value.Value) (value.Value, error) {
	if doc.Kind() != value.KindObject {
		return value.Null(), dberr.New(dberr.InvalidDocument, "document must be an object")
	}
	if c.Type == TypeEdge {
		if _, ok := doc.Get("_from"); !ok {
			return value.Null(), dberr.New(dberr.InvalidDocument, "edge document missing _from")
		}
		if _, ok := doc.Get("_to"); !ok {
			return value.Null(), dberr.New(dberr.InvalidDocument, "edge document missing _to")
		}
	}

	key := ""
	if kv, ok := doc.Get("_key"); ok && kv.Kind() == value.KindString {
		key = kv.AsString()
	} else {
		key = uuid.NewString()
	}
	rev := uuid.NewString()

	out := value.NewObject()
	out.Set("_key", value.String(key))
	out.Set("_rev", value.String(rev))
	for _, k := range doc.Keys() {
		if k == "_key" || k == "_rev" {
			continue
		}
		fv, _ := doc.Get(k)
		out.Set(k, fv)
	}

	if err := c.checkUniqueConstraints(out, ""); err != nil {
		return value.Null(), err
	}

	raw, err := encodeDoc(out)
	if err != nil {
		return value.Null(), dberr.Wrap(dberr.Internal, err, "encoding document")
	}

	b := c.store.NewBatch()
	if err := b.Set(docKey(c.Name, key), raw); err != nil {
		return value.Null(), dberr.Wrap(dberr.Internal, err, "writing document")
	}
	for _, idx := range c.indexes {
		if err := c.addIndexEntries(b, idx, out, key); err != nil {
			return value.Null(), err
		}
	}
	if err := c.addDerivedEntries(b, out, key); err != nil {
		return value.Null(), err
	}
	if err := b.Commit(); err != nil {
		return value.Null(), dberr.Wrap(dberr.Internal, err, "committing insert")
	}

	c.count.Add(1)
	c.flushStatsThrottled()
	c.emit(ChangeInsert, key, out)
	return out, nil
}

// checkUniqueConstraints prefix-probes every unique index for a collision
// with doc's projected field values, ignoring excludeKey (used by update,
// which must not conflict with its own prior entry).
func (c *Collection) checkUniqueConstraints(doc value.Value, excludeKey string) error {
	for _, idx := range c.indexes {
		if !idx.Unique {
			continue
		}
		enc := encodeFields(doc, idx.Fields)
		var collided bool
		_ = c.store.ScanPrefix(idxEntryPrefix(c.Name, idx.Name, enc), func(k, _ []byte) bool {
			if docKeyFromIdxEntry(k) != excludeKey {
				collided = true
				return false
			}
			return true
		})
		if collided {
			return dberr.New(dberr.Conflict, "unique index %q violated", idx.Name)
		}
	}
	return nil
}

// Get fetches a document by key.
func (c *Collection) Get(key string) (value.Value, bool, error) {
	raw, ok, err := c.store.Get(docKey(c.Name, key))
	if err != nil {
		return value.Null(), false, dberr.Wrap(dberr.Internal, err, "reading document %q", key)
	}
	if !ok {
		return value.Null(), false, nil
	}
	v, err := decodeDoc(raw)
	if err != nil {
		return value.Null(), false, dberr.Wrap(dberr.Internal, err, "decoding document %q", key)
	}
	return v, true, nil
}

// Update fetches, optionally checks expectedRev, merges (or replaces) the
// patch, recomputes index entries that changed, and writes atomically.
func (c *Collection) Update(key string, patch value.Value, expectedRev string, replace bool) (value.Value, error) {
	existing, ok, err := c.Get(key)
	if err != nil {
		return value.Null(), err
	}
	if !ok {
		return value.Null(), dberr.New(dberr.DocumentNotFound, "document %q not found", key)
	}
	if expectedRev != "" {
		if rv, _ := existing.Get("_rev"); rv.AsString() != expectedRev {
			return value.Null(), dberr.New(dberr.Conflict, "revision mismatch for %q", key)
		}
	}

	var merged value.Value
	if replace {
		merged = value.NewObject()
		merged.Set("_key", value.String(key))
		for _, k := range patch.Keys() {
			if k == "_key" || k == "_rev" {
				continue
			}
			fv, _ := patch.Get(k)
			merged.Set(k, fv)
		}
	} else {
		merged = value.NewObject()
		merged.Set("_key", value.String(key))
		for _, k := range existing.Keys() {
			if k == "_key" || k == "_rev" {
				continue
			}
			fv, _ := existing.Get(k)
			merged.Set(k, fv)
		}
		for _, k := range patch.Keys() {
			if k == "_key" || k == "_rev" {
				continue
			}
			fv, _ := patch.Get(k)
			merged.Set(k, fv)
		}
	}
	newRev := uuid.NewString()
	merged.Set("_rev", value.String(newRev))

	if err := c.checkUniqueConstraints(merged, key); err != nil {
		return value.Null(), err
	}

	raw, err := encodeDoc(merged)
	if err != nil {
		return value.Null(), dberr.Wrap(dberr.Internal, err, "encoding document")
	}

	b := c.store.NewBatch()
	if err := b.Set(docKey(c.Name, key), raw); err != nil {
		return value.Null(), dberr.Wrap(dberr.Internal, err, "writing document")
	}
	for _, idx := range c.indexes {
		if err := c.removeIndexEntries(b, idx, existing, key); err != nil {
			return value.Null(), err
		}
		if err := c.addIndexEntries(b, idx, merged, key); err != nil {
			return value.Null(), err
		}
	}
	if err := c.removeDerivedEntries(b, existing, key); err != nil {
		return value.Null(), err
	}
	if err := c.addDerivedEntries(b, merged, key); err != nil {
		return value.Null(), err
	}
	if err := b.Commit(); err != nil {
		return value.Null(), dberr.Wrap(dberr.Internal, err, "committing update")
	}
	c.emit(ChangeUpdate, key, merged)
	return merged, nil
}

// Remove deletes a document, its index entries, and (for blob collections)
// its chunks.
func (c *Collection) Remove(key string) error {
	existing, ok, err := c.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return dberr.New(dberr.DocumentNotFound, "document %q not found", key)
	}

	b := c.store.NewBatch()
	if err := b.Delete(docKey(c.Name, key)); err != nil {
		return dberr.Wrap(dberr.Internal, err, "deleting document")
	}
	for _, idx := range c.indexes {
		if err := c.removeIndexEntries(b, idx, existing, key); err != nil {
			return err
		}
	}
	if err := c.removeDerivedEntries(b, existing, key); err != nil {
		return err
	}
	if c.Type == TypeBlob {
		var chunkKeys [][]byte
		_ = c.store.ScanPrefix(blobKeyPrefix(c.Name, key), func(k, _ []byte) bool {
			chunkKeys = append(chunkKeys, append([]byte(nil), k...))
			return true
		})
		for _, ck := range chunkKeys {
			if err := b.Delete(ck); err != nil {
				return dberr.Wrap(dberr.Internal, err, "deleting blob chunk")
			}
		}
	}
	if err := b.Commit(); err != nil {
		return dberr.Wrap(dberr.Internal, err, "committing remove")
	}
	c.count.Add(-1)
	c.flushStatsThrottled()
	c.emit(ChangeRemove, key, existing)
	return nil
}

// Scan returns up to limit documents in doc: prefix order. limit <= 0
// means unbounded, matching exec.DataSource.Scan's contract.
func (c *Collection) Scan(limit int) ([]value.Value, error) {
	var out []value.Value
	err := c.store.ScanPrefix(docPrefix(c.Name), func(_, v []byte) bool {
		dv, err := decodeDoc(v)
		if err != nil {
			return true
		}
		out = append(out, dv)
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "scanning %q", c.Name)
	}
	return out, nil
}

// flushStatsThrottled persists the in-memory count at most once per
// second, keeping bulk loads from hammering the stats key.
func (c *Collection) flushStatsThrottled() {
	now := time.Now().UnixNano()
	last := c.lastFl.Load()
	if now-last < int64(time.Second) {
		return
	}
	if !c.lastFl.CompareAndSwap(last, now) {
		return
	}
	c.FlushStats()
}

// FlushStats persists the current count unconditionally; called on
// shutdown.
func (c *Collection) FlushStats() {
	raw, err := encodeDoc(value.Int(c.count.Load()))
	if err != nil {
		return
	}
	_ = c.store.Set(statsKey(c.Name), raw)
}

// Count returns the cached in-memory document count.
func (c *Collection) Count() int64 { return c.count.Load() }

// addDerivedEntries maintains the fulltext/geo/vector namespaces for one
// document alongside its plain index entries, inside the same batch.
func (c *Collection) addDerivedEntries(b *kvstore.Batch, doc value.Value, key string) error {
	for _, ft := range c.fulltext {
		if err := c.addFullTextEntries(b, ft, doc, key); err != nil {
			return err
		}
	}
	for _, g := range c.geo {
		if err := c.addGeoEntry(b, g, doc, key); err != nil {
			return err
		}
	}
	for _, v := range c.vectors {
		if err := c.addVectorEntry(b, v, doc, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) removeDerivedEntries(b *kvstore.Batch, doc value.Value, key string) error {
	for _, ft := range c.fulltext {
		if err := c.removeFullTextEntries(b, ft, doc, key); err != nil {
			return err
		}
	}
	for _, g := range c.geo {
		if err := c.removeGeoEntry(b, g, key); err != nil {
			return err
		}
	}
	for _, v := range c.vectors {
		if err := c.removeVectorEntry(b, v, key); err != nil {
			return err
		}
	}
	return nil
}

func docKeyFromIdxEntry(k []byte) string {
	// idx entries are "<coll>\0idx:<name>:<enc>:<key>"; the key is
	// everything after the last ':'.
	s := string(k)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return s[i+1:]
		}
	}
	return ""
}
