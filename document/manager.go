package document

import (
	"sync"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/util"
	"github.com/solisoft/solidb/value"
)

// Manager owns every open Collection backed by a single Store and
// satisfies dbql/exec.DataSource, exec.KeyGetter, and exec.IndexLookup so
// the executor can run queries directly against it.
type Manager struct {
	store *kvstore.Store

	mu       sync.RWMutex
	cols     map[string]*Collection
	onChange ChangeListener
}

func NewManager(store *kvstore.Store) *Manager {
	return &Manager{store: store, cols: map[string]*Collection{}}
}

// CreateCollection opens (or reopens, idempotently) a collection of the
// given type.
func (m *Manager) CreateCollection(name string, typ Type) (*Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cols[name]; ok {
		return c, nil
	}
	c, err := Open(m.store, name, typ)
	if err != nil {
		return nil, err
	}
	c.onChange = m.onChange
	m.cols[name] = c
	return c, nil
}

func (m *Manager) Collection(name string) (*Collection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cols[name]
	return c, ok
}

// CollectionExists implements exec.DataSource.
func (m *Manager) CollectionExists(name string) bool {
	_, ok := m.Collection(name)
	return ok
}

// Scan implements exec.DataSource.
func (m *Manager) Scan(name string, limit int) ([]value.Value, error) {
	c, ok := m.Collection(name)
	if !ok {
		return nil, dberr.New(dberr.CollectionNotFound, "collection %q not found", name)
	}
	return c.Scan(limit)
}

// GetByKey implements exec.KeyGetter.
func (m *Manager) GetByKey(name, key string) (value.Value, bool, error) {
	c, ok := m.Collection(name)
	if !ok {
		return value.Null(), false, dberr.New(dberr.CollectionNotFound, "collection %q not found", name)
	}
	return c.Get(key)
}

// IndexLookupEq implements exec.IndexLookup.
func (m *Manager) IndexLookupEq(name, index string, values []value.Value) ([]value.Value, error) {
	c, ok := m.Collection(name)
	if !ok {
		return nil, dberr.New(dberr.CollectionNotFound, "collection %q not found", name)
	}
	return c.IndexLookupEq(index, values)
}

// FlushAll persists every open collection's stats, called on shutdown.
// Collections flush in name order so repeated shutdowns write the same
// key sequence.
func (m *Manager) FlushAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range util.CanonicalMapIter(m.cols) {
		c.FlushStats()
	}
}
