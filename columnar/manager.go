package columnar

import (
	"sync"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

// Manager owns every open columnar Collection backed by a single Store
// and satisfies dbql/exec.DataSource so the executor can scan columnar
// collections the same way it scans document collections.
type Manager struct {
	store *kvstore.Store

	mu   sync.RWMutex
	cols map[string]*Collection
}

func NewManager(store *kvstore.Store) *Manager {
	return &Manager{store: store, cols: map[string]*Collection{}}
}

func (m *Manager) CreateCollection(name string) (*Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cols[name]; ok {
		return c, nil
	}
	c, err := Open(m.store, name)
	if err != nil {
		return nil, err
	}
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

// Scan implements exec.DataSource by decoding every row's full object as
// stored under its col_row: key, in row-key order.
func (m *Manager) Scan(name string, limit int) ([]value.Value, error) {
	c, ok := m.Collection(name)
	if !ok {
		return nil, dberr.New(dberr.CollectionNotFound, "collection %q not found", name)
	}
	ids, err := c.allRowIDs()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]value.Value, 0, len(ids))
	for _, id := range ids {
		raw, ok, err := c.store.Get(colRowKey(c.Name, id))
		if err != nil {
			return nil, dberr.Wrap(dberr.Internal, err, "reading row %q", id)
		}
		if !ok {
			continue
		}
		v, err := value.UnmarshalJSON(raw)
		if err != nil {
			return nil, dberr.Wrap(dberr.Internal, err, "decoding row %q", id)
		}
		out = append(out, v)
	}
	return out, nil
}
