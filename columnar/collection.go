package columnar

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

// IndexType selects which secondary-index structure a column maintains.
type IndexType string

const (
	IndexSorted IndexType = "sorted"
	IndexHash   IndexType = "hash"
	IndexBitmap IndexType = "bitmap"
	IndexMinMax IndexType = "minmax"
)

type indexMeta struct {
	Type      IndexType `json:"index_type"`
	CreatedAt int64     `json:"created_at"`
}

// Collection is a single columnar collection.
type Collection struct {
	Name string

	store *kvstore.Store

	mu        sync.RWMutex
	indexes   map[string]indexMeta
	rowCount  atomic.Int64
	// positionOf assigns a dense positional row id per uuid, needed for
	// bitmap indexes; absent for rows inserted without a known position
	// (UUID-only inserts skip the bitmap and use the inverted list).
	positionOf map[string]int
	nextPos    int
}

func Open(store *kvstore.Store, name string) (*Collection, error) {
	c := &Collection{Name: name, store: store, indexes: map[string]indexMeta{}, positionOf: map[string]int{}}
	if err := c.loadIndexMeta(); err != nil {
		return nil, err
	}
	if err := c.loadRowCount(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collection) loadIndexMeta() error {
	return c.store.ScanPrefix(idxMetaPrefix(c.Name), func(k, v []byte) bool {
		col := columnFromMetaKey(c.Name, k)
		dv, err := value.UnmarshalJSON(v)
		if err != nil {
			return true
		}
		typ, _ := dv.Get("index_type")
		createdAt, _ := dv.Get("created_at")
		c.indexes[col] = indexMeta{Type: IndexType(typ.AsString()), CreatedAt: createdAt.AsInt()}
		return true
	})
}

func columnFromMetaKey(coll string, k []byte) string {
	prefix := string(nsKey(coll, prefIdxMeta))
	s := string(k)
	if len(s) <= len(prefix) {
		return ""
	}
	return s[len(prefix):]
}

func (c *Collection) loadRowCount() error {
	raw, ok, err := c.store.Get(rowCountKey(c.Name))
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "reading row count")
	}
	if !ok {
		return nil
	}
	v, err := value.UnmarshalJSON(raw)
	if err != nil {
		return nil
	}
	c.rowCount.Store(v.AsInt())
	return nil
}

func (c *Collection) persistRowCount() {
	raw, _ := value.MarshalJSON(value.Int(c.rowCount.Load()))
	_ = c.store.Set(rowCountKey(c.Name), raw)
}

// CreateIndex declares a secondary index of the given type over column.
func (c *Collection) CreateIndex(column string, typ IndexType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes[column] = indexMeta{Type: typ, CreatedAt: time.Now().UnixMilli()}
	raw, err := value.MarshalJSON(indexMetaValue(c.indexes[column]))
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding index metadata")
	}
	if err := c.store.Set(idxMetaKey(c.Name, column), raw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing index metadata")
	}
	return c.backfillIndex(column, typ)
}

func indexMetaValue(m indexMeta) value.Value {
	out := value.NewObject()
	out.Set("index_type", value.String(string(m.Type)))
	out.Set("created_at", value.Int(m.CreatedAt))
	return out
}

func (c *Collection) backfillIndex(column string, typ IndexType) error {
	var uuids []string
	if err := c.store.ScanPrefix(colRowPrefix(c.Name), func(k, _ []byte) bool {
		uuids = append(uuids, uuidFromRowKey(c.Name, k))
		return true
	}); err != nil {
		return dberr.Wrap(dberr.Internal, err, "listing rows for backfill")
	}
	for _, id := range uuids {
		v, ok, err := c.readColumnValue(column, id)
		if err != nil || !ok {
			continue
		}
		if err := c.indexRow(column, typ, id, v); err != nil {
			return err
		}
	}
	return nil
}

func uuidFromRowKey(coll string, k []byte) string {
	prefix := string(colRowPrefix(coll))
	s := string(k)
	if len(s) <= len(prefix) {
		return ""
	}
	return s[len(prefix):]
}

// InsertRows generates a UUIDv7 per row, writes per-column entries and the
// full row, and updates every registered index.
func (c *Collection) InsertRows(rows []value.Value) ([]string, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, dberr.Wrap(dberr.Internal, err, "generating row id")
		}
		if err := c.insertRow(id.String(), row, true); err != nil {
			return nil, err
		}
		ids = append(ids, id.String())
	}
	return ids, nil
}

// InsertRowWithID is the idempotent replication variant: returns inserted
// = false if a row with this UUID already exists.
func (c *Collection) InsertRowWithID(id string, row value.Value) (bool, error) {
	_, ok, err := c.store.Get(colRowKey(c.Name, id))
	if err != nil {
		return false, dberr.Wrap(dberr.Internal, err, "checking existing row")
	}
	if ok {
		return false, nil
	}
	if err := c.insertRow(id, row, false); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Collection) insertRow(id string, row value.Value, assignPosition bool) error {
	if row.Kind() != value.KindObject {
		return dberr.New(dberr.InvalidDocument, "row must be an object")
	}
	rowRaw, err := value.MarshalJSON(row)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding row")
	}

	c.mu.Lock()
	var pos int
	if assignPosition {
		pos = c.nextPos
		c.nextPos++
		c.positionOf[id] = pos
	}
	indexesSnapshot := make(map[string]indexMeta, len(c.indexes))
	for k, v := range c.indexes {
		indexesSnapshot[k] = v
	}
	c.mu.Unlock()

	b := c.store.NewBatch()
	if err := b.Set(colRowKey(c.Name, id), rowRaw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing row")
	}
	for _, col := range row.Keys() {
		fv, _ := row.Get(col)
		colRaw, err := value.MarshalJSON(fv)
		if err != nil {
			return dberr.Wrap(dberr.Internal, err, "encoding column %q", col)
		}
		compressed, err := compress(colRaw)
		if err != nil {
			return dberr.Wrap(dberr.Internal, err, "compressing column %q", col)
		}
		if err := b.Set(colKey(c.Name, col, id), compressed); err != nil {
			return dberr.Wrap(dberr.Internal, err, "writing column %q", col)
		}
	}
	if err := b.Commit(); err != nil {
		return dberr.Wrap(dberr.Internal, err, "committing row insert")
	}

	for col, meta := range indexesSnapshot {
		fv, ok := row.Get(col)
		if !ok {
			continue
		}
		if err := c.indexRowAt(col, meta.Type, id, fv, pos, assignPosition); err != nil {
			return err
		}
	}

	c.rowCount.Add(1)
	c.persistRowCount()
	return nil
}

func (c *Collection) readColumnValue(column, id string) (value.Value, bool, error) {
	raw, ok, err := c.store.Get(colKey(c.Name, column, id))
	if err != nil {
		return value.Null(), false, dberr.Wrap(dberr.Internal, err, "reading column %q", column)
	}
	if !ok {
		return value.Null(), false, nil
	}
	decompressed, err := decompress(raw)
	if err != nil {
		return value.Null(), false, dberr.Wrap(dberr.Internal, err, "decompressing column %q", column)
	}
	v, err := value.UnmarshalJSON(decompressed)
	if err != nil {
		return value.Null(), false, dberr.Wrap(dberr.Internal, err, "decoding column %q", column)
	}
	return v, true, nil
}

// ReadColumn returns the values of column for the given uuids; if uuids is
// nil, every row is listed from the col_row: prefix first.
func (c *Collection) ReadColumn(column string, uuids []string) ([]value.Value, error) {
	ids := uuids
	if ids == nil {
		var err error
		ids, err = c.allRowIDs()
		if err != nil {
			return nil, err
		}
	}
	out := make([]value.Value, 0, len(ids))
	for _, id := range ids {
		v, ok, err := c.readColumnValue(column, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// ReadColumns returns one object per row with the requested columns.
func (c *Collection) ReadColumns(columns []string, uuids []string) ([]value.Value, error) {
	ids := uuids
	if ids == nil {
		var err error
		ids, err = c.allRowIDs()
		if err != nil {
			return nil, err
		}
	}
	out := make([]value.Value, 0, len(ids))
	for _, id := range ids {
		row := value.NewObject()
		for _, col := range columns {
			v, ok, err := c.readColumnValue(col, id)
			if err != nil {
				return nil, err
			}
			if ok {
				row.Set(col, v)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (c *Collection) allRowIDs() ([]string, error) {
	var ids []string
	err := c.store.ScanPrefix(colRowPrefix(c.Name), func(k, _ []byte) bool {
		ids = append(ids, uuidFromRowKey(c.Name, k))
		return true
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "listing rows")
	}
	return ids, nil
}

// Truncate deletes every col:, col_row:, and col_idx* entry and resets
// row_count.
func (c *Collection) Truncate() error {
	for _, prefix := range [][]byte{
		nsKey(c.Name, prefCol),
		nsKey(c.Name, prefColRow),
		nsKey(c.Name, prefIdx),
		nsKey(c.Name, prefIdxBmp),
		nsKey(c.Name, prefIdxMM),
	} {
		if err := c.store.DeletePrefix(prefix); err != nil {
			return dberr.Wrap(dberr.Internal, err, "truncating %q", c.Name)
		}
	}
	c.mu.Lock()
	c.positionOf = map[string]int{}
	c.nextPos = 0
	c.mu.Unlock()
	c.rowCount.Store(0)
	c.persistRowCount()
	return nil
}

// Drop removes the entire namespace for this collection, including index
// metadata.
func (c *Collection) Drop() error {
	if err := c.Truncate(); err != nil {
		return err
	}
	if err := c.store.DeletePrefix(nsKey(c.Name, prefIdxMeta)); err != nil {
		return dberr.Wrap(dberr.Internal, err, "dropping %q index metadata", c.Name)
	}
	return c.store.Delete(rowCountKey(c.Name))
}

func (c *Collection) RowCount() int64 { return c.rowCount.Load() }
