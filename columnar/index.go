package columnar

import (
	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/keycodec"
	"github.com/solisoft/solidb/value"
)

// indexRow is used by backfill, where no positional id is available
// (existing rows may predate a bitmap index and have no known position).
func (c *Collection) indexRow(column string, typ IndexType, id string, v value.Value) error {
	return c.indexRowAt(column, typ, id, v, 0, false)
}

// indexRowAt updates column's secondary index for one row. Bitmap indexes
// need a dense positional row id; when one isn't available (UUID-only
// inserts, e.g. replication via InsertRowWithID) the index falls back to
// an inverted list.
func (c *Collection) indexRowAt(column string, typ IndexType, id string, v value.Value, pos int, havePos bool) error {
	enc := keycodec.EncodeHex(v)
	switch typ {
	case IndexSorted, IndexHash:
		return c.appendInvertedEntry(column, enc, id)
	case IndexBitmap:
		if !havePos {
			return c.appendInvertedEntry(column, enc, id)
		}
		return c.setBitmapBit(column, enc, pos)
	case IndexMinMax:
		return c.updateMinMax(column, id, v)
	}
	return nil
}

// appendInvertedEntry maintains col_idx:<column>:<encoded> -> [uuid] as a
// JSON array value, read-modify-write (adequate at the scale this index
// targets: equality/hash lookups, not high-churn bulk loads).
func (c *Collection) appendInvertedEntry(column, enc, id string) error {
	key := idxEntryKey(c.Name, column, enc)
	raw, ok, err := c.store.Get(key)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "reading inverted index entry")
	}
	var ids []value.Value
	if ok {
		v, err := value.UnmarshalJSON(raw)
		if err == nil {
			ids = v.AsArray()
		}
	}
	ids = append(ids, value.String(id))
	newRaw, err := value.MarshalJSON(value.Array(ids))
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding inverted index entry")
	}
	if err := c.store.Set(key, newRaw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing inverted index entry")
	}
	return nil
}

// setBitmapBit sets positional bit pos in the LZ4-compressed bitset stored
// under col_idx_bmp:<column>:<encoded>.
func (c *Collection) setBitmapBit(column, enc string, pos int) error {
	key := idxBmpKey(c.Name, column, enc)
	raw, ok, err := c.store.Get(key)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "reading bitmap index")
	}
	var bits []byte
	if ok {
		bits, err = decompress(raw)
		if err != nil {
			return dberr.Wrap(dberr.Internal, err, "decompressing bitmap index")
		}
	}
	byteIdx := pos / 8
	if byteIdx >= len(bits) {
		grown := make([]byte, byteIdx+1)
		copy(grown, bits)
		bits = grown
	}
	bits[byteIdx] |= 1 << uint(pos%8)
	compressed, err := compress(bits)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "compressing bitmap index")
	}
	return c.store.Set(key, compressed)
}

func bitmapTest(bits []byte, pos int) bool {
	byteIdx := pos / 8
	if byteIdx >= len(bits) {
		return false
	}
	return bits[byteIdx]&(1<<uint(pos%8)) != 0
}

type minMaxStats struct {
	Min   value.Value
	Max   value.Value
	Count int
}

// updateMinMax folds v into the chunk-level [min,max,count] summary for
// this row's chunk. Chunk assignment
// uses the collection's monotonically increasing row counter so chunks
// stay contiguous with insertion order.
func (c *Collection) updateMinMax(column, id string, v value.Value) error {
	chunk := int(c.rowCount.Load()) / chunkSize
	key := idxMMKey(c.Name, column, chunk)
	raw, ok, err := c.store.Get(key)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "reading minmax chunk")
	}
	stats := minMaxStats{Min: v, Max: v, Count: 1}
	if ok {
		dv, err := value.UnmarshalJSON(raw)
		if err == nil {
			min, _ := dv.Get("min")
			max, _ := dv.Get("max")
			count, _ := dv.Get("count")
			stats.Count = int(count.AsInt()) + 1
			stats.Min = min
			stats.Max = max
			if value.Compare(v, min) < 0 {
				stats.Min = v
			}
			if value.Compare(v, max) > 0 {
				stats.Max = v
			}
		}
	}
	out := value.NewObject()
	out.Set("min", stats.Min)
	out.Set("max", stats.Max)
	out.Set("count", value.Int(int64(stats.Count)))
	newRaw, err := value.MarshalJSON(out)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding minmax chunk")
	}
	return c.store.Set(key, newRaw)
}

// lookupInverted returns the row uuids recorded for enc under column's
// inverted-list index (Sorted/Hash, or Bitmap's UUID-insert fallback).
func (c *Collection) lookupInverted(column, enc string) ([]string, error) {
	raw, ok, err := c.store.Get(idxEntryKey(c.Name, column, enc))
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "reading inverted index")
	}
	if !ok {
		return nil, nil
	}
	v, err := value.UnmarshalJSON(raw)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "decoding inverted index")
	}
	out := make([]string, 0, len(v.AsArray()))
	for _, e := range v.AsArray() {
		out = append(out, e.AsString())
	}
	return out, nil
}

// minMaxChunks returns every persisted chunk summary for column, in chunk
// order, used by ScanFiltered's pruning pass.
func (c *Collection) minMaxChunks(column string) (map[int]minMaxStats, error) {
	out := map[int]minMaxStats{}
	err := c.store.ScanPrefix(idxMMPrefix(c.Name, column), func(k, v []byte) bool {
		dv, err := value.UnmarshalJSON(v)
		if err != nil {
			return true
		}
		min, _ := dv.Get("min")
		max, _ := dv.Get("max")
		count, _ := dv.Get("count")
		chunk := chunkIDFromKey(c.Name, column, k)
		out[chunk] = minMaxStats{Min: min, Max: max, Count: int(count.AsInt())}
		return true
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "scanning minmax chunks")
	}
	return out, nil
}

func chunkIDFromKey(coll, column string, k []byte) int {
	prefix := string(idxMMPrefix(coll, column))
	s := string(k)
	if len(s) <= len(prefix) {
		return -1
	}
	n := 0
	for _, r := range s[len(prefix):] {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}
