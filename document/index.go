package document

import (
	"strings"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/keycodec"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

// CreateIndex declares a new secondary index over fields, persists its
// descriptor, and backfills entries for every existing document.
func (c *Collection) CreateIndex(name string, fields []string, unique bool) error {
	return c.CreateIndexKind(name, fields, unique, false, "sorted")
}

// CreateIndexKind is CreateIndex with the sparse flag and kind exposed.
// A sparse index skips documents where every indexed field is absent;
// kind is "sorted" (range-scannable via the binary-comparable encoding)
// or "hash" (equality only).
func (c *Collection) CreateIndexKind(name string, fields []string, unique, sparse bool, kind string) error {
	if _, exists := c.indexes[name]; exists {
		return dberr.New(dberr.CollectionAlreadyExists, "index %q already exists", name)
	}
	if kind == "" {
		kind = "sorted"
	}
	idx := &indexDescriptor{Name: name, Fields: fields, Unique: unique, Sparse: sparse, Kind: kind}

	docs, err := c.Scan(0)
	if err != nil {
		return err
	}
	if unique {
		seen := map[string]bool{}
		for _, d := range docs {
			enc := encodeFields(d, fields)
			if seen[enc] {
				return dberr.New(dberr.Conflict, "existing documents violate new unique index %q", name)
			}
			seen[enc] = true
		}
	}

	meta, err := encodeDoc(indexDescriptorValue(idx))
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding index descriptor")
	}
	b := c.store.NewBatch()
	if err := b.Set(idxMetaKey(c.Name, name), meta); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing index descriptor")
	}
	for _, d := range docs {
		key, _ := d.Get("_key")
		if err := c.addIndexEntries(b, idx, d, key.AsString()); err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return dberr.Wrap(dberr.Internal, err, "backfilling index %q", name)
	}
	c.indexes[name] = idx
	return nil
}

func indexDescriptorValue(idx *indexDescriptor) value.Value {
	out := value.NewObject()
	out.Set("name", value.String(idx.Name))
	fields := make([]value.Value, len(idx.Fields))
	for i, f := range idx.Fields {
		fields[i] = value.String(f)
	}
	out.Set("fields", value.Array(fields))
	out.Set("unique", value.Bool(idx.Unique))
	out.Set("sparse", value.Bool(idx.Sparse))
	out.Set("kind", value.String(idx.Kind))
	return out
}

func (c *Collection) loadIndexes() error {
	return c.store.ScanPrefix(idxMetaPrefix(c.Name), func(k, v []byte) bool {
		dv, err := decodeDoc(v)
		if err != nil {
			return true
		}
		name, _ := dv.Get("name")
		fieldsV, _ := dv.Get("fields")
		uniqueV, _ := dv.Get("unique")
		sparseV, _ := dv.Get("sparse")
		kindV, _ := dv.Get("kind")
		kind := kindV.AsString()
		if kind == "" {
			kind = "sorted"
		}
		var fields []string
		for _, f := range fieldsV.AsArray() {
			fields = append(fields, f.AsString())
		}
		c.indexes[name.AsString()] = &indexDescriptor{
			Name:   name.AsString(),
			Fields: fields,
			Unique: uniqueV.ToBool(),
			Sparse: sparseV.ToBool(),
			Kind:   kind,
		}
		return true
	})
}

// encodeFields projects doc over fields (index fields are top-level, not
// dotted paths) and encodes the tuple with the binary-comparable codec,
// joined so multi-field index keys stay orderable per prefix.
func encodeFields(doc value.Value, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		fv, _ := doc.Get(f)
		parts[i] = keycodec.EncodeHex(fv)
	}
	return strings.Join(parts, ",")
}

func (c *Collection) addIndexEntries(b *kvstore.Batch, idx *indexDescriptor, doc value.Value, key string) error {
	if idx.Sparse && !hasAnyField(doc, idx.Fields) {
		return nil
	}
	enc := encodeFields(doc, idx.Fields)
	if err := b.Set(idxEntryKey(c.Name, idx.Name, enc, key), []byte{}); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing index entry")
	}
	return nil
}

func hasAnyField(doc value.Value, fields []string) bool {
	for _, f := range fields {
		if _, ok := doc.Get(f); ok {
			return true
		}
	}
	return false
}

func (c *Collection) removeIndexEntries(b *kvstore.Batch, idx *indexDescriptor, doc value.Value, key string) error {
	enc := encodeFields(doc, idx.Fields)
	if err := b.Delete(idxEntryKey(c.Name, idx.Name, enc, key)); err != nil {
		return dberr.Wrap(dberr.Internal, err, "deleting index entry")
	}
	return nil
}

// IndexSortedRange returns documents whose first indexed field lies in
// [from, to], in index order. It relies on the binary-comparable encoding
// (hex preserves byte order) so the underlying scan is a single range
// over the hex-encoded suffix.
func (c *Collection) IndexSortedRange(name string, from, to value.Value) ([]value.Value, error) {
	idx, ok := c.indexes[name]
	if !ok {
		return nil, dberr.New(dberr.CollectionNotFound, "index %q not found on %q", name, c.Name)
	}
	if idx.Kind != "sorted" {
		return nil, dberr.New(dberr.OperationNotSupported, "index %q is %s, range scans need a sorted index", name, idx.Kind)
	}
	start := append(idxNamePrefix(c.Name, idx.Name), []byte(keycodec.EncodeHex(from))...)
	end := append(idxNamePrefix(c.Name, idx.Name), []byte(keycodec.EncodeHex(to)+"\xff")...)

	var out []value.Value
	err := c.store.ScanRange(start, end, func(k, _ []byte) bool {
		key := docKeyFromIdxEntry(k)
		doc, ok, err := c.Get(key)
		if err == nil && ok {
			out = append(out, doc)
		}
		return true
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "index range scan %q", name)
	}
	return out, nil
}

// IndexLookupEq returns every document whose projected index fields equal
// values, by prefix-iterating idx:<name>:<enc>: and fetching each matching
// document key.
func (c *Collection) IndexLookupEq(name string, values []value.Value) ([]value.Value, error) {
	idx, ok := c.indexes[name]
	if !ok {
		return nil, dberr.New(dberr.CollectionNotFound, "index %q not found on %q", name, c.Name)
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = keycodec.EncodeHex(v)
	}
	enc := strings.Join(parts, ",")

	var out []value.Value
	err := c.store.ScanPrefix(idxEntryPrefix(c.Name, idx.Name, enc), func(k, _ []byte) bool {
		key := docKeyFromIdxEntry(k)
		doc, ok, err := c.Get(key)
		if err == nil && ok {
			out = append(out, doc)
		}
		return true
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "index lookup %q", name)
	}
	return out, nil
}
