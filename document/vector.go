package document

import (
	"math"
	"sort"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

// vecDescriptor is a persisted vector index over an array-of-numbers
// field with a fixed dimensionality.
type vecDescriptor struct {
	Name  string `json:"name"`
	Field string `json:"field"`
	Dim   int    `json:"dimensions"`
}

// CreateVectorIndex declares a vector index and backfills vec_data
// entries for existing documents whose field holds a well-formed vector.
func (c *Collection) CreateVectorIndex(name, field string, dimensions int) error {
	if _, exists := c.vectors[name]; exists {
		return dberr.New(dberr.CollectionAlreadyExists, "vector index %q already exists", name)
	}
	if dimensions < 1 {
		return dberr.New(dberr.ExecutionError, "vector index dimensions must be >= 1")
	}
	d := &vecDescriptor{Name: name, Field: field, Dim: dimensions}
	meta := value.NewObject()
	meta.Set("name", value.String(d.Name))
	meta.Set("field", value.String(d.Field))
	meta.Set("dimensions", value.Int(int64(d.Dim)))
	raw, err := encodeDoc(meta)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding vector descriptor")
	}

	docs, err := c.Scan(0)
	if err != nil {
		return err
	}
	b := c.store.NewBatch()
	if err := b.Set(vecMetaKey(c.Name, name), raw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing vector descriptor")
	}
	for _, doc := range docs {
		key, _ := doc.Get("_key")
		if err := c.addVectorEntry(b, d, doc, key.AsString()); err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return dberr.Wrap(dberr.Internal, err, "backfilling vector index %q", name)
	}
	c.vectors[name] = d
	return nil
}

func (c *Collection) loadVectors() error {
	return c.store.ScanPrefix(vecMetaPrefix(c.Name), func(_, v []byte) bool {
		dv, err := decodeDoc(v)
		if err != nil {
			return true
		}
		name, _ := dv.Get("name")
		field, _ := dv.Get("field")
		dim, _ := dv.Get("dimensions")
		c.vectors[name.AsString()] = &vecDescriptor{
			Name:  name.AsString(),
			Field: field.AsString(),
			Dim:   int(dim.ToFloat()),
		}
		return true
	})
}

func (c *Collection) addVectorEntry(b *kvstore.Batch, d *vecDescriptor, doc value.Value, key string) error {
	vec, ok := vectorOf(doc, d)
	if !ok {
		return nil
	}
	vals := make([]value.Value, len(vec))
	for i, f := range vec {
		vals[i] = value.Float(f)
	}
	raw, err := encodeDoc(value.Array(vals))
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding vector entry")
	}
	if err := b.Set(vecDataKey(c.Name, d.Name, key), raw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing vector entry")
	}
	return nil
}

func (c *Collection) removeVectorEntry(b *kvstore.Batch, d *vecDescriptor, key string) error {
	if err := b.Delete(vecDataKey(c.Name, d.Name, key)); err != nil {
		return dberr.Wrap(dberr.Internal, err, "deleting vector entry")
	}
	return nil
}

func vectorOf(doc value.Value, d *vecDescriptor) ([]float64, bool) {
	fv, ok := doc.Get(d.Field)
	if !ok || fv.Kind() != value.KindArray {
		return nil, false
	}
	arr := fv.AsArray()
	if len(arr) != d.Dim {
		return nil, false
	}
	out := make([]float64, len(arr))
	for i, e := range arr {
		n, ok := e.Number()
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

// SearchVector returns the k documents whose indexed vectors are most
// cosine-similar to query, best first.
func (c *Collection) SearchVector(name string, query []float64, k int) ([]value.Value, error) {
	d, ok := c.vectors[name]
	if !ok {
		return nil, dberr.New(dberr.CollectionNotFound, "vector index %q not found on %q", name, c.Name)
	}
	if len(query) != d.Dim {
		return nil, dberr.New(dberr.ExecutionError, "query vector has %d dimensions, index %q has %d", len(query), name, d.Dim)
	}

	type hit struct {
		key string
		sim float64
	}
	var hits []hit
	err := c.store.ScanPrefix(vecDataPrefix(c.Name, name), func(kb, v []byte) bool {
		entry, err := decodeDoc(v)
		if err != nil || entry.Kind() != value.KindArray {
			return true
		}
		vec := make([]float64, 0, d.Dim)
		for _, e := range entry.AsArray() {
			vec = append(vec, e.ToFloat())
		}
		if len(vec) != d.Dim {
			return true
		}
		hits = append(hits, hit{docKeyFromIdxEntry(kb), cosineSimilarity(query, vec)})
		return true
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "vector scan")
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}

	out := make([]value.Value, 0, len(hits))
	for _, h := range hits {
		doc, ok, err := c.Get(h.key)
		if err == nil && ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
