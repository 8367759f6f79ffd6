package document

import (
	"testing"
	"time"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

func newTestCollection(t *testing.T, typ Type) *Collection {
	t.Helper()
	store, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	c, err := Open(store, "users", typ)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func obj(pairs ...any) value.Value {
	out := value.NewObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		out.Set(pairs[i].(string), pairs[i+1].(value.Value))
	}
	return out
}

func TestInsertAssignsKeyAndRev(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	doc, err := c.Insert(obj("name", value.String("Alice")))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	key, ok := doc.Get("_key")
	if !ok || key.AsString() == "" {
		t.Fatalf("expected a generated _key, got %v", doc)
	}
	rev, ok := doc.Get("_rev")
	if !ok || rev.AsString() == "" {
		t.Fatalf("expected a generated _rev, got %v", doc)
	}
	if c.Count() != 1 {
		t.Fatalf("expected count 1, got %d", c.Count())
	}
}

func TestInsertPreservesSuppliedKey(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	doc, err := c.Insert(obj("_key", value.String("alice"), "name", value.String("Alice")))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	key, _ := doc.Get("_key")
	if key.AsString() != "alice" {
		t.Fatalf("expected supplied key to be kept, got %q", key.AsString())
	}
}

func TestScanReturnsInsertedDocuments(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		if _, err := c.Insert(obj("name", value.String(name))); err != nil {
			t.Fatalf("Insert(%s): %v", name, err)
		}
	}
	docs, err := c.Scan(0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
}

func TestScanRespectsLimit(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	for i := 0; i < 5; i++ {
		if _, err := c.Insert(obj("n", value.Int(int64(i)))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	docs, err := c.Scan(2)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents with limit=2, got %d", len(docs))
	}
}

func TestUpdateMergesByDefault(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	doc, err := c.Insert(obj("name", value.String("Alice"), "age", value.Int(30)))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	key, _ := doc.Get("_key")
	updated, err := c.Update(key.AsString(), obj("age", value.Int(31)), "", false)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	name, _ := updated.Get("name")
	if name.AsString() != "Alice" {
		t.Fatalf("expected merge to preserve name, got %v", name)
	}
	age, _ := updated.Get("age")
	if age.AsInt() != 31 {
		t.Fatalf("expected age 31, got %v", age)
	}
}

func TestUpdateReplaceDropsOldFields(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	doc, err := c.Insert(obj("name", value.String("Alice"), "age", value.Int(30)))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	key, _ := doc.Get("_key")
	updated, err := c.Update(key.AsString(), obj("age", value.Int(31)), "", true)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := updated.Get("name"); ok {
		t.Fatalf("expected replace to drop name, got %v", updated)
	}
}

func TestUpdateRevMismatchConflicts(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	doc, err := c.Insert(obj("name", value.String("Alice")))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	key, _ := doc.Get("_key")
	_, err = c.Update(key.AsString(), obj("name", value.String("Bob")), "not-the-real-rev", false)
	if !dberr.Is(err, dberr.Conflict) {
		t.Fatalf("expected Conflict error, got %v", err)
	}
}

func TestRemoveDeletesDocument(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	doc, err := c.Insert(obj("name", value.String("Alice")))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	key, _ := doc.Get("_key")
	if err := c.Remove(key.AsString()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := c.Get(key.AsString()); ok {
		t.Fatalf("expected document to be gone after Remove")
	}
	if c.Count() != 0 {
		t.Fatalf("expected count 0 after Remove, got %d", c.Count())
	}
}

func TestRemoveUnknownKeyFails(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.Remove("missing"); !dberr.Is(err, dberr.DocumentNotFound) {
		t.Fatalf("expected DocumentNotFound, got %v", err)
	}
}

func TestEdgeCollectionRequiresFromTo(t *testing.T) {
	c := newTestCollection(t, TypeEdge)
	_, err := c.Insert(obj("weight", value.Int(1)))
	if !dberr.Is(err, dberr.InvalidDocument) {
		t.Fatalf("expected InvalidDocument, got %v", err)
	}
	_, err = c.Insert(obj("_from", value.String("a/1"), "_to", value.String("b/2")))
	if err != nil {
		t.Fatalf("expected edge insert with _from/_to to succeed: %v", err)
	}
}

// After insert, a lookup on the indexed fields finds the document;
// after remove, it does not.
func TestIndexIntegrity(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.CreateIndex("by_email", []string{"email"}, true); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	doc, err := c.Insert(obj("email", value.String("alice@example.com")))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	key, _ := doc.Get("_key")

	found, err := c.IndexLookupEq("by_email", []value.Value{value.String("alice@example.com")})
	if err != nil {
		t.Fatalf("IndexLookupEq: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 match, got %d", len(found))
	}
	foundKey, _ := found[0].Get("_key")
	if foundKey.AsString() != key.AsString() {
		t.Fatalf("expected match key %q, got %q", key.AsString(), foundKey.AsString())
	}

	if err := c.Remove(key.AsString()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	found, err = c.IndexLookupEq("by_email", []value.Value{value.String("alice@example.com")})
	if err != nil {
		t.Fatalf("IndexLookupEq after remove: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no matches after remove, got %d", len(found))
	}
}

func TestUniqueIndexRejectsDuplicate(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.CreateIndex("by_email", []string{"email"}, true); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if _, err := c.Insert(obj("email", value.String("a@example.com"))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_, err := c.Insert(obj("email", value.String("a@example.com")))
	if !dberr.Is(err, dberr.Conflict) {
		t.Fatalf("expected Conflict for duplicate unique value, got %v", err)
	}
}

func TestBlobOperationsRequireBlobType(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.PutBlobChunk("k", 0, []byte("x")); !dberr.Is(err, dberr.OperationNotSupported) {
		t.Fatalf("expected OperationNotSupported on non-blob collection, got %v", err)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	c := newTestCollection(t, TypeBlob)
	if err := c.PutBlobChunk("k", 0, []byte("hello")); err != nil {
		t.Fatalf("PutBlobChunk: %v", err)
	}
	data, ok, err := c.GetBlobChunk("k", 0)
	if err != nil || !ok {
		t.Fatalf("GetBlobChunk: ok=%v err=%v", ok, err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", data)
	}
	if err := c.DeleteBlob("k"); err != nil {
		t.Fatalf("DeleteBlob: %v", err)
	}
	if _, ok, _ := c.GetBlobChunk("k", 0); ok {
		t.Fatalf("expected blob chunk gone after DeleteBlob")
	}
}

func TestTTLExpiresOldDocuments(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.SetTTL("created_at", 60); err != nil {
		t.Fatalf("SetTTL: %v", err)
	}
	old := time.Now().Add(-time.Hour).Unix()
	fresh := time.Now().Unix()
	if _, err := c.Insert(obj("name", value.String("stale"), "created_at", value.Int(old))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := c.Insert(obj("name", value.String("new"), "created_at", value.Int(fresh))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	removed, err := c.Expire()
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 document expired, got %d", removed)
	}
	if c.Count() != 1 {
		t.Fatalf("expected count 1 after expiry, got %d", c.Count())
	}
}

func TestManagerSatisfiesDataSource(t *testing.T) {
	store, err := kvstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	m := NewManager(store)
	if _, err := m.CreateCollection("users", TypeDocument); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if !m.CollectionExists("users") {
		t.Fatalf("expected CollectionExists(users) to be true")
	}
	if m.CollectionExists("ghosts") {
		t.Fatalf("expected CollectionExists(ghosts) to be false")
	}
}

func TestFullTextSearch(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.CreateFullTextIndex("by_bio", "bio"); err != nil {
		t.Fatalf("CreateFullTextIndex: %v", err)
	}
	for _, bio := range []string{
		"database engineer from berlin",
		"frontend developer from paris",
		"embedded database tooling",
	} {
		if _, err := c.Insert(obj("bio", value.String(bio))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	hits, err := c.SearchFullText("by_bio", "database")
	if err != nil {
		t.Fatalf("SearchFullText: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for %q, got %d", "database", len(hits))
	}
	hits, err = c.SearchFullText("by_bio", "paris")
	if err != nil {
		t.Fatalf("SearchFullText: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit for %q, got %d", "paris", len(hits))
	}
}

func TestFullTextEntriesFollowRemove(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.CreateFullTextIndex("by_bio", "bio"); err != nil {
		t.Fatalf("CreateFullTextIndex: %v", err)
	}
	doc, err := c.Insert(obj("bio", value.String("transient text")))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	key, _ := doc.Get("_key")
	if err := c.Remove(key.AsString()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	hits, err := c.SearchFullText("by_bio", "transient")
	if err != nil {
		t.Fatalf("SearchFullText: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits after remove, got %d", len(hits))
	}
}

func TestGeoRadiusSearch(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.CreateGeoIndex("by_loc", "lat", "lon"); err != nil {
		t.Fatalf("CreateGeoIndex: %v", err)
	}
	for _, p := range []struct {
		name     string
		lat, lon float64
	}{
		{"louvre", 48.8606, 2.3376},
		{"notre-dame", 48.8530, 2.3499},
		{"london-eye", 51.5033, -0.1196},
	} {
		if _, err := c.Insert(obj(
			"name", value.String(p.name),
			"lat", value.Float(p.lat),
			"lon", value.Float(p.lon),
		)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	// 5km around central Paris reaches both Paris landmarks, not London.
	hits, err := c.SearchGeoRadius("by_loc", 48.8566, 2.3522, 5000)
	if err != nil {
		t.Fatalf("SearchGeoRadius: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits within 5km, got %d", len(hits))
	}
	first, _ := hits[0].Get("name")
	if first.AsString() != "notre-dame" {
		t.Fatalf("expected nearest-first ordering, got %q first", first.AsString())
	}
}

func TestVectorSearch(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.CreateVectorIndex("by_embedding", "embedding", 3); err != nil {
		t.Fatalf("CreateVectorIndex: %v", err)
	}
	vecs := map[string][]float64{
		"x-axis":  {1, 0, 0},
		"y-axis":  {0, 1, 0},
		"near-x":  {0.9, 0.1, 0},
	}
	for name, v := range vecs {
		arr := make([]value.Value, len(v))
		for i, f := range v {
			arr[i] = value.Float(f)
		}
		if _, err := c.Insert(obj("name", value.String(name), "embedding", value.Array(arr))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	hits, err := c.SearchVector("by_embedding", []float64{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchVector: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	first, _ := hits[0].Get("name")
	if first.AsString() != "x-axis" {
		t.Fatalf("expected x-axis as best match, got %q", first.AsString())
	}
	second, _ := hits[1].Get("name")
	if second.AsString() != "near-x" {
		t.Fatalf("expected near-x as second match, got %q", second.AsString())
	}
}

func TestVectorSearchRejectsWrongDimensions(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.CreateVectorIndex("by_embedding", "embedding", 3); err != nil {
		t.Fatalf("CreateVectorIndex: %v", err)
	}
	if _, err := c.SearchVector("by_embedding", []float64{1, 0}, 1); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestIndexSortedRange(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.CreateIndex("by_age", []string{"age"}, false); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	for _, age := range []int64{18, 25, 31, 42, 67} {
		if _, err := c.Insert(obj("age", value.Int(age))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	docs, err := c.IndexSortedRange("by_age", value.Int(20), value.Int(45))
	if err != nil {
		t.Fatalf("IndexSortedRange: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents in [20,45], got %d", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		prev, _ := docs[i-1].Get("age")
		cur, _ := docs[i].Get("age")
		if prev.AsInt() > cur.AsInt() {
			t.Fatalf("expected ascending index order, got %d before %d", prev.AsInt(), cur.AsInt())
		}
	}
}

func TestSparseIndexSkipsDocumentsWithoutFields(t *testing.T) {
	c := newTestCollection(t, TypeDocument)
	if err := c.CreateIndexKind("by_nick", []string{"nick"}, false, true, "sorted"); err != nil {
		t.Fatalf("CreateIndexKind: %v", err)
	}
	if _, err := c.Insert(obj("nick", value.String("zed"))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := c.Insert(obj("name", value.String("anonymous"))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// A lookup for null would match the missing-field document on a dense
	// index; the sparse index never wrote that entry.
	found, err := c.IndexLookupEq("by_nick", []value.Value{value.Null()})
	if err != nil {
		t.Fatalf("IndexLookupEq: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected sparse index to skip field-less documents, got %d", len(found))
	}
}
