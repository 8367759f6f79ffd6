package document

import (
	"sort"
	"strings"
	"unicode"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

// ftDescriptor is a persisted fulltext index: whole-word term entries
// under ft_term: plus trigram entries under ft: for substring matching.
type ftDescriptor struct {
	Name  string `json:"name"`
	Field string `json:"field"`
}

// CreateFullTextIndex declares a fulltext index over a single string
// field and backfills term/trigram entries for existing documents.
func (c *Collection) CreateFullTextIndex(name, field string) error {
	if _, exists := c.fulltext[name]; exists {
		return dberr.New(dberr.CollectionAlreadyExists, "fulltext index %q already exists", name)
	}
	d := &ftDescriptor{Name: name, Field: field}
	meta := value.NewObject()
	meta.Set("name", value.String(d.Name))
	meta.Set("field", value.String(d.Field))
	raw, err := encodeDoc(meta)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding fulltext descriptor")
	}

	docs, err := c.Scan(0)
	if err != nil {
		return err
	}
	b := c.store.NewBatch()
	if err := b.Set(ftMetaKey(c.Name, name), raw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing fulltext descriptor")
	}
	for _, doc := range docs {
		key, _ := doc.Get("_key")
		if err := c.addFullTextEntries(b, d, doc, key.AsString()); err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return dberr.Wrap(dberr.Internal, err, "backfilling fulltext index %q", name)
	}
	c.fulltext[name] = d
	return nil
}

func (c *Collection) loadFullText() error {
	return c.store.ScanPrefix(ftMetaPrefix(c.Name), func(_, v []byte) bool {
		dv, err := decodeDoc(v)
		if err != nil {
			return true
		}
		name, _ := dv.Get("name")
		field, _ := dv.Get("field")
		c.fulltext[name.AsString()] = &ftDescriptor{Name: name.AsString(), Field: field.AsString()}
		return true
	})
}

func (c *Collection) addFullTextEntries(b *kvstore.Batch, d *ftDescriptor, doc value.Value, key string) error {
	text, ok := doc.Get(d.Field)
	if !ok || text.Kind() != value.KindString {
		return nil
	}
	for _, term := range tokenizeTerms(text.AsString()) {
		if err := b.Set(ftTermKey(c.Name, d.Name, term, key), []byte{}); err != nil {
			return dberr.Wrap(dberr.Internal, err, "writing fulltext term entry")
		}
		for gram := range trigrams(term) {
			if err := b.Set(ftGramKey(c.Name, d.Name, gram, key), []byte{}); err != nil {
				return dberr.Wrap(dberr.Internal, err, "writing fulltext trigram entry")
			}
		}
	}
	return nil
}

func (c *Collection) removeFullTextEntries(b *kvstore.Batch, d *ftDescriptor, doc value.Value, key string) error {
	text, ok := doc.Get(d.Field)
	if !ok || text.Kind() != value.KindString {
		return nil
	}
	for _, term := range tokenizeTerms(text.AsString()) {
		if err := b.Delete(ftTermKey(c.Name, d.Name, term, key)); err != nil {
			return dberr.Wrap(dberr.Internal, err, "deleting fulltext term entry")
		}
		for gram := range trigrams(term) {
			if err := b.Delete(ftGramKey(c.Name, d.Name, gram, key)); err != nil {
				return dberr.Wrap(dberr.Internal, err, "deleting fulltext trigram entry")
			}
		}
	}
	return nil
}

// SearchFullText returns documents matching the query's terms, highest
// score first: each query term found as a whole word adds 2 and each of
// its trigrams found adds 1, so an exact hit on a term outranks a
// trigram-only hit on that same term. Ties are ordered by document key.
func (c *Collection) SearchFullText(name, query string) ([]value.Value, error) {
	d, ok := c.fulltext[name]
	if !ok {
		return nil, dberr.New(dberr.CollectionNotFound, "fulltext index %q not found on %q", name, c.Name)
	}

	scores := map[string]int{}
	for _, term := range tokenizeTerms(query) {
		err := c.store.ScanPrefix(ftTermPrefix(c.Name, d.Name, term), func(k, _ []byte) bool {
			scores[docKeyFromIdxEntry(k)] += 2
			return true
		})
		if err != nil {
			return nil, dberr.Wrap(dberr.Internal, err, "fulltext term scan")
		}
		for gram := range trigrams(term) {
			err := c.store.ScanPrefix(ftGramPrefix(c.Name, d.Name, gram), func(k, _ []byte) bool {
				scores[docKeyFromIdxEntry(k)]++
				return true
			})
			if err != nil {
				return nil, dberr.Wrap(dberr.Internal, err, "fulltext trigram scan")
			}
		}
	}

	type hit struct {
		key   string
		score int
	}
	hits := make([]hit, 0, len(scores))
	for k, s := range scores {
		hits = append(hits, hit{k, s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].key < hits[j].key
	})

	out := make([]value.Value, 0, len(hits))
	for _, h := range hits {
		doc, ok, err := c.Get(h.key)
		if err == nil && ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// tokenizeTerms lowercases and splits on anything that is not a letter
// or digit, dropping one-rune fragments.
func tokenizeTerms(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func trigrams(term string) map[string]bool {
	r := []rune(term)
	out := map[string]bool{}
	for i := 0; i+3 <= len(r); i++ {
		out[string(r[i:i+3])] = true
	}
	return out
}
