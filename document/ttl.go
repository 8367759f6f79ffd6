package document

import (
	"time"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/value"
)

// ttlDescriptor names the date field whose value (a Unix-seconds number or
// an RFC3339 string) plus expireAfter determines when a document expires.
type ttlDescriptor struct {
	Field       string `json:"field"`
	ExpireAfter int64  `json:"expire_after_seconds"`
}

// SetTTL declares (or replaces) the collection's TTL policy: documents
// whose Field value, interpreted as a timestamp, is more than ExpireAfter
// seconds in the past are pruned by Expire. Only one TTL policy exists per
// collection, matching the single ttl_meta:<coll> key.
func (c *Collection) SetTTL(field string, expireAfterSeconds int64) error {
	if expireAfterSeconds < 0 {
		return dberr.New(dberr.ExecutionError, "ttl expire_after_seconds must be >= 0")
	}
	d := &ttlDescriptor{Field: field, ExpireAfter: expireAfterSeconds}
	out := value.NewObject()
	out.Set("field", value.String(d.Field))
	out.Set("expire_after_seconds", value.Int(d.ExpireAfter))
	raw, err := encodeDoc(out)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding ttl descriptor")
	}
	if err := c.store.Set(ttlMetaKey(c.Name), raw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "persisting ttl descriptor")
	}
	c.ttl = d
	return nil
}

// loadTTL restores a persisted TTL policy, if any, on collection open.
func (c *Collection) loadTTL() error {
	raw, ok, err := c.store.Get(ttlMetaKey(c.Name))
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "reading ttl descriptor")
	}
	if !ok {
		return nil
	}
	v, err := decodeDoc(raw)
	if err != nil {
		return nil
	}
	field, _ := v.Get("field")
	expireAfter, _ := v.Get("expire_after_seconds")
	c.ttl = &ttlDescriptor{Field: field.AsString(), ExpireAfter: int64(expireAfter.ToFloat())}
	return nil
}

// expired reports whether doc's TTL field value is more than ExpireAfter
// seconds before now, per the collection's TTL policy (if any).
func (c *Collection) expired(doc value.Value, now time.Time) bool {
	if c.ttl == nil {
		return false
	}
	fv, ok := doc.Get(c.ttl.Field)
	if !ok {
		return false
	}
	ts, ok := asTimestamp(fv)
	if !ok {
		return false
	}
	return now.Sub(ts) > time.Duration(c.ttl.ExpireAfter)*time.Second
}

// asTimestamp interprets v as either Unix-seconds (a Number) or an
// RFC3339 string. Numbers are read as seconds, unlike the DATE_* built-ins,
// which read and produce Unix milliseconds; bare dates are not accepted.
func asTimestamp(v value.Value) (time.Time, bool) {
	switch v.Kind() {
	case value.KindInt, value.KindFloat:
		return time.Unix(int64(v.ToFloat()), 0).UTC(), true
	case value.KindString:
		if t, err := time.Parse(time.RFC3339, v.AsString()); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Expire removes every document expired under the collection's TTL policy
// and returns how many were removed. A no-op if no TTL policy is set.
func (c *Collection) Expire() (int, error) {
	if c.ttl == nil {
		return 0, nil
	}
	docs, err := c.Scan(0)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	var removed int
	for _, d := range docs {
		if !c.expired(d, now) {
			continue
		}
		key, _ := d.Get("_key")
		if err := c.Remove(key.AsString()); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
