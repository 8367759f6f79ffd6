package document

import (
	"math"
	"sort"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

// geoDescriptor is a persisted geo index over a lat/lon field pair.
type geoDescriptor struct {
	Name     string `json:"name"`
	LatField string `json:"lat_field"`
	LonField string `json:"lon_field"`
}

// CreateGeoIndex declares a geo index over two numeric fields and
// backfills entries for existing documents.
func (c *Collection) CreateGeoIndex(name, latField, lonField string) error {
	if _, exists := c.geo[name]; exists {
		return dberr.New(dberr.CollectionAlreadyExists, "geo index %q already exists", name)
	}
	d := &geoDescriptor{Name: name, LatField: latField, LonField: lonField}
	meta := value.NewObject()
	meta.Set("name", value.String(d.Name))
	meta.Set("lat_field", value.String(d.LatField))
	meta.Set("lon_field", value.String(d.LonField))
	raw, err := encodeDoc(meta)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding geo descriptor")
	}

	docs, err := c.Scan(0)
	if err != nil {
		return err
	}
	b := c.store.NewBatch()
	if err := b.Set(geoMetaKey(c.Name, name), raw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing geo descriptor")
	}
	for _, doc := range docs {
		key, _ := doc.Get("_key")
		if err := c.addGeoEntry(b, d, doc, key.AsString()); err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return dberr.Wrap(dberr.Internal, err, "backfilling geo index %q", name)
	}
	c.geo[name] = d
	return nil
}

func (c *Collection) loadGeo() error {
	return c.store.ScanPrefix(geoMetaPrefix(c.Name), func(_, v []byte) bool {
		dv, err := decodeDoc(v)
		if err != nil {
			return true
		}
		name, _ := dv.Get("name")
		lat, _ := dv.Get("lat_field")
		lon, _ := dv.Get("lon_field")
		c.geo[name.AsString()] = &geoDescriptor{
			Name:     name.AsString(),
			LatField: lat.AsString(),
			LonField: lon.AsString(),
		}
		return true
	})
}

func (c *Collection) addGeoEntry(b *kvstore.Batch, d *geoDescriptor, doc value.Value, key string) error {
	lat, lon, ok := geoPoint(doc, d)
	if !ok {
		return nil
	}
	entry := value.NewObject()
	entry.Set("lat", value.Float(lat))
	entry.Set("lon", value.Float(lon))
	raw, err := encodeDoc(entry)
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding geo entry")
	}
	if err := b.Set(geoEntryKey(c.Name, d.Name, key), raw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing geo entry")
	}
	return nil
}

func (c *Collection) removeGeoEntry(b *kvstore.Batch, d *geoDescriptor, key string) error {
	if err := b.Delete(geoEntryKey(c.Name, d.Name, key)); err != nil {
		return dberr.Wrap(dberr.Internal, err, "deleting geo entry")
	}
	return nil
}

func geoPoint(doc value.Value, d *geoDescriptor) (float64, float64, bool) {
	latV, ok1 := doc.Get(d.LatField)
	lonV, ok2 := doc.Get(d.LonField)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	lat, okLat := latV.Number()
	lon, okLon := lonV.Number()
	if !okLat || !okLon {
		return 0, 0, false
	}
	return lat, lon, true
}

// SearchGeoRadius returns documents within radiusMeters of (lat, lon),
// nearest first.
func (c *Collection) SearchGeoRadius(name string, lat, lon, radiusMeters float64) ([]value.Value, error) {
	if _, ok := c.geo[name]; !ok {
		return nil, dberr.New(dberr.CollectionNotFound, "geo index %q not found on %q", name, c.Name)
	}

	type hit struct {
		key  string
		dist float64
	}
	var hits []hit
	err := c.store.ScanPrefix(geoEntryPrefix(c.Name, name), func(k, v []byte) bool {
		entry, err := decodeDoc(v)
		if err != nil {
			return true
		}
		latV, _ := entry.Get("lat")
		lonV, _ := entry.Get("lon")
		d := haversineMeters(lat, lon, latV.AsFloat(), lonV.AsFloat())
		if d <= radiusMeters {
			hits = append(hits, hit{docKeyFromIdxEntry(k), d})
		}
		return true
	})
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "geo radius scan")
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]value.Value, 0, len(hits))
	for _, h := range hits {
		doc, ok, err := c.Get(h.key)
		if err == nil && ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

const earthRadiusMeters = 6_371_000

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
