package columnar

import (
	"strconv"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/value"
)

// AggOp selects a streaming aggregate operation.
type AggOp string

const (
	AggCount        AggOp = "COUNT"
	AggSum          AggOp = "SUM"
	AggAvg          AggOp = "AVG"
	AggMin          AggOp = "MIN"
	AggMax          AggOp = "MAX"
	AggCountDistinct AggOp = "COUNT_DISTINCT"
)

// Aggregate streams column's key prefix without materializing the whole
// column.
func (c *Collection) Aggregate(column string, op AggOp) (value.Value, error) {
	var (
		count    int64
		sum      float64
		min, max value.Value
		haveMM   bool
		distinct = map[string]bool{}
	)
	err := c.store.ScanPrefix(colPrefix(c.Name, column), func(_, raw []byte) bool {
		decompressed, derr := decompress(raw)
		if derr != nil {
			return true
		}
		v, verr := value.UnmarshalJSON(decompressed)
		if verr != nil || v.IsNull() {
			return true
		}
		count++
		if n, ok := v.Number(); ok {
			sum += n
		}
		if !haveMM {
			min, max = v, v
			haveMM = true
		} else {
			if value.Compare(v, min) < 0 {
				min = v
			}
			if value.Compare(v, max) > 0 {
				max = v
			}
		}
		distinct[v.ToStringValue()] = true
		return true
	})
	if err != nil {
		return value.Null(), dberr.Wrap(dberr.Internal, err, "aggregating %q", column)
	}

	switch op {
	case AggCount:
		return value.Int(count), nil
	case AggCountDistinct:
		return value.Int(int64(len(distinct))), nil
	case AggSum:
		return value.Float(sum), nil
	case AggAvg:
		if count == 0 {
			return value.Null(), nil
		}
		return value.Float(sum / float64(count)), nil
	case AggMin:
		if !haveMM {
			return value.Null(), nil
		}
		return min, nil
	case AggMax:
		if !haveMM {
			return value.Null(), nil
		}
		return max, nil
	}
	return value.Null(), dberr.New(dberr.ExecutionError, "unknown aggregate op %q", op)
}

// GroupKey is a group_by column reference, or a TimeBucket("col","1h")
// pseudo-column bucketing a timestamp column.
type GroupKey struct {
	Column     string
	TimeBucket string // non-empty means bucket Column by this "<n><unit>" interval
}

// GroupBy partitions rows by the tuple of group-key values, then folds
// aggColumn through op over each group.
func (c *Collection) GroupBy(keys []GroupKey, aggColumn string, op AggOp) (map[string]value.Value, error) {
	ids, err := c.allRowIDs()
	if err != nil {
		return nil, err
	}
	groups := map[string][]string{}
	for _, id := range ids {
		parts := make([]string, len(keys))
		for i, k := range keys {
			v, ok, err := c.readColumnValue(k.Column, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				v = value.Null()
			}
			if k.TimeBucket != "" {
				v = bucketTimestamp(v, k.TimeBucket)
			}
			parts[i] = v.ToStringValue()
		}
		gk := groupKeyString(parts)
		groups[gk] = append(groups[gk], id)
	}

	out := make(map[string]value.Value, len(groups))
	for gk, groupIDs := range groups {
		agg, err := c.foldIDs(aggColumn, op, groupIDs)
		if err != nil {
			return nil, err
		}
		out[gk] = agg
	}
	return out, nil
}

func groupKeyString(parts []string) string {
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += "\x00"
		}
		s += p
	}
	return s
}

func (c *Collection) foldIDs(column string, op AggOp, ids []string) (value.Value, error) {
	var (
		count    int64
		sum      float64
		min, max value.Value
		haveMM   bool
	)
	for _, id := range ids {
		v, ok, err := c.readColumnValue(column, id)
		if err != nil {
			return value.Null(), err
		}
		if !ok || v.IsNull() {
			continue
		}
		count++
		if n, ok := v.Number(); ok {
			sum += n
		}
		if !haveMM {
			min, max = v, v
			haveMM = true
		} else {
			if value.Compare(v, min) < 0 {
				min = v
			}
			if value.Compare(v, max) > 0 {
				max = v
			}
		}
	}
	switch op {
	case AggCount:
		return value.Int(count), nil
	case AggSum:
		return value.Float(sum), nil
	case AggAvg:
		if count == 0 {
			return value.Null(), nil
		}
		return value.Float(sum / float64(count)), nil
	case AggMin:
		if !haveMM {
			return value.Null(), nil
		}
		return min, nil
	case AggMax:
		if !haveMM {
			return value.Null(), nil
		}
		return max, nil
	}
	return value.Null(), dberr.New(dberr.ExecutionError, "unknown aggregate op %q", op)
}

// bucketTimestamp truncates an RFC3339 (or epoch-millis) timestamp value
// down to the nearest interval boundary, interval parsed as "<n><unit>"
// with unit in {s,m,h,d}.
func bucketTimestamp(v value.Value, interval string) value.Value {
	secs := parseIntervalSeconds(interval)
	if secs <= 0 {
		return v
	}
	ts, ok := timestampSeconds(v)
	if !ok {
		return v
	}
	bucket := (ts / secs) * secs
	return value.Int(bucket)
}

func parseIntervalSeconds(interval string) int64 {
	if interval == "" {
		return 0
	}
	unit := interval[len(interval)-1]
	n, err := strconv.ParseInt(interval[:len(interval)-1], 10, 64)
	if err != nil {
		return 0
	}
	switch unit {
	case 's':
		return n
	case 'm':
		return n * 60
	case 'h':
		return n * 3600
	case 'd':
		return n * 86400
	}
	return 0
}

func timestampSeconds(v value.Value) (int64, bool) {
	switch v.Kind() {
	case value.KindInt:
		return v.AsInt() / 1000, true
	case value.KindFloat:
		return int64(v.AsFloat()) / 1000, true
	case value.KindString:
		t, err := parseRFC3339(v.AsString())
		if err != nil {
			return 0, false
		}
		return t, true
	}
	return 0, false
}
