package columnar

import (
	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/keycodec"
	"github.com/solisoft/solidb/value"
)

// FilterOp is one node of the boolean filter tree ScanFiltered accepts:
// comparisons on a single column, or And/Or combinators.
type FilterOp string

const (
	FilterEq  FilterOp = "Eq"
	FilterNe  FilterOp = "Ne"
	FilterGt  FilterOp = "Gt"
	FilterGte FilterOp = "Gte"
	FilterLt  FilterOp = "Lt"
	FilterLte FilterOp = "Lte"
	FilterIn  FilterOp = "In"
	FilterAnd FilterOp = "And"
	FilterOr  FilterOp = "Or"
)

type Filter struct {
	Op       FilterOp
	Column   string
	Value    value.Value
	Values   []value.Value // for In
	Children []*Filter      // for And/Or
}

// ScanFiltered evaluates filter and returns the projected columns for
// every matching row. Candidate rows come from a Bitmap index for Eq/In on
// a bitmap-indexed column, the inverted list for Eq on a Sorted/Hash-indexed
// column, and MinMax chunk pruning for Gt*/Lt* on a MinMax-indexed column.
// Every other case, including Gt*/Lt* on a Sorted-indexed column, is a full
// row-by-row scan; no index range scan is performed.
func (c *Collection) ScanFiltered(filter *Filter, projection []string) ([]value.Value, error) {
	ids, err := c.candidateIDs(filter)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, 0, len(ids))
	for _, id := range ids {
		match, err := c.evalFilter(filter, id)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		row := value.NewObject()
		for _, col := range projection {
			v, ok, err := c.readColumnValue(col, id)
			if err == nil && ok {
				row.Set(col, v)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// candidateIDs narrows the row set before the row-by-row evaluation pass.
// And/Or combinators and anything without a usable index fall back to a
// full scan of every row (still correct, just unpruned).
func (c *Collection) candidateIDs(filter *Filter) ([]string, error) {
	switch filter.Op {
	case FilterEq:
		if meta, ok := c.indexes[filter.Column]; ok && meta.Type == IndexBitmap {
			return c.bitmapCandidates(filter.Column, []value.Value{filter.Value})
		}
		if meta, ok := c.indexes[filter.Column]; ok && (meta.Type == IndexSorted || meta.Type == IndexHash) {
			return c.lookupInverted(filter.Column, keycodec.EncodeHex(filter.Value))
		}
	case FilterIn:
		if meta, ok := c.indexes[filter.Column]; ok && meta.Type == IndexBitmap {
			return c.bitmapCandidates(filter.Column, filter.Values)
		}
	case FilterGt, FilterGte, FilterLt, FilterLte:
		if meta, ok := c.indexes[filter.Column]; ok && meta.Type == IndexMinMax {
			return c.minMaxPrunedCandidates(filter)
		}
	}
	return c.allRowIDs()
}

func (c *Collection) bitmapCandidates(column string, values []value.Value) ([]string, error) {
	c.mu.RLock()
	posToID := make([]string, c.nextPos)
	for id, pos := range c.positionOf {
		if pos < len(posToID) {
			posToID[pos] = id
		}
	}
	c.mu.RUnlock()

	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		fallback, err := c.lookupInverted(column, keycodec.EncodeHex(v))
		if err != nil {
			return nil, err
		}
		for _, id := range fallback {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
		raw, ok, err := c.store.Get(idxBmpKey(c.Name, column, keycodec.EncodeHex(v)))
		if err != nil {
			return nil, dberr.Wrap(dberr.Internal, err, "reading bitmap index")
		}
		if !ok {
			continue
		}
		bits, err := decompress(raw)
		if err != nil {
			return nil, dberr.Wrap(dberr.Internal, err, "decompressing bitmap index")
		}
		for pos, id := range posToID {
			if id == "" {
				continue
			}
			if bitmapTest(bits, pos) && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// minMaxPrunedCandidates skips chunks whose [min,max] range cannot satisfy
// the comparison, reading only the surviving chunks' rows.
func (c *Collection) minMaxPrunedCandidates(filter *Filter) ([]string, error) {
	chunks, err := c.minMaxChunks(filter.Column)
	if err != nil {
		return nil, err
	}
	var ids []string
	allIDs, err := c.allRowIDs()
	if err != nil {
		return nil, err
	}
	for i, id := range allIDs {
		chunk := i / chunkSize
		stats, ok := chunks[chunk]
		if ok && !chunkCouldMatch(stats, filter) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func chunkCouldMatch(stats minMaxStats, filter *Filter) bool {
	switch filter.Op {
	case FilterGt:
		return value.Compare(stats.Max, filter.Value) > 0
	case FilterGte:
		return value.Compare(stats.Max, filter.Value) >= 0
	case FilterLt:
		return value.Compare(stats.Min, filter.Value) < 0
	case FilterLte:
		return value.Compare(stats.Min, filter.Value) <= 0
	}
	return true
}

func (c *Collection) evalFilter(filter *Filter, id string) (bool, error) {
	switch filter.Op {
	case FilterAnd:
		for _, child := range filter.Children {
			ok, err := c.evalFilter(child, id)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case FilterOr:
		for _, child := range filter.Children {
			ok, err := c.evalFilter(child, id)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	v, ok, err := c.readColumnValue(filter.Column, id)
	if err != nil {
		return false, err
	}
	if !ok {
		v = value.Null()
	}
	switch filter.Op {
	case FilterEq:
		return value.Equal(v, filter.Value), nil
	case FilterNe:
		return !value.Equal(v, filter.Value), nil
	case FilterGt:
		return value.Compare(v, filter.Value) > 0, nil
	case FilterGte:
		return value.Compare(v, filter.Value) >= 0, nil
	case FilterLt:
		return value.Compare(v, filter.Value) < 0, nil
	case FilterLte:
		return value.Compare(v, filter.Value) <= 0, nil
	case FilterIn:
		for _, cand := range filter.Values {
			if value.Equal(v, cand) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, dberr.New(dberr.ExecutionError, "unknown filter op %q", filter.Op)
}
