// Package columnar implements the columnar collection layer:
// per-column storage keyed by row UUID, with Sorted/Hash/Bitmap/MinMax
// secondary indexes, backed by the same shared kvstore.Store as document
// collections.
package columnar

import (
	"strconv"
	"strings"
)

const (
	prefCol      = "col:"
	prefColRow   = "col_row:"
	prefIdx      = "col_idx:"
	prefIdxBmp   = "col_idx_bmp:"
	prefIdxMM    = "col_idx_mm:"
	prefIdxMeta  = "col_idx_meta:"
	prefRowCount = "col_meta:row_count"
)

// chunkSize is the MinMax index's row granularity.
const chunkSize = 1000

func nsKey(coll, suffix string) []byte {
	var b strings.Builder
	b.WriteString(coll)
	b.WriteByte(0)
	b.WriteString(suffix)
	return []byte(b.String())
}

func colKey(coll, column, uuid string) []byte { return nsKey(coll, prefCol+column+":"+uuid) }
func colPrefix(coll, column string) []byte     { return nsKey(coll, prefCol+column+":") }

func colRowKey(coll, uuid string) []byte { return nsKey(coll, prefColRow+uuid) }
func colRowPrefix(coll string) []byte    { return nsKey(coll, prefColRow) }

func idxEntryKey(coll, column, enc string) []byte { return nsKey(coll, prefIdx+column+":"+enc) }
func idxPrefix(coll, column string) []byte         { return nsKey(coll, prefIdx+column+":") }

func idxBmpKey(coll, column, enc string) []byte { return nsKey(coll, prefIdxBmp+column+":"+enc) }
func idxBmpPrefix(coll, column string) []byte   { return nsKey(coll, prefIdxBmp+column+":") }

func idxMMKey(coll, column string, chunk int) []byte {
	return nsKey(coll, prefIdxMM+column+":"+strconv.Itoa(chunk))
}
func idxMMPrefix(coll, column string) []byte { return nsKey(coll, prefIdxMM+column+":") }

func idxMetaKey(coll, column string) []byte { return nsKey(coll, prefIdxMeta+column) }
func idxMetaPrefix(coll string) []byte      { return nsKey(coll, prefIdxMeta) }

func rowCountKey(coll string) []byte { return nsKey(coll, prefRowCount) }
