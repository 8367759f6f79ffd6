// Package sharding implements the per-collection shard configuration,
// the shard table, and cluster propagation: the layer that binds the
// DBQL executor to multiple physical shards of a logical collection. It shares the same kvstore.Store used by document and
// columnar collections, under its own key prefixes.
package sharding

import (
	"strconv"
	"strings"
)

const (
	prefConfig = "shard_config:"
	prefTable  = "shard_table:"
)

func nsKey(coll, suffix string) []byte {
	var b strings.Builder
	b.WriteString(coll)
	b.WriteByte(0)
	b.WriteString(suffix)
	return []byte(b.String())
}

func configKey(coll string) []byte { return nsKey(coll, prefConfig) }
func tableKey(coll string) []byte  { return nsKey(coll, prefTable) }

// shardIDKey/shardIDFromKey round-trip a shard_id through the string keys
// the Table's JSON object representation requires (value.Value objects
// are string-keyed).
func shardIDKey(id int) string { return strconv.Itoa(id) }
func shardIDFromKey(k string) int {
	n, _ := strconv.Atoi(k)
	return n
}
