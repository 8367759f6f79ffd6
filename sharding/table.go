package sharding

import (
	"sort"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

// Assignment is one shard's primary/replica placement:
// shard_id → { primary_node, replica_nodes[] }.
type Assignment struct {
	Primary  string   `json:"primary" yaml:"primary"`
	Replicas []string `json:"replicas" yaml:"replicas"`
}

// Table maps shard_id to its Assignment.
type Table map[int]Assignment

// buildTable assigns shards round-robin across healthyMembers, replication
// factor wide, so that no two replicas of the same shard land on the same
// node when enough members exist.
func buildTable(cfg Config, healthyMembers []string) Table {
	members := append([]string(nil), healthyMembers...)
	sort.Strings(members) // deterministic placement
	t := make(Table, cfg.NumShards)
	if len(members) == 0 {
		return t
	}
	for s := 0; s < cfg.NumShards; s++ {
		primary := members[s%len(members)]
		var replicas []string
		for r := 1; r < cfg.ReplicationFactor && r < len(members); r++ {
			replicas = append(replicas, members[(s+r)%len(members)])
		}
		t[s] = Assignment{Primary: primary, Replicas: replicas}
	}
	return t
}

func loadTable(store *kvstore.Store, collection string) (Table, error) {
	raw, ok, err := store.Get(tableKey(collection))
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "reading shard table for %q", collection)
	}
	if !ok {
		return Table{}, nil
	}
	v, err := value.UnmarshalJSON(raw)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "decoding shard table for %q", collection)
	}
	return tableFromValue(v), nil
}

func saveTable(store *kvstore.Store, collection string, t Table) error {
	raw, err := value.MarshalJSON(tableToValue(t))
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding shard table for %q", collection)
	}
	if err := store.Set(tableKey(collection), raw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing shard table for %q", collection)
	}
	return nil
}

func tableToValue(t Table) value.Value {
	out := value.NewObject()
	ids := make([]int, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		a := t[id]
		entry := value.NewObject()
		entry.Set("primary", value.String(a.Primary))
		replicas := make([]value.Value, len(a.Replicas))
		for i, r := range a.Replicas {
			replicas[i] = value.String(r)
		}
		entry.Set("replicas", value.Array(replicas))
		out.Set(shardIDKey(id), entry)
	}
	return out
}

func tableFromValue(v value.Value) Table {
	t := make(Table, len(v.Keys()))
	for _, k := range v.Keys() {
		entry, _ := v.Get(k)
		primary, _ := entry.Get("primary")
		replicasV, _ := entry.Get("replicas")
		var replicas []string
		for _, r := range replicasV.AsArray() {
			replicas = append(replicas, r.AsString())
		}
		t[shardIDFromKey(k)] = Assignment{Primary: primary.AsString(), Replicas: replicas}
	}
	return t
}
