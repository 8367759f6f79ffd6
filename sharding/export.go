package sharding

import (
	"gopkg.in/yaml.v3"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
)

// Snapshot is the durable-contract shape of a collection's sharding
// metadata rendered in a human-editable format for operators moving
// shard configuration between clusters.
type Snapshot struct {
	Collection string     `yaml:"collection"`
	Config     Config     `yaml:"config"`
	Table      TableEntry `yaml:"table"`
}

// TableEntry mirrors Table with its int shard_id keys rendered as a YAML
// mapping (YAML, unlike JSON, is forgiving of non-string keys); each
// entry holds only the primary and replicas.
type TableEntry map[int]Assignment

// ExportYAML renders collection's persisted shard config and table as
// YAML: the same config/table fields as the durable kvstore encoding,
// just serialized for human editing and cross-cluster transport.
func ExportYAML(store *kvstore.Store, collection string) ([]byte, error) {
	cfg, ok, err := loadConfig(store, collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dberr.New(dberr.CollectionNotFound, "no shard config for %q", collection)
	}
	table, err := loadTable(store, collection)
	if err != nil {
		return nil, err
	}
	snap := Snapshot{Collection: collection, Config: cfg, Table: TableEntry(table)}
	out, err := yaml.Marshal(snap)
	if err != nil {
		return nil, dberr.Wrap(dberr.Internal, err, "encoding shard snapshot for %q", collection)
	}
	return out, nil
}

// ImportYAML parses a Snapshot produced by ExportYAML and persists its
// config and table under data's own collection name, the reverse of
// ExportYAML for restoring a collection's shard placement on a new
// cluster.
func ImportYAML(store *kvstore.Store, data []byte) (string, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return "", dberr.Wrap(dberr.Internal, err, "decoding shard snapshot")
	}
	if snap.Collection == "" {
		return "", dberr.New(dberr.ExecutionError, "shard snapshot missing collection name")
	}
	if err := saveConfig(store, snap.Collection, snap.Config); err != nil {
		return "", err
	}
	if err := saveTable(store, snap.Collection, Table(snap.Table)); err != nil {
		return "", err
	}
	return snap.Collection, nil
}
