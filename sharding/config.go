package sharding

import (
	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

// Config is the persisted per-collection shard configuration: num_shards
// and replication_factor are each capped at the number of healthy
// cluster members.
type Config struct {
	NumShards         int    `json:"num_shards" yaml:"num_shards"`
	ShardKey          string `json:"shard_key" yaml:"shard_key"`
	ReplicationFactor int    `json:"replication_factor" yaml:"replication_factor"`
}

// Status reports what ApplyConfig did, the value the collection-
// properties PUT returns (`updated` or `updated_rebalancing`).
type Status string

const (
	StatusUpdated            Status = "updated"
	StatusUpdatedRebalancing Status = "updated_rebalancing"
)

func loadConfig(store *kvstore.Store, collection string) (Config, bool, error) {
	raw, ok, err := store.Get(configKey(collection))
	if err != nil {
		return Config{}, false, dberr.Wrap(dberr.Internal, err, "reading shard config for %q", collection)
	}
	if !ok {
		return Config{}, false, nil
	}
	v, err := value.UnmarshalJSON(raw)
	if err != nil {
		return Config{}, false, dberr.Wrap(dberr.Internal, err, "decoding shard config for %q", collection)
	}
	return configFromValue(v), true, nil
}

func saveConfig(store *kvstore.Store, collection string, cfg Config) error {
	raw, err := value.MarshalJSON(configToValue(cfg))
	if err != nil {
		return dberr.Wrap(dberr.Internal, err, "encoding shard config for %q", collection)
	}
	if err := store.Set(configKey(collection), raw); err != nil {
		return dberr.Wrap(dberr.Internal, err, "writing shard config for %q", collection)
	}
	return nil
}

func configToValue(cfg Config) value.Value {
	out := value.NewObject()
	out.Set("num_shards", value.Int(int64(cfg.NumShards)))
	out.Set("shard_key", value.String(cfg.ShardKey))
	out.Set("replication_factor", value.Int(int64(cfg.ReplicationFactor)))
	return out
}

func configFromValue(v value.Value) Config {
	ns, _ := v.Get("num_shards")
	sk, _ := v.Get("shard_key")
	rf, _ := v.Get("replication_factor")
	return Config{
		NumShards:         int(ns.ToFloat()),
		ShardKey:          sk.AsString(),
		ReplicationFactor: int(rf.ToFloat()),
	}
}

// clamp caps num_shards and replication_factor at the count of healthy
// cluster members.
func clamp(cfg Config, healthyMembers int) Config {
	if healthyMembers < 1 {
		healthyMembers = 1
	}
	if cfg.NumShards < 1 {
		cfg.NumShards = 1
	}
	if cfg.NumShards > healthyMembers {
		cfg.NumShards = healthyMembers
	}
	if cfg.ReplicationFactor < 1 {
		cfg.ReplicationFactor = 1
	}
	if cfg.ReplicationFactor > healthyMembers {
		cfg.ReplicationFactor = healthyMembers
	}
	return cfg
}
