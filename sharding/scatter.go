package sharding

import (
	"fmt"

	"github.com/solisoft/solidb/util"
	"github.com/solisoft/solidb/value"
)

// ShardReader fetches rows from one physical shard collection, the
// capability a caller (typically the executor's DataSource) supplies for
// ScatterGather, decoupling this package from document/columnar.
type ShardReader func(physicalCollection string) ([]value.Value, error)

// ScatterGather reads every shard of collection concurrently through read.
// If a shard's read fails, the same read call is retried once per replica
// listed in the shard table; read receives only the physical collection
// name, so no primary or replica node is chosen here. Results are
// concatenated in shard_id order for determinism.
func (co *Coordinator) ScatterGather(collection string, read ShardReader) ([]value.Value, error) {
	cfg, ok, err := co.Config(collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return read(collection)
	}
	table, err := co.Table(collection)
	if err != nil {
		return nil, err
	}

	shardIDs := make([]int, cfg.NumShards)
	for i := range shardIDs {
		shardIDs[i] = i
	}

	rows, err := util.ConcurrentMapFuncWithError(shardIDs, fanOutConcurrency, func(shardID int) ([]value.Value, error) {
		physical := PhysicalName(collection, shardID)
		out, readErr := read(physical)
		if readErr == nil {
			return out, nil
		}
		assignment, hasAssignment := table[shardID]
		if !hasAssignment {
			return nil, readErr
		}
		var lastErr = readErr
		for range assignment.Replicas {
			// Replica reads go through the same physical-name/read path;
			// routing to a specific replica node is the cluster manager's
			// job, so the read is retried once per replica.
			out, lastErr = read(physical)
			if lastErr == nil {
				return out, nil
			}
		}
		return nil, fmt.Errorf("shard %d (collection %q): %w", shardID, collection, lastErr)
	})
	if err != nil {
		return nil, err
	}

	var all []value.Value
	for _, rs := range rows {
		all = append(all, rs...)
	}
	return all, nil
}
