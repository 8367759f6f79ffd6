package sharding

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"time"

	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/util"
	"github.com/solisoft/solidb/value"
)

// fanOutConcurrency bounds how many shard reads or peer PUTs run at
// once during scatter-gather and config propagation.
const fanOutConcurrency = 8

// Membership reports the cluster members currently considered healthy,
// the capability the coordinator needs from the cluster manager. Only
// the interface lives here; the cluster manager itself is a
// process-wide singleton owned by the server layer.
type Membership interface {
	HealthyMembers() []string
}

// Rebalancer enqueues an asynchronous shard rebalance, the capability the
// coordinator needs from whatever owns physical shard placement. A
// num_shards change enqueues; everything else is metadata-only.
type Rebalancer interface {
	EnqueueRebalance(collection string, cfg Config)
}

// Coordinator owns the sharding metadata (config + table) for every
// collection and propagates changes across the cluster.
type Coordinator struct {
	store      *kvstore.Store
	members    Membership
	rebalancer Rebalancer

	httpClient    *http.Client
	clusterSecret string
	peers         []string // base URLs of other cluster members, for propagation
}

func NewCoordinator(store *kvstore.Store, members Membership, rebalancer Rebalancer, clusterSecret string, peers []string) *Coordinator {
	return &Coordinator{
		store:         store,
		members:       members,
		rebalancer:    rebalancer,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		clusterSecret: clusterSecret,
		peers:         peers,
	}
}

// ConfigRequest is the caller-supplied shape of a collection-properties
// PUT; fields beyond NumShards/ReplicationFactor/ShardKey belong to the
// HTTP surface and are not modeled here.
type ConfigRequest struct {
	NumShards         int
	ShardKey          string
	ReplicationFactor int
	Propagate         bool // false suppresses forwarding to other members
}

// ApplyConfig clamps the requested config to the healthy member count,
// persists it and a freshly computed shard table, enqueues a rebalance
// when num_shards actually changed, and propagates the change to the rest
// of the cluster unless the caller (or a forwarded request) disabled it.
func (co *Coordinator) ApplyConfig(ctx context.Context, collection string, req ConfigRequest) (Config, Status, error) {
	healthy := co.members.HealthyMembers()
	requested := Config{
		NumShards:         req.NumShards,
		ShardKey:          req.ShardKey,
		ReplicationFactor: req.ReplicationFactor,
	}
	next := clamp(requested, len(healthy))

	prev, existed, err := loadConfig(co.store, collection)
	if err != nil {
		return Config{}, "", err
	}

	status := StatusUpdated
	if !existed || prev.NumShards != next.NumShards {
		status = StatusUpdatedRebalancing
	}

	if err := saveConfig(co.store, collection, next); err != nil {
		return Config{}, "", err
	}
	table := buildTable(next, healthy)
	if err := saveTable(co.store, collection, table); err != nil {
		return Config{}, "", err
	}

	if status == StatusUpdatedRebalancing && co.rebalancer != nil {
		co.rebalancer.EnqueueRebalance(collection, next)
	}

	if req.Propagate {
		co.propagate(ctx, collection, next)
	}

	return next, status, nil
}

// propagate forwards the new config to every other cluster member with
// propagate=false set, so the fan-out terminates after one hop.
// Failures are logged, not fatal; the config is retried out-of-band.
func (co *Coordinator) propagate(ctx context.Context, collection string, cfg Config) {
	if len(co.peers) == 0 {
		return
	}
	_, err := util.ConcurrentMapFuncWithError(co.peers, fanOutConcurrency, func(peer string) (struct{}, error) {
		return struct{}{}, co.propagateOne(ctx, peer, collection, cfg)
	})
	if err != nil {
		slog.Warn("shard config propagation failed", "collection", collection, "error", err)
	}
}

func (co *Coordinator) propagateOne(ctx context.Context, peer, collection string, cfg Config) error {
	body, err := value.MarshalJSON(configToValue(cfg))
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/collections/%s/properties?propagate=false", peer, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cluster-Secret", co.clusterSecret)

	resp, err := co.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer %s returned status %d", peer, resp.StatusCode)
	}
	return nil
}

// Config returns the persisted config for collection, or ok=false if the
// collection is not sharded.
func (co *Coordinator) Config(collection string) (Config, bool, error) {
	return loadConfig(co.store, collection)
}

// Table returns the persisted shard table for collection.
func (co *Coordinator) Table(collection string) (Table, error) {
	return loadTable(co.store, collection)
}

// ShardFor hashes a shard-key value to its owning shard_id: FNV-1a is
// fast, stable across processes, and distributes short string keys well.
func ShardFor(shardKeyValue value.Value, numShards int) int {
	if numShards <= 0 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(shardKeyValue.ToStringValue()))
	return int(h.Sum32()) % numShards
}

// PhysicalName returns the underlying collection name a logical shard
// materializes as: a sharded collection c with num_shards=N materializes
// c_s0 … c_s{N-1}.
func PhysicalName(collection string, shardID int) string {
	return fmt.Sprintf("%s_s%d", collection, shardID)
}
