package sharding

import (
	"context"
	"os"
	"testing"

	"github.com/solisoft/solidb/kvstore"
	"github.com/solisoft/solidb/value"
)

type fixedMembership struct{ members []string }

func (f fixedMembership) HealthyMembers() []string { return f.members }

type recordingRebalancer struct {
	calls []string
}

func (r *recordingRebalancer) EnqueueRebalance(collection string, cfg Config) {
	r.calls = append(r.calls, collection)
}

func openTestStore(t *testing.T) *kvstore.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "sharding-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	store, err := kvstore.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// ApplyConfig caps num_shards and replication_factor at the healthy
// member count: num_shards == min(requested, healthy members).
func TestApplyConfigClampsToHealthyMembers(t *testing.T) {
	store := openTestStore(t)
	members := fixedMembership{members: []string{"n1", "n2", "n3"}}
	co := NewCoordinator(store, members, nil, "secret", nil)

	cfg, status, err := co.ApplyConfig(context.Background(), "widgets", ConfigRequest{
		NumShards: 10, ShardKey: "id", ReplicationFactor: 5,
	})
	if err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if cfg.NumShards != 3 {
		t.Fatalf("expected num_shards clamped to 3, got %d", cfg.NumShards)
	}
	if cfg.ReplicationFactor != 3 {
		t.Fatalf("expected replication_factor clamped to 3, got %d", cfg.ReplicationFactor)
	}
	if status != StatusUpdatedRebalancing {
		t.Fatalf("expected first config to be updated_rebalancing, got %s", status)
	}
}

func TestApplyConfigRebalancesOnlyOnShardCountChange(t *testing.T) {
	store := openTestStore(t)
	members := fixedMembership{members: []string{"n1", "n2"}}
	rb := &recordingRebalancer{}
	co := NewCoordinator(store, members, rb, "secret", nil)

	if _, _, err := co.ApplyConfig(context.Background(), "widgets", ConfigRequest{NumShards: 2, ShardKey: "id", ReplicationFactor: 1}); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if len(rb.calls) != 1 {
		t.Fatalf("expected 1 rebalance call after first apply, got %d", len(rb.calls))
	}

	_, status, err := co.ApplyConfig(context.Background(), "widgets", ConfigRequest{NumShards: 2, ShardKey: "id", ReplicationFactor: 1})
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if status != StatusUpdated {
		t.Fatalf("expected resubmitting the same num_shards to report updated, got %s", status)
	}
	if len(rb.calls) != 1 {
		t.Fatalf("expected no additional rebalance call, got %d total", len(rb.calls))
	}
}

func TestShardForIsDeterministic(t *testing.T) {
	a := ShardFor(value.String("user-42"), 8)
	b := ShardFor(value.String("user-42"), 8)
	if a != b {
		t.Fatalf("expected ShardFor to be deterministic, got %d then %d", a, b)
	}
	if a < 0 || a >= 8 {
		t.Fatalf("expected shard id in [0,8), got %d", a)
	}
}

func TestPhysicalName(t *testing.T) {
	if got, want := PhysicalName("widgets", 3), "widgets_s3"; got != want {
		t.Fatalf("PhysicalName() = %q, want %q", got, want)
	}
}

func TestBuildTableDistributesAcrossMembers(t *testing.T) {
	cfg := Config{NumShards: 4, ShardKey: "id", ReplicationFactor: 2}
	table := buildTable(cfg, []string{"n1", "n2", "n3"})
	if len(table) != 4 {
		t.Fatalf("expected 4 shard assignments, got %d", len(table))
	}
	for id, a := range table {
		if a.Primary == "" {
			t.Fatalf("shard %d has no primary", id)
		}
		for _, r := range a.Replicas {
			if r == a.Primary {
				t.Fatalf("shard %d replica %q duplicates its primary", id, r)
			}
		}
	}
}
