package txn

import (
	"testing"

	"github.com/solisoft/solidb/dberr"
)

func TestAcquireExclusiveIsReentrant(t *testing.T) {
	m := NewLockManager()
	key := Key{Database: "d", Collection: "c", DocKey: "k1"}
	if err := m.AcquireExclusive("tx1", key); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := m.AcquireExclusive("tx1", key); err != nil {
		t.Fatalf("expected re-entrant acquire to succeed, got %v", err)
	}
}

func TestAcquireExclusiveConflictsAcrossTransactions(t *testing.T) {
	m := NewLockManager()
	key := Key{Database: "d", Collection: "c", DocKey: "k1"}
	if err := m.AcquireExclusive("tx1", key); err != nil {
		t.Fatalf("tx1 acquire: %v", err)
	}
	err := m.AcquireExclusive("tx2", key)
	if !dberr.Is(err, dberr.TransactionConflict) {
		t.Fatalf("expected TransactionConflict, got %v", err)
	}
}

// After release, no key maps to tx, and a fresh acquire by another tx
// then succeeds.
func TestReleaseLocksFreesKeysForOtherTransactions(t *testing.T) {
	m := NewLockManager()
	key := Key{Database: "d", Collection: "c", DocKey: "k1"}
	if err := m.AcquireExclusive("tx1", key); err != nil {
		t.Fatalf("tx1 acquire: %v", err)
	}
	m.ReleaseLocks("tx1")
	if _, held := m.HeldBy(key); held {
		t.Fatalf("expected key to be free after ReleaseLocks")
	}
	if err := m.AcquireExclusive("tx2", key); err != nil {
		t.Fatalf("expected tx2 to acquire freed key, got %v", err)
	}
}

func TestReleaseLocksOnlyAffectsOwnTransaction(t *testing.T) {
	m := NewLockManager()
	k1 := Key{Database: "d", Collection: "c", DocKey: "k1"}
	k2 := Key{Database: "d", Collection: "c", DocKey: "k2"}
	if err := m.AcquireExclusive("tx1", k1); err != nil {
		t.Fatalf("tx1 acquire k1: %v", err)
	}
	if err := m.AcquireExclusive("tx2", k2); err != nil {
		t.Fatalf("tx2 acquire k2: %v", err)
	}
	m.ReleaseLocks("tx1")
	if _, held := m.HeldBy(k2); !held {
		t.Fatalf("expected tx2's lock on k2 to survive tx1's release")
	}
}
