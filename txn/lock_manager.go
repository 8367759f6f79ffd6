// Package txn implements the exclusive, re-entrant key-level lock manager
// used by the write path: a flat map guarded by a mutex with no wait
// queue, so lock conflicts fail fast rather than block.
package txn

import (
	"sync"

	"github.com/solisoft/solidb/dberr"
)

// Key identifies a lockable resource.
type Key struct {
	Database   string
	Collection string
	DocKey     string
}

// TxID identifies the transaction holding a lock.
type TxID string

// LockManager holds every currently-granted exclusive lock. Only
// exclusive locks are supported; shared locks are intentionally omitted.
type LockManager struct {
	mu    sync.Mutex
	locks map[Key]TxID
	byTx  map[TxID]map[Key]struct{}
}

func NewLockManager() *LockManager {
	return &LockManager{locks: map[Key]TxID{}, byTx: map[TxID]map[Key]struct{}{}}
}

// AcquireExclusive grants tx an exclusive lock on key. If another
// transaction already holds it, returns a TransactionConflict error
// immediately; there is no wait queue. Re-acquiring a lock already
// held by tx itself succeeds (re-entrant).
func (m *LockManager) AcquireExclusive(tx TxID, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if holder, held := m.locks[key]; held {
		if holder == tx {
			return nil
		}
		return dberr.New(dberr.TransactionConflict, "key %v held by another transaction", key)
	}
	m.locks[key] = tx
	if m.byTx[tx] == nil {
		m.byTx[tx] = map[Key]struct{}{}
	}
	m.byTx[tx][key] = struct{}{}
	return nil
}

// ReleaseLocks drops every key tx owns.
func (m *LockManager) ReleaseLocks(tx TxID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.byTx[tx] {
		delete(m.locks, key)
	}
	delete(m.byTx, tx)
}

// HeldBy reports which transaction (if any) currently holds key.
func (m *LockManager) HeldBy(key Key) (TxID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.locks[key]
	return tx, ok
}
