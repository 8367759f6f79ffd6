package document

import "github.com/solisoft/solidb/value"

// ChangeKind tags a change event with the mutation that produced it.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeRemove ChangeKind = "remove"
)

// ChangeEvent describes one committed document mutation. The trigger
// runtime subscribes through Manager.OnChange; this package only emits.
type ChangeEvent struct {
	Collection string
	Kind       ChangeKind
	Key        string
	Doc        value.Value // post-image for insert/update, pre-image for remove
}

// ChangeListener receives events after the mutation's batch has
// committed. Listeners must not block; slow consumers should buffer.
type ChangeListener func(ChangeEvent)

func (c *Collection) emit(kind ChangeKind, key string, doc value.Value) {
	if c.onChange == nil {
		return
	}
	c.onChange(ChangeEvent{Collection: c.Name, Kind: kind, Key: key, Doc: doc})
}

// OnChange registers a listener for every collection the manager owns,
// now and in the future.
func (m *Manager) OnChange(fn ChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
	for _, c := range m.cols {
		c.onChange = fn
	}
}
