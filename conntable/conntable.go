// Package conntable implements the transport's connection table: a
// concurrent map from connection id to connection record.
package conntable

import (
	"net"
	"sync"
)

// Record is a connection record: the live socket and the peer address
// observed for it.
type Record struct {
	Conn     net.Conn
	PeerAddr net.Addr
}

// Table is the concurrent connection-id -> Record map. All access goes
// through a single mutex.
type Table struct {
	mu      sync.Mutex
	records map[uint32]*Record
	nextID  uint32
}

// New creates an empty connection table.
func New() *Table {
	return &Table{records: make(map[uint32]*Record)}
}

// AssignID returns the next identifier from a monotonic counter that skips
// zero, so zero can be used as a sentinel "no connection" value elsewhere.
func (t *Table) AssignID() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	if t.nextID == 0 {
		t.nextID = 1
	}
	return t.nextID
}

// Insert adds a record under id, overwriting any existing one.
func (t *Table) Insert(id uint32, r *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[id] = r
}

// Get returns the record for id, if any.
func (t *Table) Get(id uint32) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[id]
	return r, ok
}

// Remove deletes the record for id, closing its connection. Idempotent.
func (t *Table) Remove(id uint32) {
	t.mu.Lock()
	r, ok := t.records[id]
	if ok {
		delete(t.records, id)
	}
	t.mu.Unlock()
	if ok && r.Conn != nil {
		_ = r.Conn.Close()
	}
}

// Snapshot returns a copy of the id -> record map, safe to range over
// without holding the table's lock.
func (t *Table) Snapshot() map[uint32]*Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint32]*Record, len(t.records))
	for id, r := range t.records {
		out[id] = r
	}
	return out
}

// WithRecord runs fn on the record for id under the table's lock, so the
// read is serialized with concurrent removals. If the record no longer
// exists, fn is not called and ok is false.
func (t *Table) WithRecord(id uint32, fn func(*Record)) (ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, exists := t.records[id]
	if !exists {
		return false
	}
	fn(r)
	return true
}

// Len reports the number of live connections.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// CloseAll closes and removes every connection, used by Engine.Stop.
func (t *Table) CloseAll() {
	t.mu.Lock()
	records := t.records
	t.records = make(map[uint32]*Record)
	t.mu.Unlock()

	for _, r := range records {
		if r.Conn != nil {
			_ = r.Conn.Close()
		}
	}
}
