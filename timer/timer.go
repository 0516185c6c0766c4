// Package timer implements a cancellable deferred-call scheduler.
//
// It replaces ad-hoc "sleep-then-check" patterns scattered through the
// transport and channel layers with a single mechanism: schedule a callback
// after a delay, cancel it individually or in bulk, and get a guarantee that
// a cancelled callback never fires and a fired callback never fires twice.
package timer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// tickInterval bounds how stale a fire_at check can be; the background
// worker wakes at least this often.
const tickInterval = 10 * time.Millisecond

// Func is a scheduled callback. It must not block indefinitely — it runs on
// the timer's single worker goroutine and delays every other pending entry
// while it executes.
type Func func()

type entry struct {
	id     uint64
	fireAt time.Time
	cb     Func
}

// Timer schedules callbacks for future execution and supports cancelling
// them individually or all at once. One background goroutine owns the
// entry list; callbacks run on that goroutine, outside the entry-list lock.
type Timer struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	entries map[uint64]*entry
	nextID  uint64
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// New creates and starts a Timer. Stop must be called to release its
// background goroutine.
func New(log *zap.SugaredLogger) *Timer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	t := &Timer{
		log:     log,
		entries: make(map[uint64]*entry),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

// Schedule adds a callback to fire after delay and returns an id that can be
// passed to Cancel. A zero or negative delay fires on the next tick.
func (t *Timer) Schedule(delay time.Duration, cb Func) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	t.entries[id] = &entry{
		id:     id,
		fireAt: time.Now().Add(delay),
		cb:     cb,
	}
	return id
}

// Cancel drops a still-pending entry. It returns true if the entry was
// pending and is now removed, false if it had already fired, already been
// cancelled, or never existed.
func (t *Timer) Cancel(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	return true
}

// CancelAll drops every pending entry and returns how many were dropped.
// Entries already in flight (popped by run() for firing) are not affected —
// whichever side (CancelAll vs. firing) observed the entry first wins, and
// the callback fires at most once either way.
func (t *Timer) CancelAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entries)
	t.entries = make(map[uint64]*entry)
	return n
}

// Stop halts the background worker. No further callbacks fire after Stop
// returns, including ones already due.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	close(t.done)
}

func (t *Timer) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.fireDue()
		}
	}
}

// fireDue pops every entry whose fire_at has passed, under the lock, then
// invokes each callback after releasing it — so a callback that reschedules
// or cancels another entry never deadlocks against the timer's own lock.
func (t *Timer) fireDue() {
	now := time.Now()
	var due []*entry

	t.mu.Lock()
	for id, e := range t.entries {
		if !e.fireAt.After(now) {
			due = append(due, e)
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for _, e := range due {
		t.invoke(e)
	}
}

func (t *Timer) invoke(e *entry) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Errorw("deferred callback panicked", "id", e.id, "panic", r)
		}
	}()
	e.cb()
}
