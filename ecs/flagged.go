package ecs

import "sync"

// ComponentEventKind distinguishes the three events a FlaggedStore emits.
type ComponentEventKind int

const (
	Inserted ComponentEventKind = iota
	Modified
	Removed
)

func (k ComponentEventKind) String() string {
	switch k {
	case Inserted:
		return "Inserted"
	case Modified:
		return "Modified"
	case Removed:
		return "Removed"
	default:
		return "Unknown"
	}
}

// ComponentEvent is one entry in a FlaggedStore's event log (spec.md §3,
// §4.5).
type ComponentEvent struct {
	Kind  ComponentEventKind
	Index uint32
}

// ReaderID names one subscriber's private cursor into a FlaggedStore's
// event log.
type ReaderID int

// FlaggedStore wraps a Store with change-tracking events: an append-only
// log, trimmed to the lowest outstanding reader cursor, read independently
// by each registered subscriber (spec.md §4.5, design note §9 "ring buffer
// with a lowest-cursor floor").
//
// Grounded on the teacher's double-buffered event.Bus
// (internal/core/event/bus.go), generalized from a single global,
// type-keyed pub/sub bus swapped once per tick to a per-storage log with
// independent per-reader cursors rather than a single swap point.
type FlaggedStore[T any] struct {
	store *Store[T]

	mu      sync.Mutex
	log     []ComponentEvent
	base    uint64 // absolute sequence number of log[0]
	cursors map[ReaderID]uint64
	nextID  ReaderID
	enabled bool
}

// NewFlaggedStore wraps store with change tracking. Event emission starts
// enabled.
func NewFlaggedStore[T any](store *Store[T]) *FlaggedStore[T] {
	return &FlaggedStore[T]{store: store, cursors: make(map[ReaderID]uint64), enabled: true}
}

// Store returns the underlying, unflagged storage, for callers that need
// the raw mask (e.g. to build a join term) without generating events.
func (f *FlaggedStore[T]) Store() *Store[T] { return f.store }

// Subscribe registers a new reader, starting at the current log head (it
// only observes events appended from now on), and returns its ReaderID.
func (f *FlaggedStore[T]) Subscribe() ReaderID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.cursors[id] = f.base + uint64(len(f.log))
	return id
}

// Unsubscribe drops r's cursor, which may let the log's floor advance.
func (f *FlaggedStore[T]) Unsubscribe(r ReaderID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cursors, r)
	f.trimLocked()
}

// SetEmissionEnabled toggles whether writes append to the log, per the
// "temporarily disabled around bulk bookkeeping operations" allowance in
// spec.md §4.5.
func (f *FlaggedStore[T]) SetEmissionEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

func (f *FlaggedStore[T]) emit(kind ComponentEventKind, i uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.enabled {
		return
	}
	f.log = append(f.log, ComponentEvent{Kind: kind, Index: i})
}

// trimLocked discards log entries below the lowest outstanding cursor.
// Callers must hold mu.
func (f *FlaggedStore[T]) trimLocked() {
	floor := f.base + uint64(len(f.log))
	hasReaders := false
	for _, c := range f.cursors {
		hasReaders = true
		if c < floor {
			floor = c
		}
	}
	if !hasReaders {
		floor = f.base + uint64(len(f.log))
	}
	if floor <= f.base {
		return
	}
	drop := int(floor - f.base)
	if drop > len(f.log) {
		drop = len(f.log)
	}
	f.log = f.log[drop:]
	f.base += uint64(drop)
}

// Read returns every event r hasn't seen yet, in FIFO order, and advances
// r's cursor past them.
func (f *FlaggedStore[T]) Read(r ReaderID) []ComponentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	cursor, ok := f.cursors[r]
	if !ok {
		return nil
	}
	if cursor < f.base {
		// Reader fell behind the floor; it missed events that were
		// already trimmed. Resynchronize to the earliest available entry
		// rather than replaying stale indices.
		cursor = f.base
	}
	start := int(cursor - f.base)
	if start >= len(f.log) {
		f.cursors[r] = f.base + uint64(len(f.log))
		return nil
	}
	out := make([]ComponentEvent, len(f.log)-start)
	copy(out, f.log[start:])
	f.cursors[r] = f.base + uint64(len(f.log))
	f.trimLocked()
	return out
}

// Insert writes v at index i, emitting Inserted for a fresh slot or
// Modified for an overwrite (spec.md §4.5).
func (f *FlaggedStore[T]) Insert(i uint32, v T) (old T, existed bool) {
	old, existed = f.store.Insert(i, v)
	if existed {
		f.emit(Modified, i)
	} else {
		f.emit(Inserted, i)
	}
	return old, existed
}

// Remove deletes the value at index i, emitting Removed if it was present.
func (f *FlaggedStore[T]) Remove(i uint32) (T, bool) {
	v, ok := f.store.Remove(i)
	if ok {
		f.emit(Removed, i)
	}
	return v, ok
}

// Get returns a read-only view of the value at index i, without emitting
// an event.
func (f *FlaggedStore[T]) Get(i uint32) (*T, bool) {
	return f.store.Get(i)
}

// GetMut returns a mutable view of the value at index i and emits Modified
// immediately — per spec.md §4.5, "any mutable borrow of an existing entry
// emits Modified(i)", regardless of whether the caller goes on to change
// anything.
func (f *FlaggedStore[T]) GetMut(i uint32) (*T, bool) {
	v, ok := f.store.Get(i)
	if ok {
		f.emit(Modified, i)
	}
	return v, ok
}

// Mask returns the underlying storage's occupancy bitset.
func (f *FlaggedStore[T]) Mask() *BitSet { return f.store.Mask() }

// RemoveIndex implements AnyStore, so a FlaggedStore registered on a World
// participates in Maintain's cascade-delete the same as a plain Store.
func (f *FlaggedStore[T]) RemoveIndex(i uint32) bool {
	_, ok := f.Remove(i)
	return ok
}

var _ AnyStore = (*FlaggedStore[struct{}])(nil)

// flaggedReadTerm and flaggedWriteTerm let a FlaggedStore participate in
// Join/Each1-Each4's algebra. storeIdentity resolves to the underlying
// *Store[T] (not the FlaggedStore wrapper), so NewJoin's rule that a
// mutable accessor shares its storage with no other term still catches a
// FlaggedWriteTerm mixed with a plain ReadTerm/WriteTerm over the same
// backing storage.
type flaggedReadTerm[T any] struct{ store *FlaggedStore[T] }

// FlaggedReadTerm contributes a FlaggedStore's occupancy mask and a
// read-only accessor that does not touch the event log.
func FlaggedReadTerm[T any](store *FlaggedStore[T]) Term { return flaggedReadTerm[T]{store} }

func (t flaggedReadTerm[T]) termMask() mask     { return t.store.Mask() }
func (t flaggedReadTerm[T]) termBound() int     { return t.store.Mask().bound() }
func (t flaggedReadTerm[T]) storeIdentity() any { return t.store.store }
func (t flaggedReadTerm[T]) mutable() bool      { return false }
func (t flaggedReadTerm[T]) at(i uint32) any {
	v, _ := t.store.Get(i)
	return v
}

type flaggedWriteTerm[T any] struct{ store *FlaggedStore[T] }

// FlaggedWriteTerm contributes a FlaggedStore's occupancy mask and a
// mutable accessor that emits Modified(i) for every index the join visits
// — spec.md §4.5's "any mutable borrow of an existing entry emits
// Modified(i), including one obtained through a join."
func FlaggedWriteTerm[T any](store *FlaggedStore[T]) Term { return flaggedWriteTerm[T]{store} }

func (t flaggedWriteTerm[T]) termMask() mask     { return t.store.Mask() }
func (t flaggedWriteTerm[T]) termBound() int     { return t.store.Mask().bound() }
func (t flaggedWriteTerm[T]) storeIdentity() any { return t.store.store }
func (t flaggedWriteTerm[T]) mutable() bool      { return true }
func (t flaggedWriteTerm[T]) at(i uint32) any {
	v, _ := t.store.GetMut(i)
	return v
}
