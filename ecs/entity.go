package ecs

import "sync"

// Generation distinguishes reused entity slots. Its absolute value increases
// by one on every deletion of a slot; the sign records liveness: positive
// means the slot is currently live with that generation, negative means it
// is currently dead. The allocator never hands out generation zero, which
// keeps an Entity and an "absent entity" the same size without an extra
// validity flag — mirroring the teacher's packed EntityID, generalized from
// a single unsigned counter to a signed one so liveness is a sign check
// instead of a separate bitset lookup.
type Generation int32

// Entity is a generational handle naming a row across every component
// storage: a slot index plus the generation that was live when the handle
// was issued. Two entities are equal iff both fields match.
type Entity struct {
	Index      uint32
	Generation Generation
}

// IsZero reports whether e is the zero Entity (never returned by an
// allocator).
func (e Entity) IsZero() bool { return e.Generation == 0 }

func absGen(g Generation) Generation {
	if g < 0 {
		return -g
	}
	return g
}

// Allocator issues generational entity identifiers, tracks which slots are
// currently live, and supports concurrent creation and deletion during a
// dispatch. Deletion never bumps a per-slot generation outside Maintain;
// creation (Create and CreateAtomic alike) does write the generation of the
// slot it hands out, flipping a recycled slot's negative generation positive.
//
// Grounded on the teacher's EntityPool (internal/core/ecs/entity.go), which
// packs index/generation into one pool with a plain free list; generalized
// here with the alive/raised/killed BitSet split spec.md requires, and with
// every mutation serialized through one mutex rather than the teacher's
// bare slice access — the pragmatic, mutex-guarded stand-in for the "true"
// lock-free CAS structures the upstream implementation leans on (see
// DESIGN.md).
type Allocator struct {
	mu          sync.Mutex
	generations []Generation
	free        []uint32

	alive  *BitSet
	raised *BitSet
	killed *BitSet
}

// NewAllocator returns an empty Allocator.
func NewAllocator() *Allocator {
	return &Allocator{
		alive:  NewBitSet(),
		raised: NewBitSet(),
		killed: NewBitSet(),
	}
}

// popSlot returns a recyclable slot, or grows the table and returns a fresh
// one. Callers must hold mu.
func (a *Allocator) popSlot() uint32 {
	if n := len(a.free); n > 0 {
		i := a.free[n-1]
		a.free = a.free[:n-1]
		return i
	}
	i := uint32(len(a.generations))
	a.generations = append(a.generations, 0)
	return i
}

// initGen assigns the generation a freshly (re)used slot should carry.
// Callers must hold mu.
func (a *Allocator) initGen(i uint32) Generation {
	g := a.generations[i]
	switch {
	case g == 0:
		g = 1
	case g < 0:
		g = -g
	default:
		// A positive, already-live generation being handed out again is a
		// bug in the caller (double allocation of a live slot); this can
		// only happen via popSlot returning a non-free index, which never
		// occurs.
		panic("ecs: slot already live")
	}
	a.generations[i] = g
	return g
}

// Create issues a new Entity and marks it immediately alive. Requires
// exclusive access to the world (not safe to call concurrently with
// dispatch; use CreateAtomic for that).
func (a *Allocator) Create() Entity {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.popSlot()
	g := a.initGen(i)
	a.alive.Add(i)
	return Entity{Index: i, Generation: g}
}

// CreateAtomic issues a new Entity during a dispatch. The entity is visible
// to IsAlive immediately via the raised set but is only folded into the
// allocator's alive set at the next Maintain.
func (a *Allocator) CreateAtomic() Entity {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.popSlot()
	g := a.initGen(i)
	a.raised.Add(i)
	return Entity{Index: i, Generation: g}
}

// Delete marks e for removal. It is safe to call concurrently with
// CreateAtomic, other Deletes, and IsAlive. The slot is not actually
// recycled, and its generation is not bumped, until Maintain runs; this
// keeps the entity's disappearance atomic from the caller's perspective
// (IsAlive flips to false immediately) while deferring the unsafe-to-race
// generation mutation to a point where no system is executing.
//
// Returns false for a stale handle (index out of range, or generation
// mismatch) — a benign no-op per the stale-entity-probe policy, never an
// error.
func (a *Allocator) Delete(e Entity) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := e.Index
	if int(i) >= len(a.generations) || a.generations[i] != e.Generation {
		return false
	}
	if a.alive.Contains(i) {
		a.alive.Remove(i)
		a.killed.Add(i)
		return true
	}
	if a.raised.Contains(i) {
		a.raised.Remove(i)
		a.killed.Add(i)
		return true
	}
	return false
}

// IsAlive reports whether e names a currently live entity.
func (a *Allocator) IsAlive(e Entity) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := e.Index
	if int(i) >= len(a.generations) || a.generations[i] != e.Generation {
		return false
	}
	return a.alive.Contains(i) || a.raised.Contains(i)
}

// KillListEntry is one entity reaped by Maintain, returned so the world can
// cascade component removal (§4.7/§4.8).
type KillListEntry struct {
	Entity Entity
}

// Maintain folds raised into alive, reaps every killed index (bumping its
// generation and returning it to the free list), and returns the kill list
// so the caller can remove the entity's components from every storage.
// Requires exclusive access to the world; no dispatch may be in flight.
func (a *Allocator) Maintain() []KillListEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.raised.ForEach(func(i uint32) bool {
		a.alive.Add(i)
		return true
	})
	a.raised.Clear()

	var killed []KillListEntry
	a.killed.ForEach(func(i uint32) bool {
		g := a.generations[i]
		killed = append(killed, KillListEntry{Entity: Entity{Index: i, Generation: g}})
		a.generations[i] = -(absGen(g) + 1)
		a.free = append(a.free, i)
		return true
	})
	a.killed.Clear()
	return killed
}

// AliveMask returns the allocator's alive set, united with raised, as the
// "entities" join term (spec.md §4.4): every index considered alive as of
// the current dispatch.
func (a *Allocator) AliveMask() mask {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Or(a.alive, a.raised)
}

// Bound reports the number of layer-0 words currently allocated across
// the alive and raised sets, for callers that need to size a
// conjunction's iteration bound.
func (a *Allocator) Bound() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maxBound(a.alive.bound(), a.raised.bound())
}

// entityAt reconstructs the Entity handle currently occupying slot i, for
// the "entities" join term (spec.md §4.4). Callers must already know i is
// alive or raised.
func (a *Allocator) entityAt(i uint32) Entity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Entity{Index: i, Generation: a.generations[i]}
}
