package ecs

import "sync"

// LazyUpdate is a resource exposing non-blocking deferred operations usable
// from any system even without a write reservation on the relevant
// storage. Operations are appended in observed program order and applied
// in that order during Maintain (spec.md §4.8).
//
// Grounded on the teacher's World.destroyQueue / World.FlushDestroyQueue
// (internal/core/ecs/world.go), generalized from a delete-only queue of
// entity indices to a tagged queue of arbitrary operations (insert
// component, remove component, delete entity, exec).
type LazyUpdate struct {
	world *World

	mu  sync.Mutex
	ops []func(*World)
}

func newLazyUpdate(w *World) *LazyUpdate {
	return &LazyUpdate{world: w}
}

func (lu *LazyUpdate) enqueue(op func(*World)) {
	lu.mu.Lock()
	lu.ops = append(lu.ops, op)
	lu.mu.Unlock()
}

func (lu *LazyUpdate) drain() []func(*World) {
	lu.mu.Lock()
	ops := lu.ops
	lu.ops = nil
	lu.mu.Unlock()
	return ops
}

// Exec enqueues an arbitrary callback, run with full world access during
// the next Maintain.
func (lu *LazyUpdate) Exec(fn func(w *World)) {
	lu.enqueue(fn)
}

// DeleteEntity enqueues a deferred delete. Equivalent to calling
// World.Delete(e) immediately, except observed only at the next Maintain;
// useful for callers that don't hold any write reservation at all (e.g. a
// read-only system reacting to a condition).
func (lu *LazyUpdate) DeleteEntity(e Entity) {
	lu.enqueue(func(w *World) { w.Delete(e) })
}

// InsertComponent enqueues an insert of v for entity e's T component, auto
// registering a dense-vec storage for T if no storage has been registered
// yet. A no-op if e is no longer alive by the time it is applied.
func InsertComponent[T any](lu *LazyUpdate, e Entity, v T) {
	lu.enqueue(func(w *World) {
		if !w.IsAlive(e) {
			return
		}
		ComponentStoreOrRegisterDense[T](w).Insert(e.Index, v)
	})
}

// RemoveComponent enqueues a removal of entity e's T component.
func RemoveComponent[T any](lu *LazyUpdate, e Entity) {
	lu.enqueue(func(w *World) {
		if s, ok := LookupComponentStore[T](w); ok {
			s.RemoveIndex(e.Index)
		}
	})
}

// EntityBuilder accumulates component inserts for an entity created via
// World.CreateBuilder, applied at the next Maintain. The entity itself is
// live (via the allocator's raised set) as soon as the builder is created;
// With only defers the component writes.
//
// Go has no destructor to run when a builder value goes out of scope
// unused, unlike the upstream LazyBuilder's Drop impl (spec.md §4.8 point
// 4: "Drop any EntityBuilders whose build was never called"); World tracks
// outstanding builders explicitly and reaps any still-unfinished one during
// Maintain (see World.Maintain), which is the closest a GC'd language gets
// to the same guarantee.
type EntityBuilder struct {
	world  *World
	entity Entity
}

// Entity returns the builder's (already-allocated) entity.
func (b *EntityBuilder) Entity() Entity { return b.entity }

// With enqueues a deferred insert of v as e's T component and returns b for
// chaining.
func With[T any](b *EntityBuilder, v T) *EntityBuilder {
	InsertComponent[T](b.world.LazyUpdate(), b.entity, v)
	return b
}

// Build marks the builder finished, so Maintain no longer considers its
// entity abandoned, and returns the entity.
func (b *EntityBuilder) Build() Entity {
	b.world.finishBuilder(b.entity)
	return b.entity
}
