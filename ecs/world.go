package ecs

import (
	"fmt"
	"reflect"
	"sync"
)

// World is the composition root wiring the entity allocator, the
// type-keyed component storages, the resource registry, and the lazy
// update queue together — the object a host process builds once and a
// Dispatcher runs systems against every tick.
//
// Grounded on the teacher's World (internal/core/ecs/world.go), which
// already composes an EntityPool, a Registry of component stores, and a
// destroy queue; generalized here with a resource registry and the
// BitSet-backed allocator from §4.1/§4.3.
type World struct {
	alloc     *Allocator
	resources *ResourceRegistry

	mu     sync.RWMutex
	stores map[reflect.Type]AnyStore

	buildersMu sync.Mutex
	builders   map[Entity]bool

	poisonMu  sync.RWMutex
	poisoned  bool
	poisonErr error
}

// NewWorld returns an empty World with its LazyUpdate resource already
// installed.
func NewWorld() *World {
	w := &World{
		alloc:     NewAllocator(),
		resources: NewResourceRegistry(),
		stores:    make(map[reflect.Type]AnyStore),
		builders:  make(map[Entity]bool),
	}
	InsertResource(w.resources, *newLazyUpdate(w))
	return w
}

// Poison marks the World as poisoned, recording err as the reason. Called
// by a Dispatcher after recovering a panic from a system's Run; every
// subsequent Dispatch call is refused until the host calls Acknowledge.
func (w *World) Poison(err error) {
	w.poisonMu.Lock()
	defer w.poisonMu.Unlock()
	w.poisoned = true
	w.poisonErr = err
}

// Poisoned reports whether the World is currently poisoned, and if so, the
// error recorded by the panic that poisoned it.
func (w *World) Poisoned() (bool, error) {
	w.poisonMu.RLock()
	defer w.poisonMu.RUnlock()
	return w.poisoned, w.poisonErr
}

// Acknowledge clears a poisoned World's flag, per spec.md's explicit-
// acknowledgment policy: no dispatcher recovers on its own, only the host
// deciding it has dealt with the failure can resume dispatching.
func (w *World) Acknowledge() {
	w.poisonMu.Lock()
	defer w.poisonMu.Unlock()
	w.poisoned = false
	w.poisonErr = nil
}

// Allocator returns the world's entity allocator.
func (w *World) Allocator() *Allocator { return w.alloc }

// Resources returns the world's resource registry.
func (w *World) Resources() *ResourceRegistry { return w.resources }

// LazyUpdate returns the world's installed LazyUpdate resource. Equivalent
// to Read[LazyUpdate](w.Resources()) without the release obligation, since
// LazyUpdate's own queue is independently mutex-guarded and safe to share
// without a borrow reservation.
func (w *World) LazyUpdate() *LazyUpdate {
	lu, release := Read[LazyUpdate](w.resources)
	release()
	return lu
}

// CreateEntity allocates a new entity, immediately alive. Requires
// exclusive world access (not safe during dispatch); see CreateEntityAtomic.
func (w *World) CreateEntity() Entity { return w.alloc.Create() }

// CreateEntityAtomic allocates a new entity during a dispatch.
func (w *World) CreateEntityAtomic() Entity { return w.alloc.CreateAtomic() }

// Delete marks e for removal, applied at the next Maintain.
func (w *World) Delete(e Entity) bool { return w.alloc.Delete(e) }

// IsAlive reports whether e currently names a live entity.
func (w *World) IsAlive(e Entity) bool { return w.alloc.IsAlive(e) }

// CreateBuilder starts an EntityBuilder for a freshly allocated entity.
func (w *World) CreateBuilder() *EntityBuilder {
	e := w.alloc.CreateAtomic()
	w.buildersMu.Lock()
	w.builders[e] = true
	w.buildersMu.Unlock()
	return &EntityBuilder{world: w, entity: e}
}

func (w *World) finishBuilder(e Entity) {
	w.buildersMu.Lock()
	delete(w.builders, e)
	w.buildersMu.Unlock()
}

// RegisterComponentStore installs store as T's storage, if none is
// registered yet, and returns the registered store either way — so
// callers that want a non-default variant (sparse, hashmap, null, btree)
// must register it during setup, before any ComponentStoreOrRegisterDense
// call has a chance to install the dense-vec default.
func RegisterComponentStore[T any](w *World, store *Store[T]) *Store[T] {
	t := resourceType[T]()
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.stores[t]; ok {
		return existing.(*Store[T])
	}
	w.stores[t] = store
	return store
}

// ComponentStore returns T's registered storage, panicking if none has
// been registered — the "expect" handle semantics spec.md §4.6 describes
// for resources, extended here to components referenced by a SystemData
// that requires them to already exist by setup time.
func ComponentStore[T any](w *World) *Store[T] {
	s, ok := LookupComponentStore[T](w)
	if !ok {
		panic(fmt.Sprintf("ecs: component %s not registered", resourceType[T]()))
	}
	return s
}

// LookupComponentStore returns T's registered storage without panicking.
func LookupComponentStore[T any](w *World) (*Store[T], bool) {
	t := resourceType[T]()
	w.mu.RLock()
	s, ok := w.stores[t]
	w.mu.RUnlock()
	if !ok {
		return nil, false
	}
	st, ok := s.(*Store[T])
	return st, ok
}

// ComponentStoreOrRegisterDense returns T's registered storage, installing
// a dense-vec default if none exists yet.
func ComponentStoreOrRegisterDense[T any](w *World) *Store[T] {
	if s, ok := LookupComponentStore[T](w); ok {
		return s
	}
	return RegisterComponentStore[T](w, NewDenseStore[T]())
}

// RegisterFlaggedComponentStore installs store as T's storage, wrapped
// with change tracking, if none is registered yet — the FlaggedStore
// equivalent of RegisterComponentStore. A component type is registered as
// either a plain Store or a FlaggedStore, never both; once one variant
// occupies T's slot the other's lookup simply fails.
func RegisterFlaggedComponentStore[T any](w *World, store *FlaggedStore[T]) *FlaggedStore[T] {
	t := resourceType[T]()
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.stores[t]; ok {
		return existing.(*FlaggedStore[T])
	}
	w.stores[t] = store
	return store
}

// FlaggedComponentStore returns T's registered FlaggedStore, panicking if
// none has been registered under that type.
func FlaggedComponentStore[T any](w *World) *FlaggedStore[T] {
	s, ok := LookupFlaggedComponentStore[T](w)
	if !ok {
		panic(fmt.Sprintf("ecs: flagged component %s not registered", resourceType[T]()))
	}
	return s
}

// LookupFlaggedComponentStore returns T's registered FlaggedStore without
// panicking. ok is false both when nothing is registered for T and when T
// is registered as a plain (unflagged) Store.
func LookupFlaggedComponentStore[T any](w *World) (*FlaggedStore[T], bool) {
	t := resourceType[T]()
	w.mu.RLock()
	s, ok := w.stores[t]
	w.mu.RUnlock()
	if !ok {
		return nil, false
	}
	fs, ok := s.(*FlaggedStore[T])
	return fs, ok
}

// Maintain performs the four steps spec.md §4.8 assigns to it, in order:
// drain the lazy queue, fold/reap the allocator, cascade component removal
// for every killed entity, and reap any EntityBuilder whose Build was
// never called. Requires exclusive world access; no dispatch may be in
// flight.
func (w *World) Maintain() {
	for _, op := range w.LazyUpdate().drain() {
		op(w)
	}

	killed := w.alloc.Maintain()
	if len(killed) > 0 {
		w.mu.RLock()
		stores := make([]AnyStore, 0, len(w.stores))
		for _, s := range w.stores {
			stores = append(stores, s)
		}
		w.mu.RUnlock()
		for _, entry := range killed {
			for _, s := range stores {
				s.RemoveIndex(entry.Entity.Index)
			}
		}
	}

	w.buildersMu.Lock()
	abandoned := make([]Entity, 0, len(w.builders))
	for e, outstanding := range w.builders {
		if outstanding {
			abandoned = append(abandoned, e)
		}
	}
	w.builders = make(map[Entity]bool)
	w.buildersMu.Unlock()
	for _, e := range abandoned {
		w.alloc.Delete(e)
	}
}
