package ecs

import "fmt"

// Term is one contributor to a join: a mask plus an accessor invoked for
// every index the overall conjunction selects. Grounded on the upstream
// library's Join trait (original_source/src/join.rs), generalized from
// Rust's associated-type-per-impl design to a Go interface returning `any`,
// since the dynamic N-ary join (used by anything that assembles a query at
// runtime, e.g. internal/scripting) can't know each term's concrete type at
// compile time the way the typed Each2/Each3/Each4 helpers below can.
type Term interface {
	termMask() mask
	termBound() int
	at(i uint32) any
	// storeIdentity returns a value unique to the underlying storage, used
	// to enforce the "at most one mutable accessor per storage" safety
	// rule; zero value (nil) for terms (not/maybe/entities) that don't
	// directly own a storage.
	storeIdentity() any
	mutable() bool
}

type readTerm[T any] struct{ store *Store[T] }

// ReadTerm contributes store's occupancy mask and a read-only accessor.
func ReadTerm[T any](store *Store[T]) Term { return readTerm[T]{store} }

func (t readTerm[T]) termMask() mask    { return t.store.Mask() }
func (t readTerm[T]) termBound() int    { return t.store.Mask().bound() }
func (t readTerm[T]) storeIdentity() any { return t.store }
func (t readTerm[T]) mutable() bool     { return false }
func (t readTerm[T]) at(i uint32) any {
	v, _ := t.store.Get(i)
	return v
}

type writeTerm[T any] struct{ store *Store[T] }

// WriteTerm contributes store's occupancy mask and a mutable accessor.
// Mutating the returned *T through a join bypasses change tracking; use
// FlaggedWriteTerm to join a FlaggedStore with Modified emitted on every
// visited index (spec.md §4.5/§4.7).
func WriteTerm[T any](store *Store[T]) Term { return writeTerm[T]{store} }

func (t writeTerm[T]) termMask() mask    { return t.store.Mask() }
func (t writeTerm[T]) termBound() int    { return t.store.Mask().bound() }
func (t writeTerm[T]) storeIdentity() any { return t.store }
func (t writeTerm[T]) mutable() bool     { return true }
func (t writeTerm[T]) at(i uint32) any {
	v, _ := t.store.Get(i)
	return v
}

type notTerm struct{ inner Term }

// NotTerm contributes the complement of inner's mask and a unit accessor
// (spec.md §4.4: "not(view) contributes the complement mask and a unit
// accessor").
func NotTerm(inner Term) Term { return notTerm{inner} }

func (t notTerm) termMask() mask     { return Not(t.inner.termMask()) }
func (t notTerm) termBound() int     { return unboundedLayer0Words }
func (t notTerm) storeIdentity() any { return nil }
func (t notTerm) mutable() bool      { return false }
func (t notTerm) at(uint32) any      { return struct{}{} }

type allOnesMask struct{}

func (allOnesMask) layer0Word(int) uint64 { return ^uint64(0) }
func (allOnesMask) layer1Word(int) uint64 { return ^uint64(0) }
func (allOnesMask) layer2Word(int) uint64 { return ^uint64(0) }
func (allOnesMask) layer3Word(int) uint64 { return ^uint64(0) }
func (allOnesMask) Contains(uint32) bool  { return true }
func (allOnesMask) bound() int            { return unboundedLayer0Words }

var _ mask = allOnesMask{}

type maybeTerm[T any] struct{ store *Store[T] }

// MaybeTerm contributes an all-ones mask (spec.md §4.4) and an accessor
// returning a Maybe[T]: {Value: *T, Present: true} when the entity holds
// the component, or {Value: nil, Present: false} otherwise. A maybe term never narrows a join's iteration set by
// itself — pair it with at least one concrete term or an entities term.
func MaybeTerm[T any](store *Store[T]) Term { return maybeTerm[T]{store} }

func (t maybeTerm[T]) termMask() mask    { return allOnesMask{} }
func (t maybeTerm[T]) termBound() int    { return unboundedLayer0Words }
func (t maybeTerm[T]) storeIdentity() any { return nil }
func (t maybeTerm[T]) mutable() bool     { return false }
func (t maybeTerm[T]) at(i uint32) any {
	v, ok := t.store.Get(i)
	return Maybe[T]{Value: v, Present: ok}
}

// Maybe is the value maybeTerm hands back: the component if present, or a
// zero Maybe otherwise.
type Maybe[T any] struct {
	Value   *T
	Present bool
}

type entitiesTerm struct{ alloc *Allocator }

// EntitiesTerm contributes the allocator's alive|raised mask and an
// accessor reconstructing the full Entity handle (spec.md §4.4).
func EntitiesTerm(alloc *Allocator) Term { return entitiesTerm{alloc} }

func (t entitiesTerm) termMask() mask    { return t.alloc.AliveMask() }
func (t entitiesTerm) termBound() int    { return t.alloc.Bound() }
func (t entitiesTerm) storeIdentity() any { return nil }
func (t entitiesTerm) mutable() bool     { return false }
func (t entitiesTerm) at(i uint32) any   { return t.alloc.entityAt(i) }

// Join is a validated, ready-to-iterate conjunction of terms.
type Join struct {
	terms []Term
	m     mask
	bound int
}

// NewJoin validates and assembles terms into an iterable Join. It enforces
// the safety rule from spec.md §4.4: a storage with a mutable accessor in
// the join has no other accessor in it (neither a second mutable one nor a
// read-only one), and at least one term must contribute a concrete bound (a join
// made up entirely of not/maybe terms, with no entities term, is rejected).
func NewJoin(terms ...Term) (*Join, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("ecs: join requires at least one term")
	}

	seen := make(map[any]bool) // storage identity -> a mutable term already uses it
	for _, t := range terms {
		id := t.storeIdentity()
		if id == nil {
			continue
		}
		mut, ok := seen[id]
		if ok && (mut || t.mutable()) {
			return nil, fmt.Errorf("ecs: join has a mutable accessor sharing its storage with another term")
		}
		seen[id] = mut || t.mutable()
	}

	m := terms[0].termMask()
	bound := terms[0].termBound()
	for _, t := range terms[1:] {
		m = And(m, t.termMask())
		bound = minBound(bound, t.termBound())
	}
	if bound == unboundedLayer0Words {
		return nil, fmt.Errorf("ecs: join has no bounded term; add an entities term or a concrete storage term")
	}

	return &Join{terms: terms, m: m, bound: bound}, nil
}

// ForEach walks the join's conjunction in ascending index order, invoking
// fn with the matching index and one value per term, in term order. fn's
// values are only valid for the duration of the call, since they may alias
// the underlying storages and deletions between calls can invalidate them.
func (j *Join) ForEach(fn func(i uint32, values []any) bool) {
	values := make([]any, len(j.terms))
	ForEach(j.m, j.bound, func(i uint32) bool {
		for k, t := range j.terms {
			values[k] = t.at(i)
		}
		return fn(i, values)
	})
}

// Each1 iterates a single store, yielding every (index, value) pair in
// ascending order.
func Each1[A any](sa *Store[A], fn func(i uint32, a *A) bool) {
	ForEach(sa.Mask(), sa.Mask().bound(), func(i uint32) bool {
		av, _ := sa.Get(i)
		return fn(i, av)
	})
}

// Each2 joins two stores. Grounded on the teacher's Each2
// (internal/core/ecs/query.go), generalized from map-range iteration with a
// per-index presence check on the second store to a BitSet conjunction
// with layer-based skipping.
func Each2[A, B any](sa *Store[A], sb *Store[B], fn func(i uint32, a *A, b *B) bool) {
	m := And(sa.Mask(), sb.Mask())
	bound := minBound(sa.Mask().bound(), sb.Mask().bound())
	ForEach(m, bound, func(i uint32) bool {
		av, _ := sa.Get(i)
		bv, _ := sb.Get(i)
		return fn(i, av, bv)
	})
}

// Each3 joins three stores, per Each2.
func Each3[A, B, C any](sa *Store[A], sb *Store[B], sc *Store[C], fn func(i uint32, a *A, b *B, c *C) bool) {
	m := And(And(sa.Mask(), sb.Mask()), sc.Mask())
	bound := minBound(minBound(sa.Mask().bound(), sb.Mask().bound()), sc.Mask().bound())
	ForEach(m, bound, func(i uint32) bool {
		av, _ := sa.Get(i)
		bv, _ := sb.Get(i)
		cv, _ := sc.Get(i)
		return fn(i, av, bv, cv)
	})
}

// Each4 joins four stores, per Each2.
func Each4[A, B, C, D any](sa *Store[A], sb *Store[B], sc *Store[C], sd *Store[D], fn func(i uint32, a *A, b *B, c *C, d *D) bool) {
	m := And(And(sa.Mask(), sb.Mask()), And(sc.Mask(), sd.Mask()))
	bound := minBound(minBound(sa.Mask().bound(), sb.Mask().bound()), minBound(sc.Mask().bound(), sd.Mask().bound()))
	ForEach(m, bound, func(i uint32) bool {
		av, _ := sa.Get(i)
		bv, _ := sb.Get(i)
		cv, _ := sc.Get(i)
		dv, _ := sd.Get(i)
		return fn(i, av, bv, cv, dv)
	})
}
