package ecs

import "sort"

// Entry is one (index, value) pair yielded by Drain.
type Entry[T any] struct {
	Index uint32
	Value T
}

// backend is the unprotected, unmasked contract every storage variant
// implements. Store wraps a backend with the occupancy BitSet that makes
// insert/get/remove safe and drives iteration.
type backend[T any] interface {
	get(id uint32) (*T, bool)
	set(id uint32, v T) (old T, existed bool)
	delete(id uint32) (T, bool)
	drain(fn func(id uint32, v T))
	asSlice() ([]T, bool)
}

// AnyStore is the type-erased view the resource-less, Entity-indexed
// component registry uses to cascade a deletion into every registered
// storage without knowing its component type. Grounded on the teacher's
// component.Removable (internal/core/ecs/component.go).
type AnyStore interface {
	Mask() *BitSet
	RemoveIndex(i uint32) bool
}

// Store is a component storage: an occupancy BitSet plus a backend that
// actually holds the values. The six variants named in spec.md §4.2 all
// produce a *Store[T], differing only in which backend they wrap.
//
// Invariant maintained by every operation below: Mask().Contains(i) iff the
// backend holds a value at i (spec.md §4.2).
type Store[T any] struct {
	mask    *BitSet
	backend backend[T]
}

func newStore[T any](b backend[T]) *Store[T] {
	return &Store[T]{mask: NewBitSet(), backend: b}
}

// Mask returns the storage's occupancy bitset.
func (s *Store[T]) Mask() *BitSet { return s.mask }

// Insert writes v at index i, returning the previous value if the slot was
// occupied. The slot is always left either fully populated or (on a panic
// from a user Drop-equivalent — Go has none, so this reduces to "never") is
// unreachable half-written: the mask bit is set only after the backend
// write succeeds.
func (s *Store[T]) Insert(i uint32, v T) (old T, existed bool) {
	existed = s.mask.Contains(i)
	old, _ = s.backend.set(i, v)
	s.mask.Add(i)
	return old, existed
}

// Remove deletes the value at index i, if any.
func (s *Store[T]) Remove(i uint32) (T, bool) {
	if !s.mask.Contains(i) {
		var zero T
		return zero, false
	}
	v, ok := s.backend.delete(i)
	s.mask.Remove(i)
	return v, ok
}

// RemoveIndex implements AnyStore for entity-deletion cascades; it discards
// the removed value.
func (s *Store[T]) RemoveIndex(i uint32) bool {
	_, ok := s.Remove(i)
	return ok
}

// Get returns a pointer to the value at index i, or (nil, false).
func (s *Store[T]) Get(i uint32) (*T, bool) {
	if !s.mask.Contains(i) {
		return nil, false
	}
	return s.backend.get(i)
}

// Drain removes and returns every (index, value) pair, in ascending index
// order, emptying the storage.
func (s *Store[T]) Drain() []Entry[T] {
	var out []Entry[T]
	s.mask.ForEach(func(i uint32) bool {
		v, _ := s.backend.get(i)
		out = append(out, Entry[T]{Index: i, Value: *v})
		return true
	})
	s.backend.drain(func(uint32, T) {})
	*s.mask = BitSet{}
	return out
}

// AsSlice exposes the backend's bulk slice accessor, when the variant
// supports one (dense-vec, sparse-vec, default-vec per spec.md §4.2); ok is
// false for hashmap, null, and btree backings.
func (s *Store[T]) AsSlice() ([]T, bool) { return s.backend.asSlice() }

var _ AnyStore = (*Store[any])(nil)

// --- dense-vec -------------------------------------------------------------

// denseBackend keeps values in a packed slice with an entity-index ->
// data-index redirection table, so the data slice never has holes; removal
// swap-removes the last element into the vacated slot. Bulk-accessor
// indices are therefore opaque and not comparable across storages, per
// spec.md §4.2.
//
// Grounded on the teacher's map-backed PtrComponentStore[T]
// (internal/core/ecs/component.go), generalized to the upstream library's
// DenseVecStorage redirection-table design described in
// original_source/src/storage/storages.rs.
type denseBackend[T any] struct {
	data      []T
	entityID  []uint32 // data index -> entity index
	dataIndex map[uint32]int
}

func newDenseBackend[T any]() *denseBackend[T] {
	return &denseBackend[T]{dataIndex: make(map[uint32]int)}
}

func (d *denseBackend[T]) get(id uint32) (*T, bool) {
	di, ok := d.dataIndex[id]
	if !ok {
		return nil, false
	}
	return &d.data[di], true
}

func (d *denseBackend[T]) set(id uint32, v T) (T, bool) {
	if di, ok := d.dataIndex[id]; ok {
		old := d.data[di]
		d.data[di] = v
		return old, true
	}
	d.dataIndex[id] = len(d.data)
	d.data = append(d.data, v)
	d.entityID = append(d.entityID, id)
	var zero T
	return zero, false
}

func (d *denseBackend[T]) delete(id uint32) (T, bool) {
	di, ok := d.dataIndex[id]
	if !ok {
		var zero T
		return zero, false
	}
	removed := d.data[di]
	last := len(d.data) - 1
	if di != last {
		d.data[di] = d.data[last]
		d.entityID[di] = d.entityID[last]
		d.dataIndex[d.entityID[di]] = di
	}
	d.data = d.data[:last]
	d.entityID = d.entityID[:last]
	delete(d.dataIndex, id)
	return removed, true
}

func (d *denseBackend[T]) drain(fn func(id uint32, v T)) {
	for di, id := range d.entityID {
		fn(id, d.data[di])
	}
	d.data = nil
	d.entityID = nil
	d.dataIndex = make(map[uint32]int)
}

func (d *denseBackend[T]) asSlice() ([]T, bool) { return d.data, true }

// NewDenseStore returns an empty dense-vec component storage.
func NewDenseStore[T any]() *Store[T] { return newStore[T](newDenseBackend[T]()) }

// --- sparse-vec -------------------------------------------------------------

// sparseBackend indexes directly by entity index, leaving unoccupied slots
// holding T's zero value; the mask, not the backend, is authoritative on
// occupancy. Mirrors the upstream library's VecStorage/MaybeUninit slice,
// minus the uninitialized-memory trick Go has no use for.
type sparseBackend[T any] struct {
	data []T
}

func newSparseBackend[T any]() *sparseBackend[T] { return &sparseBackend[T]{} }

func (s *sparseBackend[T]) growTo(id uint32) {
	if int(id) < len(s.data) {
		return
	}
	s.data = append(s.data, make([]T, int(id)+1-len(s.data))...)
}

func (s *sparseBackend[T]) get(id uint32) (*T, bool) {
	if int(id) >= len(s.data) {
		return nil, false
	}
	return &s.data[id], true
}

func (s *sparseBackend[T]) set(id uint32, v T) (T, bool) {
	s.growTo(id)
	old := s.data[id]
	s.data[id] = v
	return old, false
}

func (s *sparseBackend[T]) delete(id uint32) (T, bool) {
	if int(id) >= len(s.data) {
		var zero T
		return zero, false
	}
	v := s.data[id]
	var zero T
	s.data[id] = zero
	return v, true
}

func (s *sparseBackend[T]) drain(fn func(id uint32, v T)) {
	for i, v := range s.data {
		fn(uint32(i), v)
	}
	s.data = nil
}

func (s *sparseBackend[T]) asSlice() ([]T, bool) { return s.data, true }

// NewSparseStore returns an empty sparse-vec component storage, indexed
// directly by entity index.
func NewSparseStore[T any]() *Store[T] { return newStore[T](newSparseBackend[T]()) }

// --- default-vec ------------------------------------------------------------

// defaultBackend is representationally identical to sparseBackend in Go
// (every slice slot is already zero-initialized); the distinction spec.md
// §4.2 draws — "default-vec" explicitly fills holes with T's default value
// rather than leaving them uninitialized — is a contract spec.md upstream
// expresses in Rust's type system (MaybeUninit vs Default) that Go's
// zero-value guarantee makes automatic. Kept as a distinct named variant so
// callers can document intent and so the bulk accessor's stated contract
// ("&[T]`, every slot readable") matches spec.md exactly, unlike
// sparse-vec's "every slot may be garbage" contract.
type defaultBackend[T any] struct {
	sparseBackend[T]
}

func newDefaultBackend[T any]() *defaultBackend[T] { return &defaultBackend[T]{} }

// NewDefaultStore returns an empty default-vec component storage.
func NewDefaultStore[T any]() *Store[T] { return newStore[T](newDefaultBackend[T]()) }

// --- hashmap -----------------------------------------------------------------

// hashmapBackend is best suited to rare components, per spec.md §4.2 and
// the upstream HashMapStorage doc comment. Grounded directly on the
// teacher's PtrComponentStore[T] (internal/core/ecs/component.go), which
// stores map[EntityID]*T for exactly the same reason: a Go map's values
// aren't addressable, so get_mut needs a stable pointer behind the map
// rather than a copy that mutations would silently be lost into.
type hashmapBackend[T any] struct {
	data map[uint32]*T
}

func newHashmapBackend[T any]() *hashmapBackend[T] {
	return &hashmapBackend[T]{data: make(map[uint32]*T)}
}

func (h *hashmapBackend[T]) get(id uint32) (*T, bool) {
	v, ok := h.data[id]
	return v, ok
}

func (h *hashmapBackend[T]) set(id uint32, v T) (T, bool) {
	old, existed := h.data[id]
	cp := v
	h.data[id] = &cp
	if !existed {
		var zero T
		return zero, false
	}
	return *old, true
}

func (h *hashmapBackend[T]) delete(id uint32) (T, bool) {
	v, ok := h.data[id]
	if !ok {
		var zero T
		return zero, false
	}
	delete(h.data, id)
	return *v, true
}

func (h *hashmapBackend[T]) drain(fn func(id uint32, v T)) {
	for id, v := range h.data {
		fn(id, *v)
	}
	h.data = make(map[uint32]*T)
}

func (h *hashmapBackend[T]) asSlice() ([]T, bool) { return nil, false }

// NewHashMapStore returns an empty hashmap-backed component storage.
func NewHashMapStore[T any]() *Store[T] { return newStore[T](newHashmapBackend[T]()) }

// --- null --------------------------------------------------------------------

// nullBackend backs a zero-sized tag component: insert only ever touches
// the mask, and get returns a pointer to one shared zero value, per the
// "null storage constraint" in spec.md §4.2.
type nullBackend[T any] struct {
	zero T
}

func newNullBackend[T any]() *nullBackend[T] { return &nullBackend[T]{} }

func (n *nullBackend[T]) get(uint32) (*T, bool)        { return &n.zero, true }
func (n *nullBackend[T]) set(uint32, T) (T, bool)      { return n.zero, false }
func (n *nullBackend[T]) delete(uint32) (T, bool)      { return n.zero, true }
func (n *nullBackend[T]) asSlice() ([]T, bool)         { return nil, false }
func (n *nullBackend[T]) drain(fn func(uint32, T)) {} // mask drives Store.Drain; nothing to walk here

// NewNullStore returns an empty null (tag) component storage. T should be
// an empty struct; the backend never writes a caller-supplied value.
func NewNullStore[T any]() *Store[T] { return newStore[T](newNullBackend[T]()) }

// --- btree -------------------------------------------------------------------

// btreeBackend keeps entries in a binary-search-maintained sorted slice of
// keys alongside a map for O(1) lookup, so the backend's own walk is in
// ascending-index order. No B-tree
// library appears anywhere in the retrieved example pack (see DESIGN.md);
// this is the stdlib stand-in spec.md's btree variant calls for.
type btreeBackend[T any] struct {
	data map[uint32]*T
	keys []uint32 // kept sorted
}

func newBtreeBackend[T any]() *btreeBackend[T] {
	return &btreeBackend[T]{data: make(map[uint32]*T)}
}

func (b *btreeBackend[T]) search(id uint32) int {
	return sort.Search(len(b.keys), func(i int) bool { return b.keys[i] >= id })
}

func (b *btreeBackend[T]) get(id uint32) (*T, bool) {
	v, ok := b.data[id]
	return v, ok
}

func (b *btreeBackend[T]) set(id uint32, v T) (T, bool) {
	old, existed := b.data[id]
	cp := v
	b.data[id] = &cp
	if !existed {
		pos := b.search(id)
		b.keys = append(b.keys, 0)
		copy(b.keys[pos+1:], b.keys[pos:])
		b.keys[pos] = id
		var zero T
		return zero, false
	}
	return *old, true
}

func (b *btreeBackend[T]) delete(id uint32) (T, bool) {
	v, ok := b.data[id]
	if !ok {
		var zero T
		return zero, false
	}
	delete(b.data, id)
	pos := b.search(id)
	b.keys = append(b.keys[:pos], b.keys[pos+1:]...)
	return *v, true
}

func (b *btreeBackend[T]) drain(fn func(id uint32, v T)) {
	for _, id := range b.keys {
		fn(id, *b.data[id])
	}
	b.data = make(map[uint32]*T)
	b.keys = nil
}

func (b *btreeBackend[T]) asSlice() ([]T, bool) { return nil, false }

// NewBTreeStore returns an empty btree-backed component storage, whose
// Drain visits entries in ascending entity-index order.
func NewBTreeStore[T any]() *Store[T] { return newStore[T](newBtreeBackend[T]()) }
