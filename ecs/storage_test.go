package ecs

import "testing"

type position struct{ X, Y float64 }

func testStoreInsertGetRemove(t *testing.T, name string, s *Store[position]) {
	t.Run(name, func(t *testing.T) {
		if _, existed := s.Insert(5, position{1, 2}); existed {
			t.Fatalf("fresh insert should report no previous value")
		}
		if !s.Mask().Contains(5) {
			t.Fatalf("mask should contain 5 after insert")
		}
		v, ok := s.Get(5)
		if !ok || *v != (position{1, 2}) {
			t.Fatalf("get: got %v, %v", v, ok)
		}

		old, existed := s.Insert(5, position{3, 4})
		if !existed || old != (position{1, 2}) {
			t.Fatalf("overwrite should return previous value, got %v existed=%v", old, existed)
		}

		v, _ = s.Get(5)
		v.X = 99
		v2, _ := s.Get(5)
		if v2.X != 99 {
			t.Fatalf("mutation through Get's pointer should be visible to a later Get, got %v", v2)
		}

		removed, ok := s.Remove(5)
		if !ok || removed.X != 99 {
			t.Fatalf("remove: got %v, %v", removed, ok)
		}
		if s.Mask().Contains(5) {
			t.Fatalf("mask should not contain 5 after remove")
		}
		if _, ok := s.Get(5); ok {
			t.Fatalf("get after remove should fail")
		}
	})
}

func TestStoreVariantsInsertGetRemove(t *testing.T) {
	testStoreInsertGetRemove(t, "dense", NewDenseStore[position]())
	testStoreInsertGetRemove(t, "sparse", NewSparseStore[position]())
	testStoreInsertGetRemove(t, "default", NewDefaultStore[position]())
	testStoreInsertGetRemove(t, "hashmap", NewHashMapStore[position]())
	testStoreInsertGetRemove(t, "btree", NewBTreeStore[position]())
}

func TestDenseStoreSwapRemoveKeepsRedirectionConsistent(t *testing.T) {
	s := NewDenseStore[position]()
	s.Insert(1, position{1, 1})
	s.Insert(2, position{2, 2})
	s.Insert(3, position{3, 3})

	if _, ok := s.Remove(1); !ok {
		t.Fatalf("remove of 1 should succeed")
	}
	for _, id := range []uint32{2, 3} {
		v, ok := s.Get(id)
		if !ok {
			t.Fatalf("entity %d should survive removal of a different entity", id)
		}
		if v.X != float64(id) {
			t.Fatalf("entity %d has wrong value after swap-remove: %v", id, v)
		}
	}
	slice, ok := s.AsSlice()
	if !ok || len(slice) != 2 {
		t.Fatalf("dense slice should have 2 elements after removal, got %v", slice)
	}
}

func TestBTreeStoreDrainIsSortedByIndex(t *testing.T) {
	s := NewBTreeStore[position]()
	for _, id := range []uint32{50, 3, 200, 1} {
		s.Insert(id, position{float64(id), 0})
	}
	entries := s.Drain()
	want := []uint32{1, 3, 50, 200}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Index != want[i] {
			t.Fatalf("entry %d: got index %d, want %d", i, e.Index, want[i])
		}
	}
	if s.Mask().bound() != 0 {
		t.Fatalf("drain should clear the mask")
	}
}

func TestNullStoreTracksOnlyOccupancy(t *testing.T) {
	type tag struct{}
	s := NewNullStore[tag]()
	s.Insert(7, tag{})
	if !s.Mask().Contains(7) {
		t.Fatalf("null store should still track occupancy via the mask")
	}
	if _, ok := s.Get(7); !ok {
		t.Fatalf("get should succeed for an occupied null-store index")
	}
	if _, ok := s.Remove(7); !ok {
		t.Fatalf("remove should succeed")
	}
	if s.Mask().Contains(7) {
		t.Fatalf("mask should clear on remove")
	}
}

func TestAnyStoreRemoveIndexCascade(t *testing.T) {
	var s AnyStore = NewHashMapStore[position]()
	store := s.(*Store[position])
	store.Insert(9, position{1, 1})
	if !s.RemoveIndex(9) {
		t.Fatalf("RemoveIndex should report success for an occupied index")
	}
	if s.RemoveIndex(9) {
		t.Fatalf("RemoveIndex should report failure for an already-empty index")
	}
}

func TestSparseStoreBulkSliceIndexedByEntity(t *testing.T) {
	s := NewSparseStore[position]()
	s.Insert(4, position{4, 4})
	slice, ok := s.AsSlice()
	if !ok || len(slice) != 5 {
		t.Fatalf("sparse slice should be sized to cover index 4, got %v", slice)
	}
	if slice[4] != (position{4, 4}) {
		t.Fatalf("slice[4] should hold the inserted value, got %v", slice[4])
	}
}
