package ecs

import "testing"

type velocity struct{ DX, DY float64 }
type frozen struct{}

func TestEach2JoinsIntersection(t *testing.T) {
	pos := NewSparseStore[position]()
	vel := NewSparseStore[velocity]()
	pos.Insert(1, position{1, 1})
	pos.Insert(2, position{2, 2})
	vel.Insert(2, velocity{1, 0})
	vel.Insert(3, velocity{1, 0})

	var got []uint32
	Each2(pos, vel, func(i uint32, p *position, v *velocity) bool {
		got = append(got, i)
		return true
	})
	if !sliceEq(got, []uint32{2}) {
		t.Fatalf("expected only entity 2 in the intersection, got %v", got)
	}
}

func TestEach2EmptyJoinTerminates(t *testing.T) {
	pos := NewSparseStore[position]()
	vel := NewSparseStore[velocity]()
	n := 0
	Each2(pos, vel, func(uint32, *position, *velocity) bool { n++; return true })
	if n != 0 {
		t.Fatalf("expected zero iterations on an empty join, got %d", n)
	}
}

func TestJoinWithNotTermExcludes(t *testing.T) {
	pos := NewSparseStore[position]()
	frz := NewNullStore[frozen]()
	pos.Insert(1, position{1, 1})
	pos.Insert(2, position{2, 2})
	frz.Insert(2, frozen{})

	j, err := NewJoin(ReadTerm(pos), NotTerm(ReadTerm(frz)))
	if err != nil {
		t.Fatalf("NewJoin: %v", err)
	}
	var got []uint32
	j.ForEach(func(i uint32, values []any) bool {
		got = append(got, i)
		return true
	})
	if !sliceEq(got, []uint32{1}) {
		t.Fatalf("expected only non-frozen entity 1, got %v", got)
	}
}

func TestJoinWithMaybeTermRequiresBoundedSibling(t *testing.T) {
	pos := NewSparseStore[position]()
	vel := NewSparseStore[velocity]()
	pos.Insert(1, position{1, 1})
	vel.Insert(1, velocity{5, 5})
	pos.Insert(2, position{2, 2})

	j, err := NewJoin(ReadTerm(pos), MaybeTerm(vel))
	if err != nil {
		t.Fatalf("NewJoin: %v", err)
	}
	results := map[uint32]bool{}
	j.ForEach(func(i uint32, values []any) bool {
		m := values[1].(Maybe[velocity])
		results[i] = m.Present
		return true
	})
	if results[1] != true || results[2] != false {
		t.Fatalf("unexpected maybe presence map: %v", results)
	}
}

func TestJoinAllMaybeWithoutEntitiesFails(t *testing.T) {
	vel := NewSparseStore[velocity]()
	_, err := NewJoin(MaybeTerm(vel))
	if err == nil {
		t.Fatalf("expected an error for an unbounded join with no entities term")
	}
}

func TestJoinWithEntitiesTermBoundsMaybeOnly(t *testing.T) {
	alloc := NewAllocator()
	vel := NewSparseStore[velocity]()
	e1 := alloc.Create()
	alloc.Create()
	vel.Insert(e1.Index, velocity{1, 1})

	j, err := NewJoin(EntitiesTerm(alloc), MaybeTerm(vel))
	if err != nil {
		t.Fatalf("NewJoin: %v", err)
	}
	n := 0
	j.ForEach(func(uint32, []any) bool { n++; return true })
	if n != 2 {
		t.Fatalf("expected both entities to be visited, got %d", n)
	}
}

func TestJoinRejectsDoubleMutableAccessor(t *testing.T) {
	pos := NewSparseStore[position]()
	_, err := NewJoin(WriteTerm(pos), WriteTerm(pos))
	if err == nil {
		t.Fatalf("expected an error for two mutable accessors on the same storage")
	}
}

func TestEach3JoinsIntersection(t *testing.T) {
	a := NewSparseStore[position]()
	b := NewSparseStore[velocity]()
	c := NewDenseStore[frozen]()
	for _, i := range []uint32{1, 2, 3} {
		a.Insert(i, position{})
		b.Insert(i, velocity{})
	}
	c.Insert(2, frozen{})

	var got []uint32
	Each3(a, b, c, func(i uint32, _ *position, _ *velocity, _ *frozen) bool {
		got = append(got, i)
		return true
	})
	if !sliceEq(got, []uint32{2}) {
		t.Fatalf("expected only entity 2, got %v", got)
	}
}
