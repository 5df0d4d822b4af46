package ecs

import "testing"

func collect(m mask, bound int) []uint32 {
	var out []uint32
	ForEach(m, bound, func(i uint32) bool {
		out = append(out, i)
		return true
	})
	return out
}

func sliceEq(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBitSetAddContainsRemove(t *testing.T) {
	b := NewBitSet()
	for _, i := range []uint32{0, 1, 63, 64, 65, 4095, 4096, 300000} {
		b.Add(i)
	}
	for _, i := range []uint32{0, 1, 63, 64, 65, 4095, 4096, 300000} {
		if !b.Contains(i) {
			t.Fatalf("expected %d to be contained", i)
		}
	}
	if b.Contains(2) {
		t.Fatalf("expected 2 to be absent")
	}
	b.Remove(64)
	if b.Contains(64) {
		t.Fatalf("expected 64 removed")
	}
	if !b.Contains(65) {
		t.Fatalf("sibling bit 65 should survive removal of 64")
	}
}

func TestBitSetIterationOrderAndSkip(t *testing.T) {
	b := NewBitSet()
	want := []uint32{3, 70, 5000, 70000}
	for _, i := range want {
		b.Add(i)
	}
	got := collect(b, b.bound())
	if !sliceEq(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBitSetEmptyIterationTerminates(t *testing.T) {
	b := NewBitSet()
	n := 0
	b.ForEach(func(uint32) bool { n++; return true })
	if n != 0 {
		t.Fatalf("expected zero iterations on empty bitset, got %d", n)
	}
}

func TestAndOrXorNot(t *testing.T) {
	a := NewBitSet()
	b := NewBitSet()
	for _, i := range []uint32{1, 2, 3, 200} {
		a.Add(i)
	}
	for _, i := range []uint32{2, 3, 4, 200} {
		b.Add(i)
	}

	and := And(a, b)
	if got := collect(and, minBound(a.bound(), b.bound())); !sliceEq(got, []uint32{2, 3, 200}) {
		t.Fatalf("and: got %v", got)
	}

	or := Or(a, b)
	if got := collect(or, maxBound(a.bound(), b.bound())); !sliceEq(got, []uint32{1, 2, 3, 4, 200}) {
		t.Fatalf("or: got %v", got)
	}

	xor := Xor(a, b)
	if got := collect(xor, maxBound(a.bound(), b.bound())); !sliceEq(got, []uint32{1, 4}) {
		t.Fatalf("xor: got %v", got)
	}

	not := Not(a)
	if not.Contains(1) {
		t.Fatalf("not(a) should not contain 1")
	}
	if !not.Contains(5) {
		t.Fatalf("not(a) should contain 5")
	}
	if not.bound() != unboundedLayer0Words {
		t.Fatalf("not mask should be unbounded")
	}
}
