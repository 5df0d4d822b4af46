package ecs

import "testing"

type tickCount struct{ N int }
type debugFlag struct{ On bool }

func TestResourceRegistryInsertReadWrite(t *testing.T) {
	reg := NewResourceRegistry()
	InsertResource(reg, tickCount{N: 1})

	v, release := Read[tickCount](reg)
	if v.N != 1 {
		t.Fatalf("expected 1, got %d", v.N)
	}
	release()

	w, release2 := Write[tickCount](reg)
	w.N = 2
	release2()

	v2, release3 := Read[tickCount](reg)
	if v2.N != 2 {
		t.Fatalf("expected write to persist, got %d", v2.N)
	}
	release3()
}

func TestResourceRegistryReadPanicsWhenAbsent(t *testing.T) {
	reg := NewResourceRegistry()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Read of an absent resource with no default to panic")
		}
	}()
	Read[tickCount](reg)
}

func TestResourceRegistryReadOptionalAbsent(t *testing.T) {
	reg := NewResourceRegistry()
	v, release, ok := ReadOptional[tickCount](reg)
	if ok || v != nil || release != nil {
		t.Fatalf("expected absent optional read to report false, got %v %v %v", v, release != nil, ok)
	}
}

func TestResourceRegistryWritePanicsWhileReadHeld(t *testing.T) {
	reg := NewResourceRegistry()
	InsertResource(reg, tickCount{N: 1})
	_, release := Read[tickCount](reg)
	defer release()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Write to panic while a read reservation is active")
		}
	}()
	Write[tickCount](reg)
}

func TestResourceRegistryReadPanicsWhileWriteHeld(t *testing.T) {
	reg := NewResourceRegistry()
	InsertResource(reg, tickCount{N: 1})
	_, release := Write[tickCount](reg)
	defer release()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Read to panic while a write reservation is active")
		}
	}()
	Read[tickCount](reg)
}

func TestResourceRegistryDefaultConstructorFiresOnFirstReference(t *testing.T) {
	reg := NewResourceRegistry()
	if Has[debugFlag](reg) {
		t.Fatalf("resource should not be present before any reference")
	}
	RegisterDefault(reg, func() debugFlag { return debugFlag{On: true} })

	v, release := Read[debugFlag](reg)
	if !v.On {
		t.Fatalf("expected default-constructed value to have On=true")
	}
	release()
	if !Has[debugFlag](reg) {
		t.Fatalf("resource should be present after the default fires")
	}
}

func TestResourceRegistryRemove(t *testing.T) {
	reg := NewResourceRegistry()
	InsertResource(reg, tickCount{N: 7})
	v, ok := RemoveResource[tickCount](reg)
	if !ok || v.N != 7 {
		t.Fatalf("got %v, %v", v, ok)
	}
	if Has[tickCount](reg) {
		t.Fatalf("resource should be gone after remove")
	}
}
