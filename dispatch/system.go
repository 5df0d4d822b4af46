package dispatch

import (
	"reflect"

	"github.com/forgelabs/ecsframe/ecs"
)

// AccessMode is a reservation's read/write mode.
type AccessMode int

const (
	Read AccessMode = iota
	Write
)

// Reservation is one (type, mode) pair a System declares statically: a
// component type or a resource type, and whether the system reads or
// writes it. Grounded on spec.md §4.7's "reservation set — a list of
// (resource-or-component-type-id, mode) pairs".
type Reservation struct {
	Type reflect.Type
	Mode AccessMode
}

// Reads builds a Reservation slice from a list of values' types, each
// declared as a read. Pass a nil pointer of the component or resource type,
// e.g. Reads((*Position)(nil), (*Health)(nil)).
func Reads(samples ...any) []Reservation { return reservations(Read, samples) }

// Writes builds a Reservation slice declared as writes.
func Writes(samples ...any) []Reservation { return reservations(Write, samples) }

func reservations(mode AccessMode, samples []any) []Reservation {
	out := make([]Reservation, len(samples))
	for i, s := range samples {
		out[i] = Reservation{Type: reflect.TypeOf(s).Elem(), Mode: mode}
	}
	return out
}

// System is one schedulable unit of work. Setup runs once, in insertion
// order, before the first Dispatch; Run executes once per tick when the
// system becomes runnable. Reservations must be stable across calls — the
// dispatcher computes the DAG once at Build time from whatever
// Reservations returns then.
//
// Grounded on the teacher's System interface (internal/core/system/system.go,
// Phase()/Update(dt)), generalized from a fixed Phase enum to an explicit
// reservation set plus dependency-graph placement.
type System interface {
	Reservations() []Reservation
	Setup(w *ecs.World)
	Run(w *ecs.World)
}

// Named wraps any function pair into a System without requiring a new
// type, for small or demo systems. Grounded on the same convenience the
// teacher's scripting engine hooks (internal/scripting/engine.go) expose
// for wiring a closure in as callable behavior.
type Named struct {
	NameValue  string
	Reserves   []Reservation
	SetupFunc  func(w *ecs.World)
	RunFunc    func(w *ecs.World)
}

func (n *Named) Reservations() []Reservation { return n.Reserves }
func (n *Named) Setup(w *ecs.World) {
	if n.SetupFunc != nil {
		n.SetupFunc(w)
	}
}
func (n *Named) Run(w *ecs.World) {
	if n.RunFunc != nil {
		n.RunFunc(w)
	}
}
