package systems

import (
	"github.com/forgelabs/ecsframe/dispatch"
	"github.com/forgelabs/ecsframe/ecs"
	"github.com/forgelabs/ecsframe/internal/components"
)

// RegenInterval is the number of ticks between regen pulses, modeling the
// teacher's RegenSystem (internal/system/regen.go) turning a 1-second
// Java timer into a tick-count accumulator — here fixed rather than
// level-scaled, since the demo host has no level stat.
const RegenInterval = 5

// RegenAmount is added to Health.Current, capped at Health.Max, every
// RegenInterval ticks.
const RegenAmount = 1.0

// RegenSystem restores Health on every entity that has one, once every
// RegenInterval ticks, reading the shared Clock resource to decide
// whether this tick is a pulse. Grounded on the teacher's RegenSystem
// tick-accumulator idiom, generalized from a per-player HP/MP split to a
// single generic Health component.
type RegenSystem struct{}

var _ dispatch.System = RegenSystem{}

func (RegenSystem) Reservations() []dispatch.Reservation {
	return append(
		dispatch.Writes((*components.Health)(nil)),
		dispatch.Reads((*components.Clock)(nil))...,
	)
}

func (RegenSystem) Setup(w *ecs.World) {
	ecs.ComponentStoreOrRegisterDense[components.Health](w)
	ecs.RegisterDefault(w.Resources(), func() components.Clock { return components.Clock{} })
}

func (RegenSystem) Run(w *ecs.World) {
	clock, release := ecs.Read[components.Clock](w.Resources())
	tick := clock.Tick
	release()

	if tick%RegenInterval != 0 {
		return
	}

	healths := ecs.ComponentStore[components.Health](w)
	ecs.Each1(healths, func(i uint32, h *components.Health) bool {
		h.Current += RegenAmount
		if h.Current > h.Max {
			h.Current = h.Max
		}
		return true
	})
}
