package systems

import (
	"github.com/forgelabs/ecsframe/dispatch"
	"github.com/forgelabs/ecsframe/ecs"
	"github.com/forgelabs/ecsframe/internal/components"
)

// MovementSystem advances every entity with both a Position and a
// Velocity by one tick's displacement. Grounded on the teacher's
// RegenSystem (internal/system/regen.go) for the System/Phase shape,
// generalized from the teacher's fixed Phase enum to a declared
// reservation set that lets dispatch.Dispatcher schedule it against any
// other system sharing Position or Velocity.
type MovementSystem struct{}

var _ dispatch.System = MovementSystem{}

func (MovementSystem) Reservations() []dispatch.Reservation {
	return append(
		dispatch.Writes((*components.Position)(nil)),
		dispatch.Reads((*components.Velocity)(nil))...,
	)
}

func (MovementSystem) Setup(w *ecs.World) {
	ecs.ComponentStoreOrRegisterDense[components.Position](w)
	ecs.ComponentStoreOrRegisterDense[components.Velocity](w)
}

func (MovementSystem) Run(w *ecs.World) {
	positions := ecs.ComponentStore[components.Position](w)
	velocities := ecs.ComponentStore[components.Velocity](w)
	ecs.Each2(positions, velocities, func(i uint32, pos *components.Position, vel *components.Velocity) bool {
		pos.X += vel.DX
		pos.Y += vel.DY
		return true
	})
}
