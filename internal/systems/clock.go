package systems

import (
	"github.com/forgelabs/ecsframe/dispatch"
	"github.com/forgelabs/ecsframe/ecs"
	"github.com/forgelabs/ecsframe/internal/components"
)

// ClockSystem advances the shared Clock resource by one tick. It writes
// Clock, so the dispatcher's implicit conflict edge places it before
// every other system in this package that reads Clock within the same
// Dispatch call, per spec.md §4.7's insertion-order tie-break — register
// it first when building the Dispatcher.
type ClockSystem struct{}

var _ dispatch.System = ClockSystem{}

func (ClockSystem) Reservations() []dispatch.Reservation {
	return dispatch.Writes((*components.Clock)(nil))
}

func (ClockSystem) Setup(w *ecs.World) {
	ecs.RegisterDefault(w.Resources(), func() components.Clock { return components.Clock{} })
}

func (ClockSystem) Run(w *ecs.World) {
	clock, release := ecs.Write[components.Clock](w.Resources())
	clock.Tick++
	release()
}
