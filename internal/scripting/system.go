package scripting

import (
	"github.com/forgelabs/ecsframe/dispatch"
	"github.com/forgelabs/ecsframe/ecs"
)

// Script names the Lua global function that drives one entity's behavior
// each tick. Entities without a Script component are ignored by
// ScriptedSystem.
type Script struct {
	Func string
}

// Blackboard is the scratch data a script reads and, via its return table,
// writes back each tick — the generic stand-in for the teacher's one
// strongly-typed context struct per formula (CombatContext, AIContext, ...),
// since a generic host can't know a script's fields ahead of time.
type Blackboard struct {
	Vars map[string]float64
}

// ScriptedSystem runs every entity carrying a Script against the Lua
// engine once per tick, feeding it that entity's Blackboard and writing
// back whatever the script returns. Must run thread-local (AddThreadLocal)
// — the wrapped *Engine is a single gopher-lua VM and is not safe for
// concurrent Run calls from sibling parallel-stage systems.
type ScriptedSystem struct {
	Engine *Engine
}

var _ dispatch.System = (*ScriptedSystem)(nil)

func (s *ScriptedSystem) Reservations() []dispatch.Reservation {
	return append(dispatch.Reads((*Script)(nil)), dispatch.Writes((*Blackboard)(nil))...)
}

func (s *ScriptedSystem) Setup(w *ecs.World) {
	ecs.ComponentStoreOrRegisterDense[Script](w)
	ecs.ComponentStoreOrRegisterDense[Blackboard](w)
}

func (s *ScriptedSystem) Run(w *ecs.World) {
	scripts := ecs.ComponentStore[Script](w)
	boards := ecs.ComponentStore[Blackboard](w)
	ecs.Each2(scripts, boards, func(i uint32, script *Script, board *Blackboard) bool {
		if script.Func == "" {
			return true
		}
		out, ok := s.Engine.CallEntity(script.Func, board.Vars)
		if ok {
			board.Vars = out
		}
		return true
	})
}
