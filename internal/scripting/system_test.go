package scripting

import (
	"path/filepath"
	"testing"

	"github.com/forgelabs/ecsframe/ecs"
	"go.uber.org/zap"
)

func TestScriptedSystemDrivesEntitiesWithScript(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "tick.lua", `
function tick(vars)
  vars.hp = vars.hp - 1
  return vars
end
`)
	engine, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	w := ecs.NewWorld()
	sys := &ScriptedSystem{Engine: engine}
	sys.Setup(w)

	e1 := w.CreateEntity()
	ecs.ComponentStore[Script](w).Insert(e1.Index, Script{Func: "tick"})
	ecs.ComponentStore[Blackboard](w).Insert(e1.Index, Blackboard{Vars: map[string]float64{"hp": 10}})

	e2 := w.CreateEntity() // no Script component — must be skipped
	ecs.ComponentStore[Blackboard](w).Insert(e2.Index, Blackboard{Vars: map[string]float64{"hp": 99}})

	sys.Run(w)

	board, _ := ecs.ComponentStore[Blackboard](w).Get(e1.Index)
	if board.Vars["hp"] != 9 {
		t.Fatalf("expected scripted entity's hp to decrement to 9, got %v", board.Vars["hp"])
	}
	board2, _ := ecs.ComponentStore[Blackboard](w).Get(e2.Index)
	if board2.Vars["hp"] != 99 {
		t.Fatalf("expected unscripted entity to be left untouched, got %v", board2.Vars["hp"])
	}
}

func TestScriptedSystemReservationsDeclareReadWrite(t *testing.T) {
	engine, err := NewEngine(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	sys := &ScriptedSystem{Engine: engine}
	reserves := sys.Reservations()
	if len(reserves) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(reserves))
	}
}
