package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
}

func TestEngineLoadsDirAndCallsEntity(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "wander.lua", `
function wander(vars)
  vars.x = vars.x + 1
  return vars
end
`)
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if !e.HasFunction("wander") {
		t.Fatalf("expected wander to be loaded")
	}

	out, ok := e.CallEntity("wander", map[string]float64{"x": 4})
	if !ok {
		t.Fatalf("expected CallEntity to succeed")
	}
	if out["x"] != 5 {
		t.Fatalf("expected x=5, got %v", out["x"])
	}
}

func TestEngineMissingDirIsNotAnError(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	if err != nil {
		t.Fatalf("expected missing scripts dir to be tolerated, got %v", err)
	}
	defer e.Close()
}

func TestCallEntityMissingFunctionReturnsInputUnchanged(t *testing.T) {
	e, err := NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	in := map[string]float64{"hp": 10}
	out, ok := e.CallEntity("nope", in)
	if ok {
		t.Fatalf("expected ok=false for a missing function")
	}
	if out["hp"] != 10 {
		t.Fatalf("expected unchanged input on failure, got %v", out)
	}
}
