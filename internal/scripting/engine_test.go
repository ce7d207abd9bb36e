package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeScript(t *testing.T, dir, sub, name, body string) {
	t.Helper()
	p := filepath.Join(dir, sub)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFallbacksWithoutScripts(t *testing.T) {
	e, err := NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	for i := 0; i < 50; i++ {
		p := e.SpawnBall(SpawnContext{Index: i, Width: 2, Height: 3})
		if p.X < -1 || p.X > 1 || p.Y != 3 || p.Z != 0 {
			t.Fatalf("fallback spawn = %+v", p)
		}
	}
	if got := e.CounterLabel(4); got != "Ball count: 4" {
		t.Fatalf("label = %q", got)
	}
}

func TestScriptHooks(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "core", "util.lua", `function offset(i) return i * 0.5 end`)
	writeScript(t, dir, "scene", "hooks.lua", `
function spawn_ball(ctx)
  return { x = offset(ctx.index), y = ctx.height + 1, z = -1 }
end
function counter_label(n)
  return "caught " .. n
end
`)
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	p := e.SpawnBall(SpawnContext{Index: 3, Width: 2, Height: 3})
	if p != (SpawnPoint{X: 1.5, Y: 4, Z: -1}) {
		t.Fatalf("spawn = %+v", p)
	}
	if got := e.CounterLabel(2); got != "caught 2" {
		t.Fatalf("label = %q", got)
	}
}

func TestBrokenHookFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "scene", "hooks.lua", `
function spawn_ball(ctx) error("boom") end
function counter_label(n) return { n } end
`)
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if p := e.SpawnBall(SpawnContext{Width: 0, Height: 2}); p.Y != 2 {
		t.Fatalf("spawn = %+v", p)
	}
	if got := e.CounterLabel(1); got != "Ball count: 1" {
		t.Fatalf("label = %q", got)
	}
}

func TestSyntaxErrorFailsLoad(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "scene", "bad.lua", `function (`)
	if _, err := NewEngine(dir, zap.NewNop()); err == nil {
		t.Fatalf("syntax error accepted")
	}
}
