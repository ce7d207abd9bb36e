package spawn

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/authority"
	"github.com/scenesync/server/internal/collision"
	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/core/event"
	"github.com/scenesync/server/internal/core/timer"
	"github.com/scenesync/server/internal/lifecycle"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/replica"
	"github.com/scenesync/server/internal/scene"
	"github.com/scenesync/server/internal/scripting"
)

type recorder struct{ sent []patch.Patch }

func (r *recorder) Broadcast(p patch.Patch) { r.sent = append(r.sent, p) }

type fixedPlacer struct{ calls []scripting.SpawnContext }

func (f *fixedPlacer) SpawnBall(ctx scripting.SpawnContext) scripting.SpawnPoint {
	f.calls = append(f.calls, ctx)
	return scripting.SpawnPoint{X: float64(ctx.Index), Y: ctx.Height, Z: -0.5}
}

type fixture struct {
	scene   *scene.Scene
	owners  *authority.Manager
	timers  *timer.Service
	seq     *lifecycle.Sequencer
	out     *recorder
	placer  *fixedPlacer
	spawner *Spawner
	balls   []ecs.ActorID
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		scene:  scene.New(zap.NewNop()),
		owners: authority.NewManager(zap.NewNop()),
		timers: timer.NewService(),
		out:    &recorder{},
		placer: &fixedPlacer{},
	}
	f.scene.OnSimulated = func(id ecs.ActorID) {
		f.owners.Track(id)
		f.balls = append(f.balls, id)
	}
	f.seq = lifecycle.New(lifecycle.DefaultConfig(), f.scene, f.owners, collision.NewTracker(),
		f.timers, f.out, zap.NewNop())
	f.spawner = NewSpawner(cfg, f.scene, f.seq, f.placer, f.out, f.timers, zap.NewNop())
	return f
}

func TestSpawnerCreatesBalls(t *testing.T) {
	f := newFixture(t, Config{Interval: 100 * time.Millisecond, Lifetime: 10 * time.Second,
		Width: 2, Height: 3, Radius: 0.1, Mass: 3})
	f.spawner.Start()
	f.spawner.Start()
	f.timers.Advance(350 * time.Millisecond)

	if f.spawner.Spawned() != 3 || len(f.balls) != 3 || f.scene.Len() != 3 {
		t.Fatalf("spawned %d, balls %d, scene %d", f.spawner.Spawned(), len(f.balls), f.scene.Len())
	}
	if len(f.out.sent) != 3 {
		t.Fatalf("creation patches = %d", len(f.out.sent))
	}
	for i, id := range f.balls {
		if !f.owners.Tracked(id) {
			t.Fatalf("ball %d not tracked for ownership", i)
		}
		tr, _ := f.scene.Transform(id)
		if tr.Local.Position != (replica.Vector3{X: float64(i), Y: 3, Z: -0.5}) {
			t.Fatalf("ball %d at %+v", i, tr.Local.Position)
		}
		rb, _ := f.scene.RigidBody(id)
		if rb.Mass != 3 {
			t.Fatalf("mass = %v", rb.Mass)
		}
	}
	if f.placer.calls[2].Index != 2 || f.placer.calls[2].Width != 2 {
		t.Fatalf("spawn context = %+v", f.placer.calls[2])
	}

	if n := f.spawner.Stop(); n != 4 {
		t.Fatalf("Stop cancelled %d timers, want interval + 3 lifetimes", n)
	}
	f.timers.Advance(20 * time.Second)
	if f.spawner.Spawned() != 3 || f.scene.Len() != 3 || f.seq.Retiring() != 0 {
		t.Fatalf("timers survived Stop")
	}
}

func TestStopKeepsSettleTimers(t *testing.T) {
	f := newFixture(t, Config{Interval: 100 * time.Millisecond, Lifetime: 500 * time.Millisecond, Mass: 1})
	f.spawner.Start()
	f.timers.Advance(650 * time.Millisecond)

	first := f.balls[0]
	if got := f.seq.State(first); got != lifecycle.Retiring {
		t.Fatalf("first ball state = %v", got)
	}
	f.spawner.Stop()
	if f.spawner.Running() {
		t.Fatalf("still running")
	}

	f.timers.Advance(time.Second)
	if f.scene.Exists(first) {
		t.Fatalf("retiring ball was not removed after Stop")
	}
	if f.scene.Len() != 5 {
		t.Fatalf("scene len = %d, want the 5 balls whose lifetimes were cancelled", f.scene.Len())
	}
}

func TestCounterCountsPlaneEntries(t *testing.T) {
	sc := scene.New(zap.NewNop())
	label, _, err := sc.Create(scene.ActorSpec{Name: "label", Text: replica.NewText("Ball count: 0")})
	if err != nil {
		t.Fatal(err)
	}
	col := replica.NewCollider(replica.ShapeBox)
	col.IsTrigger = true
	plane, _, err := sc.Create(scene.ActorSpec{Name: "plane", Collider: col})
	if err != nil {
		t.Fatal(err)
	}
	labels, err := scripting.NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer labels.Close()

	out := &recorder{}
	c := NewCounter(sc, labels, out, plane, label, zap.NewNop())
	bus := event.NewBus()
	c.Subscribe(bus)

	event.Emit(bus, event.TriggerEntered{Actor: plane, Other: ecs.NewActorID()})
	event.Emit(bus, event.TriggerEntered{Actor: ecs.NewActorID(), Other: plane})
	event.Emit(bus, event.TriggerEntered{Actor: plane, Other: ecs.NewActorID()})
	bus.SwapBuffers()
	bus.DispatchAll()

	if c.Count() != 2 {
		t.Fatalf("count = %d", c.Count())
	}
	txt, _ := sc.Text(label)
	if txt.Contents() != "Ball count: 2" {
		t.Fatalf("label = %q", txt.Contents())
	}
	if len(out.sent) != 2 {
		t.Fatalf("broadcasts = %d", len(out.sent))
	}
	last := out.sent[1]
	if len(last) != 1 || last[0].String() != "actors."+label.String()+".text.contents" {
		t.Fatalf("label patch = %v", last)
	}
	if !patch.Equal(last[0].Value, patch.String("Ball count: 2")) {
		t.Fatalf("label value = %v", last[0].Value)
	}
}

func TestAdoptRestartsLifetime(t *testing.T) {
	f := newFixture(t, Config{Interval: time.Second, Lifetime: 2 * time.Second, Mass: 1})
	restored, _, err := f.scene.Create(scene.ActorSpec{Name: "ball-7", RigidBody: replica.NewRigidBody(1)})
	if err != nil {
		t.Fatal(err)
	}
	f.spawner.Adopt(restored)
	if f.spawner.Running() {
		t.Fatalf("Adopt started the spawner")
	}

	f.timers.Advance(2100 * time.Millisecond)
	if got := f.seq.State(restored); got != lifecycle.Retiring {
		t.Fatalf("adopted ball state = %v", got)
	}
	f.timers.Advance(time.Second)
	if f.scene.Exists(restored) {
		t.Fatalf("adopted ball was not removed")
	}
}
