// Package spawn drops physics balls into the scene on an interval and
// counts the ones that pass through a trigger plane.
package spawn

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/core/timer"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/replica"
	"github.com/scenesync/server/internal/scene"
	"github.com/scenesync/server/internal/scripting"
)

// Creator adds actors to the scene.
type Creator interface {
	Create(scene.ActorSpec) (ecs.ActorID, patch.Patch, error)
}

// Retirer starts an actor's destruction once its lifetime elapses.
type Retirer interface {
	RetireAfter(actor ecs.ActorID, lifetime time.Duration, group *timer.Group) *timer.Handle
}

// Placer picks spawn positions.
type Placer interface {
	SpawnBall(scripting.SpawnContext) scripting.SpawnPoint
}

type Broadcaster interface {
	Broadcast(patch.Patch)
}

type Config struct {
	Interval time.Duration
	Lifetime time.Duration
	Width    float64
	Height   float64
	Radius   float64
	Mass     float64
	Parent   ecs.ActorID
}

// Spawner owns one timer group holding its interval timer and every
// pending ball lifetime. Stopping cancels the group; balls already retiring
// finish their settle delay on the sequencer's own timers.
type Spawner struct {
	cfg      Config
	scene    Creator
	retirer  Retirer
	placer   Placer
	out      Broadcaster
	group    *timer.Group
	interval *timer.Handle
	mesh     ecs.AssetID
	material ecs.AssetID
	spawned  int
	log      *zap.Logger
}

func NewSpawner(cfg Config, sc Creator, retirer Retirer, placer Placer, out Broadcaster,
	timers *timer.Service, log *zap.Logger) *Spawner {
	return &Spawner{
		cfg:      cfg,
		scene:    sc,
		retirer:  retirer,
		placer:   placer,
		out:      out,
		group:    timers.NewGroup(),
		mesh:     ecs.AssetIDFromName(fmt.Sprintf("sphere/%g", cfg.Radius)),
		material: ecs.AssetIDFromName("ball"),
		log:      log,
	}
}

// Start begins spawning. Starting a running spawner is a no-op.
func (s *Spawner) Start() {
	if s.interval != nil {
		return
	}
	s.interval = s.group.Every(s.cfg.Interval, s.spawn)
	s.log.Info("spawner started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("lifetime", s.cfg.Lifetime))
}

// Stop cancels the interval and all pending lifetimes, adopted ones
// included. It returns the number of cancelled timers.
func (s *Spawner) Stop() int {
	n := s.group.Cancel()
	if s.interval != nil {
		s.interval = nil
		s.log.Info("spawner stopped", zap.Int("cancelled", n), zap.Int("spawned", s.spawned))
	}
	return n
}

func (s *Spawner) Running() bool { return s.interval != nil }

// Adopt gives a ball restored from storage a fresh lifetime.
func (s *Spawner) Adopt(id ecs.ActorID) {
	if s.cfg.Lifetime > 0 {
		s.retirer.RetireAfter(id, s.cfg.Lifetime, s.group)
	}
}

// Spawned returns the number of balls created so far.
func (s *Spawner) Spawned() int { return s.spawned }

func (s *Spawner) spawn() {
	pt := s.placer.SpawnBall(scripting.SpawnContext{
		Index:  s.spawned,
		Width:  s.cfg.Width,
		Height: s.cfg.Height,
	})

	tr := replica.NewTransform()
	tr.Local.Position = replica.Vector3{X: pt.X, Y: pt.Y, Z: pt.Z}
	app := replica.NewAppearance()
	app.MeshID = s.mesh
	app.MaterialID = s.material

	id, p, err := s.scene.Create(scene.ActorSpec{
		Parent:     s.cfg.Parent,
		Name:       fmt.Sprintf("ball-%d", s.spawned),
		Transform:  tr,
		Appearance: app,
		Collider:   replica.NewCollider(replica.ShapeAuto),
		RigidBody:  replica.NewRigidBody(s.cfg.Mass),
	})
	if err != nil {
		s.log.Error("spawn ball", zap.Error(err))
		return
	}
	s.spawned++
	s.out.Broadcast(p)
	if s.cfg.Lifetime > 0 {
		s.retirer.RetireAfter(id, s.cfg.Lifetime, s.group)
	}
}
