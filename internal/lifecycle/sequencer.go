// Package lifecycle retires simulated actors in two phases: hide and park
// first, remove after a settle delay so simulating clients can finish
// reporting contacts against the actor.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/collision"
	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/core/timer"
	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/replica"
)

// ErrUnknownActor is returned when retiring an actor the scene does not hold.
var ErrUnknownActor = errors.New("lifecycle: unknown actor")

const DefaultSettleDelay = time.Second

// DefaultParkPosition is where retired actors wait out the settle delay.
var DefaultParkPosition = replica.Vector3{Y: -10}

type State uint8

const (
	Active State = iota
	Retiring
	Removed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Retiring:
		return "retiring"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Scene is the part of the scene graph the sequencer drives.
type Scene interface {
	Exists(ecs.ActorID) bool
	Hide(ecs.ActorID, replica.Vector3) (patch.Patch, error)
	Remove(ecs.ActorID) (patch.Patch, []ecs.ActorID, error)
}

// Ownership is the part of the ownership manager the sequencer releases.
type Ownership interface {
	Forget(ecs.ActorID)
}

// Broadcaster sends a patch to every peer, in call order.
type Broadcaster interface {
	Broadcast(patch.Patch)
}

type Config struct {
	SettleDelay  time.Duration
	ParkPosition replica.Vector3
}

func DefaultConfig() Config {
	return Config{SettleDelay: DefaultSettleDelay, ParkPosition: DefaultParkPosition}
}

// Sequencer is owned by the game loop. Settle timers belong to the
// sequencer, not to whoever asked for the retire, so cancelling a caller's
// timer group never strands a retiring actor.
type Sequencer struct {
	cfg       Config
	scene     Scene
	owners    Ownership
	tracker   *collision.Tracker
	timers    *timer.Service
	out       Broadcaster
	retiring  map[ecs.ActorID]*timer.Handle
	removed   map[ecs.ActorID]struct{}
	log       *zap.Logger
	onRemoved func(ecs.ActorID)
}

func New(cfg Config, scene Scene, owners Ownership, tracker *collision.Tracker,
	timers *timer.Service, out Broadcaster, log *zap.Logger) *Sequencer {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	return &Sequencer{
		cfg:      cfg,
		scene:    scene,
		owners:   owners,
		tracker:  tracker,
		timers:   timers,
		out:      out,
		retiring: make(map[ecs.ActorID]*timer.Handle),
		removed:  make(map[ecs.ActorID]struct{}),
		log:      log,
	}
}

// OnRemoved registers an observer called once per removed actor after the
// removal patch went out.
func (s *Sequencer) OnRemoved(fn func(ecs.ActorID)) { s.onRemoved = fn }

// State reports the actor's phase. Actors never seen by the sequencer are
// Active if the scene holds them and Removed otherwise.
func (s *Sequencer) State(actor ecs.ActorID) State {
	if _, ok := s.retiring[actor]; ok {
		return Retiring
	}
	if _, ok := s.removed[actor]; ok {
		return Removed
	}
	if s.scene.Exists(actor) {
		return Active
	}
	return Removed
}

// Retire hides and parks an active actor in one patch and schedules its
// removal after the settle delay. Retiring a retiring or removed actor is
// a no-op.
func (s *Sequencer) Retire(actor ecs.ActorID) error {
	if _, ok := s.retiring[actor]; ok {
		return nil
	}
	if _, ok := s.removed[actor]; ok {
		return nil
	}
	if !s.scene.Exists(actor) {
		return fmt.Errorf("%w: %s", ErrUnknownActor, actor)
	}
	p, err := s.scene.Hide(actor, s.cfg.ParkPosition)
	if err != nil {
		return fmt.Errorf("retire %s: %w", actor, err)
	}
	s.out.Broadcast(p)
	s.retiring[actor] = s.timers.After(s.cfg.SettleDelay, func() { s.remove(actor) })
	s.log.Debug("actor retiring",
		zap.Stringer("actor", actor),
		zap.Int("contacts", s.tracker.Count(actor)),
		zap.Duration("settle", s.cfg.SettleDelay))
	return nil
}

// RetireAfter retires the actor once lifetime elapses. The lifetime timer
// lives in group, so the caller can cancel pending retires as a unit; the
// settle timer started by the retire does not.
func (s *Sequencer) RetireAfter(actor ecs.ActorID, lifetime time.Duration, group *timer.Group) *timer.Handle {
	return group.After(lifetime, func() {
		if err := s.Retire(actor); err != nil {
			s.log.Debug("lifetime retire skipped", zap.Stringer("actor", actor), zap.Error(err))
		}
	})
}

func (s *Sequencer) remove(actor ecs.ActorID) {
	delete(s.retiring, actor)
	if !s.scene.Exists(actor) {
		s.removed[actor] = struct{}{}
		return
	}
	p, subtree, err := s.scene.Remove(actor)
	if err != nil {
		s.log.Warn("settle removal failed", zap.Stringer("actor", actor), zap.Error(err))
		return
	}
	s.out.Broadcast(p)
	for _, id := range subtree {
		s.tracker.Forget(id)
		s.owners.Forget(id)
		if h, ok := s.retiring[id]; ok {
			h.Cancel()
			delete(s.retiring, id)
		}
		s.removed[id] = struct{}{}
		if s.onRemoved != nil {
			s.onRemoved(id)
		}
	}
}

// Retiring returns the number of actors waiting out their settle delay.
func (s *Sequencer) Retiring() int { return len(s.retiring) }

// Prune drops the Removed record of actors the scene has flushed. Called
// from the cleanup phase so the removed set does not grow without bound.
func (s *Sequencer) Prune(flushed []ecs.ActorID) {
	for _, id := range flushed {
		delete(s.removed, id)
	}
}

// Shutdown cancels pending settle timers. Retiring actors stay hidden in
// the scene.
func (s *Sequencer) Shutdown() int {
	n := 0
	for id, h := range s.retiring {
		if h.Cancel() {
			n++
		}
		delete(s.retiring, id)
	}
	return n
}
