package system

import (
	"time"

	"github.com/scenesync/server/internal/core/event"
	coresys "github.com/scenesync/server/internal/core/system"
	"github.com/scenesync/server/internal/core/timer"
)

// EventSystem delivers the events emitted since the previous dispatch.
// Phase 1 (PreUpdate).
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// TimerSystem advances the loop clock: spawns, lifetimes and settle
// delays fire here. Phase 2 (Update).
type TimerSystem struct {
	timers *timer.Service
}

func NewTimerSystem(timers *timer.Service) *TimerSystem {
	return &TimerSystem{timers: timers}
}

func (s *TimerSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *TimerSystem) Update(dt time.Duration) {
	s.timers.Advance(dt)
}
