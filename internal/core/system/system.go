package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain session queues, run handlers
	PhasePreUpdate               // 1: dispatch last tick's events
	PhaseUpdate                  // 2: advance timers (spawns, lifetimes, settles)
	PhasePostUpdate              // 3: reserved
	PhaseOutput                  // 4: flush outbound patches to sessions
	PhasePersist                 // 5: hand dirty actors to the writer
	PhaseCleanup                 // 6: flush removed actors
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every loop system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
