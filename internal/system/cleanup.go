package system

import (
	"time"

	coresys "github.com/scenesync/server/internal/core/system"
	"github.com/scenesync/server/internal/lifecycle"
	"github.com/scenesync/server/internal/scene"
)

// CleanupSystem flushes the deferred actor destruction queue at tick end.
// Phase 6 (Cleanup).
type CleanupSystem struct {
	scene     *scene.Scene
	sequencer *lifecycle.Sequencer
}

func NewCleanupSystem(sc *scene.Scene, seq *lifecycle.Sequencer) *CleanupSystem {
	return &CleanupSystem{scene: sc, sequencer: seq}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.sequencer.Prune(s.scene.Flush())
}
