package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/scenesync/server/internal/core/system"
	"github.com/scenesync/server/internal/handler"
	"github.com/scenesync/server/internal/net"
	"github.com/scenesync/server/internal/scene"
)

// OutputSystem flushes the tick's patches and every session's buffered
// messages. Phase 4 (Output).
type OutputSystem struct {
	out     *net.Broadcaster
	store   *net.SessionStore
	scene   *scene.Scene
	digests *handler.DigestHistory
	tick    uint64
	log     *zap.Logger
}

func NewOutputSystem(out *net.Broadcaster, store *net.SessionStore, sc *scene.Scene,
	digests *handler.DigestHistory, log *zap.Logger) *OutputSystem {
	return &OutputSystem{out: out, store: store, scene: sc, digests: digests, log: log}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.tick++
	n := s.out.Flush(s.tick)

	// Peers hash their mirror between ticks; remember what they can see.
	if n > 0 || s.digests.Len() == 0 {
		d, err := s.scene.Digest()
		if err != nil {
			s.log.Error("scene digest", zap.Uint64("tick", s.tick), zap.Error(err))
		} else {
			s.digests.Record(d)
		}
	}

	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

// Tick returns the number of completed output phases.
func (s *OutputSystem) Tick() uint64 { return s.tick }
