package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/scenesync/server/internal/core/system"
	"github.com/scenesync/server/internal/handler"
	"github.com/scenesync/server/internal/net"
	"github.com/scenesync/server/internal/protocol"
)

// InputSystem accepts new sessions, drains message queues from all
// sessions and dispatches them through the registry. Phase 0 (Input).
//
// The loop also polls this phase between ticks with dt 0. Polls share the
// tick's per-session budget; only a full tick (dt > 0) refills it.
type InputSystem struct {
	ctx        context.Context
	netServer  *net.Server
	registry   *protocol.Registry
	store      *net.SessionStore
	deps       *handler.Deps
	maxPerTick int
	used       map[uint64]int
	log        *zap.Logger
}

func NewInputSystem(
	ctx context.Context,
	netServer *net.Server,
	registry *protocol.Registry,
	store *net.SessionStore,
	deps *handler.Deps,
	maxPerTick int,
	log *zap.Logger,
) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 32
	}
	return &InputSystem{
		ctx:        ctx,
		netServer:  netServer,
		registry:   registry,
		store:      store,
		deps:       deps,
		maxPerTick: maxPerTick,
		used:       make(map[uint64]int),
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(dt time.Duration) {
	if dt > 0 {
		clear(s.used)
	}

	// Accept new sessions
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions
	for {
		select {
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	s.store.ForEach(func(sess *net.Session) {
		if sess.IsClosed() {
			handler.HandleDisconnect(sess, s.deps)
			s.netServer.NotifyDead(sess.ID)
			s.store.Remove(sess.ID)
			delete(s.used, sess.ID)
			return
		}
		for s.used[sess.ID] < s.maxPerTick {
			select {
			case data := <-sess.InQueue:
				s.used[sess.ID]++
				s.dispatch(sess, data)
			default:
				return
			}
		}
	})
}

// dispatch runs one message. Failures are answered with an error message
// referencing the offending message id, when it could be decoded.
func (s *InputSystem) dispatch(sess *net.Session, data []byte) {
	env, err := s.registry.Dispatch(s.ctx, sess, sess.State(), data)
	if err == nil {
		return
	}
	code := protocol.CodeFor(err)
	sess.Log().Debug("message rejected", zap.String("code", code), zap.Error(err))

	reply := protocol.Error{Code: code, Message: err.Error()}
	if env.ID.Time() != 0 {
		reply.Ref = env.ID.String()
	}
	if err := sess.SendMessage(protocol.TypeError, reply); err != nil {
		s.log.Error("encode error reply", zap.Error(err))
	}
}
