package net

import (
	"go.uber.org/zap"

	"github.com/scenesync/server/internal/patch"
	"github.com/scenesync/server/internal/protocol"
)

// Journal records every patch that goes out.
type Journal interface {
	Write(tick uint64, p patch.Patch) error
}

type outgoing struct {
	p      patch.Patch
	except uint64
}

// Broadcaster queues scene patches during a tick and fans them out to
// every joined session at Flush. Each session receives one patch message
// per tick holding the queued entries in order, so a peer never observes
// half of a tick. It is the only outbound path for scene changes. Game
// loop only.
type Broadcaster struct {
	store   *SessionStore
	journal Journal
	pending []outgoing
	sent    uint64
	log     *zap.Logger
}

// NewBroadcaster creates a broadcaster. journal may be nil.
func NewBroadcaster(store *SessionStore, journal Journal, log *zap.Logger) *Broadcaster {
	return &Broadcaster{store: store, journal: journal, log: log}
}

// Broadcast queues p for every joined session. Empty patches are ignored.
func (b *Broadcaster) Broadcast(p patch.Patch) {
	b.BroadcastExcept(p, 0)
}

// BroadcastExcept queues p for every joined session but the one with the
// given id. Session ids start at 1, so 0 excludes nobody.
func (b *Broadcaster) BroadcastExcept(p patch.Patch, except uint64) {
	if len(p) == 0 {
		return
	}
	b.pending = append(b.pending, outgoing{p: p, except: except})
}

// Announce buffers a non-patch message on every joined session. It goes
// out ahead of the tick's patch message.
func (b *Broadcaster) Announce(typ string, payload any) {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		b.log.Error("encode announcement", zap.String("type", typ), zap.Error(err))
		return
	}
	b.store.ForEach(func(s *Session) {
		if s.State() == protocol.StateJoined {
			s.Send(data)
		}
	})
}

func (b *Broadcaster) Pending() int { return len(b.pending) }

// Sent returns the number of patches flushed since start.
func (b *Broadcaster) Sent() uint64 { return b.sent }

// Flush journals each queued patch and buffers the tick's message on the
// recipients. It returns the number of patches flushed.
func (b *Broadcaster) Flush(tick uint64) int {
	n := len(b.pending)
	if n == 0 {
		return 0
	}
	var all patch.Patch
	excluded := make(map[uint64]struct{})
	for _, o := range b.pending {
		if b.journal != nil {
			if err := b.journal.Write(tick, o.p); err != nil {
				b.log.Error("journal patch", zap.Uint64("tick", tick), zap.Error(err))
			}
		}
		all = append(all, o.p...)
		if o.except != 0 {
			excluded[o.except] = struct{}{}
		}
	}

	shared := b.encode(all)
	b.store.ForEach(func(s *Session) {
		if s.State() != protocol.StateJoined {
			return
		}
		if _, ok := excluded[s.ID]; !ok {
			if shared != nil {
				s.Send(shared)
			}
			return
		}
		var own patch.Patch
		for _, o := range b.pending {
			if o.except != s.ID {
				own = append(own, o.p...)
			}
		}
		if len(own) == 0 {
			return
		}
		if data := b.encode(own); data != nil {
			s.Send(data)
		}
	})

	b.sent += uint64(n)
	clear(b.pending)
	b.pending = b.pending[:0]
	return n
}

func (b *Broadcaster) encode(p patch.Patch) []byte {
	data, err := protocol.Encode(protocol.TypePatch, protocol.PatchMsg{Entries: p})
	if err != nil {
		b.log.Error("encode patch", zap.Int("entries", len(p)), zap.Error(err))
		return nil
	}
	return data
}
