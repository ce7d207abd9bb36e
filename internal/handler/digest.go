package handler

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scenesync/server/internal/protocol"
)

// DefaultDigestHistory is how many flushed ticks a peer digest may lag.
const DefaultDigestHistory = 32

// DigestHistory remembers the scene digests taken after the most recent
// flushes. A peer digest is computed from whatever patches the peer has
// applied, which may trail the host by a few ticks.
type DigestHistory struct {
	ring [][32]byte
	next int
	n    int
}

func NewDigestHistory(size int) *DigestHistory {
	if size <= 0 {
		size = DefaultDigestHistory
	}
	return &DigestHistory{ring: make([][32]byte, size)}
}

// Record adds d as the newest digest. Repeating the newest digest is a no-op.
func (h *DigestHistory) Record(d [32]byte) {
	if h.n > 0 && h.ring[(h.next+len(h.ring)-1)%len(h.ring)] == d {
		return
	}
	h.ring[h.next] = d
	h.next = (h.next + 1) % len(h.ring)
	if h.n < len(h.ring) {
		h.n++
	}
}

func (h *DigestHistory) Contains(d [32]byte) bool {
	for i := 0; i < h.n; i++ {
		if h.ring[i] == d {
			return true
		}
	}
	return false
}

func (h *DigestHistory) Len() int { return h.n }

// HandleDigest compares the peer's mirror digest with the host's. A digest
// matching neither the live scene nor a recent flush means the peer
// diverged; it is sent a full snapshot.
func HandleDigest(ctx context.Context, sess Peer, msg protocol.Envelope, deps *Deps) error {
	var m protocol.Digest
	if err := msg.DecodePayload(&m); err != nil {
		return err
	}
	raw, err := hex.DecodeString(m.Digest)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("%w: digest %q", protocol.ErrInvalidMessage, m.Digest)
	}
	var got [32]byte
	copy(got[:], raw)

	if deps.Digests != nil && deps.Digests.Contains(got) {
		return nil
	}
	current, err := deps.Scene.Digest()
	if err != nil {
		return err
	}
	if current == got {
		return nil
	}

	trace.SpanFromContext(ctx).AddEvent("resync")
	sess.Log().Info("peer diverged, sending snapshot",
		zap.Stringer("client", sess.ClientID()),
		zap.String("peer", m.Digest),
		zap.String("host", hex.EncodeToString(current[:])),
	)
	return sess.SendMessage(protocol.TypePatch, protocol.PatchMsg{Entries: deps.Scene.SnapshotPatch()})
}
