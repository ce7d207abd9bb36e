package authority

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/ecs"
)

func newTestManager() (*Manager, *[]Change) {
	m := NewManager(zap.NewNop())
	var changes []Change
	m.OnChange(func(c Change) { changes = append(changes, c) })
	return m, &changes
}

func TestRequestRaceFirstWriterWins(t *testing.T) {
	m, changes := newTestManager()
	actor := ecs.NewActorID()
	a, b := ecs.NewClientID(), ecs.NewClientID()
	m.Track(actor)

	ra := m.Request(actor, a)
	rb := m.Request(actor, b)

	if !ra.Accepted || ra.Owner != a {
		t.Fatalf("first request = %+v", ra)
	}
	if rb.Accepted || !errors.Is(rb.Err, ErrOwnershipConflict) || rb.Owner != a {
		t.Fatalf("second request = %+v", rb)
	}
	if owner, ok := m.Owner(actor); !ok || owner != a {
		t.Fatalf("owner = %s %v", owner, ok)
	}
	if len(*changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(*changes))
	}
}

func TestRequestByOwnerIsIdempotent(t *testing.T) {
	m, changes := newTestManager()
	actor := ecs.NewActorID()
	a := ecs.NewClientID()
	m.Track(actor)

	m.Request(actor, a)
	r := m.Request(actor, a)
	if !r.Accepted || r.Err != nil {
		t.Fatalf("repeat request = %+v", r)
	}
	if len(*changes) != 1 {
		t.Fatalf("repeat request notified again: %d changes", len(*changes))
	}
}

func TestRequestUntrackedActor(t *testing.T) {
	m, _ := newTestManager()
	r := m.Request(ecs.NewActorID(), ecs.NewClientID())
	if r.Accepted || !errors.Is(r.Err, ErrUnknownActor) {
		t.Fatalf("result = %+v", r)
	}
}

func TestReleaseOnlyByOwner(t *testing.T) {
	m, changes := newTestManager()
	actor := ecs.NewActorID()
	a, b := ecs.NewClientID(), ecs.NewClientID()
	m.Track(actor)

	if r := m.Release(actor, a); !errors.Is(r.Err, ErrNotOwner) {
		t.Fatalf("release of unowned = %+v", r)
	}
	m.Request(actor, a)
	if r := m.Release(actor, b); r.Accepted || !errors.Is(r.Err, ErrNotOwner) {
		t.Fatalf("release by non-owner = %+v", r)
	}
	if owner, _ := m.Owner(actor); owner != a {
		t.Fatalf("non-owner release changed owner to %s", owner)
	}
	if r := m.Release(actor, a); !r.Accepted {
		t.Fatalf("release by owner = %+v", r)
	}
	if _, ok := m.Owner(actor); ok {
		t.Fatalf("actor still owned after release")
	}
	last := (*changes)[len(*changes)-1]
	if last.Reason != ReasonRelease || !last.Owner.IsNil() || last.Previous != a {
		t.Fatalf("last change = %+v", last)
	}

	// Another client may now take it.
	if r := m.Request(actor, b); !r.Accepted {
		t.Fatalf("request after release = %+v", r)
	}
}

func TestDisconnectReleasesOwnedActors(t *testing.T) {
	m, changes := newTestManager()
	a, b := ecs.NewClientID(), ecs.NewClientID()
	m.Connect(a)
	m.Connect(b)
	actors := []ecs.ActorID{ecs.NewActorID(), ecs.NewActorID(), ecs.NewActorID()}
	for _, id := range actors {
		m.Track(id)
	}
	m.Request(actors[0], b)
	m.Request(actors[1], b)
	m.Request(actors[2], a)
	*changes = nil

	released := m.Disconnect(b)
	if len(released) != 2 || len(*changes) != 2 {
		t.Fatalf("released %d, notified %d, want 2", len(released), len(*changes))
	}
	for _, c := range released {
		if c.Reason != ReasonDisconnect || c.Previous != b {
			t.Fatalf("change = %+v", c)
		}
	}
	if owner, _ := m.Owner(actors[2]); owner != a {
		t.Fatalf("other client's actor released")
	}
	if m.Connected(b) {
		t.Fatalf("client still connected")
	}
}

func TestSimulatorFallsBackToPrimary(t *testing.T) {
	m, _ := newTestManager()
	a, b := ecs.NewClientID(), ecs.NewClientID()
	if !m.Connect(a) {
		t.Fatalf("first client is not primary")
	}
	if m.Connect(b) {
		t.Fatalf("second client became primary")
	}
	actor := ecs.NewActorID()
	m.Track(actor)

	if got := m.Simulator(actor); got != a {
		t.Fatalf("unowned simulator = %s, want primary", got)
	}
	m.Request(actor, b)
	if got := m.Simulator(actor); got != b {
		t.Fatalf("owned simulator = %s, want owner", got)
	}
	m.Release(actor, b)
	m.Disconnect(a)
	if m.Primary() != b || m.Simulator(actor) != b {
		t.Fatalf("primary did not pass to remaining client")
	}
	if got := m.Simulator(ecs.NewActorID()); !got.IsNil() {
		t.Fatalf("untracked actor has simulator %s", got)
	}
}

func TestForgetDropsRecordSilently(t *testing.T) {
	m, changes := newTestManager()
	actor := ecs.NewActorID()
	m.Track(actor)
	m.Request(actor, ecs.NewClientID())
	*changes = nil

	m.Forget(actor)
	if m.Tracked(actor) || m.Len() != 0 || len(*changes) != 0 {
		t.Fatalf("forget: tracked=%v len=%d changes=%d", m.Tracked(actor), m.Len(), len(*changes))
	}
}
