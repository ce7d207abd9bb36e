package event

import (
	"testing"

	"github.com/scenesync/server/internal/core/ecs"
)

func TestEventsAreReadableNextTick(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(e TriggerEntered) { got = append(got, "enter") })
	Subscribe(b, func(e ActorRemoved) { got = append(got, "removed") })

	a := ecs.NewActorID()
	Emit(b, TriggerEntered{Actor: a})
	Emit(b, ActorRemoved{Actor: a})
	Emit(b, TriggerEntered{Actor: a})

	if n := b.DispatchAll(); n != 0 || len(got) != 0 {
		t.Fatalf("events delivered in the tick they were emitted")
	}
	b.SwapBuffers()
	if n := b.DispatchAll(); n != 3 {
		t.Fatalf("dispatched %d", n)
	}
	want := []string{"enter", "removed", "enter"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	b.SwapBuffers()
	if n := b.DispatchAll(); n != 0 {
		t.Fatalf("events redelivered")
	}
}

func TestHandlerEmitsLandNextTick(t *testing.T) {
	b := NewBus()
	left := 0
	Subscribe(b, func(e ClientJoined) { Emit(b, ClientLeft{Client: e.Client}) })
	Subscribe(b, func(e ClientLeft) { left++ })

	Emit(b, ClientJoined{Client: ecs.NewClientID()})
	b.SwapBuffers()
	b.DispatchAll()
	if left != 0 || b.Pending() != 1 {
		t.Fatalf("left=%d pending=%d", left, b.Pending())
	}
	b.SwapBuffers()
	b.DispatchAll()
	if left != 1 {
		t.Fatalf("left=%d", left)
	}
}
