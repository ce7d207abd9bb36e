package collision

import (
	"testing"

	"github.com/scenesync/server/internal/core/ecs"
)

func TestEnterExitBalances(t *testing.T) {
	tr := NewTracker()
	a := ecs.NewActorID()
	for i := 1; i <= 3; i++ {
		if got := tr.Enter(a); got != i {
			t.Fatalf("enter %d returned %d", i, got)
		}
	}
	for i := 2; i >= 0; i-- {
		if got := tr.Exit(a); got != i {
			t.Fatalf("exit returned %d, want %d", got, i)
		}
	}
	if tr.Active(a) || tr.Len() != 0 {
		t.Fatalf("entry left behind: count=%d len=%d", tr.Count(a), tr.Len())
	}
}

func TestExitWithoutEnterClamps(t *testing.T) {
	tr := NewTracker()
	a := ecs.NewActorID()
	if got := tr.Exit(a); got != 0 {
		t.Fatalf("exit = %d", got)
	}
	if tr.Count(a) != 0 || tr.Len() != 0 {
		t.Fatalf("count=%d len=%d", tr.Count(a), tr.Len())
	}
	// Underflow does not bank negative credit.
	if got := tr.Enter(a); got != 1 {
		t.Fatalf("enter after underflow = %d", got)
	}
}

func TestCountsArePerActor(t *testing.T) {
	tr := NewTracker()
	a, b := ecs.NewActorID(), ecs.NewActorID()
	tr.Enter(a)
	tr.Enter(a)
	tr.Enter(b)
	tr.Forget(a)
	if tr.Active(a) || tr.Count(b) != 1 || tr.Len() != 1 {
		t.Fatalf("a=%d b=%d len=%d", tr.Count(a), tr.Count(b), tr.Len())
	}
}
