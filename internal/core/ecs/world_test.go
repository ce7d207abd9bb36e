package ecs

import "testing"

func TestWorldDeferredDestroy(t *testing.T) {
	w := NewWorld()
	names := NewPtrComponentStore[string]()
	w.Registry().Register(names)

	a := w.CreateActor()
	b := w.CreateActor()
	na, nb := "a", "b"
	names.Set(a, &na)
	names.Set(b, &nb)

	w.MarkForDestruction(a)
	w.MarkForDestruction(a)
	if w.Alive(a) {
		t.Fatalf("queued actor should not report alive")
	}
	if !names.Has(a) {
		t.Fatalf("components must survive until flush")
	}
	if got := w.PendingDestruction(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	flushed := w.FlushDestroyQueue()
	if len(flushed) != 1 || flushed[0] != a {
		t.Fatalf("flushed = %v, want [%v]", flushed, a)
	}
	if names.Has(a) || w.Pool().Alive(a) {
		t.Fatalf("actor a should be gone after flush")
	}
	if !w.Alive(b) || !names.Has(b) {
		t.Fatalf("actor b should be untouched")
	}
}

func TestAdoptRejectsNilAndDuplicates(t *testing.T) {
	w := NewWorld()
	if w.AdoptActor(NilActorID) {
		t.Fatalf("nil id adopted")
	}
	id := NewActorID()
	if !w.AdoptActor(id) {
		t.Fatalf("fresh id rejected")
	}
	if w.AdoptActor(id) {
		t.Fatalf("duplicate id adopted")
	}
}

func TestActorIDText(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    ActorID
		wantErr bool
	}{
		{name: "empty is nil", in: "", want: NilActorID},
		{name: "zero uuid is nil", in: "00000000-0000-0000-0000-000000000000", want: NilActorID},
		{name: "garbage", in: "not-a-uuid", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseActorID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	id := NewActorID()
	b, _ := id.MarshalText()
	var back ActorID
	if err := back.UnmarshalText(b); err != nil || back != id {
		t.Fatalf("text round trip: %v %v", back, err)
	}
}

func TestEach2VisitsIntersection(t *testing.T) {
	ints := NewPtrComponentStore[int]()
	strs := NewPtrComponentStore[string]()
	a, b, c := NewActorID(), NewActorID(), NewActorID()
	one, two := 1, 2
	s := "x"
	ints.Set(a, &one)
	ints.Set(b, &two)
	strs.Set(b, &s)
	strs.Set(c, &s)

	if n := Count2(ints, strs); n != 1 {
		t.Fatalf("Count2 = %d, want 1", n)
	}
	Each2(ints, strs, func(id ActorID, i *int, _ *string) {
		if id != b || *i != 2 {
			t.Fatalf("unexpected visit %v %d", id, *i)
		}
	})
}

func TestAssetIDFromNameIsStable(t *testing.T) {
	if AssetIDFromName("ball") != AssetIDFromName("ball") {
		t.Fatalf("asset id not deterministic")
	}
	if AssetIDFromName("ball") == AssetIDFromName("ramp") {
		t.Fatalf("distinct names collided")
	}
}
