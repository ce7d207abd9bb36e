package replica

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
)

func parse(t *testing.T, s string) patch.Value {
	t.Helper()
	var v patch.Value
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

func TestLookAtModeFallsBackToNone(t *testing.T) {
	var l LookAt
	if l.Mode() != LookAtNone {
		t.Fatalf("zero mode = %q", l.Mode())
	}
	for _, m := range []LookAtMode{"", "Sideways"} {
		l.SetMode(LookAtTargetXY)
		l.SetMode(m)
		if l.Mode() != LookAtNone {
			t.Fatalf("SetMode(%q) reads back %q, want None", m, l.Mode())
		}
	}
}

func TestLookAtCopyKeepsUnsetFields(t *testing.T) {
	a := ecs.NewActorID()
	var l LookAt
	l.SetActorID(a)
	l.SetMode(LookAtTargetY)
	l.SetBackward(true)

	mode := LookAtTargetXY
	l.Copy(LookAtUpdate{Mode: &mode})

	if l.ActorID() != a || l.Mode() != LookAtTargetXY || !l.Backward() {
		t.Fatalf("got {%s %s %v}", l.ActorID(), l.Mode(), l.Backward())
	}
}

func TestLookAtCopyValue(t *testing.T) {
	a := ecs.NewActorID()
	tests := []struct {
		name     string
		update   string
		actor    ecs.ActorID
		mode     LookAtMode
		backward bool
	}{
		{name: "mode only", update: `{"mode":"TargetXY"}`, actor: a, mode: LookAtTargetXY, backward: true},
		{name: "empty object", update: `{}`, actor: a, mode: LookAtTargetY, backward: true},
		{name: "null mode", update: `{"mode":null}`, actor: a, mode: LookAtNone, backward: true},
		{name: "null actor", update: `{"actorId":null}`, actor: ecs.NilActorID, mode: LookAtTargetY, backward: true},
		{name: "false backward", update: `{"backward":false}`, actor: a, mode: LookAtTargetY},
		{name: "null update", update: `null`, actor: ecs.NilActorID, mode: LookAtNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l LookAt
			l.SetActorID(a)
			l.SetMode(LookAtTargetY)
			l.SetBackward(true)
			if err := l.CopyValue(parse(t, tt.update)); err != nil {
				t.Fatal(err)
			}
			if l.ActorID() != tt.actor || l.Mode() != tt.mode || l.Backward() != tt.backward {
				t.Fatalf("got {%s %s %v}", l.ActorID(), l.Mode(), l.Backward())
			}
		})
	}
}

func TestLookAtCopyValueRejectsWrongTypes(t *testing.T) {
	for _, update := range []string{
		`{"mode":3}`,
		`{"backward":"yes"}`,
		`{"actorId":"not-a-uuid"}`,
		`{"mode":"TargetY","backward":1}`,
		`[1,2]`,
	} {
		var l LookAt
		l.SetBackward(true)
		err := l.CopyValue(parse(t, update))
		if !errors.Is(err, ErrFieldType) {
			t.Fatalf("%s: err = %v, want ErrFieldType", update, err)
		}
		if l.Mode() != LookAtNone || !l.Backward() {
			t.Fatalf("%s: partially applied", update)
		}
	}
}

func TestLookAtWireFormIsComplete(t *testing.T) {
	var l LookAt
	b, err := json.Marshal(&l)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"actorId":"00000000-0000-0000-0000-000000000000","backward":false,"mode":"None"}`
	if string(b) != want {
		t.Fatalf("json = %s", b)
	}

	var back LookAt
	a := ecs.NewActorID()
	l.SetActorID(a)
	l.SetMode(LookAtTargetY)
	b, _ = json.Marshal(&l)
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back != l {
		t.Fatalf("round trip: %+v != %+v", back, l)
	}
}
