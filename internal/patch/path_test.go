package patch

import (
	"encoding/json"
	"errors"
	"testing"
)

func mustParse(t *testing.T, s string) Value {
	t.Helper()
	var v Value
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return v
}

func mustJSON(t *testing.T, v Value) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

type vec struct{ x, y float64 }

func (v vec) ToWireValue() Value {
	return Obj(NewObject().Set("x", Number(v.x)).Set("y", Number(v.y)))
}

func TestExtractPathRoundTrip(t *testing.T) {
	src := mustParse(t, `{"transform":{"app":{"position":{"x":1,"y":2,"z":3}}},"name":"ball","tags":[1,"a",true]}`)
	paths := [][]string{
		{"transform", "app", "position", "x"},
		{"transform", "app", "position"},
		{"transform"},
		{"name"},
		{"tags"},
	}
	for _, path := range paths {
		dst := NewObject()
		if err := ExtractPath(src, dst, path...); err != nil {
			t.Fatalf("%v: %v", path, err)
		}
		want, _ := Lookup(src, path...)
		got, ok := Lookup(Obj(dst), path...)
		if !ok {
			t.Fatalf("%v: not written", path)
		}
		if !Equal(got, want) {
			t.Fatalf("%v: got %s, want %s", path, mustJSON(t, got), mustJSON(t, want))
		}
	}
}

func TestExtractPathWritesSerializedRichValue(t *testing.T) {
	src := Obj(NewObject().Set("pos", Rich(vec{x: 1, y: 2})))
	dst := NewObject()
	if err := ExtractPath(src, dst, "pos"); err != nil {
		t.Fatal(err)
	}
	got, _ := dst.Get("pos")
	if got.Kind() != KindObject {
		t.Fatalf("mirror holds %s, want the serialized object", got.Kind())
	}
	if s := mustJSON(t, Obj(dst)); s != `{"pos":{"x":1,"y":2}}` {
		t.Fatalf("mirror = %s", s)
	}

	// Paths may descend through a rich value.
	dst = NewObject()
	if err := ExtractPath(src, dst, "pos", "y"); err != nil {
		t.Fatal(err)
	}
	if s := mustJSON(t, Obj(dst)); s != `{"pos":{"y":2}}` {
		t.Fatalf("mirror = %s", s)
	}
}

func TestExtractPathAbsentSourceLeavesMirror(t *testing.T) {
	src := mustParse(t, `{"a":{"b":1},"s":"scalar"}`)
	dst := mustParse(t, `{"a":{"keep":true},"other":5}`)
	dstObj, _ := dst.Object()
	before := mustJSON(t, dst)

	for _, path := range [][]string{
		{"missing"},
		{"a", "missing"},
		{"missing", "deep", "leaf"},
		{"s", "below-scalar"},
	} {
		if err := ExtractPath(src, dstObj, path...); err != nil {
			t.Fatalf("%v: %v", path, err)
		}
	}
	if after := mustJSON(t, dst); after != before {
		t.Fatalf("mirror changed: %s -> %s", before, after)
	}
}

func TestExtractPathKeepsSiblings(t *testing.T) {
	src := mustParse(t, `{"a":{"b":2,"c":3}}`)
	dst := mustParse(t, `{"a":{"z":26},"y":25}`)
	dstObj, _ := dst.Object()
	if err := ExtractPath(src, dstObj, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if s := mustJSON(t, dst); s != `{"a":{"b":2,"z":26},"y":25}` {
		t.Fatalf("mirror = %s", s)
	}
}

func TestExtractPathInvalidFieldWritesNothing(t *testing.T) {
	src := mustParse(t, `{"a":{"b":{"c":1}}}`)
	for _, path := range [][]string{
		{""},
		{"__proto__"},
		{"a", "constructor"},
		{"a", "b", "prototype"},
		{"a", "", "c"},
	} {
		dst := NewObject()
		err := ExtractPath(src, dst, path...)
		if !errors.Is(err, ErrInvalidFieldName) {
			t.Fatalf("%q: err = %v, want ErrInvalidFieldName", path, err)
		}
		if dst.Len() != 0 {
			t.Fatalf("%q: mirror mutated: %s", path, mustJSON(t, Obj(dst)))
		}
	}
}

func TestExtractPathConflict(t *testing.T) {
	src := mustParse(t, `{"a":{"b":1}}`)
	dst := mustParse(t, `{"a":7}`)
	dstObj, _ := dst.Object()
	if err := ExtractPath(src, dstObj, "a", "b"); !errors.Is(err, ErrPathConflict) {
		t.Fatalf("err = %v, want ErrPathConflict", err)
	}
}

func TestExtractPathCopiesLeaf(t *testing.T) {
	inner := NewObject().Set("n", Number(1))
	src := Obj(NewObject().Set("o", Obj(inner)))
	dst := NewObject()
	if err := ExtractPath(src, dst, "o"); err != nil {
		t.Fatal(err)
	}
	inner.Set("n", Number(2))
	if got, _ := Lookup(Obj(dst), "o", "n"); !Equal(got, Number(1)) {
		t.Fatalf("mirror aliases source: %s", mustJSON(t, got))
	}
}
