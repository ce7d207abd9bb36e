package patchlog

import (
	"testing"
	"time"

	"github.com/scenesync/server/internal/patch"
)

func TestWriteRotateAndRead(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "patches")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	var p patch.Patch
	p.Set(patch.Bool(false), "actors", "a", "appearance", "enabled")
	if err := w.Write(1, p); err != nil {
		t.Fatal(err)
	}
	var rm patch.Patch
	rm.Remove("actors", "a")
	if err := w.Write(2, rm); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(3, rm); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	files, err := Files(dir, "patches")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %v, want one per hour", files)
	}
	first, err := ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 2 || first[0].Seq != 1 || first[1].Tick != 2 {
		t.Fatalf("first hour = %+v", first)
	}
	if !patch.Equal(first[0].Entries[0].Value, patch.Bool(false)) || !first[1].Entries[0].Value.IsNull() {
		t.Fatalf("entries did not survive the journal")
	}
	second, err := ReadFile(files[1])
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 || second[0].Seq != 3 {
		t.Fatalf("second hour = %+v", second)
	}
}
