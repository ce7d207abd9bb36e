package persist

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/scenesync/server/internal/config"
	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, config.DatabaseConfig{DSN: filepath.Join(t.TempDir(), "scene.db")}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: DialectPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("rebind = %q", got)
	}
	lite := &DB{Dialect: DialectSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind = %q", got)
	}
}

func TestActorRepoUpsertLoadDelete(t *testing.T) {
	db := openTestDB(t)
	repo := NewActorRepo(db)
	ctx := context.Background()

	root, child, grand := ecs.NewActorID(), ecs.NewActorID(), ecs.NewActorID()
	wire := func(name string) patch.Value {
		return patch.Obj(patch.NewObject().Set("name", patch.String(name)))
	}
	now := time.Now()
	// Children first on purpose; LoadAll must reorder.
	rows := []ActorRow{
		{ID: grand, ParentID: child, Name: "grand", Wire: wire("grand"), UpdatedAt: now},
		{ID: child, ParentID: root, Name: "child", Wire: wire("child"), UpdatedAt: now},
		{ID: root, Name: "root", Wire: wire("root"), UpdatedAt: now},
	}
	if err := repo.Upsert(ctx, rows); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, []ActorRow{{ID: root, Name: "root", Wire: wire("renamed"), UpdatedAt: now}}); err != nil {
		t.Fatal(err)
	}

	got, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != root || got[1].ID != child || got[2].ID != grand {
		t.Fatalf("order = %v", got)
	}
	if v, _ := patch.Lookup(got[0].Wire, "name"); !patch.Equal(v, patch.String("renamed")) {
		t.Fatalf("upsert did not replace wire")
	}

	if err := repo.Delete(ctx, []ecs.ActorID{child}); err != nil {
		t.Fatal(err)
	}
	got, err = repo.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != root {
		t.Fatalf("orphaned child restored: %v", got)
	}
}

func TestOwnershipRepoHistory(t *testing.T) {
	db := openTestDB(t)
	repo := NewOwnershipRepo(db)
	ctx := context.Background()
	actor, client := ecs.NewActorID(), ecs.NewClientID()
	at := time.Now()
	recs := []OwnershipRecord{
		{Actor: actor, Owner: client, Reason: "request", RecordedAt: at},
		{Actor: actor, Previous: client, Reason: "release", RecordedAt: at.Add(time.Second)},
		{Actor: ecs.NewActorID(), Owner: client, Reason: "request", RecordedAt: at},
	}
	if err := repo.Append(ctx, recs); err != nil {
		t.Fatal(err)
	}
	hist, err := repo.History(ctx, actor)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].Owner != client || !hist[1].Owner.IsNil() || hist[1].Previous != client {
		t.Fatalf("history = %+v", hist)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("second run: %v", err)
	}
}
