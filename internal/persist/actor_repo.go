package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/patch"
)

// ActorRow is one persisted actor: its plain wire form plus the columns
// needed to restore parents before children.
type ActorRow struct {
	ID        ecs.ActorID
	ParentID  ecs.ActorID
	Name      string
	Wire      patch.Value
	UpdatedAt time.Time
}

type ActorRepo struct {
	db *DB
}

func NewActorRepo(db *DB) *ActorRepo {
	return &ActorRepo{db: db}
}

// Upsert writes a batch of actors in one transaction.
func (r *ActorRepo) Upsert(ctx context.Context, rows []ActorRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("actor upsert begin: %w", err)
	}
	defer tx.Rollback()

	q := r.db.rebind(
		`INSERT INTO actors (id, parent_id, name, wire, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   parent_id = excluded.parent_id,
		   name = excluded.name,
		   wire = excluded.wire,
		   updated_at = excluded.updated_at`)
	for _, row := range rows {
		wire, err := json.Marshal(row.Wire)
		if err != nil {
			return fmt.Errorf("encode actor %s: %w", row.ID, err)
		}
		parent := ""
		if !row.ParentID.IsNil() {
			parent = row.ParentID.String()
		}
		if _, err := tx.ExecContext(ctx, q,
			row.ID.String(), parent, row.Name, string(wire), toMillis(row.UpdatedAt),
		); err != nil {
			return fmt.Errorf("actor upsert %s: %w", row.ID, err)
		}
	}
	return tx.Commit()
}

// Delete removes actors by id. Unknown ids are ignored.
func (r *ActorRepo) Delete(ctx context.Context, ids []ecs.ActorID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("actor delete begin: %w", err)
	}
	defer tx.Rollback()

	q := r.db.rebind(`DELETE FROM actors WHERE id = ?`)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, q, id.String()); err != nil {
			return fmt.Errorf("actor delete %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// LoadAll returns every stored actor, parents before their children.
func (r *ActorRepo) LoadAll(ctx context.Context) ([]ActorRow, error) {
	rs, err := r.db.SQL.QueryContext(ctx,
		`SELECT id, parent_id, name, wire, updated_at FROM actors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load actors: %w", err)
	}
	defer rs.Close()

	var rows []ActorRow
	for rs.Next() {
		var (
			id, parent, name, wire string
			updated                int64
		)
		if err := rs.Scan(&id, &parent, &name, &wire, &updated); err != nil {
			return nil, fmt.Errorf("scan actor: %w", err)
		}
		row := ActorRow{Name: name, UpdatedAt: fromMillis(updated)}
		if row.ID, err = ecs.ParseActorID(id); err != nil {
			return nil, err
		}
		if row.ParentID, err = ecs.ParseActorID(parent); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(wire), &row.Wire); err != nil {
			return nil, fmt.Errorf("decode actor %s: %w", id, err)
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return parentsFirst(rows), nil
}

// parentsFirst orders rows so every parent precedes its children. Rows
// whose parent is missing are dropped: the subtree was removed while the
// child's delete was still in flight.
func parentsFirst(rows []ActorRow) []ActorRow {
	byParent := make(map[ecs.ActorID][]ActorRow, len(rows))
	for _, row := range rows {
		byParent[row.ParentID] = append(byParent[row.ParentID], row)
	}
	out := make([]ActorRow, 0, len(rows))
	queue := []ecs.ActorID{ecs.NilActorID}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range byParent[parent] {
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out
}
