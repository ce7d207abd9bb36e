package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/scenesync/server/internal/core/ecs"
)

// OwnershipRecord is one audited ownership transition.
type OwnershipRecord struct {
	ID         ulid.ULID
	Actor      ecs.ActorID
	Previous   ecs.ClientID
	Owner      ecs.ClientID
	Reason     string
	RecordedAt time.Time
}

// OwnershipRepo is an append-only audit trail of ownership changes.
type OwnershipRepo struct {
	db *DB
}

func NewOwnershipRepo(db *DB) *OwnershipRepo {
	return &OwnershipRepo{db: db}
}

// Append writes records in one transaction. Records without an ID get one
// derived from their timestamp.
func (r *OwnershipRepo) Append(ctx context.Context, recs []OwnershipRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ownership append begin: %w", err)
	}
	defer tx.Rollback()

	q := r.db.rebind(
		`INSERT INTO ownership_log (id, actor_id, previous, owner, reason, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	for _, rec := range recs {
		if rec.ID == (ulid.ULID{}) {
			rec.ID = ulid.Make()
		}
		if _, err := tx.ExecContext(ctx, q,
			rec.ID.String(), rec.Actor.String(), clientText(rec.Previous), clientText(rec.Owner),
			rec.Reason, toMillis(rec.RecordedAt),
		); err != nil {
			return fmt.Errorf("ownership append %s: %w", rec.Actor, err)
		}
	}
	return tx.Commit()
}

// History returns the transitions of one actor, oldest first.
func (r *OwnershipRepo) History(ctx context.Context, actor ecs.ActorID) ([]OwnershipRecord, error) {
	rs, err := r.db.SQL.QueryContext(ctx, r.db.rebind(
		`SELECT id, previous, owner, reason, recorded_at FROM ownership_log
		 WHERE actor_id = ? ORDER BY recorded_at, id`), actor.String())
	if err != nil {
		return nil, fmt.Errorf("ownership history: %w", err)
	}
	defer rs.Close()

	var out []OwnershipRecord
	for rs.Next() {
		var (
			id, prev, owner, reason string
			at                      int64
		)
		if err := rs.Scan(&id, &prev, &owner, &reason, &at); err != nil {
			return nil, fmt.Errorf("scan ownership: %w", err)
		}
		rec := OwnershipRecord{Actor: actor, Reason: reason, RecordedAt: fromMillis(at)}
		if rec.ID, err = ulid.ParseStrict(id); err != nil {
			return nil, err
		}
		if rec.Previous, err = ecs.ParseClientID(prev); err != nil {
			return nil, err
		}
		if rec.Owner, err = ecs.ParseClientID(owner); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rs.Err()
}

func clientText(c ecs.ClientID) string {
	if c.IsNil() {
		return ""
	}
	return c.String()
}
