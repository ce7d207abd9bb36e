package system

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/scenesync/server/internal/core/ecs"
	"github.com/scenesync/server/internal/core/event"
	coresys "github.com/scenesync/server/internal/core/system"
	"github.com/scenesync/server/internal/persist"
	"github.com/scenesync/server/internal/scene"
)

// saveBatch is one unit of work for the writer goroutine.
type saveBatch struct {
	rows    []persist.ActorRow
	removed []ecs.ActorID
	owners  []persist.OwnershipRecord
}

func (b *saveBatch) empty() bool {
	return len(b.rows) == 0 && len(b.removed) == 0 && len(b.owners) == 0
}

// PersistenceSystem periodically snapshots changed actors on the loop and
// hands them to a single writer goroutine, so database latency never
// stalls a tick. Phase 5 (Persist).
type PersistenceSystem struct {
	scene     *scene.Scene
	actors    *persist.ActorRepo
	ownership *persist.OwnershipRepo
	interval  time.Duration
	elapsed   time.Duration

	// Work not yet accepted by the writer; merged until the queue has room.
	rows    map[ecs.ActorID]persist.ActorRow
	removed map[ecs.ActorID]struct{}
	owners  []persist.OwnershipRecord

	queue chan saveBatch
	wg    sync.WaitGroup
	log   *zap.Logger
}

func NewPersistenceSystem(sc *scene.Scene, actors *persist.ActorRepo, ownership *persist.OwnershipRepo,
	interval time.Duration, log *zap.Logger) *PersistenceSystem {
	return &PersistenceSystem{
		scene:     sc,
		actors:    actors,
		ownership: ownership,
		interval:  interval,
		rows:      make(map[ecs.ActorID]persist.ActorRow),
		removed:   make(map[ecs.ActorID]struct{}),
		queue:     make(chan saveBatch, 8),
		log:       log,
	}
}

// Subscribe records ownership transitions for the audit log.
func (s *PersistenceSystem) Subscribe(bus *event.Bus) {
	event.Subscribe(bus, s.onOwnershipChanged)
}

func (s *PersistenceSystem) onOwnershipChanged(e event.OwnershipChanged) {
	s.owners = append(s.owners, persist.OwnershipRecord{
		ID:         ulid.Make(),
		Actor:      e.Actor,
		Previous:   e.Previous,
		Owner:      e.Owner,
		Reason:     e.Reason,
		RecordedAt: time.Now(),
	})
}

// Start launches the writer goroutine.
func (s *PersistenceSystem) Start() {
	s.wg.Add(1)
	go s.writeLoop()
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(dt time.Duration) {
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0
	s.collect()
	b := s.batch()
	if b.empty() {
		return
	}
	select {
	case s.queue <- b:
		s.reset()
	default:
		s.log.Warn("persistence writer busy, deferring save",
			zap.Int("actors", len(b.rows)), zap.Int("removed", len(b.removed)))
	}
}

// Close saves everything still pending, waits for the writer to finish and
// stops it. The system must not be updated afterwards.
func (s *PersistenceSystem) Close() {
	s.collect()
	if b := s.batch(); !b.empty() {
		s.queue <- b
		s.reset()
	}
	close(s.queue)
	s.wg.Wait()
}

// collect merges the scene's dirty set into the pending work.
func (s *PersistenceSystem) collect() {
	changed, removed := s.scene.TakeDirty()
	now := time.Now()
	for _, id := range changed {
		wire, err := s.scene.ActorWire(id)
		if err != nil {
			continue
		}
		row := persist.ActorRow{ID: id, Wire: wire, UpdatedAt: now}
		if n, ok := s.scene.Node(id); ok {
			row.Name = n.Name
			row.ParentID = n.Parent
		}
		s.rows[id] = row
	}
	for _, id := range removed {
		delete(s.rows, id)
		s.removed[id] = struct{}{}
	}
}

func (s *PersistenceSystem) batch() saveBatch {
	b := saveBatch{owners: append([]persist.OwnershipRecord(nil), s.owners...)}
	for _, row := range s.rows {
		b.rows = append(b.rows, row)
	}
	for id := range s.removed {
		b.removed = append(b.removed, id)
	}
	ecs.SortIDs(b.removed)
	return b
}

func (s *PersistenceSystem) reset() {
	clear(s.rows)
	clear(s.removed)
	s.owners = s.owners[:0]
}

func (s *PersistenceSystem) writeLoop() {
	defer s.wg.Done()
	for b := range s.queue {
		s.write(b)
	}
}

func (s *PersistenceSystem) write(b saveBatch) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(b.rows) > 0 {
		if err := s.actors.Upsert(ctx, b.rows); err != nil {
			s.log.Error("save actors failed", zap.Int("actors", len(b.rows)), zap.Error(err))
		}
	}
	if len(b.removed) > 0 {
		if err := s.actors.Delete(ctx, b.removed); err != nil {
			s.log.Error("delete actors failed", zap.Int("actors", len(b.removed)), zap.Error(err))
		}
	}
	if len(b.owners) > 0 {
		if err := s.ownership.Append(ctx, b.owners); err != nil {
			s.log.Error("append ownership log failed", zap.Int("records", len(b.owners)), zap.Error(err))
		}
	}
	s.log.Debug("scene saved",
		zap.Int("actors", len(b.rows)),
		zap.Int("removed", len(b.removed)),
		zap.Int("ownership", len(b.owners)))
}
