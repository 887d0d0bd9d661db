package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tdsync/core/internal/model"
)

func TestInitialize(t *testing.T) {
	dir := t.TempDir()

	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	dbPath := filepath.Join(dir, dbFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("store file not created")
	}
}

func TestOpenMissingStore(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir); err == nil {
		t.Error("expected error opening a store that was never initialized")
	}
}

func mutate(t *testing.T, s *Store, fn func(tx *sql.Tx) error) {
	t.Helper()
	if err := s.Mutate(fn); err != nil {
		t.Fatalf("mutate failed: %v", err)
	}
}

func TestProjectUpsertAndGet(t *testing.T) {
	dir := t.TempDir()
	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := &model.Project{ID: "p1", Name: "Alpha", Status: model.ProjectActive, CreatedAt: now}

	mutate(t, s, func(tx *sql.Tx) error {
		return s.UpsertProject(tx, p, now, "D1", 1)
	})

	got, err := s.GetProject("p1")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Name != "Alpha" || got.Status != model.ProjectActive {
		t.Errorf("unexpected project: %+v", got)
	}
	if got.SyncVersion != 1 || got.UpdatedByDevice != "D1" {
		t.Errorf("unexpected shadow fields: %+v", got.Shadow)
	}
}

func TestProjectNameUniqueConstraint(t *testing.T) {
	dir := t.TempDir()
	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	now := time.Now()
	err = s.Mutate(func(tx *sql.Tx) error {
		return s.UpsertProject(tx, &model.Project{ID: "p1", Name: "Alpha", CreatedAt: now}, now, "D1", 1)
	})
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err = s.Mutate(func(tx *sql.Tx) error {
		return s.UpsertProject(tx, &model.Project{ID: "p2", Name: "alpha", CreatedAt: now}, now, "D1", 1)
	})
	if !Is(err, KindConstraintViolation) {
		t.Fatalf("expected KindConstraintViolation for case-insensitive duplicate name, got %v", err)
	}
}

func TestTaskDeleteCascadesSubtasks(t *testing.T) {
	dir := t.TempDir()
	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	now := time.Now()
	mutate(t, s, func(tx *sql.Tx) error {
		if err := s.UpsertTask(tx, &model.Task{ID: "t1", Title: "Write spec", Status: model.TaskTodo, Priority: model.PriorityNormal, CreatedAt: now}, now, "D1", 1); err != nil {
			return err
		}
		return s.UpsertSubtask(tx, &model.TaskSubtask{ID: "s1", TaskID: "t1", Title: "Step 1", CreatedAt: now}, now, "D1", 1)
	})

	mutate(t, s, func(tx *sql.Tx) error {
		return s.DeleteTask(tx, "t1")
	})

	if _, err := s.GetSubtask("s1"); !Is(err, KindNotFound) {
		t.Errorf("expected subtask to be cascade-deleted, got err=%v", err)
	}
}

func TestProjectDeleteNullsTaskProjectID(t *testing.T) {
	dir := t.TempDir()
	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	now := time.Now()
	mutate(t, s, func(tx *sql.Tx) error {
		if err := s.UpsertProject(tx, &model.Project{ID: "p1", Name: "Alpha", CreatedAt: now}, now, "D1", 1); err != nil {
			return err
		}
		return s.UpsertTask(tx, &model.Task{ID: "t1", Title: "Task", ProjectID: "p1", CreatedAt: now}, now, "D1", 1)
	})

	mutate(t, s, func(tx *sql.Tx) error {
		return s.DeleteProject(tx, "p1")
	})

	task, err := s.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.ProjectID != "" {
		t.Errorf("expected project_id nulled out, got %q", task.ProjectID)
	}
}

func TestOutboxInsertListRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	now := time.Now()
	var id int64
	mutate(t, s, func(tx *sql.Tx) error {
		var err error
		id, err = s.InsertOutbox(tx, &OutboxEntry{
			EntityType:     model.EntityProject,
			EntityID:       "p1",
			Operation:      model.OpUpsert,
			PayloadJSON:    `{"name":"Alpha"}`,
			IdempotencyKey: "d1:1",
			CreatedAt:      now,
		})
		return err
	})

	entries, err := s.ListOutbox(0)
	if err != nil {
		t.Fatalf("ListOutbox failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("unexpected outbox contents: %+v", entries)
	}

	mutate(t, s, func(tx *sql.Tx) error {
		return s.RemoveOutbox(tx, []int64{id})
	})

	entries, err = s.ListOutbox(0)
	if err != nil {
		t.Fatalf("ListOutbox failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty outbox after removal, got %d entries", len(entries))
	}
}

func TestOutboxIdempotencyKeyUnique(t *testing.T) {
	dir := t.TempDir()
	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	now := time.Now()
	insert := func() error {
		return s.Mutate(func(tx *sql.Tx) error {
			_, err := s.InsertOutbox(tx, &OutboxEntry{
				EntityType: model.EntityProject, EntityID: "p1", Operation: model.OpUpsert,
				IdempotencyKey: "dup", CreatedAt: now,
			})
			return err
		})
	}
	if err := insert(); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := insert(); !Is(err, KindConstraintViolation) {
		t.Fatalf("expected duplicate idempotency key to fail with KindConstraintViolation, got %v", err)
	}
}

func TestCheckpointAdvances(t *testing.T) {
	dir := t.TempDir()
	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	cp, err := s.GetCheckpoint()
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if cp.LastSyncCursor != "" {
		t.Errorf("expected empty initial cursor, got %q", cp.LastSyncCursor)
	}

	now := time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC)
	mutate(t, s, func(tx *sql.Tx) error {
		return s.SetCheckpoint(tx, "c1", now)
	})

	cp, err = s.GetCheckpoint()
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if cp.LastSyncCursor != "c1" || cp.LastSyncedAt == nil || !cp.LastSyncedAt.Equal(now) {
		t.Errorf("checkpoint did not advance as expected: %+v", cp)
	}
}

func TestTombstoneUpsertAndClear(t *testing.T) {
	dir := t.TempDir()
	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	now := time.Now()
	mutate(t, s, func(tx *sql.Tx) error {
		return s.UpsertTombstone(tx, &Tombstone{EntityType: model.EntityTask, EntityID: "t9", DeletedAt: now, DeletedByDevice: "D1"})
	})

	has, err := s.HasTombstone(model.EntityTask, "t9")
	if err != nil || !has {
		t.Fatalf("expected tombstone present, has=%v err=%v", has, err)
	}

	mutate(t, s, func(tx *sql.Tx) error {
		return s.ClearTombstone(tx, model.EntityTask, "t9")
	})

	has, err = s.HasTombstone(model.EntityTask, "t9")
	if err != nil || has {
		t.Fatalf("expected tombstone cleared, has=%v err=%v", has, err)
	}
}

func TestConflictRecordAndList(t *testing.T) {
	dir := t.TempDir()
	s, err := Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer s.Close()

	now := time.Now()
	mutate(t, s, func(tx *sql.Tx) error {
		c := &Conflict{
			ID: "cf1", IncomingIdempotencyKey: "k-9", EntityType: model.EntityTask, EntityID: "t9",
			Operation: model.OpUpsert, ConflictType: "field_conflict", ReasonCode: "MISSING_TASK_TITLE",
			Status: ConflictOpen, DetectedAt: now,
		}
		if err := s.InsertConflict(tx, c); err != nil {
			return err
		}
		return s.InsertConflictEvent(tx, &ConflictEvent{ConflictID: "cf1", EventType: EventDetected, CreatedAt: now})
	})

	list, err := s.ListConflicts(ConflictOpen, 0)
	if err != nil {
		t.Fatalf("ListConflicts failed: %v", err)
	}
	if len(list) != 1 || list[0].ReasonCode != "MISSING_TASK_TITLE" {
		t.Fatalf("unexpected conflicts: %+v", list)
	}

	events, err := s.ListConflictEvents("cf1", 0)
	if err != nil {
		t.Fatalf("ListConflictEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].EventType != EventDetected {
		t.Fatalf("unexpected events: %+v", events)
	}
}
