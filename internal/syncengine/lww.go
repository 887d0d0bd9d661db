package syncengine

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/tdsync/core/internal/conflict"
	"github.com/tdsync/core/internal/model"
	"github.com/tdsync/core/internal/store"
	"github.com/tdsync/core/internal/wire"
)

// Outcome is what apply_change did with one incoming change (spec §4.4.3).
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeSkipped
	OutcomeConflict
)

// ChangeResult is apply_change's verdict on one incoming SyncChange.
type ChangeResult struct {
	Outcome      Outcome
	Reason       conflict.ReasonCode
	Message      string
	LocalPayload string // snapshot of the existing row, when one exists
}

// shadowLookup is the subset of the Store's Get* behavior apply_change
// needs to run the LWW precedence check uniformly across entity types.
type shadowLookup struct {
	exists bool
	shadow model.Shadow
}

// applyChange runs the LWW merge and conflict classification for one
// normalized incoming change (spec §4.4.5), each in its own Store
// transaction.
func (e *Engine) applyChange(change wire.SyncChange) (ChangeResult, error) {
	entityType := model.EntityType(change.EntityType)

	// Rule 1: local-only settings never apply inbound (spec invariant 5).
	if entityType == model.EntitySetting && model.IsLocalOnly(change.EntityID) {
		return ChangeResult{Outcome: OutcomeSkipped}, nil
	}

	lookup, localPayload, err := e.lookupShadow(entityType, change.EntityID)
	if err != nil {
		return ChangeResult{}, err
	}

	changedAt, parseErr := time.Parse(time.RFC3339, change.UpdatedAt)
	if lookup.exists && parseErr == nil {
		if !winsOver(changedAt, change.UpdatedByDevice, lookup.shadow) {
			return ChangeResult{Outcome: OutcomeSkipped}, nil
		}
	}
	if parseErr != nil && lookup.exists {
		// Malformed timestamp never beats an existing row.
		return ChangeResult{Outcome: OutcomeSkipped}, nil
	}

	if change.Operation == string(model.OpUpsert) {
		if result, isConflict := e.classifyUpsert(entityType, change, lookup, localPayload); isConflict {
			result.LocalPayload = localPayload
			return result, nil
		}
	}

	if err := e.apply(entityType, change, changedAt); err != nil {
		return ChangeResult{}, err
	}
	return ChangeResult{Outcome: OutcomeApplied}, nil
}

// winsOver implements spec §4.4.5 rule 2: the incoming write applies iff it
// is strictly newer, or tied and its device id sorts greater-or-equal
// (lexicographic, lowercased).
func winsOver(changedAt time.Time, changedByDevice string, existing model.Shadow) bool {
	if changedAt.After(existing.UpdatedAt) {
		return true
	}
	if changedAt.Equal(existing.UpdatedAt) {
		return strings.ToLower(changedByDevice) >= strings.ToLower(existing.UpdatedByDevice)
	}
	return false
}

func (e *Engine) lookupShadow(entityType model.EntityType, entityID string) (shadowLookup, string, error) {
	switch entityType {
	case model.EntityProject:
		p, err := e.Store.GetProject(entityID)
		if store.Is(err, store.KindNotFound) {
			return shadowLookup{}, "", nil
		}
		if err != nil {
			return shadowLookup{}, "", err
		}
		data, _ := json.Marshal(p)
		return shadowLookup{exists: true, shadow: p.Shadow}, string(data), nil
	case model.EntityTask:
		t, err := e.Store.GetTask(entityID)
		if store.Is(err, store.KindNotFound) {
			return shadowLookup{}, "", nil
		}
		if err != nil {
			return shadowLookup{}, "", err
		}
		data, _ := json.Marshal(t)
		return shadowLookup{exists: true, shadow: t.Shadow}, string(data), nil
	case model.EntityTaskSubtask:
		st, err := e.Store.GetSubtask(entityID)
		if store.Is(err, store.KindNotFound) {
			return shadowLookup{}, "", nil
		}
		if err != nil {
			return shadowLookup{}, "", err
		}
		data, _ := json.Marshal(st)
		return shadowLookup{exists: true, shadow: st.Shadow}, string(data), nil
	case model.EntityTaskTemplate:
		tpl, err := e.Store.GetTemplate(entityID)
		if store.Is(err, store.KindNotFound) {
			return shadowLookup{}, "", nil
		}
		if err != nil {
			return shadowLookup{}, "", err
		}
		data, _ := json.Marshal(tpl)
		return shadowLookup{exists: true, shadow: tpl.Shadow}, string(data), nil
	case model.EntitySetting:
		shadow, exists, err := e.Store.GetSettingShadow(entityID)
		if err != nil {
			return shadowLookup{}, "", err
		}
		if !exists {
			return shadowLookup{}, "", nil
		}
		return shadowLookup{exists: true, shadow: *shadow}, "", nil
	default:
		return shadowLookup{}, "", nil
	}
}

// classifyUpsert runs spec §4.4.5 point 3's validation conflicts. It
// returns (result, true) when the incoming change must be escalated rather
// than applied.
func (e *Engine) classifyUpsert(entityType model.EntityType, change wire.SyncChange, lookup shadowLookup, localPayload string) (ChangeResult, bool) {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(change.Payload, &fields)

	stringField := func(name string) string {
		raw, ok := fields[name]
		if !ok {
			return ""
		}
		var s string
		_ = json.Unmarshal(raw, &s)
		return s
	}

	switch entityType {
	case model.EntityProject:
		if stringField("name") == "" {
			return ChangeResult{Outcome: OutcomeConflict, Reason: conflict.ReasonMissingProjectName, Message: "incoming project payload has no name"}, true
		}
	case model.EntityTask:
		if stringField("title") == "" {
			return ChangeResult{Outcome: OutcomeConflict, Reason: conflict.ReasonMissingTaskTitle, Message: "incoming task payload has no title"}, true
		}
		if projectID := stringField("project_id"); projectID != "" {
			ok, err := e.Store.ProjectExists(projectID)
			if err != nil || !ok {
				return ChangeResult{Outcome: OutcomeConflict, Reason: conflict.ReasonTaskProjectNotFound, Message: "task references a project not present locally"}, true
			}
		}
		if notesCollision(fields, lookup, localPayload, change.UpdatedByDevice) {
			return ChangeResult{Outcome: OutcomeConflict, Reason: conflict.ReasonTaskNotesCollision, Message: "both sides edited notes_markdown"}, true
		}
	case model.EntityTaskSubtask:
		if stringField("title") == "" {
			return ChangeResult{Outcome: OutcomeConflict, Reason: conflict.ReasonInvalidSubtask, Message: "incoming subtask payload has no title"}, true
		}
		taskID := stringField("task_id")
		if taskID == "" {
			return ChangeResult{Outcome: OutcomeConflict, Reason: conflict.ReasonInvalidSubtask, Message: "incoming subtask payload has no task_id"}, true
		}
		ok, err := e.Store.TaskExists(taskID)
		if err != nil || !ok {
			return ChangeResult{Outcome: OutcomeConflict, Reason: conflict.ReasonSubtaskTaskNotFound, Message: "subtask references an unknown task"}, true
		}
	case model.EntityTaskTemplate:
		if stringField("name") == "" {
			return ChangeResult{Outcome: OutcomeConflict, Reason: conflict.ReasonMissingTemplateName, Message: "incoming template payload has no name"}, true
		}
	}
	return ChangeResult{}, false
}

// notesCollision implements spec §4.4.5's TASK_NOTES_COLLISION: the
// incoming change touches notes_markdown, the existing value differs, and
// the existing row was last written by a different device than the
// incoming change. Field-level merge is explicitly out of scope (spec §9
// open question); this only detects the collision.
func notesCollision(fields map[string]json.RawMessage, lookup shadowLookup, localPayload, incomingDevice string) bool {
	if !lookup.exists || localPayload == "" {
		return false
	}
	raw, ok := fields["notes_markdown"]
	if !ok {
		return false
	}
	var incoming string
	if err := json.Unmarshal(raw, &incoming); err != nil {
		return false
	}
	var existing struct {
		NotesMarkdown string
	}
	if err := json.Unmarshal([]byte(localPayload), &existing); err != nil {
		return false
	}
	if incoming == existing.NotesMarkdown {
		return false
	}
	return !strings.EqualFold(lookup.shadow.UpdatedByDevice, incomingDevice)
}

// apply performs the write side of apply_change: UPSERT writes the row and
// clears any matching tombstone; DELETE removes the row and writes one
// (spec §4.4.5 point 4).
func (e *Engine) apply(entityType model.EntityType, change wire.SyncChange, changedAt time.Time) error {
	return e.Store.Mutate(func(tx *sql.Tx) error {
		if change.Operation == string(model.OpDelete) {
			return e.applyDelete(tx, entityType, change, changedAt)
		}
		return e.applyUpsert(tx, entityType, change, changedAt)
	})
}

func (e *Engine) applyDelete(tx *sql.Tx, entityType model.EntityType, change wire.SyncChange, changedAt time.Time) error {
	switch entityType {
	case model.EntityProject:
		if err := e.Store.DeleteProject(tx, change.EntityID); err != nil {
			return err
		}
	case model.EntityTask:
		if err := e.Store.DeleteTask(tx, change.EntityID); err != nil {
			return err
		}
	case model.EntityTaskSubtask:
		if err := e.Store.DeleteSubtask(tx, change.EntityID); err != nil {
			return err
		}
	case model.EntityTaskTemplate:
		if err := e.Store.DeleteTemplate(tx, change.EntityID); err != nil {
			return err
		}
	case model.EntitySetting:
		if err := e.Store.DeleteSetting(tx, change.EntityID); err != nil {
			return err
		}
		return nil
	}
	return e.Store.UpsertTombstone(tx, &store.Tombstone{
		EntityType: entityType, EntityID: change.EntityID, DeletedAt: changedAt, DeletedByDevice: change.UpdatedByDevice,
	})
}

func (e *Engine) applyUpsert(tx *sql.Tx, entityType model.EntityType, change wire.SyncChange, changedAt time.Time) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(change.Payload, &fields); err != nil {
		fields = map[string]json.RawMessage{}
	}
	str := func(name string) string {
		var s string
		if raw, ok := fields[name]; ok {
			_ = json.Unmarshal(raw, &s)
		}
		return s
	}
	boolField := func(name string) bool {
		var b bool
		if raw, ok := fields[name]; ok {
			_ = json.Unmarshal(raw, &b)
		}
		return b
	}
	timeField := func(name string) *time.Time {
		raw, ok := fields[name]
		if !ok {
			return nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil
		}
		return &t
	}
	intField := func(name string) *int {
		raw, ok := fields[name]
		if !ok {
			return nil
		}
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil
		}
		return &v
	}

	switch entityType {
	case model.EntityProject:
		p := &model.Project{
			ID: change.EntityID, Name: str("name"), Description: str("description"),
			Color: str("color"), Status: model.ProjectStatus(str("status")),
		}
		if created := timeField("created_at"); created != nil {
			p.CreatedAt = *created
		}
		if !model.IsValidProjectStatus(p.Status) {
			p.Status = model.ProjectActive
		}
		if err := e.Store.UpsertProject(tx, p, changedAt, change.UpdatedByDevice, change.SyncVersion); err != nil {
			return err
		}
	case model.EntityTask:
		t := &model.Task{
			ID: change.EntityID, Title: str("title"), Description: str("description"),
			NotesMarkdown: str("notes_markdown"), ProjectID: str("project_id"),
			Status: model.TaskStatus(str("status")), Priority: model.TaskPriority(str("priority")),
			IsImportant: boolField("is_important"), DueAt: timeField("due_at"), RemindAt: timeField("remind_at"),
			Recurrence: model.Recurrence(str("recurrence")),
		}
		if created := timeField("created_at"); created != nil {
			t.CreatedAt = *created
		}
		if !model.IsValidTaskStatus(t.Status) {
			t.Status = model.TaskTodo
		}
		if !model.IsValidPriority(t.Priority) {
			t.Priority = model.PriorityNormal
		}
		if !model.IsValidRecurrence(t.Recurrence) {
			t.Recurrence = model.RecurrenceNone
		}
		if err := e.Store.UpsertTask(tx, t, changedAt, change.UpdatedByDevice, change.SyncVersion); err != nil {
			return err
		}
	case model.EntityTaskSubtask:
		st := &model.TaskSubtask{ID: change.EntityID, TaskID: str("task_id"), Title: str("title"), IsDone: boolField("is_done")}
		if err := e.Store.UpsertSubtask(tx, st, changedAt, change.UpdatedByDevice, change.SyncVersion); err != nil {
			return err
		}
	case model.EntityTaskTemplate:
		tpl := &model.TaskTemplate{
			ID: change.EntityID, Name: str("name"), TitleTemplate: str("title_template"), Description: str("description"),
			Priority: model.TaskPriority(str("priority")), IsImportant: boolField("is_important"),
			DueOffsetMinutes: intField("due_offset_minutes"), RemindOffsetMinutes: intField("remind_offset_minutes"),
			Recurrence: model.Recurrence(str("recurrence")),
		}
		if created := timeField("created_at"); created != nil {
			tpl.CreatedAt = *created
		}
		if !model.IsValidPriority(tpl.Priority) {
			tpl.Priority = model.PriorityNormal
		}
		if !model.IsValidRecurrence(tpl.Recurrence) {
			tpl.Recurrence = model.RecurrenceNone
		}
		if err := e.Store.UpsertTemplate(tx, tpl, changedAt, change.UpdatedByDevice, change.SyncVersion); err != nil {
			return err
		}
	case model.EntitySetting:
		if err := e.Store.UpsertSetting(tx, change.EntityID, str("value"), changedAt, change.UpdatedByDevice, change.SyncVersion); err != nil {
			return err
		}
		return nil
	}
	return e.Store.ClearTombstone(tx, entityType, change.EntityID)
}
