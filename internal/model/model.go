// Package model defines the domain entities and the sync-shadow fields that
// every synchronizable row carries, plus the validation helpers the
// mutation API applies before writing them.
package model

import "time"

// EntityType is the closed set of synchronizable table names.
type EntityType string

const (
	EntityProject      EntityType = "PROJECT"
	EntityTask         EntityType = "TASK"
	EntityTaskSubtask  EntityType = "TASK_SUBTASK"
	EntityTaskTemplate EntityType = "TASK_TEMPLATE"
	EntitySetting      EntityType = "SETTING"
)

// IsValid reports whether e is one of the closed set of entity types.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityProject, EntityTask, EntityTaskSubtask, EntityTaskTemplate, EntitySetting:
		return true
	}
	return false
}

// syncPriority orders entity types so parents push/apply before children,
// per spec §4.3 rule (2): PROJECT < TASK < TASK_SUBTASK < TASK_TEMPLATE < SETTING.
var syncPriority = map[EntityType]int{
	EntityProject:      0,
	EntityTask:         1,
	EntityTaskSubtask:  2,
	EntityTaskTemplate: 3,
	EntitySetting:      4,
}

// SyncPriority returns the deterministic ordering rank for an entity type.
// Unknown types sort last.
func SyncPriority(e EntityType) int {
	if p, ok := syncPriority[e]; ok {
		return p
	}
	return len(syncPriority)
}

// Operation is the sync verb carried by an outbox entry or wire change.
type Operation string

const (
	OpUpsert Operation = "UPSERT"
	OpDelete Operation = "DELETE"
)

// ProjectStatus enumerates valid Project.Status values.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectCompleted ProjectStatus = "COMPLETED"
	ProjectArchived  ProjectStatus = "ARCHIVED"
)

// TaskStatus enumerates valid Task.Status values.
type TaskStatus string

const (
	TaskTodo     TaskStatus = "TODO"
	TaskDoing    TaskStatus = "DOING"
	TaskDone     TaskStatus = "DONE"
	TaskArchived TaskStatus = "ARCHIVED"
)

// TaskPriority enumerates valid Task.Priority values.
type TaskPriority string

const (
	PriorityUrgent TaskPriority = "URGENT"
	PriorityNormal TaskPriority = "NORMAL"
	PriorityLow    TaskPriority = "LOW"
)

// Recurrence enumerates valid recurrence cadences for tasks and templates.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "NONE"
	RecurrenceDaily   Recurrence = "DAILY"
	RecurrenceWeekly  Recurrence = "WEEKLY"
	RecurrenceMonthly Recurrence = "MONTHLY"
)

// Shadow holds the four sync-shadow fields every synchronizable row carries.
type Shadow struct {
	UpdatedAt       time.Time
	UpdatedByDevice string
	SyncVersion     int
}

// Project is a top-level grouping of tasks.
type Project struct {
	ID          string
	Name        string
	Description string
	Color       string
	Status      ProjectStatus
	CreatedAt   time.Time
	Shadow
}

// Task is the primary unit of work.
type Task struct {
	ID             string
	Title          string
	Description    string
	NotesMarkdown  string
	ProjectID      string // empty means unset
	Status         TaskStatus
	Priority       TaskPriority
	IsImportant    bool
	DueAt          *time.Time
	RemindAt       *time.Time
	Recurrence     Recurrence
	CreatedAt      time.Time
	Shadow
}

// TaskSubtask is a checklist item owned by a Task. Cascades on task delete.
type TaskSubtask struct {
	ID        string
	TaskID    string
	Title     string
	IsDone    bool
	CreatedAt time.Time
	Shadow
}

// TaskTemplate is a reusable blueprint for creating tasks.
type TaskTemplate struct {
	ID                  string
	Name                string
	TitleTemplate       string
	Description         string
	Priority            TaskPriority
	IsImportant         bool
	DueOffsetMinutes    *int
	RemindOffsetMinutes *int
	Recurrence          Recurrence
	CreatedAt           time.Time
	Shadow
}

// LocalSettingPrefix marks keys that are confined to the local device and
// must never appear in outbox rows or inbound applies (spec invariant 5).
const LocalSettingPrefix = "local."

// DeviceIDSettingKey is the special setting key that stores this
// installation's own device identifier; always local-only.
const DeviceIDSettingKey = "local.device_id"

// Setting is a free-form key/value pair. Keys under LocalSettingPrefix
// (and DeviceIDSettingKey) never synchronize.
type Setting struct {
	Key   string
	Value string
}

// IsLocalOnly reports whether a setting key is confined to this device.
func IsLocalOnly(key string) bool {
	return key == DeviceIDSettingKey || hasPrefix(key, LocalSettingPrefix)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// ChangelogAction enumerates the kind of local-only changelog entry emitted
// for a task mutation (never synced; see spec §4.2).
type ChangelogAction string

const (
	ChangelogCreated       ChangelogAction = "CREATED"
	ChangelogUpdated       ChangelogAction = "UPDATED"
	ChangelogStatusChanged ChangelogAction = "STATUS_CHANGED"
)

// TaskChangelog records one changed field on a task mutation, local-only.
type TaskChangelog struct {
	ID        string
	TaskID    string
	Action    ChangelogAction
	Field     string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}
