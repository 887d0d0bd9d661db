package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL COLLATE NOCASE,
    description TEXT DEFAULT '',
    color TEXT DEFAULT '',
    status TEXT NOT NULL DEFAULT 'ACTIVE',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    updated_by_device TEXT NOT NULL DEFAULT '',
    sync_version INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_name ON projects(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_projects_status_updated ON projects(status, updated_at DESC);

CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT DEFAULT '',
    notes_markdown TEXT DEFAULT '',
    project_id TEXT,
    status TEXT NOT NULL DEFAULT 'TODO',
    priority TEXT NOT NULL DEFAULT 'NORMAL',
    is_important INTEGER NOT NULL DEFAULT 0,
    due_at DATETIME,
    remind_at DATETIME,
    recurrence TEXT NOT NULL DEFAULT 'NONE',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    updated_by_device TEXT NOT NULL DEFAULT '',
    sync_version INTEGER NOT NULL DEFAULT 1,
    FOREIGN KEY (project_id) REFERENCES projects(id)
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_at);

CREATE TABLE IF NOT EXISTS task_subtasks (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    title TEXT NOT NULL,
    is_done INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    updated_by_device TEXT NOT NULL DEFAULT '',
    sync_version INTEGER NOT NULL DEFAULT 1,
    FOREIGN KEY (task_id) REFERENCES tasks(id)
);
CREATE INDEX IF NOT EXISTS idx_subtasks_task_created ON task_subtasks(task_id, created_at DESC);

CREATE TABLE IF NOT EXISTS task_templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL COLLATE NOCASE,
    title_template TEXT DEFAULT '',
    description TEXT DEFAULT '',
    priority TEXT NOT NULL DEFAULT 'NORMAL',
    is_important INTEGER NOT NULL DEFAULT 0,
    due_offset_minutes INTEGER,
    remind_offset_minutes INTEGER,
    recurrence TEXT NOT NULL DEFAULT 'NONE',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    updated_by_device TEXT NOT NULL DEFAULT '',
    sync_version INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_name ON task_templates(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL,
    updated_by_device TEXT NOT NULL DEFAULT '',
    sync_version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS task_changelog (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id TEXT NOT NULL,
    action TEXT NOT NULL,
    field TEXT DEFAULT '',
    previous_value TEXT DEFAULT '',
    new_value TEXT DEFAULT '',
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changelog_task_created ON task_changelog(task_id, created_at DESC);

CREATE TABLE IF NOT EXISTS outbox (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    operation TEXT NOT NULL,
    payload_json TEXT,
    idempotency_key TEXT NOT NULL UNIQUE,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_created ON outbox(created_at);

CREATE TABLE IF NOT EXISTS deleted_records (
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    deleted_at DATETIME NOT NULL,
    deleted_by_device TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS checkpoint (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_sync_cursor TEXT,
    last_synced_at DATETIME
);
INSERT OR IGNORE INTO checkpoint (id, last_sync_cursor, last_synced_at) VALUES (1, NULL, NULL);

CREATE TABLE IF NOT EXISTS conflicts (
    id TEXT PRIMARY KEY,
    incoming_idempotency_key TEXT NOT NULL UNIQUE,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    operation TEXT NOT NULL,
    conflict_type TEXT NOT NULL,
    reason_code TEXT NOT NULL,
    message TEXT DEFAULT '',
    local_payload TEXT,
    remote_payload TEXT,
    base_payload TEXT,
    status TEXT NOT NULL DEFAULT 'open',
    resolution_strategy TEXT DEFAULT '',
    resolution_payload TEXT,
    resolved_by_device TEXT DEFAULT '',
    detected_at DATETIME NOT NULL,
    resolved_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_conflicts_status_detected ON conflicts(status, detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_conflicts_entity ON conflicts(entity_type, entity_id, detected_at DESC);

CREATE TABLE IF NOT EXISTS conflict_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conflict_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    event_payload TEXT,
    created_at DATETIME NOT NULL,
    FOREIGN KEY (conflict_id) REFERENCES conflicts(id)
);
CREATE INDEX IF NOT EXISTS idx_conflict_events_conflict ON conflict_events(conflict_id, created_at DESC);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
