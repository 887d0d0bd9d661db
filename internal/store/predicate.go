package store

import "time"

// Predicate is the constrained query language every list operation accepts
// per spec §4.1: by id, by foreign key, or by a time window on updated_at.
// Zero-value fields are not applied; combine freely.
type Predicate struct {
	ID        string
	ProjectID string // tasks: filter by project_id
	TaskID    string // subtasks: filter by task_id
	Since     time.Time
	Until     time.Time
	Limit     int
}

// whereClause builds a "WHERE ..." SQL fragment (or "") and its bound args
// for the given predicate, using the supplied column names for id and the
// foreign key the caller cares about (empty fkColumn means none).
func (p Predicate) whereClause(idColumn, fkColumn string) (string, []any) {
	var clauses []string
	var args []any

	if p.ID != "" {
		clauses = append(clauses, idColumn+" = ?")
		args = append(args, p.ID)
	}
	if fkColumn != "" {
		fkValue := p.ProjectID
		if fkColumn == "task_id" {
			fkValue = p.TaskID
		}
		if fkValue != "" {
			clauses = append(clauses, fkColumn+" = ?")
			args = append(args, fkValue)
		}
	}
	if !p.Since.IsZero() {
		clauses = append(clauses, "updated_at >= ?")
		args = append(args, p.Since)
	}
	if !p.Until.IsZero() {
		clauses = append(clauses, "updated_at <= ?")
		args = append(args, p.Until)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func (p Predicate) limitClause() (string, []any) {
	if p.Limit <= 0 {
		return "", nil
	}
	return " LIMIT ?", []any{p.Limit}
}
