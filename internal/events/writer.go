package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the task service.
const (
	ProjectCreated       = "project.created"
	ProjectConfigUpdated = "project.config_updated"
	TaskCreated          = "task.created"
	TaskStatusChanged    = "task.status_changed"
	TaskReviewed         = "task.reviewed"
	ActionAdded          = "action.added"
	ActionRemoved        = "action.removed"
	ActionDepsChanged    = "action.dependencies_changed"
	ActionCompleted      = "action.completed"
	ActionUncompleted    = "action.uncompleted"
	ActionUnlocked       = "action.unlocked"
	TemplateSaved        = "template.saved"
	TemplateInstantiated = "template.instantiated"
)

// Entity kinds.
const (
	KindProject  = "project"
	KindTask     = "task"
	KindAction   = "action"
	KindTemplate = "template"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append inserts one event row inside tx so it commits or rolls back with the mutation.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
