package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"actionflow/internal/domain"
)

const taskColumns = `id,project_id,template_id,title,description,status,actions_json,version,created_at,updated_at,completed_at`

type TaskFilters struct {
	ProjectID       string
	Status          string
	TemplateID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var templateID, description, completedAt sql.NullString
	var actionsJSON string
	err := row.Scan(&t.ID, &t.ProjectID, &templateID, &t.Title, &description, &t.Status, &actionsJSON, &t.Version, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if templateID.Valid {
		t.TemplateID = &templateID.String
	}
	if description.Valid {
		t.Description = description.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	if t.Actions, err = decodeActions(actionsJSON); err != nil {
		return t, fmt.Errorf("task %s: %w", t.ID, err)
	}
	return t, nil
}

func decodeActions(data string) ([]domain.Action, error) {
	actions := []domain.Action{}
	if data == "" {
		return actions, nil
	}
	if err := json.Unmarshal([]byte(data), &actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	return actions, nil
}

func encodeActions(actions []domain.Action) (string, error) {
	if actions == nil {
		actions = []domain.Action{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return "", fmt.Errorf("encode actions: %w", err)
	}
	return string(data), nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	actionsJSON, err := encodeActions(t.Actions)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, nullableStringPtr(t.TemplateID), t.Title, nullable(t.Description), t.Status, actionsJSON, t.Version,
		t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

// UpdateTask writes t if the stored version still equals expectedVersion and bumps the
// version. It returns the new version or ErrConflict.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task, expectedVersion int) (int, error) {
	actionsJSON, err := encodeActions(t.Actions)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, actions_json=?, version=version+1, updated_at=?, completed_at=? WHERE id=? AND version=?`,
		t.Title, nullable(t.Description), t.Status, actionsJSON, t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID, expectedVersion)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetTaskTx(ctx, tx, t.ID); err != nil {
			return 0, err
		}
		return 0, ErrConflict
	}
	return expectedVersion + 1, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.TemplateID != "" {
		clauses = append(clauses, "template_id=?")
		args = append(args, f.TemplateID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
