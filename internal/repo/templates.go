package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"actionflow/internal/domain"
)

const templateColumns = `id,name,description,actions_json,version,created_at,updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (domain.Template, error) {
	var t domain.Template
	var description sql.NullString
	var actionsJSON string
	err := row.Scan(&t.ID, &t.Name, &description, &actionsJSON, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if t.Actions, err = decodeActions(actionsJSON); err != nil {
		return t, fmt.Errorf("template %s: %w", t.ID, err)
	}
	return t, nil
}

// UpsertTemplate inserts t or replaces the stored template with the same id, bumping its version.
func (r Repo) UpsertTemplate(ctx context.Context, tx *sql.Tx, t domain.Template) (domain.Template, error) {
	actionsJSON, err := encodeActions(t.Actions)
	if err != nil {
		return t, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO templates(`+templateColumns+`) VALUES (?,?,?,?,1,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description, actions_json=excluded.actions_json,
version=templates.version+1, updated_at=excluded.updated_at`,
		t.ID, t.Name, nullable(t.Description), actionsJSON, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: templates.name") {
			return t, fmt.Errorf("template name %q already used", t.Name)
		}
		return t, err
	}
	return scanTemplate(tx.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id=?`, t.ID))
}

func (r Repo) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	return scanTemplate(r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id=?`, id))
}

func (r Repo) GetTemplateTx(ctx context.Context, tx *sql.Tx, id string) (domain.Template, error) {
	return scanTemplate(tx.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id=?`, id))
}

func (r Repo) GetTemplateByName(ctx context.Context, name string) (domain.Template, error) {
	return scanTemplate(r.DB.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE name=?`, name))
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
