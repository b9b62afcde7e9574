// Package engine runs the dependency graph operations against stored projects, tasks and
// templates. Each mutation loads a snapshot inside one transaction, applies a pure graph
// transform, writes the result back under a version check and appends events.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"actionflow/internal/config"
	"actionflow/internal/domain"
	"actionflow/internal/events"
	"actionflow/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	// Config is used for its own project; other projects read their stored config.
	Config *config.Config
	Now    func() time.Time
	Logger *slog.Logger
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		Logger: slog.Default(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// writer returns the event writer stamped with the engine clock.
func (e Engine) writer() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// projectConfig returns the config governing projectID.
func (e Engine) projectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	if e.Config != nil && e.Config.Project.ID == projectID {
		return e.Config, nil
	}
	cfg, err := e.Repo.GetProjectConfig(ctx, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return config.Default(projectID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config for %s: %w", projectID, err)
	}
	return cfg, nil
}

// InitProject creates a project with its default config.
func (e Engine) InitProject(ctx context.Context, projectID, name, description, actorID string) (domain.Project, error) {
	if projectID == "" {
		return domain.Project{}, InvalidInputError{Field: "project id", Reason: "required"}
	}
	if name == "" {
		name = projectID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p := domain.Project{
		ID:          projectID,
		Name:        name,
		Status:      "active",
		Description: description,
		CreatedAt:   e.timestamp(),
	}
	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	cfg := config.Default(p.ID)
	if e.Config != nil && e.Config.Project.ID == p.ID {
		cfg = e.Config
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, cfg); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.ProjectCreated, p.ID, events.KindProject, p.ID, actorID, events.EventPayload{"name": p.Name, "status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ImportProjectConfig replaces the stored config of projectID.
func (e Engine) ImportProjectConfig(ctx context.Context, projectID string, cfg *config.Config, actorID string) error {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, projectID, cfg); err != nil {
		return err
	}
	if err := e.writer().Append(ctx, tx, events.ProjectConfigUpdated, projectID, events.KindProject, projectID, actorID, events.EventPayload{
		"action_types":     cfg.Actions.Types,
		"on_all_completed": cfg.Tasks.OnAllCompleted,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ensureTaskTransition enforces the task lifecycle:
// active -> pending_approval | approved | archived,
// pending_approval -> active | approved | archived,
// approved -> archived.
func ensureTaskTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.TaskActive:
		if newStatus == domain.TaskPendingApproval || newStatus == domain.TaskApproved || newStatus == domain.TaskArchived {
			return nil
		}
	case domain.TaskPendingApproval:
		if newStatus == domain.TaskActive || newStatus == domain.TaskApproved || newStatus == domain.TaskArchived {
			return nil
		}
	case domain.TaskApproved:
		if newStatus == domain.TaskArchived {
			return nil
		}
	}
	return TransitionError{From: oldStatus, To: newStatus}
}

func editable(t domain.Task) error {
	if t.Status == domain.TaskApproved || t.Status == domain.TaskArchived {
		return TaskLockedError{TaskID: t.ID, Status: t.Status}
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
