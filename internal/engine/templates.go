package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"actionflow/internal/assembler"
	"actionflow/internal/config"
	"actionflow/internal/domain"
	"actionflow/internal/events"
	"actionflow/internal/graph"
)

// TemplateSaveOptions create or replace a template.
type TemplateSaveOptions struct {
	ID          string
	Name        string
	Description string
	Actions     []domain.Action
	ActorID     string
}

// SaveTemplate validates the action graph and stores it with completion state cleared.
// Saving an existing id replaces the template and bumps its version.
func (e Engine) SaveTemplate(ctx context.Context, opts TemplateSaveOptions) (domain.Template, error) {
	if opts.Name == "" {
		return domain.Template{}, InvalidInputError{Field: "name", Reason: "required"}
	}
	if len(opts.Actions) == 0 {
		return domain.Template{}, InvalidInputError{Field: "actions", Reason: "a template needs at least one action"}
	}
	// templates are project independent: only the global type list applies
	actions, err := prepareActions(nil, opts.Actions)
	if err != nil {
		return domain.Template{}, err
	}
	if err := graph.Validate(actions); err != nil {
		return domain.Template{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte("template|"+opts.Name)).String()
	}
	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Template{}, err
	}
	defer tx.Rollback()

	saved, err := e.Repo.UpsertTemplate(ctx, tx, domain.Template{
		ID:          id,
		Name:        opts.Name,
		Description: opts.Description,
		Actions:     actions,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Template{}, fmt.Errorf("save template: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.TemplateSaved, "", events.KindTemplate, saved.ID, opts.ActorID, events.EventPayload{
		"name":    saved.Name,
		"version": saved.Version,
		"actions": len(saved.Actions),
	}); err != nil {
		return domain.Template{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Template{}, err
	}
	return saved, nil
}

// ImportTemplate turns an authored template file into a stored template. Steps only order
// the actions; dependencies are linked step to step when the file is marked sequential.
func (e Engine) ImportTemplate(ctx context.Context, f config.TemplateFile, actorID string) (domain.Template, error) {
	if err := f.Validate(); err != nil {
		return domain.Template{}, InvalidInputError{Field: "template", Reason: err.Error()}
	}
	actions, err := TemplateFileActions(f)
	if err != nil {
		return domain.Template{}, err
	}
	if f.Sequential {
		e.log().Info("linking template steps sequentially", "template", f.Name, "steps", len(f.Steps))
	}
	return e.SaveTemplate(ctx, TemplateSaveOptions{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Actions:     actions,
		ActorID:     actorID,
	})
}

// TemplateFileActions flattens a template file into an action collection.
func TemplateFileActions(f config.TemplateFile) ([]domain.Action, error) {
	steps := make([]assembler.Step, 0, len(f.Steps))
	byID := map[string]domain.Action{}
	for i, s := range f.Steps {
		step := assembler.Step{Index: i, Title: s.Title}
		for _, ta := range s.Actions {
			if _, dup := byID[ta.ID]; dup {
				return nil, graph.DuplicateActionError{ID: ta.ID}
			}
			byID[ta.ID] = domain.Action{
				ID:          ta.ID,
				Title:       ta.Title,
				Type:        ta.Type,
				Description: ta.Description,
				DependsOn:   append([]string(nil), ta.DependsOn...),
				IsBlocking:  ta.IsBlocking,
				Payload:     ta.Payload,
			}
			step.ActionIDs = append(step.ActionIDs, ta.ID)
		}
		steps = append(steps, step)
	}
	if f.Sequential {
		return assembler.SequenceSteps(steps, byID)
	}
	return assembler.FromSteps(steps, byID)
}

// InstantiateOptions create a task from a template.
type InstantiateOptions struct {
	TemplateID  string
	ProjectID   string
	Title       string
	Description string
	ActorID     string
}

func (e Engine) InstantiateTemplate(ctx context.Context, opts InstantiateOptions) (domain.Task, error) {
	tmpl, err := e.Repo.GetTemplate(ctx, opts.TemplateID)
	if err != nil {
		return domain.Task{}, err
	}
	title := opts.Title
	if title == "" {
		title = tmpl.Name
	}
	description := opts.Description
	if description == "" {
		description = tmpl.Description
	}
	return e.CreateTask(ctx, TaskCreateOptions{
		ProjectID:   opts.ProjectID,
		TemplateID:  tmpl.ID,
		Title:       title,
		Description: description,
		Actions:     tmpl.Actions,
		ActorID:     opts.ActorID,
	})
}
