package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"actionflow/internal/config"
	"actionflow/internal/domain"
	"actionflow/internal/events"
	"actionflow/internal/graph"
	"actionflow/internal/repo"
)

// TaskRef addresses a stored task. A non-zero ExpectedVersion must match the stored version.
type TaskRef struct {
	ProjectID       string
	TaskID          string
	ExpectedVersion int
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID          string
	ProjectID   string
	TemplateID  string
	Title       string
	Description string
	Actions     []domain.Action
	ActorID     string
}

type pendingEvent struct {
	Type     string
	Kind     string
	EntityID string
	Payload  events.EventPayload
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, InvalidInputError{Field: "title", Reason: "required"}
	}
	if opts.ProjectID == "" {
		return domain.Task{}, InvalidInputError{Field: "project", Reason: "required"}
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Task{}, err
	}
	cfg, err := e.projectConfig(ctx, opts.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	actions, err := prepareActions(cfg, opts.Actions)
	if err != nil {
		return domain.Task{}, err
	}
	if err := graph.Validate(actions); err != nil {
		return domain.Task{}, err
	}
	now := e.timestamp()
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := domain.Task{
		ID:          id,
		ProjectID:   opts.ProjectID,
		TemplateID:  optionalString(opts.TemplateID),
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.TaskActive,
		Actions:     actions,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	w := e.writer()
	if err := w.Append(ctx, tx, events.TaskCreated, t.ProjectID, events.KindTask, t.ID, opts.ActorID, events.EventPayload{
		"title":       t.Title,
		"actions":     len(t.Actions),
		"template_id": opts.TemplateID,
	}); err != nil {
		return domain.Task{}, err
	}
	if opts.TemplateID != "" {
		if err := w.Append(ctx, tx, events.TemplateInstantiated, t.ProjectID, events.KindTemplate, opts.TemplateID, opts.ActorID, events.EventPayload{"task_id": t.ID}); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// GetTask returns a task that belongs to projectID.
func (e Engine) GetTask(ctx context.Context, projectID, taskID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return t, err
	}
	if projectID != "" && t.ProjectID != projectID {
		return domain.Task{}, fmt.Errorf("task %s: %w", taskID, repo.ErrNotFound)
	}
	return t, nil
}

// AddAction appends action to the task graph.
func (e Engine) AddAction(ctx context.Context, ref TaskRef, action domain.Action, actorID string) (domain.Task, error) {
	return e.mutateTask(ctx, ref, actorID, func(t domain.Task, cfg *config.Config) ([]domain.Action, []pendingEvent, error) {
		prepared, err := prepareActions(cfg, []domain.Action{action})
		if err != nil {
			return nil, nil, err
		}
		a := prepared[0]
		next, err := graph.AddAction(t.Actions, a)
		if err != nil {
			return nil, nil, err
		}
		return next, []pendingEvent{{
			Type:     events.ActionAdded,
			Kind:     events.KindAction,
			EntityID: a.ID,
			Payload:  events.EventPayload{"task_id": t.ID, "title": a.Title, "type": a.Type, "depends_on": a.DependsOn},
		}}, nil
	})
}

// RemoveAction deletes an action no other action depends on.
func (e Engine) RemoveAction(ctx context.Context, ref TaskRef, actionID, actorID string) (domain.Task, error) {
	return e.mutateTask(ctx, ref, actorID, func(t domain.Task, _ *config.Config) ([]domain.Action, []pendingEvent, error) {
		next, err := graph.RemoveAction(t.Actions, actionID)
		if err != nil {
			return nil, nil, err
		}
		return next, []pendingEvent{{
			Type:     events.ActionRemoved,
			Kind:     events.KindAction,
			EntityID: actionID,
			Payload:  events.EventPayload{"task_id": t.ID},
		}}, nil
	})
}

// SetDependencies replaces the dependencies of actionID.
func (e Engine) SetDependencies(ctx context.Context, ref TaskRef, actionID string, dependsOn []string, actorID string) (domain.Task, error) {
	return e.mutateTask(ctx, ref, actorID, func(t domain.Task, _ *config.Config) ([]domain.Action, []pendingEvent, error) {
		var before []string
		for _, a := range t.Actions {
			if a.ID == actionID {
				before = a.DependsOn
			}
		}
		next, err := graph.SetDependencies(t.Actions, actionID, dependsOn)
		if err != nil {
			return nil, nil, err
		}
		var after []string
		for _, a := range next {
			if a.ID == actionID {
				after = a.DependsOn
			}
		}
		e.log().Debug("dependencies changed", "task_id", t.ID, "action_id", actionID, "from", before, "to", after)
		return next, []pendingEvent{{
			Type:     events.ActionDepsChanged,
			Kind:     events.KindAction,
			EntityID: actionID,
			Payload:  events.EventPayload{"task_id": t.ID, "from": before, "to": after},
		}}, nil
	})
}

// CompleteOptions carries the caller-supplied completion metadata.
type CompleteOptions struct {
	TaskRef
	ActionID       string
	ActorID        string
	Attachments    []string
	ApprovalStatus string
}

// CompletionResult is the stored task after completion plus the actions it unlocked.
type CompletionResult struct {
	Task           domain.Task
	NewlyAvailable []domain.Action
}

func (e Engine) CompleteAction(ctx context.Context, opts CompleteOptions) (CompletionResult, error) {
	if opts.ActorID == "" {
		return CompletionResult{}, InvalidInputError{Field: "actor", Reason: "required to complete an action"}
	}
	var unlocked []domain.Action
	t, err := e.mutateTask(ctx, opts.TaskRef, opts.ActorID, func(t domain.Task, _ *config.Config) ([]domain.Action, []pendingEvent, error) {
		if opts.ApprovalStatus != "" {
			if a, ok := findAction(t.Actions, opts.ActionID); ok && a.Type != domain.ActionApproval {
				return nil, nil, InvalidInputError{Field: "approval_status", Reason: "only approval actions carry an approval status"}
			}
		}
		res, err := graph.Complete(t.Actions, opts.ActionID, domain.CompletionMeta{
			ActorID:        opts.ActorID,
			At:             e.now(),
			Attachments:    opts.Attachments,
			ApprovalStatus: opts.ApprovalStatus,
		})
		if err != nil {
			return nil, nil, err
		}
		unlocked = res.NewlyAvailable
		if prev, _ := findAction(t.Actions, opts.ActionID); prev.Completed {
			return res.Actions, nil, nil
		}
		evts := []pendingEvent{{
			Type:     events.ActionCompleted,
			Kind:     events.KindAction,
			EntityID: opts.ActionID,
			Payload: events.EventPayload{
				"task_id":         t.ID,
				"attachments":     opts.Attachments,
				"approval_status": opts.ApprovalStatus,
			},
		}}
		for _, a := range res.NewlyAvailable {
			evts = append(evts, pendingEvent{
				Type:     events.ActionUnlocked,
				Kind:     events.KindAction,
				EntityID: a.ID,
				Payload:  events.EventPayload{"task_id": t.ID, "unlocked_by": opts.ActionID},
			})
		}
		return res.Actions, evts, nil
	})
	if err != nil {
		return CompletionResult{}, err
	}
	if unlocked == nil {
		unlocked = []domain.Action{}
	}
	return CompletionResult{Task: t, NewlyAvailable: unlocked}, nil
}

// UncompleteAction reverts a completed action whose dependents are all still incomplete.
func (e Engine) UncompleteAction(ctx context.Context, ref TaskRef, actionID, actorID string) (domain.Task, error) {
	return e.mutateTask(ctx, ref, actorID, func(t domain.Task, _ *config.Config) ([]domain.Action, []pendingEvent, error) {
		next, err := graph.Uncomplete(t.Actions, actionID)
		if err != nil {
			return nil, nil, err
		}
		if prev, _ := findAction(t.Actions, actionID); !prev.Completed {
			return next, nil, nil
		}
		return next, []pendingEvent{{
			Type:     events.ActionUncompleted,
			Kind:     events.KindAction,
			EntityID: actionID,
			Payload:  events.EventPayload{"task_id": t.ID},
		}}, nil
	})
}

// mutateTask runs one graph transform against the stored task and persists the result.
// The task status follows completion: all completed moves it to the configured status,
// anything incomplete moves it back to active.
func (e Engine) mutateTask(
	ctx context.Context,
	ref TaskRef,
	actorID string,
	apply func(t domain.Task, cfg *config.Config) ([]domain.Action, []pendingEvent, error),
) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.loadTask(ctx, tx, ref)
	if err != nil {
		return domain.Task{}, err
	}
	if err := editable(t); err != nil {
		return domain.Task{}, err
	}
	cfg, err := e.projectConfig(ctx, t.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	next, evts, err := apply(t, cfg)
	if err != nil {
		return domain.Task{}, err
	}
	fromStatus := t.Status
	t.Actions = next
	target := domain.TaskActive
	if graph.AllCompleted(t.Actions) {
		target = cfg.Tasks.OnAllCompleted
	}
	if target != t.Status {
		if err := ensureTaskTransition(t.Status, target); err != nil {
			return domain.Task{}, err
		}
		t.Status = target
		if target == domain.TaskActive {
			t.CompletedAt = nil
		} else {
			now := e.timestamp()
			t.CompletedAt = &now
		}
		evts = append(evts, pendingEvent{
			Type:     events.TaskStatusChanged,
			Kind:     events.KindTask,
			EntityID: t.ID,
			Payload:  events.EventPayload{"from_status": fromStatus, "to_status": t.Status},
		})
	}
	if len(evts) == 0 {
		// no-op transitions leave the stored row and its version alone
		return t, nil
	}
	if err := e.storeTask(ctx, tx, &t); err != nil {
		return domain.Task{}, err
	}
	w := e.writer()
	for _, ev := range evts {
		if err := w.Append(ctx, tx, ev.Type, t.ProjectID, ev.Kind, ev.EntityID, actorID, ev.Payload); err != nil {
			return domain.Task{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) loadTask(ctx context.Context, tx *sql.Tx, ref TaskRef) (domain.Task, error) {
	if ref.TaskID == "" {
		return domain.Task{}, InvalidInputError{Field: "task id", Reason: "required"}
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, ref.TaskID)
	if err != nil {
		return t, err
	}
	if ref.ProjectID != "" && t.ProjectID != ref.ProjectID {
		return domain.Task{}, fmt.Errorf("task %s: %w", ref.TaskID, repo.ErrNotFound)
	}
	if ref.ExpectedVersion != 0 && ref.ExpectedVersion != t.Version {
		e.log().Warn("stale task version", "task_id", t.ID, "expected", ref.ExpectedVersion, "stored", t.Version)
		return domain.Task{}, fmt.Errorf("task %s at version %d, expected %d: %w", t.ID, t.Version, ref.ExpectedVersion, repo.ErrConflict)
	}
	return t, nil
}

func (e Engine) storeTask(ctx context.Context, tx *sql.Tx, t *domain.Task) error {
	t.UpdatedAt = e.timestamp()
	version, err := e.Repo.UpdateTask(ctx, tx, *t, t.Version)
	if errors.Is(err, repo.ErrConflict) {
		e.log().Warn("concurrent task update", "task_id", t.ID, "version", t.Version)
	}
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	t.Version = version
	return nil
}

// prepareActions fills generated ids and the default type, checks the type catalog,
// collapses repeated dependencies and resets completion state so new graphs always start
// incomplete.
func prepareActions(cfg *config.Config, actions []domain.Action) ([]domain.Action, error) {
	out := domain.CloneActions(actions)
	if out == nil {
		out = []domain.Action{}
	}
	defaultType := domain.ActionText
	if cfg != nil && cfg.Actions.DefaultType != "" {
		defaultType = cfg.Actions.DefaultType
	}
	for i := range out {
		a := &out[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.Title == "" {
			return nil, InvalidInputError{Field: "title", Reason: fmt.Sprintf("action %s has no title", a.ID)}
		}
		if a.Type == "" {
			a.Type = defaultType
		}
		if !a.Type.Valid() {
			return nil, InvalidInputError{Field: "type", Reason: fmt.Sprintf("action %s has unknown type %q", a.ID, a.Type)}
		}
		if cfg != nil && !cfg.AllowsType(a.Type) {
			return nil, ActionTypeNotAllowedError{ActionID: a.ID, Type: string(a.Type)}
		}
		a.DependsOn = graph.UniqueIDs(a.DependsOn)
		resetCompletion(a)
	}
	return out, nil
}

func resetCompletion(a *domain.Action) {
	a.Completed = false
	a.CompletedAt = nil
	a.CompletedBy = nil
	a.Attachments = nil
	a.ApprovalStatus = ""
}

func findAction(actions []domain.Action, id string) (domain.Action, bool) {
	for _, a := range actions {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Action{}, false
}
