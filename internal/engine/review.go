package engine

import (
	"context"
	"sort"

	"actionflow/internal/domain"
	"actionflow/internal/events"
	"actionflow/internal/graph"
)

const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
)

// ReviewOptions approve or reject a task waiting in pending_approval.
type ReviewOptions struct {
	TaskRef
	Decision string
	// Reopen lists the actions reverted on rejection. Empty reopens every action nothing
	// depends on.
	Reopen  []string
	Comment string
	ActorID string
}

func (e Engine) ReviewTask(ctx context.Context, opts ReviewOptions) (domain.Task, error) {
	if opts.Decision != ReviewApprove && opts.Decision != ReviewReject {
		return domain.Task{}, InvalidInputError{Field: "decision", Reason: "must be approve or reject"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.loadTask(ctx, tx, opts.TaskRef)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Status != domain.TaskPendingApproval {
		target := domain.TaskApproved
		if opts.Decision == ReviewReject {
			target = domain.TaskActive
		}
		return domain.Task{}, TransitionError{From: t.Status, To: target}
	}
	fromStatus := t.Status
	var reopened []string
	switch opts.Decision {
	case ReviewApprove:
		t.Status = domain.TaskApproved
	case ReviewReject:
		cfg, err := e.projectConfig(ctx, t.ProjectID)
		if err != nil {
			return domain.Task{}, err
		}
		if !cfg.Tasks.Review.AllowReject {
			return domain.Task{}, InvalidInputError{Field: "decision", Reason: "rejection is disabled for this project"}
		}
		reopened = opts.Reopen
		if len(reopened) == 0 {
			if reopened, err = sinkActions(t.Actions); err != nil {
				return domain.Task{}, err
			}
		}
		if reopened, err = reopenOrder(t.Actions, reopened); err != nil {
			return domain.Task{}, err
		}
		next := t.Actions
		for _, id := range reopened {
			if next, err = graph.Uncomplete(next, id); err != nil {
				return domain.Task{}, err
			}
		}
		t.Actions = next
		t.Status = domain.TaskActive
		t.CompletedAt = nil
	}
	if err := e.storeTask(ctx, tx, &t); err != nil {
		return domain.Task{}, err
	}
	w := e.writer()
	if err := w.Append(ctx, tx, events.TaskReviewed, t.ProjectID, events.KindTask, t.ID, opts.ActorID, events.EventPayload{
		"decision": opts.Decision,
		"comment":  opts.Comment,
		"reopened": reopened,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := w.Append(ctx, tx, events.TaskStatusChanged, t.ProjectID, events.KindTask, t.ID, opts.ActorID, events.EventPayload{
		"from_status": fromStatus,
		"to_status":   t.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ArchiveTask retires a task. Archived tasks are read-only.
func (e Engine) ArchiveTask(ctx context.Context, ref TaskRef, actorID string) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.loadTask(ctx, tx, ref)
	if err != nil {
		return domain.Task{}, err
	}
	if err := ensureTaskTransition(t.Status, domain.TaskArchived); err != nil {
		return domain.Task{}, err
	}
	fromStatus := t.Status
	t.Status = domain.TaskArchived
	if err := e.storeTask(ctx, tx, &t); err != nil {
		return domain.Task{}, err
	}
	if err := e.writer().Append(ctx, tx, events.TaskStatusChanged, t.ProjectID, events.KindTask, t.ID, actorID, events.EventPayload{
		"from_status": fromStatus,
		"to_status":   t.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// sinkActions returns the actions no other action depends on, in collection order.
func sinkActions(actions []domain.Action) ([]string, error) {
	g, err := graph.Build(actions)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, id := range g.IDs() {
		if len(g.DependentsOf(id)) == 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// reopenOrder sorts ids deepest level first so every dependent is reverted before the
// actions it depends on. Ties keep the caller's order.
func reopenOrder(actions []domain.Action, ids []string) ([]string, error) {
	levels, err := graph.Levels(actions)
	if err != nil {
		return nil, err
	}
	depth := graph.LevelIndex(levels)
	ordered := graph.UniqueIDs(ids)
	sort.SliceStable(ordered, func(i, j int) bool {
		return depth[ordered[i]] > depth[ordered[j]]
	})
	return ordered, nil
}
