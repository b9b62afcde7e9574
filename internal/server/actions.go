package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"actionflow/internal/engine"
)

// ActionPath binds one action of a task.
type ActionPath struct {
	TaskPath
	ActionID string `path:"action_id"`
}

var actionErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
}

func registerActions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-action",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks/{id}/actions",
		Summary:       "Add an action to a task",
		DefaultStatus: http.StatusCreated,
		Errors:        actionErrors,
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body ActionRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddAction(ctx, input.ref(), input.Body.action(), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-action",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/tasks/{id}/actions/{action_id}",
		Summary:     "Remove an action nothing depends on",
		Errors:      actionErrors,
	}, func(ctx context.Context, input *ActionPath) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RemoveAction(ctx, input.ref(), input.ActionID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-action-dependencies",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/tasks/{id}/actions/{action_id}/dependencies",
		Summary:     "Replace the dependencies of an action",
		Errors:      actionErrors,
	}, func(ctx context.Context, input *struct {
		ActionPath
		Body SetDependenciesRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		raw, ok := rawBodyMap(ctx)["depends_on"]
		if !ok || isNullRaw(raw) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "depends_on must be array", map[string]any{"field": "depends_on", "reason": "must be array"})
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetDependencies(ctx, input.ref(), input.ActionID, input.Body.DependsOn, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-action",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/{id}/actions/{action_id}/complete",
		Summary:     "Complete an available action",
		Description: "The authenticated actor is recorded as completed_by. The response lists the actions this completion made available.",
		Errors:      actionErrors,
	}, func(ctx context.Context, input *struct {
		ActionPath
		Body *CompleteActionRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body CompletionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.CompleteOptions{
			TaskRef:  input.ref(),
			ActionID: input.ActionID,
			ActorID:  actorID,
		}
		if input.Body != nil {
			opts.Attachments = input.Body.Attachments
			opts.ApprovalStatus = input.Body.ApprovalStatus
		}
		res, err := e.CompleteAction(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompletionResponse `json:"body"`
		}{Body: CompletionResponse{
			Task:           taskResponse(res.Task),
			NewlyAvailable: actionResponses(res.Task.Actions, res.NewlyAvailable),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "uncomplete-action",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/{id}/actions/{action_id}/uncomplete",
		Summary:     "Revert a completed action whose dependents are still open",
		Errors:      actionErrors,
	}, func(ctx context.Context, input *ActionPath) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UncompleteAction(ctx, input.ref(), input.ActionID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}
