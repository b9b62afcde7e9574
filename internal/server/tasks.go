package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"actionflow/internal/engine"
	"actionflow/internal/repo"
)

// TaskPath binds the task addressed by a request. Huma only binds exported embedded
// structs, so inputs embed this type by name.
type TaskPath struct {
	ProjectID       string `path:"project_id"`
	ID              string `path:"id"`
	ExpectedVersion int    `query:"expected_version" doc:"Reject the change with 409 unless the task is at this version"`
}

func (p TaskPath) ref() engine.TaskRef {
	return engine.TaskRef{ProjectID: p.ProjectID, TaskID: p.ID, ExpectedVersion: p.ExpectedVersion}
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		if isNullRaw(rawBodyMap(ctx)["actions"]) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actions must be array", map[string]any{"field": "actions", "reason": "must be array"})
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ID:          stringOrEmpty(input.Body.ID),
			ProjectID:   input.ProjectID,
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			Actions:     requestActions(input.Body.Actions),
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Status     string `query:"status" enum:"active,pending_approval,approved,archived"`
		TemplateID string `query:"template_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			ProjectID:       input.ProjectID,
			Status:          input.Status,
			TemplateID:      input.TemplateID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []TaskResponse{}}
		if len(tasks) > limit {
			resp.NextCursor = composeCursor(tasks[limit-1].CreatedAt, tasks[limit-1].ID)
			tasks = tasks[:limit]
		}
		for _, t := range tasks {
			resp.Items = append(resp.Items, taskResponse(t))
		}
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.GetTask(ctx, input.ProjectID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task-graph",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks/{id}/graph",
		Summary:     "Levels, availability, progress and edges of a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body GraphResponse `json:"body"`
	}, error) {
		t, view, err := e.TaskGraph(ctx, input.ProjectID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := graphResponse(view)
		resp.TaskID = t.ID
		resp.Version = t.Version
		return &struct {
			Body GraphResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task-steps",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks/{id}/steps",
		Summary:     "Task actions grouped into ordered steps",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body StepsResponse `json:"body"`
	}, error) {
		t, view, err := e.TaskGraph(ctx, input.ProjectID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StepsResponse `json:"body"`
		}{Body: StepsResponse{TaskID: t.ID, Steps: nonNilSlice(view.Steps), Progress: view.Progress}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-task",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/{id}/review",
		Summary:     "Approve or reject a task pending approval",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body ReviewTaskRequest `json:"body"`
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
		t, err := e.ReviewTask(ctx, engine.ReviewOptions{
			TaskRef:  input.ref(),
			Decision: input.Body.Decision,
			Reopen:   input.Body.Reopen,
			Comment:  stringOrEmpty(input.Body.Comment),
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-task",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/tasks/{id}/archive",
		Summary:     "Archive task",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *TaskPath) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ArchiveTask(ctx, input.ref(), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}
