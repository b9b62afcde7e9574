package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"actionflow/internal/config"
	"actionflow/internal/domain"
	"actionflow/internal/engine"
)

func registerTemplates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "save-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Create or replace a template",
		Description:   "Send either flat actions with explicit depends_on, or steps. Steps only order actions unless sequential is set.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body SaveTemplateRequest `json:"body"`
	}) (*struct {
		Body TemplateResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if len(input.Body.Steps) > 0 && len(input.Body.Actions) > 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "send steps or actions, not both", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var (
			tmpl domain.Template
			err  error
		)
		if len(input.Body.Steps) > 0 {
			tmpl, err = e.ImportTemplate(ctx, templateFile(input.Body), actorID)
		} else {
			tmpl, err = e.SaveTemplate(ctx, engine.TemplateSaveOptions{
				ID:          stringOrEmpty(input.Body.ID),
				Name:        input.Body.Name,
				Description: stringOrEmpty(input.Body.Description),
				Actions:     requestActions(input.Body.Actions),
				ActorID:     actorID,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateResponse `json:"body"`
		}{Body: templateResponse(tmpl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TemplateResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListTemplates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]TemplateResponse, 0, len(items))
		for _, t := range items {
			res = append(res, templateResponse(t))
		}
		return &struct {
			Body []TemplateResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{id}",
		Summary:     "Get template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TemplateResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateResponse `json:"body"`
		}{Body: templateResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "instantiate-template",
		Method:        http.MethodPost,
		Path:          "/templates/{id}/instantiate",
		Summary:       "Create a task from a template",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                     `path:"id"`
		Body InstantiateTemplateRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if input.Body.ProjectID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "project_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.InstantiateTemplate(ctx, engine.InstantiateOptions{
			TemplateID:  input.ID,
			ProjectID:   input.Body.ProjectID,
			Title:       stringOrEmpty(input.Body.Title),
			Description: stringOrEmpty(input.Body.Description),
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func templateFile(req SaveTemplateRequest) config.TemplateFile {
	f := config.TemplateFile{
		ID:          stringOrEmpty(req.ID),
		Name:        req.Name,
		Description: stringOrEmpty(req.Description),
		Sequential:  req.Sequential,
	}
	for _, s := range req.Steps {
		step := config.TemplateStep{Title: s.Title}
		for _, a := range s.Actions {
			step.Actions = append(step.Actions, config.TemplateAction{
				ID:          a.ID,
				Title:       a.Title,
				Type:        a.Type,
				Description: a.Description,
				DependsOn:   a.DependsOn,
				IsBlocking:  a.IsBlocking,
				Payload:     a.Payload,
			})
		}
		f.Steps = append(f.Steps, step)
	}
	return f
}

func registerGraph(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-graph",
		Method:      http.MethodPost,
		Path:        "/graph/validate",
		Summary:     "Validate an action collection and compute its levels",
		Description: "Stateless. Nothing is stored.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body ValidateGraphRequest `json:"body"`
	}) (*struct {
		Body GraphResponse `json:"body"`
	}, error) {
		view, err := engine.BuildGraphView(input.Body.Actions)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GraphResponse `json:"body"`
		}{Body: graphResponse(view)}, nil
	})
}
