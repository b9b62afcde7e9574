package server

import (
	"encoding/json"

	"actionflow/internal/assembler"
	"actionflow/internal/config"
	"actionflow/internal/domain"
	"actionflow/internal/engine"
	"actionflow/internal/graph"
)

// Request payloads

type CreateProjectRequest struct {
	ID          string  `json:"id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ActionRequest describes an action to add. Completion state is never accepted here.
type ActionRequest struct {
	ID          string            `json:"id,omitempty"`
	Title       string            `json:"title"`
	Type        domain.ActionType `json:"type,omitempty" enum:"text,long_text,file_upload,approval,date,document,info,video_upload,video_decoupage,video_editing,audio_processing"`
	Description string            `json:"description,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty"`
	IsBlocking  bool              `json:"is_blocking,omitempty"`
	Payload     map[string]any    `json:"payload,omitempty"`
}

type CreateTaskRequest struct {
	ID          *string         `json:"id,omitempty"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	Actions     []ActionRequest `json:"actions,omitempty"`
}

type SetDependenciesRequest struct {
	DependsOn []string `json:"depends_on"`
}

type CompleteActionRequest struct {
	Attachments    []string `json:"attachments,omitempty"`
	ApprovalStatus string   `json:"approval_status,omitempty"`
}

type ReviewTaskRequest struct {
	Decision string   `json:"decision" enum:"approve,reject"`
	Reopen   []string `json:"reopen,omitempty"`
	Comment  *string  `json:"comment,omitempty"`
}

type TemplateStepRequest struct {
	Title   string          `json:"title,omitempty"`
	Actions []ActionRequest `json:"actions"`
}

// SaveTemplateRequest carries either a flat action list or ordered steps.
type SaveTemplateRequest struct {
	ID          *string               `json:"id,omitempty"`
	Name        string                `json:"name"`
	Description *string               `json:"description,omitempty"`
	Sequential  bool                  `json:"sequential,omitempty"`
	Steps       []TemplateStepRequest `json:"steps,omitempty"`
	Actions     []ActionRequest       `json:"actions,omitempty"`
}

type InstantiateTemplateRequest struct {
	ProjectID   string  `json:"project_id"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ValidateGraphRequest takes full actions so completion state can be evaluated too.
type ValidateGraphRequest struct {
	Actions []domain.Action `json:"actions"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Responses

type ProjectResponse domain.Project

type ActionResponse struct {
	domain.Action
	State graph.State `json:"state" enum:"completed,available,blocked"`
	Level int         `json:"level"`
}

type TaskResponse struct {
	ID          string           `json:"id"`
	ProjectID   string           `json:"project_id"`
	TemplateID  *string          `json:"template_id,omitempty"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Status      string           `json:"status" enum:"active,pending_approval,approved,archived"`
	Actions     []ActionResponse `json:"actions"`
	Progress    graph.Progress   `json:"progress"`
	Version     int              `json:"version"`
	CreatedAt   string           `json:"created_at" format:"date-time"`
	UpdatedAt   string           `json:"updated_at" format:"date-time"`
	CompletedAt *string          `json:"completed_at,omitempty" format:"date-time"`
}

type GraphResponse struct {
	TaskID    string             `json:"task_id,omitempty"`
	Version   int                `json:"version,omitempty"`
	Levels    [][]string         `json:"levels"`
	Steps     []assembler.Step   `json:"steps"`
	Completed []string           `json:"completed"`
	Available []string           `json:"available"`
	Blocked   []string           `json:"blocked"`
	Progress  graph.Progress     `json:"progress"`
	Edges     []engine.GraphEdge `json:"edges"`
}

type StepsResponse struct {
	TaskID   string           `json:"task_id"`
	Steps    []assembler.Step `json:"steps"`
	Progress graph.Progress   `json:"progress"`
}

type CompletionResponse struct {
	Task           TaskResponse     `json:"task"`
	NewlyAvailable []ActionResponse `json:"newly_available"`
}

type TemplateResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Actions     []domain.Action  `json:"actions"`
	Steps       []assembler.Step `json:"steps"`
	Version     int              `json:"version"`
	CreatedAt   string           `json:"created_at" format:"date-time"`
	UpdatedAt   string           `json:"updated_at" format:"date-time"`
}

type ProjectConfigResponse struct {
	ProjectID      string              `json:"project_id"`
	Kind           string              `json:"kind"`
	ActionTypes    []domain.ActionType `json:"action_types"`
	DefaultType    domain.ActionType   `json:"default_type"`
	OnAllCompleted string              `json:"on_all_completed"`
	AllowReject    bool                `json:"allow_reject"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse(p)
}

func (a ActionRequest) action() domain.Action {
	return domain.Action{
		ID:          a.ID,
		Title:       a.Title,
		Type:        a.Type,
		Description: a.Description,
		DependsOn:   a.DependsOn,
		IsBlocking:  a.IsBlocking,
		Payload:     a.Payload,
	}
}

func requestActions(in []ActionRequest) []domain.Action {
	out := make([]domain.Action, 0, len(in))
	for _, a := range in {
		out = append(out, a.action())
	}
	return out
}

// actionResponses annotates actions with their state and level. Levels are -1 when the
// graph is invalid, which a stored task never is.
func actionResponses(all []domain.Action, subset []domain.Action) []ActionResponse {
	avail := graph.Classify(all)
	states := map[string]graph.State{}
	for _, a := range avail.Completed {
		states[a.ID] = graph.StateCompleted
	}
	for _, a := range avail.Available {
		states[a.ID] = graph.StateAvailable
	}
	for _, a := range avail.Blocked {
		states[a.ID] = graph.StateBlocked
	}
	var index map[string]int
	if levels, err := graph.Levels(all); err == nil {
		index = graph.LevelIndex(levels)
	}
	res := make([]ActionResponse, 0, len(subset))
	for _, a := range subset {
		level, ok := index[a.ID]
		if !ok {
			level = -1
		}
		res = append(res, ActionResponse{Action: a, State: states[a.ID], Level: level})
	}
	return res
}

func taskResponse(t domain.Task) TaskResponse {
	var progress graph.Progress
	if levels, err := graph.Levels(t.Actions); err == nil {
		progress = graph.ProgressOf(levels)
	}
	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		TemplateID:  t.TemplateID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Actions:     actionResponses(t.Actions, t.Actions),
		Progress:    progress,
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func graphResponse(view engine.GraphView) GraphResponse {
	levels := make([][]string, 0, len(view.Levels))
	for _, l := range view.Levels {
		levels = append(levels, l.IDs())
	}
	return GraphResponse{
		Levels:    levels,
		Steps:     nonNilSlice(view.Steps),
		Completed: actionIDs(view.Availability.Completed),
		Available: actionIDs(view.Availability.Available),
		Blocked:   actionIDs(view.Availability.Blocked),
		Progress:  view.Progress,
		Edges:     nonNilSlice(view.Edges),
	}
}

func templateResponse(t domain.Template) TemplateResponse {
	steps, err := assembler.ToSteps(t.Actions)
	if err != nil {
		steps = nil
	}
	return TemplateResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Actions:     nonNilSlice(t.Actions),
		Steps:       nonNilSlice(steps),
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func configResponse(cfg *config.Config) ProjectConfigResponse {
	return ProjectConfigResponse{
		ProjectID:      cfg.Project.ID,
		Kind:           cfg.Project.Kind,
		ActionTypes:    nonNilSlice(cfg.Actions.Types),
		DefaultType:    cfg.Actions.DefaultType,
		OnAllCompleted: cfg.Tasks.OnAllCompleted,
		AllowReject:    cfg.Tasks.Review.AllowReject,
	}
}

func actionIDs(actions []domain.Action) []string {
	ids := make([]string, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.ID)
	}
	return ids
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
