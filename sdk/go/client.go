package actionflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal actionflow HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no token is set. Servers only honour it in dev mode.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Action is one node of a task graph as served by the API.
type Action struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Type           string         `json:"type,omitempty"`
	Description    string         `json:"description,omitempty"`
	Completed      bool           `json:"completed"`
	CompletedAt    string         `json:"completed_at,omitempty"`
	CompletedBy    string         `json:"completed_by,omitempty"`
	DependsOn      []string       `json:"depends_on,omitempty"`
	IsBlocking     bool           `json:"is_blocking,omitempty"`
	Attachments    []string       `json:"attachments,omitempty"`
	ApprovalStatus string         `json:"approval_status,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	State          string         `json:"state,omitempty"`
	Level          int            `json:"level,omitempty"`
}

// Progress is the workflow stage: Current of Total.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Task represents the API task model.
type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	TemplateID  string   `json:"template_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Actions     []Action `json:"actions"`
	Progress    Progress `json:"progress"`
	Version     int      `json:"version"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

// Step is a titled group of action ids.
type Step struct {
	Index     int      `json:"index"`
	Title     string   `json:"title"`
	ActionIDs []string `json:"action_ids"`
}

// Edge points from a dependency to the action that needs it.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is the derived view of a task graph.
type Graph struct {
	TaskID    string     `json:"task_id"`
	Version   int        `json:"version"`
	Levels    [][]string `json:"levels"`
	Steps     []Step     `json:"steps"`
	Completed []string   `json:"completed"`
	Available []string   `json:"available"`
	Blocked   []string   `json:"blocked"`
	Progress  Progress   `json:"progress"`
	Edges     []Edge     `json:"edges"`
}

// Completion is the task after a completion plus the actions it unlocked.
type Completion struct {
	Task           Task     `json:"task"`
	NewlyAvailable []Action `json:"newly_available"`
}

// Template is a reusable action graph.
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Actions     []Action `json:"actions"`
	Steps       []Step   `json:"steps"`
	Version     int      `json:"version"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses. Code is taken from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CompleteOptions carry completion evidence.
type CompleteOptions struct {
	Attachments    []string `json:"attachments,omitempty"`
	ApprovalStatus string   `json:"approval_status,omitempty"`
	// ExpectedVersion rejects the call with 409 when the task moved on.
	ExpectedVersion int `json:"-"`
}

// CreateTask creates a task with its action graph. Only id, title, type, description,
// depends_on, is_blocking and payload of each action are sent.
func (c *Client) CreateTask(ctx context.Context, id, title string, actions []Action) (Task, error) {
	body := map[string]any{
		"title":   title,
		"actions": actionBodies(actions),
	}
	if id != "" {
		body["id"] = id
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.projectPath("tasks"), body, &resp)
	return resp, err
}

// GetTask fetches a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, c.taskPath(taskID, ""), nil, &resp)
	return resp, err
}

// TaskGraph returns levels, availability, progress and edges of a task.
func (c *Client) TaskGraph(ctx context.Context, taskID string) (Graph, error) {
	var resp Graph
	err := c.do(ctx, http.MethodGet, c.taskPath(taskID, "graph"), nil, &resp)
	return resp, err
}

// AddAction appends an action to a task.
func (c *Client) AddAction(ctx context.Context, taskID string, action Action) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "actions"), actionBody(action), &resp)
	return resp, err
}

// RemoveAction deletes an action nothing depends on.
func (c *Client) RemoveAction(ctx context.Context, taskID, actionID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodDelete, c.taskPath(taskID, "actions/"+url.PathEscape(actionID)), nil, &resp)
	return resp, err
}

// SetDependencies replaces the dependency list of an action.
func (c *Client) SetDependencies(ctx context.Context, taskID, actionID string, dependsOn []string) (Task, error) {
	if dependsOn == nil {
		dependsOn = []string{}
	}
	var resp Task
	endpoint := c.taskPath(taskID, "actions/"+url.PathEscape(actionID)+"/dependencies")
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"depends_on": dependsOn}, &resp)
	return resp, err
}

// CompleteAction completes an available action as the authenticated actor.
func (c *Client) CompleteAction(ctx context.Context, taskID, actionID string, opts CompleteOptions) (Completion, error) {
	var resp Completion
	endpoint := withVersion(c.taskPath(taskID, "actions/"+url.PathEscape(actionID)+"/complete"), opts.ExpectedVersion)
	err := c.do(ctx, http.MethodPost, endpoint, opts, &resp)
	return resp, err
}

// UncompleteAction reverts a completed action.
func (c *Client) UncompleteAction(ctx context.Context, taskID, actionID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "actions/"+url.PathEscape(actionID)+"/uncomplete"), nil, &resp)
	return resp, err
}

// ReviewTask approves or rejects a task pending approval. reopen is only used on reject.
func (c *Client) ReviewTask(ctx context.Context, taskID, decision string, reopen []string) (Task, error) {
	body := map[string]any{"decision": decision}
	if len(reopen) > 0 {
		body["reopen"] = reopen
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.taskPath(taskID, "review"), body, &resp)
	return resp, err
}

// InstantiateTemplate creates a task in the client project from a template.
func (c *Client) InstantiateTemplate(ctx context.Context, templateID, title string) (Task, error) {
	body := map[string]any{"project_id": c.ProjectID}
	if title != "" {
		body["title"] = title
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/templates/%s/instantiate", url.PathEscape(templateID)), body, &resp)
	return resp, err
}

// Templates lists stored templates.
func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	var resp []Template
	err := c.do(ctx, http.MethodGet, "v0/templates", nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.projectPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) taskPath(taskID, sub string) string {
	p := "tasks/" + url.PathEscape(taskID)
	if sub != "" {
		p += "/" + sub
	}
	return c.projectPath(p)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func withVersion(endpoint string, version int) string {
	if version <= 0 {
		return endpoint
	}
	return fmt.Sprintf("%s?expected_version=%d", endpoint, version)
}

func actionBody(a Action) map[string]any {
	body := map[string]any{"title": a.Title}
	if a.ID != "" {
		body["id"] = a.ID
	}
	if a.Type != "" {
		body["type"] = a.Type
	}
	if a.Description != "" {
		body["description"] = a.Description
	}
	if len(a.DependsOn) > 0 {
		body["depends_on"] = a.DependsOn
	}
	if a.IsBlocking {
		body["is_blocking"] = true
	}
	if len(a.Payload) > 0 {
		body["payload"] = a.Payload
	}
	return body
}

func actionBodies(actions []Action) []map[string]any {
	out := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionBody(a))
	}
	return out
}
