package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"

	"actionflow/internal/config"
	"actionflow/internal/db"
	"actionflow/internal/engine"
	"actionflow/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("proj-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitProject(context.Background(), cfg.Project.ID, "Project One", "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

var asTester = map[string]string{"X-Actor-Id": "tester"}

func diamondBody(id string) map[string]any {
	return map[string]any{
		"id":    id,
		"title": "Diamond",
		"actions": []map[string]any{
			{"id": "A", "title": "Brief"},
			{"id": "B", "title": "Script", "depends_on": []string{"A"}},
			{"id": "C", "title": "Storyboard", "depends_on": []string{"A"}},
			{"id": "D", "title": "Sign-off", "type": "approval", "depends_on": []string{"B", "C"}},
		},
	}
}

func createDiamond(t *testing.T, srv *testServer, id string) TaskResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks", diamondBody(id), asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return task
}

func TestCreateTaskWithCycleReturns422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks", map[string]any{
		"title": "Loop",
		"actions": []map[string]any{
			{"id": "A", "title": "First", "depends_on": []string{"B"}},
			{"id": "B", "title": "Second", "depends_on": []string{"A"}},
		},
	}, asTester)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	apiErr := decodeError(t, data)
	if apiErr.Code != "cycle_detected" {
		t.Fatalf("expected cycle_detected, got %q", apiErr.Code)
	}
	ids, ok := apiErr.Details["ids"].([]any)
	if !ok || len(ids) != 2 {
		t.Fatalf("expected two cycle ids, got %#v", apiErr.Details["ids"])
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/proj-1/tasks", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedTasks
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("rejected task must not be stored, got %d", len(page.Items))
	}
}

func TestUnknownDependencyReturns422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks", map[string]any{
		"title":   "Dangling",
		"actions": []map[string]any{{"id": "A", "title": "First", "depends_on": []string{"ghost"}}},
	}, asTester)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	apiErr := decodeError(t, data)
	if apiErr.Code != "unknown_dependency" || apiErr.Details["missing_id"] != "ghost" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestCompleteReturnsNewlyAvailableAndRecordsJWTSubject(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createDiamond(t, srv, "task-1")

	token, err := SignToken(testSecret, "alice", 0)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks/task-1/actions/A/complete", map[string]any{
		"attachments": []string{"brief.pdf"},
	}, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var out CompletionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal completion: %v", err)
	}
	var unlocked []string
	for _, a := range out.NewlyAvailable {
		unlocked = append(unlocked, a.ID)
		if a.State != "available" {
			t.Fatalf("newly available %s has state %s", a.ID, a.State)
		}
	}
	if len(unlocked) != 2 || unlocked[0] != "B" || unlocked[1] != "C" {
		t.Fatalf("expected [B C] newly available, got %v", unlocked)
	}
	a := out.Task.Actions[0]
	if !a.Completed || a.CompletedBy == nil || *a.CompletedBy != "alice" {
		t.Fatalf("expected A completed by alice, got %+v", a.Action)
	}
	if len(a.Attachments) != 1 || a.Attachments[0] != "brief.pdf" {
		t.Fatalf("attachments not stored: %v", a.Attachments)
	}
	if out.Task.Version != 2 {
		t.Fatalf("expected version 2, got %d", out.Task.Version)
	}
}

func TestCompleteBlockedActionReturns409(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createDiamond(t, srv, "task-1")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks/task-1/actions/D/complete", nil, asTester)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	apiErr := decodeError(t, data)
	if apiErr.Code != "unsatisfied_dependency" {
		t.Fatalf("expected unsatisfied_dependency, got %q", apiErr.Code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks/task-1/actions/nope/complete", nil, asTester)
	if res.StatusCode != http.StatusNotFound || decodeError(t, data).Code != "action_not_found" {
		t.Fatalf("expected 404 action_not_found, got %d: %s", res.StatusCode, string(data))
	}
}

func TestStaleExpectedVersionReturns409(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createDiamond(t, srv, "task-1")

	url := srv.URL + "/v0/projects/proj-1/tasks/task-1/actions/A/complete?expected_version=1"
	res, data := doJSON(t, srv.Client(), http.MethodPost, url, nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks/task-1/actions/B/complete?expected_version=1", nil, asTester)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	if code := decodeError(t, data).Code; code != "version_conflict" {
		t.Fatalf("expected version_conflict, got %q", code)
	}
}

func TestTaskGraphEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createDiamond(t, srv, "task-1")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/proj-1/tasks/task-1/graph", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("graph status %d: %s", res.StatusCode, string(data))
	}
	var g GraphResponse
	if err := json.Unmarshal(data, &g); err != nil {
		t.Fatalf("unmarshal graph: %v", err)
	}
	if len(g.Levels) != 3 || len(g.Levels[1]) != 2 || g.Levels[1][0] != "B" || g.Levels[1][1] != "C" {
		t.Fatalf("unexpected levels %v", g.Levels)
	}
	if len(g.Available) != 1 || g.Available[0] != "A" {
		t.Fatalf("expected only A available, got %v", g.Available)
	}
	if len(g.Blocked) != 3 || len(g.Completed) != 0 {
		t.Fatalf("unexpected partition blocked=%v completed=%v", g.Blocked, g.Completed)
	}
	if len(g.Edges) != 4 || g.Progress.Total != 3 || g.Progress.Current != 0 {
		t.Fatalf("unexpected edges %v / progress %+v", g.Edges, g.Progress)
	}
	if len(g.Steps) != 3 || g.Steps[2].Title != "Step 3" {
		t.Fatalf("unexpected steps %+v", g.Steps)
	}
}

func TestSetDependenciesCycleLeavesTaskUnchanged(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createDiamond(t, srv, "task-1")

	url := srv.URL + "/v0/projects/proj-1/tasks/task-1/actions/A/dependencies"
	res, data := doJSON(t, srv.Client(), http.MethodPut, url, map[string]any{"depends_on": []string{"D"}}, asTester)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPut, url, map[string]any{"depends_on": nil}, asTester)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for null depends_on, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/proj-1/tasks/task-1", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Version != 1 || len(task.Actions[0].DependsOn) != 0 {
		t.Fatalf("task changed after rejected mutation: %+v", task)
	}
}

func TestRemoveActionWithDependents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createDiamond(t, srv, "task-1")

	res, data := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/projects/proj-1/tasks/task-1/actions/B", nil, asTester)
	if res.StatusCode != http.StatusConflict || decodeError(t, data).Code != "dependent_actions_exist" {
		t.Fatalf("expected 409 dependent_actions_exist, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/projects/proj-1/tasks/task-1/actions/D", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("remove sink status %d: %s", res.StatusCode, string(data))
	}
}

func TestValidateGraphIsStateless(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/graph/validate", map[string]any{
		"actions": []map[string]any{
			{"id": "A", "title": "First", "type": "text", "completed": true},
			{"id": "B", "title": "Second", "type": "text", "completed": false, "depends_on": []string{"A"}},
		},
	}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", res.StatusCode, string(data))
	}
	var g GraphResponse
	if err := json.Unmarshal(data, &g); err != nil {
		t.Fatalf("unmarshal graph: %v", err)
	}
	if len(g.Completed) != 1 || len(g.Available) != 1 || g.Available[0] != "B" {
		t.Fatalf("unexpected availability %+v", g)
	}
	if g.Progress.Current != 1 {
		t.Fatalf("expected current level 1, got %d", g.Progress.Current)
	}
}

func TestTemplateInstantiateOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/templates", map[string]any{
		"name":       "Video",
		"sequential": true,
		"steps": []map[string]any{
			{"title": "Shoot", "actions": []map[string]any{{"id": "upload", "title": "Upload", "type": "video_upload"}}},
			{"title": "Cut", "actions": []map[string]any{{"id": "edit", "title": "Edit", "type": "video_editing"}}},
		},
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("save template status %d: %s", res.StatusCode, string(data))
	}
	var tmpl TemplateResponse
	if err := json.Unmarshal(data, &tmpl); err != nil {
		t.Fatalf("unmarshal template: %v", err)
	}
	if len(tmpl.Steps) != 2 || tmpl.Actions[1].DependsOn[0] != "upload" {
		t.Fatalf("sequential template not linked: %+v", tmpl)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/templates/"+tmpl.ID+"/instantiate", map[string]any{
		"project_id": "proj-1",
		"title":      "Episode 1",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("instantiate status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.TemplateID == nil || *task.TemplateID != tmpl.ID || task.Title != "Episode 1" {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.Actions[0].State != "available" || task.Actions[1].State != "blocked" {
		t.Fatalf("unexpected states %s/%s", task.Actions[0].State, task.Actions[1].State)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	token, err := SignToken("other-secret", "mallory", 0)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Code != "invalid_credentials" {
		t.Fatalf("expected 401 invalid_credentials, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d: %s", res.StatusCode, string(data))
	}
}

func TestReviewFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createDiamond(t, srv, "task-1")
	for _, id := range []string{"A", "B", "C", "D"} {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks/task-1/actions/"+id+"/complete", nil, asTester)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("complete %s status %d: %s", id, res.StatusCode, string(data))
		}
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks/task-1/review", map[string]any{"decision": "reject"}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Status != "active" || task.Actions[3].Completed {
		t.Fatalf("reject should reopen D and reactivate the task: %+v", task)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks/task-1/archive", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("archive status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/tasks/task-1/actions/D/complete", nil, asTester)
	if res.StatusCode != http.StatusConflict || decodeError(t, data).Code != "task_locked" {
		t.Fatalf("expected 409 task_locked, got %d: %s", res.StatusCode, string(data))
	}
}

func TestActionRoutesBindTaskAndActionIDs(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createDiamond(t, srv, "t-paths")
	base := srv.URL + "/v0/projects/proj-1/tasks/t-paths"

	res, data := doJSON(t, srv.Client(), http.MethodPost, base+"/actions", map[string]any{
		"id": "E", "title": "Publish", "depends_on": []string{"D"},
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add action status %d: %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.ID != "t-paths" || len(task.Actions) != 5 {
		t.Fatalf("expected t-paths with 5 actions, got %s with %d", task.ID, len(task.Actions))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/actions/A/complete?expected_version=2", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/actions/A/uncomplete", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("uncomplete status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Version != 4 {
		t.Fatalf("expected version 4, got %d", task.Version)
	}
	for _, a := range task.Actions {
		if a.ID == "A" && a.Completed {
			t.Fatalf("A should be incomplete after uncomplete")
		}
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, base+"/actions/E", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("remove status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/review", map[string]any{"decision": "approve"}, asTester)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("review of active task: expected 409, got %d: %s", res.StatusCode, string(data))
	}
	if code := decodeError(t, data).Code; code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", code)
	}
}

func TestOpenAPIDocumentServedConcurrently(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	const clients = 8
	docs := make([][]byte, clients)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			docs[i], _ = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := 1; i < clients; i++ {
		if !bytes.Equal(docs[0], docs[i]) {
			t.Fatalf("client %d got a different document", i)
		}
	}

	var doc struct {
		Security   []map[string][]string `json:"security"`
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
		} `json:"components"`
		Paths map[string]map[string]struct {
			Security  []map[string][]string `json:"security"`
			Responses map[string]any        `json:"responses"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(docs[0], &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v (%s)", err, string(docs[0]))
	}
	if _, ok := doc.Components.SecuritySchemes["bearerAuth"]; !ok {
		t.Fatalf("missing bearerAuth scheme")
	}
	health := doc.Paths["/v0/health"]["get"]
	if len(health.Security) != 0 {
		t.Fatalf("health should be public, got %v", health.Security)
	}
	complete := doc.Paths["/v0/projects/{project_id}/tasks/{id}/actions/{action_id}/complete"]["post"]
	if len(complete.Security) != 1 {
		t.Fatalf("complete should require bearer auth, got %v", complete.Security)
	}
	if _, ok := complete.Responses["default"]; !ok {
		t.Fatalf("complete is missing the default error response")
	}
}
