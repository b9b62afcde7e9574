package actionflowsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"actionflow/internal/config"
	"actionflow/internal/db"
	"actionflow/internal/engine"
	"actionflow/internal/migrate"
	"actionflow/internal/server"
	actionflowsdk "actionflow/sdk/go"
)

const secret = "sdk-secret"

func newClient(t *testing.T, actorID string) *actionflowsdk.Client {
	t.Helper()
	ctx := context.Background()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("sdk")
	e := engine.New(conn, cfg)
	if _, err := e.InitProject(ctx, "sdk", "", "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	handler, err := server.New(server.Config{Engine: e, Auth: server.AuthConfig{JWTSecret: secret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	token, err := server.SignToken(secret, actorID, 0)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	c := actionflowsdk.New(srv.URL, "sdk")
	c.BearerToken = token
	return c
}

func TestClientCompletionFlow(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, "bob")

	task, err := c.CreateTask(ctx, "t1", "Launch", []actionflowsdk.Action{
		{ID: "draft", Title: "Draft"},
		{ID: "review", Title: "Review", Type: "approval", DependsOn: []string{"draft"}},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Version != 1 || task.Status != "active" {
		t.Fatalf("unexpected task %+v", task)
	}

	g, err := c.TaskGraph(ctx, "t1")
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if diff := cmp.Diff([][]string{{"draft"}, {"review"}}, g.Levels); diff != "" {
		t.Fatalf("levels mismatch (-want +got):\n%s", diff)
	}

	done, err := c.CompleteAction(ctx, "t1", "draft", actionflowsdk.CompleteOptions{ExpectedVersion: 1})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(done.NewlyAvailable) != 1 || done.NewlyAvailable[0].ID != "review" {
		t.Fatalf("unexpected newly available %+v", done.NewlyAvailable)
	}
	if done.Task.Actions[0].CompletedBy != "bob" {
		t.Fatalf("expected completed_by bob, got %q", done.Task.Actions[0].CompletedBy)
	}

	_, err = c.CompleteAction(ctx, "t1", "review", actionflowsdk.CompleteOptions{ApprovalStatus: "approved", ExpectedVersion: 1})
	var apiErr *actionflowsdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict || apiErr.Code != "version_conflict" {
		t.Fatalf("expected version_conflict, got %v", err)
	}

	done, err = c.CompleteAction(ctx, "t1", "review", actionflowsdk.CompleteOptions{ApprovalStatus: "approved"})
	if err != nil {
		t.Fatalf("complete review: %v", err)
	}
	if done.Task.Status != "pending_approval" || done.Task.CompletedAt == "" {
		t.Fatalf("expected pending_approval, got %+v", done.Task)
	}

	approved, err := c.ReviewTask(ctx, "t1", "approve", nil)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if approved.Status != "approved" {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	evts, err := c.Events(ctx, 3)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 3 || evts[0].Type != "task.status_changed" {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestClientGraphErrors(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, "bob")

	if _, err := c.CreateTask(ctx, "t1", "Chain", []actionflowsdk.Action{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B", DependsOn: []string{"a"}},
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	_, err := c.SetDependencies(ctx, "t1", "a", []string{"b"})
	var apiErr *actionflowsdk.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "cycle_detected" {
		t.Fatalf("expected cycle_detected, got %v", err)
	}
	if _, err := c.RemoveAction(ctx, "t1", "a"); !errors.As(err, &apiErr) || apiErr.Code != "dependent_actions_exist" {
		t.Fatalf("expected dependent_actions_exist, got %v", err)
	}
	task, err := c.SetDependencies(ctx, "t1", "b", nil)
	if err != nil {
		t.Fatalf("clear dependencies: %v", err)
	}
	if len(task.Actions[1].DependsOn) != 0 || task.Actions[1].State != "available" {
		t.Fatalf("b should be independent now: %+v", task.Actions[1])
	}
	task, err = c.RemoveAction(ctx, "t1", "a")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(task.Actions) != 1 {
		t.Fatalf("expected one action left, got %d", len(task.Actions))
	}
}
