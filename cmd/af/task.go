package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"actionflow/internal/config"
	"actionflow/internal/domain"
	"actionflow/internal/engine"
	"actionflow/internal/graph"
	"actionflow/internal/repo"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskGraphCmd())
	task.AddCommand(taskStepsCmd())
	task.AddCommand(taskReviewCmd())
	task.AddCommand(taskArchiveCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var id, title, desc, filePath, templateID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task from a steps file or a stored template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (filePath == "") == (templateID == "") {
				return fmt.Errorf("exactly one of --file or --template is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				actorID := viper.GetString("actor-id")
				var (
					t   domain.Task
					err error
				)
				if templateID != "" {
					t, err = e.InstantiateTemplate(ctx, engine.InstantiateOptions{
						TemplateID:  templateID,
						ProjectID:   projectID,
						Title:       title,
						Description: desc,
						ActorID:     actorID,
					})
				} else {
					var f config.TemplateFile
					if f, err = config.TemplateFromFile(filePath); err != nil {
						return err
					}
					var actions []domain.Action
					if actions, err = engine.TemplateFileActions(f); err != nil {
						return err
					}
					if title == "" {
						title = f.Name
					}
					t, err = e.CreateTask(ctx, engine.TaskCreateOptions{
						ID:          id,
						ProjectID:   projectID,
						Title:       title,
						Description: desc,
						Actions:     actions,
						ActorID:     actorID,
					})
				}
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&title, "title", "", "title (defaults to the file or template name)")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&filePath, "file", "", "steps YAML file with the task actions")
	cmd.Flags().StringVar(&templateID, "template", "", "template id to instantiate")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, templateID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
					ProjectID:  projectID,
					Status:     status,
					TemplateID: templateID,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Title", "Status", "Progress", "Version"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, progressLabel(t.Actions), t.Version})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&templateID, "template", "", "template filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum tasks")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task and its actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				t, err := e.GetTask(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <id>",
		Short: "Show levels, availability and progress of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				t, view, err := e.TaskGraph(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task_id": t.ID, "version": t.Version, "graph": view})
				}
				fmt.Printf("Task %s: %s (%s, v%d)\n", t.ID, t.Title, t.Status, t.Version)
				renderGraph(view)
				return nil
			})
		},
	}
}

func taskStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps <id>",
		Short: "Show the task as ordered steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				_, view, err := e.TaskGraph(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view.Steps)
				}
				tw := newTable(table.Row{"#", "Step", "Actions"})
				for _, s := range view.Steps {
					tw.AppendRow(table.Row{s.Index + 1, s.Title, strings.Join(s.ActionIDs, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskReviewCmd() *cobra.Command {
	var reopen []string
	var comment string
	var expected int
	cmd := &cobra.Command{
		Use:   "review <id> <approve|reject>",
		Short: "Approve or reject a task pending approval",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				t, err := e.ReviewTask(ctx, engine.ReviewOptions{
					TaskRef:  engine.TaskRef{ProjectID: projectID, TaskID: args[0], ExpectedVersion: expected},
					Decision: args[1],
					Reopen:   reopen,
					Comment:  comment,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringSliceVar(&reopen, "reopen", nil, "actions to reopen on reject (defaults to the final actions)")
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	cmd.Flags().IntVar(&expected, "expected-version", 0, "fail unless the task is at this version")
	return cmd
}

func taskArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				t, err := e.ArchiveTask(ctx, engine.TaskRef{ProjectID: projectID, TaskID: args[0]}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	fmt.Printf("Task %s: %s (%s, v%d, %s)\n", t.ID, t.Title, t.Status, t.Version, progressLabel(t.Actions))
	states := stateMap(graph.Classify(t.Actions))
	tw := newTable(table.Row{"Action", "Title", "Type", "State", "Depends on", "Completed by"})
	for _, a := range t.Actions {
		by := ""
		if a.CompletedBy != nil {
			by = *a.CompletedBy
		}
		tw.AppendRow(table.Row{a.ID, a.Title, a.Type, states[a.ID], strings.Join(a.DependsOn, ", "), by})
	}
	tw.Render()
	return nil
}

func renderGraph(view engine.GraphView) {
	fmt.Printf("Step %d of %d\n", min(view.Progress.Current+1, view.Progress.Total), view.Progress.Total)
	states := stateMap(view.Availability)
	tw := newTable(table.Row{"Level", "Action", "Title", "State", "Depends on"})
	for i, level := range view.Levels {
		for _, a := range level {
			tw.AppendRow(table.Row{i, a.ID, a.Title, states[a.ID], strings.Join(a.DependsOn, ", ")})
		}
		if i < len(view.Levels)-1 {
			tw.AppendSeparator()
		}
	}
	tw.Render()
}

func progressLabel(actions []domain.Action) string {
	levels, err := graph.Levels(actions)
	if err != nil {
		return "invalid"
	}
	p := graph.ProgressOf(levels)
	if p.Current >= p.Total {
		return "done"
	}
	return fmt.Sprintf("step %d/%d", p.Current+1, p.Total)
}

func stateMap(avail graph.Availability) map[string]graph.State {
	states := map[string]graph.State{}
	for _, a := range avail.Available {
		states[a.ID] = graph.StateAvailable
	}
	for _, a := range avail.Blocked {
		states[a.ID] = graph.StateBlocked
	}
	for _, a := range avail.Completed {
		states[a.ID] = graph.StateCompleted
	}
	return states
}
