package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"actionflow/internal/domain"
	"actionflow/internal/engine"
)

func actionCmd() *cobra.Command {
	act := &cobra.Command{Use: "action", Short: "Edit and complete the actions of a task"}
	act.PersistentFlags().Int("expected-version", 0, "fail unless the task is at this version")
	act.AddCommand(actionAddCmd())
	act.AddCommand(actionRemoveCmd())
	act.AddCommand(actionDepsCmd())
	act.AddCommand(actionCompleteCmd())
	act.AddCommand(actionUncompleteCmd())
	return act
}

func taskRef(cmd *cobra.Command, projectID, taskID string) engine.TaskRef {
	expected, _ := cmd.Flags().GetInt("expected-version")
	return engine.TaskRef{ProjectID: projectID, TaskID: taskID, ExpectedVersion: expected}
}

func actionAddCmd() *cobra.Command {
	var id, title, actionType, desc string
	var deps []string
	var blocking bool
	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Add an action to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				t, err := e.AddAction(ctx, taskRef(cmd, projectID, args[0]), domain.Action{
					ID:          id,
					Title:       title,
					Type:        domain.ActionType(actionType),
					Description: desc,
					DependsOn:   deps,
					IsBlocking:  blocking,
				}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "action id (generated when empty)")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&actionType, "type", "", "action type (defaults to the project default)")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringSliceVar(&deps, "depends-on", nil, "ids of actions this one waits for")
	cmd.Flags().BoolVar(&blocking, "blocking", false, "mark as blocking")
	return cmd
}

func actionRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id> <action-id>",
		Short: "Remove an action nothing depends on",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				t, err := e.RemoveAction(ctx, taskRef(cmd, projectID, args[0]), args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func actionDepsCmd() *cobra.Command {
	var deps []string
	cmd := &cobra.Command{
		Use:   "deps <task-id> <action-id>",
		Short: "Replace the dependencies of an action",
		Long:  "Replaces the whole dependency list. Pass --depends-on= to clear it.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("depends-on") {
				return fmt.Errorf("--depends-on required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				t, err := e.SetDependencies(ctx, taskRef(cmd, projectID, args[0]), args[1], deps, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringSliceVar(&deps, "depends-on", nil, "ids of actions this one waits for")
	return cmd
}

func actionCompleteCmd() *cobra.Command {
	var attachments []string
	var approval string
	cmd := &cobra.Command{
		Use:   "complete <task-id> <action-id>",
		Short: "Complete an available action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				res, err := e.CompleteAction(ctx, engine.CompleteOptions{
					TaskRef:        taskRef(cmd, projectID, args[0]),
					ActionID:       args[1],
					ActorID:        viper.GetString("actor-id"),
					Attachments:    attachments,
					ApprovalStatus: approval,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task": res.Task, "newly_available": res.NewlyAvailable})
				}
				if err := printTask(res.Task); err != nil {
					return err
				}
				for _, a := range res.NewlyAvailable {
					fmt.Printf("Now available: %s (%s)\n", a.ID, a.Title)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&attachments, "attachment", nil, "attachment reference (repeatable)")
	cmd.Flags().StringVar(&approval, "approval-status", "", "approval outcome, approval actions only")
	return cmd
}

func actionUncompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uncomplete <task-id> <action-id>",
		Short: "Revert a completed action whose dependents are still open",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				t, err := e.UncompleteAction(ctx, taskRef(cmd, projectID, args[0]), args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}
