package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"actionflow/internal/app"
	"actionflow/internal/config"
	"actionflow/internal/db"
	"actionflow/internal/engine"
	"actionflow/internal/migrate"
	"actionflow/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "af",
	Short: "Actionflow CLI",
	Long: `Actionflow runs tasks as graphs of actions.
Core concepts:
- Action: one unit of work (text, file upload, approval, video editing...). An action lists the actions it depends on.
- Task: a set of actions that must form a DAG. An action is available once everything it depends on is completed.
- Levels: actions grouped by dependency depth; level N only depends on earlier levels. Steps are levels with titles.
- Completion: completing an action records who and when, and reports which actions became available.
- Review: a task whose actions are all completed waits for approval; rejecting it reopens its last actions.
- Templates: reusable action graphs authored as YAML steps and instantiated into tasks.
- Event log: every change is recorded, view with 'af log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := app.NewLogger(viper.GetString("log-level"), viper.GetString("log-format"), os.Stderr)
		if err != nil {
			return err
		}
		logger = l
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

var logger = slog.Default()

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (defaults to the only project)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	for _, name := range []string{"workspace", "json", "actor-id", "project", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

// openDB opens and migrates the workspace database.
func openDB(ctx context.Context) (func() error, engine.Engine, error) {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, engine.Engine{}, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, engine.Engine{}, err
	}
	e := engine.New(conn, nil)
	e.Logger = logger
	return conn.Close, e, nil
}

// withEngine resolves the active project and hands an engine bound to its config to fn.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	closeDB, e, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	projectID, cfg, err := app.ResolveProjectAndConfig(ctx, viper.GetString("workspace"), viper.GetString("project"), viper.GetString("actor-id"), e)
	if err != nil {
		return err
	}
	e.Config = cfg
	return fn(ctx, e, projectID)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	closeDB, e, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(ctx, e.Repo)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"ID", "Name", "Status", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc, configPath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			cfg := config.Default(id)
			if configPath != "" {
				loaded, err := config.FromFile(configPath)
				if err != nil {
					return err
				}
				loaded.Project.ID = id
				cfg = loaded
			}
			closeDB, e, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			e.Config = cfg
			p, err := e.InitProject(cmd.Context(), id, name, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to id)")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&configPath, "config", "", "seed the project config from this YAML file")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show a project with task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountTasksByStatus(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "task_counts": counts})
				}
				fmt.Printf("Project: %s (%s)\n", p.ID, p.Status)
				if p.Description != "" {
					fmt.Println(p.Description)
				}
				fmt.Println("Tasks:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage project config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored project config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				return printJSON(e.Config)
			})
		},
	}
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import project config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				if cfg.Project.ID != "" && cfg.Project.ID != projectID {
					return fmt.Errorf("config is for project %s, active project is %s", cfg.Project.ID, projectID)
				}
				cfg.Project.ID = projectID
				if err := e.ImportProjectConfig(ctx, projectID, cfg, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSON(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default actionflow.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "id", "", "project id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
