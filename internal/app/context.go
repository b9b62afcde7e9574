package app

import (
	"context"
	"errors"
	"fmt"

	"actionflow/internal/config"
	"actionflow/internal/engine"
	"actionflow/internal/repo"
)

// ResolveProjectAndConfig picks the active project and ensures a project + config exist in DB,
// seeding them if missing. It prefers the override, then the only project in the DB.
// A workspace actionflow.yml, when present, seeds the config of a new project.
func ResolveProjectAndConfig(ctx context.Context, workspace, projectOverride, actorID string, e engine.Engine) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	projectID := projectOverride
	if projectID == "" {
		if p, err := e.Repo.SingleProject(ctx); err == nil {
			projectID = p.ID
		} else if fileCfg != nil {
			projectID = fileCfg.Project.ID
		} else {
			return "", nil, fmt.Errorf("project not specified; use --project")
		}
	}
	seedCfg := config.Default(projectID)
	if fileCfg != nil && fileCfg.Project.ID == projectID {
		seedCfg = fileCfg
	}

	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		e.Config = seedCfg
		if _, err := e.InitProject(ctx, projectID, projectID, "", actorID); err != nil {
			return "", nil, fmt.Errorf("create project %s: %w", projectID, err)
		}
	}
	cfg, err := e.Repo.GetProjectConfig(ctx, projectID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := e.Repo.UpsertProjectConfig(ctx, projectID, seedCfg); err != nil {
			return "", nil, fmt.Errorf("seed project config: %w", err)
		}
		cfg = seedCfg
	}
	cfg.Project.ID = projectID
	return projectID, cfg, nil
}
