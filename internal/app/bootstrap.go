// Package app is the composition root. Bootstrap only wires modules; the
// modules own construction.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"aura.dev/aura/internal/api/handlers"
	"aura.dev/aura/internal/app/modules"
	"aura.dev/aura/internal/config"
	"aura.dev/aura/internal/usecase"
)

// Application holds composed application dependencies.
type Application struct {
	Config   *config.Config
	Router   *gin.Engine
	Infra    *modules.Infrastructure
	Pipeline *usecase.Pipeline
	Modules  []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	inventory := modules.NewInventoryModule(infra)
	allModules := []modules.Module{inventory}

	if infra.JobsEnabled() {
		workers := river.NewWorkers()
		for _, mod := range allModules {
			mod.RegisterWorkers(workers)
		}
		if err := infra.InitRiver(workers, inventory.PeriodicJobs()); err != nil {
			infra.Close()
			return nil, fmt.Errorf("init river workers: %w", err)
		}
	}

	serverDeps := modules.NewServerDeps(infra, allModules)
	server := handlers.NewServer(serverDeps)

	return &Application{
		Config:   cfg,
		Router:   newRouter(cfg, server),
		Infra:    infra,
		Pipeline: inventory.Pipeline(),
		Modules:  allModules,
	}, nil
}
