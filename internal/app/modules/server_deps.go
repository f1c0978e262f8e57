package modules

import (
	"context"

	"aura.dev/aura/internal/api/handlers"
)

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Checks: map[string]handlers.Pinger{
			"store": infra.Store,
		},
	}
	if infra.Pools != nil {
		deps.Pools = infra.Pools
	}
	if infra.Redis != nil {
		rdb := infra.Redis
		deps.Checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}
