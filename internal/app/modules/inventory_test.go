package modules

import (
	"context"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/require"

	"aura.dev/aura/internal/api/handlers"
	"aura.dev/aura/internal/config"
	"aura.dev/aura/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func memoryConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Store:    config.StoreConfig{Mode: config.StoreModeAppend, WriteTimeout: 5 * time.Second},
		Worker:   config.WorkerConfig{GeneralPoolSize: 2, ResolvePoolSize: 2},
		Resolver: config.ResolverConfig{
			LateArrivalThresholdHours: 12,
			ShadowStockGapHours:       6,
			CriticalStockThreshold:    30,
			ReorderThreshold:          50,
			HighConfidenceThreshold:   0.85,
		},
		Gate:    config.GateConfig{MinReliability: 0.6, MaxFreshnessHours: 24},
		River:   config.RiverConfig{ResolveAllInterval: time.Hour},
		Sources: []config.SourceConfig{
			{Name: "warehouse_stock", Type: config.SourceWarehouseCSV, Path: "stock.csv", ReliabilityScore: 0.7},
		},
	}
}

func TestNewInfrastructure_Memory(t *testing.T) {
	infra, err := NewInfrastructure(context.Background(), memoryConfig())
	require.NoError(t, err)
	t.Cleanup(infra.Close)

	require.NotNil(t, infra.Store)
	require.NotNil(t, infra.Facts)
	require.NotNil(t, infra.Locker)
	require.False(t, infra.JobsEnabled())
	require.NoError(t, infra.InitRiver(river.NewWorkers(), nil))
	require.Nil(t, infra.RiverClient)
}

func TestNewInfrastructure_SQLite(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLitePath = t.TempDir() + "/aura.db"

	infra, err := NewInfrastructure(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(infra.Close)
	require.NoError(t, infra.Store.Ping(context.Background()))
}

func TestNewInfrastructure_BadMode(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Mode = "overwrite"
	_, err := NewInfrastructure(context.Background(), cfg)
	require.Error(t, err)
}

func TestInventoryModule_Wiring(t *testing.T) {
	infra, err := NewInfrastructure(context.Background(), memoryConfig())
	require.NoError(t, err)
	t.Cleanup(infra.Close)

	mod := NewInventoryModule(infra)
	require.Equal(t, "inventory", mod.Name())
	require.Equal(t, 0.7, mod.Pipeline().Reliability()["warehouse_stock"])

	deps := NewServerDeps(infra, []Module{mod, nil})
	require.NotNil(t, deps.Query)
	require.NotNil(t, deps.Facts)
	require.NotNil(t, deps.Pipeline)
	require.Nil(t, deps.Jobs)
	require.Contains(t, deps.Checks, "store")
	require.NotContains(t, deps.Checks, "redis")

	workers := river.NewWorkers()
	mod.RegisterWorkers(workers)
	require.Len(t, mod.PeriodicJobs(), 1)
	require.NoError(t, mod.Shutdown(context.Background()))

	var _ handlers.Pinger = infra.Store
}
