package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"aura.dev/aura/internal/config"
	"aura.dev/aura/internal/infrastructure"
	"aura.dev/aura/internal/pkg/keylock"
	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/pkg/worker"
	"aura.dev/aura/internal/repository"
	"aura.dev/aura/internal/repository/cache"
	"aura.dev/aura/internal/repository/memory"
	"aura.dev/aura/internal/repository/postgres"
	"aura.dev/aura/internal/repository/sqlite"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config *config.Config
	Pools  *worker.Pools

	// Store is the backend selected by database.driver.
	Store repository.Store
	// Facts is Store, behind the Redis cache when Redis is configured.
	Facts  repository.FactStore
	Locker keylock.Locker

	// DB and RiverClient are set only for the postgres driver.
	DB          *infrastructure.DatabaseClients
	RiverClient *river.Client[pgx.Tx]

	Redis *redis.Client
}

// NewInfrastructure opens the configured store, the worker pools and the
// optional Redis client.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	mode, err := repository.ParseWriteMode(cfg.Store.Mode)
	if err != nil {
		return nil, err
	}

	infra := &Infrastructure{Config: cfg}
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		infra.DB = db
		if cfg.Database.AutoMigrate {
			if err := db.AutoMigrate(ctx); err != nil {
				infra.Close()
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
		}
		infra.Store = postgres.New(db.Pool, mode)
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Database.SQLitePath, mode)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		infra.Store = store
	case config.DriverMemory, "":
		infra.Store = memory.New(mode)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	infra.Facts = infra.Store
	infra.Locker = keylock.NewKeyedMutex()

	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			infra.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		infra.Redis = rdb
		infra.Facts = cache.New(infra.Store, rdb, cfg.Redis.CacheTTL)
		infra.Locker = keylock.NewRedisLocker(rdb, cfg.Redis.LockTTL)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		ResolvePoolSize: cfg.Worker.ResolvePoolSize,
	})
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}
	infra.Pools = pools

	logger.Info("Infrastructure initialized",
		zap.String("driver", cfg.Database.Driver),
		zap.String("store_mode", string(mode)),
		zap.Bool("redis", infra.Redis != nil),
	)
	return infra, nil
}

// JobsEnabled reports whether a River queue can be started on this backend.
func (i *Infrastructure) JobsEnabled() bool {
	return i != nil && i.DB != nil
}

// InitRiver initializes the River client on top of a prepared worker
// registry. It is a no-op unless the postgres driver is in use.
func (i *Infrastructure) InitRiver(workers *river.Workers, periodic []*river.PeriodicJob) error {
	if i == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if !i.JobsEnabled() {
		logger.Info("River disabled: background jobs need the postgres driver",
			zap.String("driver", i.Config.Database.Driver),
		)
		return nil
	}
	if err := i.DB.InitRiverClient(workers, periodic, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Warn("close redis client", zap.Error(err))
		}
	}
	if i.Store != nil {
		if err := i.Store.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
