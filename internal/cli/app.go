package cli

import (
	"context"
	"fmt"

	"github.com/aimd54/streakd/internal/cache"
	"github.com/aimd54/streakd/internal/config"
	"github.com/aimd54/streakd/internal/lock"
	"github.com/aimd54/streakd/internal/repository"
	"github.com/aimd54/streakd/internal/retry"
	"github.com/aimd54/streakd/internal/service/achievements"
	"github.com/aimd54/streakd/internal/service/habits"
	"github.com/aimd54/streakd/internal/service/reconcile"
	"github.com/aimd54/streakd/internal/service/stats"
	"github.com/aimd54/streakd/pkg/logger"
)

// keyPrefix namespaces every Redis key of the service.
const keyPrefix = "streakd:"

// app holds the wired services shared by the commands.
type app struct {
	cfg          *config.Config
	log          *logger.Logger
	db           *repository.DB
	cache        *cache.RedisCache
	store        *repository.Store
	achievements *achievements.Service
	habits       *habits.Service
	stats        *stats.Service
	sweeper      *reconcile.Sweeper
}

// loadConfig reads the configuration and initializes the global logger.
func loadConfig(opts *RootOptions) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	return cfg, logger.Get(), nil
}

// newApp connects to the stores and builds every service. migrate forces a
// schema migration regardless of database.migrate_on_start.
func newApp(ctx context.Context, opts *RootOptions, migrate bool) (*app, error) {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: db}

	if migrate || cfg.Database.MigrateOnStart {
		if err := repository.Migrate(db, &cfg.Database, log); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.Database.Redis.Enabled {
		a.cache, err = cache.Connect(ctx, &cfg.Database.Redis, log)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	habitOpts, err := habits.OptionsFromConfig(&cfg.Engine)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.store = repository.NewStore(db)
	a.achievements, err = achievements.NewService(a.store.Achievements, cfg.Achievements.CacheSize, log.Component("achievements"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create achievement service: %w", err)
	}
	a.habits = habits.NewService(a.store, a.locker(), a.achievements, habitOpts, log.Component("habits"))
	a.stats = stats.NewService(a.store.Habits, a.store.Ledger, a.store.Achievements, habitOpts.Location, log.Component("stats"))

	var cursor reconcile.CursorStore = reconcile.NewMemoryCursorStore()
	if a.cache != nil {
		cursor = reconcile.NewCacheCursorStore(a.cache, keyPrefix)
	}
	a.sweeper = reconcile.NewSweeper(a.store.Habits, a.habits, cursor, &cfg.Scheduler, retry.FromConfig(cfg.Engine.Retry), log.Component("sweeper"))

	return a, nil
}

// locker serializes writes per habit in process and, with the redis backend,
// across instances.
func (a *app) locker() lock.Locker {
	local := lock.NewLocalLocker()
	if a.cfg.Engine.Lock.Backend != "redis" || a.cache == nil {
		return local
	}
	return lock.Chain{
		local,
		lock.NewCacheLocker(a.cache, keyPrefix, a.cfg.Engine.Lock.LockTTL(), a.cfg.Engine.Lock.WaitTimeout()),
	}
}

// Close releases the connections held by a.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close Redis connection")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close database connection")
		}
	}
}
