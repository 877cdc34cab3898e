// Package daemon composes the sync daemon: configuration, storage, the
// native provider, the remote transport and the reconciliation machinery,
// wired together with fx and torn down in reverse on shutdown.
package daemon

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/nlebec/cmsync/internal/account"
	"github.com/nlebec/cmsync/internal/bus"
	"github.com/nlebec/cmsync/internal/cms"
	"github.com/nlebec/cmsync/internal/config"
	"github.com/nlebec/cmsync/internal/imap"
	"github.com/nlebec/cmsync/internal/lock"
	"github.com/nlebec/cmsync/internal/logging"
	"github.com/nlebec/cmsync/internal/store"
	intsync "github.com/nlebec/cmsync/internal/sync"
	"github.com/nlebec/cmsync/internal/xms"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	Account string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideConfig,
			provideLock,
			provideStore,
			provideProvider,
			provideRemote,
			provideEngine,
			provideObserver,
			provideSynchronizer,
			provideScheduler,
			provideManager,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := account.EnsureDir(p.Account); err != nil {
		return nil, err
	}
	return logging.New(account.LogPath(p.Account), p.Account)
}

func provideBus() *bus.Bus {
	return bus.New()
}

// provideConfig loads the configuration, seeding a default file on first
// run so the user has something to edit.
func provideConfig(logger *zap.Logger) (*config.Config, error) {
	path := account.ConfigPath()
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no config found, writing defaults", zap.String("path", path))
		cfg = config.Default()
		if err := config.Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring account lock", zap.String("account", p.Account))
	l, err := lock.Acquire(account.Dir(p.Account))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := account.DBPath(p.Account)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideProvider(p Params, logger *zap.Logger) (xms.Provider, error) {
	return xms.OpenSQLProvider(account.NativeDBPath(p.Account), time.Second, logger)
}

func provideRemote(cfg *config.Config, logger *zap.Logger) (imap.Transport, error) {
	return imap.Dial(cfg.Imap, logger)
}

func provideEngine(db *store.DB, remote imap.Transport, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, remote, b, logger)
}

func provideObserver(provider xms.Provider, b *bus.Bus, logger *zap.Logger) *xms.Observer {
	return xms.NewObserver(provider, b, logger)
}

func provideSynchronizer(provider xms.Provider, db *store.DB, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *xms.Synchronizer {
	return xms.NewSynchronizer(provider, db, cfg.Message, cfg.Imap.RootFolder, b, logger)
}

func provideScheduler(engine *intsync.Engine, db *store.DB, remote imap.Transport, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *intsync.Scheduler {
	return intsync.NewScheduler(engine, db, remote, cfg.Imap.RootFolder, cfg.Interval(), b, logger)
}

func provideManager(db *store.DB, provider xms.Provider, scheduler *intsync.Scheduler, logger *zap.Logger) *cms.Manager {
	return cms.NewManager(db, provider, scheduler, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, provider xms.Provider, remote imap.Transport, observer *xms.Observer, synchronizer *xms.Synchronizer, scheduler *intsync.Scheduler, mgr *cms.Manager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The synchronizer subscribes before the observer publishes, so
			// no startup change event is lost.
			synchronizer.Start(context.Background())
			observer.Start(context.Background())
			scheduler.Start(context.Background())
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			scheduler.Stop()
			observer.Stop()
			synchronizer.Stop()
			if n, err := mgr.PurgeDeleted(); err != nil {
				logger.Warn("final purge failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("purged finalized deletions", zap.Int64("count", n))
			}
			if err := remote.Close(); err != nil {
				logger.Warn("error closing remote transport", zap.Error(err))
			}
			if err := provider.Close(); err != nil {
				logger.Warn("error closing native provider", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
