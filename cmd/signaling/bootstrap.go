package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mossy-p/reception-signaling/config"
	"github.com/mossy-p/reception-signaling/internal/calls"
	"github.com/mossy-p/reception-signaling/internal/handlers"
	"github.com/mossy-p/reception-signaling/internal/maintenance"
	rediscache "github.com/mossy-p/reception-signaling/internal/redis"
	"github.com/mossy-p/reception-signaling/internal/registry"
	"github.com/mossy-p/reception-signaling/internal/signaling"
	"github.com/mossy-p/reception-signaling/internal/store"
)

// runtimeStack holds every long-lived component of a running server.
type runtimeStack struct {
	DB       *gorm.DB
	Redis    *goredis.Client
	Registry *registry.Registry
	Queue    *calls.Queue
	Hub      *signaling.Hub
	Sweeper  *maintenance.Sweeper
	Router   *gin.Engine
}

// bootstrapRuntime initialises storage, the call queue, the hub and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *config.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background())
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	stack.DB = db

	repo, err := store.NewCallRepository(db)
	if err != nil {
		return nil, err
	}

	journal := calls.MultiJournal{repo}
	deps := handlers.Dependencies{Config: cfg, History: repo}

	if cfg.Redis.Enabled {
		client, err := rediscache.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable; continuing without snapshot cache and presence", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Redis.Addr()))
			stack.Redis = client

			cache, err := rediscache.NewCallCache(client, cfg.Redis.TTL)
			if err != nil {
				return nil, err
			}
			presence, err := rediscache.NewPresence(client, cfg.Redis.TTL)
			if err != nil {
				return nil, err
			}
			journal = append(journal, cache)
			deps.Finders = append(deps.Finders, cache)
			deps.Presence = presence
		}
	}

	stack.Registry = registry.New()
	stack.Queue = calls.NewQueue(stack.Registry, calls.WithJournal(journal))
	stack.Hub = signaling.NewHub(stack.Registry, stack.Queue)

	stack.Sweeper = maintenance.NewSweeper(stack.Hub, stack.Queue,
		maintenance.WithSchedule(cfg.Calls.SweepSchedule),
		maintenance.WithMaxWait(cfg.Calls.MaxWait),
		maintenance.WithRetention(cfg.Calls.Retention),
	)
	if err := stack.Sweeper.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	deps.Registry = stack.Registry
	deps.Queue = stack.Queue
	deps.Hub = stack.Hub
	stack.Router = handlers.NewRouter(deps)

	success = true
	return stack, nil
}

// Shutdown stops background jobs and releases resources, collecting every failure.
func (s *runtimeStack) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var errs error
	if s.Sweeper != nil {
		select {
		case <-s.Sweeper.Stop().Done():
		case <-ctx.Done():
			errs = multierr.Append(errs, fmt.Errorf("maintenance stop: %w", ctx.Err()))
		}
	}
	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		errs = multierr.Append(errs, store.Close(s.DB))
	}
	return errs
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := store.Open(store.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		_ = store.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}
