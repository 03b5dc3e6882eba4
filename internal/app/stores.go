package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/taskmanager/internal/platform/cache"
	"github.com/noah-isme/taskmanager/internal/platform/db"
	"github.com/noah-isme/taskmanager/internal/tasks"
	"github.com/noah-isme/taskmanager/internal/users"
)

// Stores bundles the repositories of the configured store driver.
type Stores struct {
	Users users.Repository
	Tasks tasks.Repository
	Tx    users.Transactor

	closers []func()
}

// Close releases the underlying store handles.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStores connects to the store selected by STORE_DRIVER. The Postgres
// schema is migrated first when PG_AUTO_MIGRATE is set.
func OpenStores(ctx context.Context, cfg *Config, logger *slog.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.PGAutoMigrate {
			if err := db.Migrate(cfg.PGDSN); err != nil {
				return nil, err
			}
			logger.Info("database migrated")
		}
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Users:   users.NewPGRepository(pool),
			Tasks:   tasks.NewPGRepository(pool),
			Tx:      db.NewTransactor(pool),
			closers: []func(){pool.Close},
		}, nil
	case StoreRedis:
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		return NewRedisStores(client), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewRedisStores builds Redis backed stores over an existing client.
func NewRedisStores(client *redis.Client) *Stores {
	userRepo := users.NewRedisRepository(client)
	return &Stores{
		Users: userRepo,
		Tasks: tasks.NewRedisRepository(client, userRepo),
		Tx:    cache.NewTransactor(client),
		closers: []func(){func() {
			_ = client.Close()
		}},
	}
}
