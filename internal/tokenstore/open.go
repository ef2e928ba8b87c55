package tokenstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/yourorg/synapse/internal/config"
	"github.com/yourorg/synapse/internal/db"
)

// Open builds the store selected by cfg.Driver and checks that it is
// reachable.
func Open(ctx context.Context, cfg config.Store) (Store, error) {
	var store Store

	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = NewRedisStore(rdb, cfg.Redis.Prefix)
	case config.DriverMySQL, config.DriverSQLite:
		conn, err := db.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
		}
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, unavailable(err)
		}
		if err := db.EnsureSchema(conn, cfg.Driver, cfg.SkipSchema); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		store = NewSQLStore(conn)
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Driver)
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
