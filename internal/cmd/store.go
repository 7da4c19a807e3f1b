package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/quotaward/quotaward/internal/config"
	"github.com/quotaward/quotaward/internal/core/engine"
	"github.com/quotaward/quotaward/internal/core/store"
	"github.com/quotaward/quotaward/internal/core/store/memstore"
	"github.com/quotaward/quotaward/internal/core/store/pgstore"
	"github.com/quotaward/quotaward/internal/core/store/redisstore"
)

// counterBackend is the opened counter store for the configured driver.
type counterBackend interface {
	engine.CounterStore
	engine.CounterReader
}

type pinger interface {
	Ping(ctx context.Context) error
}

type openedStore struct {
	counterBackend
	driver string
	close  func() error
}

// ping checks reachability when the backend supports it.
func (s *openedStore) ping(ctx context.Context) error {
	if p, ok := s.counterBackend.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// openCounterStore opens and migrates the counter store selected by cfg.Store.Driver.
func openCounterStore(ctx context.Context, cfg *config.Config) (*openedStore, error) {
	driver := strings.TrimSpace(cfg.Store.Driver)

	switch driver {
	case config.DriverLibsql, "":
		db, err := openLibsqlStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &openedStore{counterBackend: db, driver: config.DriverLibsql, close: db.Close}, nil

	case config.DriverRedis:
		rs, err := redisstore.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &openedStore{counterBackend: rs, driver: driver, close: rs.Close}, nil

	case config.DriverPostgres:
		pg, err := pgstore.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return &openedStore{counterBackend: pg, driver: driver, close: pg.Close}, nil

	case config.DriverMemory:
		return &openedStore{counterBackend: memstore.New(), driver: driver, close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}

// openLibsqlStore opens the libsql store directly, for commands that need its
// admin queries.
func openLibsqlStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if d := strings.TrimSpace(cfg.Store.Driver); d != "" && d != config.DriverLibsql {
		return nil, fmt.Errorf("this command requires the libsql store driver (configured: %s)", d)
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
