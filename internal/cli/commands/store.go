package commands

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/cli/config"
	"github.com/conduit-lang/propsheet/internal/columns"
)

// columnStore is an opened column state store and the resources behind it
type columnStore struct {
	columns.Store
	file  *columns.FileStore
	close func() error
}

// Close releases the store's connections
func (s *columnStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// openStore opens the column state store selected by cfg
func openStore(ctx context.Context, cfg config.ColumnsConfig, logger *zap.Logger) (*columnStore, error) {
	switch cfg.Store {
	case config.StoreFile:
		fs := columns.NewFileStore(cfg.Path, logger)
		return &columnStore{Store: fs, file: fs}, nil

	case config.StoreSQLite:
		return openSQLStore(ctx, "sqlite3", cfg)

	case config.StorePostgres:
		return openSQLStore(ctx, "pgx", cfg)

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		rs := columns.NewRedisStore(client, cfg.RedisKey)
		return &columnStore{Store: rs, close: rs.Close}, nil
	}
	return nil, fmt.Errorf("unsupported column store: %s", cfg.Store)
}

func openSQLStore(ctx context.Context, driver string, cfg config.ColumnsConfig) (*columnStore, error) {
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := columns.NewSQLStore(db, driver, cfg.Table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &columnStore{Store: store, close: db.Close}, nil
}

// openRegistry opens the configured store and loads a registry from it
func openRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*columns.Registry, *columnStore, error) {
	store, err := openStore(ctx, cfg.Columns, logger)
	if err != nil {
		return nil, nil, err
	}
	registry := columns.NewRegistry(ctx, store,
		columns.WithFlushDelay(cfg.Columns.FlushDelay),
		columns.WithLogger(logger),
	)
	return registry, store, nil
}
