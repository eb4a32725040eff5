package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sudo-init-do/bundlehub/internal/config"
	"github.com/sudo-init-do/bundlehub/internal/db"
)

// Open returns the store selected by STORE_DRIVER, migrating Postgres first
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case "bolt":
		s, err := OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store %s: %w", cfg.BoltPath, err)
		}
		log.Info("using bolt ledger", zap.String("path", cfg.BoltPath))
		return s, nil
	default:
		pool, err := db.Connect(ctx, cfg.Database.DSN(), log)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(pool, log); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresStore(pool), nil
	}
}
