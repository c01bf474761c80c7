package benchmarks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zeu5/skillgraph/ctxlog"
	"github.com/zeu5/skillgraph/store"
)

// openStore opens the snapshot store selected with --store
func openStore(ctx context.Context) (store.Store, error) {
	logger := ctxlog.FromContext(ctx)
	switch storeKind {
	case "file":
		logger.Debug("Opening file store.", "path", storePath)
		return store.NewFileStore(storePath)
	case "sqlite":
		logger.Debug("Opening sqlite store.", "path", storePath)
		return store.NewSQLiteStore(storePath)
	case "redis":
		cli := redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})
		if err := cli.Ping(ctx).Err(); err != nil {
			cli.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", redisAddr, err)
		}
		logger.Debug("Connected to redis store.", "addr", redisAddr, "prefix", redisPrefix)
		return store.NewRedisStoreFromClient(cli, store.WithPrefix(redisPrefix)), nil
	default:
		return nil, fmt.Errorf("unknown store %q", storeKind)
	}
}
