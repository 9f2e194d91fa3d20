package store

import (
	"context"
	"fmt"

	"github.com/wuwenbin0122/lovelens/internal/db"
	"github.com/wuwenbin0122/lovelens/internal/utils"
)

// Open builds the backend named by cfg.Store.Backend. The returned store owns
// its connections and releases them on Close.
func Open(ctx context.Context, cfg *utils.Config) (Store, error) {
	switch cfg.Store.Backend {
	case "", utils.StoreMemory:
		return NewMemoryStore(), nil

	case utils.StoreBolt:
		return OpenBoltStore(cfg.Store.BoltPath)

	case utils.StorePostgres:
		postgres, err := db.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := postgres.Ping(ctx); err != nil {
			postgres.Close()
			return nil, fmt.Errorf("postgres: ping failed: %w", err)
		}
		if err := postgres.EnsureSchema(ctx); err != nil {
			postgres.Close()
			return nil, err
		}
		return NewPostgresStore(postgres.Pool), nil

	case utils.StoreMongo:
		mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := mongoStore.EnsureCollections(ctx); err != nil {
			_ = mongoStore.Close(context.Background())
			return nil, err
		}
		return NewMongoStore(mongoStore), nil

	case utils.StoreRedis:
		client, err := db.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client), nil

	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Store.Backend)
	}
}
