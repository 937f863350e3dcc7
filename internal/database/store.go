package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/config"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/tablestore"
)

var (
	ErrNoStore       = errors.New("database: highscore store not configured")
	ErrUnknownScheme = errors.New("database: unsupported store scheme")
)

// Store is an opened highscore table together with the client backing it.
type Store struct {
	Kind  string
	Table tablestore.Table
	Redis *redis.Client
	Mongo *mongo.Client
}

// Open connects to the backend named by cfg.URI's scheme.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if cfg.URI == "" {
		return nil, ErrNoStore
	}
	scheme, _, _ := strings.Cut(cfg.URI, "://")
	switch strings.ToLower(scheme) {
	case "redis", "rediss":
		client, err := ConnectRedis(ctx, cfg.URI, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return &Store{Kind: "redis", Table: tablestore.NewRedisTable(client, cfg.Table), Redis: client}, nil
	case "mongodb", "mongodb+srv":
		client, err := ConnectMongo(ctx, cfg.URI, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		table, err := tablestore.OpenMongoTable(client, cfg.Database, cfg.Table)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &Store{Kind: "mongodb", Table: table, Mongo: client}, nil
	case "memory":
		return &Store{Kind: "memory", Table: tablestore.NewMemoryTable()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

// Ping checks the backing client is reachable.
func (s *Store) Ping(ctx context.Context) error {
	switch {
	case s.Redis != nil:
		return s.Redis.Ping(ctx).Err()
	case s.Mongo != nil:
		return s.Mongo.Ping(ctx, nil)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	switch {
	case s.Redis != nil:
		return s.Redis.Close()
	case s.Mongo != nil:
		return s.Mongo.Disconnect(ctx)
	}
	return nil
}
