package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wrale/oauth2-device-client/internal/config"
	"github.com/wrale/oauth2-device-client/internal/credstore"
	"github.com/wrale/oauth2-device-client/internal/status"
)

// openedStore is a credential store plus what main needs to manage it
type openedStore struct {
	credstore.Store
	closer io.Closer
	health status.HealthChecker
}

func (s *openedStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func openStore(ctx context.Context, cfg *config.Config) (*openedStore, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return &openedStore{Store: credstore.NewMemoryStore(cfg.StoreCapacity)}, nil

	case config.StoreFile:
		s, err := credstore.OpenFileStore(cfg.StorePath, cfg.StoreCapacity)
		if err != nil {
			return nil, err
		}
		return &openedStore{Store: s, closer: s}, nil

	case config.StoreSQLite:
		s, err := credstore.OpenSQLiteStore(cfg.StorePath, cfg.StoreCapacity)
		if err != nil {
			return nil, err
		}
		return &openedStore{Store: s, closer: s}, nil

	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		s := credstore.NewRedisStore(redis.NewClient(opts), cfg.RedisKey, cfg.StoreCapacity)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.CheckHealth(pingCtx); err != nil {
			s.Close()
			return nil, err
		}
		return &openedStore{Store: s, closer: s, health: s}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
