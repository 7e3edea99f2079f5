package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/atlast/config"
	"github.com/mohammad-safakhou/atlast/repository/inmemory_repository"
	"github.com/mohammad-safakhou/atlast/repository/redis_repository"
)

// KeyStore is the shared keyed store holding session state. Every operation is
// atomic per key; callers compose them without multi-key transactions.
type KeyStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	RPush(ctx context.Context, key string, values ...string) error
	// LPush puts values back at the head of a list.
	LPush(ctx context.Context, key string, values ...string) error
	// LPop removes the head of a list. ok is false when the list is empty or missing.
	LPop(ctx context.Context, key string) (value string, ok bool, err error)
	LLen(ctx context.Context, key string) (int64, error)

	// SAdd reports how many members were not already in the set.
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Incr(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, ttl time.Duration, keys ...string) error

	Publish(ctx context.Context, channel, payload string) error
	// Subscribe delivers payloads until ctx is done, then closes the channel.
	Subscribe(ctx context.Context, channel string) (<-chan string, error)

	Ping(ctx context.Context) error
	Close() error
}

type RepoType string

const (
	RepoTypeRedis    RepoType = "redis"
	RepoTypeInMemory RepoType = "inmemory"
)

// NewKeyStore connects the configured keyed store.
func NewKeyStore(ctx context.Context, cfg config.StorageConfig) (KeyStore, error) {
	switch RepoType(cfg.KeyStore) {
	case RepoTypeRedis:
		r := cfg.Redis
		timeout := r.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		c, err := redis_repository.Conn(ctx, r.Host, r.Port, r.Password, r.DB, timeout)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return redis_repository.NewKeyStore(c), nil
	case RepoTypeInMemory:
		return inmemory_repository.NewKeyStore(), nil
	}
	return nil, fmt.Errorf("invalid repository type: %s", cfg.KeyStore)
}
