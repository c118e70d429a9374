package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v7"
	"github.com/ruteri/equipment-registry/interfaces"
)

// RedisStore keeps each collection in a Redis hash. Batches run in a
// MULTI/EXEC transaction.
type RedisStore struct {
	client      *redis.Client
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewRedisStore connects to the Redis server at address. Keys are namespaced by prefix.
func NewRedisStore(address, password string, db int, prefix string, log *slog.Logger) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
		prefix:      prefix,
		log:         log,
		locationURI: fmt.Sprintf("redis://%s/%d", address, db),
	}
}

func (r *RedisStore) hashKey(collection string) string {
	return r.prefix + collection
}

func (r *RedisStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	data, err := r.client.WithContext(ctx).HGet(r.hashKey(collection), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: HGET %s %s: %v", interfaces.ErrBackendUnavailable, collection, key, err)
	}
	return data, nil
}

func (r *RedisStore) Set(ctx context.Context, collection, key string, value []byte) error {
	if err := r.client.WithContext(ctx).HSet(r.hashKey(collection), key, value).Err(); err != nil {
		return fmt.Errorf("%w: HSET %s %s: %v", interfaces.ErrBackendUnavailable, collection, key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if err := r.client.WithContext(ctx).HDel(r.hashKey(collection), key).Err(); err != nil {
		return fmt.Errorf("%w: HDEL %s %s: %v", interfaces.ErrBackendUnavailable, collection, key, err)
	}
	return nil
}

// WriteBatch queues all mutations in one MULTI/EXEC block.
func (r *RedisStore) WriteBatch(ctx context.Context, mutations []interfaces.Mutation) error {
	_, err := r.client.WithContext(ctx).TxPipelined(func(pipe redis.Pipeliner) error {
		for _, mut := range mutations {
			if mut.Value == nil {
				pipe.HDel(r.hashKey(mut.Collection), mut.Key)
				continue
			}
			pipe.HSet(r.hashKey(mut.Collection), mut.Key, mut.Value)
		}
		return nil
	})
	if err != nil {
		r.log.Error("Redis batch failed", slog.Int("mutations", len(mutations)), "err", err)
		return fmt.Errorf("%w: MULTI/EXEC: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *RedisStore) Available(ctx context.Context) bool {
	if err := r.client.WithContext(ctx).Ping().Err(); err != nil {
		r.log.Debug("Redis store unavailable", "err", err)
		return false
	}
	return true
}

func (r *RedisStore) Name() string {
	return fmt.Sprintf("redis-%s", r.client.Options().Addr)
}

func (r *RedisStore) LocationURI() string {
	return r.locationURI
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
