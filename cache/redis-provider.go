package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps namespaces in Redis, so several edge processes can share one cache.
//
// Layout, for prefix p and namespace n:
//
//	p:seq              counter used for ordering
//	p:namespaces       sorted set of namespace names, scored by creation
//	p:ns:n:order       sorted set of keys, scored by insertion
//	p:ns:n:data        hash of key -> response bytes
//	p:ns:n:stored      hash of key -> unix nanoseconds
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage connects to the Redis server at the given URL, e.g. redis://localhost:6379/0.
func NewRedisStorage(url, prefix string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStorageWithClient(redis.NewClient(opts), prefix), nil
}

func NewRedisStorageWithClient(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "media-edge"
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (s *RedisStorage) namespacesKey() string {
	return s.prefix + ":namespaces"
}

func (s *RedisStorage) seqKey() string {
	return s.prefix + ":seq"
}

func (s *RedisStorage) nsKey(name, part string) string {
	return s.prefix + ":ns:" + name + ":" + part
}

func (s *RedisStorage) Open(ctx context.Context, name string) (Cache, error) {
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("open namespace %s: %w", name, err)
	}
	if err := s.client.ZAddNX(ctx, s.namespacesKey(), redis.Z{Score: float64(seq), Member: name}).Err(); err != nil {
		return nil, fmt.Errorf("open namespace %s: %w", name, err)
	}
	return &RedisCache{storage: s, name: name}, nil
}

func (s *RedisStorage) Names(ctx context.Context) ([]string, error) {
	return s.client.ZRange(ctx, s.namespacesKey(), 0, -1).Result()
}

func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.nsKey(name, "order"), s.nsKey(name, "data"), s.nsKey(name, "stored"))
		removed = pipe.ZRem(ctx, s.namespacesKey(), name)
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed.Val() > 0, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// RedisCache is one namespace of a RedisStorage.
type RedisCache struct {
	storage *RedisStorage
	name    string
}

func (c *RedisCache) Name() string {
	return c.name
}

func (c *RedisCache) Match(ctx context.Context, key string) (Entry, bool, error) {
	s := c.storage
	var data, stored *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		data = pipe.HGet(ctx, s.nsKey(c.name, "data"), key)
		stored = pipe.HGet(ctx, s.nsKey(c.name, "stored"), key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	bytes, err := data.Bytes()
	if err != nil {
		return Entry{}, false, err
	}
	nanos, err := stored.Int64()
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Key: key, StoredAt: time.Unix(0, nanos), Bytes: bytes}, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, bytes []byte) error {
	s := c.storage
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.nsKey(c.name, "data"), key, bytes)
		pipe.HSet(ctx, s.nsKey(c.name, "stored"), key, time.Now().UnixNano())
		pipe.ZAdd(ctx, s.nsKey(c.name, "order"), redis.Z{Score: float64(seq), Member: key})
		return nil
	})
	return err
}

func (c *RedisCache) Delete(ctx context.Context, key string) (bool, error) {
	s := c.storage
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.nsKey(c.name, "data"), key)
		pipe.HDel(ctx, s.nsKey(c.name, "stored"), key)
		removed = pipe.ZRem(ctx, s.nsKey(c.name, "order"), key)
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed.Val() > 0, nil
}

func (c *RedisCache) Keys(ctx context.Context) ([]string, error) {
	return c.storage.client.ZRange(ctx, c.storage.nsKey(c.name, "order"), 0, -1).Result()
}
