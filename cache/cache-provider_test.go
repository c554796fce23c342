package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providers(t *testing.T) map[string]Storage {
	t.Helper()

	sqlite, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rds := NewRedisStorageWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")

	storages := map[string]Storage{
		"memory": NewMemStorage(),
		"sqlite": sqlite,
		"redis":  rds,
	}
	for _, s := range storages {
		s := s
		t.Cleanup(func() { s.Close() })
	}
	return storages
}

func TestPutMatchDelete(t *testing.T) {
	ctx := context.Background()
	for name, storage := range providers(t) {
		t.Run(name, func(t *testing.T) {
			c, err := storage.Open(ctx, "images")
			require.NoError(t, err)
			assert.Equal(t, "images", c.Name())

			_, ok, err := c.Match(ctx, "https://media/a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Put(ctx, "https://media/a", []byte("a")))
			entry, ok, err := c.Match(ctx, "https://media/a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "a", string(entry.Bytes))
			assert.Equal(t, "https://media/a", entry.Key)
			assert.False(t, entry.StoredAt.IsZero())

			deleted, err := c.Delete(ctx, "https://media/a")
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = c.Delete(ctx, "https://media/a")
			require.NoError(t, err)
			assert.False(t, deleted)

			_, ok, err = c.Match(ctx, "https://media/a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestKeysKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	for name, storage := range providers(t) {
		t.Run(name, func(t *testing.T) {
			c, err := storage.Open(ctx, "images")
			require.NoError(t, err)

			for _, k := range []string{"c", "a", "b"} {
				require.NoError(t, c.Put(ctx, k, []byte(k)))
			}
			keys, err := c.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "a", "b"}, keys)

			// replacing an entry moves it to the end
			require.NoError(t, c.Put(ctx, "c", []byte("c2")))
			keys, err = c.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, keys)

			entry, ok, err := c.Match(ctx, "c")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "c2", string(entry.Bytes))
		})
	}
}

func TestNamespacesArePartitioned(t *testing.T) {
	ctx := context.Background()
	for name, storage := range providers(t) {
		t.Run(name, func(t *testing.T) {
			images, err := storage.Open(ctx, "app-images-v1")
			require.NoError(t, err)
			static, err := storage.Open(ctx, "app-static-v1")
			require.NoError(t, err)

			require.NoError(t, images.Put(ctx, "/", []byte("image")))
			require.NoError(t, static.Put(ctx, "/", []byte("shell")))

			entry, _, err := static.Match(ctx, "/")
			require.NoError(t, err)
			assert.Equal(t, "shell", string(entry.Bytes))

			names, err := storage.Names(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"app-images-v1", "app-static-v1"}, names)

			deleted, err := storage.Delete(ctx, "app-images-v1")
			require.NoError(t, err)
			assert.True(t, deleted)

			names, err = storage.Names(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"app-static-v1"}, names)

			// reopening a deleted namespace starts empty
			images, err = storage.Open(ctx, "app-images-v1")
			require.NoError(t, err)
			keys, err := images.Keys(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)

			entry, ok, err := static.Match(ctx, "/")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "shell", string(entry.Bytes))
		})
	}
}

func TestConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	for name, storage := range providers(t) {
		t.Run(name, func(t *testing.T) {
			c, err := storage.Open(ctx, "images")
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, c.Put(ctx, fmt.Sprintf("key-%d", i), []byte("x")))
				}(i)
			}
			wg.Wait()

			keys, err := c.Keys(ctx)
			require.NoError(t, err)
			assert.Len(t, keys, 20)
		})
	}
}
