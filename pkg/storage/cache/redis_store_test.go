package cache

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"archvault/pkg/storage"
	"archvault/pkg/storage/disk"
	"archvault/pkg/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore 连接本地 Redis，不可用时跳过
func newTestStore(t *testing.T, backend storage.Backend) *CachedStore {
	t.Helper()
	redisAddr := "localhost:6379"
	conn, err := net.DialTimeout("tcp", redisAddr, 1*time.Second)
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	conn.Close()

	store, err := NewCachedStore(backend, Config{
		RedisURL: fmt.Sprintf("redis://%s/0", redisAddr),
		TTL:      1 * time.Hour,
		// 每个测试独立的命名空间，不需要 FlushDB
		Namespace: fmt.Sprintf("avtest-%d", time.Now().UnixNano()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCachedStore_Contract(t *testing.T) {
	storagetest.Run(t, newTestStore(t, disk.NewMemAdapter()))
}

func TestCachedStore_Integration(t *testing.T) {
	ctx := context.Background()
	spy := storagetest.NewSpy(disk.NewMemAdapter())
	cachedStore := newTestStore(t, spy)

	path := "blob/QmCacheIntegration"

	// --- Step 1: 首次写入穿透到底层 ---
	require.NoError(t, cachedStore.Put(ctx, path, []byte("data")))
	assert.Equal(t, 1, spy.Puts("blob"), "Backend Put() should be called")

	// Redis 应该有这个 Key 了
	n, err := cachedStore.client.Exists(ctx, cachedStore.cacheKey(path)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "Redis key should be set after Put")

	// --- Step 2: 再次写入被 Redis 拦截 ---
	err = cachedStore.Put(ctx, path, []byte("data"))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	assert.Equal(t, 0, spy.Rejects("blob"), "请求应该被 Redis 拦截，根本没到底层")

	// --- Step 3: 删除同时清理缓存 ---
	require.NoError(t, cachedStore.Delete(ctx, path))
	n, err = cachedStore.client.Exists(ctx, cachedStore.cacheKey(path)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// 删除之后可以重新写入
	require.NoError(t, cachedStore.Put(ctx, path, []byte("data")))
	assert.Equal(t, 2, spy.Puts("blob"))
}

func TestCachedStore_BackfillsOnBackendConflict(t *testing.T) {
	ctx := context.Background()
	backend := disk.NewMemAdapter()
	require.NoError(t, backend.Put(ctx, "tree/QmPreexisting", []byte("t")))

	cachedStore := newTestStore(t, backend)

	// 缓存未命中，底层报已存在，缓存被回填
	err := cachedStore.Put(ctx, "tree/QmPreexisting", []byte("t"))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	n, err := cachedStore.client.Exists(ctx, cachedStore.cacheKey("tree/QmPreexisting")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewCachedStore_BadURL(t *testing.T) {
	_, err := NewCachedStore(disk.NewMemAdapter(), Config{RedisURL: "not a url"})
	assert.Error(t, err)
}
