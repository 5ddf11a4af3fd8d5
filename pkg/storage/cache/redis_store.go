package cache

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"archvault/pkg/storage"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.Backend 添加 Redis 存在性缓存
// 只缓存 "这个路径已经写过" 这一事实，不缓存数据本身
type CachedStore struct {
	backend storage.Backend // 被装饰的底层存储 (如 S3)
	client  *redis.Client
	ttl     time.Duration
	ns      string // Key 命名空间，区分同一个 Redis 上的多个仓库
}

type Config struct {
	RedisURL  string        // redis://<user>:<password>@<host>:<port>/<db>
	TTL       time.Duration // 过期时间
	Namespace string
}

func NewCachedStore(backend storage.Backend, cfg Config) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = "av"
	}
	return &CachedStore{backend: backend, client: client, ttl: cfg.TTL, ns: ns}, nil
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(p string) string {
	return s.ns + ":obj:" + p
}

// Put 先查 Redis：已知存在的路径直接返回 ErrAlreadyExists，不穿透到底层
// Redis 故障时降级为无缓存模式
func (s *CachedStore) Put(ctx context.Context, p string, data []byte) error {
	key := s.cacheKey(p)

	// 1. 查 Redis
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		slog.Warn("redis exists failed, falling back to backend", "path", p, "err", err)
	} else if n > 0 {
		return storage.ErrAlreadyExists
	}

	// 2. 穿透到底层存储
	err = s.backend.Put(ctx, p, data)
	if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
		return err
	}

	// 3. 写入或回填缓存 (底层确认存在之后)
	if setErr := s.client.Set(ctx, key, "1", s.ttl).Err(); setErr != nil {
		slog.Warn("redis set failed", "path", p, "err", setErr)
	}
	return err
}

// Get 透传，不缓存数据
func (s *CachedStore) Get(ctx context.Context, p string) ([]byte, error) {
	data, err := s.backend.Get(ctx, p)
	if errors.Is(err, storage.ErrNotFound) {
		// 缓存可能滞后于底层删除，顺手清理
		s.client.Del(ctx, s.cacheKey(p))
	}
	return data, err
}

// Delete 先删底层再删缓存
func (s *CachedStore) Delete(ctx context.Context, p string) error {
	if err := s.backend.Delete(ctx, p); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.cacheKey(p)).Err(); err != nil {
		// 残留的 Key 会短路后续写入
		return fmt.Errorf("redis evict %s failed: %w", p, err)
	}
	return nil
}

// List 透传
func (s *CachedStore) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return s.backend.List(ctx, prefix)
}

func (s *CachedStore) Close() error {
	return s.client.Close()
}

var _ storage.Backend = (*CachedStore)(nil)
