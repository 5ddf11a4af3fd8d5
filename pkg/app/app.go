package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"archvault/pkg/chunker"
	"archvault/pkg/engine"
	"archvault/pkg/exporter"
	"archvault/pkg/gc"
	"archvault/pkg/ingester"
	"archvault/pkg/meta"
	"archvault/pkg/objcache"
	"archvault/pkg/seal"
	"archvault/pkg/storage"
	"archvault/pkg/storage/cache"
	"archvault/pkg/storage/disk"
	"archvault/pkg/storage/s3"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有"单例"服务
type App struct {
	Backend   storage.Backend
	Engine    *engine.Engine
	Ingester  *ingester.Ingester
	Exporter  *exporter.Exporter
	Cache     *objcache.Reader
	Collector *gc.Collector
	Checker   *gc.Checker
	Journal   *meta.Repository // 未配置 journal.dsn 时为 nil
	Logger    *slog.Logger

	closers []io.Closer
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	// 1. 日志
	logger, err := newLogger(os.Stderr, viper.GetString("log.level"), viper.GetString("log.format"))
	if err != nil {
		return nil, err
	}
	a.Logger = logger
	slog.SetDefault(logger)

	// 2. 存储层
	backend, err := a.initBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	a.Backend = backend

	// 3. 引擎
	sealer, err := initSealer()
	if err != nil {
		return nil, err
	}
	a.Engine = engine.New(backend, engine.WithSealer(sealer), engine.WithLogger(logger))

	// 4. 写入/读取管线
	slicer, err := initChunker()
	if err != nil {
		return nil, err
	}
	a.Ingester = ingester.NewIngester(a.Engine, slicer,
		ingester.WithFanout(viper.GetInt("digest.fanout")),
		ingester.WithParallelism(viper.GetInt("digest.parallelism")),
		ingester.WithLogger(logger),
	)

	budget := viper.GetInt64("cache.bytes")
	if budget <= 0 {
		budget = objcache.DefaultBudget
	}
	a.Cache, err = objcache.New(a.Engine, budget)
	if err != nil {
		return nil, err
	}
	a.Exporter = exporter.NewExporter(a.Cache, exporter.WithLogger(logger))

	// 5. 维护工具
	a.Collector = gc.NewCollector(a.Engine, logger)
	a.Checker = gc.NewChecker(a.Engine, logger)

	// 6. 可选的运行日志库
	if dsn := viper.GetString("journal.dsn"); dsn != "" {
		db, err := meta.NewDB(ctx, meta.Config{Driver: viper.GetString("journal.driver"), DSN: dsn})
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		a.closers = append(a.closers, db)
		a.Journal = meta.NewRepository(db)
	}

	ok = true
	return a, nil
}

// initBackend 根据 storage.type 选择后端，配置了 Redis 时再套一层存在性缓存
func (a *App) initBackend(ctx context.Context) (storage.Backend, error) {
	var backend storage.Backend

	switch t := viper.GetString("storage.type"); t {
	case "disk", "":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, fmt.Errorf("storage path not set")
		}
		d, err := disk.NewOSAdapter(path)
		if err != nil {
			return nil, err
		}
		backend = d

	case "s3":
		cfg := s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key_id"),
			SecretAccessKey: viper.GetString("storage.s3.secret_access_key"),
			Prefix:          viper.GetString("storage.s3.prefix"),
		}
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("storage.s3.bucket is required")
		}
		adapter, err := s3.NewAdapter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		backend = adapter

	case "sql":
		db, err := meta.NewDB(ctx, meta.Config{
			Driver: viper.GetString("storage.sql.driver"),
			DSN:    viper.GetString("storage.sql.dsn"),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		backend = meta.NewBackend(db)

	default:
		return nil, fmt.Errorf("unsupported storage type: %q", t)
	}

	if url := viper.GetString("storage.redis.url"); url != "" {
		cached, err := cache.NewCachedStore(backend, cache.Config{
			RedisURL: url,
			TTL:      viper.GetDuration("storage.redis.ttl"),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cached)
		backend = cached
	}
	return backend, nil
}

func initSealer() (*seal.Sealer, error) {
	key, err := seal.ParseKey(viper.GetString("encryption.key"))
	if err != nil {
		return nil, err
	}
	codec, err := seal.ParseCompression(viper.GetString("compression"))
	if err != nil {
		return nil, err
	}
	return seal.New(key, codec)
}

func initChunker() (chunker.Slicer, error) {
	return chunker.New(chunker.Config{
		Type:      viper.GetString("chunker.type"),
		MinSize:   viper.GetInt("chunker.min_size"),
		MaxSize:   viper.GetInt("chunker.max_size"),
		Window:    viper.GetInt("chunker.window"),
		MaskBits:  viper.GetInt("chunker.mask_bits"),
		ChunkSize: viper.GetInt("chunker.chunk_size"),
	})
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl := slog.LevelInfo
	if level == "" {
		level = "info"
	}
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// RecordRun 把一次 gc/fsck 的结果写进运行日志库，没有配置时什么都不做
func (a *App) RecordRun(ctx context.Context, kind string, started time.Time, stats any, runErr error) {
	if a.Journal == nil {
		return
	}
	if _, err := a.Journal.SaveReport(ctx, kind, started, time.Now(), stats, runErr); err != nil {
		a.Logger.Warn("failed to record run", "kind", kind, "err", err)
	}
}

// Close 按创建的逆序释放资源
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
