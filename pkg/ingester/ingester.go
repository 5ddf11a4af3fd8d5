package ingester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"archvault/pkg/chunker"
	"archvault/pkg/core"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultFanout 是一个 LIST 最多引用的子节点数
const DefaultFanout = 128

// Store 是 Ingester 对存储引擎的最小依赖
type Store interface {
	WriteObject(ctx context.Context, obj core.Object) (core.Link, bool, error)
	AddEntry(ctx context.Context, entry core.Entry) (core.Entry, error)
}

// Ingester 把文件或目录切块、写入引擎，并登记为一个 Entry
type Ingester struct {
	store  Store
	slicer chunker.Slicer
	fs     afero.Fs
	fanout int
	sem    *semaphore.Weighted // 限制同时在途 (已读未写) 的块数
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Ingester)

func WithFanout(k int) Option {
	return func(i *Ingester) {
		if k >= 2 {
			i.fanout = k
		}
	}
}

// WithParallelism 设置块写入的并发上限，默认 2×NumCPU
func WithParallelism(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithFs(fsys afero.Fs) Option {
	return func(i *Ingester) { i.fs = fsys }
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Ingester) { i.logger = l }
}

// WithClock 替换 Entry 的创建时间来源，主要用于测试
func WithClock(now func() time.Time) Option {
	return func(i *Ingester) { i.now = now }
}

func NewIngester(store Store, slicer chunker.Slicer, opts ...Option) *Ingester {
	ing := &Ingester{
		store:  store,
		slicer: slicer,
		fs:     afero.NewOsFs(),
		fanout: DefaultFanout,
		sem:    semaphore.NewWeighted(int64(2 * runtime.NumCPU())),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Stats 汇总一次 Digest 的工作量
type Stats struct {
	Files     int
	Dirs      int
	Skipped   int   // 被忽略规则或文件类型过滤掉的路径
	Chunks    int64 // 切出的块数 (含重复)
	NewChunks int64 // 其中实际新写入的块数
	Bytes     int64
	Lists     int
	Trees     int
}

// counters 在并发写块时累加，结束后转成 Stats
type counters struct {
	files, dirs, skipped atomic.Int64
	chunks, newChunks    atomic.Int64
	bytes                atomic.Int64
	lists, trees         atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{
		Files:     int(c.files.Load()),
		Dirs:      int(c.dirs.Load()),
		Skipped:   int(c.skipped.Load()),
		Chunks:    c.chunks.Load(),
		NewChunks: c.newChunks.Load(),
		Bytes:     c.bytes.Load(),
		Lists:     int(c.lists.Load()),
		Trees:     int(c.trees.Load()),
	}
}

// DigestFile 流式切分 r，写入全部块并返回文件的根 Link
// 单块文件的根就是那个 BLOB；空文件也会产生一个空 BLOB
func (ing *Ingester) DigestFile(ctx context.Context, r io.Reader) (core.Link, error) {
	return ing.digestFile(ctx, r, &counters{})
}

func (ing *Ingester) digestFile(ctx context.Context, r io.Reader, c *counters) (core.Link, error) {
	g, gctx := errgroup.WithContext(ctx)

	// 每个块占一个槽位，保证父节点中的顺序与文件顺序一致
	var slots []*core.Link
	var readErr error

	for chunk, err := range ing.slicer.Slice(r) {
		if err != nil {
			readErr = fmt.Errorf("read chunk %d: %w", len(slots), err)
			break
		}
		// 1. 拿到令牌才能继续读，否则内存会被读得飞快的 reader 撑爆
		if err := ing.sem.Acquire(gctx, 1); err != nil {
			break // 某个写入失败导致 gctx 被取消，真正的错误由 g.Wait 返回
		}

		slot := new(core.Link)
		slots = append(slots, slot)
		c.chunks.Add(1)
		c.bytes.Add(int64(len(chunk)))

		// 2. 并发写块
		g.Go(func() error {
			defer ing.sem.Release(1)
			link, created, err := ing.store.WriteObject(gctx, core.NewBlob(chunk))
			if err != nil {
				return err
			}
			if created {
				c.newChunks.Add(1)
			}
			*slot = link
			return nil
		})
	}

	// 3. 所有块落盘之后才能写父节点
	werr := g.Wait()
	if readErr != nil {
		return core.Link{}, errors.Join(readErr, werr)
	}
	if werr != nil {
		return core.Link{}, werr
	}
	if err := ctx.Err(); err != nil {
		return core.Link{}, err
	}

	if len(slots) == 0 {
		link, created, err := ing.store.WriteObject(ctx, core.NewBlob(nil))
		if err != nil {
			return core.Link{}, err
		}
		c.chunks.Add(1)
		if created {
			c.newChunks.Add(1)
		}
		return link, nil
	}

	links := make([]core.Link, len(slots))
	for i, s := range slots {
		links[i] = *s
	}
	return ing.buildList(ctx, links, c)
}

// BuildList 把有序的 Link 序列逐层合并成一棵 LIST 树，返回根
// 每层把至多 fanout 个相邻的 Link 收进一个新的 LIST，直到只剩一个
func (ing *Ingester) BuildList(ctx context.Context, links []core.Link) (core.Link, error) {
	return ing.buildList(ctx, links, &counters{})
}

func (ing *Ingester) buildList(ctx context.Context, links []core.Link, c *counters) (core.Link, error) {
	if len(links) == 0 {
		return core.Link{}, errors.New("build list: no links")
	}

	level := links
	for len(level) > 1 {
		next := make([]core.Link, 0, (len(level)+ing.fanout-1)/ing.fanout)
		for start := 0; start < len(level); start += ing.fanout {
			group := level[start:min(start+ing.fanout, len(level))]

			list, err := core.NewList(group)
			if err != nil {
				return core.Link{}, err
			}
			link, created, err := ing.store.WriteObject(ctx, list)
			if err != nil {
				return core.Link{}, fmt.Errorf("write list: %w", err)
			}
			if created {
				c.lists.Add(1)
			}
			next = append(next, link)
		}
		level = next
	}
	return level[0], nil
}
