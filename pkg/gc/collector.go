package gc

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"archvault/pkg/core"
	"archvault/pkg/storage"
	"archvault/pkg/types"

	"golang.org/x/sync/errgroup"
)

// Store 是 GC 和完整性检查需要的引擎能力
type Store interface {
	ListObjects(ctx context.Context, t types.ObjectType) iter.Seq2[types.Hash, error]
	ListEntries(ctx context.Context) iter.Seq2[core.Entry, error]
	Children(ctx context.Context, link core.Link) ([]core.Link, error)
	Load(ctx context.Context, t types.ObjectType, h types.Hash) ([]byte, error)
	Delete(ctx context.Context, link core.Link) error
}

type Options struct {
	DryRun  bool // 只统计不删除
	Workers int  // 标记和清扫的并发数，默认 2×NumCPU
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return 2 * runtime.NumCPU()
}

// TypeStats 是某一类对象的统计
type TypeStats struct {
	Scanned   int `json:"scanned"`
	Reachable int `json:"reachable"`
	Deleted   int `json:"deleted"`
}

// Report 是一次 GC 的结果
type Report struct {
	Entries  int           `json:"entries"`
	Blobs    TypeStats     `json:"blobs"`
	Lists    TypeStats     `json:"lists"`
	Trees    TypeStats     `json:"trees"`
	Dangling int           `json:"dangling"` // 指向不存在对象的 Link 数
	DryRun   bool          `json:"dry_run"`
	Duration time.Duration `json:"duration"`
}

func (r *Report) stats(t types.ObjectType) *TypeStats {
	switch t {
	case types.TypeBlob:
		return &r.Blobs
	case types.TypeList:
		return &r.Lists
	default:
		return &r.Trees
	}
}

// Deleted 返回各类型删除数之和
func (r *Report) Deleted() int {
	return r.Blobs.Deleted + r.Lists.Deleted + r.Trees.Deleted
}

// Collector 执行标记-清扫
// 不能与尚未登记 Entry 的 Digest 并发运行：那些新对象对可达性扫描不可见
type Collector struct {
	store  Store
	logger *slog.Logger
}

func NewCollector(store Store, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{store: store, logger: logger}
}

type linkKey struct {
	typ  types.ObjectType
	hash types.Hash
}

// marker 持有标记阶段的共享状态
type marker struct {
	store Store
	queue *workQueue

	mu        sync.Mutex
	unreached map[types.ObjectType]map[types.Hash]struct{}
	reached   map[linkKey]struct{}
	dangling  int
}

func (c *Collector) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{DryRun: opts.DryRun}

	// 1. 快照：先列对象，再列 Entry
	// 反过来的话，两次列举之间新登记的 Entry 所引用的对象可能被误删
	unreached := make(map[types.ObjectType]map[types.Hash]struct{}, 3)
	for _, t := range types.AllObjectTypes() {
		set := make(map[types.Hash]struct{})
		for h, err := range c.store.ListObjects(ctx, t) {
			if err != nil {
				return nil, fmt.Errorf("list %s objects: %w", t, err)
			}
			set[h] = struct{}{}
		}
		unreached[t] = set
		report.stats(t).Scanned = len(set)
	}

	var roots []core.Link
	for entry, err := range c.store.ListEntries(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		roots = append(roots, entry.Root)
	}
	report.Entries = len(roots)

	// 2. 标记
	m := &marker{
		store:     c.store,
		queue:     newWorkQueue(),
		unreached: unreached,
		reached:   make(map[linkKey]struct{}),
	}
	if err := m.run(ctx, roots, opts.workers()); err != nil {
		return nil, fmt.Errorf("mark: %w", err)
	}
	report.Dangling = m.dangling
	for _, t := range types.AllObjectTypes() {
		s := report.stats(t)
		s.Reachable = s.Scanned - len(unreached[t])
	}

	// 3. 清扫：只删除快照里存在且未被标记的对象
	if !opts.DryRun {
		if err := c.sweep(ctx, unreached, report, opts.workers()); err != nil {
			return report, err
		}
	}

	report.Duration = time.Since(start)
	c.logger.Info("gc finished",
		"entries", report.Entries,
		"scanned", report.Blobs.Scanned+report.Lists.Scanned+report.Trees.Scanned,
		"deleted", report.Deleted(),
		"dangling", report.Dangling,
		"dry_run", report.DryRun,
		"duration", report.Duration,
	)
	return report, nil
}

func (c *Collector) sweep(ctx context.Context, unreached map[types.ObjectType]map[types.Hash]struct{}, report *Report, workers int) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, t := range types.AllObjectTypes() {
		for h := range unreached[t] {
			link := core.NewLink(h, t, 0)
			g.Go(func() error {
				if err := c.store.Delete(gctx, link); err != nil {
					return err
				}
				c.logger.Debug("gc deleted", "object", link.String())
				mu.Lock()
				report.stats(t).Deleted++
				mu.Unlock()
				return nil
			})
		}
	}
	return g.Wait()
}

func (m *marker) run(ctx context.Context, roots []core.Link, workers int) error {
	if len(roots) == 0 {
		return nil
	}

	var (
		errOnce  sync.Once
		firstErr error
		wg       sync.WaitGroup
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			m.queue.close()
		})
	}

	m.queue.push(roots...)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				link, ok := m.queue.pop()
				if !ok {
					return
				}
				if err := m.visit(ctx, link); err != nil {
					fail(err)
				}
				m.queue.done()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// visitAction 描述 mark 之后要对一个 Link 做什么
type visitAction int

const (
	skip    visitAction = iota // 已经访问过，或是快照内的 BLOB
	expand                     // 快照内的 LIST/TREE，首次到达
	inspect                    // 快照外的对象，需要确认它是否存在
)

// mark 在锁内更新可达集合
// 已经到达过的节点不再展开，共享子树只遍历一次
func (m *marker) mark(link core.Link) visitAction {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := linkKey{typ: link.Type, hash: link.Hash}
	if _, seen := m.reached[k]; seen {
		return skip
	}
	m.reached[k] = struct{}{}

	set := m.unreached[link.Type]
	if _, ok := set[link.Hash]; ok {
		delete(set, link.Hash)
		if link.Type == types.TypeBlob {
			return skip
		}
		return expand
	}
	return inspect
}

func (m *marker) visit(ctx context.Context, link core.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	var children []core.Link
	switch m.mark(link) {
	case skip:
		return nil
	case expand:
		children, err = m.store.Children(ctx, link)
	case inspect:
		// 快照之后写入的对象照常展开，它们可能引用快照内的对象
		if link.Type == types.TypeBlob {
			_, err = m.store.Load(ctx, link.Type, link.Hash)
		} else {
			children, err = m.store.Children(ctx, link)
		}
	}

	if errors.Is(err, storage.ErrNotFound) {
		m.mu.Lock()
		m.dangling++
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		// 读不出子节点就无法证明它们不可达，必须放弃本次清扫
		return fmt.Errorf("expand %s: %w", link, err)
	}
	m.queue.push(children...)
	return nil
}
