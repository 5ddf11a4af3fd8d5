package gc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"archvault/pkg/core"
	"archvault/pkg/seal"
	"archvault/pkg/storage"
	"archvault/pkg/types"

	"golang.org/x/sync/errgroup"
)

type CheckOptions struct {
	Delete   bool // 删除哈希不匹配的对象
	AllTypes bool // 默认只扫描 BLOB，打开后 LIST/TREE 也扫描
	Workers  int
}

// IntegrityReport 是一次完整性检查的结果
type IntegrityReport struct {
	Scanned int `json:"scanned"`
	// Corrupt 是解密成功但哈希不匹配的对象
	Corrupt []core.Link `json:"corrupt"`
	// Unreadable 是无法解密或解压的对象，可能是密钥配置错误，从不自动删除
	Unreadable []core.Link    `json:"unreadable"`
	Deleted    int            `json:"deleted"`
	Duration   time.Duration  `json:"duration"`
}

// OK 表示没有发现任何问题
func (r *IntegrityReport) OK() bool {
	return len(r.Corrupt) == 0 && len(r.Unreadable) == 0
}

// Checker 重新计算已存储对象的哈希，与路径中的哈希比对
type Checker struct {
	store  Store
	logger *slog.Logger
}

func NewChecker(store Store, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{store: store, logger: logger}
}

func (c *Checker) Run(ctx context.Context, opts CheckOptions) (*IntegrityReport, error) {
	start := time.Now()
	report := &IntegrityReport{}

	kinds := []types.ObjectType{types.TypeBlob}
	if opts.AllTypes {
		kinds = types.AllObjectTypes()
	}
	workers := Options{Workers: opts.Workers}.workers()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, t := range kinds {
		for h, err := range c.store.ListObjects(gctx, t) {
			if err != nil {
				// 先让已提交的任务收尾，再报告列举错误
				_ = g.Wait()
				return nil, fmt.Errorf("list %s objects: %w", t, err)
			}
			link := core.NewLink(h, t, 0)
			g.Go(func() error {
				verdict, err := c.check(gctx, link)
				if err != nil {
					return err
				}

				mu.Lock()
				defer mu.Unlock()
				report.Scanned++
				switch verdict {
				case corrupt:
					report.Corrupt = append(report.Corrupt, link)
				case unreadable:
					report.Unreadable = append(report.Unreadable, link)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 清理阶段：只删除哈希确实不匹配的对象
	if opts.Delete {
		for _, link := range report.Corrupt {
			if err := c.store.Delete(ctx, link); err != nil {
				return report, fmt.Errorf("delete corrupt %s: %w", link, err)
			}
			report.Deleted++
		}
	}

	sortLinks(report.Corrupt)
	sortLinks(report.Unreadable)
	report.Duration = time.Since(start)

	c.logger.Info("integrity check finished",
		"scanned", report.Scanned,
		"corrupt", len(report.Corrupt),
		"unreadable", len(report.Unreadable),
		"deleted", report.Deleted,
		"duration", report.Duration,
	)
	return report, nil
}

type verdict int

const (
	healthy verdict = iota
	corrupt
	unreadable
	vanished // 列举之后被并发删除
)

func (c *Checker) check(ctx context.Context, link core.Link) (verdict, error) {
	plain, err := c.store.Load(ctx, link.Type, link.Hash)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return vanished, nil
	case errors.Is(err, seal.ErrDecryption):
		c.logger.Warn("object unreadable", "object", link.String(), "err", err)
		return unreadable, nil
	case errors.Is(err, seal.ErrCorruptFrame):
		c.logger.Warn("object corrupt", "object", link.String(), "err", err)
		return corrupt, nil
	case err != nil:
		return healthy, err
	}

	if err := core.Verify(plain, link.Hash); err != nil {
		c.logger.Warn("object corrupt", "object", link.String(), "err", err)
		return corrupt, nil
	}
	return healthy, nil
}

func sortLinks(links []core.Link) {
	slices.SortFunc(links, func(a, b core.Link) int {
		if a.Type != b.Type {
			return int(a.Type) - int(b.Type)
		}
		return strings.Compare(string(a.Hash), string(b.Hash))
	})
}
