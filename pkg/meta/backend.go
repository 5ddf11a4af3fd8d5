package meta

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"archvault/pkg/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// listPageSize 是每次分页查询的行数
const listPageSize = 500

// Backend 把 objects 表适配为 storage.Backend
type Backend struct {
	db *DB
}

func NewBackend(db *DB) *Backend {
	return &Backend{db: db}
}

func (b *Backend) Put(ctx context.Context, path string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	// 主键冲突时什么都不做 (Do Nothing)，通过影响行数判断是否已存在
	// 判断与写入在同一条 SQL 里完成
	result := b.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoNothing: true,
		}).
		Create(&ObjectRow{Path: path, Data: data})
	if result.Error != nil {
		return fmt.Errorf("sql put %s: %w", path, result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, path string) ([]byte, error) {
	var row ObjectRow
	err := b.db.GetConn().WithContext(ctx).
		Where("path = ?", path).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("sql get %s: %w", path, err)
	}
	return row.Data, nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	err := b.db.GetConn().WithContext(ctx).
		Where("path = ?", path).
		Delete(&ObjectRow{}).Error
	if err != nil {
		return fmt.Errorf("sql delete %s: %w", path, err)
	}
	return nil
}

// List 使用 Keyset 分页 (path > 上一页最后一个) 而不是 OFFSET
// 遍历期间有行被删除也不会跳过或重复
func (b *Backend) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pattern := escapeLike(prefix) + "%"
		after := ""
		for {
			var paths []string
			err := b.db.GetConn().WithContext(ctx).
				Model(&ObjectRow{}).
				Where("path LIKE ? ESCAPE ?", pattern, `\`).
				Where("path > ?", after).
				Order("path").
				Limit(listPageSize).
				Pluck("path", &paths).Error
			if err != nil {
				yield("", fmt.Errorf("sql list %s: %w", prefix, err))
				return
			}
			for _, p := range paths {
				if !yield(p, nil) {
					return
				}
			}
			if len(paths) < listPageSize {
				return
			}
			after = paths[len(paths)-1]
		}
	}
}

// escapeLike 转义 LIKE 中的通配符
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ storage.Backend = (*Backend)(nil)
