package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Repository 封装运行日志相关的 SQL 操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveReport 记录一次扫描的结果，stats 会被序列化为 JSON
func (r *Repository) SaveReport(ctx context.Context, kind string, started, finished time.Time, stats any, runErr error) (*ScanReport, error) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s stats: %w", kind, err)
	}

	report := ScanReport{
		Kind:       kind,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Stats:      datatypes.JSON(raw),
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	if err := r.db.GetConn().WithContext(ctx).Create(&report).Error; err != nil {
		return nil, fmt.Errorf("failed to save %s report: %w", kind, err)
	}
	return &report, nil
}

// ListReports 按时间倒序返回最近的报告，kind 为空时返回所有类型
func (r *Repository) ListReports(ctx context.Context, kind string, limit int) ([]ScanReport, error) {
	q := r.db.GetConn().WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var reports []ScanReport
	if err := q.Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}
