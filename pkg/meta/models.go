package meta

import (
	"time"

	"gorm.io/datatypes"
)

// ObjectRow 把一个后端路径存成一行，SQL 后端使用
type ObjectRow struct {
	// Path 是主键，例如 "blob/Qm..." 或 "entry/photos"
	Path string `gorm:"primaryKey;type:varchar(512)"`

	// Data 是封装 (可能加密/压缩) 之后的字节
	Data []byte `gorm:"not null"`

	CreatedAt time.Time
}

// TableName 强制指定表名
func (ObjectRow) TableName() string {
	return "objects"
}

// ScanReport 记录一次 gc / fsck 的执行结果
// 用于 av history 查询历史运行情况
type ScanReport struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"`
	Kind string `gorm:"index;type:varchar(16);not null"` // "gc" 或 "fsck"

	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time

	// Stats 存储报告的完整内容 (各类型扫描数、删除数等)
	// 不同 Kind 的结构不同，用 JSON 存放
	Stats datatypes.JSON

	// Error 非空表示本次运行中途失败
	Error string `gorm:"type:text"`
}

func (ScanReport) TableName() string {
	return "scan_reports"
}
