package meta

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config 数据库配置
type Config struct {
	Driver string // "postgres" 或 "sqlite"
	DSN    string
}

// DB 封装了 GORM 实例，作为 SQL 后端和运行日志的入口
type DB struct {
	conn *gorm.DB
}

// NewDB 初始化数据库连接
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported sql driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层 sql.DB 以配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "postgres" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// SQLite 同一时间只允许一个写者，单连接避免 "database is locked"
		sqlDB.SetMaxOpenConns(1)
	}

	// 验证连接是否存活
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	d := &DB{conn: db}
	if err := d.Migrate(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewWithConn 允许使用现有的 GORM 连接初始化 DB
// 用于复用连接池或单元测试
func NewWithConn(conn *gorm.DB) *DB {
	return &DB{conn: conn}
}

// Migrate 自动迁移所有表结构
func (d *DB) Migrate() error {
	if err := d.conn.AutoMigrate(&ObjectRow{}, &ScanReport{}); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	return nil
}

func (d *DB) GetConn() *gorm.DB {
	return d.conn
}

func (d *DB) Close() error {
	sqlDB, err := d.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
