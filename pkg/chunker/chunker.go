package chunker

import (
	"fmt"
	"io"
	"iter"
)

// 默认参数 (单位: 字节)
// 注意：这些都是协议常量，改动会让已有数据的切分点全部失效
const (
	DefaultMinSize   = 256 * 1024      // 256KB
	DefaultMaxSize   = 4 * 1024 * 1024 // 4MB
	DefaultWindow    = 64
	DefaultMaskBits  = 20
	DefaultFixedSize = 1024 * 1024 // 1MB
)

// Slicer 把字节流切成一系列 chunk
// 返回的序列只能消费一次：读完 reader 也就读完了序列
// 每个 chunk 都是新分配的切片，调用者可以放心交给并发写入
type Slicer interface {
	Slice(r io.Reader) iter.Seq2[[]byte, error]
}

// Config 描述切分策略，通常来自配置文件
type Config struct {
	Type      string // "rolling" (默认) 或 "fixed"
	MinSize   int
	MaxSize   int
	Window    int
	MaskBits  int
	ChunkSize int // 仅 fixed 使用
}

// New 根据配置创建 Slicer，未设置的字段使用默认值
func New(cfg Config) (Slicer, error) {
	switch cfg.Type {
	case "", "rolling":
		rc := RollingConfig{
			MinSize: orDefault(cfg.MinSize, DefaultMinSize),
			MaxSize: orDefault(cfg.MaxSize, DefaultMaxSize),
			Window:  orDefault(cfg.Window, DefaultWindow),
		}
		bits := orDefault(cfg.MaskBits, DefaultMaskBits)
		if bits > 32 {
			return nil, fmt.Errorf("mask bits must be <= 32, got %d", bits)
		}
		rc.Mask = MaskFromBits(bits)
		return NewRolling(rc)
	case "fixed":
		return NewFixed(orDefault(cfg.ChunkSize, DefaultFixedSize))
	default:
		return nil, fmt.Errorf("unsupported chunker type: %q", cfg.Type)
	}
}

// MaskFromBits 生成低位掩码，bits=20 -> 0x000FFFFF
func MaskFromBits(bits int) uint32 {
	if bits >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<uint(bits) - 1
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
