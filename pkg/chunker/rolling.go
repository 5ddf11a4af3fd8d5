package chunker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
)

// Prime 是 Rabin-Karp 递推使用的奇素数
// 所有运算都在 uint32 上完成，依赖无符号溢出实现 mod 2^32
// 换成 int 或 uint64 会改变切分点，已有数据将无法再去重
const Prime uint32 = 16777619

// RollingConfig 内容定义切分 (CDC) 的参数
type RollingConfig struct {
	MinSize int
	MaxSize int
	Window  int    // 滑动窗口大小，必须小于 MinSize
	Mask    uint32 // 参与比较的低位
	Target  uint32 // 期望的指纹值，通常为 0
}

// Rolling 基于滑动窗口滚动哈希的切分器
type Rolling struct {
	cfg     RollingConfig
	primeW  uint32 // Prime^Window，预计算一次
	readBuf int
}

func NewRolling(cfg RollingConfig) (*Rolling, error) {
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", cfg.Window)
	}
	if cfg.Window >= cfg.MinSize {
		return nil, fmt.Errorf("window size %d must be smaller than min chunk size %d", cfg.Window, cfg.MinSize)
	}
	if cfg.MinSize > cfg.MaxSize {
		return nil, fmt.Errorf("min chunk size %d exceeds max chunk size %d", cfg.MinSize, cfg.MaxSize)
	}
	if cfg.Target&^cfg.Mask != 0 {
		return nil, fmt.Errorf("target fingerprint %#x has bits outside mask %#x", cfg.Target, cfg.Mask)
	}

	pw := uint32(1)
	for range cfg.Window {
		pw *= Prime
	}

	return &Rolling{cfg: cfg, primeW: pw, readBuf: 64 * 1024}, nil
}

func (c *Rolling) Config() RollingConfig { return c.cfg }

// Slice 逐字节推进窗口：
//  1. 前 Window 个字节直接累积出初始哈希
//  2. 之后每个字节 H' = H*P - P^W*out + in
//  3. 块长 >= MinSize 且 H&Mask == Target 时切分；块长到 MaxSize 时强制切分
//  4. 流结束时剩余字节作为最后一块
func (c *Rolling) Slice(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		br := bufio.NewReaderSize(r, c.readBuf)
		w := c.cfg.Window
		buf := make([]byte, 0, c.cfg.MinSize)
		var h uint32

		for {
			b, err := br.ReadByte()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, fmt.Errorf("rolling slicer read failed: %w", err))
					return
				}
				if len(buf) > 0 {
					yield(buf, nil)
				}
				return
			}

			buf = append(buf, b)
			n := len(buf)

			if n <= w {
				h = h*Prime + uint32(b)
				if n < c.cfg.MaxSize {
					continue
				}
			} else {
				out := buf[n-1-w]
				h = h*Prime - c.primeW*uint32(out) + uint32(b)
			}

			cut := n == c.cfg.MaxSize ||
				(n > w && n >= c.cfg.MinSize && h&c.cfg.Mask == c.cfg.Target)
			if !cut {
				continue
			}

			if !yield(buf, nil) {
				return
			}
			buf = make([]byte, 0, c.cfg.MinSize)
			h = 0
		}
	}
}
