package chunker

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// Fixed 按固定长度切分，最后一块可能更短
// 空输入不产生任何 chunk (调用方负责补一个空 Blob)
type Fixed struct {
	chunkSize int
}

func NewFixed(chunkSize int) (*Fixed, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	return &Fixed{chunkSize: chunkSize}, nil
}

func (f *Fixed) ChunkSize() int { return f.chunkSize }

func (f *Fixed) Slice(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			buf := make([]byte, f.chunkSize)
			n, err := io.ReadFull(r, buf)
			switch {
			case err == nil:
				if !yield(buf, nil) {
					return
				}
			case errors.Is(err, io.ErrUnexpectedEOF):
				// 尾块
				yield(buf[:n], nil)
				return
			case errors.Is(err, io.EOF):
				return
			default:
				yield(nil, fmt.Errorf("fixed slicer read failed: %w", err))
				return
			}
		}
	}
}
