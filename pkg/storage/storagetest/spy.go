package storagetest

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"

	"archvault/pkg/storage"
)

// Spy (间谍存储) 包装一个真实后端并统计调用次数
// 用于验证去重、缓存是否命中等"请求有没有穿透"的问题
type Spy struct {
	backend storage.Backend

	mu      sync.Mutex
	puts    map[string]int // 按目录统计成功的写入
	rejects map[string]int // 按目录统计 ErrAlreadyExists
	gets    int
	deletes int
}

func NewSpy(b storage.Backend) *Spy {
	return &Spy{
		backend: b,
		puts:    make(map[string]int),
		rejects: make(map[string]int),
	}
}

func kindOf(p string) string {
	kind, _, _ := strings.Cut(p, "/")
	return kind
}

func (s *Spy) Put(ctx context.Context, p string, data []byte) error {
	err := s.backend.Put(ctx, p, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.puts[kindOf(p)]++
	case errors.Is(err, storage.ErrAlreadyExists):
		s.rejects[kindOf(p)]++
	}
	return err
}

func (s *Spy) Get(ctx context.Context, p string) ([]byte, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.backend.Get(ctx, p)
}

func (s *Spy) Delete(ctx context.Context, p string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.backend.Delete(ctx, p)
}

func (s *Spy) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return s.backend.List(ctx, prefix)
}

// Puts 返回某个目录 ("blob"/"list"/"tree"/"entry") 下成功写入的次数
func (s *Spy) Puts(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[kind]
}

// Rejects 返回某个目录下因已存在而被拒绝的写入次数
func (s *Spy) Rejects(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejects[kind]
}

func (s *Spy) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *Spy) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

// Reset 清零所有计数
func (s *Spy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = make(map[string]int)
	s.rejects = make(map[string]int)
	s.gets, s.deletes = 0, 0
}

var _ storage.Backend = (*Spy)(nil)
