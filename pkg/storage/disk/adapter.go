package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path"
	"path/filepath"
	"strings"

	"archvault/pkg/storage"

	"github.com/spf13/afero"
)

const tempDir = ".tmp"

// Adapter 实现了 storage.Backend 接口
// 文件系统通过 afero 注入：生产环境用 OsFs，测试用 MemMapFs
type Adapter struct {
	fs       afero.Fs
	rootPath string // 比如: /home/user/.av/store
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(fsys afero.Fs, root string) (*Adapter, error) {
	// 确保根目录和临时目录存在
	if err := fsys.MkdirAll(filepath.Join(root, tempDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{fs: fsys, rootPath: root}, nil
}

// NewOSAdapter 使用真实文件系统
func NewOSAdapter(root string) (*Adapter, error) {
	return NewAdapter(afero.NewOsFs(), root)
}

// NewMemAdapter 使用内存文件系统，主要用于测试
func NewMemAdapter() *Adapter {
	a, _ := NewAdapter(afero.NewMemMapFs(), "/store")
	return a
}

// layout 返回逻辑路径对应的物理路径
// 策略：使用文件名的最后 2 个字符作为子目录 (Sharding)
// Example: "blob/Qm...Xy" -> root/blob/Xy/Qm...Xy
// 哈希的开头是算法标签 ("Qm")，用末尾分布更均匀
func (s *Adapter) layout(p string) string {
	dir, base := path.Split(p)
	return filepath.Join(s.rootPath, filepath.FromSlash(dir), shard(base), base)
}

func shard(base string) string {
	if len(base) < 2 {
		return "_"
	}
	return base[len(base)-2:]
}

func (s *Adapter) Put(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	targetPath := s.layout(p)

	// 1. 已存在则交给上层校验
	exists, err := afero.Exists(s.fs, targetPath)
	if err != nil {
		return fmt.Errorf("disk stat %s: %w", p, err)
	}
	if exists {
		return storage.ErrAlreadyExists
	}

	// 2. 准备目录
	if err := s.fs.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}

	// 3. 原子写入：先写临时文件，再 Rename
	// 保证要么文件不存在，要么文件是完整的
	tempFile, err := afero.TempFile(s.fs, filepath.Join(s.rootPath, tempDir), "put-*")
	if err != nil {
		return err
	}
	defer s.fs.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// 4. 移动到最终位置
	if err := s.fs.Rename(tempFile.Name(), targetPath); err != nil {
		return fmt.Errorf("disk rename %s: %w", p, err)
	}
	return nil
}

func (s *Adapter) Get(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, s.layout(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, p)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Adapter) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.fs.Remove(s.layout(p))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("disk delete %s: %w", p, err)
	}
	return nil
}

// List 只支持单层逻辑目录内的前缀: "blob/" 或 "blob/Qmab"
// 输出按分片目录和文件名排序
func (s *Adapter) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		dir, basePrefix := path.Split(prefix)
		physDir := filepath.Join(s.rootPath, filepath.FromSlash(dir))

		shards, err := afero.ReadDir(s.fs, physDir)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			yield("", fmt.Errorf("disk list %s: %w", prefix, err))
			return
		}

		for _, sh := range shards {
			if !sh.IsDir() || sh.Name() == tempDir {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			files, err := afero.ReadDir(s.fs, filepath.Join(physDir, sh.Name()))
			if err != nil {
				yield("", fmt.Errorf("disk list %s: %w", prefix, err))
				return
			}
			for _, f := range files {
				if !f.Mode().IsRegular() || !strings.HasPrefix(f.Name(), basePrefix) {
					continue
				}
				if !yield(dir+f.Name(), nil) {
					return
				}
			}
		}
	}
}

// Root 返回根目录，用于日志
func (s *Adapter) Root() string { return s.rootPath }

var _ storage.Backend = (*Adapter)(nil)
