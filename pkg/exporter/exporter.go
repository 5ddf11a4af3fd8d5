package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"archvault/pkg/core"
	"archvault/pkg/types"

	"github.com/google/renameio"
)

// ErrUnsafeName 表示对象图里出现了会逃出目标目录的名字
var ErrUnsafeName = errors.New("unsafe name")

// ObjectReader 是还原时唯一需要的能力
// *engine.Engine 和 *objcache.Reader 都满足这个接口
type ObjectReader interface {
	Read(ctx context.Context, link core.Link) (core.Object, error)
}

// RestoreCallback 在每个文件落盘后被调用
type RestoreCallback func(path string, link core.Link)

type Exporter struct {
	reader    ObjectReader
	logger    *slog.Logger
	onRestore RestoreCallback
}

type Option func(*Exporter)

func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

func OnRestore(cb RestoreCallback) Option {
	return func(e *Exporter) { e.onRestore = cb }
}

func NewExporter(r ObjectReader, opts ...Option) *Exporter {
	e := &Exporter{reader: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore 把 entry 还原到 destRoot/<entry.Name>，返回实际写入的路径
// 已存在的文件会被原子替换，已存在的目录会被合并
func (e *Exporter) Restore(ctx context.Context, entry core.Entry, destRoot string) (string, error) {
	if err := checkName(entry.Name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", destRoot, err)
	}
	target := filepath.Join(destRoot, entry.Name)
	if err := e.RestoreLink(ctx, entry.Root, target); err != nil {
		return "", err
	}
	return target, nil
}

// RestoreLink 把 link 指向的对象还原到 target
// TREE 还原为目录，BLOB/LIST 还原为文件
func (e *Exporter) RestoreLink(ctx context.Context, link core.Link, target string) error {
	switch link.Type {
	case types.TypeTree:
		return e.restoreTree(ctx, link, target)
	case types.TypeBlob, types.TypeList:
		return e.restoreFile(ctx, link, target)
	default:
		return fmt.Errorf("cannot restore %s", link)
	}
}

func (e *Exporter) restoreTree(ctx context.Context, link core.Link, dir string) error {
	obj, err := e.reader.Read(ctx, link)
	if err != nil {
		return fmt.Errorf("read tree %s: %w", link.Hash, err)
	}
	tree, ok := obj.(*core.Tree)
	if !ok {
		return fmt.Errorf("%s is not a tree", link)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	for _, name := range tree.Names() {
		// 名字来自存储，不能信任
		if err := checkName(name); err != nil {
			return fmt.Errorf("tree %s: %w", link.Hash.Short(), err)
		}
		child, _ := tree.Get(name)
		if err := e.RestoreLink(ctx, child, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// restoreFile 先写临时文件，完整写完才替换目标
// 中途失败不会留下半个文件
func (e *Exporter) restoreFile(ctx context.Context, link core.Link, path string) error {
	pf, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer pf.Cleanup()

	if err := e.WriteStream(ctx, link, pf); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	if err := pf.Chmod(0o644); err != nil {
		return err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}

	e.logger.Debug("restored file", "path", path, "root", link.String())
	if e.onRestore != nil {
		e.onRestore(path, link)
	}
	return nil
}

// WriteStream 把 BLOB 或 LIST 的逻辑内容按顺序写入 w
// 嵌套的 LIST 用显式栈展开，深度再大也不会爆栈
func (e *Exporter) WriteStream(ctx context.Context, link core.Link, w io.Writer) error {
	stack := []core.Link{link}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		// 1. 弹出栈顶
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		obj, err := e.reader.Read(ctx, top)
		if err != nil {
			return fmt.Errorf("read %s: %w", top, err)
		}

		switch o := obj.(type) {
		case *core.Blob:
			// 2. 叶子直接写出
			if _, err := w.Write(o.Bytes()); err != nil {
				return err
			}
		case *core.List:
			// 3. 子节点逆序压栈，保证按原顺序弹出
			for _, child := range slices.Backward(o.Links()) {
				stack = append(stack, child)
			}
		default:
			return fmt.Errorf("%s is not file content", top)
		}
	}
	return nil
}

func checkName(name string) error {
	if err := core.ValidateName(name); err != nil {
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return nil
}
