package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"archvault/pkg/core"
	"archvault/pkg/seal"
	"archvault/pkg/storage"
	"archvault/pkg/types"
)

// MaxObjectSize 是单个对象编码后的上限
const MaxObjectSize = seal.MaxPlaintextSize

var (
	// ErrHashCollision 表示同一路径下已有内容与新内容不同
	// 可能是真正的哈希碰撞，更可能是密钥配置错误
	ErrHashCollision  = errors.New("hash collision")
	ErrObjectTooLarge = errors.New("object too large")
)

// Engine 在字节后端之上实现内容寻址存储
// 负责：路径推导、加密、写入去重与碰撞检测、读取校验
// Engine 本身不持有缓存，可以被多个 goroutine 并发使用
type Engine struct {
	backend storage.Backend
	sealer  *seal.Sealer
	locks   *lockPool
	logger  *slog.Logger
}

type Option func(*Engine)

// WithSealer 设置压缩/加密方式，默认不压缩不加密
func WithSealer(s *seal.Sealer) Option {
	return func(e *Engine) { e.sealer = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithLockSlots 设置路径锁池大小
func WithLockSlots(n int) Option {
	return func(e *Engine) { e.locks = newLockPool(n) }
}

func New(backend storage.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		sealer:  seal.Plain(),
		locks:   newLockPool(DefaultLockSlots),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Backend() storage.Backend { return e.backend }

// Write 写入对象并返回指向它的 Link
// 对象已存在时不是错误：读回校验一致即视为去重成功
func (e *Engine) Write(ctx context.Context, obj core.Object) (core.Link, error) {
	link, _, err := e.WriteObject(ctx, obj)
	return link, err
}

// WriteObject 与 Write 相同，额外返回本次是否真正写入了新数据
func (e *Engine) WriteObject(ctx context.Context, obj core.Object) (core.Link, bool, error) {
	data := obj.Bytes()
	if len(data) > MaxObjectSize {
		return core.Link{}, false, fmt.Errorf("%w: %s is %d bytes, limit is %d",
			ErrObjectTooLarge, obj.Type(), len(data), MaxObjectSize)
	}

	path := storage.ObjectPath(obj.Type(), obj.ID())
	created, err := e.putVerified(ctx, path, data)
	if err != nil {
		return core.Link{}, false, err
	}
	if !created {
		e.logger.Debug("object deduplicated", "type", obj.Type(), "hash", obj.ID())
	}
	return obj.Link(), created, nil
}

// putVerified 在路径锁内完成 "写入 -> 已存在则校验" 的整个过程
func (e *Engine) putVerified(ctx context.Context, path string, plain []byte) (bool, error) {
	sealed, err := e.sealer.Seal(plain)
	if err != nil {
		return false, fmt.Errorf("seal %s: %w", path, err)
	}

	unlock := e.locks.lock(path)
	defer unlock()

	// 第二次尝试只在读回时发现对象已不存在时发生
	// (缓存层滞后或与删除交错)
	for attempt := 0; ; attempt++ {
		// 1. 尝试写入
		err := e.backend.Put(ctx, path, sealed)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return false, fmt.Errorf("put %s: %w", path, err)
		}

		// 2. 已存在：读回并比对明文
		existing, err := e.backend.Get(ctx, path)
		if errors.Is(err, storage.ErrNotFound) && attempt == 0 {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("read back %s: %w", path, err)
		}
		stored, err := e.sealer.Open(existing)
		if err != nil {
			return false, fmt.Errorf("%w at %s: %w", ErrHashCollision, path, err)
		}
		if !bytes.Equal(stored, plain) {
			return false, fmt.Errorf("%w at %s: stored content differs", ErrHashCollision, path)
		}
		return false, nil
	}
}

// Load 返回解密后的原始编码，不做哈希校验
func (e *Engine) Load(ctx context.Context, t types.ObjectType, h types.Hash) ([]byte, error) {
	path := storage.ObjectPath(t, h)
	sealed, err := e.backend.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	plain, err := e.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return plain, nil
}

// Read 读取并校验 link 指向的对象
// 校验失败返回 core.ErrHashMismatch (磁盘损坏或密钥错误)
func (e *Engine) Read(ctx context.Context, link core.Link) (core.Object, error) {
	plain, err := e.Load(ctx, link.Type, link.Hash)
	if err != nil {
		return nil, err
	}
	obj, err := core.DecodeVerified(link.Type, plain, link.Hash)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", link, err)
	}
	return obj, nil
}

func (e *Engine) ReadBlob(ctx context.Context, link core.Link) (*core.Blob, error) {
	return readAs[*core.Blob](ctx, e, link, types.TypeBlob)
}

func (e *Engine) ReadList(ctx context.Context, link core.Link) (*core.List, error) {
	return readAs[*core.List](ctx, e, link, types.TypeList)
}

func (e *Engine) ReadTree(ctx context.Context, link core.Link) (*core.Tree, error) {
	return readAs[*core.Tree](ctx, e, link, types.TypeTree)
}

func readAs[T core.Object](ctx context.Context, e *Engine, link core.Link, want types.ObjectType) (T, error) {
	var zero T
	if link.Type != want {
		return zero, fmt.Errorf("link %s is not a %s", link, want)
	}
	obj, err := e.Read(ctx, link)
	if err != nil {
		return zero, err
	}
	return obj.(T), nil
}

// Delete 删除对象；对象不存在不算错误，GC 可以安全重试
func (e *Engine) Delete(ctx context.Context, link core.Link) error {
	path := storage.ObjectPath(link.Type, link.Hash)

	unlock := e.locks.lock(path)
	defer unlock()

	if err := e.backend.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}
