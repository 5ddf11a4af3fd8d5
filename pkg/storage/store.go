package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"archvault/pkg/types"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrAlreadyExists = errors.New("object already exists")
	ErrAmbiguousHash = errors.New("ambiguous hash prefix")
)

// EntryDir 是 Entry 在后端中的目录名
const EntryDir = "entry"

// Backend 是存储引擎依赖的最小字节存储接口
// 实现可以是本地磁盘、S3、SQL 数据库等。路径对后端来说是不透明字符串，
// 后端可以自行分片，但必须保证映射稳定且可逆 (List 返回的是逻辑路径)
type Backend interface {
	// Put 写入数据；路径已存在时返回 ErrAlreadyExists，且不覆盖
	Put(ctx context.Context, path string, data []byte) error

	// Get 读取数据；路径不存在时返回 ErrNotFound
	Get(ctx context.Context, path string) ([]byte, error)

	// Delete 删除数据；路径不存在不算错误 (GC 可重试)
	Delete(ctx context.Context, path string) error

	// List 按前缀列出逻辑路径
	// 分页由实现内部处理，对调用方呈现为一个连续的序列
	List(ctx context.Context, prefix string) iter.Seq2[string, error]
}

// ObjectPath 返回对象的存储路径: "blob/<hash>"
func ObjectPath(t types.ObjectType, h types.Hash) string {
	return t.PathSegment() + "/" + h.String()
}

// ObjectPrefix 返回某类对象的列表前缀: "blob/"
func ObjectPrefix(t types.ObjectType) string {
	return t.PathSegment() + "/"
}

// EntryPath 返回 Entry 的存储路径: "entry/<name>"
func EntryPath(name string) string {
	return EntryDir + "/" + name
}

// ParseObjectPath 是 ObjectPath 的逆运算
func ParseObjectPath(path string) (types.ObjectType, types.Hash, error) {
	kind, name, ok := strings.Cut(path, "/")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("malformed object path %q", path)
	}
	t, err := types.ParseObjectType(kind)
	if err != nil {
		return 0, "", fmt.Errorf("malformed object path %q: %w", path, err)
	}
	return t, types.Hash(name), nil
}

// EntryName 从 Entry 路径中取出名字
func EntryName(path string) (string, bool) {
	return strings.CutPrefix(path, EntryDir+"/")
}
