package core

import (
	"errors"
	"fmt"
	"strings"

	"archvault/pkg/types"
)

// ErrInvalidName 表示条目名或目录项名不合法
var ErrInvalidName = errors.New("invalid name")

// Object 是所有 Merkle DAG 节点的通用接口
// 对象一经创建即不可变
type Object interface {
	// Type 返回对象类型
	Type() types.ObjectType

	// ID 返回对象的内容哈希
	ID() types.Hash

	// Bytes 返回对象的规范编码 (用于存储和计算哈希)
	Bytes() []byte

	// Link 返回指向自身的引用
	Link() Link
}

// Decode 按类型解析规范编码，哈希由数据重新计算
func Decode(typ types.ObjectType, data []byte) (Object, error) {
	return decode(typ, data, HashBytes(data))
}

// DecodeVerified 先校验 data 与 want 一致，再解析
// 读路径使用它，保证每个对象只算一次哈希
func DecodeVerified(typ types.ObjectType, data []byte, want types.Hash) (Object, error) {
	if err := Verify(data, want); err != nil {
		return nil, err
	}
	return decode(typ, data, want)
}

func decode(typ types.ObjectType, data []byte, h types.Hash) (Object, error) {
	switch typ {
	case types.TypeBlob:
		return &Blob{hash: h, data: data}, nil
	case types.TypeList:
		return decodeList(data, h)
	case types.TypeTree:
		return decodeTree(data, h)
	default:
		return nil, fmt.Errorf("unsupported object type: %s", typ)
	}
}

// ValidateName 检查名字能否安全地用作单层路径
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidName, name)
	}
	return nil
}
