// pkg/types/common.go
package types

import (
	"fmt"
	"strings"

	mh "github.com/multiformats/go-multihash"
)

// Hash 代表对象的唯一标识符 (base58 编码的 multihash)
// 这是一个“值对象”，应当是不可变的。
// multihash 自带算法标签，未来换算法不需要改格式。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool { return h == "" }
func (h Hash) IsValid() bool {
	if h.IsZero() {
		return false
	}
	_, err := mh.FromB58String(string(h))
	return err == nil
}

// Short 返回便于打印的短哈希
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// ObjectType 定义了 Merkle DAG 中的对象类型
type ObjectType uint8

const (
	TypeBlob ObjectType = iota + 1 // 原始数据块 (叶子)
	TypeList                       // 有序链接列表 (大文件)
	TypeTree                       // 目录
)

func (t ObjectType) String() string {
	switch t {
	case TypeBlob:
		return "BLOB"
	case TypeList:
		return "LIST"
	case TypeTree:
		return "TREE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// PathSegment 返回对象类型在存储路径中的目录名
func (t ObjectType) PathSegment() string {
	return strings.ToLower(t.String())
}

func (t ObjectType) IsValid() bool {
	return t >= TypeBlob && t <= TypeTree
}

// ParseObjectType 同时接受 "BLOB" 和 "blob" 两种写法
func ParseObjectType(s string) (ObjectType, error) {
	switch strings.ToUpper(s) {
	case "BLOB":
		return TypeBlob, nil
	case "LIST":
		return TypeList, nil
	case "TREE":
		return TypeTree, nil
	default:
		return 0, fmt.Errorf("unknown object type: %q", s)
	}
}

// AllObjectTypes 按固定顺序列出所有对象类型
func AllObjectTypes() []ObjectType {
	return []ObjectType{TypeBlob, TypeList, TypeTree}
}
