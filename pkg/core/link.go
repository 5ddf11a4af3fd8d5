package core

import (
	"fmt"

	"archvault/pkg/types"
)

// Link 代表 Merkle DAG 中的一条边 (指向子节点的哈希引用)
// Size 是被引用对象编码后的明文长度，仅作参考，不参与相等性判断
type Link struct {
	Hash types.Hash
	Type types.ObjectType
	Size int64
}

// linkWire 是 Link 在 CBOR 中的形态: {"hash", "type", "size"}
// type 以 "BLOB"/"LIST"/"TREE" 字符串存储
type linkWire struct {
	Hash string `cbor:"hash"`
	Type string `cbor:"type"`
	Size int64  `cbor:"size"`
}

func NewLink(hash types.Hash, typ types.ObjectType, size int64) Link {
	return Link{Hash: hash, Type: typ, Size: size}
}

// Equal 只比较 Hash 和 Type
func (l Link) Equal(o Link) bool {
	return l.Hash == o.Hash && l.Type == o.Type
}

func (l Link) String() string {
	return fmt.Sprintf("%s:%s", l.Type, l.Hash)
}

// MarshalCBOR 实现自定义序列化逻辑
func (l Link) MarshalCBOR() ([]byte, error) {
	// 1. 拒绝不完整的 Link，避免写出无法解析的对象
	if l.Hash.IsZero() {
		return nil, fmt.Errorf("cannot encode link with empty hash")
	}
	if !l.Type.IsValid() {
		return nil, fmt.Errorf("cannot encode link with invalid type %s", l.Type)
	}
	if l.Size < 0 {
		return nil, fmt.Errorf("cannot encode link with negative size %d", l.Size)
	}

	// 2. 转为线上结构
	return em.Marshal(linkWire{
		Hash: l.Hash.String(),
		Type: l.Type.String(),
		Size: l.Size,
	})
}

// UnmarshalCBOR 实现自定义反序列化逻辑
func (l *Link) UnmarshalCBOR(data []byte) error {
	var w linkWire
	if err := dm.Unmarshal(data, &w); err != nil {
		return err
	}

	typ, err := types.ParseObjectType(w.Type)
	if err != nil {
		return fmt.Errorf("invalid link: %w", err)
	}
	if w.Hash == "" {
		return fmt.Errorf("invalid link: empty hash")
	}

	*l = Link{Hash: types.Hash(w.Hash), Type: typ, Size: w.Size}
	return nil
}
