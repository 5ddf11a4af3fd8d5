package core

import (
	"fmt"

	"archvault/pkg/types"
)

// List 是有序的链接序列，子节点只能是 BLOB 或 LIST
// 逻辑内容等于按顺序展开所有子节点后的拼接
type List struct {
	hash     types.Hash
	rawBytes []byte

	links []Link
}

type listWire struct {
	Content []Link `cbor:"content"`
}

// NewList 创建一个新的列表节点
func NewList(links []Link) (*List, error) {
	if err := checkListChildren(links); err != nil {
		return nil, err
	}

	// 复制一份，调用方之后修改切片不会影响已计算的哈希
	owned := append([]Link(nil), links...)
	h, b, err := encode(listWire{Content: nonNilLinks(owned)})
	if err != nil {
		return nil, err
	}
	return &List{hash: h, rawBytes: b, links: owned}, nil
}

func decodeList(data []byte, h types.Hash) (*List, error) {
	var w listWire
	if err := dm.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode list %s: %w", h, err)
	}
	if err := checkListChildren(w.Content); err != nil {
		return nil, fmt.Errorf("malformed list %s: %w", h, err)
	}
	return &List{hash: h, rawBytes: data, links: w.Content}, nil
}

func checkListChildren(links []Link) error {
	for i, l := range links {
		if l.Type != types.TypeBlob && l.Type != types.TypeList {
			return fmt.Errorf("list child %d has type %s, want BLOB or LIST", i, l.Type)
		}
	}
	return nil
}

// 空列表编码为 [] 而不是 null
func nonNilLinks(links []Link) []Link {
	if links == nil {
		return []Link{}
	}
	return links
}

func (l *List) Type() types.ObjectType { return types.TypeList }
func (l *List) ID() types.Hash         { return l.hash }
func (l *List) Bytes() []byte          { return l.rawBytes }

func (l *List) Link() Link {
	return NewLink(l.hash, types.TypeList, int64(len(l.rawBytes)))
}

// Links 返回子节点的副本
func (l *List) Links() []Link {
	return append([]Link(nil), l.links...)
}

func (l *List) Len() int { return len(l.links) }
