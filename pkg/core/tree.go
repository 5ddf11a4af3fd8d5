package core

import (
	"fmt"
	"maps"
	"slices"

	"archvault/pkg/types"
)

// Tree 代表一个目录：名字 -> Link 的映射
// 编码时按 Key 排序，相同内容的 Tree 哈希一定相同
type Tree struct {
	hash     types.Hash
	rawBytes []byte

	entries map[string]Link
}

type treeWire struct {
	Content map[string]Link `cbor:"content"`
}

// NewTree 创建一个新的目录树节点
func NewTree(entries map[string]Link) (*Tree, error) {
	owned := make(map[string]Link, len(entries))
	for name, l := range entries {
		if err := ValidateName(name); err != nil {
			return nil, fmt.Errorf("tree entry: %w", err)
		}
		if !l.Type.IsValid() {
			return nil, fmt.Errorf("tree entry %q has invalid type %s", name, l.Type)
		}
		owned[name] = l
	}

	h, b, err := encode(treeWire{Content: owned})
	if err != nil {
		return nil, err
	}
	return &Tree{hash: h, rawBytes: b, entries: owned}, nil
}

func decodeTree(data []byte, h types.Hash) (*Tree, error) {
	var w treeWire
	if err := dm.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode tree %s: %w", h, err)
	}
	if w.Content == nil {
		w.Content = map[string]Link{}
	}
	return &Tree{hash: h, rawBytes: data, entries: w.Content}, nil
}

func (t *Tree) Type() types.ObjectType { return types.TypeTree }
func (t *Tree) ID() types.Hash         { return t.hash }
func (t *Tree) Bytes() []byte          { return t.rawBytes }

func (t *Tree) Link() Link {
	return NewLink(t.hash, types.TypeTree, int64(len(t.rawBytes)))
}

// Names 返回排好序的子项名字
func (t *Tree) Names() []string {
	return slices.Sorted(maps.Keys(t.entries))
}

func (t *Tree) Get(name string) (Link, bool) {
	l, ok := t.entries[name]
	return l, ok
}

func (t *Tree) Len() int { return len(t.entries) }
