package core

import "archvault/pkg/types"

// Blob 是切分出来的原始数据块，也是 Merkle DAG 的叶子节点
// 编码就是数据本身，不做任何包装
type Blob struct {
	hash types.Hash
	data []byte
}

func NewBlob(data []byte) *Blob {
	if data == nil {
		data = []byte{}
	}
	return &Blob{hash: HashBytes(data), data: data}
}

func (b *Blob) Type() types.ObjectType { return types.TypeBlob }
func (b *Blob) ID() types.Hash         { return b.hash }
func (b *Blob) Bytes() []byte          { return b.data }
func (b *Blob) Size() int64            { return int64(len(b.data)) }

func (b *Blob) Link() Link {
	return NewLink(b.hash, types.TypeBlob, b.Size())
}
