package core

import (
	"errors"
	"fmt"

	"archvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
	mh "github.com/multiformats/go-multihash"
)

// ErrHashMismatch 表示数据与期望的哈希不一致 (磁盘损坏或密钥错误)
var ErrHashMismatch = errors.New("hash mismatch")

// 确定性编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// Tree 的哈希因此与插入顺序无关
	Sort: cbor.SortCanonical,

	// 2. 禁止不定长编码，容器必须在头部声明长度
	IndefLength: cbor.IndefLengthForbidden,

	// 3. 时间由调用方格式化成字符串，不允许库自动打 Tag
	TimeTag: cbor.EncTagNone,

	BigIntConvert: cbor.BigIntConvertShortest,
}

var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// 限制容器大小和嵌套深度，防止恶意构造的头部耗尽内存
	// 单个对象本身有大小上限，这里给足余量
	MaxArrayElements: 1 << 20,
	MaxMapPairs:      1 << 20,
	MaxNestedLevels:  16,

	IndefLength: cbor.IndefLengthForbidden,

	// 重复的 Key 会让同一内容出现两种编码
	DupMapKey: cbor.DupMapKeyEnforcedAPF,

	BignumTag: cbor.BignumTagForbidden,
	TimeTag:   cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// HashBytes 计算数据的内容哈希 (SHA2-256 multihash, base58)
func HashBytes(data []byte) types.Hash {
	// SHA2-256 的默认长度不会出错
	m, _ := mh.Sum(data, mh.SHA2_256, -1)
	return types.Hash(m.B58String())
}

// Verify 按 hash 自带的算法标签重新计算摘要并比对
func Verify(data []byte, hash types.Hash) error {
	want, err := mh.FromB58String(string(hash))
	if err != nil {
		return fmt.Errorf("invalid hash %q: %w", hash, err)
	}
	dec, err := mh.Decode(want)
	if err != nil {
		return fmt.Errorf("invalid hash %q: %w", hash, err)
	}

	got, err := mh.Sum(data, dec.Code, dec.Length)
	if err != nil {
		return fmt.Errorf("unsupported hash algorithm %s: %w", dec.Name, err)
	}
	if got.B58String() != string(hash) {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, hash, got.B58String())
	}
	return nil
}

// encode 序列化对象并计算哈希
func encode(v any) (types.Hash, []byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	return HashBytes(data), data, nil
}
