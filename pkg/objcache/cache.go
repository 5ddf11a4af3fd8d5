package objcache

import (
	"context"
	"fmt"
	"sync"

	"archvault/pkg/core"
	"archvault/pkg/types"

	"github.com/hashicorp/golang-lru/simplelru"
)

// DefaultBudget 默认缓存 64MB 的已解码对象
const DefaultBudget = 64 << 20

// maxEntries 只是 simplelru 要求的条目上限，真正的限制是字节预算
const maxEntries = 1 << 30

// ObjectReader 是被缓存的数据源，通常是 *engine.Engine
type ObjectReader interface {
	Read(ctx context.Context, link core.Link) (core.Object, error)
}

type key struct {
	typ  types.ObjectType
	hash types.Hash
}

// Reader 在 ObjectReader 之上加一层按字节计费的 LRU
// 对象不可变，所以缓存永远不需要失效，只需要淘汰
type Reader struct {
	src    ObjectReader
	budget int64

	mu     sync.Mutex
	lru    *simplelru.LRU
	used   int64
	hits   int64
	misses int64
}

// Stats 是缓存命中情况的快照
type Stats struct {
	Entries int
	Bytes   int64
	Hits    int64
	Misses  int64
}

func New(src ObjectReader, budget int64) (*Reader, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("cache budget must be positive, got %d", budget)
	}
	r := &Reader{src: src, budget: budget}
	lru, err := simplelru.NewLRU(maxEntries, func(_, value interface{}) {
		// 淘汰回调：归还字节额度
		r.used -= cost(value.(core.Object))
	})
	if err != nil {
		return nil, err
	}
	r.lru = lru
	return r, nil
}

func cost(obj core.Object) int64 {
	return int64(len(obj.Bytes()))
}

// Read 命中直接返回，未命中时回源读取 (包含校验) 后放入缓存
// 返回的对象与其他调用方共享，不能修改
func (r *Reader) Read(ctx context.Context, link core.Link) (core.Object, error) {
	k := key{typ: link.Type, hash: link.Hash}

	r.mu.Lock()
	if v, ok := r.lru.Get(k); ok {
		r.hits++
		r.mu.Unlock()
		return v.(core.Object), nil
	}
	r.misses++
	r.mu.Unlock()

	// 回源时不持锁，同一对象并发未命中会各读一次
	obj, err := r.src.Read(ctx, link)
	if err != nil {
		return nil, err
	}
	r.add(k, obj)
	return obj, nil
}

func (r *Reader) add(k key, obj core.Object) {
	c := cost(obj)
	if c > r.budget {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lru.Contains(k) {
		return
	}
	r.lru.Add(k, obj)
	r.used += c
	for r.used > r.budget {
		if _, _, ok := r.lru.RemoveOldest(); !ok {
			break
		}
	}
}

func (r *Reader) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Entries: r.lru.Len(), Bytes: r.used, Hits: r.hits, Misses: r.misses}
}

// Purge 清空缓存
func (r *Reader) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lru.Purge()
}
