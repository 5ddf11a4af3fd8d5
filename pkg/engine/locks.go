package engine

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultLockSlots 是路径锁池的默认大小
const DefaultLockSlots = 256

// lockPool 把路径哈希到固定数量的互斥锁上
// 两个不相关的路径可能落在同一个槽位，只会多一次无谓的等待，不影响正确性
type lockPool struct {
	slots []sync.Mutex
}

func newLockPool(n int) *lockPool {
	if n <= 0 {
		n = DefaultLockSlots
	}
	return &lockPool{slots: make([]sync.Mutex, n)}
}

func (p *lockPool) slot(path string) int {
	return int(xxhash.Sum64String(path) % uint64(len(p.slots)))
}

// lock 锁住 path 对应的槽位，返回解锁函数
func (p *lockPool) lock(path string) func() {
	m := &p.slots[p.slot(path)]
	m.Lock()
	return m.Unlock
}
