package gc

import (
	"sync"
	"sync/atomic"

	"archvault/pkg/core"
)

// workQueue 是标记阶段的共享任务队列
// inFlight 统计 "已入队但还没处理完" 的 Link 数，归零即表示遍历结束
type workQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []core.Link
	closed bool

	inFlight atomic.Int64
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push 必须在 done 之前调用，否则计数可能提前归零
func (q *workQueue) push(links ...core.Link) {
	if len(links) == 0 {
		return
	}
	q.inFlight.Add(int64(len(links)))

	q.mu.Lock()
	q.items = append(q.items, links...)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// pop 阻塞直到拿到任务；队列关闭后返回 false
func (q *workQueue) pop() (core.Link, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return core.Link{}, false
	}
	n := len(q.items) - 1
	link := q.items[n]
	q.items = q.items[:n]
	return link, true
}

// done 标记一个任务处理完毕，最后一个任务完成时关闭队列
func (q *workQueue) done() {
	if q.inFlight.Add(-1) == 0 {
		q.close()
	}
}

func (q *workQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
