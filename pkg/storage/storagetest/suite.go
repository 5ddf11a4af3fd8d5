// Package storagetest 提供所有 storage.Backend 实现共用的契约测试和测试替身
package storagetest

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"testing"

	"archvault/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run 对一个空的后端执行完整的契约测试
func Run(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "blob/QmPutGetAaaa", []byte("hello")))

		got, err := b.Get(ctx, "blob/QmPutGetAaaa")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)
	})

	t.Run("EmptyValue", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "blob/QmEmptyValue", []byte{}))

		got, err := b.Get(ctx, "blob/QmEmptyValue")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("PutExistingIsRejected", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "list/QmExisting01", []byte("first")))

		err := b.Put(ctx, "list/QmExisting01", []byte("second"))
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)

		// 旧数据不能被覆盖
		got, err := b.Get(ctx, "list/QmExisting01")
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := b.Get(ctx, "blob/QmMissing000")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "tree/QmDelete0001", []byte("x")))
		require.NoError(t, b.Delete(ctx, "tree/QmDelete0001"))
		require.NoError(t, b.Delete(ctx, "tree/QmDelete0001"))

		_, err := b.Get(ctx, "tree/QmDelete0001")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		// 删除后可以重新写入
		require.NoError(t, b.Put(ctx, "tree/QmDelete0001", []byte("y")))
	})

	t.Run("ListByPrefix", func(t *testing.T) {
		want := []string{"entry/alpha", "entry/beta", "entry/gamma", "entry/a"}
		for _, p := range want {
			require.NoError(t, b.Put(ctx, p, []byte(p)))
		}
		require.NoError(t, b.Put(ctx, "blob/QmNotAnEntry", []byte("x")))

		got, err := Collect(b.List(ctx, storage.EntryDir+"/"))
		require.NoError(t, err)
		assert.ElementsMatch(t, want, got)

		got, err = Collect(b.List(ctx, "entry/a"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"entry/alpha", "entry/a"}, got)

		got, err = Collect(b.List(ctx, "nothing/"))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ConcurrentPutSamePath", func(t *testing.T) {
		// 后端自身不保证串行化 (那是 engine 路径锁的职责)
		// 但并发写入同一路径不能报其他错误，也不能损坏数据
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := b.Put(ctx, "blob/QmConcurrent", []byte("same"))
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, storage.ErrAlreadyExists, "writer %d", i)
			}()
		}
		wg.Wait()
		assert.GreaterOrEqual(t, succeeded, 1)

		got, err := b.Get(ctx, "blob/QmConcurrent")
		require.NoError(t, err)
		assert.Equal(t, []byte("same"), got)
	})
}

// Collect 把 List 的结果收集成切片并排序
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var out []string
	for p, err := range seq {
		if err != nil {
			return out, fmt.Errorf("list: %w", err)
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}
