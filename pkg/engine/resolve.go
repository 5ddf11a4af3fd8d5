package engine

import (
	"context"
	"iter"
	"slices"

	"archvault/pkg/core"
	"archvault/pkg/types"
)

type linkKey struct {
	typ  types.ObjectType
	hash types.Hash
}

func keyOf(l core.Link) linkKey { return linkKey{typ: l.Type, hash: l.Hash} }

// Resolve 从 root 开始深度优先遍历 DAG，产出途经的每一个 Link (包括 LIST/TREE 本身)
// 同一次调用中重复出现的 Link 只产出一次，共享的子树不会被重复展开
// 使用显式栈，深层嵌套的 LIST 不会撑爆调用栈
func (e *Engine) Resolve(ctx context.Context, root core.Link) iter.Seq2[core.Link, error] {
	return func(yield func(core.Link, error) bool) {
		stack := []core.Link{root}
		seen := make(map[linkKey]struct{})

		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				yield(core.Link{}, err)
				return
			}

			link := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			k := keyOf(link)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}

			if !yield(link, nil) {
				return
			}

			children, err := e.children(ctx, link)
			if err != nil {
				yield(link, err)
				return
			}
			// 逆序压栈，出栈顺序与子节点原有顺序一致
			for _, c := range slices.Backward(children) {
				stack = append(stack, c)
			}
		}
	}
}

// children 返回 LIST/TREE 的直接子节点 (TREE 按名字排序)，BLOB 没有子节点
func (e *Engine) children(ctx context.Context, link core.Link) ([]core.Link, error) {
	switch link.Type {
	case types.TypeList:
		l, err := e.ReadList(ctx, link)
		if err != nil {
			return nil, err
		}
		return l.Links(), nil
	case types.TypeTree:
		t, err := e.ReadTree(ctx, link)
		if err != nil {
			return nil, err
		}
		names := t.Names()
		out := make([]core.Link, 0, len(names))
		for _, name := range names {
			c, _ := t.Get(name)
			out = append(out, c)
		}
		return out, nil
	default:
		return nil, nil
	}
}

// Children 是 children 的导出版本，供 GC 等需要逐层展开的调用方使用
func (e *Engine) Children(ctx context.Context, link core.Link) ([]core.Link, error) {
	return e.children(ctx, link)
}
