package engine

import (
	"context"
	"testing"

	"archvault/pkg/core"
	"archvault/pkg/storage/disk"
	"archvault/pkg/storage/storagetest"

	"github.com/stretchr/testify/require"
)

// newTestEngine 返回一个基于内存文件系统的 Engine 和用于计数的 Spy
func newTestEngine(t *testing.T, opts ...Option) (*Engine, *storagetest.Spy) {
	t.Helper()
	spy := storagetest.NewSpy(disk.NewMemAdapter())
	return New(spy, opts...), spy
}

func mustWrite(t *testing.T, e *Engine, obj core.Object) core.Link {
	t.Helper()
	link, err := e.Write(context.Background(), obj)
	require.NoError(t, err)
	return link
}

func mustList(t *testing.T, links ...core.Link) *core.List {
	t.Helper()
	l, err := core.NewList(links)
	require.NoError(t, err)
	return l
}

func mustTree(t *testing.T, entries map[string]core.Link) *core.Tree {
	t.Helper()
	tr, err := core.NewTree(entries)
	require.NoError(t, err)
	return tr
}
