package disk

import (
	"context"
	"path/filepath"
	"testing"

	"archvault/pkg/storage"
	"archvault/pkg/storage/storagetest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskAdapter_Contract(t *testing.T) {
	storagetest.Run(t, NewMemAdapter())
}

func TestDiskAdapter_OnRealDisk(t *testing.T) {
	store, err := NewOSAdapter(t.TempDir())
	require.NoError(t, err)
	storagetest.Run(t, store)
}

func TestDiskAdapter_Sharding(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewAdapter(fs, "/root")
	require.NoError(t, err)
	ctx := context.Background()

	hash := "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	require.NoError(t, store.Put(ctx, "blob/"+hash, []byte("hello world")))

	// 路径应该是 root/blob/dG/QmYw...dG
	expectedPath := filepath.Join("/root", "blob", "dG", hash)
	exists, err := afero.Exists(fs, expectedPath)
	require.NoError(t, err)
	assert.True(t, exists, "文件应该存在于 Sharding 目录中")

	// 短名字落在 "_" 分片
	require.NoError(t, store.Put(ctx, storage.EntryPath("x"), []byte("e")))
	exists, _ = afero.Exists(fs, filepath.Join("/root", "entry", "_", "x"))
	assert.True(t, exists)

	// List 返回的是逻辑路径而不是物理路径
	paths, err := storagetest.Collect(store.List(ctx, "blob/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"blob/" + hash}, paths)
}

func TestDiskAdapter_NoTempLeftovers(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewAdapter(fs, "/root")
	require.NoError(t, err)
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, store.Put(ctx, "blob/QmTemp"+string(rune('a'+i)), []byte("x")))
	}

	leftovers, err := afero.ReadDir(fs, filepath.Join("/root", tempDir))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "临时文件在 Rename 之后必须被清理")
}

func TestDiskAdapter_CanceledContext(t *testing.T) {
	store := NewMemAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Put(ctx, "blob/QmX", []byte("x")), context.Canceled)
	_, err := store.Get(ctx, "blob/QmX")
	assert.ErrorIs(t, err, context.Canceled)
}
