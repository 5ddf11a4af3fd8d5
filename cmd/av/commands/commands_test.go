package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"archvault/pkg/app"
	"archvault/pkg/gc"
	"archvault/pkg/storage"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupCLI 用临时目录搭一个真实仓库，并注入全局变量 AV
func setupCLI(t *testing.T) *app.App {
	t.Helper()
	viper.Reset()
	viper.Set("storage.type", "disk")
	viper.Set("storage.path", filepath.Join(t.TempDir(), "store"))
	viper.Set("chunker.type", "fixed")
	viper.Set("chunker.chunk_size", 4096)
	viper.Set("digest.fanout", 4)
	viper.Set("compression", "lz4")
	viper.Set("journal.driver", "sqlite")
	viper.Set("journal.dsn", "file:"+t.Name()+"?mode=memory&cache=shared")
	viper.Set("log.level", "error")

	a, err := app.NewApp(context.Background())
	require.NoError(t, err)

	// 因为命令依赖全局变量 AV，测试里临时覆盖它
	AV = a
	t.Cleanup(func() {
		a.Close()
		AV = nil
	})
	return a
}

// run 模拟一次命令行调用，返回标准输出
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// 包级 flag 变量在多次调用之间会保留，先复位
	digestName, catRaw, historyLimit = "", false, 20
	gcOpts, fsckOpts = gc.Options{}, gc.CheckOptions{}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_Lifecycle(t *testing.T) {
	a := setupCLI(t)
	ctx := context.Background()

	// 1. 准备要归档的目录
	src := filepath.Join(t.TempDir(), "dataset")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "train"), 0o755))
	big := bytes.Repeat([]byte("0123456789abcdef"), 3000) // 48000 字节，多个块
	require.NoError(t, os.WriteFile(filepath.Join(src, "train", "shard-0.bin"), big, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "labels.csv"), []byte("id,label\n1,cat\n"), 0o644))

	// 2. av digest
	out, err := run(t, "digest", src)
	require.NoError(t, err)
	assert.Contains(t, out, "dataset -> TREE")
	assert.Contains(t, out, "files: 2")

	out, err = run(t, "digest", "--name", "copy", src)
	require.NoError(t, err)
	assert.Contains(t, out, "copy -> TREE")
	assert.Contains(t, out, "(0 new)")

	// 3. av ls：按名字排序
	out, err = run(t, "ls")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "copy"), strings.Index(out, "dataset"))

	// 4. av cat：哈希前缀也能用
	entry, err := a.Engine.GetEntry(ctx, "dataset")
	require.NoError(t, err)
	out, err = run(t, "cat", "tree", string(entry.Root.Hash)[:10])
	require.NoError(t, err)
	assert.Contains(t, out, "labels.csv")
	assert.Contains(t, out, "train")

	tree, err := a.Engine.ReadTree(ctx, entry.Root)
	require.NoError(t, err)
	trainLink, ok := tree.Get("train")
	require.True(t, ok)
	train, err := a.Engine.ReadTree(ctx, trainLink)
	require.NoError(t, err)
	shard, ok := train.Get("shard-0.bin")
	require.True(t, ok)

	out, err = run(t, "cat", shard.Type.String(), string(shard.Hash), "--raw")
	require.NoError(t, err)
	assert.Equal(t, string(big), out)

	// 5. av restore
	dest := t.TempDir()
	out, err = run(t, "restore", "dataset", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored dataset")
	got, err := os.ReadFile(filepath.Join(dest, "dataset", "train", "shard-0.bin"))
	require.NoError(t, err)
	assert.Equal(t, big, got)

	// 6. av rm + av gc
	_, err = run(t, "rm", "dataset", "copy")
	require.NoError(t, err)

	out, err = run(t, "gc", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "WOULD DELETE")
	_, err = a.Engine.ReadTree(ctx, entry.Root)
	require.NoError(t, err, "dry run must not delete")

	out, err = run(t, "gc")
	require.NoError(t, err)
	assert.Contains(t, out, "DELETED")
	_, err = a.Engine.ReadTree(ctx, entry.Root)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// 7. av fsck
	out, err = run(t, "fsck", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "corrupt: 0")

	// 8. av history
	out, err = run(t, "history")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, " gc "))
	assert.Equal(t, 1, strings.Count(out, " fsck "))

	out, err = run(t, "history", "gc", "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, " gc "))
	assert.NotContains(t, out, " fsck ")
}

func TestCLI_Errors(t *testing.T) {
	setupCLI(t)

	_, err := run(t, "restore", "missing", t.TempDir())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = run(t, "rm", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = run(t, "cat", "blob", "Qm")
	assert.Error(t, err)

	_, err = run(t, "cat", "commit", "QmAbcdef")
	assert.Error(t, err)

	_, err = run(t, "digest", "--name", "x", "a", "b")
	assert.Error(t, err)

	_, err = run(t, "history", "push")
	assert.Error(t, err)
}

func TestCLI_HistoryWithoutJournal(t *testing.T) {
	setupCLI(t)
	AV.Journal = nil

	_, err := run(t, "history")
	assert.ErrorContains(t, err, "journal not configured")
}

func TestLogCommand_Levels(t *testing.T) {
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(old)

	cases := []struct {
		err   error
		level string
	}{
		{nil, "DEBUG"},
		{storage.ErrNotFound, "WARN"},
		{assert.AnError, "ERROR"},
	}
	for _, c := range cases {
		buf.Reset()
		logCommand(context.Background(), "gc", 5*time.Millisecond, c.err)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, c.level, rec["level"])
		assert.Equal(t, "cli", rec["kind"])
		assert.Equal(t, "gc", rec["command"])
	}
}
