package exporter

import (
	"bytes"
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"archvault/pkg/chunker"
	"archvault/pkg/core"
	"archvault/pkg/engine"
	"archvault/pkg/ingester"
	"archvault/pkg/objcache"
	"archvault/pkg/storage"
	"archvault/pkg/storage/disk"
	"archvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setup struct {
	eng *engine.Engine
	src afero.Fs
	ing *ingester.Ingester
	exp *Exporter
}

func newSetup(t *testing.T, chunkSize int, opts ...ingester.Option) *setup {
	t.Helper()
	eng := engine.New(disk.NewMemAdapter())
	slicer, err := chunker.NewFixed(chunkSize)
	require.NoError(t, err)
	src := afero.NewMemMapFs()
	opts = append([]ingester.Option{ingester.WithFs(src)}, opts...)
	return &setup{
		eng: eng,
		src: src,
		ing: ingester.NewIngester(eng, slicer, opts...),
		exp: NewExporter(eng),
	}
}

func randomBytes(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, 0))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

func (s *setup) write(t *testing.T, p string, data []byte) {
	t.Helper()
	require.NoError(t, s.src.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, afero.WriteFile(s.src, p, data, 0o644))
}

func TestWriteStream_RoundTrip(t *testing.T) {
	sizes := map[string]int{
		"Empty":      0,
		"Small":      10,
		"MultiChunk": 5000,
		"MultiLevel": 64*50 + 3, // 扇出为 4 时需要三层 LIST
	}
	for name, size := range sizes {
		t.Run(name, func(t *testing.T) {
			s := newSetup(t, 64, ingester.WithFanout(4))
			content := randomBytes(size, uint64(size)+1)

			link, err := s.ing.DigestFile(context.Background(), bytes.NewReader(content))
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, s.exp.WriteStream(context.Background(), link, &buf))
			assert.Equal(t, len(content), buf.Len())
			assert.True(t, bytes.Equal(content, buf.Bytes()))
		})
	}
}

func TestWriteStream_RepeatedChunks(t *testing.T) {
	// 重复块在 LIST 里出现多次，展开时每次都要写出
	s := newSetup(t, 16)
	content := bytes.Repeat([]byte("0123456789abcdef"), 9)

	link, err := s.ing.DigestFile(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.exp.WriteStream(context.Background(), link, &buf))
	assert.Equal(t, content, buf.Bytes())
}

func TestWriteStream_RejectsTree(t *testing.T) {
	s := newSetup(t, 16)
	tree, err := core.NewTree(nil)
	require.NoError(t, err)
	link, err := s.eng.Write(context.Background(), tree)
	require.NoError(t, err)

	err = s.exp.WriteStream(context.Background(), link, &bytes.Buffer{})
	assert.ErrorContains(t, err, "not file content")
}

func TestRestore_ConcreteScenario(t *testing.T) {
	s := newSetup(t, 1<<20)
	files := map[string][]byte{
		"empty.txt": {},
		"small.txt": randomBytes(128, 1),
		"large.bin": randomBytes(260*1024, 2),
	}
	for name, data := range files {
		s.write(t, "/src/dataset/"+name, data)
	}

	entry, _, err := s.ing.Digest(context.Background(), "/src/dataset")
	require.NoError(t, err)

	dest := t.TempDir()
	target, err := s.exp.Restore(context.Background(), entry, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "dataset"), target)

	for name, want := range files {
		got, err := os.ReadFile(filepath.Join(target, name))
		require.NoError(t, err, name)
		assert.Equal(t, len(want), len(got), name)
		assert.True(t, bytes.Equal(want, got), name)
	}
}

func TestRestore_NestedTreeAndCallback(t *testing.T) {
	s := newSetup(t, 32)
	s.write(t, "/proj/a.txt", []byte("alpha"))
	s.write(t, "/proj/sub/b.txt", randomBytes(200, 3))
	s.write(t, "/proj/sub/deeper/c.txt", []byte{})
	require.NoError(t, s.src.MkdirAll("/proj/emptydir", 0o755))

	entry, _, err := s.ing.Digest(context.Background(), "/proj")
	require.NoError(t, err)

	var restored []string
	exp := NewExporter(s.eng, OnRestore(func(path string, _ core.Link) {
		restored = append(restored, path)
	}))

	dest := t.TempDir()
	target, err := exp.Restore(context.Background(), entry, dest)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(target, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, randomBytes(200, 3), got)

	info, err := os.Stat(filepath.Join(target, "emptydir"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	info, err = os.Stat(filepath.Join(target, "sub", "deeper", "c.txt"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	assert.Len(t, restored, 3)
}

func TestRestore_ReplacesExistingFile(t *testing.T) {
	s := newSetup(t, 32)
	s.write(t, "/in/notes.txt", []byte("fresh content"))
	entry, _, err := s.ing.Digest(context.Background(), "/in/notes.txt")
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "notes.txt"), []byte("stale and much longer content"), 0o644))

	target, err := s.exp.Restore(context.Background(), entry, dest)
	require.NoError(t, err)
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "fresh content", string(got))
}

func TestRestore_MissingObject(t *testing.T) {
	s := newSetup(t, 32)
	s.write(t, "/in/f.bin", randomBytes(100, 4))
	entry, _, err := s.ing.Digest(context.Background(), "/in/f.bin")
	require.NoError(t, err)

	// 删掉一个块，还原必须失败且不留下半个文件
	list, err := s.eng.ReadList(context.Background(), entry.Root)
	require.NoError(t, err)
	require.NoError(t, s.eng.Delete(context.Background(), list.Links()[1]))

	dest := t.TempDir()
	_, err = s.exp.Restore(context.Background(), entry, dest)
	require.ErrorIs(t, err, storage.ErrNotFound)

	leftovers, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

// staticReader 直接返回预先构造的对象，用于伪造存储里的恶意数据
type staticReader map[core.Link]core.Object

func (r staticReader) Read(_ context.Context, link core.Link) (core.Object, error) {
	obj, ok := r[link]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return obj, nil
}

func TestRestore_UnsafeNames(t *testing.T) {
	leaf := core.NewBlob([]byte("pwned"))

	for _, bad := range []string{"..", "a/b", `..\evil`} {
		t.Run(strings.ReplaceAll(bad, "/", "_"), func(t *testing.T) {
			data, err := cbor.Marshal(map[string]any{
				"content": map[string]core.Link{bad: leaf.Link()},
			})
			require.NoError(t, err)
			tree, err := core.Decode(types.TypeTree, data)
			require.NoError(t, err)

			exp := NewExporter(staticReader{leaf.Link(): leaf, tree.Link(): tree})
			entry := core.Entry{Name: "victim", Root: tree.Link()}

			_, err = exp.Restore(context.Background(), entry, t.TempDir())
			assert.ErrorIs(t, err, ErrUnsafeName)
		})
	}

	exp := NewExporter(staticReader{})
	_, err := exp.Restore(context.Background(), core.Entry{Name: "..", Root: leaf.Link()}, t.TempDir())
	assert.ErrorIs(t, err, ErrUnsafeName)
}

func TestRestore_ThroughCache(t *testing.T) {
	s := newSetup(t, 16)
	content := bytes.Repeat([]byte("cache me please!"), 20)
	s.write(t, "/c/f", content)
	entry, _, err := s.ing.Digest(context.Background(), "/c/f")
	require.NoError(t, err)

	cached, err := objcache.New(s.eng, 1<<20)
	require.NoError(t, err)
	exp := NewExporter(cached)

	target, err := exp.Restore(context.Background(), entry, t.TempDir())
	require.NoError(t, err)
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// 20 个相同的块只回源一次
	stats := cached.Stats()
	assert.EqualValues(t, 2, stats.Misses)
	assert.EqualValues(t, 19, stats.Hits)
}

func TestPrintObject(t *testing.T) {
	blob := core.NewBlob([]byte("hello"))
	list, err := core.NewList([]core.Link{blob.Link(), blob.Link()})
	require.NoError(t, err)
	tree, err := core.NewTree(map[string]core.Link{"hello.txt": blob.Link(), "parts": list.Link()})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, PrintObject(blob, &buf))
	assert.Contains(t, buf.String(), "Type: BLOB")
	assert.Contains(t, buf.String(), "5B")

	buf.Reset()
	require.NoError(t, PrintObject(list, &buf))
	assert.Contains(t, buf.String(), "Type: LIST")
	assert.Equal(t, 2, strings.Count(buf.String(), string(blob.ID())))

	buf.Reset()
	require.NoError(t, PrintObject(tree, &buf))
	out := buf.String()
	assert.Contains(t, out, "Type: TREE")
	assert.Less(t, strings.Index(out, "hello.txt"), strings.Index(out, "parts"))
}
