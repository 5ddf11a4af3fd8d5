package ingester

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"time"

	"archvault/pkg/core"
	"archvault/pkg/ignore"

	"github.com/spf13/afero"
)

// Digest 归档 srcPath (文件或目录)，以它的 basename 登记 Entry
func (ing *Ingester) Digest(ctx context.Context, srcPath string) (core.Entry, Stats, error) {
	return ing.DigestAs(ctx, srcPath, filepath.Base(filepath.Clean(srcPath)))
}

// DigestAs 与 Digest 相同，但使用指定的 Entry 名字
// 名字已被占用时引擎会自动改名为 1_name、2_name ...
func (ing *Ingester) DigestAs(ctx context.Context, srcPath, name string) (core.Entry, Stats, error) {
	start := time.Now()
	c := &counters{}

	if err := core.ValidateName(name); err != nil {
		return core.Entry{}, Stats{}, err
	}

	info, err := ing.lstat(srcPath)
	if err != nil {
		return core.Entry{}, Stats{}, fmt.Errorf("stat %s: %w", srcPath, err)
	}

	// 1. 构建对象图
	var root core.Link
	switch {
	case info.IsDir():
		matcher, err := ignore.NewMatcher(ing.fs, srcPath)
		if err != nil {
			return core.Entry{}, Stats{}, err
		}
		root, err = ing.digestDir(ctx, srcPath, "", matcher, c)
		if err != nil {
			return core.Entry{}, c.stats(), err
		}
	case info.Mode().IsRegular():
		root, err = ing.digestPath(ctx, srcPath, c)
		if err != nil {
			return core.Entry{}, c.stats(), err
		}
	default:
		return core.Entry{}, Stats{}, fmt.Errorf("%s: unsupported file type %s", srcPath, info.Mode().Type())
	}

	// 2. 登记入口
	entry, err := core.NewEntry(name, root, ing.now())
	if err != nil {
		return core.Entry{}, c.stats(), err
	}
	stored, err := ing.store.AddEntry(ctx, entry)
	if err != nil {
		return core.Entry{}, c.stats(), fmt.Errorf("add entry %q: %w", name, err)
	}

	stats := c.stats()
	ing.logger.Info("digest finished",
		"entry", stored.Name,
		"root", stored.Root.String(),
		"files", stats.Files,
		"dirs", stats.Dirs,
		"chunks", stats.Chunks,
		"new_chunks", stats.NewChunks,
		"bytes", stats.Bytes,
		"duration", time.Since(start),
	)
	return stored, stats, nil
}

// lstat 尽量不跟随符号链接，底层文件系统不支持时退化为 Stat
func (ing *Ingester) lstat(p string) (fs.FileInfo, error) {
	if l, ok := ing.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(p)
		return info, err
	}
	return ing.fs.Stat(p)
}

func (ing *Ingester) digestPath(ctx context.Context, p string, c *counters) (core.Link, error) {
	f, err := ing.fs.Open(p)
	if err != nil {
		return core.Link{}, err
	}
	defer f.Close()

	link, err := ing.digestFile(ctx, f, c)
	if err != nil {
		return core.Link{}, fmt.Errorf("digest %s: %w", p, err)
	}
	c.files.Add(1)
	return link, nil
}

// digestDir 自底向上处理目录：先处理所有子项，再写入本层 TREE
// rel 是相对归档根的 '/' 分隔路径，用于匹配忽略规则
func (ing *Ingester) digestDir(ctx context.Context, dir, rel string, m *ignore.Matcher, c *counters) (core.Link, error) {
	if err := ctx.Err(); err != nil {
		return core.Link{}, err
	}

	// afero.ReadDir 按文件名排序返回
	infos, err := afero.ReadDir(ing.fs, dir)
	if err != nil {
		return core.Link{}, fmt.Errorf("read dir %s: %w", dir, err)
	}

	children := make(map[string]core.Link, len(infos))
	for _, info := range infos {
		name := info.Name()
		childRel := path.Join(rel, name)
		childPath := filepath.Join(dir, name)

		if m.Matches(childRel, info.IsDir()) {
			ing.logger.Debug("ignored", "path", childRel)
			c.skipped.Add(1)
			continue
		}

		var link core.Link
		switch {
		case info.IsDir():
			link, err = ing.digestDir(ctx, childPath, childRel, m, c)
		case info.Mode().IsRegular():
			link, err = ing.digestPath(ctx, childPath, c)
		default:
			// 符号链接、设备文件、管道等不归档
			ing.logger.Warn("skipping non-regular file", "path", childRel, "mode", info.Mode().Type().String())
			c.skipped.Add(1)
			continue
		}
		if err != nil {
			return core.Link{}, err
		}
		children[name] = link
	}

	tree, err := core.NewTree(children)
	if err != nil {
		return core.Link{}, fmt.Errorf("build tree %s: %w", dir, err)
	}
	link, created, err := ing.store.WriteObject(ctx, tree)
	if err != nil {
		return core.Link{}, fmt.Errorf("write tree %s: %w", dir, err)
	}
	c.dirs.Add(1)
	if created {
		c.trees.Add(1)
	}
	return link, nil
}
