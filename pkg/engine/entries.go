package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"

	"archvault/pkg/core"
	"archvault/pkg/storage"
	"archvault/pkg/types"
)

// maxRenameAttempts 限制同名 Entry 的改名次数
const maxRenameAttempts = 10000

var ErrEntryNotFound = fmt.Errorf("entry %w", storage.ErrNotFound)

// candidateName 返回第 n 个候选名：name, 1_name, 2_name, ...
func candidateName(name string, n int) string {
	if n == 0 {
		return name
	}
	return strconv.Itoa(n) + "_" + name
}

// AddEntry 保存 Entry；重名时按 candidateName 依次改名，第一个空闲的名字胜出
// Entry 只追加，从不覆盖。返回实际保存的 Entry (名字可能已改变)
func (e *Engine) AddEntry(ctx context.Context, entry core.Entry) (core.Entry, error) {
	if err := core.ValidateName(entry.Name); err != nil {
		return core.Entry{}, err
	}

	for n := range maxRenameAttempts {
		candidate := entry.WithName(candidateName(entry.Name, n))
		data, err := core.EncodeEntry(candidate)
		if err != nil {
			return core.Entry{}, err
		}
		sealed, err := e.sealer.Seal(data)
		if err != nil {
			return core.Entry{}, fmt.Errorf("seal entry: %w", err)
		}

		path := storage.EntryPath(candidate.Name)
		unlock := e.locks.lock(path)
		err = e.backend.Put(ctx, path, sealed)
		unlock()

		switch {
		case err == nil:
			if n > 0 {
				e.logger.Info("entry renamed on collision", "requested", entry.Name, "stored", candidate.Name)
			}
			return candidate, nil
		case errors.Is(err, storage.ErrAlreadyExists):
			continue
		default:
			return core.Entry{}, fmt.Errorf("put entry %q: %w", candidate.Name, err)
		}
	}
	return core.Entry{}, fmt.Errorf("no free name for entry %q after %d attempts", entry.Name, maxRenameAttempts)
}

func (e *Engine) GetEntry(ctx context.Context, name string) (core.Entry, error) {
	sealed, err := e.backend.Get(ctx, storage.EntryPath(name))
	if errors.Is(err, storage.ErrNotFound) {
		return core.Entry{}, fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	if err != nil {
		return core.Entry{}, err
	}
	plain, err := e.sealer.Open(sealed)
	if err != nil {
		return core.Entry{}, fmt.Errorf("open entry %q: %w", name, err)
	}
	entry, err := core.DecodeEntry(plain)
	if err != nil {
		return core.Entry{}, err
	}
	if entry.Name != name {
		return core.Entry{}, fmt.Errorf("entry stored at %q claims name %q", name, entry.Name)
	}
	return entry, nil
}

// RemoveEntry 删除 Entry；它引用的对象要等下一次 GC 才会被回收
func (e *Engine) RemoveEntry(ctx context.Context, name string) error {
	path := storage.EntryPath(name)

	unlock := e.locks.lock(path)
	defer unlock()

	if _, err := e.backend.Get(ctx, path); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrEntryNotFound, name)
		}
		return err
	}
	return e.backend.Delete(ctx, path)
}

// ListEntries 惰性列出所有 Entry
// 列出与读取之间被删除的 Entry 会被跳过
func (e *Engine) ListEntries(ctx context.Context) iter.Seq2[core.Entry, error] {
	return func(yield func(core.Entry, error) bool) {
		for path, err := range e.backend.List(ctx, storage.EntryDir+"/") {
			if err != nil {
				yield(core.Entry{}, err)
				return
			}
			name, ok := storage.EntryName(path)
			if !ok {
				continue
			}
			entry, err := e.GetEntry(ctx, name)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if !yield(entry, err) || err != nil {
				return
			}
		}
	}
}

// ListObjects 惰性列出某一类型的所有对象哈希
func (e *Engine) ListObjects(ctx context.Context, t types.ObjectType) iter.Seq2[types.Hash, error] {
	return func(yield func(types.Hash, error) bool) {
		for path, err := range e.backend.List(ctx, storage.ObjectPrefix(t)) {
			if err != nil {
				yield("", err)
				return
			}
			gotType, h, err := storage.ParseObjectPath(path)
			if err != nil || gotType != t {
				e.logger.Warn("skipping unexpected path in object listing", "path", path)
				continue
			}
			if !yield(h, nil) {
				return
			}
		}
	}
}

// MinPrefixLen 是 ExpandHash 接受的最短前缀
const MinPrefixLen = 4

// ExpandHash 把短哈希扩展成完整哈希
func (e *Engine) ExpandHash(ctx context.Context, t types.ObjectType, prefix string) (types.Hash, error) {
	if len(prefix) < MinPrefixLen {
		return "", fmt.Errorf("hash prefix %q too short (need %d chars)", prefix, MinPrefixLen)
	}

	var found []types.Hash
	for path, err := range e.backend.List(ctx, storage.ObjectPrefix(t)+prefix) {
		if err != nil {
			return "", err
		}
		_, h, err := storage.ParseObjectPath(path)
		if err != nil {
			continue
		}
		// 只需要知道是 0 个、1 个还是多个
		if found = append(found, h); len(found) > 1 {
			return "", fmt.Errorf("%w: %q matches %s and %s", storage.ErrAmbiguousHash, prefix, found[0], found[1])
		}
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w: no %s matches %q", storage.ErrNotFound, t, prefix)
	}
	return found[0], nil
}
