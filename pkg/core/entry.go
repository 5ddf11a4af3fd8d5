package core

import (
	"fmt"
	"time"
)

// Entry 是指向 DAG 根节点的命名指针，GC 以所有 Entry 为根
// 它按名字存储而非按内容寻址，所以不实现 Object
type Entry struct {
	Name  string
	Root  Link
	CTime time.Time
}

type entryWire struct {
	Name  string `cbor:"name"`
	Root  Link   `cbor:"root"`
	CTime string `cbor:"ctime"` // ISO-8601
}

func NewEntry(name string, root Link, ctime time.Time) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, Root: root, CTime: ctime.UTC()}, nil
}

// WithName 返回改名后的副本
func (e Entry) WithName(name string) Entry {
	e.Name = name
	return e
}

func EncodeEntry(e Entry) ([]byte, error) {
	if err := ValidateName(e.Name); err != nil {
		return nil, err
	}
	data, err := em.Marshal(entryWire{
		Name:  e.Name,
		Root:  e.Root,
		CTime: e.CTime.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry %q: %w", e.Name, err)
	}
	return data, nil
}

func DecodeEntry(data []byte) (Entry, error) {
	var w entryWire
	if err := dm.Unmarshal(data, &w); err != nil {
		return Entry{}, fmt.Errorf("failed to decode entry: %w", err)
	}
	ctime, err := time.Parse(time.RFC3339Nano, w.CTime)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %q has invalid ctime: %w", w.Name, err)
	}
	return Entry{Name: w.Name, Root: w.Root, CTime: ctime}, nil
}
